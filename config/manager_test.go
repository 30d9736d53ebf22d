package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)

	path := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(path)
	require.NoError(t, err, "config file not created")

	err = mgr.UpdateFromJSON(`{"agent_mode":"iterative","max_tool_rounds":3}`)
	require.NoError(t, err)

	updated := mgr.Get()
	assert.Equal(t, AgentModeIterative, updated.AgentMode)
	assert.Equal(t, 3, updated.MaxToolRounds)
	assert.Equal(t, ProviderOpenAI, updated.LLMProvider, "untouched keys keep their value")

	reopened, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)
	assert.Equal(t, AgentModeIterative, reopened.Get().AgentMode)
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	err = mgr.UpdateFromJSON(`{"indicator_mode":"hourly"}`)
	require.Error(t, err)
	assert.Equal(t, IndicatorModeLatest, mgr.Get().IndicatorMode)

	err = mgr.UpdateFromJSON(`{not json`)
	require.Error(t, err)
}

func TestManagerFillsMissingKeysWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm_provider: deepseek\n"), 0o644))

	mgr, err := NewManager(WithConfigPath(path))
	require.NoError(t, err)

	cfg := mgr.Get()
	assert.Equal(t, ProviderDeepSeek, cfg.LLMProvider)
	assert.Equal(t, 5, cfg.MaxToolRounds)
	assert.Equal(t, "https://query2.finance.yahoo.com", cfg.YahooQueryURL)
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	require.NoError(t, mgr.Watch(ctx, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))

	cfg := mgr.Get()
	cfg.MaxToolRounds = 7
	require.NoError(t, writeConfigFile(mgr.Path(), cfg))

	select {
	case got := <-reloaded:
		assert.Equal(t, 7, got.MaxToolRounds)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.MaxToolRounds = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.LLMProvider = "anthropic"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.HTTPTimeout = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.PriceCacheTTLMinutes = -1
	assert.Error(t, bad.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AGENT_MODE", "iterative")
	t.Setenv("MAX_TOOL_ROUNDS", "9")
	t.Setenv("INDICATOR_MODE", "window")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("PRICE_CACHE_TTL_MINUTES", "0")

	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.loadFromEnv()

	assert.Equal(t, AgentModeIterative, cfg.AgentMode)
	assert.Equal(t, 9, cfg.MaxToolRounds)
	assert.Equal(t, IndicatorModeWindow, cfg.IndicatorMode)
	assert.Equal(t, 30, cfg.HTTPTimeout)
	assert.Zero(t, cfg.PriceCacheTTL())
}

func TestHistoryIsOptIn(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	assert.Empty(t, cfg.HistoryPath)

	path := filepath.Join(t.TempDir(), "runs.db")
	t.Setenv("HISTORY_PATH", path)
	cfg.loadFromEnv()
	assert.Equal(t, path, cfg.HistoryPath)
}

func TestDebouncerRunsLastCallOnce(t *testing.T) {
	db := &debouncer{delay: 20 * time.Millisecond}
	got := make(chan int, 4)
	for i := 1; i <= 3; i++ {
		db.schedule(func() { got <- i })
	}

	select {
	case v := <-got:
		assert.Equal(t, 3, v)
	case <-time.After(time.Second):
		t.Fatal("debounced call never ran")
	}
	select {
	case v := <-got:
		t.Fatalf("extra call %d", v)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestWriteConfigFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configFileName)
	require.NoError(t, writeConfigFile(path, *DefaultConfigWithRoot(dir)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, configFileName, entries[0].Name())

	cfg, err := readConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, AgentModeSingle, cfg.AgentMode)
}
