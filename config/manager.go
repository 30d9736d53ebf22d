package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const (
	configFileName  = "config.yaml"
	defaultDebounce = 300 * time.Millisecond
)

// Manager keeps config.yaml and an in-memory Config in step. The file never
// holds environment overrides: callers overlay those with Config.ApplyEnv, so
// API keys given through the environment stay off disk.
type Manager struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	cfg      Config
	onChange func(Config)
	watcher  *fsnotify.Watcher

	// set while our own write is in flight so the watcher ignores it
	writing atomic.Bool
}

type managerOptions struct {
	configPath string
	seed       *Config
	debounce   time.Duration
}

type ManagerOption func(*managerOptions)

// WithConfigDir places config.yaml inside dir.
func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, configFileName)
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

// WithDebounce sets how long the watcher waits for edits to settle.
func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithInitialConfig is written out when no config file exists yet.
func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) { o.seed = cfg }
}

// NewManager opens the config file, creating it from the seed settings (or
// the defaults) on first use.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	o := managerOptions{debounce: defaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}
	if o.configPath == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		o.configPath = p
	}
	if err := os.MkdirAll(filepath.Dir(o.configPath), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := readConfigFile(o.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = seedConfig(o.configPath, o.seed)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := writeConfigFile(o.configPath, cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	default:
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return &Manager{path: o.configPath, debounce: o.debounce, cfg: cfg}, nil
}

// DefaultConfigPath is StockPilot/config.yaml under the user config directory,
// or under the working directory when there is none.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "StockPilot", configFileName), nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// UpdateFromJSON applies a partial JSON document: keys it leaves out keep
// their current value.
func (m *Manager) UpdateFromJSON(doc string) error {
	next := m.Get()
	if err := json.Unmarshal([]byte(doc), &next); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(next)
}

// Update validates next, saves it and notifies the watcher callback. Saving
// settings identical to the current ones is a no-op.
func (m *Manager) Update(next Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(m.Get(), next) {
		return nil
	}

	m.writing.Store(true)
	if err := writeConfigFile(m.path, next); err != nil {
		m.writing.Store(false)
		return err
	}
	// the fsnotify events for this write arrive after a short delay
	time.AfterFunc(m.debounce, func() { m.writing.Store(false) })

	m.replace(next)
	return nil
}

func (m *Manager) replace(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
}

func seedConfig(path string, seed *Config) Config {
	if seed != nil {
		return *seed
	}
	return *DefaultConfigWithRoot(filepath.Dir(path))
}

// readConfigFile decodes path over the defaults, so a file listing only a few
// keys still yields a complete Config.
func readConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(path))
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// writeConfigFile swaps in a fully written temp file, so a crash never leaves
// a truncated config.yaml behind.
func writeConfigFile(path string, cfg Config) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err = enc.Encode(&cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("flush config encoder: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
