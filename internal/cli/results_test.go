package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockPilot/internal/models"
)

func finishedState(ticker, answer string) *models.ConversationState {
	state := models.NewConversationState(ticker, "Should I buy this stock?")
	state.Append(schema.AssistantMessage(answer, nil))
	return state
}

func TestResultsStoreRoundTrip(t *testing.T) {
	store := NewResultsStore(t.TempDir())

	older := time.Date(2024, 6, 3, 9, 30, 0, 0, time.Local)
	newer := older.Add(26 * time.Hour)

	dir1, err := store.Save(finishedState("TSLA", "## Summary\nHold for now."), older)
	require.NoError(t, err)
	dir2, err := store.Save(finishedState("BRK/B", "Buy on weakness."), newer)
	require.NoError(t, err)

	assert.Equal(t, "BRK_B", filepath.Base(filepath.Dir(dir2)))
	report, err := os.ReadFile(filepath.Join(dir1, reportFileName))
	require.NoError(t, err)
	assert.Contains(t, string(report), "# TSLA")
	assert.Contains(t, string(report), "Hold for now.")

	results, err := store.List()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "BRK_B", results[0].Symbol)
	assert.Equal(t, "Buy on weakness.", results[0].Preview)
	assert.Equal(t, "TSLA", results[1].Symbol)
	assert.Equal(t, "Hold for now.", results[1].Preview)
	assert.True(t, results[1].CreatedAt.Equal(older))

	state, err := store.Load(dir1)
	require.NoError(t, err)
	assert.Equal(t, "TSLA", state.Ticker)
	assert.Equal(t, "## Summary\nHold for now.", state.Answer())
	assert.Len(t, state.Messages, 2)
}

func TestResultsStoreMissingRoot(t *testing.T) {
	store := NewResultsStore(filepath.Join(t.TempDir(), "nope"))
	results, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = store.Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "body", preview("# Title\n\n> question\n\nbody\nmore", 80))
	assert.Equal(t, "abc...", preview("abcdef", 3))
	assert.Equal(t, "", preview("# only a heading", 80))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "unknown", sanitizeFilename("  "))
	assert.Equal(t, "2330.TW", sanitizeFilename("2330.TW"))
	assert.Equal(t, "a_b_c", sanitizeFilename("a:b*c"))
}
