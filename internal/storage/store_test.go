package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func toolRun(ticker, answer string, at time.Time) Run {
	state := models.NewConversationState(ticker, consts.DefaultQuestion)
	state.Append(schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_" + consts.ToolGetStockPrices,
		Function: schema.FunctionCall{Name: consts.ToolGetStockPrices, Arguments: `{"ticker":"` + ticker + `"}`},
	}}))
	state.Append(schema.ToolMessage(`{"stock":"`+ticker+`"}`, "call_"+consts.ToolGetStockPrices))
	state.Append(schema.AssistantMessage(answer, nil))
	return Run{State: state, Mode: "single", StartedAt: at, Duration: 1500 * time.Millisecond}
}

func TestRecordAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

	id, err := store.Record(ctx, toolRun("TSLA", "Hold.", at))
	require.NoError(t, err)

	session, state, err := store.LoadConversation(ctx, id[:8])
	require.NoError(t, err)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, StatusDone, session.Status)
	assert.Equal(t, "Hold.", session.Answer)
	assert.Equal(t, 1, session.ToolRounds)
	assert.Equal(t, 1500*time.Millisecond, session.Duration)
	assert.True(t, session.CreatedAt.Equal(at))

	require.Len(t, state.Messages, 4)
	assert.Equal(t, schema.User, state.Messages[0].Role)
	require.Len(t, state.Messages[1].ToolCalls, 1)
	assert.Equal(t, consts.ToolGetStockPrices, state.Messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "call_"+consts.ToolGetStockPrices, state.Messages[2].ToolCallID)
	assert.Equal(t, "Hold.", state.Answer())
}

func TestListFilterAndOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

	_, err := store.Record(ctx, toolRun("TSLA", "first", base))
	require.NoError(t, err)
	_, err = store.Record(ctx, toolRun("AAPL", consts.AnalysisErrorPrefix+"boom", base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = store.Record(ctx, toolRun("TSLA", "second", base.Add(2*time.Hour)))
	require.NoError(t, err)

	all, err := store.ListSessions(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "second", all[0].Answer)
	assert.Equal(t, StatusError, all[1].Status)
	assert.Equal(t, "first", all[2].Answer)

	tsla, err := store.ListSessions(ctx, ListFilter{Ticker: "tsla", Limit: 1})
	require.NoError(t, err)
	require.Len(t, tsla, 1)
	assert.Equal(t, "second", tsla[0].Answer)

	n, err := store.Prune(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	rest, err := store.ListSessions(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	msgs, err := store.ListMessages(ctx, rest[0].ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestFindAndDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.FindSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindSession(ctx, " ")
	assert.Error(t, err)

	id, err := store.Record(ctx, toolRun("NVDA", "Buy.", time.Now()))
	require.NoError(t, err)
	require.NoError(t, store.DeleteSession(ctx, id))
	assert.ErrorIs(t, store.DeleteSession(ctx, id), ErrNotFound)

	msgs, err := store.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = store.Record(ctx, Run{})
	assert.Error(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
