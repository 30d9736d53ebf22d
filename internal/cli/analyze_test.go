package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/graph"
	"github.com/dyike/StockPilot/internal/models"
	"github.com/dyike/StockPilot/internal/storage"
	"github.com/dyike/StockPilot/internal/tools"
	"github.com/dyike/StockPilot/pkg/app"
)

// scriptedModel answers every synthesis prompt with a fixed report, or fails
// for tickers listed in failFor.
type scriptedModel struct {
	failFor string
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	prompt := input[len(input)-1].Content
	if m.failFor != "" && strings.Contains(prompt, m.failFor) {
		return nil, errors.New("rate limited")
	}
	return schema.AssistantMessage("Verdict: hold.", nil), nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

type noPrices struct{}

func (noPrices) History(context.Context, string, time.Time, time.Time) ([]*models.MarketData, error) {
	return nil, dataflows.ErrDataUnavailable
}

func (noPrices) Quote(context.Context, string) (*models.Quote, error) {
	return nil, dataflows.ErrDataUnavailable
}

type stubMetrics struct{}

func (stubMetrics) GetFinancialMetrics(_ context.Context, ticker string) (*models.FinancialMetrics, error) {
	return &models.FinancialMetrics{Stock: ticker}, nil
}

type stubNews struct{}

func (stubNews) Retrieve(_ context.Context, ticker string) models.NewsResult {
	return models.NewsResult{Stock: ticker, Source: "stub"}
}

func testEngine(t *testing.T, chat model.ToolCallingChatModel) *app.Engine {
	t.Helper()
	ctx := context.Background()
	registry, err := tools.NewAnalysisRegistry(ctx, tools.Sources{
		Prices:       noPrices{},
		Fundamentals: stubMetrics{},
		News:         stubNews{},
	})
	require.NoError(t, err)
	orch, err := graph.NewOrchestrator(ctx, graph.AgentConfig{
		Model:    chat,
		Registry: registry,
		Mode:     graph.ModeSinglePass,
	})
	require.NoError(t, err)
	return &app.Engine{
		Config:       *config.DefaultConfigWithRoot(t.TempDir()),
		Registry:     registry,
		Orchestrator: orch,
	}
}

func TestRunBatch(t *testing.T) {
	engine := testEngine(t, &scriptedModel{failFor: "MSFT"})
	files := NewResultsStore(t.TempDir())
	history, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	var out bytes.Buffer
	err = runBatch(context.Background(), &out, engine, []string{"aapl", " msft "}, "", 2, sinks{files: files, history: history})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "AAPL")
	assert.Contains(t, text, "Verdict: hold.")
	assert.Contains(t, text, consts.AnalysisErrorPrefix)
	assert.Contains(t, text, "rate limited")
	assert.Less(t, strings.Index(text, "Verdict: hold."), strings.Index(text, "rate limited"))

	saved, err := files.List()
	require.NoError(t, err)
	require.Len(t, saved, 2)
	for _, r := range saved {
		_, err := os.Stat(filepath.Join(r.Dir, conversationFileName))
		assert.NoError(t, err)
	}

	runs, err := history.ListSessions(context.Background(), storage.ListFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	statuses := map[string]string{}
	for _, r := range runs {
		statuses[r.Ticker] = r.Status
		assert.Equal(t, "single", r.Mode)
	}
	assert.Equal(t, map[string]string{"AAPL": storage.StatusDone, "MSFT": storage.StatusError}, statuses)
	assert.Contains(t, text, "History id")
}

func TestRunBatchAllFailed(t *testing.T) {
	engine := testEngine(t, &scriptedModel{failFor: "get_stock_prices"})

	var out bytes.Buffer
	err := runBatch(context.Background(), &out, engine, []string{"TSLA"}, "Is it cheap?", 0, sinks{})
	assert.ErrorContains(t, err, "all 1 analyses failed")
	assert.Contains(t, out.String(), "Is it cheap?")

	err = runBatch(context.Background(), &out, engine, []string{"TSLA", " "}, "", 1, sinks{})
	assert.Error(t, err)
}

func TestBatchResultFailed(t *testing.T) {
	assert.True(t, batchResult{Err: errors.New("x")}.Failed())
	assert.True(t, batchResult{}.Failed())
	assert.True(t, batchResult{State: finishedState("A", consts.AnalysisErrorPrefix+"x")}.Failed())
	assert.False(t, batchResult{State: finishedState("A", "fine")}.Failed())
}
