package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/cache"
	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/graph"
	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/internal/models"
	"github.com/dyike/StockPilot/internal/storage"
	"github.com/dyike/StockPilot/pkg/app"
)

const maxBatchConcurrency = 10

type analyzeOptions struct {
	question    string
	mode        string
	save        bool
	concurrency int
}

func newAnalyzeCmd(s *session) *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze TICKER...",
		Short: "Write an analyst report for one or more tickers",
		Example: `  stockpilot analyze TSLA
  stockpilot analyze AAPL MSFT NVDA --mode iterative --save
  stockpilot analyze 2330.TW -q "Is the dividend safe?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := s.config()
			if opts.mode != "" {
				mode, err := graph.ParseMode(opts.mode)
				if err != nil {
					return err
				}
				cfg.AgentMode = string(mode)
			}

			engine, err := s.buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := sinks{}
			if opts.save {
				out.files = NewResultsStore(cfg.ResultsDir)
			}
			if out.history, err = openHistory(cfg); err != nil {
				return err
			}
			defer out.history.Close()
			return runBatch(cmd.Context(), s.out, engine, args, opts.question, opts.concurrency, out)
		},
	}

	cmd.Flags().StringVarP(&opts.question, "question", "q", "", "Question to answer (default \"Should I buy this stock?\")")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Agent mode: single or iterative (default from config)")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Save report and conversation under the results directory")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 3, "Tickers analysed in parallel")

	return cmd
}

// sinks are where finished runs are persisted; nil fields are skipped.
type sinks struct {
	files   *ResultsStore
	history *storage.Store
}

// batchResult is the outcome of one ticker in a batch.
type batchResult struct {
	Symbol    string
	State     *models.ConversationState
	SavedTo   string
	SessionID string
	Err       error
	Duration  time.Duration
}

// Failed reports whether the ticker produced no usable report.
func (r batchResult) Failed() bool {
	return r.Err != nil || r.State == nil || strings.HasPrefix(r.State.Answer(), consts.AnalysisErrorPrefix)
}

// runBatch analyses tickers concurrently and prints the reports in input
// order. A failing ticker never stops the others.
func runBatch(ctx context.Context, w io.Writer, engine *app.Engine, tickers []string, question string, concurrency int, out sinks) error {
	if concurrency <= 0 || concurrency > maxBatchConcurrency {
		concurrency = 3
	}
	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		symbol := dataflows.NormalizeSymbol(t)
		if err := dataflows.ValidateSymbol(symbol); err != nil {
			return err
		}
		symbols = append(symbols, symbol)
	}

	var mu sync.Mutex
	progress := func(symbol, line string) {
		mu.Lock()
		defer mu.Unlock()
		if len(symbols) > 1 {
			line = symbol + ": " + line
		}
		fmt.Fprintln(w, renderProgress(line))
	}

	results := make([]batchResult, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			results[i] = analyzeTicker(gctx, engine, symbol, question, out, func(line string) { progress(symbol, line) })
			return nil
		})
	}
	_ = g.Wait()

	if engine.Data != nil {
		if prices, ok := engine.Data.Prices.(*cache.MarketDataCache); ok {
			st := prices.Stats()
			logger.Debug(ctx, "price cache", "hits", st.Hits, "misses", st.Misses, "entries", st.Entries)
		}
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
		printResult(w, engine, r)
	}
	if len(results) > 1 {
		fmt.Fprintln(w, renderKV([][2]string{
			{"Analysed", fmt.Sprint(len(results))},
			{"Failed", fmt.Sprint(failed)},
		}))
	}
	if failed == len(results) {
		return fmt.Errorf("all %d analyses failed", failed)
	}
	return nil
}

func analyzeTicker(ctx context.Context, engine *app.Engine, symbol, question string, out sinks, progress func(string)) batchResult {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, engine.Config)
	defer cancel()

	lines := make(chan string, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range lines {
			progress(line)
		}
	}()

	state, err := engine.Orchestrator.Run(ctx, symbol, question, graph.NewLoggerCallback(lines))
	close(lines)
	<-done

	result := batchResult{Symbol: symbol, State: state, Err: err, Duration: time.Since(start)}
	if err != nil {
		return result
	}
	if out.history != nil {
		id, herr := out.history.Record(ctx, storage.Run{
			State:     state,
			Mode:      string(engine.Orchestrator.Mode()),
			StartedAt: start,
			Duration:  result.Duration,
		})
		if herr != nil {
			logger.ErrorWithErr(ctx, "record analysis failed", herr, "ticker", symbol)
		}
		result.SessionID = id
	}
	if out.files != nil {
		dir, serr := out.files.Save(state, start)
		if serr != nil {
			logger.ErrorWithErr(ctx, "save analysis failed", serr, "ticker", symbol)
			return result
		}
		result.SavedTo = dir
	}
	return result
}

func printResult(w io.Writer, engine *app.Engine, r batchResult) {
	if r.Err != nil {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("❌ %s: %v", r.Symbol, r.Err)))
		return
	}
	fmt.Fprintln(w, renderAnalysisHeader(r.Symbol, r.State.Question, string(engine.Orchestrator.Mode())))
	fmt.Fprintln(w, renderReport(r.State.Answer()))
	meta := [][2]string{
		{"Tool rounds", fmt.Sprint(r.State.ToolRounds())},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
	}
	if r.SessionID != "" {
		meta = append(meta, [2]string{"History id", shortID(r.SessionID)})
	}
	if r.SavedTo != "" {
		meta = append(meta, [2]string{"Saved to", r.SavedTo})
	}
	fmt.Fprintln(w, renderKV(meta))
}
