package cli

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/pkg/app"
)

const defaultWatchSchedule = "0 30 16 * * 1-5"

// Watchlist re-runs the analysis for a fixed set of tickers on a cron
// schedule. Each run uses whatever engine the runtime currently holds, so
// edits to the config file apply from the next tick.
type Watchlist struct {
	Cron    *cron.Cron
	Runtime *app.Runtime
	Tickers []string
	Sinks   sinks
	Out     io.Writer

	running atomic.Bool
}

func NewWatchlist(rt *app.Runtime, tickers []string, out io.Writer, save sinks) *Watchlist {
	return &Watchlist{
		Cron:    cron.New(cron.WithSeconds()),
		Runtime: rt,
		Tickers: tickers,
		Sinks:   save,
		Out:     out,
	}
}

// Register adds the batch job. schedule uses the six-field format with seconds.
func (wl *Watchlist) Register(ctx context.Context, schedule string) error {
	if _, err := wl.Cron.AddFunc(schedule, func() { wl.RunNow(ctx) }); err != nil {
		return fmt.Errorf("register watch schedule %q: %w", schedule, err)
	}
	return nil
}

// RunNow analyses the watchlist once. Overlapping ticks are skipped.
func (wl *Watchlist) RunNow(ctx context.Context) {
	if !wl.running.CompareAndSwap(false, true) {
		logger.Warn(ctx, "previous watch run still in progress, skipping tick")
		return
	}
	defer wl.running.Store(false)

	engine := wl.Runtime.Engine()
	logger.Info(ctx, "watch run", "tickers", wl.Tickers, "engine_version", engine.Version)
	fmt.Fprintf(wl.Out, "\n⏰ %s\n", time.Now().Format(time.DateTime))
	if err := runBatch(ctx, wl.Out, engine, wl.Tickers, "", len(wl.Tickers), wl.Sinks); err != nil {
		logger.ErrorWithErr(ctx, "watch run failed", err)
	}
}

// Start runs the scheduler until ctx is done.
func (wl *Watchlist) Start(ctx context.Context) {
	wl.Cron.Start()
	logger.Info(ctx, "watch scheduler started", "entries", len(wl.Cron.Entries()))
	<-ctx.Done()
	<-wl.Cron.Stop().Done()
	logger.Info(ctx, "watch scheduler stopped")
}

func newWatchCmd(s *session) *cobra.Command {
	var (
		schedule string
		now      bool
		save     bool
	)
	cmd := &cobra.Command{
		Use:   "watch TICKER...",
		Short: "Re-run analyses on a schedule",
		Long: `Runs single-pass analyses for the given tickers on a cron schedule
(six fields, seconds first). The config file is watched and changes apply
from the next run.`,
		Example: `  stockpilot watch AAPL MSFT --schedule "0 0 9 * * 1-5" --now`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tickers := make([]string, 0, len(args))
			for _, a := range args {
				t := dataflows.NormalizeSymbol(a)
				if err := dataflows.ValidateSymbol(t); err != nil {
					return err
				}
				tickers = append(tickers, t)
			}

			rt, err := app.NewRuntime(ctx, s.mgr,
				app.WithBuilder(func(cfg config.Config) (*app.Engine, error) {
					cfg.ApplyEnv()
					cfg.AgentMode = config.AgentModeSingle
					return s.buildEngine(ctx, cfg)
				}),
				app.WithNotifier(func(topic, payload string) {
					logger.Info(ctx, "runtime event", "topic", topic, "payload", payload)
					if topic == app.TopicEngineReloadFailed {
						fmt.Fprintln(s.out, errorStyle.Render("⚠️  config reload failed, keeping previous engine: "+payload))
					}
				}),
			)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := s.config()
			out := sinks{}
			if save {
				out.files = NewResultsStore(cfg.ResultsDir)
			}
			if out.history, err = openHistory(cfg); err != nil {
				return err
			}
			defer out.history.Close()

			wl := NewWatchlist(rt, tickers, s.out, out)
			if err := wl.Register(ctx, schedule); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "👀 watching %v on %q (config: %s)\n", tickers, schedule, s.mgr.Path())
			if now {
				wl.RunNow(ctx)
			}
			wl.Start(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", defaultWatchSchedule, "Cron schedule with seconds")
	cmd.Flags().BoolVar(&now, "now", false, "Run once immediately before waiting for the schedule")
	cmd.Flags().BoolVar(&save, "save", true, "Save every report under the results directory")
	return cmd
}
