package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dyike/StockPilot/internal/graph"
	"github.com/dyike/StockPilot/pkg/app"
)

// runInteractive prompts for ticker, question and mode until the user exits.
// Engines are cached per mode so switching back and forth does not rebuild.
func runInteractive(ctx context.Context, s *session) error {
	DisplayWelcomeBanner(s.out)

	cfg := s.config()
	mode, err := graph.ParseMode(cfg.AgentMode)
	if err != nil {
		return err
	}
	engines := map[graph.Mode]*app.Engine{}

	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	for {
		ticker, err := PromptForTicker()
		if err != nil {
			return interrupted(err)
		}
		question, err := PromptForQuestion()
		if err != nil {
			return interrupted(err)
		}
		if mode, err = PromptForMode(mode); err != nil {
			return interrupted(err)
		}

		engine, ok := engines[mode]
		if !ok {
			modeCfg := cfg
			modeCfg.AgentMode = string(mode)
			built, err := s.buildEngine(ctx, modeCfg)
			if err != nil {
				fmt.Fprintln(s.out, errorStyle.Render("❌ "+err.Error()))
				return err
			}
			engine = built
			engines[mode] = engine
		}

		fmt.Fprintln(s.out, renderAnalysisHeader(ticker, question, string(mode)))
		result := analyzeTicker(ctx, engine, ticker, question, sinks{history: history}, func(line string) {
			fmt.Fprintln(s.out, renderProgress(line))
		})
		printResult(s.out, engine, result)

		if !result.Failed() {
			save, err := PromptForSave()
			if err != nil {
				return interrupted(err)
			}
			if save {
				dir, err := NewResultsStore(cfg.ResultsDir).Save(result.State, time.Now())
				if err != nil {
					fmt.Fprintln(s.out, errorStyle.Render("❌ "+err.Error()))
				} else {
					fmt.Fprintln(s.out, completedStyle.Render("💾 saved to "+dir))
				}
			}
		}

		again, err := PromptForRestartOrExit()
		if err != nil {
			return interrupted(err)
		}
		if !again {
			fmt.Fprintln(s.out, "👋 Bye!")
			return nil
		}
	}
}

// interrupted treats Ctrl-C at a prompt as a normal exit.
func interrupted(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return nil
	}
	return err
}
