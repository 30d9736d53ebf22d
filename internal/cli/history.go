package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/storage"
)

// openHistory returns nil without error when history is disabled.
func openHistory(cfg config.Config) (*storage.Store, error) {
	if strings.TrimSpace(cfg.HistoryPath) == "" {
		return nil, nil
	}
	store, err := storage.Open(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newHistoryCmd(s *session) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the recorded analysis runs",
	}

	withStore := func(fn func(cmd *cobra.Command, store *storage.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(s.config())
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("history is disabled (history_path is empty)")
			}
			defer store.Close()
			return fn(cmd, store, args)
		}
	}

	var (
		ticker string
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: withStore(func(cmd *cobra.Command, store *storage.Store, _ []string) error {
			sessions, err := store.ListSessions(cmd.Context(), storage.ListFilter{Ticker: ticker, Limit: limit})
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(s.out, "No recorded runs.")
				return nil
			}
			for _, rec := range sessions {
				status := completedStyle.Render(rec.Status)
				if rec.Status == storage.StatusError {
					status = errorStyle.Render(rec.Status)
				}
				fmt.Fprintf(s.out, "%s  %-10s %-9s %s  %s  %s\n",
					shortID(rec.ID), rec.Ticker, rec.Mode, rec.CreatedAt.Format("2006-01-02 15:04"), status, preview(rec.Answer, 60))
			}
			return nil
		}),
	}
	listCmd.Flags().StringVar(&ticker, "ticker", "", "Only runs for this ticker")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	historyCmd.AddCommand(listCmd)

	var transcript bool
	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a recorded report (ID may be a prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, store *storage.Store, args []string) error {
			rec, state, err := store.LoadConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, renderAnalysisHeader(rec.Ticker, rec.Question, rec.Mode))
			if transcript {
				for _, msg := range state.Messages {
					line := strings.TrimSpace(msg.Content)
					if len(msg.ToolCalls) > 0 {
						names := make([]string, 0, len(msg.ToolCalls))
						for _, call := range msg.ToolCalls {
							names = append(names, call.Function.Name)
						}
						line = "→ " + strings.Join(names, ", ")
					}
					fmt.Fprintf(s.out, "%s %s\n", labelStyle.Render(string(msg.Role)), preview(line, 100))
				}
			}
			fmt.Fprintln(s.out, renderReport(state.Answer()))
			fmt.Fprint(s.out, renderKV([][2]string{
				{"Recorded", rec.CreatedAt.Format(time.RFC1123)},
				{"Tool rounds", fmt.Sprint(rec.ToolRounds)},
				{"Duration", rec.Duration.String()},
			}))
			return nil
		}),
	}
	showCmd.Flags().BoolVar(&transcript, "transcript", false, "Also print every message of the conversation")
	historyCmd.AddCommand(showCmd)

	historyCmd.AddCommand(&cobra.Command{
		Use:   "rm ID",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, store *storage.Store, args []string) error {
			rec, err := store.FindSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteSession(cmd.Context(), rec.ID); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Deleted %s (%s)\n", shortID(rec.ID), rec.Ticker)
			return nil
		}),
	})

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a given age",
		RunE: withStore(func(cmd *cobra.Command, store *storage.Store, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Pruned %d run(s)\n", n)
			return nil
		}),
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Age cutoff")
	historyCmd.AddCommand(pruneCmd)

	return historyCmd
}
