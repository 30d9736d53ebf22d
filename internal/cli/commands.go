package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/debug"
	"github.com/dyike/StockPilot/internal/dify"
	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/internal/tools"
	"github.com/dyike/StockPilot/pkg/app"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

// session carries what every command needs once flags are parsed.
type session struct {
	configPath string
	debug      bool

	mgr       *config.Manager
	out       io.Writer
	debugOnce sync.Once
}

// config returns the file config with environment overrides applied on top.
func (s *session) config() config.Config {
	cfg := s.mgr.Get()
	cfg.ApplyEnv()
	if s.debug {
		cfg.Debug = true
	}
	return cfg
}

// buildEngine starts the eino debugger when enabled, then builds the engine.
// The debugger has to be up before any graph is compiled.
func (s *session) buildEngine(ctx context.Context, cfg config.Config) (*app.Engine, error) {
	s.debugOnce.Do(func() {
		if err := debug.NewEinoDebugger(&cfg).Initialize(ctx); err != nil {
			logger.Warn(ctx, "eino debugger unavailable", "error", err)
		}
	})
	return app.BuildEngine(cfg)
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	s := &session{out: os.Stdout}

	rootCmd := &cobra.Command{
		Use:   "stockpilot",
		Short: "StockPilot - LLM stock analysis",
		Long: `StockPilot gathers price history, technical indicators, fundamentals and
recent headlines for a ticker and asks a language model to write an analyst report.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Shutdown(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start interactive mode
			return runInteractive(cmd.Context(), s)
		},
	}
	rootCmd.SetOut(os.Stdout)

	rootCmd.AddCommand(newAnalyzeCmd(s))
	rootCmd.AddCommand(newWatchCmd(s))
	rootCmd.AddCommand(newNewsCmd(s))
	rootCmd.AddCommand(newIndicatorsCmd(s))
	rootCmd.AddCommand(newQuoteCmd(s))
	rootCmd.AddCommand(newAskCmd(s))
	rootCmd.AddCommand(newResultsCmd(s))
	rootCmd.AddCommand(newHistoryCmd(s))
	rootCmd.AddCommand(newConfigCmd(s))
	rootCmd.AddCommand(newVersionCmd())

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&s.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&s.configPath, "config", "", "Configuration file path")

	return rootCmd
}

func (s *session) init(cmd *cobra.Command) error {
	s.out = cmd.OutOrStdout()

	logCfg := logger.LoadConfigFromEnv()
	if s.debug {
		logCfg.Level = "DEBUG"
	}
	if err := logger.InitWithConfig(logCfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		return err
	}
	opts := []config.ManagerOption{config.WithInitialConfig(config.DefaultConfigWithRoot(root))}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}
	mgr, err := config.NewManager(opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s.mgr = mgr

	cfg := s.config()
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "StockPilot %s\n", Version)
		},
	}
}

func newNewsCmd(s *session) *cobra.Command {
	var taiwan bool
	cmd := &cobra.Command{
		Use:   "news TICKER",
		Short: "Show recent headlines for a ticker",
		Example: `  stockpilot news NVDA
  stockpilot news 2330 --tw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := dataflows.NormalizeSymbol(args[0])
			if err := dataflows.ValidateSymbol(ticker); err != nil {
				return err
			}
			data, err := app.NewDataSources(s.config())
			if err != nil {
				return err
			}
			retriever := data.News
			if taiwan {
				retriever = data.TaiwanNews
			}
			result := retriever.Retrieve(cmd.Context(), ticker)
			fmt.Fprint(s.out, renderNews(result))
			return nil
		},
	}
	cmd.Flags().BoolVar(&taiwan, "tw", false, "Search Taiwan Yahoo news instead of the default sources")
	return cmd
}

func newIndicatorsCmd(s *session) *cobra.Command {
	var windowed bool
	cmd := &cobra.Command{
		Use:   "indicators TICKER",
		Short: "Compute RSI, MACD, Stochastic and VWAP from recent daily bars",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := dataflows.NormalizeSymbol(args[0])
			if err := dataflows.ValidateSymbol(ticker); err != nil {
				return err
			}
			data, err := app.NewDataSources(s.config())
			if err != nil {
				return err
			}
			mode := data.IndicatorMode
			if windowed {
				mode = dataflows.ModeWindow
			}

			series, err := dataflows.RecentHistory(cmd.Context(), data.Prices, ticker, tools.IndicatorLookbackDays)
			if err != nil {
				return err
			}
			set, err := dataflows.ComputeIndicators(series, mode)
			if err != nil {
				return fmt.Errorf("technical analysis for %s: %w", ticker, err)
			}
			fmt.Fprint(s.out, renderIndicators(ticker, set))
			return nil
		},
	}
	cmd.Flags().BoolVar(&windowed, "window", false, "Show recent daily values instead of only the latest")
	return cmd
}

func newQuoteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "quote TICKER",
		Short: "Show the latest quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := dataflows.NormalizeSymbol(args[0])
			if err := dataflows.ValidateSymbol(ticker); err != nil {
				return err
			}
			data, err := app.NewDataSources(s.config())
			if err != nil {
				return err
			}
			q, err := data.Prices.Quote(cmd.Context(), ticker)
			if err != nil {
				return err
			}
			fmt.Fprint(s.out, renderQuote(q))
			return nil
		},
	}
}

func newAskCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask the configured Dify app a quick question",
		Long: `Sends the question to a Dify chat app and streams the answer.
Requires DIFY_BASE_URL and DIFY_API_KEY.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := s.config()
			client, err := dify.NewClient(&cfg)
			if err != nil {
				return err
			}
			_, err = client.Ask(cmd.Context(), strings.Join(args, " "), func(chunk string) {
				fmt.Fprint(s.out, chunk)
			})
			fmt.Fprintln(s.out)
			return err
		},
	}
}

func newResultsCmd(s *session) *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Browse saved analyses",
	}

	resultsCmd.AddCommand(&cobra.Command{
		Use:   "list [TICKER]",
		Short: "List saved analyses, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := NewResultsStore(s.config().ResultsDir)
			results, err := store.List()
			if err != nil {
				return err
			}
			filter := ""
			if len(args) == 1 {
				filter = dataflows.NormalizeSymbol(args[0])
			}
			shown := 0
			for _, r := range results {
				if filter != "" && r.Symbol != filter {
					continue
				}
				shown++
				fmt.Fprintf(s.out, "%-10s %s  %s\n   %s\n", r.Symbol, r.CreatedAt.Format("2006-01-02 15:04"), r.Preview, r.Dir)
			}
			if shown == 0 {
				fmt.Fprintln(s.out, "No saved analyses.")
			}
			return nil
		},
	})

	resultsCmd.AddCommand(&cobra.Command{
		Use:   "show DIR",
		Short: "Print a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := NewResultsStore(s.config().ResultsDir).Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, renderAnalysisHeader(state.Ticker, state.Question, fmt.Sprintf("%d tool round(s)", state.ToolRounds())))
			fmt.Fprintln(s.out, renderReport(state.Answer()))
			return nil
		},
	})

	return resultsCmd
}

func newConfigCmd(s *session) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(s.out, s.mgr.Path(), s.config())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(s.out, s.config())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long:  "Writes the built-in defaults to the config file. Secrets stay in the environment.",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}
			if err := s.mgr.Update(*config.DefaultConfigWithRoot(root)); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Wrote %s\n", s.mgr.Path())
			return nil
		},
	})

	return configCmd
}

func showConfig(w io.Writer, path string, cfg config.Config) {
	fmt.Fprintln(w, titleStyle.Render("📋 StockPilot configuration"))
	fmt.Fprint(w, renderKV([][2]string{
		{"Config file", path},
		{"Results directory", cfg.ResultsDir},
		{"History database", orOff(cfg.HistoryPath)},
		{"LLM provider", cfg.LLMProvider},
		{"OpenAI model", cfg.OpenAIModel},
		{"DeepSeek model", cfg.DeepSeekModel},
		{"Agent mode", cfg.AgentMode},
		{"Max tool rounds", fmt.Sprint(cfg.MaxToolRounds)},
		{"Indicator mode", cfg.IndicatorMode},
		{"Report language", cfg.ReportLanguage},
		{"Market data", cfg.MarketDataProvider},
		{"Price cache", priceCacheSummary(cfg)},
		{"News sources", strings.Join(dataflows.DefaultNewsRetriever(&cfg).Tiers(), " → ")},
		{"HTTP timeout", cfg.Timeout().String()},
		{"Eino debug", fmt.Sprint(cfg.EinoDebugEnabled)},
	}))
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("🔑 Credentials"))
	openAIKey := cfg.OpenAIAPIKey
	if cfg.LLMProvider == config.ProviderDeepSeek {
		openAIKey = cfg.DeepSeekAPIKey
	}
	fmt.Fprint(w, renderKV([][2]string{
		{"LLM API key", configured(openAIKey)},
		{"Longport", configured(cfg.LongportAccessToken)},
		{"Dify", configured(cfg.DifyAPIKey)},
	}))
}

func orOff(v string) string {
	if v == "" {
		return "off"
	}
	return v
}

func priceCacheSummary(cfg config.Config) string {
	if cfg.PriceCacheTTL() <= 0 {
		return "off"
	}
	if cfg.PriceCacheDir == "" {
		return cfg.PriceCacheTTL().String() + " (memory)"
	}
	return cfg.PriceCacheTTL().String() + " (" + cfg.PriceCacheDir + ")"
}

func validateConfig(w io.Writer, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(w, errorStyle.Render("❌ "+err.Error()))
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("directory validation failed: %w", err)
	}

	var warnings []string
	switch cfg.LLMProvider {
	case config.ProviderDeepSeek:
		if cfg.DeepSeekAPIKey == "" {
			warnings = append(warnings, "DEEPSEEK_API_KEY is not set; analyze will fail")
		}
	default:
		if cfg.OpenAIAPIKey == "" {
			warnings = append(warnings, "OPENAI_API_KEY is not set; analyze will fail")
		}
	}
	if cfg.MarketDataProvider == config.MarketLongport && cfg.LongportAccessToken == "" {
		warnings = append(warnings, "Longport credentials are not set")
	}
	if cfg.DifyAPIKey == "" || cfg.DifyBaseURL == "" {
		warnings = append(warnings, "Dify is not configured; ask is unavailable")
	}

	for _, warning := range warnings {
		fmt.Fprintln(w, "⚠️  "+warning)
	}
	fmt.Fprintln(w, completedStyle.Render(fmt.Sprintf("✅ configuration valid (%d warning(s))", len(warnings))))
	return nil
}

// withTimeout bounds one whole analysis.
func withTimeout(ctx context.Context, cfg config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.Timeout()*time.Duration(cfg.MaxToolRounds+2)*4)
}
