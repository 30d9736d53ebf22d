package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"

	MarketYahoo    = "yahoo"
	MarketLongport = "longport"

	AgentModeSingle    = "single"
	AgentModeIterative = "iterative"

	IndicatorModeLatest = "latest"
	IndicatorModeWindow = "window"
)

type Config struct {
	ProjectDir string `json:"project_dir" yaml:"project_dir"`
	ResultsDir string `json:"results_dir" yaml:"results_dir"`

	// HistoryPath is the SQLite run history. Recording is off until it is set.
	HistoryPath string `json:"history_path" yaml:"history_path"`

	// LLM
	LLMProvider    string `json:"llm_provider" yaml:"llm_provider"`
	OpenAIModel    string `json:"openai_model" yaml:"openai_model"`
	OpenAIBaseURL  string `json:"openai_base_url" yaml:"openai_base_url"`
	OpenAIAPIKey   string `json:"openai_api_key" yaml:"openai_api_key"`
	DeepSeekModel  string `json:"deepseek_model" yaml:"deepseek_model"`
	DeepSeekAPIKey string `json:"deepseek_api_key" yaml:"deepseek_api_key"`
	MaxTokens      int    `json:"max_tokens" yaml:"max_tokens"`

	// Agent
	AgentMode     string `json:"agent_mode" yaml:"agent_mode"`
	MaxToolRounds int    `json:"max_tool_rounds" yaml:"max_tool_rounds"`
	IndicatorMode string `json:"indicator_mode" yaml:"indicator_mode"`

	// ReportLanguage is the language the analyst report is written in.
	ReportLanguage string `json:"report_language" yaml:"report_language"`

	// Market data
	MarketDataProvider  string `json:"market_data_provider" yaml:"market_data_provider"`
	LongportAppKey      string `json:"longport_app_key" yaml:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret" yaml:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token" yaml:"longport_access_token"`

	// Daily bars are cached for PriceCacheTTLMinutes; 0 disables caching.
	// PriceCacheDir adds a CSV tier that survives restarts.
	PriceCacheTTLMinutes int    `json:"price_cache_ttl_minutes" yaml:"price_cache_ttl_minutes"`
	PriceCacheDir        string `json:"price_cache_dir" yaml:"price_cache_dir"`

	// Upstream endpoints, overridable for tests and mirrors
	YahooQueryURL   string `json:"yahoo_query_url" yaml:"yahoo_query_url"`
	YahooSiteURL    string `json:"yahoo_site_url" yaml:"yahoo_site_url"`
	GoogleSearchURL string `json:"google_search_url" yaml:"google_search_url"`
	TaiwanNewsURL   string `json:"tw_news_url" yaml:"tw_news_url"`
	HTTPTimeout     int    `json:"http_timeout_seconds" yaml:"http_timeout_seconds"`
	UserAgent       string `json:"user_agent" yaml:"user_agent"`

	// Dify quick query
	DifyBaseURL string `json:"dify_base_url" yaml:"dify_base_url"`
	DifyAPIKey  string `json:"dify_api_key" yaml:"dify_api_key"`
	DifyUser    string `json:"dify_user" yaml:"dify_user"`

	Debug bool `json:"debug" yaml:"debug"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled" yaml:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port" yaml:"eino_debug_port"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv loads .env (if present) and overlays environment variables.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()
	c.loadFromEnv()
}

// DefaultConfigWithRoot returns the built-in defaults without reading the environment.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		ProjectDir: root,
		ResultsDir: filepath.Join(root, "results"),

		LLMProvider:   ProviderOpenAI,
		OpenAIModel:   "gpt-4o",
		DeepSeekModel: "deepseek-chat",
		MaxTokens:     8192,

		AgentMode:     AgentModeSingle,
		MaxToolRounds: 5,
		IndicatorMode: IndicatorModeLatest,

		ReportLanguage: "English",

		MarketDataProvider:   MarketYahoo,
		PriceCacheTTLMinutes: 30,
		PriceCacheDir:        filepath.Join(root, "data", "cache"),

		YahooQueryURL:   "https://query2.finance.yahoo.com",
		YahooSiteURL:    "https://finance.yahoo.com",
		GoogleSearchURL: "https://www.google.com",
		TaiwanNewsURL:   "https://tw.news.yahoo.com",
		HTTPTimeout:     30,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",

		DifyUser: "stockpilot",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}
}

func (c *Config) loadFromEnv() {
	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setInt := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if v, err := strconv.Atoi(val); err == nil {
				*dst = v
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			if v, err := strconv.ParseBool(val); err == nil {
				*dst = v
			}
		}
	}

	setString("PROJECT_DIR", &c.ProjectDir)
	setString("RESULTS_DIR", &c.ResultsDir)
	setString("HISTORY_PATH", &c.HistoryPath)

	setString("LLM_PROVIDER", &c.LLMProvider)
	setString("OPENAI_MODEL", &c.OpenAIModel)
	setString("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	setString("OPENAI_API_KEY", &c.OpenAIAPIKey)
	setString("DEEPSEEK_MODEL", &c.DeepSeekModel)
	setString("DEEPSEEK_API_KEY", &c.DeepSeekAPIKey)
	setInt("LLM_MAX_TOKENS", &c.MaxTokens)

	setString("AGENT_MODE", &c.AgentMode)
	setInt("MAX_TOOL_ROUNDS", &c.MaxToolRounds)
	setString("INDICATOR_MODE", &c.IndicatorMode)
	setString("REPORT_LANGUAGE", &c.ReportLanguage)

	setString("MARKET_DATA_PROVIDER", &c.MarketDataProvider)
	setString("LONGPORT_APP_KEY", &c.LongportAppKey)
	setString("LONGPORT_APP_SECRET", &c.LongportAppSecret)
	setString("LONGPORT_ACCESS_TOKEN", &c.LongportAccessToken)
	setInt("PRICE_CACHE_TTL_MINUTES", &c.PriceCacheTTLMinutes)
	setString("PRICE_CACHE_DIR", &c.PriceCacheDir)

	setString("YAHOO_QUERY_URL", &c.YahooQueryURL)
	setString("YAHOO_SITE_URL", &c.YahooSiteURL)
	setString("GOOGLE_SEARCH_URL", &c.GoogleSearchURL)
	setString("TW_NEWS_URL", &c.TaiwanNewsURL)
	setInt("HTTP_TIMEOUT_SECONDS", &c.HTTPTimeout)
	setString("HTTP_USER_AGENT", &c.UserAgent)

	setString("DIFY_BASE_URL", &c.DifyBaseURL)
	setString("DIFY_API_KEY", &c.DifyAPIKey)
	setString("DIFY_USER", &c.DifyUser)

	setBool("STOCKPILOT_DEBUG", &c.Debug)
	setBool("EINO_DEBUG_ENABLED", &c.EinoDebugEnabled)
	setInt("EINO_DEBUG_PORT", &c.EinoDebugPort)
}

// Validate checks enumerations and limits. Missing credentials are not an
// error here; the model factory reports them when a model is actually built.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderDeepSeek:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLMProvider)
	}
	switch c.AgentMode {
	case AgentModeSingle, AgentModeIterative:
	default:
		return fmt.Errorf("unsupported agent mode %q", c.AgentMode)
	}
	switch c.IndicatorMode {
	case IndicatorModeLatest, IndicatorModeWindow:
	default:
		return fmt.Errorf("unsupported indicator mode %q", c.IndicatorMode)
	}
	switch c.MarketDataProvider {
	case MarketYahoo, MarketLongport:
	default:
		return fmt.Errorf("unsupported market data provider %q", c.MarketDataProvider)
	}
	if c.MaxToolRounds < 1 || c.MaxToolRounds > 20 {
		return fmt.Errorf("max tool rounds must be between 1 and 20")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.PriceCacheTTLMinutes < 0 {
		return fmt.Errorf("price cache ttl must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	return nil
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

func (c Config) PriceCacheTTL() time.Duration {
	return time.Duration(c.PriceCacheTTLMinutes) * time.Minute
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
