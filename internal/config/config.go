package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Pricing  PricingConfig  `yaml:"pricing" mapstructure:"pricing"`
	Template TemplateConfig `yaml:"template" mapstructure:"template"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	AnthropicKey   string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string  `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	OpenAIKey      string  `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIModel    string  `yaml:"openai_model" mapstructure:"openai_model"`
	GeminiKey      string  `yaml:"gemini_key" mapstructure:"gemini_key"`
	GeminiModel    string  `yaml:"gemini_model" mapstructure:"gemini_model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerMinute  float64 `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	NormalizePass  bool    `yaml:"normalize_pass" mapstructure:"normalize_pass"`
}

// Credentials returns the API key and model of the selected provider.
func (c LLMConfig) Credentials() (key, model string) {
	switch c.Provider {
	case "openai":
		return c.OpenAIKey, c.OpenAIModel
	case "gemini":
		return c.GeminiKey, c.GeminiModel
	default:
		return c.AnthropicKey, c.AnthropicModel
	}
}

// PricingConfig holds the estimate arithmetic constants.
type PricingConfig struct {
	RushK             float64 `yaml:"rush_k" mapstructure:"rush_k"`
	ManagementCapRate float64 `yaml:"mgmt_fee_cap_rate" mapstructure:"mgmt_fee_cap_rate"`
	TaxRate           float64 `yaml:"tax_rate" mapstructure:"tax_rate"`
	BufferDays        int     `yaml:"buffer_days" mapstructure:"buffer_days"`
	BudgetScaleLow    float64 `yaml:"budget_scale_low" mapstructure:"budget_scale_low"`
	BudgetScaleHigh   float64 `yaml:"budget_scale_high" mapstructure:"budget_scale_high"`
	BudgetRounding    int64   `yaml:"budget_rounding" mapstructure:"budget_rounding"`
	FitBudget         bool    `yaml:"fit_budget" mapstructure:"fit_budget"`
}

// TemplateConfig describes the company quote workbook layout.
type TemplateConfig struct {
	Token              string `yaml:"token" mapstructure:"token"`
	TaskCol            string `yaml:"task_col" mapstructure:"task_col"`
	QtyCol             string `yaml:"qty_col" mapstructure:"qty_col"`
	UnitCol            string `yaml:"unit_col" mapstructure:"unit_col"`
	PriceCol           string `yaml:"price_col" mapstructure:"price_col"`
	AmountCol          string `yaml:"amount_col" mapstructure:"amount_col"`
	DefaultStartRow    int    `yaml:"default_start_row" mapstructure:"default_start_row"`
	DefaultSubtotalRow int    `yaml:"default_subtotal_row" mapstructure:"default_subtotal_row"`
	Growable           bool   `yaml:"growable" mapstructure:"growable"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BatchConfig configures batch estimation.
type BatchConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ESTIMATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.anthropic_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.openai_model", "gpt-4.1")
	v.SetDefault("llm.gemini_model", "gemini-2.5-pro")
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.timeout_secs", 60)
	v.SetDefault("llm.rate_per_minute", 30)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.normalize_pass", true)
	v.SetDefault("pricing.rush_k", 0.75)
	v.SetDefault("pricing.mgmt_fee_cap_rate", 0.15)
	v.SetDefault("pricing.tax_rate", 0.10)
	v.SetDefault("pricing.buffer_days", 5)
	v.SetDefault("pricing.budget_scale_low", 0.6)
	v.SetDefault("pricing.budget_scale_high", 5.0)
	v.SetDefault("pricing.budget_rounding", 1000)
	v.SetDefault("pricing.fit_budget", false)
	v.SetDefault("template.token", "{{ITEMS_START}}")
	v.SetDefault("template.task_col", "B")
	v.SetDefault("template.qty_col", "O")
	v.SetDefault("template.unit_col", "Q")
	v.SetDefault("template.price_col", "S")
	v.SetDefault("template.amount_col", "W")
	v.SetDefault("template.default_start_row", 19)
	v.SetDefault("template.default_subtotal_row", 72)
	v.SetDefault("template.growable", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "estimator.db")
	v.SetDefault("batch.max_concurrent_jobs", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given mode are present
// and within range. Modes: "estimate", "serve", "template".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "estimate", "serve":
		errs = append(errs, c.validateLLM()...)
		errs = append(errs, c.validatePricing()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "template":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateTemplate()...)

	if c.Batch.MaxConcurrentJobs < 1 || c.Batch.MaxConcurrentJobs > 32 {
		errs = append(errs, "batch.max_concurrent_jobs must be between 1 and 32")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateLLM() []string {
	var errs []string
	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			errs = append(errs, "llm.anthropic_key is required")
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			errs = append(errs, "llm.openai_key is required")
		}
	case "gemini":
		if c.LLM.GeminiKey == "" {
			errs = append(errs, "llm.gemini_key is required")
		}
	default:
		errs = append(errs, "llm.provider must be one of anthropic, openai, gemini")
	}
	return errs
}

func (c *Config) validatePricing() []string {
	var errs []string
	p := c.Pricing
	if p.RushK < 0 {
		errs = append(errs, "pricing.rush_k must be >= 0")
	}
	if p.ManagementCapRate < 0 || p.ManagementCapRate > 1 {
		errs = append(errs, "pricing.mgmt_fee_cap_rate must be between 0 and 1")
	}
	if p.TaxRate < 0 || p.TaxRate > 1 {
		errs = append(errs, "pricing.tax_rate must be between 0 and 1")
	}
	if p.BudgetScaleLow <= 0 || p.BudgetScaleHigh < p.BudgetScaleLow {
		errs = append(errs, "pricing.budget_scale_low must be > 0 and <= budget_scale_high")
	}
	return errs
}

func (c *Config) validateTemplate() []string {
	var errs []string
	t := c.Template
	if t.Token == "" {
		errs = append(errs, "template.token is required")
	}
	cols := [][2]string{
		{"task_col", t.TaskCol}, {"qty_col", t.QtyCol}, {"unit_col", t.UnitCol},
		{"price_col", t.PriceCol}, {"amount_col", t.AmountCol},
	}
	for _, col := range cols {
		if col[1] == "" {
			errs = append(errs, "template."+col[0]+" is required")
		}
	}
	if t.DefaultSubtotalRow <= t.DefaultStartRow {
		errs = append(errs, "template.default_subtotal_row must be below default_start_row")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
