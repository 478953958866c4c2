// Package config loads application configuration from file and environment
// and owns global logger setup.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Sheets    SheetsConfig    `yaml:"sheets" mapstructure:"sheets"`
	Fields    FieldsConfig    `yaml:"fields" mapstructure:"fields"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the tabular store backend.
type StoreConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	CaseInsensitive bool   `yaml:"case_insensitive" mapstructure:"case_insensitive"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SheetsConfig holds Google Sheets mirror settings.
type SheetsConfig struct {
	Token           string  `yaml:"token" mapstructure:"token"`
	SpreadsheetID   string  `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	SheetName       string  `yaml:"sheet_name" mapstructure:"sheet_name"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
}

// FieldsConfig points at the field dictionary and overrides.
type FieldsConfig struct {
	File          string `yaml:"file" mapstructure:"file"`
	IdentityField string `yaml:"identity_field" mapstructure:"identity_field"`
}

// SessionConfig configures workflow session expiry.
type SessionConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// BatchConfig configures batch ingestion.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
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
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "candidates.csv")
	v.SetDefault("store.case_insensitive", false)
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "intake.db")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("sheets.sheet_name", "シート1")
	v.SetDefault("sheets.base_url", "https://sheets.googleapis.com/v4")
	v.SetDefault("sheets.rate_limit_per_sec", 1)
	v.SetDefault("fields.identity_field", "氏名")
	v.SetDefault("session.ttl_minutes", 30)
	v.SetDefault("batch.max_concurrent", 3)
	v.SetDefault("server.port", 8080)
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

// DefaultInitialKeys is the minimal column set imposed on an empty store.
var DefaultInitialKeys = []string{"氏名", "会社名", "希望業界", "希望企業", "転職理由", "アピールポイント"}

// FieldDictionary is the optional fields.yaml file: the initial column set
// and the identity field used for duplicate detection.
type FieldDictionary struct {
	InitialKeys   []string `yaml:"initial_keys"`
	IdentityField string   `yaml:"identity_field"`
}

// LoadFields reads a field dictionary. An empty path or missing file yields
// the built-in defaults.
func LoadFields(path string) (*FieldDictionary, error) {
	dict := &FieldDictionary{
		InitialKeys:   append([]string(nil), DefaultInitialKeys...),
		IdentityField: "氏名",
	}
	if path == "" {
		return dict, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dict, nil
		}
		return nil, eris.Wrapf(err, "config: read fields file %s", path)
	}

	var file FieldDictionary
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "config: parse fields file %s", path)
	}
	if len(file.InitialKeys) > 0 {
		dict.InitialKeys = file.InitialKeys
	}
	if file.IdentityField != "" {
		dict.IdentityField = file.IdentityField
	}
	return dict, nil
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
