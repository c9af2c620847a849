// Package config provides Viper-based configuration management for causalgraph
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/CanopyHQ/causalgraph/internal/profile"
	"github.com/CanopyHQ/causalgraph/internal/rerank"
	"github.com/CanopyHQ/causalgraph/internal/tfidf"
)

// Config represents the complete causalgraph configuration
type Config struct {
	Profile       string            `mapstructure:"profile"`
	MinConfidence float64           `mapstructure:"min_confidence"`
	Workers       int               `mapstructure:"workers"`
	Output        string            `mapstructure:"output"`
	Rerank        RerankConfig      `mapstructure:"rerank"`
	Vocab         profile.Overrides `mapstructure:"vocab"`
	Logging       LoggingConfig     `mapstructure:"logging"`
	Display       DisplayConfig     `mapstructure:"display"`
	Cache         CacheConfig       `mapstructure:"cache"`
}

// RerankConfig selects and tunes the reranking oracle
type RerankConfig struct {
	Mode          string        `mapstructure:"mode"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Concurrency   int           `mapstructure:"concurrency"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	// Static is the fixed probability used by the "static" mode.
	Static float64           `mapstructure:"static"`
	HTTP   HTTPConfig        `mapstructure:"http"`
	ONNX   rerank.ONNXConfig `mapstructure:"onnx"`
}

// HTTPConfig points at a zero-shot classification endpoint
type HTTPConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// DisplayConfig contains terminal output settings
type DisplayConfig struct {
	Colors bool `mapstructure:"colors"`
}

// CacheConfig sizes in-memory caches
type CacheConfig struct {
	Vectors int `mapstructure:"vectors"`
}

// Load reads configuration from file and environment variables. Values set
// on v (flag bindings) take precedence over both.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".causalgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/causalgraph")
	}

	v.SetEnvPrefix("CAUSALGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("binding environment: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", profile.RuleBasedName)
	v.SetDefault("min_confidence", profile.DefaultMinConfidence)
	v.SetDefault("workers", 0)
	v.SetDefault("output", "relationships.json")

	v.SetDefault("rerank.mode", "none")
	v.SetDefault("rerank.timeout", rerank.DefaultTimeout)
	v.SetDefault("rerank.concurrency", rerank.DefaultConcurrency)
	v.SetDefault("rerank.rate_per_second", 0)
	v.SetDefault("rerank.static", 0.5)

	onnx := rerank.DefaultONNXConfig()
	v.SetDefault("rerank.onnx.max_seq_len", onnx.MaxSeqLen)
	v.SetDefault("rerank.onnx.entailment_index", onnx.EntailmentIndex)
	v.SetDefault("rerank.onnx.classes", onnx.Classes)
	v.SetDefault("rerank.onnx.bos_id", onnx.BOSID)
	v.SetDefault("rerank.onnx.eos_id", onnx.EOSID)
	v.SetDefault("rerank.onnx.hypothesis", onnx.Hypothesis)

	v.SetDefault("logging.level", "info")
	v.SetDefault("display.colors", true)
	v.SetDefault("cache.vectors", tfidf.DefaultCacheSize)
}

// envOnlyKeys have no default, so AutomaticEnv alone would never surface
// them to Unmarshal.
var envOnlyKeys = []string{
	"rerank.http.url",
	"rerank.http.api_key",
	"rerank.onnx.library",
	"rerank.onnx.model",
	"rerank.onnx.tokenizer",
	"vocab.gazetteer",
	"vocab.stop_words",
	"vocab.cause_words",
	"vocab.effect_words",
}

func bindEnv(v *viper.Viper) error {
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if _, err := profile.Lookup(cfg.Profile); err != nil {
		return err
	}

	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %.3f must be between 0 and 1", cfg.MinConfidence)
	}

	if cfg.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", cfg.Workers)
	}

	if strings.TrimSpace(cfg.Output) == "" {
		return fmt.Errorf("output path must not be empty")
	}

	mode, err := rerank.ParseMode(cfg.Rerank.Mode)
	if err != nil {
		return err
	}
	cfg.Rerank.Mode = mode

	switch mode {
	case "http":
		if cfg.Rerank.HTTP.URL == "" {
			return fmt.Errorf("rerank.http.url is required for http mode")
		}
	case "onnx":
		if cfg.Rerank.ONNX.Model == "" {
			return fmt.Errorf("rerank.onnx.model is required for onnx mode")
		}
	case "static":
		if cfg.Rerank.Static < 0 || cfg.Rerank.Static > 1 {
			return fmt.Errorf("rerank.static %.3f must be between 0 and 1", cfg.Rerank.Static)
		}
	}

	if cfg.Rerank.Concurrency < 0 {
		return fmt.Errorf("rerank.concurrency must not be negative: %d", cfg.Rerank.Concurrency)
	}
	if cfg.Rerank.RatePerSecond < 0 {
		return fmt.Errorf("rerank.rate_per_second must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}

	return nil
}

// ResolveProfile returns the configured profile with vocabulary overrides
// and the confidence threshold applied.
func (c *Config) ResolveProfile() (profile.Profile, error) {
	p, err := profile.Lookup(c.Profile)
	if err != nil {
		return profile.Profile{}, err
	}
	p = p.WithOverrides(c.Vocab)
	p.MinConfidence = c.MinConfidence
	if err := p.Validate(); err != nil {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return p, nil
}
