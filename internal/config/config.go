package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	LLMAPIURL  string        `mapstructure:"LLM_API_URL"`
	LLMAPIKey  string        `mapstructure:"LLM_API_KEY"`
	LLMModel   string        `mapstructure:"LLM_MODEL"`
	LLMTimeout time.Duration `mapstructure:"LLM_TIMEOUT"`

	STTAPIURL  string        `mapstructure:"STT_API_URL"`
	STTTimeout time.Duration `mapstructure:"STT_TIMEOUT"`

	// AnalysisTriggerThreshold is the transcript growth (in characters) that
	// fires a new incremental cascade run.
	AnalysisTriggerThreshold int `mapstructure:"ANALYSIS_TRIGGER_THRESHOLD"`

	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	// ReportFontPaths is a comma separated list of TTF candidates tried in
	// order when rendering the PDF medical record.
	ReportFontPaths []string `mapstructure:"REPORT_FONT_PATHS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LLM_API_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TIMEOUT", "45s")
	v.SetDefault("STT_API_URL", "http://stt:8000/transcribe")
	v.SetDefault("STT_TIMEOUT", "60s")
	v.SetDefault("ANALYSIS_TRIGGER_THRESHOLD", 200)
	v.SetDefault("MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("REPORT_FONT_PATHS", "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf,/usr/share/fonts/dejavu/DejaVuSans.ttf,/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf")

	v.BindEnv("PORT")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("REDIS_URL")
	v.BindEnv("LLM_API_URL")
	v.BindEnv("LLM_API_KEY")
	v.BindEnv("LLM_MODEL")
	v.BindEnv("LLM_TIMEOUT")
	v.BindEnv("STT_API_URL")
	v.BindEnv("STT_TIMEOUT")
	v.BindEnv("ANALYSIS_TRIGGER_THRESHOLD")
	v.BindEnv("MIGRATIONS_PATH")
	v.BindEnv("REPORT_FONT_PATHS")

	// A .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ReportFontPaths == nil {
		paths := v.GetString("REPORT_FONT_PATHS")
		if paths != "" {
			cfg.ReportFontPaths = strings.Split(paths, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AnalysisTriggerThreshold <= 0 {
		return nil, fmt.Errorf("ANALYSIS_TRIGGER_THRESHOLD must be positive, got %d", cfg.AnalysisTriggerThreshold)
	}

	return cfg, nil
}
