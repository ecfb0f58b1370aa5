package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/oriongate/dicomdispatch/pkg/logger"
)

// AppConfig holds this binary's own process settings — where the archive
// lives, how long to wait for it, where the admin server listens, how to
// log — as distinct from the domain MainConfig/ModuleConfig above, which
// describe the dispatch behavior itself. Loaded with spf13/viper from a
// YAML file plus DICOMDISPATCH_-prefixed environment variables, the way
// the teacher's internal/config/config.go loads its own AppConfig
// section, down to the mapstructure tags and required-field validation.
type AppConfig struct {
	MainConfigPath string        `mapstructure:"main_config_path" validate:"required"`
	Archive        ArchiveConfig `mapstructure:"archive"`
	Admin          AdminConfig   `mapstructure:"admin"`
	Log            logger.Config `mapstructure:"log"`
}

type ArchiveConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimitPerS  float64       `mapstructure:"rate_limit_per_second"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type AdminConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// DefaultAppConfig mirrors the teacher's pattern of seeding viper with
// defaults before binding the file/env layers on top.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Archive: ArchiveConfig{
			Timeout:        10 * time.Second,
			RateLimitPerS:  20,
			RateLimitBurst: 5,
		},
		Admin: AdminConfig{
			Addr:    ":8089",
			Enabled: true,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadAppConfig reads the process configuration file (YAML) at path,
// overlaid with DICOMDISPATCH_-prefixed environment variables, into
// AppConfig, and validates the required fields. Only top-level keys such
// as main_config_path can come from the environment: no env key replacer
// is set, so a nested key like archive.base_url maps to a variable name
// containing a dot and is in practice read from the file only.
func LoadAppConfig(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DICOMDISPATCH")
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		return AppConfig{}, fmt.Errorf("reading app config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decoding app config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("validating app config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg AppConfig) {
	v.SetDefault("archive.timeout", cfg.Archive.Timeout)
	v.SetDefault("archive.rate_limit_per_second", cfg.Archive.RateLimitPerS)
	v.SetDefault("archive.rate_limit_burst", cfg.Archive.RateLimitBurst)
	v.SetDefault("admin.addr", cfg.Admin.Addr)
	v.SetDefault("admin.enabled", cfg.Admin.Enabled)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)
}
