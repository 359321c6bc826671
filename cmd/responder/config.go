package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// config is the responder's runtime configuration.
type config struct {
	PublicAddr      string
	AdminAddr       string
	DefaultTTL      time.Duration
	MaxTTL          time.Duration
	MaxLive         int
	MaxPathLength   int
	ReaperInterval  time.Duration
	RateLimitRPS    int
	AdminJWTSecret  string
	AdminCORS       []string
	ShutdownTimeout time.Duration
}

// loadConfig reads responder.yaml from ./configs or the working directory,
// with RESPONDER_* environment overrides (e.g. RESPONDER_CHALLENGE_MAX_LIVE).
func loadConfig(v *viper.Viper) (*config, error) {
	v.SetConfigName("responder")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath(".")
	v.SetEnvPrefix("responder")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("public.addr", ":80")
	v.SetDefault("public.rate_limit_rps", 50)
	v.SetDefault("admin.addr", "127.0.0.1:8081")
	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.cors_origins", []string{})
	v.SetDefault("challenge.default_ttl", "5m")
	v.SetDefault("challenge.max_ttl", "1h")
	v.SetDefault("challenge.max_live", 1000)
	v.SetDefault("challenge.max_path_length", 128)
	v.SetDefault("reaper.interval", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	if err := v.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &config{
		PublicAddr:      v.GetString("public.addr"),
		AdminAddr:       v.GetString("admin.addr"),
		DefaultTTL:      v.GetDuration("challenge.default_ttl"),
		MaxTTL:          v.GetDuration("challenge.max_ttl"),
		MaxLive:         v.GetInt("challenge.max_live"),
		MaxPathLength:   v.GetInt("challenge.max_path_length"),
		ReaperInterval:  v.GetDuration("reaper.interval"),
		RateLimitRPS:    v.GetInt("public.rate_limit_rps"),
		AdminJWTSecret:  v.GetString("admin.jwt_secret"),
		AdminCORS:       v.GetStringSlice("admin.cors_origins"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
	}
	if cfg.DefaultTTL <= 0 || cfg.MaxTTL <= 0 {
		return nil, errors.New("challenge TTLs must be positive")
	}
	if cfg.DefaultTTL > cfg.MaxTTL {
		return nil, fmt.Errorf("challenge.default_ttl %s exceeds challenge.max_ttl %s", cfg.DefaultTTL, cfg.MaxTTL)
	}
	if cfg.ReaperInterval <= 0 {
		return nil, errors.New("reaper.interval must be positive")
	}
	return cfg, nil
}
