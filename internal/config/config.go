// Package config loads and validates GitNexus's runtime configuration from
// environment variables and CLI flags, once, at process start.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Env var names, part of the external contract (spec §6).
const (
	EnvToken             = "GITNEXUS_TOKEN"
	EnvAgent             = "GITNEXUS_AGENT"
	EnvTimeoutQuick      = "GITNEXUS_TIMEOUT_QUICK"
	EnvTimeoutHeavy      = "GITNEXUS_TIMEOUT_HEAVY"
	EnvDebug             = "GITNEXUS_DEBUG"
	EnvLogLevel          = "LOG_LEVEL"
	EnvMetricsPrometheus = "GITNEXUS_METRICS_PROMETHEUS"
	EnvMetricsAddr       = "GITNEXUS_METRICS_ADDR"
)

const (
	DefaultPort          = 54319
	DefaultQuickTimeout  = 60 * time.Second
	DefaultHeavyTimeout  = 120 * time.Second
	DefaultMetricsAddr   = ":9090"
	tokenRandomBytes     = 24
)

// Config is the immutable, validated snapshot of everything the daemon
// needs at startup. It is built once by Load and never mutated.
type Config struct {
	Port int

	Token     string
	AgentName string

	QuickTimeout time.Duration
	HeavyTimeout time.Duration

	Debug    bool
	LogLevel slog.Level

	MetricsEnabled bool
	MetricsAddr    string

	// TokenGenerated records whether Token was synthesized locally (true)
	// or supplied via GITNEXUS_TOKEN (false); Hub startup logs it only
	// when synthesized, per spec §4.F.
	TokenGenerated bool
}

// Load builds a Config from the process environment and the parsed --port
// flag. It never reads flags itself; callers parse flags with pflag and
// pass the result in, the way vjache-cie's cmd/cie/config.go separates
// flag parsing (cmd package) from config construction and validation.
func Load(port int, agentOverride string) (*Config, error) {
	cfg := &Config{
		Port: port,
	}

	token, generated, err := loadOrGenerateToken()
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	cfg.Token = token
	cfg.TokenGenerated = generated

	cfg.AgentName = resolveAgentName(agentOverride)

	cfg.QuickTimeout, err = durationFromEnvMillis(EnvTimeoutQuick, DefaultQuickTimeout)
	if err != nil {
		return nil, err
	}
	cfg.HeavyTimeout, err = durationFromEnvMillis(EnvTimeoutHeavy, DefaultHeavyTimeout)
	if err != nil {
		return nil, err
	}

	cfg.Debug = os.Getenv(EnvDebug) == "true"

	cfg.LogLevel, err = parseLogLevel(os.Getenv(EnvLogLevel))
	if err != nil {
		return nil, err
	}

	cfg.MetricsEnabled = os.Getenv(EnvMetricsPrometheus) == "true"
	cfg.MetricsAddr = os.Getenv(EnvMetricsAddr)
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = DefaultMetricsAddr
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants not already enforced by the
// individual field parsers above.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be in [1, 65535]", cfg.Port)
	}
	if cfg.QuickTimeout <= 0 {
		return fmt.Errorf("invalid quick timeout %s: must be positive", cfg.QuickTimeout)
	}
	if cfg.HeavyTimeout <= 0 {
		return fmt.Errorf("invalid heavy timeout %s: must be positive", cfg.HeavyTimeout)
	}
	if cfg.Token == "" {
		return errors.New("token must not be empty")
	}
	return nil
}

func loadOrGenerateToken() (string, bool, error) {
	if t := os.Getenv(EnvToken); t != "" {
		return t, false, nil
	}
	buf := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), true, nil
}

// resolveAgentName reads GITNEXUS_AGENT, falls back to override (populated
// solely from the --agent flag today), then to "unknown". Spec §4.I also
// names a third fallback tier, inspecting well-known indicators of the
// parent process, which this build does not implement; see DESIGN.md's
// open questions for that gap.
func resolveAgentName(override string) string {
	if v := os.Getenv(EnvAgent); v != "" {
		return v
	}
	if override != "" {
		return override
	}
	return "unknown"
}

func durationFromEnvMillis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseLogLevel(v string) (slog.Level, error) {
	switch v {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s %q: must be one of debug, info, warn, error", EnvLogLevel, v)
	}
}
