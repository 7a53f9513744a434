package tether

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix for environment fallbacks: TETHER_HOST, TETHER_CREDENTIAL, etc.
const envPrefix = "tether"

// Config holds the configuration for a Manager. Zero fields fall back to
// TETHER_* environment variables, then to the listed defaults.
type Config struct {
	// Host is the default connection target used when Connect is called
	// with an empty host. Fallback: TETHER_HOST.
	Host string `envconfig:"HOST"`

	// Credential is the default credential (pairing or access token) used
	// when Connect is called with an empty credential.
	// Fallback: TETHER_CREDENTIAL.
	Credential string `envconfig:"CREDENTIAL"`

	// MaxAttempts is the number of connection attempts per retry cycle.
	MaxAttempts int `envconfig:"MAX_ATTEMPTS" default:"3"`

	// AttemptDelay is the fixed wait between attempts within a cycle.
	AttemptDelay time.Duration `envconfig:"ATTEMPT_DELAY" default:"2s"`

	// Cooldown is the fixed wait after a cycle exhausts its attempts,
	// before the next cycle starts.
	Cooldown time.Duration `envconfig:"COOLDOWN" default:"15s"`
}

// resolveConfig fills zero fields from the environment (with defaults) and
// validates the result.
func resolveConfig(cfg Config) (Config, error) {
	var env Config
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}

	if cfg.Host == "" {
		cfg.Host = env.Host
	}
	if cfg.Credential == "" {
		cfg.Credential = env.Credential
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = env.MaxAttempts
	}
	if cfg.AttemptDelay == 0 {
		cfg.AttemptDelay = env.AttemptDelay
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = env.Cooldown
	}

	if cfg.MaxAttempts < 1 {
		return cfg, fmt.Errorf("MaxAttempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.AttemptDelay < 0 {
		return cfg, fmt.Errorf("AttemptDelay must not be negative, got %v", cfg.AttemptDelay)
	}
	if cfg.Cooldown < 0 {
		return cfg, fmt.Errorf("Cooldown must not be negative, got %v", cfg.Cooldown)
	}
	return cfg, nil
}
