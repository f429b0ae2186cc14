package session

import (
	"os"
	"strings"
	"time"
)

const (
	defaultIssuer         = "ripple"
	defaultAccessTokenTTL = 15 * time.Minute
	defaultClockSkew      = 30 * time.Second
)

// Config defines runtime configuration for the session authenticator.
type Config struct {
	// Issuer is embedded into tokens on Issue and enforced on Verify.
	Issuer string

	// AccessTokenTTL applies to tokens minted via Issue.
	AccessTokenTTL time.Duration

	// ClockSkew is the tolerance applied during verification.
	ClockSkew time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for
	// PASETO v4.public. Empty means the caller must provision one
	// (the app generates an ephemeral dev key when unset).
	PasetoV4SecretKeyHex string
}

// DefaultConfig returns a Config with safe defaults and no key material.
func DefaultConfig() Config {
	return Config{
		Issuer:         defaultIssuer,
		AccessTokenTTL: defaultAccessTokenTTL,
		ClockSkew:      defaultClockSkew,
	}
}

// LoadConfigFromEnv loads Config from environment variables with defaults.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("RIPPLE_TOKEN_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("RIPPLE_ACCESS_TOKEN_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AccessTokenTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("RIPPLE_CLOCK_SKEW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.ClockSkew = d
		}
	}
	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("RIPPLE_TOKEN_SECRET_KEY"))

	return cfg
}
