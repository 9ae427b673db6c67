// Package config loads the process-wide configuration shared by every
// cmd/ binary: ledger network selection, the coordination HTTP surface,
// wallet paths, and engine tuning knobs. Fields follow the same
// env/env-default struct-tag convention the reference stack's database
// configuration used, parsed with github.com/ilyakaznacheev/cleanenv so a
// field's default and its environment override live in one place.
package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is read once at process startup by every cmd/ binary.
type Config struct {
	// Network selects the Kaspa network the ledger RPC connects to.
	// "testnet-10" matches the network spec.md's environment section
	// names as the default.
	Network string `env:"AUTH_EPISODE_NETWORK" env-default:"testnet-10"`
	// RPCURL overrides the default RPC endpoint for Network when set.
	RPCURL string `env:"AUTH_EPISODE_RPC_URL" env-default:""`

	// LogLevel is the RUST_LOG-equivalent verbosity variable named in
	// spec.md §6; internal/telemetry reads this same variable directly,
	// so this field exists for callers that want to print the effective
	// level rather than configure logging themselves.
	LogLevel string `env:"AUTH_EPISODE_LOG_LEVEL" env-default:"info"`

	// HTTPPort is the coordination layer's listen port for http-peer.
	HTTPPort int `env:"AUTH_EPISODE_HTTP_PORT" env-default:"8080"`

	// WalletPath is the fixed per-role wallet file path. spec.md's
	// external interfaces name the convention (organizer-*.key,
	// participant-*.key); the concrete path is left to the CLI flag or
	// this default.
	WalletPath string `env:"AUTH_EPISODE_WALLET_PATH" env-default:"auth-episode.key"`

	// RollbackCap overrides episode.DefaultRollbackCap when positive.
	RollbackCap int `env:"AUTH_EPISODE_ROLLBACK_CAP" env-default:"1024"`

	// PruneAfter is how long a Revoked episode is retained before the
	// engine's housekeeping pass may evict it; spec.md §9 Open Question
	// (b)'s resolved default is 24 hours.
	PruneAfter time.Duration `env:"AUTH_EPISODE_PRUNE_AFTER" env-default:"24h"`

	// FallbackEnabled gates the coordination layer's read-only challenge
	// fallback (spec.md §9 Open Question (c)); default enabled.
	FallbackEnabled bool `env:"AUTH_EPISODE_FALLBACK_ENABLED" env-default:"true"`

	// ConfirmTimeout bounds how long an HTTP handler waits for the
	// engine to confirm a submitted transaction before returning a
	// Timeout error.
	ConfirmTimeout time.Duration `env:"AUTH_EPISODE_CONFIRM_TIMEOUT" env-default:"20s"`

	// ListenerMaxBackoff caps the listener's reconnect backoff delay.
	ListenerMaxBackoff time.Duration `env:"AUTH_EPISODE_LISTENER_MAX_BACKOFF" env-default:"2m"`

	// CheckpointPath is the sqlite file the listener persists its
	// resume position to.
	CheckpointPath string `env:"AUTH_EPISODE_CHECKPOINT_PATH" env-default:"auth-episode-checkpoint.db"`
}

// Load reads Config from the process environment, applying defaults for
// anything unset. It never reads a file; every field is env-driven so a
// container deployment needs no mounted config.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
