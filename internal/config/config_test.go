package config_test

import (
	"testing"
	"time"

	"github.com/kdapp-net/auth-episode/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "testnet-10" {
		t.Errorf("Network = %q, want testnet-10", cfg.Network)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.PruneAfter != 24*time.Hour {
		t.Errorf("PruneAfter = %v, want 24h", cfg.PruneAfter)
	}
	if !cfg.FallbackEnabled {
		t.Error("FallbackEnabled = false, want true by default")
	}
	if cfg.RollbackCap != 1024 {
		t.Errorf("RollbackCap = %d, want 1024", cfg.RollbackCap)
	}
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv("AUTH_EPISODE_NETWORK", "mainnet")
	t.Setenv("AUTH_EPISODE_HTTP_PORT", "9090")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "mainnet" {
		t.Errorf("Network = %q, want mainnet", cfg.Network)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
}
