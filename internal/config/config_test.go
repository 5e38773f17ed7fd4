package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("does-not-exist.yaml", true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.Engine.TickSpec != "@every 30s" || cfg.Engine.StaleAfter != 2*time.Minute {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if cfg.Engine.TriggerThrottle != 15*time.Minute || cfg.Engine.OneShotTriggers {
		t.Fatalf("throttle=%v oneShot=%v", cfg.Engine.TriggerThrottle, cfg.Engine.OneShotTriggers)
	}
	if cfg.Cache.Driver != "memory" || cfg.Cache.PriceTTL != 15*time.Second {
		t.Fatalf("cache=%+v", cfg.Cache)
	}
	if cfg.Detectors.Drawdown.MinDrawdown != 0.03 || cfg.Detectors.Drawdown.Window != 12*time.Minute {
		t.Fatalf("drawdown=%+v", cfg.Detectors.Drawdown)
	}
	if len(cfg.Solana.RPCURLs) != 1 {
		t.Fatalf("rpc_urls=%v", cfg.Solana.RPCURLs)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IBRL_ENGINE_OWNER_CONCURRENCY", "3")
	t.Setenv("IBRL_ENGINE_STALE_AFTER", "90s")
	t.Setenv("IBRL_SOLANA_RPC_URLS", "https://a.example, https://b.example")
	t.Setenv("IBRL_CACHE_DRIVER", "redis")

	cfg, err := Load("does-not-exist.yaml", true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.Engine.OwnerConcurrency != 3 || cfg.Engine.StaleAfter != 90*time.Second {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if len(cfg.Solana.RPCURLs) != 2 || cfg.Solana.RPCURLs[1] != "https://b.example" {
		t.Fatalf("rpc_urls=%q", cfg.Solana.RPCURLs)
	}
	if cfg.Cache.Driver != "redis" {
		t.Fatalf("driver=%s want=redis", cfg.Cache.Driver)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("engine:\n  one_shot_triggers: true\n  trigger_throttle: 5m\ndetectors:\n  buffer:\n    enabled: false\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !cfg.Engine.OneShotTriggers || cfg.Engine.TriggerThrottle != 5*time.Minute {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if cfg.Detectors.Buffer.Enabled || !cfg.Detectors.Drawdown.Enabled {
		t.Fatalf("buffer=%v drawdown=%v", cfg.Detectors.Buffer.Enabled, cfg.Detectors.Drawdown.Enabled)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
