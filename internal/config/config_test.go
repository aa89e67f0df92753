package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CHAINAGENT_CHAIN", "CHAINAGENT_RPC_URL", "CHAINAGENT_OUTPUT",
		"CHAINAGENT_LOG_LEVEL", "CHAINAGENT_LOG_FORMAT",
		"CHAINAGENT_CONFIRM_TIMEOUT", "CHAINAGENT_POLL_INTERVAL",
		"CHAINAGENT_MIN_HEALTH_FACTOR", "CHAINAGENT_SLIPPAGE_BPS",
		"CHAINAGENT_GAS_MULTIPLIER", "CHAINAGENT_MAX_FEE_GWEI",
		"CHAINAGENT_MAX_PRIORITY_FEE_GWEI", "CHAINAGENT_STORE_PATH",
		"CHAINAGENT_STORE_LOCK_PATH", "CHAINAGENT_LISTEN_ADDR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Chain != "mantle" {
		t.Fatalf("default chain = %q, want mantle", settings.Chain)
	}
	if settings.ConfirmTimeout != 2*time.Minute || settings.PollInterval != 2*time.Second {
		t.Fatalf("default confirm settings: %+v", settings)
	}
	if settings.MinHealthFactor != 1.05 || settings.SlippageBps != 50 || settings.GasMultiplier != 1.2 {
		t.Fatalf("default policy settings: %+v", settings)
	}
}

func TestLoadFileThenEnvThenFlags(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := `
chain: ethereum
rpc_url: https://file.example/rpc
confirm:
  timeout: 3m
policy:
  min_health_factor: 1.2
  slippage_bps: 25
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CHAINAGENT_RPC_URL", "https://env.example/rpc")

	settings, err := Load(GlobalFlags{
		ConfigPath: cfgPath,
		Chain:      "mantle", // flag beats file
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Chain != "mantle" {
		t.Fatalf("flag should win: chain = %q", settings.Chain)
	}
	if settings.RPCURL != "https://env.example/rpc" {
		t.Fatalf("env should beat file: rpc = %q", settings.RPCURL)
	}
	if settings.ConfirmTimeout != 3*time.Minute {
		t.Fatalf("file confirm timeout not applied: %v", settings.ConfirmTimeout)
	}
	if settings.MinHealthFactor != 1.2 || settings.SlippageBps != 25 {
		t.Fatalf("file policy not applied: %+v", settings)
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	clearEnv(t)
	if _, err := Load(GlobalFlags{
		ConfigPath:     filepath.Join(t.TempDir(), "missing.yaml"),
		ConfirmTimeout: "soon",
	}); err == nil {
		t.Fatal("expected error for invalid duration flag")
	}
}

func TestSlippageBoundsEnforced(t *testing.T) {
	clearEnv(t)
	settings, err := Load(GlobalFlags{
		ConfigPath:  filepath.Join(t.TempDir(), "missing.yaml"),
		SlippageBps: 20_000, // over 100%, fall back to default
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.SlippageBps != 50 {
		t.Fatalf("slippage = %d, want clamped default 50", settings.SlippageBps)
	}
}
