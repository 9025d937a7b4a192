package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateFile != "rollout-state.json" {
		t.Errorf("unexpected default state file %q", cfg.StateFile)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("default concurrency = %d, want 1", cfg.Concurrency)
	}
	if cfg.SSH.Port != 22 {
		t.Errorf("default ssh port = %d", cfg.SSH.Port)
	}
}

func TestLoadExplicitMissingIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `scripts_dir: /opt/rollout/scripts
concurrency: 3
ssh:
  port: 2222
  timeout_seconds: 120
hosts:
  - name: rpi-1
    platform: raspberrypi
    addr: 100.64.0.9
    location: Berlin
    user: pi
    password: pw
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScriptsDir != "/opt/rollout/scripts" || cfg.Concurrency != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.SSH.Port != 2222 || cfg.SSH.TimeoutSeconds != 120 {
		t.Errorf("ssh section not parsed: %+v", cfg.SSH)
	}
	if len(cfg.Hosts) != 1 || cfg.Hosts[0].Name != "rpi-1" {
		t.Errorf("hosts not parsed: %+v", cfg.Hosts)
	}
	// Unset fields keep their defaults.
	if cfg.LogDir != "logs" {
		t.Errorf("log dir default lost: %q", cfg.LogDir)
	}
}

func TestPlatformTableOverrides(t *testing.T) {
	preserve := true
	cfg := defaults()
	cfg.Platforms = map[string]PlatformOverride{
		"radxa": {Script: "custom.sh", PreserveEnv: &preserve},
	}
	tab, err := cfg.PlatformTable()
	if err != nil {
		t.Fatalf("PlatformTable: %v", err)
	}
	spec, _ := tab.Lookup("radxa")
	if spec.Script != "custom.sh" || !spec.PreserveEnv {
		t.Errorf("override not applied: %+v", spec)
	}

	cfg.Platforms = map[string]PlatformOverride{"freebsd": {Script: "x.sh"}}
	if _, err := cfg.PlatformTable(); err == nil {
		t.Error("expected error for tag outside the closed set")
	}
}
