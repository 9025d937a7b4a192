package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/emilejacobs/rollout/internal/inventory"
	"github.com/emilejacobs/rollout/internal/platform"
)

// DefaultFetchBase is where install scripts are fetched from in
// fetch mode.
const DefaultFetchBase = "https://raw.githubusercontent.com/emilejacobs/zabbix-rollout/main/scripts"

// PlatformOverride adjusts the script or elevation of a built-in
// platform tag. The tag set itself is closed and cannot be extended
// from config.
type PlatformOverride struct {
	Script      string `yaml:"script"`
	PreserveEnv *bool  `yaml:"preserve_env"`
}

type SSHConfig struct {
	Port           int    `yaml:"port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	KeyPath        string `yaml:"key_path"`
	KnownHosts     string `yaml:"known_hosts"`
}

type Config struct {
	ScriptsDir  string                      `yaml:"scripts_dir"`
	LogDir      string                      `yaml:"log_dir"`
	StateFile   string                      `yaml:"state_file"`
	HistoryDB   string                      `yaml:"history_db"`
	FetchBase   string                      `yaml:"fetch_base"`
	Concurrency int                         `yaml:"concurrency"`
	SSH         SSHConfig                   `yaml:"ssh"`
	Platforms   map[string]PlatformOverride `yaml:"platforms"`
	// Hosts is an optional static inventory used when no CSV is given.
	Hosts []inventory.Host `yaml:"hosts"`
}

func defaults() Config {
	return Config{
		ScriptsDir:  "scripts",
		LogDir:      "logs",
		StateFile:   "rollout-state.json",
		HistoryDB:   "rollout-history.db",
		FetchBase:   DefaultFetchBase,
		Concurrency: 1,
		SSH: SSHConfig{
			Port:           22,
			TimeoutSeconds: 600,
		},
	}
}

// Load reads YAML configuration from path. If path is empty, it
// resolves $XDG_CONFIG_HOME/rollout/config.yaml (or
// ~/.config/rollout/config.yaml); a missing default file yields the
// built-in defaults, a missing explicit file is an error.
func Load(path string) (Config, error) {
	cfg := defaults()
	explicit := path != ""
	if path == "" {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
		path = filepath.Join(base, "rollout", "config.yaml")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg, nil
}

// PlatformTable returns the built-in table with config overrides
// applied. Tags outside the closed set are rejected.
func (c Config) PlatformTable() (platform.Table, error) {
	tab := platform.Default()
	for tag, ov := range c.Platforms {
		spec, ok := tab.Lookup(tag)
		if !ok {
			return nil, fmt.Errorf("unknown platform %q in config (must be one of: %s)", tag, tab.TagList())
		}
		if ov.Script != "" {
			spec.Script = ov.Script
		}
		if ov.PreserveEnv != nil {
			spec.PreserveEnv = *ov.PreserveEnv
		}
		tab[tag] = spec
	}
	if err := tab.Validate(); err != nil {
		return nil, err
	}
	return tab, nil
}
