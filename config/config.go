// Package config defines the on-disk persisted-state schema: mod order and
// companion-runtime selection, stored as JSON at a platform-conventional
// config path.
//
// Recovered from original_source/src/main.rs and src/cache.rs: the original
// keeps an ordered, individually toggleable mod list plus a remembered
// "which companion runtime build is installed" record so a repeat launch
// doesn't need to re-detect it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ModOrderEntry is one row of the persisted mod list: a mod's on-disk name
// and whether it is currently enabled. Order in the slice is load/apply
// order.
type ModOrderEntry struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// CompanionSelection records which companion runtime build is installed, so
// a repeat launch can skip re-detecting or re-downloading it.
type CompanionSelection struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

// Config is the full persisted-state document.
type Config struct {
	ModOrder  []ModOrderEntry    `json:"modOrder"`
	Companion CompanionSelection `json:"companion"`
}

// dirName is the subdirectory created under os.UserConfigDir().
const dirName = "ftlman"

// path returns the config file path under the platform config directory.
func path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config dir: %w", err)
	}
	return filepath.Join(dir, dirName, "config.json"), nil
}

// Load reads the persisted Config. A missing file is not an error: it
// returns a zero-value Config, matching first-run behavior.
func Load() (*Config, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", p, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", p, err)
	}
	return &c, nil
}

// Save persists c, creating the config directory if necessary.
func Save(c *Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", p, err)
	}
	return nil
}
