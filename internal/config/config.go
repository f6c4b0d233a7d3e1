// Package config owns the on-disk user configuration file and the
// crash-recovery PID ledger, the Go stand-in for the original
// MarimoConfigManager (SPEC_FULL.md "Supplemented features").
//
// Grounded in the teacher's own config/home-directory handling idiom:
// github.com/pelletier/go-toml/v2 for the file format and
// github.com/mitchellh/go-homedir for path resolution, both carried over
// from the teacher's go.mod (SPEC_FULL.md DOMAIN STACK).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	toml "github.com/pelletier/go-toml/v2"
)

// UserConfig is the on-disk, editor-scoped configuration: the pieces the
// kernel launch and the dispatch surface need that are not themselves
// part of a notebook (spec.md §3's UserConfig, persisted).
type UserConfig struct {
	DefaultInterpreter string         `toml:"default_interpreter"`
	LogLevel           string         `toml:"log_level"`
	AutoInstantiate    bool           `toml:"auto_instantiate"`
	AutoPublishOnSave  bool           `toml:"auto_publish_on_save"`
	PackageManager     string         `toml:"package_manager"`
	Runtime            map[string]any `toml:"runtime"`
}

// DefaultUserConfig matches the defaults offered by the `init` wizard.
func DefaultUserConfig() UserConfig {
	return UserConfig{
		DefaultInterpreter: "python3",
		LogLevel:           "INFO",
		AutoInstantiate:    true,
		AutoPublishOnSave:  true,
		PackageManager:     "uv",
		Runtime:            map[string]any{},
	}
}

// DefaultDir resolves ~/.config/marimo-lsp, honoring
// $MARIMO_LSP_CONFIG_DIR for test isolation the way the teacher's own
// e2e tests override CONTAINER_USE_CONFIG_DIR.
func DefaultDir() (string, error) {
	if dir := os.Getenv("MARIMO_LSP_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "marimo-lsp"), nil
}

// Path returns the config file path within dir.
func Path(dir string) string {
	return filepath.Join(dir, "config.toml")
}

// Load reads the user config file, returning defaults if it does not
// exist.
func Load(path string) (UserConfig, error) {
	cfg := DefaultUserConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg UserConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
