package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LastKnownGoodPath is where the most recent valid config is mirrored.
func LastKnownGoodPath(path string) string {
	return path + ".lkg"
}

// Load reads path and applies environment overrides.
//
// A missing file yields defaults. A file that fails to parse or validate is
// replaced by the last-known-good copy, and by defaults when that is also
// unusable; the failure is logged and never returned. Environment overrides
// that would make the result invalid are logged and skipped.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	switch {
	case err == nil:
		cfg.Source = SourceFile
		if werr := writeLastKnownGood(path, cfg); werr != nil {
			slog.Warn("config_lkg_write_failed", slog.String("path", path), slog.String("error", werr.Error()))
		}
	case os.IsNotExist(err):
		cfg = NewConfig()
	default:
		slog.Warn("config_invalid_using_fallback", slog.String("path", path), slog.String("error", err.Error()))
		lkg, lerr := loadFile(LastKnownGoodPath(path))
		if lerr == nil {
			cfg = lkg
			cfg.Source = SourceLastKnownGood
		} else {
			slog.Warn("config_lkg_unusable_using_defaults", slog.String("error", lerr.Error()))
			cfg = NewConfig()
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save validates cfg and writes it atomically to path, then refreshes the
// last-known-good copy.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := c.marshal()
	if err != nil {
		return err
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	return writeAtomic(LastKnownGoodPath(path), data)
}

func (c *Config) marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	header := []byte("# amanfind configuration\n")
	return append(header, data...), nil
}

func writeLastKnownGood(path string, cfg *Config) error {
	data, err := cfg.marshal()
	if err != nil {
		return err
	}
	return writeAtomic(LastKnownGoodPath(path), data)
}

// writeAtomic writes through a temp file in the same directory and renames it.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
