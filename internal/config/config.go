package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"telescribe/internal/writer"
)

// Config is the application's configuration model: credentials, the two
// rate ceilings, and the export knobs.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	Rates       RatesConfig       `yaml:"rates"`
	Export      ExportConfig      `yaml:"export"`
	Storage     StorageConfig     `yaml:"storage"`
}

type CredentialsConfig struct {
	// Gateway API token. If empty, read from env TELEGRAM_API_TOKEN
	Token string `yaml:"token"`
}

type RatesConfig struct {
	// Ceiling for message fetches, operations per second
	MessagesPerSecond float64 `yaml:"messagesPerSecond"`
	// Ceiling for user-profile resolution, deliberately more conservative
	ResolvesPerSecond float64 `yaml:"resolvesPerSecond"`
}

type ExportConfig struct {
	// Maximum messages per conversation per run
	Limit          int    `yaml:"limit"`
	ResolveSenders bool   `yaml:"resolveSenders"`
	Format         string `yaml:"format"` // "json" or "md"
	Dir            string `yaml:"dir"`
}

type StorageConfig struct {
	// Run-ledger database; empty disables the ledger
	DBPath string `yaml:"dbPath"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Credentials: CredentialsConfig{Token: ""},
		Rates:       RatesConfig{MessagesPerSecond: 1.0, ResolvesPerSecond: 0.5},
		Export:      ExportConfig{Limit: 100, ResolveSenders: true, Format: writer.FormatJSON, Dir: "exports"},
		Storage:     StorageConfig{DBPath: "./telescribe.db"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.Token == "" {
		c.Credentials.Token = os.Getenv("TELEGRAM_API_TOKEN")
	}
}

// Validate reports configuration errors that make a run impossible. These
// are terminal: surfaced immediately, never retried.
func (c Config) Validate() error {
	if c.Credentials.Token == "" {
		return errors.New("missing credentials.token (set TELEGRAM_API_TOKEN)")
	}
	if !writer.KnownFormat(c.Export.Format) {
		return fmt.Errorf("unknown export.format %q", c.Export.Format)
	}
	if c.Rates.MessagesPerSecond <= 0 || c.Rates.ResolvesPerSecond <= 0 {
		return errors.New("rate ceilings must be positive")
	}
	if c.Export.Limit <= 0 {
		return errors.New("export.limit must be positive")
	}
	return nil
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
