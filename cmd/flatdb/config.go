package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/andreyvit/flatdb"
	"gopkg.in/yaml.v3"
)

type config struct {
	// DataDir is a directory, a Bolt file ending in .bolt, or s3://bucket/prefix.
	DataDir   string `yaml:"data_dir"`
	Format    string `yaml:"format"`
	Legacy    bool   `yaml:"legacy"`
	Secret    string `yaml:"secret"`
	SecretEnv string `yaml:"secret_env"`
	LogLevel  string `yaml:"log_level"`

	// Required and Unique list fields validated on every write.
	Required []string `yaml:"required"`
	Unique   []string `yaml:"unique"`
}

func defaultConfig() config {
	return config{
		DataDir:  "./data",
		Format:   "json",
		LogLevel: "info",
	}
}

// loadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is empty")
	}
	if _, err := flatdb.ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// secret prefers the environment variable named by secret_env.
func (c *config) secret() string {
	if c.SecretEnv != "" {
		if v := os.Getenv(c.SecretEnv); v != "" {
			return v
		}
	}
	return c.Secret
}

func (c *config) validator() flatdb.Validator {
	var vs []flatdb.Validator
	if len(c.Required) > 0 {
		vs = append(vs, flatdb.RequireFields(c.Required...))
	}
	if len(c.Unique) > 0 {
		vs = append(vs, flatdb.UniqueFields(c.Unique...))
	}
	if len(vs) == 0 {
		return nil
	}
	return flatdb.Validators(vs...)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

func openAdapter(ctx context.Context, c *config) (flatdb.Adapter, error) {
	format, err := flatdb.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	if bucket, prefix, ok := flatdb.ParseS3URL(c.DataDir); ok {
		return flatdb.OpenS3(ctx, flatdb.S3Options{
			Bucket: bucket,
			Prefix: prefix,
			Format: format,
			Secret: c.secret(),
			Legacy: c.Legacy,
		})
	}
	if strings.HasSuffix(c.DataDir, ".bolt") {
		return flatdb.OpenBolt(c.DataDir, flatdb.BoltOptions{})
	}
	return flatdb.NewFileAdapter(c.DataDir, flatdb.FileOptions{
		Format: format,
		Secret: c.secret(),
		Legacy: c.Legacy,
	})
}
