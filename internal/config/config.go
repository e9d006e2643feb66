package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "semq.yaml"

type Config struct {
	Project struct {
		Root string `yaml:"root"`
	} `yaml:"project"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
	Names struct {
		Minimize bool `yaml:"minimize"`
	} `yaml:"names"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.Project.Root = "."
	cfg.Storage.Path = "semq.db"
	cfg.Log.Level = "info"
	cfg.Names.Minimize = true
	return &cfg
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.Wrapf(err, "read %s", path)
	}

	// 3. Override with Environment Variables if present
	if db := os.Getenv("SEMQ_DB"); db != "" {
		cfg.Storage.Path = db
	}
	if level := os.Getenv("SEMQ_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if minimize := os.Getenv("SEMQ_MINIMIZE_NAMES"); minimize != "" {
		v, err := strconv.ParseBool(minimize)
		if err != nil {
			return nil, errors.WithHint(errors.Wrap(err, "SEMQ_MINIMIZE_NAMES"), "use true or false")
		}
		cfg.Names.Minimize = v
	}

	return cfg, nil
}
