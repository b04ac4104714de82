package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file on top of defaults and then applies
// FOREST_*-prefixed environment overrides. An empty path skips the file and
// loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if len(path) > 0 {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}

		if err = yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := fromEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// fromEnv overrides selected options from the process environment. A .env
// file in the working directory is honored if present.
func fromEnv(cfg *Config) error {
	// absence of a .env file is not an error
	_ = godotenv.Load()

	if host := os.Getenv("FOREST_HOST"); len(host) > 0 {
		cfg.NET.Host = host
	}

	if port := os.Getenv("FOREST_PORT"); len(port) > 0 {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return fmt.Errorf("config: FOREST_PORT: %w", err)
		}

		cfg.NET.Port = uint16(n)
	}

	if size := os.Getenv("FOREST_REQUEST_MAX_SIZE"); len(size) > 0 {
		n, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("config: FOREST_REQUEST_MAX_SIZE: %w", err)
		}

		cfg.Request.MaxSize = n
	}

	if timeout := os.Getenv("FOREST_REQUEST_TIMEOUT"); len(timeout) > 0 {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("config: FOREST_REQUEST_TIMEOUT: %w", err)
		}

		cfg.Request.Timeout = d
	}

	if backlog := os.Getenv("FOREST_BACKLOG"); len(backlog) > 0 {
		n, err := strconv.Atoi(backlog)
		if err != nil {
			return fmt.Errorf("config: FOREST_BACKLOG: %w", err)
		}

		cfg.NET.Backlog = n
	}

	return nil
}
