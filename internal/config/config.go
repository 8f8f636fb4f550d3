package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Agent         struct {
		Bin            string `json:"bin"`
		Model          string `json:"model"`
		MaxTurns       int    `json:"max_turns"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"agent"`
	Server struct {
		Port int `json:"port"`
	} `json:"server"`
	Sweeper struct {
		Schedule      string `json:"schedule"`
		MaxAgeMinutes int    `json:"max_age_minutes"`
	} `json:"sweeper"`
}

// AgentTimeout returns the per-run timeout as a duration; zero means none.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutSeconds) * time.Second
}

// SweeperMaxAge returns the stale-fork cutoff; zero falls back to the
// sweeper's default.
func (c *Config) SweeperMaxAge() time.Duration {
	return time.Duration(c.Sweeper.MaxAgeMinutes) * time.Minute
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".forkgraph"),
		LogLevel:      "info",
		MaxConcurrent: 4,
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, "graph.db")
	cfg.Agent.Bin = "claude"
	cfg.Server.Port = 58231
	cfg.Sweeper.Schedule = "*/10 * * * *"
	cfg.Sweeper.MaxAgeMinutes = 120

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if db := os.Getenv("FORKGRAPH_DB"); db != "" {
		cfg.DBPath = db
	}
	if bin := os.Getenv("CLAUDE_BIN"); bin != "" {
		cfg.Agent.Bin = bin
	}
	if port := os.Getenv("FORKGRAPH_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
