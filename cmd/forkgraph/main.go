package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/forkgraph/internal/config"
	"github.com/user/forkgraph/internal/graph"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "forkgraph",
	Short: "Fork agent sessions and watch them in a live event graph",
	Long: "Forkgraph runs side tasks in forked agent sessions, records every\n" +
		"event they emit as a graph, and serves an observability API over it.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath,
		"config",
		filepath.Join(os.Getenv("HOME"), ".forkgraph", "config.json"),
		"config file path")
}

// loadConfig loads the config or exits; commands that can't load config
// can't do anything useful.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openStore opens the graph database named by the config.
func openStore(cfg *config.Config) (*graph.Store, error) {
	store, err := graph.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open graph database: %w", err)
	}
	return store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
