// arena runs snake matches between HTTP agents and lets people watch them.
//
// Usage:
//
//	arena run --file match.yaml   - Run one match to completion
//	arena serve                   - Start the match server (HTTP API, WebSocket, SSH)
//	arena watch <match-id>        - Watch a match in the terminal
//	arena matches                 - List recent matches
//	arena turns <match-id>        - Show the per-agent move log of a match
//	arena stress --steady 10/s    - Generate match load against a server
//
// Global flags:
//
//	--config <path>     - Config file (default: ~/.arena/config.yaml)
//	--db <path>         - Database path (overrides storage.path)
//	--log-level <level> - debug, info, warn or error
//	--seed <value>      - RNG seed for reproducible matches
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/snake-arena/internal/config"
	"github.com/vovakirdan/snake-arena/internal/storage"
)

var (
	// Global flags
	flagConfig   string
	flagDBPath   string
	flagLogLevel string
	flagSeed     int64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Snake Arena - multi-agent snake matches",
	Long: `Snake Arena runs snake matches between HTTP agents, records every
turn and streams matches to spectators.

Available commands:
  run      - Run a single match
  serve    - Start the match server
  watch    - Watch a match in the terminal
  matches  - List recent matches
  turns    - Show the move log of a match

Examples:
  arena run --file examples/duel.yaml
  arena run --agent alpha=http://localhost:8001 --agent beta=http://localhost:8002 --watch
  arena serve --addr :8080 --ssh :2222
  arena watch 3f2c... --server http://localhost:8080
  arena matches --interactive`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config YAML")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to match database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "RNG seed (0 = random based on time)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(matchesCmd)
	rootCmd.AddCommand(turnsCmd)
	rootCmd.AddCommand(stressCmd)
}

// loadConfig reads the config file and applies the global flags over it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagDBPath != "" {
		cfg.Storage.Path = flagDBPath
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. Components get children with their
// own prefix.
func newLogger(cfg config.Config) (*log.Logger, error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: cfg.Log.Timestamps,
		Prefix:          "arena",
	})
	if cfg.Log.Level != "" {
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
		}
		logger.SetLevel(level)
	}
	return logger, nil
}

// setup loads config, logger and store shared by most commands.
func setup() (config.Config, *log.Logger, *storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return cfg, nil, nil, err
	}
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("cannot open match database: %w", err)
	}
	return cfg, logger, store, nil
}
