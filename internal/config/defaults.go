package config

import (
	_ "embed"
	"time"

	"github.com/vovakirdan/snake-arena/internal/broadcast"
	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/rules"
)

//go:embed defaults/arena.yaml
var defaultArenaYAML []byte

// DefaultConfig returns the default arena configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:          ":8080",
			SSHAddr:       ":2222",
			HostKeyPath:   "~/.arena/ssh_host_key",
			MaxConcurrent: match.DefaultCoordinatorConfig().MaxConcurrent,
		},
		Storage: StorageConfig{
			Path: "~/.arena/arena.db",
		},
		Match: MatchConfig{
			Width:       11,
			Height:      11,
			Ruleset:     string(rules.Standard),
			MoveTimeout: match.DefaultMoveTimeout,
			MaxTurns:    match.DefaultMaxTurns,
			TurnDelay:   0,
		},
		Rules: rules.DefaultSettings(),
		Broadcast: BroadcastConfig{
			Capacity: broadcast.DefaultCapacity,
		},
		Log: LogConfig{
			Level:      "info",
			Timestamps: true,
		},
	}
}

// DefaultYAML returns the embedded default configuration file.
func DefaultYAML() []byte {
	return defaultArenaYAML
}

// watchDelay is the turn delay used when a match is run for a local viewer.
const watchDelay = 150 * time.Millisecond

// WatchDelay returns the turn delay applied to matches started with a live
// terminal viewer when the config leaves it at zero.
func (c Config) WatchDelay() time.Duration {
	if c.Match.TurnDelay > 0 {
		return c.Match.TurnDelay
	}
	return watchDelay
}
