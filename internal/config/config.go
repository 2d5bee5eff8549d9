// Package config provides YAML-based configuration loading for the arena
// server, the match runner and match definition files.
package config

import (
	"time"

	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/rules"
)

// Config contains all configuration for the arena.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Match     MatchConfig     `yaml:"match"`
	Rules     rules.Settings  `yaml:"rules"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig defines the spectator and SSH listeners.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	SSHAddr        string   `yaml:"ssh_addr"`
	HostKeyPath    string   `yaml:"host_key_path"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig defines where turns are persisted.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// MatchConfig holds defaults for matches that do not set their own.
type MatchConfig struct {
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	Ruleset     string        `yaml:"ruleset"`
	MoveTimeout time.Duration `yaml:"move_timeout"`
	MaxTurns    int           `yaml:"max_turns"`
	TurnDelay   time.Duration `yaml:"turn_delay"` // Pause between turns for viewers
}

// BroadcastConfig sizes the live viewer buffers.
type BroadcastConfig struct {
	Capacity int `yaml:"capacity"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	Timestamps bool   `yaml:"timestamps"`
}

// MatchDefaults returns the match spec every new match starts from.
func (c Config) MatchDefaults() match.Spec {
	return match.Spec{
		Width:       c.Match.Width,
		Height:      c.Match.Height,
		Ruleset:     c.Match.Ruleset,
		Settings:    c.Rules,
		MoveTimeout: c.Match.MoveTimeout,
		MaxTurns:    c.Match.MaxTurns,
		TurnDelay:   c.Match.TurnDelay,
	}
}

// MatchFile is a match definition read by `arena run --file`.
type MatchFile struct {
	ID          string            `yaml:"id"`
	Width       int               `yaml:"width"`
	Height      int               `yaml:"height"`
	Ruleset     string            `yaml:"ruleset"`
	MoveTimeout time.Duration     `yaml:"move_timeout"`
	MaxTurns    int               `yaml:"max_turns"`
	TurnDelay   time.Duration     `yaml:"turn_delay"`
	Seed        int64             `yaml:"seed"`
	Rules       *rules.Settings   `yaml:"rules"`
	Agents      []match.AgentSpec `yaml:"agents"`
}

// Spec merges the file over defaults. Zero values keep the default.
func (f MatchFile) Spec(defaults match.Spec) match.Spec {
	spec := defaults
	spec.ID = f.ID
	spec.Agents = f.Agents
	spec.Seed = f.Seed
	spec.Source = "file"
	if f.Width > 0 {
		spec.Width = f.Width
	}
	if f.Height > 0 {
		spec.Height = f.Height
	}
	if f.Ruleset != "" {
		spec.Ruleset = f.Ruleset
	}
	if f.MoveTimeout > 0 {
		spec.MoveTimeout = f.MoveTimeout
	}
	if f.MaxTurns > 0 {
		spec.MaxTurns = f.MaxTurns
	}
	if f.TurnDelay > 0 {
		spec.TurnDelay = f.TurnDelay
	}
	if f.Rules != nil {
		spec.Settings = *f.Rules
	}
	return spec
}
