package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/snake-arena/internal/match"
)

func TestEmbeddedDefaultsMatchDefaultConfig(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal(DefaultYAML(), &cfg); err != nil {
		t.Fatalf("Embedded YAML does not parse: %v", err)
	}

	want := DefaultConfig()
	if cfg.Match != want.Match {
		t.Errorf("Expected match section %+v, got %+v", want.Match, cfg.Match)
	}
	if cfg.Rules != want.Rules {
		t.Errorf("Expected rules %+v, got %+v", want.Rules, cfg.Rules)
	}
	if cfg.Server.Addr != want.Server.Addr || cfg.Server.MaxConcurrent != want.Server.MaxConcurrent {
		t.Errorf("Expected server %+v, got %+v", want.Server, cfg.Server)
	}
	if cfg.Storage != want.Storage || cfg.Broadcast != want.Broadcast || cfg.Log != want.Log {
		t.Errorf("Expected %+v, got %+v", want, cfg)
	}
}

func TestLoadCustomPathKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	content := `
match:
  ruleset: royale
  move_timeout: 250ms
rules:
  hazard_damage: 20
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Match.Ruleset != "royale" {
		t.Errorf("Expected royale, got %s", cfg.Match.Ruleset)
	}
	if cfg.Match.MoveTimeout != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", cfg.Match.MoveTimeout)
	}
	if cfg.Match.Width != 11 || cfg.Match.MaxTurns != 500 {
		t.Errorf("Expected default board and cap, got %+v", cfg.Match)
	}
	if cfg.Rules.HazardDamage != 20 || cfg.Rules.MinimumFood != 1 {
		t.Errorf("Expected merged rules, got %+v", cfg.Rules)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Log.Level)
	}
}

func TestLoadCustomPathErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("match: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoadMatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "match.yaml")
	content := `
ruleset: snail
width: 19
height: 19
seed: 7
turn_delay: 100ms
rules:
  minimum_food: 3
  food_spawn_chance: 25
  hazard_damage: 14
  shrink_every_turns: 25
  snail_max_trail: 5
agents:
  - id: a
    name: Alpha
    url: http://localhost:8001
  - name: Beta
    url: http://localhost:8002
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := LoadMatchFile(path)
	if err != nil {
		t.Fatalf("LoadMatchFile failed: %v", err)
	}

	spec := f.Spec(DefaultConfig().MatchDefaults())
	if spec.Ruleset != "snail" || spec.Width != 19 || spec.Height != 19 || spec.Seed != 7 {
		t.Errorf("Expected file values, got %+v", spec)
	}
	if spec.MoveTimeout != match.DefaultMoveTimeout || spec.MaxTurns != match.DefaultMaxTurns {
		t.Errorf("Expected default timeout and cap, got %v and %d", spec.MoveTimeout, spec.MaxTurns)
	}
	if spec.TurnDelay != 100*time.Millisecond {
		t.Errorf("Expected 100ms delay, got %v", spec.TurnDelay)
	}
	if spec.Settings.MinimumFood != 3 || spec.Settings.SnailMaxTrail != 5 {
		t.Errorf("Expected file rules, got %+v", spec.Settings)
	}
	if len(spec.Agents) != 2 || spec.Agents[1].ID != "" || spec.Agents[1].URL != "http://localhost:8002" {
		t.Errorf("Expected two agents, got %+v", spec.Agents)
	}
	if err := match.Validate(spec); err != nil {
		t.Errorf("Expected spec to validate, got %v", err)
	}
}

func TestLoadMatchFileWithoutAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("ruleset: standard\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMatchFile(path); err == nil {
		t.Error("Expected error for a match without agents")
	}
}
