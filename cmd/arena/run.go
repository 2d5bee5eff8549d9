package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/snake-arena/internal/agent"
	"github.com/vovakirdan/snake-arena/internal/broadcast"
	"github.com/vovakirdan/snake-arena/internal/config"
	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/platform/tui"
	"github.com/vovakirdan/snake-arena/internal/spectator"
)

var (
	flagMatchFile string
	flagAgents    []string
	flagWidth     int
	flagHeight    int
	flagRuleset   string
	flagMaxTurns  int
	flagRunWatch  bool
	flagFallback  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single match",
	Long: `Run one match to completion and print the placements.

Agents come from a match file (--file) or from --agent flags. Each --agent
is either a URL or name=url. Flags override the match file, which overrides
the config defaults.

Rulesets:
  standard     - Classic rules
  royale       - Hazards close in from the edges
  constrictor  - Snakes never shrink and stay at full health
  snail        - Snakes leave a fading hazard trail

Examples:
  arena run --file examples/duel.yaml
  arena run --agent http://localhost:8001 --agent http://localhost:8002
  arena run --agent alpha=http://localhost:8001 --agent beta=http://localhost:8002 --ruleset royale --watch`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&flagMatchFile, "file", "f", "", "Match definition YAML")
	runCmd.Flags().StringArrayVarP(&flagAgents, "agent", "a", nil, "Agent as URL or name=URL (repeatable)")
	runCmd.Flags().IntVar(&flagWidth, "width", 0, "Board width")
	runCmd.Flags().IntVar(&flagHeight, "height", 0, "Board height")
	runCmd.Flags().StringVar(&flagRuleset, "ruleset", "", "Ruleset: standard, royale, constrictor, snail")
	runCmd.Flags().IntVar(&flagMaxTurns, "max-turns", 0, "Turn cap")
	runCmd.Flags().BoolVarP(&flagRunWatch, "watch", "w", false, "Watch the match live in the terminal")
	runCmd.Flags().StringVar(&flagFallback, "fallback", "continue", "Move used when an agent fails: continue, avoid-walls")
}

// parseAgents turns --agent values into agent specs. A value is name=URL
// only when the part before the first '=' is not itself a URL.
func parseAgents(values []string) ([]match.AgentSpec, error) {
	agents := make([]match.AgentSpec, 0, len(values))
	for _, v := range values {
		name, url, ok := strings.Cut(v, "=")
		if !ok || strings.Contains(name, "://") {
			name, url = "", v
		}
		if url == "" {
			return nil, fmt.Errorf("invalid agent %q: missing URL", v)
		}
		agents = append(agents, match.AgentSpec{ID: name, Name: name, URL: url})
	}
	return agents, nil
}

func fallbackPolicy(name string) (agent.FallbackPolicy, error) {
	switch name {
	case "", "continue":
		return agent.ContinueLastMove, nil
	case "avoid-walls":
		return agent.AvoidWalls, nil
	default:
		return nil, fmt.Errorf("unknown fallback %q (want continue or avoid-walls)", name)
	}
}

// buildSpec merges config defaults, the match file and flags.
func buildSpec(cfg config.Config) (match.Spec, error) {
	spec := cfg.MatchDefaults()
	spec.Source = "cli"

	if flagMatchFile != "" {
		mf, err := config.LoadMatchFile(flagMatchFile)
		if err != nil {
			return spec, err
		}
		spec = mf.Spec(spec)
	}

	if len(flagAgents) > 0 {
		agents, err := parseAgents(flagAgents)
		if err != nil {
			return spec, err
		}
		spec.Agents = agents
	}
	if flagWidth > 0 {
		spec.Width = flagWidth
	}
	if flagHeight > 0 {
		spec.Height = flagHeight
	}
	if flagRuleset != "" {
		spec.Ruleset = flagRuleset
	}
	if flagMaxTurns > 0 {
		spec.MaxTurns = flagMaxTurns
	}
	if flagSeed != 0 {
		spec.Seed = flagSeed
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}

	return spec, match.Validate(spec)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	spec, err := buildSpec(cfg)
	if err != nil {
		return err
	}
	fallback, err := fallbackPolicy(flagFallback)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The viewer owns the terminal, so the match runs quietly behind it.
	runLogger := logger
	var hub *broadcast.Hub
	if flagRunWatch {
		runLogger = log.New(io.Discard)
		hub = broadcast.NewHub(cfg.Broadcast.Capacity, runLogger)
		if spec.TurnDelay == 0 {
			spec.TurnDelay = cfg.WatchDelay()
		}
	}

	gateway := agent.NewGateway(nil, runLogger.WithPrefix("agents"))
	gateway.SetFallback(fallback)
	runner := match.NewRunner(store, gateway, hub, runLogger.WithPrefix("match"))

	done := make(chan runOutcome, 1)
	go func() {
		res, err := runner.Run(ctx, spec)
		done <- runOutcome{res, err}
	}()

	if flagRunWatch && waitForMatch(ctx, store, spec.ID, done) {
		streamer := spectator.NewStreamer(store, hub, runLogger)
		watchErr := tui.RunWatch(ctx, spec.ID, tui.StreamFeed{Streamer: streamer}, tui.WatchOptions{
			BoardWidth:  spec.Width,
			BoardHeight: spec.Height,
			Title:       "match " + shortMatchID(spec.ID),
		})
		if watchErr != nil {
			logger.Warn("viewer stopped", "err", watchErr)
		}
		if ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "Viewer closed, waiting for the match to finish (Ctrl+C to stop it)...")
		}
	}

	out := <-done
	if out.err != nil {
		if errors.Is(out.err, match.ErrStopped) {
			fmt.Fprintf(os.Stderr, "Match %s stopped.\n", spec.ID)
			return nil
		}
		return out.err
	}

	printResult(os.Stdout, spec, out.res)
	return nil
}

type runOutcome struct {
	res *match.Result
	err error
}

// waitForMatch polls until the runner has stored the match. It returns false
// if the run ends first or ctx is done.
func waitForMatch(ctx context.Context, store spectator.Reader, id string, done chan runOutcome) bool {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := store.MatchByID(ctx, id); err == nil {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		case out := <-done:
			// Put it back for the caller.
			done <- out
			return false
		}
	}
}

func shortMatchID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
