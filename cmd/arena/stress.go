package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/snake-arena/internal/loadgen"
	"github.com/vovakirdan/snake-arena/internal/spectator"
)

var (
	flagStressURL      string
	flagStressAgents   []string
	flagSteady         string
	flagBatch          string
	flagDuration       time.Duration
	flagStatsInterval  time.Duration
	flagStressWidth    int
	flagStressHeight   int
	flagStressRuleset  string
	flagStressInFlight int
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Generate match load against a server",
	Long: `Submit matches to a running arena server and report how it keeps up.

Load patterns (at least one, both may run together):
  --steady 10/s        - 10 matches per second
  --batch 100,30s      - 100 matches at once every 30 seconds

Examples:
  arena stress --agent http://localhost:8001 --agent http://localhost:8002 --steady 5/s
  arena stress -a http://a -a http://b --batch 50,10s --duration 5m --ruleset royale`,
	RunE: runStress,
}

func init() {
	stressCmd.Flags().StringVarP(&flagStressURL, "server", "s", "http://localhost:8080", "Arena server URL")
	stressCmd.Flags().StringArrayVarP(&flagStressAgents, "agent", "a", nil, "Agent as URL or name=URL (repeatable)")
	stressCmd.Flags().StringVar(&flagSteady, "steady", "", "Steady rate, e.g. 10/s")
	stressCmd.Flags().StringVar(&flagBatch, "batch", "", "Batch pattern count,interval, e.g. 100,30s")
	stressCmd.Flags().DurationVar(&flagDuration, "duration", time.Minute, "How long to generate load")
	stressCmd.Flags().DurationVar(&flagStatsInterval, "stats-interval", 10*time.Second, "How often to print stats")
	stressCmd.Flags().IntVar(&flagStressWidth, "width", 0, "Board width (server default if 0)")
	stressCmd.Flags().IntVar(&flagStressHeight, "height", 0, "Board height (server default if 0)")
	stressCmd.Flags().StringVar(&flagStressRuleset, "ruleset", "", "Ruleset: standard, royale, constrictor, snail")
	stressCmd.Flags().IntVar(&flagStressInFlight, "max-in-flight", loadgen.DefaultMaxInFlight, "Concurrent submissions")
}

// stressPatterns builds the load patterns named by the flags.
func stressPatterns(steady, batch string) ([]loadgen.Pattern, error) {
	var patterns []loadgen.Pattern
	if steady != "" {
		p, err := loadgen.ParseSteady(steady)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	if batch != "" {
		p, err := loadgen.ParseBatch(batch)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		return nil, errors.New("at least one load pattern (--steady or --batch) is required")
	}
	return patterns, nil
}

func runStress(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	agents, err := parseAgents(flagStressAgents)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return errors.New("at least one --agent is required")
	}
	patterns, err := stressPatterns(flagSteady, flagBatch)
	if err != nil {
		return err
	}

	gen := loadgen.NewGenerator(loadgen.Config{
		BaseURL: flagStressURL,
		Request: spectator.SubmitRequest{
			Width:   flagStressWidth,
			Height:  flagStressHeight,
			Ruleset: flagStressRuleset,
			Agents:  agents,
		},
		MaxInFlight: flagStressInFlight,
	}, nil, logger.WithPrefix("stress"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flagDuration)
	defer cancel()

	fmt.Println(titleStyle.Render("Stress test against " + flagStressURL))
	fmt.Println(dimStyle.Render(fmt.Sprintf("duration %s · %d agents", flagDuration, len(agents))))
	for _, p := range patterns {
		fmt.Println(dimStyle.Render("pattern " + p.String()))
	}
	fmt.Println()

	final := gen.Run(ctx, patterns, flagStatsInterval, func(s loadgen.Snapshot) {
		fmt.Println(statsLine(s))
		logStats(logger, s)
	})

	fmt.Println()
	fmt.Println(titleStyle.Render("Final results"))
	fmt.Println(stressSummary(final))
	return nil
}

func statsLine(s loadgen.Snapshot) string {
	return fmt.Sprintf("[%s] Matches: %s | Rate: %.1f/s | Success: %.1f%% | Avg: %s | p50: %s | p95: %s | p99: %s",
		loadgen.FormatElapsed(s.Elapsed), humanize.Comma(int64(s.Total)), s.Rate, s.SuccessRate,
		ms(s.Avg), ms(s.P50), ms(s.P95), ms(s.P99))
}

func logStats(logger *log.Logger, s loadgen.Snapshot) {
	logger.Debug("stress stats",
		"total", s.Total,
		"accepted", s.Accepted,
		"rejected", s.Rejected,
		"failed", s.Failed,
		"rate", s.Rate,
		"p99", s.P99,
	)
}

func stressSummary(s loadgen.Snapshot) string {
	t := newTable("Metric", "Value")
	t.Row("Total matches", humanize.Comma(int64(s.Total)))
	t.Row("Accepted", humanize.Comma(int64(s.Accepted)))
	t.Row("Rejected", humanize.Comma(int64(s.Rejected)))
	t.Row("Failed", humanize.Comma(int64(s.Failed)))
	t.Row("Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate))
	t.Row("Average rate", fmt.Sprintf("%.1f matches/sec", s.Rate))
	t.Row("Avg latency", ms(s.Avg))
	t.Row("p50 latency", ms(s.P50))
	t.Row("p95 latency", ms(s.P95))
	t.Row("p99 latency", ms(s.P99))
	return t.String()
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
}
