package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	flagTurnsAgent   string
	flagTimeoutsOnly bool
)

var turnsCmd = &cobra.Command{
	Use:   "turns <match-id>",
	Short: "Show the move log of a match",
	Long: `Print every move each agent made in a match, with its latency and
whether the move was a fallback after a timeout.

Examples:
  arena turns 3f2c9a1e-...
  arena turns 3f2c9a1e-... --agent alpha
  arena turns 3f2c9a1e-... --timeouts`,
	Args: cobra.ExactArgs(1),
	RunE: runTurns,
}

func init() {
	turnsCmd.Flags().StringVar(&flagTurnsAgent, "agent", "", "Only show this agent")
	turnsCmd.Flags().BoolVar(&flagTimeoutsOnly, "timeouts", false, "Only show timed out moves")
}

func runTurns(cmd *cobra.Command, args []string) error {
	_, _, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	matchID := args[0]

	// Fail with not found rather than an empty log.
	if _, err := store.MatchByID(ctx, matchID); err != nil {
		return err
	}
	turns, err := store.AgentTurns(ctx, matchID)
	if err != nil {
		return err
	}

	t := newTable("Turn", "Agent", "Move", "Latency", "Timed out", "Shout")
	shown, timeouts := 0, 0
	for _, at := range turns {
		if flagTurnsAgent != "" && at.AgentID != flagTurnsAgent {
			continue
		}
		if flagTimeoutsOnly && !at.TimedOut {
			continue
		}

		latency := "-"
		if at.LatencyMeasured {
			latency = strconv.FormatInt(at.LatencyMS, 10) + "ms"
		}
		timedOut := ""
		if at.TimedOut {
			timedOut = "yes"
			timeouts++
		}
		t.Row(strconv.Itoa(at.Turn), at.AgentID, at.Move, latency, timedOut, at.Shout)
		shown++
	}

	if shown == 0 {
		fmt.Println("No moves recorded.")
		return nil
	}
	fmt.Println(t)
	fmt.Println(dimStyle.Render(fmt.Sprintf("%s moves, %s timed out", humanize.Comma(int64(shown)), humanize.Comma(int64(timeouts)))))
	return nil
}
