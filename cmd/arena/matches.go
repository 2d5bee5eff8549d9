package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/snake-arena/internal/platform/tui"
	"github.com/vovakirdan/snake-arena/internal/spectator"
	"github.com/vovakirdan/snake-arena/internal/storage"
)

var (
	flagLimit       int
	flagInteractive bool
)

var matchesCmd = &cobra.Command{
	Use:   "matches [match-id]",
	Short: "List recent matches",
	Long: `List the most recent matches in the local database. With a match id,
show that match's placements instead.

Examples:
  arena matches
  arena matches --limit 50
  arena matches 3f2c9a1e-...
  arena matches --interactive    # Browse and replay in the terminal`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMatches,
}

func init() {
	matchesCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Number of matches to list")
	matchesCmd.Flags().BoolVarP(&flagInteractive, "interactive", "i", false, "Browse matches in a TUI")
}

func runMatches(cmd *cobra.Command, args []string) error {
	_, logger, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()

	if len(args) == 1 {
		return showMatch(ctx, store, args[0])
	}

	if flagInteractive {
		for {
			width, height := terminalSize()
			info, ok, err := tui.RunMatchList(store, width, height)
			if err != nil || !ok {
				return err
			}

			streamer := spectator.NewStreamer(store, nil, logger.WithPrefix("watch"))
			err = tui.RunWatch(ctx, info.ID, tui.StreamFeed{Streamer: streamer}, tui.WatchOptions{
				BoardWidth:  info.Width,
				BoardHeight: info.Height,
				Title:       "match " + shortMatchID(info.ID) + " · " + rulesetTitle(info.Ruleset),
			})
			if err != nil {
				return err
			}
		}
	}

	matches, err := store.RecentMatches(ctx, flagLimit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No matches recorded yet.")
		fmt.Println()
		fmt.Println("Run 'arena run --agent <url> --agent <url>' to play the first one!")
		return nil
	}

	t := newTable("Match", "Ruleset", "Board", "Agents", "Status", "Created")
	for _, m := range matches {
		t.Row(
			m.ID,
			rulesetTitle(m.Ruleset),
			fmt.Sprintf("%dx%d", m.Width, m.Height),
			strconv.Itoa(len(m.Agents)),
			string(m.Status),
			humanize.Time(m.CreatedAt),
		)
	}
	fmt.Println(t)
	return nil
}

// showMatch prints one match with its placements.
func showMatch(ctx context.Context, store *storage.Store, matchID string) error {
	info, err := store.MatchByID(ctx, matchID)
	if err != nil {
		return err
	}
	placements, err := store.Placements(ctx, matchID)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Match " + info.ID))
	fmt.Println(dimStyle.Render(fmt.Sprintf("%s · %dx%d · %s · seed %d · created %s",
		rulesetTitle(info.Ruleset), info.Width, info.Height, info.Status, info.Seed, humanize.Time(info.CreatedAt))))
	fmt.Println()

	if len(placements) == 0 {
		fmt.Println("No placements yet.")
		return nil
	}
	fmt.Println(placementsTable(placements))
	return nil
}
