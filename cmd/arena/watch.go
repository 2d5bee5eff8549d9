package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/snake-arena/internal/platform/tui"
	"github.com/vovakirdan/snake-arena/internal/spectator"
)

var (
	flagServer string
	flagFrom   int
	flagFPS    int
)

var watchCmd = &cobra.Command{
	Use:   "watch <match-id>",
	Short: "Watch a match in the terminal",
	Long: `Play a match in the terminal.

With --server the match is followed live from a running arena server and
the viewer reconnects if it falls behind. Without it the match is replayed
from the local database.

Controls:
  Space/P    - Pause
  Left/Right - Step one turn
  G/End      - Jump to the latest turn
  +/-        - Change playback speed
  Q/Ctrl+C   - Quit

Examples:
  arena watch 3f2c9a1e-...
  arena watch 3f2c9a1e-... --server http://localhost:8080
  arena watch 3f2c9a1e-... --from 120 --fps 4`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&flagServer, "server", "s", "", "Arena server URL to follow live")
	watchCmd.Flags().IntVar(&flagFrom, "from", 0, "First turn to show")
	watchCmd.Flags().IntVar(&flagFPS, "fps", 8, "Turns shown per second")
}

func runWatch(cmd *cobra.Command, args []string) error {
	matchID := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := tui.WatchOptions{
		From:     flagFrom,
		TickRate: flagFPS,
		Title:    "match " + shortMatchID(matchID),
	}

	if flagServer != "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		info, err := fetchGameInfo(ctx, flagServer, matchID)
		if err != nil {
			return err
		}
		opts.BoardWidth, opts.BoardHeight = info.Width, info.Height
		opts.Title += " · " + info.RulesetName

		feed := tui.WSFeed{BaseURL: flagServer, Logger: logger.WithPrefix("watch")}
		return tui.RunWatch(ctx, matchID, feed, opts)
	}

	_, logger, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.MatchByID(ctx, matchID)
	if err != nil {
		return err
	}
	opts.BoardWidth, opts.BoardHeight = info.Width, info.Height
	opts.Title += " · " + rulesetTitle(info.Ruleset)

	streamer := spectator.NewStreamer(store, nil, logger.WithPrefix("watch"))
	return tui.RunWatch(ctx, matchID, tui.StreamFeed{Streamer: streamer}, opts)
}

// fetchGameInfo asks a server for the board of a match.
func fetchGameInfo(ctx context.Context, server, matchID string) (spectator.GameInfo, error) {
	var info spectator.GameInfo

	endpoint := strings.TrimRight(server, "/") + "/api/games/" + url.PathEscape(matchID)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return info, fmt.Errorf("invalid server address: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return info, fmt.Errorf("cannot reach %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return info, fmt.Errorf("match %s not found on %s", matchID, server)
	}
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("server returned %s", resp.Status)
	}

	var body struct {
		Game spectator.GameInfo `json:"Game"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return info, fmt.Errorf("cannot decode match info: %w", err)
	}
	return body.Game, nil
}
