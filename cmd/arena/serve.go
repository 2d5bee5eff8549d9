package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/snake-arena/internal/agent"
	"github.com/vovakirdan/snake-arena/internal/broadcast"
	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/platform/tui"
	"github.com/vovakirdan/snake-arena/internal/spectator"
)

var (
	flagAddr        string
	flagSSHAddr     string
	flagHostKey     string
	flagNoSSH       bool
	flagIdleTimeout int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the match server",
	Long: `Start the arena server. It accepts matches over HTTP, runs them
concurrently and streams them to spectators.

HTTP API:
  GET  /api/games               - Recent matches
  POST /api/games               - Start a match
  GET  /api/games/{id}          - Match info
  GET  /api/games/{id}/events   - WebSocket frame stream (?from=<turn>)

The SSH server shows the same matches in the terminal:
  ssh localhost -p 2222               # Browse matches
  ssh localhost -p 2222 <match-id>    # Watch one match

Host key handling:
  - If --host-key is provided, uses that key file
  - Otherwise, auto-generates a key at ~/.arena/ssh_host_key

Examples:
  arena serve
  arena serve --addr :9000 --ssh :2200
  arena serve --no-ssh --db ./arena.db`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (default from config)")
	serveCmd.Flags().StringVar(&flagSSHAddr, "ssh", "", "SSH listen address (default from config)")
	serveCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to host key file (auto-generated if not specified)")
	serveCmd.Flags().BoolVar(&flagNoSSH, "no-ssh", false, "Do not start the SSH server")
	serveCmd.Flags().IntVar(&flagIdleTimeout, "idle-timeout", 30, "SSH idle timeout in minutes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	if flagSSHAddr != "" {
		cfg.Server.SSHAddr = flagSSHAddr
	}
	if flagHostKey != "" {
		cfg.Server.HostKeyPath = flagHostKey
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := broadcast.NewHub(cfg.Broadcast.Capacity, logger.WithPrefix("hub"))
	gateway := agent.NewGateway(nil, logger.WithPrefix("agents"))
	coordinator := match.NewCoordinator(
		match.CoordinatorConfig{MaxConcurrent: cfg.Server.MaxConcurrent},
		store, gateway, hub, logger.WithPrefix("match"),
	)
	coordinator.SetOnComplete(func(matchID string, res *match.Result, err error) {
		if err != nil {
			return
		}
		if winner, ok := res.Winner(); ok {
			logger.Info("match complete", "match", matchID, "turns", res.FinalTurn, "winner", winner.Name)
		}
	})

	api := spectator.NewServer(store, hub, coordinator, spectator.Options{
		Defaults:       cfg.MatchDefaults(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger.WithPrefix("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := api.ListenAndServe(gctx, cfg.Server.Addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if !flagNoSSH {
		sshServer, err := tui.NewSSHServer(tui.SSHServerConfig{
			Address:     cfg.Server.SSHAddr,
			HostKeyPath: cfg.Server.HostKeyPath,
			IdleTimeout: time.Duration(flagIdleTimeout) * time.Minute,
		}, store, spectator.NewStreamer(store, hub, logger.WithPrefix("ssh")), logger.WithPrefix("ssh"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := sshServer.ListenAndServe(gctx); err != nil {
				return fmt.Errorf("ssh server: %w", err)
			}
			return nil
		})
	}

	logger.Info("arena ready", "http", cfg.Server.Addr, "ssh", sshStatus(cfg.Server.SSHAddr), "db", cfg.Storage.Path)

	runErr := g.Wait()

	logger.Info("stopping matches", "active", coordinator.ActiveCount())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("matches did not stop in time", "err", err)
	}
	return runErr
}

func sshStatus(addr string) string {
	if flagNoSSH {
		return "off"
	}
	return addr
}
