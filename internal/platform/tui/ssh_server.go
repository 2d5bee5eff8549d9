package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"

	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/spectator"
)

// SSHServerConfig holds configuration for the SSH server.
type SSHServerConfig struct {
	// Address is the host:port to listen on (e.g., ":2222").
	Address string

	// HostKeyPath is the path to the host key file.
	// If empty, a key will be auto-generated at ~/.arena/ssh_host_key.
	HostKeyPath string

	// IdleTimeout is how long to wait before closing idle connections.
	IdleTimeout time.Duration
}

// SSHCatalog is what SSH sessions read: the match list and single matches.
type SSHCatalog interface {
	MatchCatalog
	MatchByID(ctx context.Context, matchID string) (*match.Info, error)
}

// SSHServer serves the spectator TUI over SSH with Wish.
type SSHServer struct {
	config   SSHServerConfig
	server   *ssh.Server
	catalog  SSHCatalog
	streamer *spectator.Streamer
	logger   *log.Logger
}

// NewSSHServer creates a new SSH server. Sessions browse catalog and play
// matches through streamer.
func NewSSHServer(cfg SSHServerConfig, catalog SSHCatalog, streamer *spectator.Streamer, logger *log.Logger) (*SSHServer, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}

	srv := &SSHServer{
		config:   cfg,
		catalog:  catalog,
		streamer: streamer,
		logger:   logger,
	}

	hostKeyPath := cfg.HostKeyPath
	if hostKeyPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot get home directory: %w", err)
		}
		hostKeyPath = filepath.Join(home, ".arena", "ssh_host_key")
	} else if strings.HasPrefix(hostKeyPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot get home directory: %w", err)
		}
		hostKeyPath = filepath.Join(home, hostKeyPath[2:])
	}

	if err := os.MkdirAll(filepath.Dir(hostKeyPath), 0o700); err != nil {
		return nil, fmt.Errorf("cannot create host key directory: %w", err)
	}

	server, err := wish.NewServer(
		wish.WithAddress(cfg.Address),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(
			bubbletea.Middleware(srv.teaHandler),
			srv.loggingMiddleware,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create SSH server: %w", err)
	}

	srv.server = server
	return srv, nil
}

// teaHandler creates a Bubble Tea program for each SSH session. A match id
// given as the session command opens that match directly.
func (s *SSHServer) teaHandler(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, ok := sess.Pty()
	if !ok {
		s.logger.Warn("no PTY requested", "user", sess.User())
		return nil, nil
	}

	renderer := bubbletea.MakeRenderer(sess)
	model := NewSessionModel(sess.Context(), s.catalog, StreamFeed{Streamer: s.streamer}, renderer,
		pty.Window.Width, pty.Window.Height)

	if args := sess.Command(); len(args) > 0 {
		model = model.Open(args[0])
	}

	return model, []tea.ProgramOption{
		tea.WithAltScreen(),
	}
}

// loggingMiddleware logs SSH session events.
func (s *SSHServer) loggingMiddleware(next ssh.Handler) ssh.Handler {
	return func(sess ssh.Session) {
		start := time.Now()
		s.logger.Info("session started",
			"user", sess.User(),
			"remote", sess.RemoteAddr().String(),
			"command", strings.Join(sess.Command(), " "),
		)
		next(sess)
		s.logger.Info("session ended",
			"user", sess.User(),
			"remote", sess.RemoteAddr().String(),
			"duration", time.Since(start).Round(time.Second),
		)
	}
}

// ListenAndServe starts the SSH server and blocks until ctx is done.
func (s *SSHServer) ListenAndServe(ctx context.Context) error {
	s.logger.Info("starting SSH server", "address", s.config.Address)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, ssh.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down SSH server")
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *SSHServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr returns the server's listen address string.
func (s *SSHServer) Addr() string {
	return s.config.Address
}

// SessionModel manages the spectator session flow: list -> watch -> list.
// This is the top-level model used for SSH sessions.
type SessionModel struct {
	ctx      context.Context
	catalog  SSHCatalog
	feed     Feed
	renderer *lipgloss.Renderer
	width    int
	height   int

	list     MatchListModel
	watch    *WatchModel
	direct   bool // Opened with a match id; leaving the viewer ends the session
	quitting bool
}

// NewSessionModel creates a new session model starting at the match list.
func NewSessionModel(ctx context.Context, catalog SSHCatalog, feed Feed, renderer *lipgloss.Renderer, width, height int) SessionModel {
	return SessionModel{
		ctx:      ctx,
		catalog:  catalog,
		feed:     feed,
		renderer: renderer,
		width:    width,
		height:   height,
		list:     newEmbeddedList(catalog, renderer, width, height),
	}
}

func newEmbeddedList(catalog SSHCatalog, renderer *lipgloss.Renderer, width, height int) MatchListModel {
	return NewMatchListModel(catalog, width, height, MatchListOptions{Renderer: renderer, Embedded: true})
}

// Open starts the session in the viewer for matchID.
func (m SessionModel) Open(matchID string) SessionModel {
	m.direct = true
	opts := WatchOptions{Renderer: m.renderer, Embedded: true}
	if info, err := m.catalog.MatchByID(m.ctx, matchID); err == nil {
		opts.BoardWidth, opts.BoardHeight = info.Width, info.Height
	}
	w := NewWatchModel(m.ctx, matchID, m.feed, opts)
	m.watch = &w
	return m
}

// Init initializes the session.
func (m SessionModel) Init() tea.Cmd {
	if m.watch != nil {
		return m.watch.Init()
	}
	return m.list.Init()
}

// Update handles messages for the session.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = wsm.Width
		m.height = wsm.Height
	}

	if m.watch != nil {
		return m.updateWatch(msg)
	}
	return m.updateList(msg)
}

// updateList handles updates when browsing.
func (m SessionModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	newList, cmd := m.list.Update(msg)
	if list, ok := newList.(MatchListModel); ok {
		m.list = list
	}

	if m.list.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}

	if id := m.list.Selected(); id != "" {
		opts := WatchOptions{Renderer: m.renderer, Embedded: true}
		if info, ok := m.list.SelectedInfo(); ok {
			opts.BoardWidth, opts.BoardHeight = info.Width, info.Height
		}
		m.list.ClearSelection()

		w := NewWatchModel(m.ctx, id, m.feed, opts)
		m.watch = &w
		return m, tea.Batch(m.watch.Init(), sizeCmd(m.width, m.height))
	}

	return m, cmd
}

// updateWatch handles updates when viewing a match.
func (m SessionModel) updateWatch(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := m.watch.Update(msg)
	if w, ok := newModel.(WatchModel); ok {
		m.watch = &w
	}

	if m.watch.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}

	if m.watch.BackRequested() {
		m.watch = nil
		if m.direct {
			m.quitting = true
			return m, tea.Quit
		}
		m.list = newEmbeddedList(m.catalog, m.renderer, m.width, m.height)
		return m, m.list.Init()
	}

	return m, cmd
}

// View renders the current view.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}
	if m.watch != nil {
		return m.watch.View()
	}
	return m.list.View()
}

// Watching reports the match currently on screen, if any.
func (m SessionModel) Watching() (string, bool) {
	if m.watch == nil {
		return "", false
	}
	return m.watch.matchID, true
}

func sizeCmd(width, height int) tea.Cmd {
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: width, Height: height}
	}
}
