package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/snake-arena/internal/frame"
)

const (
	defaultTickRate = 8
	maxTickRate     = 30
	eventBuffer     = 64
	panelWidth      = 40
)

// WatchOptions configures a WatchModel.
type WatchOptions struct {
	From        int
	TickRate    int // Frames shown per second
	BoardWidth  int // Inferred from the frames when zero
	BoardHeight int
	Title       string
	Renderer    *lipgloss.Renderer
	// Embedded models report Back instead of quitting the program.
	Embedded bool
}

// feedDoneMsg reports that the feed goroutine returned.
type feedDoneMsg struct {
	err error
}

// WatchModel is the Bubble Tea model that plays a match from a feed.
type WatchModel struct {
	matchID string
	feed    Feed
	opts    WatchOptions
	viewer  uint64

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	frames   []*frame.Frame
	cursor   int
	paused   bool
	tickRate int
	ended    bool
	status   string
	errText  string

	canvas *Canvas
	keys   WatchKeyMap
	help   help.Model
	width  int
	height int

	quitting bool
	back     bool
}

// NewWatchModel creates a viewer for matchID. The feed starts with Init and
// stops when the viewer quits or ctx is done.
func NewWatchModel(ctx context.Context, matchID string, feed Feed, opts WatchOptions) WatchModel {
	if opts.TickRate <= 0 {
		opts.TickRate = defaultTickRate
	}
	ctx, cancel := context.WithCancel(ctx)

	h := help.New()
	h.ShowAll = false

	return WatchModel{
		matchID:  matchID,
		feed:     feed,
		opts:     opts,
		viewer:   viewerSeq.Add(1),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, eventBuffer),
		tickRate: opts.TickRate,
		canvas:   NewCanvas(0, 0),
		keys:     DefaultWatchKeyMap(),
		help:     h,
	}
}

// Init starts the feed, the event pump and playback.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.runFeed(), m.waitForEvent(), playbackTick(m.viewer, m.tickRate))
}

func (m WatchModel) runFeed() tea.Cmd {
	return func() tea.Msg {
		return feedDoneMsg{err: m.feed.Run(m.ctx, m.matchID, m.opts.From, m.events)}
	}
}

// waitForEvent returns a command that waits for the next feed event.
func (m WatchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.events:
			return ev
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Update handles messages.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case Event:
		return m.handleEvent(msg)

	case feedDoneMsg:
		if msg.err != nil && m.errText == "" && !m.ended && !errors.Is(msg.err, context.Canceled) {
			m.errText = msg.err.Error()
		}
		return m, nil

	case TickMsg:
		if msg.viewer != m.viewer {
			return m, nil
		}
		if !m.paused && m.cursor < len(m.frames)-1 {
			m.cursor++
		}
		if m.quitting || m.back {
			return m, nil
		}
		return m, playbackTick(m.viewer, m.tickRate)
	}

	return m, nil
}

func (m WatchModel) handleEvent(ev Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case EventFrame:
		m.frames = append(m.frames, ev.Frame)
	case EventEnd:
		m.ended = true
		m.status = ev.Status
		return m, nil
	case EventError:
		m.errText = ev.Text
	}
	return m, m.waitForEvent()
}

// handleKey processes keyboard input.
func (m WatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Back):
		m.cancel()
		m.back = true
		if m.opts.Embedded {
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused

	case key.Matches(msg, m.keys.Prev):
		m.paused = true
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Next):
		m.paused = true
		if m.cursor < len(m.frames)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Live):
		m.paused = false
		if len(m.frames) > 0 {
			m.cursor = len(m.frames) - 1
		}

	case key.Matches(msg, m.keys.Faster):
		m.tickRate = min(m.tickRate*2, maxTickRate)

	case key.Matches(msg, m.keys.Slower):
		m.tickRate = max(m.tickRate/2, 1)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// Current returns the frame on screen, or nil before the first one arrives.
func (m WatchModel) Current() *frame.Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[m.cursor]
}

// IsQuitting returns true if user requested to quit entirely.
func (m WatchModel) IsQuitting() bool {
	return m.quitting
}

// BackRequested returns true if user asked to leave the viewer.
func (m WatchModel) BackRequested() bool {
	return m.back
}

// Ended reports whether the match is over and its final status.
func (m WatchModel) Ended() (bool, string) {
	return m.ended, m.status
}

// boardSize returns the configured board size or the smallest one that
// holds every point seen so far.
func (m WatchModel) boardSize() (int, int) {
	if m.opts.BoardWidth > 0 && m.opts.BoardHeight > 0 {
		return m.opts.BoardWidth, m.opts.BoardHeight
	}
	w, h := 7, 7
	grow := func(c frame.Coord) {
		w = max(w, c.X+1)
		h = max(h, c.Y+1)
	}
	for _, f := range m.frames {
		for _, s := range f.Snakes {
			for _, c := range s.Body {
				grow(c)
			}
		}
		for _, c := range f.Food {
			grow(c)
		}
		for _, c := range f.Hazards {
			grow(c)
		}
	}
	return w, h
}

// View renders the viewer.
func (m WatchModel) View() string {
	if m.quitting || m.back {
		return ""
	}
	r := m.opts.Renderer
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}

	cur := m.Current()
	bw, bh := m.boardSize()
	DrawBoard(m.canvas, cur, bw, bh)

	var b strings.Builder
	b.WriteString(m.header(r, cur))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.canvas.Render(r),
		"  ",
		m.panel(r, cur),
	))
	b.WriteString("\n")

	if m.errText != "" {
		b.WriteString(r.NewStyle().Foreground(lipgloss.Color("9")).Render(m.errText))
		b.WriteString("\n")
	}
	b.WriteString(r.NewStyle().Foreground(lipgloss.Color("241")).Render(m.help.View(m.keys)))
	return b.String()
}

func (m WatchModel) header(r *lipgloss.Renderer, cur *frame.Frame) string {
	title := m.opts.Title
	if title == "" {
		title = "match " + m.matchID
	}

	turn := "waiting for frames"
	if cur != nil {
		turn = fmt.Sprintf("turn %d", cur.Turn)
		if last := m.frames[len(m.frames)-1]; last.Turn != cur.Turn {
			turn += fmt.Sprintf(" of %d", last.Turn)
		}
	}

	state := "live"
	switch {
	case m.ended && m.cursor == len(m.frames)-1:
		state = m.status
		if state == "" {
			state = "finished"
		}
	case m.paused:
		state = "paused"
	case m.ended:
		state = "replay"
	}

	titleStyle := r.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	dim := r.NewStyle().Foreground(lipgloss.Color("245"))
	return titleStyle.Render(title) + dim.Render(fmt.Sprintf("  %s · %s · %d fps", turn, state, m.tickRate))
}

// panel lists every snake with its vitals, living ones first.
func (m WatchModel) panel(r *lipgloss.Renderer, cur *frame.Frame) string {
	box := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(panelWidth).
		Padding(0, 1)
	if cur == nil {
		return box.Render(r.NewStyle().Italic(true).Foreground(lipgloss.Color("241")).Render("No frames yet."))
	}

	dim := r.NewStyle().Foreground(lipgloss.Color("241"))
	var lines []string
	var shouts []string
	add := func(s frame.Snake) {
		name := truncate(s.Name, 14)
		nameStyle := r.NewStyle().Foreground(lipgloss.Color(s.Color)).Bold(true)
		if s.Death != nil {
			lines = append(lines,
				nameStyle.Strikethrough(true).Render(fmt.Sprintf("%-14s", name))+
					dim.Render(fmt.Sprintf(" %s t%d", s.Death.Cause, s.Death.Turn)))
			return
		}
		lines = append(lines, nameStyle.Render(fmt.Sprintf("%-14s", name))+
			fmt.Sprintf(" len %-3d hp %-3d %4sms", len(s.Body), s.Health, s.Latency))
		if s.Shout != "" {
			shouts = append(shouts, nameStyle.Render(truncate(s.Name, 10)+": ")+truncate(s.Shout, panelWidth-14))
		}
	}
	for _, s := range cur.Snakes {
		if s.Death == nil {
			add(s)
		}
	}
	for _, s := range cur.Snakes {
		if s.Death != nil {
			add(s)
		}
	}

	body := strings.Join(lines, "\n")
	if len(shouts) > 0 {
		body += "\n\n" + strings.Join(shouts, "\n")
	}
	body += "\n\n" + dim.Render(fmt.Sprintf("food %d · hazards %d", len(cur.Food), len(cur.Hazards)))
	return box.Render(body)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}

// RunWatch runs the viewer as a standalone program.
func RunWatch(ctx context.Context, matchID string, feed Feed, opts WatchOptions) error {
	model := NewWatchModel(ctx, matchID, feed, opts)
	defer model.cancel()

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
