package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/rules"
)

// Match list layout constants
const (
	minWidthForSidebar = 100 // Minimum width to show the placements sidebar
	sidebarWidth       = 30  // Width of placements sidebar
	defaultListLimit   = 50  // Matches loaded per refresh
)

// MatchCatalog lists stored matches and their results.
type MatchCatalog interface {
	RecentMatches(ctx context.Context, limit int) ([]match.Info, error)
	Placements(ctx context.Context, matchID string) ([]match.Placement, error)
}

// MatchListOptions configures a MatchListModel.
type MatchListOptions struct {
	Limit    int
	Renderer *lipgloss.Renderer
	// Embedded models report the selection instead of quitting the program.
	Embedded bool
}

type matchesLoadedMsg struct {
	matches []match.Info
	err     error
}

type placementsLoadedMsg struct {
	matchID    string
	placements []match.Placement
	err        error
}

// MatchListModel is the Bubble Tea model for browsing stored matches.
type MatchListModel struct {
	catalog    MatchCatalog
	opts       MatchListOptions
	matches    []match.Info
	placements map[string][]match.Placement
	loaded     bool
	err        error

	table       table.Model
	help        help.Model
	keys        MatchListKeyMap
	width       int
	height      int
	showSidebar bool

	selected string
	quitting bool
}

// NewMatchListModel creates a match browser. Matches load on Init.
func NewMatchListModel(catalog MatchCatalog, width, height int, opts MatchListOptions) MatchListModel {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	h := help.New()
	h.ShowAll = false

	m := MatchListModel{
		catalog:     catalog,
		opts:        opts,
		placements:  make(map[string][]match.Placement),
		keys:        DefaultMatchListKeyMap(),
		help:        h,
		width:       width,
		height:      height,
		showSidebar: width >= minWidthForSidebar,
	}
	m.table = m.createTable()
	return m
}

func (m MatchListModel) renderer() *lipgloss.Renderer {
	if m.opts.Renderer != nil {
		return m.opts.Renderer
	}
	return lipgloss.DefaultRenderer()
}

// createTable creates a new table with appropriate columns.
func (m *MatchListModel) createTable() table.Model {
	columns := []table.Column{
		{Title: "Match", Width: 10},
		{Title: "Ruleset", Width: 12},
		{Title: "Board", Width: 7},
		{Title: "Agents", Width: 6},
		{Title: "Status", Width: 9},
		{Title: "Created", Width: 16},
	}

	height := m.height - 8 // Leave room for header, help, and margins
	if height < 3 {
		height = 10
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	r := m.renderer()
	s := table.DefaultStyles()
	s.Header = r.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Cell = r.NewStyle().Padding(0, 1)
	s.Selected = r.NewStyle().
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

// updateTableRows updates the table with the loaded matches.
func (m *MatchListModel) updateTableRows() {
	rows := make([]table.Row, len(m.matches))
	for i, info := range m.matches {
		rows[i] = table.Row{
			shortID(info.ID),
			rulesetName(info.Ruleset),
			fmt.Sprintf("%dx%d", info.Width, info.Height),
			fmt.Sprintf("%d", len(info.Agents)),
			string(info.Status),
			humanize.Time(info.CreatedAt),
		}
	}
	m.table.SetRows(rows)
}

func (m MatchListModel) loadMatches() tea.Cmd {
	catalog, limit := m.catalog, m.opts.Limit
	return func() tea.Msg {
		matches, err := catalog.RecentMatches(context.Background(), limit)
		return matchesLoadedMsg{matches: matches, err: err}
	}
}

func (m MatchListModel) loadPlacements() tea.Cmd {
	id := m.highlighted()
	if id == "" {
		return nil
	}
	if _, ok := m.placements[id]; ok {
		return nil
	}
	catalog := m.catalog
	return func() tea.Msg {
		p, err := catalog.Placements(context.Background(), id)
		return placementsLoadedMsg{matchID: id, placements: p, err: err}
	}
}

func (m MatchListModel) highlighted() string {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.matches) {
		return ""
	}
	return m.matches[i].ID
}

// Init loads the match list.
func (m MatchListModel) Init() tea.Cmd {
	return m.loadMatches()
}

// Update handles messages for the match list.
func (m MatchListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Refresh):
			m.placements = make(map[string][]match.Placement)
			return m, m.loadMatches()

		case key.Matches(msg, m.keys.Watch):
			if id := m.highlighted(); id != "" {
				m.selected = id
				if !m.opts.Embedded {
					return m, tea.Quit
				}
			}
			return m, nil

		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			m.table, cmd = m.table.Update(msg)
			return m, tea.Batch(cmd, m.loadPlacements())
		}

	case matchesLoadedMsg:
		m.loaded = true
		m.err = msg.err
		m.matches = msg.matches
		m.updateTableRows()
		if m.table.Cursor() >= len(m.matches) {
			m.table.GotoTop()
		}
		return m, m.loadPlacements()

	case placementsLoadedMsg:
		if msg.err == nil {
			m.placements[msg.matchID] = msg.placements
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.showSidebar = m.width >= minWidthForSidebar
		cursor := m.table.Cursor()
		m.table = m.createTable()
		m.updateTableRows()
		m.table.SetCursor(cursor)
		m.help.Width = msg.Width
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the match list.
func (m MatchListModel) View() string {
	if m.quitting {
		return ""
	}
	r := m.renderer()

	var b strings.Builder

	titleStyle := r.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		MarginBottom(1)
	b.WriteString(titleStyle.Render(centerText("ARENA MATCHES", m.width)))
	b.WriteString("\n\n")

	tableStyle := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	content := tableStyle.Render(m.renderTableContent(r))

	if m.showSidebar {
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, "  ", m.renderSidebar(r))
	}
	b.WriteString(content)

	b.WriteString("\n")
	helpStyle := r.NewStyle().Foreground(lipgloss.Color("241"))
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

// renderTableContent renders the table or an empty message.
func (m MatchListModel) renderTableContent(r *lipgloss.Renderer) string {
	emptyStyle := r.NewStyle().
		Foreground(lipgloss.Color("241")).
		Italic(true).
		Padding(2, 4)

	switch {
	case m.err != nil:
		return emptyStyle.Foreground(lipgloss.Color("9")).Render("Cannot load matches:\n" + m.err.Error())
	case !m.loaded:
		return emptyStyle.Render("Loading matches...")
	case len(m.matches) == 0:
		return emptyStyle.Render("No matches recorded yet.\nRun one with `arena run`.")
	}
	return m.table.View()
}

// renderSidebar shows the placements of the highlighted match.
func (m MatchListModel) renderSidebar(r *lipgloss.Renderer) string {
	style := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(sidebarWidth).
		Padding(0, 1)

	var sb strings.Builder
	sb.WriteString("Placements\n")
	sb.WriteString(strings.Repeat("-", sidebarWidth-4))
	sb.WriteString("\n")

	placements, ok := m.placements[m.highlighted()]
	switch {
	case !ok:
		sb.WriteString(r.NewStyle().Foreground(lipgloss.Color("241")).Render("..."))
	case len(placements) == 0:
		sb.WriteString(r.NewStyle().Foreground(lipgloss.Color("241")).Render("No result yet"))
	default:
		for _, p := range placements {
			line := fmt.Sprintf("%2d. %s", p.Rank, truncate(p.Name, sidebarWidth-10))
			style := r.NewStyle()
			if p.Rank == 1 {
				style = style.Bold(true).Foreground(lipgloss.Color("229"))
			}
			if !p.Alive {
				line += r.NewStyle().Foreground(lipgloss.Color("241")).Render(" " + p.Cause)
			}
			sb.WriteString(style.Render(line))
			sb.WriteString("\n")
		}
	}
	return style.Render(sb.String())
}

// Selected returns the match chosen with enter, if any.
func (m MatchListModel) Selected() string {
	return m.selected
}

// ClearSelection resets the chosen match, used when returning from a viewer.
func (m *MatchListModel) ClearSelection() {
	m.selected = ""
}

// SelectedInfo returns the stored info of the chosen match.
func (m MatchListModel) SelectedInfo() (match.Info, bool) {
	for _, info := range m.matches {
		if info.ID == m.selected {
			return info, true
		}
	}
	return match.Info{}, false
}

// IsQuitting returns true if user wants to quit entirely.
func (m MatchListModel) IsQuitting() bool {
	return m.quitting
}

// RunMatchList runs the match browser and returns the chosen match. ok is
// false when the user quit without choosing.
func RunMatchList(catalog MatchCatalog, width, height int) (info match.Info, ok bool, err error) {
	model := NewMatchListModel(catalog, width, height, MatchListOptions{})

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	finalModel, err := p.Run()
	if err != nil {
		return match.Info{}, false, err
	}

	m, isList := finalModel.(MatchListModel)
	if !isList || m.Selected() == "" {
		return match.Info{}, false, nil
	}
	info, ok = m.SelectedInfo()
	return info, ok, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func rulesetName(name string) string {
	rs, err := rules.ParseRuleset(name)
	if err != nil {
		return name
	}
	return rs.DisplayName()
}

func centerText(text string, width int) string {
	textWidth := lipgloss.Width(text)
	if width <= textWidth {
		return text
	}
	return strings.Repeat(" ", (width-textWidth)/2) + text
}
