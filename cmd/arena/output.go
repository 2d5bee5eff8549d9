package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/vovakirdan/snake-arena/internal/match"
	"github.com/vovakirdan/snake-arena/internal/rules"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	winnerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// stdoutIsTerminal reports whether output goes to a terminal rather than a
// pipe or file.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// terminalSize returns the terminal size, or 80x24 when unknown.
func terminalSize() (int, int) {
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		return w, h
	}
	return 80, 24
}

// newTable returns a table with a border on terminals and bare columns
// otherwise.
func newTable(headers ...string) *table.Table {
	border := lipgloss.RoundedBorder()
	if !stdoutIsTerminal() {
		border = lipgloss.HiddenBorder()
	}
	return table.New().
		Border(border).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func rulesetTitle(name string) string {
	rs, err := rules.ParseRuleset(name)
	if err != nil {
		return name
	}
	return rs.DisplayName()
}

// placementsTable renders placements best first.
func placementsTable(placements []match.Placement) *table.Table {
	t := newTable("#", "Agent", "Length", "Health", "Result")
	for _, p := range placements {
		result := "alive"
		if !p.Alive {
			result = fmt.Sprintf("%s on turn %d", p.Cause, p.EliminatedTurn)
			if p.EliminatedBy != "" {
				result += " by " + p.EliminatedBy
			}
		}
		t.Row(strconv.Itoa(p.Rank), p.Name, strconv.Itoa(p.Length), strconv.Itoa(p.Health), result)
	}
	return t
}

// printResult prints the outcome of a finished run.
func printResult(w io.Writer, spec match.Spec, res *match.Result) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Match %s", res.MatchID)))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%s · %dx%d · %d turns · %s",
		rulesetTitle(spec.Ruleset), spec.Width, spec.Height, res.FinalTurn, res.Elapsed.Round(time.Millisecond))))
	fmt.Fprintln(w)
	fmt.Fprintln(w, placementsTable(res.Placements))

	if winner, ok := res.Winner(); ok {
		fmt.Fprintln(w, winnerStyle.Render("Winner: "+winner.Name))
	} else {
		fmt.Fprintln(w, dimStyle.Render("No winner."))
	}
}
