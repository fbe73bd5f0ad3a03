// Package tui renders live repair progress: the current round, the working
// score, and a scrolling log of repair events.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verifix-dev/verifix/internal/driver"
	"github.com/verifix-dev/verifix/pkg/models"
)

// maxLogLines bounds the scrolling event log.
const maxLogLines = 12

// EventMsg delivers a driver event to the TUI.
type EventMsg struct {
	Event driver.Event
}

// DoneMsg signals that the run has finished.
type DoneMsg struct {
	Report *driver.RunReport
}

// App is the bubbletea model for a repair run.
type App struct {
	artifact  string
	maxRounds int

	state driver.State
	round int
	score models.Score
	log   []string

	report   *driver.RunReport
	spinner  spinner.Model
	width    int
	quitting bool

	headerStyle lipgloss.Style
	scoreStyle  lipgloss.Style
	badStyle    lipgloss.Style
	dimStyle    lipgloss.Style
	doneStyle   lipgloss.Style
}

// New creates an App for repairing the named artifact.
func New(artifact string, maxRounds int) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &App{
		artifact:  artifact,
		maxRounds: maxRounds,
		state:     driver.StateRunning,
		spinner:   sp,

		headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
		scoreStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		badStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		dimStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		doneStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("28")),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)

	case DoneMsg:
		a.report = msg.Report
		a.state = msg.Report.State
		a.score = msg.Report.FinalScore
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) apply(e driver.Event) {
	a.state = e.State
	if e.Round > a.round {
		a.round = e.Round
	}
	a.score = e.Score
	if e.Message != "" {
		a.log = append(a.log, e.Message)
		if len(a.log) > maxLogLines {
			a.log = a.log[len(a.log)-maxLogLines:]
		}
	}
}

// Report returns the final run report once a DoneMsg has arrived.
func (a *App) Report() *driver.RunReport {
	return a.report
}

// Quit reports whether the user aborted the display.
func (a *App) Quit() bool {
	return a.quitting
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(a.headerStyle.Render("verifix") + " " + a.dimStyle.Render(a.artifact) + "\n\n")

	if a.state == driver.StateRunning {
		fmt.Fprintf(&b, "%s round %d/%d  score: %s\n",
			a.spinner.View(), a.round+1, a.maxRounds, a.renderScore())
	} else {
		fmt.Fprintf(&b, "%s after %d rounds  score: %s\n",
			a.doneStyle.Render(string(a.state)), a.round, a.renderScore())
	}

	if len(a.log) > 0 {
		b.WriteString("\n")
		for _, line := range a.log {
			b.WriteString(a.dimStyle.Render("  "+line) + "\n")
		}
	}

	b.WriteString("\n" + a.dimStyle.Render("q to quit") + "\n")
	return b.String()
}

func (a *App) renderScore() string {
	if a.score.CompilationError {
		return a.badStyle.Render(a.score.String())
	}
	return a.scoreStyle.Render(a.score.String())
}
