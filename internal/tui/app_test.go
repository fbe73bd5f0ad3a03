package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verifix-dev/verifix/internal/driver"
	"github.com/verifix-dev/verifix/pkg/models"
)

func TestApp_TracksEvents(t *testing.T) {
	app := New("stack.rs", 5)

	model, _ := app.Update(EventMsg{Event: driver.Event{
		State:   driver.StateRunning,
		Round:   1,
		Score:   models.NewScore(3, 2),
		Message: "round 1: 3 verified, 2 errors",
	}})
	app = model.(*App)

	view := app.View()
	for _, want := range []string{"stack.rs", "3 verified, 2 errors", "round 2/5"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestApp_DoneQuits(t *testing.T) {
	app := New("stack.rs", 5)

	report := &driver.RunReport{
		State:      driver.StateVerified,
		FinalScore: models.NewScore(5, 0),
	}
	model, cmd := app.Update(DoneMsg{Report: report})
	app = model.(*App)

	if cmd == nil {
		t.Fatal("DoneMsg did not quit")
	}
	if app.Report() != report {
		t.Error("report not retained")
	}
	if !strings.Contains(app.View(), "VERIFIED") {
		t.Errorf("view missing terminal state:\n%s", app.View())
	}
}

func TestApp_KeyQuit(t *testing.T) {
	app := New("stack.rs", 5)

	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	app = model.(*App)

	if cmd == nil || !app.Quit() {
		t.Error("q did not quit the display")
	}
}
