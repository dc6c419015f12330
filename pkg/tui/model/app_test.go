package model

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/rtilog/pkg/core"
)

func update(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	m, _ := a.Update(msg)
	return m.(App)
}

func TestStatusAndLinesRender(t *testing.T) {
	a := New("/nonexistent.sock")
	a = update(t, a, tea.WindowSizeMsg{Width: 120, Height: 30})
	a = update(t, a, statusUpdateMsg(core.Status{BootID: "0123456789", FileOpen: true, Path: "/var/log/txt.log", Index: 3}))
	a = update(t, a, logLineMsg(core.LogLine{Seq: 2, Line: "00002 | 03-02-2024 | 18:30:00 |  Weather | rain\n"}))

	view := a.View()
	for _, want := range []string{"00003", "/var/log/txt.log", "01234567", "Weather | rain"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestBootIDChangeClearsLines(t *testing.T) {
	a := New("/nonexistent.sock")
	a = update(t, a, statusUpdateMsg(core.Status{BootID: "a"}))
	a = update(t, a, logLineMsg(core.LogLine{Line: "x"}))
	a = update(t, a, statusUpdateMsg(core.Status{BootID: "b"}))

	if len(a.logLines) != 0 {
		t.Errorf("expected lines cleared, got %d", len(a.logLines))
	}
	if !strings.Contains(a.statusMsg, "restarted") {
		t.Errorf("unexpected status message %q", a.statusMsg)
	}
}

func TestPausedDropsLines(t *testing.T) {
	a := New("/nonexistent.sock")
	a = update(t, a, tea.KeyMsg{Type: tea.KeyCtrlP})
	a = update(t, a, logLineMsg(core.LogLine{Line: "x"}))
	if len(a.logLines) != 0 {
		t.Error("expected no lines while paused")
	}
}

func TestLineBacklogBounded(t *testing.T) {
	a := New("/nonexistent.sock")
	for i := 0; i < maxLines+10; i++ {
		a = update(t, a, logLineMsg(core.LogLine{Seq: uint32(i)}))
	}
	if len(a.logLines) != maxLines {
		t.Fatalf("expected %d lines, got %d", maxLines, len(a.logLines))
	}
	if a.logLines[0].Seq != 10 {
		t.Errorf("expected oldest seq 10, got %d", a.logLines[0].Seq)
	}
}

func TestComposerCyclesCategories(t *testing.T) {
	c := NewComposer()
	if c.Category() != core.Categories()[0] {
		t.Fatalf("unexpected initial category %s", c.Category())
	}
	c.HandleKey(tea.KeyMsg{Type: tea.KeyShiftTab})
	cats := core.Categories()
	if c.Category() != cats[len(cats)-1] {
		t.Errorf("shift+tab: got %s", c.Category())
	}
	c.HandleKey(tea.KeyMsg{Type: tea.KeyTab})
	c.HandleKey(tea.KeyMsg{Type: tea.KeyTab})
	if c.Category() != cats[1] {
		t.Errorf("tab: got %s", c.Category())
	}
}

func TestSubmitWithoutConnection(t *testing.T) {
	a := New("/nonexistent.sock")
	a = update(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("door open")})
	if got := a.composer.Payload(); got != "door open" {
		t.Fatalf("payload: got %q", got)
	}
	a = update(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	if a.statusMsg != "not connected" {
		t.Errorf("unexpected status message %q", a.statusMsg)
	}
}
