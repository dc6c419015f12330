package model

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/rtilog/pkg/core"
	"github.com/modoterra/rtilog/pkg/txtlog"
)

// Composer is the inline record entry line: a category selector and a
// payload input.
type Composer struct {
	categories []core.Category
	catIdx     int
	input      textinput.Model
}

// NewComposer creates a composer focused on the payload input.
func NewComposer() *Composer {
	ti := textinput.New()
	ti.Placeholder = "payload..."
	ti.CharLimit = txtlog.MaxPayload
	ti.Prompt = "> "
	ti.Focus()
	return &Composer{categories: core.Categories(), input: ti}
}

// Category returns the selected category.
func (c *Composer) Category() core.Category {
	return c.categories[c.catIdx]
}

// NextCategory cycles the selection forward (delta 1) or backward (delta -1).
func (c *Composer) NextCategory(delta int) {
	n := len(c.categories)
	c.catIdx = ((c.catIdx+delta)%n + n) % n
}

// Payload returns the trimmed input.
func (c *Composer) Payload() string {
	return strings.TrimSpace(c.input.Value())
}

// Reset clears the input after a submission.
func (c *Composer) Reset() {
	c.input.SetValue("")
}

// HandleKey routes a key to the composer. submit is true when enter was
// pressed with a non-empty payload.
func (c *Composer) HandleKey(msg tea.KeyMsg) (submit bool, cmd tea.Cmd) {
	switch msg.String() {
	case "tab":
		c.NextCategory(1)
		return false, nil
	case "shift+tab":
		c.NextCategory(-1)
		return false, nil
	case "enter":
		return c.Payload() != "", nil
	}
	c.input, cmd = c.input.Update(msg)
	return false, cmd
}

// View renders the composer line.
func (c *Composer) View() string {
	label := categoryStyle.Render("[" + string(c.Category()) + "]")
	return label + " " + c.input.View()
}
