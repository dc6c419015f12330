package model

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/rtilog/pkg/core"
	"github.com/modoterra/rtilog/pkg/transport/uds"
)

// maxLines bounds the log.line backlog kept for display.
const maxLines = 500

// App is the root Bubble Tea model for `rtilog watch`.
type App struct {
	// Connection
	client     *uds.Client
	socketPath string
	connected  bool
	events     chan tea.Msg

	// State
	status    core.Status
	hasStatus bool
	logLines  []core.LogLine
	logPaused bool

	// UI
	composer *Composer
	width    int
	height   int

	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	return App{
		socketPath: socketPath,
		events:     make(chan tea.Msg, 64),
		composer:   NewComposer(),
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath, a.events),
		textinput.Blink,
		tea.SetWindowTitle("rtilog"),
	)
}

// connectedMsg indicates successful daemon connection.
type connectedMsg struct{ client *uds.Client }

// statusUpdateMsg carries a status snapshot, requested or pushed.
type statusUpdateMsg core.Status

// logLineMsg carries a log line pushed by the daemon.
type logLineMsg core.LogLine

// submittedMsg carries the index returned for a submission.
type submittedMsg struct {
	category core.Category
	index    string
}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

func connectCmd(socketPath string, events chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		client.OnEvent(func(m uds.Message) {
			var msg tea.Msg
			switch m.Method {
			case uds.EventStatusPush:
				var s core.Status
				if m.UnmarshalData(&s) != nil {
					return
				}
				msg = statusUpdateMsg(s)
			case uds.EventLogLine:
				var l core.LogLine
				if m.UnmarshalData(&l) != nil {
					return
				}
				msg = logLineMsg(l)
			default:
				return
			}
			// drop when the UI falls behind; the next push resyncs status
			select {
			case events <- msg:
			default:
			}
		})
		return connectedMsg{client}
	}
}

// waitForEvent delivers the next pushed event to Update.
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func fetchStatusCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodStatus, nil)
		if err != nil {
			return errorMsg{err}
		}
		var s core.Status
		if err := resp.UnmarshalData(&s); err != nil {
			return errorMsg{err}
		}
		return statusUpdateMsg(s)
	}
}

func submitCmd(client *uds.Client, cat core.Category, payload string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		idx, err := client.Command(ctx, cat.Command(), payload)
		if err != nil {
			return errorMsg{err}
		}
		return submittedMsg{category: cat, index: idx}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.connected = true
		a.statusMsg = "connected"
		return a, tea.Batch(fetchStatusCmd(a.client), waitForEvent(a.events))

	case statusUpdateMsg:
		if a.hasStatus && a.status.BootID != "" && msg.BootID != a.status.BootID {
			a.statusMsg = "daemon restarted, sequence reset"
			a.logLines = nil
		}
		a.status = core.Status(msg)
		a.hasStatus = true
		return a, a.nextEvent()

	case logLineMsg:
		if !a.logPaused {
			a.logLines = append(a.logLines, core.LogLine(msg))
			if len(a.logLines) > maxLines {
				a.logLines = a.logLines[len(a.logLines)-maxLines:]
			}
		}
		return a, a.nextEvent()

	case submittedMsg:
		a.statusMsg = string(msg.category) + " logged, idx " + msg.index
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

// nextEvent keeps the event bridge running once connected.
func (a App) nextEvent() tea.Cmd {
	if !a.connected {
		return nil
	}
	return waitForEvent(a.events)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if a.client != nil {
			a.client.Close()
		}
		return a, tea.Quit
	case "ctrl+p":
		a.logPaused = !a.logPaused
		return a, nil
	case "ctrl+l":
		a.logLines = nil
		return a, nil
	}

	submit, cmd := a.composer.HandleKey(msg)
	if !submit {
		return a, cmd
	}
	if a.client == nil {
		a.statusMsg = "not connected"
		return a, nil
	}
	payload := a.composer.Payload()
	a.composer.Reset()
	return a, submitCmd(a.client, a.composer.Category(), payload)
}
