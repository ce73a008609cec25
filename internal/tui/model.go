package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vitaminmoo/z407-tool/internal/commands"
	"github.com/vitaminmoo/z407-tool/internal/protocol"
	"github.com/vitaminmoo/z407-tool/internal/session"
	"github.com/vitaminmoo/z407-tool/internal/util"
)

const (
	maxSteps = 50
	logLines = 12
)

// Model is the main Bubbletea model for the TUI.
type Model struct {
	env    commands.Env
	events chan tea.Msg

	// State
	cursor     int
	steps      []int // per entry of protocol.Commands
	running    bool
	confirming bool // factory reset waits for an explicit yes
	quitting   bool
	cancel     context.CancelFunc
	width      int
	height     int

	// Data
	lines        []string
	responses    int
	lastResponse string
	statusMsg    string
	errorMsg     string

	// Components
	progress ProgressState
	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	styles   Styles
}

// doneMsg signals a run finished.
type doneMsg struct {
	result session.Result
}

// NewModel returns a model that runs commands against env. Output and
// notifications are routed into the UI instead of env.Out.
func NewModel(env commands.Env) Model {
	h := help.New()
	h.ShowAll = false

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	events := make(chan tea.Msg, eventBuffer)
	env.In = nil
	env.Out = &lineWriter{events: events}
	env.OnNotify = func(data []byte) {
		events <- notifyMsg(append([]byte(nil), data...))
	}
	env.OnState = func(st session.State) {
		events <- stateMsg(st)
	}

	steps := make([]int, len(protocol.Commands))
	for i, c := range protocol.Commands {
		steps[i] = c.DefaultSteps
	}

	return Model{
		env:      env,
		events:   events,
		steps:    steps,
		progress: NewProgressState(),
		keys:     DefaultKeyMap(),
		help:     h,
		spinner:  s,
		styles:   DefaultStyles(),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case outputMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > logLines {
			m.lines = m.lines[len(m.lines)-logLines:]
		}
		return m, waitForEvent(m.events)

	case notifyMsg:
		m.responses++
		m.lastResponse = util.SpacedHex(msg)
		return m, waitForEvent(m.events)

	case stateMsg:
		m.progress.Track(session.State(msg))
		return m, waitForEvent(m.events)

	case doneMsg:
		return m.finish(msg.result)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		if !m.running || m.quitting {
			return m, tea.Quit
		}
		// Let the session close the link before exiting.
		m.quitting = true
		m.cancel()
		m.statusMsg = "Stopping..."
		return m, nil
	}

	if m.confirming {
		m.confirming = false
		if key.Matches(msg, m.keys.Confirm) {
			return m.start()
		}
		m.statusMsg = "Aborted."
		return m, nil
	}

	if m.running {
		if key.Matches(msg, m.keys.Cancel) {
			m.cancel()
			m.statusMsg = "Cancelling..."
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.cursor--
		if m.cursor < 0 {
			m.cursor = len(protocol.Commands) - 1
		}

	case key.Matches(msg, m.keys.Down):
		m.cursor++
		if m.cursor >= len(protocol.Commands) {
			m.cursor = 0
		}

	case key.Matches(msg, m.keys.Jump):
		for i, c := range protocol.Commands {
			if c.Selection == msg.String() {
				m.cursor = i
			}
		}

	case key.Matches(msg, m.keys.Less):
		if protocol.Commands[m.cursor].Repeatable && m.steps[m.cursor] > 1 {
			m.steps[m.cursor]--
		}

	case key.Matches(msg, m.keys.More):
		if protocol.Commands[m.cursor].Repeatable && m.steps[m.cursor] < maxSteps {
			m.steps[m.cursor]++
		}

	case key.Matches(msg, m.keys.Select):
		if protocol.Commands[m.cursor].Code == protocol.CodeFactoryReset {
			m.confirming = true
			m.statusMsg = ""
			m.errorMsg = ""
			return m, nil
		}
		return m.start()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	return m, nil
}

// start runs the command under the cursor.
func (m Model) start() (tea.Model, tea.Cmd) {
	cmd := protocol.Commands[m.cursor]
	ctx, cancel := context.WithCancel(context.Background())

	m.running = true
	m.cancel = cancel
	m.lines = nil
	m.responses = 0
	m.lastResponse = ""
	m.statusMsg = ""
	m.errorMsg = ""
	m.progress.Start("Scanning...")

	return m, tea.Batch(runCmd(ctx, m.env, cmd, m.steps[m.cursor]), m.spinner.Tick)
}

func (m Model) finish(res session.Result) (tea.Model, tea.Cmd) {
	m.running = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	if res.OK() {
		m.progress.Complete()
		m.statusMsg = "Done."
	} else {
		m.progress.Cancel()
		m.statusMsg = ""
		m.errorMsg = outcomeText(res)
	}

	if m.quitting {
		return m, tea.Quit
	}
	return m, nil
}

// outcomeText is the message the console would print for res, on one line.
func outcomeText(res session.Result) string {
	var b strings.Builder
	_ = commands.Report(&b, res)
	return strings.Join(strings.Fields(b.String()), " ")
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTitleBar("Logitech Z407"))
	b.WriteString("\n\n")

	for i, c := range protocol.Commands {
		line := fmt.Sprintf("%s. %s", c.Selection, c.Title)
		if i == m.cursor {
			b.WriteString(m.styles.MenuItemSelected.Render("> " + line))
		} else {
			b.WriteString(m.styles.MenuItem.Render("  " + line))
		}
		if c.Repeatable {
			b.WriteString(m.styles.Steps.Render(fmt.Sprintf("‹ %d ›", m.steps[i])))
		}
		b.WriteString("\n")
	}

	if m.confirming {
		b.WriteString("\n")
		b.WriteString(m.styles.Warning.Render("Factory reset erases all pairings and settings."))
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render("Press 'y' to continue, any other key to abort."))
		b.WriteString("\n")
	}

	if p := m.progress.View(); p != "" {
		b.WriteString("\n")
		b.WriteString(p)
		b.WriteString("\n")
	}

	if len(m.lines) > 0 {
		b.WriteString(m.styles.Log.Render(strings.Join(m.lines, "\n")))
		b.WriteString("\n")
	}

	if m.lastResponse != "" {
		b.WriteString(m.styles.Response.Render(fmt.Sprintf("Responses: %d  last: %s", m.responses, m.lastResponse)))
		b.WriteString("\n")
	}

	if m.errorMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.errorMsg))
		b.WriteString("\n")
	} else if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Success.Render(m.statusMsg))
		b.WriteString("\n")
	}

	helpView := m.styles.Help.Render(m.help.View(m.keys))

	return m.styles.App.Render(b.String() + "\n" + helpView)
}

// renderTitleBar renders the title with the run status.
func (m Model) renderTitleBar(title string) string {
	parts := []string{m.styles.Title.Render(title)}

	if m.running {
		parts = append(parts, m.spinner.View()+" "+m.styles.Warning.Render("Working..."))
	} else {
		parts = append(parts, m.styles.StatusOnline.Render("●")+" "+m.styles.Muted.Render("Ready"))
	}
	parts = append(parts, m.styles.Muted.Render("name filter: "+m.env.Settings.NameFilter))

	return strings.Join(parts, "  ")
}

func runCmd(ctx context.Context, env commands.Env, cmd protocol.Command, steps int) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{result: commands.Execute(ctx, env, cmd, steps)}
	}
}
