package tui

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vitaminmoo/z407-tool/internal/commands"
	"github.com/vitaminmoo/z407-tool/internal/config"
)

// Run starts the TUI application.
func Run(env commands.Env) error {
	m := NewModel(env)
	p := tea.NewProgram(m, tea.WithAltScreen())

	restore := detachLog()
	_, err := p.Run()
	restore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return err
	}

	return nil
}

// detachLog silences the logger while the alt screen is up and returns a func
// that restores its previous output.
func detachLog() func() {
	prev := config.Log.Out
	config.Log.SetOutput(io.Discard)
	return func() {
		config.Log.SetOutput(prev)
	}
}
