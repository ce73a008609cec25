package tui

import (
	"bytes"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// eventBuffer bounds how far a running session may get ahead of the UI.
const eventBuffer = 64

// outputMsg is one line of session output.
type outputMsg string

// notifyMsg carries a notification payload from the response characteristic.
type notifyMsg []byte

// stateMsg reports a session state change.
type stateMsg int

// lineWriter turns session output into outputMsgs, one per complete line.
type lineWriter struct {
	mu     sync.Mutex
	buf    []byte
	events chan<- tea.Msg
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		if line != "" {
			w.events <- outputMsg(line)
		}
	}
	return len(p), nil
}

// waitForEvent delivers the next message a running session produced.
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}
