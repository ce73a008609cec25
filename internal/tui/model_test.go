package tui

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaminmoo/z407-tool/internal/ble"
	"github.com/vitaminmoo/z407-tool/internal/commands"
	"github.com/vitaminmoo/z407-tool/internal/config"
	"github.com/vitaminmoo/z407-tool/internal/protocol"
	"github.com/vitaminmoo/z407-tool/internal/session"
)

type fakeLink struct {
	mu      sync.Mutex
	handler func([]byte)
	writes  []string
	closed  bool
}

func (l *fakeLink) Subscribe(h func([]byte)) error {
	l.handler = h
	return nil
}

func (l *fakeLink) Unsubscribe() error { return nil }

func (l *fakeLink) Write(p []byte) error {
	l.mu.Lock()
	l.writes = append(l.writes, hex.EncodeToString(p))
	l.mu.Unlock()
	if hex.EncodeToString(p) == protocol.CodeHandshake {
		l.handler([]byte{0xd4, 0x05, 0x01})
	}
	return nil
}

func (l *fakeLink) Connected() bool { return !l.closed }

func (l *fakeLink) Close() error {
	l.closed = true
	return nil
}

type fakeRadio struct {
	devices []ble.Device
	link    *fakeLink
}

func (r *fakeRadio) Scan(context.Context, ble.ScanOptions) ([]ble.Device, error) {
	return r.devices, nil
}

func (r *fakeRadio) Dial(context.Context, ble.Device) (session.Link, error) {
	r.link = &fakeLink{}
	return r.link, nil
}

func testModel(radio commands.Radio) Model {
	return NewModel(commands.Env{
		Settings: config.DefaultSettings(),
		Radio:    radio,
		Sleep:    func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
}

func press(m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain feeds every queued session event back into the model.
func drain(m Model) Model {
	for len(m.events) > 0 {
		updated, _ := m.Update(<-m.events)
		m = updated.(Model)
	}
	return m
}

func TestNewModel_DefaultSteps(t *testing.T) {
	m := testModel(&fakeRadio{})

	require.Len(t, m.steps, len(protocol.Commands))
	for i, c := range protocol.Commands {
		assert.Equal(t, c.DefaultSteps, m.steps[i], c.Title)
	}
}

func TestNavigation(t *testing.T) {
	m := testModel(&fakeRadio{})

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, len(protocol.Commands)-1, m.cursor, "up from the top wraps")

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, m.cursor)

	m, _ = press(m, runes("6"))
	assert.Equal(t, "6", protocol.Commands[m.cursor].Selection)

	m, _ = press(m, runes("0"))
	assert.Equal(t, "0", protocol.Commands[m.cursor].Selection)
}

func TestStepAdjustment(t *testing.T) {
	m := testModel(&fakeRadio{})

	m, _ = press(m, runes("5"))
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRight})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 7, m.steps[m.cursor])

	m, _ = press(m, runes("7"))
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, 1, m.steps[m.cursor], "steps never drop below one")

	m, _ = press(m, runes("1"))
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 1, m.steps[m.cursor], "input switches are not repeatable")
}

func TestFactoryResetNeedsConfirmation(t *testing.T) {
	radio := &fakeRadio{devices: []ble.Device{{Address: "AA", Name: "Z407"}}}
	m := testModel(radio)

	m, _ = press(m, runes("0"))
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.True(t, m.confirming)
	assert.False(t, m.running)
	assert.Contains(t, m.View(), "Factory reset erases all pairings")

	m, cmd = press(m, runes("n"))
	assert.Nil(t, cmd)
	assert.False(t, m.confirming)
	assert.Equal(t, "Aborted.", m.statusMsg)
	assert.Nil(t, radio.link)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m, cmd = press(m, runes("y"))
	require.NotNil(t, cmd)
	assert.True(t, m.running)
	m.cancel()
}

func TestRun_SendsSelectedCommand(t *testing.T) {
	radio := &fakeRadio{devices: []ble.Device{{Address: "AA", Name: "Logi Z407"}}}
	m := testModel(radio)

	m, _ = press(m, runes("7"))
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRight})
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.running)
	assert.True(t, m.progress.IsActive())

	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	done := batch[0]()
	require.IsType(t, doneMsg{}, done)

	m = drain(m)
	assert.InDelta(t, 0.9, m.progress.Percent(), 0.001)
	assert.Equal(t, 1, m.responses)
	assert.Equal(t, "d4 05 01", m.lastResponse)
	assert.Contains(t, m.lines, "Command execution complete.")

	updated, _ := m.Update(done)
	m = updated.(Model)
	assert.False(t, m.running)
	assert.False(t, m.progress.IsActive())
	assert.Equal(t, "Done.", m.statusMsg)
	assert.Empty(t, m.errorMsg)
	assert.Equal(t, []string{"8405", "8000", "8000"}, radio.link.writes)
	assert.True(t, radio.link.closed)
}

func TestRun_NotFound(t *testing.T) {
	m := testModel(&fakeRadio{})

	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	done := cmd().(tea.BatchMsg)[0]()

	updated, _ := drain(m).Update(done)
	m = updated.(Model)
	assert.Equal(t, "Error: Could not find Logitech Z407 speakers. Ensure they are plugged in and within range.", m.errorMsg)
	assert.Contains(t, m.View(), "Could not find Logitech Z407 speakers.")
}

func TestQuitWhileRunningWaitsForTeardown(t *testing.T) {
	m := testModel(&fakeRadio{})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})

	m, cmd := press(m, runes("q"))
	assert.Nil(t, cmd)
	assert.True(t, m.quitting)

	updated, cmd := m.Update(doneMsg{result: session.Result{Outcome: session.OutcomeInterrupted, Err: context.Canceled}})
	m = updated.(Model)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, "Interrupted.", m.errorMsg)
}

func TestQuitWhenIdle(t *testing.T) {
	m := testModel(&fakeRadio{})

	_, cmd := press(m, runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestLineWriter(t *testing.T) {
	events := make(chan tea.Msg, 8)
	w := &lineWriter{events: events}

	_, err := w.Write([]byte("Sending command: 8405...\nCommand "))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, outputMsg("Sending command: 8405..."), <-events)

	_, err = w.Write([]byte("sent.\n\n"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, outputMsg("Command sent."), <-events)
}

func TestOutcomeText(t *testing.T) {
	assert.Empty(t, outcomeText(session.Result{Outcome: session.OutcomeOK}))
	assert.Equal(t, "An error occurred: boom", outcomeText(session.Result{Outcome: session.OutcomeFailed, Err: errors.New("boom")}))
}

func TestDetachLog(t *testing.T) {
	origLog, origVerbose := config.Log, config.Verbose
	t.Cleanup(func() { config.Log, config.Verbose = origLog, origVerbose })
	var logs bytes.Buffer
	config.Log = config.NewLogger(&logs, logrus.DebugLevel)
	config.Verbose = true

	restore := detachLog()
	config.Debugf("hidden while the UI runs")
	restore()
	config.Debugf("visible again")

	assert.NotContains(t, logs.String(), "hidden")
	assert.Contains(t, logs.String(), "visible again")
}
