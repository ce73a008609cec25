package tui

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/vitaminmoo/z407-tool/internal/session"
)

// ProgressState tracks a session run through its states.
type ProgressState struct {
	progress    progress.Model
	percent     float64
	description string
	isActive    bool
}

// NewProgressState creates a new progress tracking state.
func NewProgressState() ProgressState {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)
	return ProgressState{
		progress: p,
	}
}

// Start begins tracking a new run.
func (p *ProgressState) Start(description string) {
	p.isActive = true
	p.percent = 0
	p.description = description
}

// Track moves the bar to the point the session state represents.
// Disconnected leaves it where it is; the run result decides how it ends.
func (p *ProgressState) Track(s session.State) {
	switch s {
	case session.StateConnecting:
		p.percent, p.description = 0.15, "Connecting..."
	case session.StateConnected:
		p.percent, p.description = 0.3, "Connected"
	case session.StateNotifyActive:
		p.percent, p.description = 0.4, "Listening for responses"
	case session.StateHandshakeSent:
		p.percent, p.description = 0.5, "Handshake sent"
	case session.StateCommandsSent:
		p.percent, p.description = 0.8, "Commands sent"
	case session.StateDraining:
		p.percent, p.description = 0.9, "Waiting for responses..."
	}
}

// Complete marks the run as complete.
func (p *ProgressState) Complete() {
	p.percent = 1.0
	p.isActive = false
}

// Cancel stops the progress without completing.
func (p *ProgressState) Cancel() {
	p.isActive = false
}

// IsActive returns whether a run is in progress.
func (p *ProgressState) IsActive() bool {
	return p.isActive
}

// Percent returns the current position of the bar (0.0 to 1.0).
func (p *ProgressState) Percent() float64 {
	return p.percent
}

// View renders the progress bar.
func (p ProgressState) View() string {
	if !p.isActive {
		return ""
	}
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return descStyle.Render(p.description) + "\n" + p.progress.ViewAs(p.percent)
}
