package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitaminmoo/z407-tool/internal/ble"
	"github.com/vitaminmoo/z407-tool/internal/menu"
	"github.com/vitaminmoo/z407-tool/internal/protocol"
	"github.com/vitaminmoo/z407-tool/internal/session"
)

// Interactive scans, shows the numbered menu, and sends the chosen action.
// An invalid choice ends the run before any connection is made.
func Interactive(ctx context.Context, env Env) session.Result {
	target, res := discover(ctx, env)
	if !res.OK() {
		return res
	}

	p := menu.New(env.In, env.Out)
	p.Show()
	cmd, err := p.Choose()
	if err != nil {
		return session.Result{Outcome: session.OutcomeInvalidChoice, Err: err}
	}
	steps := p.Steps(cmd)
	fmt.Fprintln(env.Out, cmd.Announcement(steps))

	return connectAndSend(ctx, env, target, session.Request{Code: cmd.Code, Steps: steps})
}

// Execute scans and sends cmd steps times without prompting.
func Execute(ctx context.Context, env Env, cmd protocol.Command, steps int) session.Result {
	if steps < 1 {
		steps = cmd.DefaultSteps
	}
	target, res := discover(ctx, env)
	if !res.OK() {
		return res
	}
	fmt.Fprintln(env.Out, cmd.Announcement(steps))
	return connectAndSend(ctx, env, target, session.Request{Code: cmd.Code, Steps: steps})
}

// SendRaw sends one arbitrary code after the handshake. The code is validated
// before scanning.
func SendRaw(ctx context.Context, env Env, code string) session.Result {
	if _, err := protocol.Encode(code); err != nil {
		return session.Result{Outcome: session.OutcomeInvalidChoice, Err: err}
	}
	target, res := discover(ctx, env)
	if !res.OK() {
		return res
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if cmd, ok := protocol.ByCode(code); ok {
		fmt.Fprintln(env.Out, cmd.Announcement(1))
	}
	return connectAndSend(ctx, env, target, session.Request{Code: code, Steps: 1})
}

// ScanList prints every device advertising the control service for the full
// scan window, marking the one a command would pick.
func ScanList(ctx context.Context, env Env) session.Result {
	fmt.Fprintf(env.Out, "Scanning for %s...\n", env.Settings.ScanTimeout)
	devices, err := env.Radio.Scan(ctx, env.scanOptions(false))
	if err != nil {
		return failure(err)
	}
	target, err := ble.SelectTarget(devices, env.Settings.NameFilter)
	if err != nil {
		return session.Result{Outcome: session.OutcomeNotFound, Err: err}
	}

	fmt.Fprintf(env.Out, "Found %d device(s):\n", len(devices))
	for _, d := range devices {
		marker := " "
		if d.Address == target.Address {
			marker = "*"
		}
		name := d.Name
		if name == "" {
			name = "(no name)"
		}
		fmt.Fprintf(env.Out, "%s %-20s %s\n", marker, name, d.Address)
	}
	return session.Result{Outcome: session.OutcomeOK}
}
