package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vitaminmoo/z407-tool/internal/ble"
	"github.com/vitaminmoo/z407-tool/internal/config"
	"github.com/vitaminmoo/z407-tool/internal/session"

	"tinygo.org/x/bluetooth"
)

// ErrFailed is returned by Report for any run that did not end in OutcomeOK.
// The message has already been printed when it is returned.
var ErrFailed = errors.New("run failed")

// Radio is the part of the Bluetooth stack the flows need.
type Radio interface {
	Scan(ctx context.Context, opts ble.ScanOptions) ([]ble.Device, error)
	Dial(ctx context.Context, d ble.Device) (session.Link, error)
}

// Env carries everything a flow talks to.
type Env struct {
	Settings config.Settings
	Radio    Radio
	In       io.Reader
	Out      io.Writer

	// Sleep overrides the session delays; nil uses real timers.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnNotify observes notification payloads in addition to printing them.
	OnNotify func([]byte)
	OnState  func(session.State)
}

// DefaultEnv returns an Env on stdin/stdout and the default adapter.
func DefaultEnv(settings config.Settings) Env {
	return Env{
		Settings: settings,
		Radio:    &AdapterRadio{},
		In:       os.Stdin,
		Out:      os.Stdout,
	}
}

func (e Env) scanOptions(stopOnName bool) ble.ScanOptions {
	return ble.ScanOptions{
		Timeout:    e.Settings.ScanTimeout,
		NameFilter: e.Settings.NameFilter,
		StopOnName: stopOnName,
	}
}

func (e Env) driver() *session.Driver {
	d := session.NewDriver(e.Out)
	d.Sleep = e.Sleep
	d.OnNotify = e.OnNotify
	d.OnState = e.OnState
	return d
}

// AdapterRadio is the Radio backed by tinygo bluetooth's default adapter.
type AdapterRadio struct {
	adapter *bluetooth.Adapter
}

func (r *AdapterRadio) enable() (*bluetooth.Adapter, error) {
	if r.adapter != nil {
		return r.adapter, nil
	}
	adapter, err := ble.EnableAdapter()
	if err != nil {
		return nil, err
	}
	r.adapter = adapter
	return adapter, nil
}

func (r *AdapterRadio) Scan(ctx context.Context, opts ble.ScanOptions) ([]ble.Device, error) {
	adapter, err := r.enable()
	if err != nil {
		return nil, err
	}
	return ble.Scan(ctx, adapter, opts)
}

func (r *AdapterRadio) Dial(ctx context.Context, d ble.Device) (session.Link, error) {
	adapter, err := r.enable()
	if err != nil {
		return nil, err
	}
	link, err := ble.Connect(ctx, adapter, d)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// discover runs one scan and picks the target, printing progress.
func discover(ctx context.Context, env Env) (ble.Device, session.Result) {
	fmt.Fprintln(env.Out, "Scanning for Logitech Z407...")
	devices, err := env.Radio.Scan(ctx, env.scanOptions(true))
	if err != nil {
		return ble.Device{}, failure(err)
	}
	target, err := ble.SelectTarget(devices, env.Settings.NameFilter)
	if err != nil {
		return ble.Device{}, session.Result{Outcome: session.OutcomeNotFound, Err: err}
	}
	fmt.Fprintf(env.Out, "Found device: %s (%s)\n", target.DisplayName(), target.Address)
	return target, session.Result{Outcome: session.OutcomeOK}
}

// connectAndSend runs the session against target.
func connectAndSend(ctx context.Context, env Env, target ble.Device, req session.Request) session.Result {
	fmt.Fprintf(env.Out, "Connecting to %s...\n", target.DisplayName())
	dial := func(ctx context.Context) (session.Link, error) {
		return env.Radio.Dial(ctx, target)
	}
	return env.driver().Run(ctx, dial, req)
}

func failure(err error) session.Result {
	if errors.Is(err, context.Canceled) {
		return session.Result{Outcome: session.OutcomeInterrupted, Err: err}
	}
	return session.Result{Outcome: session.OutcomeFailed, Err: err}
}

// Report prints the user-facing message for res. It is the single place a
// run's outcome is turned into output, and returns ErrFailed unless res is OK.
func Report(out io.Writer, res session.Result) error {
	if res.Err != nil {
		config.Log.WithField("outcome", res.Outcome.String()).WithField("writes", res.Writes).Debugf("run ended: %v", res.Err)
	}

	switch res.Outcome {
	case session.OutcomeOK:
		return nil
	case session.OutcomeNotFound:
		fmt.Fprintln(out, "Error: Could not find Logitech Z407 speakers.")
		fmt.Fprintln(out, "Ensure they are plugged in and within range.")
	case session.OutcomeConnectFailed:
		if res.Err != nil && !errors.Is(res.Err, session.ErrNotConnected) {
			fmt.Fprintf(out, "Failed to connect: %v\n", res.Err)
		} else {
			fmt.Fprintln(out, "Failed to connect.")
		}
	case session.OutcomeInvalidChoice:
		fmt.Fprintln(out, "Invalid choice.")
	case session.OutcomeInterrupted:
		fmt.Fprintln(out, "Interrupted.")
	default:
		fmt.Fprintf(out, "An error occurred: %v\n", res.Err)
	}
	return ErrFailed
}
