package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vitaminmoo/z407-tool/internal/config"
	"github.com/vitaminmoo/z407-tool/internal/protocol"
	"github.com/vitaminmoo/z407-tool/internal/util"
)

// Fixed timings of the control sequence.
const (
	HandshakeSettle = 1 * time.Second
	StepDelay       = 200 * time.Millisecond
	DrainPeriod     = 1 * time.Second
)

// notifyBuffer is how many notifications may queue before new ones are dropped.
const notifyBuffer = 32

// ErrNotConnected is returned for operations on a link that has dropped or
// been closed. Link implementations return it too.
var ErrNotConnected = errors.New("not connected")

// Link is a connected transport to the speaker. Writes go to the command
// characteristic without response; subscriptions are on the response characteristic.
// The handler passed to Subscribe may be called from any goroutine.
type Link interface {
	Subscribe(handler func([]byte)) error
	Unsubscribe() error
	Write(payload []byte) error
	Connected() bool
	Close() error
}

// Dialer connects to the selected device.
type Dialer func(ctx context.Context) (Link, error)

// State is a step of the session sequence.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateNotifyActive
	StateHandshakeSent
	StateCommandsSent
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateNotifyActive:
		return "notify-active"
	case StateHandshakeSent:
		return "handshake-sent"
	case StateCommandsSent:
		return "commands-sent"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request is what to send once the handshake is done.
// An empty Code runs the handshake only.
type Request struct {
	Code  string
	Steps int
}

// Driver runs one connect → handshake → send → drain → disconnect sequence.
type Driver struct {
	Out io.Writer

	// Sleep waits d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnState and OnNotify are optional observers.
	OnState  func(State)
	OnNotify func([]byte)

	outMu sync.Mutex
}

// NewDriver returns a driver printing progress to out.
func NewDriver(out io.Writer) *Driver {
	return &Driver{Out: out}
}

// Run drives the whole sequence and never panics or exits; every failure is
// folded into the returned Result.
func (d *Driver) Run(ctx context.Context, dial Dialer, req Request) Result {
	var payload []byte
	if req.Code != "" {
		b, err := protocol.Encode(req.Code)
		if err != nil {
			return Result{Outcome: OutcomeInvalidChoice, Err: err}
		}
		payload = b
	}
	steps := req.Steps
	if steps < 1 {
		steps = 1
	}

	d.setState(StateConnecting)
	link, err := dial(ctx)
	if err != nil {
		d.setState(StateDisconnected)
		if errors.Is(err, context.Canceled) {
			return Result{Outcome: OutcomeInterrupted, Err: err}
		}
		return Result{Outcome: OutcomeConnectFailed, Err: err}
	}
	if link == nil || !link.Connected() {
		d.setState(StateDisconnected)
		return Result{Outcome: OutcomeConnectFailed, Err: ErrNotConnected}
	}

	d.setState(StateConnected)
	d.printf("Connected!\n")

	s := &run{driver: d, link: link, stop: make(chan struct{}), done: make(chan struct{})}
	s.notes = make(chan []byte, notifyBuffer)
	go s.printNotifications()

	res := s.exchange(ctx, req.Code, payload, steps)

	if err := s.teardown(); err != nil && res.Outcome == OutcomeOK {
		res.Outcome = OutcomeFailed
		res.Err = err
	}
	return res
}

func (d *Driver) setState(s State) {
	config.Debugf("Session state: %s", s)
	if d.OnState != nil {
		d.OnState(s)
	}
}

// printf serialises progress output; notifications are printed from another goroutine.
func (d *Driver) printf(format string, args ...any) {
	if d.Out == nil {
		return
	}
	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprintf(d.Out, format, args...)
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the state of one connected session.
type run struct {
	driver     *Driver
	link       Link
	subscribed bool
	writes     int

	notes chan []byte
	stop  chan struct{}
	done  chan struct{}
}

func (s *run) exchange(ctx context.Context, code string, payload []byte, steps int) Result {
	fail := func(err error) Result {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{Outcome: OutcomeInterrupted, Err: err, Writes: s.writes}
		}
		return Result{Outcome: OutcomeFailed, Err: err, Writes: s.writes}
	}

	if err := s.link.Subscribe(s.onNotify); err != nil {
		return fail(fmt.Errorf("failed to enable notifications: %w", err))
	}
	s.subscribed = true
	s.driver.setState(StateNotifyActive)

	if err := s.send(protocol.CodeHandshake, protocol.HandshakePayload()); err != nil {
		return fail(err)
	}
	if err := s.driver.sleep(ctx, HandshakeSettle); err != nil {
		return fail(err)
	}
	s.driver.setState(StateHandshakeSent)

	if payload == nil {
		return Result{Outcome: OutcomeOK, Writes: s.writes}
	}

	for i := 0; i < steps; i++ {
		if err := s.send(code, payload); err != nil {
			return fail(err)
		}
		if err := s.driver.sleep(ctx, StepDelay); err != nil {
			return fail(err)
		}
	}
	s.driver.setState(StateCommandsSent)

	s.driver.setState(StateDraining)
	if err := s.driver.sleep(ctx, DrainPeriod); err != nil {
		return fail(err)
	}
	s.driver.printf("Command execution complete.\n")

	return Result{Outcome: OutcomeOK, Writes: s.writes}
}

func (s *run) send(code string, payload []byte) error {
	if !s.link.Connected() {
		return fmt.Errorf("send %s: %w", code, ErrNotConnected)
	}
	s.driver.printf("Sending command: %s...\n", code)
	if err := s.link.Write(payload); err != nil {
		return fmt.Errorf("failed to write %s: %w", code, err)
	}
	s.writes++
	s.driver.printf("Command sent.\n")
	return nil
}

// onNotify runs on the BLE stack's goroutine and must not block.
func (s *run) onNotify(buf []byte) {
	data := make([]byte, len(buf))
	copy(data, buf)
	select {
	case s.notes <- data:
	case <-s.stop:
	default:
		config.Debugf("Dropping notification, queue full: %X", data)
	}
}

func (s *run) printNotifications() {
	defer close(s.done)
	for {
		select {
		case data := <-s.notes:
			s.report(data)
		case <-s.stop:
			for {
				select {
				case data := <-s.notes:
					s.report(data)
				default:
					return
				}
			}
		}
	}
}

func (s *run) report(data []byte) {
	s.driver.printf("Received response: %s\n", hex.EncodeToString(data))
	if config.Verbose {
		config.Debugf("Notification (%d bytes): %s", len(data), util.SpacedHex(data))
		if util.IsTextData(data) {
			config.Debugf("Notification text: %q", data)
		}
		util.WriteHexDump(config.Log.Out, data)
	}
	if s.driver.OnNotify != nil {
		s.driver.OnNotify(data)
	}
}

// teardown unsubscribes and closes the link. Close is attempted even if
// unsubscribing fails.
func (s *run) teardown() error {
	var errs []error
	if s.subscribed {
		if err := s.link.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("failed to disable notifications: %w", err))
		}
	}
	if err := s.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to disconnect: %w", err))
	}
	close(s.stop)
	<-s.done
	s.driver.setState(StateDisconnected)
	return errors.Join(errs...)
}
