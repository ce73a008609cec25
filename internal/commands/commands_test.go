package commands

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaminmoo/z407-tool/internal/ble"
	"github.com/vitaminmoo/z407-tool/internal/config"
	"github.com/vitaminmoo/z407-tool/internal/protocol"
	"github.com/vitaminmoo/z407-tool/internal/session"
)

type stubLink struct {
	mu        sync.Mutex
	writes    []string
	closed    int
	unsubs    int
	connected bool
}

func (l *stubLink) Subscribe(func([]byte)) error { return nil }
func (l *stubLink) Unsubscribe() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsubs++
	return nil
}

func (l *stubLink) Write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, hex.EncodeToString(p))
	return nil
}
func (l *stubLink) Connected() bool { return l.connected }
func (l *stubLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	l.connected = false
	return nil
}

type stubRadio struct {
	devices []ble.Device
	scanErr error
	dialErr error

	scans  []ble.ScanOptions
	dialed []ble.Device
	link   *stubLink
}

func (r *stubRadio) Scan(_ context.Context, opts ble.ScanOptions) ([]ble.Device, error) {
	r.scans = append(r.scans, opts)
	return r.devices, r.scanErr
}

func (r *stubRadio) Dial(_ context.Context, d ble.Device) (session.Link, error) {
	r.dialed = append(r.dialed, d)
	if r.dialErr != nil {
		return nil, r.dialErr
	}
	r.link = &stubLink{connected: true}
	return r.link, nil
}

var (
	speaker = ble.Device{Address: "F4:73:35:00:00:01", Name: "Logi Z407"}
	other   = ble.Device{Address: "F4:73:35:00:00:02", Name: "Headphones"}
)

func newEnv(radio *stubRadio, input string) (Env, *bytes.Buffer) {
	var out bytes.Buffer
	return Env{
		Settings: config.DefaultSettings(),
		Radio:    radio,
		In:       strings.NewReader(input),
		Out:      &out,
		Sleep:    func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}, &out
}

func TestInteractive_VolumeUp(t *testing.T) {
	radio := &stubRadio{devices: []ble.Device{other, speaker}}
	env, out := newEnv(radio, "5\n3\n")

	res := Interactive(context.Background(), env)

	require.True(t, res.OK(), "err: %v", res.Err)
	require.Len(t, radio.dialed, 1)
	assert.Equal(t, speaker, radio.dialed[0])
	assert.Equal(t, []string{"8405", "8002", "8002", "8002"}, radio.link.writes)
	assert.Equal(t, 1, radio.link.unsubs)
	assert.Equal(t, 1, radio.link.closed)
	assert.Contains(t, out.String(), "Found device: Logi Z407 (F4:73:35:00:00:01)")
	assert.Contains(t, out.String(), "Increasing volume by 3 steps...")
}

func TestInteractive_EverySelection(t *testing.T) {
	for _, cmd := range protocol.Commands {
		t.Run(cmd.Title, func(t *testing.T) {
			radio := &stubRadio{devices: []ble.Device{speaker}}
			env, _ := newEnv(radio, cmd.Selection+"\n\n")

			res := Interactive(context.Background(), env)

			require.True(t, res.OK())
			want := []string{protocol.CodeHandshake}
			for i := 0; i < cmd.DefaultSteps; i++ {
				want = append(want, cmd.Code)
			}
			assert.Equal(t, want, radio.link.writes)
		})
	}
}

func TestInteractive_InvalidChoiceNeverConnects(t *testing.T) {
	radio := &stubRadio{devices: []ble.Device{speaker}}
	env, out := newEnv(radio, "42\n")

	res := Interactive(context.Background(), env)

	assert.Equal(t, session.OutcomeInvalidChoice, res.Outcome)
	assert.Empty(t, radio.dialed)
	require.Error(t, Report(out, res))
	assert.Contains(t, out.String(), "Invalid choice.")
}

func TestInteractive_NotFoundNeverConnects(t *testing.T) {
	radio := &stubRadio{}
	env, out := newEnv(radio, "1\n")

	res := Interactive(context.Background(), env)

	assert.Equal(t, session.OutcomeNotFound, res.Outcome)
	assert.Empty(t, radio.dialed)
	assert.NotContains(t, out.String(), "Select Action:")
}

func TestInteractive_FallsBackToFirstServiceMatch(t *testing.T) {
	unnamed := ble.Device{Address: "F4:73:35:00:00:03"}
	radio := &stubRadio{devices: []ble.Device{unnamed, other}}
	env, out := newEnv(radio, "9\n")

	res := Interactive(context.Background(), env)

	require.True(t, res.OK())
	assert.Equal(t, unnamed, radio.dialed[0])
	assert.Contains(t, out.String(), "Found device: F4:73:35:00:00:03 (F4:73:35:00:00:03)")
}

func TestInteractive_ConnectFailure(t *testing.T) {
	radio := &stubRadio{devices: []ble.Device{speaker}, dialErr: errors.New("timeout")}
	env, out := newEnv(radio, "1\n")

	res := Interactive(context.Background(), env)

	assert.Equal(t, session.OutcomeConnectFailed, res.Outcome)
	require.Error(t, Report(out, res))
	assert.Contains(t, out.String(), "Failed to connect: timeout")
}

func TestExecute(t *testing.T) {
	radio := &stubRadio{devices: []ble.Device{speaker}}
	env, _ := newEnv(radio, "")
	bassDown, err := protocol.Lookup("8")
	require.NoError(t, err)

	res := Execute(context.Background(), env, bassDown, 0)

	require.True(t, res.OK())
	assert.Equal(t, []string{"8405", "8001"}, radio.link.writes)
	require.Len(t, radio.scans, 1)
	assert.True(t, radio.scans[0].StopOnName)
	assert.Equal(t, "Z407", radio.scans[0].NameFilter)
	assert.Equal(t, 10*time.Second, radio.scans[0].Timeout)
}

func TestSendRaw(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		radio := &stubRadio{devices: []ble.Device{speaker}}
		env, _ := newEnv(radio, "")

		res := SendRaw(context.Background(), env, "8C01")

		require.True(t, res.OK())
		assert.Equal(t, []string{"8405", "8c01"}, radio.link.writes)
	})

	t.Run("known code is announced", func(t *testing.T) {
		radio := &stubRadio{devices: []ble.Device{speaker}}
		env, out := newEnv(radio, "")

		res := SendRaw(context.Background(), env, " 8101 ")

		require.True(t, res.OK())
		assert.Equal(t, []string{"8405", "8101"}, radio.link.writes)
		assert.Contains(t, out.String(), "Switching to Bluetooth Input...")
	})

	t.Run("invalid code never scans", func(t *testing.T) {
		radio := &stubRadio{devices: []ble.Device{speaker}}
		env, _ := newEnv(radio, "")

		res := SendRaw(context.Background(), env, "81")

		assert.Equal(t, session.OutcomeInvalidChoice, res.Outcome)
		assert.Empty(t, radio.scans)
	})
}

func TestScanList(t *testing.T) {
	radio := &stubRadio{devices: []ble.Device{other, speaker, {Address: "F4:73:35:00:00:09"}}}
	env, out := newEnv(radio, "")

	res := ScanList(context.Background(), env)

	require.True(t, res.OK())
	assert.False(t, radio.scans[0].StopOnName)
	assert.Empty(t, radio.dialed)
	assert.Contains(t, out.String(), "Found 3 device(s):")
	assert.Contains(t, out.String(), "* Logi Z407")
	assert.Contains(t, out.String(), "  Headphones")
	assert.Contains(t, out.String(), "(no name)")
}

func TestScanErrors(t *testing.T) {
	radio := &stubRadio{scanErr: errors.New("adapter off")}
	env, out := newEnv(radio, "")

	res := Interactive(context.Background(), env)
	assert.Equal(t, session.OutcomeFailed, res.Outcome)
	require.Error(t, Report(out, res))
	assert.Contains(t, out.String(), "An error occurred: adapter off")

	radio.scanErr = context.Canceled
	res = ScanList(context.Background(), env)
	assert.Equal(t, session.OutcomeInterrupted, res.Outcome)
}

func TestExplore_RequiresGATTLink(t *testing.T) {
	radio := &stubRadio{devices: []ble.Device{speaker}}
	env, _ := newEnv(radio, "")

	res := Explore(context.Background(), env)

	assert.Equal(t, session.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, errNoGATT)
	assert.Equal(t, 1, radio.link.closed)
	assert.Empty(t, radio.link.writes)
}

func TestReport(t *testing.T) {
	tests := []struct {
		res  session.Result
		want string
	}{
		{session.Result{Outcome: session.OutcomeNotFound}, "Could not find Logitech Z407 speakers."},
		{session.Result{Outcome: session.OutcomeInterrupted}, "Interrupted."},
		{session.Result{Outcome: session.OutcomeConnectFailed, Err: session.ErrNotConnected}, "Failed to connect.\n"},
		{session.Result{Outcome: session.OutcomeConnectFailed, Err: errors.New("control service not found")}, "Failed to connect: control service not found"},
		{session.Result{Outcome: session.OutcomeFailed, Err: errors.New("boom")}, "An error occurred: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.res.Outcome.String(), func(t *testing.T) {
			var out bytes.Buffer
			assert.ErrorIs(t, Report(&out, tt.res), ErrFailed)
			assert.Contains(t, out.String(), tt.want)
		})
	}

	var out bytes.Buffer
	assert.NoError(t, Report(&out, session.Result{Outcome: session.OutcomeOK}))
	assert.Empty(t, out.String())
}
