package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitaminmoo/z407-tool/internal/ble"
	"github.com/vitaminmoo/z407-tool/internal/config"
	"github.com/vitaminmoo/z407-tool/internal/session"
)

var errNoGATT = errors.New("link does not expose GATT services")

// Explore connects to the speaker and lists all services and characteristics.
// This is safe and doesn't write anything.
func Explore(ctx context.Context, env Env) session.Result {
	target, res := discover(ctx, env)
	if !res.OK() {
		return res
	}

	fmt.Fprintf(env.Out, "Connecting to %s...\n", target.DisplayName())
	link, err := env.Radio.Dial(ctx, target)
	if err != nil {
		return session.Result{Outcome: session.OutcomeConnectFailed, Err: err}
	}
	defer func() {
		if err := link.Close(); err != nil {
			config.Debugf("Disconnect: %v", err)
		}
	}()

	bl, ok := link.(*ble.Link)
	if !ok {
		return session.Result{Outcome: session.OutcomeFailed, Err: errNoGATT}
	}

	fmt.Fprintln(env.Out, "Discovering services...")
	services, err := ble.Explore(bl.Device())
	if err != nil {
		return failure(err)
	}

	fmt.Fprintf(env.Out, "\nFound %d services:\n\n", len(services))
	for i, svc := range services {
		fmt.Fprintf(env.Out, "Service #%d: %s%s\n", i+1, svc.UUID, roleSuffix(svc.UUID))
		if svc.Err != nil {
			fmt.Fprintf(env.Out, "  Error: %v\n\n", svc.Err)
			continue
		}
		for j, char := range svc.Characteristics {
			fmt.Fprintf(env.Out, "  [%d] %s%s\n", j+1, char, roleSuffix(char))
		}
		fmt.Fprintln(env.Out)
	}
	return session.Result{Outcome: session.OutcomeOK}
}

func roleSuffix(uuid string) string {
	if role := ble.Role(uuid); role != "" {
		return " (" + role + ")"
	}
	return ""
}
