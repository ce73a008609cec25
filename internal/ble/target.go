package ble

import (
	"errors"
	"strings"

	"tinygo.org/x/bluetooth"
)

var ErrNotFound = errors.New("no matching device found")

// Device is a peripheral seen during a scan.
type Device struct {
	Address string
	Name    string

	addr bluetooth.Address
}

// MatchesName reports whether the advertised name contains filter.
// An empty filter matches nothing, so selection falls back to the first device.
func (d Device) MatchesName(filter string) bool {
	return filter != "" && d.Name != "" && strings.Contains(d.Name, filter)
}

// DisplayName returns the advertised name, or the address when there is none.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

// SelectTarget picks the first device whose name contains filter, falling back
// to the first device in discovery order. Every input device is assumed to
// already match the service filter.
func SelectTarget(devices []Device, filter string) (Device, error) {
	for _, d := range devices {
		if d.MatchesName(filter) {
			return d, nil
		}
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return Device{}, ErrNotFound
}
