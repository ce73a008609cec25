package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vitaminmoo/z407-tool/internal/config"

	"tinygo.org/x/bluetooth"
)

// ScanOptions bounds and filters a discovery scan.
type ScanOptions struct {
	Timeout    time.Duration
	NameFilter string
	// StopOnName ends the scan as soon as a device matching NameFilter is seen.
	StopOnName bool
}

// EnableAdapter powers up the default adapter and routes its disconnect
// events to the links opened by Connect.
func EnableAdapter() (*bluetooth.Adapter, error) {
	adapter := bluetooth.DefaultAdapter
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		handleConnectEvent(device.Address.String(), connected)
	})
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable Bluetooth: %w", err)
	}
	return adapter, nil
}

// collector de-duplicates scan results by address, keeping first-seen order.
type collector struct {
	mu      sync.Mutex
	filter  string
	devices []Device
	index   map[string]int
}

func newCollector(filter string) *collector {
	return &collector{filter: filter, index: make(map[string]int)}
}

// observe records a service-matching advertisement and reports whether it
// carries a name matching the filter.
func (c *collector) observe(d Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.index[d.Address]; ok {
		// Names often arrive later in a scan response.
		if c.devices[i].Name == "" && d.Name != "" {
			c.devices[i].Name = d.Name
		}
		return c.devices[i].MatchesName(c.filter)
	}
	c.index[d.Address] = len(c.devices)
	c.devices = append(c.devices, d)
	return d.MatchesName(c.filter)
}

func (c *collector) result() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Device(nil), c.devices...)
}

// scanner is the part of *bluetooth.Adapter that Scan drives.
type scanner interface {
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// Scan collects devices advertising ServiceUUID until the timeout expires,
// ctx is cancelled, or (with StopOnName) a name match is seen.
func Scan(ctx context.Context, adapter *bluetooth.Adapter, opts ScanOptions) ([]Device, error) {
	return scan(ctx, adapter, opts)
}

func scan(ctx context.Context, s scanner, opts ScanOptions) ([]Device, error) {
	// StopScan before Scan has started fails and would leave Scan running forever.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	serviceUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultScanTimeout
	}

	scanCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	// stop retries until StopScan succeeds once.
	var stopMu sync.Mutex
	stopped := false
	stop := func() {
		stopMu.Lock()
		defer stopMu.Unlock()
		if stopped {
			return
		}
		if err := s.StopScan(); err != nil {
			config.Debugf("StopScan: %v", err)
			return
		}
		stopped = true
	}
	go func() {
		<-scanCtx.Done()
		stop()
	}()

	found := newCollector(opts.NameFilter)
	err = s.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if scanCtx.Err() != nil {
			stop()
			return
		}
		name := result.LocalName()
		if !result.HasServiceUUID(serviceUUID) {
			if config.Verbose && name != "" {
				config.Debugf("Ignoring '%s' (%s): service not advertised", name, result.Address.String())
			}
			return
		}
		config.Debugf("Found: '%s' (%s) RSSI %d", name, result.Address.String(), result.RSSI)

		matched := found.observe(Device{
			Address: result.Address.String(),
			Name:    name,
			addr:    result.Address,
		})
		if matched && opts.StopOnName {
			stop()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return found.result(), ctx.Err()
	}
	return found.result(), nil
}

// Connect connects to d and resolves the command and response characteristics.
// The device is disconnected again if the characteristics cannot be found.
func Connect(ctx context.Context, adapter *bluetooth.Adapter, d Device) (*Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	config.Debugf("Connecting to %s...", d.Address)
	device, err := adapter.Connect(d.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	link, err := newLink(device)
	if err != nil {
		if derr := device.Disconnect(); derr != nil {
			config.Debugf("Disconnect after setup failure: %v", derr)
		}
		return nil, err
	}
	link.addr = d.Address
	track(link)
	return link, nil
}

// Explore lists every service and characteristic of a connected device.
func Explore(device bluetooth.Device) ([]ServiceInfo, error) {
	allServices, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	infos := make([]ServiceInfo, 0, len(allServices))
	for _, svc := range allServices {
		info := ServiceInfo{UUID: svc.UUID().String()}
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			info.Err = err
			infos = append(infos, info)
			continue
		}
		for _, char := range chars {
			info.Characteristics = append(info.Characteristics, char.UUID().String())
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ServiceInfo is one service found by Explore.
type ServiceInfo struct {
	UUID            string
	Characteristics []string
	Err             error
}

// Role names the speaker's use of a characteristic, if any.
func Role(uuid string) string {
	switch {
	case strings.EqualFold(uuid, CommandCharUUID):
		return "command"
	case strings.EqualFold(uuid, ResponseCharUUID):
		return "response"
	case strings.EqualFold(uuid, ServiceUUID):
		return "control service"
	default:
		return ""
	}
}
