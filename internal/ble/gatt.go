package ble

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vitaminmoo/z407-tool/internal/config"
	"github.com/vitaminmoo/z407-tool/internal/session"

	"tinygo.org/x/bluetooth"
)

// Link holds the speaker's command and response characteristics for the
// lifetime of one connection.
type Link struct {
	device   bluetooth.Device
	command  *bluetooth.DeviceCharacteristic // write without response (c2e758b9)
	response *bluetooth.DeviceCharacteristic // notify (b84ac9c6)

	addr      string
	mu        sync.Mutex
	connected bool
}

// openLinks holds the links that disconnect events are delivered to, by address.
var openLinks = struct {
	sync.Mutex
	links map[string]*Link
}{links: make(map[string]*Link)}

func track(l *Link) {
	openLinks.Lock()
	defer openLinks.Unlock()
	openLinks.links[l.addr] = l
}

func untrack(l *Link) {
	openLinks.Lock()
	defer openLinks.Unlock()
	if openLinks.links[l.addr] == l {
		delete(openLinks.links, l.addr)
	}
}

// handleConnectEvent marks the link to addr as gone when the stack reports a
// disconnect, so later writes fail fast.
func handleConnectEvent(addr string, connected bool) {
	if connected {
		return
	}
	openLinks.Lock()
	l := openLinks.links[addr]
	openLinks.Unlock()
	if l == nil {
		return
	}
	config.Debugf("Device %s disconnected", addr)
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
}

// newLink discovers the control service and its two characteristics.
func newLink(device bluetooth.Device) (*Link, error) {
	config.Debugf("Discovering services...")

	serviceUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return nil, err
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	var service *bluetooth.DeviceService
	for i := range services {
		uuidStr := services[i].UUID().String()
		if strings.EqualFold(uuidStr, ServiceUUID) {
			service = &services[i]
			config.Debugf("Found control service: %s", uuidStr)
			break
		}
	}
	if service == nil {
		return nil, fmt.Errorf("control service %s not found", ServiceUUID)
	}

	chars, err := service.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics: %w", err)
	}

	link := &Link{device: device, connected: true}
	for i := range chars {
		uuidStr := chars[i].UUID().String()
		config.Debugf("Found characteristic: %s", uuidStr)
		if strings.EqualFold(uuidStr, CommandCharUUID) {
			link.command = &chars[i]
		}
		if strings.EqualFold(uuidStr, ResponseCharUUID) {
			link.response = &chars[i]
		}
	}

	if link.command == nil {
		return nil, fmt.Errorf("command characteristic (%s) not found", CommandCharUUID)
	}
	if link.response == nil {
		return nil, fmt.Errorf("response characteristic (%s) not found", ResponseCharUUID)
	}
	return link, nil
}

// Device returns the underlying connected device.
func (l *Link) Device() bluetooth.Device {
	return l.device
}

// Connected reports whether the device is still connected: Close has not been
// called and no disconnect event has arrived for it.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Subscribe enables notifications on the response characteristic. handler
// runs on the Bluetooth stack's goroutine.
func (l *Link) Subscribe(handler func([]byte)) error {
	if !l.Connected() {
		return session.ErrNotConnected
	}
	config.Debugf("Enabling notifications on %s", ResponseCharUUID)
	return l.response.EnableNotifications(handler)
}

// Unsubscribe disables notifications on the response characteristic.
func (l *Link) Unsubscribe() error {
	config.Debugf("Disabling notifications on %s", ResponseCharUUID)
	return l.response.EnableNotifications(nil)
}

// Write sends payload to the command characteristic without waiting for an acknowledgment.
func (l *Link) Write(payload []byte) error {
	if !l.Connected() {
		return session.ErrNotConnected
	}
	config.Debugf("Writing %X to %s", payload, CommandCharUUID)
	n, err := l.command.WriteWithoutResponse(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(payload))
	}
	return nil
}

// Close disconnects. Later writes fail with session.ErrNotConnected.
func (l *Link) Close() error {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	untrack(l)
	return l.device.Disconnect()
}
