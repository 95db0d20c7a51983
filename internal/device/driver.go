// Package device is the boundary to the hardware MIDI driver: port
// enumeration, input selection and the driver implementations.
package device

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Error definitions for driver and port handling.
var (
	ErrInvalidPort         = errors.New("device: invalid MIDI port")
	ErrPortNotOpen         = errors.New("device: no MIDI port open")
	ErrUnsupportedPlatform = errors.New("device: driver not available on this platform")
)

// Driver is the hardware MIDI input capability.
type Driver interface {
	// Ports lists input port names in driver order.
	Ports() ([]string, error)
	// Open opens the input port at index.
	Open(index int) error
	// OnMessage sets the handler that receives raw messages from the open port.
	OnMessage(handler func(msg []byte))
	// Close closes the open port.
	Close() error
}

// Inventory is the enumeration result shared with every client in the hello
// handshake.
type Inventory struct {
	Devices      []string
	SelectedPort int
}

// Selected returns the selected port name, or "" if none.
func (inv Inventory) Selected() string {
	if inv.SelectedPort < 0 || inv.SelectedPort >= len(inv.Devices) {
		return ""
	}
	return inv.Devices[inv.SelectedPort]
}

// excludedSubstring marks loopback ports that never carry a player's input.
const excludedSubstring = "through"

// SelectPort returns the index of the first port whose name does not contain
// "through" (case-insensitive), or -1.
func SelectPort(names []string) int {
	for i, name := range names {
		if !strings.Contains(strings.ToLower(name), excludedSubstring) {
			return i
		}
	}
	return -1
}

// Enumerate lists the driver's ports and picks the input to capture. A driver
// error is logged and treated as an empty port list.
func Enumerate(drv Driver, logger *zap.Logger) Inventory {
	names, err := drv.Ports()
	if err != nil {
		logger.Warn("Failed to list MIDI ports", zap.Error(err))
		names = nil
	}
	if names == nil {
		names = []string{}
	}

	inv := Inventory{
		Devices:      names,
		SelectedPort: SelectPort(names),
	}

	if inv.SelectedPort >= 0 {
		logger.Info("MIDI input selected",
			zap.Int("port", inv.SelectedPort),
			zap.String("device", inv.Selected()),
			zap.Strings("devices", names))
	} else {
		logger.Warn("No MIDI input devices found", zap.Strings("devices", names))
	}
	return inv
}

// NoneDriver has no ports. It lets the relay run on machines without MIDI.
type NoneDriver struct{}

func (NoneDriver) Ports() ([]string, error)   { return nil, nil }
func (NoneDriver) Open(index int) error       { return ErrInvalidPort }
func (NoneDriver) OnMessage(func(msg []byte)) {}
func (NoneDriver) Close() error               { return nil }
