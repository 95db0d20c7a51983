// Package capture connects the selected hardware input to the relay: it
// enumerates ports once, opens the chosen one and forwards normalized note
// events to a broadcaster.
package capture

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/device"
	"github.com/yourusername/sightread-relay/internal/metrics"
	"github.com/yourusername/sightread-relay/internal/model"
	"github.com/yourusername/sightread-relay/internal/protocol"
)

// Broadcaster receives normalized note events.
type Broadcaster interface {
	Broadcast(ev model.NoteEvent)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// Adapter owns the single open hardware port.
type Adapter struct {
	drv     device.Driver
	out     Broadcaster
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	inv    device.Inventory
	opened bool
}

// New creates a capture adapter reading from drv and writing to out.
func New(drv device.Driver, out Broadcaster, opts ...Option) *Adapter {
	a := &Adapter{
		drv:    drv,
		out:    out,
		logger: zap.NewNop(),
		inv:    device.Inventory{Devices: []string{}, SelectedPort: -1},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start enumerates the ports and, if one was selected, subscribes and opens
// it. With no usable port it only returns the inventory for the handshake.
func (a *Adapter) Start() (device.Inventory, error) {
	inv := device.Enumerate(a.drv, a.logger)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inv = inv

	if inv.SelectedPort < 0 {
		return inv, nil
	}

	a.drv.OnMessage(a.handleMessage)
	if err := a.drv.Open(inv.SelectedPort); err != nil {
		return inv, fmt.Errorf("capture: open port %d (%s): %w", inv.SelectedPort, inv.Selected(), err)
	}
	a.opened = true

	a.logger.Info("Opened MIDI port",
		zap.Int("port", inv.SelectedPort),
		zap.String("device", inv.Selected()))
	return inv, nil
}

// Close closes the hardware port if Start opened one. Safe to call twice.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.opened {
		return nil
	}
	a.opened = false
	if err := a.drv.Close(); err != nil {
		return fmt.Errorf("capture: close port: %w", err)
	}
	a.logger.Info("Closed MIDI port", zap.String("device", a.inv.Selected()))
	return nil
}

// handleMessage runs on the driver's delivery goroutine. Malformed and
// unsupported messages are dropped without error.
func (a *Adapter) handleMessage(msg []byte) {
	if len(msg) != protocol.RawMessageSize {
		a.metrics.RawDropped(metrics.ReasonBadLength)
		return
	}

	ev, ok := protocol.Normalize(msg)
	if !ok {
		a.metrics.RawDropped(metrics.ReasonNotANote)
		return
	}

	a.out.Broadcast(ev)
}
