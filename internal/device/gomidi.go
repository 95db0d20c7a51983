package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/zap"
)

// GomidiDriver adapts a gomidi driver (rtmidi in production) to Driver.
type GomidiDriver struct {
	drv     drivers.Driver
	logger  *zap.Logger
	handler atomic.Value // func([]byte)

	mu     sync.Mutex
	in     drivers.In
	stopFn func()
}

// NewGomidiDriver wraps drv. The caller keeps ownership of drv and closes it.
func NewGomidiDriver(drv drivers.Driver, logger *zap.Logger) *GomidiDriver {
	return &GomidiDriver{
		drv:    drv,
		logger: logger,
	}
}

// Ports lists the driver's input ports in driver order.
func (g *GomidiDriver) Ports() ([]string, error) {
	ins, err := g.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("device: list inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// Open opens the input at index and starts listening. Messages go to the
// handler set with OnMessage; messages arriving before one is set are dropped.
func (g *GomidiDriver) Open(index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ins, err := g.drv.Ins()
	if err != nil {
		return fmt.Errorf("device: list inputs: %w", err)
	}
	if index < 0 || index >= len(ins) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, index)
	}

	g.closeLocked()

	in := ins[index]
	if err := in.Open(); err != nil {
		return fmt.Errorf("device: open %q: %w", in.String(), err)
	}

	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		g.dispatch(msg)
	}, midi.HandleError(func(listenErr error) {
		g.logger.Warn("MIDI listener error", zap.String("device", in.String()), zap.Error(listenErr))
	}))
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("device: listen %q: %w", in.String(), err)
	}

	g.in = in
	g.stopFn = stop
	return nil
}

// OnMessage sets the raw message handler.
func (g *GomidiDriver) OnMessage(handler func(msg []byte)) {
	g.handler.Store(handler)
}

// Close stops listening and closes the open input.
func (g *GomidiDriver) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.in == nil {
		return ErrPortNotOpen
	}
	return g.closeLocked()
}

func (g *GomidiDriver) closeLocked() error {
	if g.stopFn != nil {
		g.stopFn()
		g.stopFn = nil
	}
	if g.in == nil {
		return nil
	}
	err := g.in.Close()
	g.in = nil
	if err != nil {
		return fmt.Errorf("device: close input: %w", err)
	}
	return nil
}

func (g *GomidiDriver) dispatch(msg []byte) {
	handler, _ := g.handler.Load().(func([]byte))
	if handler == nil {
		return
	}
	handler(msg)
}
