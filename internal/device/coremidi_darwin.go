//go:build darwin

package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/youpy/go-coremidi"
	"go.uber.org/zap"
)

type portConnection interface {
	Disconnect()
}

// CoreMIDIDriver reads MIDI sources through CoreMIDI directly.
type CoreMIDIDriver struct {
	logger   *zap.Logger
	client   coremidi.Client
	handler  atomic.Value // func([]byte)
	splitter *packetSplitter

	mu       sync.Mutex
	port     coremidi.InputPort
	portConn portConnection
}

// NewCoreMIDIDriver creates a CoreMIDI client named clientName.
func NewCoreMIDIDriver(clientName string, logger *zap.Logger) (*CoreMIDIDriver, error) {
	client, err := coremidi.NewClient(clientName)
	if err != nil {
		return nil, fmt.Errorf("device: coremidi client: %w", err)
	}
	c := &CoreMIDIDriver{
		logger: logger,
		client: client,
	}
	c.splitter = newPacketSplitter(c.dispatch)
	return c, nil
}

// Ports lists CoreMIDI sources in system order.
func (c *CoreMIDIDriver) Ports() ([]string, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("device: list coremidi sources: %w", err)
	}
	names := make([]string, len(sources))
	for i, source := range sources {
		names[i] = source.Name()
	}
	return names, nil
}

// Open connects an input port to the source at index.
func (c *CoreMIDIDriver) Open(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sources, err := coremidi.AllSources()
	if err != nil {
		return fmt.Errorf("device: list coremidi sources: %w", err)
	}
	if index < 0 || index >= len(sources) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, index)
	}

	if c.portConn != nil {
		c.portConn.Disconnect()
		c.portConn = nil
	}

	c.splitter.Reset()
	c.port, err = coremidi.NewInputPort(c.client, "Relay Input", c.handlePacket)
	if err != nil {
		return fmt.Errorf("device: create input port: %w", err)
	}

	conn, err := c.port.Connect(sources[index])
	if err != nil {
		return fmt.Errorf("device: connect %q: %w", sources[index].Name(), err)
	}
	c.portConn = conn
	return nil
}

// OnMessage sets the raw message handler.
func (c *CoreMIDIDriver) OnMessage(handler func(msg []byte)) {
	c.handler.Store(handler)
}

// Close disconnects the input port.
func (c *CoreMIDIDriver) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.portConn == nil {
		return ErrPortNotOpen
	}
	c.portConn.Disconnect()
	c.portConn = nil
	return nil
}

func (c *CoreMIDIDriver) handlePacket(_ coremidi.Source, packet coremidi.Packet) {
	c.splitter.Write(packet.Data)
}

func (c *CoreMIDIDriver) dispatch(msg []byte) {
	handler, _ := c.handler.Load().(func([]byte))
	if handler == nil {
		return
	}
	handler(msg)
}
