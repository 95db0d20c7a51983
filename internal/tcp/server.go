// Package tcp accepts MIDI from networked instruments, e.g. a microcontroller
// with a DIN jack, and exposes it as one virtual input port.
//
// Each connection sends line-delimited JSON messages:
//
//	{"type":"midi","data":[144,60,100]}
//
// and receives "OK\n" per accepted message.
package tcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/device"
)

// MessageTypeMIDI marks a raw MIDI message.
const MessageTypeMIDI = "midi"

const (
	readTimeout    = 5 * time.Minute
	maxLineSize    = 4096
	maxMessageSize = 3
)

// Message is one line on the wire.
type Message struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// Server represents the TCP server. It implements device.Driver with a
// single port.
type Server struct {
	address string
	logger  *zap.Logger
	handler atomic.Value

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a new TCP server instance
func NewServer(address string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		address: address,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// PortName is the name the server's port is listed under.
func (s *Server) PortName() string {
	return "Network MIDI (" + s.address + ")"
}

// Ports lists the single network port.
func (s *Server) Ports() ([]string, error) {
	return []string{s.PortName()}, nil
}

// OnMessage sets the raw message handler.
func (s *Server) OnMessage(handler func(msg []byte)) {
	s.handler.Store(handler)
}

// Open starts listening. Only index 0 exists.
func (s *Server) Open(index int) error {
	if index != 0 {
		return fmt.Errorf("%w: %d", device.ErrInvalidPort, index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("tcp: failed to start server: %w", err)
	}
	s.listener = listener
	s.logger.Info("TCP MIDI server listening", zap.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go s.acceptConnections(listener)
	return nil
}

// Addr returns the bound address once open.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}

// Close stops the listener, drops every connection and waits for the
// connection goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return device.ErrPortNotOpen
	}
	err := s.listener.Close()
	s.listener = nil
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// acceptConnections accepts incoming TCP connections
func (s *Server) acceptConnections(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Failed to accept connection", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if s.listener == nil {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		s.logger.Info("MIDI instrument connected", zap.String("remote", conn.RemoteAddr().String()))
		go s.handleConnection(conn)
	}
}

// handleConnection handles individual TCP connections
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		s.logger.Info("MIDI instrument disconnected", zap.String("remote", conn.RemoteAddr().String()))
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineSize)

	for {
		// Set read deadline to detect dead connections
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("Read error", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Debug("Unparseable line", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			continue
		}
		if msg.Type != MessageTypeMIDI {
			s.logger.Debug("Unknown message type", zap.String("type", msg.Type))
			continue
		}

		raw, ok := toBytes(msg.Data)
		if !ok {
			s.logger.Debug("Invalid MIDI data", zap.Ints("data", msg.Data))
			continue
		}
		s.dispatch(raw)

		if _, err := conn.Write([]byte("OK\n")); err != nil {
			s.logger.Debug("Failed to acknowledge", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(msg []byte) {
	handler, _ := s.handler.Load().(func([]byte))
	if handler == nil {
		return
	}
	handler(msg)
}

// toBytes converts wire values to a raw message. Values must be bytes; longer
// than a channel voice message is rejected.
func toBytes(values []int) ([]byte, bool) {
	if len(values) == 0 || len(values) > maxMessageSize {
		return nil, false
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 0xFF {
			return nil, false
		}
		out[i] = byte(v)
	}
	return out, true
}
