package hub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/metrics"
	"github.com/yourusername/sightread-relay/internal/model"
	"github.com/yourusername/sightread-relay/internal/protocol"
)

// State is the lifecycle state of a client connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultSendBuffer is the outbound queue length of a client.
const DefaultSendBuffer = 256

// Outbound is one message queued for a client's write pump.
type Outbound struct {
	Binary bool
	Data   []byte
}

// Client represents a WebSocket client connection
type Client struct {
	ID    string
	Send  chan Outbound
	state atomic.Int32
}

// NewClient creates a client in the connecting state with a random ID.
func NewClient(buffer int) *Client {
	if buffer < 1 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:   uuid.New().String(),
		Send: make(chan Outbound, buffer),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// MarkClosing flags the connection as going away. The hub stops sending to it
// immediately, before its unregistration is processed.
func (c *Client) MarkClosing() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing))
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithQueueSize sets the length of the hub's inbound event queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.broadcast = make(chan model.NoteEvent, n)
		}
	}
}

// Hub maintains the open client connections and fans note frames out to them.
// All mutations of the client set happen on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan model.NoteEvent

	// Encoded hello handshake, sent once per connection.
	hello []byte

	done     chan struct{}
	stopOnce sync.Once

	logger  *zap.Logger
	metrics *metrics.Metrics

	mu sync.RWMutex
}

// NewHub creates a new Hub instance. Until SetHello is called, clients are
// greeted with an empty device list and no selected port.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan model.NoteEvent, 256),
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.SetHello(model.NewHello(nil, -1))
	return h
}

// SetHello replaces the handshake snapshot sent to connections registered
// from now on.
func (h *Hub) SetHello(hello model.Hello) {
	data, err := protocol.EncodeHello(hello)
	if err != nil {
		h.logger.Error("Failed to encode hello", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.hello = data
	h.mu.Unlock()
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.setState(StateClosed)
				close(client.Send)
				delete(h.clients, client)
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			hello := h.hello
			h.clients[client] = true
			h.mu.Unlock()

			// The queue is fresh, so the hello is always first on the wire.
			select {
			case client.Send <- Outbound{Data: hello}:
				h.metrics.HelloSent()
			default:
				h.logger.Warn("Client queue full before hello", zap.String("client", client.ID))
			}
			client.setState(StateOpen)
			h.metrics.ConnectionOpened()
			h.logger.Info("Client registered",
				zap.String("client", client.ID),
				zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				client.setState(StateClosed)
				close(client.Send)
			}
			h.mu.Unlock()
			if ok {
				h.metrics.ConnectionClosed()
				h.logger.Info("Client unregistered",
					zap.String("client", client.ID),
					zap.Int("clients", len(h.clients)))
			}

		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

// fanOut queues the same frame to every open client. Clients that are not
// open, or whose queue is full, miss this frame.
func (h *Hub) fanOut(ev model.NoteEvent) {
	frame := protocol.Encode(ev)
	h.metrics.NoteEvent(ev.Kind.String())

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.State() != StateOpen {
			h.metrics.FrameSkipped(metrics.ReasonNotOpen)
			continue
		}
		select {
		case client.Send <- Outbound{Binary: true, Data: frame}:
			h.metrics.FrameSent()
		default:
			h.metrics.FrameSkipped(metrics.ReasonQueueFull)
			h.logger.Debug("Client queue full, dropping frame", zap.String("client", client.ID))
		}
	}
}

// Register adds a client to the hub. It returns false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	client.MarkClosing()
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a note event for every open client.
// Non-blocking: if the queue is full the event is dropped so the capture
// callback never stalls.
func (h *Hub) Broadcast(ev model.NoteEvent) {
	select {
	case h.broadcast <- ev:
	default:
		h.metrics.FrameSkipped(metrics.ReasonHubBusy)
		h.logger.Warn("Broadcast queue full, dropping note event",
			zap.Uint8("note", ev.Note),
			zap.Stringer("kind", ev.Kind))
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop gracefully stops the hub
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}
