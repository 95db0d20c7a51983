package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/metrics"
	"github.com/yourusername/sightread-relay/internal/model"
)

// ErrAlreadyRunning is returned by Run when the client is already running.
var ErrAlreadyRunning = errors.New("client: already running")

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithHelloHandler sets a callback for the server's hello message.
func WithHelloHandler(fn func(model.Hello)) Option {
	return func(c *Client) {
		c.onHello = fn
	}
}

// WithReconnectOptions passes options through to the Reconnector.
func WithReconnectOptions(opts ...ReconnectOption) Option {
	return func(c *Client) {
		c.reconnectOpts = append(c.reconnectOpts, opts...)
	}
}

// Client holds one relay connection open for as long as Run runs, feeding
// every frame to a Decoder.
type Client struct {
	url           string
	dialer        *websocket.Dialer
	decoder       *Decoder
	logger        *zap.Logger
	metrics       *metrics.Metrics
	onHello       func(model.Hello)
	reconnectOpts []ReconnectOption
	machine       *Reconnector

	mu      sync.Mutex
	ctx     context.Context
	conn    *websocket.Conn
	running bool
	closed  bool
	wg      sync.WaitGroup
}

// New creates a client for the relay endpoint at url (e.g.
// ws://host:3000/midi) dispatching notes to sink.
func New(url string, sink NoteSink, opts ...Option) *Client {
	c := &Client{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		decoder: NewDecoder(sink),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	ropts := []ReconnectOption{
		OnRetryScheduled(func(delay time.Duration) {
			c.metrics.ClientReconnect()
			c.logger.Debug("Reconnect scheduled", zap.Duration("delay", delay))
		}),
	}
	c.machine = NewReconnector(c.connect, append(ropts, c.reconnectOpts...)...)
	return c
}

// Phase returns the connection phase.
func (c *Client) Phase() Phase {
	return c.machine.Phase()
}

// Run connects and keeps reconnecting until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	c.machine.Start()
	<-ctx.Done()

	c.machine.Stop()
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}

// connect is the Reconnector's attempt hook; the attempt runs on its own
// goroutine.
func (c *Client) connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go c.session(c.ctx)
}

func (c *Client) session(ctx context.Context) {
	defer c.wg.Done()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Debug("Relay connection failed", zap.String("url", c.url), zap.Error(err))
		c.machine.Failed(nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		c.machine.Closed()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.machine.Opened()
	c.logger.Info("Connected to MIDI relay", zap.String("url", c.url))

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Relay connection error", zap.Error(err))
			}
			c.machine.Failed(c.closeConn)
			c.logger.Info("Disconnected from MIDI relay", zap.String("url", c.url))
			return
		}

		if messageType == websocket.TextMessage {
			c.handleText(data)
			continue
		}
		c.decoder.Handle(messageType, data)
	}
}

func (c *Client) handleText(data []byte) {
	var hello model.Hello
	if err := json.Unmarshal(data, &hello); err != nil || hello.Type != model.MessageTypeHello {
		return
	}
	c.logger.Info("Relay hello",
		zap.Strings("devices", hello.Devices),
		zap.Int("selectedPort", hello.SelectedPort))
	if c.onHello != nil {
		c.onHello(hello)
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
