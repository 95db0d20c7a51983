package tcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/capture"
	"github.com/yourusername/sightread-relay/internal/device"
	"github.com/yourusername/sightread-relay/internal/model"
)

type collector struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *collector) handle(msg []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, append([]byte(nil), msg...))
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", zap.NewNop())
	if err := server.Open(0); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func send(t *testing.T, conn net.Conn, reader *bufio.Reader, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("Failed to write data: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	ack, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read ACK: %v", err)
	}
	if ack != "OK\n" {
		t.Errorf("Expected 'OK\\n', got '%s'", ack)
	}
}

func TestServer_Ports(t *testing.T) {
	server := NewServer(":5008", zap.NewNop())

	ports, err := server.Ports()
	if err != nil {
		t.Fatalf("Ports error: %v", err)
	}
	if len(ports) != 1 || ports[0] != "Network MIDI (:5008)" {
		t.Errorf("Expected one network port, got %v", ports)
	}
	if got := device.SelectPort(ports); got != 0 {
		t.Errorf("Expected network port to be selectable, got %d", got)
	}
}

func TestServer_OpenInvalidPort(t *testing.T) {
	server := NewServer("127.0.0.1:0", zap.NewNop())
	if err := server.Open(1); !errors.Is(err, device.ErrInvalidPort) {
		t.Errorf("Expected ErrInvalidPort, got %v", err)
	}
	if err := server.Close(); !errors.Is(err, device.ErrPortNotOpen) {
		t.Errorf("Expected ErrPortNotOpen, got %v", err)
	}
}

func TestServer_HandleMIDIMessages(t *testing.T) {
	server := startServer(t)
	c := &collector{}
	server.OnMessage(c.handle)

	conn, err := net.Dial("tcp", server.Addr())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	batchCount := 10
	for i := 0; i < batchCount; i++ {
		send(t, conn, reader, Message{Type: MessageTypeMIDI, Data: []int{0x90, 60 + i, 100}})
	}

	if c.count() != batchCount {
		t.Fatalf("Expected %d messages, got %d", batchCount, c.count())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, msg := range c.msgs {
		if len(msg) != 3 || msg[0] != 0x90 || msg[1] != byte(60+i) || msg[2] != 100 {
			t.Errorf("Message %d: unexpected bytes %v", i, msg)
		}
	}
}

func TestServer_SkipsInvalidLines(t *testing.T) {
	server := startServer(t)
	c := &collector{}
	server.OnMessage(c.handle)

	conn, err := net.Dial("tcp", server.Addr())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	conn.Write([]byte("not json\n"))
	conn.Write([]byte(`{"type":"emg_data","data":[1,2,3]}` + "\n"))
	conn.Write([]byte(`{"type":"midi","data":[144,300,1]}` + "\n"))
	conn.Write([]byte(`{"type":"midi","data":[144,60,1,0]}` + "\n"))
	conn.Write([]byte(`{"type":"midi","data":[]}` + "\n"))

	// Only this one is acknowledged.
	send(t, conn, reader, Message{Type: MessageTypeMIDI, Data: []int{0x80, 60, 0}})

	if c.count() != 1 {
		t.Errorf("Expected only the valid message, got %d", c.count())
	}
}

func TestServer_MultipleInstruments(t *testing.T) {
	server := startServer(t)
	c := &collector{}
	server.OnMessage(c.handle)

	deviceCount := 3
	for i := 0; i < deviceCount; i++ {
		conn, err := net.Dial("tcp", server.Addr())
		if err != nil {
			t.Fatalf("Device %d: failed to connect: %v", i, err)
		}
		defer conn.Close()
		send(t, conn, bufio.NewReader(conn), Message{Type: MessageTypeMIDI, Data: []int{0x90, 60, 100}})
	}

	if c.count() != deviceCount {
		t.Errorf("Expected %d messages, got %d", deviceCount, c.count())
	}
}

func TestServer_CloseDropsConnections(t *testing.T) {
	server := NewServer("127.0.0.1:0", zap.NewNop())
	if err := server.Open(0); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	conn, err := net.Dial("tcp", server.Addr())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	send(t, conn, bufio.NewReader(conn), Message{Type: MessageTypeMIDI, Data: []int{0x90, 60, 100}})

	done := make(chan error, 1)
	go func() { done <- server.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("Expected connection to be closed")
	}
}

type events struct {
	mu  sync.Mutex
	got []model.NoteEvent
}

func (e *events) Broadcast(ev model.NoteEvent) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
}

func TestServer_AsCaptureDriver(t *testing.T) {
	server := NewServer("127.0.0.1:0", zap.NewNop())
	out := &events{}
	adapter := capture.New(server, out)

	inv, err := adapter.Start()
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer adapter.Close()
	if inv.SelectedPort != 0 {
		t.Fatalf("Expected selected port 0, got %d", inv.SelectedPort)
	}

	conn, err := net.Dial("tcp", server.Addr())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)
	send(t, conn, reader, Message{Type: MessageTypeMIDI, Data: []int{0x90, 60, 100}})
	send(t, conn, reader, Message{Type: MessageTypeMIDI, Data: []int{0xB0, 7, 90}})
	send(t, conn, reader, Message{Type: MessageTypeMIDI, Data: []int{0x90, 60, 0}})

	out.mu.Lock()
	defer out.mu.Unlock()
	want := []model.NoteEvent{
		{Kind: model.NoteOn, Note: 60, Velocity: 100},
		{Kind: model.NoteOff, Note: 60, Velocity: 0},
	}
	if len(out.got) != len(want) {
		t.Fatalf("Expected %d events, got %+v", len(want), out.got)
	}
	for i := range want {
		if out.got[i] != want[i] {
			t.Errorf("Event %d: expected %+v, got %+v", i, want[i], out.got[i])
		}
	}
}
