package capture

import (
	"errors"
	"sync"
	"testing"

	"github.com/yourusername/sightread-relay/internal/model"
)

// fakeDriver records calls and lets tests push raw messages.
type fakeDriver struct {
	mu         sync.Mutex
	ports      []string
	openErr    error
	opened     []int
	closed     int
	subscribed bool
	handler    func([]byte)
}

func (d *fakeDriver) Ports() ([]string, error) {
	return d.ports, nil
}

func (d *fakeDriver) Open(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opened = append(d.opened, index)
	return nil
}

func (d *fakeDriver) OnMessage(handler func(msg []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribed = true
	d.handler = handler
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *fakeDriver) emit(msg []byte) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

type recordingBroadcaster struct {
	events []model.NoteEvent
}

func (r *recordingBroadcaster) Broadcast(ev model.NoteEvent) {
	r.events = append(r.events, ev)
}

func TestAdapter_StartOpensSelectedPort(t *testing.T) {
	drv := &fakeDriver{ports: []string{"Midi Through Port-0", "Keystation 61"}}
	out := &recordingBroadcaster{}

	a := New(drv, out)
	inv, err := a.Start()
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	if inv.SelectedPort != 1 {
		t.Errorf("Expected selected port 1, got %d", inv.SelectedPort)
	}
	if len(drv.opened) != 1 || drv.opened[0] != 1 {
		t.Errorf("Expected port 1 to be opened once, got %v", drv.opened)
	}
	if !drv.subscribed {
		t.Error("Expected adapter to subscribe to messages")
	}
}

func TestAdapter_NoDevices(t *testing.T) {
	drv := &fakeDriver{}
	out := &recordingBroadcaster{}

	a := New(drv, out)
	inv, err := a.Start()
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	if inv.SelectedPort != -1 {
		t.Errorf("Expected selected port -1, got %d", inv.SelectedPort)
	}
	if len(inv.Devices) != 0 {
		t.Errorf("Expected no devices, got %v", inv.Devices)
	}
	if drv.subscribed || len(drv.opened) != 0 {
		t.Error("Expected no subscription and no open without devices")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	if drv.closed != 0 {
		t.Errorf("Expected no driver close, got %d", drv.closed)
	}
}

func TestAdapter_OnlyThroughPorts(t *testing.T) {
	drv := &fakeDriver{ports: []string{"Through A", "Through B"}}
	a := New(drv, &recordingBroadcaster{})

	inv, err := a.Start()
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if inv.SelectedPort != -1 {
		t.Errorf("Expected selected port -1, got %d", inv.SelectedPort)
	}
	if len(inv.Devices) != 2 {
		t.Errorf("Expected both devices in the inventory, got %v", inv.Devices)
	}
	if drv.subscribed {
		t.Error("Expected no subscription")
	}
}

func TestAdapter_ForwardsNormalizedEvents(t *testing.T) {
	drv := &fakeDriver{ports: []string{"Keystation 61"}}
	out := &recordingBroadcaster{}

	a := New(drv, out)
	if _, err := a.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	drv.emit([]byte{0x90, 60, 100})
	drv.emit([]byte{0xB0, 7, 90})
	drv.emit([]byte{0x90, 60})
	drv.emit([]byte{0x90, 60, 100, 1})
	drv.emit(nil)
	drv.emit([]byte{0x90, 60, 0})
	drv.emit([]byte{0x80, 62, 40})

	want := []model.NoteEvent{
		{Kind: model.NoteOn, Note: 60, Velocity: 100},
		{Kind: model.NoteOff, Note: 60, Velocity: 0},
		{Kind: model.NoteOff, Note: 62, Velocity: 40},
	}
	if len(out.events) != len(want) {
		t.Fatalf("Expected %d events, got %d: %+v", len(want), len(out.events), out.events)
	}
	for i := range want {
		if out.events[i] != want[i] {
			t.Errorf("Event %d: expected %+v, got %+v", i, want[i], out.events[i])
		}
	}
}

func TestAdapter_OpenError(t *testing.T) {
	boom := errors.New("device busy")
	drv := &fakeDriver{ports: []string{"Keystation 61"}, openErr: boom}

	a := New(drv, &recordingBroadcaster{})
	inv, err := a.Start()
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped open error, got %v", err)
	}
	if inv.SelectedPort != 0 {
		t.Errorf("Expected inventory to be returned with the failed selection, got %d", inv.SelectedPort)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	if drv.closed != 0 {
		t.Errorf("Expected no close for a port that never opened, got %d", drv.closed)
	}
}

func TestAdapter_CloseOnce(t *testing.T) {
	drv := &fakeDriver{ports: []string{"Keystation 61"}}
	a := New(drv, &recordingBroadcaster{})
	if _, err := a.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Second Close error: %v", err)
	}
	if drv.closed != 1 {
		t.Errorf("Expected 1 driver close, got %d", drv.closed)
	}
}
