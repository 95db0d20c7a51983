package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/yourusername/sightread-relay/internal/model"
)

func TestNormalize_NoteMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want model.NoteEvent
	}{
		{"note on", []byte{0x90, 60, 100}, model.NoteEvent{Kind: model.NoteOn, Note: 60, Velocity: 100}},
		{"note on zero velocity", []byte{0x90, 60, 0}, model.NoteEvent{Kind: model.NoteOff, Note: 60, Velocity: 0}},
		{"note off", []byte{0x80, 60, 40}, model.NoteEvent{Kind: model.NoteOff, Note: 60, Velocity: 40}},
		{"note on other channel", []byte{0x9F, 21, 1}, model.NoteEvent{Kind: model.NoteOn, Note: 21, Velocity: 1}},
		{"note off other channel", []byte{0x83, 108, 0}, model.NoteEvent{Kind: model.NoteOff, Note: 108, Velocity: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw)
			if !ok {
				t.Fatalf("Expected %v to produce an event", tt.raw)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestNormalize_DropsOtherMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"control change", []byte{0xB0, 7, 90}},
		{"pitch bend", []byte{0xE0, 0, 64}},
		{"poly aftertouch", []byte{0xA0, 60, 20}},
		{"too short", []byte{0x90, 60}},
		{"too long", []byte{0x90, 60, 100, 0}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ev, ok := Normalize(tt.raw); ok {
				t.Errorf("Expected %v to be dropped, got %+v", tt.raw, ev)
			}
		})
	}
}

func TestEncode_Layout(t *testing.T) {
	f := Encode(model.NoteEvent{Kind: model.NoteOn, Note: 60, Velocity: 100})
	if !bytes.Equal(f, []byte{1, 60, 100, 0}) {
		t.Errorf("Expected [1 60 100 0], got %v", []byte(f))
	}

	f = Encode(model.NoteEvent{Kind: model.NoteOff, Note: 60, Velocity: 0})
	if !bytes.Equal(f, []byte{0, 60, 0, 0}) {
		t.Errorf("Expected [0 60 0 0], got %v", []byte(f))
	}

	if len(f) != FrameSize {
		t.Errorf("Expected frame length %d, got %d", FrameSize, len(f))
	}
	if f.Type() != TypeOff || f.Note() != 60 || f.Velocity() != 0 {
		t.Errorf("Unexpected accessors: type=%d note=%d velocity=%d", f.Type(), f.Note(), f.Velocity())
	}
}

func TestEncode_FreshBuffer(t *testing.T) {
	a := Encode(model.NoteEvent{Kind: model.NoteOn, Note: 1, Velocity: 2})
	b := Encode(model.NoteEvent{Kind: model.NoteOn, Note: 3, Velocity: 4})
	a[1] = 99
	if b[1] != 3 {
		t.Errorf("Expected independent frames, second frame note changed to %d", b[1])
	}
}

func TestNormalizeThenEncode(t *testing.T) {
	ev, ok := Normalize([]byte{0x90, 64, 0})
	if !ok {
		t.Fatal("Expected note on with zero velocity to normalize")
	}
	if f := Encode(ev); !bytes.Equal(f, []byte{0, 64, 0, 0}) {
		t.Errorf("Expected release frame [0 64 0 0], got %v", []byte(f))
	}
}

func TestEncodeHello(t *testing.T) {
	data, err := EncodeHello(model.NewHello([]string{"Midi Through Port-0", "Keystation 61"}, 1))
	if err != nil {
		t.Fatalf("EncodeHello error: %v", err)
	}

	want := `{"type":"hello","devices":["Midi Through Port-0","Keystation 61"],"selectedPort":1}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}
}

func TestEncodeHello_NoDevices(t *testing.T) {
	data, err := EncodeHello(model.Hello{SelectedPort: -1})
	if err != nil {
		t.Fatalf("EncodeHello error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal hello: %v", err)
	}
	if decoded["type"] != "hello" {
		t.Errorf("Expected type 'hello', got %v", decoded["type"])
	}
	devices, ok := decoded["devices"].([]any)
	if !ok || len(devices) != 0 {
		t.Errorf("Expected empty devices array, got %v", decoded["devices"])
	}
	if decoded["selectedPort"] != float64(-1) {
		t.Errorf("Expected selectedPort -1, got %v", decoded["selectedPort"])
	}
}
