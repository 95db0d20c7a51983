// Package protocol holds the relay wire format: the raw MIDI normalizer, the
// fixed 4-byte note frame and the hello handshake message.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/yourusername/sightread-relay/internal/model"
)

// FrameSize is the length of every note frame on the wire.
const FrameSize = 4

// Frame layout: [type, note, velocity, reserved]
//
//	type     1 = note on, 0 = note off
//	reserved always 0 when encoding, ignored when decoding
const (
	TypeOff byte = 0
	TypeOn  byte = 1
)

// Frame is an encoded note frame. Accessors assume len(f) >= 3; the reserved
// byte is never read.
type Frame []byte

func (f Frame) Type() byte {
	return f[0]
}

func (f Frame) Note() uint8 {
	return f[1]
}

func (f Frame) Velocity() uint8 {
	return f[2]
}

// Encode serializes a note event into a fresh frame. Any change here needs
// the matching change in the client decoder.
func Encode(ev model.NoteEvent) Frame {
	f := make(Frame, FrameSize)
	if ev.Kind == model.NoteOn {
		f[0] = TypeOn
	} else {
		f[0] = TypeOff
	}
	f[1] = ev.Note
	f[2] = ev.Velocity
	f[3] = 0
	return f
}

// EncodeHello marshals the handshake message sent once per connection.
func EncodeHello(h model.Hello) ([]byte, error) {
	if h.Type == "" {
		h.Type = model.MessageTypeHello
	}
	if h.Devices == nil {
		h.Devices = []string{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal hello: %w", err)
	}
	return data, nil
}
