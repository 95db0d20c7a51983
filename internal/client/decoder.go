// Package client is the receiving end of the relay: it decodes note frames
// into press/release calls and keeps one connection alive with backoff.
package client

import (
	"github.com/gorilla/websocket"

	"github.com/yourusername/sightread-relay/internal/protocol"
)

// NoteSink receives decoded note actions.
type NoteSink interface {
	Press(note, velocity uint8)
	Release(note uint8)
}

// minFrameSize is the shortest payload the decoder accepts; the reserved
// fourth byte is never needed.
const minFrameSize = 3

// Decoder turns inbound relay messages into NoteSink calls. It holds no state
// of its own.
type Decoder struct {
	sink NoteSink
}

// NewDecoder creates a decoder dispatching to sink.
func NewDecoder(sink NoteSink) *Decoder {
	return &Decoder{sink: sink}
}

// Handle decodes one message. Non-binary messages and payloads shorter than
// three bytes are ignored. Velocity 0 is always a release, whatever the type
// byte says.
func (d *Decoder) Handle(messageType int, payload []byte) {
	if messageType != websocket.BinaryMessage {
		return
	}
	if len(payload) < minFrameSize {
		return
	}

	f := protocol.Frame(payload)
	if f.Type() == protocol.TypeOn && f.Velocity() > 0 {
		d.sink.Press(f.Note(), f.Velocity())
		return
	}
	d.sink.Release(f.Note())
}
