package protocol

import "github.com/yourusername/sightread-relay/internal/model"

// Channel message status nibbles.
const (
	StatusNoteOff byte = 0x8
	StatusNoteOn  byte = 0x9
)

// RawMessageSize is the only raw message length the normalizer accepts.
const RawMessageSize = 3

// Normalize maps a raw 3-byte channel message to a note event. Anything that
// is not a Note On or Note Off is dropped (ok == false). A Note On with
// velocity 0 is a release.
func Normalize(raw []byte) (ev model.NoteEvent, ok bool) {
	if len(raw) != RawMessageSize {
		return model.NoteEvent{}, false
	}

	status := raw[0] >> 4
	if status != StatusNoteOn && status != StatusNoteOff {
		return model.NoteEvent{}, false
	}

	ev = model.NoteEvent{
		Kind:     model.NoteOff,
		Note:     raw[1],
		Velocity: raw[2],
	}
	if status == StatusNoteOn && raw[2] > 0 {
		ev.Kind = model.NoteOn
	}
	return ev, true
}
