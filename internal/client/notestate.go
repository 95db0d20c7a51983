package client

import (
	"sort"
	"sync"
)

// NoteState tracks which notes are currently held. It is the default sink for
// the monitor command.
type NoteState struct {
	mu       sync.Mutex
	held     map[uint8]uint8
	onChange func(note, velocity uint8, down bool)
}

// NewNoteState creates an empty note state. onChange, if set, is called after
// every press and release.
func NewNoteState(onChange func(note, velocity uint8, down bool)) *NoteState {
	return &NoteState{
		held:     make(map[uint8]uint8),
		onChange: onChange,
	}
}

func (s *NoteState) Press(note, velocity uint8) {
	s.mu.Lock()
	s.held[note] = velocity
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(note, velocity, true)
	}
}

func (s *NoteState) Release(note uint8) {
	s.mu.Lock()
	delete(s.held, note)
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(note, 0, false)
	}
}

// Held returns the held notes in ascending order.
func (s *NoteState) Held() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	notes := make([]uint8, 0, len(s.held))
	for n := range s.held {
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i] < notes[j] })
	return notes
}

// Velocity returns the press velocity of a held note.
func (s *NoteState) Velocity(note uint8) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.held[note]
	return v, ok
}

// Reset releases every held note, e.g. after the connection drops.
func (s *NoteState) Reset() {
	for _, n := range s.Held() {
		s.Release(n)
	}
}
