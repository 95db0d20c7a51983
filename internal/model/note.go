package model

// Kind distinguishes a key press from a key release.
type Kind uint8

const (
	NoteOff Kind = 0
	NoteOn  Kind = 1
)

func (k Kind) String() string {
	if k == NoteOn {
		return "on"
	}
	return "off"
}

// NoteEvent is a normalized note message produced from a raw hardware message.
// Note and Velocity are in 0..127.
type NoteEvent struct {
	Kind     Kind
	Note     uint8
	Velocity uint8
}

// Hello is sent once to every client right after its connection is accepted.
// Protocol: {"type":"hello","devices":[...],"selectedPort":N}
type Hello struct {
	Type         string   `json:"type"`
	Devices      []string `json:"devices"`
	SelectedPort int      `json:"selectedPort"`
}

// Message types
const (
	MessageTypeHello = "hello"
)

// NewHello builds a hello snapshot. A nil device list is replaced by an empty
// one so it marshals as [] instead of null.
func NewHello(devices []string, selectedPort int) Hello {
	if devices == nil {
		devices = []string{}
	}
	return Hello{
		Type:         MessageTypeHello,
		Devices:      devices,
		SelectedPort: selectedPort,
	}
}
