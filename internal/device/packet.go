package device

import (
	"sync"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// packetSplitter cuts packet payloads that carry several messages (a chord
// in one CoreMIDI packet, running status) into single channel messages.
// Realtime, system common and SysEx bytes are skipped. Status carries over
// from one packet to the next until Reset.
type packetSplitter struct {
	mu   sync.Mutex
	rd   *drivers.Reader
	emit func(msg []byte)
}

func newPacketSplitter(emit func(msg []byte)) *packetSplitter {
	p := &packetSplitter{emit: emit}
	p.rd = drivers.NewReader(drivers.ListenConfig{}, p.onMessage)
	return p
}

// Write feeds one packet payload.
func (p *packetSplitter) Write(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rd.EachMessage(data, 0)
}

// Reset drops any running status and partial message.
func (p *packetSplitter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rd.Reset()
}

func (p *packetSplitter) onMessage(msg []byte, _ int32) {
	if len(msg) == 0 || msg[0] < 0x80 || msg[0] > 0xEF {
		return
	}
	p.emit(msg)
}
