package mpegts

import "fmt"

const (
	packetSize = 188
	syncByte   = 0x47
)

// packet is one parsed transport-stream packet. Packets never leave this
// package; callers only see reassembled Buffers.
type packet struct {
	pid           uint16
	cc            uint8
	pusi          bool
	tei           bool
	hasAF         bool
	hasPayload    bool
	discontinuity bool
	payload       []byte
}

func parsePacket(buf []byte) (*packet, error) {
	if len(buf) != packetSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &packet{
		tei:        buf[1]&0x80 != 0,
		pusi:       buf[1]&0x40 != 0,
		pid:        uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		hasAF:      buf[3]&0x20 != 0,
		hasPayload: buf[3]&0x10 != 0,
		cc:         buf[3] & 0x0F,
	}

	offset := 4

	if p.hasAF {
		if offset >= packetSize {
			return p, nil
		}
		afLen := int(buf[offset])
		if afLen > 0 && offset+1 < packetSize {
			p.discontinuity = buf[offset+1]&0x80 != 0
		}
		offset += 1 + afLen
		if offset > packetSize {
			offset = packetSize
		}
	}

	if p.hasPayload && offset < packetSize {
		p.payload = make([]byte, packetSize-offset)
		copy(p.payload, buf[offset:])
	}

	return p, nil
}
