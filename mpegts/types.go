// Package mpegts extracts elementary-stream buffers from MPEG-TS transport
// streams. It discovers programs via PAT/PMT, reassembles PES packets per
// PID, and yields each payload together with its PTS/DTS as an es.Timestamp
// pair, ready to hand to an es.Parser. A [Feeder] does exactly that: it
// drives a parser with the demuxed buffers of one elementary stream, which
// is the path a production ES parser sees and the path the fuzz harness
// simulates with raw bytes.
package mpegts

import "github.com/zsiec/esfuzz/es"

// Stream types from the PMT, per ISO 13818-1.
const (
	StreamTypeAAC  uint8 = 0x0F
	StreamTypeH264 uint8 = 0x1B
	StreamTypeH265 uint8 = 0x24
)

// Buffer is one reassembled elementary-stream payload: the PES data of a
// single access-unit boundary for a PID, with whatever timing the PES header
// carried. StreamType is 0 when the PID was never described by a PMT.
type Buffer struct {
	PID        uint16
	StreamType uint8
	Data       []byte
	PTS        es.Timestamp
	DTS        es.Timestamp
}

// Track describes one elementary stream discovered via PMT.
type Track struct {
	PID        uint16
	StreamType uint8
}
