// Package es defines the contract between elementary-stream parsers and the
// drivers that feed them: the fuzz harness, the corpus replay runner, and the
// MPEG-TS feeder. Parser implementations live outside this module and are
// injected through a [Factory].
package es

import "errors"

// ErrMalformed is the conventional sentinel for input a parser rejected.
// Implementations should wrap it so callers can distinguish bad data from
// operational failures.
var ErrMalformed = errors.New("es: malformed stream")

// Timestamp is an optional 90 kHz presentation or decode timestamp. The zero
// value is the unset sentinel; a valid timestamp with Base 0 is distinct from
// unset, so streams that legitimately start at zero are not confused with
// streams that carry no timing at all.
type Timestamp struct {
	Base  int64 // ticks of the 90 kHz clock
	Valid bool
}

// NoTimestamp is the unset timestamp sentinel passed to parsers when the
// input carries no external timing context.
var NoTimestamp = Timestamp{}

// NewTimestamp returns a valid Timestamp with the given 90 kHz base.
func NewTimestamp(base int64) Timestamp {
	return Timestamp{Base: base, Valid: true}
}

// DecoderConfig is the payload of a decoder-configuration event. It is a
// plain carrier: producers fill in whatever they know, consumers must treat
// absent fields as unknown.
type DecoderConfig struct {
	Codec      string
	SampleRate int
	Channels   int
	Extra      []byte // codec-private data, opaque to this module
}

// Unit is the payload of a decoded-unit event: one completed coded unit with
// its timing. The parser hands off ownership of Data when it invokes the
// sink; it must not retain or mutate the slice afterwards.
type Unit struct {
	Data []byte
	PTS  Timestamp
	DTS  Timestamp
}

// ConfigHandler receives decoder-configuration events emitted by a parser.
type ConfigHandler func(DecoderConfig)

// UnitHandler receives decoded-unit events emitted by a parser.
type UnitHandler func(*Unit)

// Parser is an incremental elementary-stream parser. Parse consumes one
// buffer of stream bytes together with the timestamps that applied when the
// buffer was captured (NoTimestamp when unknown). A Parse error means the
// parser rejected the input; it is a normal outcome for malformed data, not
// a defect. Flush drains any internally buffered partial unit, invoking the
// sinks for whatever completes; it is meaningful at most once, at end of
// stream.
type Parser interface {
	Parse(data []byte, pts, dts Timestamp) error
	Flush() error
}

// Factory constructs a Parser wired to the two sink callbacks. The mode flag
// is opaque to this module: its meaning is defined by the parser
// implementation's own contract (for ADTS parsers it typically selects a
// transport-framing variant).
type Factory func(onConfig ConfigHandler, onUnit UnitHandler, mode bool) Parser
