package mpegts

import (
	"errors"
	"fmt"
	"io"

	"github.com/zsiec/esfuzz/es"
)

// Feeder drives an es.Parser with the demuxed buffers of one elementary
// stream: each matching Buffer becomes a Parse call carrying the PES
// timestamps, and end of stream becomes a single Flush. This is the feeding
// path a production ES parser sits behind, the same one the fuzz harness
// simulates with raw bytes and unset timestamps.
type Feeder struct {
	demux  *Demuxer
	parser es.Parser
	accept func(*Buffer) bool
	fed    int
}

// NewFeeder creates a Feeder that feeds parser from d. By default it selects
// AAC elementary streams (PMT stream type 0x0F); use the options to select
// by PID or another stream type.
func NewFeeder(d *Demuxer, parser es.Parser, opts ...func(*Feeder)) *Feeder {
	f := &Feeder{
		demux:  d,
		parser: parser,
		accept: func(b *Buffer) bool { return b.StreamType == StreamTypeAAC },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FeederOptPID selects buffers by PID instead of stream type.
func FeederOptPID(pid uint16) func(*Feeder) {
	return func(f *Feeder) {
		f.accept = func(b *Buffer) bool { return b.PID == pid }
	}
}

// FeederOptStreamType selects buffers by PMT stream type.
func FeederOptStreamType(st uint8) func(*Feeder) {
	return func(f *Feeder) {
		f.accept = func(b *Buffer) bool { return b.StreamType == st }
	}
}

// Run demuxes until end of stream, feeding every selected buffer to the
// parser. On clean end of stream it flushes the parser exactly once. A parse
// or flush error aborts the run; no flush follows a parse error, matching
// the harness contract.
func (f *Feeder) Run() error {
	for {
		b, err := f.demux.NextBuffer()
		if errors.Is(err, io.EOF) {
			if err := f.parser.Flush(); err != nil {
				return fmt.Errorf("mpegts: flush: %w", err)
			}
			return nil
		}
		if err != nil {
			return err
		}

		if !f.accept(b) {
			continue
		}
		if err := f.parser.Parse(b.Data, b.PTS, b.DTS); err != nil {
			return fmt.Errorf("mpegts: parse PID %d: %w", b.PID, err)
		}
		f.fed++
	}
}

// Fed returns how many buffers have been fed to the parser.
func (f *Feeder) Fed() int {
	return f.fed
}
