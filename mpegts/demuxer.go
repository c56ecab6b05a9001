package mpegts

import (
	"context"
	"errors"
	"io"
	"sort"
)

// Demuxer reads MPEG-TS packets from a reader and produces elementary-stream
// Buffers. PAT/PMT sections are consumed internally to build the PID to
// stream-type map; callers only see PES payloads.
type Demuxer struct {
	ctx         context.Context
	reader      io.Reader
	readBuf     []byte
	pool        *pool
	programMap  *programMap
	streamTypes map[uint16]uint8
	pending     []*Buffer
	eof         bool
	eofPending  []*Buffer
	pktSize     int
}

// NewDemuxer creates a Demuxer reading transport-stream packets from r.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) *Demuxer {
	pm := newProgramMap()
	d := &Demuxer{
		ctx:         ctx,
		reader:      r,
		pktSize:     packetSize,
		programMap:  pm,
		pool:        newPool(pm),
		streamTypes: make(map[uint16]uint8),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.readBuf = make([]byte, d.pktSize)
	return d
}

// DemuxerOptPacketSize sets the TS packet size (default 188). For larger
// sizes (204-byte DVB with trailing FEC) only the leading 188 bytes of each
// packet are parsed. Sizes below 188 cannot hold a transport packet and are
// ignored.
func DemuxerOptPacketSize(size int) func(*Demuxer) {
	return func(d *Demuxer) {
		if size < packetSize {
			return
		}
		d.pktSize = size
	}
}

// NextBuffer returns the next reassembled elementary-stream buffer. It
// returns io.EOF once the input and all drained partial payloads are
// consumed, and the context error if the context is done.
func (d *Demuxer) NextBuffer() (*Buffer, error) {
	for {
		// Drain buffered results first.
		if len(d.pending) > 0 {
			b := d.pending[0]
			d.pending = d.pending[1:]
			return b, nil
		}

		// Drain EOF results.
		if d.eof {
			if len(d.eofPending) > 0 {
				b := d.eofPending[0]
				d.eofPending = d.eofPending[1:]
				return b, nil
			}
			return nil, io.EOF
		}

		if d.ctx.Err() != nil {
			return nil, d.ctx.Err()
		}

		// Read next packet.
		_, err := io.ReadFull(d.reader, d.readBuf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				d.drainPool()
				continue
			}
			return nil, err
		}

		raw := d.readBuf
		if d.pktSize > packetSize {
			raw = raw[:packetSize]
		}
		pkt, err := parsePacket(raw)
		if err != nil {
			continue // skip corrupt packets
		}

		flushed := d.pool.add(pkt)
		if flushed == nil {
			continue
		}

		buffers, err := d.processPackets(flushed)
		if err != nil {
			continue // skip corrupt payloads
		}
		if len(buffers) == 0 {
			continue
		}

		d.pending = buffers[1:]
		return buffers[0], nil
	}
}

// Tracks returns the elementary streams announced by PMTs so far, sorted by
// PID. A stream appears once its PMT has been parsed, which for well-formed
// input happens before its first Buffer is returned.
func (d *Demuxer) Tracks() []Track {
	tracks := make([]Track, 0, len(d.streamTypes))
	for pid, st := range d.streamTypes {
		tracks = append(tracks, Track{PID: pid, StreamType: st})
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].PID < tracks[j].PID })
	return tracks
}

// drainPool flushes every per-PID accumulator at end of stream. Groups are
// processed in PID order so a drained PAT announces PMT PIDs before the PMT
// groups themselves are interpreted.
func (d *Demuxer) drainPool() {
	for _, packets := range d.pool.dump() {
		buffers, err := d.processPackets(packets)
		if err != nil {
			continue
		}
		d.eofPending = append(d.eofPending, buffers...)
	}
}

func (d *Demuxer) processPackets(packets []*packet) ([]*Buffer, error) {
	if len(packets) == 0 {
		return nil, nil
	}

	pid := packets[0].pid

	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.payload...)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	if isPSIPayload(pid, d.programMap) {
		upd, err := parsePSI(payload)
		if err != nil {
			return nil, err
		}
		d.applyPSI(upd)
		return nil, nil
	}

	if isPESPayload(payload) {
		pes, err := parsePES(payload)
		if err != nil {
			return nil, err
		}
		return []*Buffer{{
			PID:        pid,
			StreamType: d.streamTypes[pid],
			Data:       pes.data,
			PTS:        pes.pts,
			DTS:        pes.dts,
		}}, nil
	}

	return nil, nil
}

func (d *Demuxer) applyPSI(upd *psiUpdate) {
	for _, pid := range upd.pmtPIDs {
		d.programMap.addPMTPID(pid)
	}
	for _, t := range upd.streams {
		d.streamTypes[t.PID] = t.StreamType
	}
}
