package mpegts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zsiec/esfuzz/es"
)

// buildPATPayload creates a PAT payload with pointer field for embedding in TS.
func buildPATPayload(tsID uint16, programs []struct{ num, pid uint16 }) []byte {
	section := buildPAT(tsID, programs)
	payload := make([]byte, 1+len(section))
	payload[0] = 0x00 // pointer field
	copy(payload[1:], section)
	return payload
}

// buildPMTPayload creates a PMT payload with pointer field for embedding in TS.
func buildPMTPayload(programNum uint16, pcrPID uint16, streams []Track) []byte {
	section := buildPMT(programNum, pcrPID, streams)
	payload := make([]byte, 1+len(section))
	payload[0] = 0x00
	copy(payload[1:], section)
	return payload
}

// pesIn is one PES packet to embed in a synthetic stream.
type pesIn struct {
	pid uint16
	cc  uint8
	pes []byte
}

// buildStream assembles a synthetic transport stream: PAT, PMT announcing an
// H.264 (PID 0x100) and an AAC (PID 0x101) stream, then the given PES
// packets, one TS packet each.
func buildStream(ins ...pesIn) *bytes.Buffer {
	var stream bytes.Buffer

	patPayload := buildPATPayload(1, []struct{ num, pid uint16 }{{1, 0x1000}})
	stream.Write(makeTSPacket(pidPAT, 0, true, patPayload))

	pmtPayload := buildPMTPayload(1, 0x100, []Track{
		{PID: 0x100, StreamType: StreamTypeH264},
		{PID: 0x101, StreamType: StreamTypeAAC},
	})
	stream.Write(makeTSPacket(0x1000, 0, true, pmtPayload))

	for _, in := range ins {
		stream.Write(makeTSPacket(in.pid, in.cc, true, in.pes))
	}
	return &stream
}

func TestDemuxer_Synthetic(t *testing.T) {
	t.Parallel()
	audioData := []byte{0xFF, 0xF1, 0x50, 0x40} // ADTS-looking payload

	stream := buildStream(
		pesIn{0x101, 0, buildPESPacket(0xC0, 90000, 0, true, false, audioData)},
		pesIn{0x101, 1, buildPESPacket(0xC0, 97680, 0, true, false, audioData)},
	)

	d := NewDemuxer(context.Background(), stream)

	// First buffer: the first audio PES, flushed by the second PUSI.
	b, err := d.NextBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if b.PID != 0x101 {
		t.Errorf("PID = 0x%X, want 0x101", b.PID)
	}
	if b.StreamType != StreamTypeAAC {
		t.Errorf("StreamType = 0x%02X, want AAC", b.StreamType)
	}
	if diff := cmp.Diff(audioData, b.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if b.PTS != es.NewTimestamp(90000) {
		t.Errorf("PTS = %+v, want valid 90000", b.PTS)
	}
	if b.DTS.Valid {
		t.Error("DTS should be unset")
	}

	// Second buffer: the trailing audio PES, drained at EOF.
	b, err = d.NextBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if b.PTS != es.NewTimestamp(97680) {
		t.Errorf("PTS = %+v, want valid 97680", b.PTS)
	}

	if _, err = d.NextBuffer(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	// Tracks were discovered from the PMT.
	tracks := d.Tracks()
	want := []Track{
		{PID: 0x100, StreamType: StreamTypeH264},
		{PID: 0x101, StreamType: StreamTypeAAC},
	}
	if diff := cmp.Diff(want, tracks); diff != "" {
		t.Errorf("tracks mismatch (-want +got):\n%s", diff)
	}
}

func TestDemuxer_VideoAndAudioInterleaved(t *testing.T) {
	t.Parallel()
	audioData := []byte{0xFF, 0xF1, 0x50, 0x40}
	videoData := []byte{0x00, 0x00, 0x00, 0x01, 0x65}

	stream := buildStream(
		pesIn{0x100, 0, buildPESPacket(0xE0, 90000, 87000, true, true, videoData)},
		pesIn{0x101, 0, buildPESPacket(0xC0, 90000, 0, true, false, audioData)},
		pesIn{0x100, 1, buildPESPacket(0xE0, 93754, 0, true, false, videoData)},
		pesIn{0x101, 1, buildPESPacket(0xC0, 97680, 0, true, false, audioData)},
	)

	d := NewDemuxer(context.Background(), stream)

	var audio, video int
	for {
		b, err := d.NextBuffer()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		switch b.StreamType {
		case StreamTypeAAC:
			audio++
			if !b.PTS.Valid {
				t.Error("audio buffer missing PTS")
			}
		case StreamTypeH264:
			video++
		default:
			t.Errorf("unexpected stream type 0x%02X", b.StreamType)
		}
	}
	if audio != 2 {
		t.Errorf("audio buffers = %d, want 2", audio)
	}
	if video != 2 {
		t.Errorf("video buffers = %d, want 2", video)
	}
}

func TestDemuxer_VideoDTSExtracted(t *testing.T) {
	t.Parallel()
	videoData := []byte{0x00, 0x00, 0x00, 0x01, 0x65}
	stream := buildStream(
		pesIn{0x100, 0, buildPESPacket(0xE0, 2790000, 2782492, true, true, videoData)},
	)

	d := NewDemuxer(context.Background(), stream)
	b, err := d.NextBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if b.PTS != es.NewTimestamp(2790000) {
		t.Errorf("PTS = %+v, want valid 2790000", b.PTS)
	}
	if b.DTS != es.NewTimestamp(2782492) {
		t.Errorf("DTS = %+v, want valid 2782492", b.DTS)
	}
}

func TestDemuxer_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDemuxer(ctx, bytes.NewReader(make([]byte, packetSize)))
	_, err := d.NextBuffer()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDemuxer_GarbageInput(t *testing.T) {
	t.Parallel()
	// Random non-TS bytes: no buffers, clean EOF, no panic.
	garbage := make([]byte, packetSize*3)
	for i := range garbage {
		garbage[i] = byte(i * 7)
	}
	d := NewDemuxer(context.Background(), bytes.NewReader(garbage))
	if _, err := d.NextBuffer(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for garbage input, got %v", err)
	}
}

func TestDemuxer_EmptyInput(t *testing.T) {
	t.Parallel()
	d := NewDemuxer(context.Background(), bytes.NewReader(nil))
	if _, err := d.NextBuffer(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for empty input, got %v", err)
	}
}

func TestDemuxer_UndersizedPacketSizeIgnored(t *testing.T) {
	t.Parallel()
	audioData := []byte{0xFF, 0xF1, 0x50, 0x40}
	stream := buildStream(
		pesIn{0x101, 0, buildPESPacket(0xC0, 90000, 0, true, false, audioData)},
	)

	// A size too small for a transport packet falls back to 188, so a
	// standard stream still demuxes.
	d := NewDemuxer(context.Background(), stream, DemuxerOptPacketSize(4))
	b, err := d.NextBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if b.PID != 0x101 {
		t.Errorf("PID = 0x%X, want 0x101", b.PID)
	}
}

func TestDemuxer_UnknownPIDHasZeroStreamType(t *testing.T) {
	t.Parallel()
	// A PES on a PID never announced by any PMT: no PAT/PMT at all.
	var stream bytes.Buffer
	audioData := []byte{0xFF, 0xF1}
	stream.Write(makeTSPacket(0x123, 0, true, buildPESPacket(0xC0, 90000, 0, true, false, audioData)))
	stream.Write(makeTSPacket(0x123, 1, true, buildPESPacket(0xC0, 91000, 0, true, false, audioData)))

	d := NewDemuxer(context.Background(), &stream)
	b, err := d.NextBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if b.StreamType != 0 {
		t.Errorf("StreamType = 0x%02X, want 0 for undescribed PID", b.StreamType)
	}
}
