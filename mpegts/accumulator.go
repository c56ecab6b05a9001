package mpegts

import "sort"

const pidPAT = 0x0000

// programMap tracks which PIDs carry PMT sections.
type programMap struct {
	m map[uint16]bool
}

func newProgramMap() *programMap {
	return &programMap{m: make(map[uint16]bool)}
}

func (pm *programMap) addPMTPID(pid uint16) {
	pm.m[pid] = true
}

func (pm *programMap) isPMTPID(pid uint16) bool {
	return pm.m[pid]
}

// accumulator buffers packets for a single PID until a flush trigger: a new
// payload-unit start, or a complete PSI section.
type accumulator struct {
	pid        uint16
	packets    []*packet
	programMap *programMap
}

func newAccumulator(pid uint16, pm *programMap) *accumulator {
	return &accumulator{pid: pid, programMap: pm}
}

func (a *accumulator) add(p *packet) []*packet {
	// Packets with transport errors poison whatever is buffered.
	if p.tei {
		a.packets = nil
		return nil
	}

	// Adaptation-only packets carry no payload to accumulate.
	if !p.hasPayload {
		return nil
	}

	// Continuity check against the last buffered packet. A signaled
	// discontinuity indicator means the CC jump is expected.
	if len(a.packets) > 0 && !p.discontinuity {
		prev := a.packets[len(a.packets)-1].cc
		expected := (prev + 1) & 0x0F
		if p.cc != expected {
			if p.cc == prev {
				return nil // duplicate packet, drop
			}
			// Unsignaled discontinuity, discard buffered packets.
			a.packets = nil
		}
	}

	var flushed []*packet

	if p.pusi && len(a.packets) > 0 {
		flushed = a.packets
		a.packets = nil
	}

	a.packets = append(a.packets, p)

	// PSI sections carry their own length, so completeness can be
	// detected without waiting for the next PUSI.
	if flushed == nil && a.isPSI() && isPSIComplete(a.packets) {
		flushed = a.packets
		a.packets = nil
	}

	return flushed
}

func (a *accumulator) isPSI() bool {
	return a.pid == pidPAT || a.programMap.isPMTPID(a.pid)
}

func (a *accumulator) flush() []*packet {
	if len(a.packets) == 0 {
		return nil
	}
	flushed := a.packets
	a.packets = nil
	return flushed
}

// isPSIComplete checks whether the accumulated payloads contain a complete
// PSI section.
func isPSIComplete(packets []*packet) bool {
	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.payload...)
	}
	if len(payload) < 1 {
		return false
	}

	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return false
	}

	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true // stuffing bytes, section is complete
		}
		if offset+3 > len(payload) {
			return false
		}
		// section_syntax_indicator must be 1 for PAT/PMT; zero-padding
		// bytes have this bit clear.
		if payload[offset+1]&0x80 == 0 {
			return true
		}
		sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		needed := 3 + sectionLength
		if offset+needed > len(payload) {
			return false
		}
		offset += needed
	}
	return true
}

// pool manages per-PID accumulators.
type pool struct {
	accs       map[uint16]*accumulator
	programMap *programMap
}

func newPool(pm *programMap) *pool {
	return &pool{
		accs:       make(map[uint16]*accumulator),
		programMap: pm,
	}
}

func (pp *pool) add(p *packet) []*packet {
	acc, ok := pp.accs[p.pid]
	if !ok {
		acc = newAccumulator(p.pid, pp.programMap)
		pp.accs[p.pid] = acc
	}
	return acc.add(p)
}

// dump flushes every accumulator, sorted by PID so the PAT (PID 0) is
// processed before PMT PIDs during end-of-stream drain.
func (pp *pool) dump() [][]*packet {
	pids := make([]int, 0, len(pp.accs))
	for pid := range pp.accs {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	var all [][]*packet
	for _, pid := range pids {
		if packets := pp.accs[uint16(pid)].flush(); packets != nil {
			all = append(all, packets)
		}
	}
	return all
}
