package mpegts

import "fmt"

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// psiUpdate is what a PSI payload contributes to stream discovery: newly
// announced PMT PIDs (from a PAT) and elementary streams (from a PMT).
type psiUpdate struct {
	pmtPIDs []uint16
	streams []Track
}

func isPSIPayload(pid uint16, pm *programMap) bool {
	return pid == pidPAT || pm.isPMTPID(pid)
}

// parsePSI walks the sections of a PSI payload and collects program and
// stream announcements. Sections with bad CRCs abort the walk.
func parsePSI(payload []byte) (*psiUpdate, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("mpegts: PSI payload too short")
	}

	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return nil, fmt.Errorf("mpegts: PSI pointer field out of range")
	}

	upd := &psiUpdate{}

	for offset < len(payload) {
		tableID := payload[offset]
		if tableID == 0xFF {
			break // stuffing bytes
		}
		if offset+3 > len(payload) {
			break
		}

		// section_syntax_indicator must be 1 for PAT/PMT; zero padding
		// has this bit clear.
		if payload[offset+1]&0x80 == 0 {
			break
		}

		sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		sectionEnd := offset + 3 + sectionLength
		if sectionEnd > len(payload) {
			break
		}

		section := payload[offset:sectionEnd]

		switch tableID {
		case tableIDPAT:
			pids, err := parsePATSection(section)
			if err != nil {
				return upd, err
			}
			upd.pmtPIDs = append(upd.pmtPIDs, pids...)

		case tableIDPMT:
			streams, err := parsePMTSection(section)
			if err != nil {
				return upd, err
			}
			upd.streams = append(upd.streams, streams...)
		}

		offset = sectionEnd
	}

	return upd, nil
}

// parsePATSection extracts the PMT PIDs announced by a PAT section.
//
// Section layout:
//
//	[0]    table_id
//	[1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
//	[3-4]  transport_stream_id
//	[5]    reserved(2) + version(5) + current_next(1)
//	[6]    section_number
//	[7]    last_section_number
//	[8..N-4] program entries (4 bytes each)
//	[N-4..N] CRC32
func parsePATSection(data []byte) ([]uint16, error) {
	if err := verifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PAT %w", err)
	}
	if len(data) < 12 { // minimum: 8 header + 4 CRC
		return nil, fmt.Errorf("mpegts: PAT too short")
	}

	sectionLength := int(data[1]&0x0F)<<8 | int(data[2])
	entryStart := 8
	entryEnd := 3 + sectionLength - 4 // subtract CRC32
	if entryEnd > len(data)-4 {
		entryEnd = len(data) - 4
	}

	var pids []uint16
	for i := entryStart; i+4 <= entryEnd; i += 4 {
		programNumber := uint16(data[i])<<8 | uint16(data[i+1])
		pmtPID := uint16(data[i+2]&0x1F)<<8 | uint16(data[i+3])

		if programNumber == 0 {
			continue // NIT PID, skip
		}
		pids = append(pids, pmtPID)
	}

	return pids, nil
}

// parsePMTSection extracts the elementary streams described by a PMT section.
//
// Section layout:
//
//	[0]    table_id
//	[1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
//	[3-4]  program_number
//	[5]    reserved(2) + version(5) + current_next(1)
//	[6]    section_number
//	[7]    last_section_number
//	[8-9]  reserved(3) + PCR_PID(13)
//	[10-11] reserved(4) + program_info_length(12)
//	[...]  program descriptors, ES entries, CRC32
func parsePMTSection(data []byte) ([]Track, error) {
	if err := verifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PMT %w", err)
	}
	if len(data) < 16 { // minimum: 12 header + 4 CRC
		return nil, fmt.Errorf("mpegts: PMT too short")
	}

	sectionLength := int(data[1]&0x0F)<<8 | int(data[2])
	sectionEnd := 3 + sectionLength

	programInfoLength := int(data[10]&0x0F)<<8 | int(data[11])
	offset := 12 + programInfoLength

	var streams []Track
	// ES entries run until 4 bytes before section end (CRC).
	for offset+5 <= sectionEnd-4 {
		streamType := data[offset]
		elementaryPID := uint16(data[offset+1]&0x1F)<<8 | uint16(data[offset+2])
		esInfoLength := int(data[offset+3]&0x0F)<<8 | int(data[offset+4])

		streams = append(streams, Track{
			PID:        elementaryPID,
			StreamType: streamType,
		})

		offset += 5 + esInfoLength
	}

	return streams, nil
}

// MPEG-2 CRC32 with polynomial 0x04C11DB7, as used by PSI sections.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

func computeCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// verifyCRC32 checks a section whose trailing 4 bytes are its CRC32; the
// CRC over the whole section, CRC included, is zero when intact.
func verifyCRC32(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("data too short for CRC32")
	}
	if computeCRC32(data) != 0 {
		return fmt.Errorf("CRC32 mismatch")
	}
	return nil
}
