package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/aravis-go/aravis/internal/arverr"
)

// UVCP mirrors GVCP's transaction shape over USB bulk transfers, but
// uses a 32-bit little-endian magic number instead of a 2-byte
// packet-type/command pair (§4.1).
const UVCPMagic = 0x31553356 // "V3U1" read little-endian, see DecodeUVCP

const uvcpHeaderSize = 12

// UVCP command codes reuse the GVCP numbering (§4.3 "same contract as
// L4"); only the framing differs.
type UVCPPacket struct {
	Flags   uint8
	Command uint16
	Size    uint16
	ID      uint16
	Payload []byte
}

func EncodeUVCP(p UVCPPacket) []byte {
	buf := make([]byte, uvcpHeaderSize+len(p.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uvcpMagicBytes())
	buf[4] = p.Flags
	binary.LittleEndian.PutUint16(buf[5:7], p.Command)
	binary.LittleEndian.PutUint16(buf[7:9], uint16(len(p.Payload)))
	binary.LittleEndian.PutUint16(buf[9:11], p.ID)
	copy(buf[uvcpHeaderSize:], p.Payload)
	return buf
}

func uvcpMagicBytes() uint32 {
	// "V3U1" as little-endian ASCII, matching the other magic-number
	// constants documented in §4.1.
	return uint32('V') | uint32('3')<<8 | uint32('U')<<16 | uint32('1')<<24
}

func DecodeUVCP(data []byte) (UVCPPacket, error) {
	if len(data) < uvcpHeaderSize {
		return UVCPPacket{}, fmt.Errorf("uvcp header: %w", arverr.InvalidPacket)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != uvcpMagicBytes() {
		return UVCPPacket{}, fmt.Errorf("uvcp magic mismatch: %w", arverr.InvalidPacket)
	}
	size := binary.LittleEndian.Uint16(data[7:9])
	if len(data) < uvcpHeaderSize+int(size) {
		return UVCPPacket{}, fmt.Errorf("uvcp payload length: %w", arverr.InvalidPacket)
	}
	return UVCPPacket{
		Flags:   data[4],
		Command: binary.LittleEndian.Uint16(data[5:7]),
		Size:    size,
		ID:      binary.LittleEndian.Uint16(data[9:11]),
		Payload: data[uvcpHeaderSize : uvcpHeaderSize+int(size)],
	}, nil
}
