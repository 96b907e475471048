package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/aravis-go/aravis/internal/arverr"
)

// UVSP leader/trailer magics (§4.1): 4-byte little-endian ASCII codes.
func uvspMagic(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var (
	uvspLeaderMagic  = uvspMagic('L', '3', 'U', 'V')
	uvspTrailerMagic = uvspMagic('T', '3', 'U', 'V')
)

const uvspLeaderHeaderSize = 48

// UVSPLeader is the USB3 Vision leader: same semantic fields as the
// GVSP leader (§4.1), framed with a magic number instead of a status
// word since UVSP has no packet-loss concept (bulk transfers are
// reliable at the USB layer).
type UVSPLeader struct {
	BlockID     uint64
	PayloadType uint16
	PixelFormat uint32
	Width       uint32
	Height      uint32
	XOffset     uint32
	YOffset     uint32
	Timestamp   uint64
}

func DecodeUVSPLeader(data []byte) (UVSPLeader, error) {
	if len(data) < uvspLeaderHeaderSize {
		return UVSPLeader{}, fmt.Errorf("uvsp leader: %w", arverr.InvalidPacket)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != uvspLeaderMagic {
		return UVSPLeader{}, fmt.Errorf("uvsp leader magic: %w", arverr.InvalidPacket)
	}
	return UVSPLeader{
		BlockID:     binary.LittleEndian.Uint64(data[8:16]),
		PayloadType: binary.LittleEndian.Uint16(data[16:18]),
		PixelFormat: binary.LittleEndian.Uint32(data[20:24]),
		Width:       binary.LittleEndian.Uint32(data[24:28]),
		Height:      binary.LittleEndian.Uint32(data[28:32]),
		XOffset:     binary.LittleEndian.Uint32(data[32:36]),
		YOffset:     binary.LittleEndian.Uint32(data[36:40]),
		Timestamp:   binary.LittleEndian.Uint64(data[40:48]),
	}, nil
}

func EncodeUVSPLeader(l UVSPLeader) []byte {
	buf := make([]byte, uvspLeaderHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uvspLeaderMagic)
	binary.LittleEndian.PutUint64(buf[8:16], l.BlockID)
	binary.LittleEndian.PutUint16(buf[16:18], l.PayloadType)
	binary.LittleEndian.PutUint32(buf[20:24], l.PixelFormat)
	binary.LittleEndian.PutUint32(buf[24:28], l.Width)
	binary.LittleEndian.PutUint32(buf[28:32], l.Height)
	binary.LittleEndian.PutUint32(buf[32:36], l.XOffset)
	binary.LittleEndian.PutUint32(buf[36:40], l.YOffset)
	binary.LittleEndian.PutUint64(buf[40:48], l.Timestamp)
	return buf
}

const uvspTrailerHeaderSize = 24

// UVSPTrailer closes a frame with the total payload size (§4.1).
type UVSPTrailer struct {
	BlockID     uint64
	PayloadSize uint64
}

func DecodeUVSPTrailer(data []byte) (UVSPTrailer, error) {
	if len(data) < uvspTrailerHeaderSize {
		return UVSPTrailer{}, fmt.Errorf("uvsp trailer: %w", arverr.InvalidPacket)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != uvspTrailerMagic {
		return UVSPTrailer{}, fmt.Errorf("uvsp trailer magic: %w", arverr.InvalidPacket)
	}
	return UVSPTrailer{
		BlockID:     binary.LittleEndian.Uint64(data[8:16]),
		PayloadSize: binary.LittleEndian.Uint64(data[16:24]),
	}, nil
}

func EncodeUVSPTrailer(t UVSPTrailer) []byte {
	buf := make([]byte, uvspTrailerHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uvspTrailerMagic)
	binary.LittleEndian.PutUint64(buf[8:16], t.BlockID)
	binary.LittleEndian.PutUint64(buf[16:24], t.PayloadSize)
	return buf
}
