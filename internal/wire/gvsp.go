package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/aravis-go/aravis/internal/arverr"
)

// GVSP packet format byte: low nibble is the role, bit 7 is the
// "extended id" flag that widens block_id to 64 bits via an extended
// header appended right after the 8-byte base header (§4.1).
const (
	GVSPFormatLeader    = 0x1
	GVSPFormatTrailer   = 0x2
	GVSPFormatPayload   = 0x3
	GVSPFormatAllInOne  = 0x4
	GVSPExtendedIDFlag  = 0x80
)

// GVSP leader payload types (§4.1).
const (
	GVSPPayloadImage              = 0x0001
	GVSPPayloadChunkData          = 0x0004
	GVSPPayloadExtendedChunkData  = 0x0006
	GVSPPayloadMultipart          = 0x0007
	GVSPPayloadGenDCContainer     = 0x0008
	GVSPPayloadGenDCComponentData = 0x0009
	GVSPPayloadH264               = 0x0002
	GVSPPayloadJpeg                = 0x0003
)

const gvspBaseHeaderSize = 8
const gvspExtendedHeaderSize = 8 // widens block_id from 16 to 64 bits

// GVSPHeader is the common header shared by every GVSP packet.
type GVSPHeader struct {
	Status       uint16
	BlockID      uint64 // 16-bit unless Extended
	Extended     bool
	PacketFormat uint8
	PacketID     uint32 // 24-bit on the wire
}

func gvspFormatRole(b uint8) uint8  { return b & 0x0f }
func gvspIsExtended(b uint8) bool { return b&GVSPExtendedIDFlag != 0 }

// DecodeGVSPHeader decodes the base (+ optional extended) header and
// returns it along with the remaining bytes (role-specific body).
func DecodeGVSPHeader(data []byte) (GVSPHeader, []byte, error) {
	if len(data) < gvspBaseHeaderSize {
		return GVSPHeader{}, nil, fmt.Errorf("gvsp header: %w", arverr.InvalidPacket)
	}
	status := binary.BigEndian.Uint16(data[0:2])
	blockID16 := binary.BigEndian.Uint16(data[2:4])
	formatByte := data[4]
	packetID := uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])

	h := GVSPHeader{
		Status:       status,
		BlockID:      uint64(blockID16),
		PacketFormat: gvspFormatRole(formatByte),
		PacketID:     packetID,
	}
	rest := data[gvspBaseHeaderSize:]
	if gvspIsExtended(formatByte) {
		if len(rest) < gvspExtendedHeaderSize {
			return GVSPHeader{}, nil, fmt.Errorf("gvsp extended header: %w", arverr.InvalidPacket)
		}
		h.Extended = true
		h.BlockID = binary.BigEndian.Uint64(rest[0:8])
		rest = rest[gvspExtendedHeaderSize:]
	}
	return h, rest, nil
}

// EncodeGVSPHeader is used only by the fake-camera producer and tests.
func EncodeGVSPHeader(h GVSPHeader, body []byte) []byte {
	formatByte := h.PacketFormat & 0x0f
	if h.Extended {
		formatByte |= GVSPExtendedIDFlag
	}
	buf := make([]byte, 0, gvspBaseHeaderSize+gvspExtendedHeaderSize+len(body))
	hdr := make([]byte, gvspBaseHeaderSize)
	binary.BigEndian.PutUint16(hdr[0:2], h.Status)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(h.BlockID))
	hdr[4] = formatByte
	hdr[5] = byte(h.PacketID >> 16)
	hdr[6] = byte(h.PacketID >> 8)
	hdr[7] = byte(h.PacketID)
	buf = append(buf, hdr...)
	if h.Extended {
		ext := make([]byte, 8)
		binary.BigEndian.PutUint64(ext, h.BlockID)
		buf = append(buf, ext...)
	}
	buf = append(buf, body...)
	return buf
}

// GVSPLeader carries region/format/timestamp metadata for the frame.
type GVSPLeader struct {
	PayloadType uint16
	PixelFormat uint32
	Width       uint32
	Height      uint32
	XOffset     uint32
	YOffset     uint32
	XPadding    uint32
	YPadding    uint32
	Timestamp   uint64
}

const gvspLeaderImageSize = 44

func DecodeGVSPLeader(body []byte) (GVSPLeader, error) {
	if len(body) < 8 {
		return GVSPLeader{}, fmt.Errorf("gvsp leader: %w", arverr.InvalidPacket)
	}
	l := GVSPLeader{
		PayloadType: binary.BigEndian.Uint16(body[2:4]),
	}
	switch l.PayloadType {
	case GVSPPayloadImage, GVSPPayloadMultipart, GVSPPayloadChunkData,
		GVSPPayloadExtendedChunkData, GVSPPayloadGenDCContainer, GVSPPayloadGenDCComponentData:
		if len(body) < gvspLeaderImageSize {
			return GVSPLeader{}, fmt.Errorf("gvsp image leader: %w", arverr.InvalidPacket)
		}
		l.Timestamp = binary.BigEndian.Uint64(body[4:12])
		l.PixelFormat = binary.BigEndian.Uint32(body[12:16])
		l.Width = binary.BigEndian.Uint32(body[16:20])
		l.Height = binary.BigEndian.Uint32(body[20:24])
		l.XOffset = binary.BigEndian.Uint32(body[24:28])
		l.YOffset = binary.BigEndian.Uint32(body[28:32])
		l.XPadding = binary.BigEndian.Uint32(body[32:36])
		l.YPadding = binary.BigEndian.Uint32(body[36:40])
	}
	return l, nil
}

func EncodeGVSPLeader(l GVSPLeader) []byte {
	body := make([]byte, gvspLeaderImageSize)
	binary.BigEndian.PutUint16(body[2:4], l.PayloadType)
	binary.BigEndian.PutUint64(body[4:12], l.Timestamp)
	binary.BigEndian.PutUint32(body[12:16], l.PixelFormat)
	binary.BigEndian.PutUint32(body[16:20], l.Width)
	binary.BigEndian.PutUint32(body[20:24], l.Height)
	binary.BigEndian.PutUint32(body[24:28], l.XOffset)
	binary.BigEndian.PutUint32(body[28:32], l.YOffset)
	binary.BigEndian.PutUint32(body[32:36], l.XPadding)
	binary.BigEndian.PutUint32(body[36:40], l.YPadding)
	return body
}

// GVSPTrailer carries total payload size and, for multi-part payloads,
// a parts descriptor (§4.1).
type GVSPTrailer struct {
	PayloadType uint16
	PayloadSize uint64
	Parts       []GVSPPartDescriptor
}

type GVSPPartDescriptor struct {
	Offset      uint64
	Size        uint64
	PixelFormat uint32
	Width       uint32
	Height      uint32
	XOffset     uint32
	YOffset     uint32
	DataType    uint8
	ComponentID uint8
}

const gvspTrailerBaseSize = 12
const gvspPartDescriptorSize = 34

func DecodeGVSPTrailer(body []byte) (GVSPTrailer, error) {
	if len(body) < gvspTrailerBaseSize {
		return GVSPTrailer{}, fmt.Errorf("gvsp trailer: %w", arverr.InvalidPacket)
	}
	t := GVSPTrailer{
		PayloadType: binary.BigEndian.Uint16(body[2:4]),
		PayloadSize: binary.BigEndian.Uint64(body[4:12]),
	}
	rest := body[gvspTrailerBaseSize:]
	if t.PayloadType == GVSPPayloadMultipart {
		if len(rest)%gvspPartDescriptorSize != 0 {
			return GVSPTrailer{}, fmt.Errorf("gvsp multipart trailer length %d: %w", len(rest), arverr.InvalidPacket)
		}
		for off := 0; off+gvspPartDescriptorSize <= len(rest); off += gvspPartDescriptorSize {
			d := rest[off : off+gvspPartDescriptorSize]
			t.Parts = append(t.Parts, GVSPPartDescriptor{
				Offset:      binary.BigEndian.Uint64(d[0:8]),
				Size:        binary.BigEndian.Uint64(d[8:16]),
				PixelFormat: binary.BigEndian.Uint32(d[16:20]),
				Width:       binary.BigEndian.Uint32(d[20:24]),
				Height:      binary.BigEndian.Uint32(d[24:28]),
				XOffset:     binary.BigEndian.Uint32(d[28:32]),
				DataType:    d[32],
				ComponentID: d[33],
			})
		}
	}
	return t, nil
}

func EncodeGVSPTrailer(t GVSPTrailer) []byte {
	body := make([]byte, gvspTrailerBaseSize+len(t.Parts)*gvspPartDescriptorSize)
	binary.BigEndian.PutUint16(body[2:4], t.PayloadType)
	binary.BigEndian.PutUint64(body[4:12], t.PayloadSize)
	off := gvspTrailerBaseSize
	for _, p := range t.Parts {
		d := body[off : off+gvspPartDescriptorSize]
		binary.BigEndian.PutUint64(d[0:8], p.Offset)
		binary.BigEndian.PutUint64(d[8:16], p.Size)
		binary.BigEndian.PutUint32(d[16:20], p.PixelFormat)
		binary.BigEndian.PutUint32(d[20:24], p.Width)
		binary.BigEndian.PutUint32(d[24:28], p.Height)
		binary.BigEndian.PutUint32(d[28:32], p.XOffset)
		d[32] = p.DataType
		d[33] = p.ComponentID
		off += gvspPartDescriptorSize
	}
	return body
}
