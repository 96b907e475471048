// Package wire implements the fixed-layout binary codecs of the GigE
// Vision and USB3 Vision control and stream protocols (spec §4.1).
// Encoders produce a freshly owned byte slice; decoders borrow the
// caller's slice and return arverr.InvalidPacket on any length, magic,
// or cross-field consistency mismatch.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/aravis-go/aravis/internal/arverr"
)

// GVCP command codes (§6 register map / §4.1 commands in scope).
const (
	GVCPDiscoveryCmd     = 0x0002
	GVCPDiscoveryAck     = 0x0003
	GVCPPacketResendCmd  = 0x0040
	GVCPPacketResendAck  = 0x0041
	GVCPReadRegisterCmd  = 0x0080
	GVCPReadRegisterAck  = 0x0081
	GVCPWriteRegisterCmd = 0x0082
	GVCPWriteRegisterAck = 0x0083
	GVCPReadMemoryCmd    = 0x0084
	GVCPReadMemoryAck    = 0x0085
	GVCPWriteMemoryCmd   = 0x0086
	GVCPWriteMemoryAck   = 0x0087
	GVCPPendingAck       = 0x0089
	GVCPEventCmd         = 0x00c0
	GVCPEventAck         = 0x00c1
)

// Packet-type flag bits, carried in the high byte of the 16-bit
// packet_type header field.
const (
	GVCPFlagAckRequired    uint16 = 0x0100
	GVCPFlagAllowBroadcast uint16 = 0x0200
)

const gvcpHeaderSize = 8

// GVCPHeader is the common 8-byte GVCP header (§4.1).
type GVCPHeader struct {
	PacketType uint16
	Command    uint16
	Size       uint16
	ID         uint16
}

// GVCPPacket is a decoded GVCP command or acknowledge packet: header
// plus raw payload bytes (further interpreted per Command).
type GVCPPacket struct {
	GVCPHeader
	Payload []byte
}

// IsAck reports whether command is an acknowledge code. Every ack in
// this register map is its request code +1, except PendingAck, which
// has no request of its own and may answer any request; this helper
// uses the explicit table rather than the +1 convention so it covers
// PendingAck too.
func IsAck(command uint16) bool {
	switch command {
	case GVCPDiscoveryAck, GVCPPacketResendAck, GVCPReadRegisterAck,
		GVCPWriteRegisterAck, GVCPReadMemoryAck, GVCPWriteMemoryAck,
		GVCPEventAck, GVCPPendingAck:
		return true
	default:
		return false
	}
}

// AckFor returns the acknowledge command code for a request command code.
func AckFor(command uint16) (uint16, bool) {
	switch command {
	case GVCPDiscoveryCmd:
		return GVCPDiscoveryAck, true
	case GVCPPacketResendCmd:
		return GVCPPacketResendAck, true
	case GVCPReadRegisterCmd:
		return GVCPReadRegisterAck, true
	case GVCPWriteRegisterCmd:
		return GVCPWriteRegisterAck, true
	case GVCPReadMemoryCmd:
		return GVCPReadMemoryAck, true
	case GVCPWriteMemoryCmd:
		return GVCPWriteMemoryAck, true
	case GVCPEventCmd:
		return GVCPEventAck, true
	default:
		return 0, false
	}
}

// EncodeGVCP encodes a command/ack packet.
func EncodeGVCP(p GVCPPacket) []byte {
	buf := make([]byte, gvcpHeaderSize+len(p.Payload))
	binary.BigEndian.PutUint16(buf[0:2], p.PacketType)
	binary.BigEndian.PutUint16(buf[2:4], p.Command)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(p.Payload)))
	binary.BigEndian.PutUint16(buf[6:8], p.ID)
	copy(buf[8:], p.Payload)
	return buf
}

// DecodeGVCP decodes a command/ack packet from a borrowed byte slice.
func DecodeGVCP(data []byte) (GVCPPacket, error) {
	if len(data) < gvcpHeaderSize {
		return GVCPPacket{}, fmt.Errorf("gvcp header: %w", arverr.InvalidPacket)
	}
	size := binary.BigEndian.Uint16(data[4:6])
	if len(data) < gvcpHeaderSize+int(size) {
		return GVCPPacket{}, fmt.Errorf("gvcp payload length %d < declared %d: %w",
			len(data)-gvcpHeaderSize, size, arverr.InvalidPacket)
	}
	p := GVCPPacket{
		GVCPHeader: GVCPHeader{
			PacketType: binary.BigEndian.Uint16(data[0:2]),
			Command:    binary.BigEndian.Uint16(data[2:4]),
			Size:       size,
			ID:         binary.BigEndian.Uint16(data[6:8]),
		},
		Payload: data[gvcpHeaderSize : gvcpHeaderSize+int(size)],
	}
	return p, nil
}

// PendingAckPayload is the payload of a GVCPPendingAck packet: a
// reserved field and the extra time (ms) the client should wait.
type PendingAckPayload struct {
	TimeoutMs uint16
}

func DecodePendingAck(payload []byte) (PendingAckPayload, error) {
	if len(payload) < 4 {
		return PendingAckPayload{}, fmt.Errorf("pending-ack payload: %w", arverr.InvalidPacket)
	}
	return PendingAckPayload{TimeoutMs: binary.BigEndian.Uint16(payload[2:4])}, nil
}

// ReadMemoryCmdPayload requests length bytes starting at address.
// Address is 32-bit unless extended is set, in which case it is 64-bit
// (§4.1 "Addresses are 32-bit ... and 64-bit with the extended-address
// flag set").
type ReadMemoryCmdPayload struct {
	Address  uint64
	Extended bool
	Length   uint32
}

func EncodeReadMemoryCmd(p ReadMemoryCmdPayload) []byte {
	if p.Extended {
		buf := make([]byte, 12)
		binary.BigEndian.PutUint64(buf[0:8], p.Address)
		binary.BigEndian.PutUint32(buf[8:12], p.Length)
		return buf
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.Address))
	binary.BigEndian.PutUint32(buf[4:8], p.Length)
	return buf
}

func DecodeReadMemoryCmd(payload []byte, extended bool) (ReadMemoryCmdPayload, error) {
	if extended {
		if len(payload) < 12 {
			return ReadMemoryCmdPayload{}, fmt.Errorf("read-memory-cmd: %w", arverr.InvalidPacket)
		}
		return ReadMemoryCmdPayload{
			Address:  binary.BigEndian.Uint64(payload[0:8]),
			Extended: true,
			Length:   binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	}
	if len(payload) < 8 {
		return ReadMemoryCmdPayload{}, fmt.Errorf("read-memory-cmd: %w", arverr.InvalidPacket)
	}
	return ReadMemoryCmdPayload{
		Address: uint64(binary.BigEndian.Uint32(payload[0:4])),
		Length:  binary.BigEndian.Uint32(payload[4:8]),
	}, nil
}

// ReadMemoryAckPayload carries the address (echoed) and the data read.
type ReadMemoryAckPayload struct {
	Address  uint64
	Extended bool
	Data     []byte
}

func EncodeReadMemoryAck(p ReadMemoryAckPayload) []byte {
	if p.Extended {
		buf := make([]byte, 12+len(p.Data))
		binary.BigEndian.PutUint64(buf[0:8], p.Address)
		copy(buf[12:], p.Data)
		return buf
	}
	buf := make([]byte, 4+len(p.Data))
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.Address))
	copy(buf[4:], p.Data)
	return buf
}

func DecodeReadMemoryAck(payload []byte, extended bool) (ReadMemoryAckPayload, error) {
	hdr := 4
	if extended {
		hdr = 12
	}
	if len(payload) < hdr {
		return ReadMemoryAckPayload{}, fmt.Errorf("read-memory-ack: %w", arverr.InvalidPacket)
	}
	addr := uint64(binary.BigEndian.Uint32(payload[0:4]))
	if extended {
		addr = binary.BigEndian.Uint64(payload[0:8])
	}
	return ReadMemoryAckPayload{Address: addr, Extended: extended, Data: payload[hdr:]}, nil
}

// WriteMemoryCmdPayload writes Data at Address.
type WriteMemoryCmdPayload struct {
	Address  uint64
	Extended bool
	Data     []byte
}

func EncodeWriteMemoryCmd(p WriteMemoryCmdPayload) []byte {
	if p.Extended {
		buf := make([]byte, 12+len(p.Data))
		binary.BigEndian.PutUint64(buf[0:8], p.Address)
		copy(buf[12:], p.Data)
		return buf
	}
	buf := make([]byte, 4+len(p.Data))
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.Address))
	copy(buf[4:], p.Data)
	return buf
}

func DecodeWriteMemoryCmd(payload []byte, extended bool) (WriteMemoryCmdPayload, error) {
	hdr := 4
	if extended {
		hdr = 12
	}
	if len(payload) < hdr {
		return WriteMemoryCmdPayload{}, fmt.Errorf("write-memory-cmd: %w", arverr.InvalidPacket)
	}
	addr := uint64(binary.BigEndian.Uint32(payload[0:4]))
	if extended {
		addr = binary.BigEndian.Uint64(payload[0:8])
	}
	return WriteMemoryCmdPayload{Address: addr, Extended: extended, Data: payload[hdr:]}, nil
}

// WriteMemoryAckPayload echoes the address and the length actually written.
type WriteMemoryAckPayload struct {
	Address  uint64
	Extended bool
	Length   uint16
}

func EncodeWriteMemoryAck(p WriteMemoryAckPayload) []byte {
	if p.Extended {
		buf := make([]byte, 12)
		binary.BigEndian.PutUint64(buf[0:8], p.Address)
		binary.BigEndian.PutUint16(buf[10:12], p.Length)
		return buf
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[2:4], p.Length)
	return buf
}

func DecodeWriteMemoryAck(payload []byte, extended bool) (WriteMemoryAckPayload, error) {
	if extended {
		if len(payload) < 12 {
			return WriteMemoryAckPayload{}, fmt.Errorf("write-memory-ack: %w", arverr.InvalidPacket)
		}
		return WriteMemoryAckPayload{
			Address:  binary.BigEndian.Uint64(payload[0:8]),
			Extended: true,
			Length:   binary.BigEndian.Uint16(payload[10:12]),
		}, nil
	}
	if len(payload) < 4 {
		return WriteMemoryAckPayload{}, fmt.Errorf("write-memory-ack: %w", arverr.InvalidPacket)
	}
	return WriteMemoryAckPayload{Length: binary.BigEndian.Uint16(payload[2:4])}, nil
}

// ReadRegisterCmdPayload/Ack and WriteRegisterCmdPayload/Ack are the
// single-aligned-32-bit-word fast paths used by the feature engine's hot
// register accesses (§4.2).
type ReadRegisterCmdPayload struct {
	Address  uint64
	Extended bool
}

func EncodeReadRegisterCmd(p ReadRegisterCmdPayload) []byte {
	if p.Extended {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, p.Address)
		return buf
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(p.Address))
	return buf
}

func DecodeReadRegisterCmd(payload []byte, extended bool) (ReadRegisterCmdPayload, error) {
	if extended {
		if len(payload) < 8 {
			return ReadRegisterCmdPayload{}, fmt.Errorf("read-register-cmd: %w", arverr.InvalidPacket)
		}
		return ReadRegisterCmdPayload{Address: binary.BigEndian.Uint64(payload), Extended: true}, nil
	}
	if len(payload) < 4 {
		return ReadRegisterCmdPayload{}, fmt.Errorf("read-register-cmd: %w", arverr.InvalidPacket)
	}
	return ReadRegisterCmdPayload{Address: uint64(binary.BigEndian.Uint32(payload))}, nil
}

type ReadRegisterAckPayload struct {
	Value uint32
}

func EncodeReadRegisterAck(p ReadRegisterAckPayload) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, p.Value)
	return buf
}

func DecodeReadRegisterAck(payload []byte) (ReadRegisterAckPayload, error) {
	if len(payload) < 4 {
		return ReadRegisterAckPayload{}, fmt.Errorf("read-register-ack: %w", arverr.InvalidPacket)
	}
	return ReadRegisterAckPayload{Value: binary.BigEndian.Uint32(payload)}, nil
}

type WriteRegisterCmdPayload struct {
	Address  uint64
	Extended bool
	Value    uint32
}

func EncodeWriteRegisterCmd(p WriteRegisterCmdPayload) []byte {
	if p.Extended {
		buf := make([]byte, 12)
		binary.BigEndian.PutUint64(buf[0:8], p.Address)
		binary.BigEndian.PutUint32(buf[8:12], p.Value)
		return buf
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.Address))
	binary.BigEndian.PutUint32(buf[4:8], p.Value)
	return buf
}

func DecodeWriteRegisterCmd(payload []byte, extended bool) (WriteRegisterCmdPayload, error) {
	if extended {
		if len(payload) < 12 {
			return WriteRegisterCmdPayload{}, fmt.Errorf("write-register-cmd: %w", arverr.InvalidPacket)
		}
		return WriteRegisterCmdPayload{
			Address:  binary.BigEndian.Uint64(payload[0:8]),
			Extended: true,
			Value:    binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	}
	if len(payload) < 8 {
		return WriteRegisterCmdPayload{}, fmt.Errorf("write-register-cmd: %w", arverr.InvalidPacket)
	}
	return WriteRegisterCmdPayload{
		Address: uint64(binary.BigEndian.Uint32(payload[0:4])),
		Value:   binary.BigEndian.Uint32(payload[4:8]),
	}, nil
}

type WriteRegisterAckPayload struct {
	Index uint32
}

func EncodeWriteRegisterAck(p WriteRegisterAckPayload) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, p.Index)
	return buf
}

func DecodeWriteRegisterAck(payload []byte) (WriteRegisterAckPayload, error) {
	if len(payload) < 4 {
		return WriteRegisterAckPayload{}, fmt.Errorf("write-register-ack: %w", arverr.InvalidPacket)
	}
	return WriteRegisterAckPayload{Index: binary.BigEndian.Uint32(payload)}, nil
}

// PacketResendCmdPayload asks the device to retransmit packets
// [FirstPacketID, LastPacketID] of BlockID (§4.4 "Resend discipline").
type PacketResendCmdPayload struct {
	BlockID       uint64
	Extended      bool
	FirstPacketID uint32
	LastPacketID  uint32
}

func EncodePacketResendCmd(p PacketResendCmdPayload) []byte {
	if p.Extended {
		buf := make([]byte, 16)
		binary.BigEndian.PutUint64(buf[0:8], p.BlockID)
		binary.BigEndian.PutUint32(buf[8:12], p.FirstPacketID)
		binary.BigEndian.PutUint32(buf[12:16], p.LastPacketID)
		return buf
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(p.BlockID))
	binary.BigEndian.PutUint32(buf[2:6], p.FirstPacketID)
	// low 24 bits of LastPacketID, matching the packet_id field width
	binary.BigEndian.PutUint16(buf[6:8], uint16(p.LastPacketID))
	return buf
}

// Discovery ACK payload (§6): a 248-byte block. Only the fields spec.md
// names are decoded; the rest of the block is preserved verbatim so a
// future field can be added without breaking round-trips.
const DiscoveryAckSize = 248

type DiscoveryAckPayload struct {
	ManufacturerSpecific uint16
	DeviceVersion        uint16
	DeviceMACHigh        uint16
	DeviceMACLow         uint32
	CurrentIP            [4]byte
	SubnetMask           [4]byte
	DefaultGateway       [4]byte
	ManufacturerName     string
	ModelName            string
	DeviceVersionString  string
	ManufacturerInfo     string
	SerialNumber         string
	UserDefinedName      string
	Raw                  []byte
}

func cStr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func DecodeDiscoveryAck(payload []byte) (DiscoveryAckPayload, error) {
	if len(payload) < DiscoveryAckSize {
		return DiscoveryAckPayload{}, fmt.Errorf("discovery-ack length %d: %w", len(payload), arverr.InvalidPacket)
	}
	p := DiscoveryAckPayload{
		ManufacturerSpecific: binary.BigEndian.Uint16(payload[0:2]),
		DeviceVersion:        binary.BigEndian.Uint16(payload[2:4]),
		DeviceMACHigh:        binary.BigEndian.Uint16(payload[10:12]),
		DeviceMACLow:         binary.BigEndian.Uint32(payload[12:16]),
		ManufacturerName:     cStr(payload[16:48]),
		ModelName:            cStr(payload[48:80]),
		DeviceVersionString:  cStr(payload[80:92]),
		ManufacturerInfo:     cStr(payload[92:140]),
		SerialNumber:         cStr(payload[140:156]),
		UserDefinedName:      cStr(payload[156:172]),
		Raw:                  append([]byte(nil), payload[:DiscoveryAckSize]...),
	}
	copy(p.CurrentIP[:], payload[24:28])
	copy(p.SubnetMask[:], payload[28:32])
	copy(p.DefaultGateway[:], payload[32:36])
	return p, nil
}
