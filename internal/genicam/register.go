package genicam

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/aravis-go/aravis/internal/arverr"
	"github.com/aravis-go/aravis/internal/port"
)

// addressOf resolves a register node's address per spec §4.5 "Address
// resolution for a Register node": Address properties are summed,
// pAddress properties name features whose integer values are added,
// and pIndex contributes base_offset + index_value*step. Sub-registers
// (StructEntry) inherit their parent's base address, represented here
// by the sub-register's own Address/pAddress chain already including
// the parent's contribution at load time (see xmlload.go).
func (d *Document) addressOf(ctx context.Context, n *Node) (uint64, error) {
	var addr int64
	sum, err := d.sumIntProps(ctx, n, PropAddress)
	if err != nil {
		return 0, err
	}
	addr += sum
	psum, err := d.sumIntProps(ctx, n, PropPAddress)
	if err != nil {
		return 0, err
	}
	addr += psum

	if pv, ok := firstProp(n, PropPIndex); ok {
		idxTarget, err := d.NodeByName(pv.Ref)
		if err != nil {
			return 0, err
		}
		idxVal, err := d.IntegerValue(ctx, idxTarget)
		if err != nil {
			return 0, err
		}
		step := int64(4)
		if stepPV, ok := firstProp(n, "pIndexStep"); ok {
			if s, err := d.resolveInt(ctx, n, stepPV, 0); err == nil {
				step = s
			}
		}
		addr += idxVal * step
	}
	if addr < 0 {
		return 0, fmt.Errorf("%s: negative address: %w", n.Name, arverr.InvalidParameter)
	}
	return uint64(addr), nil
}

func (d *Document) lengthOf(ctx context.Context, n *Node, def int64) (int64, error) {
	pv, ok := firstProp(n, PropLength)
	if !ok {
		pv, ok = firstProp(n, PropPLength)
	}
	if !ok {
		return def, nil
	}
	return d.resolveInt(ctx, n, pv, 0)
}

func (d *Document) portFor(n *Node) port.Port {
	if n.port != nil {
		return n.port
	}
	return d.devicePort
}

func (d *Document) readRegisterBytes(ctx context.Context, n *Node, length int) ([]byte, error) {
	addr, err := d.addressOf(ctx, n)
	if err != nil {
		return nil, err
	}
	p := d.portFor(n)
	if p == nil {
		return nil, fmt.Errorf("%s: %w", n.Name, arverr.NoDeviceSet)
	}
	data, err := p.Read(ctx, addr, length)
	if err != nil {
		return nil, fmt.Errorf("%s: read %d bytes @0x%x: %w", n.Name, length, addr, err)
	}
	return data, nil
}

func (d *Document) writeRegisterBytes(ctx context.Context, n *Node, data []byte) error {
	addr, err := d.addressOf(ctx, n)
	if err != nil {
		return err
	}
	p := d.portFor(n)
	if p == nil {
		return fmt.Errorf("%s: %w", n.Name, arverr.NoDeviceSet)
	}
	if err := p.Write(ctx, addr, data); err != nil {
		return fmt.Errorf("%s: write %d bytes @0x%x: %w", n.Name, len(data), addr, err)
	}
	return nil
}

func byteOrder(n *Node) binary.ByteOrder {
	if pv, ok := firstProp(n, PropEndianness); ok && pv.Literal == "LittleEndian" {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// readIntRegister implements the plain IntReg (full-width, unmasked
// read) and delegates to readMaskedIntRegister for MaskedIntReg, which
// additionally extracts [lsb,msb] and sign-extends (spec §4.5 "Masked
// integer read").
func (d *Document) readIntRegister(ctx context.Context, n *Node) (int64, error) {
	length, err := d.lengthOf(ctx, n, 4)
	if err != nil {
		return 0, err
	}
	data, err := d.readRegisterBytes(ctx, n, int(length))
	if err != nil {
		return 0, err
	}
	raw, err := decodeUint(data, byteOrder(n))
	if err != nil {
		return 0, err
	}
	if n.Kind == KindMaskedIntReg {
		return maskExtract(raw, n, int(length)*8)
	}
	if signedProp(n) {
		return signExtend(raw, int(length)*8), nil
	}
	return int64(raw), nil
}

func (d *Document) writeIntRegister(ctx context.Context, n *Node, v int64) error {
	length, err := d.lengthOf(ctx, n, 4)
	if err != nil {
		return err
	}
	if n.Kind == KindMaskedIntReg {
		// read-modify-write: only the [lsb,msb] bits change.
		data, err := d.readRegisterBytes(ctx, n, int(length))
		if err != nil {
			return err
		}
		raw, err := decodeUint(data, byteOrder(n))
		if err != nil {
			return err
		}
		merged, err := maskInsert(raw, n, int(length)*8, v)
		if err != nil {
			return err
		}
		return d.writeRegisterBytes(ctx, n, encodeUint(merged, int(length), byteOrder(n)))
	}
	return d.writeRegisterBytes(ctx, n, encodeUint(uint64(v), int(length), byteOrder(n)))
}

func (d *Document) readFloatRegister(ctx context.Context, n *Node) (float64, error) {
	length, err := d.lengthOf(ctx, n, 4)
	if err != nil {
		return 0, err
	}
	data, err := d.readRegisterBytes(ctx, n, int(length))
	if err != nil {
		return 0, err
	}
	order := byteOrder(n)
	switch length {
	case 4:
		bits := order.Uint32(data)
		return float64(math.Float32frombits(bits)), nil
	case 8:
		bits := order.Uint64(data)
		return math.Float64frombits(bits), nil
	default:
		return 0, fmt.Errorf("%s: unsupported float register length %d: %w", n.Name, length, arverr.InvalidLength)
	}
}

func (d *Document) writeFloatRegister(ctx context.Context, n *Node, v float64) error {
	length, err := d.lengthOf(ctx, n, 4)
	if err != nil {
		return err
	}
	order := byteOrder(n)
	buf := make([]byte, length)
	switch length {
	case 4:
		order.PutUint32(buf, math.Float32bits(float32(v)))
	case 8:
		order.PutUint64(buf, math.Float64bits(v))
	default:
		return fmt.Errorf("%s: unsupported float register length %d: %w", n.Name, length, arverr.InvalidLength)
	}
	return d.writeRegisterBytes(ctx, n, buf)
}

func (d *Document) readStringRegister(ctx context.Context, n *Node) (string, error) {
	length, err := d.lengthOf(ctx, n, 64)
	if err != nil {
		return "", err
	}
	data, err := d.readRegisterBytes(ctx, n, int(length))
	if err != nil {
		return "", err
	}
	for i, c := range data {
		if c == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

func (d *Document) writeStringRegister(ctx context.Context, n *Node, s string) error {
	length, err := d.lengthOf(ctx, n, int64(len(s)+1))
	if err != nil {
		return err
	}
	if int64(len(s)) >= length {
		return fmt.Errorf("%s: string too long for register length %d: %w", n.Name, length, arverr.InvalidLength)
	}
	buf := make([]byte, length)
	copy(buf, s)
	return d.writeRegisterBytes(ctx, n, buf)
}

func signedProp(n *Node) bool {
	pv, ok := firstProp(n, PropSign)
	return ok && pv.Literal == "Signed"
}

func decodeUint(data []byte, order binary.ByteOrder) (uint64, error) {
	switch len(data) {
	case 1:
		return uint64(data[0]), nil
	case 2:
		return uint64(order.Uint16(data)), nil
	case 4:
		return uint64(order.Uint32(data)), nil
	case 8:
		return order.Uint64(data), nil
	default:
		return 0, fmt.Errorf("unsupported register width %d: %w", len(data), arverr.InvalidLength)
	}
}

func encodeUint(v uint64, length int, order binary.ByteOrder) []byte {
	buf := make([]byte, length)
	switch length {
	case 1:
		buf[0] = byte(v)
	case 2:
		order.PutUint16(buf, uint16(v))
	case 4:
		order.PutUint32(buf, uint32(v))
	case 8:
		order.PutUint64(buf, v)
	}
	return buf
}

// maskExtract implements spec §4.5 step 4: "Shift and mask to extract
// [lsb, msb]; sign-extend if signed."
func maskExtract(raw uint64, n *Node, width int) (int64, error) {
	lsb, msb, err := bitRange(n, width)
	if err != nil {
		return 0, err
	}
	nbits := msb - lsb + 1
	mask := uint64(1)<<uint(nbits) - 1
	val := (raw >> uint(lsb)) & mask
	if signedProp(n) {
		return signExtend(val, nbits), nil
	}
	return int64(val), nil
}

// maskInsert writes v into [lsb,msb] of raw, leaving other bits intact.
func maskInsert(raw uint64, n *Node, width int, v int64) (uint64, error) {
	lsb, msb, err := bitRange(n, width)
	if err != nil {
		return 0, err
	}
	nbits := msb - lsb + 1
	mask := uint64(1)<<uint(nbits) - 1
	cleared := raw &^ (mask << uint(lsb))
	return cleared | ((uint64(v) & mask) << uint(lsb)), nil
}

func bitRange(n *Node, width int) (lsb, msb int, err error) {
	lsbPV, hasLSB := firstProp(n, PropLSB)
	msbPV, hasMSB := firstProp(n, PropMSB)
	if !hasLSB || !hasMSB {
		return 0, width - 1, nil
	}
	lv, err := parseIntLiteral(lsbPV.Literal)
	if err != nil {
		return 0, 0, err
	}
	mv, err := parseIntLiteral(msbPV.Literal)
	if err != nil {
		return 0, 0, err
	}
	if lv < 0 || mv >= int64(width) || lv > mv {
		return 0, 0, fmt.Errorf("%s: bit range [%d,%d] invalid for width %d: %w", n.Name, lv, mv, width, arverr.InvalidBitRange)
	}
	return int(lv), int(mv), nil
}

func signExtend(v uint64, bits int) int64 {
	shift := 64 - bits
	return int64(v<<uint(shift)) >> uint(shift)
}
