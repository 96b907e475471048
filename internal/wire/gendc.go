package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/aravis-go/aravis/internal/arverr"
)

// GenDC (Generic Data Container) is a two-level header embedded in a
// GVSP/UVSP payload: a container header naming components, each
// component naming parts (§4.1).
const gendcContainerHeaderSize = 16
const gendcComponentHeaderSize = 16
const gendcPartHeaderSize = 40

type GenDCPartHeader struct {
	Format      uint32
	Width       uint32
	Height      uint32
	XPadding    uint32
	YPadding    uint32
	DataOffset  uint64
	DataSize    uint64
}

type GenDCComponent struct {
	ComponentID uint32
	Parts       []GenDCPartHeader
}

type GenDCDescriptor struct {
	ComponentCount uint32
	Components     []GenDCComponent
}

// DecodeGenDCDescriptor walks the container -> component -> part table.
// It borrows data and never copies pixel payload bytes; callers index
// into data using each part's DataOffset/DataSize.
func DecodeGenDCDescriptor(data []byte) (GenDCDescriptor, error) {
	if len(data) < gendcContainerHeaderSize {
		return GenDCDescriptor{}, fmt.Errorf("gendc container header: %w", arverr.InvalidPacket)
	}
	componentCount := binary.LittleEndian.Uint32(data[4:8])
	firstComponentOffset := binary.LittleEndian.Uint64(data[8:16])

	d := GenDCDescriptor{ComponentCount: componentCount}
	offset := firstComponentOffset
	for i := uint32(0); i < componentCount; i++ {
		if offset+gendcComponentHeaderSize > uint64(len(data)) {
			return GenDCDescriptor{}, fmt.Errorf("gendc component %d out of bounds: %w", i, arverr.InvalidPacket)
		}
		ch := data[offset : offset+gendcComponentHeaderSize]
		componentID := binary.LittleEndian.Uint32(ch[0:4])
		partCount := binary.LittleEndian.Uint32(ch[4:8])
		partsBase := binary.LittleEndian.Uint64(ch[8:16])
		comp := GenDCComponent{ComponentID: componentID}
		for j := uint32(0); j < partCount; j++ {
			po := partsBase + uint64(j)*gendcPartHeaderSize
			if po+gendcPartHeaderSize > uint64(len(data)) {
				return GenDCDescriptor{}, fmt.Errorf("gendc part %d/%d out of bounds: %w", i, j, arverr.InvalidPacket)
			}
			pd := data[po : po+gendcPartHeaderSize]
			comp.Parts = append(comp.Parts, GenDCPartHeader{
				Format:     binary.LittleEndian.Uint32(pd[0:4]),
				Width:      binary.LittleEndian.Uint32(pd[4:8]),
				Height:     binary.LittleEndian.Uint32(pd[8:12]),
				XPadding:   binary.LittleEndian.Uint32(pd[12:16]),
				YPadding:   binary.LittleEndian.Uint32(pd[16:20]),
				DataOffset: binary.LittleEndian.Uint64(pd[20:28]),
				DataSize:   binary.LittleEndian.Uint64(pd[28:36]),
			})
		}
		d.Components = append(d.Components, comp)
		offset += gendcComponentHeaderSize
	}
	return d, nil
}
