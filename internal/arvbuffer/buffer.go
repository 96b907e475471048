// Package arvbuffer implements the Buffer container of spec §3: a byte
// region with a payload-type-tagged view, status, timestamps, and a
// parts table. Modeled on the teacher's ownership discipline for
// externally-supplied resources (client/streaming.go's StreamProcess
// owns an *exec.Cmd it must stop exactly once) generalized here to
// "does this Buffer own its backing memory".
package arvbuffer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aravis-go/aravis/internal/arverr"
	"github.com/aravis-go/aravis/internal/wire"
)

// Status mirrors spec §3's Buffer.status enumeration.
type Status int

const (
	StatusSuccess Status = iota
	StatusCleared
	StatusTimeout
	StatusMissingPackets
	StatusWrongPacketID
	StatusSizeMismatch
	StatusFilling
	StatusAborted
	StatusPayloadNotSupported
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusCleared:
		return "Cleared"
	case StatusTimeout:
		return "Timeout"
	case StatusMissingPackets:
		return "MissingPackets"
	case StatusWrongPacketID:
		return "WrongPacketId"
	case StatusSizeMismatch:
		return "SizeMismatch"
	case StatusFilling:
		return "Filling"
	case StatusAborted:
		return "Aborted"
	case StatusPayloadNotSupported:
		return "PayloadNotSupported"
	default:
		return "Unknown"
	}
}

// PayloadType mirrors spec §3's Buffer.payload_type enumeration.
type PayloadType int

const (
	PayloadNoData PayloadType = iota
	PayloadImage
	PayloadChunk
	PayloadExtendedChunkData
	PayloadMultipart
	PayloadGenDCContainer
	PayloadGenDCComponentData
)

// Part describes one region of a multipart/GenDC buffer (spec §3 "A
// Part is (offset, size, pixel_format, width, height, x_off, y_off,
// x_pad, y_pad, data_type, component_id)").
type Part struct {
	Offset      int
	Size        int
	PixelFormat uint32
	Width       uint32
	Height      uint32
	XOffset     uint32
	YOffset     uint32
	XPadding    uint32
	YPadding    uint32
	DataType    uint8
	ComponentID uint8
}

// ReleaseFunc is called exactly once when a caller-supplied Buffer is
// dropped (spec P8, "new_full invokes the destroy callback exactly
// once").
type ReleaseFunc func(userData any)

// Buffer owns a byte region, either library-allocated or caller
// supplied (spec §3 "Buffer").
type Buffer struct {
	ID uuid.UUID

	mu sync.Mutex

	data         []byte
	receivedSize int
	callerOwned  bool
	released     bool
	release      ReleaseFunc
	userData     any

	Status          Status
	PayloadType     PayloadType
	DeviceTimestamp uint64
	SystemTimestamp uint64
	FrameID         uint64

	Parts []Part
}

// New allocates an empty buffer of the given size (spec §6
// "Buffer: new, new_allocate").
func New(size int) *Buffer {
	return &Buffer{ID: uuid.New(), data: make([]byte, size), Status: StatusCleared}
}

// NewAllocate is an alias kept for API-surface parity with spec §6; in
// this implementation New always allocates, so NewAllocate is simply
// New. A buffer constructed this way frees its memory on Release (P8).
func NewAllocate(size int) *Buffer { return New(size) }

// NewFull wraps caller-supplied memory. The library never frees data;
// release (if non-nil) is invoked exactly once when the Buffer is
// dropped (spec P8).
func NewFull(data []byte, userData any, release ReleaseFunc) *Buffer {
	return &Buffer{
		ID:          uuid.New(),
		data:        data,
		callerOwned: true,
		release:     release,
		userData:    userData,
		Status:      StatusCleared,
	}
}

// AllocatedSize is the total capacity of the backing region.
func (b *Buffer) AllocatedSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// ReceivedSize is the number of bytes actually filled (spec invariant:
// received_size <= allocated_size).
func (b *Buffer) ReceivedSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receivedSize
}

// SetReceivedSize is used by the receive pipelines while filling a
// buffer; it enforces the invariant received_size <= allocated_size.
func (b *Buffer) SetReceivedSize(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 || n > len(b.data) {
		return fmt.Errorf("received size %d exceeds allocated size %d", n, len(b.data))
	}
	b.receivedSize = n
	return nil
}

// Data returns the full backing region. Writers (receive pipelines)
// must hold no other reference once this is handed to a caller thread
// per spec §5 buffer-queue ownership handoff.
func (b *Buffer) Data() []byte { return b.data }

// ImageData is defined only when Status==Success and PayloadType==Image
// (spec §3 invariant on view methods).
func (b *Buffer) ImageData() ([]byte, error) {
	if b.Status != StatusSuccess {
		return nil, fmt.Errorf("buffer status is %s, not Success", b.Status)
	}
	if b.PayloadType != PayloadImage {
		return nil, fmt.Errorf("buffer payload type is not Image")
	}
	return b.data[:b.receivedSize], nil
}

// PartData returns the bytes of part i, validated against the buffer's
// allocated size; the received size is not consulted.
func (b *Buffer) PartData(i int) ([]byte, error) {
	if b.Status != StatusSuccess {
		return nil, fmt.Errorf("buffer status is %s, not Success", b.Status)
	}
	if i < 0 || i >= len(b.Parts) {
		return nil, fmt.Errorf("part index %d out of range [0,%d)", i, len(b.Parts))
	}
	p := b.Parts[i]
	end := p.Offset + p.Size
	if p.Offset < 0 || end > len(b.data) {
		return nil, fmt.Errorf("part %d [%d,%d) outside allocated region of size %d", i, p.Offset, end, len(b.data))
	}
	return b.data[p.Offset:end], nil
}

// Release drops the buffer's resources exactly once. For a
// library-allocated buffer this simply discards the slice; for a
// caller-supplied buffer it invokes the release hook and never frees
// the memory itself (P8).
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	if b.callerOwned && b.release != nil {
		b.release(b.userData)
	}
	b.data = nil
}

// CallerOwned reports whether the backing memory belongs to the caller
// (spec P8).
func (b *Buffer) CallerOwned() bool { return b.callerOwned }

// GetStatus, GetPayloadType, GetTimestamp, GetSystemTimestamp, and
// GetFrameID mirror the exported fields of the same data as spec §6
// "Buffer: get_status, get_payload_type, get_timestamp,
// get_system_timestamp, get_frame_id" method calls, for callers that
// prefer a uniform accessor surface over direct field access.
func (b *Buffer) GetStatus() Status           { return b.Status }
func (b *Buffer) GetPayloadType() PayloadType { return b.PayloadType }
func (b *Buffer) GetTimestamp() uint64        { return b.DeviceTimestamp }
func (b *Buffer) GetSystemTimestamp() uint64  { return b.SystemTimestamp }
func (b *Buffer) GetFrameID() uint64          { return b.FrameID }

// imagePart returns the part describing a simple single-part image
// (spec §6 "get_image_*"), which both receive pipelines and the fake
// camera populate as Parts[0] even when the wire format carries no
// explicit parts table.
func (b *Buffer) imagePart() (Part, error) {
	if len(b.Parts) == 0 {
		return Part{}, fmt.Errorf("buffer has no image part: %w", arverr.PropertyNotDefined)
	}
	return b.Parts[0], nil
}

// GetImagePixelFormat, GetImageWidth, GetImageHeight, GetImageX,
// GetImageY, GetImageRegion, and GetImagePadding read geometry out of
// the buffer's first part (spec §6 "get_image_{pixel_format, region,
// padding, width, height, x, y}").
func (b *Buffer) GetImagePixelFormat() (uint32, error) {
	p, err := b.imagePart()
	return p.PixelFormat, err
}

func (b *Buffer) GetImageWidth() (uint32, error) {
	p, err := b.imagePart()
	return p.Width, err
}

func (b *Buffer) GetImageHeight() (uint32, error) {
	p, err := b.imagePart()
	return p.Height, err
}

func (b *Buffer) GetImageX() (uint32, error) {
	p, err := b.imagePart()
	return p.XOffset, err
}

func (b *Buffer) GetImageY() (uint32, error) {
	p, err := b.imagePart()
	return p.YOffset, err
}

// GetImageRegion returns (x, y, width, height) together (spec §6
// "get_image_region").
func (b *Buffer) GetImageRegion() (x, y, width, height uint32, err error) {
	p, err := b.imagePart()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return p.XOffset, p.YOffset, p.Width, p.Height, nil
}

// GetImagePadding returns (x_padding, y_padding) (spec §6
// "get_image_padding").
func (b *Buffer) GetImagePadding() (xPadding, yPadding uint32, err error) {
	p, err := b.imagePart()
	if err != nil {
		return 0, 0, err
	}
	return p.XPadding, p.YPadding, nil
}

// NParts reports the size of the parts table (spec §6 "get_n_parts").
func (b *Buffer) NParts() int { return len(b.Parts) }

// Part returns part i's descriptor (spec §6 "get_part_*", bundled into
// one struct rather than one accessor per field).
func (b *Buffer) Part(i int) (Part, error) {
	if i < 0 || i >= len(b.Parts) {
		return Part{}, fmt.Errorf("part index %d out of range [0,%d)", i, len(b.Parts))
	}
	return b.Parts[i], nil
}

// FindComponent returns the index of the first part whose ComponentID
// matches (spec §6 "find_component").
func (b *Buffer) FindComponent(componentID uint8) (int, bool) {
	for i, p := range b.Parts {
		if p.ComponentID == componentID {
			return i, true
		}
	}
	return -1, false
}

// HasChunks reports whether this buffer carries chunk data alongside
// (or instead of) an image (spec §6 "has_chunks").
func (b *Buffer) HasChunks() bool {
	return b.PayloadType == PayloadChunk || b.PayloadType == PayloadExtendedChunkData
}

// ChunkData returns the received region when the buffer carries chunk
// data (spec §6 "get_chunk_data"); callers parse individual chunk
// features out of this region themselves (the ChunkParser error kinds
// of §7 belong to that caller-side parser, not to Buffer).
func (b *Buffer) ChunkData() ([]byte, error) {
	if b.Status != StatusSuccess {
		return nil, fmt.Errorf("buffer status is %s, not Success", b.Status)
	}
	if !b.HasChunks() {
		return nil, fmt.Errorf("buffer payload type is not chunk data")
	}
	return b.data[:b.receivedSize], nil
}

// HasGenDC reports whether the buffer's payload is a GenDC container
// (spec §6 "has_gendc").
func (b *Buffer) HasGenDC() bool {
	return b.PayloadType == PayloadGenDCContainer || b.PayloadType == PayloadGenDCComponentData
}

// GenDCDescriptor decodes the container/component/part header table at
// the front of the received region (spec §6 "get_gendc_descriptor").
func (b *Buffer) GenDCDescriptor() (wire.GenDCDescriptor, error) {
	if b.Status != StatusSuccess {
		return wire.GenDCDescriptor{}, fmt.Errorf("buffer status is %s, not Success", b.Status)
	}
	if !b.HasGenDC() {
		return wire.GenDCDescriptor{}, fmt.Errorf("buffer payload type is not GenDC")
	}
	return wire.DecodeGenDCDescriptor(b.data[:b.receivedSize])
}

// GenDCData returns the byte range of one decoded part's pixel payload
// (spec §6 "get_gendc_data").
func (b *Buffer) GenDCData(part wire.GenDCPartHeader) ([]byte, error) {
	if b.Status != StatusSuccess {
		return nil, fmt.Errorf("buffer status is %s, not Success", b.Status)
	}
	end := part.DataOffset + part.DataSize
	if end > uint64(b.receivedSize) {
		return nil, fmt.Errorf("gendc part [%d,%d) outside received region of size %d", part.DataOffset, end, b.receivedSize)
	}
	return b.data[part.DataOffset:end], nil
}
