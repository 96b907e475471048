// Package fakecamera implements the in-process fake GigE Vision device
// used by the test "Fake" interface (spec §4.1 "Interface registry...
// plus the test Fake") and the end-to-end scenarios of spec §8 (S1,
// S2, S6).
//
// Grounded on original_source/src/arvfakecamera.h's register map ("To
// keep in sync with arv-fake-camera.xml") for addresses and defaults,
// and on internal/port.Port's "the engine never knows which transport
// underlies a Port" contract: Camera is simply a Port backed by a byte
// slice instead of a socket, so internal/genicam.Document drives it
// exactly as it would a real gvcp.Client.
package fakecamera

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aravis-go/aravis/internal/arvbuffer"
	"github.com/aravis-go/aravis/internal/arverr"
	"github.com/aravis-go/aravis/internal/genicam"
)

// Register addresses, grounded on arvfakecamera.h.
const (
	MemorySize = 0x10000

	RegisterSensorWidth  = 0x11c
	RegisterSensorHeight = 0x118
	RegisterWidth        = 0x100
	RegisterHeight       = 0x104
	RegisterXOffset      = 0x130
	RegisterYOffset      = 0x134
	RegisterPixelFormat  = 0x128
	RegisterVendorName   = 0x048

	RegisterAcquisitionFramePeriodUs = 0x138
	RegisterExposureTimeUs           = 0x120

	RegisterFrameStartOffset       = 0x000
	RegisterAcquisitionStartOffset = 0x020
	RegisterTriggerMode            = 0x300
	RegisterTriggerSource          = 0x304
	RegisterTriggerActivation      = 0x308
	RegisterTriggerSoftware        = 0x30c
)

// Defaults, grounded on arvfakecamera.h.
const (
	SensorWidthDefault          = 2048
	SensorHeightDefault         = 2048
	WidthDefault                = 512
	HeightDefault                = 512
	PixelFormatMono8            = 0x01080001
	AcquisitionFrameRateDefault = 25.0
	ExposureTimeUsDefault       = 10000
)

// Camera is a byte-addressable memory region standing in for a real
// GigE Vision device's register space, plus the GenICam document bound
// to it. It implements port.Port directly (spec §4.2 "the engine never
// knows which transport underlies a Port").
type Camera struct {
	mu           sync.Mutex
	memory       [MemorySize]byte
	serialNumber string

	Doc *genicam.Document
}

// New constructs a fake camera preloaded with arvfakecamera.h's
// defaults and parses the embedded GenICam description against it.
func New(serialNumber string) (*Camera, error) {
	c := &Camera{serialNumber: serialNumber}
	binary.BigEndian.PutUint32(c.memory[RegisterSensorWidth:], SensorWidthDefault)
	binary.BigEndian.PutUint32(c.memory[RegisterSensorHeight:], SensorHeightDefault)
	binary.BigEndian.PutUint32(c.memory[RegisterWidth:], WidthDefault)
	binary.BigEndian.PutUint32(c.memory[RegisterHeight:], HeightDefault)
	binary.BigEndian.PutUint32(c.memory[RegisterPixelFormat:], PixelFormatMono8)
	binary.BigEndian.PutUint32(c.memory[RegisterExposureTimeUs:], ExposureTimeUsDefault)
	binary.BigEndian.PutUint32(c.memory[RegisterAcquisitionFramePeriodUs:], uint32(1000000/AcquisitionFrameRateDefault))
	copy(c.memory[RegisterVendorName:], "Aravis-Go\x00")

	c.Doc = genicam.NewDocument(c, log.Default())
	if err := c.Doc.ParseXML(bytes.NewReader([]byte(genicamXML))); err != nil {
		return nil, fmt.Errorf("fake camera genicam xml: %w", err)
	}
	return c, nil
}

// SerialNumber is the id encoded into the fake device's discovery
// identity (spec §8 S1's "Aravis-Fake-GV01").
func (c *Camera) SerialNumber() string { return c.serialNumber }

// Read implements port.Port.
func (c *Camera) Read(ctx context.Context, address uint64, length int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if address+uint64(length) > MemorySize {
		return nil, fmt.Errorf("fake camera read @0x%x len %d out of range: %w", address, length, arverr.InvalidAddress)
	}
	out := make([]byte, length)
	copy(out, c.memory[address:address+uint64(length)])
	return out, nil
}

// Write implements port.Port.
func (c *Camera) Write(ctx context.Context, address uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if address+uint64(len(data)) > MemorySize {
		return fmt.Errorf("fake camera write @0x%x len %d out of range: %w", address, len(data), arverr.InvalidAddress)
	}
	copy(c.memory[address:], data)
	return nil
}

// ReadRegister implements port.RegisterPort.
func (c *Camera) ReadRegister(ctx context.Context, address uint64) (uint32, error) {
	data, err := c.Read(ctx, address, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data), nil
}

// WriteRegister implements port.RegisterPort.
func (c *Camera) WriteRegister(ctx context.Context, address uint64, value uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return c.Write(ctx, address, buf[:])
}

// GenicamXML returns the fake device's feature description (spec §4.3
// "manifest-table XML fetch"), matching get_genicam_xml's contract.
func (c *Camera) GenicamXML() []byte { return []byte(genicamXML) }

// bitsPerPixel covers the handful of pixel formats this fake camera
// exposes (spec's Supplemented Features "PixelFormatBitsPerPixel").
func bitsPerPixel(pixelFormat int64) int {
	switch pixelFormat {
	case PixelFormatMono8:
		return 8
	case 0x01100007: // Mono16
		return 16
	default:
		return 8
	}
}

// Payload computes the expected frame size for the camera's current
// Width/Height/PixelFormat (spec §8 S6 "get_payload() → 640*480*bpp
// (PixelFormat)").
func (c *Camera) Payload(ctx context.Context) (int, error) {
	width, err := c.Doc.IntegerValue(ctx, mustNode(c.Doc, "Width"))
	if err != nil {
		return 0, err
	}
	height, err := c.Doc.IntegerValue(ctx, mustNode(c.Doc, "Height"))
	if err != nil {
		return 0, err
	}
	pixelFormat, err := c.Doc.IntegerValue(ctx, mustNode(c.Doc, "PixelFormat"))
	if err != nil {
		return 0, err
	}
	bpp := bitsPerPixel(pixelFormat)
	return int(width) * int(height) * bpp / 8, nil
}

func mustNode(d *genicam.Document, name string) *genicam.Node {
	n, err := d.NodeByName(name)
	if err != nil {
		panic(err) // the embedded XML always declares its own feature names
	}
	return n
}

// WaitForNextFrame paces the acquisition loop to the camera's
// AcquisitionFramePeriodUs register (spec §8 S4 "1 s at 20 fps"),
// mirroring arv_fake_camera_wait_for_next_frame's role in the original
// producer loop (declared in arvfakecamera.h, paced here off the same
// register this package's New already seeds from AcquisitionFrameRateDefault).
func (c *Camera) WaitForNextFrame(ctx context.Context) {
	periodUs, err := c.ReadRegister(ctx, RegisterAcquisitionFramePeriodUs)
	if err != nil || periodUs == 0 {
		periodUs = uint32(1000000 / AcquisitionFrameRateDefault)
	}
	t := time.NewTimer(time.Duration(periodUs) * time.Microsecond)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// FillBuffer writes a deterministic test pattern into buf, sized to
// the camera's current payload (spec §8 S4 "enqueue buffers of size =
// payload"), and marks it Success/Image, mirroring
// arv_fake_camera_fill_buffer's role in the original producer loop.
func (c *Camera) FillBuffer(ctx context.Context, buf *arvbuffer.Buffer) error {
	payload, err := c.Payload(ctx)
	if err != nil {
		return err
	}
	if payload > buf.AllocatedSize() {
		return fmt.Errorf("fake camera payload %d exceeds buffer size %d: %w", payload, buf.AllocatedSize(), arverr.InvalidParameter)
	}
	data := buf.Data()
	for i := 0; i < payload; i++ {
		data[i] = byte(i)
	}
	if err := buf.SetReceivedSize(payload); err != nil {
		return err
	}
	buf.PayloadType = arvbuffer.PayloadImage
	buf.Status = arvbuffer.StatusSuccess
	buf.SystemTimestamp = uint64(time.Now().UnixNano())

	width, _ := c.Doc.IntegerValue(ctx, mustNode(c.Doc, "Width"))
	height, _ := c.Doc.IntegerValue(ctx, mustNode(c.Doc, "Height"))
	xOffset, _ := c.Doc.IntegerValue(ctx, mustNode(c.Doc, "XOffset"))
	yOffset, _ := c.Doc.IntegerValue(ctx, mustNode(c.Doc, "YOffset"))
	pixelFormat, _ := c.Doc.IntegerValue(ctx, mustNode(c.Doc, "PixelFormat"))
	buf.Parts = []arvbuffer.Part{{
		Offset:      0,
		Size:        payload,
		PixelFormat: uint32(pixelFormat),
		Width:       uint32(width),
		Height:      uint32(height),
		XOffset:     uint32(xOffset),
		YOffset:     uint32(yOffset),
	}}
	return nil
}
