package gvsp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/aravis-go/aravis/internal/arvbuffer"
	"github.com/aravis-go/aravis/internal/streamcore"
	"github.com/aravis-go/aravis/internal/wire"
)

type noopResender struct{}

func (noopResender) RequestResend(ctx context.Context, blockID uint64, first, last uint32) error {
	return nil
}

func newLoopbackPair(t *testing.T) (dataConn *net.UDPConn, deviceConn *net.UDPConn) {
	t.Helper()
	dataConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp (stream side): %v", err)
	}
	t.Cleanup(func() { dataConn.Close() })

	deviceConn, err = net.DialUDP("udp", nil, dataConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial udp (device side): %v", err)
	}
	t.Cleanup(func() { deviceConn.Close() })
	return dataConn, deviceConn
}

// sendFrame writes a leader, one payload packet, and a trailer for
// blockID over the device-side connection, as a real GVSP source would.
func sendFrame(t *testing.T, device *net.UDPConn, blockID uint64, payload []byte) {
	t.Helper()
	leader := wire.EncodeGVSPHeader(wire.GVSPHeader{
		BlockID:      blockID,
		PacketFormat: wire.GVSPFormatLeader,
		PacketID:     0,
	}, wire.EncodeGVSPLeader(wire.GVSPLeader{
		PayloadType: wire.GVSPPayloadImage,
		PixelFormat: 0x01080001,
		Width:       4,
		Height:      4,
		Timestamp:   1000,
	}))
	if _, err := device.Write(leader); err != nil {
		t.Fatalf("write leader: %v", err)
	}

	pkt := wire.EncodeGVSPHeader(wire.GVSPHeader{
		BlockID:      blockID,
		PacketFormat: wire.GVSPFormatPayload,
		PacketID:     1,
	}, payload)
	if _, err := device.Write(pkt); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	trailer := wire.EncodeGVSPHeader(wire.GVSPHeader{
		BlockID:      blockID,
		PacketFormat: wire.GVSPFormatTrailer,
		PacketID:     2,
	}, wire.EncodeGVSPTrailer(wire.GVSPTrailer{
		PayloadType: wire.GVSPPayloadImage,
		PayloadSize: uint32(len(payload)),
	}))
	if _, err := device.Write(trailer); err != nil {
		t.Fatalf("write trailer: %v", err)
	}
}

// TestStreamReassemblesSingleFrame covers spec P3 (receive completeness
// for a packet-loss-free frame) and the single-part image synthesis
// path: leader+payload+trailer with no missing packets yields a
// Success buffer whose Parts[0] matches the leader's geometry.
func TestStreamReassemblesSingleFrame(t *testing.T) {
	dataConn, device := newLoopbackPair(t)
	s := New(dataConn, noopResender{}, Config{PacketTimeout: 50 * time.Millisecond})

	done := make(chan *arvbuffer.Buffer, 1)
	s.SetCallback(func(event streamcore.Event, buf *arvbuffer.Buffer) {
		if event == streamcore.EventBufferDone {
			done <- buf
		}
	})
	s.StartThread()
	defer s.StopThread(true)

	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i)
	}
	buf := arvbuffer.New(len(payload))
	s.PushBuffer(buf)

	sendFrame(t, device, 7, payload)

	select {
	case filled := <-done:
		if filled.GetStatus() != arvbuffer.StatusSuccess {
			t.Fatalf("status = %v, want Success", filled.GetStatus())
		}
		if filled.FrameID != 7 {
			t.Fatalf("FrameID = %d, want 7", filled.FrameID)
		}
		w, err := filled.GetImageWidth()
		if err != nil || w != 4 {
			t.Fatalf("GetImageWidth() = (%d,%v), want (4,nil)", w, err)
		}
		data, err := filled.ImageData()
		if err != nil || len(data) != len(payload) {
			t.Fatalf("ImageData() = (%d bytes,%v), want (%d,nil)", len(data), err, len(payload))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reassembled frame")
	}
}

// TestStreamExpiresFrameMissingTrailer covers spec §4.4 step 3: a frame
// whose trailer never arrives is completed with StatusTimeout once its
// retention window elapses, rather than being held forever.
func TestStreamExpiresFrameMissingTrailer(t *testing.T) {
	dataConn, device := newLoopbackPair(t)
	s := New(dataConn, noopResender{}, Config{
		PacketTimeout:  10 * time.Millisecond,
		FrameRetention: 30 * time.Millisecond,
	})

	done := make(chan *arvbuffer.Buffer, 1)
	s.SetCallback(func(event streamcore.Event, buf *arvbuffer.Buffer) {
		if event == streamcore.EventBufferDone {
			done <- buf
		}
	})
	s.StartThread()
	defer s.StopThread(true)

	s.PushBuffer(arvbuffer.New(16))

	leader := wire.EncodeGVSPHeader(wire.GVSPHeader{
		BlockID:      3,
		PacketFormat: wire.GVSPFormatLeader,
	}, wire.EncodeGVSPLeader(wire.GVSPLeader{PayloadType: wire.GVSPPayloadImage, Width: 4, Height: 4}))
	if _, err := device.Write(leader); err != nil {
		t.Fatalf("write leader: %v", err)
	}

	select {
	case filled := <-done:
		if filled.GetStatus() != arvbuffer.StatusTimeout {
			t.Fatalf("status = %v, want Timeout", filled.GetStatus())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the frame to expire")
	}
}

// TestStreamRequestsResendOnMissingPacket covers spec §4.4's resend
// policy: a gap between consecutive packet IDs under ResendAlways must
// trigger a RequestResend call for the missing range, here [1,1].
func TestStreamRequestsResendOnMissingPacket(t *testing.T) {
	dataConn, device := newLoopbackPair(t)

	calls := make(chan [2]uint32, 4)
	resender := resendFunc(func(ctx context.Context, blockID uint64, first, last uint32) error {
		calls <- [2]uint32{first, last}
		return nil
	})

	s := New(dataConn, resender, Config{
		PacketTimeout: 50 * time.Millisecond,
		ResendPolicy:  ResendAlways,
	})
	s.StartThread()
	defer s.StopThread(true)

	s.PushBuffer(arvbuffer.New(64))

	leader := wire.EncodeGVSPHeader(wire.GVSPHeader{
		BlockID:      9,
		PacketFormat: wire.GVSPFormatLeader,
	}, wire.EncodeGVSPLeader(wire.GVSPLeader{PayloadType: wire.GVSPPayloadImage, Width: 8, Height: 8}))
	device.Write(leader)

	// skip packet ID 1, send packet ID 2 directly.
	pkt := wire.EncodeGVSPHeader(wire.GVSPHeader{
		BlockID:      9,
		PacketFormat: wire.GVSPFormatPayload,
		PacketID:     2,
	}, make([]byte, 8))
	device.Write(pkt)

	select {
	case got := <-calls:
		if got != [2]uint32{1, 1} {
			t.Fatalf("RequestResend range = %v, want [1,1]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a resend request")
	}
}

type resendFunc func(ctx context.Context, blockID uint64, first, last uint32) error

func (f resendFunc) RequestResend(ctx context.Context, blockID uint64, first, last uint32) error {
	return f(ctx, blockID, first, last)
}
