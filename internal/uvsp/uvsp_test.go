package uvsp

import (
	"context"
	"testing"
	"time"

	"github.com/aravis-go/aravis/internal/arvbuffer"
	"github.com/aravis-go/aravis/internal/streamcore"
	"github.com/aravis-go/aravis/internal/wire"
)

// chunkSource feeds pre-framed transfers from a channel, standing in
// for a real USB3 Vision bulk endpoint. A read on an empty channel
// blocks until ctx is done, at which point it reports Timeout() (no
// transfer arrived in time), mirroring a real endpoint's stall.
type chunkSource struct {
	chunks chan []byte
}

func newChunkSource() *chunkSource { return &chunkSource{chunks: make(chan []byte, 8)} }

func (s *chunkSource) push(data []byte) { s.chunks <- data }

func (s *chunkSource) ReadBulk(ctx context.Context, buf []byte) (int, error) {
	select {
	case data := <-s.chunks:
		return copy(buf, data), nil
	case <-ctx.Done():
		return 0, deadlineExceeded{}
	}
}

type deadlineExceeded struct{}

func (deadlineExceeded) Error() string { return "deadline exceeded" }
func (deadlineExceeded) Timeout() bool { return true }

// TestStreamReassemblesSingleFrame covers spec P3 for the bulk path:
// leader, one payload chunk, trailer with a matching size yields a
// Success buffer.
func TestStreamReassemblesSingleFrame(t *testing.T) {
	src := newChunkSource()
	s := New(src, Config{ReadTimeout: 20 * time.Millisecond})

	done := make(chan *arvbuffer.Buffer, 1)
	s.SetCallback(func(event streamcore.Event, buf *arvbuffer.Buffer) {
		if event == streamcore.EventBufferDone {
			done <- buf
		}
	})
	s.StartThread()
	defer s.StopThread(true)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	buf := arvbuffer.New(len(payload))
	s.PushBuffer(buf)

	src.push(wire.EncodeUVSPLeader(wire.UVSPLeader{
		BlockID:     11,
		PayloadType: wire.GVSPPayloadImage,
		PixelFormat: 0x01080001,
		Width:       2,
		Height:      4,
	}))
	src.push(payload)
	src.push(wire.EncodeUVSPTrailer(wire.UVSPTrailer{BlockID: 11, PayloadSize: uint64(len(payload))}))

	select {
	case filled := <-done:
		if filled.GetStatus() != arvbuffer.StatusSuccess {
			t.Fatalf("status = %v, want Success", filled.GetStatus())
		}
		if filled.FrameID != 11 {
			t.Fatalf("FrameID = %d, want 11", filled.FrameID)
		}
		data, err := filled.ImageData()
		if err != nil || len(data) != len(payload) {
			t.Fatalf("ImageData() = (%d bytes,%v), want (%d,nil)", len(data), err, len(payload))
		}
		for i, b := range data {
			if b != payload[i] {
				t.Fatalf("ImageData()[%d] = %d, want %d", i, b, payload[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reassembled frame")
	}
}

// TestStreamReportsSizeMismatch covers Open Question (ii): a trailer
// declaring a different payload size than what was actually received
// completes the frame with StatusSizeMismatch.
func TestStreamReportsSizeMismatch(t *testing.T) {
	src := newChunkSource()
	s := New(src, Config{ReadTimeout: 20 * time.Millisecond})

	done := make(chan *arvbuffer.Buffer, 1)
	s.SetCallback(func(event streamcore.Event, buf *arvbuffer.Buffer) {
		if event == streamcore.EventBufferDone {
			done <- buf
		}
	})
	s.StartThread()
	defer s.StopThread(true)

	payload := []byte{9, 9, 9, 9}
	s.PushBuffer(arvbuffer.New(len(payload)))

	src.push(wire.EncodeUVSPLeader(wire.UVSPLeader{BlockID: 4, PayloadType: wire.GVSPPayloadImage, Width: 2, Height: 2}))
	src.push(payload)
	src.push(wire.EncodeUVSPTrailer(wire.UVSPTrailer{BlockID: 4, PayloadSize: 999}))

	select {
	case filled := <-done:
		if filled.GetStatus() != arvbuffer.StatusSizeMismatch {
			t.Fatalf("status = %v, want SizeMismatch", filled.GetStatus())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the mismatched frame")
	}
}

// TestStreamAbandonsOpenFrameOnNewLeader covers startFrame's resync
// rule: a leader arriving while a frame is still open abandons the old
// one with StatusMissingPackets instead of silently merging the two.
func TestStreamAbandonsOpenFrameOnNewLeader(t *testing.T) {
	src := newChunkSource()
	s := New(src, Config{ReadTimeout: 20 * time.Millisecond})

	done := make(chan *arvbuffer.Buffer, 2)
	s.SetCallback(func(event streamcore.Event, buf *arvbuffer.Buffer) {
		if event == streamcore.EventBufferDone {
			done <- buf
		}
	})
	s.StartThread()
	defer s.StopThread(true)

	s.PushBuffer(arvbuffer.New(8))
	s.PushBuffer(arvbuffer.New(8))

	src.push(wire.EncodeUVSPLeader(wire.UVSPLeader{BlockID: 1, PayloadType: wire.GVSPPayloadImage, Width: 2, Height: 2}))
	src.push(wire.EncodeUVSPLeader(wire.UVSPLeader{BlockID: 2, PayloadType: wire.GVSPPayloadImage, Width: 2, Height: 2}))
	src.push(wire.EncodeUVSPTrailer(wire.UVSPTrailer{BlockID: 2, PayloadSize: 0}))

	select {
	case abandoned := <-done:
		if abandoned.GetStatus() != arvbuffer.StatusMissingPackets {
			t.Fatalf("abandoned frame status = %v, want MissingPackets", abandoned.GetStatus())
		}
		if abandoned.FrameID != 1 {
			t.Fatalf("abandoned FrameID = %d, want 1", abandoned.FrameID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the abandoned frame")
	}

	select {
	case completed := <-done:
		if completed.FrameID != 2 {
			t.Fatalf("completed FrameID = %d, want 2", completed.FrameID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the resynchronized frame")
	}
}
