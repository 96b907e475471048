// Package uvsp implements the USB3 Vision stream receive pipeline
// (spec §4.4, L8b): the same leader/payload/trailer reassembly as
// gvsp, but over an ordered, loss-free bulk-transfer source instead of
// UDP datagrams, so there is no packet numbering, gap detection, or
// resend discipline — a transfer either arrives in order or the
// endpoint has stalled.
//
// Grounded on internal/gvsp's receive loop (same streamcore.Base
// lifecycle, same teacher cvpipe.Pipeline goroutine idiom) with the
// datagram-specific bookkeeping stripped out.
package uvsp

import (
	"context"
	"log"
	"time"

	"github.com/aravis-go/aravis/internal/arvbuffer"
	"github.com/aravis-go/aravis/internal/streamcore"
	"github.com/aravis-go/aravis/internal/wire"
)

// BulkSource is the data-pipe side of a USB3 Vision device (spec §6
// "Stream via bulk endpoint"); distinct from uvcp.BulkTransport
// because the stream pipe is read-only from this package's view — the
// control pipe (uvcp.Client) owns the write side.
type BulkSource interface {
	ReadBulk(ctx context.Context, buf []byte) (int, error)
}

// timeoutError is satisfied by any BulkSource error that means "no
// transfer arrived in time", mirroring net.Error's Timeout() so this
// package can tell a stalled endpoint from a genuine I/O failure.
type timeoutError interface {
	Timeout() bool
}

// Config holds the per-stream tunables of spec §4.4, minus the
// datagram-only fields (no resend policy: bulk transfers don't drop).
type Config struct {
	ReadTimeout    time.Duration
	FrameRetention time.Duration
	QueueCapacity  int
	ScratchSize    int
	Logger         *log.Logger
}

func (c *Config) setDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.FrameRetention <= 0 {
		c.FrameRetention = 500 * time.Millisecond
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 64
	}
	if c.ScratchSize <= 0 {
		c.ScratchSize = 1 << 20
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

type frameState struct {
	buffer        *arvbuffer.Buffer
	blockID       uint64
	receivedBytes int
	lastActivity  time.Time
}

// Stream is the concrete UVSP implementation of spec §3's abstract
// Stream (L8b).
type Stream struct {
	*streamcore.Base

	src    BulkSource
	cfg    Config
	logger *log.Logger

	current *frameState
}

func New(src BulkSource, cfg Config) *Stream {
	cfg.setDefaults()
	return &Stream{
		Base:   streamcore.NewBase(cfg.QueueCapacity),
		src:    src,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// StartThread starts the receive goroutine (spec §3 "background thread
// starts on construction (can be stopped and restarted)").
func (s *Stream) StartThread() {
	s.Base.Start()
	stop := s.Base.StopSignal()
	ctx, cancel := context.WithCancel(context.Background())
	s.Base.Go(func() {
		defer cancel()
		s.receiveLoop(ctx, stop)
	})
	if s.Base.Callback != nil {
		s.Base.Callback(streamcore.EventInit, nil)
	}
}

func (s *Stream) receiveLoop(ctx context.Context, stop <-chan struct{}) {
	defer func() {
		if s.Base.Callback != nil {
			s.Base.Callback(streamcore.EventExit, nil)
		}
	}()
	buf := make([]byte, s.cfg.ScratchSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		rctx, rcancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
		n, err := s.src.ReadBulk(rctx, buf)
		rcancel()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if te, ok := err.(timeoutError); ok && te.Timeout() {
				s.checkFrameRetention()
				continue
			}
			return // unrecoverable transport error: exit after draining (spec §7)
		}
		s.processChunk(buf[:n])
	}
}

// checkFrameRetention implements spec §4.4 step 3 for the bulk path:
// a frame that never receives its trailer within FrameRetention is
// completed with a failure status instead of held forever.
func (s *Stream) checkFrameRetention() {
	if s.current == nil {
		return
	}
	if time.Since(s.current.lastActivity) < s.cfg.FrameRetention {
		return
	}
	s.abandon(arvbuffer.StatusTimeout)
}

func (s *Stream) processChunk(data []byte) {
	if leader, err := wire.DecodeUVSPLeader(data); err == nil {
		s.startFrame(leader)
		return
	}
	if trailer, err := wire.DecodeUVSPTrailer(data); err == nil {
		s.finishFrame(trailer)
		return
	}
	s.appendPayload(data)
}

// startFrame implements spec §4.4 steps 5-6 for the bulk path: a
// leader transfer always begins a new frame. A prior frame still
// open (no trailer yet) is abandoned — USB3 Vision transfers are
// strictly ordered, so a new leader can only mean the old frame's
// trailer was lost or the endpoint resynchronized.
func (s *Stream) startFrame(leader wire.UVSPLeader) {
	if s.current != nil {
		s.abandon(arvbuffer.StatusMissingPackets)
	}
	buf, ok := s.Base.PopEmptyBuffer()
	if !ok {
		s.Base.IncrUnderrun()
		return
	}
	buf.PayloadType = uvspPayloadType(leader.PayloadType)
	buf.DeviceTimestamp = leader.Timestamp
	buf.SystemTimestamp = uint64(time.Now().UnixNano())
	buf.FrameID = leader.BlockID
	buf.Parts = []arvbuffer.Part{{
		PixelFormat: leader.PixelFormat,
		Width:       leader.Width,
		Height:      leader.Height,
		XOffset:     leader.XOffset,
		YOffset:     leader.YOffset,
	}}
	_ = buf.SetReceivedSize(0)
	s.current = &frameState{buffer: buf, blockID: leader.BlockID, lastActivity: time.Now()}
	if s.Base.Callback != nil {
		s.Base.Callback(streamcore.EventStartBuffer, buf)
	}
}

func (s *Stream) appendPayload(data []byte) {
	if s.current == nil {
		s.Base.AddStats(func(st *streamcore.Statistics) { st.NIgnoredBytes += uint64(len(data)) })
		return
	}
	f := s.current
	dst := f.buffer.Data()
	remaining := len(dst) - f.receivedBytes
	n := len(data)
	truncated := false
	if n > remaining {
		n = remaining
		truncated = true
	}
	if n > 0 {
		copy(dst[f.receivedBytes:f.receivedBytes+n], data[:n])
		f.receivedBytes += n
		_ = f.buffer.SetReceivedSize(f.receivedBytes)
	}
	f.lastActivity = time.Now()
	s.Base.AddStats(func(st *streamcore.Statistics) {
		st.NReceivedPackets++
		st.NTransferredBytes += uint64(n)
		if truncated {
			st.NIgnoredBytes += uint64(len(data) - n)
		}
	})
}

// finishFrame implements spec's Open Question (ii) size reconciliation
// for the bulk path ("received_size = min(trailer.payload_size, sum_
// of_payload_bytes); SizeMismatch when they differ").
func (s *Stream) finishFrame(trailer wire.UVSPTrailer) {
	f := s.current
	if f == nil {
		return // trailer with no frame in progress: nothing to close
	}
	s.current = nil

	declared := int(trailer.PayloadSize)
	size := f.receivedBytes
	status := arvbuffer.StatusSuccess
	if declared < size {
		size = declared
	}
	if declared != f.receivedBytes {
		status = arvbuffer.StatusSizeMismatch
	}
	_ = f.buffer.SetReceivedSize(size)
	if len(f.buffer.Parts) == 1 {
		f.buffer.Parts[0].Size = size
	}
	f.buffer.Status = status
	s.Base.CompleteBuffer(f.buffer)
}

func (s *Stream) abandon(status arvbuffer.Status) {
	f := s.current
	s.current = nil
	f.buffer.Status = status
	s.Base.CompleteBuffer(f.buffer)
}

func uvspPayloadType(t uint16) arvbuffer.PayloadType {
	switch t {
	case wire.GVSPPayloadImage:
		return arvbuffer.PayloadImage
	case wire.GVSPPayloadChunkData:
		return arvbuffer.PayloadChunk
	case wire.GVSPPayloadExtendedChunkData:
		return arvbuffer.PayloadExtendedChunkData
	case wire.GVSPPayloadMultipart:
		return arvbuffer.PayloadMultipart
	case wire.GVSPPayloadGenDCContainer:
		return arvbuffer.PayloadGenDCContainer
	case wire.GVSPPayloadGenDCComponentData:
		return arvbuffer.PayloadGenDCComponentData
	default:
		return arvbuffer.PayloadNoData
	}
}
