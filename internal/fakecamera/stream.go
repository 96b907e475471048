// Stream wraps a Camera in a streamcore.Base-driven acquisition loop,
// grounded on arvfakestream.c's arv_fake_stream_thread: wait for the
// next frame period, pop an empty input buffer, fill it, push it to
// the output queue, and count underruns when the input queue was
// empty. There is no real transport underneath (no socket, no bulk
// endpoint), so unlike gvsp.Stream/uvsp.Stream this loop is the sole
// producer of buffer content.
package fakecamera

import (
	"context"

	"github.com/aravis-go/aravis/internal/arvbuffer"
	"github.com/aravis-go/aravis/internal/streamcore"
)

// Stream drives Camera.FillBuffer off Camera.WaitForNextFrame, pushing
// filled buffers onto the embedded streamcore.Base's output queue
// (spec §3 "Stream", §8 S4).
type Stream struct {
	*streamcore.Base

	camera *Camera
}

// NewStream constructs a Stream bound to camera, with its receive loop
// not yet started (spec §6 "Stream: start_thread/stop_thread").
func NewStream(camera *Camera, queueCapacity int) *Stream {
	return &Stream{
		Base:   streamcore.NewBase(queueCapacity),
		camera: camera,
	}
}

// StartThread starts the acquisition goroutine (spec §3 "background
// thread starts on construction (can be stopped and restarted)"),
// mirroring arv_fake_stream_start_thread.
func (s *Stream) StartThread() {
	s.Base.Start()
	stop := s.Base.StopSignal()
	ctx, cancel := context.WithCancel(context.Background())
	if s.Callback != nil {
		s.Callback(streamcore.EventInit, nil)
	}
	s.Base.Go(func() {
		defer cancel()
		go func() {
			<-stop
			cancel()
		}()
		for {
			select {
			case <-stop:
				if s.Callback != nil {
					s.Callback(streamcore.EventExit, nil)
				}
				return
			default:
			}

			s.camera.WaitForNextFrame(ctx)

			select {
			case <-stop:
				if s.Callback != nil {
					s.Callback(streamcore.EventExit, nil)
				}
				return
			default:
			}

			buf, ok := s.Base.PopEmptyBuffer()
			if !ok {
				s.Base.IncrUnderrun()
				continue
			}

			if s.Callback != nil {
				s.Callback(streamcore.EventStartBuffer, nil)
			}

			if err := s.camera.FillBuffer(ctx, buf); err != nil {
				buf.Status = arvbuffer.StatusSizeMismatch
			}

			s.Base.AddStats(func(st *streamcore.Statistics) {
				st.NTransferredBytes += uint64(buf.AllocatedSize())
			})

			s.Base.CompleteBuffer(buf)
		}
	})
}

// StopThread stops the acquisition loop (spec §6 "stop_thread"),
// mirroring arv_fake_stream_stop_thread.
func (s *Stream) StopThread(deleteBuffers bool) {
	s.Base.StopThread(deleteBuffers)
}
