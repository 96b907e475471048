// Stream unifies gvsp.Stream, uvsp.Stream, and fakecamera.Stream behind
// spec §6's Stream operations. All three concrete types embed
// *streamcore.Base and share its queue/lifecycle/statistics methods;
// Stream is a thin facade over whichever one Device.CreateStream
// constructed, the same role arv.System plays over Interface.
package arv

import (
	"time"

	"github.com/aravis-go/aravis/internal/arvbuffer"
	"github.com/aravis-go/aravis/internal/streamcore"
)

// StreamCallback is the user callback passed to Device.CreateStream
// (spec §6 "a user callback (user_data, event, buffer)").
type StreamCallback func(event streamcore.Event, buf *arvbuffer.Buffer, userData any)

// engine is satisfied by *gvsp.Stream, *uvsp.Stream, and
// *fakecamera.Stream by virtue of their embedded *streamcore.Base plus
// their own StartThread/StopThread.
type engine interface {
	PushBuffer(buf *arvbuffer.Buffer)
	PopBuffer() *arvbuffer.Buffer
	TryPopBuffer() (*arvbuffer.Buffer, bool)
	TimeoutPopBuffer(d time.Duration) (*arvbuffer.Buffer, bool)
	NBuffers() (nInput, nOutput int)
	Stats() streamcore.Statistics
	StatUint64(name string) (uint64, bool)
	StatDouble(name string) (float64, bool)
	SetCallback(fn func(event streamcore.Event, buf *arvbuffer.Buffer))
	SetEmitSignals(on bool)
	StartThread()
	StopThread(deleteBuffers bool)
}

// Stream is the public handle returned by Device.CreateStream (spec §6
// "Stream").
type Stream struct {
	engine engine
}

// PushBuffer enqueues an empty buffer to be filled (spec §6
// "push_buffer").
func (s *Stream) PushBuffer(buf *arvbuffer.Buffer) { s.engine.PushBuffer(buf) }

// PopBuffer blocks until a filled buffer is available (spec §6
// "pop_buffer").
func (s *Stream) PopBuffer() *arvbuffer.Buffer { return s.engine.PopBuffer() }

// TryPopBuffer returns immediately (spec §6 "try_pop_buffer").
func (s *Stream) TryPopBuffer() (*arvbuffer.Buffer, bool) { return s.engine.TryPopBuffer() }

// TimeoutPopBuffer waits up to d (spec §6 "timeout_pop_buffer").
func (s *Stream) TimeoutPopBuffer(d time.Duration) (*arvbuffer.Buffer, bool) {
	return s.engine.TimeoutPopBuffer(d)
}

// GetNBuffers reports queued buffer counts (spec §6 "get_n_buffers").
func (s *Stream) GetNBuffers() (nInput, nOutput int) { return s.engine.NBuffers() }

// GetStatistics returns a counters snapshot (spec §6 "get_statistics").
func (s *Stream) GetStatistics() streamcore.Statistics { return s.engine.Stats() }

// GetInfoUint64ByName looks up one named counter (spec §6
// "get_info_uint64_by_name").
func (s *Stream) GetInfoUint64ByName(name string) (uint64, bool) { return s.engine.StatUint64(name) }

// GetInfoDoubleByName looks up one derived ratio counter (spec §6
// "get_info_double_by_name").
func (s *Stream) GetInfoDoubleByName(name string) (float64, bool) {
	return s.engine.StatDouble(name)
}

// SetEmitSignals sets the engine's EmitSignals flag (spec §6
// "set_emit_signals"). No notification depends on the flag; buffer
// arrival is reported through the stream callback either way.
func (s *Stream) SetEmitSignals(on bool) { s.engine.SetEmitSignals(on) }

// StartThread (re)starts the receive/acquisition thread (spec §6
// "start_thread").
func (s *Stream) StartThread() { s.engine.StartThread() }

// StopThread stops the receive/acquisition thread (spec §6
// "stop_thread(delete_buffers)").
func (s *Stream) StopThread(deleteBuffers bool) { s.engine.StopThread(deleteBuffers) }
