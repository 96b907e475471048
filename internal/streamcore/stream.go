// Package streamcore implements the abstract Stream of spec §3/§6 (L8):
// bounded input/output buffer queues, a background receive-thread
// lifecycle, and the statistics counters shared by every concrete
// transport stream (gvsp.Stream, uvsp.Stream — L8a/L8b).
//
// Grounded on the teacher's cvpipe.Pipeline lifecycle: a
// context.CancelFunc plus sync.WaitGroup wrapping one background
// goroutine, torn down by a single Stop-shaped method, with buffered
// Go channels standing in for the teacher's net.PacketConn-fed
// channels (cvpipe.Pipeline.In/Subscribe use the same buffered-channel,
// drop-when-full discipline this package uses for its output queue).
package streamcore

import (
	"sync"
	"time"

	"github.com/aravis-go/aravis/internal/arvbuffer"
)

// Event is the Stream user callback's event kind (spec §3 "a user
// callback (user_data, event, buffer) where event is {Init, Exit,
// StartBuffer, BufferDone}").
type Event int

const (
	EventInit Event = iota
	EventExit
	EventStartBuffer
	EventBufferDone
)

// Statistics mirrors spec §3's Stream statistics counters.
type Statistics struct {
	NCompletedBuffers uint64
	NFailures         uint64
	NUnderruns        uint64
	NTransferredBytes uint64
	NIgnoredBytes     uint64
	NResentPackets    uint64
	NMissingPackets   uint64
	NReceivedPackets  uint64
	NSinglePacket     uint64
	NBlockPacket      uint64
}

// Base is embedded by gvsp.Stream/uvsp.Stream and provides the queue,
// callback, and lifecycle machinery common to both (spec §3 "Stream").
type Base struct {
	mu   sync.Mutex
	stat Statistics

	input  chan *arvbuffer.Buffer
	output chan *arvbuffer.Buffer

	Callback    func(event Event, buf *arvbuffer.Buffer)
	EmitSignals bool

	stopCh  chan struct{}
	running bool
	wg      sync.WaitGroup
}

// NewBase creates a Base with the given queue capacities (spec §5
// "Both queues are bounded by the caller's enqueue count" — the
// channel capacity here is just headroom, not an artificial cap).
func NewBase(queueCapacity int) *Base {
	return &Base{
		input:  make(chan *arvbuffer.Buffer, queueCapacity),
		output: make(chan *arvbuffer.Buffer, queueCapacity),
		stopCh: make(chan struct{}),
	}
}

// PushBuffer enqueues an empty buffer for the receive thread to fill
// (spec §6 "Stream: push_buffer").
func (b *Base) PushBuffer(buf *arvbuffer.Buffer) {
	select {
	case b.input <- buf:
	default:
		// caller over-enqueued beyond its own budget; drop rather than
		// block, matching the "bounded by the caller's enqueue count"
		// invariant (a caller that wants backpressure sizes its own
		// enqueue loop, not this queue).
	}
}

// PopEmptyBuffer is used by a concrete Stream's receive loop (spec
// §4.4 step 5, "allocate one by popping an empty buffer from the input
// queue").
func (b *Base) PopEmptyBuffer() (*arvbuffer.Buffer, bool) {
	select {
	case buf := <-b.input:
		return buf, true
	default:
		return nil, false
	}
}

// CompleteBuffer moves buf to the output queue and fires the callback
// (spec §4.4 "Frame completion").
func (b *Base) CompleteBuffer(buf *arvbuffer.Buffer) {
	b.mu.Lock()
	switch buf.Status {
	case arvbuffer.StatusSuccess:
		b.stat.NCompletedBuffers++
	default:
		b.stat.NFailures++
	}
	b.mu.Unlock()
	if b.Callback != nil {
		b.Callback(EventBufferDone, buf)
	}
	select {
	case b.output <- buf:
	default:
		// output queue saturated: drop the oldest to make room rather
		// than block the receive thread (spec §5 "no operation blocks
		// without a timeout or cancellation path").
		select {
		case <-b.output:
		default:
		}
		b.output <- buf
	}
}

// IncrUnderrun records one receive attempt that found the input queue
// empty (spec §3 statistics "n_underruns").
func (b *Base) IncrUnderrun() {
	b.mu.Lock()
	b.stat.NUnderruns++
	b.mu.Unlock()
}

// AddStats lets a concrete Stream update counters under Base's lock
// without exposing the Statistics field directly.
func (b *Base) AddStats(f func(*Statistics)) {
	b.mu.Lock()
	f(&b.stat)
	b.mu.Unlock()
}

// PopBuffer blocks until a filled buffer is available (spec §6
// "Stream: pop_buffer").
func (b *Base) PopBuffer() *arvbuffer.Buffer { return <-b.output }

// TryPopBuffer returns immediately (spec §6 "try_pop_buffer").
func (b *Base) TryPopBuffer() (*arvbuffer.Buffer, bool) {
	select {
	case buf := <-b.output:
		return buf, true
	default:
		return nil, false
	}
}

// TimeoutPopBuffer waits up to d (spec §6 "timeout_pop_buffer").
func (b *Base) TimeoutPopBuffer(d time.Duration) (*arvbuffer.Buffer, bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case buf := <-b.output:
		return buf, true
	case <-t.C:
		return nil, false
	}
}

// SetCallback installs the user callback (spec §3 "a user callback
// (user_data, event, buffer)"). Must be called before StartThread.
func (b *Base) SetCallback(fn func(event Event, buf *arvbuffer.Buffer)) { b.Callback = fn }

// SetEmitSignals sets the EmitSignals flag (spec §6
// "set_emit_signals"). Nothing in this package reads the flag;
// completed buffers are reported through Callback whatever its value.
func (b *Base) SetEmitSignals(on bool) { b.EmitSignals = on }

// NBuffers reports (n_input, n_output) queued buffers (spec §6
// "get_n_buffers").
func (b *Base) NBuffers() (nInput, nOutput int) {
	return len(b.input), len(b.output)
}

// Stats returns a snapshot (spec §6 "get_statistics").
func (b *Base) Stats() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stat
}

// StatUint64 looks up one named counter (spec §6 "get_info_uint64_by_name").
func (b *Base) StatUint64(name string) (uint64, bool) {
	s := b.Stats()
	switch name {
	case "n_completed_buffers":
		return s.NCompletedBuffers, true
	case "n_failures":
		return s.NFailures, true
	case "n_underruns":
		return s.NUnderruns, true
	case "n_transferred_bytes":
		return s.NTransferredBytes, true
	case "n_ignored_bytes":
		return s.NIgnoredBytes, true
	case "n_resent_packets":
		return s.NResentPackets, true
	case "n_missing_packets":
		return s.NMissingPackets, true
	case "n_received_packets":
		return s.NReceivedPackets, true
	case "n_single_packet":
		return s.NSinglePacket, true
	case "n_block_packet":
		return s.NBlockPacket, true
	default:
		return 0, false
	}
}

// StatDouble reports a derived ratio counter (spec §6
// "get_info_double_by_name"); every such name is computed from the
// same Statistics snapshot StatUint64 reads from.
func (b *Base) StatDouble(name string) (float64, bool) {
	s := b.Stats()
	switch name {
	case "resend_ratio":
		if s.NReceivedPackets == 0 {
			return 0, true
		}
		return float64(s.NResentPackets) / float64(s.NReceivedPackets), true
	case "failure_ratio":
		total := s.NCompletedBuffers + s.NFailures
		if total == 0 {
			return 0, true
		}
		return float64(s.NFailures) / float64(total), true
	default:
		return 0, false
	}
}

// StopSignal is the channel a receive loop selects on to know when to
// exit (spec §5 "Stream stop signals the receive thread").
func (b *Base) StopSignal() <-chan struct{} { return b.stopCh }

// Start (re)arms the stop channel so the receive thread can be
// restarted after a StopThread (spec §3 "can be stopped and
// restarted"). Callers must fetch StopSignal() again after Start.
func (b *Base) Start() {
	b.mu.Lock()
	b.stopCh = make(chan struct{})
	b.running = true
	b.mu.Unlock()
}

func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// StopThread signals the receive thread to stop and waits for it to
// exit (spec P9: "stop_thread returns within one poll period"). When
// deleteBuffers is true, buffers still queued are released instead of
// being handed back to the caller (spec §3 "stop_thread(delete_buffers)").
func (b *Base) StopThread(deleteBuffers bool) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	b.wg.Wait()

	if deleteBuffers {
		for {
			select {
			case buf := <-b.input:
				buf.Release()
			case buf := <-b.output:
				buf.Release()
			default:
				return
			}
		}
	}
}

// Go runs fn as the receive-thread goroutine, tracked by the internal
// WaitGroup so StopThread can join it.
func (b *Base) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}
