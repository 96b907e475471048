package streamcore

import (
	"testing"
	"time"

	"github.com/aravis-go/aravis/internal/arvbuffer"
)

func TestPushPopEmptyBufferRoundTrip(t *testing.T) {
	b := NewBase(2)
	buf := arvbuffer.New(16)
	b.PushBuffer(buf)

	got, ok := b.PopEmptyBuffer()
	if !ok {
		t.Fatal("PopEmptyBuffer() ok = false, want true")
	}
	if got != buf {
		t.Fatal("PopEmptyBuffer() returned a different buffer than was pushed")
	}

	if _, ok := b.PopEmptyBuffer(); ok {
		t.Fatal("PopEmptyBuffer() on an empty input queue should return ok = false")
	}
}

func TestPushBufferDropsWhenInputQueueFull(t *testing.T) {
	b := NewBase(1)
	b.PushBuffer(arvbuffer.New(1))
	b.PushBuffer(arvbuffer.New(1)) // dropped, queue capacity 1

	nInput, _ := b.NBuffers()
	if nInput != 1 {
		t.Fatalf("NBuffers() input = %d, want 1 (over-enqueue should drop, not block)", nInput)
	}
}

func TestCompleteBufferUpdatesStatsAndFiresCallback(t *testing.T) {
	b := NewBase(4)
	var gotEvent Event
	var gotBuf *arvbuffer.Buffer
	b.SetCallback(func(event Event, buf *arvbuffer.Buffer) {
		gotEvent = event
		gotBuf = buf
	})

	buf := arvbuffer.New(8)
	buf.Status = arvbuffer.StatusSuccess
	b.CompleteBuffer(buf)

	if gotEvent != EventBufferDone || gotBuf != buf {
		t.Fatal("CompleteBuffer did not fire the callback with (EventBufferDone, buf)")
	}
	if s := b.Stats(); s.NCompletedBuffers != 1 || s.NFailures != 0 {
		t.Fatalf("Stats() = %+v, want NCompletedBuffers=1, NFailures=0", s)
	}

	popped := b.PopBuffer()
	if popped != buf {
		t.Fatal("PopBuffer() did not return the completed buffer")
	}
}

func TestCompleteBufferCountsFailureStatuses(t *testing.T) {
	b := NewBase(4)
	buf := arvbuffer.New(8)
	buf.Status = arvbuffer.StatusTimeout
	b.CompleteBuffer(buf)

	if s := b.Stats(); s.NFailures != 1 || s.NCompletedBuffers != 0 {
		t.Fatalf("Stats() = %+v, want NFailures=1, NCompletedBuffers=0", s)
	}
}

func TestCompleteBufferDropsOldestWhenOutputQueueSaturated(t *testing.T) {
	b := NewBase(1)
	first := arvbuffer.New(1)
	first.Status = arvbuffer.StatusSuccess
	second := arvbuffer.New(1)
	second.Status = arvbuffer.StatusSuccess

	b.CompleteBuffer(first)
	b.CompleteBuffer(second)

	got := b.PopBuffer()
	if got != second {
		t.Fatal("CompleteBuffer should drop the oldest queued buffer to make room for the newest")
	}
}

func TestTryPopBufferAndTimeoutPopBuffer(t *testing.T) {
	b := NewBase(2)
	if _, ok := b.TryPopBuffer(); ok {
		t.Fatal("TryPopBuffer() on an empty output queue should return ok = false")
	}
	if _, ok := b.TimeoutPopBuffer(10 * time.Millisecond); ok {
		t.Fatal("TimeoutPopBuffer() should time out on an empty output queue")
	}

	buf := arvbuffer.New(1)
	buf.Status = arvbuffer.StatusSuccess
	b.CompleteBuffer(buf)

	got, ok := b.TimeoutPopBuffer(time.Second)
	if !ok || got != buf {
		t.Fatal("TimeoutPopBuffer() should return the available buffer immediately")
	}
}

// TestStopThreadReturnsAfterReceiveLoopExits covers spec P9: stop_thread
// must return only once the receive goroutine has actually exited.
func TestStopThreadReturnsAfterReceiveLoopExits(t *testing.T) {
	b := NewBase(4)
	b.Start()
	stop := b.StopSignal()

	exited := make(chan struct{})
	b.Go(func() {
		<-stop
		close(exited)
	})

	b.StopThread(false)

	select {
	case <-exited:
	default:
		t.Fatal("StopThread returned before the receive goroutine signaled exit")
	}
}

func TestStopThreadDeletesQueuedBuffersWhenRequested(t *testing.T) {
	b := NewBase(4)
	b.Start()
	b.Go(func() { <-b.StopSignal() })

	buf := arvbuffer.New(8)
	b.PushBuffer(buf)

	b.StopThread(true)

	if buf.Data() != nil {
		t.Fatal("StopThread(true) should release buffers still queued at stop time")
	}
}

func TestStatUint64AndStatDoubleLookupByName(t *testing.T) {
	b := NewBase(1)
	b.AddStats(func(s *Statistics) {
		s.NReceivedPackets = 100
		s.NResentPackets = 5
	})

	v, ok := b.StatUint64("n_resent_packets")
	if !ok || v != 5 {
		t.Fatalf("StatUint64(n_resent_packets) = (%d,%v), want (5,true)", v, ok)
	}
	if _, ok := b.StatUint64("not_a_real_counter"); ok {
		t.Fatal("StatUint64 on an unknown name should return ok = false")
	}

	ratio, ok := b.StatDouble("resend_ratio")
	if !ok || ratio != 0.05 {
		t.Fatalf("StatDouble(resend_ratio) = (%v,%v), want (0.05,true)", ratio, ok)
	}
}

func TestRunningReflectsStartStopThread(t *testing.T) {
	b := NewBase(1)
	if b.Running() {
		t.Fatal("a fresh Base should not report Running")
	}
	b.Start()
	if !b.Running() {
		t.Fatal("Running() should be true after Start")
	}
	b.Go(func() { <-b.StopSignal() })
	b.StopThread(false)
	if b.Running() {
		t.Fatal("Running() should be false after StopThread")
	}
}
