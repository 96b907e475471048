//go:build !linux

package netutil

// NewWakeUp on non-Linux platforms falls back to a buffered-channel
// signal with no pollable fd (Open Question iii: "fall back to
// ordinary [mechanisms] silently elsewhere").
func NewWakeUp() (WakeUp, error) {
	return &chanWakeUp{ch: make(chan struct{}, 1)}, nil
}

type chanWakeUp struct {
	ch chan struct{}
}

func (w *chanWakeUp) FD() int { return -1 }

func (w *chanWakeUp) Signal() {
	select {
	case w.ch <- struct{}{}:
	default:
		// already signalled and not yet drained
	}
}

func (w *chanWakeUp) Wait(stop <-chan struct{}) {
	select {
	case <-w.ch:
	case <-stop:
	}
}

func (w *chanWakeUp) Close() error { return nil }
