package netutil

// WakeUp is the portable cancellation primitive a receive-thread poll
// selects on alongside its data socket (spec §5 "Stream stop signals
// the receive thread via a portable wake-up primitive"). On Linux,
// wakeup_linux.go backs NewWakeUp with an eventfd; elsewhere,
// wakeup_other.go backs it with a buffered channel and no pollable fd.
type WakeUp interface {
	// FD returns a file descriptor suitable for poll/select, or -1 if
	// this implementation cannot expose one (portable fallback instead
	// relies on Wait).
	FD() int
	// Signal wakes any current or future Wait call. Idempotent.
	Signal()
	// Wait blocks until Signal is called or the stop channel fires.
	Wait(stop <-chan struct{})
	// Close releases the underlying resource.
	Close() error
}
