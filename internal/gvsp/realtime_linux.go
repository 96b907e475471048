//go:build linux

package gvsp

import (
	"log"
	"runtime"

	"golang.org/x/sys/unix"
)

// realtimeNiceLevel mirrors arv_make_thread_high_priority's nice_level
// argument; this port has no rtkit/D-Bus session to negotiate a higher
// value with, so it asks the kernel directly and accepts whatever
// CAP_SYS_NICE allows.
const realtimeNiceLevel = -11

// setRealtimePriority locks the calling goroutine to its OS thread
// (Setpriority(PRIO_PROCESS, 0, ...) would otherwise raise whichever
// thread the Go runtime schedules it onto next) and lowers its nice
// level. Failure is logged and otherwise ignored, matching
// arv_make_thread_realtime's "returns FALSE, caller keeps running at
// default priority" contract.
func setRealtimePriority(logger *log.Logger) {
	runtime.LockOSThread()
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, realtimeNiceLevel); err != nil {
		if logger != nil {
			logger.Printf("gvsp: failed to raise receive thread priority: %v", err)
		}
	}
}
