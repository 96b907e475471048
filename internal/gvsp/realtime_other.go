//go:build !linux

package gvsp

import "log"

// setRealtimePriority is a no-op outside Linux (original_source's
// rtkit/D-Bus path is itself Linux-only).
func setRealtimePriority(logger *log.Logger) {
	if logger != nil {
		logger.Printf("gvsp: realtime priority not supported on this platform")
	}
}
