//go:build linux

package netutil

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// eventfdWakeUp is the Linux wake-up primitive (spec §5 "an eventfd on
// Linux, a pipe elsewhere"), grounded on go4vl's direct use of
// golang.org/x/sys/unix for kernel facilities a pure net.Conn can't
// reach (there: V4L2 ioctls; here: eventfd(2) and AF_PACKET sockets).
type eventfdWakeUp struct {
	mu     sync.Mutex
	fd     int
	closed bool
}

func NewWakeUp() (WakeUp, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &eventfdWakeUp{fd: fd}, nil
}

func (w *eventfdWakeUp) FD() int { return w.fd }

func (w *eventfdWakeUp) Signal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	buf := make([]byte, 8)
	buf[7] = 1
	_, _ = unix.Write(w.fd, buf)
}

// Wait polls the eventfd for readability alongside the stop channel. A
// small poll loop keeps this implementation simple. gvsp.Stream does
// not use a WakeUp: it unblocks its receive loop by expiring the data
// socket's read deadline.
func (w *eventfdWakeUp) Wait(stop <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var pfd [1]unix.PollFd
		pfd[0].Fd = int32(w.fd)
		pfd[0].Events = unix.POLLIN
		for {
			n, err := unix.Poll(pfd[:], 1000)
			if err != nil && err != unix.EINTR {
				return
			}
			if n > 0 && pfd[0].Revents&unix.POLLIN != 0 {
				buf := make([]byte, 8)
				_, _ = unix.Read(w.fd, buf)
				return
			}
			select {
			case <-stop:
				return
			default:
			}
		}
	}()
	select {
	case <-done:
	case <-stop:
	}
}

func (w *eventfdWakeUp) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return unix.Close(w.fd)
}

// OpenPacketSocket opens an AF_PACKET/SOCK_DGRAM socket bound to iface
// for the GVSP kernel-accelerated receive path (spec §4.4
// "Packet-socket option"). Presence of this path is transparent to
// callers except through performance counters (Open Question iii).
func OpenPacketSocket(ifaceIndex int) (int, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM, int(htons(unix.ETH_P_IP)))
	if err != nil {
		return -1, fmt.Errorf("af_packet socket: %w", err)
	}
	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IP),
		Ifindex:  ifaceIndex,
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("af_packet bind: %w", err)
	}
	return fd, nil
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
