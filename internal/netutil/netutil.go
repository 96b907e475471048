// Package netutil implements the L0 network utilities: network
// interface enumeration for GigE Vision discovery broadcasts and a
// portable wake-up primitive used to cancel a blocking receive-thread
// poll (spec §5 "Suspension points", Open Question iii).
//
// Grounded on the teacher's cvpipe.Pipeline goroutine lifecycle
// (context.CancelFunc + sync.WaitGroup + a dedicated net.PacketConn per
// background loop); the wake-up descriptor itself is new since the
// teacher cancels via context rather than a select-able fd. The split
// between an eventfd on Linux and a buffered channel elsewhere follows
// the Linux-vs-portable boundary go4vl's v4l2 package draws for its own
// ioctl/syscall use.
package netutil

import (
	"fmt"
	"net"
)

// BroadcastInterfaces returns every IPv4 interface suitable for sending
// a GigE Vision discovery broadcast (up, supports broadcast, has an
// IPv4 address) — spec §1 "discovery ... on enumerated network
// interfaces".
func BroadcastInterfaces() ([]*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}
	var out []*net.Interface
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.To4() != nil {
				out = append(out, iface)
				break
			}
		}
	}
	return out, nil
}

// BroadcastAddr computes the IPv4 broadcast address of an interface
// carrying addr/mask, used to target a Discovery datagram at every
// device on that segment.
func BroadcastAddr(ipNet *net.IPNet) net.IP {
	ip4 := ipNet.IP.To4()
	if ip4 == nil {
		return nil
	}
	bcast := make(net.IP, 4)
	for i := range ip4 {
		bcast[i] = ip4[i] | ^ipNet.Mask[i]
	}
	return bcast
}

// InterfaceIPv4 returns the first IPv4 address bound to iface.
func InterfaceIPv4(iface *net.Interface) (*net.IPNet, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("addrs of %s: %w", iface.Name, err)
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.To4() != nil {
			return ipNet, nil
		}
	}
	return nil, fmt.Errorf("no ipv4 address on %s", iface.Name)
}
