package gvcp

import (
	"context"
	"log"
	"net"
	"testing"
	"time"

	"github.com/aravis-go/aravis/internal/wire"
)

// newTestClient binds a Client directly to a loopback UDP pair,
// bypassing Dial's fixed port 3956 so tests don't need root or a
// system-wide free port.
func newTestClient(t *testing.T, server *net.UDPConn) *Client {
	t.Helper()
	conn, err := net.Dial("udp", server.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial loopback gvcp server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &Client{
		conn:           conn,
		nextID:         1,
		retries:        defaultRetries,
		timeout:        200 * time.Millisecond,
		maxCmdTransfer: defaultMaxCmdTransfer,
		logger:         log.Default(),
	}
}

func newUDPServer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestReadRegisterRoundTrip covers the ordinary ReadRegister transact
// path against a minimal in-test GVCP responder.
func TestReadRegisterRoundTrip(t *testing.T) {
	server := newUDPServer(t)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := server.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := wire.DecodeGVCP(buf[:n])
			if err != nil {
				continue
			}
			if req.Command != wire.GVCPReadRegisterCmd {
				continue
			}
			ackPayload := wire.EncodeReadRegisterAck(wire.ReadRegisterAckPayload{Value: 0xdeadbeef})
			ack := wire.EncodeGVCP(wire.GVCPPacket{
				GVCPHeader: wire.GVCPHeader{Command: wire.GVCPReadRegisterAck, ID: req.ID},
				Payload:    ackPayload,
			})
			_, _ = server.WriteToUDP(ack, addr)
		}
	}()

	c := newTestClient(t, server)
	v, err := c.ReadRegister(context.Background(), 0x100)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if v != 0xdeadbeef {
		t.Fatalf("ReadRegister() = 0x%x, want 0xdeadbeef", v)
	}
}

// TestTransactIgnoresMismatchedID covers spec P2: a reply whose id
// does not match the outstanding request must never be returned to
// the caller, even though the correct reply follows it.
func TestTransactIgnoresMismatchedID(t *testing.T) {
	server := newUDPServer(t)
	go func() {
		buf := make([]byte, 4096)
		n, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := wire.DecodeGVCP(buf[:n])
		if err != nil {
			return
		}
		stale := wire.EncodeGVCP(wire.GVCPPacket{
			GVCPHeader: wire.GVCPHeader{Command: wire.GVCPReadRegisterAck, ID: req.ID + 1},
			Payload:    wire.EncodeReadRegisterAck(wire.ReadRegisterAckPayload{Value: 0x11111111}),
		})
		_, _ = server.WriteToUDP(stale, addr)

		correct := wire.EncodeGVCP(wire.GVCPPacket{
			GVCPHeader: wire.GVCPHeader{Command: wire.GVCPReadRegisterAck, ID: req.ID},
			Payload:    wire.EncodeReadRegisterAck(wire.ReadRegisterAckPayload{Value: 0x22222222}),
		})
		_, _ = server.WriteToUDP(correct, addr)
	}()

	c := newTestClient(t, server)
	v, err := c.ReadRegister(context.Background(), 0x100)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if v != 0x22222222 {
		t.Fatalf("ReadRegister() = 0x%x, want 0x22222222 (the correctly-id'd reply)", v)
	}
}

// TestTransactPendingAckExtendsDeadlineWithoutConsumingARetry covers
// Open Question (i): a PendingAck should buy more time on the current
// attempt rather than triggering a retry/resend.
func TestTransactPendingAckExtendsDeadlineWithoutConsumingARetry(t *testing.T) {
	server := newUDPServer(t)
	var requestsSeen int
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := server.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := wire.DecodeGVCP(buf[:n])
			if err != nil {
				continue
			}
			requestsSeen++
			if requestsSeen != 1 {
				continue // a resend: counted above, not answered
			}
			pend := wire.EncodeGVCP(wire.GVCPPacket{
				GVCPHeader: wire.GVCPHeader{Command: wire.GVCPPendingAck, ID: req.ID},
				Payload:    []byte{0, 0, 0x03, 0xe8}, // TimeoutMs = 1000
			})
			_, _ = server.WriteToUDP(pend, addr)
			// Answer after the client's 100ms timeout has passed but well
			// inside the 1000ms the PendingAck granted; the loop keeps
			// reading meanwhile, so any resend is still counted.
			ack := wire.EncodeGVCP(wire.GVCPPacket{
				GVCPHeader: wire.GVCPHeader{Command: wire.GVCPReadRegisterAck, ID: req.ID},
				Payload:    wire.EncodeReadRegisterAck(wire.ReadRegisterAckPayload{Value: 42}),
			})
			time.AfterFunc(300*time.Millisecond, func() {
				_, _ = server.WriteToUDP(ack, addr)
				close(done)
			})
		}
	}()

	c := newTestClient(t, server)
	c.timeout = 100 * time.Millisecond // shorter than the PendingAck's 1000ms extension
	v, err := c.ReadRegister(context.Background(), 0x100)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if v != 42 {
		t.Fatalf("ReadRegister() = %d, want 42", v)
	}
	<-done
	if requestsSeen != 1 {
		t.Fatalf("server saw %d distinct requests, want 1 (PendingAck must not trigger a resend)", requestsSeen)
	}
}

func TestParseLocalURL(t *testing.T) {
	addr, length, err := parseLocalURL("local:XmlSchema.xml;0x10000;0x2a")
	if err != nil {
		t.Fatalf("parseLocalURL: %v", err)
	}
	if addr != 0x10000 || length != 0x2a {
		t.Fatalf("parseLocalURL() = (0x%x, %d), want (0x10000, 42)", addr, length)
	}
}

func TestParseLocalURLRejectsMalformed(t *testing.T) {
	for _, url := range []string{"local:onlyonefield", "local:a;b;c;d", "local:a;notgonnaparse;0x1"} {
		if _, _, err := parseLocalURL(url); err == nil {
			t.Errorf("parseLocalURL(%q): expected error, got none", url)
		}
	}
}
