package wire

import (
	"bytes"
	"testing"
)

// P1 (Header round-trip): decode(encode(P)) == P, for well-formed packets.
func TestGVCPHeaderRoundTrip(t *testing.T) {
	cases := []GVCPPacket{
		{GVCPHeader{PacketType: GVCPFlagAckRequired, Command: GVCPReadRegisterCmd, ID: 7}, []byte{0, 0, 3, 0}},
		{GVCPHeader{PacketType: 0, Command: GVCPWriteMemoryAck, ID: 0xffff}, nil},
		{GVCPHeader{PacketType: GVCPFlagAllowBroadcast, Command: GVCPDiscoveryCmd, ID: 1}, make([]byte, 32)},
	}
	for i, want := range cases {
		encoded := EncodeGVCP(want)
		got, err := DecodeGVCP(encoded)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if got.PacketType != want.PacketType || got.Command != want.Command || got.ID != want.ID {
			t.Fatalf("case %d: header mismatch: got %+v want %+v", i, got.GVCPHeader, want.GVCPHeader)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("case %d: payload mismatch: got %x want %x", i, got.Payload, want.Payload)
		}
	}
}

func TestDecodeGVCPShortHeader(t *testing.T) {
	if _, err := DecodeGVCP([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestDecodeGVCPTruncatedPayload(t *testing.T) {
	data := EncodeGVCP(GVCPPacket{GVCPHeader{Command: GVCPReadRegisterCmd, ID: 1}, []byte{1, 2, 3, 4}})
	if _, err := DecodeGVCP(data[:len(data)-1]); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestAckForMatchesIsAck(t *testing.T) {
	cmds := []uint16{GVCPDiscoveryCmd, GVCPReadRegisterCmd, GVCPWriteRegisterCmd, GVCPReadMemoryCmd, GVCPWriteMemoryCmd, GVCPEventCmd}
	for _, cmd := range cmds {
		ack, ok := AckFor(cmd)
		if !ok {
			t.Fatalf("no ack mapping for command 0x%04x", cmd)
		}
		if !IsAck(ack) {
			t.Fatalf("IsAck(0x%04x) = false, want true", ack)
		}
	}
}

func TestReadWriteMemoryRoundTrip(t *testing.T) {
	for _, extended := range []bool{false, true} {
		want := ReadMemoryCmdPayload{Address: 0x1000, Extended: extended, Length: 64}
		got, err := DecodeReadMemoryCmd(EncodeReadMemoryCmd(want), extended)
		if err != nil {
			t.Fatalf("extended=%v: %v", extended, err)
		}
		if got != want {
			t.Fatalf("extended=%v: got %+v want %+v", extended, got, want)
		}

		wantAck := ReadMemoryAckPayload{Address: 0x1000, Extended: extended, Data: []byte{1, 2, 3, 4}}
		gotAck, err := DecodeReadMemoryAck(EncodeReadMemoryAck(wantAck), extended)
		if err != nil {
			t.Fatalf("ack extended=%v: %v", extended, err)
		}
		if gotAck.Address != wantAck.Address || !bytes.Equal(gotAck.Data, wantAck.Data) {
			t.Fatalf("ack extended=%v: got %+v want %+v", extended, gotAck, wantAck)
		}
	}
}

func TestReadWriteRegisterRoundTrip(t *testing.T) {
	cmd := ReadRegisterCmdPayload{Address: 0x300, Extended: false}
	got, err := DecodeReadRegisterCmd(EncodeReadRegisterCmd(cmd), false)
	if err != nil || got != cmd {
		t.Fatalf("got %+v, %v; want %+v", got, err, cmd)
	}

	ack := ReadRegisterAckPayload{Value: 1024}
	gotAck, err := DecodeReadRegisterAck(EncodeReadRegisterAck(ack))
	if err != nil || gotAck != ack {
		t.Fatalf("got %+v, %v; want %+v", gotAck, err, ack)
	}

	wcmd := WriteRegisterCmdPayload{Address: 0x300, Value: 1024}
	gotw, err := DecodeWriteRegisterCmd(EncodeWriteRegisterCmd(wcmd), false)
	if err != nil || gotw != wcmd {
		t.Fatalf("got %+v, %v; want %+v", gotw, err, wcmd)
	}
}

func TestDecodeDiscoveryAck(t *testing.T) {
	payload := make([]byte, DiscoveryAckSize)
	copy(payload[16:48], "Acme Vision")
	copy(payload[48:80], "Model-X")
	copy(payload[140:156], "SN1234")

	got, err := DecodeDiscoveryAck(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ManufacturerName != "Acme Vision" || got.ModelName != "Model-X" || got.SerialNumber != "SN1234" {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestDecodeDiscoveryAckTooShort(t *testing.T) {
	if _, err := DecodeDiscoveryAck(make([]byte, 10)); err == nil {
		t.Fatal("expected error")
	}
}
