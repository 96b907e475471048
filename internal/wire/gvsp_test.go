package wire

import "testing"

func TestGVSPHeaderRoundTrip(t *testing.T) {
	for _, extended := range []bool{false, true} {
		h := GVSPHeader{
			Status:       0,
			BlockID:      42,
			Extended:     extended,
			PacketFormat: GVSPFormatPayload,
			PacketID:     1234,
		}
		body := []byte{0xde, 0xad, 0xbe, 0xef}
		encoded := EncodeGVSPHeader(h, body)
		got, rest, err := DecodeGVSPHeader(encoded)
		if err != nil {
			t.Fatalf("extended=%v: %v", extended, err)
		}
		if got.BlockID != h.BlockID || got.PacketFormat != h.PacketFormat || got.PacketID != h.PacketID || got.Extended != extended {
			t.Fatalf("extended=%v: got %+v want %+v", extended, got, h)
		}
		if string(rest) != string(body) {
			t.Fatalf("extended=%v: body mismatch: got %x want %x", extended, rest, body)
		}
	}
}

func TestGVSPLeaderImageRoundTrip(t *testing.T) {
	want := GVSPLeader{
		PayloadType: GVSPPayloadImage,
		PixelFormat: 0x01080001,
		Width:       1024,
		Height:      768,
		XOffset:     0,
		YOffset:     0,
		Timestamp:   123456789,
	}
	got, err := DecodeGVSPLeader(EncodeGVSPLeader(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestGVSPTrailerMultipartRoundTrip(t *testing.T) {
	want := GVSPTrailer{
		PayloadType: GVSPPayloadMultipart,
		PayloadSize: 2048,
		Parts: []GVSPPartDescriptor{
			{Offset: 0, Size: 1024, PixelFormat: 1, Width: 32, Height: 32, ComponentID: 0},
			{Offset: 1024, Size: 1024, PixelFormat: 2, Width: 32, Height: 32, ComponentID: 1},
		},
	}
	got, err := DecodeGVSPTrailer(EncodeGVSPTrailer(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PayloadSize != want.PayloadSize || len(got.Parts) != len(want.Parts) {
		t.Fatalf("got %+v want %+v", got, want)
	}
	for i := range want.Parts {
		if got.Parts[i] != want.Parts[i] {
			t.Fatalf("part %d: got %+v want %+v", i, got.Parts[i], want.Parts[i])
		}
	}
}

func TestDecodeGVSPHeaderShort(t *testing.T) {
	if _, _, err := DecodeGVSPHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error")
	}
}
