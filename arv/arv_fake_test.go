package arv

import (
	"context"
	"testing"
	"time"

	"github.com/aravis-go/aravis/internal/arvbuffer"
	"github.com/aravis-go/aravis/internal/streamcore"
)

// TestFakeDeviceScenario exercises spec §8's S1/S4/S6 path end to end
// against the in-process Fake interface: discover, open, read a
// feature, compute a payload, acquire one buffer.
func TestFakeDeviceScenario(t *testing.T) {
	sys := NewSystem()
	fake := NewFakeInterface()
	if _, err := fake.AddCamera("Aravis-Fake-GV01"); err != nil {
		t.Fatalf("AddCamera: %v", err)
	}
	sys.RegisterInterface(fake)

	ctx := context.Background()
	if err := sys.UpdateDeviceList(ctx); err != nil {
		t.Fatalf("UpdateDeviceList: %v", err)
	}
	if n := sys.GetNDevices(); n != 1 {
		t.Fatalf("GetNDevices() = %d, want 1", n)
	}
	id, err := sys.GetDeviceID(0)
	if err != nil {
		t.Fatalf("GetDeviceID: %v", err)
	}
	if id != "Aravis-Fake-GV01" {
		t.Fatalf("GetDeviceID() = %q, want Aravis-Fake-GV01", id)
	}

	dev, err := sys.OpenDevice(ctx, id)
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	defer dev.Close()

	cam := NewCamera(dev)

	width, err := cam.GetIntegerFeatureValue(ctx, "Width")
	if err != nil {
		t.Fatalf("GetIntegerFeatureValue(Width): %v", err)
	}
	if width != 512 {
		t.Fatalf("Width = %d, want 512", width)
	}

	payload, err := cam.GetPayload(ctx)
	if err != nil {
		t.Fatalf("GetPayload: %v", err)
	}
	if payload != 512*512 { // Mono8, 1 byte/pixel
		t.Fatalf("GetPayload() = %d, want %d", payload, 512*512)
	}

	done := make(chan *arvbuffer.Buffer, 1)
	stream, err := cam.CreateStream(ctx, func(event streamcore.Event, buf *arvbuffer.Buffer, userData any) {
		if event == streamcore.EventBufferDone {
			select {
			case done <- buf:
			default:
			}
		}
	}, nil)
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	defer stream.StopThread(true)

	buf := arvbuffer.New(int(payload))
	stream.PushBuffer(buf)

	select {
	case filled := <-done:
		if filled.GetStatus() != arvbuffer.StatusSuccess {
			t.Fatalf("buffer status = %v, want Success", filled.GetStatus())
		}
		if w, err := filled.GetImageWidth(); err != nil || w != 512 {
			t.Fatalf("GetImageWidth() = (%d, %v), want (512, nil)", w, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a filled buffer")
	}
}
