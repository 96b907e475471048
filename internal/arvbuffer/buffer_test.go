package arvbuffer

import "testing"

func TestNewAllocatesZeroedRegion(t *testing.T) {
	b := New(128)
	if got := b.AllocatedSize(); got != 128 {
		t.Fatalf("AllocatedSize() = %d, want 128", got)
	}
	if b.CallerOwned() {
		t.Fatal("New buffer should not be caller-owned")
	}
	for i, c := range b.Data() {
		if c != 0 {
			t.Fatalf("Data()[%d] = 0x%02x, want 0", i, c)
		}
	}
}

func TestSetReceivedSizeBounds(t *testing.T) {
	b := New(16)
	if err := b.SetReceivedSize(16); err != nil {
		t.Fatalf("SetReceivedSize(16): %v", err)
	}
	if err := b.SetReceivedSize(17); err == nil {
		t.Fatal("SetReceivedSize(17) on a 16-byte buffer should fail")
	}
	if err := b.SetReceivedSize(-1); err == nil {
		t.Fatal("SetReceivedSize(-1) should fail")
	}
}

func TestImageDataRequiresSuccessAndImagePayload(t *testing.T) {
	b := New(4)
	_ = b.SetReceivedSize(4)
	if _, err := b.ImageData(); err == nil {
		t.Fatal("ImageData() on a cleared buffer should fail")
	}
	b.Status = StatusSuccess
	if _, err := b.ImageData(); err == nil {
		t.Fatal("ImageData() with PayloadType != Image should fail")
	}
	b.PayloadType = PayloadImage
	data, err := b.ImageData()
	if err != nil {
		t.Fatalf("ImageData(): %v", err)
	}
	if len(data) != 4 {
		t.Fatalf("ImageData() len = %d, want 4", len(data))
	}
}

func TestReleaseInvokesHookOnlyOnceForCallerOwnedBuffers(t *testing.T) {
	calls := 0
	data := make([]byte, 8)
	b := NewFull(data, "token", func(userData any) {
		calls++
		if userData != "token" {
			t.Errorf("release called with userData = %v, want token", userData)
		}
	})
	if !b.CallerOwned() {
		t.Fatal("NewFull buffer should be caller-owned")
	}
	b.Release()
	b.Release()
	if calls != 1 {
		t.Fatalf("release hook called %d times, want 1", calls)
	}
}

func TestReleaseOnLibraryAllocatedBufferDropsBackingSlice(t *testing.T) {
	b := New(8)
	b.Release()
	if b.Data() != nil {
		t.Fatal("Release should drop the backing slice")
	}
}

func TestGetImageAccessorsReadTheFirstPart(t *testing.T) {
	b := New(64)
	b.Parts = []Part{{
		PixelFormat: 0x01080001,
		Width:       640,
		Height:      480,
		XOffset:     1,
		YOffset:     2,
		XPadding:    3,
		YPadding:    4,
	}}
	if pf, err := b.GetImagePixelFormat(); err != nil || pf != 0x01080001 {
		t.Fatalf("GetImagePixelFormat() = (%v, %v)", pf, err)
	}
	x, y, w, h, err := b.GetImageRegion()
	if err != nil || x != 1 || y != 2 || w != 640 || h != 480 {
		t.Fatalf("GetImageRegion() = (%d,%d,%d,%d,%v)", x, y, w, h, err)
	}
	xp, yp, err := b.GetImagePadding()
	if err != nil || xp != 3 || yp != 4 {
		t.Fatalf("GetImagePadding() = (%d,%d,%v)", xp, yp, err)
	}
}

func TestGetImageAccessorsFailWithoutParts(t *testing.T) {
	b := New(8)
	if _, err := b.GetImagePixelFormat(); err == nil {
		t.Fatal("GetImagePixelFormat() on a partless buffer should fail")
	}
}
