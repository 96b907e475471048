package arv

import (
	"context"
	"testing"
)

// TestFakeDeviceTriggerSelectorShiftsTriggerModeAddress covers spec §8
// scenario S2: selecting TriggerSelector=AcquisitionStart must shift
// the address resolved for TriggerMode by the offset the fake camera's
// feature tree encodes, and the two selections must address distinct
// registers.
func TestFakeDeviceTriggerSelectorShiftsTriggerModeAddress(t *testing.T) {
	sys := NewSystem()
	fake := NewFakeInterface()
	if _, err := fake.AddCamera("Aravis-Fake-GV02"); err != nil {
		t.Fatalf("AddCamera: %v", err)
	}
	sys.RegisterInterface(fake)

	ctx := context.Background()
	if err := sys.UpdateDeviceList(ctx); err != nil {
		t.Fatalf("UpdateDeviceList: %v", err)
	}
	dev, err := sys.OpenDevice(ctx, "Aravis-Fake-GV02")
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	defer dev.Close()

	if err := dev.SetStringFeatureValue(ctx, "TriggerSelector", "FrameStart"); err != nil {
		t.Fatalf("SetStringFeatureValue(TriggerSelector, FrameStart): %v", err)
	}
	if err := dev.SetIntegerFeatureValue(ctx, "TriggerMode", 7); err != nil {
		t.Fatalf("SetIntegerFeatureValue(TriggerMode, 7) under FrameStart: %v", err)
	}
	frameStartReg, err := dev.ReadRegister(ctx, 0x300)
	if err != nil {
		t.Fatalf("ReadRegister(0x300): %v", err)
	}
	if frameStartReg != 7 {
		t.Fatalf("register @0x300 (FrameStart) = %d, want 7", frameStartReg)
	}

	if err := dev.SetStringFeatureValue(ctx, "TriggerSelector", "AcquisitionStart"); err != nil {
		t.Fatalf("SetStringFeatureValue(TriggerSelector, AcquisitionStart): %v", err)
	}
	if err := dev.SetIntegerFeatureValue(ctx, "TriggerMode", 9); err != nil {
		t.Fatalf("SetIntegerFeatureValue(TriggerMode, 9) under AcquisitionStart: %v", err)
	}
	acquisitionStartReg, err := dev.ReadRegister(ctx, 0x320) // 0x300 + 0x020 offset
	if err != nil {
		t.Fatalf("ReadRegister(0x320): %v", err)
	}
	if acquisitionStartReg != 9 {
		t.Fatalf("register @0x320 (AcquisitionStart) = %d, want 9", acquisitionStartReg)
	}

	// The FrameStart value written earlier must be undisturbed: the two
	// selections address genuinely distinct registers, not the same one.
	frameStartReg, err = dev.ReadRegister(ctx, 0x300)
	if err != nil {
		t.Fatalf("ReadRegister(0x300) after second selection: %v", err)
	}
	if frameStartReg != 7 {
		t.Fatalf("register @0x300 (FrameStart) after switching selector = %d, want still 7", frameStartReg)
	}
}
