package genicam

import (
	"context"
	"errors"
	"testing"

	"github.com/aravis-go/aravis/internal/arverr"
)

// memPort is a flat byte-addressed backing store, standing in for a
// real GVCP/UVCP transport the same way internal/fakecamera stands in
// for a real device (§4.2).
type memPort struct {
	data  []byte
	reads int
}

func newMemPort(size int) *memPort { return &memPort{data: make([]byte, size)} }

func (p *memPort) Read(ctx context.Context, address uint64, length int) ([]byte, error) {
	p.reads++
	out := make([]byte, length)
	copy(out, p.data[address:int(address)+length])
	return out, nil
}

func (p *memPort) Write(ctx context.Context, address uint64, data []byte) error {
	copy(p.data[address:], data)
	return nil
}

func newMaskedIntRegDoc() (*Document, *memPort, *Node) {
	p := newMemPort(16)
	d := NewDocument(p, nil)
	n := &Node{Name: "TriggerMode", Kind: KindMaskedIntReg, AccessMode: AccessRW}
	n.Props = map[PropertyRole][]PropertyValue{
		PropAddress: {{Literal: "0"}},
		PropLength:  {{Literal: "4"}},
		PropLSB:     {{Literal: "4"}},
		PropMSB:     {{Literal: "7"}},
		// Little-endian, so backing byte 0 holds bits [0,7] of the word.
		PropEndianness: {{Literal: "LittleEndian"}},
	}
	d.addNode(n)
	return d, p, n
}

// TestMaskedIntRegisterReadWrite covers §4.5 "Masked integer read": a
// MaskedIntReg only touches its [lsb,msb] bits, leaving the rest of the
// backing word untouched.
func TestMaskedIntRegisterReadWrite(t *testing.T) {
	d, p, n := newMaskedIntRegDoc()
	p.data[0] = 0xff // all bits set beforehand

	ctx := context.Background()
	if err := d.SetIntegerValue(ctx, n, 0x3); err != nil {
		t.Fatalf("SetIntegerValue: %v", err)
	}
	// bits [4,7] should now read 0011, bits outside untouched (still 1).
	if p.data[0] != 0x3f {
		t.Fatalf("backing byte = 0x%02x, want 0x3f (low nibble untouched, [4,7]=0011)", p.data[0])
	}

	v, err := d.IntegerValue(ctx, n)
	if err != nil {
		t.Fatalf("IntegerValue: %v", err)
	}
	if v != 0x3 {
		t.Fatalf("IntegerValue() = %d, want 3", v)
	}
}

// TestRangeCheckPolicy covers §4.5 "Range check" under all three
// policies: Enable rejects, Debug logs and allows, Disable skips
// the check entirely (P7).
func TestRangeCheckPolicy(t *testing.T) {
	p := newMemPort(16)
	d := NewDocument(p, nil)
	n := &Node{Name: "Gain", Kind: KindIntReg, AccessMode: AccessRW}
	n.Props = map[PropertyRole][]PropertyValue{
		PropAddress: {{Literal: "0"}},
		PropLength:  {{Literal: "4"}},
		PropMin:     {{Literal: "0"}},
		PropMax:     {{Literal: "10"}},
	}
	d.addNode(n)
	ctx := context.Background()

	d.RangePolicy = RangeEnable
	if err := d.SetIntegerValue(ctx, n, 100); err == nil {
		t.Fatal("SetIntegerValue(100) under RangeEnable should fail")
	}

	d.RangePolicy = RangeDebug
	if err := d.SetIntegerValue(ctx, n, 100); err != nil {
		t.Fatalf("SetIntegerValue(100) under RangeDebug should succeed: %v", err)
	}

	d.RangePolicy = RangeDisable
	if err := d.SetIntegerValue(ctx, n, 9999); err != nil {
		t.Fatalf("SetIntegerValue(9999) under RangeDisable should succeed: %v", err)
	}
}

// TestSelectorInvalidatesSelectedFeatureCache covers P5: writing a
// selector must invalidate the cache of every feature it selects, even
// though the selected feature's own ChangeCount was not directly
// touched by the write.
func TestSelectorInvalidatesSelectedFeatureCache(t *testing.T) {
	p := newMemPort(16)
	d := NewDocument(p, nil)
	d.CachePolicy = CacheEnable

	selector := &Node{Name: "TriggerSelector", Kind: KindInteger, AccessMode: AccessRW}
	selector.Props = map[PropertyRole][]PropertyValue{PropValue: {{Literal: "0"}}}
	selector.Selects = []string{"TriggerMode"}
	d.addNode(selector)

	mode := &Node{Name: "TriggerMode", Kind: KindInteger, AccessMode: AccessRW}
	mode.Props = map[PropertyRole][]PropertyValue{PropValue: {{Literal: "1"}}}
	d.addNode(mode)

	ctx := context.Background()
	if v, err := d.IntegerValue(ctx, mode); err != nil || v != 1 {
		t.Fatalf("IntegerValue(TriggerMode) = (%d,%v), want (1,nil)", v, err)
	}
	if !mode.cache.valid {
		t.Fatal("TriggerMode cache should be valid after first read")
	}

	if err := d.SetIntegerValue(ctx, selector, 2); err != nil {
		t.Fatalf("SetIntegerValue(TriggerSelector): %v", err)
	}
	if mode.cache.valid {
		t.Fatal("TriggerMode cache should have been invalidated by the selector write")
	}
}

// TestCacheEnableReturnsStaleValueOnDirectBackingChange covers P6: under
// CacheEnable, a value read outside the engine (direct backing-store
// write bypassing SetIntegerValue) is masked by the cache until the
// node's closure changes; CacheDisable always goes to the backing store.
func TestCacheEnableReturnsStaleValueOnDirectBackingChange(t *testing.T) {
	d, p, n := newMaskedIntRegDoc()
	d.CachePolicy = CacheEnable
	ctx := context.Background()

	if err := d.SetIntegerValue(ctx, n, 0x1); err != nil {
		t.Fatalf("SetIntegerValue: %v", err)
	}
	if v, err := d.IntegerValue(ctx, n); err != nil || v != 0x1 {
		t.Fatalf("IntegerValue() = (%d,%v), want (1,nil)", v, err)
	}

	// Bypass the engine: flip the bits directly in the backing store.
	p.data[0] = 0xff

	if v, err := d.IntegerValue(ctx, n); err != nil || v != 0x1 {
		t.Fatalf("IntegerValue() under CacheEnable = (%d,%v), want stale (1,nil)", v, err)
	}

	d.CachePolicy = CacheDisable
	n.cache.valid = false
	if v, err := d.IntegerValue(ctx, n); err != nil || v != 0xf {
		t.Fatalf("IntegerValue() under CacheDisable = (%d,%v), want fresh (15,nil)", v, err)
	}
}

// TestReadOnlyRegisterRejectsWriteUnderAccessCheck covers §4.5 "Access
// check": AccessCheckEnable must reject a write to a read-only node.
func TestReadOnlyRegisterRejectsWriteUnderAccessCheck(t *testing.T) {
	p := newMemPort(16)
	d := NewDocument(p, nil)
	d.AccessPolicy = AccessCheckEnable
	n := &Node{Name: "DeviceTemperature", Kind: KindIntReg, AccessMode: AccessRO}
	n.Props = map[PropertyRole][]PropertyValue{
		PropAddress: {{Literal: "0"}},
		PropLength:  {{Literal: "4"}},
	}
	d.addNode(n)

	err := d.SetIntegerValue(context.Background(), n, 1)
	if err == nil {
		t.Fatal("SetIntegerValue on a read-only node should fail under AccessCheckEnable")
	}
	if !errors.Is(err, arverr.ReadOnly) {
		t.Fatalf("error = %v, want wrapping arverr.ReadOnly", err)
	}
}
