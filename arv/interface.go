// Interface implementations: GV (GigE Vision discovery over UDP
// broadcast) and Fake (an in-process registry of fakecamera.Camera
// instances). Both satisfy the Interface abstraction of arv.go and are
// meant to be registered into a System via RegisterInterface.
package arv

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/aravis-go/aravis/internal/arverr"
	"github.com/aravis-go/aravis/internal/fakecamera"
	"github.com/aravis-go/aravis/internal/gvcp"
	"github.com/aravis-go/aravis/internal/netutil"
	"github.com/aravis-go/aravis/internal/wire"
)

// GVInterface discovers GigE Vision devices by broadcasting a GVCP
// Discovery command on every suitable network interface (spec §6
// "Interface: update_device_list", grounded on gvcp.Discover).
type GVInterface struct {
	mu          sync.Mutex
	window      time.Duration
	devices     []DeviceSummary
	addressByID map[string]string
}

// NewGVInterface constructs a GV interface with a default discovery
// window; SetFlags("window") lets a caller tune it (spec §6
// "set_interface_flags(name, flags)").
func NewGVInterface() *GVInterface {
	return &GVInterface{window: 500 * time.Millisecond, addressByID: map[string]string{}}
}

func (g *GVInterface) Name() string { return "GigEVision" }

// SetFlags accepts "window=500ms"-style tuning (spec §6
// "set_interface_flags").
func (g *GVInterface) SetFlags(flags map[string]string) error {
	if w, ok := flags["window"]; ok {
		d, err := time.ParseDuration(w)
		if err != nil {
			return fmt.Errorf("interface flag window=%q: %w", w, arverr.InvalidParameter)
		}
		g.mu.Lock()
		g.window = d
		g.mu.Unlock()
	}
	return nil
}

// UpdateDeviceList broadcasts Discovery on every broadcast-capable
// interface and replaces the cached snapshot (spec §6
// "update_device_list").
func (g *GVInterface) UpdateDeviceList(ctx context.Context) error {
	ifaces, err := netutil.BroadcastInterfaces()
	if err != nil {
		return err
	}

	g.mu.Lock()
	window := g.window
	g.mu.Unlock()

	seen := map[string]bool{}
	var found []wire.DiscoveryAckPayload
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			bcast := netutil.BroadcastAddr(ipNet)
			if bcast == nil {
				continue
			}
			acks, err := gvcp.Discover(ctx, bcast.String(), window)
			if err != nil {
				continue
			}
			for _, ack := range acks {
				if seen[ack.SerialNumber] {
					continue
				}
				seen[ack.SerialNumber] = true
				found = append(found, ack)
			}
		}
	}

	summaries := make([]DeviceSummary, 0, len(found))
	addrByID := make(map[string]string, len(found))
	for _, ack := range found {
		id := ack.SerialNumber
		addr := fmt.Sprintf("%d.%d.%d.%d", ack.CurrentIP[0], ack.CurrentIP[1], ack.CurrentIP[2], ack.CurrentIP[3])
		summaries = append(summaries, DeviceSummary{
			ID:           id,
			Vendor:       ack.ManufacturerName,
			Model:        ack.ModelName,
			SerialNumber: ack.SerialNumber,
			Address:      addr,
			Protocol:     "GigEVision",
		})
		addrByID[id] = addr
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })

	g.mu.Lock()
	g.devices = summaries
	g.addressByID = addrByID
	g.mu.Unlock()
	return nil
}

func (g *GVInterface) NDevices() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.devices)
}

func (g *GVInterface) DeviceSummary(i int) (DeviceSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.devices) {
		return DeviceSummary{}, fmt.Errorf("device index %d: %w", i, arverr.NotFound)
	}
	return g.devices[i], nil
}

// OpenDevice dials the cached address for id (spec §6
// "Interface: open_device(id)").
func (g *GVInterface) OpenDevice(ctx context.Context, id string) (*Device, error) {
	g.mu.Lock()
	addr, ok := g.addressByID[id]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("device %q: %w", id, arverr.NotFound)
	}
	return openGV(ctx, id, addr)
}

// FakeInterface is an in-process registry of fakecamera.Camera
// instances, standing in for the real-device enumerator in tests (spec
// §8 S1 "Aravis-Fake-GV01").
type FakeInterface struct {
	mu      sync.Mutex
	cameras map[string]*fakecamera.Camera
	order   []string
}

// NewFakeInterface constructs an empty registry.
func NewFakeInterface() *FakeInterface {
	return &FakeInterface{cameras: map[string]*fakecamera.Camera{}}
}

func (f *FakeInterface) Name() string { return "Fake" }

// AddCamera registers a fake camera under serialNumber as its device
// id (spec §8 S1's convention of naming fake devices
// "Aravis-Fake-GV01").
func (f *FakeInterface) AddCamera(serialNumber string) (*fakecamera.Camera, error) {
	cam, err := fakecamera.New(serialNumber)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	if _, exists := f.cameras[serialNumber]; !exists {
		f.order = append(f.order, serialNumber)
	}
	f.cameras[serialNumber] = cam
	f.mu.Unlock()
	return cam, nil
}

// UpdateDeviceList is a no-op: the fake registry has no external
// enumeration step (spec §6 "update_device_list").
func (f *FakeInterface) UpdateDeviceList(ctx context.Context) error { return nil }

func (f *FakeInterface) NDevices() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *FakeInterface) DeviceSummary(i int) (DeviceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.order) {
		return DeviceSummary{}, fmt.Errorf("device index %d: %w", i, arverr.NotFound)
	}
	id := f.order[i]
	cam := f.cameras[id]
	return DeviceSummary{
		ID:           id,
		Vendor:       "Aravis-Go",
		Model:        "Fake",
		SerialNumber: cam.SerialNumber(),
		Address:      "local",
		Protocol:     "Fake",
	}, nil
}

// OpenDevice binds a Device directly to the registered camera (spec §6
// "Interface: open_device(id)").
func (f *FakeInterface) OpenDevice(ctx context.Context, id string) (*Device, error) {
	f.mu.Lock()
	cam, ok := f.cameras[id]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("device %q: %w", id, arverr.NotFound)
	}
	return openFake(id, cam), nil
}
