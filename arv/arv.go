// Package arv is the public facade of spec §6: System, Interface,
// Device, Stream, Buffer, Camera. It wires internal/gvcp,
// internal/uvcp, internal/genicam, internal/gvsp, internal/uvsp, and
// internal/fakecamera together behind the entity-oriented API surface
// the rest of the stack hides behind internal packages.
//
// Grounded on the teacher's own thin top-level/concern-specific-package
// split (client/, cvpipe/, webrtc/, servo/ behind a root main package):
// arv/ plays the same role cvpipe.Pipeline's callers play for the
// teacher's WebRTC tracks, a facade that constructs and threads
// together the lower machinery rather than reimplementing it.
package arv

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aravis-go/aravis/internal/arverr"
)

// DeviceInfoField names one column of Interface.GetDeviceInfo (spec §6
// "get_device_info(i, field)").
type DeviceInfoField int

const (
	FieldID DeviceInfoField = iota
	FieldVendor
	FieldModel
	FieldSerialNumber
	FieldAddress
	FieldProtocol
)

// DeviceSummary is one row of an Interface's device-list snapshot
// (spec §3 "Interface registry... each interface caches its last
// device-list snapshot").
type DeviceSummary struct {
	ID           string
	Vendor       string
	Model        string
	SerialNumber string
	Address      string
	Protocol     string
}

func (s DeviceSummary) field(f DeviceInfoField) string {
	switch f {
	case FieldID:
		return s.ID
	case FieldVendor:
		return s.Vendor
	case FieldModel:
		return s.Model
	case FieldSerialNumber:
		return s.SerialNumber
	case FieldAddress:
		return s.Address
	case FieldProtocol:
		return s.Protocol
	default:
		return ""
	}
}

// Interface is the abstract per-transport device enumerator of spec §3
// "Interface registry" / L9.
type Interface interface {
	Name() string
	UpdateDeviceList(ctx context.Context) error
	NDevices() int
	DeviceSummary(i int) (DeviceSummary, error)
	OpenDevice(ctx context.Context, id string) (*Device, error)
}

// System is the registry of Interfaces (spec §3
// "Interface registry", §6 System). Unlike the original's ambient
// singleton, callers construct and pass an explicit *System (spec
// Design Notes "Global state": "Replace with an explicit System value
// that callers construct and pass").
type System struct {
	mu         sync.Mutex
	interfaces map[string]Interface
	enabled    map[string]bool
	order      []string
}

// NewSystem creates an empty registry. Interfaces are added by the
// caller via RegisterInterface (NewGVInterface and NewFakeInterface do
// not register themselves); GenTL producer loading is out of scope
// (spec §1 Non-goals).
func NewSystem() *System {
	return &System{
		interfaces: map[string]Interface{},
		enabled:    map[string]bool{},
	}
}

// RegisterInterface adds iface to the registry, enabled by default
// (spec §6 System "enable_interface").
func (s *System) RegisterInterface(iface Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := iface.Name()
	if _, exists := s.interfaces[name]; !exists {
		s.order = append(s.order, name)
	}
	s.interfaces[name] = iface
	s.enabled[name] = true
}

// EnableInterface toggles whether UpdateDeviceList/device-id lookups
// consider an interface (spec §6 "enable_interface(name)").
func (s *System) EnableInterface(name string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[name] = on
}

// SetInterfaceFlags is a supplemented extension point for
// transport-specific tuning (e.g. the GV interface's discovery
// window); flags are opaque to System itself and simply handed to the
// named Interface if it implements FlagSetter.
func (s *System) SetInterfaceFlags(name string, flags map[string]string) error {
	s.mu.Lock()
	iface, ok := s.interfaces[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("interface %q: %w", name, arverr.NotFound)
	}
	if fs, ok := iface.(FlagSetter); ok {
		return fs.SetFlags(flags)
	}
	return nil
}

// FlagSetter is implemented by interfaces that accept tuning flags via
// SetInterfaceFlags.
type FlagSetter interface {
	SetFlags(flags map[string]string) error
}

// UpdateDeviceList rebuilds every enabled interface's snapshot (spec §6
// "System: update_device_list").
func (s *System) UpdateDeviceList(ctx context.Context) error {
	for _, iface := range s.enabledInterfaces() {
		if err := iface.UpdateDeviceList(ctx); err != nil {
			return fmt.Errorf("update device list on %s: %w", iface.Name(), err)
		}
	}
	return nil
}

func (s *System) enabledInterfaces() []Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Interface, 0, len(s.order))
	for _, name := range s.order {
		if s.enabled[name] {
			out = append(out, s.interfaces[name])
		}
	}
	return out
}

// GetNDevices sums the device counts of every enabled interface (spec
// §6 "get_n_devices").
func (s *System) GetNDevices() int {
	n := 0
	for _, iface := range s.enabledInterfaces() {
		n += iface.NDevices()
	}
	return n
}

// GetDeviceID returns the i-th device's id across all enabled
// interfaces, in interface-registration order (spec §6
// "get_device_id(i)").
func (s *System) GetDeviceID(i int) (string, error) {
	sum, err := s.deviceSummaryAt(i)
	if err != nil {
		return "", err
	}
	return sum.ID, nil
}

// GetDeviceInfo returns one field of the i-th device's summary (spec §6
// "get_device_info(i, field)").
func (s *System) GetDeviceInfo(i int, field DeviceInfoField) (string, error) {
	sum, err := s.deviceSummaryAt(i)
	if err != nil {
		return "", err
	}
	return sum.field(field), nil
}

func (s *System) deviceSummaryAt(i int) (DeviceSummary, error) {
	if i < 0 {
		return DeviceSummary{}, fmt.Errorf("device index %d: %w", i, arverr.InvalidParameter)
	}
	for _, iface := range s.enabledInterfaces() {
		n := iface.NDevices()
		if i < n {
			return iface.DeviceSummary(i)
		}
		i -= n
	}
	return DeviceSummary{}, fmt.Errorf("device index out of range: %w", arverr.NotFound)
}

// OpenDevice finds whichever enabled interface owns id and opens it
// (spec §6 "System: open_device(id)").
func (s *System) OpenDevice(ctx context.Context, id string) (*Device, error) {
	for _, iface := range s.enabledInterfaces() {
		n := iface.NDevices()
		for i := 0; i < n; i++ {
			sum, err := iface.DeviceSummary(i)
			if err != nil {
				continue
			}
			if sum.ID == id {
				return iface.OpenDevice(ctx, id)
			}
		}
	}
	return nil, fmt.Errorf("device %q: %w", id, arverr.NotFound)
}

// Shutdown closes every open interface resource (spec §6
// "System: shutdown"). GV/Fake interfaces hold no persistent resources
// of their own (discovery is per-call, fake cameras are in-memory), so
// this is a placeholder extension point for interfaces that do (a
// GenTL interface's loaded producer library, for instance — out of
// scope per spec §1 Non-goals).
func (s *System) Shutdown() {}

// newInstanceID mirrors the teacher's uuid.New() use for stable
// external identifiers (cards/*.go, notecard.go), applied here to
// device instances instead of note cards.
func newInstanceID() uuid.UUID { return uuid.New() }
