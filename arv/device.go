package arv

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aravis-go/aravis/internal/arvbuffer"
	"github.com/aravis-go/aravis/internal/arverr"
	"github.com/aravis-go/aravis/internal/fakecamera"
	"github.com/aravis-go/aravis/internal/genicam"
	"github.com/aravis-go/aravis/internal/gvcp"
	"github.com/aravis-go/aravis/internal/gvsp"
	"github.com/aravis-go/aravis/internal/port"
	"github.com/aravis-go/aravis/internal/streamcore"
	"github.com/aravis-go/aravis/internal/uvcp"
	"github.com/aravis-go/aravis/internal/uvsp"
)

// heartbeatClient is satisfied by *gvcp.Client (UVCP has no heartbeat:
// spec §4.3 "same contract as L4" covers transactions, not the
// GVCP-specific control-channel-ownership heartbeat).
type heartbeatClient interface {
	StartHeartbeat(valueMs uint32)
	StopHeartbeat()
	Close() error
}

// Device binds a Port (L4/L5) to a GenICam document (L6), plus the
// three access policies and heartbeat/controller state of spec §3
// "Device".
type Device struct {
	ID uuid.UUID

	id     string
	Doc    *genicam.Document
	port   port.RegisterPort
	rawXML []byte

	hb         heartbeatClient // non-nil only for GV devices
	controller bool

	// Exactly one of these is non-nil, selecting how CreateStream
	// builds the concrete engine (spec §6 "Device: create_stream").
	gvClient      *gvcp.Client
	uvcpTransport uvcp.BulkTransport
	fakeCamera    *fakecamera.Camera

	OnControlLost func()
}

// openFake binds a Device directly to an in-process fake camera's
// already-parsed GenICam document (spec §8 S1/S2/S6's "Fake"
// interface); there is no control-channel heartbeat to start.
func openFake(id string, camera *fakecamera.Camera) *Device {
	return &Device{ID: newInstanceID(), id: id, Doc: camera.Doc, port: camera, rawXML: camera.GenicamXML(), fakeCamera: camera}
}

// openGV dials a GVCP control channel, claims control, fetches and
// parses the device's GenICam XML, and starts the heartbeat (spec §4.3
// "Heartbeat", §6 "Writing CCP = 0x02 claims control").
func openGV(ctx context.Context, id, addr string, opts ...gvcp.Option) (*Device, error) {
	c, err := gvcp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.ClaimControl(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("claim control of %s: %w", id, err)
	}
	xml, err := gvcp.FetchDeviceGenicamXML(ctx, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	doc := genicam.NewDocument(c, log.Default())
	if err := doc.ParseXML(bytes.NewReader(xml)); err != nil {
		c.Close()
		return nil, fmt.Errorf("parse genicam xml of %s: %w", id, err)
	}
	d := &Device{ID: newInstanceID(), id: id, Doc: doc, port: c, rawXML: xml, hb: c, controller: true, gvClient: c}
	c.StartHeartbeat(3000)
	c.OnControlLost = func() {
		d.controller = false
		if d.OnControlLost != nil {
			d.OnControlLost()
		}
	}
	return d, nil
}

// openUVCP mirrors openGV for a USB3 Vision device; no heartbeat (spec
// §4.3 mirror clause covers transactions, not the GV-only
// control-channel keepalive).
func openUVCP(ctx context.Context, id string, t uvcp.BulkTransport, manifestAddr uint64, manifestLen int, opts ...uvcp.Option) (*Device, error) {
	c := uvcp.New(t, opts...)
	xml, err := c.ReadMemory(ctx, manifestAddr, manifestLen)
	if err != nil {
		return nil, fmt.Errorf("read genicam xml of %s: %w", id, err)
	}
	doc := genicam.NewDocument(c, log.Default())
	if err := doc.ParseXML(bytes.NewReader(trimTrailingNuls(xml))); err != nil {
		return nil, fmt.Errorf("parse genicam xml of %s: %w", id, err)
	}
	return &Device{ID: newInstanceID(), id: id, Doc: doc, port: c, rawXML: trimTrailingNuls(xml), uvcpTransport: t}, nil
}

func trimTrailingNuls(b []byte) []byte {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return b
	}
	return b[:i]
}

// Identifier returns the device identifier it was opened with (spec §6
// "Device").
func (d *Device) Identifier() string { return d.id }

// Close, for a GV device, closes its gvcp.Client, which stops the
// heartbeat, releases control and closes the socket (spec §5 "Dropping
// a Device stops the heartbeat, releases the control channel, and
// closes the socket"). UVCP and fake devices hold nothing that Close
// releases; for them it returns nil.
func (d *Device) Close() error {
	if d.hb != nil {
		return d.hb.Close()
	}
	return nil
}

// ReadMemory/WriteMemory/ReadRegister/WriteRegister expose the Port
// primitives directly (spec §6 "read/write_memory, read/write_register").
func (d *Device) ReadMemory(ctx context.Context, address uint64, length int) ([]byte, error) {
	return d.port.Read(ctx, address, length)
}

func (d *Device) WriteMemory(ctx context.Context, address uint64, data []byte) error {
	return d.port.Write(ctx, address, data)
}

func (d *Device) ReadRegister(ctx context.Context, address uint64) (uint32, error) {
	return d.port.ReadRegister(ctx, address)
}

func (d *Device) WriteRegister(ctx context.Context, address uint64, value uint32) error {
	return d.port.WriteRegister(ctx, address, value)
}

// GetGenicam returns the bound feature-arena document (spec §6
// "get_genicam"); GetGenicamXML returns the raw document the arena was
// parsed from, kept from open time for GV, UVCP and fake devices alike.
func (d *Device) GetGenicam() *genicam.Document { return d.Doc }

// IsFeatureAvailable/IsFeatureImplemented report a feature's
// pIsAvailable/pIsImplemented (spec §6).
func (d *Device) IsFeatureAvailable(name string) (bool, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return false, err
	}
	return d.Doc.IsAvailable(n), nil
}

func (d *Device) IsFeatureImplemented(name string) (bool, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return false, err
	}
	return d.Doc.IsImplemented(n), nil
}

// GetFeature resolves a feature node by name (spec §6 "get_feature(name)").
func (d *Device) GetFeature(name string) (*genicam.Node, error) {
	return d.Doc.NodeByName(name)
}

// GetBooleanFeatureValue/SetBooleanFeatureValue and their
// string/integer/float counterparts are the typed read/write pairs of
// spec §6 "get/set_{boolean,string,integer,float}_feature_value".
func (d *Device) GetBooleanFeatureValue(ctx context.Context, name string) (bool, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return false, err
	}
	return d.Doc.BooleanValue(ctx, n)
}

func (d *Device) SetBooleanFeatureValue(ctx context.Context, name string, v bool) error {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return err
	}
	return d.Doc.SetBooleanValue(ctx, n, v)
}

func (d *Device) GetStringFeatureValue(ctx context.Context, name string) (string, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return "", err
	}
	return d.Doc.StringValue(ctx, n)
}

func (d *Device) SetStringFeatureValue(ctx context.Context, name string, v string) error {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return err
	}
	return d.Doc.SetStringValue(ctx, n, v)
}

func (d *Device) GetIntegerFeatureValue(ctx context.Context, name string) (int64, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return 0, err
	}
	return d.Doc.IntegerValue(ctx, n)
}

func (d *Device) SetIntegerFeatureValue(ctx context.Context, name string, v int64) error {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return err
	}
	return d.Doc.SetIntegerValue(ctx, n, v)
}

func (d *Device) GetFloatFeatureValue(ctx context.Context, name string) (float64, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return 0, err
	}
	return d.Doc.FloatValue(ctx, n)
}

func (d *Device) SetFloatFeatureValue(ctx context.Context, name string, v float64) error {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return err
	}
	return d.Doc.SetFloatValue(ctx, n, v)
}

// GetIntegerFeatureBounds/GetFloatFeatureBounds (spec §6
// "get_{integer,float}_feature_bounds").
func (d *Device) GetIntegerFeatureBounds(ctx context.Context, name string) (min, max, inc int64, err error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return 0, 0, 0, err
	}
	min, max, inc, ok, err := d.Doc.IntegerBounds(ctx, n)
	if err != nil {
		return 0, 0, 0, err
	}
	if !ok {
		return 0, 0, 0, fmt.Errorf("%s has no declared bounds: %w", name, arverr.PropertyNotDefined)
	}
	return min, max, inc, nil
}

func (d *Device) GetFloatFeatureBounds(ctx context.Context, name string) (min, max float64, err error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return 0, 0, err
	}
	min, max, _, ok, err := d.Doc.FloatBounds(ctx, n)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("%s has no declared bounds: %w", name, arverr.PropertyNotDefined)
	}
	return min, max, nil
}

// ExecuteCommand runs a Command node (spec §6 "execute_command").
func (d *Device) ExecuteCommand(ctx context.Context, name string) error {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return err
	}
	return d.Doc.ExecuteCommand(ctx, n)
}

// DupAvailableEnumerationValues returns the raw integer codes of an
// enumeration's available entries (spec §6
// "dup_available_enumeration_values").
func (d *Device) DupAvailableEnumerationValues(name string) ([]int64, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return nil, err
	}
	values, _, err := d.Doc.AvailableEnumerationValues(n)
	return values, err
}

// DupAvailableEnumerationValuesAsStrings returns entry names (spec §6
// "..._as_strings").
func (d *Device) DupAvailableEnumerationValuesAsStrings(name string) ([]string, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return nil, err
	}
	_, names, err := d.Doc.AvailableEnumerationValues(n)
	return names, err
}

// DupAvailableEnumerationValuesAsDisplayNames returns each available
// entry's DisplayName, falling back to its symbolic name when none was
// declared (spec §6 "..._as_display_names").
func (d *Device) DupAvailableEnumerationValuesAsDisplayNames(name string) ([]string, error) {
	n, err := d.Doc.NodeByName(name)
	if err != nil {
		return nil, err
	}
	_, names, err := d.Doc.AvailableEnumerationValues(n)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(names))
	for i, entryName := range names {
		entry, err := d.Doc.NodeByName(entryName)
		if err != nil || entry.DisplayName == "" {
			out[i] = entryName
			continue
		}
		out[i] = entry.DisplayName
	}
	return out, nil
}

// SetFeaturesFromString applies "Name=Value Name2=Value2 ..." pairs in
// order (spec §8 S6 "set_features_from_string"); each value is parsed
// according to the target node's kind (integer nodes accept decimal or
// 0x-prefixed hex, float nodes accept any strconv.ParseFloat syntax,
// everything else goes through SetStringValue, including enumerations
// by symbolic entry name).
func (d *Device) SetFeaturesFromString(ctx context.Context, s string) error {
	for _, pair := range strings.Fields(s) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("malformed feature assignment %q: %w", pair, arverr.InvalidParameter)
		}
		n, err := d.Doc.NodeByName(name)
		if err != nil {
			return err
		}
		switch n.Kind {
		case genicam.KindInteger, genicam.KindIntReg, genicam.KindMaskedIntReg, genicam.KindIntSwissKnife, genicam.KindIntConverter:
			iv, perr := strconv.ParseInt(value, 0, 64)
			if perr != nil {
				return fmt.Errorf("feature %s value %q: %w", name, value, arverr.InvalidParameter)
			}
			if err := d.Doc.SetIntegerValue(ctx, n, iv); err != nil {
				return err
			}
		case genicam.KindFloat, genicam.KindFloatReg, genicam.KindSwissKnife, genicam.KindConverter:
			fv, perr := strconv.ParseFloat(value, 64)
			if perr != nil {
				return fmt.Errorf("feature %s value %q: %w", name, value, arverr.InvalidParameter)
			}
			if err := d.Doc.SetFloatValue(ctx, n, fv); err != nil {
				return err
			}
		case genicam.KindBoolean:
			bv, perr := strconv.ParseBool(value)
			if perr != nil {
				return fmt.Errorf("feature %s value %q: %w", name, value, arverr.InvalidParameter)
			}
			if err := d.Doc.SetBooleanValue(ctx, n, bv); err != nil {
				return err
			}
		default:
			if err := d.Doc.SetStringValue(ctx, n, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetRegisterCachePolicy/SetRangeCheckPolicy/SetAccessCheckPolicy
// configure the bound document's policies (spec §6).
func (d *Device) SetRegisterCachePolicy(p genicam.RegisterCachePolicy) { d.Doc.CachePolicy = p }
func (d *Device) SetRangeCheckPolicy(p genicam.RangeCheckPolicy)       { d.Doc.RangePolicy = p }
func (d *Device) SetAccessCheckPolicy(p genicam.AccessCheckPolicy)     { d.Doc.AccessPolicy = p }

// GetGenicamXML returns the raw manifest-table document this device
// was opened with (spec §6 "get_genicam_xml"), as opposed to
// GetGenicam's parsed feature arena.
func (d *Device) GetGenicamXML() []byte { return d.rawXML }

const defaultStreamQueueCapacity = 64

// CreateStream builds the Stream matching however this Device was
// opened (spec §6 "Device: create_stream(callback, user_data)"): a
// software acquisition loop for the Fake interface, or a real GVSP/UVSP
// receive pipeline wired to this device's control channel for resend
// requests (GV only) negotiated over the bootstrap stream-channel
// registers.
func (d *Device) CreateStream(ctx context.Context, callback StreamCallback, userData any) (*Stream, error) {
	cb := wireStreamCallback(callback, userData)
	switch {
	case d.fakeCamera != nil:
		s := fakecamera.NewStream(d.fakeCamera, defaultStreamQueueCapacity)
		s.SetCallback(cb)
		s.StartThread()
		return &Stream{engine: s}, nil

	case d.gvClient != nil:
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
		if err != nil {
			return nil, fmt.Errorf("open stream socket for %s: %w", d.id, err)
		}
		localPort := conn.LocalAddr().(*net.UDPAddr).Port
		if err := d.gvClient.NegotiateStreamChannel(ctx, uint16(localPort)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("negotiate stream channel with %s: %w", d.id, err)
		}
		s := gvsp.New(conn, d.gvClient, gvsp.Config{QueueCapacity: defaultStreamQueueCapacity})
		s.SetCallback(cb)
		s.StartThread()
		return &Stream{engine: s}, nil

	case d.uvcpTransport != nil:
		s := uvsp.New(d.uvcpTransport, uvsp.Config{QueueCapacity: defaultStreamQueueCapacity})
		s.SetCallback(cb)
		s.StartThread()
		return &Stream{engine: s}, nil

	default:
		return nil, fmt.Errorf("device %s has no stream source: %w", d.id, arverr.NotConnected)
	}
}

func wireStreamCallback(callback StreamCallback, userData any) func(streamcore.Event, *arvbuffer.Buffer) {
	if callback == nil {
		return nil
	}
	return func(event streamcore.Event, buf *arvbuffer.Buffer) { callback(event, buf, userData) }
}
