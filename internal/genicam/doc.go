// Package genicam implements the GenICam feature engine (spec §4.5,
// L6): an XML-defined, arena-of-nodes interpreter that translates
// symbolic feature accesses into device register reads/writes. The
// arena owns all nodes; cross-references are resolved by name and
// cached as indices, never as owning pointers (spec §3 "GenICam node
// arena", Design Notes "Cyclic references").
//
// Concurrency: all access to a Document is serialized by a single
// internal lock held for the duration of one feature operation,
// including any register I/O it performs (spec §5).
package genicam

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/aravis-go/aravis/internal/arverr"
	"github.com/aravis-go/aravis/internal/port"
)

// Kind is the tagged-variant discriminator for a Node (spec §3).
type Kind int

const (
	KindCategory Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindString
	KindEnumeration
	KindEnumEntry
	KindCommand
	KindIntReg
	KindMaskedIntReg
	KindFloatReg
	KindStringReg
	KindStructReg
	KindIntSwissKnife
	KindSwissKnife
	KindIntConverter
	KindConverter
	KindGroup
	KindPort
	KindRegisterDescription
)

type Visibility int

const (
	VisibilityBeginner Visibility = iota
	VisibilityExpert
	VisibilityGuru
	VisibilityInvisible
)

type AccessMode int

const (
	AccessRO AccessMode = iota
	AccessWO
	AccessRW
)

type NameSpace int

const (
	NameSpaceStandard NameSpace = iota
	NameSpaceCustom
)

// PropertyRole names a property-child's relationship to its owning
// feature node (spec §3 "Relationships are expressed as property
// nodes... named by role").
type PropertyRole string

const (
	PropValue          PropertyRole = "Value"
	PropPValue         PropertyRole = "pValue"
	PropAddress        PropertyRole = "Address"
	PropPAddress       PropertyRole = "pAddress"
	PropLength         PropertyRole = "Length"
	PropPLength        PropertyRole = "pLength"
	PropMin            PropertyRole = "Min"
	PropMax            PropertyRole = "Max"
	PropInc            PropertyRole = "Inc"
	PropPMin           PropertyRole = "pMin"
	PropPMax           PropertyRole = "pMax"
	PropPInc           PropertyRole = "pInc"
	PropPSelected      PropertyRole = "pSelected"
	PropPInvalidator   PropertyRole = "pInvalidator"
	PropPIsImplemented PropertyRole = "pIsImplemented"
	PropPIsAvailable   PropertyRole = "pIsAvailable"
	PropPIsLocked      PropertyRole = "pIsLocked"
	PropFormula        PropertyRole = "Formula"
	PropFormulaTo       PropertyRole = "FormulaTo"
	PropFormulaFrom     PropertyRole = "FormulaFrom"
	PropExpression      PropertyRole = "Expression"
	PropConstant        PropertyRole = "Constant"
	PropVariable        PropertyRole = "Variable"
	PropPVariable       PropertyRole = "pVariable"
	PropIndex           PropertyRole = "Index"
	PropPIndex          PropertyRole = "pIndex"
	PropValueIndexed    PropertyRole = "ValueIndexed"
	PropValueDefault    PropertyRole = "ValueDefault"
	PropSign            PropertyRole = "Sign"
	PropEndianness      PropertyRole = "Endianness"
	PropLSB             PropertyRole = "LSB"
	PropMSB             PropertyRole = "MSB"
	PropBit             PropertyRole = "Bit"
	PropCachable        PropertyRole = "Cachable"
	PropPollingTime     PropertyRole = "PollingTime"
	PropCommandValue    PropertyRole = "CommandValue"
	PropUnit            PropertyRole = "Unit"
	PropRepresentation  PropertyRole = "Representation"
	PropDisplayNotation PropertyRole = "DisplayNotation"
	PropDisplayPrecision PropertyRole = "DisplayPrecision"
	PropStreamable      PropertyRole = "Streamable"
	PropOnValue         PropertyRole = "OnValue"
	PropOffValue        PropertyRole = "OffValue"
	PropAccessMode      PropertyRole = "AccessMode"
	PropImposedAccessMode PropertyRole = "ImposedAccessMode"
	PropPPort           PropertyRole = "pPort"
	PropPFeature        PropertyRole = "pFeature"
)

// RegisterCachePolicy controls feature-value caching (spec §4.5).
type RegisterCachePolicy int

const (
	CacheDisable RegisterCachePolicy = iota
	CacheEnable
	CacheDebug
)

// RangeCheckPolicy controls min/max enforcement on writes (spec §4.5).
type RangeCheckPolicy int

const (
	RangeDisable RangeCheckPolicy = iota
	RangeEnable
	RangeDebug
)

// AccessCheckPolicy controls effective-access-mode enforcement (spec §4.5).
type AccessCheckPolicy int

const (
	AccessCheckDisable AccessCheckPolicy = iota
	AccessCheckEnable
)

// maxIndirectionDepth terminates pathological pValue/pAddress chains
// (spec §3 invariant: "no cycles through P-value chains during
// evaluation").
const maxIndirectionDepth = 32

// Node is the tagged-variant feature/property node of spec §3.
type Node struct {
	Index       int
	Name        string
	DisplayName string
	ToolTip     string
	Description string
	Visibility  Visibility
	AccessMode  AccessMode
	NameSpace   NameSpace
	IsDeprecated bool
	Streamable  bool
	ChangeCount uint64

	Kind Kind

	// Props holds named property children, by role, storing either a
	// literal text value or a reference to another node's name; both
	// are resolved lazily by the Document (so parsing never needs
	// forward references to exist yet).
	Props map[PropertyRole][]PropertyValue

	// EnumEntries lists the entries of an Enumeration node, in document order.
	EnumEntries []int

	// Selects lists the feature names this node selects, populated when
	// this node carries pSelected children (spec §4.5 "Selector semantics").
	Selects []string

	cache cachedValue
	port  port.Port // resolved pPort override, nil means device port
}

// PropertyValue is either a literal (Literal != "") or a reference to
// another node by name (Ref != "").
type PropertyValue struct {
	Literal string
	Ref     string
}

type cachedValue struct {
	valid       bool
	closureSum  uint64
	intValue    int64
	floatValue  float64
	stringValue string
}

// Document is the flat node arena of spec §3 "GenICam node arena".
type Document struct {
	mu sync.Mutex

	nodes  []*Node
	byName map[string]int

	devicePort port.Port

	CachePolicy  RegisterCachePolicy
	RangePolicy  RangeCheckPolicy
	AccessPolicy AccessCheckPolicy

	Logger *log.Logger
}

// NewDocument creates an empty arena bound to a device port. XML
// loading (ParseXML) must happen before any concurrent access, per
// spec's Design Notes ("XML load happens before any concurrent access
// is possible").
func NewDocument(devicePort port.Port, logger *log.Logger) *Document {
	if logger == nil {
		logger = log.Default()
	}
	return &Document{
		nodes:      []*Node{},
		byName:     map[string]int{},
		devicePort: devicePort,
		Logger:     logger,
	}
}

// addNode inserts a fresh node, returning its arena index.
func (d *Document) addNode(n *Node) int {
	n.Index = len(d.nodes)
	if n.Props == nil {
		n.Props = map[PropertyRole][]PropertyValue{}
	}
	d.nodes = append(d.nodes, n)
	d.byName[n.Name] = n.Index
	return n.Index
}

// NodeByName looks a node up by symbolic name (spec §3 "addressed by
// symbolic names").
func (d *Document) NodeByName(name string) (*Node, error) {
	idx, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, arverr.NodeNotFound)
	}
	return d.nodes[idx], nil
}

func (d *Document) node(idx int) *Node { return d.nodes[idx] }

// IsImplemented/IsAvailable check the pIsImplemented/pIsAvailable
// properties, defaulting to true when absent (spec §6 Device
// "is_feature_available/implemented").
func (d *Document) IsImplemented(n *Node) bool {
	return d.boolPropOrDefault(n, PropPIsImplemented, true)
}

func (d *Document) IsAvailable(n *Node) bool {
	return d.boolPropOrDefault(n, PropPIsAvailable, true)
}

func (d *Document) isLocked(n *Node) bool {
	return d.boolPropOrDefault(n, PropPIsLocked, false)
}

func (d *Document) boolPropOrDefault(n *Node, role PropertyRole, def bool) bool {
	vals, ok := n.Props[role]
	if !ok || len(vals) == 0 {
		return def
	}
	v, err := d.resolveInt(context.Background(), n, vals[0], 0)
	if err != nil {
		return def
	}
	return v != 0
}

// EffectiveAccessMode intersects the declared access mode with
// pIsLocked/pIsAvailable/pIsImplemented (spec §4.5 "Access check").
func (d *Document) EffectiveAccessMode(n *Node) AccessMode {
	if !d.IsImplemented(n) || !d.IsAvailable(n) {
		return AccessRO
	}
	if d.isLocked(n) && n.AccessMode == AccessRW {
		return AccessRO
	}
	return n.AccessMode
}

func (d *Document) checkReadable(n *Node) error {
	mode := d.EffectiveAccessMode(n)
	if d.AccessPolicy == AccessCheckEnable && mode == AccessWO {
		return fmt.Errorf("%s is write-only: %w", n.Name, arverr.WriteOnly)
	}
	return nil
}

func (d *Document) checkWritable(n *Node) error {
	mode := d.EffectiveAccessMode(n)
	if d.AccessPolicy == AccessCheckEnable && mode == AccessRO {
		return fmt.Errorf("%s is read-only: %w", n.Name, arverr.ReadOnly)
	}
	return nil
}

// bump increments a node's change count and propagates selector
// invalidation: if n is a selector, every feature it selects is also
// bumped, so their caches (keyed on their own change count) miss on the
// next read (spec P5, §4.5 "Selector semantics").
func (d *Document) bump(n *Node) {
	n.ChangeCount++
	n.cache.valid = false
	for _, name := range n.Selects {
		if sn, err := d.NodeByName(name); err == nil {
			sn.ChangeCount++
			sn.cache.valid = false
		}
	}
}

// closureSum hashes the change counts of a node's dependency closure:
// itself plus any node its pAddress/pIndex/pValue/pSelected properties
// reference (spec §4.5 "Caching").
func (d *Document) closureSum(n *Node) uint64 {
	sum := n.ChangeCount
	for _, role := range []PropertyRole{PropPAddress, PropPIndex, PropPValue, PropPSelected} {
		for _, pv := range n.Props[role] {
			if pv.Ref == "" {
				continue
			}
			if target, err := d.NodeByName(pv.Ref); err == nil {
				sum = sum*31 + target.ChangeCount
			}
		}
	}
	return sum
}

// Lock/Unlock expose the single device-wide critical section so the
// device and camera facades can serialize a register I/O operation
// together with the feature access that triggered it (spec §5).
func (d *Document) Lock()   { d.mu.Lock() }
func (d *Document) Unlock() { d.mu.Unlock() }
