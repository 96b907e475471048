package genicam

import (
	"context"
	"fmt"

	"github.com/aravis-go/aravis/internal/arverr"
)

// IntegerValue reads the current integer value of any node kind that
// can be interpreted as an integer (Integer, Enumeration, register
// nodes, SwissKnife/Converter expressions). It is the single read path
// every other integer-typed accessor funnels through, so caching (spec
// §4.5) only needs to live here and in FloatValue; StringValue reads
// are not cached.
func (d *Document) IntegerValue(ctx context.Context, n *Node) (int64, error) {
	if err := d.checkReadable(n); err != nil {
		return 0, err
	}

	if d.CachePolicy != CacheDisable && n.cache.valid {
		sum := d.closureSum(n)
		if sum == n.cache.closureSum {
			if d.CachePolicy == CacheEnable {
				return n.cache.intValue, nil
			}
			// Debug: fall through to a fresh read and compare.
			fresh, err := d.computeInt(ctx, n)
			if err == nil && fresh != n.cache.intValue {
				d.Logger.Printf("genicam: cache mismatch on %s: cached=%d fresh=%d", n.Name, n.cache.intValue, fresh)
			}
			return fresh, err
		}
	}

	v, err := d.computeInt(ctx, n)
	if err != nil {
		return 0, err
	}
	if d.CachePolicy != CacheDisable {
		n.cache.valid = true
		n.cache.closureSum = d.closureSum(n)
		n.cache.intValue = v
	}
	return v, nil
}

func (d *Document) computeInt(ctx context.Context, n *Node) (int64, error) {
	switch n.Kind {
	case KindInteger, KindEnumEntry:
		if pv, ok := firstProp(n, PropPValue); ok {
			return d.resolveInt(ctx, n, pv, 0)
		}
		pv, ok := firstProp(n, PropValue)
		if !ok {
			return 0, fmt.Errorf("%s has no Value: %w", n.Name, arverr.PropertyNotDefined)
		}
		return d.resolveInt(ctx, n, pv, 0)
	case KindBoolean:
		pv, ok := firstProp(n, PropValue)
		if !ok {
			return 0, fmt.Errorf("%s has no Value: %w", n.Name, arverr.PropertyNotDefined)
		}
		return d.resolveInt(ctx, n, pv, 0)
	case KindEnumeration:
		pv, ok := firstProp(n, PropValue)
		if !ok {
			return 0, fmt.Errorf("%s has no Value: %w", n.Name, arverr.PropertyNotDefined)
		}
		return d.resolveInt(ctx, n, pv, 0)
	case KindCommand:
		return 0, fmt.Errorf("%s is a Command, not readable as integer: %w", n.Name, arverr.WrongFeature)
	case KindIntReg, KindMaskedIntReg:
		return d.readIntRegister(ctx, n)
	case KindIntSwissKnife:
		f, err := d.evaluateExpression(ctx, n, propOrRole(n, PropFormula, PropExpression))
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case KindIntConverter:
		return d.readIntConverter(ctx, n)
	case KindFloatReg, KindFloat, KindSwissKnife, KindConverter:
		f, err := d.FloatValue(ctx, n)
		return int64(f), err
	default:
		return 0, fmt.Errorf("%s: %w", n.Name, arverr.WrongFeature)
	}
}

func propOrRole(n *Node, roles ...PropertyRole) PropertyRole {
	for _, r := range roles {
		if _, ok := firstProp(n, r); ok {
			return r
		}
	}
	return roles[0]
}

// SetIntegerValue writes v, enforcing range and access policies (spec
// §4.5 "Range check", "Access check") and bumping the change counter
// (invalidating dependents, spec P5/P6).
func (d *Document) SetIntegerValue(ctx context.Context, n *Node, v int64) error {
	if err := d.checkWritable(n); err != nil {
		return err
	}
	if err := d.checkIntRange(ctx, n, v); err != nil {
		return err
	}

	switch n.Kind {
	case KindInteger, KindBoolean:
		if pv, ok := firstProp(n, PropPValue); ok {
			target, err := d.NodeByName(pv.Ref)
			if err != nil {
				return err
			}
			if err := d.SetIntegerValue(ctx, target, v); err != nil {
				return err
			}
		} else {
			n.setProp(PropValue, PropertyValue{Literal: fmt.Sprintf("%d", v)})
		}
	case KindEnumeration:
		if !d.enumHasValue(n, v) {
			return fmt.Errorf("%s: value %d not in enumeration: %w", n.Name, v, arverr.EnumEntryNotFound)
		}
		n.setProp(PropValue, PropertyValue{Literal: fmt.Sprintf("%d", v)})
	case KindIntReg, KindMaskedIntReg:
		if err := d.writeIntRegister(ctx, n, v); err != nil {
			return err
		}
	case KindIntConverter:
		if err := d.writeIntConverter(ctx, n, v); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: %w", n.Name, arverr.WrongFeature)
	}
	d.bump(n)
	return nil
}

func (d *Document) checkIntRange(ctx context.Context, n *Node, v int64) error {
	if d.RangePolicy == RangeDisable {
		return nil
	}
	min, max, _, hasBounds, err := d.IntegerBounds(ctx, n)
	if err != nil || !hasBounds {
		return nil
	}
	if v < min || v > max {
		if d.RangePolicy == RangeDebug {
			d.Logger.Printf("genicam: %s value %d outside [%d,%d]", n.Name, v, min, max)
			return nil
		}
		return fmt.Errorf("%s: %d outside [%d,%d]: %w", n.Name, v, min, max, arverr.OutOfRange)
	}
	return nil
}

// IntegerBounds returns (min, max, inc, ok). ok is false when the node
// declares no bounds (e.g. a bare Command).
func (d *Document) IntegerBounds(ctx context.Context, n *Node) (min, max, inc int64, ok bool, err error) {
	inc = 1
	minPV, hasMin := firstProp(n, PropMin)
	if !hasMin {
		minPV, hasMin = firstProp(n, PropPMin)
	}
	maxPV, hasMax := firstProp(n, PropMax)
	if !hasMax {
		maxPV, hasMax = firstProp(n, PropPMax)
	}
	if !hasMin || !hasMax {
		return 0, 0, 1, false, nil
	}
	if min, err = d.resolveInt(ctx, n, minPV, 0); err != nil {
		return 0, 0, 0, false, err
	}
	if max, err = d.resolveInt(ctx, n, maxPV, 0); err != nil {
		return 0, 0, 0, false, err
	}
	if incPV, hasInc := firstProp(n, PropInc); hasInc {
		if inc, err = d.resolveInt(ctx, n, incPV, 0); err != nil {
			return 0, 0, 0, false, err
		}
	}
	return min, max, inc, true, nil
}

func (d *Document) enumHasValue(n *Node, v int64) bool {
	for _, idx := range n.EnumEntries {
		entry := d.node(idx)
		if pv, ok := firstProp(entry, PropValue); ok {
			if iv, err := parseIntLiteral(pv.Literal); err == nil && iv == v {
				return true
			}
		}
	}
	return false
}

// FloatValue mirrors IntegerValue for floating-point nodes.
func (d *Document) FloatValue(ctx context.Context, n *Node) (float64, error) {
	if err := d.checkReadable(n); err != nil {
		return 0, err
	}
	if d.CachePolicy != CacheDisable && n.cache.valid {
		sum := d.closureSum(n)
		if sum == n.cache.closureSum && d.CachePolicy == CacheEnable {
			return n.cache.floatValue, nil
		}
	}
	v, err := d.computeFloat(ctx, n)
	if err != nil {
		return 0, err
	}
	if d.CachePolicy != CacheDisable {
		n.cache.valid = true
		n.cache.closureSum = d.closureSum(n)
		n.cache.floatValue = v
	}
	return v, nil
}

func (d *Document) computeFloat(ctx context.Context, n *Node) (float64, error) {
	switch n.Kind {
	case KindFloat:
		if pv, ok := firstProp(n, PropPValue); ok {
			return d.resolveFloat(ctx, n, pv, 0)
		}
		pv, ok := firstProp(n, PropValue)
		if !ok {
			return 0, fmt.Errorf("%s has no Value: %w", n.Name, arverr.PropertyNotDefined)
		}
		return d.resolveFloat(ctx, n, pv, 0)
	case KindFloatReg:
		return d.readFloatRegister(ctx, n)
	case KindSwissKnife:
		return d.evaluateExpression(ctx, n, propOrRole(n, PropFormula, PropExpression))
	case KindConverter:
		return d.readConverter(ctx, n)
	case KindIntReg, KindMaskedIntReg, KindInteger, KindIntSwissKnife, KindIntConverter, KindEnumeration:
		iv, err := d.IntegerValue(ctx, n)
		return float64(iv), err
	default:
		return 0, fmt.Errorf("%s: %w", n.Name, arverr.WrongFeature)
	}
}

// SetFloatValue writes v to a Float/FloatReg/Converter node.
func (d *Document) SetFloatValue(ctx context.Context, n *Node, v float64) error {
	if err := d.checkWritable(n); err != nil {
		return err
	}
	if d.RangePolicy != RangeDisable {
		if min, max, _, ok, err := d.FloatBounds(ctx, n); err == nil && ok {
			if v < min || v > max {
				if d.RangePolicy == RangeDebug {
					d.Logger.Printf("genicam: %s value %g outside [%g,%g]", n.Name, v, min, max)
				} else {
					return fmt.Errorf("%s: %g outside [%g,%g]: %w", n.Name, v, min, max, arverr.OutOfRange)
				}
			}
		}
	}
	switch n.Kind {
	case KindFloat:
		if pv, ok := firstProp(n, PropPValue); ok {
			target, err := d.NodeByName(pv.Ref)
			if err != nil {
				return err
			}
			if err := d.SetFloatValue(ctx, target, v); err != nil {
				return err
			}
		} else {
			n.setProp(PropValue, PropertyValue{Literal: fmt.Sprintf("%g", v)})
		}
	case KindFloatReg:
		if err := d.writeFloatRegister(ctx, n, v); err != nil {
			return err
		}
	case KindConverter:
		if err := d.writeConverter(ctx, n, v); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: %w", n.Name, arverr.WrongFeature)
	}
	d.bump(n)
	return nil
}

func (d *Document) FloatBounds(ctx context.Context, n *Node) (min, max, inc float64, ok bool, err error) {
	minPV, hasMin := firstProp(n, PropMin)
	maxPV, hasMax := firstProp(n, PropMax)
	if !hasMin || !hasMax {
		return 0, 0, 0, false, nil
	}
	if min, err = d.resolveFloat(ctx, n, minPV, 0); err != nil {
		return 0, 0, 0, false, err
	}
	if max, err = d.resolveFloat(ctx, n, maxPV, 0); err != nil {
		return 0, 0, 0, false, err
	}
	return min, max, 0, true, nil
}

// BooleanValue/SetBooleanValue project onto the integer accessors (spec
// models Boolean as a 0/1-valued node).
func (d *Document) BooleanValue(ctx context.Context, n *Node) (bool, error) {
	v, err := d.IntegerValue(ctx, n)
	return v != 0, err
}

func (d *Document) SetBooleanValue(ctx context.Context, n *Node, v bool) error {
	iv := int64(0)
	if v {
		iv = 1
	}
	return d.SetIntegerValue(ctx, n, iv)
}

// StringValue reads String/StringReg nodes, and (for convenience
// accessors like dup_available_enumeration_values_as_strings) the
// current name of an Enumeration's selected entry.
func (d *Document) StringValue(ctx context.Context, n *Node) (string, error) {
	if err := d.checkReadable(n); err != nil {
		return "", err
	}
	switch n.Kind {
	case KindString:
		pv, ok := firstProp(n, PropValue)
		if !ok {
			return "", fmt.Errorf("%s: %w", n.Name, arverr.PropertyNotDefined)
		}
		if pv.Ref != "" {
			target, err := d.NodeByName(pv.Ref)
			if err != nil {
				return "", err
			}
			return d.StringValue(ctx, target)
		}
		return pv.Literal, nil
	case KindStringReg:
		return d.readStringRegister(ctx, n)
	case KindEnumeration:
		v, err := d.IntegerValue(ctx, n)
		if err != nil {
			return "", err
		}
		for _, idx := range n.EnumEntries {
			entry := d.node(idx)
			if pv, ok := firstProp(entry, PropValue); ok {
				if iv, perr := parseIntLiteral(pv.Literal); perr == nil && iv == v {
					return entry.Name, nil
				}
			}
		}
		return "", fmt.Errorf("%s: %w", n.Name, arverr.EnumEntryNotFound)
	default:
		return "", fmt.Errorf("%s: %w", n.Name, arverr.GetAsStringUndefined)
	}
}

func (d *Document) SetStringValue(ctx context.Context, n *Node, s string) error {
	if err := d.checkWritable(n); err != nil {
		return err
	}
	switch n.Kind {
	case KindString:
		n.setProp(PropValue, PropertyValue{Literal: s})
	case KindStringReg:
		if err := d.writeStringRegister(ctx, n, s); err != nil {
			return err
		}
	case KindEnumeration:
		for _, idx := range n.EnumEntries {
			entry := d.node(idx)
			if entry.Name == s {
				pv, _ := firstProp(entry, PropValue)
				iv, err := parseIntLiteral(pv.Literal)
				if err != nil {
					return err
				}
				return d.SetIntegerValue(ctx, n, iv)
			}
		}
		return fmt.Errorf("%s: %q: %w", n.Name, s, arverr.EnumEntryNotFound)
	default:
		return fmt.Errorf("%s: %w", n.Name, arverr.SetFromStringUndefined)
	}
	d.bump(n)
	return nil
}

// AvailableEnumerationValues returns the (value, name) pairs of entries
// whose pIsAvailable/pIsImplemented both evaluate true (spec §6
// "dup_available_enumeration_values").
func (d *Document) AvailableEnumerationValues(n *Node) ([]int64, []string, error) {
	if n.Kind != KindEnumeration {
		return nil, nil, fmt.Errorf("%s: %w", n.Name, arverr.WrongFeature)
	}
	if len(n.EnumEntries) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", n.Name, arverr.EmptyEnumeration)
	}
	var values []int64
	var names []string
	for _, idx := range n.EnumEntries {
		entry := d.node(idx)
		if !d.IsAvailable(entry) || !d.IsImplemented(entry) {
			continue
		}
		pv, ok := firstProp(entry, PropValue)
		if !ok {
			continue
		}
		iv, err := parseIntLiteral(pv.Literal)
		if err != nil {
			continue
		}
		values = append(values, iv)
		names = append(names, entry.Name)
	}
	return values, names, nil
}

// ExecuteCommand writes CommandValue (default 1) to the IntReg or
// MaskedIntReg named by the command's pValue (spec §4.5 "Command"). A
// command without a pValue, or whose pValue names another kind of
// node, writes nothing; its change count is still bumped.
func (d *Document) ExecuteCommand(ctx context.Context, n *Node) error {
	if n.Kind != KindCommand {
		return fmt.Errorf("%s: %w", n.Name, arverr.WrongFeature)
	}
	if err := d.checkWritable(n); err != nil {
		return err
	}
	cmdValue := int64(1)
	if pv, ok := firstProp(n, PropCommandValue); ok {
		v, err := d.resolveInt(ctx, n, pv, 0)
		if err == nil {
			cmdValue = v
		}
	}
	var target *Node
	if pv, ok := firstProp(n, PropPValue); ok {
		t, err := d.NodeByName(pv.Ref)
		if err != nil {
			return err
		}
		target = t
	} else {
		target = n
	}
	if target.Kind == KindIntReg || target.Kind == KindMaskedIntReg {
		if err := d.writeIntRegister(ctx, target, cmdValue); err != nil {
			return err
		}
	}
	d.bump(n)
	return nil
}
