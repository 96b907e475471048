package genicam

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aravis-go/aravis/internal/arverr"
)

// resolveInt evaluates a single property value (literal or node
// reference) as an integer, following one level of indirection through
// the referenced node's own Value(). depth guards against pathological
// P-value chains (spec §3 invariant, maxIndirectionDepth).
func (d *Document) resolveInt(ctx context.Context, owner *Node, pv PropertyValue, depth int) (int64, error) {
	if depth > maxIndirectionDepth {
		return 0, fmt.Errorf("property indirection depth exceeded on %s: %w", owner.Name, arverr.InvalidPValue)
	}
	if pv.Literal != "" {
		return parseIntLiteral(pv.Literal)
	}
	if pv.Ref == "" {
		return 0, fmt.Errorf("%s: %w", owner.Name, arverr.PValueNotDefined)
	}
	target, err := d.NodeByName(pv.Ref)
	if err != nil {
		return 0, err
	}
	return d.IntegerValue(ctx, target)
}

// resolveFloat mirrors resolveInt for floating point properties.
func (d *Document) resolveFloat(ctx context.Context, owner *Node, pv PropertyValue, depth int) (float64, error) {
	if depth > maxIndirectionDepth {
		return 0, fmt.Errorf("property indirection depth exceeded on %s: %w", owner.Name, arverr.InvalidPValue)
	}
	if pv.Literal != "" {
		return strconv.ParseFloat(strings.TrimSpace(pv.Literal), 64)
	}
	if pv.Ref == "" {
		return 0, fmt.Errorf("%s: %w", owner.Name, arverr.PValueNotDefined)
	}
	target, err := d.NodeByName(pv.Ref)
	if err != nil {
		return 0, err
	}
	return d.FloatValue(ctx, target)
}

func parseIntLiteral(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return int64(v), err
	}
	return strconv.ParseInt(s, 10, 64)
}

// firstProp returns the single value stored for role, if any.
func firstProp(n *Node, role PropertyRole) (PropertyValue, bool) {
	vals, ok := n.Props[role]
	if !ok || len(vals) == 0 {
		return PropertyValue{}, false
	}
	return vals[0], true
}

// sumIntProps sums every value stored under role (spec §4.5 "Address
// properties (there may be several) are summed").
func (d *Document) sumIntProps(ctx context.Context, n *Node, role PropertyRole) (int64, error) {
	var sum int64
	for _, pv := range n.Props[role] {
		v, err := d.resolveInt(ctx, n, pv, 0)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum, nil
}

// setProp overrides the (single-valued) property for role, matching
// the XML loader's "duplicates override" rule for most roles. Address
// and pAddress are accumulated instead (see appendProp).
func (n *Node) setProp(role PropertyRole, v PropertyValue) {
	n.Props[role] = []PropertyValue{v}
}

// appendProp accumulates a (possibly repeated) property value, used for
// Address/pAddress which the spec allows to repeat and sum.
func (n *Node) appendProp(role PropertyRole, v PropertyValue) {
	n.Props[role] = append(n.Props[role], v)
}
