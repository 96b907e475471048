package genicam

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// elementKind maps a GenApi XML element name to the Kind it produces.
// Elements absent from this map (Node, AccessRule, pAlias, ...) are
// skipped structurally but their children are still walked so nested
// property/metadata elements reach their owning feature.
var elementKind = map[string]Kind{
	"Category":           KindCategory,
	"Integer":            KindInteger,
	"Float":              KindFloat,
	"Boolean":            KindBoolean,
	"String":             KindString,
	"Enumeration":        KindEnumeration,
	"EnumEntry":          KindEnumEntry,
	"Command":            KindCommand,
	"IntReg":             KindIntReg,
	"MaskedIntReg":       KindMaskedIntReg,
	"FloatReg":           KindFloatReg,
	"StringReg":          KindStringReg,
	"StructReg":          KindStructReg,
	"StructEntry":        KindMaskedIntReg,
	"IntSwissKnife":      KindIntSwissKnife,
	"SwissKnife":         KindSwissKnife,
	"IntConverter":       KindIntConverter,
	"Converter":          KindConverter,
	"Group":              KindGroup,
	"Port":               KindPort,
	"RegisterDescription": KindRegisterDescription,
}

// propertyElement maps a child element name to the PropertyRole it
// populates (spec §3 "Relationships are expressed as property nodes").
var propertyElement = map[string]PropertyRole{
	"Value":           PropValue,
	"pValue":          PropPValue,
	"Address":         PropAddress,
	"pAddress":        PropPAddress,
	"Length":          PropLength,
	"pLength":         PropPLength,
	"Min":             PropMin,
	"Max":             PropMax,
	"Inc":             PropInc,
	"pMin":            PropPMin,
	"pMax":            PropPMax,
	"pInc":            PropPInc,
	"pSelected":       PropPSelected,
	"pInvalidator":    PropPInvalidator,
	"pIsImplemented":  PropPIsImplemented,
	"pIsAvailable":    PropPIsAvailable,
	"pIsLocked":       PropPIsLocked,
	"Formula":         PropFormula,
	"FormulaTo":       PropFormulaTo,
	"FormulaFrom":     PropFormulaFrom,
	"Expression":      PropExpression,
	"Constant":        PropConstant,
	"Variable":        PropVariable,
	"pVariable":       PropPVariable,
	"Index":           PropIndex,
	"pIndex":          PropPIndex,
	"ValueIndexed":    PropValueIndexed,
	"ValueDefault":    PropValueDefault,
	"Sign":            PropSign,
	"Endianness":      PropEndianness,
	"LSB":             PropLSB,
	"MSB":             PropMSB,
	"Bit":             PropBit,
	"Cachable":        PropCachable,
	"PollingTime":     PropPollingTime,
	"CommandValue":    PropCommandValue,
	"Unit":            PropUnit,
	"Representation":  PropRepresentation,
	"DisplayNotation": PropDisplayNotation,
	"Streamable":      PropStreamable,
	"OnValue":         PropOnValue,
	"OffValue":        PropOffValue,
	"pPort":           PropPPort,
	"pFeature":        PropPFeature,
}

// refProperties are properties whose text content names another
// feature rather than holding a literal value.
var refProperties = map[PropertyRole]bool{
	PropPValue: true, PropPAddress: true, PropPLength: true,
	PropPMin: true, PropPMax: true, PropPInc: true,
	PropPSelected: true, PropPInvalidator: true,
	PropPIsImplemented: true, PropPIsAvailable: true, PropPIsLocked: true,
	PropPIndex: true, PropPPort: true, PropPFeature: true,
}

// metaElement is the set of simple leaf elements that set a field on
// Node directly rather than a Props entry.
var metaElement = map[string]bool{
	"ToolTip": true, "Description": true, "DisplayName": true,
	"Visibility": true, "AccessMode": true, "pIsDeprecated": true,
	"Streamable": true,
}

// xmlFrame is one open element on the parse stack.
type xmlFrame struct {
	element string
	node    *Node  // set when this element itself declared a feature node
	role    PropertyRole
	isMeta  bool
	isProp  bool
	text    strings.Builder
}

// ParseXML builds a Document's node arena from a GenApi XML feature
// description (spec §4.5, L6 "GenICam node arena"). It is a
// single-pass SAX-style walk over xml.Decoder tokens: no intermediate
// DOM is materialized, matching the arena-not-tree model the rest of
// the package assumes.
func (d *Document) ParseXML(r io.Reader) error {
	dec := xml.NewDecoder(r)
	var stack []*xmlFrame
	pendingSelects := map[string][]string{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parsing GenApi xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local

			if metaElement[name] {
				stack = append(stack, &xmlFrame{element: name, isMeta: true})
				continue
			}
			if role, isProp := propertyElement[name]; isProp {
				stack = append(stack, &xmlFrame{element: name, role: role, isProp: true})
				continue
			}

			kind, isFeature := elementKind[name]
			if !isFeature {
				stack = append(stack, &xmlFrame{element: name})
				continue
			}

			n := &Node{Kind: kind, Props: map[PropertyRole][]PropertyValue{}}
			for _, a := range t.Attr {
				switch a.Name.Local {
				case "Name":
					n.Name = a.Value
				case "NameSpace":
					if a.Value == "Custom" {
						n.NameSpace = NameSpaceCustom
					}
				}
			}
			d.addNode(n)
			if parent := currentFeature(stack); parent != nil && name == "EnumEntry" {
				parent.EnumEntries = append(parent.EnumEntries, n.Index)
			}
			stack = append(stack, &xmlFrame{element: name, node: n})

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			text := strings.TrimSpace(top.text.String())

			switch {
			case top.isProp:
				if parent := currentFeature(stack); parent != nil {
					applyProperty(parent, top.role, text, pendingSelects)
				}
			case top.isMeta:
				if parent := currentFeature(stack); parent != nil {
					applyMeta(parent, top.element, text)
				}
			}

		default:
			// Comment, ProcInst, Directive: ignored.
		}
	}

	for selector, selected := range pendingSelects {
		sn, err := d.NodeByName(selector)
		if err != nil {
			continue
		}
		sn.Selects = append(sn.Selects, selected...)
	}
	return nil
}

// currentFeature returns the nearest enclosing feature node on the
// stack, i.e. the node that property/meta elements on top of the stack
// belong to.
func currentFeature(stack []*xmlFrame) *Node {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].node != nil {
			return stack[i].node
		}
	}
	return nil
}

// applyProperty records a property's text (literal or reference) on n,
// and records selector relationships for the post-pass (spec §4.5
// "Selector semantics": a pSelected child names a feature this node
// selects, invalidating it on write).
func applyProperty(n *Node, role PropertyRole, text string, pendingSelects map[string][]string) {
	pv := PropertyValue{}
	if refProperties[role] {
		pv.Ref = text
	} else {
		pv.Literal = text
	}
	switch role {
	case PropAddress, PropPAddress:
		n.appendProp(role, pv)
	case PropPSelected:
		n.appendProp(role, pv)
		pendingSelects[n.Name] = append(pendingSelects[n.Name], text)
	default:
		n.setProp(role, pv)
	}
}

func applyMeta(n *Node, element, text string) {
	switch element {
	case "ToolTip":
		n.ToolTip = text
	case "Description":
		n.Description = text
	case "DisplayName":
		n.DisplayName = text
	case "Visibility":
		switch text {
		case "Beginner":
			n.Visibility = VisibilityBeginner
		case "Expert":
			n.Visibility = VisibilityExpert
		case "Guru":
			n.Visibility = VisibilityGuru
		case "Invisible":
			n.Visibility = VisibilityInvisible
		}
	case "AccessMode":
		switch text {
		case "RO":
			n.AccessMode = AccessRO
		case "WO":
			n.AccessMode = AccessWO
		case "RW":
			n.AccessMode = AccessRW
		}
	case "pIsDeprecated":
		n.IsDeprecated = text == "Yes" || text == "true" || text == "1"
	case "Streamable":
		n.Streamable = text == "Yes" || text == "true" || text == "1"
	}
}
