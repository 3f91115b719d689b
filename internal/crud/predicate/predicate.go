// Package predicate provides a symbolic predicate tree over entity members.
// Trees evaluate in memory and lower to parameterised SQL WHERE clauses.
package predicate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotLowerable is returned when a node has no SQL representation
	ErrNotLowerable = errors.New("predicate cannot be lowered to SQL")

	// ErrIncomparable is returned when two values have no common ordering
	ErrIncomparable = errors.New("values are not comparable")

	// ErrInvalidNode is returned for malformed trees
	ErrInvalidNode = errors.New("invalid predicate node")
)

// Kind identifies the node variant
type Kind int

const (
	KindConst Kind = iota
	KindEqual
	KindNotEqual
	KindLessThan
	KindLessThanOrEqual
	KindGreaterThan
	KindGreaterThanOrEqual
	KindIn
	KindContains
	KindIsNull
	KindNotNull
	KindTrue
	KindFalse
	KindAnd
	KindOr
	KindNot
	KindCustom
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindConst:
		return "CONST"
	case KindEqual:
		return "="
	case KindNotEqual:
		return "!="
	case KindLessThan:
		return "<"
	case KindLessThanOrEqual:
		return "<="
	case KindGreaterThan:
		return ">"
	case KindGreaterThanOrEqual:
		return ">="
	case KindIn:
		return "IN"
	case KindContains:
		return "CONTAINS"
	case KindIsNull:
		return "IS NULL"
	case KindNotNull:
		return "IS NOT NULL"
	case KindTrue:
		return "IS TRUE"
	case KindFalse:
		return "IS FALSE"
	case KindAnd:
		return "AND"
	case KindOr:
		return "OR"
	case KindNot:
		return "NOT"
	case KindCustom:
		return "CUSTOM"
	default:
		return "UNKNOWN"
	}
}

// Operand is the entity-side leaf of a comparison. Column is empty when
// the operand is an opaque accessor with no storage representation.
type Operand struct {
	Name   string
	Column string
	Get    func(entity any) (any, error)
}

// Lowerable reports whether the operand maps onto a storage column
func (o Operand) Lowerable() bool {
	return o.Column != ""
}

func (o Operand) value(entity any) (any, error) {
	if o.Get == nil {
		return nil, fmt.Errorf("%w: operand %q has no accessor", ErrInvalidNode, o.Name)
	}
	return o.Get(entity)
}

// Node is one element of a predicate tree. A nil *Node matches everything.
type Node struct {
	Kind     Kind
	Operand  Operand
	Value    any
	Values   []any
	Children []*Node
	Const    bool
	Label    string
	Fn       func(entity any) (bool, error)
}

// Const returns a node that always evaluates to b
func Const(b bool) *Node {
	return &Node{Kind: KindConst, Const: b}
}

// Equal matches entities whose operand equals v. A nil v means IS NULL.
func Equal(o Operand, v any) *Node {
	return &Node{Kind: KindEqual, Operand: o, Value: v}
}

// NotEqual matches entities whose operand differs from v
func NotEqual(o Operand, v any) *Node {
	return &Node{Kind: KindNotEqual, Operand: o, Value: v}
}

// LessThan matches operand < v
func LessThan(o Operand, v any) *Node {
	return &Node{Kind: KindLessThan, Operand: o, Value: v}
}

// LessThanOrEqual matches operand <= v
func LessThanOrEqual(o Operand, v any) *Node {
	return &Node{Kind: KindLessThanOrEqual, Operand: o, Value: v}
}

// GreaterThan matches operand > v
func GreaterThan(o Operand, v any) *Node {
	return &Node{Kind: KindGreaterThan, Operand: o, Value: v}
}

// GreaterThanOrEqual matches operand >= v
func GreaterThanOrEqual(o Operand, v any) *Node {
	return &Node{Kind: KindGreaterThanOrEqual, Operand: o, Value: v}
}

// In matches entities whose operand equals one of values
func In(o Operand, values []any) *Node {
	return &Node{Kind: KindIn, Operand: o, Values: values}
}

// Contains matches string operands containing v, or slice operands
// holding an element equal to v
func Contains(o Operand, v any) *Node {
	return &Node{Kind: KindContains, Operand: o, Value: v}
}

// IsNull matches nil operands
func IsNull(o Operand) *Node {
	return &Node{Kind: KindIsNull, Operand: o}
}

// NotNull matches non-nil operands
func NotNull(o Operand) *Node {
	return &Node{Kind: KindNotNull, Operand: o}
}

// True matches boolean operands that are true
func True(o Operand) *Node {
	return &Node{Kind: KindTrue, Operand: o}
}

// False matches boolean operands that are false
func False(o Operand) *Node {
	return &Node{Kind: KindFalse, Operand: o}
}

// And combines nodes; nil children are skipped
func And(nodes ...*Node) *Node {
	return combine(KindAnd, nodes)
}

// Or combines nodes; nil children are skipped
func Or(nodes ...*Node) *Node {
	return combine(KindOr, nodes)
}

func combine(kind Kind, nodes []*Node) *Node {
	children := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		// flatten same-kind groups
		if n.Kind == kind {
			children = append(children, n.Children...)
			continue
		}
		children = append(children, n)
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &Node{Kind: kind, Children: children}
}

// Not negates n. The negation of the match-all nil node matches nothing.
func Not(n *Node) *Node {
	if n == nil {
		return Const(false)
	}
	if n.Kind == KindNot && len(n.Children) == 1 {
		return n.Children[0]
	}
	return &Node{Kind: KindNot, Children: []*Node{n}}
}

// Custom wraps an opaque predicate. It evaluates in memory only.
func Custom(label string, fn func(entity any) (bool, error)) *Node {
	return &Node{Kind: KindCustom, Label: label, Fn: fn}
}

// Lowerable reports whether the whole tree can be rendered as SQL
func (n *Node) Lowerable() bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case KindCustom:
		return false
	case KindConst:
		return true
	case KindAnd, KindOr, KindNot:
		for _, c := range n.Children {
			if !c.Lowerable() {
				return false
			}
		}
		return true
	default:
		return n.Operand.Lowerable()
	}
}

// String renders the tree for logs
func (n *Node) String() string {
	if n == nil {
		return "TRUE"
	}
	switch n.Kind {
	case KindConst:
		if n.Const {
			return "TRUE"
		}
		return "FALSE"
	case KindAnd, KindOr:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " "+n.Kind.String()+" ") + ")"
	case KindNot:
		return "NOT " + n.Children[0].String()
	case KindCustom:
		if n.Label != "" {
			return "custom(" + n.Label + ")"
		}
		return "custom"
	case KindIsNull, KindNotNull, KindTrue, KindFalse:
		return n.Operand.Name + " " + n.Kind.String()
	case KindIn:
		return fmt.Sprintf("%s IN %v", n.Operand.Name, n.Values)
	default:
		return fmt.Sprintf("%s %s %v", n.Operand.Name, n.Kind.String(), n.Value)
	}
}
