// Package sorter provides ordering strategies resolved per request: plain
// chains, conditional branches, switch dispatch and table dispatch.
package sorter

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// ErrInvalid is returned for a sorter assembled from nil parts
var ErrInvalid = errors.New("invalid sorter")

// Sorter resolves the ordering for one request. A nil result means the
// storage order is kept.
type Sorter interface {
	Orders(req any) ([]predicate.Order, error)
}

// Validator is implemented by sorters that can report a broken definition
// before they are asked for an ordering
type Validator interface {
	Validate() error
}

// Validate checks s when it is a Validator
func Validate(s Sorter) error {
	if v, ok := s.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Func adapts a function to Sorter
type Func func(req any) ([]predicate.Order, error)

// Orders implements Sorter
func (f Func) Orders(req any) ([]predicate.Order, error) {
	return f(req)
}

// Control reads a control value from the request
type Control func(req any) any

// ControlFunc adapts a typed request accessor
func ControlFunc[R any, V any](fn func(req R) V) Control {
	return func(req any) any {
		typed, ok := typeinfo.To[R](req)
		if !ok {
			return nil
		}
		return fn(typed)
	}
}

// ControlMember reads a request field by name; a missing field reads as nil
func ControlMember(path string) Control {
	k := key.Field(path)
	return func(req any) any {
		v, err := k.Value(req)
		if err != nil {
			return nil
		}
		return v
	}
}

// Direction decides whether a column sorts descending for a request
type Direction func(req any) bool

// Ascending is the fixed ascending direction
func Ascending() Direction {
	return func(any) bool { return false }
}

// Descending is the fixed descending direction
func Descending() Direction {
	return func(any) bool { return true }
}

// DirectionFunc reads the direction from a typed request
func DirectionFunc[R any](descending func(req R) bool) Direction {
	return func(req any) bool {
		typed, ok := typeinfo.To[R](req)
		return ok && descending(typed)
	}
}

// Chain is a fixed ordering with then-by criteria
type Chain struct {
	orders []predicate.Order
}

// By starts an ascending chain
func By(k key.Key) *Chain {
	return &Chain{orders: []predicate.Order{predicate.Asc(k.Operand())}}
}

// ByDescending starts a descending chain
func ByDescending(k key.Key) *Chain {
	return &Chain{orders: []predicate.Order{predicate.Desc(k.Operand())}}
}

// ThenBy appends an ascending criterion
func (c *Chain) ThenBy(k key.Key) *Chain {
	c.orders = append(c.orders, predicate.Asc(k.Operand()))
	return c
}

// ThenByDescending appends a descending criterion
func (c *Chain) ThenByDescending(k key.Key) *Chain {
	c.orders = append(c.orders, predicate.Desc(k.Operand()))
	return c
}

// Orders implements Sorter
func (c *Chain) Orders(any) ([]predicate.Order, error) {
	out := make([]predicate.Order, len(c.orders))
	copy(out, c.orders)
	return out, nil
}

type branch struct {
	cond   func(req any) bool
	sorter Sorter
}

// Conditional picks the first branch whose condition holds
type Conditional struct {
	branches  []branch
	otherwise Sorter
	err       error
}

// When starts a conditional sorter
func When(cond func(req any) bool, s Sorter) *Conditional {
	return (&Conditional{}).When(cond, s)
}

// When adds a branch. A nil condition or sorter invalidates the whole
// conditional.
func (c *Conditional) When(cond func(req any) bool, s Sorter) *Conditional {
	switch {
	case cond == nil:
		c.fail(fmt.Errorf("%w: branch %d has no condition", ErrInvalid, len(c.branches)))
	case s == nil:
		c.fail(fmt.Errorf("%w: branch %d has no sorter", ErrInvalid, len(c.branches)))
	default:
		c.branches = append(c.branches, branch{cond: cond, sorter: s})
	}
	return c
}

// Otherwise sets the sorter used when no branch matches
func (c *Conditional) Otherwise(s Sorter) *Conditional {
	if s == nil {
		c.fail(fmt.Errorf("%w: nil otherwise", ErrInvalid))
		return c
	}
	c.otherwise = s
	return c
}

func (c *Conditional) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Validate implements Validator
func (c *Conditional) Validate() error {
	if c.err != nil {
		return c.err
	}
	for _, b := range c.branches {
		if err := Validate(b.sorter); err != nil {
			return err
		}
	}
	return Validate(c.otherwise)
}

// Orders implements Sorter
func (c *Conditional) Orders(req any) ([]predicate.Order, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, b := range c.branches {
		if b.cond(req) {
			return b.sorter.Orders(req)
		}
	}
	if c.otherwise != nil {
		return c.otherwise.Orders(req)
	}
	return nil, nil
}

type switchCase struct {
	value  any
	sorter Sorter
}

// Switch dispatches on a control value. Unknown values use the declared
// default, or the first declared case when there is none.
type Switch struct {
	control    Control
	cases      []switchCase
	def        Sorter
	hasDefault bool
	err        error
}

// On starts a switch sorter
func On(control Control) *Switch {
	s := &Switch{control: control}
	if control == nil {
		s.fail(fmt.Errorf("%w: switch has no control", ErrInvalid))
	}
	return s
}

// Case adds a case for value
func (s *Switch) Case(value any, sorter Sorter) *Switch {
	if sorter == nil {
		s.fail(fmt.Errorf("%w: nil sorter for case %v", ErrInvalid, value))
		return s
	}
	s.cases = append(s.cases, switchCase{value: value, sorter: sorter})
	return s
}

// Default sets the fallback case
func (s *Switch) Default(sorter Sorter) *Switch {
	if sorter == nil {
		s.fail(fmt.Errorf("%w: nil default", ErrInvalid))
		return s
	}
	s.def = sorter
	s.hasDefault = true
	return s
}

func (s *Switch) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Validate implements Validator
func (s *Switch) Validate() error {
	if s.err != nil {
		return s.err
	}
	for _, c := range s.cases {
		if err := Validate(c.sorter); err != nil {
			return err
		}
	}
	return Validate(s.def)
}

// Orders implements Sorter
func (s *Switch) Orders(req any) ([]predicate.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	v := s.control(req)
	for _, c := range s.cases {
		if predicate.Equivalent(c.value, v) {
			return c.sorter.Orders(req)
		}
	}
	if s.hasDefault {
		return s.def.Orders(req)
	}
	if len(s.cases) > 0 {
		return s.cases[0].sorter.Orders(req)
	}
	return nil, nil
}

type column struct {
	value any
	key   key.Key
}

// Table maps control values to columns. The primary control selects the
// first column. The secondary control appends a second column, except that
// a zero secondary value such as "" or 0 means "no secondary
// column" and never falls back to the default. Column values are therefore
// best kept non-zero; a column mapped to the zero value can only be picked
// by the primary control. Unknown non-zero values fall back to the default
// column, or to the first declared column.
type Table struct {
	columns      []column
	defaultValue any
	hasDefault   bool

	primary      Control
	primaryDir   Direction
	secondary    Control
	secondaryDir Direction
}

// NewTable creates an empty table sorter
func NewTable() *Table {
	return &Table{}
}

// Column maps a control value to a key
func (t *Table) Column(value any, k key.Key) *Table {
	t.columns = append(t.columns, column{value: value, key: k})
	return t
}

// Default names the column used for unknown control values
func (t *Table) Default(value any) *Table {
	t.defaultValue = value
	t.hasDefault = true
	return t
}

// Primary sets the primary control and direction
func (t *Table) Primary(control Control, dir Direction) *Table {
	t.primary = control
	t.primaryDir = dir
	return t
}

// Secondary sets the secondary control and direction
func (t *Table) Secondary(control Control, dir Direction) *Table {
	t.secondary = control
	t.secondaryDir = dir
	return t
}

// Orders implements Sorter
func (t *Table) Orders(req any) ([]predicate.Order, error) {
	if t.primary == nil || len(t.columns) == 0 {
		return nil, nil
	}

	primary, ok := t.pick(t.primary(req))
	if !ok {
		return nil, nil
	}
	orders := []predicate.Order{order(primary, t.primaryDir, req)}

	// a secondary column only refines an existing primary ordering
	if t.secondary != nil {
		sv := t.secondary(req)
		if !typeinfo.IsZero(sv) {
			if secondary, ok := t.pick(sv); ok {
				orders = append(orders, order(secondary, t.secondaryDir, req))
			}
		}
	}
	return orders, nil
}

func (t *Table) pick(v any) (key.Key, bool) {
	if c, ok := t.find(v); ok {
		return c, true
	}
	if t.hasDefault {
		if c, ok := t.find(t.defaultValue); ok {
			return c, true
		}
	}
	if len(t.columns) > 0 {
		return t.columns[0].key, true
	}
	return key.Key{}, false
}

func (t *Table) find(v any) (key.Key, bool) {
	for _, c := range t.columns {
		if predicate.Equivalent(c.value, v) {
			return c.key, true
		}
	}
	return key.Key{}, false
}

func order(k key.Key, dir Direction, req any) predicate.Order {
	if dir != nil && dir(req) {
		return predicate.Desc(k.Operand())
	}
	return predicate.Asc(k.Operand())
}
