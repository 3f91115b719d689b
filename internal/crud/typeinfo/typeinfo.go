// Package typeinfo models the type relationships the engine dispatches on:
// ancestor lists for inheritance-aware lookups, contravariant assignability
// checks and runtime conversion of values to a declared base type.
package typeinfo

import (
	"reflect"
	"sort"
	"sync"
)

// anyType is the root of every hierarchy
var anyType = reflect.TypeOf((*any)(nil)).Elem()

// Of returns the reflect.Type of T, including interface types
func Of[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Any returns the empty interface type
func Any() reflect.Type {
	return anyType
}

// Base strips pointers so that *User and User share one node
func Base(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// TypeOfValue returns the base type of a runtime value, or nil
func TypeOfValue(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return Base(reflect.TypeOf(v))
}

// Hierarchy is an arena of per-type ancestor lists. The set of known
// interface types is fixed at construction so memoised lists never go stale.
type Hierarchy struct {
	interfaces []reflect.Type
	ancestors  sync.Map // reflect.Type -> []reflect.Type
}

// NewHierarchy creates a hierarchy aware of the given interface types
func NewHierarchy(interfaces ...reflect.Type) *Hierarchy {
	seen := make(map[reflect.Type]bool, len(interfaces))
	known := make([]reflect.Type, 0, len(interfaces))
	for _, t := range interfaces {
		if t == nil || t.Kind() != reflect.Interface || t == anyType || seen[t] {
			continue
		}
		seen[t] = true
		known = append(known, t)
	}
	return &Hierarchy{interfaces: known}
}

// Interfaces returns the interface types the hierarchy knows about
func (h *Hierarchy) Interfaces() []reflect.Type {
	out := make([]reflect.Type, len(h.interfaces))
	copy(out, h.interfaces)
	return out
}

// Ancestors returns t followed by its ancestors, most-derived first:
// embedded structs breadth first, then known interfaces implemented by *t
// (an interface embedding another comes before it), then any.
func (h *Hierarchy) Ancestors(t reflect.Type) []reflect.Type {
	t = Base(t)
	if t == nil {
		return []reflect.Type{anyType}
	}
	if cached, ok := h.ancestors.Load(t); ok {
		return cached.([]reflect.Type)
	}

	list := h.compute(t)
	actual, _ := h.ancestors.LoadOrStore(t, list)
	return actual.([]reflect.Type)
}

func (h *Hierarchy) compute(t reflect.Type) []reflect.Type {
	list := []reflect.Type{t}
	seen := map[reflect.Type]bool{t: true}

	if t.Kind() == reflect.Struct {
		for _, e := range embeddedStructs(t, false) {
			if !seen[e] {
				seen[e] = true
				list = append(list, e)
			}
		}
	}

	candidate := t
	if t.Kind() != reflect.Interface {
		candidate = reflect.PointerTo(t)
	}

	implemented := make([]reflect.Type, 0)
	for _, iface := range h.interfaces {
		if seen[iface] {
			continue
		}
		if candidate.Implements(iface) {
			implemented = append(implemented, iface)
		}
	}

	// an interface that implements more of its siblings is more derived
	rank := make(map[reflect.Type]int, len(implemented))
	for _, a := range implemented {
		for _, b := range implemented {
			if a != b && a.Implements(b) {
				rank[a]++
			}
		}
	}
	sort.SliceStable(implemented, func(i, j int) bool {
		return rank[implemented[i]] > rank[implemented[j]]
	})

	for _, iface := range implemented {
		seen[iface] = true
		list = append(list, iface)
	}

	if t != anyType {
		list = append(list, anyType)
	}
	return list
}

// embeddedStructs walks anonymous struct fields breadth first. With
// exportedOnly it neither returns nor descends into unexported embeds,
// matching what Convert can extract.
func embeddedStructs(t reflect.Type, exportedOnly bool) []reflect.Type {
	out := make([]reflect.Type, 0)
	queue := []reflect.Type{t}
	visited := map[reflect.Type]bool{t: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for i := 0; i < current.NumField(); i++ {
			f := current.Field(i)
			if !f.Anonymous || (exportedOnly && !f.IsExported()) {
				continue
			}
			ft := Base(f.Type)
			if ft.Kind() != reflect.Struct || visited[ft] {
				continue
			}
			visited[ft] = true
			out = append(out, ft)
			queue = append(queue, ft)
		}
	}
	return out
}

// Assignable reports whether a value whose base type is from can be handed
// to a parameter declared as to. Pointers to exported embedded structs and
// implemented interfaces qualify.
func Assignable(from, to reflect.Type) bool {
	if to == nil || to == anyType {
		return true
	}
	from = Base(from)
	if from == nil {
		return false
	}

	if from == to || reflect.PointerTo(from) == to {
		return true
	}
	if to.Kind() == reflect.Interface {
		if from.Kind() == reflect.Interface {
			return from.Implements(to)
		}
		return reflect.PointerTo(from).Implements(to)
	}

	if from.Kind() != reflect.Struct {
		return false
	}
	target := Base(to)
	for _, e := range embeddedStructs(from, true) {
		if e == target {
			return true
		}
	}
	return false
}

// Convert adapts a runtime value to a declared type. It accepts direct
// assignability, pointer/value adjustment and extraction of an embedded
// struct. A nil value converts to the zero value of the target.
func Convert(v any, to reflect.Type) (any, bool) {
	if to == nil || to == anyType {
		return v, true
	}
	if v == nil {
		return reflect.Zero(to).Interface(), true
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(to) {
		return v, true
	}

	// *T handed to T
	if rv.Kind() == reflect.Pointer && rv.Type().Elem().AssignableTo(to) {
		if rv.IsNil() {
			return reflect.Zero(to).Interface(), true
		}
		return rv.Elem().Interface(), true
	}

	base := reflect.Indirect(rv)
	if !base.IsValid() || base.Kind() != reflect.Struct {
		return nil, false
	}

	wantPtr := to.Kind() == reflect.Pointer
	target := Base(to)
	if field, ok := findEmbedded(base, target); ok {
		if wantPtr {
			if field.Kind() == reflect.Pointer {
				return field.Interface(), true
			}
			if field.CanAddr() {
				return field.Addr().Interface(), true
			}
			cp := reflect.New(field.Type())
			cp.Elem().Set(field)
			return cp.Interface(), true
		}
		return reflect.Indirect(field).Interface(), true
	}
	return nil, false
}

// findEmbedded returns the embedded field of type target, breadth first
func findEmbedded(v reflect.Value, target reflect.Type) (reflect.Value, bool) {
	queue := []reflect.Value{v}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for i := 0; i < current.NumField(); i++ {
			sf := current.Type().Field(i)
			if !sf.Anonymous || !sf.IsExported() {
				continue
			}
			field := current.Field(i)
			if Base(sf.Type) == target {
				if field.Kind() == reflect.Pointer && field.IsNil() {
					continue
				}
				return field, true
			}
			inner := reflect.Indirect(field)
			if inner.IsValid() && inner.Kind() == reflect.Struct {
				queue = append(queue, inner)
			}
		}
	}
	return reflect.Value{}, false
}

// To converts v to T, reporting whether the conversion was possible
func To[T any](v any) (T, bool) {
	var zero T
	converted, ok := Convert(v, Of[T]())
	if !ok {
		return zero, false
	}
	if converted == nil {
		return zero, true
	}
	out, ok := converted.(T)
	return out, ok
}

// IsZero reports whether v is nil or the zero value of its type
func IsZero(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return true
		}
		return rv.Elem().IsZero()
	}
	return rv.IsZero()
}

// Name renders a type for logs and error messages
func Name(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
