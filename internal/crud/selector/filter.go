package selector

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// Condition enables a filter for a given request
type Condition func(req any) bool

// If adapts a typed request predicate to a Condition
func If[R any](fn func(req R) bool) Condition {
	return func(req any) bool {
		typed, ok := typeinfo.To[R](req)
		return ok && fn(typed)
	}
}

// Value produces the request-side operand of a filter
type Value func(req any) (any, error)

// Const is a fixed operand
func Const(v any) Value {
	return func(any) (any, error) { return v, nil }
}

// RequestMember reads a field of the request by name
func RequestMember(path string) Value {
	k := key.Field(path)
	return func(req any) (any, error) {
		return k.Value(req)
	}
}

// RequestFunc reads a value from the typed request
func RequestFunc[R any, V any](fn func(req R) V) Value {
	return func(req any) (any, error) {
		typed, ok := typeinfo.To[R](req)
		if !ok {
			return nil, fmt.Errorf("filter expects %s, got %T", typeinfo.Of[R](), req)
		}
		return fn(typed), nil
	}
}

// Filter is one conditional restriction on the entity set
type Filter struct {
	Name      string
	Condition Condition
	Build     func(req any) (*predicate.Node, error)
}

// When attaches an enable condition
func (f Filter) When(cond Condition) Filter {
	f.Condition = cond
	return f
}

// Enabled reports whether the filter applies to req
func (f Filter) Enabled(req any) bool {
	return f.Condition == nil || f.Condition(req)
}

func compare(name string, entity key.Key, v Value, build func(predicate.Operand, any) *predicate.Node) Filter {
	return Filter{
		Name: fmt.Sprintf("%s %s", entity, name),
		Build: func(req any) (*predicate.Node, error) {
			value, err := v(req)
			if err != nil {
				return nil, err
			}
			return build(entity.Operand(), value), nil
		},
	}
}

func unary(name string, entity key.Key, build func(predicate.Operand) *predicate.Node) Filter {
	return Filter{
		Name: fmt.Sprintf("%s %s", entity, name),
		Build: func(any) (*predicate.Node, error) {
			return build(entity.Operand()), nil
		},
	}
}

// Equal keeps entities whose key equals the request value
func Equal(entity key.Key, v Value) Filter {
	return compare("=", entity, v, predicate.Equal)
}

// NotEqual keeps entities whose key differs from the request value
func NotEqual(entity key.Key, v Value) Filter {
	return compare("!=", entity, v, predicate.NotEqual)
}

// LessThan keeps entities whose key is below the request value
func LessThan(entity key.Key, v Value) Filter {
	return compare("<", entity, v, predicate.LessThan)
}

// LessThanOrEqual keeps entities whose key is at most the request value
func LessThanOrEqual(entity key.Key, v Value) Filter {
	return compare("<=", entity, v, predicate.LessThanOrEqual)
}

// GreaterThan keeps entities whose key is above the request value
func GreaterThan(entity key.Key, v Value) Filter {
	return compare(">", entity, v, predicate.GreaterThan)
}

// GreaterThanOrEqual keeps entities whose key is at least the request value
func GreaterThanOrEqual(entity key.Key, v Value) Filter {
	return compare(">=", entity, v, predicate.GreaterThanOrEqual)
}

// Contains keeps entities whose key contains the request value
func Contains(entity key.Key, v Value) Filter {
	return compare("contains", entity, v, predicate.Contains)
}

// True keeps entities whose boolean key is true
func True(entity key.Key) Filter {
	return unary("is true", entity, predicate.True)
}

// False keeps entities whose boolean key is false
func False(entity key.Key) Filter {
	return unary("is false", entity, predicate.False)
}

// Null keeps entities whose key is nil
func Null(entity key.Key) Filter {
	return unary("is null", entity, predicate.IsNull)
}

// NotNull keeps entities whose key is set
func NotNull(entity key.Key) Filter {
	return unary("is not null", entity, predicate.NotNull)
}

// Predicate wraps an arbitrary request-dependent predicate as a filter
func Predicate(name string, build func(req any) (*predicate.Node, error)) Filter {
	return Filter{Name: name, Build: build}
}

// Combine ANDs every enabled filter for req
func Combine(req any, filters []Filter) (*predicate.Node, error) {
	nodes := make([]*predicate.Node, 0, len(filters))
	for _, f := range filters {
		if !f.Enabled(req) {
			continue
		}
		n, err := f.Build(req)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Name, err)
		}
		nodes = append(nodes, n)
	}
	return predicate.And(nodes...), nil
}

// ItemSource yields the raw input items of a request
type ItemSource func(req any) ([]any, error)

// Self uses the request itself as the only item
func Self() ItemSource {
	return func(req any) ([]any, error) {
		return []any{req}, nil
	}
}

// FromMember reads items from a request field. Slices yield one item per
// element (struct elements are addressed so hooks can mutate them); any
// other value yields a single item, and nil yields none.
func FromMember(name string) ItemSource {
	var cache sync.Map // reflect.Type -> []int
	return func(req any) ([]any, error) {
		rv := reflect.ValueOf(req)
		for rv.IsValid() && rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil, fmt.Errorf("item source %s: nil request", name)
			}
			rv = rv.Elem()
		}
		if !rv.IsValid() || rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("item source %s: %T is not a struct", name, req)
		}

		var index []int
		if cached, ok := cache.Load(rv.Type()); ok {
			index = cached.([]int)
		} else {
			sf, ok := rv.Type().FieldByName(name)
			if !ok || !sf.IsExported() {
				return nil, fmt.Errorf("item source: %w: %s.%s", key.ErrMemberNotFound, rv.Type().Name(), name)
			}
			index = sf.Index
			cache.Store(rv.Type(), index)
		}

		field := rv.FieldByIndex(index)
		return itemsOf(field), nil
	}
}

// FromFunc adapts a typed item accessor
func FromFunc[R any, I any](fn func(req R) []I) ItemSource {
	return func(req any) ([]any, error) {
		typed, ok := typeinfo.To[R](req)
		if !ok {
			return nil, fmt.Errorf("item source expects %s, got %T", typeinfo.Of[R](), req)
		}
		items := fn(typed)
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, nil
	}
}

func itemsOf(field reflect.Value) []any {
	switch field.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, field.Len())
		for i := 0; i < field.Len(); i++ {
			elem := field.Index(i)
			if elem.Kind() == reflect.Struct && elem.CanAddr() {
				out[i] = elem.Addr().Interface()
				continue
			}
			out[i] = elem.Interface()
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if field.IsNil() {
			return nil
		}
	}
	if field.Kind() == reflect.Struct && field.CanAddr() {
		return []any{field.Addr().Interface()}
	}
	return []any{field.Interface()}
}
