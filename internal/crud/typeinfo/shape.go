package typeinfo

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	// ErrShapeMismatch is returned when a pattern cannot unify with a shape
	ErrShapeMismatch = errors.New("generic shape mismatch")

	// ErrUnresolvedParam is returned when a declared parameter is not bound
	ErrUnresolvedParam = errors.New("unresolved generic parameter")
)

// Shape describes an instantiated generic type as data: the generic
// definition it was instantiated from and its positional type arguments.
// Self is the instantiated type that owns the shape; promoted Shape methods
// on outer types are ignored by comparing against it.
type Shape struct {
	Definition string
	Self       reflect.Type
	Args       []reflect.Type
}

// Shaped is implemented by generic request types that take part in
// open-generic profile matching
type Shaped interface {
	Shape() Shape
}

// ShapeOf builds the shape of the instantiated type T
func ShapeOf[T any](definition string, args ...reflect.Type) Shape {
	return Shape{Definition: definition, Self: Of[T](), Args: args}
}

func (s Shape) String() string {
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		parts[i] = Name(a)
	}
	return fmt.Sprintf("%s[%s]", s.Definition, strings.Join(parts, ", "))
}

var shapes sync.Map // reflect.Type -> *Shape (nil when not shaped)

// ShapeFor returns the shape declared by t itself, if any
func ShapeFor(t reflect.Type) (Shape, bool) {
	t = Base(t)
	if t == nil || t.Kind() == reflect.Interface {
		return Shape{}, false
	}
	if cached, ok := shapes.Load(t); ok {
		if cached == nil {
			return Shape{}, false
		}
		return *cached.(*Shape), true
	}

	var found *Shape
	if shaped, ok := reflect.New(t).Interface().(Shaped); ok {
		s := shaped.Shape()
		if Base(s.Self) == t && s.Definition != "" {
			found = &s
		}
	}
	if found == nil {
		shapes.Store(t, nil)
		return Shape{}, false
	}
	shapes.Store(t, found)
	return *found, true
}

// Arg is one position of a declared generic pattern: either an open
// parameter or a bound concrete type
type Arg struct {
	Param string
	Type  reflect.Type
}

// Param declares an open parameter position
func Param(name string) Arg {
	return Arg{Param: name}
}

// Bound declares a position that must match t exactly
func Bound(t reflect.Type) Arg {
	return Arg{Type: t}
}

// IsBound reports whether the position is fixed to a concrete type
func (a Arg) IsBound() bool {
	return a.Type != nil
}

func (a Arg) String() string {
	if a.IsBound() {
		return Name(a.Type)
	}
	return a.Param
}

// BoundCount counts the fixed positions of a pattern
func BoundCount(pattern []Arg) int {
	n := 0
	for _, a := range pattern {
		if a.IsBound() {
			n++
		}
	}
	return n
}

// Bindings maps open parameter names to the concrete types they closed over
type Bindings map[string]reflect.Type

// Type returns the binding for name, or nil
func (b Bindings) Type(name string) reflect.Type {
	return b[name]
}

// Unify solves pattern against shape positionally. Bound positions must
// match exactly; a parameter used twice must close over the same type.
func Unify(pattern []Arg, shape Shape) (Bindings, error) {
	if len(pattern) != len(shape.Args) {
		return nil, fmt.Errorf("%w: %s has %d arguments, pattern has %d",
			ErrShapeMismatch, shape, len(shape.Args), len(pattern))
	}

	bindings := make(Bindings, len(pattern))
	for i, arg := range pattern {
		actual := shape.Args[i]
		if arg.IsBound() {
			if arg.Type != actual {
				return nil, fmt.Errorf("%w: position %d wants %s, got %s",
					ErrShapeMismatch, i, Name(arg.Type), Name(actual))
			}
			continue
		}
		if prev, ok := bindings[arg.Param]; ok && prev != actual {
			return nil, fmt.Errorf("%w: parameter %s bound to both %s and %s",
				ErrShapeMismatch, arg.Param, Name(prev), Name(actual))
		}
		bindings[arg.Param] = actual
	}
	return bindings, nil
}

// Resolve checks that every declared parameter has a binding
func (b Bindings) Resolve(params []string) error {
	missing := make([]string, 0)
	for _, p := range params {
		if _, ok := b[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnresolvedParam, strings.Join(missing, ", "))
	}
	return nil
}
