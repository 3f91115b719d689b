// Package resolver is a small type-keyed service container. The engine
// uses it to build hooks registered by type and any profile-scoped
// dependency they need.
package resolver

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrNotRegistered is returned when nothing can produce the requested type
	ErrNotRegistered = errors.New("service not registered")

	// ErrAmbiguous is returned when several registrations satisfy an interface
	ErrAmbiguous = errors.New("ambiguous service")

	// ErrCycle is returned when construction depends on itself
	ErrCycle = errors.New("dependency cycle")
)

// ResolveError carries the type that failed to resolve
type ResolveError struct {
	Type  reflect.Type
	Cause error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s: %v", typeinfo.Name(e.Type), e.Cause)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

type provider struct {
	instance any
	factory  func(c *Container) (any, error)
}

// Container maps types to instances or factories. It is safe for
// concurrent use.
type Container struct {
	mu            sync.RWMutex
	providers     map[reflect.Type]provider
	order         []reflect.Type
	autoConstruct bool
}

// Option configures a container
type Option func(*Container)

// AutoConstruct lets the container build unregistered struct types (and
// pointers to them) with reflect.New. Exported fields tagged inject are
// filled from the container.
func AutoConstruct() Option {
	return func(c *Container) {
		c.autoConstruct = true
	}
}

// New creates an empty container
func New(opts ...Option) *Container {
	c := &Container{providers: make(map[reflect.Type]provider)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Container) register(t reflect.Type, p provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.providers[t]; !ok {
		c.order = append(c.order, t)
	}
	c.providers[t] = p
}

// Provide registers an instance under its dynamic type
func (c *Container) Provide(v any) *Container {
	if v == nil {
		return c
	}
	c.register(reflect.TypeOf(v), provider{instance: v})
	return c
}

// ProvideAs registers an instance under T, typically an interface
func ProvideAs[T any](c *Container, v T) *Container {
	c.register(typeinfo.Of[T](), provider{instance: v})
	return c
}

// ProvideFunc registers a factory under T. The factory runs on every
// resolution.
func ProvideFunc[T any](c *Container, fn func(c *Container) (T, error)) *Container {
	c.register(typeinfo.Of[T](), provider{factory: func(c *Container) (any, error) {
		return fn(c)
	}})
	return c
}

// Has reports whether t has a registration
func (c *Container) Has(t reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.providers[t]
	return ok
}

// Resolve returns an instance of t. Exact registrations win; an interface
// is otherwise satisfied by the single registration implementing it.
func (c *Container) Resolve(t reflect.Type) (any, error) {
	return c.resolve(t, nil)
}

// Get is the typed form of Resolve
func Get[T any](c *Container) (T, error) {
	var zero T
	v, err := c.Resolve(typeinfo.Of[T]())
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, &ResolveError{Type: typeinfo.Of[T](), Cause: fmt.Errorf("got %T", v)}
	}
	return out, nil
}

func (c *Container) resolve(t reflect.Type, path []reflect.Type) (any, error) {
	if t == nil {
		return nil, &ResolveError{Cause: ErrNotRegistered}
	}
	for _, seen := range path {
		if seen == t {
			return nil, &ResolveError{Type: t, Cause: fmt.Errorf("%w: %s", ErrCycle, describe(append(path, t)))}
		}
	}

	p, err := c.lookup(t)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if p.factory == nil {
			return p.instance, nil
		}
		v, err := p.factory(c)
		if err != nil {
			return nil, &ResolveError{Type: t, Cause: err}
		}
		return v, nil
	}

	if c.autoConstruct {
		if v, ok, err := c.construct(t, append(path, t)); ok || err != nil {
			return v, err
		}
	}
	return nil, &ResolveError{Type: t, Cause: ErrNotRegistered}
}

func (c *Container) lookup(t reflect.Type) (*provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.providers[t]; ok {
		return &p, nil
	}
	if t.Kind() != reflect.Interface {
		return nil, nil
	}

	var found *provider
	matches := make([]string, 0)
	for _, registered := range c.order {
		if !registered.Implements(t) {
			continue
		}
		p := c.providers[registered]
		found = &p
		matches = append(matches, registered.String())
	}
	if len(matches) > 1 {
		return nil, &ResolveError{Type: t, Cause: fmt.Errorf("%w: %s", ErrAmbiguous, strings.Join(matches, ", "))}
	}
	return found, nil
}

// construct builds T or *T for struct T and fills inject-tagged fields
func (c *Container) construct(t reflect.Type, path []reflect.Type) (any, bool, error) {
	target := t
	pointer := false
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
		pointer = true
	}
	if target.Kind() != reflect.Struct {
		return nil, false, nil
	}

	v := reflect.New(target)
	for i := 0; i < target.NumField(); i++ {
		sf := target.Field(i)
		if _, ok := sf.Tag.Lookup("inject"); !ok || !sf.IsExported() {
			continue
		}
		dep, err := c.resolve(sf.Type, path)
		if err != nil {
			return nil, true, &ResolveError{Type: t, Cause: fmt.Errorf("field %s: %w", sf.Name, err)}
		}
		if dep == nil {
			continue
		}
		dv := reflect.ValueOf(dep)
		if !dv.Type().AssignableTo(sf.Type) {
			return nil, true, &ResolveError{Type: t, Cause: fmt.Errorf("field %s: %s is not %s", sf.Name, dv.Type(), sf.Type)}
		}
		v.Elem().Field(i).Set(dv)
	}

	if pointer {
		return v.Interface(), true, nil
	}
	return v.Elem().Interface(), true, nil
}

func describe(path []reflect.Type) string {
	names := make([]string, len(path))
	for i, t := range path {
		names[i] = typeinfo.Name(t)
	}
	return strings.Join(names, " -> ")
}
