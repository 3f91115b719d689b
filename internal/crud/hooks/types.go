// Package hooks implements the five hook kinds of the request pipeline.
// Each kind can be built from an inline function, a bound instance or a
// type resolved per invocation; all of them are reduced to one boxed
// Factory that the engine invokes with untyped arguments.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrIncompatible is returned when a runtime value cannot be handed to a hook
	ErrIncompatible = errors.New("value incompatible with hook")

	// ErrNotSupertype is returned when a hook is registered for an unrelated type
	ErrNotSupertype = errors.New("hook type is not a supertype of the operative type")

	// ErrNoResolver is returned when a type-resolved hook runs without a resolver
	ErrNoResolver = errors.New("no service resolver configured")
)

// Kind identifies a hook kind
type Kind int

const (
	KindRequest Kind = iota
	KindItem
	KindEntity
	KindResult
	KindAudit
)

// String returns the string representation of the hook kind
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindItem:
		return "item"
	case KindEntity:
		return "entity"
	case KindResult:
		return "result"
	case KindAudit:
		return "audit"
	default:
		return "unknown"
	}
}

// Strategy identifies how a hook instance is obtained
type Strategy int

const (
	StrategyFunc Strategy = iota
	StrategyInstance
	StrategyType
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	switch s {
	case StrategyFunc:
		return "func"
	case StrategyInstance:
		return "instance"
	case StrategyType:
		return "type"
	default:
		return "unknown"
	}
}

// Resolver constructs services by type
type Resolver interface {
	Resolve(t reflect.Type) (any, error)
}

// RequestHooker runs once per request before anything else
type RequestHooker[R any] interface {
	HandleRequest(ctx context.Context, req R) error
}

// ItemHooker may replace each raw batch item
type ItemHooker[R any, I any] interface {
	HandleItem(ctx context.Context, req R, item I) (I, error)
}

// EntityHooker observes each created, updated, selected or deleted entity
type EntityHooker[R any, E any] interface {
	HandleEntity(ctx context.Context, req R, entity E) error
}

// ResultHooker may replace the projected result
type ResultHooker[R any, T any] interface {
	HandleResult(ctx context.Context, req R, result T) (T, error)
}

// AuditHooker receives the pre-mutation snapshot and the persisted entity
type AuditHooker[R any, E any] interface {
	HandleAudit(ctx context.Context, req R, old, new E) error
}

// Args carries the untyped arguments of one invocation. Value holds the
// item, entity or result; Old and New are used by audit hooks.
type Args struct {
	Request any
	Value   any
	Old     any
	New     any
}

type invokeFunc func(ctx context.Context, res Resolver, a Args) (any, error)

// Factory is the boxed form of a hook. RequestType and TargetType are the
// types the hook was declared against; TargetType is nil for request hooks.
type Factory struct {
	kind        Kind
	strategy    Strategy
	name        string
	requestType reflect.Type
	targetType  reflect.Type
	invoke      invokeFunc
}

// Kind returns the hook kind
func (f *Factory) Kind() Kind { return f.kind }

// Strategy returns the construction strategy
func (f *Factory) Strategy() Strategy { return f.strategy }

// Name identifies the hook in faults and logs
func (f *Factory) Name() string { return f.name }

// RequestType is the declared request type
func (f *Factory) RequestType() reflect.Type { return f.requestType }

// TargetType is the declared item, entity or result type
func (f *Factory) TargetType() reflect.Type { return f.targetType }

// Named returns a copy of the factory with another name
func (f *Factory) Named(name string) *Factory {
	cp := *f
	cp.name = name
	return &cp
}

// Check verifies at registration time that the hook's declared types are
// supertypes of the operative request and target types. A nil operative
// target skips the target check.
func (f *Factory) Check(requestType, targetType reflect.Type) error {
	if !typeinfo.Assignable(requestType, f.requestType) {
		return fmt.Errorf("%w: %s hook %s declared for request %s, used with %s",
			ErrNotSupertype, f.kind, f.name, typeinfo.Name(f.requestType), typeinfo.Name(requestType))
	}
	if targetType == nil || f.targetType == nil {
		return nil
	}
	if !typeinfo.Assignable(targetType, f.targetType) {
		return fmt.Errorf("%w: %s hook %s declared for %s, used with %s",
			ErrNotSupertype, f.kind, f.name, typeinfo.Name(f.targetType), typeinfo.Name(targetType))
	}
	return nil
}

// Accepts reports whether a runtime value can be handed to the hook
func (f *Factory) Accepts(v any) bool {
	if v == nil || f.targetType == nil {
		return true
	}
	_, ok := typeinfo.Convert(v, f.targetType)
	return ok
}

// Invoke runs the hook once with untyped arguments
func (f *Factory) Invoke(ctx context.Context, res Resolver, a Args) (any, error) {
	return f.invoke(ctx, res, a)
}

func (f *Factory) String() string {
	return fmt.Sprintf("%s hook %s (%s)", f.kind, f.name, f.strategy)
}

// Registry keeps hooks per kind in registration order
type Registry struct {
	hooks map[Kind][]*Factory
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[Kind][]*Factory),
	}
}

// Register adds a hook to the registry
func (r *Registry) Register(f *Factory) {
	r.hooks[f.kind] = append(r.hooks[f.kind], f)
}

// Hooks returns all hooks for a given kind
func (r *Registry) Hooks(kind Kind) []*Factory {
	if r == nil {
		return nil
	}
	return r.hooks[kind]
}

// HasHooks returns true if there are any hooks registered for the given kind
func (r *Registry) HasHooks(kind Kind) bool {
	return len(r.Hooks(kind)) > 0
}
