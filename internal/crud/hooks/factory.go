package hooks

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

func build[H any](kind Kind, strategy Strategy, name string, requestType, targetType reflect.Type,
	get func(Resolver) (H, error), call func(ctx context.Context, h H, a Args) (any, error)) *Factory {
	return &Factory{
		kind:        kind,
		strategy:    strategy,
		name:        name,
		requestType: requestType,
		targetType:  targetType,
		invoke: func(ctx context.Context, res Resolver, a Args) (any, error) {
			h, err := get(res)
			if err != nil {
				return nil, err
			}
			return call(ctx, h, a)
		},
	}
}

func fixed[H any](h H) func(Resolver) (H, error) {
	return func(Resolver) (H, error) { return h, nil }
}

// resolveAs obtains H from the resolver on every invocation
func resolveAs[H any](res Resolver) (H, error) {
	var zero H
	if res == nil {
		return zero, ErrNoResolver
	}
	v, err := res.Resolve(typeinfo.Of[H]())
	if err != nil {
		return zero, fmt.Errorf("resolve %s: %w", typeinfo.Of[H](), err)
	}
	h, ok := v.(H)
	if !ok {
		return zero, fmt.Errorf("resolver returned %T for %s", v, typeinfo.Of[H]())
	}
	return h, nil
}

func convert[T any](what string, v any) (T, error) {
	out, ok := typeinfo.To[T](v)
	if !ok {
		return out, fmt.Errorf("%w: %s %T is not %s", ErrIncompatible, what, v, typeinfo.Of[T]())
	}
	return out, nil
}

func funcName(fn any) string {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return "func"
	}
	name := runtime.FuncForPC(rv.Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func typeName[H any]() string {
	return typeinfo.Of[H]().String()
}

func instanceName(v any) string {
	return fmt.Sprintf("%T", v)
}

// Request hooks

type requestHookFunc[R any] func(ctx context.Context, req R) error

func (f requestHookFunc[R]) HandleRequest(ctx context.Context, req R) error { return f(ctx, req) }

func requestFactory[R any](s Strategy, name string, get func(Resolver) (RequestHooker[R], error)) *Factory {
	return build(KindRequest, s, name, typeinfo.Of[R](), nil, get,
		func(ctx context.Context, h RequestHooker[R], a Args) (any, error) {
			req, err := convert[R]("request", a.Request)
			if err != nil {
				return nil, err
			}
			return nil, h.HandleRequest(ctx, req)
		})
}

// RequestFunc builds a request hook from a function
func RequestFunc[R any](fn func(ctx context.Context, req R) error) *Factory {
	return requestFactory[R](StrategyFunc, funcName(fn), fixed[RequestHooker[R]](requestHookFunc[R](fn)))
}

// RequestInstance builds a request hook from a bound instance
func RequestInstance[R any](h RequestHooker[R]) *Factory {
	return requestFactory[R](StrategyInstance, instanceName(h), fixed(h))
}

// RequestOfType builds a request hook resolved as H on every invocation
func RequestOfType[R any, H RequestHooker[R]]() *Factory {
	return requestFactory[R](StrategyType, typeName[H](), func(res Resolver) (RequestHooker[R], error) {
		return resolveAs[H](res)
	})
}

// Item hooks

type itemHookFunc[R any, I any] func(ctx context.Context, req R, item I) (I, error)

func (f itemHookFunc[R, I]) HandleItem(ctx context.Context, req R, item I) (I, error) {
	return f(ctx, req, item)
}

func itemFactory[R any, I any](s Strategy, name string, get func(Resolver) (ItemHooker[R, I], error)) *Factory {
	return build(KindItem, s, name, typeinfo.Of[R](), typeinfo.Of[I](), get,
		func(ctx context.Context, h ItemHooker[R, I], a Args) (any, error) {
			req, err := convert[R]("request", a.Request)
			if err != nil {
				return nil, err
			}
			item, err := convert[I]("item", a.Value)
			if err != nil {
				return nil, err
			}
			return h.HandleItem(ctx, req, item)
		})
}

// ItemFunc builds an item hook from a function
func ItemFunc[R any, I any](fn func(ctx context.Context, req R, item I) (I, error)) *Factory {
	return itemFactory[R, I](StrategyFunc, funcName(fn), fixed[ItemHooker[R, I]](itemHookFunc[R, I](fn)))
}

// ItemInstance builds an item hook from a bound instance
func ItemInstance[R any, I any](h ItemHooker[R, I]) *Factory {
	return itemFactory[R, I](StrategyInstance, instanceName(h), fixed(h))
}

// ItemOfType builds an item hook resolved as H on every invocation
func ItemOfType[R any, I any, H ItemHooker[R, I]]() *Factory {
	return itemFactory[R, I](StrategyType, typeName[H](), func(res Resolver) (ItemHooker[R, I], error) {
		return resolveAs[H](res)
	})
}

// Entity hooks

type entityHookFunc[R any, E any] func(ctx context.Context, req R, entity E) error

func (f entityHookFunc[R, E]) HandleEntity(ctx context.Context, req R, entity E) error {
	return f(ctx, req, entity)
}

func entityFactory[R any, E any](s Strategy, name string, get func(Resolver) (EntityHooker[R, E], error)) *Factory {
	return build(KindEntity, s, name, typeinfo.Of[R](), typeinfo.Of[E](), get,
		func(ctx context.Context, h EntityHooker[R, E], a Args) (any, error) {
			req, err := convert[R]("request", a.Request)
			if err != nil {
				return nil, err
			}
			entity, err := convert[E]("entity", a.Value)
			if err != nil {
				return nil, err
			}
			return nil, h.HandleEntity(ctx, req, entity)
		})
}

// EntityFunc builds an entity hook from a function
func EntityFunc[R any, E any](fn func(ctx context.Context, req R, entity E) error) *Factory {
	return entityFactory[R, E](StrategyFunc, funcName(fn), fixed[EntityHooker[R, E]](entityHookFunc[R, E](fn)))
}

// EntityInstance builds an entity hook from a bound instance
func EntityInstance[R any, E any](h EntityHooker[R, E]) *Factory {
	return entityFactory[R, E](StrategyInstance, instanceName(h), fixed(h))
}

// EntityOfType builds an entity hook resolved as H on every invocation
func EntityOfType[R any, E any, H EntityHooker[R, E]]() *Factory {
	return entityFactory[R, E](StrategyType, typeName[H](), func(res Resolver) (EntityHooker[R, E], error) {
		return resolveAs[H](res)
	})
}

// Result hooks

type resultHookFunc[R any, T any] func(ctx context.Context, req R, result T) (T, error)

func (f resultHookFunc[R, T]) HandleResult(ctx context.Context, req R, result T) (T, error) {
	return f(ctx, req, result)
}

func resultFactory[R any, T any](s Strategy, name string, get func(Resolver) (ResultHooker[R, T], error)) *Factory {
	return build(KindResult, s, name, typeinfo.Of[R](), typeinfo.Of[T](), get,
		func(ctx context.Context, h ResultHooker[R, T], a Args) (any, error) {
			req, err := convert[R]("request", a.Request)
			if err != nil {
				return nil, err
			}
			result, err := convert[T]("result", a.Value)
			if err != nil {
				return nil, err
			}
			return h.HandleResult(ctx, req, result)
		})
}

// ResultFunc builds a result hook from a function
func ResultFunc[R any, T any](fn func(ctx context.Context, req R, result T) (T, error)) *Factory {
	return resultFactory[R, T](StrategyFunc, funcName(fn), fixed[ResultHooker[R, T]](resultHookFunc[R, T](fn)))
}

// ResultInstance builds a result hook from a bound instance
func ResultInstance[R any, T any](h ResultHooker[R, T]) *Factory {
	return resultFactory[R, T](StrategyInstance, instanceName(h), fixed(h))
}

// ResultOfType builds a result hook resolved as H on every invocation
func ResultOfType[R any, T any, H ResultHooker[R, T]]() *Factory {
	return resultFactory[R, T](StrategyType, typeName[H](), func(res Resolver) (ResultHooker[R, T], error) {
		return resolveAs[H](res)
	})
}

// Audit hooks

type auditHookFunc[R any, E any] func(ctx context.Context, req R, old, new E) error

func (f auditHookFunc[R, E]) HandleAudit(ctx context.Context, req R, old, new E) error {
	return f(ctx, req, old, new)
}

func auditFactory[R any, E any](s Strategy, name string, get func(Resolver) (AuditHooker[R, E], error)) *Factory {
	return build(KindAudit, s, name, typeinfo.Of[R](), typeinfo.Of[E](), get,
		func(ctx context.Context, h AuditHooker[R, E], a Args) (any, error) {
			req, err := convert[R]("request", a.Request)
			if err != nil {
				return nil, err
			}
			old, err := convert[E]("old entity", a.Old)
			if err != nil {
				return nil, err
			}
			updated, err := convert[E]("new entity", a.New)
			if err != nil {
				return nil, err
			}
			return nil, h.HandleAudit(ctx, req, old, updated)
		})
}

// AuditFunc builds an audit hook from a function
func AuditFunc[R any, E any](fn func(ctx context.Context, req R, old, new E) error) *Factory {
	return auditFactory[R, E](StrategyFunc, funcName(fn), fixed[AuditHooker[R, E]](auditHookFunc[R, E](fn)))
}

// AuditInstance builds an audit hook from a bound instance
func AuditInstance[R any, E any](h AuditHooker[R, E]) *Factory {
	return auditFactory[R, E](StrategyInstance, instanceName(h), fixed(h))
}

// AuditOfType builds an audit hook resolved as H on every invocation
func AuditOfType[R any, E any, H AuditHooker[R, E]]() *Factory {
	return auditFactory[R, E](StrategyType, typeName[H](), func(res Resolver) (AuditHooker[R, E], error) {
		return resolveAs[H](res)
	})
}
