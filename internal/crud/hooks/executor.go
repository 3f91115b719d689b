package hooks

import (
	"context"
	"fmt"
	"reflect"

	"github.com/conduit-lang/crudkit/internal/crud/faults"
)

// Executor runs hook lists sequentially in registration order. After
// every invocation the context is checked; once it is done no further
// hook runs. Failures other than cancellation become HookFailed faults.
type Executor struct {
	resolver Resolver
}

// NewExecutor creates a new hook executor
func NewExecutor(resolver Resolver) *Executor {
	return &Executor{resolver: resolver}
}

func (e *Executor) call(ctx context.Context, f *Factory, entityType reflect.Type, a Args) (any, error) {
	out, err := f.Invoke(ctx, e.resolver, a)
	if err != nil {
		if faults.IsCancellation(err) || ctx.Err() != nil {
			return nil, faults.Canceled(err)
		}
		return nil, faults.HookFailed(f.Name(), entityType, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, faults.Canceled(ctxErr)
	}
	return out, nil
}

// RunRequest executes request hooks
func (e *Executor) RunRequest(ctx context.Context, hooks []*Factory, req any) error {
	for _, h := range hooks {
		if _, err := e.call(ctx, h, nil, Args{Request: req}); err != nil {
			return err
		}
	}
	return nil
}

// RunItems runs every item hook over all items before the next hook
// starts. Each hook may replace the items it is given.
func (e *Executor) RunItems(ctx context.Context, hooks []*Factory, req any, items []any) ([]any, error) {
	if len(hooks) == 0 {
		return items, nil
	}
	current := make([]any, len(items))
	copy(current, items)

	for _, h := range hooks {
		for i, item := range current {
			out, err := e.call(ctx, h, nil, Args{Request: req, Value: item})
			if err != nil {
				return nil, err
			}
			current[i] = out
		}
	}
	return current, nil
}

// RunEntity executes entity hooks for one entity
func (e *Executor) RunEntity(ctx context.Context, hooks []*Factory, entityType reflect.Type, req, entity any) error {
	for _, h := range hooks {
		if _, err := e.call(ctx, h, entityType, Args{Request: req, Value: entity}); err != nil {
			return err
		}
	}
	return nil
}

// RunAudit executes audit hooks for one (old, new) pair
func (e *Executor) RunAudit(ctx context.Context, hooks []*Factory, entityType reflect.Type, req, old, updated any) error {
	for _, h := range hooks {
		if _, err := e.call(ctx, h, entityType, Args{Request: req, Old: old, New: updated}); err != nil {
			return err
		}
	}
	return nil
}

// RunResult threads the result through every result hook. A hook whose
// declared type does not accept the runtime result is applied element-wise
// to slices and to the Items of page-like wrappers.
func (e *Executor) RunResult(ctx context.Context, hooks []*Factory, req, result any) (any, error) {
	current := result
	for _, h := range hooks {
		var err error
		if h.Accepts(current) {
			current, err = e.call(ctx, h, nil, Args{Request: req, Value: current})
		} else {
			current, err = e.adapt(ctx, h, req, current)
		}
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

func (e *Executor) adapt(ctx context.Context, h *Factory, req, result any) (any, error) {
	rv := reflect.ValueOf(result)

	switch rv.Kind() {
	case reflect.Slice:
		return e.adaptSlice(ctx, h, req, rv)

	case reflect.Struct:
		items := rv.FieldByName("Items")
		if items.IsValid() && items.Kind() == reflect.Slice {
			adapted, err := e.adaptSlice(ctx, h, req, items)
			if err != nil {
				return nil, err
			}
			cp := reflect.New(rv.Type()).Elem()
			cp.Set(rv)
			cp.FieldByName("Items").Set(reflect.ValueOf(adapted))
			return cp.Interface(), nil
		}

	case reflect.Pointer:
		if !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
			items := rv.Elem().FieldByName("Items")
			if items.IsValid() && items.Kind() == reflect.Slice && items.CanSet() {
				adapted, err := e.adaptSlice(ctx, h, req, items)
				if err != nil {
					return nil, err
				}
				items.Set(reflect.ValueOf(adapted))
				return result, nil
			}
		}
	}

	return nil, faults.HookFailed(h.Name(), nil,
		fmt.Errorf("%w: result %T for declared %s", ErrIncompatible, result, h.TargetType()))
}

func (e *Executor) adaptSlice(ctx context.Context, h *Factory, req any, slice reflect.Value) (any, error) {
	out := reflect.MakeSlice(slice.Type(), slice.Len(), slice.Len())
	reflect.Copy(out, slice)
	elemType := slice.Type().Elem()

	for i := 0; i < out.Len(); i++ {
		elem := out.Index(i).Interface()
		if !h.Accepts(elem) {
			return nil, faults.HookFailed(h.Name(), nil,
				fmt.Errorf("%w: element %T for declared %s", ErrIncompatible, elem, h.TargetType()))
		}
		replaced, err := e.call(ctx, h, nil, Args{Request: req, Value: elem})
		if err != nil {
			return nil, err
		}
		if replaced == nil {
			out.Index(i).Set(reflect.Zero(elemType))
			continue
		}
		// a hook declared on an embedded base mutates in place and returns the base
		if rv := reflect.ValueOf(replaced); rv.Type().AssignableTo(elemType) {
			out.Index(i).Set(rv)
		}
	}
	return out.Interface(), nil
}
