package config

import (
	"context"
	"fmt"

	"github.com/conduit-lang/crudkit/internal/crud/request"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// Options toggles whether a missing entity is an error, per verb
type Options struct {
	FailedToFindInGetIsError       bool
	FailedToFindInGetAllIsError    bool
	FailedToFindInUpdateIsError    bool
	FailedToFindInUpdateAllIsError bool
	FailedToFindInDeleteIsError    bool
	FailedToFindInDeleteAllIsError bool
}

// DefaultOptions treats a missing entity as an error for single-entity
// verbs only
func DefaultOptions() Options {
	return Options{
		FailedToFindInGetIsError:       true,
		FailedToFindInGetAllIsError:    false,
		FailedToFindInUpdateIsError:    true,
		FailedToFindInUpdateAllIsError: false,
		FailedToFindInDeleteIsError:    true,
		FailedToFindInDeleteAllIsError: false,
	}
}

// FailedToFindIsError returns the toggle that applies to verb
func (o Options) FailedToFindIsError(verb request.Verb) bool {
	switch verb {
	case request.VerbGet:
		return o.FailedToFindInGetIsError
	case request.VerbGetAll, request.VerbPagedGetAll:
		return o.FailedToFindInGetAllIsError
	case request.VerbUpdate:
		return o.FailedToFindInUpdateIsError
	case request.VerbUpdateAll:
		return o.FailedToFindInUpdateAllIsError
	case request.VerbDelete:
		return o.FailedToFindInDeleteIsError
	case request.VerbDeleteAll:
		return o.FailedToFindInDeleteAllIsError
	default:
		return false
	}
}

// Creator builds a new entity from an input item
type Creator func(ctx context.Context, req, item any) (any, error)

// Updater applies an input item to an existing entity and returns it
type Updater func(ctx context.Context, req, item, entity any) (any, error)

// ResultCreator projects an entity into the request's result type
type ResultCreator func(ctx context.Context, req, entity any) (any, error)

// DefaultValue supplies the entity used when a selection finds nothing
type DefaultValue func(req any) (any, error)

// Paging extracts the page number and size from a request
type Paging func(req any) (number, size int)

func mismatch(what string, v any, want string) error {
	return fmt.Errorf("%s: %T is not %s", what, v, want)
}

// CreateWith adapts a typed creator
func CreateWith[R any, I any, E any](fn func(ctx context.Context, req R, item I) (E, error)) Creator {
	return func(ctx context.Context, req, item any) (any, error) {
		r, ok := typeinfo.To[R](req)
		if !ok {
			return nil, mismatch("creator request", req, typeinfo.Of[R]().String())
		}
		i, ok := typeinfo.To[I](item)
		if !ok {
			return nil, mismatch("creator item", item, typeinfo.Of[I]().String())
		}
		return fn(ctx, r, i)
	}
}

// UpdateWith adapts a typed updater
func UpdateWith[R any, I any, E any](fn func(ctx context.Context, req R, item I, entity E) (E, error)) Updater {
	return func(ctx context.Context, req, item, entity any) (any, error) {
		r, ok := typeinfo.To[R](req)
		if !ok {
			return nil, mismatch("updater request", req, typeinfo.Of[R]().String())
		}
		i, ok := typeinfo.To[I](item)
		if !ok {
			return nil, mismatch("updater item", item, typeinfo.Of[I]().String())
		}
		e, ok := typeinfo.To[E](entity)
		if !ok {
			return nil, mismatch("updater entity", entity, typeinfo.Of[E]().String())
		}
		return fn(ctx, r, i, e)
	}
}

// ResultWith adapts a typed result creator
func ResultWith[R any, E any, T any](fn func(ctx context.Context, req R, entity E) (T, error)) ResultCreator {
	return func(ctx context.Context, req, entity any) (any, error) {
		r, ok := typeinfo.To[R](req)
		if !ok {
			return nil, mismatch("result creator request", req, typeinfo.Of[R]().String())
		}
		e, ok := typeinfo.To[E](entity)
		if !ok {
			return nil, mismatch("result creator entity", entity, typeinfo.Of[E]().String())
		}
		return fn(ctx, r, e)
	}
}

// DefaultWith adapts a typed default value factory
func DefaultWith[R any, E any](fn func(req R) E) DefaultValue {
	return func(req any) (any, error) {
		r, ok := typeinfo.To[R](req)
		if !ok {
			return nil, mismatch("default value request", req, typeinfo.Of[R]().String())
		}
		return fn(r), nil
	}
}

// PagingWith adapts a typed paging accessor
func PagingWith[R any](fn func(req R) (number, size int)) Paging {
	return func(req any) (int, int) {
		r, ok := typeinfo.To[R](req)
		if !ok {
			return 0, 0
		}
		return fn(r)
	}
}
