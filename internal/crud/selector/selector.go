// Package selector synthesises request-dependent predicates: selectors that
// locate entities, batch collection selectors and conditional filters.
package selector

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrCompositeKey is returned when a batch path is given more than one key
	ErrCompositeKey = errors.New("composite keys are not supported for batch selection")

	// ErrKeyTypeMismatch is returned when item and entity keys extract different types
	ErrKeyTypeMismatch = errors.New("item and entity keys have different value types")

	// ErrNoKeys is returned when a batch selector is built without keys
	ErrNoKeys = errors.New("no keys given")
)

// Selector builds the predicate locating entities for one request
type Selector func(req any) (*predicate.Node, error)

// ByKeys matches entities whose entity keys equal the request keys pairwise.
// Empty key lists yield a nil selector so that a later default can apply.
func ByKeys(requestKeys, entityKeys key.Keys) (Selector, error) {
	pairs, err := key.Zip(requestKeys, entityKeys)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	return func(req any) (*predicate.Node, error) {
		nodes := make([]*predicate.Node, 0, len(pairs))
		for _, p := range pairs {
			v, err := p.Request.Value(req)
			if err != nil {
				return nil, fmt.Errorf("request key %s: %w", p.Request, err)
			}
			nodes = append(nodes, predicate.Equal(p.Entity.Operand(), v))
		}
		return predicate.And(nodes...), nil
	}, nil
}

// ByMembers resolves member names on both types and delegates to ByKeys
func ByMembers(requestType, entityType reflect.Type, requestMembers, entityMembers []string) (Selector, error) {
	if len(requestMembers) != len(entityMembers) && len(requestMembers) > 0 && len(entityMembers) > 0 {
		return nil, fmt.Errorf("%w: %d request members, %d entity members",
			key.ErrKeyMismatch, len(requestMembers), len(entityMembers))
	}
	reqKeys, err := key.Members(requestType, requestMembers...)
	if err != nil {
		return nil, err
	}
	entKeys, err := key.Members(entityType, entityMembers...)
	if err != nil {
		return nil, err
	}
	return ByKeys(reqKeys, entKeys)
}

// Custom wraps a user supplied predicate factory
func Custom(fn func(req any) (*predicate.Node, error)) Selector {
	return fn
}

// Where builds a selector from a typed request function
func Where[R any](fn func(req R) *predicate.Node) Selector {
	return func(req any) (*predicate.Node, error) {
		typed, ok := typeinfo.To[R](req)
		if !ok {
			return nil, fmt.Errorf("selector expects %s, got %T", typeinfo.Of[R](), req)
		}
		return fn(typed), nil
	}
}

// Collection matches entities whose key is among the keys of the incoming
// items. Items whose key is the zero value are ignored.
func Collection(source ItemSource, itemKeys, entityKeys key.Keys) (Selector, error) {
	itemKey, entityKey, err := SingleKeys(itemKeys, entityKeys)
	if err != nil {
		return nil, err
	}

	return func(req any) (*predicate.Node, error) {
		items, err := source(req)
		if err != nil {
			return nil, err
		}
		values, err := CollectKeys(items, itemKey)
		if err != nil {
			return nil, err
		}
		return predicate.In(entityKey.Operand(), values), nil
	}, nil
}

// SingleKeys validates a batch key pair: exactly one key per side, of the
// same value type when both types are known
func SingleKeys(itemKeys, entityKeys key.Keys) (key.Key, key.Key, error) {
	if len(itemKeys) == 0 || len(entityKeys) == 0 {
		return key.Key{}, key.Key{}, ErrNoKeys
	}
	if len(itemKeys) > 1 || len(entityKeys) > 1 {
		return key.Key{}, key.Key{}, ErrCompositeKey
	}
	ik, ek := itemKeys[0], entityKeys[0]
	if ik.ValueType != nil && ek.ValueType != nil && typeinfo.Base(ik.ValueType) != typeinfo.Base(ek.ValueType) {
		return key.Key{}, key.Key{}, fmt.Errorf("%w: %s vs %s", ErrKeyTypeMismatch, ik.ValueType, ek.ValueType)
	}
	return ik, ek, nil
}

// CollectKeys extracts the non-zero keys of items in order
func CollectKeys(items []any, k key.Key) ([]any, error) {
	values := make([]any, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		v, err := k.Value(item)
		if err != nil {
			return nil, fmt.Errorf("item key %s: %w", k, err)
		}
		if typeinfo.IsZero(v) {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}
