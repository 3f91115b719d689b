// Package join reconciles incoming batch items with existing entities.
package join

import (
	"fmt"

	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// Pair is one row of a full outer join. A nil Entity means the item has no
// match and must be created; a nil Item means the entity exists but is no
// longer part of the incoming batch.
type Pair struct {
	Item   any
	Entity any
}

// Matched reports whether both sides are present
func (p Pair) Matched() bool {
	return p.Item != nil && p.Entity != nil
}

// FullOuter joins items to entities on one scalar key per side. Items come
// first in input order, each paired with every entity sharing its key, then
// the entities no item matched, in entity order. Items with a zero key never
// match. Several items sharing a key all pair with the same entity.
func FullOuter(items, entities []any, itemKey, entityKey key.Key) ([]Pair, error) {
	index := make(map[any][]int, len(entities))
	for i, e := range entities {
		v, err := entityKey.Value(e)
		if err != nil {
			return nil, fmt.Errorf("entity key %s: %w", entityKey, err)
		}
		if typeinfo.IsZero(v) {
			continue
		}
		k := predicate.Normalize(v)
		index[k] = append(index[k], i)
	}

	matched := make([]bool, len(entities))
	pairs := make([]Pair, 0, len(items)+len(entities))

	for _, item := range items {
		v, err := itemKey.Value(item)
		if err != nil {
			return nil, fmt.Errorf("item key %s: %w", itemKey, err)
		}

		var hits []int
		if !typeinfo.IsZero(v) {
			hits = index[predicate.Normalize(v)]
		}
		if len(hits) == 0 {
			pairs = append(pairs, Pair{Item: item})
			continue
		}
		for _, i := range hits {
			matched[i] = true
			pairs = append(pairs, Pair{Item: item, Entity: entities[i]})
		}
	}

	for i, e := range entities {
		if !matched[i] {
			pairs = append(pairs, Pair{Entity: e})
		}
	}
	return pairs, nil
}

// Split partitions pairs into items to create, matched pairs to update and
// entities without an incoming item
func Split(pairs []Pair) (creates []any, updates []Pair, orphans []any) {
	for _, p := range pairs {
		switch {
		case p.Matched():
			updates = append(updates, p)
		case p.Item != nil:
			creates = append(creates, p.Item)
		case p.Entity != nil:
			orphans = append(orphans, p.Entity)
		}
	}
	return creates, updates, orphans
}
