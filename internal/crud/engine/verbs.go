package engine

import (
	"context"
	"fmt"

	"github.com/conduit-lang/crudkit/internal/crud/faults"
	"github.com/conduit-lang/crudkit/internal/crud/join"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/request"
	"github.com/conduit-lang/crudkit/internal/crud/selector"
)

func (x *execution) create(ctx context.Context) (any, error) {
	item, err := x.item(ctx)
	if err != nil {
		return nil, err
	}
	created, err := x.createEntities(ctx, []any{item})
	if err != nil {
		return nil, err
	}
	if err := x.stage(ctx, created, nil); err != nil {
		return nil, err
	}
	if err := x.commit(ctx); err != nil {
		return nil, err
	}
	result, err := x.project(ctx, created[0])
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

func (x *execution) createAll(ctx context.Context) (any, error) {
	items, err := x.items(ctx)
	if err != nil {
		return nil, err
	}
	created, err := x.createEntities(ctx, items)
	if err != nil {
		return nil, err
	}
	if err := x.stage(ctx, created, nil); err != nil {
		return nil, err
	}
	if err := x.commit(ctx); err != nil {
		return nil, err
	}
	result, err := x.collect(ctx, created)
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

func (x *execution) get(ctx context.Context) (any, error) {
	entity, err := x.selectOne(ctx)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		if entity, err = x.missing(true); entity == nil || err != nil {
			return nil, err
		}
	}
	if err := x.entityHooks(ctx, []any{entity}); err != nil {
		return nil, err
	}
	result, err := x.project(ctx, entity)
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

func (x *execution) getAll(ctx context.Context) (any, error) {
	where, err := x.where(x.ec.SelectorFor(request.VerbGetAll))
	if err != nil {
		return nil, err
	}
	entities, err := x.query(ctx, where, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		if _, err := x.missing(false); err != nil {
			return nil, err
		}
	}
	if err := x.entityHooks(ctx, entities); err != nil {
		return nil, err
	}
	result, err := x.collect(ctx, entities)
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

// Pagination computes the page actually served. The page count is
// ceil(total/size) and the number is clamped into [1, count]; a size of
// zero or less puts everything on a single page.
func Pagination(number, size, total int) (page, pageSize, pageCount, skip, take int) {
	if size <= 0 {
		count := 0
		if total > 0 {
			count = 1
		}
		return 1, total, count, 0, 0
	}
	pageCount = (total + size - 1) / size
	page = number
	if page > pageCount {
		page = pageCount
	}
	if page < 1 {
		page = 1
	}
	return page, size, pageCount, (page - 1) * size, size
}

func (x *execution) pagedGetAll(ctx context.Context) (any, error) {
	where, err := x.where(x.ec.SelectorFor(request.VerbPagedGetAll))
	if err != nil {
		return nil, err
	}
	total, err := x.set.Count(ctx, where)
	if err != nil {
		return nil, faults.Wrap(x.desc.Entity, err)
	}
	if total == 0 {
		if _, err := x.missing(false); err != nil {
			return nil, err
		}
	}

	number, size := x.cfg.Paging(x.req)
	page, pageSize, pageCount, skip, take := Pagination(number, size, total)

	entities, err := x.query(ctx, where, skip, take)
	if err != nil {
		return nil, err
	}
	if err := x.entityHooks(ctx, entities); err != nil {
		return nil, err
	}
	if x.desc.Result == nil {
		return x.finish(ctx, nil)
	}
	values, err := x.projectAll(ctx, entities)
	if err != nil {
		return nil, err
	}
	result, err := x.desc.Page(values, page, pageSize, pageCount, total)
	if err != nil {
		return nil, faults.CreateResultFailed(x.desc.Entity, nil, err)
	}
	return x.finish(ctx, result)
}

func (x *execution) update(ctx context.Context) (any, error) {
	item, err := x.item(ctx)
	if err != nil {
		return nil, err
	}
	entity, err := x.selectOne(ctx)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		_, err := x.missing(false)
		return nil, err
	}
	updated, err := x.updateEntities(ctx, []join.Pair{{Item: item, Entity: entity}})
	if err != nil {
		return nil, err
	}
	if err := x.stage(ctx, nil, updated); err != nil {
		return nil, err
	}
	if err := x.commit(ctx); err != nil {
		return nil, err
	}
	result, err := x.project(ctx, updated[0])
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

func (x *execution) updateAll(ctx context.Context) (any, error) {
	items, err := x.items(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := x.batch(ctx)
	if err != nil {
		return nil, err
	}
	pairs, err := join.FullOuter(items, existing, x.ec.ItemKey, x.ec.EntityKey)
	if err != nil {
		return nil, faults.FailedFor(x.desc.Entity, err)
	}
	unmatched, matched, _ := join.Split(pairs)
	if len(unmatched) > 0 && x.cfg.Options().FailedToFindIsError(request.VerbUpdateAll) {
		f := faults.FailedToFind(x.desc.Entity)
		f.Items = unmatched
		return nil, f
	}

	updated, err := x.updateEntities(ctx, matched)
	if err != nil {
		return nil, err
	}
	if err := x.stage(ctx, nil, updated); err != nil {
		return nil, err
	}
	if err := x.commit(ctx); err != nil {
		return nil, err
	}
	result, err := x.collect(ctx, updated)
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

func (x *execution) delete(ctx context.Context) (any, error) {
	entity, err := x.selectOne(ctx)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		_, err := x.missing(false)
		return nil, err
	}
	if err := x.deleteEntities(ctx, []any{entity}); err != nil {
		return nil, err
	}
	if err := x.commit(ctx); err != nil {
		return nil, err
	}
	result, err := x.project(ctx, entity)
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

// deleteAll removes what the explicit selector matches, else what the
// batch selector matches
func (x *execution) deleteAll(ctx context.Context) (any, error) {
	sel := x.ec.Selector
	if sel == nil {
		sel = x.ec.BatchSelector
	}
	where, err := x.where(sel)
	if err != nil {
		return nil, err
	}
	entities, err := x.query(ctx, where, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		if _, err := x.missing(false); err != nil {
			return nil, err
		}
	}
	if err := x.deleteEntities(ctx, entities); err != nil {
		return nil, err
	}
	if err := x.commit(ctx); err != nil {
		return nil, err
	}
	result, err := x.collect(ctx, entities)
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

// save updates the selected entity or creates one when none matches.
// Without a selector it always creates.
func (x *execution) save(ctx context.Context) (any, error) {
	item, err := x.item(ctx)
	if err != nil {
		return nil, err
	}

	var entity any
	if x.ec.SelectorFor(request.VerbSave) != nil {
		if entity, err = x.selectOne(ctx); err != nil {
			return nil, err
		}
	}

	var saved []any
	if entity == nil {
		if saved, err = x.createEntities(ctx, []any{item}); err != nil {
			return nil, err
		}
		err = x.stage(ctx, saved, nil)
	} else {
		if saved, err = x.updateEntities(ctx, []join.Pair{{Item: item, Entity: entity}}); err != nil {
			return nil, err
		}
		err = x.stage(ctx, nil, saved)
	}
	if err != nil {
		return nil, err
	}
	if err := x.commit(ctx); err != nil {
		return nil, err
	}
	result, err := x.project(ctx, saved[0])
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

// merge creates unmatched items and updates matched pairs. With prune set
// it also deletes the entities in scope that no incoming item matches:
// those satisfying the filters but not the batch selector.
func (x *execution) merge(ctx context.Context, prune bool) (any, error) {
	items, err := x.items(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := x.batch(ctx)
	if err != nil {
		return nil, err
	}
	pairs, err := join.FullOuter(items, existing, x.ec.ItemKey, x.ec.EntityKey)
	if err != nil {
		return nil, faults.FailedFor(x.desc.Entity, err)
	}
	creates, updates, _ := join.Split(pairs)

	var orphans []any
	if prune {
		if orphans, err = x.outOfBatch(ctx); err != nil {
			return nil, err
		}
	}

	created, err := x.createEntities(ctx, creates)
	if err != nil {
		return nil, err
	}
	updated, err := x.updateEntities(ctx, updates)
	if err != nil {
		return nil, err
	}
	if err := x.stage(ctx, created, updated); err != nil {
		return nil, err
	}

	if err := x.deleteEntities(ctx, orphans); err != nil {
		return nil, err
	}

	if err := x.commit(ctx); err != nil {
		return nil, err
	}

	// results follow the incoming item order
	saved := make([]any, 0, len(created)+len(updated))
	ci, ui := 0, 0
	for _, p := range pairs {
		switch {
		case p.Matched():
			saved = append(saved, updated[ui])
			ui++
		case p.Item != nil:
			saved = append(saved, created[ci])
			ci++
		}
	}
	result, err := x.collect(ctx, saved)
	if err != nil {
		return nil, err
	}
	return x.finish(ctx, result)
}

// outOfBatch selects the entities in scope that the batch selector does
// not match
func (x *execution) outOfBatch(ctx context.Context) ([]any, error) {
	batch, err := x.ec.BatchSelector(x.req)
	if err != nil {
		return nil, faults.FailedFor(x.desc.Entity, fmt.Errorf("failed to build batch selector: %w", err))
	}
	scope, err := selector.Combine(x.req, x.ec.Filters)
	if err != nil {
		return nil, faults.FailedFor(x.desc.Entity, err)
	}
	return x.query(ctx, predicate.And(scope, predicate.Not(batch)), 0, 0)
}
