package engine

import (
	"context"
	"fmt"
	"reflect"

	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/crudkit/internal/crud/config"
	"github.com/conduit-lang/crudkit/internal/crud/faults"
	"github.com/conduit-lang/crudkit/internal/crud/join"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/request"
	"github.com/conduit-lang/crudkit/internal/crud/selector"
	"github.com/conduit-lang/crudkit/internal/crud/storage"
)

// execution is the state of one request passing through its pipeline
type execution struct {
	engine *Engine
	req    any
	desc   request.Descriptor
	cfg    *config.RequestConfig
	ec     *config.EntityConfig
	uow    storage.Context
	set    storage.Set

	// audits holds the (old, new) pairs written by this request
	audits []auditPair
}

type auditPair struct {
	old     any
	updated any
}

// checkpoint aborts the pipeline once ctx is done
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return faults.Canceled(err)
	}
	return nil
}

func (x *execution) run(ctx context.Context) (any, error) {
	if err := x.engine.hooks.RunRequest(ctx, x.cfg.RequestHooks(), x.req); err != nil {
		return nil, err
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	switch x.desc.Verb {
	case request.VerbCreate:
		return x.create(ctx)
	case request.VerbCreateAll:
		return x.createAll(ctx)
	case request.VerbGet:
		return x.get(ctx)
	case request.VerbGetAll:
		return x.getAll(ctx)
	case request.VerbPagedGetAll:
		return x.pagedGetAll(ctx)
	case request.VerbUpdate:
		return x.update(ctx)
	case request.VerbUpdateAll:
		return x.updateAll(ctx)
	case request.VerbDelete:
		return x.delete(ctx)
	case request.VerbDeleteAll:
		return x.deleteAll(ctx)
	case request.VerbSave:
		return x.save(ctx)
	case request.VerbMerge:
		return x.merge(ctx, false)
	case request.VerbSynchronize:
		return x.merge(ctx, true)
	}
	return nil, faults.Failed(fmt.Errorf("unsupported verb %s", x.desc.Verb))
}

// items reads the raw input items and runs the item hooks of batch verbs
func (x *execution) items(ctx context.Context) ([]any, error) {
	items, err := x.ec.ItemSource(x.req)
	if err != nil {
		return nil, faults.FailedFor(x.desc.Entity, fmt.Errorf("failed to read items: %w", err))
	}
	if !x.desc.Verb.Batch() {
		return items, nil
	}
	items, err = x.engine.hooks.RunItems(ctx, x.ec.ItemHooks, x.req, items)
	if err != nil {
		return nil, err
	}
	return items, checkpoint(ctx)
}

// item returns the single input item; the request itself when the item
// source yields nothing
func (x *execution) item(ctx context.Context) (any, error) {
	items, err := x.items(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return x.req, nil
	}
	return items[0], nil
}

// where ANDs the selector with every enabled filter
func (x *execution) where(sel selector.Selector) (*predicate.Node, error) {
	nodes := make([]*predicate.Node, 0, 2)
	if sel != nil {
		n, err := sel(x.req)
		if err != nil {
			return nil, faults.FailedFor(x.desc.Entity, fmt.Errorf("failed to build selector: %w", err))
		}
		nodes = append(nodes, n)
	}
	filtered, err := selector.Combine(x.req, x.ec.Filters)
	if err != nil {
		return nil, faults.FailedFor(x.desc.Entity, err)
	}
	nodes = append(nodes, filtered)
	return predicate.And(nodes...), nil
}

func (x *execution) query(ctx context.Context, where *predicate.Node, skip, take int) ([]any, error) {
	var orders []predicate.Order
	if x.ec.Sorter != nil {
		var err error
		orders, err = x.ec.Sorter.Orders(x.req)
		if err != nil {
			return nil, faults.FailedFor(x.desc.Entity, fmt.Errorf("failed to sort: %w", err))
		}
	}
	entities, err := x.set.Query(ctx, storage.Query{Where: where, OrderBy: orders, Skip: skip, Take: take})
	if err != nil {
		return nil, faults.Wrap(x.desc.Entity, err)
	}
	return entities, checkpoint(ctx)
}

// selectOne locates zero or one entity with the verb's selector
func (x *execution) selectOne(ctx context.Context) (any, error) {
	sel := x.ec.SelectorFor(x.desc.Verb)
	if sel == nil {
		return nil, faults.FailedFor(x.desc.Entity, ErrNoSelector)
	}
	where, err := x.where(sel)
	if err != nil {
		return nil, err
	}
	found, err := x.query(ctx, where, 0, 1)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// batch selects the existing entities matching the incoming items
func (x *execution) batch(ctx context.Context) ([]any, error) {
	where, err := x.where(x.ec.BatchSelector)
	if err != nil {
		return nil, err
	}
	return x.query(ctx, where, 0, 0)
}

// missing applies the not-found policy of the verb: the configured
// default entity, a FailedToFind fault, or nothing
func (x *execution) missing(useDefault bool) (any, error) {
	if useDefault && x.ec.Default != nil {
		v, err := x.ec.Default(x.req)
		if err != nil {
			return nil, faults.FailedFor(x.desc.Entity, fmt.Errorf("failed to build default: %w", err))
		}
		if v != nil {
			return x.asEntity(v)
		}
	}
	if x.cfg.Options().FailedToFindIsError(x.desc.Verb) {
		return nil, faults.FailedToFind(x.desc.Entity)
	}
	return nil, nil
}

// asEntity normalises creator and updater output to *E
func (x *execution) asEntity(v any) (any, error) {
	et := x.desc.Entity
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return nil, fmt.Errorf("nil entity for %s", et)
	case rv.Type() == reflect.PointerTo(et):
		if rv.IsNil() {
			return nil, fmt.Errorf("nil entity for %s", et)
		}
		return v, nil
	case rv.Type() == et:
		p := reflect.New(et)
		p.Elem().Set(rv)
		return p.Interface(), nil
	}
	return nil, fmt.Errorf("%T is not %s", v, et)
}

func (x *execution) snapshot(entity any) (any, error) {
	if len(x.ec.AuditHooks) == 0 {
		return nil, nil
	}
	old, err := x.engine.mapper.Clone(entity)
	if err != nil {
		return nil, faults.FailedFor(x.desc.Entity, fmt.Errorf("failed to snapshot entity: %w", err))
	}
	return old, nil
}

// entityHooks runs the entity hooks over each entity in order
func (x *execution) entityHooks(ctx context.Context, entities []any) error {
	for _, entity := range entities {
		if err := x.engine.hooks.RunEntity(ctx, x.ec.EntityHooks, x.desc.Entity, x.req, entity); err != nil {
			return err
		}
	}
	return checkpoint(ctx)
}

func (x *execution) createOne(ctx context.Context, item any) (any, error) {
	et := x.desc.Entity
	var (
		v   any
		err error
	)
	if x.ec.Creator != nil {
		v, err = x.ec.Creator(ctx, x.req, item)
	} else {
		v, err = x.engine.mapper.Map(item, reflect.PointerTo(et))
	}
	if err == nil {
		v, err = x.asEntity(v)
	}
	if err != nil {
		if faults.IsCancellation(err) {
			return nil, faults.Canceled(err)
		}
		return nil, faults.CreateEntityFailed(et, item, err)
	}
	return v, nil
}

// createEntities runs the creator for every item concurrently, then the
// entity hooks sequentially in item order
func (x *execution) createEntities(ctx context.Context, items []any) ([]any, error) {
	entities := make([]any, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			entity, err := x.createOne(gctx, item)
			if err != nil {
				return err
			}
			entities[i] = entity
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	if err := x.entityHooks(ctx, entities); err != nil {
		return nil, err
	}
	for _, entity := range entities {
		x.audits = append(x.audits, auditPair{updated: entity})
	}
	return entities, nil
}

func (x *execution) updateOne(ctx context.Context, item, entity any) (any, error) {
	et := x.desc.Entity
	var (
		v   any
		err error
	)
	if x.ec.Updater != nil {
		v, err = x.ec.Updater(ctx, x.req, item, entity)
	} else {
		err = x.engine.mapper.MapInto(item, entity)
		v = entity
	}
	if err == nil {
		v, err = x.asEntity(v)
	}
	if err != nil {
		if faults.IsCancellation(err) {
			return nil, faults.Canceled(err)
		}
		return nil, faults.UpdateEntityFailed(et, item, entity, err)
	}
	return v, nil
}

// updateEntities runs the updater for every pair. Pairs sharing an entity
// are applied to it one after another in pair order; distinct entities are
// updated concurrently. Snapshots, entity hooks and audits happen once per
// entity. The result is aligned with pairs.
func (x *execution) updateEntities(ctx context.Context, pairs []join.Pair) ([]any, error) {
	groups := groupByEntity(pairs)

	olds := make([]any, len(groups))
	for gi, group := range groups {
		old, err := x.snapshot(pairs[group[0]].Entity)
		if err != nil {
			return nil, err
		}
		olds[gi] = old
	}

	finals := make([]any, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for gi, group := range groups {
		g.Go(func() error {
			entity := pairs[group[0]].Entity
			for _, i := range group {
				updated, err := x.updateOne(gctx, pairs[i].Item, entity)
				if err != nil {
					return err
				}
				entity = updated
			}
			finals[gi] = entity
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	if err := x.entityHooks(ctx, finals); err != nil {
		return nil, err
	}
	for gi, entity := range finals {
		x.audits = append(x.audits, auditPair{old: olds[gi], updated: entity})
	}

	entities := make([]any, len(pairs))
	for gi, group := range groups {
		for _, i := range group {
			entities[i] = finals[gi]
		}
	}
	return entities, nil
}

// groupByEntity returns pair indexes grouped by entity identity, groups in
// order of first appearance
func groupByEntity(pairs []join.Pair) [][]int {
	var groups [][]int
	seen := make(map[any]int, len(pairs))
	for i, p := range pairs {
		if hashable(p.Entity) {
			if gi, ok := seen[p.Entity]; ok {
				groups[gi] = append(groups[gi], i)
				continue
			}
			seen[p.Entity] = len(groups)
		}
		groups = append(groups, []int{i})
	}
	return groups
}

// distinct drops repeated entities, keeping first appearances
func distinct(entities []any) []any {
	if len(entities) < 2 {
		return entities
	}
	out := make([]any, 0, len(entities))
	seen := make(map[any]bool, len(entities))
	for _, e := range entities {
		if hashable(e) {
			if seen[e] {
				continue
			}
			seen[e] = true
		}
		out = append(out, e)
	}
	return out
}

func hashable(v any) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}

// deleteEntities runs the entity hooks and stages the deletions
func (x *execution) deleteEntities(ctx context.Context, entities []any) error {
	if len(entities) == 0 {
		return nil
	}
	if err := x.entityHooks(ctx, entities); err != nil {
		return err
	}
	if err := x.set.DeleteMany(ctx, entities); err != nil {
		return faults.Wrap(x.desc.Entity, err)
	}
	for _, entity := range entities {
		x.audits = append(x.audits, auditPair{old: entity})
	}
	return nil
}

// stage hands created and updated entities to the set
func (x *execution) stage(ctx context.Context, created, updated []any) error {
	if len(created) > 0 {
		if err := x.set.CreateMany(ctx, created); err != nil {
			return faults.Wrap(x.desc.Entity, err)
		}
	}
	if len(updated) > 0 {
		if err := x.set.UpdateMany(ctx, distinct(updated)); err != nil {
			return faults.Wrap(x.desc.Entity, err)
		}
	}
	return nil
}

// commit persists every staged mutation once, then runs the audit hooks
func (x *execution) commit(ctx context.Context) error {
	if err := checkpoint(ctx); err != nil {
		return err
	}
	if err := x.uow.Commit(ctx); err != nil {
		return faults.Wrap(x.desc.Entity, fmt.Errorf("failed to commit: %w", err))
	}
	for _, a := range x.audits {
		if err := x.engine.hooks.RunAudit(ctx, x.ec.AuditHooks, x.desc.Entity, x.req, a.old, a.updated); err != nil {
			return err
		}
	}
	return checkpoint(ctx)
}

// project builds the result value of one entity
func (x *execution) project(ctx context.Context, entity any) (any, error) {
	if x.desc.Result == nil || entity == nil {
		return nil, nil
	}
	var (
		v   any
		err error
	)
	switch {
	case x.ec.ResultCreator != nil:
		v, err = x.ec.ResultCreator(ctx, x.req, entity)
	case reflect.TypeOf(entity).AssignableTo(x.desc.Result):
		v = entity
	default:
		v, err = x.engine.mapper.Map(entity, x.desc.Result)
	}
	if err == nil {
		v, err = x.desc.One(v)
	}
	if err != nil {
		if faults.IsCancellation(err) {
			return nil, faults.Canceled(err)
		}
		return nil, faults.CreateResultFailed(x.desc.Entity, entity, err)
	}
	return v, nil
}

func (x *execution) projectAll(ctx context.Context, entities []any) ([]any, error) {
	values := make([]any, 0, len(entities))
	for _, entity := range entities {
		v, err := x.project(ctx, entity)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// collect projects entities into the typed result slice
func (x *execution) collect(ctx context.Context, entities []any) (any, error) {
	if x.desc.Result == nil {
		return nil, nil
	}
	values, err := x.projectAll(ctx, entities)
	if err != nil {
		return nil, err
	}
	out, err := x.desc.Collect(values)
	if err != nil {
		return nil, faults.CreateResultFailed(x.desc.Entity, nil, err)
	}
	return out, nil
}

// finish runs the result hooks
func (x *execution) finish(ctx context.Context, result any) (any, error) {
	if result == nil {
		return nil, checkpoint(ctx)
	}
	out, err := x.engine.hooks.RunResult(ctx, x.cfg.ResultHooks(), x.req, result)
	if err != nil {
		return nil, err
	}
	return out, checkpoint(ctx)
}
