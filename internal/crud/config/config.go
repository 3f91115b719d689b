// Package config holds the merged, immutable configuration of one request
// type. Settings are registered per entity type (including embedded base
// structs and interfaces) and looked up across the entity's hierarchy:
// single settings most-derived first, filters and hooks in registration
// order.
package config

import (
	"reflect"
	"sync"

	"github.com/conduit-lang/crudkit/internal/crud/faults"
	"github.com/conduit-lang/crudkit/internal/crud/hooks"
	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/request"
	"github.com/conduit-lang/crudkit/internal/crud/selector"
	"github.com/conduit-lang/crudkit/internal/crud/sorter"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// conventionMember is the member both sides are matched on when nothing
// else is configured
const conventionMember = "ID"

// itemsMember is the request member bulk requests carry their items in
const itemsMember = "Items"

// entityParts is what the builders register for one entity type
type entityParts struct {
	selector      selector.Selector
	requestKeys   key.Keys
	entityKeys    key.Keys
	itemKey       key.Key
	batchKey      key.Key
	batchSelector selector.Selector
	filters       []selector.Filter
	sorter        sorter.Sorter
	creator       Creator
	updater       Updater
	resultCreator ResultCreator
	defaultValue  DefaultValue
	itemSource    selector.ItemSource
	errorHandler  faults.Handler
}

// listEntry is one filter or hook registration. Entries of every entity
// type share one log so inherited lists keep registration order.
type listEntry struct {
	entity reflect.Type
	filter selector.Filter
	hook   *hooks.Factory
}

// EntityConfig is the view of a RequestConfig for one concrete entity
// type, with inherited settings already merged
type EntityConfig struct {
	Type reflect.Type

	// Selector is the explicitly configured selector (or one built from
	// keys), nil when none was configured
	Selector selector.Selector
	// Convention matches the ID members of request and entity
	Convention selector.Selector

	BatchSelector selector.Selector
	ItemKey       key.Key
	EntityKey     key.Key

	Filters       []selector.Filter
	Sorter        sorter.Sorter
	Creator       Creator
	Updater       Updater
	ResultCreator ResultCreator
	Default       DefaultValue
	ItemSource    selector.ItemSource

	ItemHooks   []*hooks.Factory
	EntityHooks []*hooks.Factory
	AuditHooks  []*hooks.Factory

	ErrorHandler faults.Handler
}

// SelectorFor returns the selector a verb uses. Collection reads never
// fall back to the ID convention.
func (e *EntityConfig) SelectorFor(verb request.Verb) selector.Selector {
	if e.Selector != nil {
		return e.Selector
	}
	switch verb {
	case request.VerbGetAll, request.VerbPagedGetAll:
		return nil
	}
	return e.Convention
}

// RequestConfig is the configuration of one concrete request type. It is
// never mutated after Build; merged entity views are memoised.
type RequestConfig struct {
	requestType  reflect.Type
	hierarchy    *typeinfo.Hierarchy
	profiles     []string
	options      Options
	requestHooks []*hooks.Factory
	resultHooks  []*hooks.Factory
	errorHandler faults.Handler
	itemSource   selector.ItemSource
	paging       Paging
	entities     map[reflect.Type]*entityParts
	lists        []listEntry
	merged       sync.Map // reflect.Type -> *EntityConfig
}

// RequestType returns the request type this configuration belongs to
func (c *RequestConfig) RequestType() reflect.Type {
	return c.requestType
}

// Profiles returns the names of the applied profiles in merge order
func (c *RequestConfig) Profiles() []string {
	out := make([]string, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Options returns the failed-to-find policy
func (c *RequestConfig) Options() Options {
	return c.options
}

// RequestHooks returns the request hooks in registration order
func (c *RequestConfig) RequestHooks() []*hooks.Factory {
	return c.requestHooks
}

// ResultHooks returns the result hooks in registration order
func (c *RequestConfig) ResultHooks() []*hooks.Factory {
	return c.resultHooks
}

// ErrorHandler returns the handler for faults concerning entityType: the
// entity's own handler, else the request's, else nil
func (c *RequestConfig) ErrorHandler(entityType reflect.Type) faults.Handler {
	if entityType != nil {
		if h := c.Entity(entityType).ErrorHandler; h != nil {
			return h
		}
	}
	return c.errorHandler
}

// Paging returns the page number and size requested by req
func (c *RequestConfig) Paging(req any) (number, size int) {
	if c.paging != nil {
		return c.paging(req)
	}
	if p, ok := req.(request.Pager); ok {
		return p.Paging()
	}
	return 0, 0
}

// Entity returns the merged view for entityType
func (c *RequestConfig) Entity(entityType reflect.Type) *EntityConfig {
	entityType = typeinfo.Base(entityType)
	if cached, ok := c.merged.Load(entityType); ok {
		return cached.(*EntityConfig)
	}
	actual, _ := c.merged.LoadOrStore(entityType, c.merge(entityType))
	return actual.(*EntityConfig)
}

func (c *RequestConfig) merge(et reflect.Type) *EntityConfig {
	out := &EntityConfig{Type: et}

	ancestors := c.hierarchy.Ancestors(et)
	inherited := make(map[reflect.Type]bool, len(ancestors))
	for _, t := range ancestors {
		inherited[t] = true
		p, ok := c.entities[t]
		if !ok {
			continue
		}

		// singletons: the most-derived registration wins
		if out.Selector == nil {
			switch {
			case p.selector != nil:
				out.Selector = p.selector
			case len(p.requestKeys) > 0:
				out.Selector, _ = selector.ByKeys(p.requestKeys, p.entityKeys)
			}
		}
		if out.BatchSelector == nil && p.batchSelector != nil {
			out.BatchSelector = p.batchSelector
		}
		if out.ItemKey.IsZero() && !p.itemKey.IsZero() {
			out.ItemKey, out.EntityKey = p.itemKey, p.batchKey
		}
		if out.Sorter == nil {
			out.Sorter = p.sorter
		}
		if out.Creator == nil {
			out.Creator = p.creator
		}
		if out.Updater == nil {
			out.Updater = p.updater
		}
		if out.ResultCreator == nil {
			out.ResultCreator = p.resultCreator
		}
		if out.Default == nil {
			out.Default = p.defaultValue
		}
		if out.ItemSource == nil {
			out.ItemSource = p.itemSource
		}
		if out.ErrorHandler == nil {
			out.ErrorHandler = p.errorHandler
		}
	}

	// lists accumulate in registration order, whichever type they were
	// registered for
	registry := hooks.NewRegistry()
	for _, entry := range c.lists {
		if !inherited[entry.entity] {
			continue
		}
		if entry.hook != nil {
			registry.Register(entry.hook)
			continue
		}
		out.Filters = append(out.Filters, entry.filter)
	}
	out.ItemHooks = registry.Hooks(hooks.KindItem)
	out.EntityHooks = registry.Hooks(hooks.KindEntity)
	out.AuditHooks = registry.Hooks(hooks.KindAudit)

	if out.ItemSource == nil {
		out.ItemSource = c.itemSource
	}
	if out.ItemSource == nil {
		out.ItemSource = defaultItemSource(c.requestType)
	}

	out.Convention = conventionSelector(c.requestType, et)

	if out.ItemKey.IsZero() {
		out.ItemKey = key.Field(conventionMember)
		out.EntityKey = memberOrField(et, conventionMember)
	}
	if out.BatchSelector == nil {
		sel, err := selector.Collection(out.ItemSource, key.Keys{out.ItemKey}, key.Keys{out.EntityKey})
		if err != nil {
			sel = failing(err)
		}
		out.BatchSelector = sel
	}

	return out
}

func failing(err error) selector.Selector {
	return func(any) (*predicate.Node, error) { return nil, err }
}

// conventionSelector matches request.ID against entity.ID when both exist
func conventionSelector(requestType, entityType reflect.Type) selector.Selector {
	reqKey, err := key.Member(requestType, conventionMember)
	if err != nil {
		return nil
	}
	entKey, err := key.Member(entityType, conventionMember)
	if err != nil {
		return nil
	}
	sel, _ := selector.ByKeys(key.Keys{reqKey}, key.Keys{entKey})
	return sel
}

// memberOrField resolves a member statically on struct types and lazily
// on interface types
func memberOrField(t reflect.Type, path string) key.Key {
	if k, err := key.Member(t, path); err == nil {
		return k
	}
	return key.Field(path)
}

// defaultItemSource reads a slice named Items, else uses the request itself
func defaultItemSource(requestType reflect.Type) selector.ItemSource {
	if HasItems(requestType) {
		return selector.FromMember(itemsMember)
	}
	return selector.Self()
}

// HasItems reports whether requestType carries a slice member named Items
func HasItems(requestType reflect.Type) bool {
	t := typeinfo.Base(requestType)
	if t == nil || t.Kind() != reflect.Struct {
		return false
	}
	sf, ok := t.FieldByName(itemsMember)
	return ok && sf.IsExported() && sf.Type.Kind() == reflect.Slice
}
