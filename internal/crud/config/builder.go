package config

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/crudkit/internal/crud/faults"
	"github.com/conduit-lang/crudkit/internal/crud/hooks"
	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/selector"
	"github.com/conduit-lang/crudkit/internal/crud/sorter"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrNilSetting is returned when a nil selector, sorter or function is registered
	ErrNilSetting = errors.New("nil setting")
)

// Builder collects the settings of one request type. Profiles are applied
// to the same builder in merge order: list settings append, single
// settings registered again overwrite the earlier value.
type Builder struct {
	requestType  reflect.Type
	interfaces   []reflect.Type
	profile      string
	profiles     []string
	options      Options
	requestHooks []*hooks.Factory
	resultHooks  []*hooks.Factory
	errorHandler faults.Handler
	itemSource   selector.ItemSource
	paging       Paging
	entities     map[reflect.Type]*entityParts
	lists        []listEntry
	errs         []error
}

// NewBuilder creates a builder for requestType. The interfaces are the
// interface types entity lookups should recognise besides those entity
// settings are registered for.
func NewBuilder(requestType reflect.Type, interfaces ...reflect.Type) *Builder {
	return &Builder{
		requestType: typeinfo.Base(requestType),
		interfaces:  interfaces,
		options:     DefaultOptions(),
		entities:    make(map[reflect.Type]*entityParts),
	}
}

// RequestType returns the request type being configured
func (b *Builder) RequestType() reflect.Type {
	return b.requestType
}

// BeginProfile attributes subsequent registrations and errors to a profile
func (b *Builder) BeginProfile(name string) {
	b.profile = name
	b.profiles = append(b.profiles, name)
}

// Fail records a configuration error
func (b *Builder) Fail(err error) {
	if err == nil {
		return
	}
	b.errs = append(b.errs, &faults.ConfigError{RequestType: b.requestType, Profile: b.profile, Err: err})
}

// ConfigureOptions edits the failed-to-find policy
func (b *Builder) ConfigureOptions(fn func(o *Options)) *Builder {
	fn(&b.options)
	return b
}

// AddRequestHook appends a request hook
func (b *Builder) AddRequestHook(f *hooks.Factory) *Builder {
	if b.check(f, hooks.KindRequest, nil) {
		b.requestHooks = append(b.requestHooks, f)
	}
	return b
}

// AddResultHook appends a result hook. The result type is checked at run
// time, where wrapper results are adapted element-wise.
func (b *Builder) AddResultHook(f *hooks.Factory) *Builder {
	if b.check(f, hooks.KindResult, nil) {
		b.resultHooks = append(b.resultHooks, f)
	}
	return b
}

// UseErrorHandler sets the request-wide fault handler
func (b *Builder) UseErrorHandler(h faults.Handler) *Builder {
	if h == nil {
		b.Fail(fmt.Errorf("%w: error handler", ErrNilSetting))
		return b
	}
	b.errorHandler = h
	return b
}

// UseItemSource sets the request-wide item source
func (b *Builder) UseItemSource(src selector.ItemSource) *Builder {
	if src == nil {
		b.Fail(fmt.Errorf("%w: item source", ErrNilSetting))
		return b
	}
	b.itemSource = src
	return b
}

// UsePaging overrides how page number and size are read from the request
func (b *Builder) UsePaging(p Paging) *Builder {
	if p == nil {
		b.Fail(fmt.Errorf("%w: paging", ErrNilSetting))
		return b
	}
	b.paging = p
	return b
}

// Entity returns the builder for settings of entityType. It may be a base
// struct or an interface; the settings then apply to every entity type
// embedding or implementing it.
func (b *Builder) Entity(entityType reflect.Type) *EntityBuilder {
	t := typeinfo.Base(entityType)
	parts, ok := b.entities[t]
	if !ok {
		parts = &entityParts{}
		b.entities[t] = parts
	}
	return &EntityBuilder{b: b, entityType: t, parts: parts}
}

// For returns the entity builder for E
func For[E any](b *Builder) *EntityBuilder {
	return b.Entity(typeinfo.Of[E]())
}

func (b *Builder) check(f *hooks.Factory, kind hooks.Kind, target reflect.Type) bool {
	if f == nil {
		b.Fail(fmt.Errorf("%w: %s hook", ErrNilSetting, kind))
		return false
	}
	if f.Kind() != kind {
		b.Fail(fmt.Errorf("%s hook %s registered as %s hook", f.Kind(), f.Name(), kind))
		return false
	}
	if err := f.Check(b.requestType, target); err != nil {
		b.Fail(err)
		return false
	}
	return true
}

// Build freezes the collected settings
func (b *Builder) Build() (*RequestConfig, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	interfaces := make([]reflect.Type, 0, len(b.interfaces)+len(b.entities))
	interfaces = append(interfaces, b.interfaces...)
	entities := make(map[reflect.Type]*entityParts, len(b.entities))
	for t, p := range b.entities {
		if t.Kind() == reflect.Interface {
			interfaces = append(interfaces, t)
		}
		cp := *p
		entities[t] = &cp
	}

	return &RequestConfig{
		requestType:  b.requestType,
		hierarchy:    typeinfo.NewHierarchy(interfaces...),
		profiles:     append([]string(nil), b.profiles...),
		options:      b.options,
		requestHooks: append([]*hooks.Factory(nil), b.requestHooks...),
		resultHooks:  append([]*hooks.Factory(nil), b.resultHooks...),
		errorHandler: b.errorHandler,
		itemSource:   b.itemSource,
		paging:       b.paging,
		entities:     entities,
		lists:        append([]listEntry(nil), b.lists...),
	}, nil
}

// EntityBuilder registers settings for one entity type
type EntityBuilder struct {
	b          *Builder
	entityType reflect.Type
	parts      *entityParts
}

// Type returns the entity type being configured
func (e *EntityBuilder) Type() reflect.Type {
	return e.entityType
}

// UseSelector sets an explicit selector
func (e *EntityBuilder) UseSelector(s selector.Selector) *EntityBuilder {
	if s == nil {
		e.b.Fail(fmt.Errorf("%w: selector for %s", ErrNilSetting, e.entityType))
		return e
	}
	e.parts.selector = s
	e.parts.requestKeys, e.parts.entityKeys = nil, nil
	return e
}

// UseKeys selects by pairwise equality of request and entity keys
func (e *EntityBuilder) UseKeys(requestKeys, entityKeys key.Keys) *EntityBuilder {
	pairs, err := key.Zip(requestKeys, entityKeys)
	if err != nil {
		e.b.Fail(fmt.Errorf("keys for %s: %w", e.entityType, err))
		return e
	}
	if len(pairs) == 0 {
		return e
	}
	e.parts.selector = nil
	e.parts.requestKeys, e.parts.entityKeys = requestKeys, entityKeys
	return e
}

// UseKey selects by one request member equal to one entity member
func (e *EntityBuilder) UseKey(requestMember, entityMember string) *EntityBuilder {
	reqKey, err := key.Member(e.b.requestType, requestMember)
	if err != nil {
		e.b.Fail(fmt.Errorf("request key: %w", err))
		return e
	}
	return e.UseKeys(key.Keys{reqKey}, key.Keys{memberOrField(e.entityType, entityMember)})
}

// UseBatchKeys sets the keys batch items are matched to entities by.
// Exactly one key per side is allowed.
func (e *EntityBuilder) UseBatchKeys(itemKeys, entityKeys key.Keys) *EntityBuilder {
	ik, ek, err := selector.SingleKeys(itemKeys, entityKeys)
	if err != nil {
		e.b.Fail(fmt.Errorf("batch keys for %s: %w", e.entityType, err))
		return e
	}
	e.parts.itemKey, e.parts.batchKey = ik, ek
	return e
}

// UseBatchKey matches batch items to entities by member name
func (e *EntityBuilder) UseBatchKey(itemMember, entityMember string) *EntityBuilder {
	return e.UseBatchKeys(key.Keys{key.Field(itemMember)}, key.Keys{memberOrField(e.entityType, entityMember)})
}

// UseBatchSelector replaces the collection selector of batch verbs
func (e *EntityBuilder) UseBatchSelector(s selector.Selector) *EntityBuilder {
	if s == nil {
		e.b.Fail(fmt.Errorf("%w: batch selector for %s", ErrNilSetting, e.entityType))
		return e
	}
	e.parts.batchSelector = s
	return e
}

// AddFilter appends a filter
func (e *EntityBuilder) AddFilter(f selector.Filter) *EntityBuilder {
	if f.Build == nil {
		e.b.Fail(fmt.Errorf("%w: filter %q for %s", ErrNilSetting, f.Name, e.entityType))
		return e
	}
	e.b.lists = append(e.b.lists, listEntry{entity: e.entityType, filter: f})
	return e
}

// UseSorter sets the sorter
func (e *EntityBuilder) UseSorter(s sorter.Sorter) *EntityBuilder {
	if s == nil {
		e.b.Fail(fmt.Errorf("%w: sorter for %s", ErrNilSetting, e.entityType))
		return e
	}
	if err := sorter.Validate(s); err != nil {
		e.b.Fail(fmt.Errorf("sorter for %s: %w", e.entityType, err))
		return e
	}
	e.parts.sorter = s
	return e
}

// UseCreator sets the creator
func (e *EntityBuilder) UseCreator(c Creator) *EntityBuilder {
	if c == nil {
		e.b.Fail(fmt.Errorf("%w: creator for %s", ErrNilSetting, e.entityType))
		return e
	}
	e.parts.creator = c
	return e
}

// UseUpdater sets the updater
func (e *EntityBuilder) UseUpdater(u Updater) *EntityBuilder {
	if u == nil {
		e.b.Fail(fmt.Errorf("%w: updater for %s", ErrNilSetting, e.entityType))
		return e
	}
	e.parts.updater = u
	return e
}

// UseResultCreator sets the result creator
func (e *EntityBuilder) UseResultCreator(r ResultCreator) *EntityBuilder {
	if r == nil {
		e.b.Fail(fmt.Errorf("%w: result creator for %s", ErrNilSetting, e.entityType))
		return e
	}
	e.parts.resultCreator = r
	return e
}

// UseDefault sets the value used when a selection finds nothing
func (e *EntityBuilder) UseDefault(d DefaultValue) *EntityBuilder {
	if d == nil {
		e.b.Fail(fmt.Errorf("%w: default for %s", ErrNilSetting, e.entityType))
		return e
	}
	e.parts.defaultValue = d
	return e
}

// UseItemSource sets where the input items for this entity come from
func (e *EntityBuilder) UseItemSource(src selector.ItemSource) *EntityBuilder {
	if src == nil {
		e.b.Fail(fmt.Errorf("%w: item source for %s", ErrNilSetting, e.entityType))
		return e
	}
	e.parts.itemSource = src
	return e
}

// AddItemHook appends an item hook
func (e *EntityBuilder) AddItemHook(f *hooks.Factory) *EntityBuilder {
	if e.b.check(f, hooks.KindItem, nil) {
		e.b.lists = append(e.b.lists, listEntry{entity: e.entityType, hook: f})
	}
	return e
}

// AddEntityHook appends an entity hook
func (e *EntityBuilder) AddEntityHook(f *hooks.Factory) *EntityBuilder {
	if e.b.check(f, hooks.KindEntity, e.entityType) {
		e.b.lists = append(e.b.lists, listEntry{entity: e.entityType, hook: f})
	}
	return e
}

// AddAuditHook appends an audit hook
func (e *EntityBuilder) AddAuditHook(f *hooks.Factory) *EntityBuilder {
	if e.b.check(f, hooks.KindAudit, e.entityType) {
		e.b.lists = append(e.b.lists, listEntry{entity: e.entityType, hook: f})
	}
	return e
}

// UseErrorHandler sets the fault handler for this entity type
func (e *EntityBuilder) UseErrorHandler(h faults.Handler) *EntityBuilder {
	if h == nil {
		e.b.Fail(fmt.Errorf("%w: error handler for %s", ErrNilSetting, e.entityType))
		return e
	}
	e.parts.errorHandler = h
	return e
}
