package profile

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/conduit-lang/crudkit/internal/crud/config"
	"github.com/conduit-lang/crudkit/internal/crud/faults"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// Registry resolves the configuration of request types from a fixed set
// of declared profiles. Resolved configurations are built once and cached
// for the registry's lifetime.
type Registry struct {
	closed           map[reflect.Type][]*Profile
	generic          map[string][]*Profile
	order            map[*Profile]int
	hierarchy        *typeinfo.Hierarchy
	entityInterfaces []reflect.Type
	plain            *Profile
	bulk             *Profile
	logger           *zap.Logger

	group  singleflight.Group
	cache  sync.Map // reflect.Type -> *config.RequestConfig
	builds atomic.Int64
}

// Option configures a registry
type Option func(*Registry)

// WithLogger sets the logger used for configuration builds
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaults replaces the profiles used when nothing else applies
func WithDefaults(plain, bulk *Profile) Option {
	return func(r *Registry) {
		if plain != nil {
			r.plain = plain
		}
		if bulk != nil {
			r.bulk = bulk
		}
	}
}

// WithEntityInterfaces registers interface types entity settings are
// looked up under even when no profile registers settings for them
func WithEntityInterfaces(types ...reflect.Type) Option {
	return func(r *Registry) {
		r.entityInterfaces = append(r.entityInterfaces, types...)
	}
}

// NewRegistry indexes the declared profiles: closed ones by request type,
// generic ones by definition. Declaration order breaks merge-order ties.
func NewRegistry(profiles []*Profile, opts ...Option) *Registry {
	r := &Registry{
		closed:  make(map[reflect.Type][]*Profile),
		generic: make(map[string][]*Profile),
		order:   make(map[*Profile]int, len(profiles)),
		plain:   PlainDefault(),
		bulk:    BulkDefault(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	requestInterfaces := make([]reflect.Type, 0)
	for i, p := range profiles {
		if p == nil {
			continue
		}
		r.order[p] = i
		if p.IsGeneric() {
			r.generic[p.definition] = append(r.generic[p.definition], p)
			continue
		}
		if p.requestType == nil {
			continue
		}
		if p.requestType.Kind() == reflect.Interface && len(r.closed[p.requestType]) == 0 {
			requestInterfaces = append(requestInterfaces, p.requestType)
		}
		r.closed[p.requestType] = append(r.closed[p.requestType], p)
	}
	r.hierarchy = typeinfo.NewHierarchy(requestInterfaces...)
	return r
}

// Builds returns how many configurations have been built
func (r *Registry) Builds() int64 {
	return r.builds.Load()
}

// Resolve returns the configuration of requestType, building it on first
// use. Concurrent first calls share one build.
func (r *Registry) Resolve(requestType reflect.Type) (*config.RequestConfig, error) {
	t := typeinfo.Base(requestType)
	if t == nil {
		return nil, &faults.ConfigError{Err: fmt.Errorf("nil request type")}
	}
	if cached, ok := r.cache.Load(t); ok {
		return cached.(*config.RequestConfig), nil
	}

	v, err, _ := r.group.Do(t.PkgPath()+"|"+t.String(), func() (any, error) {
		if cached, ok := r.cache.Load(t); ok {
			return cached, nil
		}
		cfg, err := r.build(t)
		if err != nil {
			return nil, err
		}
		actual, _ := r.cache.LoadOrStore(t, cfg)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}

	cfg := v.(*config.RequestConfig)
	if cfg.RequestType() != t {
		// distinct types sharing a name; build outside the flight
		built, err := r.build(t)
		if err != nil {
			return nil, err
		}
		actual, _ := r.cache.LoadOrStore(t, built)
		return actual.(*config.RequestConfig), nil
	}
	return cfg, nil
}

// applied is one profile instantiated for a concrete request type
type applied struct {
	profile  *Profile
	bindings typeinfo.Bindings
	depth    int
}

// Applicable returns the names of the profiles that apply to
// requestType, in merge order
func (r *Registry) Applicable(requestType reflect.Type) ([]string, error) {
	list, err := r.collect(typeinfo.Base(requestType))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.profile.name
	}
	return names, nil
}

// collect walks the request hierarchy and instantiates every matching
// profile. The result is ordered most general first: farthest ancestor
// first, then generic profiles by ascending bound-argument count, then
// closed profiles, then declaration order.
func (r *Registry) collect(t reflect.Type) ([]applied, error) {
	ancestors := r.hierarchy.Ancestors(t)
	out := make([]applied, 0)

	for depth, a := range ancestors {
		for _, p := range r.closed[a] {
			out = append(out, applied{profile: p, depth: depth})
		}

		shape, ok := typeinfo.ShapeFor(a)
		if !ok {
			continue
		}
		for _, p := range r.generic[shape.Definition] {
			bindings, err := typeinfo.Unify(p.pattern, shape)
			if err != nil {
				// not generically compatible with this instantiation
				continue
			}
			if err := bindings.Resolve(p.params); err != nil {
				return nil, &faults.ConfigError{RequestType: t, Profile: p.name, Err: err}
			}
			out = append(out, applied{profile: p, bindings: bindings, depth: depth})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.depth != b.depth {
			return a.depth > b.depth
		}
		if a.profile.IsGeneric() != b.profile.IsGeneric() {
			return a.profile.IsGeneric()
		}
		if a.profile.IsGeneric() {
			ca, cb := typeinfo.BoundCount(a.profile.pattern), typeinfo.BoundCount(b.profile.pattern)
			if ca != cb {
				return ca < cb
			}
		}
		return r.order[a.profile] < r.order[b.profile]
	})
	return out, nil
}

func (r *Registry) build(t reflect.Type) (*config.RequestConfig, error) {
	start := time.Now()
	list, err := r.collect(t)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		def := r.plain
		if config.HasItems(t) {
			def = r.bulk
		}
		list = append(list, applied{profile: def})
	}

	b := config.NewBuilder(t, r.entityInterfaces...)
	for _, a := range list {
		b.BeginProfile(a.profile.name)
		a.profile.configure(b, a.bindings)
	}

	cfg, err := b.Build()
	if err != nil {
		r.logger.Debug("request configuration failed",
			zap.String("request", typeinfo.Name(t)),
			zap.Error(err),
		)
		return nil, err
	}

	r.builds.Add(1)
	r.logger.Debug("request configuration built",
		zap.String("request", typeinfo.Name(t)),
		zap.Strings("profiles", cfg.Profiles()),
		zap.Duration("took", time.Since(start)),
	)
	return cfg, nil
}
