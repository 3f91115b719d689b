package profile

import (
	"errors"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/crudkit/internal/crud/config"
	"github.com/conduit-lang/crudkit/internal/crud/faults"
	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/request"
	"github.com/conduit-lang/crudkit/internal/crud/selector"
	"github.com/conduit-lang/crudkit/internal/crud/sorter"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

type Widget struct {
	ID       int
	Name     string
	Tenant   string
	Archived bool
}

type tenantScoped struct {
	Tenant string
}

type Tagged interface {
	Tag() string
}

type getWidget struct {
	request.Get[Widget, *Widget]
	tenantScoped
	ID int
}

func (*getWidget) Tag() string { return "widget" }

type listWidgets struct {
	request.GetAll[Widget, *Widget]
	tenantScoped
}

type importWidgets struct {
	request.CreateAll[Widget, *Widget]
	Items []Widget
}

type plainWidget struct {
	request.Create[Widget, *Widget]
	Name string
}

func filterNames(ec *config.EntityConfig) []string {
	names := make([]string, len(ec.Filters))
	for i, f := range ec.Filters {
		names[i] = f.Name
	}
	return names
}

func mark(name string) selector.Filter {
	return selector.Predicate(name, func(any) (*predicate.Node, error) { return predicate.Const(true), nil })
}

func named(name string) func(b *config.Builder) {
	return func(b *config.Builder) {
		config.For[Widget](b).AddFilter(mark(name))
	}
}

func TestMergeOrder(t *testing.T) {
	openGet := Generic("request.Get", []string{"E", "Out"},
		[]typeinfo.Arg{typeinfo.Param("E"), typeinfo.Param("Out")},
		func(b *config.Builder, bind typeinfo.Bindings) {
			b.Entity(bind.Type("E")).AddFilter(mark("open"))
		}).Named("get-open")
	boundGet := Generic("request.Get", []string{"E"},
		[]typeinfo.Arg{typeinfo.Param("E"), typeinfo.Bound(typeinfo.Of[*Widget]())},
		func(b *config.Builder, bind typeinfo.Bindings) {
			b.Entity(bind.Type("E")).AddFilter(mark("bound"))
		}).Named("get-bound")

	profiles := []*Profile{
		For[getWidget](named("request")).Named("request"),
		boundGet,
		ForType(typeinfo.Of[tenantScoped](), named("tenant")).Named("tenant"),
		ForType(typeinfo.Of[Tagged](), named("tagged")).Named("tagged"),
		openGet,
		ForType(typeinfo.Any(), named("any")).Named("any"),
	}
	r := NewRegistry(profiles)

	want := []string{"any", "tagged", "tenant", "get-open", "get-bound", "request"}
	names, err := r.Applicable(typeinfo.Of[*getWidget]())
	require.NoError(t, err)
	assert.Equal(t, want, names)

	cfg, err := r.Resolve(typeinfo.Of[getWidget]())
	require.NoError(t, err)
	assert.Equal(t, want, cfg.Profiles())
	assert.Equal(t, typeinfo.Of[getWidget](), cfg.RequestType())
	assert.Equal(t, []string{"any", "tagged", "tenant", "open", "bound", "request"},
		filterNames(cfg.Entity(typeinfo.Of[Widget]())))

	// a sibling request only sees what it shares
	names, err = r.Applicable(typeinfo.Of[listWidgets]())
	require.NoError(t, err)
	assert.Equal(t, []string{"any", "tenant"}, names)
}

func TestSpecificProfileOverridesSingletons(t *testing.T) {
	general := sorter.By(key.Of[Widget]("ID"))
	specific := sorter.ByDescending(key.Of[Widget]("Name"))

	r := NewRegistry([]*Profile{
		For[listWidgets](func(b *config.Builder) {
			config.For[Widget](b).UseSorter(specific).AddFilter(selector.False(key.Of[Widget]("Archived")))
		}),
		ForType(typeinfo.Of[tenantScoped](), func(b *config.Builder) {
			config.For[Widget](b).
				UseSorter(general).
				AddFilter(selector.Equal(key.Of[Widget]("Tenant"), selector.RequestMember("Tenant")))
		}),
	})

	cfg, err := r.Resolve(typeinfo.Of[*listWidgets]())
	require.NoError(t, err)

	ec := cfg.Entity(typeinfo.Of[Widget]())
	assert.Same(t, specific, ec.Sorter)
	assert.Len(t, ec.Filters, 2)

	node, err := selector.Combine(&listWidgets{tenantScoped: tenantScoped{Tenant: "acme"}}, ec.Filters)
	require.NoError(t, err)
	ok, err := node.Eval(&Widget{Tenant: "acme"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = node.Eval(&Widget{Tenant: "acme", Archived: true})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultProfiles(t *testing.T) {
	tests := []struct {
		name     string
		reqType  reflect.Type
		profiles []string
	}{
		{
			name:     "plain request falls back to default",
			reqType:  typeinfo.Of[plainWidget](),
			profiles: []string{"default"},
		},
		{
			name:     "request with items falls back to bulk default",
			reqType:  typeinfo.Of[importWidgets](),
			profiles: []string{"default-bulk"},
		},
		{
			name:     "get by id",
			reqType:  typeinfo.Of[request.GetByID[Widget, int]](),
			profiles: []string{"request.GetByID[E, K]"},
		},
		{
			name:     "delete by id",
			reqType:  typeinfo.Of[request.DeleteByID[Widget, int]](),
			profiles: []string{"request.DeleteByID[E, K]"},
		},
		{
			name:     "create items",
			reqType:  typeinfo.Of[request.CreateItems[Widget]](),
			profiles: []string{"request.CreateItems[E]"},
		},
	}

	r := NewRegistry(DefaultProfiles())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := r.Resolve(tt.reqType)
			require.NoError(t, err)
			assert.Equal(t, tt.profiles, cfg.Profiles())
		})
	}
}

func TestGetByIDSelectsByKey(t *testing.T) {
	r := NewRegistry(DefaultProfiles())
	cfg, err := r.Resolve(typeinfo.Of[request.GetByID[Widget, int]]())
	require.NoError(t, err)

	ec := cfg.Entity(typeinfo.Of[Widget]())
	require.NotNil(t, ec.Selector)
	node, err := ec.Selector(&request.GetByID[Widget, int]{ID: 7})
	require.NoError(t, err)

	ok, err := node.Eval(&Widget{ID: 7})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = node.Eval(&Widget{ID: 8})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCustomDefaults(t *testing.T) {
	r := NewRegistry(nil, WithDefaults(Default("fallback", nil), nil))
	cfg, err := r.Resolve(typeinfo.Of[plainWidget]())
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, cfg.Profiles())

	cfg, err = r.Resolve(typeinfo.Of[importWidgets]())
	require.NoError(t, err)
	assert.Equal(t, []string{"default-bulk"}, cfg.Profiles())
}

func TestConfigurationErrors(t *testing.T) {
	t.Run("unresolved parameter", func(t *testing.T) {
		r := NewRegistry([]*Profile{
			Generic("request.Get", []string{"E", "Missing"},
				[]typeinfo.Arg{typeinfo.Param("E"), typeinfo.Param("Out")},
				func(*config.Builder, typeinfo.Bindings) {}),
		})
		_, err := r.Resolve(typeinfo.Of[getWidget]())
		require.Error(t, err)

		var cfgErr *faults.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "request.Get[E, Out]", cfgErr.Profile)
		assert.ErrorIs(t, err, typeinfo.ErrUnresolvedParam)
	})

	t.Run("failing profile is not cached", func(t *testing.T) {
		calls := 0
		r := NewRegistry([]*Profile{
			For[plainWidget](func(b *config.Builder) {
				calls++
				b.Fail(errors.New("broken"))
			}),
		})
		_, err := r.Resolve(typeinfo.Of[plainWidget]())
		assert.ErrorContains(t, err, "broken")
		_, err = r.Resolve(typeinfo.Of[plainWidget]())
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.Zero(t, r.Builds())
	})

	t.Run("nil request type", func(t *testing.T) {
		_, err := NewRegistry(nil).Resolve(nil)
		assert.Error(t, err)
	})

	t.Run("mismatched pattern is skipped", func(t *testing.T) {
		r := NewRegistry([]*Profile{
			Generic("request.Get", []string{"E"},
				[]typeinfo.Arg{typeinfo.Param("E"), typeinfo.Bound(typeinfo.Of[string]())},
				func(*config.Builder, typeinfo.Bindings) {}),
		})
		names, err := r.Applicable(typeinfo.Of[getWidget]())
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestConcurrentResolve(t *testing.T) {
	var configured atomic.Int64
	r := NewRegistry([]*Profile{
		For[getWidget](func(*config.Builder) { configured.Add(1) }),
		For[listWidgets](func(*config.Builder) { configured.Add(1) }),
	})
	types := []reflect.Type{typeinfo.Of[getWidget](), typeinfo.Of[*listWidgets]()}

	workers := runtime.GOMAXPROCS(0) * 4
	results := make([]*config.RequestConfig, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := r.Resolve(types[i%len(types)])
			assert.NoError(t, err)
			results[i] = cfg
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(2), r.Builds())
	assert.Equal(t, int64(2), configured.Load())
	for i, cfg := range results {
		assert.Same(t, results[i%len(types)], cfg)
	}
}
