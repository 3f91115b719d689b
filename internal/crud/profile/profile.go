// Package profile declares request configuration and resolves the merged
// configuration of a concrete request type. Profiles are either closed
// (bound to one request type, base struct or interface) or open generic
// (bound to a generic request definition and instantiated by unifying its
// pattern with the concrete type arguments).
package profile

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/conduit-lang/crudkit/internal/crud/config"
	"github.com/conduit-lang/crudkit/internal/crud/selector"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// Configure applies a closed profile to a builder
type Configure func(b *config.Builder)

// ConfigureGeneric applies an open generic profile with its bindings
type ConfigureGeneric func(b *config.Builder, bind typeinfo.Bindings)

// Profile is one declared unit of configuration
type Profile struct {
	name        string
	requestType reflect.Type
	definition  string
	params      []string
	pattern     []typeinfo.Arg
	configure   ConfigureGeneric
}

// For declares a closed profile for R
func For[R any](configure Configure) *Profile {
	return ForType(typeinfo.Of[R](), configure)
}

// ForType declares a closed profile for requestType, which may be an
// embedded base struct or an interface shared by several requests
func ForType(requestType reflect.Type, configure Configure) *Profile {
	t := typeinfo.Base(requestType)
	return &Profile{
		name:        typeinfo.Name(t),
		requestType: t,
		configure: func(b *config.Builder, _ typeinfo.Bindings) {
			if configure != nil {
				configure(b)
			}
		},
	}
}

// Generic declares an open generic profile. The pattern lists one Arg per
// type argument of the definition; params are the parameters configure
// expects to find bound.
func Generic(definition string, params []string, pattern []typeinfo.Arg, configure ConfigureGeneric) *Profile {
	parts := make([]string, len(pattern))
	for i, a := range pattern {
		parts[i] = a.String()
	}
	return &Profile{
		name:       fmt.Sprintf("%s[%s]", definition, strings.Join(parts, ", ")),
		definition: definition,
		params:     params,
		pattern:    pattern,
		configure:  configure,
	}
}

// Named returns a copy of the profile with another name
func (p *Profile) Named(name string) *Profile {
	cp := *p
	cp.name = name
	return &cp
}

// Name identifies the profile in logs and configuration errors
func (p *Profile) Name() string {
	return p.name
}

// IsGeneric reports whether the profile is open generic
func (p *Profile) IsGeneric() bool {
	return p.definition != ""
}

// RequestType returns the declared request type of a closed profile
func (p *Profile) RequestType() reflect.Type {
	return p.requestType
}

// Default returns a profile applied to requests no declared profile
// matches
func Default(name string, configure Configure) *Profile {
	return &Profile{
		name: name,
		configure: func(b *config.Builder, _ typeinfo.Bindings) {
			if configure != nil {
				configure(b)
			}
		},
	}
}

// PlainDefault is the default profile of single-item requests
func PlainDefault() *Profile {
	return Default("default", nil)
}

// BulkDefault is the default profile of requests carrying Items
func BulkDefault() *Profile {
	return Default("default-bulk", func(b *config.Builder) {
		b.UseItemSource(selector.FromMember("Items"))
	})
}
