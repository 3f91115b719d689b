package profile

import (
	"github.com/conduit-lang/crudkit/internal/crud/config"
	"github.com/conduit-lang/crudkit/internal/crud/selector"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// DefaultProfiles returns the open generic profiles of the built-in
// request shapes in package request
func DefaultProfiles() []*Profile {
	byID := func(b *config.Builder, bind typeinfo.Bindings) {
		b.Entity(bind.Type("E")).UseKey("ID", "ID")
	}
	return []*Profile{
		Generic("request.GetByID", []string{"E", "K"},
			[]typeinfo.Arg{typeinfo.Param("E"), typeinfo.Param("K")}, byID),
		Generic("request.DeleteByID", []string{"E", "K"},
			[]typeinfo.Arg{typeinfo.Param("E"), typeinfo.Param("K")}, byID),
		Generic("request.CreateItems", []string{"E"},
			[]typeinfo.Arg{typeinfo.Param("E")},
			func(b *config.Builder, _ typeinfo.Bindings) {
				b.UseItemSource(selector.FromMember("Items"))
			}),
	}
}
