package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/crudkit/internal/crud/config"
	"github.com/conduit-lang/crudkit/internal/crud/hooks"
	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/profile"
	"github.com/conduit-lang/crudkit/internal/crud/selector"
	"github.com/conduit-lang/crudkit/internal/crud/sorter"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// ErrInvalidUser is returned by Validate for incomplete users
var ErrInvalidUser = errors.New("invalid user")

// Options tunes the profiles
type Options struct {
	// DefaultPageSize applies when a page request carries no size
	DefaultPageSize int
	// Audit receives every create, update and delete; nil disables auditing
	Audit *hooks.Factory
}

// sortable is implemented by the list requests
type sortable interface {
	descending() bool
}

func (l *List) descending() bool { return l.Desc }
func (p *Page) descending() bool { return p.Desc }

// sortTable maps SortBy values to columns
func sortTable() *sorter.Table {
	return sorter.NewTable().
		Column("name", key.Of[User]("Name")).
		Column("email", key.Of[User]("Email")).
		Column("team", key.Of[User]("Team")).
		Column("id", key.Of[User]("ID")).
		Default("name").
		Primary(sorter.ControlMember("SortBy"), sorter.DirectionFunc(sortable.descending))
}

// teamFilter restricts queries to the requested team when one is given
func teamFilter() selector.Filter {
	return selector.Equal(key.Of[User]("Team"), selector.RequestMember("Team")).
		When(func(req any) bool {
			team, err := key.Field("Team").Value(req)
			return err == nil && team != ""
		})
}

// Profiles returns the configuration of every request of the package
func Profiles(opts Options) []*profile.Profile {
	return []*profile.Profile{
		profile.ForType(typeinfo.Any(), func(b *config.Builder) {
			if opts.Audit != nil {
				config.For[User](b).AddAuditHook(opts.Audit)
			}
		}),

		profile.For[List](func(b *config.Builder) {
			config.For[User](b).
				AddFilter(teamFilter()).
				UseSorter(sortTable())
		}),

		profile.For[Page](func(b *config.Builder) {
			config.For[User](b).
				AddFilter(teamFilter()).
				UseSorter(sortTable())
			b.UsePaging(config.PagingWith(func(p *Page) (int, int) {
				size := p.PageSize
				if size == 0 {
					size = opts.DefaultPageSize
				}
				return p.PageNumber, size
			}))
		}),

		profile.For[Import](func(b *config.Builder) {
			config.For[User](b).AddItemHook(hooks.ItemFunc(normalize))
		}),

		profile.For[SyncTeam](func(b *config.Builder) {
			config.For[User](b).
				UseBatchKey("Email", "Email").
				AddFilter(selector.Equal(key.Of[User]("Team"), selector.RequestMember("Team"))).
				AddItemHook(hooks.ItemFunc(normalize)).
				AddItemHook(hooks.ItemFunc(func(_ context.Context, req *SyncTeam, in *Input) (*Input, error) {
					in.Team = req.Team
					return in, nil
				}))
		}),
	}
}

// normalize trims input and lowercases emails
func normalize(_ context.Context, _ any, in *Input) (*Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	return in, nil
}

// Validate rejects creates without an email
func Validate(_ context.Context, req any) error {
	switch r := req.(type) {
	case *Create:
		if strings.TrimSpace(r.Email) == "" {
			return fmt.Errorf("%w: email is required", ErrInvalidUser)
		}
	case *Rename:
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: name is required", ErrInvalidUser)
		}
	}
	return nil
}
