package users

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/crudkit/internal/crud/audit"
	"github.com/conduit-lang/crudkit/internal/crud/engine"
	"github.com/conduit-lang/crudkit/internal/crud/profile"
	"github.com/conduit-lang/crudkit/internal/crud/response"
	"github.com/conduit-lang/crudkit/internal/crud/storage/memory"
	"github.com/conduit-lang/crudkit/internal/crud/storage/sqlstore"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

type fixture struct {
	engine *engine.Engine
	store  *memory.Store
	audit  *audit.MemorySink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sink := audit.NewMemorySink()
	store := memory.New(typeinfo.Of[User]())
	profiles := append(profile.DefaultProfiles(), Profiles(Options{
		DefaultPageSize: 2,
		Audit:           audit.NewRecorder(sink, nil).Hook(),
	})...)
	e := engine.New(profile.NewRegistry(profiles), store,
		engine.WithValidator(engine.ValidatorFunc(Validate)))
	return &fixture{engine: e, store: store, audit: sink}
}

func (f *fixture) importUsers(t *testing.T, items ...Input) []*User {
	t.Helper()
	created, err := engine.Send[[]*User](context.Background(), f.engine, &Import{Items: items})
	require.NoError(t, err)
	return created
}

func names(views []View) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Name
	}
	return out
}

func TestImportNormalizesInput(t *testing.T) {
	f := newFixture(t)
	created := f.importUsers(t, Input{Email: "  Ada@Example.com ", Name: " Ada ", Team: "core"})
	require.Len(t, created, 1)
	assert.Equal(t, "ada@example.com", created[0].Email)
	assert.Equal(t, "Ada", created[0].Name)
	assert.NotZero(t, created[0].ID)

	resp := f.engine.Send(context.Background(), &Import{Items: []Input{{Name: "nobody"}}})
	assert.True(t, resp.HasCode("hook_failed"))
	assert.ErrorIs(t, resp.Err(), ErrInvalidUser)
}

func TestListFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importUsers(t,
		Input{Email: "c@x.io", Name: "carol", Team: "core"},
		Input{Email: "a@x.io", Name: "alice", Team: "ops"},
		Input{Email: "b@x.io", Name: "bob", Team: "core"},
	)

	tests := []struct {
		name string
		req  *List
		want []string
	}{
		{name: "default order", req: &List{}, want: []string{"alice", "bob", "carol"}},
		{name: "descending", req: &List{Desc: true}, want: []string{"carol", "bob", "alice"}},
		{name: "by email", req: &List{SortBy: "email"}, want: []string{"alice", "bob", "carol"}},
		{name: "unknown column falls back", req: &List{SortBy: "shoe size"}, want: []string{"alice", "bob", "carol"}},
		{name: "one team", req: &List{Team: "core"}, want: []string{"bob", "carol"}},
		{name: "empty team", req: &List{Team: "sales"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views, err := engine.Send[[]View](ctx, f.engine, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(views))
		})
	}
}

func TestPageUsesDefaultSize(t *testing.T) {
	f := newFixture(t)
	f.importUsers(t,
		Input{Email: "a@x.io", Name: "a"},
		Input{Email: "b@x.io", Name: "b"},
		Input{Email: "c@x.io", Name: "c"},
	)

	req := &Page{}
	req.PageNumber = 2
	page, err := engine.Send[response.Page[View]](context.Background(), f.engine, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names(page.Items))
	assert.Equal(t, 2, page.PageSize)
	assert.Equal(t, 2, page.PageCount)
	assert.Equal(t, 3, page.TotalItemCount)
}

func TestGetRenameDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := f.importUsers(t, Input{Email: "ada@x.io", Name: "Ada"})[0]

	got, err := engine.Send[*User](ctx, f.engine, &Get{ID: ada.ID})
	require.NoError(t, err)
	assert.Equal(t, ada, got)

	renamed, err := engine.Send[*User](ctx, f.engine, &Rename{ID: ada.ID, Name: "Ada Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", renamed.Name)
	assert.Equal(t, "ada@x.io", renamed.Email)

	resp := f.engine.Send(ctx, &Rename{ID: ada.ID, Name: " "})
	assert.ErrorIs(t, resp.Err(), ErrInvalidUser)

	resp = f.engine.Send(ctx, &Delete{ID: ada.ID})
	require.True(t, resp.OK())
	assert.Zero(t, f.store.Len(typeinfo.Of[User]()))

	resp = f.engine.Send(ctx, &Get{ID: ada.ID})
	assert.True(t, resp.HasCode("failed_to_find"))

	actions := make([]audit.Action, 0, 3)
	for _, e := range f.audit.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete}, actions)
}

func TestCreateRequiresEmail(t *testing.T) {
	f := newFixture(t)
	resp := f.engine.Send(context.Background(), &Create{Name: "anon"})
	assert.ErrorIs(t, resp.Err(), engine.ErrValidationFailed)
	assert.ErrorIs(t, resp.Err(), ErrInvalidUser)

	user, err := engine.Send[*User](context.Background(), f.engine, &Create{Email: "x@y.z", Name: "X", Team: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "ops", user.Team)
}

func TestSyncTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeded := f.importUsers(t,
		Input{Email: "a@x.io", Name: "a", Team: "core"},
		Input{Email: "b@x.io", Name: "b", Team: "core"},
		Input{Email: "o@x.io", Name: "o", Team: "ops"},
	)

	synced, err := engine.Send[[]*User](ctx, f.engine, &SyncTeam{Team: "core", Items: []Input{
		{Email: "A@X.IO", Name: "a2"},
		{Email: "n@x.io", Name: "n"},
	}})
	require.NoError(t, err)
	require.Len(t, synced, 2)
	assert.Equal(t, seeded[0].ID, synced[0].ID, "matched by email")
	assert.Equal(t, "a@x.io", synced[0].Email)
	assert.Equal(t, "a2", synced[0].Name)
	assert.Equal(t, "n@x.io", synced[1].Email)
	assert.Equal(t, "n", synced[1].Name)
	assert.Equal(t, "core", synced[1].Team)

	again, err := engine.Send[[]*User](ctx, f.engine, &SyncTeam{Team: "core", Items: []Input{
		{Email: "a@x.io", Name: "a2"},
		{Email: "n@x.io", Name: "n"},
	}})
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, synced[0].ID, again[0].ID)
	assert.Equal(t, synced[1].ID, again[1].ID)

	core, err := engine.Send[[]View](ctx, f.engine, &List{Team: "core"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "n"}, names(core))

	ops, err := engine.Send[[]View](ctx, f.engine, &List{Team: "ops"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o"}, names(ops))
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS users_team_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db, sqlstore.SQLite))
	require.NoError(t, mock.ExpectationsWereMet())

	err = Migrate(context.Background(), db, sqlstore.Dialect{Name: "oracle"})
	assert.ErrorIs(t, err, sqlstore.ErrUnsupportedDriver)
}
