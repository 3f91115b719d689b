package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

type Account struct {
	ID      int
	Tenant  string
	Name    string
	Active  bool
	Balance float64
}

type getAccount struct {
	ID     int
	Tenant string
}

type accountItem struct {
	ID   int
	Name string
}

type syncAccounts struct {
	Tenant     string
	OnlyActive bool
	Items      []accountItem
}

func TestByKeys(t *testing.T) {
	sel, err := ByKeys(
		key.Keys{key.Of[getAccount]("ID"), key.Of[getAccount]("Tenant")},
		key.Keys{key.Of[Account]("ID"), key.Of[Account]("Tenant")},
	)
	require.NoError(t, err)
	require.NotNil(t, sel)

	node, err := sel(&getAccount{ID: 2, Tenant: "acme"})
	require.NoError(t, err)

	hit, err := node.Eval(&Account{ID: 2, Tenant: "acme"})
	require.NoError(t, err)
	assert.True(t, hit)

	miss, err := node.Eval(&Account{ID: 2, Tenant: "other"})
	require.NoError(t, err)
	assert.False(t, miss)
}

func TestByKeysEmptyAndMismatch(t *testing.T) {
	sel, err := ByKeys(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, sel)

	_, err = ByKeys(key.Keys{key.Of[getAccount]("ID")}, key.Keys{key.Of[Account]("ID"), key.Of[Account]("Tenant")})
	assert.ErrorIs(t, err, key.ErrKeyMismatch)

	_, err = ByMembers(typeinfo.Of[getAccount](), typeinfo.Of[Account](), []string{"ID", "Tenant"}, []string{"ID"})
	assert.ErrorIs(t, err, key.ErrKeyMismatch)

	_, err = ByMembers(typeinfo.Of[getAccount](), typeinfo.Of[Account](), []string{"Nope"}, []string{"ID"})
	assert.ErrorIs(t, err, key.ErrMemberNotFound)
}

func TestCollection(t *testing.T) {
	sel, err := Collection(FromMember("Items"), key.Keys{key.Of[accountItem]("ID")}, key.Keys{key.Of[Account]("ID")})
	require.NoError(t, err)

	req := &syncAccounts{Items: []accountItem{{ID: 1}, {ID: 0, Name: "new"}, {ID: 3}}}
	node, err := sel(req)
	require.NoError(t, err)
	require.Equal(t, predicate.KindIn, node.Kind)
	assert.Equal(t, []any{1, 3}, node.Values)

	counter, args := 1, []any{}
	sql, err := node.ToSQL(predicate.Dollar, &counter, &args)
	require.NoError(t, err)
	assert.Equal(t, "id IN ($1, $2)", sql)
}

func TestCollectionRejectsCompositeAndMixedTypes(t *testing.T) {
	_, err := Collection(Self(), key.Keys{key.Of[accountItem]("ID"), key.Of[accountItem]("Name")},
		key.Keys{key.Of[Account]("ID"), key.Of[Account]("Name")})
	assert.ErrorIs(t, err, ErrCompositeKey)

	_, err = Collection(Self(), key.Keys{key.Of[accountItem]("Name")}, key.Keys{key.Of[Account]("ID")})
	assert.ErrorIs(t, err, ErrKeyTypeMismatch)

	_, err = Collection(Self(), nil, nil)
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestFilters(t *testing.T) {
	req := &syncAccounts{Tenant: "acme", OnlyActive: true}
	filters := []Filter{
		Equal(key.Of[Account]("Tenant"), RequestMember("Tenant")),
		True(key.Of[Account]("Active")).When(If(func(r *syncAccounts) bool { return r.OnlyActive })),
		GreaterThan(key.Of[Account]("Balance"), Const(10.0)),
	}

	node, err := Combine(req, filters)
	require.NoError(t, err)

	accounts := []any{
		&Account{ID: 1, Tenant: "acme", Active: true, Balance: 20},
		&Account{ID: 2, Tenant: "acme", Active: false, Balance: 20},
		&Account{ID: 3, Tenant: "other", Active: true, Balance: 20},
		&Account{ID: 4, Tenant: "acme", Active: true, Balance: 5},
	}
	kept, err := predicate.Filter(node, accounts)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, 1, kept[0].(*Account).ID)

	// disabled condition drops the Active filter
	req.OnlyActive = false
	node, err = Combine(req, filters)
	require.NoError(t, err)
	kept, err = predicate.Filter(node, accounts)
	require.NoError(t, err)
	assert.Len(t, kept, 2)
}

func TestFilterCombinators(t *testing.T) {
	name := key.Of[Account]("Name")
	a := &Account{Name: "alpha"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"equal", Equal(name, Const("alpha")), true},
		{"not equal", NotEqual(name, Const("alpha")), false},
		{"less", LessThan(name, Const("b")), true},
		{"less or equal", LessThanOrEqual(name, Const("alpha")), true},
		{"greater", GreaterThan(name, Const("b")), false},
		{"greater or equal", GreaterThanOrEqual(name, Const("alpha")), true},
		{"contains", Contains(name, RequestFunc(func(r *getAccount) string { return r.Tenant })), true},
		{"false", False(key.Of[Account]("Active")), true},
		{"not null", NotNull(name), true},
		{"null", Null(name), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Combine(&getAccount{Tenant: "lph"}, []Filter{tt.filter})
			require.NoError(t, err)
			got, err := n.Eval(a)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItemSources(t *testing.T) {
	req := &syncAccounts{Items: []accountItem{{ID: 1}, {ID: 2}}}

	items, err := FromMember("Items")(req)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// elements are addressed, so mutations reach the request
	items[0].(*accountItem).Name = "changed"
	assert.Equal(t, "changed", req.Items[0].Name)

	items, err = Self()(req)
	require.NoError(t, err)
	assert.Equal(t, []any{req}, items)

	_, err = FromMember("Missing")(req)
	assert.ErrorIs(t, err, key.ErrMemberNotFound)

	items, err = FromFunc(func(r *syncAccounts) []accountItem { return r.Items })(req)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestWhere(t *testing.T) {
	sel := Where(func(r *getAccount) *predicate.Node {
		return predicate.Equal(key.Of[Account]("ID").Operand(), r.ID*10)
	})
	node, err := sel(&getAccount{ID: 3})
	require.NoError(t, err)
	ok, err := node.Eval(&Account{ID: 30})
	require.NoError(t, err)
	assert.True(t, ok)
}
