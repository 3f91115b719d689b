package sorter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
)

type Person struct {
	ID        int
	Name      string
	IsDeleted bool
}

type SortColumn string

const (
	ColumnNone      SortColumn = ""
	ColumnName      SortColumn = "name"
	ColumnIsDeleted SortColumn = "deleted"
	ColumnID        SortColumn = "id"
)

type listPeople struct {
	SortBy     SortColumn
	ThenBy     SortColumn
	Descending bool
	Mode       string
}

var (
	byID      = key.Of[Person]("ID")
	byName    = key.Of[Person]("Name")
	byDeleted = key.Of[Person]("IsDeleted")
)

func people() []any {
	return []any{
		&Person{ID: 1, Name: "carol", IsDeleted: true},
		&Person{ID: 2, Name: "alice", IsDeleted: false},
		&Person{ID: 3, Name: "bob", IsDeleted: true},
		&Person{ID: 4, Name: "dave", IsDeleted: false},
	}
}

func ids(entities []any) []int {
	out := make([]int, len(entities))
	for i, e := range entities {
		out[i] = e.(*Person).ID
	}
	return out
}

func apply(t *testing.T, s Sorter, req any) []int {
	t.Helper()
	orders, err := s.Orders(req)
	require.NoError(t, err)
	entities := people()
	require.NoError(t, predicate.Sort(entities, orders))
	return ids(entities)
}

func TestChain(t *testing.T) {
	s := By(byDeleted).ThenByDescending(byName)
	assert.Equal(t, []int{4, 2, 1, 3}, apply(t, s, nil))

	assert.Equal(t, []int{4, 3, 2, 1}, apply(t, ByDescending(byID), nil))
}

func TestConditional(t *testing.T) {
	s := When(func(req any) bool { return req.(*listPeople).Mode == "name" }, By(byName)).
		When(func(req any) bool { return req.(*listPeople).Mode == "id-desc" }, ByDescending(byID)).
		Otherwise(By(byID))

	assert.Equal(t, []int{2, 3, 1, 4}, apply(t, s, &listPeople{Mode: "name"}))
	assert.Equal(t, []int{4, 3, 2, 1}, apply(t, s, &listPeople{Mode: "id-desc"}))
	assert.Equal(t, []int{1, 2, 3, 4}, apply(t, s, &listPeople{Mode: "other"}))

	noFallback := When(func(any) bool { return false }, By(byName))
	orders, err := noFallback.Orders(&listPeople{})
	require.NoError(t, err)
	assert.Nil(t, orders)
}

func TestSwitchFallback(t *testing.T) {
	control := ControlFunc(func(r *listPeople) SortColumn { return r.SortBy })

	withDefault := On(control).
		Case(ColumnID, ByDescending(byID)).
		Case(ColumnName, By(byName)).
		Default(By(byName))

	withoutDefault := On(control).
		Case(ColumnID, ByDescending(byID)).
		Case(ColumnName, By(byName))

	tests := []struct {
		name   string
		sorter Sorter
		sortBy SortColumn
		want   []int
	}{
		{"known case", withDefault, ColumnID, []int{4, 3, 2, 1}},
		{"unknown uses declared default", withDefault, "bogus", []int{2, 3, 1, 4}},
		{"unknown uses first case", withoutDefault, "bogus", []int{4, 3, 2, 1}},
		{"control read by member", On(ControlMember("SortBy")).Case(ColumnName, By(byName)), ColumnName, []int{2, 3, 1, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apply(t, tt.sorter, &listPeople{SortBy: tt.sortBy}))
		})
	}
}

func newPeopleTable() *Table {
	return NewTable().
		Column(ColumnName, byName).
		Column(ColumnIsDeleted, byDeleted).
		Column(ColumnID, byID).
		Primary(ControlMember("SortBy"), Ascending()).
		Secondary(ControlMember("ThenBy"), DirectionFunc(func(r *listPeople) bool { return r.Descending }))
}

func TestTableSecondaryColumn(t *testing.T) {
	table := newPeopleTable()

	// grouped by IsDeleted ascending, then Name descending within each group
	got := apply(t, table, &listPeople{SortBy: ColumnIsDeleted, ThenBy: ColumnName, Descending: true})
	assert.Equal(t, []int{4, 2, 1, 3}, got)

	// names are unique, so the secondary column never changes the order
	got = apply(t, table, &listPeople{SortBy: ColumnName, ThenBy: ColumnIsDeleted})
	assert.Equal(t, []int{2, 3, 1, 4}, got)
}

func TestTableFallbacks(t *testing.T) {
	orders, err := newPeopleTable().Orders(&listPeople{SortBy: ColumnName})
	require.NoError(t, err)
	require.Len(t, orders, 1, "zero secondary control means no secondary column")

	// unknown primary without default falls back to the first column
	assert.Equal(t, []int{2, 3, 1, 4}, apply(t, newPeopleTable(), &listPeople{SortBy: "bogus"}))

	// unknown primary with default uses the default column
	withDefault := newPeopleTable().Default(ColumnID)
	assert.Equal(t, []int{1, 2, 3, 4}, apply(t, withDefault, &listPeople{SortBy: "bogus"}))

	// unknown secondary follows the same fallback
	orders, err = withDefault.Orders(&listPeople{SortBy: ColumnIsDeleted, ThenBy: "bogus"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ID", orders[1].Operand.Name)
	assert.False(t, orders[1].Descending)

	// no primary control means no ordering at all
	orders, err = NewTable().Column(ColumnName, byName).Orders(&listPeople{})
	require.NoError(t, err)
	assert.Nil(t, orders)
}

func TestInvalidDefinitions(t *testing.T) {
	control := ControlMember("SortBy")
	isName := func(req any) bool { return req.(*listPeople).Mode == "name" }

	tests := []struct {
		name   string
		sorter Sorter
		nested bool
	}{
		{"switch without control", On(nil).Case(ColumnID, By(byID)), false},
		{"switch with nil case", On(control).Case(ColumnID, nil), false},
		{"switch with nil default", On(control).Case(ColumnID, By(byID)).Default(nil), false},
		{"conditional with nil condition", When(nil, By(byName)), false},
		{"conditional with nil branch sorter", When(isName, nil), false},
		{"conditional with nil otherwise", When(isName, By(byName)).Otherwise(nil), false},
		{"nested invalid switch", When(isName, On(control).Default(nil)).Otherwise(By(byID)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.sorter), ErrInvalid)

			req := &listPeople{SortBy: "bogus", Mode: "other"}
			assert.NotPanics(t, func() {
				_, err := tt.sorter.Orders(req)
				if !tt.nested {
					assert.ErrorIs(t, err, ErrInvalid)
				}
			})
		})
	}

	assert.NoError(t, Validate(By(byID)))
	assert.NoError(t, Validate(On(control).Case(ColumnID, By(byID)).Default(By(byName))))
}
