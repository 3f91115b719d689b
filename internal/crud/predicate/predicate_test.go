package predicate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type post struct {
	ID        int
	Title     string
	Views     int64
	Deleted   bool
	Tags      []string
	Author    *string
	Published time.Time
}

func field(name, column string, get func(p *post) any) Operand {
	return Operand{
		Name:   name,
		Column: column,
		Get: func(entity any) (any, error) {
			return get(entity.(*post)), nil
		},
	}
}

var (
	idOp      = field("ID", "id", func(p *post) any { return p.ID })
	titleOp   = field("Title", "title", func(p *post) any { return p.Title })
	viewsOp   = field("Views", "views", func(p *post) any { return p.Views })
	deletedOp = field("Deleted", "deleted", func(p *post) any { return p.Deleted })
	tagsOp    = field("Tags", "tags", func(p *post) any { return p.Tags })
	authorOp  = field("Author", "author", func(p *post) any { return p.Author })
)

func TestEval(t *testing.T) {
	author := "ada"
	p := &post{ID: 3, Title: "Hello world", Views: 10, Tags: []string{"go", "sql"}, Author: &author}

	tests := []struct {
		name string
		node *Node
		want bool
	}{
		{"nil matches all", nil, true},
		{"equal across int kinds", Equal(idOp, int64(3)), true},
		{"equal miss", Equal(idOp, 4), false},
		{"not equal", NotEqual(titleOp, "other"), true},
		{"less than", LessThan(viewsOp, 11), true},
		{"less or equal", LessThanOrEqual(viewsOp, 10), true},
		{"greater than", GreaterThan(viewsOp, 10), false},
		{"greater or equal float", GreaterThanOrEqual(viewsOp, 9.5), true},
		{"in", In(idOp, []any{1, 2, 3}), true},
		{"in empty", In(idOp, nil), false},
		{"contains string", Contains(titleOp, "lo wo"), true},
		{"contains slice", Contains(tagsOp, "sql"), true},
		{"contains slice miss", Contains(tagsOp, "rust"), false},
		{"not null pointer", NotNull(authorOp), true},
		{"equal through pointer", Equal(authorOp, "ada"), true},
		{"false", False(deletedOp), true},
		{"true", True(deletedOp), false},
		{"and", And(Equal(idOp, 3), True(deletedOp)), false},
		{"or", Or(Equal(idOp, 9), False(deletedOp)), true},
		{"not", Not(Equal(idOp, 3)), false},
		{"not of match all", Not(nil), false},
		{"custom", Custom("long title", func(e any) (bool, error) {
			return len(e.(*post).Title) > 5, nil
		}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.node.Eval(p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalNullOrdering(t *testing.T) {
	p := &post{}
	ok, err := LessThan(authorOp, "z").Eval(p)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsNull(authorOp).Eval(p)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Equal(authorOp, nil).Eval(p)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalPropagatesCustomError(t *testing.T) {
	boom := errors.New("boom")
	_, err := And(Equal(idOp, 0), Custom("", func(any) (bool, error) { return false, boom })).Eval(&post{})
	assert.ErrorIs(t, err, boom)
}

func TestCombineFlattensAndSkipsNil(t *testing.T) {
	a := Equal(idOp, 1)
	b := Equal(titleOp, "x")
	c := Equal(viewsOp, 2)

	assert.Nil(t, And())
	assert.Same(t, a, And(nil, a, nil))

	n := And(And(a, b), c)
	require.Equal(t, KindAnd, n.Kind)
	assert.Len(t, n.Children, 3)

	assert.Same(t, a, Not(Not(a)))
}

func TestToSQL(t *testing.T) {
	tests := []struct {
		name     string
		node     *Node
		ph       Placeholder
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "equality postgres",
			node:     And(Equal(idOp, 3), Equal(titleOp, "a")),
			ph:       Dollar,
			wantSQL:  "(id = $1) AND (title = $2)",
			wantArgs: []any{int64(3), "a"},
		},
		{
			name:     "in sqlite",
			node:     In(idOp, []any{1, 2}),
			ph:       Question,
			wantSQL:  "id IN (?, ?)",
			wantArgs: []any{int64(1), int64(2)},
		},
		{
			name:     "empty in",
			node:     In(idOp, []any{}),
			ph:       Dollar,
			wantSQL:  "1 = 0",
			wantArgs: []any{},
		},
		{
			name:     "negated in",
			node:     Not(In(idOp, []any{7})),
			ph:       Dollar,
			wantSQL:  "NOT (id IN ($1))",
			wantArgs: []any{int64(7)},
		},
		{
			name:     "null equality",
			node:     Equal(authorOp, nil),
			ph:       Dollar,
			wantSQL:  "author IS NULL",
			wantArgs: []any{},
		},
		{
			name:     "contains escapes wildcards",
			node:     Contains(titleOp, "50%_off"),
			ph:       Dollar,
			wantSQL:  `title LIKE $1 ESCAPE '\'`,
			wantArgs: []any{`%50\%\_off%`},
		},
		{
			name:     "or with bool",
			node:     Or(True(deletedOp), GreaterThan(viewsOp, 5)),
			ph:       Question,
			wantSQL:  "(deleted = ?) OR (views > ?)",
			wantArgs: []any{true, int64(5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := 1
			args := []any{}
			sql, err := tt.node.ToSQL(tt.ph, &counter, &args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestToSQLNotLowerable(t *testing.T) {
	counter := 1
	args := []any{}

	custom := Custom("x", func(any) (bool, error) { return true, nil })
	_, err := And(Equal(idOp, 1), custom).ToSQL(Dollar, &counter, &args)
	assert.ErrorIs(t, err, ErrNotLowerable)
	assert.False(t, Not(custom).Lowerable())

	accessor := Operand{Name: "computed", Get: func(any) (any, error) { return 1, nil }}
	_, err = Equal(accessor, 1).ToSQL(Dollar, &counter, &args)
	assert.ErrorIs(t, err, ErrNotLowerable)
}

func TestCompare(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"ints", 1, 2, -1},
		{"mixed ints", int8(5), uint16(5), 0},
		{"int float", 2, 1.5, 1},
		{"strings", "b", "a", 1},
		{"bools", false, true, -1},
		{"times", now, now.Add(time.Second), -1},
		{"nil first", nil, 0, -1},
		{"both nil", nil, (*int)(nil), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Compare("a", 1)
	assert.ErrorIs(t, err, ErrIncomparable)
}

func TestSort(t *testing.T) {
	a := &post{ID: 1, Title: "b", Deleted: true}
	b := &post{ID: 2, Title: "a", Deleted: false}
	c := &post{ID: 3, Title: "c", Deleted: true}
	d := &post{ID: 4, Title: "a", Deleted: true}

	entities := []any{a, b, c, d}
	require.NoError(t, Sort(entities, []Order{Asc(deletedOp), Desc(titleOp)}))
	assert.Equal(t, []any{b, c, a, d}, entities)

	// stable on ties
	entities = []any{a, b, c, d}
	require.NoError(t, Sort(entities, []Order{Asc(deletedOp)}))
	assert.Equal(t, []any{b, a, c, d}, entities)

	sql, err := OrderToSQL([]Order{Asc(deletedOp), Desc(titleOp)})
	require.NoError(t, err)
	assert.Equal(t, "deleted ASC, title DESC", sql)
}
