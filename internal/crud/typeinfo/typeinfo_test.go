package typeinfo

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named interface {
	GetName() string
}

type labelled interface {
	named
	Label() string
}

type Record struct {
	ID int
}

type Audited struct {
	Record
	CreatedBy string
}

type User struct {
	Audited
	Name string
}

func (u *User) GetName() string { return u.Name }
func (u *User) Label() string   { return "User:" + u.Name }

type pair[A, B any] struct {
	Left  A
	Right B
}

func (pair[A, B]) Shape() Shape {
	return ShapeOf[pair[A, B]]("typeinfo.pair", Of[A](), Of[B]())
}

type wrapsPair struct {
	pair[int, string]
}

func TestHierarchyAncestors(t *testing.T) {
	h := NewHierarchy(Of[named](), Of[labelled](), Of[any]())

	got := h.Ancestors(Of[User]())
	want := []reflect.Type{
		Of[User](),
		Of[Audited](),
		Of[Record](),
		Of[labelled](),
		Of[named](),
		Any(),
	}
	assert.Equal(t, want, got)

	// memoised list is stable for pointer and value lookups
	assert.Equal(t, got, h.Ancestors(reflect.TypeOf(&User{})))
}

func TestHierarchyInterfaceOrderIgnoresRegistrationOrder(t *testing.T) {
	h := NewHierarchy(Of[named](), Of[labelled]())
	got := h.Ancestors(Of[User]())
	assert.Equal(t, Of[labelled](), got[3])
	assert.Equal(t, Of[named](), got[4])
}

func TestAssignable(t *testing.T) {
	tests := []struct {
		name string
		from reflect.Type
		to   reflect.Type
		want bool
	}{
		{"same type", Of[User](), Of[User](), true},
		{"pointer to same", Of[User](), Of[*User](), true},
		{"embedded pointer", Of[User](), Of[*Record](), true},
		{"embedded value", Of[User](), Of[Audited](), true},
		{"interface", Of[User](), Of[named](), true},
		{"any", Of[User](), Any(), true},
		{"unrelated", Of[Record](), Of[*User](), false},
		{"interface not implemented", Of[Record](), Of[named](), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assignable(tt.from, tt.to))
		})
	}
}

type scoped struct {
	Tenant string
}

type tenantRecord struct {
	scoped
	ID int
}

func TestUnexportedEmbeds(t *testing.T) {
	h := NewHierarchy()
	assert.Contains(t, h.Ancestors(Of[tenantRecord]()), Of[scoped](), "inherited for lookups")

	// values cannot be extracted from an unexported embed, so hooks
	// declared for it are not assignable either
	assert.False(t, Assignable(Of[tenantRecord](), Of[*scoped]()))
	_, ok := Convert(&tenantRecord{}, Of[*scoped]())
	assert.False(t, ok)
}

func TestConvert(t *testing.T) {
	u := &User{Name: "ada"}
	u.ID = 7

	v, ok := Convert(u, Of[*Record]())
	require.True(t, ok)
	b := v.(*Record)
	assert.Equal(t, 7, b.ID)

	// extracted embedded pointer aliases the original
	b.ID = 8
	assert.Equal(t, 8, u.ID)

	v, ok = Convert(u, Of[named]())
	require.True(t, ok)
	assert.Equal(t, "ada", v.(named).GetName())

	v, ok = Convert(u, Of[User]())
	require.True(t, ok)
	assert.Equal(t, "ada", v.(User).Name)

	v, ok = Convert(nil, Of[*User]())
	require.True(t, ok)
	assert.Nil(t, v.(*User))

	_, ok = Convert(&Record{}, Of[*User]())
	assert.False(t, ok)
}

func TestTo(t *testing.T) {
	u := &User{Name: "grace"}

	n, ok := To[named](u)
	require.True(t, ok)
	assert.Equal(t, "grace", n.GetName())

	n, ok = To[named](nil)
	require.True(t, ok)
	assert.Nil(t, n)

	_, ok = To[*User](&Record{})
	assert.False(t, ok)
}

func TestShapeFor(t *testing.T) {
	s, ok := ShapeFor(Of[pair[int, string]]())
	require.True(t, ok)
	assert.Equal(t, "typeinfo.pair", s.Definition)
	assert.Equal(t, []reflect.Type{Of[int](), Of[string]()}, s.Args)

	// promoted Shape methods do not make the outer type generic
	_, ok = ShapeFor(Of[wrapsPair]())
	assert.False(t, ok)

	_, ok = ShapeFor(Of[User]())
	assert.False(t, ok)
}

func TestUnify(t *testing.T) {
	shape := Shape{Definition: "d", Args: []reflect.Type{Of[int](), Of[string]()}}

	tests := []struct {
		name    string
		pattern []Arg
		want    Bindings
		wantErr bool
	}{
		{
			name:    "all open",
			pattern: []Arg{Param("A"), Param("B")},
			want:    Bindings{"A": Of[int](), "B": Of[string]()},
		},
		{
			name:    "bound matches",
			pattern: []Arg{Bound(Of[int]()), Param("B")},
			want:    Bindings{"B": Of[string]()},
		},
		{
			name:    "bound differs",
			pattern: []Arg{Bound(Of[string]()), Param("B")},
			wantErr: true,
		},
		{
			name:    "repeated param conflict",
			pattern: []Arg{Param("A"), Param("A")},
			wantErr: true,
		},
		{
			name:    "arity",
			pattern: []Arg{Param("A")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unify(tt.pattern, shape)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShapeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindingsResolve(t *testing.T) {
	b := Bindings{"E": Of[User]()}
	assert.NoError(t, b.Resolve([]string{"E"}))
	assert.ErrorIs(t, b.Resolve([]string{"E", "K"}), ErrUnresolvedParam)
	assert.Equal(t, 2, BoundCount([]Arg{Bound(Of[int]()), Param("x"), Bound(Of[string]())}))
}
