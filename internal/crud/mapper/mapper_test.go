package mapper

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Audit struct {
	CreatedAt time.Time
}

type Address struct {
	City string
	Zip  string
}

type Account struct {
	Audit
	ID      int64 `crud:"readonly"`
	Name    string
	Age     int32
	Tags    []string
	Home    *Address
	Score   float64
	Limits  map[string]int
	Hidden  string `crud:"-"`
	private string
}

type AccountInput struct {
	ID     int64
	Name   string
	Age    int
	Tags   []string
	Home   Address
	Score  int
	Hidden string
	Extra  bool
}

type AccountView struct {
	ID   int64
	Name string
	Home *Address
}

func TestMapBuildsPointer(t *testing.T) {
	m := New()
	in := AccountInput{ID: 9, Name: "ann", Age: 30, Tags: []string{"a"}, Home: Address{City: "Oslo"}, Score: 4, Hidden: "x"}

	out, err := m.Map(in, reflect.TypeOf(&Account{}))
	require.NoError(t, err)

	acc, ok := out.(*Account)
	require.True(t, ok)
	assert.Equal(t, int64(9), acc.ID, "readonly fields are filled on a new value")
	assert.Equal(t, "ann", acc.Name)
	assert.Equal(t, int32(30), acc.Age)
	assert.Equal(t, 4.0, acc.Score)
	assert.Equal(t, &Address{City: "Oslo"}, acc.Home)
	assert.Empty(t, acc.Hidden)

	in.Tags[0] = "changed"
	assert.Equal(t, []string{"a"}, acc.Tags, "slices are copied")
}

func TestMapValueTarget(t *testing.T) {
	m := New()
	out, err := m.Map(&Account{ID: 3, Name: "bo", Home: &Address{City: "Rome"}}, reflect.TypeOf(AccountView{}))
	require.NoError(t, err)
	assert.Equal(t, AccountView{ID: 3, Name: "bo", Home: &Address{City: "Rome"}}, out)
}

func TestMapScalars(t *testing.T) {
	m := New()

	out, err := m.Map(5, reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 5, out)

	n := 7
	out, err = m.Map(&n, reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 7, out)

	_, err = m.Map("x", reflect.TypeOf(0))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = m.Map("x", nil)
	assert.ErrorIs(t, err, ErrUnsupported)

	out, err = m.Map(nil, reflect.TypeOf(&Account{}))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestMapInto(t *testing.T) {
	m := New()
	acc := &Account{ID: 1, Name: "old", Hidden: "keep", private: "p"}

	err := m.MapInto(AccountInput{ID: 2, Name: "new", Hidden: "drop"}, acc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.ID)
	assert.Equal(t, "new", acc.Name)
	assert.Equal(t, "keep", acc.Hidden)
	assert.Equal(t, "p", acc.private)

	assert.ErrorIs(t, m.MapInto(AccountInput{}, Account{}), ErrUnsupported)
	assert.ErrorIs(t, m.MapInto(3, acc), ErrUnsupported)
	assert.NoError(t, m.MapInto(nil, acc))
}

func TestReadonlyFields(t *testing.T) {
	m := New()

	out, err := m.Map(&AccountInput{ID: 5, Name: "new"}, reflect.TypeOf(&Account{}))
	require.NoError(t, err)
	acc := out.(*Account)
	assert.Equal(t, int64(5), acc.ID)

	require.NoError(t, m.MapInto(&AccountInput{ID: 6, Name: "renamed"}, acc))
	assert.Equal(t, int64(5), acc.ID)
	assert.Equal(t, "renamed", acc.Name)
}

func TestMapIntoPromotedFields(t *testing.T) {
	m := New()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	var dst struct {
		CreatedAt time.Time
		Name      string
	}
	require.NoError(t, m.MapInto(&Account{Audit: Audit{CreatedAt: at}, Name: "x"}, &dst))
	assert.Equal(t, at, dst.CreatedAt)
	assert.Equal(t, "x", dst.Name)
}

func TestClone(t *testing.T) {
	m := New()
	orig := &Account{
		Name:   "ann",
		Tags:   []string{"a", "b"},
		Home:   &Address{City: "Oslo"},
		Limits: map[string]int{"x": 1},
	}

	cp, err := m.Clone(orig)
	require.NoError(t, err)
	clone := cp.(*Account)
	assert.Equal(t, orig, clone)
	assert.NotSame(t, orig, clone)

	orig.Tags[0] = "z"
	orig.Home.City = "Bergen"
	orig.Limits["x"] = 2
	assert.Equal(t, "a", clone.Tags[0])
	assert.Equal(t, "Oslo", clone.Home.City)
	assert.Equal(t, 1, clone.Limits["x"])

	nilClone, err := m.Clone(nil)
	require.NoError(t, err)
	assert.Nil(t, nilClone)
}
