package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/crudkit/internal/crud/key"
)

type Product struct {
	SKU  int64
	Name string
}

type productInput struct {
	SKU  int32
	Name string
}

func TestFullOuter(t *testing.T) {
	existing1 := &Product{SKU: 1, Name: "one"}
	existing2 := &Product{SKU: 2, Name: "two"}
	existing3 := &Product{SKU: 3, Name: "three"}

	in1 := &productInput{SKU: 3, Name: "three v2"}
	in2 := &productInput{SKU: 0, Name: "new"}
	in3 := &productInput{SKU: 1, Name: "one v2"}
	in4 := &productInput{SKU: 9, Name: "unknown"}

	pairs, err := FullOuter(
		[]any{in1, in2, in3, in4},
		[]any{existing1, existing2, existing3},
		key.Field("SKU"), key.Of[Product]("SKU"),
	)
	require.NoError(t, err)

	want := []Pair{
		{Item: in1, Entity: existing3},
		{Item: in2},
		{Item: in3, Entity: existing1},
		{Item: in4},
		{Entity: existing2},
	}
	assert.Equal(t, want, pairs)

	creates, updates, orphans := Split(pairs)
	assert.Equal(t, []any{in2, in4}, creates)
	assert.Len(t, updates, 2)
	assert.Equal(t, []any{existing2}, orphans)
}

func TestFullOuterDuplicateItemKeys(t *testing.T) {
	e := &Product{SKU: 5}
	a := &productInput{SKU: 5, Name: "a"}
	b := &productInput{SKU: 5, Name: "b"}

	pairs, err := FullOuter([]any{a, b}, []any{e}, key.Field("SKU"), key.Of[Product]("SKU"))
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Item: a, Entity: e}, {Item: b, Entity: e}}, pairs)

	creates, updates, orphans := Split(pairs)
	assert.Empty(t, creates)
	assert.Len(t, updates, 2)
	assert.Empty(t, orphans)
}

func TestFullOuterDuplicateEntityKeys(t *testing.T) {
	e1 := &Product{SKU: 5, Name: "x"}
	e2 := &Product{SKU: 5, Name: "y"}
	a := &productInput{SKU: 5}

	pairs, err := FullOuter([]any{a}, []any{e1, e2}, key.Field("SKU"), key.Of[Product]("SKU"))
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Item: a, Entity: e1}, {Item: a, Entity: e2}}, pairs)
}

func TestFullOuterEmptySides(t *testing.T) {
	pairs, err := FullOuter(nil, []any{&Product{SKU: 1}}, key.Field("SKU"), key.Of[Product]("SKU"))
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Nil(t, pairs[0].Item)

	pairs, err = FullOuter([]any{&productInput{SKU: 1}}, nil, key.Field("SKU"), key.Of[Product]("SKU"))
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Nil(t, pairs[0].Entity)
}
