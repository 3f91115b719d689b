package storage

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   string
	Name string
}

type anonymous struct {
	Name string
}

type hidden struct {
	id int
}

func TestIdentity(t *testing.T) {
	id, err := Identity(&widget{ID: "w-1"})
	require.NoError(t, err)
	assert.Equal(t, "w-1", id)

	id, err = Identity(widget{ID: "w-2"})
	require.NoError(t, err)
	assert.Equal(t, "w-2", id)

	tests := []struct {
		name   string
		entity any
	}{
		{name: "nil", entity: nil},
		{name: "nil pointer", entity: (*widget)(nil)},
		{name: "no ID field", entity: &anonymous{}},
		{name: "unexported ID", entity: &hidden{}},
		{name: "not a struct", entity: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Identity(tt.entity)
			assert.ErrorIs(t, err, ErrNoIdentity)
		})
	}
}

func TestIdentityField(t *testing.T) {
	idx, err := IdentityField(reflect.TypeOf(&widget{}))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, idx)
}

type nopContext struct{ Context }

func TestAmbientContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	sc := &nopContext{}
	got, ok := FromContext(WithContext(context.Background(), sc))
	require.True(t, ok)
	assert.Same(t, sc, got)
}
