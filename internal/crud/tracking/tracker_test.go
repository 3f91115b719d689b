package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type Base struct {
	ID int
}

type Post struct {
	Base
	Title  string
	Count  int
	Tags   []string
	hidden string
}

func TestTrack(t *testing.T) {
	tests := []struct {
		name     string
		original any
		current  any
		want     []string
	}{
		{
			name:     "unchanged",
			original: &Post{Base: Base{ID: 1}, Title: "a", Tags: []string{"x"}},
			current:  &Post{Base: Base{ID: 1}, Title: "a", Tags: []string{"x"}},
			want:     []string{},
		},
		{
			name:     "changed scalar and slice",
			original: &Post{Base: Base{ID: 1}, Title: "a", Tags: []string{"x"}},
			current:  &Post{Base: Base{ID: 1}, Title: "b", Tags: []string{"x", "y"}},
			want:     []string{"Tags", "Title"},
		},
		{
			name:     "created",
			original: nil,
			current:  &Post{Base: Base{ID: 2}},
			want:     []string{"Count", "ID", "Tags", "Title"},
		},
		{
			name:     "deleted",
			original: Post{Base: Base{ID: 3}},
			current:  (*Post)(nil),
			want:     []string{"Count", "ID", "Tags", "Title"},
		},
		{
			name:     "unexported fields ignored",
			original: &Post{hidden: "a"},
			current:  &Post{hidden: "b"},
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := Track(tt.original, tt.current)
			assert.Equal(t, tt.want, ct.ChangedFields())
			assert.Equal(t, len(tt.want) > 0, ct.HasChanges())
		})
	}
}

func TestChangeTrackerAccessors(t *testing.T) {
	ct := Track(&Post{Title: "old", Count: 1}, &Post{Title: "new", Count: 1})

	assert.True(t, ct.Changed("Title"))
	assert.False(t, ct.Changed("Count"))
	assert.True(t, ct.ChangedFrom("Title", "old"))
	assert.True(t, ct.ChangedTo("Title", "new"))
	assert.False(t, ct.ChangedTo("Title", "old"))
	assert.Equal(t, "old", ct.PreviousValue("Title"))
	assert.Equal(t, "new", ct.CurrentValue("Title"))
	assert.Nil(t, ct.GetChange("Count"))
	assert.Equal(t, map[string]any{"Title": "new"}, ct.ChangedData())
	assert.Equal(t, []FieldChange{{Field: "Title", OldValue: "old", NewValue: "new"}}, ct.Changes())
}

func TestNewChangeTrackerNormalisesScalars(t *testing.T) {
	ct := NewChangeTracker(
		map[string]any{"count": 10, "gone": true},
		map[string]any{"count": int64(10), "added": "x"},
	)

	assert.False(t, ct.Changed("count"))
	assert.Equal(t, &FieldChange{Field: "gone", OldValue: true}, ct.GetChange("gone"))
	assert.Equal(t, &FieldChange{Field: "added", NewValue: "x"}, ct.GetChange("added"))
}
