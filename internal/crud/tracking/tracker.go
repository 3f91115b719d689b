// Package tracking computes field-level differences between a
// pre-mutation snapshot of an entity and its persisted state. Audit sinks
// use it to record what a request changed.
package tracking

import (
	"reflect"
	"sort"

	"github.com/conduit-lang/crudkit/internal/crud/predicate"
)

// FieldChange represents a change to a single field
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old,omitempty"`
	NewValue any    `json:"new,omitempty"`
}

// ChangeTracker holds the changes between two states of an entity
type ChangeTracker struct {
	original map[string]any
	current  map[string]any
	changes  map[string]*FieldChange
}

// Track diffs two entity states. Either side may be nil: a nil original
// reports every field of a created entity, a nil current every field of a
// deleted one.
func Track(original, current any) *ChangeTracker {
	return NewChangeTracker(Snapshot(original), Snapshot(current))
}

// NewChangeTracker diffs two field maps
func NewChangeTracker(original, current map[string]any) *ChangeTracker {
	ct := &ChangeTracker{
		original: copyMap(original),
		current:  copyMap(current),
		changes:  make(map[string]*FieldChange),
	}
	ct.computeChanges()
	return ct
}

// Snapshot flattens the exported fields of a struct (or pointer to one)
// into a map keyed by field name. Embedded structs contribute their
// promoted fields.
func Snapshot(entity any) map[string]any {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return map[string]any{}
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return map[string]any{}
	}

	out := make(map[string]any)
	for _, sf := range reflect.VisibleFields(rv.Type()) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		fv, err := rv.FieldByIndexErr(sf.Index)
		if err != nil {
			continue
		}
		out[sf.Name] = fv.Interface()
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

// computeChanges calculates which fields have changed
func (ct *ChangeTracker) computeChanges() {
	for field, newValue := range ct.current {
		oldValue, hadOldValue := ct.original[field]
		if !hadOldValue || !equal(oldValue, newValue) {
			ct.changes[field] = &FieldChange{Field: field, OldValue: oldValue, NewValue: newValue}
		}
	}

	// fields present only in the original
	for field, oldValue := range ct.original {
		if _, exists := ct.current[field]; !exists {
			ct.changes[field] = &FieldChange{Field: field, OldValue: oldValue}
		}
	}
}

// equal compares deeply, falling back to normalised comparison for
// scalars of different types (int and int64, say)
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	if scalar(a) && scalar(b) {
		return predicate.Equivalent(a, b)
	}
	return false
}

func scalar(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Changed returns true if the specified field has changed
func (ct *ChangeTracker) Changed(field string) bool {
	_, ok := ct.changes[field]
	return ok
}

// ChangedFields returns the changed field names in sorted order
func (ct *ChangeTracker) ChangedFields() []string {
	fields := make([]string, 0, len(ct.changes))
	for field := range ct.changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// PreviousValue returns the previous value of a field
func (ct *ChangeTracker) PreviousValue(field string) any {
	return ct.original[field]
}

// CurrentValue returns the current value of a field
func (ct *ChangeTracker) CurrentValue(field string) any {
	return ct.current[field]
}

// GetChange returns the FieldChange for a specific field, or nil if unchanged
func (ct *ChangeTracker) GetChange(field string) *FieldChange {
	return ct.changes[field]
}

// Changes returns every change ordered by field name
func (ct *ChangeTracker) Changes() []FieldChange {
	out := make([]FieldChange, 0, len(ct.changes))
	for _, field := range ct.ChangedFields() {
		out = append(out, *ct.changes[field])
	}
	return out
}

// HasChanges returns true if any fields have changed
func (ct *ChangeTracker) HasChanges() bool {
	return len(ct.changes) > 0
}

// ChangedTo returns true if the field changed to the specified value
func (ct *ChangeTracker) ChangedTo(field string, value any) bool {
	change, ok := ct.changes[field]
	return ok && equal(change.NewValue, value)
}

// ChangedFrom returns true if the field changed from the specified value
func (ct *ChangeTracker) ChangedFrom(field string, value any) bool {
	change, ok := ct.changes[field]
	return ok && equal(change.OldValue, value)
}

// ChangedData returns the new values of the changed fields
func (ct *ChangeTracker) ChangedData() map[string]any {
	result := make(map[string]any, len(ct.changes))
	for field, change := range ct.changes {
		result[field] = change.NewValue
	}
	return result
}
