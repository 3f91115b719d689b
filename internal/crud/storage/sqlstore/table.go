package sqlstore

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/conduit-lang/crudkit/internal/crud/key"
	"github.com/conduit-lang/crudkit/internal/crud/storage"
)

// Tabler lets an entity choose its table name
type Tabler interface {
	TableName() string
}

type column struct {
	name  string
	index []int
}

type table struct {
	name     string
	columns  []column
	idColumn string
	idIndex  []int
}

// mapTable derives the table layout of an entity type: snake_case plural
// table name, one column per exported field (embedded structs flattened),
// db tags override column names and db:"-" skips a field
func mapTable(entityType reflect.Type) (*table, error) {
	if entityType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", storage.ErrUnknownEntity, entityType)
	}

	t := &table{name: toTableName(entityType.Name())}
	if tabler, ok := reflect.New(entityType).Interface().(Tabler); ok {
		t.name = tabler.TableName()
	}

	for _, sf := range reflect.VisibleFields(entityType) {
		if !sf.IsExported() {
			continue
		}
		if sf.Anonymous || throughPointer(entityType, sf.Index) {
			continue
		}
		tag := sf.Tag.Get("db")
		if tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = key.ToSnakeCase(sf.Name)
		}
		t.columns = append(t.columns, column{name: name, index: sf.Index})
		if sf.Name == "ID" {
			t.idColumn = name
			t.idIndex = sf.Index
		}
	}

	if t.idColumn == "" {
		return nil, fmt.Errorf("%w: %s", storage.ErrNoIdentity, entityType)
	}
	return t, nil
}

// throughPointer reports whether a promoted field sits behind an embedded pointer
func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}

func (t *table) columnNames(skipID bool) []string {
	names := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if skipID && c.name == t.idColumn {
			continue
		}
		names = append(names, c.name)
	}
	return names
}

// values returns the column values of an entity in column order
func (t *table) values(rv reflect.Value, skipID bool) []any {
	out := make([]any, 0, len(t.columns))
	for _, c := range t.columns {
		if skipID && c.name == t.idColumn {
			continue
		}
		out = append(out, rv.FieldByIndex(c.index).Interface())
	}
	return out
}

// targets returns scan destinations for every column of a new row
func (t *table) targets(rv reflect.Value) []any {
	out := make([]any, len(t.columns))
	for i, c := range t.columns {
		out[i] = rv.FieldByIndex(c.index).Addr().Interface()
	}
	return out
}

// toTableName converts an entity name to a table name (snake_case plural)
func toTableName(name string) string {
	return pluralize(key.ToSnakeCase(name))
}

// pluralize adds simple pluralization
func pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
