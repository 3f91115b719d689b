// Package key builds typed scalar extractors over request, item and entity
// types. Keys feed selectors, batch joins and sorters.
package key

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrMemberNotFound is returned when a member path does not resolve
	ErrMemberNotFound = errors.New("member not found")

	// ErrKeyMismatch is returned when request and entity key lists differ in length
	ErrKeyMismatch = errors.New("key count mismatch")

	// ErrWrongOwner is returned when a key is applied to a value of another type
	ErrWrongOwner = errors.New("key applied to wrong type")
)

// Key extracts one scalar from a value. Owner is nil for keys resolved
// lazily against whatever type they are applied to.
type Key struct {
	Name      string
	Owner     reflect.Type
	ValueType reflect.Type
	column    string
	get       func(v any) (any, error)
}

// Member resolves a (possibly dotted) exported field path on owner
func Member(owner reflect.Type, path string) (Key, error) {
	owner = typeinfo.Base(owner)
	if owner == nil || owner.Kind() != reflect.Struct {
		return Key{}, fmt.Errorf("%w: %s on non-struct %s", ErrMemberNotFound, path, typeinfo.Name(owner))
	}

	acc, err := resolve(owner, path)
	if err != nil {
		return Key{}, err
	}

	return Key{
		Name:      path,
		Owner:     owner,
		ValueType: acc.valueType,
		column:    acc.column,
		get: func(v any) (any, error) {
			rv, err := structValue(v)
			if err != nil {
				return nil, err
			}
			if rv.Type() != owner {
				// keys declared on an embedded base type apply to derived types
				conv, ok := typeinfo.Convert(v, reflect.PointerTo(owner))
				if !ok {
					return nil, fmt.Errorf("%w: %s expects %s, got %s", ErrWrongOwner, path, owner, rv.Type())
				}
				if rv, err = structValue(conv); err != nil {
					return nil, err
				}
			}
			return acc.read(rv), nil
		},
	}, nil
}

// MustMember is Member for static declarations; it panics on error
func MustMember(owner reflect.Type, path string) Key {
	k, err := Member(owner, path)
	if err != nil {
		panic(err)
	}
	return k
}

// Of resolves a member path on T
func Of[T any](path string) Key {
	return MustMember(typeinfo.Of[T](), path)
}

// Field is a member key resolved against the runtime type of each value.
// It suits item types that are not known when profiles are declared.
func Field(path string) Key {
	var cache sync.Map // reflect.Type -> *accessor
	return Key{
		Name:   path,
		column: columnName(lastSegment(path), ""),
		get: func(v any) (any, error) {
			rv, err := structValue(v)
			if err != nil {
				return nil, err
			}
			if cached, ok := cache.Load(rv.Type()); ok {
				return cached.(*accessor).read(rv), nil
			}
			acc, err := resolve(rv.Type(), path)
			if err != nil {
				return nil, err
			}
			cache.Store(rv.Type(), acc)
			return acc.read(rv), nil
		},
	}
}

// Func wraps a typed accessor. The name is optional and only used in
// messages; accessor keys have no storage column.
func Func[T any, V any](name string, fn func(T) V) Key {
	owner := typeinfo.Of[T]()
	return Key{
		Name:      name,
		Owner:     typeinfo.Base(owner),
		ValueType: typeinfo.Of[V](),
		get: func(v any) (any, error) {
			typed, ok := typeinfo.To[T](v)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects %s, got %T", ErrWrongOwner, name, owner, v)
			}
			return fn(typed), nil
		},
	}
}

// WithColumn overrides the storage column of a key
func (k Key) WithColumn(column string) Key {
	k.column = column
	return k
}

// Column returns the storage column, empty for accessor keys
func (k Key) Column() string {
	return k.column
}

// IsZero reports whether the key was never initialised
func (k Key) IsZero() bool {
	return k.get == nil
}

// Value extracts the key from v
func (k Key) Value(v any) (any, error) {
	if k.get == nil {
		return nil, fmt.Errorf("%w: empty key", ErrMemberNotFound)
	}
	return k.get(v)
}

// Operand exposes the key as a predicate leaf
func (k Key) Operand() predicate.Operand {
	return predicate.Operand{
		Name:   k.Name,
		Column: k.column,
		Get:    k.get,
	}
}

func (k Key) String() string {
	if k.Name == "" {
		return "<func>"
	}
	if k.Owner != nil {
		return k.Owner.Name() + "." + k.Name
	}
	return k.Name
}

// Keys is a composite key
type Keys []Key

// Pair couples a request-side key with its entity-side counterpart
type Pair struct {
	Request Key
	Entity  Key
}

// Zip pairs keys positionally. Two empty lists yield no pairs; unequal
// non-zero lengths are a configuration error.
func Zip(request, entity Keys) ([]Pair, error) {
	if len(request) == 0 && len(entity) == 0 {
		return nil, nil
	}
	if len(request) != len(entity) {
		return nil, fmt.Errorf("%w: %d request keys, %d entity keys", ErrKeyMismatch, len(request), len(entity))
	}
	pairs := make([]Pair, len(request))
	for i := range request {
		pairs[i] = Pair{Request: request[i], Entity: entity[i]}
	}
	return pairs, nil
}

// Members resolves several member paths on owner
func Members(owner reflect.Type, paths ...string) (Keys, error) {
	keys := make(Keys, 0, len(paths))
	for _, p := range paths {
		k, err := Member(owner, p)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

type accessor struct {
	index     [][]int
	valueType reflect.Type
	column    string
}

// read walks the field path; a nil pointer along the way yields nil
func (a *accessor) read(rv reflect.Value) any {
	current := rv
	for _, idx := range a.index {
		for current.Kind() == reflect.Pointer {
			if current.IsNil() {
				return nil
			}
			current = current.Elem()
		}
		f, err := current.FieldByIndexErr(idx)
		if err != nil {
			return nil
		}
		current = f
	}
	return current.Interface()
}

func resolve(owner reflect.Type, path string) (*accessor, error) {
	segments := strings.Split(path, ".")
	acc := &accessor{index: make([][]int, 0, len(segments))}

	current := owner
	var last reflect.StructField
	for i, seg := range segments {
		current = typeinfo.Base(current)
		if current.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: %s.%s is not a struct", ErrMemberNotFound, owner.Name(), strings.Join(segments[:i], "."))
		}
		sf, ok := current.FieldByName(seg)
		if !ok || !sf.IsExported() {
			return nil, fmt.Errorf("%w: %s.%s", ErrMemberNotFound, owner.Name(), path)
		}
		acc.index = append(acc.index, sf.Index)
		current = sf.Type
		last = sf
	}

	acc.valueType = last.Type
	acc.column = columnName(last.Name, last.Tag.Get("db"))
	return acc, nil
}

func structValue(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil value", ErrWrongOwner)
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a struct", ErrWrongOwner, v)
	}
	return rv, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

// columnName honours a db tag and otherwise snake-cases the field name
func columnName(field, tag string) string {
	if tag != "" {
		name := strings.Split(tag, ",")[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return ToSnakeCase(field)
}

// ToSnakeCase converts CamelCase to snake_case, keeping acronyms together
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
