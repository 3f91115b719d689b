// Package mapper copies data between structurally similar types. It backs
// the default creator, updater and result projection of the engine.
package mapper

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	// ErrUnsupported is returned when a mapping target is not a struct
	ErrUnsupported = errors.New("unsupported mapping")
)

// Mapper is the object mapping contract the engine depends on
type Mapper interface {
	Map(src any, dst reflect.Type) (any, error)
	MapInto(src, dst any) error
	Clone(v any) (any, error)
}

// Default maps fields by name. Destination fields tagged crud:"readonly"
// are filled by Map but never overwritten by MapInto; fields tagged
// crud:"-" are ignored.
type Default struct{}

// New returns the default mapper
func New() *Default {
	return &Default{}
}

var timeType = reflect.TypeOf(time.Time{})

// Map builds a new dst value from src. A pointer dst yields a pointer.
func (m *Default) Map(src any, dst reflect.Type) (any, error) {
	if dst == nil {
		return nil, fmt.Errorf("%w: nil destination type", ErrUnsupported)
	}
	if src == nil {
		return reflect.Zero(dst).Interface(), nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst) && !isStructLike(dst) {
		return src, nil
	}

	target := dst
	pointer := false
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
		pointer = true
	}
	if target.Kind() != reflect.Struct {
		if sv.Kind() == reflect.Pointer && !sv.IsNil() && sv.Elem().Type().AssignableTo(dst) {
			return sv.Elem().Interface(), nil
		}
		return nil, fmt.Errorf("%w: %T to %s", ErrUnsupported, src, dst)
	}

	// a fresh value has nothing to protect, so readonly fields are filled
	out := reflect.New(target)
	if err := copyInto(src, out.Interface(), false); err != nil {
		return nil, err
	}
	if pointer {
		return out.Interface(), nil
	}
	return out.Elem().Interface(), nil
}

// MapInto copies matching fields of src onto the struct dst points to
func (m *Default) MapInto(src, dst any) error {
	return copyInto(src, dst, true)
}

func copyInto(src, dst any, honourReadonly bool) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() || dv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: destination %T is not a struct pointer", ErrUnsupported, dst)
	}
	sv := reflect.Indirect(reflect.ValueOf(src))
	if !sv.IsValid() {
		return nil
	}
	if sv.Kind() != reflect.Struct {
		return fmt.Errorf("%w: source %T is not a struct", ErrUnsupported, src)
	}
	return copyStruct(sv, dv.Elem(), honourReadonly)
}

// Clone returns a deep copy of v. Pointers to structs are cloned into new
// pointers so snapshots survive later mutation.
func (m *Default) Clone(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return deepCopy(reflect.ValueOf(v)).Interface(), nil
}

func isStructLike(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType
}

func copyStruct(src, dst reflect.Value, honourReadonly bool) error {
	for _, sf := range reflect.VisibleFields(src.Type()) {
		if !sf.IsExported() || sf.Anonymous || tagged(sf, "-") {
			continue
		}
		df, ok := dst.Type().FieldByName(sf.Name)
		if !ok || !df.IsExported() || tagged(df, "-") {
			continue
		}
		if honourReadonly && tagged(df, "readonly") {
			continue
		}

		from, err := src.FieldByIndexErr(sf.Index)
		if err != nil {
			// promoted through a nil embedded pointer
			continue
		}
		to, err := dst.FieldByIndexErr(df.Index)
		if err != nil {
			continue
		}
		if !to.CanSet() {
			continue
		}
		if err := assign(from, to); err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
	}
	return nil
}

func tagged(sf reflect.StructField, option string) bool {
	tag := sf.Tag.Get("crud")
	if tag == "" {
		return false
	}
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == option {
			return true
		}
	}
	return false
}

// assign copies from into to, converting where the kinds allow it
func assign(from, to reflect.Value) error {
	ft, tt := from.Type(), to.Type()

	switch {
	case ft.AssignableTo(tt):
		to.Set(deepCopy(from))
		return nil

	case ft.Kind() == reflect.Pointer && ft.Elem().AssignableTo(tt):
		if from.IsNil() {
			to.Set(reflect.Zero(tt))
			return nil
		}
		to.Set(deepCopy(from.Elem()))
		return nil

	case tt.Kind() == reflect.Pointer && ft.AssignableTo(tt.Elem()):
		p := reflect.New(tt.Elem())
		p.Elem().Set(deepCopy(from))
		to.Set(p)
		return nil

	case convertible(ft, tt):
		to.Set(from.Convert(tt))
		return nil

	case isStructLike(ft) && isStructLike(tt):
		sv := reflect.Indirect(from)
		if !sv.IsValid() {
			to.Set(reflect.Zero(tt))
			return nil
		}
		if tt.Kind() == reflect.Pointer {
			p := reflect.New(tt.Elem())
			if err := copyStruct(sv, p.Elem(), false); err != nil {
				return err
			}
			to.Set(p)
			return nil
		}
		return copyStruct(sv, to, false)

	case ft.Kind() == reflect.Slice && tt.Kind() == reflect.Slice:
		if from.IsNil() {
			to.Set(reflect.Zero(tt))
			return nil
		}
		out := reflect.MakeSlice(tt, from.Len(), from.Len())
		for i := 0; i < from.Len(); i++ {
			if err := assign(from.Index(i), out.Index(i)); err != nil {
				return err
			}
		}
		to.Set(out)
		return nil
	}

	// incompatible fields are skipped, as with any by-name mapping
	return nil
}

func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	fk, tk := from.Kind(), to.Kind()
	switch {
	case isNumber(fk) && isNumber(tk):
		return true
	case fk == reflect.String && tk == reflect.String:
		return true
	case fk == reflect.Bool && tk == reflect.Bool:
		return true
	}
	return false
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		p := reflect.New(v.Type().Elem())
		p.Elem().Set(deepCopy(v.Elem()))
		return p

	case reflect.Struct:
		if v.Type() == timeType {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(deepCopy(v.Field(i)))
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	}
	return v
}
