package predicate

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Eval evaluates the tree against an in-memory entity
func (n *Node) Eval(entity any) (bool, error) {
	if n == nil {
		return true, nil
	}

	switch n.Kind {
	case KindConst:
		return n.Const, nil

	case KindAnd:
		for _, c := range n.Children {
			ok, err := c.Eval(entity)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case KindOr:
		for _, c := range n.Children {
			ok, err := c.Eval(entity)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case KindNot:
		if len(n.Children) != 1 {
			return false, fmt.Errorf("%w: NOT needs exactly one child", ErrInvalidNode)
		}
		ok, err := n.Children[0].Eval(entity)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case KindCustom:
		if n.Fn == nil {
			return false, fmt.Errorf("%w: custom node without function", ErrInvalidNode)
		}
		return n.Fn(entity)
	}

	actual, err := n.Operand.value(entity)
	if err != nil {
		return false, err
	}

	switch n.Kind {
	case KindEqual:
		return Equivalent(actual, n.Value), nil

	case KindNotEqual:
		return !Equivalent(actual, n.Value), nil

	case KindLessThan, KindLessThanOrEqual, KindGreaterThan, KindGreaterThanOrEqual:
		// ordering against NULL is unknown, which filters the row out
		if isNil(actual) || isNil(n.Value) {
			return false, nil
		}
		c, err := Compare(actual, n.Value)
		if err != nil {
			return false, err
		}
		switch n.Kind {
		case KindLessThan:
			return c < 0, nil
		case KindLessThanOrEqual:
			return c <= 0, nil
		case KindGreaterThan:
			return c > 0, nil
		default:
			return c >= 0, nil
		}

	case KindIn:
		for _, v := range n.Values {
			if Equivalent(actual, v) {
				return true, nil
			}
		}
		return false, nil

	case KindContains:
		return contains(actual, n.Value), nil

	case KindIsNull:
		return isNil(actual), nil

	case KindNotNull:
		return !isNil(actual), nil

	case KindTrue, KindFalse:
		b, ok := asBool(actual)
		if !ok {
			return false, nil
		}
		return b == (n.Kind == KindTrue), nil
	}

	return false, fmt.Errorf("%w: unsupported kind %s", ErrInvalidNode, n.Kind)
}

// Filter keeps the entities the tree matches, preserving order
func Filter(n *Node, entities []any) ([]any, error) {
	out := make([]any, 0, len(entities))
	for _, e := range entities {
		ok, err := n.Eval(e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func contains(actual, needle any) bool {
	if isNil(actual) {
		return false
	}
	rv := reflect.Indirect(reflect.ValueOf(actual))
	switch rv.Kind() {
	case reflect.String:
		s, ok := Normalize(needle).(string)
		if !ok {
			return false
		}
		return strings.Contains(rv.String(), s)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if Equivalent(rv.Index(i).Interface(), needle) {
				return true
			}
		}
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func asBool(v any) (bool, bool) {
	if isNil(v) {
		return false, false
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Bool {
		return false, false
	}
	return rv.Bool(), true
}

// Normalize maps a value onto a canonical comparable form: pointers are
// dereferenced, signed integers become int64, unsigned uint64, floats
// float64 and named string or bool kinds their base type.
func Normalize(v any) any {
	if isNil(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= 1<<63-1 {
			return int64(u)
		}
		return u
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}

	if t, ok := rv.Interface().(time.Time); ok {
		return t.UTC()
	}
	// fixed-size identifiers such as uuid.UUID compare by their text form
	if s, ok := rv.Interface().(fmt.Stringer); ok && rv.Kind() == reflect.Array {
		return s.String()
	}
	if rv.Comparable() {
		return rv.Interface()
	}
	return fmt.Sprintf("%v", rv.Interface())
}

// Equivalent compares two values after normalisation
func Equivalent(a, b any) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	if c, err := Compare(na, nb); err == nil {
		return c == 0
	}
	return reflect.DeepEqual(na, nb)
}

// Compare orders two values. Nil sorts before everything else.
func Compare(a, b any) (int, error) {
	na, nb := Normalize(a), Normalize(b)
	switch {
	case na == nil && nb == nil:
		return 0, nil
	case na == nil:
		return -1, nil
	case nb == nil:
		return 1, nil
	}

	switch x := na.(type) {
	case int64:
		switch y := nb.(type) {
		case int64:
			return compareOrdered(x, y), nil
		case uint64:
			return -1, nil
		case float64:
			return compareOrdered(float64(x), y), nil
		}
	case uint64:
		switch y := nb.(type) {
		case uint64:
			return compareOrdered(x, y), nil
		case int64:
			return 1, nil
		case float64:
			return compareOrdered(float64(x), y), nil
		}
	case float64:
		switch y := nb.(type) {
		case float64:
			return compareOrdered(x, y), nil
		case int64:
			return compareOrdered(x, float64(y)), nil
		case uint64:
			return compareOrdered(x, float64(y)), nil
		}
	case string:
		if y, ok := nb.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := nb.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := nb.(time.Time); ok {
			return x.Compare(y), nil
		}
	}

	if reflect.TypeOf(na) == reflect.TypeOf(nb) && reflect.TypeOf(na).Comparable() && na == nb {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
}

type ordered interface {
	~int64 | ~uint64 | ~float64
}

func compareOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
