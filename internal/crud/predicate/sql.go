package predicate

import (
	"fmt"
	"strings"
)

// Placeholder renders the n-th bind parameter of a dialect
type Placeholder func(n int) string

// Dollar renders PostgreSQL style parameters ($1, $2, ...)
func Dollar(n int) string {
	return fmt.Sprintf("$%d", n)
}

// Question renders SQLite/MySQL style parameters (?)
func Question(int) string {
	return "?"
}

// ToSQL converts the tree to a parameterised WHERE fragment. An empty
// string means no restriction.
func (n *Node) ToSQL(ph Placeholder, paramCounter *int, args *[]any) (string, error) {
	if n == nil {
		return "", nil
	}
	if ph == nil {
		ph = Dollar
	}

	switch n.Kind {
	case KindConst:
		if n.Const {
			return "1 = 1", nil
		}
		return "1 = 0", nil

	case KindAnd, KindOr:
		parts := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			sql, err := c.ToSQL(ph, paramCounter, args)
			if err != nil {
				return "", err
			}
			if sql != "" {
				parts = append(parts, fmt.Sprintf("(%s)", sql))
			}
		}
		if len(parts) == 0 {
			return "", nil
		}
		connector := " AND "
		if n.Kind == KindOr {
			connector = " OR "
		}
		return strings.Join(parts, connector), nil

	case KindNot:
		if len(n.Children) != 1 {
			return "", fmt.Errorf("%w: NOT needs exactly one child", ErrInvalidNode)
		}
		sql, err := n.Children[0].ToSQL(ph, paramCounter, args)
		if err != nil {
			return "", err
		}
		if sql == "" {
			return "1 = 0", nil
		}
		return fmt.Sprintf("NOT (%s)", sql), nil

	case KindCustom:
		return "", fmt.Errorf("%w: %s", ErrNotLowerable, n.String())
	}

	if !n.Operand.Lowerable() {
		return "", fmt.Errorf("%w: operand %q has no column", ErrNotLowerable, n.Operand.Name)
	}
	return conditionToSQL(n, ph, paramCounter, args)
}

// conditionToSQL converts a leaf comparison to SQL with parameterized values
func conditionToSQL(n *Node, ph Placeholder, paramCounter *int, args *[]any) (string, error) {
	column := n.Operand.Column

	bind := func(v any) string {
		*args = append(*args, v)
		p := ph(*paramCounter)
		*paramCounter++
		return p
	}

	switch n.Kind {
	case KindEqual:
		if isNil(n.Value) {
			return fmt.Sprintf("%s IS NULL", column), nil
		}
		return fmt.Sprintf("%s = %s", column, bind(Normalize(n.Value))), nil

	case KindNotEqual:
		if isNil(n.Value) {
			return fmt.Sprintf("%s IS NOT NULL", column), nil
		}
		return fmt.Sprintf("%s != %s", column, bind(Normalize(n.Value))), nil

	case KindLessThan, KindLessThanOrEqual, KindGreaterThan, KindGreaterThanOrEqual:
		return fmt.Sprintf("%s %s %s", column, n.Kind.String(), bind(Normalize(n.Value))), nil

	case KindIn:
		if len(n.Values) == 0 {
			// IN with an empty set never matches
			return "1 = 0", nil
		}
		placeholders := make([]string, len(n.Values))
		for i, v := range n.Values {
			placeholders[i] = bind(Normalize(v))
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), nil

	case KindContains:
		s, ok := Normalize(n.Value).(string)
		if !ok {
			return "", fmt.Errorf("%w: CONTAINS needs a string value", ErrNotLowerable)
		}
		return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", column, bind("%"+escapeLike(s)+"%")), nil

	case KindIsNull:
		return fmt.Sprintf("%s IS NULL", column), nil

	case KindNotNull:
		return fmt.Sprintf("%s IS NOT NULL", column), nil

	case KindTrue:
		return fmt.Sprintf("%s = %s", column, bind(true)), nil

	case KindFalse:
		return fmt.Sprintf("%s = %s", column, bind(false)), nil
	}

	return "", fmt.Errorf("%w: unsupported kind %s", ErrInvalidNode, n.Kind)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
