package predicate

import (
	"fmt"
	"sort"
	"strings"
)

// Order is one sort criterion
type Order struct {
	Operand    Operand
	Descending bool
}

// Asc orders by o ascending
func Asc(o Operand) Order {
	return Order{Operand: o}
}

// Desc orders by o descending
func Desc(o Operand) Order {
	return Order{Operand: o, Descending: true}
}

func (o Order) String() string {
	if o.Descending {
		return o.Operand.Name + " DESC"
	}
	return o.Operand.Name + " ASC"
}

// OrderToSQL renders an ORDER BY list without the keyword
func OrderToSQL(orders []Order) (string, error) {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if !o.Operand.Lowerable() {
			return "", fmt.Errorf("%w: order operand %q has no column", ErrNotLowerable, o.Operand.Name)
		}
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", o.Operand.Column, dir))
	}
	return strings.Join(parts, ", "), nil
}

// Sort orders entities in place by the given criteria. The sort is stable
// so equal elements keep their storage order.
func Sort(entities []any, orders []Order) error {
	if len(orders) == 0 || len(entities) < 2 {
		return nil
	}

	// extract keys once per entity
	keys := make([][]any, len(entities))
	for i, e := range entities {
		row := make([]any, len(orders))
		for j, o := range orders {
			v, err := o.Operand.value(e)
			if err != nil {
				return err
			}
			row[j] = v
		}
		keys[i] = row
	}

	idx := make([]int, len(entities))
	for i := range idx {
		idx[i] = i
	}

	var sortErr error
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		for j, o := range orders {
			c, err := Compare(ka[j], kb[j])
			if err != nil {
				if sortErr == nil {
					sortErr = err
				}
				return false
			}
			if c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if sortErr != nil {
		return sortErr
	}

	sorted := make([]any, len(entities))
	for i, j := range idx {
		sorted[i] = entities[j]
	}
	copy(entities, sorted)
	return nil
}
