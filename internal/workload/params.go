package workload

import (
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"
)

// Axis is one named dimension of a parameter space.
type Axis struct {
	Name   string
	Values []any
}

// Param is a single axis value within a combination
type Param struct {
	Name  string
	Value any
}

// Params is one point of a parameter space, in axis order.
type Params []Param

// Value returns the value bound to name
func (p Params) Value(name string) (any, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return nil, false
}

// Int returns the named value as an int, or def if it is absent or not numeric
func (p Params) Int(name string, def int) int {
	v, ok := p.Value(name)
	if !ok {
		return def
	}

	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return def
}

// String returns the named value formatted as a string, or def if absent
func (p Params) String(name string, def string) string {
	v, ok := p.Value(name)
	if !ok {
		return def
	}
	return formatValue(v)
}

// Key renders the combination as "a=1,b=x". An empty combination renders as "".
func (p Params) Key() string {
	parts := make([]string, len(p))
	for i, param := range p {
		parts[i] = param.Name + "=" + formatValue(param.Value)
	}
	return strings.Join(parts, ",")
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Selector restricts a space to combinations whose axes take one of the
// listed values. Axes not mentioned are unrestricted.
type Selector map[string][]string

// ParseSelector parses "name=value" pairs. Repeating a name widens the
// accepted values for that axis.
func ParseSelector(pairs []string) (Selector, error) {
	sel := make(Selector)
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected name=value)", pair)
		}
		sel[name] = append(sel[name], strings.TrimSpace(value))
	}
	return sel, nil
}

// Matches reports whether p satisfies every constraint of the selector.
func (s Selector) Matches(p Params) bool {
	for name, allowed := range s {
		v, ok := p.Value(name)
		if !ok {
			return false
		}

		formatted := formatValue(v)
		found := false
		for _, a := range allowed {
			if a == formatted {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Names returns the constrained axis names in sorted order
func (s Selector) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Space is the cartesian product of a descriptor's axes.
type Space struct {
	axes []Axis
}

// NewSpace builds a space from axes
func NewSpace(axes ...Axis) Space {
	return Space{axes: axes}
}

// Count returns the number of combinations. A space without axes has one
// empty combination.
func (s Space) Count() int {
	n := 1
	for _, axis := range s.axes {
		n *= len(axis.Values)
	}
	return n
}

// All enumerates every combination. The last axis varies fastest.
func (s Space) All() iter.Seq[Params] {
	return func(yield func(Params) bool) {
		for _, axis := range s.axes {
			if len(axis.Values) == 0 {
				return
			}
		}

		idx := make([]int, len(s.axes))
		for {
			p := make(Params, len(s.axes))
			for i, axis := range s.axes {
				p[i] = Param{Name: axis.Name, Value: axis.Values[idx[i]]}
			}
			if !yield(p) {
				return
			}

			// Odometer increment
			i := len(idx) - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(s.axes[i].Values) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

// Select enumerates the combinations matching sel, in All order.
func (s Space) Select(sel Selector) iter.Seq[Params] {
	return func(yield func(Params) bool) {
		for p := range s.All() {
			if !sel.Matches(p) {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// CheckSelector returns an error if sel names an axis the space does not have.
func (s Space) CheckSelector(sel Selector) error {
	for _, name := range sel.Names() {
		known := false
		for _, axis := range s.axes {
			if axis.Name == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown parameter %q", name)
		}
	}
	return nil
}

// Restrict returns the part of sel that applies to this space, dropping
// constraints on axes the space does not declare.
func (s Space) Restrict(sel Selector) Selector {
	out := make(Selector)
	for _, axis := range s.axes {
		if values, ok := sel[axis.Name]; ok {
			out[axis.Name] = values
		}
	}
	return out
}
