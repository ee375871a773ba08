package aggregate

import (
	"strings"

	"github.com/sells-group/fiber-bom/internal/feature"
)

// Predicate selects features for an aggregation.
type Predicate func(feature.Feature) bool

// All matches every feature.
func All(feature.Feature) bool { return true }

// Eq matches features whose field renders exactly as value.
func Eq(field, value string) Predicate {
	return func(f feature.Feature) bool {
		return f.Get(field).Str() == value
	}
}

// EqNum matches features whose field reads as the number n. Numeric strings
// such as "288" match EqNum(field, 288).
func EqNum(field string, n float64) Predicate {
	return func(f feature.Feature) bool {
		v, ok := f.Get(field).Float()
		return ok && v == n
	}
}

// In matches features whose field renders as any of values.
func In(field string, values ...string) Predicate {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(f feature.Feature) bool {
		_, ok := set[f.Get(field).Str()]
		return ok
	}
}

// Contains matches features whose field text contains substr.
func Contains(field, substr string) Predicate {
	return func(f feature.Feature) bool {
		return strings.Contains(f.Get(field).Str(), substr)
	}
}

// Gt matches features whose field reads as a number greater than n.
func Gt(field string, n float64) Predicate {
	return func(f feature.Feature) bool {
		v, ok := f.Get(field).Float()
		return ok && v > n
	}
}

// IsBlank matches features whose field is null or renders as whitespace.
func IsBlank(field string) Predicate {
	return func(f feature.Feature) bool {
		return strings.TrimSpace(f.Get(field).Str()) == ""
	}
}

// And matches when every predicate matches. And() matches everything.
func And(preds ...Predicate) Predicate {
	return func(f feature.Feature) bool {
		for _, p := range preds {
			if !p(f) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches. Or() matches nothing.
func Or(preds ...Predicate) Predicate {
	return func(f feature.Feature) bool {
		for _, p := range preds {
			if p(f) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(f feature.Feature) bool { return !p(f) }
}

func orAll(p Predicate) Predicate {
	if p == nil {
		return All
	}
	return p
}
