// Package aggregate turns boundary-scoped feature collections into the scalar
// quantities that populate a bill of materials.
//
// Every function is total: empty or nil collections return the identity value
// of the aggregation, and a null or malformed field only excludes the feature
// that carries it. None of them return errors.
package aggregate

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/fiber-bom/internal/feature"
)

// RoundPolicy converts an un-rounded sum into a line item quantity.
type RoundPolicy func(float64) int64

// Ceil rounds up to the next whole unit.
func Ceil(v float64) int64 { return int64(math.Ceil(v)) }

// CeilTo rounds up to the next multiple of n.
func CeilTo(n int64) RoundPolicy {
	return func(v float64) int64 { return RoundUpToMultiple(v, n) }
}

// Extractor derives a number from a feature; ok=false skips the feature.
type Extractor func(feature.Feature) (float64, bool)

// FilteredCount counts the features matching pred.
func FilteredCount(fc *feature.Collection, pred Predicate) int {
	pred = orAll(pred)
	n := 0
	fc.Each(func(f feature.Feature) {
		if pred(f) {
			n++
		}
	})
	return n
}

// FilteredSum sums the numeric field over features matching pred. Null and
// non-numeric values count as zero.
func FilteredSum(fc *feature.Collection, pred Predicate, field string) float64 {
	pred = orAll(pred)
	var total float64
	fc.Each(func(f feature.Feature) {
		if !pred(f) {
			return
		}
		if v, ok := f.Get(field).Float(); ok {
			total += v
		}
	})
	return total
}

// FilteredLengthSum sums field over features matching pred and applies round.
// A nil round policy means Ceil.
func FilteredLengthSum(fc *feature.Collection, pred Predicate, field string, round RoundPolicy) int64 {
	if round == nil {
		round = Ceil
	}
	return round(FilteredSum(fc, pred, field))
}

// GroupedLengthSum partitions fc by the text of groupField and returns the
// ceiling of the summed lengthField per partition. Features with a blank
// group key are skipped.
func GroupedLengthSum(fc *feature.Collection, groupField, lengthField string) map[string]int64 {
	sums := make(map[string]float64)
	fc.Each(func(f feature.Feature) {
		key := strings.TrimSpace(f.Get(groupField).Str())
		if key == "" {
			return
		}
		v, _ := f.Get(lengthField).Float()
		sums[key] += v
	})

	out := make(map[string]int64, len(sums))
	for k, v := range sums {
		out[k] = Ceil(v)
	}
	return out
}

// UniqueCount counts distinct non-blank values of keyField over features
// matching pred.
func UniqueCount(fc *feature.Collection, pred Predicate, keyField string) int {
	pred = orAll(pred)
	seen := make(map[string]struct{})
	fc.Each(func(f feature.Feature) {
		if !pred(f) {
			return
		}
		key := strings.TrimSpace(f.Get(keyField).Str())
		if key == "" {
			return
		}
		seen[key] = struct{}{}
	})
	return len(seen)
}

// MaxDerivedValue returns the largest extracted value over features matching
// pred. Features whose extraction fails are skipped rather than read as zero.
// def is returned when nothing could be extracted.
func MaxDerivedValue(fc *feature.Collection, pred Predicate, extract Extractor, def float64) float64 {
	pred = orAll(pred)
	best, found := 0.0, false
	fc.Each(func(f feature.Feature) {
		if !pred(f) {
			return
		}
		v, ok := extract(f)
		if !ok {
			return
		}
		if !found || v > best {
			best, found = v, true
		}
	})
	if !found {
		return def
	}
	return best
}

// Mean averages the numeric field over features matching pred. ok is false
// when no feature carries a numeric value.
func Mean(fc *feature.Collection, pred Predicate, field string) (float64, bool) {
	pred = orAll(pred)
	var total float64
	var n int
	fc.Each(func(f feature.Feature) {
		if !pred(f) {
			return
		}
		if v, ok := f.Get(field).Float(); ok {
			total += v
			n++
		}
	})
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

// RoundUpToMultiple returns the smallest multiple of multiple that is >= value.
// A non-positive multiple is treated as 1.
func RoundUpToMultiple(value float64, multiple int64) int64 {
	if multiple <= 0 {
		multiple = 1
	}
	m := float64(multiple)
	return int64(m * math.Ceil(value/m))
}

// RatioedAllocation spreads a per-structure footage allowance across the cable
// sizes of a cohort in proportion to each size's share of cohort footage:
//
//	ceil(primary*margin + primary/sum(cohort) * structures * perUnit)
//
// A zero cohort sum drops the allowance term.
func RatioedAllocation(primary float64, cohort []float64, structures int, perUnit, margin float64) int64 {
	var sum float64
	for _, c := range cohort {
		sum += c
	}
	total := primary * margin
	if sum > 0 {
		total += primary / sum * float64(structures) * perUnit
	}
	if math.IsNaN(total) || math.IsInf(total, 0) || total < 0 {
		return 0
	}
	return Ceil(total)
}

// TrailingNumber extracts the integer after the last delim in field, e.g.
// "F1-1-144" yields 144 and a bare "96" yields 96. Blank or non-numeric tails
// fail.
func TrailingNumber(field, delim string) Extractor {
	return func(f feature.Feature) (float64, bool) {
		s := strings.TrimSpace(f.Get(field).Str())
		if i := strings.LastIndex(s, delim); delim != "" && i >= 0 {
			s = strings.TrimSpace(s[i+len(delim):])
		}
		if s == "" {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}
}
