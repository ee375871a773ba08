// Package bom maps boundary feature sets to bill-of-materials line items.
// Each variant is one literal table of entries; an entry names a quantity,
// the template cell it fills, and the aggregation that computes it.
package bom

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fiber-bom/internal/aggregate"
	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

// Business constants shared by the variant tables.
const (
	marginFactor     = 1.07
	aerialFactor     = 1.05
	addressesPerOLT  = 496
	otdrPad          = 24
	otdrMultiple     = 12
	vaultAllowanceFt = 100
	pedAllowanceFt   = 50
	longDropFt       = 600
)

// Entry is one row of a variant table.
type Entry struct {
	Name string
	Cell string
	// Sheet overrides the variant sheet when set.
	Sheet   string
	Compute func(*Env) Value
}

// Env is what an entry sees while computing: the boundary, its features and
// the values of entries computed before it.
type Env struct {
	Boundary string
	Set      *feature.Set

	values map[string]Value
}

// Layer returns the named collection of the boundary, never nil.
func (e *Env) Layer(name string) *feature.Collection { return e.Set.Get(name) }

// Value returns the result of an earlier entry. Referencing an entry that
// has not been computed yet is a table bug and panics.
func (e *Env) Value(name string) Value {
	v, ok := e.values[name]
	if !ok {
		panic(fmt.Sprintf("bom: entry %q referenced before it was computed", name))
	}
	return v
}

// Number returns the numeric result of an earlier entry, or 0 for text.
func (e *Env) Number(name string) float64 {
	n, _ := e.Value(name).Number()
	return n
}

// Variant is one BOM flavour: the layers it needs, the template it fills and
// the table of entries that fill it.
type Variant struct {
	Name     string
	Title    string
	Sheet    string
	Template string
	Plan     spatial.Plan
	// Prepare adds derived attributes before the table runs. It receives a
	// private copy of the feature set.
	Prepare func(*feature.Set)
	Entries []Entry
}

// Apply runs the table over set and returns one line item per entry, in
// table order. It does not modify set.
func (v Variant) Apply(boundary string, set *feature.Set) []LineItem {
	work := set.Clone()
	if work == nil {
		work = feature.NewSet(boundary)
	}
	if v.Prepare != nil {
		v.Prepare(work)
	}

	env := &Env{Boundary: boundary, Set: work, values: make(map[string]Value, len(v.Entries))}
	items := make([]LineItem, 0, len(v.Entries))
	for _, e := range v.Entries {
		val := e.Compute(env)
		env.values[e.Name] = val

		sheet := e.Sheet
		if sheet == "" {
			sheet = v.Sheet
		}
		items = append(items, LineItem{Name: e.Name, Sheet: sheet, Cell: e.Cell, Value: val})
	}
	return items
}

var registry = map[string]Variant{}

func register(v Variant) Variant {
	registry[v.Name] = v
	return v
}

// Lookup returns the variant registered under name.
func Lookup(name string) (Variant, error) {
	v, ok := registry[name]
	if !ok {
		return Variant{}, eris.Errorf("bom: unknown variant %q (have %v)", name, Names())
	}
	return v, nil
}

// Names lists the registered variant names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Variants returns every registered variant sorted by name.
func Variants() []Variant {
	out := make([]Variant, 0, len(registry))
	for _, n := range Names() {
		out = append(out, registry[n])
	}
	return out
}

// Table-building helpers. Each returns a Compute func over one layer.

func count(layer string, pred aggregate.Predicate) func(*Env) Value {
	return func(e *Env) Value {
		return Int(int64(aggregate.FilteredCount(e.Layer(layer), pred)))
	}
}

func footage(layer string, pred aggregate.Predicate) func(*Env) Value {
	return func(e *Env) Value {
		return Int(aggregate.FilteredLengthSum(e.Layer(layer), pred, feature.LengthField, aggregate.Ceil))
	}
}

func scaledFootage(layer string, pred aggregate.Predicate, factor float64) func(*Env) Value {
	return func(e *Env) Value {
		return Int(aggregate.Ceil(aggregate.FilteredSum(e.Layer(layer), pred, feature.LengthField) * factor))
	}
}

func sum(layer string, pred aggregate.Predicate, field string) func(*Env) Value {
	return func(e *Env) Value {
		return Int(aggregate.FilteredLengthSum(e.Layer(layer), pred, field, aggregate.Ceil))
	}
}

func zero(*Env) Value { return Int(0) }
