package spatial

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// BoundaryRef is replaced by the boundary id when a plan is bound, so layer
// filters can reference the boundary being processed.
const BoundaryRef = "{boundary}"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether s is safe to use as a layer or field name.
func ValidIdent(s string) bool { return identRe.MatchString(s) }

// Op is a comparison operator on a feature attribute.
type Op string

const (
	OpEq     Op = "="
	OpNe     Op = "<>"
	OpGt     Op = ">"
	OpPrefix Op = "prefix"
	OpIn     Op = "in"
)

// Cond compares one attribute. Field names are matched lower-cased, the way
// layers are loaded. Numeric values (int, float64) compare
// numerically; strings compare as text.
type Cond struct {
	Field  string
	Op     Op
	Value  any
	Values []string
}

// Filter is a conjunction of conditions, or a disjunction when Any is set.
// The zero Filter matches everything.
type Filter struct {
	Conds []Cond
	Any   bool
}

// Where builds a conjunctive filter.
func Where(conds ...Cond) Filter { return Filter{Conds: conds} }

// AnyOf builds a disjunctive filter.
func AnyOf(conds ...Cond) Filter { return Filter{Conds: conds, Any: true} }

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Cond { return Cond{Field: field, Op: OpEq, Value: value} }

// Ne is shorthand for an inequality condition.
func Ne(field string, value any) Cond { return Cond{Field: field, Op: OpNe, Value: value} }

// Gt is shorthand for a numeric greater-than condition.
func Gt(field string, value float64) Cond { return Cond{Field: field, Op: OpGt, Value: value} }

// Prefix matches text values starting with value.
func Prefix(field, value string) Cond { return Cond{Field: field, Op: OpPrefix, Value: value} }

// In matches text values equal to any of values.
func In(field string, values ...string) Cond { return Cond{Field: field, Op: OpIn, Values: values} }

// Empty reports whether f has no conditions.
func (f Filter) Empty() bool { return len(f.Conds) == 0 }

// Bind returns a copy of f with BoundaryRef replaced by boundary.
func (f Filter) Bind(boundary string) Filter {
	out := Filter{Any: f.Any, Conds: make([]Cond, len(f.Conds))}
	for i, c := range f.Conds {
		if s, ok := c.Value.(string); ok {
			c.Value = strings.ReplaceAll(s, BoundaryRef, boundary)
		}
		if len(c.Values) > 0 {
			vals := make([]string, len(c.Values))
			for j, v := range c.Values {
				vals[j] = strings.ReplaceAll(v, BoundaryRef, boundary)
			}
			c.Values = vals
		}
		out.Conds[i] = c
	}
	return out
}

// numExpr reads a jsonb attribute as double precision, or NULL when the text
// is not numeric, so malformed attributes never abort a query.
func numExpr(alias, field string) string {
	text := fmt.Sprintf("(%s.attrs->>'%s')", alias, field)
	return fmt.Sprintf(`(CASE WHEN %s ~ '^\s*-?[0-9]+(\.[0-9]+)?\s*$' THEN %s::double precision END)`, text, text)
}

// SQL renders f as a boolean SQL expression over the attrs column of alias.
// Placeholders start at $argStart.
func (f Filter) SQL(alias string, argStart int) (string, []any, error) {
	if f.Empty() {
		return "TRUE", nil, nil
	}

	var parts []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(argStart+len(args)-1)
	}

	for _, c := range f.Conds {
		if !ValidIdent(c.Field) {
			return "", nil, eris.Errorf("spatial: invalid field name %q", c.Field)
		}
		field := strings.ToLower(c.Field)
		text := fmt.Sprintf("%s.attrs->>'%s'", alias, field)

		switch c.Op {
		case OpEq, OpNe:
			if n, ok := numeric(c.Value); ok {
				parts = append(parts, fmt.Sprintf("%s %s %s", numExpr(alias, field), c.Op, next(n)))
			} else {
				parts = append(parts, fmt.Sprintf("%s %s %s", text, c.Op, next(fmt.Sprint(c.Value))))
			}
		case OpGt:
			n, ok := numeric(c.Value)
			if !ok {
				return "", nil, eris.Errorf("spatial: %s > requires a number, got %T", c.Field, c.Value)
			}
			parts = append(parts, fmt.Sprintf("%s > %s", numExpr(alias, field), next(n)))
		case OpPrefix:
			parts = append(parts, fmt.Sprintf("%s LIKE %s", text, next(escapeLike(fmt.Sprint(c.Value))+"%")))
		case OpIn:
			if len(c.Values) == 0 {
				parts = append(parts, "FALSE")
				continue
			}
			parts = append(parts, fmt.Sprintf("%s = ANY(%s)", text, next(c.Values)))
		default:
			return "", nil, eris.Errorf("spatial: unsupported operator %q", c.Op)
		}
	}

	joiner := " AND "
	if f.Any {
		joiner = " OR "
	}
	return "(" + strings.Join(parts, joiner) + ")", args, nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
