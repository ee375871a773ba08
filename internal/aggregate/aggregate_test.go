package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiber-bom/internal/feature"
)

func fc(layer string, attrs ...map[string]any) *feature.Collection {
	c := feature.NewCollection(layer)
	for i, a := range attrs {
		c.Features = append(c.Features, feature.New(int64(i+1), a))
	}
	return c
}

func TestEmptyCollectionsReturnIdentity(t *testing.T) {
	for _, c := range []*feature.Collection{nil, feature.NewCollection("empty")} {
		assert.Equal(t, 0, FilteredCount(c, All))
		assert.Equal(t, int64(0), FilteredLengthSum(c, All, feature.LengthField, Ceil))
		assert.Empty(t, GroupedLengthSum(c, "fibercount", feature.LengthField))
		assert.Equal(t, 0, UniqueCount(c, All, "cable_name"))
		assert.Equal(t, -1.0, MaxDerivedValue(c, All, TrailingNumber("fiber_assignments", "-"), -1))
		_, ok := Mean(c, All, feature.LengthField)
		assert.False(t, ok)
	}
}

func TestFilteredLengthSum_ScenarioA(t *testing.T) {
	fiber := fc("FiberCable",
		map[string]any{"status": "N", feature.LengthField: 120.4},
		map[string]any{"status": "N", feature.LengthField: 80.0},
		map[string]any{"status": "N", feature.LengthField: nil},
	)

	got := FilteredLengthSum(fiber, Eq("status", "N"), feature.LengthField, Ceil)
	assert.Equal(t, int64(201), got)
}

func TestFilteredLengthSum_AllNull(t *testing.T) {
	c := fc("x", map[string]any{feature.LengthField: nil}, map[string]any{"other": 1})
	assert.Equal(t, int64(0), FilteredLengthSum(c, nil, feature.LengthField, nil))
}

func TestFilteredLengthSum_CeilTo(t *testing.T) {
	c := fc("x", map[string]any{"len": 11.0}, map[string]any{"len": "0.5"})
	assert.Equal(t, int64(15), FilteredLengthSum(c, All, "len", CeilTo(5)))
}

func TestFilteredCount_ScenarioB(t *testing.T) {
	splices := feature.NewCollection("SpliceClosure")
	assert.Equal(t, 0, FilteredCount(splices, Contains("splice_type", "NAP")))
}

func TestFilteredCount_Predicates(t *testing.T) {
	vaults := fc("Structure",
		map[string]any{"structure_type": "Small Vault", "pvault": "N"},
		map[string]any{"structure_type": "Small Vault", "pvault": "Y"},
		map[string]any{"structure_type": "Medium Vault", "pvault": "N"},
		map[string]any{"structure_type": nil, "pvault": "N"},
	)

	assert.Equal(t, 1, FilteredCount(vaults, And(Eq("structure_type", "Small Vault"), Eq("pvault", "N"))))
	assert.Equal(t, 3, FilteredCount(vaults, Eq("pvault", "N")))
	assert.Equal(t, 3, FilteredCount(vaults, In("structure_type", "Small Vault", "Medium Vault")))
	assert.Equal(t, 1, FilteredCount(vaults, IsBlank("structure_type")))
	assert.Equal(t, 4, FilteredCount(vaults, nil))
}

func TestGroupedLengthSum_ScenarioD(t *testing.T) {
	fiber := fc("FiberCable",
		map[string]any{"fibercount": 288, feature.LengthField: 100.0},
		map[string]any{"fibercount": 288, feature.LengthField: 50.5},
		map[string]any{"fibercount": 144, feature.LengthField: 30.0},
		map[string]any{"fibercount": nil, feature.LengthField: 999.0},
	)

	got := GroupedLengthSum(fiber, "fibercount", feature.LengthField)
	assert.Equal(t, map[string]int64{"288": 151, "144": 30}, got)
}

func TestUniqueCount(t *testing.T) {
	fiber := fc("FiberCable",
		map[string]any{"cable_name": "A"},
		map[string]any{"cable_name": "A"},
		map[string]any{"cable_name": "B"},
		map[string]any{"cable_name": nil},
		map[string]any{"cable_name": " "},
	)
	assert.Equal(t, 2, UniqueCount(fiber, All, "cable_name"))
	assert.Equal(t, 1, UniqueCount(fiber, Eq("cable_name", "B"), "cable_name"))
}

func TestMaxDerivedValue_SkipsMalformed(t *testing.T) {
	scs := fc("SpliceClosure",
		map[string]any{"fiber_assignments": "1-1-36"},
		map[string]any{"fiber_assignments": "1-1-x"},
		map[string]any{"fiber_assignments": "1-1-72"},
		map[string]any{"fiber_assignments": ""},
		map[string]any{"fiber_assignments": nil},
	)
	got := MaxDerivedValue(scs, All, TrailingNumber("fiber_assignments", "-"), 0)
	assert.Equal(t, 72.0, got)
}

func TestMaxDerivedValue_OnlyMalformedReturnsDefault(t *testing.T) {
	scs := fc("SpliceClosure",
		map[string]any{"fiber_assignments": "abc"},
		map[string]any{"fiber_assignments": "1-1-"},
		map[string]any{"fiber_assignments": nil},
	)
	got := MaxDerivedValue(scs, All, TrailingNumber("fiber_assignments", "-"), -7)
	assert.Equal(t, -7.0, got)
}

func TestMaxDerivedValue_NegativeValuesNotDepressed(t *testing.T) {
	c := fc("x", map[string]any{"v": -5.0}, map[string]any{"v": "bad"})
	extract := func(f feature.Feature) (float64, bool) { return f.Get("v").Float() }
	assert.Equal(t, -5.0, MaxDerivedValue(c, All, extract, 0))
}

func TestTrailingNumber(t *testing.T) {
	ex := TrailingNumber("fa", "-")
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{"F1-1-144", 144, true},
		{"96", 96, true},
		{96.0, 96, true},
		{"1-1- 12 ", 12, true},
		{"1-1-", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{"12-A", 0, false},
	}
	for _, tt := range tests {
		got, ok := ex(feature.New(1, map[string]any{"fa": tt.in}))
		assert.Equal(t, tt.wantOK, ok, "input %v", tt.in)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}
}

func TestMean(t *testing.T) {
	drops := fc("DropFiber",
		map[string]any{feature.LengthField: 100.0},
		map[string]any{feature.LengthField: 201.0},
		map[string]any{feature.LengthField: nil},
	)
	got, ok := Mean(drops, All, feature.LengthField)
	require.True(t, ok)
	assert.InDelta(t, 150.5, got, 1e-9)
}

func TestRoundUpToMultiple_Properties(t *testing.T) {
	values := []float64{0, 0.1, 1, 4.999, 5, 5.0001, 11, 12, 13, 143.5, 1000}
	multiples := []int64{1, 5, 12, 50}
	for _, v := range values {
		for _, m := range multiples {
			got := RoundUpToMultiple(v, m)
			assert.Equal(t, int64(0), got%m, "v=%v m=%d", v, m)
			assert.GreaterOrEqual(t, float64(got), v, "v=%v m=%d", v, m)
			assert.Less(t, float64(got), v+float64(m), "v=%v m=%d", v, m)
		}
	}
}

func TestRoundUpToMultiple_NonPositiveMultiple(t *testing.T) {
	assert.Equal(t, int64(5), RoundUpToMultiple(4.2, 0))
	assert.Equal(t, int64(5), RoundUpToMultiple(4.2, -3))
}

func TestRatioedAllocation(t *testing.T) {
	tests := []struct {
		name       string
		primary    float64
		cohort     []float64
		structures int
		perUnit    float64
		margin     float64
		want       int64
	}{
		{
			name:    "288 share of vault allowance",
			primary: 1000, cohort: []float64{1000, 1000}, structures: 4, perUnit: 100, margin: 1.07,
			want: 1270, // 1070 + 0.5*4*100
		},
		{
			name:    "zero cohort drops allowance",
			primary: 0, cohort: []float64{0, 0}, structures: 10, perUnit: 100, margin: 1.07,
			want: 0,
		},
		{
			name:    "empty cohort",
			primary: 100, cohort: nil, structures: 3, perUnit: 50, margin: 1.07,
			want: 107,
		},
		{
			name:    "fractional rounds up",
			primary: 10, cohort: []float64{10, 20}, structures: 1, perUnit: 50, margin: 1.07,
			want: 28, // 10.7 + 16.67 = 27.37
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RatioedAllocation(tt.primary, tt.cohort, tt.structures, tt.perUnit, tt.margin)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRatioedAllocation_FiniteNonNegative(t *testing.T) {
	inputs := [][]float64{{0}, {0, 0}, {1, 0}, {1e12, 1e-12}, {}}
	for _, cohort := range inputs {
		for _, primary := range []float64{0, 0.5, 1e9} {
			got := RatioedAllocation(primary, cohort, 7, 100, 1.07)
			assert.GreaterOrEqual(t, got, int64(0))
			assert.False(t, math.IsInf(float64(got), 0))
		}
	}
}

func TestOrNot(t *testing.T) {
	c := fc("x",
		map[string]any{"t": "RE"},
		map[string]any{"t": "MCA"},
		map[string]any{"t": "NAP"},
	)
	assert.Equal(t, 2, FilteredCount(c, Or(Eq("t", "RE"), Eq("t", "MCA"))))
	assert.Equal(t, 1, FilteredCount(c, Not(Or(Eq("t", "RE"), Eq("t", "MCA")))))
	assert.Equal(t, 0, FilteredCount(c, Or()))
	assert.Equal(t, 3, FilteredCount(c, And()))
}

func TestNumericPredicates(t *testing.T) {
	c := fc("x",
		map[string]any{"fibercount": "288", feature.LengthField: 700.0},
		map[string]any{"fibercount": 288.0, feature.LengthField: 600.0},
		map[string]any{"fibercount": "n/a", feature.LengthField: "650"},
	)
	assert.Equal(t, 2, FilteredCount(c, EqNum("fibercount", 288)))
	assert.Equal(t, 2, FilteredCount(c, Gt(feature.LengthField, 600)))
}
