package projection

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actuarial_valuation/pkg/core/assumption"
	"actuarial_valuation/pkg/core/population"
	"actuarial_valuation/pkg/core/projection/projtest"
)

func newGraph(t *testing.T, r projtest.Rates, policies ...population.Policy) *Graph {
	t.Helper()
	g, err := NewGraph(RunContext{ValuationDate: projtest.ValuationDate}, projtest.Population(t, policies...), projtest.Bundle(t, r))
	require.NoError(t, err)
	return g
}

func total(t *testing.T, g *Graph, cell string, period int) float64 {
	t.Helper()
	v, err := g.Total(cell, period)
	require.NoError(t, err)
	return v
}

func TestScenarioA_SinglePolicyPremiums(t *testing.T) {
	g := newGraph(t, projtest.Rates{}, projtest.Policy("A", 1))
	require.Equal(t, 13, g.MaxProjLen())

	collected := 0.0
	for p := 0; p < g.MaxProjLen(); p++ {
		collected += total(t, g, CellPremiums, p)
	}
	assert.InDelta(t, 1200, collected, 1e-9)
	assert.InDelta(t, 100, total(t, g, CellPremiums, 11), 1e-12)
	assert.Equal(t, 0.0, total(t, g, CellPremiums, 12))
	assert.Equal(t, 0.0, total(t, g, CellPolsIf, 12))
	assert.Equal(t, 1.0, total(t, g, CellPolsMaturity, 12))
}

func TestScenarioB_MaturingPolicyDropsOut(t *testing.T) {
	g := newGraph(t, projtest.Rates{}, projtest.Policy("A", 1), projtest.Policy("B", 5))
	require.Equal(t, 61, g.MaxProjLen())

	assert.Equal(t, 2.0, total(t, g, CellPolsIf, 11))
	assert.Equal(t, 1.0, total(t, g, CellPolsIf, 12))

	ifB := func(p int) float64 {
		v, err := g.Eval(CellPolsIf, p)
		require.NoError(t, err)
		got, _ := v.Get("B")
		return got
	}
	for _, p := range []int{0, 11, 12, 13, 59} {
		assert.Equal(t, 1.0, ifB(p), "B in force at t=%d", p)
	}
	assert.Equal(t, 0.0, ifB(60))
}

func TestScenarioC_InflationCarriesForward(t *testing.T) {
	g := newGraph(t, projtest.Rates{Inflation: 0.03, InflationMonths: 3}, projtest.Policy("A", 5))

	v, err := g.Eval(CellInflationRate, 60)
	require.NoError(t, err)
	assert.Equal(t, 0.03, v.At(0))

	f, err := g.Eval(CellInflationFactor, 12)
	require.NoError(t, err)
	assert.InDelta(t, 1.03, f.At(0), 1e-12)
}

func TestConservation(t *testing.T) {
	a := projtest.Policy("A", 3)
	a.PolicyCount = 10
	b := projtest.Policy("B", 5)
	b.PolicyCount = 3
	g := newGraph(t, projtest.Rates{Mortality: 0.05, Lapse: 0.2}, a, b)

	for p := 1; p < g.MaxProjLen(); p++ {
		cur, err := g.Eval(CellPolsIf, p)
		require.NoError(t, err)
		prev, err := g.EvalAll(p-1, CellPolsIf, CellPolsLapse, CellPolsDeath)
		require.NoError(t, err)
		mat, err := g.Eval(CellPolsMaturity, p)
		require.NoError(t, err)

		for i := 0; i < cur.Len(); i++ {
			want := prev[0].At(i) - prev[1].At(i) - prev[2].At(i) - mat.At(i)
			assert.InDelta(t, want, cur.At(i), 1e-12, "t=%d policy=%s", p, cur.Key(i))
			assert.GreaterOrEqual(t, cur.At(i), 0.0)
			assert.LessOrEqual(t, cur.At(i), prev[0].At(i))
		}
	}
}

func TestMaturityBoundary(t *testing.T) {
	g := newGraph(t, projtest.Rates{Mortality: 0.01, Lapse: 0.1}, projtest.Policy("A", 2), projtest.Policy("B", 5))

	for p := 0; p < g.MaxProjLen(); p++ {
		mat, err := g.Eval(CellPolsMaturity, p)
		require.NoError(t, err)
		got, _ := mat.Get("A")
		if p != 24 {
			assert.Equal(t, 0.0, got, "t=%d", p)
			continue
		}
		prev, err := g.EvalAll(23, CellPolsIf, CellPolsLapse, CellPolsDeath)
		require.NoError(t, err)
		assert.Equal(t, prev[0].At(0)-prev[1].At(0)-prev[2].At(0), got)
		assert.Greater(t, got, 0.0)
	}
}

func TestMemoization(t *testing.T) {
	g := newGraph(t, projtest.Rates{Mortality: 0.01, Lapse: 0.1}, projtest.Policy("A", 10))

	first, err := g.Eval(CellNetCF, 60)
	require.NoError(t, err)
	calls := g.Resolver().Calls()
	stats := g.Stats()
	require.Greater(t, calls, int64(0))

	second, err := g.Eval(CellNetCF, 60)
	require.NoError(t, err)

	assert.True(t, first.Identical(second))
	assert.Equal(t, calls, g.Resolver().Calls(), "a cached cell must not touch the tables again")
	assert.Equal(t, stats.Computed, g.Stats().Computed)
	assert.Equal(t, stats.Hits+1, g.Stats().Hits)
}

func TestLongHorizonWalksIteratively(t *testing.T) {
	g := newGraph(t, projtest.Rates{Mortality: 0.001, Lapse: 0.01}, projtest.Policy("A", 100))
	require.Equal(t, 1201, g.MaxProjLen())

	v, err := g.Eval(CellPolsIf, g.Terminal())
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.At(0))
}

func TestRangeError(t *testing.T) {
	g := newGraph(t, projtest.Rates{}, projtest.Policy("A", 1))

	for _, p := range []int{-1, g.MaxProjLen()} {
		_, err := g.Eval(CellPremiums, p)
		require.Error(t, err)
		assert.True(t, IsRangeError(err), "t=%d: %v", p, err)
		assert.Contains(t, err.Error(), "cell=premiums")
	}
}

func TestHorizonCeiling(t *testing.T) {
	rc := RunContext{ValuationDate: projtest.ValuationDate, HorizonYears: 2}
	g, err := NewGraph(rc, projtest.Population(t, projtest.Policy("A", 5)), projtest.Bundle(t, projtest.Rates{}))
	require.NoError(t, err)

	assert.Equal(t, 25, g.MaxProjLen())
	_, err = g.Eval(CellPolsIf, 25)
	assert.True(t, IsRangeError(err))
}

func TestLookupErrorNamesPolicy(t *testing.T) {
	late := projtest.Policy("late", 5)
	late.EntryDate = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	g := newGraph(t, projtest.Rates{}, projtest.Policy("A", 5), late)

	_, err := g.Eval(CellPolsLapse, 0)
	require.Error(t, err)
	assert.True(t, IsLookupError(err))

	var ee *EvalError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "late", ee.PolicyKey)
	assert.Equal(t, CellLapseRate, ee.Cell)
	assert.Equal(t, 0, ee.Period)
}

func TestLookupMissPropagates(t *testing.T) {
	f := projtest.Policy("F", 5)
	f.Sex = population.Female
	g := newGraph(t, projtest.Rates{SkipFemale: true, Mortality: 0.01}, projtest.Policy("M", 5), f)

	v, err := g.Eval(CellPremiums, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"F"}, v.MissingKeys())
	assert.True(t, math.IsNaN(v.Sum()), "a miss must reach the total")

	m, _ := v.Get("M")
	assert.False(t, population.IsMissing(m))
}

func TestOptionalTables(t *testing.T) {
	covered := projtest.Policy("C", 5)
	covered.TPDCover = true

	g := newGraph(t, projtest.Rates{}, covered)
	_, err := g.Eval(CellTPDClaims, 0)
	assert.True(t, IsMissingTableError(err), "got %v", err)

	g = newGraph(t, projtest.Rates{}, projtest.Policy("A", 5))
	v, err := g.Eval(CellClaims, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Sum())

	g = newGraph(t, projtest.Rates{WithRiders: true, TPD: 0.012}, covered)
	v, err = g.Eval(CellTPDClaims, 0)
	require.NoError(t, err)
	want := 100000 * (1 - math.Pow(1-0.012, 1.0/12))
	assert.InDelta(t, want, v.At(0), 1e-9)

	// Rider claims do not reduce the in-force.
	assert.Equal(t, 1.0, total(t, g, CellPolsIf, 1))
}

func TestMissingRequiredTable(t *testing.T) {
	_, err := NewGraph(RunContext{ValuationDate: projtest.ValuationDate},
		projtest.Population(t, projtest.Policy("A", 1)), assumption.NewBundle("empty"))
	assert.True(t, IsMissingTableError(err))
}

func TestPremiumIncrease(t *testing.T) {
	p := projtest.Policy("A", 3)
	p.PremiumIncrease = true
	g := newGraph(t, projtest.Rates{Inflation: 0.1}, p)

	assert.Equal(t, 1200.0, total(t, g, CellPremiumPP, 11))
	assert.InDelta(t, 1320, total(t, g, CellPremiumPP, 12), 1e-9)
	assert.InDelta(t, 110000, total(t, g, CellClaimPP, 12), 1e-9)
	assert.InDelta(t, 1320, total(t, g, CellPremiumPP, 23), 1e-9)
}

func TestSeasonedPolicy(t *testing.T) {
	// In force since March 2021: 35 months elapsed at the January 2024
	// valuation, 25 months of a 5-year term left.
	p := projtest.Policy("A", 5)
	p.EntryDate = time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)
	p.PremiumIncrease = true
	g := newGraph(t, projtest.Rates{Mortality: 0.01, Lapse: 0.1, Inflation: 0.1}, p)

	dur, err := g.Static(CellDurationAtValuation)
	require.NoError(t, err)
	assert.Equal(t, 35.0, dur.At(0))

	for q := 0; q < g.MaxProjLen(); q++ {
		mat := total(t, g, CellPolsMaturity, q)
		if q != 26 {
			assert.Equal(t, 0.0, mat, "t=%d", q)
			continue
		}
		prev, err := g.EvalAll(25, CellPolsIf, CellPolsLapse, CellPolsDeath)
		require.NoError(t, err)
		assert.Equal(t, prev[0].At(0)-prev[1].At(0)-prev[2].At(0), mat)
		assert.Greater(t, mat, 0.0)
	}
	assert.Equal(t, 0.0, total(t, g, CellPolsIf, 26))
	assert.Equal(t, 0.0, total(t, g, CellPremiums, 30))

	// Policy years start at durations 37 and 49.
	assert.Equal(t, 1200.0, total(t, g, CellPremiumPP, 1))
	assert.InDelta(t, 1320, total(t, g, CellPremiumPP, 2), 1e-9)
	assert.InDelta(t, 1320, total(t, g, CellPremiumPP, 13), 1e-9)
	assert.InDelta(t, 1452, total(t, g, CellPremiumPP, 14), 1e-9)
}

func TestAnnualPremiumTiming(t *testing.T) {
	p := projtest.Policy("A", 3)
	p.PremiumFrequency = 1
	g := newGraph(t, projtest.Rates{}, p)

	assert.Equal(t, 1200.0, total(t, g, CellPremiums, 0))
	assert.Equal(t, 0.0, total(t, g, CellPremiums, 1))
	assert.Equal(t, 1200.0, total(t, g, CellPremiums, 12))
}

func TestExpensesAndNetCashflow(t *testing.T) {
	g := newGraph(t, projtest.Rates{PremExpPc: 0.05, FixedExp: 120, CommPc: 0.1}, projtest.Policy("A", 3))

	assert.InDelta(t, 15, total(t, g, CellExpensePP, 0), 1e-12)
	assert.InDelta(t, 10, total(t, g, CellCommissionPP, 0), 1e-12)
	assert.InDelta(t, 75, total(t, g, CellNetCF, 0), 1e-12)
}

func TestProductSelection(t *testing.T) {
	level := projtest.Policy("L", 5)
	level.Product = "LEVEL"
	pop := projtest.Population(t, projtest.Policy("T", 1), level)
	bundle := projtest.Bundle(t, projtest.Rates{Products: []string{"TERM", "LEVEL"}})

	g, err := NewGraph(RunContext{ValuationDate: projtest.ValuationDate, Product: "LEVEL"}, pop, bundle)
	require.NoError(t, err)
	assert.Equal(t, []string{"L"}, g.Population().Index().Keys())
	assert.Equal(t, 61, g.MaxProjLen())
}

func TestSetAssumptionsResetsCache(t *testing.T) {
	g := newGraph(t, projtest.Rates{}, projtest.Policy("A", 5))
	assert.Equal(t, 1.0, total(t, g, CellPolsIf, 12))
	require.Greater(t, g.Stats().Computed, 0)

	require.NoError(t, g.SetAssumptions(projtest.Bundle(t, projtest.Rates{Lapse: 0.5})))
	assert.Equal(t, Stats{}, g.Stats())
	assert.Less(t, total(t, g, CellPolsIf, 12), 1.0)
}

func TestSelfDependencyIsReported(t *testing.T) {
	g := newGraph(t, projtest.Rates{}, projtest.Policy("A", 1))
	require.NoError(t, g.Register(Cell{Name: "loop", Kind: Point, Compute: func(g *Graph, t int) (population.Vector, error) {
		return g.Eval("loop", t)
	}}))

	_, err := g.Eval("loop", 0)
	var ee *EvalError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, CodeInput, ee.Code)
}
