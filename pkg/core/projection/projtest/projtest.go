// Package projtest builds small populations and flat assumption bundles for
// tests of the projection, valuation and report packages.
package projtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"actuarial_valuation/pkg/core/assumption"
	"actuarial_valuation/pkg/core/population"
)

// ValuationDate is the valuation date used by the fixtures.
var ValuationDate = time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

// Policy returns a monthly-pay policy entered in the valuation month, so its
// duration at t is t + 1.
func Policy(id string, term int) population.Policy {
	return population.Policy{
		ID:               id,
		DateOfBirth:      time.Date(1984, time.June, 10, 0, 0, 0, 0, time.UTC),
		EntryDate:        time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Sex:              population.Male,
		Product:          "TERM",
		PolicyTerm:       term,
		SumAssured:       100000,
		AnnualPremium:    1200,
		PremiumFrequency: 12,
		PolicyCount:      1,
	}
}

// Population builds a population and fails the test on error.
func Population(t testing.TB, policies ...population.Policy) *population.Population {
	t.Helper()
	pop, err := population.New(policies)
	require.NoError(t, err)
	return pop
}

// Rates are the flat assumptions of a test bundle. Annual rates apply to
// every age, sex and policy year.
type Rates struct {
	Products  []string
	Mortality float64
	Lapse     float64
	PremExpPc float64
	FixedExp  float64 // Annual amount per policy
	CommPc    float64
	TPD       float64
	Trauma    float64
	RIRate    float64
	RAPercent float64

	// Inflation is defined for InflationMonths months from the valuation
	// month and carried forward after that.
	Inflation       float64
	InflationMonths int

	// Discount is the monthly forward rate, defined for DiscountMonths
	// months from the valuation month.
	Discount       float64
	DiscountMonths int

	// SkipFemale leaves out the rows for sex F to provoke lookup misses.
	SkipFemale bool

	// WithRiders adds the TPD, trauma, reinsurance and risk adjustment
	// tables.
	WithRiders bool
}

// Bundle builds a flat bundle. Numeric keys are bucketed onto a single row
// so that any age or policy year resolves to the flat rate.
func Bundle(t testing.TB, r Rates) *assumption.Bundle {
	t.Helper()
	if len(r.Products) == 0 {
		r.Products = []string{"TERM"}
	}
	if r.InflationMonths == 0 {
		r.InflationMonths = 1
	}
	if r.DiscountMonths == 0 {
		r.DiscountMonths = 1200
	}

	b := assumption.NewBundle("flat")
	ageBucket := map[assumption.Column]assumption.Bucket{assumption.ColAge: {Min: 0, Max: 0}}
	yearBucket := map[assumption.Column]assumption.Bucket{assumption.ColPolicyYear: {Min: 1, Max: 1}}

	sexes := []string{population.Male}
	if !r.SkipFemale {
		sexes = append(sexes, population.Female)
	}
	var mort, ri []assumption.Row
	var tpd, trauma []assumption.Row
	for _, s := range sexes {
		mort = append(mort, assumption.Row{Key: []string{"0", s}, Value: r.Mortality})
		ri = append(ri, assumption.Row{Key: []string{"0", s}, Value: r.RIRate})
		tpd = append(tpd, assumption.Row{Key: []string{"0", s, ""}, Value: r.TPD})
		trauma = append(trauma, assumption.Row{Key: []string{"0", s, ""}, Value: r.Trauma})
	}
	add(t, b, assumption.TableMortality, mort, ageBucket)

	byProduct := func(v float64) []assumption.Row {
		rows := make([]assumption.Row, len(r.Products))
		for i, p := range r.Products {
			rows[i] = assumption.Row{Key: []string{p, "1"}, Value: v}
		}
		return rows
	}
	add(t, b, assumption.TableLapse, byProduct(r.Lapse), yearBucket)
	add(t, b, assumption.TablePremiumExpense, byProduct(r.PremExpPc), yearBucket)
	add(t, b, assumption.TableFixedExpense, byProduct(r.FixedExp), yearBucket)
	add(t, b, assumption.TableCommission, byProduct(r.CommPc), yearBucket)

	if r.WithRiders {
		add(t, b, assumption.TableTPD, tpd, ageBucket)
		add(t, b, assumption.TableTrauma, trauma, ageBucket)
		add(t, b, assumption.TableReinsurance, ri, ageBucket)
		ra := make([]assumption.Row, len(r.Products))
		for i, p := range r.Products {
			ra[i] = assumption.Row{Key: []string{p}, Value: r.RAPercent}
		}
		add(t, b, assumption.TableRiskAdjustment, ra, nil)
	}

	start := assumption.MonthStart(ValuationDate)
	require.NoError(t, b.AddSeries(series(t, assumption.SeriesInflation, assumption.FillForward, start, r.InflationMonths, r.Inflation)))
	require.NoError(t, b.AddSeries(series(t, assumption.SeriesDiscount, assumption.FillNone, start, r.DiscountMonths, r.Discount)))
	return b
}

func add(t testing.TB, b *assumption.Bundle, name string, rows []assumption.Row, buckets map[assumption.Column]assumption.Bucket) {
	t.Helper()
	tbl, err := assumption.NewRateTable(name, assumption.Schema[name], rows, buckets)
	require.NoError(t, err)
	require.NoError(t, b.AddTable(tbl))
}

func series(t testing.TB, name string, fill assumption.Fill, start time.Time, months int, v float64) *assumption.DatedSeries {
	t.Helper()
	points := make([]assumption.Point, months)
	for i := range points {
		points[i] = assumption.Point{Month: start.AddDate(0, i, 0), Value: v}
	}
	s, err := assumption.NewDatedSeries(name, fill, points)
	require.NoError(t, err)
	return s
}
