package lookup

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actuarial_valuation/pkg/core/assumption"
	"actuarial_valuation/pkg/core/population"
)

func twoPolicies(t *testing.T) *population.Population {
	t.Helper()
	base := population.Policy{
		DateOfBirth:      time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC),
		EntryDate:        time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		Sex:              population.Male,
		Product:          "TERM",
		PolicyTerm:       10,
		PremiumFrequency: 12,
	}
	a, b := base, base
	a.ID, b.ID = "A", "B"
	b.Sex = population.Female
	pop, err := population.New([]population.Policy{a, b})
	require.NoError(t, err)
	return pop
}

func mortality(t *testing.T) *assumption.RateTable {
	t.Helper()
	tbl, err := assumption.NewRateTable(assumption.TableMortality,
		[]assumption.Column{assumption.ColAge, assumption.ColSex},
		[]assumption.Row{
			{Key: []string{"44", "M"}, Value: 0.002},
			{Key: []string{"44", "F"}, Value: 0.001},
			{Key: []string{"45", "M"}, Value: 0.003},
		},
		map[assumption.Column]assumption.Bucket{assumption.ColAge: {Min: 18, Max: 45}})
	require.NoError(t, err)
	return tbl
}

func TestRate_ExactAndBucketed(t *testing.T) {
	pop := twoPolicies(t)
	r := NewResolver(pop)
	ix := pop.Index()

	got, err := r.Rate(mortality(t), State{
		Age:    population.NewVector(ix, []float64{80, 44}),
		Active: population.Fill(ix, 1),
	})
	require.NoError(t, err)

	// Age 80 clamps to the 45 bucket.
	assert.Equal(t, 0.003, got.At(0))
	assert.Equal(t, 0.001, got.At(1))
	assert.Equal(t, int64(1), r.Calls())
}

func TestRate_SelectMortality(t *testing.T) {
	pop := twoPolicies(t)
	r := NewResolver(pop)
	ix := pop.Index()

	tbl, err := assumption.NewRateTable(assumption.TableMortality,
		[]assumption.Column{assumption.ColAge, assumption.ColPolicyYear, assumption.ColSex},
		[]assumption.Row{
			{Key: []string{"44", "1", "M"}, Value: 0.001},
			{Key: []string{"44", "2", "M"}, Value: 0.0015},
			{Key: []string{"44", "3", "M"}, Value: 0.002},
			{Key: []string{"44", "1", "F"}, Value: 0.0008},
			{Key: []string{"44", "3", "F"}, Value: 0.0012},
		},
		map[assumption.Column]assumption.Bucket{
			assumption.ColAge:        {Min: 18, Max: 44},
			assumption.ColPolicyYear: {Min: 1, Max: 3},
		})
	require.NoError(t, err)
	require.NoError(t, assumption.NewBundle("select").AddTable(tbl))

	// Policy year 7 falls into the ultimate column (3).
	got, err := r.Rate(tbl, State{
		Age:        population.Fill(ix, 44),
		PolicyYear: population.NewVector(ix, []float64{2, 7}),
		Active:     population.Fill(ix, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.0015, 0.0012}, got.Values())
}

func TestRate_MissPropagatesAsMissing(t *testing.T) {
	pop := twoPolicies(t)
	r := NewResolver(pop)
	ix := pop.Index()

	// No female row at 45.
	got, err := r.Rate(mortality(t), State{
		Age:    population.Fill(ix, 45),
		Active: population.Fill(ix, 1),
	})
	require.NoError(t, err)
	assert.False(t, population.IsMissing(got.At(0)))
	assert.True(t, population.IsMissing(got.At(1)))
}

func TestRate_InactivePoliciesSkipTheTable(t *testing.T) {
	pop := twoPolicies(t)
	r := NewResolver(pop)
	ix := pop.Index()

	// Policy B is past its term: its undefined age is never bucketed.
	got, err := r.Rate(mortality(t), State{
		Age:    population.NewVector(ix, []float64{44, population.Missing()}),
		Active: population.NewVector(ix, []float64{1, 0}),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.002, 0}, got.Values())
}

func TestRate_UnbucketableKeyIsAnError(t *testing.T) {
	pop := twoPolicies(t)
	r := NewResolver(pop)
	ix := pop.Index()

	_, err := r.Rate(mortality(t), State{
		Age:    population.NewVector(ix, []float64{44, -1}),
		Active: population.Fill(ix, 1),
	})
	require.Error(t, err)

	var ke *KeyError
	require.True(t, errors.As(err, &ke))
	assert.Equal(t, "B", ke.Policy)
	assert.Equal(t, assumption.ColAge, ke.Column)

	var be *assumption.BucketError
	assert.True(t, errors.As(err, &be))
}

func TestConstant(t *testing.T) {
	pop := twoPolicies(t)
	r := NewResolver(pop)

	tbl, err := assumption.NewRateTable(assumption.TableRiskAdjustment,
		[]assumption.Column{assumption.ColProduct},
		[]assumption.Row{{Key: []string{"TERM"}, Value: 0.05}}, nil)
	require.NoError(t, err)

	got, err := r.Constant(tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.05, 0.05}, got.Values())
}

func TestDated(t *testing.T) {
	r := NewResolver(twoPolicies(t))
	s, err := assumption.NewDatedSeries(assumption.SeriesDiscount, assumption.FillNone, []assumption.Point{
		{Month: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), Value: 0.004},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.004, r.Dated(s, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, population.IsMissing(r.Dated(s, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))))
	assert.Equal(t, int64(2), r.Calls())
}
