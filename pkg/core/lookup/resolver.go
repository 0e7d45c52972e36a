// Package lookup joins policy-level time state onto assumption tables.
//
// Three join strategies are supported, chosen by the table:
//
//   - exact key: product, sex, occupation, smoker match a row verbatim;
//   - bucketed key: age and policy year are clamped onto the table's bucket
//     before matching ("policy year 10+");
//   - carry-forward by date: calendar-keyed series resolve a month under the
//     series' fill policy.
//
// A policy with no matching row receives the missing marker. A policy whose
// numeric state cannot be bucketed is a *KeyError.
package lookup

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"actuarial_valuation/pkg/core/assumption"
	"actuarial_valuation/pkg/core/population"
)

// State is the time state of every policy at one period.
type State struct {
	Age        population.Vector
	PolicyYear population.Vector
	// Active is non-zero while the policy is within its own term. Inactive
	// policies resolve to 0 without touching the table.
	Active population.Vector
}

// KeyError reports a policy whose key could not be built.
type KeyError struct {
	Table  string
	Policy string
	Column assumption.Column
	Value  string
	Err    error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("lookup %s: policy %s: %s=%s: %v", e.Table, e.Policy, e.Column, e.Value, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// Resolver resolves tables for one population.
type Resolver struct {
	pop   *population.Population
	calls atomic.Int64
}

// NewResolver binds a resolver to a population.
func NewResolver(pop *population.Population) *Resolver {
	return &Resolver{pop: pop}
}

// Calls returns the number of table resolutions performed so far. Tests use
// it to observe memoization.
func (r *Resolver) Calls() int64 {
	return r.calls.Load()
}

// Rate returns one value per policy from tbl for the given state.
func (r *Resolver) Rate(tbl *assumption.RateTable, st State) (population.Vector, error) {
	r.calls.Add(1)

	ix := r.pop.Index()
	n := r.pop.Len()
	if st.Active.Len() != n {
		return population.Vector{}, fmt.Errorf("lookup %s: active state has %d rows, population has %d", tbl.Name, st.Active.Len(), n)
	}
	if !st.Active.Index().Equal(ix) {
		panic(&population.AlignmentError{Op: "Rate", Left: n, Right: st.Active.Len()})
	}

	out := make([]float64, n)
	parts := make([]string, len(tbl.Columns))
	for i := 0; i < n; i++ {
		if st.Active.At(i) == 0 {
			continue
		}
		pol := r.pop.Policy(i)
		for j, col := range tbl.Columns {
			part, err := r.keyPart(tbl, col, pol, st, i)
			if err != nil {
				return population.Vector{}, err
			}
			parts[j] = part
		}
		v, ok := tbl.Lookup(parts)
		if !ok {
			v = population.Missing()
		}
		out[i] = v
	}
	return population.NewVector(ix, out), nil
}

func (r *Resolver) keyPart(tbl *assumption.RateTable, col assumption.Column, pol population.Policy, st State, i int) (string, error) {
	switch col {
	case assumption.ColProduct:
		return pol.Product, nil
	case assumption.ColSex:
		return pol.Sex, nil
	case assumption.ColOccupation:
		return pol.Occupation, nil
	case assumption.ColSmoker:
		return pol.Smoker, nil
	case assumption.ColAge:
		return r.bucket(tbl, col, st.Age, pol, i)
	case assumption.ColPolicyYear:
		return r.bucket(tbl, col, st.PolicyYear, pol, i)
	}
	return "", &KeyError{Table: tbl.Name, Policy: pol.ID, Column: col, Value: "?", Err: fmt.Errorf("unsupported key column")}
}

func (r *Resolver) bucket(tbl *assumption.RateTable, col assumption.Column, state population.Vector, pol population.Policy, i int) (string, error) {
	if state.Len() != r.pop.Len() {
		return "", &KeyError{Table: tbl.Name, Policy: pol.ID, Column: col, Value: "?", Err: fmt.Errorf("state not supplied")}
	}
	v := state.At(i)
	key, err := tbl.BucketKey(col, v)
	if err != nil {
		return "", &KeyError{Table: tbl.Name, Policy: pol.ID, Column: col, Value: strconv.FormatFloat(v, 'g', -1, 64), Err: err}
	}
	return key, nil
}

// Constant resolves a table keyed only by policy attributes (no time state),
// such as the risk adjustment percentage by product.
func (r *Resolver) Constant(tbl *assumption.RateTable) (population.Vector, error) {
	return r.Rate(tbl, State{Active: population.Fill(r.pop.Index(), 1)})
}

// Dated resolves a calendar-keyed series for one month. A miss yields the
// missing marker.
func (r *Resolver) Dated(s *assumption.DatedSeries, month time.Time) float64 {
	r.calls.Add(1)
	v, ok := s.At(month)
	if !ok {
		return population.Missing()
	}
	return v
}
