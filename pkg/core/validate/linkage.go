package validate

import (
	"fmt"
	"math"
	"strings"

	"actuarial_valuation/pkg/core/projection"
	"actuarial_valuation/pkg/core/report"
)

// =============================================================================
// RESULT RECONCILIATION
// =============================================================================

// DefaultTolerance is the relative tolerance of Reconcile.
const DefaultTolerance = 1e-9

// Check is one reconciliation identity.
type Check struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Difference float64 `json:"difference"`
	Detail     string  `json:"detail,omitempty"`
}

// LinkageReport contains all reconciliation results of a run
type LinkageReport struct {
	Checks       []Check  `json:"checks"`
	AllPassed    bool     `json:"all_passed"`
	FailedChecks []string `json:"failed_checks,omitempty"`
}

func (r *LinkageReport) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.AllPassed = false
		r.FailedChecks = append(r.FailedChecks, c.Name)
	}
}

func within(a, b, tol float64) (float64, bool) {
	diff := math.Abs(a - b)
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return diff, diff <= tol*scale
}

// Reconcile checks the identities that tie the result tables together:
//
//   - every policy-table column that is also a period-table column sums to
//     the period total at the snapshot period at;
//   - the aggregate in-force count obeys decrement conservation;
//   - every present value is zero at the terminal period.
//
// Missing values make the affected check fail.
func Reconcile(period, policy *report.Table, at int, tolerance float64) LinkageReport {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	rep := LinkageReport{AllPassed: true}

	if policy != nil && at >= 0 && at < len(period.Rows) {
		for _, c := range policy.Columns {
			col, ok := period.Column(c)
			if !ok {
				continue
			}
			sum, _ := policy.Sum(c)
			diff, ok := within(sum, col[at], tolerance)
			rep.add(Check{
				Name:       "policy_total:" + c,
				Passed:     ok,
				Difference: diff,
				Detail:     fmt.Sprintf("policies %g, period %g at t=%d", sum, col[at], at),
			})
		}
	}

	rep.add(conservation(period, tolerance))
	rep.add(terminalPV(period))
	return rep
}

func conservation(period *report.Table, tol float64) Check {
	c := Check{Name: "conservation", Passed: true}
	cols := make([][]float64, 4)
	for i, name := range []string{projection.CellPolsIf, projection.CellPolsLapse, projection.CellPolsDeath, projection.CellPolsMaturity} {
		col, ok := period.Column(name)
		if !ok {
			c.Passed = false
			c.Detail = "column " + name + " not exported"
			return c
		}
		cols[i] = col
	}
	inForce, lapse, death, maturity := cols[0], cols[1], cols[2], cols[3]
	for t := 1; t < len(inForce); t++ {
		want := inForce[t-1] - lapse[t-1] - death[t-1] - maturity[t]
		diff, ok := within(inForce[t], want, tol)
		if math.IsNaN(diff) || diff > c.Difference {
			c.Difference = diff
		}
		if !ok || inForce[t] < -tol {
			c.Passed = false
			if c.Detail == "" {
				c.Detail = fmt.Sprintf("first break at t=%d", t)
			}
		}
	}
	return c
}

func terminalPV(period *report.Table) Check {
	c := Check{Name: "terminal_pv", Passed: true}
	if len(period.Rows) == 0 {
		return c
	}
	last := period.Rows[len(period.Rows)-1]
	var bad []string
	for j, name := range period.Columns {
		if !strings.HasPrefix(name, "pv_") {
			continue
		}
		if last[j] != 0 {
			bad = append(bad, name)
			c.Difference = math.Max(c.Difference, math.Abs(last[j]))
		}
	}
	if len(bad) > 0 {
		c.Passed = false
		c.Detail = "non-zero at terminal period: " + strings.Join(bad, ", ")
	}
	return c
}
