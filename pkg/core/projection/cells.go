package projection

import (
	"fmt"
	"math"

	"actuarial_valuation/pkg/core/assumption"
	"actuarial_valuation/pkg/core/lookup"
	"actuarial_valuation/pkg/core/population"
)

// =============================================================================
// CELL NAMES
// =============================================================================

// Static cells.
const (
	CellAgeAtValuation      = "age_at_valuation"
	CellDurationAtValuation = "duration_at_valuation"
	CellProjLen             = "proj_len"
)

// Time state.
const (
	CellAge             = "age"
	CellDuration        = "duration"
	CellPolicyYear      = "policy_year"
	CellActive          = "active"
	CellInflationRate   = "inflation_rate"
	CellInflationFactor = "inflation_factor"
	CellDiscRateMth     = "disc_rate_mth"
)

// Assumption rates.
const (
	CellMortRate       = "mort_rate"
	CellMortRateMth    = "mort_rate_mth"
	CellLapseRate      = "lapse_rate"
	CellLapseRateMth   = "lapse_rate_mth"
	CellTPDRate        = "tpd_rate"
	CellTPDRateMth     = "tpd_rate_mth"
	CellTraumaRate     = "trauma_rate"
	CellTraumaRateMth  = "trauma_rate_mth"
	CellRIRate         = "ri_rate"
	CellPremExpPc      = "prem_exp_pc"
	CellFixedExp       = "fixed_exp"
	CellCommPc         = "comm_pc"
	CellPremPayProp    = "prem_pay_prop"
	CellPremiumPP      = "premium_pp"
	CellClaimPP        = "claim_pp"
	CellExpensePP      = "expense_pp"
	CellCommissionPP   = "commission_pp"
	CellReinsuredShare = "ri_share"
)

// Decrements.
const (
	CellPolsIf       = "pols_if"
	CellPolsDeath    = "pols_death"
	CellPolsLapse    = "pols_lapse"
	CellPolsMaturity = "pols_maturity"
)

// Cashflows.
const (
	CellPremiums     = "premiums"
	CellDeathClaims  = "death_claims"
	CellTPDClaims    = "tpd_claims"
	CellTraumaClaims = "trauma_claims"
	CellClaims       = "claims"
	CellExpenses     = "expenses"
	CellCommissions  = "commissions"
	CellNetCF        = "net_cf"
	CellRIPremiums   = "ri_premiums"
	CellRIClaims     = "ri_claims"
)

// coreCells returns the decrement and cashflow cells every graph carries.
func coreCells() []Cell {
	return []Cell{
		// Static
		{Name: CellAgeAtValuation, Kind: Static, Compute: ageAtValuation},
		{Name: CellDurationAtValuation, Kind: Static, Compute: durationAtValuation},
		{Name: CellProjLen, Kind: Static, Compute: attribute(func(p population.Policy) float64 { return float64(p.ProjectionLength()) })},
		{Name: CellReinsuredShare, Kind: Static, Compute: attribute(func(p population.Policy) float64 { return p.ReinsuranceShare })},

		// Time state
		{Name: CellAge, Kind: Forward, Compute: age},
		{Name: CellDuration, Kind: Forward, Compute: duration},
		{Name: CellPolicyYear, Kind: Point, Compute: policyYear},
		{Name: CellActive, Kind: Point, Compute: active},
		{Name: CellInflationRate, Kind: Point, Compute: dated(assumption.SeriesInflation)},
		{Name: CellInflationFactor, Kind: Forward, Compute: inflationFactor},
		{Name: CellDiscRateMth, Kind: Point, Compute: dated(assumption.SeriesDiscount)},

		// Assumptions
		{Name: CellMortRate, Kind: Point, Compute: rate(assumption.TableMortality, nil)},
		{Name: CellLapseRate, Kind: Point, Compute: rate(assumption.TableLapse, nil)},
		{Name: CellTPDRate, Kind: Point, Compute: rate(assumption.TableTPD, func(p population.Policy) bool { return p.TPDCover })},
		{Name: CellTraumaRate, Kind: Point, Compute: rate(assumption.TableTrauma, func(p population.Policy) bool { return p.TraumaCover })},
		{Name: CellRIRate, Kind: Point, Compute: rate(assumption.TableReinsurance, func(p population.Policy) bool { return p.ReinsuranceShare > 0 })},
		{Name: CellPremExpPc, Kind: Point, Compute: rate(assumption.TablePremiumExpense, nil)},
		{Name: CellFixedExp, Kind: Point, Compute: rate(assumption.TableFixedExpense, nil)},
		{Name: CellCommPc, Kind: Point, Compute: rate(assumption.TableCommission, nil)},
		{Name: CellMortRateMth, Kind: Point, Compute: monthly(CellMortRate)},
		{Name: CellLapseRateMth, Kind: Point, Compute: monthly(CellLapseRate)},
		{Name: CellTPDRateMth, Kind: Point, Compute: monthly(CellTPDRate)},
		{Name: CellTraumaRateMth, Kind: Point, Compute: monthly(CellTraumaRate)},

		// Decrements
		{Name: CellPolsIf, Kind: Forward, Compute: polsIf},
		{Name: CellPolsDeath, Kind: Point, Compute: product(CellPolsIf, CellMortRateMth)},
		{Name: CellPolsLapse, Kind: Point, Compute: polsLapse},
		{Name: CellPolsMaturity, Kind: Point, Compute: polsMaturity},

		// Per-policy amounts
		{Name: CellPremPayProp, Kind: Point, Compute: premPayProp},
		{Name: CellPremiumPP, Kind: Forward, Compute: indexed(CellPremiumPP, func(p population.Policy) float64 { return p.AnnualPremium })},
		{Name: CellClaimPP, Kind: Forward, Compute: indexed(CellClaimPP, func(p population.Policy) float64 { return p.SumAssured })},
		{Name: CellExpensePP, Kind: Point, Compute: expensePP},
		{Name: CellCommissionPP, Kind: Point, Compute: product(CellPremiumPP, CellCommPc, CellPremPayProp)},

		// Cashflows
		{Name: CellPremiums, Kind: Point, Compute: product(CellPremiumPP, CellPremPayProp, CellPolsIf)},
		{Name: CellDeathClaims, Kind: Point, Compute: product(CellClaimPP, CellPolsDeath)},
		{Name: CellTPDClaims, Kind: Point, Compute: product(CellClaimPP, CellPolsIf, CellTPDRateMth)},
		{Name: CellTraumaClaims, Kind: Point, Compute: product(CellClaimPP, CellPolsIf, CellTraumaRateMth)},
		{Name: CellClaims, Kind: Point, Compute: sum(CellDeathClaims, CellTPDClaims, CellTraumaClaims)},
		{Name: CellExpenses, Kind: Point, Compute: product(CellExpensePP, CellPolsIf)},
		{Name: CellCommissions, Kind: Point, Compute: product(CellCommissionPP, CellPolsIf)},
		{Name: CellNetCF, Kind: Point, Compute: netCF},
		{Name: CellRIPremiums, Kind: Point, Compute: riPremiums},
		{Name: CellRIClaims, Kind: Point, Compute: product(CellClaims, CellReinsuredShare)},
	}
}

// =============================================================================
// GENERIC SHAPES
// =============================================================================

func attribute(f func(population.Policy) float64) ComputeFunc {
	return func(g *Graph, _ int) (population.Vector, error) {
		return g.pop.Column(f), nil
	}
}

// product multiplies the named cells at t.
func product(names ...string) ComputeFunc {
	return func(g *Graph, t int) (population.Vector, error) {
		vs, err := g.EvalAll(t, names...)
		if err != nil {
			return population.Vector{}, err
		}
		out := vs[0]
		for _, v := range vs[1:] {
			out = out.Mul(v)
		}
		return out, nil
	}
}

func sum(names ...string) ComputeFunc {
	return func(g *Graph, t int) (population.Vector, error) {
		vs, err := g.EvalAll(t, names...)
		if err != nil {
			return population.Vector{}, err
		}
		out := vs[0]
		for _, v := range vs[1:] {
			out = out.Add(v)
		}
		return out, nil
	}
}

func monthly(annual string) ComputeFunc {
	return func(g *Graph, t int) (population.Vector, error) {
		q, err := g.Eval(annual, t)
		if err != nil {
			return population.Vector{}, err
		}
		return population.MonthlyRate(q), nil
	}
}

// dated resolves a calendar-keyed series at the month of period t. The
// value is common to every policy.
func dated(series string) ComputeFunc {
	return func(g *Graph, t int) (population.Vector, error) {
		s, err := g.bundle.Series(series)
		if err != nil {
			return population.Vector{}, &EvalError{Code: CodeMissingTable, Message: err.Error(), Err: err}
		}
		return population.Fill(g.pop.Index(), g.resolver.Dated(s, g.Date(t))), nil
	}
}

// rate resolves a rate table for the active policies. When covered is set
// only policies it accepts are looked up; the others get 0. An optional
// table may be absent as long as no active policy needs it.
func rate(table string, covered func(population.Policy) bool) ComputeFunc {
	return func(g *Graph, t int) (population.Vector, error) {
		act, err := g.Eval(CellActive, t)
		if err != nil {
			return population.Vector{}, err
		}
		if covered != nil {
			act = act.Mul(g.pop.Column(func(p population.Policy) float64 {
				if covered(p) {
					return 1
				}
				return 0
			}))
		}

		tbl, err := g.bundle.Table(table)
		if err != nil {
			for i := 0; i < act.Len(); i++ {
				if act.At(i) != 0 {
					return population.Vector{}, &EvalError{
						Code:      CodeMissingTable,
						PolicyKey: act.Key(i),
						Message:   fmt.Sprintf("table %s is required but absent", table),
						Err:       err,
					}
				}
			}
			return population.Zeros(g.pop.Index()), nil
		}

		vs, err := g.EvalAll(t, CellAge, CellPolicyYear)
		if err != nil {
			return population.Vector{}, err
		}
		return g.resolver.Rate(tbl, lookup.State{Age: vs[0], PolicyYear: vs[1], Active: act})
	}
}

// =============================================================================
// TIME STATE
// =============================================================================

func ageAtValuation(g *Graph, _ int) (population.Vector, error) {
	val := g.rc.ValuationDate
	return g.pop.Column(func(p population.Policy) float64 { return float64(p.AgeAt(val)) }), nil
}

func durationAtValuation(g *Graph, _ int) (population.Vector, error) {
	val := g.rc.ValuationDate
	return g.pop.Column(func(p population.Policy) float64 { return float64(p.DurationAt(val)) }), nil
}

// age steps on in the birth month.
func age(g *Graph, t int) (population.Vector, error) {
	if t == 0 {
		return g.Static(CellAgeAtValuation)
	}
	prev, err := g.Eval(CellAge, t-1)
	if err != nil {
		return population.Vector{}, err
	}
	m := g.Date(t).Month()
	birthday := g.pop.Column(func(p population.Policy) float64 {
		if p.DateOfBirth.Month() == m {
			return 1
		}
		return 0
	})
	return prev.Add(birthday), nil
}

func duration(g *Graph, t int) (population.Vector, error) {
	if t == 0 {
		return g.Static(CellDurationAtValuation)
	}
	prev, err := g.Eval(CellDuration, t-1)
	if err != nil {
		return population.Vector{}, err
	}
	return prev.AddScalar(1), nil
}

// policyYear is ceil(duration / 12). It is undefined before entry, so that
// a policy projected ahead of its entry date cannot be bucketed.
func policyYear(g *Graph, t int) (population.Vector, error) {
	d, err := g.Eval(CellDuration, t)
	if err != nil {
		return population.Vector{}, err
	}
	return d.Map(func(x float64) float64 {
		if x < 1 {
			return math.NaN()
		}
		return math.Ceil(x / 12)
	}), nil
}

func active(g *Graph, t int) (population.Vector, error) {
	d, err := g.Eval(CellDuration, t)
	if err != nil {
		return population.Vector{}, err
	}
	term := g.pop.Column(func(p population.Policy) float64 { return float64(p.TermMonths()) })
	return d.Sub(term).Map(func(x float64) float64 {
		if x <= 0 {
			return 1
		}
		return 0
	}), nil
}

func inflationFactor(g *Graph, t int) (population.Vector, error) {
	if t == 0 {
		return population.Fill(g.pop.Index(), 1), nil
	}
	vs, err := g.EvalAll(t, CellInflationRate)
	if err != nil {
		return population.Vector{}, err
	}
	prev, err := g.Eval(CellInflationFactor, t-1)
	if err != nil {
		return population.Vector{}, err
	}
	step := vs[0].Map(func(r float64) float64 { return math.Pow(1+r, 1.0/12) })
	return prev.Mul(step), nil
}

// =============================================================================
// DECREMENTS
// =============================================================================

func polsIf(g *Graph, t int) (population.Vector, error) {
	if t == 0 {
		return g.pop.Column(func(p population.Policy) float64 { return p.PolicyCount }), nil
	}
	prev, err := g.EvalAll(t-1, CellPolsIf, CellPolsLapse, CellPolsDeath)
	if err != nil {
		return population.Vector{}, err
	}
	mat, err := g.Eval(CellPolsMaturity, t)
	if err != nil {
		return population.Vector{}, err
	}
	return prev[0].Sub(prev[1]).Sub(prev[2]).Sub(mat), nil
}

// polsLapse applies lapses to the survivors of the month's deaths.
func polsLapse(g *Graph, t int) (population.Vector, error) {
	vs, err := g.EvalAll(t, CellPolsIf, CellPolsDeath, CellLapseRateMth)
	if err != nil {
		return population.Vector{}, err
	}
	return vs[0].Sub(vs[1]).Mul(vs[2]), nil
}

// polsMaturity is the whole surviving in-force at the first period whose
// duration exceeds the term, and zero everywhere else.
func polsMaturity(g *Graph, t int) (population.Vector, error) {
	if t == 0 {
		return population.Zeros(g.pop.Index()), nil
	}
	cur, err := g.Eval(CellDuration, t)
	if err != nil {
		return population.Vector{}, err
	}
	prev, err := g.EvalAll(t-1, CellDuration, CellPolsIf, CellPolsLapse, CellPolsDeath)
	if err != nil {
		return population.Vector{}, err
	}
	term := g.pop.Column(func(p population.Policy) float64 { return float64(p.TermMonths()) })

	mask := make([]float64, g.pop.Len())
	for i := range mask {
		if cur.At(i) > term.At(i) && prev[0].At(i) <= term.At(i) {
			mask[i] = 1
		}
	}
	surviving := prev[1].Sub(prev[2]).Sub(prev[3])
	return population.Where(population.NewVector(g.pop.Index(), mask), surviving, population.Zeros(g.pop.Index())), nil
}

// =============================================================================
// PER-POLICY AMOUNTS AND CASHFLOWS
// =============================================================================

// premPayProp is the share of the annual premium due in the month.
func premPayProp(g *Graph, t int) (population.Vector, error) {
	d, err := g.Eval(CellDuration, t)
	if err != nil {
		return population.Vector{}, err
	}
	out := make([]float64, g.pop.Len())
	for i := range out {
		p := g.pop.Policy(i)
		freq := p.PremiumFrequency
		if freq <= 0 || 12%freq != 0 {
			return population.Vector{}, &EvalError{
				Code:      CodeInput,
				PolicyKey: p.ID,
				Message:   fmt.Sprintf("premium frequency %d does not divide the year", freq),
			}
		}
		if freq == 12 || int(d.At(i))%(12/freq) == 1 {
			out[i] = 1 / float64(freq)
		}
	}
	return population.NewVector(g.pop.Index(), out), nil
}

// indexed is a per-policy amount seeded from a policy attribute and
// increased by the period's inflation rate in the first month of each
// policy year when the policy carries the increase option.
func indexed(self string, seed func(population.Policy) float64) ComputeFunc {
	return func(g *Graph, t int) (population.Vector, error) {
		if t == 0 {
			return g.pop.Column(seed), nil
		}
		prev, err := g.Eval(self, t-1)
		if err != nil {
			return population.Vector{}, err
		}
		vs, err := g.EvalAll(t, CellDuration, CellInflationRate)
		if err != nil {
			return population.Vector{}, err
		}
		d, infl := vs[0], vs[1]
		out := make([]float64, g.pop.Len())
		for i := range out {
			out[i] = prev.At(i)
			if g.pop.Policy(i).PremiumIncrease && int(d.At(i))%12 == 1 {
				out[i] *= 1 + infl.At(i)
			}
		}
		return population.NewVector(g.pop.Index(), out), nil
	}
}

func expensePP(g *Graph, t int) (population.Vector, error) {
	vs, err := g.EvalAll(t, CellPremiumPP, CellPremExpPc, CellPremPayProp, CellFixedExp, CellInflationFactor)
	if err != nil {
		return population.Vector{}, err
	}
	variable := vs[0].Mul(vs[1]).Mul(vs[2])
	fixed := vs[3].Scale(1.0 / 12).Mul(vs[4])
	return variable.Add(fixed), nil
}

func netCF(g *Graph, t int) (population.Vector, error) {
	vs, err := g.EvalAll(t, CellPremiums, CellClaims, CellExpenses, CellCommissions)
	if err != nil {
		return population.Vector{}, err
	}
	return vs[0].Sub(vs[1]).Sub(vs[2]).Sub(vs[3]), nil
}

// riPremiums is the monthly reinsurance premium on the ceded sum assured.
func riPremiums(g *Graph, t int) (population.Vector, error) {
	vs, err := g.EvalAll(t, CellClaimPP, CellReinsuredShare, CellRIRate, CellPolsIf)
	if err != nil {
		return population.Vector{}, err
	}
	return vs[0].Mul(vs[1]).Mul(vs[2]).Scale(1.0 / 12).Mul(vs[3]), nil
}
