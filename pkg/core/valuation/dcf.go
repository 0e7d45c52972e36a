// Package valuation attaches the backward-recursive present value cells and
// the liability aggregates built from them to a projection graph.
package valuation

import (
	"fmt"
	"math"

	"actuarial_valuation/pkg/core/assumption"
	"actuarial_valuation/pkg/core/population"
	"actuarial_valuation/pkg/core/projection"
)

// Present value cells.
const (
	CellPVPremiums     = "pv_premiums"
	CellPVClaims       = "pv_claims"
	CellPVDeathClaims  = "pv_death_claims"
	CellPVTPDClaims    = "pv_tpd_claims"
	CellPVTraumaClaims = "pv_trauma_claims"
	CellPVExpenses     = "pv_expenses"
	CellPVCommissions  = "pv_commissions"
	CellPVPolsIf       = "pv_pols_if"
	CellPVNetCF        = "pv_net_cf"
	CellPVRIPremiums   = "pv_ri_premiums"
	CellPVRIClaims     = "pv_ri_claims"
)

// Aggregates.
const (
	CellRAPercent  = "ra_pc"
	CellBEL        = "bel"
	CellRA         = "ra"
	CellRIBEL      = "ri_bel"
	CellNetPremium = "net_premium"
)

// DegenerateTolerance is the smallest annuity factor NetPremium divides by.
const DegenerateTolerance = 1e-12

// discounted maps every present value cell to the amount it discounts.
var discounted = []struct{ pv, amount string }{
	{CellPVPremiums, projection.CellPremiums},
	{CellPVClaims, projection.CellClaims},
	{CellPVDeathClaims, projection.CellDeathClaims},
	{CellPVTPDClaims, projection.CellTPDClaims},
	{CellPVTraumaClaims, projection.CellTraumaClaims},
	{CellPVExpenses, projection.CellExpenses},
	{CellPVCommissions, projection.CellCommissions},
	{CellPVPolsIf, projection.CellPolsIf},
	{CellPVNetCF, projection.CellNetCF},
	{CellPVRIPremiums, projection.CellRIPremiums},
	{CellPVRIClaims, projection.CellRIClaims},
}

// Attach registers the present value and aggregate cells on g.
func Attach(g *projection.Graph) error {
	cells := make([]projection.Cell, 0, len(discounted)+5)
	for _, d := range discounted {
		cells = append(cells, projection.Cell{Name: d.pv, Kind: projection.Backward, Compute: presentValue(d.pv, d.amount)})
	}
	cells = append(cells,
		projection.Cell{Name: CellRAPercent, Kind: projection.Static, Compute: raPercent},
		projection.Cell{Name: CellBEL, Kind: projection.Point, Compute: bel},
		projection.Cell{Name: CellRA, Kind: projection.Point, Compute: ra},
		projection.Cell{Name: CellRIBEL, Kind: projection.Point, Compute: riBEL},
		projection.Cell{Name: CellNetPremium, Kind: projection.Point, Compute: netPremium},
	)
	for _, c := range cells {
		if err := g.Register(c); err != nil {
			return fmt.Errorf("attach valuation cells: %w", err)
		}
	}
	return nil
}

// presentValue is pv(t) = amount(t) + pv(t+1) / (1 + disc(t+1)), with
// pv = 0 at the terminal period.
func presentValue(self, amount string) projection.ComputeFunc {
	return func(g *projection.Graph, t int) (population.Vector, error) {
		if t == g.Terminal() {
			return population.Zeros(g.Population().Index()), nil
		}
		cur, err := g.Eval(amount, t)
		if err != nil {
			return population.Vector{}, err
		}
		next, err := g.EvalAll(t+1, self, projection.CellDiscRateMth)
		if err != nil {
			return population.Vector{}, err
		}
		return cur.Add(next[0].Div(next[1].AddScalar(1))), nil
	}
}

// raPercent is the risk adjustment loading by product. Without a risk
// adjustment table it is zero.
func raPercent(g *projection.Graph, _ int) (population.Vector, error) {
	tbl, err := g.Bundle().Table(assumption.TableRiskAdjustment)
	if err != nil {
		return population.Zeros(g.Population().Index()), nil
	}
	return g.Resolver().Constant(tbl)
}

func bel(g *projection.Graph, t int) (population.Vector, error) {
	vs, err := g.EvalAll(t, CellPVClaims, CellPVExpenses, CellPVCommissions, CellPVPremiums)
	if err != nil {
		return population.Vector{}, err
	}
	return vs[0].Add(vs[1]).Add(vs[2]).Sub(vs[3]), nil
}

func ra(g *projection.Graph, t int) (population.Vector, error) {
	vs, err := g.EvalAll(t, CellRAPercent, CellPVClaims)
	if err != nil {
		return population.Vector{}, err
	}
	return vs[0].Mul(vs[1]), nil
}

func riBEL(g *projection.Graph, t int) (population.Vector, error) {
	vs, err := g.EvalAll(t, CellPVRIClaims, CellPVRIPremiums)
	if err != nil {
		return population.Vector{}, err
	}
	return vs[0].Sub(vs[1]), nil
}

// netPremium is the level premium that funds the claims: the present value
// of claims over the present value of the in-force annuity.
func netPremium(g *projection.Graph, t int) (population.Vector, error) {
	vs, err := g.EvalAll(t, CellPVClaims, CellPVPolsIf)
	if err != nil {
		return population.Vector{}, err
	}
	claims, annuity := vs[0], vs[1]
	for i := 0; i < annuity.Len(); i++ {
		if a := annuity.At(i); math.Abs(a) < DegenerateTolerance {
			return population.Vector{}, &projection.EvalError{
				Code:      projection.CodeDegenerate,
				PolicyKey: annuity.Key(i),
				Message:   fmt.Sprintf("in-force annuity factor %g is too close to zero", a),
			}
		}
	}
	return claims.Div(annuity), nil
}

// NetPremium returns the net premium of every policy at the valuation date.
func NetPremium(g *projection.Graph) (population.Vector, error) {
	return g.Eval(CellNetPremium, 0)
}
