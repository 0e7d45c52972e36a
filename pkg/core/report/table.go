// Package report assembles cell outputs into the two result tables of a
// run and writes them out. It adds no computation of its own.
package report

import (
	"fmt"
	"strconv"

	"actuarial_valuation/pkg/core/projection"
	"actuarial_valuation/pkg/core/valuation"
)

// PeriodColumns are the columns of the period table, in output order.
var PeriodColumns = []string{
	projection.CellPremiums,
	projection.CellDeathClaims,
	projection.CellTPDClaims,
	projection.CellTraumaClaims,
	projection.CellClaims,
	projection.CellExpenses,
	projection.CellCommissions,
	projection.CellNetCF,
	projection.CellPremiumPP,
	projection.CellClaimPP,
	projection.CellExpensePP,
	projection.CellCommissionPP,
	projection.CellPolsIf,
	projection.CellPolsDeath,
	projection.CellPolsLapse,
	projection.CellPolsMaturity,
	projection.CellRIPremiums,
	projection.CellRIClaims,
	valuation.CellPVPremiums,
	valuation.CellPVClaims,
	valuation.CellPVExpenses,
	valuation.CellPVCommissions,
	valuation.CellPVNetCF,
	valuation.CellBEL,
	valuation.CellRA,
}

// PolicyColumns are the columns of the policy table, in output order.
var PolicyColumns = []string{
	projection.CellPremiums,
	projection.CellClaims,
	projection.CellExpenses,
	projection.CellCommissions,
	projection.CellNetCF,
	valuation.CellPVPremiums,
	valuation.CellPVDeathClaims,
	valuation.CellPVTPDClaims,
	valuation.CellPVTraumaClaims,
	valuation.CellPVClaims,
	valuation.CellPVExpenses,
	valuation.CellPVCommissions,
	valuation.CellPVNetCF,
	valuation.CellBEL,
	valuation.CellRA,
	valuation.CellPVRIPremiums,
	valuation.CellPVRIClaims,
	valuation.CellRIBEL,
}

// Table is a named grid of values with labelled rows and columns.
type Table struct {
	Name    string
	Index   string // Label of the row key column
	Columns []string
	RowKeys []string
	Rows    [][]float64
}

// Column returns one column by name.
func (t *Table) Column(name string) ([]float64, bool) {
	for j, c := range t.Columns {
		if c != name {
			continue
		}
		out := make([]float64, len(t.Rows))
		for i, row := range t.Rows {
			out[i] = row[j]
		}
		return out, true
	}
	return nil, false
}

// Sum totals a column.
func (t *Table) Sum(name string) (float64, bool) {
	col, ok := t.Column(name)
	if !ok {
		return 0, false
	}
	total := 0.0
	for _, v := range col {
		total += v
	}
	return total, true
}

func checkColumns(g *projection.Graph, columns []string) error {
	for _, c := range columns {
		if !g.Has(c) {
			return fmt.Errorf("column %s: cell not registered (attach the valuation cells first)", c)
		}
	}
	return nil
}

// PeriodTable has one row per period with the population total of every
// column.
func PeriodTable(g *projection.Graph) (*Table, error) {
	if err := checkColumns(g, PeriodColumns); err != nil {
		return nil, err
	}
	tbl := &Table{Name: "period", Index: "t", Columns: PeriodColumns}
	for t := 0; t < g.MaxProjLen(); t++ {
		row := make([]float64, len(PeriodColumns))
		for j, c := range PeriodColumns {
			v, err := g.Total(c, t)
			if err != nil {
				return nil, err
			}
			row[j] = v
		}
		tbl.RowKeys = append(tbl.RowKeys, strconv.Itoa(t))
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// PolicyTable has one row per policy, in population order, with every
// column evaluated at period t.
func PolicyTable(g *projection.Graph, t int) (*Table, error) {
	if err := checkColumns(g, PolicyColumns); err != nil {
		return nil, err
	}
	pop := g.Population()
	tbl := &Table{
		Name:    "policy",
		Index:   "policy_id",
		Columns: PolicyColumns,
		RowKeys: pop.Index().Keys(),
		Rows:    make([][]float64, pop.Len()),
	}
	for i := range tbl.Rows {
		tbl.Rows[i] = make([]float64, len(PolicyColumns))
	}
	for j, c := range PolicyColumns {
		v, err := g.Eval(c, t)
		if err != nil {
			return nil, err
		}
		for i := 0; i < v.Len(); i++ {
			tbl.Rows[i][j] = v.At(i)
		}
	}
	return tbl, nil
}
