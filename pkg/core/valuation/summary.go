package valuation

import (
	"actuarial_valuation/pkg/core/projection"
)

// ValuationLineItem represents one row in the valuation summary
type ValuationLineItem struct {
	Name  string  `json:"name"`
	Cell  string  `json:"cell"`
	Value float64 `json:"value"`
}

// Summary is the population total of every headline figure at the
// valuation date.
type Summary struct {
	Product  string              `json:"product,omitempty"`
	Policies int                 `json:"policies"`
	Periods  int                 `json:"periods"`
	Items    []ValuationLineItem `json:"items"`
}

var headline = []struct{ name, cell string }{
	{"Present Value of Premiums", CellPVPremiums},
	{"Present Value of Claims", CellPVClaims},
	{"Present Value of Expenses", CellPVExpenses},
	{"Present Value of Commissions", CellPVCommissions},
	{"Present Value of Net Cashflow", CellPVNetCF},
	{"Best Estimate Liability", CellBEL},
	{"Risk Adjustment", CellRA},
	{"Reinsurance Best Estimate Liability", CellRIBEL},
}

// Summarize totals the headline cells at t = 0. The valuation cells must
// have been attached.
func Summarize(g *projection.Graph) (Summary, error) {
	s := Summary{
		Product:  g.RunContext().Product,
		Policies: g.Population().Len(),
		Periods:  g.MaxProjLen(),
	}
	for _, h := range headline {
		v, err := g.Total(h.cell, 0)
		if err != nil {
			return Summary{}, err
		}
		s.Items = append(s.Items, ValuationLineItem{Name: h.name, Cell: h.cell, Value: v})
	}
	return s, nil
}

// Item returns the line item of a cell.
func (s Summary) Item(cell string) (ValuationLineItem, bool) {
	for _, it := range s.Items {
		if it.Cell == cell {
			return it, true
		}
	}
	return ValuationLineItem{}, false
}
