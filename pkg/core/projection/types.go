package projection

import (
	"fmt"
	"time"

	"actuarial_valuation/pkg/core/population"
)

// RunContext carries the run parameters through every evaluation. It is a
// value: a graph copies it at construction and never mutates it.
type RunContext struct {
	ValuationDate time.Time `json:"valuation_date" yaml:"valuation_date"`

	// HorizonYears caps the population-wide horizon at 12 × HorizonYears + 1
	// periods. Zero leaves the horizon uncapped.
	HorizonYears int `json:"horizon_years" yaml:"horizon_years"`

	// Product selects the model points of one product. Empty keeps them all.
	Product string `json:"product" yaml:"product"`
}

// Validate checks the run parameters.
func (rc RunContext) Validate() error {
	if rc.ValuationDate.IsZero() {
		return &EvalError{Code: CodeInput, Message: "valuation date is required"}
	}
	if rc.HorizonYears < 0 {
		return &EvalError{Code: CodeInput, Message: fmt.Sprintf("horizon ceiling %d years is negative", rc.HorizonYears)}
	}
	return nil
}

// Kind is the recursion shape of a cell.
type Kind int

const (
	// Static cells do not depend on t.
	Static Kind = iota
	// Point cells depend only on other cells at the same t (or earlier, via
	// forward cells).
	Point
	// Forward cells are seeded at t = 0 and computed from t − 1.
	Forward
	// Backward cells are seeded at the terminal period and computed from
	// t + 1.
	Backward
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Point:
		return "point"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ComputeFunc produces one vector for period t. A forward cell may assume
// its own value at t − 1 is cached; a backward cell may assume t + 1 is.
type ComputeFunc func(g *Graph, t int) (population.Vector, error)

// Cell is a named, period-indexed, population-vectorized function.
type Cell struct {
	Name    string
	Kind    Kind
	Compute ComputeFunc
}

// Observer is notified of every cell request. The metrics package
// implements it.
type Observer interface {
	ObserveCell(cell string, hit bool)
}

// Stats counts cache activity for one graph.
type Stats struct {
	Computed int `json:"computed"`
	Hits     int `json:"hits"`
}
