// Package projection implements the time-indexed cell graph: named
// functions of a monthly period t that return one value per policy, each
// evaluated at most once per (cell, t) and cached for the life of the run.
//
// Forward cells (attained age, in-force count, inflation factor) are walked
// upward from the lowest uncached period; backward cells (present values)
// are walked downward from the highest uncached period. The walk keeps
// recursion depth bounded by the number of cells rather than the number of
// periods.
//
// A Graph is not safe for concurrent use. Parallelism belongs across runs,
// each with its own Graph.
package projection

import (
	"errors"
	"fmt"
	"time"

	"actuarial_valuation/pkg/core/assumption"
	"actuarial_valuation/pkg/core/lookup"
	"actuarial_valuation/pkg/core/population"
)

type cacheKey struct {
	cell string
	t    int
}

// Graph evaluates cells for one run.
type Graph struct {
	rc       RunContext
	pop      *population.Population
	bundle   *assumption.Bundle
	resolver *lookup.Resolver

	cells map[string]*Cell
	order []string

	cache      map[cacheKey]population.Vector
	inProgress map[cacheKey]bool
	maxLen     int
	stats      Stats
	observer   Observer
}

// Option configures a Graph.
type Option func(*Graph)

// WithObserver reports every cell request to o.
func WithObserver(o Observer) Option {
	return func(g *Graph) {
		g.observer = o
	}
}

// NewGraph builds the graph of one run with the core decrement and
// cashflow cells registered. When rc.Product is set only that product's
// model points are projected.
func NewGraph(rc RunContext, pop *population.Population, bundle *assumption.Bundle, opts ...Option) (*Graph, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if pop == nil {
		return nil, &EvalError{Code: CodeInput, Message: "population is required"}
	}

	g := &Graph{
		rc:    rc,
		cells: make(map[string]*Cell),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.setBundle(bundle); err != nil {
		return nil, err
	}
	if err := g.setPopulation(pop); err != nil {
		return nil, err
	}
	for _, c := range coreCells() {
		if err := g.Register(c); err != nil {
			return nil, err
		}
	}
	g.Reset()
	return g, nil
}

// Register adds a cell. Names are unique within a graph.
func (g *Graph) Register(c Cell) error {
	if c.Name == "" || c.Compute == nil {
		return &EvalError{Code: CodeInput, Message: "cell needs a name and a compute function"}
	}
	if _, exists := g.cells[c.Name]; exists {
		return &EvalError{Code: CodeInput, Message: fmt.Sprintf("cell '%s' already registered", c.Name)}
	}
	cell := c
	g.cells[c.Name] = &cell
	g.order = append(g.order, c.Name)
	return nil
}

// Has reports whether a cell is registered.
func (g *Graph) Has(name string) bool {
	_, ok := g.cells[name]
	return ok
}

// Cells lists registered cell names in registration order.
func (g *Graph) Cells() []string {
	return append([]string(nil), g.order...)
}

// -----------------------------------------------------------------------------
// Run inputs
// -----------------------------------------------------------------------------

// RunContext returns the run parameters.
func (g *Graph) RunContext() RunContext { return g.rc }

// Population returns the projected (product-selected) population.
func (g *Graph) Population() *population.Population { return g.pop }

// Bundle returns the assumption bundle.
func (g *Graph) Bundle() *assumption.Bundle { return g.bundle }

// Resolver returns the lookup resolver bound to the population.
func (g *Graph) Resolver() *lookup.Resolver { return g.resolver }

// Stats returns cache counters since the last reset.
func (g *Graph) Stats() Stats { return g.stats }

// MaxProjLen is the number of valid periods: max(12 × term + 1) over the
// population, capped by the run's horizon ceiling.
func (g *Graph) MaxProjLen() int { return g.maxLen }

// Terminal is the last valid period.
func (g *Graph) Terminal() int { return g.maxLen - 1 }

// Date is the calendar month of period t: the first of the valuation month
// plus t months.
func (g *Graph) Date(t int) time.Time {
	return assumption.MonthStart(g.rc.ValuationDate).AddDate(0, t, 0)
}

// SetAssumptions replaces the bundle and discards every cached value.
func (g *Graph) SetAssumptions(b *assumption.Bundle) error {
	if err := g.setBundle(b); err != nil {
		return err
	}
	g.Reset()
	return nil
}

// SetPopulation replaces the population and discards every cached value.
func (g *Graph) SetPopulation(pop *population.Population) error {
	if pop == nil {
		return &EvalError{Code: CodeInput, Message: "population is required"}
	}
	if err := g.setPopulation(pop); err != nil {
		return err
	}
	g.Reset()
	return nil
}

// Reset discards the cache. Partial invalidation is not supported.
func (g *Graph) Reset() {
	g.cache = make(map[cacheKey]population.Vector)
	g.inProgress = make(map[cacheKey]bool)
	g.stats = Stats{}
}

func (g *Graph) setBundle(b *assumption.Bundle) error {
	if b == nil {
		return &EvalError{Code: CodeInput, Message: "assumption bundle is required"}
	}
	if missing := b.MissingRequired(); len(missing) > 0 {
		return &EvalError{Code: CodeMissingTable, Message: fmt.Sprintf("bundle %q lacks %v", b.Name, missing)}
	}
	g.bundle = b
	return nil
}

func (g *Graph) setPopulation(pop *population.Population) error {
	selected := pop
	if g.rc.Product != "" {
		var err error
		selected, err = pop.Select(g.rc.Product)
		if err != nil {
			return &EvalError{Code: CodeInput, Message: "select product " + g.rc.Product, Err: err}
		}
	}
	g.pop = selected
	g.resolver = lookup.NewResolver(selected)

	g.maxLen = selected.MaxProjectionLength()
	if g.rc.HorizonYears > 0 {
		if ceiling := 12*g.rc.HorizonYears + 1; g.maxLen > ceiling {
			g.maxLen = ceiling
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Evaluation
// -----------------------------------------------------------------------------

// Eval returns the vector of cell name at period t, computing and caching
// it and any uncached dependencies on first demand. Static cells ignore t.
func (g *Graph) Eval(name string, t int) (population.Vector, error) {
	c, ok := g.cells[name]
	if !ok {
		return population.Vector{}, &EvalError{Code: CodeInput, Cell: name, Period: t, Message: "unknown cell"}
	}
	if c.Kind == Static {
		t = 0
	} else if t < 0 || t >= g.maxLen {
		return population.Vector{}, &EvalError{
			Code:    CodeRange,
			Cell:    name,
			Period:  t,
			Message: fmt.Sprintf("period %d outside 0..%d", t, g.maxLen-1),
		}
	}

	key := cacheKey{cell: name, t: t}
	if v, ok := g.cache[key]; ok {
		g.stats.Hits++
		g.observe(name, true)
		return v, nil
	}

	switch c.Kind {
	case Forward:
		start := t
		for start > 0 && !g.cached(name, start-1) {
			start--
		}
		for u := start; u <= t; u++ {
			if err := g.compute(c, u); err != nil {
				return population.Vector{}, err
			}
		}
	case Backward:
		end := t
		for end < g.Terminal() && !g.cached(name, end+1) {
			end++
		}
		for u := end; u >= t; u-- {
			if err := g.compute(c, u); err != nil {
				return population.Vector{}, err
			}
		}
	default:
		if err := g.compute(c, t); err != nil {
			return population.Vector{}, err
		}
	}
	return g.cache[key], nil
}

// Static returns a period-independent cell.
func (g *Graph) Static(name string) (population.Vector, error) {
	return g.Eval(name, 0)
}

// EvalAll evaluates several cells at the same period.
func (g *Graph) EvalAll(t int, names ...string) ([]population.Vector, error) {
	out := make([]population.Vector, len(names))
	for i, n := range names {
		v, err := g.Eval(n, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Total returns the population total of a cell at t.
func (g *Graph) Total(name string, t int) (float64, error) {
	v, err := g.Eval(name, t)
	if err != nil {
		return 0, err
	}
	return v.Sum(), nil
}

func (g *Graph) cached(name string, t int) bool {
	_, ok := g.cache[cacheKey{cell: name, t: t}]
	return ok
}

func (g *Graph) compute(c *Cell, t int) error {
	key := cacheKey{cell: c.Name, t: t}
	if _, ok := g.cache[key]; ok {
		return nil
	}
	if g.inProgress[key] {
		return &EvalError{Code: CodeInput, Cell: c.Name, Period: t, Message: "cell depends on itself"}
	}
	g.inProgress[key] = true
	v, err := c.Compute(g, t)
	delete(g.inProgress, key)
	if err != nil {
		return g.wrap(c.Name, t, err)
	}
	if !v.Index().Equal(g.pop.Index()) {
		panic(&population.AlignmentError{Op: "cell " + c.Name, Left: g.pop.Len(), Right: v.Len()})
	}

	g.cache[key] = v
	g.stats.Computed++
	g.observe(c.Name, false)
	return nil
}

func (g *Graph) observe(name string, hit bool) {
	if g.observer != nil {
		g.observer.ObserveCell(name, hit)
	}
}

// wrap attaches the failing (cell, t). An EvalError raised deeper in the
// dependency chain is returned unchanged.
func (g *Graph) wrap(cell string, t int, err error) error {
	var ee *EvalError
	if errors.As(err, &ee) {
		if ee.Cell == "" {
			ee.Cell, ee.Period = cell, t
		}
		return err
	}
	out := &EvalError{Code: CodeInput, Cell: cell, Period: t, Message: err.Error(), Err: err}
	var ke *lookup.KeyError
	if errors.As(err, &ke) {
		out.Code = CodeLookup
		out.PolicyKey = ke.Policy
	}
	return out
}
