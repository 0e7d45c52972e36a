package population

import (
	"fmt"
)

// Index is the ordered set of policy keys shared by a population and every
// vector computed from it.
type Index struct {
	keys []string
	pos  map[string]int
}

// NewIndex builds an index over the given keys. Keys must be unique and
// non-empty.
func NewIndex(keys []string) (*Index, error) {
	ix := &Index{
		keys: make([]string, len(keys)),
		pos:  make(map[string]int, len(keys)),
	}
	for i, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("policy key at row %d is empty", i)
		}
		if prev, dup := ix.pos[k]; dup {
			return nil, fmt.Errorf("duplicate policy key %q at rows %d and %d", k, prev, i)
		}
		ix.keys[i] = k
		ix.pos[k] = i
	}
	return ix, nil
}

// Len returns the number of keys.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.keys)
}

// Key returns the key at position i.
func (ix *Index) Key(i int) string {
	return ix.keys[i]
}

// Keys returns a copy of the keys in order.
func (ix *Index) Keys() []string {
	out := make([]string, len(ix.keys))
	copy(out, ix.keys)
	return out
}

// Position returns the row of a key.
func (ix *Index) Position(key string) (int, bool) {
	i, ok := ix.pos[key]
	return i, ok
}

// Equal reports whether both indexes hold the same keys in the same order.
func (ix *Index) Equal(other *Index) bool {
	if ix == other {
		return true
	}
	if ix == nil || other == nil || len(ix.keys) != len(other.keys) {
		return false
	}
	for i := range ix.keys {
		if ix.keys[i] != other.keys[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// POPULATION
// =============================================================================

// Population is the keyed, ordered set of model points evaluated together.
type Population struct {
	index    *Index
	policies []Policy
}

// New builds a population, preserving the order of the input. A zero
// PolicyCount is read as a single policy.
func New(policies []Policy) (*Population, error) {
	keys := make([]string, len(policies))
	for i, p := range policies {
		keys[i] = p.ID
	}
	ix, err := NewIndex(keys)
	if err != nil {
		return nil, fmt.Errorf("build population: %w", err)
	}

	owned := make([]Policy, len(policies))
	copy(owned, policies)
	for i := range owned {
		if owned[i].PolicyCount == 0 {
			owned[i].PolicyCount = 1
		}
	}
	return &Population{index: ix, policies: owned}, nil
}

// Len returns the number of model points.
func (p *Population) Len() int {
	return len(p.policies)
}

// Index returns the key order of the population.
func (p *Population) Index() *Index {
	return p.index
}

// Policy returns the model point at row i.
func (p *Population) Policy(i int) Policy {
	return p.policies[i]
}

// Policies returns a copy of all model points in order.
func (p *Population) Policies() []Policy {
	out := make([]Policy, len(p.policies))
	copy(out, p.policies)
	return out
}

// Select returns the sub-population of one product, in the original order.
// The result has its own index.
func (p *Population) Select(product string) (*Population, error) {
	var selected []Policy
	for _, pol := range p.policies {
		if pol.Product == product {
			selected = append(selected, pol)
		}
	}
	return New(selected)
}

// Products lists the distinct product codes in order of first appearance.
func (p *Population) Products() []string {
	seen := make(map[string]bool)
	var out []string
	for _, pol := range p.policies {
		if !seen[pol.Product] {
			seen[pol.Product] = true
			out = append(out, pol.Product)
		}
	}
	return out
}

// Column extracts one numeric attribute as a vector.
func (p *Population) Column(f func(Policy) float64) Vector {
	values := make([]float64, len(p.policies))
	for i, pol := range p.policies {
		values[i] = f(pol)
	}
	return Vector{index: p.index, values: values}
}

// MaxProjectionLength is the population-wide horizon: the largest
// 12 × term + 1 over all model points.
func (p *Population) MaxProjectionLength() int {
	maxLen := 0
	for _, pol := range p.policies {
		if n := pol.ProjectionLength(); n > maxLen {
			maxLen = n
		}
	}
	return maxLen
}
