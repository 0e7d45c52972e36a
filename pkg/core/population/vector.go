package population

import (
	"fmt"
	"math"
)

// Missing is the marker for a value that could not be resolved, usually an
// assumption lookup miss. It is a NaN so that it survives arithmetic and
// shows up in every total it contributes to.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether x carries the missing marker.
func IsMissing(x float64) bool {
	return math.IsNaN(x)
}

// AlignmentError is the panic value raised when two vectors with different
// keys are combined.
type AlignmentError struct {
	Op    string
	Left  int
	Right int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("population: %s on misaligned vectors (%d vs %d keys)", e.Op, e.Left, e.Right)
}

// Vector is one value per policy, bound to the index it was computed
// against. Vectors are values: operations return new vectors and never
// modify their operands.
type Vector struct {
	index  *Index
	values []float64
}

// NewVector binds values to an index. It panics if the lengths differ.
func NewVector(ix *Index, values []float64) Vector {
	if len(values) != ix.Len() {
		panic(&AlignmentError{Op: "NewVector", Left: ix.Len(), Right: len(values)})
	}
	owned := make([]float64, len(values))
	copy(owned, values)
	return Vector{index: ix, values: owned}
}

// Zeros returns a zero vector over ix.
func Zeros(ix *Index) Vector {
	return Vector{index: ix, values: make([]float64, ix.Len())}
}

// Fill returns a vector over ix with every element set to x.
func Fill(ix *Index, x float64) Vector {
	v := Zeros(ix)
	for i := range v.values {
		v.values[i] = x
	}
	return v
}

// Index returns the key order of the vector.
func (v Vector) Index() *Index {
	return v.index
}

// Len returns the number of elements.
func (v Vector) Len() int {
	return len(v.values)
}

// At returns the value at row i.
func (v Vector) At(i int) float64 {
	return v.values[i]
}

// Key returns the policy key of row i.
func (v Vector) Key(i int) string {
	return v.index.Key(i)
}

// Get returns the value for a policy key.
func (v Vector) Get(key string) (float64, bool) {
	i, ok := v.index.Position(key)
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

// Values returns a copy of the values in index order.
func (v Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

// Sum returns the total across policies. A missing element makes the
// total missing.
func (v Vector) Sum() float64 {
	total := 0.0
	for _, x := range v.values {
		total += x
	}
	return total
}

// MissingKeys lists the policies whose value is missing.
func (v Vector) MissingKeys() []string {
	var keys []string
	for i, x := range v.values {
		if IsMissing(x) {
			keys = append(keys, v.index.Key(i))
		}
	}
	return keys
}

// Identical reports bit-for-bit equality of keys and values.
func (v Vector) Identical(o Vector) bool {
	if !v.index.Equal(o.index) {
		return false
	}
	for i := range v.values {
		if math.Float64bits(v.values[i]) != math.Float64bits(o.values[i]) {
			return false
		}
	}
	return true
}

// AlignedWith reports whether o was computed against the same keys.
func (v Vector) AlignedWith(o Vector) bool {
	return v.index != nil && v.index.Equal(o.index)
}

// =============================================================================
// ARITHMETIC
// =============================================================================

func (v Vector) zip(op string, o Vector, f func(a, b float64) float64) Vector {
	if !v.AlignedWith(o) {
		panic(&AlignmentError{Op: op, Left: v.index.Len(), Right: o.index.Len()})
	}
	out := Vector{index: v.index, values: make([]float64, len(v.values))}
	for i := range v.values {
		out.values[i] = f(v.values[i], o.values[i])
	}
	return out
}

// Map applies f to every element.
func (v Vector) Map(f func(float64) float64) Vector {
	out := Vector{index: v.index, values: make([]float64, len(v.values))}
	for i, x := range v.values {
		out.values[i] = f(x)
	}
	return out
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return v.zip("Add", o, func(a, b float64) float64 { return a + b })
}

// Sub returns v − o.
func (v Vector) Sub(o Vector) Vector {
	return v.zip("Sub", o, func(a, b float64) float64 { return a - b })
}

// Mul returns the elementwise product.
func (v Vector) Mul(o Vector) Vector {
	return v.zip("Mul", o, func(a, b float64) float64 { return a * b })
}

// Div returns the elementwise quotient. Callers that can meet a zero
// denominator must check it first; see valuation.NetPremium.
func (v Vector) Div(o Vector) Vector {
	return v.zip("Div", o, func(a, b float64) float64 { return a / b })
}

// Scale multiplies every element by k.
func (v Vector) Scale(k float64) Vector {
	return v.Map(func(x float64) float64 { return x * k })
}

// AddScalar adds k to every element.
func (v Vector) AddScalar(k float64) Vector {
	return v.Map(func(x float64) float64 { return x + k })
}

// Where picks a where mask is non-zero and b elsewhere. A missing mask
// element yields a missing result.
func Where(mask, a, b Vector) Vector {
	if !mask.AlignedWith(a) || !mask.AlignedWith(b) {
		panic(&AlignmentError{Op: "Where", Left: mask.index.Len(), Right: a.index.Len()})
	}
	out := Vector{index: mask.index, values: make([]float64, len(mask.values))}
	for i, m := range mask.values {
		switch {
		case IsMissing(m):
			out.values[i] = Missing()
		case m != 0:
			out.values[i] = a.values[i]
		default:
			out.values[i] = b.values[i]
		}
	}
	return out
}

// MonthlyRate converts annual decrement rates to monthly ones:
// 1 − (1 − q)^(1/12).
func MonthlyRate(annual Vector) Vector {
	return annual.Map(func(q float64) float64 {
		return 1 - math.Pow(1-q, 1.0/12)
	})
}
