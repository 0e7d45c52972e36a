package assumption

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// KEY COLUMNS
// =============================================================================

// Column names one key dimension of a rate table.
type Column string

const (
	ColAge        Column = "age"
	ColSex        Column = "sex"
	ColProduct    Column = "product"
	ColPolicyYear Column = "policy_year"
	ColOccupation Column = "occupation"
	ColSmoker     Column = "smoker"
)

// Numeric reports whether the column holds integer-valued time state that
// may need bucketing before matching.
func (c Column) Numeric() bool {
	return c == ColAge || c == ColPolicyYear
}

// Bucket bounds a numeric key. Values above Max are clamped to Max, so a
// table whose last row is policy year 10 serves "10+". Values below Min
// cannot be bucketed.
type Bucket struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// BucketError reports a numeric key that cannot be mapped onto a table.
// It signals broken time state, never a legitimate miss.
type BucketError struct {
	Table  string
	Column Column
	Value  float64
}

func (e *BucketError) Error() string {
	return fmt.Sprintf("table %s: %s value %v cannot be bucketed", e.Table, e.Column, e.Value)
}

// =============================================================================
// RATE TABLE (exact and bucketed keys)
// =============================================================================

// Row is one line of a rate table: key parts in column order and a value.
type Row struct {
	Key   []string `json:"key"`
	Value float64  `json:"value"`
}

// RateTable is a schema-fixed lookup from a composite key to a rate or
// amount.
type RateTable struct {
	Name    string
	Columns []Column
	Buckets map[Column]Bucket

	rows map[string]float64
}

const keySep = "\x1f"

// NewRateTable builds a table. Numeric key parts are normalised ("07" and
// "7" are the same key); duplicate keys are rejected.
func NewRateTable(name string, columns []Column, rows []Row, buckets map[Column]Bucket) (*RateTable, error) {
	if name == "" {
		return nil, fmt.Errorf("rate table name cannot be empty")
	}
	for col, b := range buckets {
		if !col.Numeric() {
			return nil, fmt.Errorf("table %s: bucket on non-numeric column %s", name, col)
		}
		if b.Max < b.Min {
			return nil, fmt.Errorf("table %s: bucket %s has max %d below min %d", name, col, b.Max, b.Min)
		}
	}

	t := &RateTable{
		Name:    name,
		Columns: append([]Column(nil), columns...),
		Buckets: buckets,
		rows:    make(map[string]float64, len(rows)),
	}
	for i, r := range rows {
		if len(r.Key) != len(columns) {
			return nil, fmt.Errorf("table %s: row %d has %d key parts, want %d", name, i, len(r.Key), len(columns))
		}
		parts := make([]string, len(r.Key))
		for j, part := range r.Key {
			norm, err := normalise(columns[j], part)
			if err != nil {
				return nil, fmt.Errorf("table %s: row %d: %w", name, i, err)
			}
			parts[j] = norm
		}
		k := strings.Join(parts, keySep)
		if _, dup := t.rows[k]; dup {
			return nil, fmt.Errorf("table %s: duplicate key %v", name, r.Key)
		}
		t.rows[k] = r.Value
	}
	return t, nil
}

func normalise(col Column, part string) (string, error) {
	part = strings.TrimSpace(part)
	if !col.Numeric() {
		return part, nil
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		return "", fmt.Errorf("%s key %q is not an integer", col, part)
	}
	return strconv.Itoa(n), nil
}

// Len returns the number of rows.
func (t *RateTable) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the table is keyed by col.
func (t *RateTable) HasColumn(col Column) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// BucketKey maps a numeric state value onto the table's key space.
// NaN, fractional and negative values, and values below the bucket
// minimum, are errors.
func (t *RateTable) BucketKey(col Column, v float64) (string, error) {
	if math.IsNaN(v) || v < 0 || v != math.Trunc(v) {
		return "", &BucketError{Table: t.Name, Column: col, Value: v}
	}
	n := int(v)
	if b, ok := t.Buckets[col]; ok {
		if n < b.Min {
			return "", &BucketError{Table: t.Name, Column: col, Value: v}
		}
		if n > b.Max {
			n = b.Max
		}
	}
	return strconv.Itoa(n), nil
}

// Lookup matches an already bucketed key exactly.
func (t *RateTable) Lookup(parts []string) (float64, bool) {
	v, ok := t.rows[strings.Join(parts, keySep)]
	return v, ok
}

// Rows returns the table contents sorted by key.
func (t *RateTable) Rows() []Row {
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Row, len(keys))
	for i, k := range keys {
		out[i] = Row{Key: strings.Split(k, keySep), Value: t.rows[k]}
	}
	return out
}

// =============================================================================
// DATED SERIES (calendar keyed)
// =============================================================================

// Fill is the policy a dated series applies to months it does not define.
type Fill int

const (
	// FillNone treats undefined months as misses.
	FillNone Fill = iota
	// FillForward carries the last defined value forward. Months before the
	// first point are still misses.
	FillForward
)

func (f Fill) String() string {
	if f == FillForward {
		return "ffill"
	}
	return "none"
}

// ParseFill reads a fill policy name.
func ParseFill(s string) (Fill, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FillNone, nil
	case "ffill", "forward", "carry_forward":
		return FillForward, nil
	}
	return FillNone, fmt.Errorf("unknown fill policy %q", s)
}

// Point is one month of a dated series.
type Point struct {
	Month time.Time
	Value float64
}

// DatedSeries is a month-granular table such as the discount curve or the
// CPI series.
type DatedSeries struct {
	Name string
	Fill Fill

	points []Point
}

// MonthStart truncates a date to the first day of its month.
func MonthStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NewDatedSeries builds a series. Dates are truncated to their month and
// must be unique after truncation.
func NewDatedSeries(name string, fill Fill, points []Point) (*DatedSeries, error) {
	if name == "" {
		return nil, fmt.Errorf("dated series name cannot be empty")
	}
	s := &DatedSeries{Name: name, Fill: fill, points: make([]Point, len(points))}
	for i, p := range points {
		s.points[i] = Point{Month: MonthStart(p.Month), Value: p.Value}
	}
	sort.Slice(s.points, func(i, j int) bool { return s.points[i].Month.Before(s.points[j].Month) })
	for i := 1; i < len(s.points); i++ {
		if s.points[i].Month.Equal(s.points[i-1].Month) {
			return nil, fmt.Errorf("series %s: duplicate month %s", name, s.points[i].Month.Format("2006-01"))
		}
	}
	return s, nil
}

// Len returns the number of defined months.
func (s *DatedSeries) Len() int {
	return len(s.points)
}

// Last returns the latest defined month.
func (s *DatedSeries) Last() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// At resolves the month containing d under the series' fill policy.
func (s *DatedSeries) At(d time.Time) (float64, bool) {
	m := MonthStart(d)
	// First point strictly after m.
	i := sort.Search(len(s.points), func(i int) bool { return s.points[i].Month.After(m) })
	if i == 0 {
		return 0, false
	}
	prev := s.points[i-1]
	if prev.Month.Equal(m) {
		return prev.Value, true
	}
	if s.Fill == FillForward {
		return prev.Value, true
	}
	return 0, false
}

// Points returns a copy of the series in month order.
func (s *DatedSeries) Points() []Point {
	return append([]Point(nil), s.points...)
}
