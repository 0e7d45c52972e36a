// Package assumption implements the assumption store of the projection
// engine: keyed rate tables and calendar-keyed series, grouped into a
// Bundle that is read-only for the duration of a run.
//
// Rate tables are looked up by an exact composite key after numeric state
// (age, policy year) has been bucketed onto the table's key space. Dated
// series (discount curve, inflation) are looked up by calendar month under a
// fill policy.
package assumption

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// WELL-KNOWN TABLES
// =============================================================================

// Rate tables read by the projection cells.
const (
	TableMortality      = "mortality"
	TableLapse          = "lapse"
	TablePremiumExpense = "premium_expense"
	TableFixedExpense   = "fixed_expense"
	TableCommission     = "commission"
	TableTPD            = "tpd"
	TableTrauma         = "trauma"
	TableReinsurance    = "reinsurance"
	TableRiskAdjustment = "risk_adjustment"
)

// Dated series read by the projection cells.
const (
	SeriesDiscount  = "discount_curve"
	SeriesInflation = "inflation"
)

// Schema fixes the key columns of every well-known table. A table loaded
// under one of these names must use exactly these columns or one of its
// SchemaVariants.
var Schema = map[string][]Column{
	TableMortality:      {ColAge, ColSex},
	TableLapse:          {ColProduct, ColPolicyYear},
	TablePremiumExpense: {ColProduct, ColPolicyYear},
	TableFixedExpense:   {ColProduct, ColPolicyYear},
	TableCommission:     {ColProduct, ColPolicyYear},
	TableTPD:            {ColAge, ColSex, ColOccupation},
	TableTrauma:         {ColAge, ColSex, ColSmoker},
	TableReinsurance:    {ColAge, ColSex},
	TableRiskAdjustment: {ColProduct},
}

// SchemaVariants lists the other column layouts a well-known table may use.
// Mortality may be a select table keyed by policy year as well as age.
var SchemaVariants = map[string][][]Column{
	TableMortality: {{ColAge, ColPolicyYear, ColSex}},
}

// SchemaAllows reports whether columns is a valid layout for the table
// name. Tables outside Schema accept any layout.
func SchemaAllows(name string, columns []Column) bool {
	want, ok := Schema[name]
	if !ok || sameColumns(want, columns) {
		return true
	}
	for _, v := range SchemaVariants[name] {
		if sameColumns(v, columns) {
			return true
		}
	}
	return false
}

// RequiredTables must be present in every bundle. The rider, reinsurance
// and risk adjustment tables are optional.
var RequiredTables = []string{
	TableMortality,
	TableLapse,
	TablePremiumExpense,
	TableFixedExpense,
	TableCommission,
}

// RequiredSeries must be present in every bundle.
var RequiredSeries = []string{SeriesDiscount, SeriesInflation}

// DefaultFill is the fill policy of a well-known series whose document
// leaves it unset: inflation carries its last value forward, the discount
// curve must define every month.
var DefaultFill = map[string]Fill{
	SeriesInflation: FillForward,
	SeriesDiscount:  FillNone,
}

// =============================================================================
// BUNDLE (all assumptions of one run)
// =============================================================================

// Bundle holds the tables and series of one assumption basis.
type Bundle struct {
	Name   string
	tables map[string]*RateTable
	series map[string]*DatedSeries

	CreatedAt time.Time
}

// NewBundle creates an empty bundle.
func NewBundle(name string) *Bundle {
	return &Bundle{
		Name:      name,
		tables:    make(map[string]*RateTable),
		series:    make(map[string]*DatedSeries),
		CreatedAt: time.Now(),
	}
}

// AddTable adds a rate table. Well-known tables are checked against Schema.
func (b *Bundle) AddTable(t *RateTable) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if _, exists := b.tables[t.Name]; exists {
		return fmt.Errorf("table '%s' already exists", t.Name)
	}
	if !SchemaAllows(t.Name, t.Columns) {
		return fmt.Errorf("table '%s' has columns %v, want %v", t.Name, t.Columns, Schema[t.Name])
	}
	b.tables[t.Name] = t
	return nil
}

// Table retrieves a rate table by name.
func (b *Bundle) Table(name string) (*RateTable, error) {
	t, ok := b.tables[name]
	if !ok {
		return nil, fmt.Errorf("table '%s' not found", name)
	}
	return t, nil
}

// HasTable reports whether the bundle carries a table.
func (b *Bundle) HasTable(name string) bool {
	_, ok := b.tables[name]
	return ok
}

// AddSeries adds a dated series.
func (b *Bundle) AddSeries(s *DatedSeries) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("series name cannot be empty")
	}
	if _, exists := b.series[s.Name]; exists {
		return fmt.Errorf("series '%s' already exists", s.Name)
	}
	b.series[s.Name] = s
	return nil
}

// Series retrieves a dated series by name.
func (b *Bundle) Series(name string) (*DatedSeries, error) {
	s, ok := b.series[name]
	if !ok {
		return nil, fmt.Errorf("series '%s' not found", name)
	}
	return s, nil
}

// TableNames lists the tables in name order.
func (b *Bundle) TableNames() []string {
	names := make([]string, 0, len(b.tables))
	for n := range b.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SeriesNames lists the series in name order.
func (b *Bundle) SeriesNames() []string {
	names := make([]string, 0, len(b.series))
	for n := range b.series {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MissingRequired lists required tables and series the bundle lacks.
func (b *Bundle) MissingRequired() []string {
	var missing []string
	for _, n := range RequiredTables {
		if !b.HasTable(n) {
			missing = append(missing, n)
		}
	}
	for _, n := range RequiredSeries {
		if _, ok := b.series[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

func sameColumns(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// DOCUMENT FORM (serialisation)
// =============================================================================

// Document is the serialised form of a bundle, shared by the JSON export
// and the HJSON loader in package ingest.
type Document struct {
	Name   string          `json:"name"`
	Tables []TableDocument `json:"tables"`
	Series []SeriesPoints  `json:"series"`
}

// TableDocument is one rate table in document form.
type TableDocument struct {
	Name    string            `json:"name"`
	Columns []Column          `json:"columns"`
	Buckets map[Column]Bucket `json:"buckets,omitempty"`
	Rows    []Row             `json:"rows"`
}

// SeriesPoints is one dated series in document form. Months are written as
// YYYY-MM; a full YYYY-MM-DD date is also accepted.
type SeriesPoints struct {
	Name   string          `json:"name"`
	Fill   string          `json:"fill,omitempty"`
	Points []DocumentPoint `json:"points"`
}

// DocumentPoint is one month of a series in document form.
type DocumentPoint struct {
	Month string  `json:"month"`
	Value float64 `json:"value"`
}

// Build turns a document into a bundle, validating every table and series.
func (d *Document) Build() (*Bundle, error) {
	b := NewBundle(d.Name)
	for _, td := range d.Tables {
		t, err := NewRateTable(td.Name, td.Columns, td.Rows, td.Buckets)
		if err != nil {
			return nil, err
		}
		if err := b.AddTable(t); err != nil {
			return nil, err
		}
	}
	for _, sd := range d.Series {
		fill := DefaultFill[sd.Name]
		if sd.Fill != "" {
			var err error
			if fill, err = ParseFill(sd.Fill); err != nil {
				return nil, fmt.Errorf("series %s: %w", sd.Name, err)
			}
		}
		points := make([]Point, len(sd.Points))
		for i, p := range sd.Points {
			m, err := ParseMonth(p.Month)
			if err != nil {
				return nil, fmt.Errorf("series %s point %d: %w", sd.Name, i, err)
			}
			points[i] = Point{Month: m, Value: p.Value}
		}
		s, err := NewDatedSeries(sd.Name, fill, points)
		if err != nil {
			return nil, err
		}
		if err := b.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Document returns the serialisable form of the bundle.
func (b *Bundle) Document() *Document {
	d := &Document{Name: b.Name}
	for _, n := range b.TableNames() {
		t := b.tables[n]
		d.Tables = append(d.Tables, TableDocument{
			Name:    t.Name,
			Columns: t.Columns,
			Buckets: t.Buckets,
			Rows:    t.Rows(),
		})
	}
	for _, n := range b.SeriesNames() {
		s := b.series[n]
		sd := SeriesPoints{Name: s.Name, Fill: s.Fill.String()}
		for _, p := range s.points {
			sd.Points = append(sd.Points, DocumentPoint{Month: p.Month.Format("2006-01"), Value: p.Value})
		}
		d.Series = append(d.Series, sd)
	}
	return d
}

// ParseMonth reads YYYY-MM or YYYY-MM-DD and returns the first of the month.
func ParseMonth(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid month %q", s)
}

// ToJSON serializes the bundle.
func (b *Bundle) ToJSON() ([]byte, error) {
	return json.Marshal(b.Document())
}

// FromJSON deserializes a bundle.
func FromJSON(data []byte) (*Bundle, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d.Build()
}
