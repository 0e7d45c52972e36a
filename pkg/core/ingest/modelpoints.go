package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"actuarial_valuation/pkg/core/population"
)

// Model point file columns.
const (
	ColPolicyID         = "policy_id"
	ColDateOfBirth      = "date_of_birth"
	ColEntryDate        = "entry_date"
	ColSex              = "sex"
	ColProduct          = "product"
	ColPolicyTerm       = "policy_term"
	ColSumAssured       = "sum_assured"
	ColAnnualPremium    = "annual_premium"
	ColPremiumFrequency = "premium_frequency"
	ColPremiumIncrease  = "premium_increase"
	ColPolicyCount      = "policy_count"
	ColOccupation       = "occupation"
	ColSmoker           = "smoker"
	ColTPDCover         = "tpd_cover"
	ColTraumaCover      = "trauma_cover"
	ColReinsuranceShare = "reinsurance_share"
)

// RequiredColumns must appear in the header of every model point file.
var RequiredColumns = []string{
	ColPolicyID, ColDateOfBirth, ColEntryDate, ColSex, ColProduct,
	ColPolicyTerm, ColSumAssured, ColAnnualPremium, ColPremiumFrequency,
}

// requiredFields maps every required column onto its Policy field.
var requiredFields = map[string]string{
	ColPolicyID:         "ID",
	ColDateOfBirth:      "DateOfBirth",
	ColEntryDate:        "EntryDate",
	ColSex:              "Sex",
	ColProduct:          "Product",
	ColPolicyTerm:       "PolicyTerm",
	ColSumAssured:       "SumAssured",
	ColAnnualPremium:    "AnnualPremium",
	ColPremiumFrequency: "PremiumFrequency",
}

// dateLayouts are tried in order.
var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

// LoadModelPoints reads a model point CSV file.
func LoadModelPoints(path string) ([]population.Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model points: %w", err)
	}
	defer f.Close()

	policies, err := ReadModelPoints(f)
	if err != nil {
		return nil, fmt.Errorf("model points %s: %w", path, err)
	}
	return policies, nil
}

// ReadModelPoints parses model points from CSV with a header row. Column
// order is free; header names are matched case-insensitively. Optional
// columns default to their zero value. Structural problems (bad numbers,
// bad dates) are errors; business rules are left to package validate.
// Blank required cells are recorded in Policy.Blank.
func ReadModelPoints(r io.Reader) ([]population.Policy, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty model point file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range RequiredColumns {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("missing required column %q", req)
		}
	}

	var policies []population.Policy
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		policies = append(policies, p)
	}
	return policies, nil
}

type record struct {
	fields []string
	cols   map[string]int
	err    error
}

func (r *record) str(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r *record) number(col string) float64 {
	s := r.str(col)
	if s == "" || r.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.err = fmt.Errorf("%s: %q is not a number", col, s)
	}
	return v
}

func (r *record) integer(col string) int {
	s := r.str(col)
	if s == "" || r.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.err = fmt.Errorf("%s: %q is not an integer", col, s)
	}
	return v
}

func (r *record) flag(col string) bool {
	s := strings.ToUpper(r.str(col))
	switch s {
	case "", "0", "N", "NO", "FALSE", "F":
		return false
	case "1", "Y", "YES", "TRUE", "T":
		return true
	}
	if r.err == nil {
		r.err = fmt.Errorf("%s: %q is not a flag", col, s)
	}
	return false
}

func (r *record) date(col string) time.Time {
	s := r.str(col)
	if s == "" || r.err != nil {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d
		}
	}
	r.err = fmt.Errorf("%s: %q is not a date", col, s)
	return time.Time{}
}

func parseRecord(fields []string, cols map[string]int) (population.Policy, error) {
	r := &record{fields: fields, cols: cols}
	p := population.Policy{
		ID:               r.str(ColPolicyID),
		DateOfBirth:      r.date(ColDateOfBirth),
		EntryDate:        r.date(ColEntryDate),
		Sex:              strings.ToUpper(r.str(ColSex)),
		Product:          r.str(ColProduct),
		PolicyTerm:       r.integer(ColPolicyTerm),
		SumAssured:       r.number(ColSumAssured),
		AnnualPremium:    r.number(ColAnnualPremium),
		PremiumFrequency: r.integer(ColPremiumFrequency),
		PremiumIncrease:  r.flag(ColPremiumIncrease),
		PolicyCount:      r.number(ColPolicyCount),
		Occupation:       r.str(ColOccupation),
		Smoker:           r.str(ColSmoker),
		TPDCover:         r.flag(ColTPDCover),
		TraumaCover:      r.flag(ColTraumaCover),
		ReinsuranceShare: r.number(ColReinsuranceShare),
	}
	if r.err != nil {
		return population.Policy{}, fmt.Errorf("policy %q: %w", p.ID, r.err)
	}
	for _, col := range RequiredColumns {
		if r.str(col) == "" {
			p.Blank = append(p.Blank, requiredFields[col])
		}
	}
	return p, nil
}
