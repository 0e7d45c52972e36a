// Package population holds the model points of one run and the per-policy
// vectors produced by every cell of the projection.
//
// A Population is immutable once built. Its Index fixes the key order that
// every Vector derived from it carries, and arithmetic between vectors
// refuses to combine values that were not produced against the same keys.
package population

import (
	"fmt"
	"time"
)

// =============================================================================
// POLICY (MODEL POINT)
// =============================================================================

// Sex codes used by the assumption tables.
const (
	Male   = "M"
	Female = "F"
)

// Policy is one model point: either a single policy or a block of identical
// policies weighted by PolicyCount.
type Policy struct {
	ID               string    `json:"id" validate:"required"`
	DateOfBirth      time.Time `json:"date_of_birth" validate:"required"`
	EntryDate        time.Time `json:"entry_date" validate:"required"`
	Sex              string    `json:"sex" validate:"required,oneof=M F"`
	Product          string    `json:"product" validate:"required"`
	PolicyTerm       int       `json:"policy_term" validate:"gte=1,lte=120"` // Years
	SumAssured       float64   `json:"sum_assured" validate:"gte=0"`
	AnnualPremium    float64   `json:"annual_premium" validate:"gte=0"`
	PremiumFrequency int       `json:"premium_frequency" validate:"oneof=1 2 4 12"` // Payments per year
	PremiumIncrease  bool      `json:"premium_increase"`
	PolicyCount      float64   `json:"policy_count" validate:"gte=0"`

	// Rating factors used by the rider incidence tables
	Occupation string `json:"occupation,omitempty"`
	Smoker     string `json:"smoker,omitempty"`

	// Benefit variant
	TPDCover         bool    `json:"tpd_cover"`
	TraumaCover      bool    `json:"trauma_cover"`
	ReinsuranceShare float64 `json:"reinsurance_share" validate:"gte=0,lte=1"` // Quota share ceded

	// Blank names the required fields left empty in the source file. A
	// blank amount reads as zero, so validation needs this to tell them
	// apart.
	Blank []string `json:"-"`
}

// ProjectionLength is the number of monthly periods the policy needs,
// 12 × term + 1 (the extra period carries the maturity event).
func (p Policy) ProjectionLength() int {
	return 12*p.PolicyTerm + 1
}

// TermMonths is the policy term expressed in months.
func (p Policy) TermMonths() int {
	return 12 * p.PolicyTerm
}

// AgeAt returns the age last birthday at the given date, counted in whole
// calendar months (a birthday falls in the birth month).
func (p Policy) AgeAt(date time.Time) int {
	age := date.Year() - p.DateOfBirth.Year()
	if date.Month() < p.DateOfBirth.Month() {
		age--
	}
	return age
}

// DurationAt returns the 1-based policy month in force at the given date:
// the entry month is month 1.
func (p Policy) DurationAt(date time.Time) int {
	return 12*(date.Year()-p.EntryDate.Year()) + int(date.Month()) - int(p.EntryDate.Month()) + 1
}

// String implements fmt.Stringer for log output.
func (p Policy) String() string {
	return fmt.Sprintf("%s(%s/%s, term=%dy)", p.ID, p.Product, p.Sex, p.PolicyTerm)
}
