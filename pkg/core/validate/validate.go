// Package validate checks engine inputs before a run and reconciles the
// result tables after it.
//
// The engine assumes clean model points (unique keys, non-negative
// amounts, parseable and ordered dates). ModelPoints is the default
// collaborator that enforces that contract; Reconcile verifies the
// accounting identities between the period and policy tables.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"actuarial_valuation/pkg/core/population"
)

// =============================================================================
// MODEL POINT VALIDATION
// =============================================================================

// Severity grades an issue. Errors block a run; warnings do not.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Issue is one problem found with one model point.
type Issue struct {
	PolicyID string   `json:"policy_id"`
	Row      int      `json:"row"`
	Field    string   `json:"field"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s row %d (%s) %s: %s", i.Severity, i.Row, i.PolicyID, i.Field, i.Message)
}

// Report lists the issues of a model point file.
type Report struct {
	Checked int     `json:"checked"`
	Issues  []Issue `json:"issues,omitempty"`
}

// Errors returns the blocking issues.
func (r Report) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// OK reports whether the file can be run.
func (r Report) OK() bool {
	return len(r.Errors()) == 0
}

// Err folds the blocking issues into one error, or returns nil.
func (r Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return fmt.Errorf("%d invalid model point(s):\n  %s", len(errs), strings.Join(lines, "\n  "))
}

var modelPointValidate = validator.New(validator.WithRequiredStructEnabled())

// ModelPoints validates policies against the struct rules on
// population.Policy and the business rules that need the valuation date.
func ModelPoints(policies []population.Policy, valuationDate time.Time) Report {
	rep := Report{Checked: len(policies)}
	add := func(row int, p population.Policy, field, rule, msg string, sev Severity) {
		rep.Issues = append(rep.Issues, Issue{PolicyID: p.ID, Row: row, Field: field, Rule: rule, Message: msg, Severity: sev})
	}

	seen := make(map[string]int, len(policies))
	for row, p := range policies {
		blank := make(map[string]bool, len(p.Blank))
		for _, f := range p.Blank {
			blank[f] = true
			add(row, p, f, "required", "is required", SeverityError)
		}
		if err := modelPointValidate.Struct(p); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				add(row, p, "", "struct", err.Error(), SeverityError)
				continue
			}
			for _, fe := range verrs {
				if blank[fe.Field()] {
					continue
				}
				add(row, p, fe.Field(), fe.Tag(), describe(fe), SeverityError)
			}
		}

		if p.ID != "" {
			if first, dup := seen[p.ID]; dup {
				add(row, p, "ID", "unique", fmt.Sprintf("duplicate of row %d", first), SeverityError)
			} else {
				seen[p.ID] = row
			}
		}

		if p.DateOfBirth.IsZero() || p.EntryDate.IsZero() {
			continue
		}
		if p.EntryDate.Before(p.DateOfBirth) {
			add(row, p, "EntryDate", "after_birth", "entry date precedes date of birth", SeverityError)
		}
		if p.EntryDate.After(valuationDate) {
			add(row, p, "EntryDate", "before_valuation", "entry date is after the valuation date", SeverityError)
		}
		if p.PolicyTerm > 0 && p.DurationAt(valuationDate) > p.TermMonths() {
			add(row, p, "PolicyTerm", "in_force", "policy has matured before the valuation date", SeverityError)
		}
		if p.PolicyCount == 0 {
			add(row, p, "PolicyCount", "default", "policy count not set, treated as 1", SeverityWarning)
		}
		if p.TPDCover && p.Occupation == "" {
			add(row, p, "Occupation", "tpd_rating", "TPD cover without an occupation class", SeverityWarning)
		}
		if p.TraumaCover && p.Smoker == "" {
			add(row, p, "Smoker", "trauma_rating", "trauma cover without a smoker status", SeverityWarning)
		}
	}
	return rep
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("%v is not one of [%s]", fe.Value(), fe.Param())
	case "gte":
		return fmt.Sprintf("%v is below %s", fe.Value(), fe.Param())
	case "lte":
		return fmt.Sprintf("%v is above %s", fe.Value(), fe.Param())
	}
	return fmt.Sprintf("fails %s", fe.Tag())
}
