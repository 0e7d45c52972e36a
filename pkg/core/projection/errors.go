package projection

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes evaluation failures.
type ErrorCode string

const (
	// CodeRange is a period outside the population-wide horizon.
	CodeRange ErrorCode = "RANGE"

	// CodeLookup is a policy whose key could not be mapped onto a table.
	CodeLookup ErrorCode = "LOOKUP"

	// CodeDegenerate is a division by a near-zero aggregate.
	CodeDegenerate ErrorCode = "DEGENERATE"

	// CodeMissingTable is a table the run needs but the bundle lacks.
	CodeMissingTable ErrorCode = "MISSING_TABLE"

	// CodeInput is an invalid run context or graph definition.
	CodeInput ErrorCode = "INPUT"
)

// EvalError reports which (cell, t) failed and, when known, which policy.
// When evaluations nest, the innermost EvalError is the one returned.
type EvalError struct {
	Code      ErrorCode
	Cell      string
	Period    int
	PolicyKey string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	where := ""
	if e.Cell != "" {
		where = fmt.Sprintf(" (cell=%s, t=%d", e.Cell, e.Period)
		if e.PolicyKey != "" {
			where += ", policy=" + e.PolicyKey
		}
		where += ")"
	}
	return fmt.Sprintf("%s: %s%s", e.Code, e.Message, where)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

func codeOf(err error) (ErrorCode, bool) {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return "", false
}

// IsRangeError returns true if the error is an out-of-horizon request.
// Uses errors.As to handle wrapped errors.
func IsRangeError(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeRange
}

// IsLookupError returns true if a policy key could not be bucketed.
func IsLookupError(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeLookup
}

// IsDegenerateError returns true if a near-zero denominator was met.
func IsDegenerateError(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeDegenerate
}

// IsMissingTableError returns true if a needed table was absent.
func IsMissingTableError(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeMissingTable
}
