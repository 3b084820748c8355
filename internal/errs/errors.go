// Package errs defines the error taxonomy shared by every litledger package.
//
// All failures surfaced to callers are *Error values carrying a Code. Callers
// branch on the code with Is, which unwraps through fmt.Errorf("...: %w")
// chains.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes an Error.
type Code string

const (
	// CodeValidation indicates malformed or disallowed input shape.
	CodeValidation Code = "VALIDATION"

	// CodeConfiguration indicates an invalid world schema or config file.
	CodeConfiguration Code = "CONFIGURATION"

	// CodeCircularDependency indicates a formula registration would close a cycle.
	CodeCircularDependency Code = "CIRCULAR_DEPENDENCY"

	// CodeConversion indicates a non-numeric value where a decimal was required.
	CodeConversion Code = "CONVERSION"

	// CodeMissingDependency indicates a formula context lacks a referenced variable.
	CodeMissingDependency Code = "MISSING_DEPENDENCY"

	// CodeInsufficientBalance indicates a strict-mode underflow.
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"

	// CodeSecurityRejection indicates a blocked keyword or an exceeded cap.
	CodeSecurityRejection Code = "SECURITY_REJECTION"

	// CodeNotFound indicates an unknown event, formula, buff or rule id.
	CodeNotFound Code = "NOT_FOUND"

	// CodePersistence indicates a failed write to storage.
	CodePersistence Code = "PERSISTENCE"

	// CodeEvaluation indicates a malformed expression or an evaluator failure.
	CodeEvaluation Code = "EVALUATION"

	// CodeDivisionByZero indicates /, // or % with a zero divisor.
	CodeDivisionByZero Code = "DIVISION_BY_ZERO"

	// CodeExponentLimit indicates ** or pow with an exponent above the guard.
	CodeExponentLimit Code = "EXPONENT_LIMIT"
)

// Error is a categorized failure.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description. Numeric failures quote the
	// offending quantity and threshold.
	Message string

	// Details carries structured context (key, value, cycle path, ...).
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// WithDetail returns e with key=value added to Details.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Is reports whether err (or anything it wraps) is an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// JoinSorted renders a set of names as a stable, comma-separated list.
func JoinSorted(names []string) string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return strings.Join(out, ", ")
}
