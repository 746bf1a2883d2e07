package session

import "fmt"

// ValidationError reports user input that fails a field-level rule, such as
// completing a set with zero reps. It is surfaced to the caller for
// correction and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvariantViolation reports an operation that would break the session's
// structural invariants, such as removing the only remaining set. The model
// is unchanged when one is returned.
type InvariantViolation struct {
	Op     string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func invariantErr(op, format string, args ...any) error {
	return &InvariantViolation{Op: op, Reason: fmt.Sprintf(format, args...)}
}
