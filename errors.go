package netxp

import (
	"errors"
	"strings"
)

// Error kinds.  Every failure returned by the package wraps exactly one of
// these, together with the offending parameter or context string, so callers
// can classify it with errors.Is.  None of them are recoverable within a run.
var (
	// ErrConfiguration flags an invalid or missing build-time parameter
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidTime flags an attempt to schedule before the current simulation time
	ErrInvalidTime = errors.New("invalid time")

	// ErrTopology flags a malformed reference in a topology description
	ErrTopology = errors.New("topology error")

	// ErrTraceRouting flags a state-change address context that cannot be parsed
	ErrTraceRouting = errors.New("trace routing error")

	// ErrDivisionByZero flags an empty measurement window or an empty flow group
	ErrDivisionByZero = errors.New("division by zero")
)

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	present := make([]error, 0)
	for _, err := range errs {
		if err != nil {
			present = append(present, err)
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(present) == 0 {
		return nil
	}
	if len(present) == 1 {
		return present[0]
	}

	return &errList{errs: present, msg: strings.Join(errMsg, ",")}
}

// errList keeps the constituents of a ReportErrs result visible to errors.Is
type errList struct {
	errs []error
	msg  string
}

func (el *errList) Error() string {
	return el.msg
}

func (el *errList) Unwrap() []error {
	return el.errs
}
