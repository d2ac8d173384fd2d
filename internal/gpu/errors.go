package gpu

import (
	"errors"
	"fmt"
)

// Error categories surfaced to callers. Match them with errors.Is.
var (
	ErrCompilation = errors.New("compilation error")
	ErrAllocation  = errors.New("allocation error")
	ErrUnsupported = errors.New("unsupported configuration")
	ErrValidation  = errors.New("validation error")
	ErrBinding     = errors.New("argument binding error")
	ErrExecution   = errors.New("execution error")
)

// Error carries the category of a failure together with the operation that
// produced it.
type Error struct {
	Kind error  // one of the Err* categories
	Op   string // operation that failed
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v in %s: %s: %v", e.Kind, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%v in %s: %s", e.Kind, e.Op, e.Msg)
}

// Unwrap exposes both the category and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, cause error, format string, args ...any) error {
	return &Error{
		Kind: kind,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

// Validationf builds an ErrValidation error. It is used by the argument
// checks that run before a parameter block reaches the dispatch core.
func Validationf(op, format string, args ...any) error {
	return newError(ErrValidation, op, nil, format, args...)
}

// Unsupportedf builds an ErrUnsupported error.
func Unsupportedf(op, format string, args ...any) error {
	return newError(ErrUnsupported, op, nil, format, args...)
}

// Category returns a short label for the category of err, suitable for
// metrics labels.
func Category(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCompilation):
		return "compilation"
	case errors.Is(err, ErrAllocation):
		return "allocation"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrBinding):
		return "binding"
	case errors.Is(err, ErrExecution):
		return "execution"
	default:
		return "internal"
	}
}
