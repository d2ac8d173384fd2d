package gpublas

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/gpublas/internal/gpu"
)

// Status is the outcome category of a call.
type Status int

const (
	StatusSuccess Status = iota
	StatusNotInitialized
	StatusInvalidValue
	StatusAllocFailed
	StatusCompilationFailed
	StatusNotSupported
	StatusBindingFailed
	StatusExecutionFailed
	StatusInternalError
)

var statusNames = [...]string{
	StatusSuccess:           "SUCCESS",
	StatusNotInitialized:    "NOT_INITIALIZED",
	StatusInvalidValue:      "INVALID_VALUE",
	StatusAllocFailed:       "ALLOC_FAILED",
	StatusCompilationFailed: "COMPILATION_FAILED",
	StatusNotSupported:      "NOT_SUPPORTED",
	StatusBindingFailed:     "BINDING_FAILED",
	StatusExecutionFailed:   "EXECUTION_FAILED",
	StatusInternalError:     "INTERNAL_ERROR",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// StatusFromError maps an error returned by this package to its status.
func StatusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrDestroyed):
		return StatusNotInitialized
	case errors.Is(err, gpu.ErrValidation):
		return StatusInvalidValue
	case errors.Is(err, gpu.ErrAllocation):
		return StatusAllocFailed
	case errors.Is(err, gpu.ErrCompilation):
		return StatusCompilationFailed
	case errors.Is(err, gpu.ErrUnsupported):
		return StatusNotSupported
	case errors.Is(err, gpu.ErrBinding):
		return StatusBindingFailed
	case errors.Is(err, gpu.ErrExecution):
		return StatusExecutionFailed
	default:
		return StatusInternalError
	}
}
