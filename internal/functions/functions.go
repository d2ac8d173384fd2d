// Package functions defines the parameter blocks, scores and implementation
// variants of the supported operations.
package functions

import (
	"fmt"
	"strings"

	"github.com/fxnlabs/gpublas/internal/gpu"
)

// Uplo selects the triangle of a symmetric matrix that is referenced.
type Uplo int

const (
	Upper Uplo = iota + 1
	Lower
)

func (u Uplo) String() string {
	switch u {
	case Upper:
		return "upper"
	case Lower:
		return "lower"
	default:
		return fmt.Sprintf("Uplo(%d)", int(u))
	}
}

// Valid reports whether u is Upper or Lower.
func (u Uplo) Valid() bool { return u == Upper || u == Lower }

// ParseUplo accepts "upper"/"u" and "lower"/"l" in any case.
func ParseUplo(s string) (Uplo, error) {
	switch strings.ToLower(s) {
	case "upper", "u":
		return Upper, nil
	case "lower", "l":
		return Lower, nil
	default:
		return 0, fmt.Errorf("invalid fill mode %q", s)
	}
}

// VectorFootprint is the number of elements spanned by n logical elements
// spaced inc apart.
func VectorFootprint(n, inc int) int {
	if n <= 0 {
		return 0
	}
	return (n-1)*inc + 1
}

// MatrixFootprint is the number of elements spanned by an n x n column-major
// matrix with leading dimension lda.
func MatrixFootprint(n, lda int) int {
	if n <= 0 {
		return 0
	}
	return (n-1)*lda + n
}

// program names the device program a variant launches.
type program struct {
	module     string
	entryPoint string
}

func (p program) Name() string { return p.entryPoint }

func (p program) Program() (string, string) { return p.module, p.entryPoint }

// kernel returns a fresh kernel for p.
func (p program) kernel(engine *gpu.Engine) (*gpu.Kernel, error) {
	return engine.GetKernel(p.module, p.entryPoint)
}

// bind is one pending buffer binding of a variant.
type bind struct {
	role  gpu.Role
	host  any
	count int
}

func input(host any, count int) bind { return bind{gpu.RoleInput, host, count} }
func inout(host any, count int) bind { return bind{gpu.RoleInOut, host, count} }

// bindAll binds every operand or none: buffers bound before a failure are
// released.
func bindAll(engine *gpu.Engine, binds ...bind) ([]*gpu.Buffer, error) {
	buffers := make([]*gpu.Buffer, 0, len(binds))
	for _, b := range binds {
		var (
			buf *gpu.Buffer
			err error
		)
		switch b.role {
		case gpu.RoleInOut:
			buf, err = engine.GetInOutBuffer(b.host, b.count)
		case gpu.RoleOutput:
			buf, err = engine.GetOutputBuffer(b.host, b.count)
		default:
			buf, err = engine.GetInputBuffer(b.host, b.count)
		}
		if err != nil {
			for _, bound := range buffers {
				bound.Release()
			}
			return nil, err
		}
		buffers = append(buffers, buf)
	}
	return buffers, nil
}

// submit sets args positionally, applies opts and submits after deps. On
// failure every buffer in args has been released.
func submit(kernel *gpu.Kernel, opts gpu.LaunchOptions, deps []*gpu.Event, args ...any) (*gpu.Event, error) {
	var firstErr error
	for i, arg := range args {
		// Keep going after a failure so that the kernel takes ownership of
		// every remaining buffer and Discard can release it.
		if err := kernel.SetArg(i, arg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = kernel.SetOptions(opts)
	}
	if firstErr != nil {
		kernel.Discard()
		return nil, firstErr
	}
	return kernel.Submit(deps)
}
