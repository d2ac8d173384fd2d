// Package gpublas is the public entry point: a handle owning one device
// context and the BLAS routines dispatched on it.
package gpublas

import (
	"context"
	"errors"
	"sync"

	"github.com/fxnlabs/gpublas/internal/config"
	"github.com/fxnlabs/gpublas/internal/functions"
	"github.com/fxnlabs/gpublas/internal/gpu"
	"github.com/fxnlabs/gpublas/internal/kernels"
	"go.uber.org/zap"
)

// ErrDestroyed is returned by calls on a destroyed handle.
var ErrDestroyed = errors.New("gpublas: handle destroyed")

// FillMode selects the referenced triangle of a symmetric matrix.
type FillMode = functions.Uplo

const (
	FillModeUpper = functions.Upper
	FillModeLower = functions.Lower
)

// Event is the completion token of an asynchronous call.
type Event = gpu.Event

// Handle is one device context. It is safe for concurrent use.
type Handle struct {
	mu      sync.RWMutex
	manager *gpu.Manager
	logger  *zap.Logger
}

// Create opens a device context configured by cfg. A nil cfg uses the
// defaults.
func Create(cfg *config.Config, logger *zap.Logger) (*Handle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lib, err := kernels.NewLibrary()
	if err != nil {
		return nil, err
	}
	manager, err := gpu.NewManager(cfg, lib, logger)
	if err != nil {
		return nil, err
	}
	return NewHandle(manager, logger), nil
}

// NewHandle wraps an existing device context.
func NewHandle(manager *gpu.Manager, logger *zap.Logger) *Handle {
	return &Handle{manager: manager, logger: logger.Named("gpublas")}
}

// Manager returns the device context of h.
func (h *Handle) Manager() *gpu.Manager {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.manager
}

// Destroy waits for outstanding work and releases the device context.
// Calling Destroy again is a no-op.
func (h *Handle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.manager == nil {
		return nil
	}
	if err := h.manager.Cleanup(ctx); err != nil {
		return err
	}
	h.manager = nil
	h.logger.Debug("Handle destroyed")
	return nil
}

// Synchronize blocks until all work submitted on h has completed.
func (h *Handle) Synchronize(ctx context.Context) error {
	engine, err := h.engine()
	if err != nil {
		return err
	}
	return engine.Finish(ctx)
}

func (h *Handle) engine() (*gpu.Engine, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.manager == nil {
		return nil, ErrDestroyed
	}
	return h.manager.Engine(), nil
}

// call validates params and dispatches it unless n is zero, in which case
// the returned event only waits for deps. Submission never blocks, so the
// handle stays read-locked until the work is queued and Destroy cannot
// release the device underneath it.
func call[P interface{ Validate() error }](h *Handle, n int, params P,
	dispatch func(*gpu.Engine, P, ...*gpu.Event) (*gpu.Event, error), deps []*gpu.Event,
) (*gpu.Event, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.manager == nil {
		return nil, ErrDestroyed
	}
	engine := h.manager.Engine()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if n == 0 {
		return engine.Marker(deps...)
	}
	return dispatch(engine, params, deps...)
}

func wait(ctx context.Context, ev *gpu.Event, err error) error {
	if err != nil {
		return err
	}
	return ev.Wait(ctx)
}

// SsyrAsync performs A := alpha*x*x**T + A on the uplo triangle of the n x n
// column-major matrix A after deps. x and A must not be touched until the
// returned event is satisfied.
func (h *Handle) SsyrAsync(uplo FillMode, n int, alpha float32, x []float32, incx int, a []float32, lda int, deps ...*Event) (*Event, error) {
	params := functions.SsyrParams{Uplo: uplo, N: n, Alpha: alpha, X: x, IncX: incx, A: a, LDA: lda}
	return call(h, n, params, functions.Ssyr.Dispatch, deps)
}

// Ssyr is SsyrAsync followed by a wait.
func (h *Handle) Ssyr(ctx context.Context, uplo FillMode, n int, alpha float32, x []float32, incx int, a []float32, lda int) error {
	ev, err := h.SsyrAsync(uplo, n, alpha, x, incx, a, lda)
	return wait(ctx, ev, err)
}

// CsrotAsync applies the real plane rotation (c, s) to the complex vectors x
// and y after deps:
//
//	x[i] = c*x[i] + s*y[i]
//	y[i] = c*y[i] - s*x[i]
func (h *Handle) CsrotAsync(n int, x []complex64, incx int, y []complex64, incy int, c, s float32, deps ...*Event) (*Event, error) {
	params := functions.CsrotParams{N: n, X: x, IncX: incx, Y: y, IncY: incy, C: c, S: s}
	return call(h, n, params, functions.Csrot.Dispatch, deps)
}

// Csrot is CsrotAsync followed by a wait.
func (h *Handle) Csrot(ctx context.Context, n int, x []complex64, incx int, y []complex64, incy int, c, s float32) error {
	ev, err := h.CsrotAsync(n, x, incx, y, incy, c, s)
	return wait(ctx, ev, err)
}

// SrotAsync applies the plane rotation (c, s) to the real vectors x and y
// after deps.
func (h *Handle) SrotAsync(n int, x []float32, incx int, y []float32, incy int, c, s float32, deps ...*Event) (*Event, error) {
	params := functions.SrotParams{N: n, X: x, IncX: incx, Y: y, IncY: incy, C: c, S: s}
	return call(h, n, params, functions.Srot.Dispatch, deps)
}

// Srot is SrotAsync followed by a wait.
func (h *Handle) Srot(ctx context.Context, n int, x []float32, incx int, y []float32, incy int, c, s float32) error {
	ev, err := h.SrotAsync(n, x, incx, y, incy, c, s)
	return wait(ctx, ev, err)
}
