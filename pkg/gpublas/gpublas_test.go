package gpublas

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/fxnlabs/gpublas/internal/config"
	"github.com/fxnlabs/gpublas/internal/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"golang.org/x/sync/errgroup"
)

func newHandle(t *testing.T, memoize bool) *Handle {
	t.Helper()
	cfg := config.Default()
	cfg.Device.MemoryBytes = 64 << 20
	cfg.Buffers.Memoize = memoize
	h, err := Create(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, h.Destroy(context.Background()))
	})
	return h
}

// refRot applies the rotation element by element.
func refRot(n int, x []complex64, incx int, y []complex64, incy int, c, s float32) {
	cc, sc := complex(c, 0), complex(s, 0)
	for i := 0; i < n; i++ {
		xi, yi := x[i*incx], y[i*incy]
		x[i*incx] = cc*xi + sc*yi
		y[i*incy] = -sc*xi + cc*yi
	}
}

func assertComplexEqual(t *testing.T, want, got []complex64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, real(want[i]), real(got[i]), 1e-4, "real part of element %d", i)
		assert.InDelta(t, imag(want[i]), imag(got[i]), 1e-4, "imaginary part of element %d", i)
	}
}

func randomVectors(n, incx, incy int) ([]complex64, []complex64) {
	r := rand.New(rand.NewPCG(uint64(n), uint64(incx*10+incy)))
	x := make([]complex64, n*incx)
	y := make([]complex64, n*incy)
	for i := 0; i < n; i++ {
		x[i*incx] = complex(float32(r.IntN(15)), float32(r.IntN(15)))
		y[i*incy] = complex(float32(r.IntN(15)), float32(r.IntN(15)))
	}
	return x, y
}

func TestCsrot_n1_c2_s1(t *testing.T) {
	h := newHandle(t, true)
	x := []complex64{1 + 0i}
	y := []complex64{2 + 0i}

	require.NoError(t, h.Csrot(context.Background(), 1, x, 1, y, 1, 2, 1))
	assert.Equal(t, complex64(4+0i), x[0])
	assert.Equal(t, complex64(3+0i), y[0])
}

func TestCsrot_Fixed(t *testing.T) {
	data := []complex64{-1, 23, 3, 14, 4, 8, 7, -11, 9, 10, 14}
	tests := []struct {
		name string
		n    int
		inc  int
	}{
		{"n11_c2_s1", 11, 1},
		{"n5x2_c2_s1", 5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandle(t, true)
			x := append([]complex64(nil), data[:tt.n*tt.inc]...)
			y := append([]complex64(nil), data[:tt.n*tt.inc]...)
			wantX := append([]complex64(nil), x...)
			wantY := append([]complex64(nil), y...)
			refRot(tt.n, wantX, tt.inc, wantY, tt.inc, 2, 1)

			require.NoError(t, h.Csrot(context.Background(), tt.n, x, tt.inc, y, tt.inc, 2, 1))
			assertComplexEqual(t, wantX, x)
			assertComplexEqual(t, wantY, y)
		})
	}
}

func TestCsrot_Random(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		incx, incy int
		c, s       float32
	}{
		{"noinc", 100, 1, 1, .5, 1.25},
		{"noincx", 150, 1, 2, 5.5, 1.75},
		{"noincy", 125, 3, 1, .5, 1.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandle(t, false)
			x, y := randomVectors(tt.n, tt.incx, tt.incy)
			wantX := append([]complex64(nil), x...)
			wantY := append([]complex64(nil), y...)
			refRot(tt.n, wantX, tt.incx, wantY, tt.incy, tt.c, tt.s)

			require.NoError(t, h.Csrot(context.Background(), tt.n, x, tt.incx, y, tt.incy, tt.c, tt.s))
			assertComplexEqual(t, wantX, x)
			assertComplexEqual(t, wantY, y)
		})
	}
}

func TestCsrot_OptimAsync(t *testing.T) {
	const n, incx, incy = 65536, 2, 3
	h := newHandle(t, true)
	x, y := randomVectors(n, incx, incy)
	wantX := append([]complex64(nil), x...)
	wantY := append([]complex64(nil), y...)
	refRot(n, wantX, incx, wantY, incy, .5, 1.25)

	ev, err := h.CsrotAsync(n, x, incx, y, incy, .5, 1.25)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.NoError(t, h.Synchronize(context.Background()))
	assert.True(t, ev.Satisfied())
	require.NoError(t, ev.Err())

	assertComplexEqual(t, wantX, x)
	assertComplexEqual(t, wantY, y)
}

func TestSrot_ChainedCalls(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, true)
	const n = 5000
	x := make([]float32, n)
	y := make([]float32, n)
	for i := range x {
		x[i] = float32(i % 13)
		y[i] = float32(i % 7)
	}
	wantX := append([]float32(nil), x...)
	wantY := append([]float32(nil), y...)
	blas32.Rot(n, blas32.Vector{N: n, Data: wantX, Inc: 1}, blas32.Vector{N: n, Data: wantY, Inc: 1}, 0.5, 1.25)
	blas32.Rot(n, blas32.Vector{N: n, Data: wantX, Inc: 1}, blas32.Vector{N: n, Data: wantY, Inc: 1}, 2, -1)

	// The second rotation is submitted before the first has finished.
	first, err := h.SrotAsync(n, x, 1, y, 1, 0.5, 1.25)
	require.NoError(t, err)
	second, err := h.SrotAsync(n, x, 1, y, 1, 2, -1, first)
	require.NoError(t, err)
	require.NoError(t, second.Wait(ctx))

	assert.InDeltaSlice(t, wantX, x, 1e-3)
	assert.InDeltaSlice(t, wantY, y, 1e-3)
}

func TestSsyr(t *testing.T) {
	for _, uplo := range []FillMode{FillModeUpper, FillModeLower} {
		for _, n := range []int{1, 7, 33} {
			const incx = 2
			lda := n + 3
			x := make([]float32, (n-1)*incx+1)
			for i := range x {
				x[i] = float32(i%5) - 2
			}
			a := make([]float32, n*lda)
			for i := range a {
				a[i] = float32(i % 3)
			}

			// Column-major A with leading dimension lda is the row-major
			// transpose, so the other triangle is updated by the reference.
			want := append([]float32(nil), a...)
			refUplo := blas.Lower
			if uplo == FillModeLower {
				refUplo = blas.Upper
			}
			blas32.Syr(1.5, blas32.Vector{N: n, Data: x, Inc: incx},
				blas32.Symmetric{N: n, Stride: lda, Data: want, Uplo: refUplo})

			h := newHandle(t, true)
			require.NoError(t, h.Ssyr(context.Background(), uplo, n, 1.5, x, incx, a, lda))
			assert.InDeltaSlice(t, want, a, 1e-4, "uplo=%s n=%d", uplo, n)
		}
	}
}

func TestZeroLengthIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, true)

	ev, err := h.CsrotAsync(0, nil, 1, nil, 1, 2, 1)
	require.NoError(t, err)
	require.NoError(t, ev.Wait(ctx))

	x := []float32{1}
	ev, err = h.SsyrAsync(FillModeUpper, 0, 1, nil, 1, x, 1, ev)
	require.NoError(t, err)
	require.NoError(t, ev.Wait(ctx))
	assert.Equal(t, []float32{1}, x)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, true)
	x := make([]complex64, 4)
	y := make([]complex64, 4)

	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"success", h.Csrot(ctx, 4, x, 1, y, 1, 1, 0), StatusSuccess},
		{"negative n", h.Csrot(ctx, -1, x, 1, y, 1, 1, 0), StatusInvalidValue},
		{"zero increment", h.Csrot(ctx, 2, x, 0, y, 1, 1, 0), StatusInvalidValue},
		{"short vector", h.Csrot(ctx, 4, x, 2, y, 1, 1, 0), StatusInvalidValue},
		{"bad fill mode", h.Ssyr(ctx, FillMode(9), 1, 1, []float32{1}, 1, []float32{1}, 1), StatusInvalidValue},
		{"small lda", h.Ssyr(ctx, FillModeUpper, 2, 1, []float32{1, 1}, 1, []float32{1, 1, 1, 1}, 1), StatusInvalidValue},
		{"unsupported", gpu.Unsupportedf("op", "none"), StatusNotSupported},
		{"compilation", errors.Join(gpu.ErrCompilation), StatusCompilationFailed},
		{"binding", errors.Join(gpu.ErrBinding), StatusBindingFailed},
		{"execution", errors.Join(gpu.ErrExecution), StatusExecutionFailed},
		{"other", errors.New("boom"), StatusInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromError(tt.err))
		})
	}

	assert.Equal(t, "INVALID_VALUE", StatusInvalidValue.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}

func TestAllocationFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Device.MemoryBytes = 1024
	h, err := Create(cfg, zap.NewNop())
	require.NoError(t, err)
	defer h.Destroy(context.Background())

	x := make([]float32, 1000)
	y := make([]float32, 1000)
	err = h.Srot(context.Background(), 1000, x, 1, y, 1, 1, 0)
	assert.ErrorIs(t, err, gpu.ErrAllocation)
	assert.Equal(t, StatusAllocFailed, StatusFromError(err))
}

func TestDestroy(t *testing.T) {
	h, err := Create(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, h.Manager())

	require.NoError(t, h.Destroy(context.Background()))
	require.NoError(t, h.Destroy(context.Background()))
	assert.Nil(t, h.Manager())

	err = h.Srot(context.Background(), 1, []float32{1}, 1, []float32{1}, 1, 1, 0)
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.Equal(t, StatusNotInitialized, StatusFromError(err))
	assert.ErrorIs(t, h.Synchronize(context.Background()), ErrDestroyed)
}

func TestConcurrentCallsOnOneHandle(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, true)
	const workers, rounds, n = 4, 100, 64
	c, s := float32(0.6), float32(0.8)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			x := make([]float32, n)
			y := make([]float32, n)
			cx := make([]complex64, n)
			cy := make([]complex64, n)
			for i := range x {
				x[i], y[i] = float32((i+w)%15), float32(i%7)
				cx[i], cy[i] = complex(x[i], y[i]), complex(y[i], -x[i])
			}
			wantX, wantY := append([]float32(nil), x...), append([]float32(nil), y...)
			wantCX, wantCY := append([]complex64(nil), cx...), append([]complex64(nil), cy...)

			var last *Event
			for range rounds {
				blas32.Rot(n, blas32.Vector{N: n, Data: wantX, Inc: 1}, blas32.Vector{N: n, Data: wantY, Inc: 1}, c, s)
				refRot(n, wantCX, 1, wantCY, 1, c, s)

				var deps []*Event
				if last != nil {
					deps = []*Event{last}
				}
				ev, err := h.SrotAsync(n, x, 1, y, 1, c, s, deps...)
				if err != nil {
					return err
				}
				last = ev
				if err := h.Csrot(ctx, n, cx, 1, cy, 1, c, s); err != nil {
					return err
				}
				if err := h.Synchronize(ctx); err != nil {
					return err
				}
			}
			if err := last.Wait(ctx); err != nil {
				return err
			}
			assert.InDeltaSlice(t, wantX, x, 1e-3)
			assert.InDeltaSlice(t, wantY, y, 1e-3)
			for i := range cx {
				assert.InDelta(t, real(wantCX[i]), real(cx[i]), 1e-3)
				assert.InDelta(t, imag(wantCX[i]), imag(cx[i]), 1e-3)
				assert.InDelta(t, real(wantCY[i]), real(cy[i]), 1e-3)
				assert.InDelta(t, imag(wantCY[i]), imag(cy[i]), 1e-3)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, h.Synchronize(ctx))
}

func TestDestroyWhileCalling(t *testing.T) {
	ctx := context.Background()
	h, err := Create(nil, zap.NewNop())
	require.NoError(t, err)

	start := make(chan struct{})
	var g errgroup.Group
	for range 4 {
		g.Go(func() error {
			x := make([]float32, 64)
			y := make([]float32, 64)
			<-start
			for {
				err := h.Srot(ctx, 64, x, 1, y, 1, 1, 0)
				if errors.Is(err, ErrDestroyed) {
					return nil
				}
				if err != nil {
					return err
				}
			}
		})
	}
	close(start)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, h.Destroy(ctx))
	require.NoError(t, g.Wait())
}
