package kernels

import (
	"unsafe"

	"github.com/fxnlabs/gpublas/internal/gpu"
	"gonum.org/v1/gonum/blas/blas32"
)

// Rotation programs take n, x, incx, y, incy, c, s.

func csrotLane(g gpu.WorkGroup, args gpu.Args) error {
	n, x, incx := args.Int(0), args.Complex64s(1), args.Int(2)
	y, incy := args.Complex64s(3), args.Int(4)
	c, s := complex(args.Float32(5), 0), complex(args.Float32(6), 0)

	for lx := 0; lx < g.Local.X; lx++ {
		i := g.GlobalX(lx)
		if i >= n {
			break
		}
		xi, yi := x[i*incx], y[i*incy]
		x[i*incx] = c*xi + s*yi
		y[i*incy] = c*yi - s*xi
	}
	return nil
}

func srotLane(g gpu.WorkGroup, args gpu.Args) error {
	n, x, incx := args.Int(0), args.Float32s(1), args.Int(2)
	y, incy := args.Float32s(3), args.Int(4)
	c, s := args.Float32(5), args.Float32(6)

	for lx := 0; lx < g.Local.X; lx++ {
		i := g.GlobalX(lx)
		if i >= n {
			break
		}
		xi, yi := x[i*incx], y[i*incy]
		x[i*incx] = c*xi + s*yi
		y[i*incy] = c*yi - s*xi
	}
	return nil
}

// chunks calls fn with the first element and length of every chunk owned by
// the lanes of g.
func chunks(g gpu.WorkGroup, n int, fn func(start, count int)) {
	chunk := g.Param("chunk", 256)
	for lx := 0; lx < g.Local.X; lx++ {
		start := g.GlobalX(lx) * chunk
		if start >= n {
			return
		}
		fn(start, min(chunk, n-start))
	}
}

func srotChunked(g gpu.WorkGroup, args gpu.Args) error {
	n, x, incx := args.Int(0), args.Float32s(1), args.Int(2)
	y, incy := args.Float32s(3), args.Int(4)
	c, s := args.Float32(5), args.Float32(6)

	chunks(g, n, func(start, count int) {
		blas32.Rot(count,
			blas32.Vector{N: count, Data: x[start*incx:], Inc: incx},
			blas32.Vector{N: count, Data: y[start*incy:], Inc: incy},
			c, s)
	})
	return nil
}

// csrotChunked rotates the real and the imaginary parts as two interleaved
// real vectors.
func csrotChunked(g gpu.WorkGroup, args gpu.Args) error {
	n, x, incx := args.Int(0), floats(args.Complex64s(1)), args.Int(2)
	y, incy := floats(args.Complex64s(3)), args.Int(4)
	c, s := args.Float32(5), args.Float32(6)

	chunks(g, n, func(start, count int) {
		for part := 0; part < 2; part++ {
			blas32.Rot(count,
				blas32.Vector{N: count, Data: x[2*start*incx+part:], Inc: 2 * incx},
				blas32.Vector{N: count, Data: y[2*start*incy+part:], Inc: 2 * incy},
				c, s)
		}
	})
	return nil
}

// floats views a complex64 slice as its interleaved real and imaginary parts.
func floats(v []complex64) []float32 {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(v))), 2*len(v))
}
