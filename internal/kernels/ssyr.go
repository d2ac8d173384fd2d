package kernels

import "github.com/fxnlabs/gpublas/internal/gpu"

// ssyrTiled updates the tile (ID.X, ID.Y) of A, Local.X rows by Local.X
// columns, one lane per row. Arguments: n, alpha, x, incx, A, lda.
func ssyrTiled(upper bool) gpu.KernelFunc {
	return func(g gpu.WorkGroup, args gpu.Args) error {
		bx, by := g.ID.X, g.ID.Y
		if upper && bx > by || !upper && bx < by {
			return nil
		}
		n, alpha, x, incx := args.Int(0), args.Float32(1), args.Float32s(2), args.Int(3)
		a, lda := args.Float32s(4), args.Int(5)

		tile := g.Local.X
		colEnd := min((by+1)*tile, n)
		for lx := 0; lx < tile; lx++ {
			i := g.GlobalX(lx)
			if i >= n {
				break
			}
			xi := alpha * x[i*incx]
			for j := by * tile; j < colEnd; j++ {
				if upper && i > j || !upper && i < j {
					continue
				}
				a[i+j*lda] += xi * x[j*incx]
			}
		}
		return nil
	}
}

// ssyrNaive updates one column of A per lane. Arguments: n, alpha, x, incx,
// A, lda, upper.
func ssyrNaive(g gpu.WorkGroup, args gpu.Args) error {
	n, alpha, x, incx := args.Int(0), args.Float32(1), args.Float32s(2), args.Int(3)
	a, lda, upper := args.Float32s(4), args.Int(5), args.Int(6) != 0

	for lx := 0; lx < g.Local.X; lx++ {
		j := g.GlobalX(lx)
		if j >= n {
			break
		}
		xj := alpha * x[j*incx]
		from, to := j, n
		if upper {
			from, to = 0, j+1
		}
		for i := from; i < to; i++ {
			a[i+j*lda] += x[i*incx] * xj
		}
	}
	return nil
}
