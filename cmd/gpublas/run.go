package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/fxnlabs/gpublas/internal/functions"
	"github.com/fxnlabs/gpublas/pkg/gpublas"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func callFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "op", Value: "csrot", Usage: "Operation: ssyr, csrot or srot"},
		&cli.IntFlag{Name: "n", Value: 1024, Usage: "Problem size"},
		&cli.IntFlag{Name: "incx", Value: 1, Usage: "Increment of x"},
		&cli.IntFlag{Name: "incy", Value: 1, Usage: "Increment of y (rotations)"},
		&cli.IntFlag{Name: "lda", Usage: "Leading dimension of A (ssyr), defaults to n"},
		&cli.StringFlag{Name: "uplo", Value: "upper", Usage: "Referenced triangle of A (ssyr)"},
		&cli.Float64Flag{Name: "alpha", Value: 1, Usage: "Scale of the rank-1 update (ssyr)"},
		&cli.Float64Flag{Name: "c", Value: 0.5, Usage: "Rotation cosine"},
		&cli.Float64Flag{Name: "s", Value: 1.25, Usage: "Rotation sine"},
	}
}

type call struct {
	op         string
	n          int
	incx, incy int
	lda        int
	uplo       functions.Uplo
	alpha      float32
	c, s       float32
}

func parseCall(c *cli.Context) (call, error) {
	cl := call{
		op:    c.String("op"),
		n:     c.Int("n"),
		incx:  c.Int("incx"),
		incy:  c.Int("incy"),
		lda:   c.Int("lda"),
		alpha: float32(c.Float64("alpha")),
		c:     float32(c.Float64("c")),
		s:     float32(c.Float64("s")),
	}
	switch cl.op {
	case "ssyr", "csrot", "srot":
	default:
		return call{}, fmt.Errorf("unknown operation %q", cl.op)
	}
	uplo, err := functions.ParseUplo(c.String("uplo"))
	if err != nil {
		return call{}, err
	}
	cl.uplo = uplo
	if cl.lda == 0 {
		cl.lda = max(1, cl.n)
	}
	return cl, nil
}

func (cl call) ssyr(x, a []float32) functions.SsyrParams {
	return functions.SsyrParams{Uplo: cl.uplo, N: cl.n, Alpha: cl.alpha, X: x, IncX: cl.incx, A: a, LDA: cl.lda}
}

func (cl call) csrot(x, y []complex64) functions.CsrotParams {
	return functions.CsrotParams{N: cl.n, X: x, IncX: cl.incx, Y: y, IncY: cl.incy, C: cl.c, S: cl.s}
}

func (cl call) srot(x, y []float32) functions.SrotParams {
	return functions.SrotParams{N: cl.n, X: x, IncX: cl.incx, Y: y, IncY: cl.incy, C: cl.c, S: cl.s}
}

type runResult struct {
	Operation   string  `json:"operation"`
	Variant     string  `json:"variant"`
	N           int     `json:"n"`
	Repeat      int     `json:"repeat"`
	ElapsedMs   float64 `json:"elapsedMs"`
	MaxAbsError float64 `json:"maxAbsError"`
	Status      string  `json:"status"`
}

func randomFloats(r *rand.Rand, n int) []float32 {
	v := make([]float32, max(n, 0))
	for i := range v {
		v[i] = float32(r.IntN(15))
	}
	return v
}

func randomComplex(r *rand.Rand, n int) []complex64 {
	v := make([]complex64, max(n, 0))
	for i := range v {
		v[i] = complex(float32(r.IntN(15)), float32(r.IntN(15)))
	}
	return v
}

func maxAbsDiff(want, got []float32) float64 {
	var worst float64
	for i := range want {
		worst = max(worst, math.Abs(float64(want[i]-got[i])))
	}
	return worst
}

// runCall executes cl repeat times through h, chaining every call on the
// previous one, and compares the outcome with a scalar loop.
func runCall(ctx context.Context, h *gpublas.Handle, cl call, repeat int, seed uint64) (runResult, error) {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	res := runResult{Operation: cl.op, N: cl.n, Repeat: repeat}

	var (
		ev    *gpublas.Event
		err   error
		check func() float64
	)
	start := time.Now()
	switch cl.op {
	case "ssyr":
		x := randomFloats(r, functions.VectorFootprint(cl.n, cl.incx))
		a := randomFloats(r, functions.MatrixFootprint(cl.n, cl.lda))
		want := append([]float32(nil), a...)
		for k := 0; k < repeat; k++ {
			refSsyr(cl, x, want)
			if ev, err = h.SsyrAsync(cl.uplo, cl.n, cl.alpha, x, cl.incx, a, cl.lda, deps(ev)...); err != nil {
				break
			}
		}
		if v, _, err := functions.Ssyr.Select(cl.ssyr(nil, nil)); err == nil {
			res.Variant = v.Name()
		}
		check = func() float64 { return maxAbsDiff(want, a) }
	case "csrot":
		x := randomComplex(r, functions.VectorFootprint(cl.n, cl.incx))
		y := randomComplex(r, functions.VectorFootprint(cl.n, cl.incy))
		wantX, wantY := append([]complex64(nil), x...), append([]complex64(nil), y...)
		for k := 0; k < repeat; k++ {
			refCsrot(cl, wantX, wantY)
			if ev, err = h.CsrotAsync(cl.n, x, cl.incx, y, cl.incy, cl.c, cl.s, deps(ev)...); err != nil {
				break
			}
		}
		if v, _, err := functions.Csrot.Select(cl.csrot(nil, nil)); err == nil {
			res.Variant = v.Name()
		}
		check = func() float64 {
			return max(maxAbsDiff(complexParts(wantX), complexParts(x)), maxAbsDiff(complexParts(wantY), complexParts(y)))
		}
	default:
		x := randomFloats(r, functions.VectorFootprint(cl.n, cl.incx))
		y := randomFloats(r, functions.VectorFootprint(cl.n, cl.incy))
		wantX, wantY := append([]float32(nil), x...), append([]float32(nil), y...)
		for k := 0; k < repeat; k++ {
			refSrot(cl, wantX, wantY)
			if ev, err = h.SrotAsync(cl.n, x, cl.incx, y, cl.incy, cl.c, cl.s, deps(ev)...); err != nil {
				break
			}
		}
		if v, _, err := functions.Srot.Select(cl.srot(nil, nil)); err == nil {
			res.Variant = v.Name()
		}
		check = func() float64 { return max(maxAbsDiff(wantX, x), maxAbsDiff(wantY, y)) }
	}
	if err == nil && ev != nil {
		err = ev.Wait(ctx)
	}
	res.ElapsedMs = float64(time.Since(start).Microseconds()) / 1000
	res.Status = gpublas.StatusFromError(err).String()
	if err != nil {
		return res, err
	}
	res.MaxAbsError = check()
	return res, nil
}

func deps(ev *gpublas.Event) []*gpublas.Event {
	if ev == nil {
		return nil
	}
	return []*gpublas.Event{ev}
}

func complexParts(v []complex64) []float32 {
	out := make([]float32, 0, 2*len(v))
	for _, z := range v {
		out = append(out, real(z), imag(z))
	}
	return out
}

func refSsyr(cl call, x, a []float32) {
	for j := 0; j < cl.n; j++ {
		for i := 0; i < cl.n; i++ {
			if cl.uplo == functions.Upper && i > j || cl.uplo == functions.Lower && i < j {
				continue
			}
			a[i+j*cl.lda] += cl.alpha * x[i*cl.incx] * x[j*cl.incx]
		}
	}
}

func refCsrot(cl call, x, y []complex64) {
	c, s := complex(cl.c, 0), complex(cl.s, 0)
	for i := 0; i < cl.n; i++ {
		xi, yi := x[i*cl.incx], y[i*cl.incy]
		x[i*cl.incx] = c*xi + s*yi
		y[i*cl.incy] = c*yi - s*xi
	}
}

func refSrot(cl call, x, y []float32) {
	for i := 0; i < cl.n; i++ {
		xi, yi := x[i*cl.incx], y[i*cl.incy]
		x[i*cl.incx] = cl.c*xi + cl.s*yi
		y[i*cl.incy] = cl.c*yi - cl.s*xi
	}
}

func runCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run an operation on random data and verify it against a scalar loop",
		Flags: append(callFlags(),
			&cli.IntFlag{Name: "repeat", Value: 1, Usage: "Number of chained calls"},
			&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "Seed of the input data"},
			&cli.Float64Flag{Name: "tolerance", Value: 1e-3, Usage: "Largest accepted absolute error"},
			jsonFlag,
		),
		Action: func(c *cli.Context) error {
			cl, err := parseCall(c)
			if err != nil {
				return err
			}
			repeat := max(1, c.Int("repeat"))
			return withHandle(c.Context, e, func(h *gpublas.Handle) error {
				res, err := runCall(c.Context, h, cl, repeat, c.Uint64("seed"))
				if err != nil {
					e.log.Error("Call failed", zap.String("operation", cl.op), zap.String("status", res.Status), zap.Error(err))
					return err
				}
				e.log.Debug("Call completed",
					zap.String("operation", res.Operation),
					zap.String("variant", res.Variant),
					zap.Float64("elapsed_ms", res.ElapsedMs))

				if c.Bool("json") {
					if err := writeJSON(c.App.Writer, res); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(c.App.Writer, "%s n=%d variant=%s repeat=%d elapsed=%.3fms max_abs_error=%g status=%s\n",
						res.Operation, res.N, res.Variant, res.Repeat, res.ElapsedMs, res.MaxAbsError, res.Status)
				}
				if res.MaxAbsError > c.Float64("tolerance") {
					return fmt.Errorf("%s: max abs error %g exceeds tolerance %g", res.Operation, res.MaxAbsError, c.Float64("tolerance"))
				}
				return nil
			})
		},
	}
}
