package functions

import (
	"github.com/fxnlabs/gpublas/internal/dispatch"
	"github.com/fxnlabs/gpublas/internal/gpu"
)

// SsyrParams describes A := alpha*x*x**T + A on the Uplo triangle of the n x n
// column-major matrix A.
type SsyrParams struct {
	Uplo  Uplo
	N     int
	Alpha float32
	X     []float32
	IncX  int
	A     []float32
	LDA   int
}

// Validate checks the arguments of an ssyr call.
func (p SsyrParams) Validate() error {
	const op = "ssyr"
	switch {
	case !p.Uplo.Valid():
		return gpu.Validationf(op, "invalid fill mode %s", p.Uplo)
	case p.N < 0:
		return gpu.Validationf(op, "n must not be negative, got %d", p.N)
	case p.IncX <= 0:
		return gpu.Validationf(op, "incx must be positive, got %d", p.IncX)
	case p.LDA < max(1, p.N):
		return gpu.Validationf(op, "lda must be at least max(1, n) = %d, got %d", max(1, p.N), p.LDA)
	case len(p.X) < VectorFootprint(p.N, p.IncX):
		return gpu.Validationf(op, "x has %d elements, needs %d", len(p.X), VectorFootprint(p.N, p.IncX))
	case len(p.A) < MatrixFootprint(p.N, p.LDA):
		return gpu.Validationf(op, "A has %d elements, needs %d", len(p.A), MatrixFootprint(p.N, p.LDA))
	}
	return nil
}

// SsyrScore ranks ssyr variants by Size, then Stride, then Uplo. A tiled
// variant is only preferred once n fills its tiles and x is contiguous.
type SsyrScore struct {
	Size   float32 // how well n amortizes the tile overhead
	Stride float32 // stride friendliness
	Uplo   float32 // fill-mode specialization
}

func (s SsyrScore) Compare(o SsyrScore) int {
	return dispatch.Lexicographic(
		[]float32{s.Size, s.Stride, s.Uplo},
		[]float32{o.Size, o.Stride, o.Uplo})
}

const (
	ssyrTileSimd  = 16
	ssyrNaiveSimd = 64
)

// ssyrTiled updates one triangle in simd x simd tiles. Groups whose tile lies
// entirely in the other triangle return immediately.
type ssyrTiled struct {
	program
	uplo Uplo
}

func (v ssyrTiled) Accept(p SsyrParams) (bool, SsyrScore) {
	if p.Uplo != v.uplo {
		return false, SsyrScore{}
	}
	score := SsyrScore{Size: 0.25, Stride: 0.5, Uplo: 1.16}
	if p.N >= ssyrTileSimd {
		score.Size = 1
	}
	if p.IncX == 1 {
		score.Stride = 1
	}
	return true, score
}

// SsyrTiledLaunch returns the launch of the tiled ssyr programs: one group of
// simd lanes per tile, tiles along both sides of the matrix.
func SsyrTiledLaunch(n int) gpu.LaunchOptions {
	tiles := max(gpu.TileCount(n, ssyrTileSimd), 1)
	return gpu.NewLaunchOptions(
		gpu.NewRange(tiles*ssyrTileSimd, tiles),
		gpu.NewRange(ssyrTileSimd, 1))
}

func (v ssyrTiled) Execute(engine *gpu.Engine, p SsyrParams, deps []*gpu.Event) (*gpu.Event, error) {
	kernel, err := v.kernel(engine)
	if err != nil {
		return nil, err
	}
	buffers, err := bindAll(engine,
		input(p.X, VectorFootprint(p.N, p.IncX)),
		inout(p.A, MatrixFootprint(p.N, p.LDA)))
	if err != nil {
		return nil, err
	}
	x, a := buffers[0], buffers[1]
	return submit(kernel, SsyrTiledLaunch(p.N), deps, p.N, p.Alpha, x, p.IncX, a, p.LDA)
}

// ssyrNaive runs one lane per column and handles either triangle. It
// serves matrices smaller than a tile and strided x.
type ssyrNaive struct {
	program
}

func (v ssyrNaive) Accept(p SsyrParams) (bool, SsyrScore) {
	if !p.Uplo.Valid() {
		return false, SsyrScore{}
	}
	// One lane per column wastes no tile lanes and reads x once per column
	// whatever its increment.
	return true, SsyrScore{Size: 1, Stride: 1, Uplo: 1}
}

func (v ssyrNaive) Execute(engine *gpu.Engine, p SsyrParams, deps []*gpu.Event) (*gpu.Event, error) {
	kernel, err := v.kernel(engine)
	if err != nil {
		return nil, err
	}
	buffers, err := bindAll(engine,
		input(p.X, VectorFootprint(p.N, p.IncX)),
		inout(p.A, MatrixFootprint(p.N, p.LDA)))
	if err != nil {
		return nil, err
	}
	global, local := gpu.Cover(p.N, ssyrNaiveSimd)
	opts := gpu.NewLaunchOptions(gpu.NewRange(global), gpu.NewRange(local))
	upper := 0
	if p.Uplo == Upper {
		upper = 1
	}
	return submit(kernel, opts, deps, p.N, p.Alpha, buffers[0], p.IncX, buffers[1], p.LDA, upper)
}

// Ssyr is the variant registry of the symmetric rank-1 update.
var Ssyr = dispatch.NewRegistry[SsyrParams, SsyrScore]("ssyr",
	ssyrTiled{
		program: program{"Ssyr_early_return_simd16x1x1_upper", "Ssyr_early_return_simd16x1x1_upper"},
		uplo:    Upper,
	},
	ssyrTiled{
		program: program{"Ssyr_early_return_simd16x1x1_lower", "Ssyr_early_return_simd16x1x1_lower"},
		uplo:    Lower,
	},
	ssyrNaive{
		program: program{"Ssyr_naive_simd64", "Ssyr_naive_simd64"},
	},
)
