package functions

import (
	"github.com/fxnlabs/gpublas/internal/dispatch"
	"github.com/fxnlabs/gpublas/internal/gpu"
)

// CsrotParams describes the plane rotation of complex vectors by real
// coefficients:
//
//	x[i] = c*x[i] + s*y[i]
//	y[i] = c*y[i] - s*x[i]
type CsrotParams struct {
	N    int
	X    []complex64
	IncX int
	Y    []complex64
	IncY int
	C, S float32
}

// SrotParams is CsrotParams for real vectors.
type SrotParams struct {
	N    int
	X    []float32
	IncX int
	Y    []float32
	IncY int
	C, S float32
}

func validateRot(op string, n, lenX, incx, lenY, incy int) error {
	switch {
	case n < 0:
		return gpu.Validationf(op, "n must not be negative, got %d", n)
	case incx <= 0:
		return gpu.Validationf(op, "incx must be positive, got %d", incx)
	case incy <= 0:
		return gpu.Validationf(op, "incy must be positive, got %d", incy)
	case lenX < VectorFootprint(n, incx):
		return gpu.Validationf(op, "x has %d elements, needs %d", lenX, VectorFootprint(n, incx))
	case lenY < VectorFootprint(n, incy):
		return gpu.Validationf(op, "y has %d elements, needs %d", lenY, VectorFootprint(n, incy))
	}
	return nil
}

// Validate checks the arguments of a csrot call.
func (p CsrotParams) Validate() error {
	return validateRot("csrot", p.N, len(p.X), p.IncX, len(p.Y), p.IncY)
}

// Validate checks the arguments of an srot call.
func (p SrotParams) Validate() error {
	return validateRot("srot", p.N, len(p.X), p.IncX, len(p.Y), p.IncY)
}

// RotScore ranks rotation variants by Length, then Stride.
type RotScore struct {
	Length float32 // how well n amortizes the per-lane work
	Stride float32 // stride friendliness
}

func (s RotScore) Compare(o RotScore) int {
	return dispatch.Lexicographic([]float32{s.Length, s.Stride}, []float32{o.Length, o.Stride})
}

const (
	rotSimd = 16
	// RotChunk is the number of elements one lane of a chunked rotation
	// handles.
	RotChunk = 256
	// rotChunkedMin is the length from which chunked rotations pay off.
	rotChunkedMin = 4096
)

// RotLaunch returns the launch of the lane-per-element rotation programs.
func RotLaunch(n int) gpu.LaunchOptions {
	global, local := gpu.Cover(n, rotSimd)
	return gpu.NewLaunchOptions(gpu.NewRange(global), gpu.NewRange(local))
}

// RotChunkedLaunch returns the launch of the chunked rotation programs: one
// lane per RotChunk elements.
func RotChunkedLaunch(n int) gpu.LaunchOptions {
	global, local := gpu.Cover(gpu.TileCount(n, RotChunk), rotSimd)
	return gpu.NewLaunchOptions(gpu.NewRange(global), gpu.NewRange(local)).WithTuning("chunk", RotChunk)
}

func unitStride(incx, incy int) bool { return incx == 1 && incy == 1 }

func chunkedScore(n int) RotScore {
	score := RotScore{Length: 0, Stride: 1}
	if n >= rotChunkedMin {
		score.Length = 1
	}
	return score
}

// rotation binds the two vectors of a rotation as inout operands and submits
// the program with the (n, x, incx, y, incy, c, s) signature.
func rotation(engine *gpu.Engine, prog program, opts gpu.LaunchOptions, deps []*gpu.Event,
	n int, x any, incx int, y any, incy int, c, s float32,
) (*gpu.Event, error) {
	kernel, err := prog.kernel(engine)
	if err != nil {
		return nil, err
	}
	buffers, err := bindAll(engine,
		inout(x, VectorFootprint(n, incx)),
		inout(y, VectorFootprint(n, incy)))
	if err != nil {
		return nil, err
	}
	return submit(kernel, opts, deps, n, buffers[0], incx, buffers[1], incy, c, s)
}

// csrotUnit handles contiguous vectors only.
type csrotUnit struct{ program }

func (v csrotUnit) Accept(p CsrotParams) (bool, RotScore) {
	if !unitStride(p.IncX, p.IncY) {
		return false, RotScore{}
	}
	return true, RotScore{Length: 1, Stride: 1.2}
}

func (v csrotUnit) Execute(engine *gpu.Engine, p CsrotParams, deps []*gpu.Event) (*gpu.Event, error) {
	return rotation(engine, v.program, RotLaunch(p.N), deps, p.N, p.X, p.IncX, p.Y, p.IncY, p.C, p.S)
}

// csrotStrided handles any increments, one lane per element.
type csrotStrided struct{ program }

func (v csrotStrided) Accept(p CsrotParams) (bool, RotScore) {
	return true, RotScore{Length: 0.5, Stride: 1}
}

func (v csrotStrided) Execute(engine *gpu.Engine, p CsrotParams, deps []*gpu.Event) (*gpu.Event, error) {
	return rotation(engine, v.program, RotLaunch(p.N), deps, p.N, p.X, p.IncX, p.Y, p.IncY, p.C, p.S)
}

// csrotChunked handles any increments, RotChunk elements per lane.
type csrotChunked struct{ program }

func (v csrotChunked) Accept(p CsrotParams) (bool, RotScore) {
	return true, chunkedScore(p.N)
}

func (v csrotChunked) Execute(engine *gpu.Engine, p CsrotParams, deps []*gpu.Event) (*gpu.Event, error) {
	return rotation(engine, v.program, RotChunkedLaunch(p.N), deps, p.N, p.X, p.IncX, p.Y, p.IncY, p.C, p.S)
}

// srotSimd handles any increments, one lane per element.
type srotSimd struct{ program }

func (v srotSimd) Accept(p SrotParams) (bool, RotScore) {
	score := RotScore{Length: 0.5, Stride: 1}
	if unitStride(p.IncX, p.IncY) {
		score.Stride = 1.2
	}
	return true, score
}

func (v srotSimd) Execute(engine *gpu.Engine, p SrotParams, deps []*gpu.Event) (*gpu.Event, error) {
	return rotation(engine, v.program, RotLaunch(p.N), deps, p.N, p.X, p.IncX, p.Y, p.IncY, p.C, p.S)
}

// srotChunked handles any increments, RotChunk elements per lane.
type srotChunked struct{ program }

func (v srotChunked) Accept(p SrotParams) (bool, RotScore) {
	return true, chunkedScore(p.N)
}

func (v srotChunked) Execute(engine *gpu.Engine, p SrotParams, deps []*gpu.Event) (*gpu.Event, error) {
	return rotation(engine, v.program, RotChunkedLaunch(p.N), deps, p.N, p.X, p.IncX, p.Y, p.IncY, p.C, p.S)
}

// Csrot is the variant registry of the complex plane rotation.
var Csrot = dispatch.NewRegistry[CsrotParams, RotScore]("csrot",
	csrotUnit{program{"Csrot_simd16_unit", "Csrot_simd16_unit"}},
	csrotStrided{program{"Csrot_simd16_strided", "Csrot_simd16_strided"}},
	csrotChunked{program{"Csrot_chunked", "Csrot_chunked"}},
)

// Srot is the variant registry of the real plane rotation.
var Srot = dispatch.NewRegistry[SrotParams, RotScore]("srot",
	srotSimd{program{"Srot_simd16", "Srot_simd16"}},
	srotChunked{program{"Srot_chunked", "Srot_chunked"}},
)
