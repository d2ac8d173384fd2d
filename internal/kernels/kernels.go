// Package kernels holds the device program manifest and the host
// implementations of its entry points.
package kernels

import (
	_ "embed"
	"fmt"

	"github.com/fxnlabs/gpublas/internal/gpu"
)

//go:embed programs.yaml
var manifest []byte

// Manifest returns the embedded program manifest.
func Manifest() []byte { return manifest }

// NewLibrary returns a library with every program of the manifest
// registered.
func NewLibrary() (*gpu.Library, error) {
	m, err := gpu.ParseManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("kernels: %w", err)
	}
	lib := gpu.NewLibrary(m)
	for name, fn := range programs {
		lib.Register(name, fn)
	}
	return lib, nil
}

var programs = map[string]gpu.KernelFunc{
	"Ssyr_early_return_simd16x1x1_upper": ssyrTiled(true),
	"Ssyr_early_return_simd16x1x1_lower": ssyrTiled(false),
	"Ssyr_naive_simd64":                  ssyrNaive,
	"Csrot_simd16_unit":                  csrotLane,
	"Csrot_simd16_strided":               csrotLane,
	"Csrot_chunked":                      csrotChunked,
	"Srot_simd16":                        srotLane,
	"Srot_chunked":                       srotChunked,
}
