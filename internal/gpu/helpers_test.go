package gpu

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testManifest = `
modules:
  - name: test_vector
    entryPoints:
      - name: Axpy
        args: [int, float, float_buffer, float_buffer]
      - name: Scale
        args: [int, float, float_buffer]
      - name: Clobber
        args: [int, float_buffer]
      - name: Conj
        args: [int, complex_buffer]
      - name: Fail
        args: []
      - name: Panic
        args: []
      - name: Block
        args: []
      - name: Missing
        args: [int]
      - name: BadArg
        args: [matrix]
`

// lanes calls fn for every global X index of g below n.
func lanes(g WorkGroup, n int, fn func(i int)) {
	for lx := 0; lx < g.Local.X; lx++ {
		if i := g.GlobalX(lx); i < n {
			fn(i)
		}
	}
}

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	manifest, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	lib := NewLibrary(manifest)
	lib.Register("Axpy", func(g WorkGroup, args Args) error {
		n, a, x, y := args.Int(0), args.Float32(1), args.Float32s(2), args.Float32s(3)
		lanes(g, n, func(i int) { y[i] += a * x[i] })
		return nil
	})
	lib.Register("Scale", func(g WorkGroup, args Args) error {
		n, a, x := args.Int(0), args.Float32(1), args.Float32s(2)
		lanes(g, n, func(i int) { x[i] *= a })
		return nil
	})
	lib.Register("Clobber", func(g WorkGroup, args Args) error {
		n, x := args.Int(0), args.Float32s(1)
		lanes(g, n, func(i int) { x[i] = -1 })
		return nil
	})
	lib.Register("Conj", func(g WorkGroup, args Args) error {
		n, x := args.Int(0), args.Complex64s(1)
		lanes(g, n, func(i int) { x[i] = complex(real(x[i]), -imag(x[i])) })
		return nil
	})
	lib.Register("Fail", func(WorkGroup, Args) error {
		return errors.New("boom")
	})
	lib.Register("Panic", func(WorkGroup, Args) error {
		panic("lane fault")
	})
	return lib
}

func newTestEngine(t *testing.T, lib *Library, memoryBytes int64, opts EngineOptions) *Engine {
	t.Helper()
	device := NewHostDevice(memoryBytes, 4, zap.NewNop())
	require.NoError(t, device.Initialize())
	engine := NewEngine(device, lib, opts, zap.NewNop())
	t.Cleanup(func() {
		_ = engine.Close(context.Background())
	})
	return engine
}

// submitAxpy runs y[:n] += a*x[:n] with y bound in yRole.
func submitAxpy(t *testing.T, e *Engine, n int, a float32, x, y []float32, yRole Role, deps ...*Event) *Event {
	t.Helper()
	kernel, err := e.GetKernel("test_vector", "Axpy")
	require.NoError(t, err)

	xBuf, err := e.GetInputBuffer(x, n)
	require.NoError(t, err)
	var yBuf *Buffer
	switch yRole {
	case RoleInOut:
		yBuf, err = e.GetInOutBuffer(y, n)
	case RoleOutput:
		yBuf, err = e.GetOutputBuffer(y, n)
	default:
		yBuf, err = e.GetInputBuffer(y, n)
	}
	require.NoError(t, err)

	require.NoError(t, kernel.SetArg(0, n))
	require.NoError(t, kernel.SetArg(1, a))
	require.NoError(t, kernel.SetArg(2, xBuf))
	require.NoError(t, kernel.SetArg(3, yBuf))
	global, local := Cover(n, 16)
	require.NoError(t, kernel.SetOptions(NewLaunchOptions(NewRange(global), NewRange(local))))

	ev, err := kernel.Submit(deps)
	require.NoError(t, err)
	return ev
}

// submitNoArgs launches a program without arguments over a single group.
func submitNoArgs(t *testing.T, e *Engine, entryPoint string, deps ...*Event) *Event {
	t.Helper()
	kernel, err := e.GetKernel("test_vector", entryPoint)
	require.NoError(t, err)
	require.NoError(t, kernel.SetOptions(NewLaunchOptions(NewRange(1), NewRange(1))))
	ev, err := kernel.Submit(deps)
	require.NoError(t, err)
	return ev
}

// axpy submits y[:n] += a*x[:n] with y updated in place. It reports
// failures instead of stopping the test, so it can run off the test
// goroutine.
func axpy(e *Engine, n int, a float32, x, y []float32, deps ...*Event) (*Event, error) {
	kernel, err := e.GetKernel("test_vector", "Axpy")
	if err != nil {
		return nil, err
	}
	xBuf, err := e.GetInputBuffer(x, n)
	if err != nil {
		return nil, err
	}
	yBuf, err := e.GetInOutBuffer(y, n)
	if err != nil {
		xBuf.Release()
		return nil, err
	}
	global, local := Cover(n, 16)
	for i, arg := range []any{n, a, xBuf, yBuf} {
		if err := kernel.SetArg(i, arg); err != nil {
			kernel.Discard()
			yBuf.Release()
			return nil, err
		}
	}
	if err := kernel.SetOptions(NewLaunchOptions(NewRange(global), NewRange(local))); err != nil {
		kernel.Discard()
		return nil, err
	}
	return kernel.Submit(deps)
}
