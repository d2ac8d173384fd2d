package gpu

import (
	"context"
	"errors"
	"sync"

	"github.com/fxnlabs/gpublas/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// EngineOptions controls the buffer cache of an Engine.
type EngineOptions struct {
	// Memoize keeps released device allocations for reuse by later calls
	// binding the same host region with the same role and size.
	Memoize bool
	// MaxCachedBytes bounds the idle allocations kept by the cache.
	MaxCachedBytes int64
}

// Engine is the device resource layer: it builds and caches programs, binds
// host memory to device buffers and owns the command queue.
type Engine struct {
	device  Device
	library *Library
	queue   *Queue
	buffers *bufferCache
	logger  *zap.Logger

	mu       sync.RWMutex
	programs map[string]*Program
	builds   singleflight.Group
}

// NewEngine creates an engine on an initialized device.
func NewEngine(device Device, library *Library, opts EngineOptions, logger *zap.Logger) *Engine {
	logger = logger.Named("engine")
	return &Engine{
		device:   device,
		library:  library,
		queue:    newQueue(logger),
		buffers:  newBufferCache(device, opts.Memoize, opts.MaxCachedBytes),
		logger:   logger,
		programs: make(map[string]*Program),
	}
}

// Device returns the device the engine runs on.
func (e *Engine) Device() Device { return e.device }

// Logger returns the engine's named logger for callers that dispatch onto it.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// CompileOrFetch returns the program for (module, entryPoint), building it
// on first use. Concurrent first uses share one build. Failed builds are
// not cached.
func (e *Engine) CompileOrFetch(module, entryPoint string) (*Program, error) {
	key := module + "/" + entryPoint

	e.mu.RLock()
	program, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		metrics.ProgramCacheHits.Inc()
		return program, nil
	}

	v, err, _ := e.builds.Do(key, func() (any, error) {
		e.mu.RLock()
		program, ok := e.programs[key]
		e.mu.RUnlock()
		if ok {
			return program, nil
		}

		program, err := e.library.Build(module, entryPoint)
		if err != nil {
			metrics.ProgramCompilations.WithLabelValues(module, entryPoint, "failure").Inc()
			e.logger.Error("Failed to build program",
				zap.String("module", module),
				zap.String("entry_point", entryPoint),
				zap.Error(err))
			return nil, err
		}
		metrics.ProgramCompilations.WithLabelValues(module, entryPoint, "success").Inc()
		e.logger.Debug("Program built", zap.String("module", module), zap.String("entry_point", entryPoint))

		e.mu.Lock()
		e.programs[key] = program
		e.mu.Unlock()
		return program, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Program), nil
}

// GetKernel returns a fresh kernel over the cached program.
func (e *Engine) GetKernel(module, entryPoint string) (*Kernel, error) {
	program, err := e.CompileOrFetch(module, entryPoint)
	if err != nil {
		return nil, err
	}
	return &Kernel{
		engine:  e,
		program: program,
		args:    make([]any, len(program.Signature)),
		bound:   make([]bool, len(program.Signature)),
	}, nil
}

// GetInputBuffer binds the first count elements of host as a read-only
// operand. The upload is scheduled when the kernel using it is submitted.
func (e *Engine) GetInputBuffer(host any, count int) (*Buffer, error) {
	return e.bind(RoleInput, host, count)
}

// GetInOutBuffer binds the first count elements of host as an operand that
// the program updates in place.
func (e *Engine) GetInOutBuffer(host any, count int) (*Buffer, error) {
	return e.bind(RoleInOut, host, count)
}

// GetOutputBuffer binds the first count elements of host as a write-only
// operand. Its device contents are undefined until the program writes them.
func (e *Engine) GetOutputBuffer(host any, count int) (*Buffer, error) {
	return e.bind(RoleOutput, host, count)
}

func (e *Engine) bind(role Role, host any, count int) (*Buffer, error) {
	op := "bind_" + role.String()
	ptr, elem, length, err := hostSlice(host)
	if err != nil {
		return nil, newError(ErrValidation, op, err, "cannot bind host operand")
	}
	if count <= 0 || count > length {
		return nil, Validationf(op, "element count %d outside host operand of length %d", count, length)
	}

	key := bufferKey{host: ptr, role: role, elem: elem, count: count}
	mem, err := e.buffers.acquire(key)
	if err != nil {
		var gpuErr *Error
		if !errors.As(err, &gpuErr) {
			err = newError(ErrAllocation, op, err, "device allocation failed")
		}
		e.logger.Warn("Device allocation failed",
			zap.Stringer("role", role),
			zap.Stringer("elem", elem),
			zap.Int("count", count),
			zap.Error(err))
		return nil, err
	}
	return &Buffer{key: key, host: host, mem: mem, cache: e.buffers}, nil
}

// Marker returns an event satisfied once every dep is satisfied.
func (e *Engine) Marker(deps ...*Event) (*Event, error) {
	for i, dep := range deps {
		if dep == nil {
			return nil, Validationf("marker", "dependency %d is nil", i)
		}
	}
	return e.queue.enqueue(command{
		name: "marker",
		deps: append([]*Event(nil), deps...),
	}), nil
}

// Finish blocks until all work submitted so far has completed.
func (e *Engine) Finish(ctx context.Context) error {
	return e.queue.finish(ctx)
}

// Close waits for outstanding work and frees cached device memory.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.Finish(ctx); err != nil {
		return err
	}
	e.buffers.purge()
	return nil
}
