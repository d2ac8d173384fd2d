package gpu

import (
	"time"

	"github.com/fxnlabs/gpublas/internal/metrics"
	"go.uber.org/zap"
)

// Kernel binds arguments and a launch descriptor to a built program for a
// single submission. Kernels are not shared between calls.
type Kernel struct {
	engine  *Engine
	program *Program
	args    []any
	bound   []bool
	buffers []*Buffer
	options *LaunchOptions
	closed  bool
}

// Program returns the program the kernel launches.
func (k *Kernel) Program() *Program { return k.program }

// SetArg binds value to the positional argument index. The value must match
// the kind declared for that position: int, float32, or a *Buffer of the
// declared element type. The kernel owns every buffer passed to SetArg,
// including one that is rejected.
func (k *Kernel) SetArg(index int, value any) error {
	const op = "set_arg"
	name := k.program.Module + "/" + k.program.EntryPoint
	reject := func(err error) error {
		if buf, isBuf := value.(*Buffer); isBuf && buf != nil {
			buf.Release()
		}
		return err
	}
	if k.closed {
		return reject(newError(ErrBinding, op, nil, "%s: kernel already submitted", name))
	}
	if index < 0 || index >= len(k.program.Signature) {
		return reject(newError(ErrBinding, op, nil, "%s: argument index %d out of range, signature has %d arguments", name, index, len(k.program.Signature)))
	}

	kind := k.program.Signature[index]
	ok := false
	switch kind {
	case ArgInt:
		_, ok = value.(int)
	case ArgFloat:
		_, ok = value.(float32)
	case ArgFloatBuffer, ArgComplexBuffer:
		var buf *Buffer
		buf, ok = value.(*Buffer)
		ok = ok && buf != nil && buf.Elem() == kind.elem()
		if ok {
			k.buffers = append(k.buffers, buf)
		}
	}
	if !ok {
		return reject(newError(ErrBinding, op, nil, "%s: argument %d expects %s, got %T", name, index, kind, value))
	}

	k.args[index] = value
	k.bound[index] = true
	return nil
}

// SetOptions sets the launch descriptor.
func (k *Kernel) SetOptions(opts LaunchOptions) error {
	if err := opts.Validate(); err != nil {
		return newError(ErrBinding, "set_options", err, "%s: invalid launch descriptor", k.program.EntryPoint)
	}
	k.options = &opts
	return nil
}

// Discard releases the buffers bound so far without launching.
func (k *Kernel) Discard() {
	k.closed = true
	for _, buf := range k.buffers {
		buf.Release()
	}
}

// Submit enqueues the launch after deps. Uploads of input and inout buffers
// wait for deps, the program waits for the uploads, and read-backs of inout
// and output buffers wait for the program. The returned event is satisfied
// once the read-backs have completed and reports deps as its dependencies.
// Submit never blocks on device work.
func (k *Kernel) Submit(deps []*Event) (*Event, error) {
	const op = "submit"
	program := k.program
	if k.closed {
		return nil, newError(ErrBinding, op, nil, "%s: kernel already submitted", program.EntryPoint)
	}
	for i, ok := range k.bound {
		if !ok {
			k.Discard()
			return nil, newError(ErrBinding, op, nil, "%s: argument %d (%s) not set", program.EntryPoint, i, program.Signature[i])
		}
	}
	if k.options == nil {
		k.Discard()
		return nil, newError(ErrBinding, op, nil, "%s: launch descriptor not set", program.EntryPoint)
	}
	for i, dep := range deps {
		if dep == nil {
			k.Discard()
			return nil, Validationf(op, "%s: dependency %d is nil", program.EntryPoint, i)
		}
	}
	k.closed = true

	deps = append([]*Event(nil), deps...)
	resolved := make(Args, len(k.args))
	for i, arg := range k.args {
		if buf, ok := arg.(*Buffer); ok {
			resolved[i] = buf.mem.Data
			continue
		}
		resolved[i] = arg
	}
	buffers := uniqueBuffers(k.buffers)
	queue := k.engine.queue

	launchDeps := append([]*Event(nil), deps...)
	for _, buf := range buffers {
		if buf.Role().uploads() {
			launchDeps = append(launchDeps, queue.enqueue(command{
				name: program.EntryPoint + ":upload",
				deps: deps,
				run:  buf.upload,
			}))
		}
	}

	opts := *k.options
	device := k.engine.device
	logger := k.engine.logger
	launch := queue.enqueue(command{
		name: program.EntryPoint,
		deps: launchDeps,
		run: func() error {
			start := time.Now()
			err := device.Launch(program, opts, resolved)
			elapsed := time.Since(start)
			metrics.LaunchDuration.WithLabelValues(program.EntryPoint).Observe(float64(elapsed.Microseconds()) / 1000)
			logger.Debug("Program executed",
				zap.String("entry_point", program.EntryPoint),
				zap.Stringer("options", opts),
				zap.Duration("elapsed", elapsed))
			return err
		},
	})

	completeDeps := []*Event{launch}
	for _, buf := range buffers {
		if buf.Role().downloads() {
			completeDeps = append(completeDeps, queue.enqueue(command{
				name: program.EntryPoint + ":readback",
				deps: []*Event{launch},
				run:  buf.download,
			}))
		}
	}

	return queue.enqueue(command{
		name:  program.EntryPoint + ":complete",
		deps:  deps,
		after: completeDeps,
		cleanup: func() {
			for _, buf := range buffers {
				buf.Release()
			}
		},
	}), nil
}

func uniqueBuffers(buffers []*Buffer) []*Buffer {
	seen := make(map[*Buffer]bool, len(buffers))
	out := make([]*Buffer, 0, len(buffers))
	for _, buf := range buffers {
		if !seen[buf] {
			seen[buf] = true
			out = append(out, buf)
		}
	}
	return out
}
