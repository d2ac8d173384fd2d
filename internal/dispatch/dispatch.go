// Package dispatch selects among the registered variants of an operation and
// launches the winner.
package dispatch

import (
	"cmp"

	"github.com/fxnlabs/gpublas/internal/gpu"
	"github.com/fxnlabs/gpublas/internal/metrics"
	"go.uber.org/zap"
)

// Score is a bundle of suitability criteria for one call. Compare returns a
// positive number when the receiver is preferred over other, a negative one
// when other is preferred and zero on a tie.
type Score[S any] interface {
	Compare(other S) int
}

// Variant is one strategy for computing an operation whose calls are
// described by parameter blocks of type P.
type Variant[P any, S Score[S]] interface {
	// Name identifies the variant in logs and metrics.
	Name() string

	// Program returns the device program the variant launches.
	Program() (module, entryPoint string)

	// Accept reports whether the variant can handle params and how well.
	// It must not modify params or any shared state.
	Accept(params P) (bool, S)

	// Execute binds buffers, sizes the launch and submits it after deps. It
	// does not wait for the device.
	Execute(engine *gpu.Engine, params P, deps []*gpu.Event) (*gpu.Event, error)
}

// Candidate is the outcome of the applicability test of one variant.
type Candidate[S any] struct {
	Variant    string
	Applicable bool
	Score      S
}

// Registry holds the variants of one operation in registration order. It is
// built once and never modified, so it is safe for concurrent use.
type Registry[P any, S Score[S]] struct {
	operation string
	variants  []Variant[P, S]
}

// NewRegistry creates the registry of operation. Earlier variants win ties.
func NewRegistry[P any, S Score[S]](operation string, variants ...Variant[P, S]) *Registry[P, S] {
	return &Registry[P, S]{
		operation: operation,
		variants:  append([]Variant[P, S](nil), variants...),
	}
}

// Operation returns the name of the operation.
func (r *Registry[P, S]) Operation() string { return r.operation }

// Variants returns the registered variants in registration order.
func (r *Registry[P, S]) Variants() []Variant[P, S] {
	return append([]Variant[P, S](nil), r.variants...)
}

// Evaluate runs the applicability test of every variant against params.
func (r *Registry[P, S]) Evaluate(params P) []Candidate[S] {
	candidates := make([]Candidate[S], 0, len(r.variants))
	for _, v := range r.variants {
		ok, score := v.Accept(params)
		candidates = append(candidates, Candidate[S]{Variant: v.Name(), Applicable: ok, Score: score})
	}
	return candidates
}

// Select returns the preferred applicable variant for params. It fails with
// gpu.ErrUnsupported when no variant applies.
func (r *Registry[P, S]) Select(params P) (Variant[P, S], S, error) {
	var (
		best      Variant[P, S]
		bestScore S
	)
	for _, v := range r.variants {
		ok, score := v.Accept(params)
		if !ok {
			continue
		}
		if best == nil || score.Compare(bestScore) > 0 {
			best, bestScore = v, score
		}
	}
	if best == nil {
		var zero S
		return nil, zero, gpu.Unsupportedf(r.operation, "no registered variant accepts these parameters")
	}
	return best, bestScore, nil
}

// Dispatch selects a variant for params and executes it after deps. The
// returned event completes the call.
func (r *Registry[P, S]) Dispatch(engine *gpu.Engine, params P, deps ...*gpu.Event) (*gpu.Event, error) {
	logger := engine.Logger().Named("dispatch").With(zap.String("operation", r.operation))

	variant, score, err := r.Select(params)
	if err != nil {
		r.fail(logger, err)
		return nil, err
	}
	metrics.VariantSelections.WithLabelValues(r.operation, variant.Name()).Inc()
	logger.Debug("Variant selected",
		zap.String("variant", variant.Name()),
		zap.Any("score", score),
		zap.Int("dependencies", len(deps)))

	ev, err := variant.Execute(engine, params, deps)
	if err != nil {
		r.fail(logger.With(zap.String("variant", variant.Name())), err)
		return nil, err
	}
	return ev, nil
}

func (r *Registry[P, S]) fail(logger *zap.Logger, err error) {
	category := gpu.Category(err)
	metrics.DispatchFailures.WithLabelValues(r.operation, category).Inc()
	logger.Warn("Dispatch failed", zap.String("category", category), zap.Error(err))
}

// Lexicographic compares two equally long criteria lists, the first entry
// being the most significant.
func Lexicographic(a, b []float32) int {
	for i := range a {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}
