package scoring

import (
	"context"
	"log/slog"
	"time"
)

// Evaluator is the degrade-to-default boundary around an Oracle.
type Evaluator struct {
	oracle     Oracle
	timeout    time.Duration
	log        *slog.Logger
	onFallback func(err error)
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithTimeout bounds each oracle call (default 30s).
func WithTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger for fallback events.
func WithLogger(log *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if log != nil {
			e.log = log
		}
	}
}

// WithFallbackHook registers a callback run on every fallback (metrics).
func WithFallbackHook(fn func(err error)) EvaluatorOption {
	return func(e *Evaluator) {
		e.onFallback = fn
	}
}

// NewEvaluator wraps oracle. A nil oracle always yields DefaultEvaluation.
func NewEvaluator(oracle Oracle, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		oracle:  oracle,
		timeout: 30 * time.Second,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate never fails: oracle errors and timeouts resolve to DefaultEvaluation.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) Evaluation {
	if e.oracle == nil {
		e.fallback(ErrScoringUnavailable)
		return DefaultEvaluation()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ev, err := e.oracle.Evaluate(ctx, req)
	if err != nil {
		e.fallback(err)
		return DefaultEvaluation()
	}
	return Clamp(ev)
}

func (e *Evaluator) fallback(err error) {
	e.log.Warn("scoring.fallback", "err", err)
	if e.onFallback != nil {
		e.onFallback(err)
	}
}
