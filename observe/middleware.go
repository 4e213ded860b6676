package observe

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/llmops/llm"
)

// Middleware wraps provider calls with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: WrapProvider returns a provider safe for concurrent use when
//     the wrapped provider is.
//   - Context: the call id is read from ctx and generated when absent.
//   - Errors: errors from the wrapped provider are recorded and returned unchanged.
//   - Ownership: requests and responses are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability
// components. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// WrapProvider returns p instrumented with a span, call metrics and a log
// entry per call. For streams the span stays open until the stream is
// closed and records the stream's terminal error.
func (m *Middleware) WrapProvider(p llm.Provider) (llm.Provider, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	return &observedProvider{
		Provider: p,
		mw:       m,
		logger:   m.logger.WithProvider(p.Name()),
	}, nil
}

type observedProvider struct {
	llm.Provider
	mw     *Middleware
	logger Logger
}

func (p *observedProvider) meta(ctx context.Context, req *llm.Request, op string) (context.Context, CallMeta) {
	ctx, id := EnsureCallID(ctx)
	model := p.DefaultModel()
	if req != nil && req.Model != "" {
		model = req.Model
	}
	return ctx, CallMeta{Provider: p.Name(), Model: model, Operation: op, CallID: id}
}

func (p *observedProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	ctx, meta := p.meta(ctx, req, OperationComplete)
	ctx, span := p.mw.tracer.StartSpan(ctx, meta)
	start := time.Now()

	resp, err := p.Provider.Complete(ctx, req)

	p.mw.tracer.EndSpan(span, err)
	p.finish(ctx, meta, time.Since(start), err)
	return resp, err
}

func (p *observedProvider) CompleteStream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	ctx, meta := p.meta(ctx, req, OperationStream)
	ctx, span := p.mw.tracer.StartSpan(ctx, meta)
	start := time.Now()

	s, err := p.Provider.CompleteStream(ctx, req)
	if err != nil {
		p.mw.tracer.EndSpan(span, err)
		p.finish(ctx, meta, time.Since(start), err)
		return nil, err
	}

	return &observedStream{Stream: s, end: func(err error) {
		p.mw.tracer.EndSpan(span, err)
		p.finish(ctx, meta, time.Since(start), err)
	}}, nil
}

func (p *observedProvider) finish(ctx context.Context, meta CallMeta, d time.Duration, err error) {
	p.mw.metrics.RecordCall(ctx, meta, d, err)

	fields := []Field{
		{Key: "llm.operation", Value: meta.Operation},
		{Key: "llm.model", Value: meta.Model},
		{Key: "duration_ms", Value: float64(d.Milliseconds())},
	}
	if err != nil {
		fields = append(fields,
			Field{Key: "error", Value: err.Error()},
			Field{Key: "error_kind", Value: string(llm.KindOf(err))},
		)
		p.logger.Error(ctx, "provider call failed", fields...)
		return
	}
	p.logger.Debug(ctx, "provider call completed", fields...)
}

// observedStream reports the stream's outcome exactly once, on Close.
type observedStream struct {
	llm.Stream
	once sync.Once
	end  func(err error)
}

func (s *observedStream) Close() error {
	err := s.Stream.Close()
	s.once.Do(func() { s.end(s.Stream.Err()) })
	return err
}
