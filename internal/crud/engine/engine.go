// Package engine executes requests: it resolves the merged configuration
// of the request type, runs the verb's pipeline against a storage unit of
// work and translates every failure into a response.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/conduit-lang/crudkit/internal/crud/config"
	"github.com/conduit-lang/crudkit/internal/crud/faults"
	"github.com/conduit-lang/crudkit/internal/crud/hooks"
	"github.com/conduit-lang/crudkit/internal/crud/mapper"
	"github.com/conduit-lang/crudkit/internal/crud/profile"
	"github.com/conduit-lang/crudkit/internal/crud/request"
	"github.com/conduit-lang/crudkit/internal/crud/response"
	"github.com/conduit-lang/crudkit/internal/crud/storage"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrValidationFailed wraps errors returned by the validator
	ErrValidationFailed = errors.New("validation failed")

	// ErrNoSelector is returned when a verb needs a selector and none applies
	ErrNoSelector = errors.New("no selector configured")

	// ErrNoStorage is returned when neither an opener nor an ambient unit
	// of work is available
	ErrNoStorage = errors.New("no storage configured")
)

const tracerName = "github.com/conduit-lang/crudkit/engine"

// Validator checks requests before dispatch. Requests embedding
// request.NoValidation skip it.
type Validator interface {
	Validate(ctx context.Context, req any) error
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(ctx context.Context, req any) error

// Validate implements Validator
func (fn ValidatorFunc) Validate(ctx context.Context, req any) error {
	return fn(ctx, req)
}

// Engine dispatches requests. It is safe for concurrent use.
type Engine struct {
	registry  *profile.Registry
	opener    storage.Opener
	mapper    mapper.Mapper
	resolver  hooks.Resolver
	validator Validator
	handler   faults.Handler
	logger    *zap.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	hooks     *hooks.Executor
}

// Option configures an engine
type Option func(*Engine)

// WithMapper replaces the default object mapper
func WithMapper(m mapper.Mapper) Option {
	return func(e *Engine) {
		if m != nil {
			e.mapper = m
		}
	}
}

// WithResolver sets the service resolver used by type-resolved hooks
func WithResolver(r hooks.Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithValidator sets the pre-dispatch validator
func WithValidator(v Validator) Option {
	return func(e *Engine) {
		e.validator = v
	}
}

// WithErrorHandler replaces the engine-wide fault handler
func WithErrorHandler(h faults.Handler) Option {
	return func(e *Engine) {
		if h != nil {
			e.handler = h
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records every dispatch
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer spans are started on
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New creates an engine resolving configurations from registry and
// opening a unit of work per request from opener. opener may be nil when
// every request carries an ambient unit of work.
func New(registry *profile.Registry, opener storage.Opener, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		opener:   opener,
		mapper:   mapper.New(),
		handler:  faults.DefaultHandler{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.hooks = hooks.NewExecutor(e.resolver)
	return e
}

// Send executes req. It never panics on request failures and never
// returns an error; faults are carried in the response.
func (e *Engine) Send(ctx context.Context, req any) response.Response {
	start := time.Now()

	desc, err := request.Describe(req)
	if err != nil {
		resp := e.handler.Handle(ctx, faults.Failed(err))
		e.metrics.observe("unknown", OutcomeError, time.Since(start))
		return resp
	}
	verb := desc.Verb.String()
	requestName := typeinfo.Name(typeinfo.TypeOfValue(req))

	ctx, span := e.tracer.Start(ctx, "crudkit.Send",
		trace.WithAttributes(
			attribute.String("crudkit.request", requestName),
			attribute.String("crudkit.verb", verb),
			attribute.String("crudkit.entity", typeinfo.Name(desc.Entity)),
		),
	)
	defer span.End()

	result, cfg, err := e.execute(ctx, req, desc)
	took := time.Since(start)

	if err == nil {
		e.logger.Debug("request executed",
			zap.String("request", requestName),
			zap.String("verb", verb),
			zap.Duration("took", took),
		)
		e.metrics.observe(verb, OutcomeOK, took)
		span.SetStatus(codes.Ok, "")
		return response.Success(result)
	}

	f := faults.From(err)
	resp := e.dispatch(ctx, cfg, desc, f)

	fields := []zap.Field{
		zap.String("request", requestName),
		zap.String("verb", verb),
		zap.String("fault", f.Kind.String()),
		zap.Duration("took", took),
	}
	switch {
	case f.Kind == faults.KindRequestCanceled:
		e.logger.Debug("request canceled", fields...)
		e.metrics.observe(verb, OutcomeCanceled, took)
		span.SetStatus(codes.Error, "canceled")
		return resp
	case f.Kind == faults.KindFailedToFind:
		e.logger.Warn("entity not found", fields...)
	default:
		e.logger.Error("request failed", append(fields, zap.Error(f))...)
	}

	span.RecordError(f)
	if resp.OK() {
		e.metrics.observe(verb, OutcomeOK, took)
		span.SetStatus(codes.Ok, "")
	} else {
		e.metrics.observe(verb, OutcomeError, took)
		span.SetStatus(codes.Error, f.Kind.String())
	}
	return resp
}

// dispatch hands a fault to the entity's handler, else the request's,
// else the engine's
func (e *Engine) dispatch(ctx context.Context, cfg *config.RequestConfig, desc request.Descriptor, f *faults.Fault) response.Response {
	if cfg != nil {
		entityType := f.EntityType
		if entityType == nil {
			entityType = desc.Entity
		}
		if h := cfg.ErrorHandler(entityType); h != nil {
			return h.Handle(ctx, f)
		}
	}
	return e.handler.Handle(ctx, f)
}

func (e *Engine) execute(ctx context.Context, req any, desc request.Descriptor) (any, *config.RequestConfig, error) {
	cfg, err := e.registry.Resolve(typeinfo.TypeOfValue(req))
	if err != nil {
		return nil, nil, faults.Failed(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, cfg, faults.Canceled(err)
	}

	if e.validator != nil && !request.SkipsValidation(req) {
		if err := e.validator.Validate(ctx, req); err != nil {
			if faults.IsCancellation(err) {
				return nil, cfg, faults.Canceled(err)
			}
			return nil, cfg, faults.FailedFor(desc.Entity, fmt.Errorf("%w: %w", ErrValidationFailed, err))
		}
	}

	uow, release, err := e.unitOfWork(ctx)
	if err != nil {
		return nil, cfg, faults.Wrap(desc.Entity, err)
	}
	defer release()

	set, err := uow.Set(desc.Entity)
	if err != nil {
		return nil, cfg, faults.FailedFor(desc.Entity, err)
	}

	x := &execution{
		engine: e,
		req:    req,
		desc:   desc,
		cfg:    cfg,
		ec:     cfg.Entity(desc.Entity),
		uow:    uow,
		set:    set,
	}
	result, err := x.run(ctx)
	return result, cfg, err
}

// unitOfWork returns the ambient unit of work of ctx, or opens one that
// the returned release function closes
func (e *Engine) unitOfWork(ctx context.Context) (storage.Context, func(), error) {
	if sc, ok := storage.FromContext(ctx); ok {
		return sc, func() {}, nil
	}
	if e.opener == nil {
		return nil, nil, ErrNoStorage
	}
	sc, err := e.opener.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return sc, func() {
		if err := sc.Close(); err != nil {
			e.logger.Warn("failed to close storage", zap.Error(err))
		}
	}, nil
}

// Send executes req and returns its typed result. Failed, canceled and
// payload-less responses return the zero value and the response error.
func Send[T any](ctx context.Context, e *Engine, req any) (T, error) {
	resp := e.Send(ctx, req)
	var zero T
	if err := resp.Err(); err != nil {
		return zero, err
	}
	if resp.Result == nil {
		return zero, nil
	}
	v, ok := resp.Result.(T)
	if !ok {
		return zero, fmt.Errorf("result %T is not %s", resp.Result, typeinfo.Of[T]())
	}
	return v, nil
}
