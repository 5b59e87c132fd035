package fchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NeboLoop/fchat-go-sdk/frame"
)

// HandlerFunc processes one dispatched frame. Replies go through s.
type HandlerFunc func(ctx context.Context, s Sender, msg frame.Message) error

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router's logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// WithRouterMetrics counts handler failures on m.
func WithRouterMetrics(m *Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithContinueOnError logs handler failures and keeps dispatching instead of
// ending the session.
func WithContinueOnError() RouterOption {
	return func(r *Router) { r.continueOnError = true }
}

// Router maps frame codes to handlers and runs the dispatch loop.
// Handlers must be registered before Run.
type Router struct {
	handlers        map[string]HandlerFunc
	logger          *slog.Logger
	metrics         *Metrics
	tracer          trace.Tracer
	continueOnError bool
}

// NewRouter returns an empty router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h for code, replacing any previous handler.
func (r *Router) Handle(code string, h HandlerFunc) {
	r.handlers[code] = h
}

// Handles reports whether a handler is registered for code.
func (r *Router) Handles(code string) bool {
	_, ok := r.handlers[code]
	return ok
}

// Run reads frames until the connection closes, calling one handler at a
// time in arrival order. Frames with no handler are dropped. A closed
// connection ends the loop with a nil error; a read error, or a handler
// error unless WithContinueOnError is set, ends it with that error.
func (r *Router) Run(ctx context.Context, conn MessageConn) error {
	for {
		msg, err := conn.Read(ctx)
		if errors.Is(err, ErrClosed) {
			r.logger.Info("no more incoming messages")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		h, ok := r.handlers[msg.Code]
		if !ok {
			r.logger.Debug("unhandled message", "code", msg.Code)
			continue
		}

		if err := r.dispatch(ctx, conn, h, msg); err != nil {
			r.metrics.handlerFailed(msg.Code)
			if !r.continueOnError {
				return fmt.Errorf("handle %s: %w", msg.Code, err)
			}
			r.logger.Warn("handler failed", "code", msg.Code, "error", err)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, s Sender, h HandlerFunc, msg frame.Message) error {
	ctx, span := r.tracer.Start(ctx, "fchat.dispatch "+msg.Code,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("fchat.code", msg.Code)),
	)
	defer span.End()

	err := h(ctx, s, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
