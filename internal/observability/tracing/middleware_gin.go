package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/reconcile/internal/event"
	obscontext "github.com/smallbiznis/reconcile/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "reconcile/http"

// Span attributes describing how an inbound event was reconciled.
const (
	AttrChannel   = attribute.Key("reconcile.channel")
	AttrOutcome   = attribute.Key("reconcile.outcome")
	AttrActorType = attribute.Key("reconcile.actor_type")
)

type middlewareOptions struct {
	provider trace.TracerProvider
}

type MiddlewareOption func(*middlewareOptions)

// WithTracerProvider overrides the global provider.
func WithTracerProvider(tp trace.TracerProvider) MiddlewareOption {
	return func(o *middlewareOptions) {
		if tp != nil {
			o.provider = tp
		}
	}
}

// GinMiddleware opens a server span per request. Route groups downstream set
// the channel and handlers set the outcome; both are read back once the
// handler chain returns.
func GinMiddleware(opts ...MiddlewareOption) gin.HandlerFunc {
	o := middlewareOptions{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	tracer := o.provider.Tracer(tracerName)

	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)...)
		span.SetAttributes(reconcileAttributes(c)...)

		// Webhooks answer 200 even when processing failed, so the outcome
		// decides the span status as well as the HTTP code.
		outcome := strings.TrimSpace(c.GetString(obscontext.OutcomeKey))
		if status >= http.StatusInternalServerError || outcome == event.OutcomeFailed.String() {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "reconcile failed")
		}
	}
}

func reconcileAttributes(c *gin.Context) []attribute.KeyValue {
	ctx := c.Request.Context()
	attrs := make([]attribute.KeyValue, 0, 3)
	if channel := obscontext.ChannelFromContext(ctx); channel != "" {
		attrs = append(attrs, AttrChannel.String(channel))
	}
	if outcome := strings.TrimSpace(c.GetString(obscontext.OutcomeKey)); outcome != "" {
		attrs = append(attrs, AttrOutcome.String(outcome))
	}
	// Actor ids are bearer subjects; only the type goes on the span.
	if actorType, _ := obscontext.ActorFromContext(ctx); actorType != "" {
		attrs = append(attrs, AttrActorType.String(actorType))
	}
	return attrs
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
