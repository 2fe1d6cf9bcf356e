package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ciris-ai/ciris-core/internal/errs"
	"github.com/ciris-ai/ciris-core/internal/graph"
)

const tracerName = "ciris-core/observability"

// Call wraps a single external-I/O invocation (LLM call, tool call,
// adapter send, graph write) with a span and a correlation record.
// This is the explicit middleware that replaces the teacher's
// decorator-based call wrapping (Go has no decorators): every service
// boundary in internal/dma, internal/dispatch, internal/llm, and
// internal/tool invokes Call instead of calling out directly.
type Call struct {
	store       Store
	serviceType string
	handlerName string
}

// NewCall builds a middleware bound to one service type/handler pair.
// store may be nil, in which case correlations are only logged.
func NewCall(store Store, serviceType, handlerName string) *Call {
	return &Call{store: store, serviceType: serviceType, handlerName: handlerName}
}

// Do runs fn inside a span, records duration and error kind, and
// appends a correlation. request/response are attached as opaque
// attribute trees for later inspection.
func (c *Call) Do(ctx context.Context, actionType string, request map[string]graph.AttrValue, fn func(ctx context.Context) (map[string]graph.AttrValue, error)) (map[string]graph.AttrValue, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, c.serviceType+"."+actionType,
		trace.WithAttributes(attribute.String("handler", c.handlerName)))
	defer span.End()

	parentSpanID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		parentSpanID = sc.SpanID().String()
	}

	start := time.Now()
	resp, err := fn(ctx)
	duration := time.Since(start)

	status := "OK"
	errKind := ""
	if err != nil {
		status = "FAILED"
		if k, ok := errs.KindOf(err); ok {
			errKind = string(k)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	corr := &Correlation{
		CorrelationID: newCorrelationID(),
		Type:          CorrelationRequest,
		ServiceType:   c.serviceType,
		HandlerName:   c.handlerName,
		ActionType:    actionType,
		RequestData:   request,
		ResponseData:  resp,
		ParentSpanID:  parentSpanID,
		Status:        status,
		ErrorKind:     errKind,
		DurationMS:    duration.Milliseconds(),
		CreatedAt:     start,
	}
	if c.store != nil {
		if insertErr := c.store.InsertCorrelation(ctx, corr); insertErr != nil {
			slog.Warn("observability: failed to persist correlation", "error", insertErr, "service", c.serviceType, "action", actionType)
		}
	}
	return resp, err
}
