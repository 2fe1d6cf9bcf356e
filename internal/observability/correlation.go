// Package observability wires OpenTelemetry tracing/metrics and the
// correlation log: an append-only record of every external-I/O call,
// used in place of the teacher's decorator pattern (Go has no
// decorators) as an explicit middleware around service calls.
package observability

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/internal/graph"
)

// CorrelationType discriminates the correlation record kind.
type CorrelationType string

const (
	CorrelationRequest   CorrelationType = "REQUEST"
	CorrelationResponse  CorrelationType = "RESPONSE"
	CorrelationTraceSpan CorrelationType = "TRACE_SPAN"
)

// Correlation is an append-only telemetry record for one external-I/O
// call (§3's Correlation data model).
type Correlation struct {
	CorrelationID string
	Type          CorrelationType
	ServiceType   string
	HandlerName   string
	ActionType    string
	RequestData   map[string]graph.AttrValue
	ResponseData  map[string]graph.AttrValue
	ParentSpanID  string
	Status        string
	ErrorKind     string
	DurationMS    int64
	CreatedAt     time.Time
}

// Store is the persistence contract for correlations, implemented by
// internal/persistence/sqlite.DB.
type Store interface {
	InsertCorrelation(ctx context.Context, c *Correlation) error
	RecentCorrelations(ctx context.Context, serviceType string, n int) ([]*Correlation, error)
}
