package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context. It travels in a
// context.Context from the RPC responder down to the cache manager and the
// transfer engine so that every line logged for one call carries the same
// correlation fields.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Component string    // Subsystem: rpc, cachemanager, downloader, metadata
	Procedure string    // Selector name (QueueSource, GetCacheLocation, ...)
	CallUID   uint64    // Envelope uid of the RPC call being served
	ContentID string    // Content id the operation refers to
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for the given component.
func NewLogContext(component string) *LogContext {
	return &LogContext{
		Component: component,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithCall returns a copy bound to an RPC call.
func (lc *LogContext) WithCall(procedure string, uid uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Procedure = procedure
		clone.CallUID = uid
	}
	return clone
}

// WithContentID returns a copy with the content id set
func (lc *LogContext) WithContentID(id string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ContentID = id
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}

// ContentContext returns ctx annotated with a content id, cloning any
// LogContext already present.
func ContentContext(ctx context.Context, id string) context.Context {
	lc := FromContext(ctx)
	if lc == nil {
		lc = &LogContext{StartTime: time.Now()}
	}
	return WithContext(ctx, lc.WithContentID(id))
}
