package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds pipeline-scoped logging context: which VXID and stream
// position a log line concerns. It is attached to the ambient context.Context
// that flows through the decode/build/store/session path so that warnings and
// errors surfaced deep in the pipeline carry enough information to locate the
// offending transaction without threading extra parameters everywhere.
type LogContext struct {
	TraceID   string // optional correlation ID for a single run of the pipeline
	VXID      uint32
	Component string // stream, decoder, builder, store, session
	StartTime time.Time
}

// WithContext returns a new context carrying the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a given VXID.
func NewLogContext(vxid uint32) *LogContext {
	return &LogContext{VXID: vxid, StartTime: time.Now()}
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithComponent returns a copy with the component set.
func (lc *LogContext) WithComponent(component string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Component = component
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
