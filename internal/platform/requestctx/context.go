// Package requestctx carries per-request state between the HTTP middleware chain,
// the handlers and the access log.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	traceKey
	tagsKey
)

var noopLogger = zap.NewNop()

// TraceInfo is the Cloud Trace view of the server span handling the request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Tags is filled in while a request travels down the chain: the auth middleware
// records the customer, order handlers record the order they touched. The access
// log reads it back once the handler returns.
type Tags struct {
	mu      sync.Mutex
	userID  string
	orderID string
}

// UserID returns the authenticated customer, if any.
func (t *Tags) UserID() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userID
}

// OrderID returns the order the request acted on, if any.
func (t *Tags) OrderID() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.orderID
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger stores the request logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(orBackground(ctx), loggerKey, logger)
}

// Logger returns the request logger, or a shared no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return noopLogger
}

// NoopLogger is the logger Logger falls back to.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID is a shortcut for the error envelope.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithTags attaches an empty tag set and returns it to the caller for reading later.
func WithTags(ctx context.Context) (context.Context, *Tags) {
	tags := &Tags{}
	return context.WithValue(orBackground(ctx), tagsKey, tags), tags
}

// SetUserID records the customer on the request's tags. It is a no-op outside a tagged request.
func SetUserID(ctx context.Context, userID string) {
	if tags := tagsFrom(ctx); tags != nil {
		tags.mu.Lock()
		tags.userID = userID
		tags.mu.Unlock()
	}
}

// SetOrderID records the order on the request's tags. It is a no-op outside a tagged request.
func SetOrderID(ctx context.Context, orderID string) {
	if tags := tagsFrom(ctx); tags != nil {
		tags.mu.Lock()
		tags.orderID = orderID
		tags.mu.Unlock()
	}
}

func tagsFrom(ctx context.Context) *Tags {
	if ctx == nil {
		return nil
	}
	tags, _ := ctx.Value(tagsKey).(*Tags)
	return tags
}
