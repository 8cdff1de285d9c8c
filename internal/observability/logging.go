// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

const (
	CorrelationID LogContextKey = "correlation_id"
)

// LoggingConfig toggles the automated logging layers. Grant writes are logged
// by default since they are the audit trail for who opened access to what.
type LoggingConfig struct {
	EnableGrantAudit    bool
	EnableServiceCalls  bool
	EnableCorrelationID bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableGrantAudit:    true,
	EnableServiceCalls:  true,
	EnableCorrelationID: true,
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id := ctx.Value(CorrelationID); id != nil {
		return id.(string)
	}
	return ""
}

// GrantAuditLogger records grant-table mutations. Every row created or
// removed changes who can see a resource, so each write gets a line.
type GrantAuditLogger struct {
	table  string
	logger *Logger
}

// NewGrantAuditLogger creates an audit logger for the given table.
func NewGrantAuditLogger(table string) *GrantAuditLogger {
	return &GrantAuditLogger{table: table, logger: GlobalLogger}
}

func (l *GrantAuditLogger) log(ctx context.Context, operation string, fields map[string]interface{}) {
	if !Config.EnableGrantAudit {
		return
	}
	attrs := []any{
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "grant "+operation, attrs...)
}

// LogCreate records grant rows being inserted.
func (l *GrantAuditLogger) LogCreate(ctx context.Context, fields map[string]interface{}) {
	l.log(ctx, "create", fields)
}

// LogDelete records grant rows being removed.
func (l *GrantAuditLogger) LogDelete(ctx context.Context, fields map[string]interface{}) {
	l.log(ctx, "delete", fields)
}

// LogError records a failed grant mutation.
func (l *GrantAuditLogger) LogError(ctx context.Context, err error, operation string) {
	if !Config.EnableGrantAudit {
		return
	}
	l.logger.ErrorContext(ctx, "grant mutation failed",
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
}

// StructuredLogger provides a general-purpose structured logger.
type StructuredLogger struct{}

// NewStructuredLogger creates a new StructuredLogger instance.
func NewStructuredLogger() *StructuredLogger {
	return &StructuredLogger{}
}

// LogServiceCall logs a service method call.
func (l *StructuredLogger) LogServiceCall(ctx context.Context, service, method string, fields map[string]interface{}) {
	if !Config.EnableServiceCalls {
		return
	}
	attrs := []any{
		slog.String("service", service),
		slog.String("method", method),
		slog.String("type", "service_call"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "service call", attrs...)
}
