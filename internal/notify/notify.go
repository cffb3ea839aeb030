package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/cartstate/pkg/logger"
)

// Severity classifies a notification for display.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Messages shown to the shopper. The set is fixed.
const (
	MsgOutOfStock     = "Requested quantity is out of stock"
	MsgAddFailed      = "Failed to add product"
	MsgProductAdded   = "Product added to cart"
	MsgRemoveFailed   = "Failed to remove product"
	MsgQuantityFailed = "Failed to change product quantity"
)

// Notification is a user-facing message produced by a cart operation.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	ProductID int64     `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds a notification about productID.
func New(severity Severity, message string, productID int64) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		ProductID: productID,
		CreatedAt: time.Now().UTC(),
	}
}

// Info builds an informational notification.
func Info(message string, productID int64) Notification {
	return New(SeverityInfo, message, productID)
}

// Error builds an error notification.
func Error(message string, productID int64) Notification {
	return New(SeverityError, message, productID)
}

// Sink receives notifications. Implementations must not block for long and
// have no way to report failure back to the caller.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(context.Context, Notification) {})

// LogSink writes notifications to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through l.
func NewLogSink(l *slog.Logger) *LogSink {
	return &LogSink{logger: l}
}

// Notify logs n at info or warn level depending on its severity.
func (s *LogSink) Notify(ctx context.Context, n Notification) {
	level := slog.LevelInfo
	if n.Severity == SeverityError {
		level = slog.LevelWarn
	}
	logger.WithContext(ctx, s.logger).Log(ctx, level, "cart notification",
		slog.String("message", n.Message),
		slog.String("severity", string(n.Severity)),
		slog.Int64("product_id", n.ProductID),
	)
}

// Fanout delivers each notification to every sink in order.
type Fanout []Sink

// Notify forwards n to all sinks.
func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, s := range f {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}
