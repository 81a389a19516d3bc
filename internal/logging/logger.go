// Package logging provides structured logging with actor/trace context for
// the UIN lifecycle engine. It wraps logrus the same way the rest of the
// ambient stack does; setting up transports (stdout vs file, HTTP access
// logging) is the outer application's job, not this package's.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey namespaces values this package stashes on a context.Context.
type ContextKey string

const (
	TraceIDKey    ContextKey = "trace_id"
	ActorSystemKey ContextKey = "actor_system"
	ActorRefKey   ContextKey = "actor_ref"
)

// Logger wraps logrus.Logger with a fixed "component" field.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the named component.
func New(component, level, format string) *Logger {
	l := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to info/json.
// Reading those two variables is the only "logging setup" this package performs;
// wiring the result into an HTTP access log is the transport layer's concern.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext returns an entry carrying trace/actor fields found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if actorSystem := ctx.Value(ActorSystemKey); actorSystem != nil {
		entry = entry.WithField("actor_system", actorSystem)
	}
	if actorRef := ctx.Value(ActorRefKey); actorRef != nil {
		entry = entry.WithField("actor_ref", actorRef)
	}
	return entry
}

// WithFields returns an entry carrying the component field plus fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// LogTransition emits a single structured line for a lifecycle state change.
func (l *Logger) LogTransition(ctx context.Context, uin, from, to, event string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"uin":        uin,
		"from_state": from,
		"to_state":   to,
		"event":      event,
	}).Info("uin transition")
}

// NewTraceID returns a fresh v4 UUID string for correlating a single call chain.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithActor attaches the caller's system/ref identity to ctx.
func WithActor(ctx context.Context, actorSystem, actorRef string) context.Context {
	ctx = context.WithValue(ctx, ActorSystemKey, actorSystem)
	return context.WithValue(ctx, ActorRefKey, actorRef)
}
