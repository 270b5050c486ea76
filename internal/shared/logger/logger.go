package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ErrorObject represents the error format.
type ErrorObject struct {
	Msg  string `json:"msg"`
	Kind string `json:"kind"`
}

// LogEntry represents the structured log format every service emits.
type LogEntry struct {
	Timestamp     string       `json:"timestamp"`
	Level         string       `json:"level"`
	Service       string       `json:"service"`
	Action        string       `json:"action"`
	Message       string       `json:"message"`
	Hostname      string       `json:"hostname"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Error         *ErrorObject `json:"error,omitempty"`
	Details       any          `json:"details,omitempty"`
}

// Logger is a structured JSON logger writing one entry per line to stdout.
type Logger struct {
	service  string
	hostname string
}

// NewLogger creates a structured logger for the named service.
func NewLogger(service string) *Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Logger{service: service, hostname: hostname}
}

type ctxKey string

// correlationKey is the context key for the correlation id.
const correlationKey ctxKey = "correlation_id"

// WithCorrelationID returns a context carrying a correlation id
// (ties HTTP requests, saga steps, and MQ hops of one flow together).
func (logger *Logger) WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID extracts the correlation id carried by ctx, or "".
func CorrelationID(ctx context.Context) string {
	return correlationFrom(ctx)
}

func correlationFrom(ctx context.Context) string {
	if v := ctx.Value(correlationKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// emit marshals the provided log entry.
func (logger *Logger) emit(entry LogEntry) {
	b, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
		return
	}
	fmt.Println(string(b))
}

func (logger *Logger) entry(ctx context.Context, level, action, msg string) LogEntry {
	return LogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Level:         level,
		Service:       logger.service,
		Action:        action,
		Message:       msg,
		Hostname:      logger.hostname,
		CorrelationID: correlationFrom(ctx),
	}
}

func (logger *Logger) Info(ctx context.Context, action, msg string, details any) {
	e := logger.entry(ctx, "INFO", action, msg)
	e.Details = details
	logger.emit(e)
}

func (logger *Logger) Debug(ctx context.Context, action, msg string, details any) {
	e := logger.entry(ctx, "DEBUG", action, msg)
	e.Details = details
	logger.emit(e)
}

func (logger *Logger) Error(ctx context.Context, action, msg string, err error) {
	e := logger.entry(ctx, "ERROR", action, msg)
	if err != nil {
		e.Error = &ErrorObject{Msg: err.Error(), Kind: fmt.Sprintf("%T", err)}
	}
	logger.emit(e)
}
