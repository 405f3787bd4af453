package greeter

import (
	"context"
	"fmt"
	"os"
	"reflect"
)

// Response is returned for every successful invocation.
const Response = "Hello from serverless.tf!!!"

type InvocationEvent map[string]string

// Logger is the logging capability an invocation context exposes.
// A failed Log fails the invocation.
type Logger interface {
	Log(text string) error
}

type LoggerFunc func(text string) error

func (f LoggerFunc) Log(text string) error {
	return f(text)
}

type loggerKey struct{}

func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext reports false when ctx carries no logger, or one that
// is nil, including a nil pointer or func wrapped in the interface.
func LoggerFromContext(ctx context.Context) (Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(Logger)
	if !ok || isNilLogger(l) {
		return nil, false
	}
	return l, true
}

func isNilLogger(l Logger) bool {
	if l == nil {
		return true
	}
	v := reflect.ValueOf(l)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

type Handler struct {
	fallback func(ctx context.Context) Logger
}

type HandlerOption func(h *Handler)

// WithFallbackLogger sets the logger used when the invocation context
// does not carry one.
func WithFallbackLogger(fn func(ctx context.Context) Logger) HandlerOption {
	return func(h *Handler) {
		h.fallback = fn
	}
}

func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		fallback: func(ctx context.Context) Logger {
			return LoggerForInvocation(ctx, os.Stdout, LogFormatFromEnv())
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle logs the event type and returns Response.
func (h *Handler) Handle(ctx context.Context, event InvocationEvent) (string, error) {
	logger, ok := LoggerFromContext(ctx)
	if !ok {
		logger = h.fallback(ctx)
	}
	if isNilLogger(logger) {
		return "", fmt.Errorf("%w: no logger available", ErrInvocationFailed)
	}
	err := logger.Log(fmt.Sprintf("EVENT TYPE: %T", map[string]string(event)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvocationFailed, err)
	}
	return Response, nil
}
