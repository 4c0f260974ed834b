// Package reqlog provides request-scoped logging helpers shared by the HTTP
// packages.
//
// Wraps slog with automatic extraction of request context (IP, user agent,
// method, path, request id) so handlers don't have to repeat these fields on
// every call. Middleware can attach further fields, such as the verified
// subject, with With.
package reqlog

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type attrsKey struct{}

// With returns a shallow copy of r whose log lines also carry args.
// Fields added by earlier calls are kept.
func With(r *http.Request, args ...any) *http.Request {
	prev, _ := r.Context().Value(attrsKey{}).([]any)
	extra := make([]any, 0, len(prev)+len(args))
	extra = append(append(extra, prev...), args...)
	return r.WithContext(context.WithValue(r.Context(), attrsKey{}, extra))
}

// Attrs returns the standard request attributes followed by any added with With.
func Attrs(r *http.Request) []any {
	attrs := []any{
		"ip", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if extra, ok := r.Context().Value(attrsKey{}).([]any); ok {
		attrs = append(attrs, extra...)
	}
	return attrs
}

// Debug logs at debug level with automatic request context.
func Debug(r *http.Request, msg string, args ...any) {
	slog.Debug(msg, append(Attrs(r), args...)...)
}

// Info logs at info level with automatic request context.
func Info(r *http.Request, msg string, args ...any) {
	slog.Info(msg, append(Attrs(r), args...)...)
}

// Warn logs at warn level with automatic request context.
func Warn(r *http.Request, msg string, args ...any) {
	slog.Warn(msg, append(Attrs(r), args...)...)
}

// Error logs at error level with automatic request context.
func Error(r *http.Request, msg string, args ...any) {
	slog.Error(msg, append(Attrs(r), args...)...)
}
