package http

import (
	"context"
	"log/slog"

	"github.com/example/dayplan/internal/application"
	"github.com/example/dayplan/internal/logging"
)

type contextKey string

const (
	principalContextKey  contextKey = "principal"
	taskIDContextKey     contextKey = "task_id"
	templateIDContextKey contextKey = "template_id"
	userIDContextKey     contextKey = "user_id"
)

// ContextWithPrincipal returns a derived context containing the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

// ContextWithTaskID injects the task identifier resolved from the request path.
func ContextWithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDContextKey, taskID)
}

// TaskIDFromContext extracts a task identifier previously associated with the context.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDContextKey).(string)
	return id, ok
}

// ContextWithTemplateID injects the template identifier resolved from the request path.
func ContextWithTemplateID(ctx context.Context, templateID string) context.Context {
	return context.WithValue(ctx, templateIDContextKey, templateID)
}

// TemplateIDFromContext extracts a template identifier previously associated with the context.
func TemplateIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(templateIDContextKey).(string)
	return id, ok
}

// ContextWithUserID injects the user identifier resolved from the request path.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext extracts a user identifier previously associated with the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches a request scoped logger to the context. The
// logger is shared with the application layer, so service log lines carry
// the request attributes.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, or nil when absent.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
