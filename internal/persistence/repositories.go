package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// TaskFilter narrows task queries to an owner and a time window. The window
// matches any task overlapping it, which is what the day-snapshot read needs.
type TaskFilter struct {
	OwnerID     string
	StartsAfter *time.Time
	EndsBefore  *time.Time
}

// TaskRepository stores concrete calendar tasks. CreateTask returns the
// stored row because storage assigns the alarm base key.
type TaskRepository interface {
	CreateTask(ctx context.Context, task Task) (Task, error)
	UpdateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// TemplateRepository stores recurring task blueprints.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, template Template) error
	UpdateTemplate(ctx context.Context, template Template) error
	GetTemplate(ctx context.Context, id string) (Template, error)
	ListTemplates(ctx context.Context, ownerID string) ([]Template, error)
	ListEnabledTemplates(ctx context.Context) ([]Template, error)
	MarkMaterialized(ctx context.Context, id string, date time.Time) error
	DeleteTemplate(ctx context.Context, id string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}
