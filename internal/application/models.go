package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// NotificationSettings captures which reminder offsets are requested for a
// task or template, plus the overall switch.
type NotificationSettings struct {
	Enabled              bool
	FifteenMinutesBefore bool
	OneHourBefore        bool
	ThreeHoursBefore     bool
	OneDayBefore         bool
	OneWeekBefore        bool
	BeforeEnd            bool
}

// TaskInput captures caller provided task fields.
type TaskInput struct {
	OwnerID string
	Title   string
	Memo    *string
	Start   time.Time
	End     time.Time
	Notify  NotificationSettings
}

// Task represents a persisted calendar entry.
type Task struct {
	ID           string
	OwnerID      string
	Title        string
	Memo         *string
	Start        time.Time
	End          time.Time
	TemplateID   *string
	AlarmBaseKey int64
	Notify       NotificationSettings
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OverlapWarning flags a pair of listed tasks whose time ranges overlap.
// The borders carry the reconciled intrusion extents when known.
type OverlapWarning struct {
	TaskID      string
	WithTaskID  string
	LeftBorder  *time.Time
	RightBorder *time.Time
}

// CreateTaskParams wraps the data required to create a task.
type CreateTaskParams struct {
	Principal Principal
	Input     TaskInput
}

// UpdateTaskParams wraps the data required to update an existing task.
type UpdateTaskParams struct {
	Principal Principal
	TaskID    string
	Input     TaskInput
}

// ListPeriod identifies the range preset requested for task listings.
type ListPeriod string

const (
	// ListPeriodNone indicates no preset; caller supplied explicit bounds.
	ListPeriodNone ListPeriod = ""
	// ListPeriodDay constrains results to a single day.
	ListPeriodDay ListPeriod = "day"
	// ListPeriodWeek constrains results to the Monday-start week containing the reference time.
	ListPeriodWeek ListPeriod = "week"
	// ListPeriodMonth constrains results to the month containing the reference time.
	ListPeriodMonth ListPeriod = "month"
)

// ListTasksParams wraps the data required to list tasks.
type ListTasksParams struct {
	Principal       Principal
	OwnerID         string
	StartsAfter     *time.Time
	EndsBefore      *time.Time
	Period          ListPeriod
	PeriodReference time.Time
}

// TemplateInput captures caller provided template fields. The recurrence
// rule arrives flattened; Kind selects the variant and the remaining rule
// fields carry its payload.
type TemplateInput struct {
	OwnerID         string
	Title           string
	Memo            *string
	RuleKind        string
	Weekday         int
	WeekNumber      int
	DayNumber       int
	Month           int
	StartMinutes    int
	DurationMinutes int
	Notify          NotificationSettings
	Enabled         bool
}

// Template represents a persisted recurring task blueprint.
type Template struct {
	ID               string
	OwnerID          string
	Title            string
	Memo             *string
	RuleKind         string
	Weekday          int
	WeekNumber       int
	DayNumber        int
	Month            int
	StartMinutes     int
	DurationMinutes  int
	Notify           NotificationSettings
	Enabled          bool
	LastMaterialized *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateTemplateParams wraps the data required to create a template.
type CreateTemplateParams struct {
	Principal Principal
	Input     TemplateInput
}

// UpdateTemplateParams wraps the data required to update a template.
type UpdateTemplateParams struct {
	Principal  Principal
	TemplateID string
	Input      TemplateInput
}

// PreviewTemplateParams wraps the data required to preview upcoming
// occurrences of a template.
type PreviewTemplateParams struct {
	Principal   Principal
	TemplateID  string
	From        time.Time
	HorizonDays int
}

// OccurrencePreview is a single projected occurrence of a template.
type OccurrencePreview struct {
	Start time.Time
	End   time.Time
}

// UserInput captures caller provided user attributes.
type UserInput struct {
	Email       string
	DisplayName string
	Password    string
	IsAdmin     bool
}

// User represents an account exposed by the application services.
type User struct {
	ID          string
	Email       string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateUserParams wraps the data required to create a user.
type CreateUserParams struct {
	Principal Principal
	Input     UserInput
}

// UpdateUserParams wraps the data required to update a user.
type UpdateUserParams struct {
	Principal Principal
	UserID    string
	Input     UserInput
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email       string
	Password    string
	Fingerprint string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}

// RefreshSessionParams captures the data required to refresh an existing session.
type RefreshSessionParams struct {
	Token       string
	Fingerprint string
}

// RefreshSessionResult captures the outcome of rotating a session token.
type RefreshSessionResult struct {
	Session Session
}
