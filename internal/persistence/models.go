package persistence

import "time"

// User represents an account that owns tasks and templates.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NotificationFlags persists which reminder offsets a task or template has
// enabled, plus the overall switch.
type NotificationFlags struct {
	Enabled              bool
	FifteenMinutesBefore bool
	OneHourBefore        bool
	ThreeHoursBefore     bool
	OneDayBefore         bool
	OneWeekBefore        bool
	BeforeEnd            bool
}

// Task represents a concrete time-boxed entry on the calendar.
type Task struct {
	ID           string
	OwnerID      string
	Title        string
	Memo         *string
	Start        time.Time
	End          time.Time
	TemplateID   *string
	AlarmBaseKey int64
	Notify       NotificationFlags
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Template represents a recurring blueprint from which concrete tasks are
// materialized. The recurrence rule is stored flattened: Kind selects the
// variant and the remaining fields carry its payload.
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
	Notify           NotificationFlags
	Enabled          bool
	LastMaterialized *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session represents an authentication session persisted for a user.
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
