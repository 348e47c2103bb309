package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/dayplan/internal/application"
	"github.com/example/dayplan/internal/persistence"
)

var (
	userCounter     uint64
	taskCounter     uint64
	templateCounter uint64
	sessionCounter  uint64
)

var referenceTime = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record that can be materialised
// for application or persistence tests.
type UserFixture struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		DisplayName:  fmt.Sprintf("User %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		IsAdmin:      false,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserDisplayName overrides the generated display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) {
		f.DisplayName = name
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// WithUserAdmin sets the admin flag on the generated fixture.
func WithUserAdmin(isAdmin bool) UserOption {
	return func(f *UserFixture) {
		f.IsAdmin = isAdmin
	}
}

// WithUserTimestamps sets both created and updated timestamps on the fixture.
func WithUserTimestamps(created, updated time.Time) UserOption {
	return func(f *UserFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		IsAdmin:     f.IsAdmin,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, IsAdmin: f.IsAdmin}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		IsAdmin:      f.IsAdmin,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Input returns the fixture as an application.UserInput.
func (f UserFixture) Input() application.UserInput {
	return application.UserInput{
		Email:       f.Email,
		DisplayName: f.DisplayName,
		IsAdmin:     f.IsAdmin,
	}
}

// ----------------------------- Task fixtures -----------------------------

// TaskFixture represents a deterministic task record.
type TaskFixture struct {
	ID           string
	OwnerID      string
	Title        string
	Memo         *string
	Start        time.Time
	End          time.Time
	TemplateID   *string
	AlarmBaseKey int64
	Notify       persistence.NotificationFlags
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskOption configures the generated task fixture.
type TaskOption func(*TaskFixture)

// NewTaskFixture returns a deterministic task fixture with optional
// overrides. Successive fixtures occupy consecutive non-overlapping hours.
func NewTaskFixture(opts ...TaskOption) TaskFixture {
	idx := atomic.AddUint64(&taskCounter, 1)
	id := fmt.Sprintf("task-%03d", idx)
	start := referenceTime.Add(time.Duration(2*idx) * time.Hour)
	fixture := TaskFixture{
		ID:           id,
		OwnerID:      fmt.Sprintf("user-%03d", idx),
		Title:        fmt.Sprintf("Task %03d", idx),
		Start:        start,
		End:          start.Add(time.Hour),
		AlarmBaseKey: int64(idx) * 8,
		Notify:       persistence.NotificationFlags{Enabled: true, FifteenMinutesBefore: true},
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTaskID overrides the task ID.
func WithTaskID(id string) TaskOption {
	return func(f *TaskFixture) {
		f.ID = id
	}
}

// WithTaskOwner sets the owner ID.
func WithTaskOwner(id string) TaskOption {
	return func(f *TaskFixture) {
		f.OwnerID = id
	}
}

// WithTaskTitle overrides the title.
func WithTaskTitle(title string) TaskOption {
	return func(f *TaskFixture) {
		f.Title = title
	}
}

// WithTaskMemo sets the memo field.
func WithTaskMemo(memo string) TaskOption {
	return func(f *TaskFixture) {
		value := memo
		f.Memo = &value
	}
}

// WithTaskStartEnd sets the start and end times.
func WithTaskStartEnd(start, end time.Time) TaskOption {
	return func(f *TaskFixture) {
		f.Start = start
		f.End = end
	}
}

// WithTaskTemplateID links the task to its originating template.
func WithTaskTemplateID(templateID string) TaskOption {
	return func(f *TaskFixture) {
		id := templateID
		f.TemplateID = &id
	}
}

// WithTaskAlarmBaseKey overrides the storage assigned alarm key.
func WithTaskAlarmBaseKey(key int64) TaskOption {
	return func(f *TaskFixture) {
		f.AlarmBaseKey = key
	}
}

// WithTaskNotify sets the notification flags.
func WithTaskNotify(flags persistence.NotificationFlags) TaskOption {
	return func(f *TaskFixture) {
		f.Notify = flags
	}
}

// WithTaskTimestamps sets both created and updated timestamps.
func WithTaskTimestamps(created, updated time.Time) TaskOption {
	return func(f *TaskFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application returns the fixture as an application.Task value.
func (f TaskFixture) Application() application.Task {
	return application.Task{
		ID:           f.ID,
		OwnerID:      f.OwnerID,
		Title:        f.Title,
		Memo:         copyStringPtr(f.Memo),
		Start:        f.Start,
		End:          f.End,
		TemplateID:   copyStringPtr(f.TemplateID),
		AlarmBaseKey: f.AlarmBaseKey,
		Notify: application.NotificationSettings{
			Enabled:              f.Notify.Enabled,
			FifteenMinutesBefore: f.Notify.FifteenMinutesBefore,
			OneHourBefore:        f.Notify.OneHourBefore,
			ThreeHoursBefore:     f.Notify.ThreeHoursBefore,
			OneDayBefore:         f.Notify.OneDayBefore,
			OneWeekBefore:        f.Notify.OneWeekBefore,
			BeforeEnd:            f.Notify.BeforeEnd,
		},
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.Task value.
func (f TaskFixture) Persistence() persistence.Task {
	return persistence.Task{
		ID:           f.ID,
		OwnerID:      f.OwnerID,
		Title:        f.Title,
		Memo:         copyStringPtr(f.Memo),
		Start:        f.Start,
		End:          f.End,
		TemplateID:   copyStringPtr(f.TemplateID),
		AlarmBaseKey: f.AlarmBaseKey,
		Notify:       f.Notify,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Input returns the fixture as an application.TaskInput.
func (f TaskFixture) Input() application.TaskInput {
	app := f.Application()
	return application.TaskInput{
		OwnerID: app.OwnerID,
		Title:   app.Title,
		Memo:    app.Memo,
		Start:   app.Start,
		End:     app.End,
		Notify:  app.Notify,
	}
}

// --------------------------- Template fixtures ---------------------------

// TemplateFixture represents a deterministic recurring template record.
type TemplateFixture struct {
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
	Notify           persistence.NotificationFlags
	Enabled          bool
	LastMaterialized *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TemplateOption configures the generated template fixture.
type TemplateOption func(*TemplateFixture)

// NewTemplateFixture returns a deterministic weekly template fixture with
// optional overrides.
func NewTemplateFixture(opts ...TemplateOption) TemplateFixture {
	idx := atomic.AddUint64(&templateCounter, 1)
	id := fmt.Sprintf("template-%03d", idx)
	fixture := TemplateFixture{
		ID:              id,
		OwnerID:         fmt.Sprintf("user-%03d", idx),
		Title:           fmt.Sprintf("Template %03d", idx),
		RuleKind:        "weekday",
		Weekday:         int(time.Friday),
		StartMinutes:    16 * 60,
		DurationMinutes: 30,
		Notify:          persistence.NotificationFlags{Enabled: true, FifteenMinutesBefore: true},
		Enabled:         true,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTemplateID overrides the template ID.
func WithTemplateID(id string) TemplateOption {
	return func(f *TemplateFixture) {
		f.ID = id
	}
}

// WithTemplateOwner sets the owner ID.
func WithTemplateOwner(id string) TemplateOption {
	return func(f *TemplateFixture) {
		f.OwnerID = id
	}
}

// WithTemplateRule sets the flattened recurrence rule fields.
func WithTemplateRule(kind string, weekday, weekNumber, dayNumber, month int) TemplateOption {
	return func(f *TemplateFixture) {
		f.RuleKind = kind
		f.Weekday = weekday
		f.WeekNumber = weekNumber
		f.DayNumber = dayNumber
		f.Month = month
	}
}

// WithTemplateTime sets the start offset and duration in minutes.
func WithTemplateTime(startMinutes, durationMinutes int) TemplateOption {
	return func(f *TemplateFixture) {
		f.StartMinutes = startMinutes
		f.DurationMinutes = durationMinutes
	}
}

// WithTemplateEnabled sets the enabled flag.
func WithTemplateEnabled(enabled bool) TemplateOption {
	return func(f *TemplateFixture) {
		f.Enabled = enabled
	}
}

// WithTemplateLastMaterialized sets the last materialized marker.
func WithTemplateLastMaterialized(t time.Time) TemplateOption {
	return func(f *TemplateFixture) {
		marker := t
		f.LastMaterialized = &marker
	}
}

// Persistence returns the fixture as a persistence.Template value.
func (f TemplateFixture) Persistence() persistence.Template {
	return persistence.Template{
		ID:               f.ID,
		OwnerID:          f.OwnerID,
		Title:            f.Title,
		Memo:             copyStringPtr(f.Memo),
		RuleKind:         f.RuleKind,
		Weekday:          f.Weekday,
		WeekNumber:       f.WeekNumber,
		DayNumber:        f.DayNumber,
		Month:            f.Month,
		StartMinutes:     f.StartMinutes,
		DurationMinutes:  f.DurationMinutes,
		Notify:           f.Notify,
		Enabled:          f.Enabled,
		LastMaterialized: copyTimePtr(f.LastMaterialized),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// Input returns the fixture as an application.TemplateInput.
func (f TemplateFixture) Input() application.TemplateInput {
	return application.TemplateInput{
		OwnerID:         f.OwnerID,
		Title:           f.Title,
		Memo:            copyStringPtr(f.Memo),
		RuleKind:        f.RuleKind,
		Weekday:         f.Weekday,
		WeekNumber:      f.WeekNumber,
		DayNumber:       f.DayNumber,
		Month:           f.Month,
		StartMinutes:    f.StartMinutes,
		DurationMinutes: f.DurationMinutes,
		Notify: application.NotificationSettings{
			Enabled:              f.Notify.Enabled,
			FifteenMinutesBefore: f.Notify.FifteenMinutesBefore,
			OneHourBefore:        f.Notify.OneHourBefore,
			ThreeHoursBefore:     f.Notify.ThreeHoursBefore,
			OneDayBefore:         f.Notify.OneDayBefore,
			OneWeekBefore:        f.Notify.OneWeekBefore,
			BeforeEnd:            f.Notify.BeforeEnd,
		},
		Enabled: f.Enabled,
	}
}

// ----------------------------- Session fixtures -------------------------

// SessionFixture represents a deterministic session record.
type SessionFixture struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic session fixture with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	id := fmt.Sprintf("session-%03d", idx)
	fixture := SessionFixture{
		ID:          id,
		UserID:      fmt.Sprintf("user-%03d", idx),
		Token:       fmt.Sprintf("token-%03d", idx),
		Fingerprint: fmt.Sprintf("fingerprint-%03d", idx),
		ExpiresAt:   referenceTime.Add(8 * time.Hour),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSessionUserID sets the user ID.
func WithSessionUserID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.UserID = id
	}
}

// WithSessionToken overrides the token value.
func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) {
		f.Token = token
	}
}

// WithSessionExpiresAt sets the expiration timestamp.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ExpiresAt = t
	}
}

// WithSessionRevokedAt sets the optional revoked timestamp.
func WithSessionRevokedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		revoked := t
		f.RevokedAt = &revoked
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:          f.ID,
		UserID:      f.UserID,
		Token:       f.Token,
		Fingerprint: f.Fingerprint,
		ExpiresAt:   f.ExpiresAt,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
		RevokedAt:   copyTimePtr(f.RevokedAt),
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
