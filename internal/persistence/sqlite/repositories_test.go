package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/dayplan/internal/persistence"
)

func newTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	pool, err := NewConnectionPool(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := Migrate(context.Background(), pool); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return pool
}

func seedUser(t *testing.T, pool *ConnectionPool, id, email string) {
	t.Helper()

	repo := NewUserRepository(pool)
	err := repo.CreateUser(context.Background(), persistence.User{
		ID:           id,
		Email:        email,
		DisplayName:  "Test User",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	if err := Migrate(context.Background(), pool); err != nil {
		t.Fatalf("second migrate must be a no-op, got %v", err)
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "  Alice@Example.COM ")

	user, err := repo.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}

	byEmail, err := repo.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != "user-1" {
		t.Fatalf("expected user-1, got %q", byEmail.ID)
	}
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewUserRepository(pool)

	seedUser(t, pool, "user-1", "alice@example.com")

	err := repo.CreateUser(context.Background(), persistence.User{
		ID:           "user-2",
		Email:        "Alice@example.com",
		DisplayName:  "Other",
		PasswordHash: "hash",
	})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUserRepository_DeleteCascadesOwnedRecords(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	users := NewUserRepository(pool)
	tasks := NewTaskRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "alice@example.com")
	_, err := tasks.CreateTask(ctx, persistence.Task{
		ID:      "task-1",
		OwnerID: "user-1",
		Title:   "Dentist",
		Start:   time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := users.DeleteUser(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, err := tasks.GetTask(ctx, "task-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected task to be deleted with owner, got %v", err)
	}
}

func TestTaskRepository_AssignsStridedAlarmKeys(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewTaskRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "alice@example.com")

	var keys []int64
	for i, id := range []string{"task-1", "task-2", "task-3"} {
		start := time.Date(2024, 1, 10+i, 10, 0, 0, 0, time.UTC)
		stored, err := repo.CreateTask(ctx, persistence.Task{
			ID:      id,
			OwnerID: "user-1",
			Title:   "Block",
			Start:   start,
			End:     start.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateTask %s failed: %v", id, err)
		}
		keys = append(keys, stored.AlarmBaseKey)
	}

	for i, key := range keys {
		want := int64((i + 1) * alarmKeyStride)
		if key != want {
			t.Fatalf("task %d: expected alarm base key %d, got %d", i, want, key)
		}
	}
}

func TestTaskRepository_RejectsUnknownOwner(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewTaskRepository(pool)

	_, err := repo.CreateTask(context.Background(), persistence.Task{
		ID:      "task-1",
		OwnerID: "ghost",
		Title:   "Orphan",
		Start:   time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestTaskRepository_RejectsInvertedRange(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewTaskRepository(pool)

	seedUser(t, pool, "user-1", "alice@example.com")

	_, err := repo.CreateTask(context.Background(), persistence.Task{
		ID:      "task-1",
		OwnerID: "user-1",
		Title:   "Backwards",
		Start:   time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestTaskRepository_ListWindowMatchesOverlaps(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewTaskRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "alice@example.com")

	create := func(id string, start, end time.Time) {
		t.Helper()
		if _, err := repo.CreateTask(ctx, persistence.Task{
			ID: id, OwnerID: "user-1", Title: id, Start: start, End: end,
		}); err != nil {
			t.Fatalf("CreateTask %s failed: %v", id, err)
		}
	}

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	create("before", day.Add(-2*time.Hour), day)               // touches window start
	create("inside", day.Add(9*time.Hour), day.Add(10*time.Hour))
	create("spanning", day.Add(-time.Hour), day.Add(25*time.Hour))
	create("after", day.Add(24*time.Hour), day.Add(26*time.Hour)) // touches window end

	windowEnd := day.Add(24 * time.Hour)
	tasks, err := repo.ListTasks(ctx, persistence.TaskFilter{
		OwnerID:     "user-1",
		StartsAfter: &day,
		EndsBefore:  &windowEnd,
	})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}

	if len(tasks) != 2 {
		t.Fatalf("expected 2 overlapping tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "spanning" || tasks[1].ID != "inside" {
		t.Fatalf("unexpected order: %s, %s", tasks[0].ID, tasks[1].ID)
	}
}

func TestTaskRepository_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewTaskRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "alice@example.com")

	start := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	stored, err := repo.CreateTask(ctx, persistence.Task{
		ID: "task-1", OwnerID: "user-1", Title: "Original", Start: start, End: start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	memo := "bring paperwork"
	stored.Title = "Renamed"
	stored.Memo = &memo
	stored.Notify = persistence.NotificationFlags{Enabled: true, OneHourBefore: true}
	if err := repo.UpdateTask(ctx, stored); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	got, err := repo.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Renamed" || got.Memo == nil || *got.Memo != memo {
		t.Fatalf("update not persisted: %+v", got)
	}
	if !got.Notify.Enabled || !got.Notify.OneHourBefore {
		t.Fatalf("notification flags not persisted: %+v", got.Notify)
	}
	if got.AlarmBaseKey != stored.AlarmBaseKey {
		t.Fatalf("alarm base key must not change on update")
	}

	if err := repo.DeleteTask(ctx, "task-1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := repo.DeleteTask(ctx, "task-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := repo.UpdateTask(ctx, stored); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update of deleted task, got %v", err)
	}
}

func TestTemplateRepository_RoundTrip(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewTemplateRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "alice@example.com")

	template := persistence.Template{
		ID:              "tmpl-1",
		OwnerID:         "user-1",
		Title:           "Weekly review",
		RuleKind:        "weekday",
		Weekday:         int(time.Friday),
		StartMinutes:    16 * 60,
		DurationMinutes: 30,
		Notify:          persistence.NotificationFlags{Enabled: true, FifteenMinutesBefore: true},
		Enabled:         true,
	}
	if err := repo.CreateTemplate(ctx, template); err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}

	got, err := repo.GetTemplate(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if got.RuleKind != "weekday" || got.Weekday != int(time.Friday) {
		t.Fatalf("rule not persisted: %+v", got)
	}
	if got.LastMaterialized != nil {
		t.Fatalf("expected no materialization mark on fresh template")
	}

	date := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	if err := repo.MarkMaterialized(ctx, "tmpl-1", date); err != nil {
		t.Fatalf("MarkMaterialized failed: %v", err)
	}
	got, err = repo.GetTemplate(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("GetTemplate after mark failed: %v", err)
	}
	if got.LastMaterialized == nil || !got.LastMaterialized.Equal(date) {
		t.Fatalf("expected materialization mark %v, got %v", date, got.LastMaterialized)
	}
}

func TestTemplateRepository_ListEnabledSkipsDisabled(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewTemplateRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "alice@example.com")

	base := persistence.Template{
		OwnerID:         "user-1",
		Title:           "Routine",
		RuleKind:        "month_day",
		DayNumber:       15,
		StartMinutes:    9 * 60,
		DurationMinutes: 60,
	}

	enabled := base
	enabled.ID = "tmpl-on"
	enabled.Enabled = true
	disabled := base
	disabled.ID = "tmpl-off"

	if err := repo.CreateTemplate(ctx, enabled); err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}
	if err := repo.CreateTemplate(ctx, disabled); err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}

	templates, err := repo.ListEnabledTemplates(ctx)
	if err != nil {
		t.Fatalf("ListEnabledTemplates failed: %v", err)
	}
	if len(templates) != 1 || templates[0].ID != "tmpl-on" {
		t.Fatalf("expected only the enabled template, got %+v", templates)
	}
}

func TestTemplateRepository_DeleteDetachesTasks(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	templates := NewTemplateRepository(pool)
	tasks := NewTaskRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "alice@example.com")

	template := persistence.Template{
		ID:              "tmpl-1",
		OwnerID:         "user-1",
		Title:           "Standup",
		RuleKind:        "weekday",
		Weekday:         int(time.Monday),
		StartMinutes:    10 * 60,
		DurationMinutes: 15,
		Enabled:         true,
	}
	if err := templates.CreateTemplate(ctx, template); err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}

	templateID := "tmpl-1"
	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	if _, err := tasks.CreateTask(ctx, persistence.Task{
		ID: "task-1", OwnerID: "user-1", Title: "Standup",
		Start: start, End: start.Add(15 * time.Minute), TemplateID: &templateID,
	}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := templates.DeleteTemplate(ctx, "tmpl-1"); err != nil {
		t.Fatalf("DeleteTemplate failed: %v", err)
	}

	got, err := tasks.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("materialized task must survive template deletion: %v", err)
	}
	if got.TemplateID != nil {
		t.Fatalf("expected template reference cleared, got %v", *got.TemplateID)
	}
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	repo := NewSessionRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "user-1", "alice@example.com")

	session, err := repo.CreateSession(ctx, persistence.Session{
		ID:          "sess-1",
		UserID:      "user-1",
		Token:       "token-abc",
		Fingerprint: "fp",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, "token-abc")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ID != session.ID || got.RevokedAt != nil {
		t.Fatalf("unexpected session state: %+v", got)
	}

	revoked, err := repo.RevokeSession(ctx, "token-abc", time.Now())
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Fatalf("expected revoked_at to be set")
	}

	// Revoking twice is not possible; the row is already marked.
	if _, err := repo.RevokeSession(ctx, "token-abc", time.Now()); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double revoke, got %v", err)
	}

	if err := repo.DeleteExpiredSessions(ctx, time.Now()); err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if _, err := repo.GetSession(ctx, "token-abc"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected revoked session to be purged, got %v", err)
	}
}
