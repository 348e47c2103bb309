package testfixtures

import (
	"context"
	"errors"
	"testing"

	"github.com/example/dayplan/internal/persistence"
)

func TestSQLiteHarnessRoundTrip(t *testing.T) {
	t.Parallel()

	harness := NewSQLiteHarness(t)
	ctx := context.Background()

	owner := NewUserFixture()
	if err := harness.Users.CreateUser(ctx, owner.Persistence()); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	task := NewTaskFixture(WithTaskOwner(owner.ID))
	stored, err := harness.Tasks.CreateTask(ctx, task.Persistence())
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if stored.AlarmBaseKey == 0 {
		t.Fatalf("expected storage to assign an alarm base key")
	}

	fetched, err := harness.Tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to read task back: %v", err)
	}
	if fetched.OwnerID != owner.ID || !fetched.Start.Equal(task.Start) {
		t.Fatalf("unexpected stored task %+v", fetched)
	}

	template := NewTemplateFixture(WithTemplateOwner(owner.ID))
	if err := harness.Templates.CreateTemplate(ctx, template.Persistence()); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	if err := harness.Templates.MarkMaterialized(ctx, template.ID, ReferenceTime()); err != nil {
		t.Fatalf("failed to mark template materialized: %v", err)
	}
	enabled, err := harness.Templates.ListEnabledTemplates(ctx)
	if err != nil {
		t.Fatalf("failed to list enabled templates: %v", err)
	}
	found := false
	for _, record := range enabled {
		if record.ID != template.ID {
			continue
		}
		found = true
		if record.LastMaterialized == nil || !record.LastMaterialized.Equal(ReferenceTime()) {
			t.Fatalf("expected materialization marker, got %+v", record.LastMaterialized)
		}
	}
	if !found {
		t.Fatalf("expected template %s among enabled templates", template.ID)
	}

	session := NewSessionFixture(WithSessionUserID(owner.ID))
	if _, err := harness.Sessions.CreateSession(ctx, session.Persistence()); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	revoked, err := harness.Sessions.RevokeSession(ctx, session.Token, ReferenceTime())
	if err != nil {
		t.Fatalf("failed to revoke session: %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Fatalf("expected revoked marker on session")
	}
}

func TestSQLiteHarnessCascadesOwnerDelete(t *testing.T) {
	t.Parallel()

	harness := NewSQLiteHarness(t)
	ctx := context.Background()

	owner := NewUserFixture()
	if err := harness.Users.CreateUser(ctx, owner.Persistence()); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	task := NewTaskFixture(WithTaskOwner(owner.ID))
	if _, err := harness.Tasks.CreateTask(ctx, task.Persistence()); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := harness.Users.DeleteUser(ctx, owner.ID); err != nil {
		t.Fatalf("failed to delete user: %v", err)
	}
	if _, err := harness.Tasks.GetTask(ctx, task.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected the owner's tasks to be removed, got %v", err)
	}
}
