package materializer

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubMaterializer struct {
	mu      sync.Mutex
	calls   int
	created int
	err     error
}

func (s *stubMaterializer) MaterializeDue(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.created, s.err
}

func TestRunnerRejectsMissingService(t *testing.T) {
	t.Parallel()

	runner := NewRunner(nil, "@every 1m", nil)
	if err := runner.Start(); err == nil {
		t.Fatalf("expected an error for a missing service")
	}
}

func TestRunnerRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&stubMaterializer{}, "not a cron spec", nil)
	if err := runner.Start(); err == nil {
		t.Fatalf("expected an error for an invalid spec")
	}
}

func TestRunnerStartStop(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&stubMaterializer{}, "@every 1h", nil)
	if err := runner.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := runner.Start(); err == nil {
		t.Fatalf("expected an error when starting twice")
	}
	runner.Stop()
}

func TestRunNowDelegates(t *testing.T) {
	t.Parallel()

	stub := &stubMaterializer{created: 3}
	runner := NewRunner(stub, "@every 1h", nil)

	created, err := runner.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if created != 3 {
		t.Fatalf("expected 3 created tasks, got %d", created)
	}
	if stub.calls != 1 {
		t.Fatalf("expected one call, got %d", stub.calls)
	}
}

func TestRunNowPropagatesErrors(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	runner := NewRunner(&stubMaterializer{err: wantErr}, "@every 1h", nil)

	if _, err := runner.RunNow(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}
