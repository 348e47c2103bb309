// Package materializer runs the periodic job that turns enabled templates
// into concrete tasks.
package materializer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// TemplateMaterializer is the slice of the template service the job invokes.
type TemplateMaterializer interface {
	MaterializeDue(ctx context.Context) (int, error)
}

// Runner schedules recurring materialization runs on a cron spec.
type Runner struct {
	templates TemplateMaterializer
	spec      string
	timeout   time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewRunner constructs a Runner. The spec accepts the standard five field
// cron syntax plus descriptors such as "@every 15m".
func NewRunner(templates TemplateMaterializer, spec string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if spec == "" {
		spec = "@every 15m"
	}
	return &Runner{
		templates: templates,
		spec:      spec,
		timeout:   5 * time.Minute,
		logger:    logger,
	}
}

// Start registers the job and launches the cron scheduler.
func (r *Runner) Start() error {
	if r == nil {
		return fmt.Errorf("materializer Runner is nil")
	}
	if r.templates == nil {
		return fmt.Errorf("template service not configured")
	}
	if r.cron != nil {
		return fmt.Errorf("materializer already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(r.spec, r.runOnce); err != nil {
		return fmt.Errorf("failed to register materializer schedule %q: %w", r.spec, err)
	}
	r.cron = c
	c.Start()
	r.logger.Info("materializer started", "spec", r.spec)
	return nil
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	if r == nil || r.cron == nil {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("materializer stopped")
}

// RunNow executes a single materialization pass outside the cron schedule.
func (r *Runner) RunNow(ctx context.Context) (int, error) {
	if r == nil || r.templates == nil {
		return 0, fmt.Errorf("template service not configured")
	}
	return r.templates.MaterializeDue(ctx)
}

func (r *Runner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	created, err := r.templates.MaterializeDue(ctx)
	if err != nil {
		r.logger.Error("materialization run failed", "error", err, "created", created, "duration", time.Since(start))
		return
	}
	r.logger.Info("materialization run completed", "created", created, "duration", time.Since(start))
}
