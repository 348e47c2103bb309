package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/dayplan/internal/persistence"
	"github.com/example/dayplan/internal/recurrence"
)

// TaskCreator persists tasks materialized from templates.
type TaskCreator interface {
	CreateFromTemplate(ctx context.Context, templateID string, input TaskInput) (Task, error)
}

// TemplateService orchestrates validation, persistence, and materialization
// for recurring task templates.
type TemplateService struct {
	templates   persistence.TemplateRepository
	taskCreator TaskCreator
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	horizonDays int
	logger      *slog.Logger
}

// NewTemplateService wires dependencies for template operations. horizonDays
// bounds every occurrence search; zero falls back to one year.
func NewTemplateService(templates persistence.TemplateRepository, taskCreator TaskCreator, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, horizonDays int, logger *slog.Logger) *TemplateService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if horizonDays <= 0 {
		horizonDays = 366
	}
	return &TemplateService{
		templates:   templates,
		taskCreator: taskCreator,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		horizonDays: horizonDays,
		logger:      defaultLogger(logger),
	}
}

func (s *TemplateService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TemplateService", operation, attrs...)
}

// CreateTemplate validates the recurrence rule and persists a new template.
func (s *TemplateService) CreateTemplate(ctx context.Context, params CreateTemplateParams) (tmpl Template, err error) {
	if s == nil {
		err = fmt.Errorf("TemplateService is nil")
		return
	}
	if s.templates == nil {
		err = fmt.Errorf("template repository not configured")
		return
	}

	input := params.Input
	principal := params.Principal

	if input.OwnerID == "" {
		input.OwnerID = principal.UserID
	}

	logger := s.loggerWith(ctx, "CreateTemplate", "owner_id", input.OwnerID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "template creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("template_id", tmpl.ID).InfoContext(ctx, "template created")
	}()

	if input.OwnerID != principal.UserID && !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	if _, _, vErr := validateTemplateInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	record := persistence.Template{
		ID:              s.idGenerator(),
		OwnerID:         input.OwnerID,
		Title:           strings.TrimSpace(input.Title),
		Memo:            input.Memo,
		RuleKind:        input.RuleKind,
		Weekday:         input.Weekday,
		WeekNumber:      input.WeekNumber,
		DayNumber:       input.DayNumber,
		Month:           input.Month,
		StartMinutes:    input.StartMinutes,
		DurationMinutes: input.DurationMinutes,
		Notify:          toStoredFlags(input.Notify),
		Enabled:         input.Enabled,
	}

	if err = s.templates.CreateTemplate(ctx, record); err != nil {
		err = mapTaskRepoError(err)
		return
	}

	stored, err := s.templates.GetTemplate(ctx, record.ID)
	if err != nil {
		err = mapTaskRepoError(err)
		return
	}

	tmpl = toTemplate(stored)
	return
}

// UpdateTemplate applies validation and authorization before rewriting a template.
func (s *TemplateService) UpdateTemplate(ctx context.Context, params UpdateTemplateParams) (tmpl Template, err error) {
	if s == nil {
		err = fmt.Errorf("TemplateService is nil")
		return
	}
	if s.templates == nil {
		err = fmt.Errorf("template repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateTemplate", "template_id", params.TemplateID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "template update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "template updated")
	}()

	existing, err := s.templates.GetTemplate(ctx, params.TemplateID)
	if err != nil {
		err = mapTaskRepoError(err)
		return
	}

	principal := params.Principal
	input := params.Input

	if existing.OwnerID != principal.UserID && !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	if input.OwnerID != "" && input.OwnerID != existing.OwnerID {
		vErr.add("owner_id", "owner cannot be changed")
	}
	if _, _, coreErr := validateTemplateInput(input); coreErr.HasErrors() {
		for field, msg := range coreErr.FieldErrors {
			vErr.add(field, msg)
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	updated.Title = strings.TrimSpace(input.Title)
	updated.Memo = input.Memo
	updated.RuleKind = input.RuleKind
	updated.Weekday = input.Weekday
	updated.WeekNumber = input.WeekNumber
	updated.DayNumber = input.DayNumber
	updated.Month = input.Month
	updated.StartMinutes = input.StartMinutes
	updated.DurationMinutes = input.DurationMinutes
	updated.Notify = toStoredFlags(input.Notify)
	updated.Enabled = input.Enabled

	if err = s.templates.UpdateTemplate(ctx, updated); err != nil {
		err = mapTaskRepoError(err)
		return
	}

	stored, err := s.templates.GetTemplate(ctx, updated.ID)
	if err != nil {
		err = mapTaskRepoError(err)
		return
	}

	tmpl = toTemplate(stored)
	return
}

// GetTemplate returns a single template visible to the principal.
func (s *TemplateService) GetTemplate(ctx context.Context, principal Principal, templateID string) (Template, error) {
	if s == nil {
		return Template{}, fmt.Errorf("TemplateService is nil")
	}
	if s.templates == nil {
		return Template{}, fmt.Errorf("template repository not configured")
	}

	stored, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return Template{}, mapTaskRepoError(err)
	}
	if stored.OwnerID != principal.UserID && !principal.IsAdmin {
		return Template{}, ErrUnauthorized
	}
	return toTemplate(stored), nil
}

// ListTemplates enumerates the templates of one owner, newest last.
func (s *TemplateService) ListTemplates(ctx context.Context, principal Principal, ownerID string) ([]Template, error) {
	if s == nil {
		return nil, fmt.Errorf("TemplateService is nil")
	}
	if s.templates == nil {
		return nil, fmt.Errorf("template repository not configured")
	}

	if ownerID == "" {
		ownerID = principal.UserID
	}
	if ownerID != principal.UserID && !principal.IsAdmin {
		return nil, ErrUnauthorized
	}

	stored, err := s.templates.ListTemplates(ctx, ownerID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	templates := make([]Template, 0, len(stored))
	for _, record := range stored {
		templates = append(templates, toTemplate(record))
	}
	sort.SliceStable(templates, func(i, j int) bool {
		if templates[i].CreatedAt.Equal(templates[j].CreatedAt) {
			return templates[i].ID < templates[j].ID
		}
		return templates[i].CreatedAt.Before(templates[j].CreatedAt)
	})
	return templates, nil
}

// DeleteTemplate removes a template. Tasks already materialized from it are
// kept.
func (s *TemplateService) DeleteTemplate(ctx context.Context, principal Principal, templateID string) error {
	if s == nil {
		return fmt.Errorf("TemplateService is nil")
	}
	if s.templates == nil {
		return fmt.Errorf("template repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteTemplate", "template_id", templateID)

	existing, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return mapTaskRepoError(err)
	}
	if existing.OwnerID != principal.UserID && !principal.IsAdmin {
		return ErrUnauthorized
	}

	if err := s.templates.DeleteTemplate(ctx, templateID); err != nil {
		return mapTaskRepoError(err)
	}

	logger.InfoContext(ctx, "template deleted")
	return nil
}

// PreviewTemplate projects the template's upcoming occurrences without
// persisting anything.
func (s *TemplateService) PreviewTemplate(ctx context.Context, params PreviewTemplateParams) ([]OccurrencePreview, error) {
	if s == nil {
		return nil, fmt.Errorf("TemplateService is nil")
	}
	if s.templates == nil {
		return nil, fmt.Errorf("template repository not configured")
	}

	stored, err := s.templates.GetTemplate(ctx, params.TemplateID)
	if err != nil {
		return nil, mapTaskRepoError(err)
	}
	if stored.OwnerID != params.Principal.UserID && !params.Principal.IsAdmin {
		return nil, ErrUnauthorized
	}

	rule, tod, vErr := validateTemplateInput(templateToInput(stored))
	if vErr.HasErrors() {
		return nil, vErr
	}

	from := params.From
	if from.IsZero() {
		from = s.now()
	}
	horizon := params.HorizonDays
	if horizon <= 0 || horizon > s.horizonDays {
		horizon = s.horizonDays
	}

	occurrences, err := s.engine.Occurrences(rule, tod, time.Duration(stored.DurationMinutes)*time.Minute, from, horizon)
	if err != nil {
		return nil, err
	}

	previews := make([]OccurrencePreview, 0, len(occurrences))
	for _, occurrence := range occurrences {
		previews = append(previews, OccurrencePreview{Start: occurrence.Start, End: occurrence.End})
	}
	return previews, nil
}

// MaterializeDue expands every enabled template into its next concrete task.
// A template whose next occurrence is already covered by an earlier run is
// skipped; an occurrence that collides with an existing task is skipped and
// marked so the run does not retry it forever. Returns the number of tasks
// created.
func (s *TemplateService) MaterializeDue(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("TemplateService is nil")
	}
	if s.templates == nil {
		return 0, fmt.Errorf("template repository not configured")
	}
	if s.taskCreator == nil {
		return 0, fmt.Errorf("task creator not configured")
	}

	logger := s.loggerWith(ctx, "MaterializeDue")

	stored, err := s.templates.ListEnabledTemplates(ctx)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	created := 0
	var failures []error
	for _, record := range stored {
		ok, err := s.materializeOne(ctx, logger, record)
		if err != nil {
			failures = append(failures, fmt.Errorf("template %s: %w", record.ID, err))
			continue
		}
		if ok {
			created++
		}
	}

	if len(failures) > 0 {
		return created, errors.Join(failures...)
	}
	logger.InfoContext(ctx, "materialization run finished", "created", created, "templates", len(stored))
	return created, nil
}

func (s *TemplateService) materializeOne(ctx context.Context, logger *slog.Logger, record persistence.Template) (bool, error) {
	rule, tod, vErr := validateTemplateInput(templateToInput(record))
	if vErr.HasErrors() {
		return false, vErr
	}

	start, found := s.engine.NextOccurrence(rule, tod, s.now(), s.horizonDays)
	if !found {
		return false, nil
	}
	if record.LastMaterialized != nil && !start.After(*record.LastMaterialized) {
		return false, nil
	}

	input := TaskInput{
		OwnerID: record.OwnerID,
		Title:   record.Title,
		Memo:    record.Memo,
		Start:   start,
		End:     start.Add(time.Duration(record.DurationMinutes) * time.Minute),
		Notify:  toSettings(record.Notify),
	}

	_, err := s.taskCreator.CreateFromTemplate(ctx, record.ID, input)
	if err != nil {
		var cErr *ConflictError
		if !errors.As(err, &cErr) {
			return false, err
		}
		// The slot is taken by a manually planned task. Mark the occurrence
		// consumed so the next run moves on to the following one.
		logger.WarnContext(ctx, "occurrence skipped, slot occupied",
			"template_id", record.ID, "start", start)
	}

	if markErr := s.templates.MarkMaterialized(ctx, record.ID, start); markErr != nil {
		return err == nil, markErr
	}
	return err == nil, nil
}

func templateToInput(record persistence.Template) TemplateInput {
	return TemplateInput{
		OwnerID:         record.OwnerID,
		Title:           record.Title,
		Memo:            record.Memo,
		RuleKind:        record.RuleKind,
		Weekday:         record.Weekday,
		WeekNumber:      record.WeekNumber,
		DayNumber:       record.DayNumber,
		Month:           record.Month,
		StartMinutes:    record.StartMinutes,
		DurationMinutes: record.DurationMinutes,
		Notify:          toSettings(record.Notify),
		Enabled:         record.Enabled,
	}
}

func toTemplate(record persistence.Template) Template {
	return Template{
		ID:               record.ID,
		OwnerID:          record.OwnerID,
		Title:            record.Title,
		Memo:             record.Memo,
		RuleKind:         record.RuleKind,
		Weekday:          record.Weekday,
		WeekNumber:       record.WeekNumber,
		DayNumber:        record.DayNumber,
		Month:            record.Month,
		StartMinutes:     record.StartMinutes,
		DurationMinutes:  record.DurationMinutes,
		Notify:           toSettings(record.Notify),
		Enabled:          record.Enabled,
		LastMaterialized: record.LastMaterialized,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
}

// validateTemplateInput checks the flattened rule fields and returns the
// constructed rule and start time when they are valid.
func validateTemplateInput(input TemplateInput) (recurrence.Rule, recurrence.TimeOfDay, *ValidationError) {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}

	rule, ruleErr := buildRule(input)
	if ruleErr != nil {
		vErr.add("rule", ruleErr.Error())
	}

	tod, todErr := recurrence.TimeOfDayFromMinutes(input.StartMinutes)
	if todErr != nil {
		vErr.add("start_minutes", "start must fall within the day")
	}

	if input.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}

	return rule, tod, vErr
}

func buildRule(input TemplateInput) (recurrence.Rule, error) {
	kind, err := recurrence.ParseKind(input.RuleKind)
	if err != nil {
		return recurrence.Rule{}, err
	}

	switch kind {
	case recurrence.KindWeekday:
		return recurrence.NewWeekdayRule(time.Weekday(input.Weekday))
	case recurrence.KindWeekdayInMonth:
		return recurrence.NewWeekdayInMonthRule(time.Weekday(input.Weekday), input.WeekNumber)
	case recurrence.KindMonthDay:
		return recurrence.NewMonthDayRule(input.DayNumber)
	case recurrence.KindYearDay:
		return recurrence.NewYearDayRule(time.Month(input.Month), input.DayNumber)
	default:
		return recurrence.Rule{}, recurrence.ErrInvalidRule
	}
}
