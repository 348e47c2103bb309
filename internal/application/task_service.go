package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/dayplan/internal/alarm"
	"github.com/example/dayplan/internal/notification"
	"github.com/example/dayplan/internal/persistence"
	"github.com/example/dayplan/internal/scheduler"
)

// TaskService orchestrates validation, overlap rejection, persistence, and
// alarm registration for calendar tasks.
type TaskService struct {
	tasks       persistence.TaskRepository
	alarms      alarm.Scheduler
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	logger      *slog.Logger
	warnings    *warningCache
	ownerLocks  keyedMutex
}

// NewTaskService wires dependencies for task operations. The alarm scheduler
// may be nil when reminder delivery is disabled.
func NewTaskService(tasks persistence.TaskRepository, alarms alarm.Scheduler, idGenerator func() string, now func() time.Time, location *time.Location, logger *slog.Logger) *TaskService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.UTC
	}
	return &TaskService{
		tasks:       tasks,
		alarms:      alarms,
		idGenerator: idGenerator,
		now:         now,
		location:    location,
		logger:      defaultLogger(logger),
		warnings:    newWarningCache(0, 0, now),
	}
}

func (s *TaskService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TaskService", operation, attrs...)
}

// CreateTask validates the request, rejects overlapping ranges, and persists
// the task. The read-check-write sequence runs under the owner's lock so two
// concurrent creates cannot both pass the overlap check.
func (s *TaskService) CreateTask(ctx context.Context, params CreateTaskParams) (Task, error) {
	return s.create(ctx, params.Principal, params.Input, nil)
}

// CreateFromTemplate persists a task materialized from a template on behalf
// of the template's owner, running the same validation and overlap rejection
// as CreateTask.
func (s *TaskService) CreateFromTemplate(ctx context.Context, templateID string, input TaskInput) (Task, error) {
	return s.create(ctx, Principal{UserID: input.OwnerID}, input, &templateID)
}

func (s *TaskService) create(ctx context.Context, principal Principal, input TaskInput, templateID *string) (task Task, err error) {
	if s == nil {
		err = fmt.Errorf("TaskService is nil")
		return
	}
	if s.tasks == nil {
		err = fmt.Errorf("task repository not configured")
		return
	}

	if input.OwnerID == "" {
		input.OwnerID = principal.UserID
	}

	logger := s.loggerWith(ctx, "CreateTask", "owner_id", input.OwnerID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "task creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("task_id", task.ID).InfoContext(ctx, "task created")
	}()

	if input.OwnerID != principal.UserID && !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	rng, vErr := validateTaskInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	unlock := s.ownerLocks.lock(input.OwnerID)
	defer unlock()

	if err = s.rejectOverlap(ctx, input.OwnerID, rng, ""); err != nil {
		return
	}

	candidate := persistence.Task{
		ID:         s.idGenerator(),
		OwnerID:    input.OwnerID,
		Title:      strings.TrimSpace(input.Title),
		Memo:       input.Memo,
		Start:      input.Start,
		End:        input.End,
		TemplateID: templateID,
		Notify:     toStoredFlags(input.Notify),
	}

	persisted, err := s.tasks.CreateTask(ctx, candidate)
	if err != nil {
		err = mapTaskRepoError(err)
		return
	}

	task = toTask(persisted)
	s.warnings.Invalidate()
	s.registerAlarms(task)
	return
}

// UpdateTask applies validation and authorization before rewriting a task.
// The task's own range is excluded from the overlap check so a task can
// always be moved within its current slot.
func (s *TaskService) UpdateTask(ctx context.Context, params UpdateTaskParams) (task Task, err error) {
	if s == nil {
		err = fmt.Errorf("TaskService is nil")
		return
	}
	if s.tasks == nil {
		err = fmt.Errorf("task repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateTask", "task_id", params.TaskID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "task update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "task updated")
	}()

	existing, err := s.tasks.GetTask(ctx, params.TaskID)
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
	rng, coreErr := validateTaskInput(input)
	if coreErr.HasErrors() {
		for field, msg := range coreErr.FieldErrors {
			vErr.add(field, msg)
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	unlock := s.ownerLocks.lock(existing.OwnerID)
	defer unlock()

	if err = s.rejectOverlap(ctx, existing.OwnerID, rng, existing.ID); err != nil {
		return
	}

	updated := existing
	updated.Title = strings.TrimSpace(input.Title)
	updated.Memo = input.Memo
	updated.Start = input.Start
	updated.End = input.End
	updated.Notify = toStoredFlags(input.Notify)

	if err = s.tasks.UpdateTask(ctx, updated); err != nil {
		err = mapTaskRepoError(err)
		return
	}

	stored, err := s.tasks.GetTask(ctx, updated.ID)
	if err != nil {
		err = mapTaskRepoError(err)
		return
	}

	task = toTask(stored)
	s.warnings.Invalidate()
	s.registerAlarms(task)
	return
}

// GetTask returns a single task visible to the principal.
func (s *TaskService) GetTask(ctx context.Context, principal Principal, taskID string) (Task, error) {
	if s == nil {
		return Task{}, fmt.Errorf("TaskService is nil")
	}
	if s.tasks == nil {
		return Task{}, fmt.Errorf("task repository not configured")
	}

	stored, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, mapTaskRepoError(err)
	}
	if stored.OwnerID != principal.UserID && !principal.IsAdmin {
		return Task{}, ErrUnauthorized
	}
	return toTask(stored), nil
}

// DeleteTask removes a task and cancels its pending alarms.
func (s *TaskService) DeleteTask(ctx context.Context, principal Principal, taskID string) error {
	if s == nil {
		return fmt.Errorf("TaskService is nil")
	}
	if s.tasks == nil {
		return fmt.Errorf("task repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteTask", "task_id", taskID)

	existing, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return mapTaskRepoError(err)
	}
	if existing.OwnerID != principal.UserID && !principal.IsAdmin {
		return ErrUnauthorized
	}

	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return mapTaskRepoError(err)
	}

	s.warnings.Invalidate()
	s.cancelAlarms(existing.AlarmBaseKey)
	logger.InfoContext(ctx, "task deleted")
	return nil
}

// ListTasks enumerates tasks visible to the principal, ordered by start time,
// with pairwise overlap warnings for the returned window.
func (s *TaskService) ListTasks(ctx context.Context, params ListTasksParams) ([]Task, []OverlapWarning, error) {
	if s == nil {
		return nil, nil, fmt.Errorf("TaskService is nil")
	}
	if s.tasks == nil {
		return nil, nil, fmt.Errorf("task repository not configured")
	}

	ownerID := params.OwnerID
	if ownerID == "" {
		ownerID = params.Principal.UserID
	}
	if ownerID != params.Principal.UserID && !params.Principal.IsAdmin {
		return nil, nil, ErrUnauthorized
	}

	filter := s.buildListFilter(ownerID, params)

	stored, err := s.tasks.ListTasks(ctx, filter)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	tasks := make([]Task, 0, len(stored))
	for _, record := range stored {
		tasks = append(tasks, toTask(record))
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Start.Equal(tasks[j].Start) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].Start.Before(tasks[j].Start)
	})

	cacheKey := buildWarningCacheKey(ownerID, params, filter)
	warnings, ok := s.warnings.Get(cacheKey)
	if !ok {
		warnings = detectListOverlaps(tasks)
		s.warnings.Store(cacheKey, warnings)
	}

	return tasks, warnings, nil
}

// rejectOverlap loads the owner's tasks overlapping the candidate range and
// fails with a ConflictError when the detector reports an intrusion.
func (s *TaskService) rejectOverlap(ctx context.Context, ownerID string, candidate scheduler.TimeRange, excludeID string) error {
	filter := persistence.TaskFilter{
		OwnerID:     ownerID,
		StartsAfter: &candidate.From,
		EndsBefore:  &candidate.To,
	}

	stored, err := s.tasks.ListTasks(ctx, filter)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return err
	}

	existing := make([]scheduler.TimeRange, 0, len(stored))
	for _, record := range stored {
		if record.ID == excludeID {
			continue
		}
		rng, err := scheduler.NewTimeRange(record.Start, record.End)
		if err != nil {
			continue
		}
		existing = append(existing, rng)
	}

	result := scheduler.CheckOverlap(candidate, existing)
	if !result.IsOverlap {
		return nil
	}
	return &ConflictError{LeftBorder: result.LeftBorder, RightBorder: result.RightBorder}
}

func (s *TaskService) buildListFilter(ownerID string, params ListTasksParams) persistence.TaskFilter {
	startsAfter := params.StartsAfter
	endsBefore := params.EndsBefore

	if params.Period != ListPeriodNone {
		start, end := s.computePeriodRange(params.Period, params.PeriodReference)
		if startsAfter == nil {
			startsAfter = &start
		}
		if endsBefore == nil {
			endsBefore = &end
		}
	}

	return persistence.TaskFilter{
		OwnerID:     ownerID,
		StartsAfter: startsAfter,
		EndsBefore:  endsBefore,
	}
}

func (s *TaskService) computePeriodRange(period ListPeriod, reference time.Time) (time.Time, time.Time) {
	switch period {
	case ListPeriodDay:
		start := s.startOfDay(reference)
		return start, start.AddDate(0, 0, 1)
	case ListPeriodWeek:
		start := s.startOfWeek(reference)
		return start, start.AddDate(0, 0, 7)
	case ListPeriodMonth:
		start := s.startOfMonth(reference)
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}

func (s *TaskService) startOfDay(t time.Time) time.Time {
	local := t.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
}

func (s *TaskService) startOfWeek(t time.Time) time.Time {
	start := s.startOfDay(t)
	// Monday-start week. In Go, Monday == 1 and Sunday == 0.
	offset := (int(start.Weekday()) + 6) % 7
	return start.AddDate(0, 0, -offset)
}

func (s *TaskService) startOfMonth(t time.Time) time.Time {
	start := s.startOfDay(t)
	return time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, s.location)
}

// registerAlarms replaces the task's alarm block with the triggers derived
// from its current range and settings. Instants already in the past are
// skipped rather than fired on registration.
func (s *TaskService) registerAlarms(task Task) {
	if s.alarms == nil {
		return
	}

	s.cancelAlarms(task.AlarmBaseKey)

	rng, err := scheduler.NewTimeRange(task.Start, task.End)
	if err != nil {
		return
	}

	now := s.now()
	for _, trigger := range notification.Plan(rng, toPreferences(task.Notify), task.AlarmBaseKey) {
		if !trigger.At.After(now) {
			continue
		}
		s.alarms.Schedule(trigger.AlarmID, trigger.At)
	}
}

func (s *TaskService) cancelAlarms(baseKey int64) {
	if s.alarms == nil || baseKey == 0 {
		return
	}
	for _, kind := range allOffsetKinds {
		s.alarms.Cancel(notification.AlarmID(baseKey, kind))
	}
}

var allOffsetKinds = []notification.OffsetKind{
	notification.KindStart,
	notification.KindFifteenMinutesBefore,
	notification.KindOneHourBefore,
	notification.KindThreeHoursBefore,
	notification.KindOneDayBefore,
	notification.KindOneWeekBefore,
	notification.KindBeforeEnd,
}

// detectListOverlaps reports every overlapping pair among the listed tasks.
func detectListOverlaps(tasks []Task) []OverlapWarning {
	if len(tasks) <= 1 {
		return nil
	}

	ranges := make([]scheduler.TimeRange, len(tasks))
	for i, task := range tasks {
		rng, err := scheduler.NewTimeRange(task.Start, task.End)
		if err != nil {
			continue
		}
		ranges[i] = rng
	}

	var warnings []OverlapWarning
	for i := range tasks {
		for j := i + 1; j < len(tasks); j++ {
			result := scheduler.CheckOverlap(ranges[i], []scheduler.TimeRange{ranges[j]})
			if !result.IsOverlap {
				continue
			}
			warnings = append(warnings, OverlapWarning{
				TaskID:      tasks[i].ID,
				WithTaskID:  tasks[j].ID,
				LeftBorder:  result.LeftBorder,
				RightBorder: result.RightBorder,
			})
		}
	}
	return warnings
}

func validateTaskInput(input TaskInput) (scheduler.TimeRange, *ValidationError) {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	}

	var rng scheduler.TimeRange
	if !input.Start.IsZero() && !input.End.IsZero() {
		var err error
		rng, err = scheduler.NewTimeRange(input.Start, input.End)
		if err != nil {
			vErr.add("time", "start must be before end")
		}
	}

	return rng, vErr
}

func toTask(record persistence.Task) Task {
	return Task{
		ID:           record.ID,
		OwnerID:      record.OwnerID,
		Title:        record.Title,
		Memo:         record.Memo,
		Start:        record.Start,
		End:          record.End,
		TemplateID:   record.TemplateID,
		AlarmBaseKey: record.AlarmBaseKey,
		Notify:       toSettings(record.Notify),
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func toStoredFlags(settings NotificationSettings) persistence.NotificationFlags {
	return persistence.NotificationFlags{
		Enabled:              settings.Enabled,
		FifteenMinutesBefore: settings.FifteenMinutesBefore,
		OneHourBefore:        settings.OneHourBefore,
		ThreeHoursBefore:     settings.ThreeHoursBefore,
		OneDayBefore:         settings.OneDayBefore,
		OneWeekBefore:        settings.OneWeekBefore,
		BeforeEnd:            settings.BeforeEnd,
	}
}

func toSettings(flags persistence.NotificationFlags) NotificationSettings {
	return NotificationSettings{
		Enabled:              flags.Enabled,
		FifteenMinutesBefore: flags.FifteenMinutesBefore,
		OneHourBefore:        flags.OneHourBefore,
		ThreeHoursBefore:     flags.ThreeHoursBefore,
		OneDayBefore:         flags.OneDayBefore,
		OneWeekBefore:        flags.OneWeekBefore,
		BeforeEnd:            flags.BeforeEnd,
	}
}

func toPreferences(settings NotificationSettings) notification.Preferences {
	return notification.Preferences{
		Enabled:              settings.Enabled,
		FifteenMinutesBefore: settings.FifteenMinutesBefore,
		OneHourBefore:        settings.OneHourBefore,
		ThreeHoursBefore:     settings.ThreeHoursBefore,
		OneDayBefore:         settings.OneDayBefore,
		OneWeekBefore:        settings.OneWeekBefore,
		BeforeEnd:            settings.BeforeEnd,
	}
}

func mapTaskRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("time", "start must be before end")
		return vErr
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("owner_id", "owner does not exist")
		return vErr
	}
	return err
}

// keyedMutex serializes task writes per owner so the overlap check and the
// subsequent insert form one atomic step.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*ownerLock)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &ownerLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
