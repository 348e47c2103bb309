package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/dayplan/internal/application"
)

type taskService interface {
	CreateTask(ctx context.Context, params application.CreateTaskParams) (application.Task, error)
	UpdateTask(ctx context.Context, params application.UpdateTaskParams) (application.Task, error)
	GetTask(ctx context.Context, principal application.Principal, taskID string) (application.Task, error)
	DeleteTask(ctx context.Context, principal application.Principal, taskID string) error
	ListTasks(ctx context.Context, params application.ListTasksParams) ([]application.Task, []application.OverlapWarning, error)
}

type TaskHandler struct {
	service   taskService
	responder responder
	logger    *slog.Logger
}

func NewTaskHandler(service taskService, logger *slog.Logger) *TaskHandler {
	base := defaultLogger(logger)
	return &TaskHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *TaskHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "TaskHandler", operation, attrs...)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode task request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	task, err := h.service.CreateTask(r.Context(), application.CreateTaskParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "task creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("task_id", task.ID).InfoContext(r.Context(), "task created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, taskResponse{Task: toTaskDTO(task)})
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	taskID, ok := TaskIDFromContext(r.Context())
	if !ok || strings.TrimSpace(taskID) == "" {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "missing task id for update")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTaskID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "task_id", taskID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode task update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "task_id", taskID)

	task, err := h.service.UpdateTask(r.Context(), application.UpdateTaskParams{
		Principal: principal,
		TaskID:    taskID,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "task update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "task updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, taskResponse{Task: toTaskDTO(task)})
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	taskID, ok := TaskIDFromContext(r.Context())
	if !ok || strings.TrimSpace(taskID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTaskID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	task, err := h.service.GetTask(r.Context(), principal, taskID)
	if err != nil {
		h.log(r.Context(), "Get", "principal_id", principal.UserID, "task_id", taskID).ErrorContext(r.Context(), "task fetch failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, taskResponse{Task: toTaskDTO(task)})
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	taskID, ok := TaskIDFromContext(r.Context())
	if !ok || strings.TrimSpace(taskID) == "" {
		h.log(r.Context(), "Delete", "error_kind", "bad_request").ErrorContext(r.Context(), "missing task id for delete")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTaskID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "task_id", taskID)
	if err := h.service.DeleteTask(r.Context(), principal, taskID); err != nil {
		logger.ErrorContext(r.Context(), "task delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "task deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	params := buildListTasksParams(r.URL.Query(), principal)
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID, "owner_id", params.OwnerID)

	tasks, warnings, err := h.service.ListTasks(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "task list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(tasks)).InfoContext(r.Context(), "tasks listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listTasksResponse{
		Tasks:    toTaskDTOs(tasks),
		Warnings: toWarningDTOs(warnings),
	})
}

type taskRequest struct {
	OwnerID string          `json:"owner_id"`
	Title   string          `json:"title"`
	Memo    *string         `json:"memo"`
	Start   string          `json:"start"`
	End     string          `json:"end"`
	Notify  notificationDTO `json:"notify"`
}

func (r taskRequest) toInput() application.TaskInput {
	return application.TaskInput{
		OwnerID: strings.TrimSpace(r.OwnerID),
		Title:   strings.TrimSpace(r.Title),
		Memo:    r.Memo,
		Start:   parseTime(r.Start),
		End:     parseTime(r.End),
		Notify:  r.Notify.toSettings(),
	}
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}

type notificationDTO struct {
	Enabled              bool `json:"enabled"`
	FifteenMinutesBefore bool `json:"fifteen_minutes_before"`
	OneHourBefore        bool `json:"one_hour_before"`
	ThreeHoursBefore     bool `json:"three_hours_before"`
	OneDayBefore         bool `json:"one_day_before"`
	OneWeekBefore        bool `json:"one_week_before"`
	BeforeEnd            bool `json:"before_end"`
}

func (d notificationDTO) toSettings() application.NotificationSettings {
	return application.NotificationSettings{
		Enabled:              d.Enabled,
		FifteenMinutesBefore: d.FifteenMinutesBefore,
		OneHourBefore:        d.OneHourBefore,
		ThreeHoursBefore:     d.ThreeHoursBefore,
		OneDayBefore:         d.OneDayBefore,
		OneWeekBefore:        d.OneWeekBefore,
		BeforeEnd:            d.BeforeEnd,
	}
}

func toNotificationDTO(settings application.NotificationSettings) notificationDTO {
	return notificationDTO{
		Enabled:              settings.Enabled,
		FifteenMinutesBefore: settings.FifteenMinutesBefore,
		OneHourBefore:        settings.OneHourBefore,
		ThreeHoursBefore:     settings.ThreeHoursBefore,
		OneDayBefore:         settings.OneDayBefore,
		OneWeekBefore:        settings.OneWeekBefore,
		BeforeEnd:            settings.BeforeEnd,
	}
}

type taskResponse struct {
	Task taskDTO `json:"task"`
}

type listTasksResponse struct {
	Tasks    []taskDTO           `json:"tasks"`
	Warnings []overlapWarningDTO `json:"warnings,omitempty"`
}

type taskDTO struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Title      string          `json:"title"`
	Memo       *string         `json:"memo,omitempty"`
	Start      string          `json:"start"`
	End        string          `json:"end"`
	TemplateID *string         `json:"template_id,omitempty"`
	Notify     notificationDTO `json:"notify"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

func toTaskDTO(task application.Task) taskDTO {
	return taskDTO{
		ID:         task.ID,
		OwnerID:    task.OwnerID,
		Title:      task.Title,
		Memo:       task.Memo,
		Start:      task.Start.UTC().Format(time.RFC3339Nano),
		End:        task.End.UTC().Format(time.RFC3339Nano),
		TemplateID: task.TemplateID,
		Notify:     toNotificationDTO(task.Notify),
		CreatedAt:  task.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toTaskDTOs(tasks []application.Task) []taskDTO {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]taskDTO, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskDTO(task))
	}
	return out
}

type overlapWarningDTO struct {
	TaskID      string `json:"task_id"`
	WithTaskID  string `json:"with_task_id"`
	LeftBorder  string `json:"left_border,omitempty"`
	RightBorder string `json:"right_border,omitempty"`
}

func toWarningDTOs(warnings []application.OverlapWarning) []overlapWarningDTO {
	if len(warnings) == 0 {
		return nil
	}

	out := make([]overlapWarningDTO, 0, len(warnings))
	for _, warning := range warnings {
		dto := overlapWarningDTO{
			TaskID:     warning.TaskID,
			WithTaskID: warning.WithTaskID,
		}
		if warning.LeftBorder != nil {
			dto.LeftBorder = warning.LeftBorder.UTC().Format(time.RFC3339Nano)
		}
		if warning.RightBorder != nil {
			dto.RightBorder = warning.RightBorder.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, dto)
	}
	return out
}

func buildListTasksParams(values url.Values, principal application.Principal) application.ListTasksParams {
	params := application.ListTasksParams{Principal: principal}

	if owner := strings.TrimSpace(values.Get("owner")); owner != "" {
		params.OwnerID = owner
	}

	if after := strings.TrimSpace(values.Get("starts_after")); after != "" {
		if ts, err := time.Parse(time.RFC3339Nano, after); err == nil {
			params.StartsAfter = &ts
		} else if ts, err := time.Parse(time.RFC3339, after); err == nil {
			params.StartsAfter = &ts
		}
	}

	if before := strings.TrimSpace(values.Get("ends_before")); before != "" {
		if ts, err := time.Parse(time.RFC3339Nano, before); err == nil {
			params.EndsBefore = &ts
		} else if ts, err := time.Parse(time.RFC3339, before); err == nil {
			params.EndsBefore = &ts
		}
	}

	if day := strings.TrimSpace(values.Get("day")); day != "" {
		if ts, err := time.Parse("2006-01-02", day); err == nil {
			params.Period = application.ListPeriodDay
			params.PeriodReference = ts
		}
	} else if week := strings.TrimSpace(values.Get("week")); week != "" {
		if ts, err := time.Parse("2006-01-02", week); err == nil {
			params.Period = application.ListPeriodWeek
			params.PeriodReference = ts
		}
	} else if month := strings.TrimSpace(values.Get("month")); month != "" {
		if ts, err := time.Parse("2006-01", month); err == nil {
			params.Period = application.ListPeriodMonth
			params.PeriodReference = ts
		}
	}

	return params
}
