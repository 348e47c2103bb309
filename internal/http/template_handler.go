package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/dayplan/internal/application"
)

type templateService interface {
	CreateTemplate(ctx context.Context, params application.CreateTemplateParams) (application.Template, error)
	UpdateTemplate(ctx context.Context, params application.UpdateTemplateParams) (application.Template, error)
	GetTemplate(ctx context.Context, principal application.Principal, templateID string) (application.Template, error)
	ListTemplates(ctx context.Context, principal application.Principal, ownerID string) ([]application.Template, error)
	DeleteTemplate(ctx context.Context, principal application.Principal, templateID string) error
	PreviewTemplate(ctx context.Context, params application.PreviewTemplateParams) ([]application.OccurrencePreview, error)
}

type TemplateHandler struct {
	service   templateService
	responder responder
	logger    *slog.Logger
}

func NewTemplateHandler(service templateService, logger *slog.Logger) *TemplateHandler {
	base := defaultLogger(logger)
	return &TemplateHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *TemplateHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "TemplateHandler", operation, attrs...)
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode template request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	tmpl, err := h.service.CreateTemplate(r.Context(), application.CreateTemplateParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "template creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("template_id", tmpl.ID).InfoContext(r.Context(), "template created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, templateResponse{Template: toTemplateDTO(tmpl)})
}

func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	templateID, ok := TemplateIDFromContext(r.Context())
	if !ok || strings.TrimSpace(templateID) == "" {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "missing template id for update")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTemplateID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "template_id", templateID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode template update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "template_id", templateID)

	tmpl, err := h.service.UpdateTemplate(r.Context(), application.UpdateTemplateParams{
		Principal:  principal,
		TemplateID: templateID,
		Input:      req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "template update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "template updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, templateResponse{Template: toTemplateDTO(tmpl)})
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	templateID, ok := TemplateIDFromContext(r.Context())
	if !ok || strings.TrimSpace(templateID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTemplateID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	tmpl, err := h.service.GetTemplate(r.Context(), principal, templateID)
	if err != nil {
		h.log(r.Context(), "Get", "principal_id", principal.UserID, "template_id", templateID).ErrorContext(r.Context(), "template fetch failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, templateResponse{Template: toTemplateDTO(tmpl)})
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	templateID, ok := TemplateIDFromContext(r.Context())
	if !ok || strings.TrimSpace(templateID) == "" {
		h.log(r.Context(), "Delete", "error_kind", "bad_request").ErrorContext(r.Context(), "missing template id for delete")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTemplateID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "template_id", templateID)
	if err := h.service.DeleteTemplate(r.Context(), principal, templateID); err != nil {
		logger.ErrorContext(r.Context(), "template delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "template deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner"))
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID, "owner_id", ownerID)

	templates, err := h.service.ListTemplates(r.Context(), principal, ownerID)
	if err != nil {
		logger.ErrorContext(r.Context(), "template list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(templates)).InfoContext(r.Context(), "templates listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listTemplatesResponse{Templates: toTemplateDTOs(templates)})
}

func (h *TemplateHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	templateID, ok := TemplateIDFromContext(r.Context())
	if !ok || strings.TrimSpace(templateID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTemplateID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	params := application.PreviewTemplateParams{
		Principal:  principal,
		TemplateID: templateID,
		From:       parseTime(r.URL.Query().Get("from")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("horizon_days")); raw != "" {
		if days, err := strconv.Atoi(raw); err == nil && days > 0 {
			params.HorizonDays = days
		}
	}

	logger := h.log(r.Context(), "Preview", "principal_id", principal.UserID, "template_id", templateID)

	occurrences, err := h.service.PreviewTemplate(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "template preview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(occurrences)).InfoContext(r.Context(), "template previewed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, previewResponse{Occurrences: toOccurrenceDTOs(occurrences)})
}

type templateRequest struct {
	OwnerID         string          `json:"owner_id"`
	Title           string          `json:"title"`
	Memo            *string         `json:"memo"`
	RuleKind        string          `json:"rule_kind"`
	Weekday         int             `json:"weekday"`
	WeekNumber      int             `json:"week_number"`
	DayNumber       int             `json:"day_number"`
	Month           int             `json:"month"`
	StartMinutes    int             `json:"start_minutes"`
	DurationMinutes int             `json:"duration_minutes"`
	Notify          notificationDTO `json:"notify"`
	Enabled         bool            `json:"enabled"`
}

func (r templateRequest) toInput() application.TemplateInput {
	return application.TemplateInput{
		OwnerID:         strings.TrimSpace(r.OwnerID),
		Title:           strings.TrimSpace(r.Title),
		Memo:            r.Memo,
		RuleKind:        strings.TrimSpace(r.RuleKind),
		Weekday:         r.Weekday,
		WeekNumber:      r.WeekNumber,
		DayNumber:       r.DayNumber,
		Month:           r.Month,
		StartMinutes:    r.StartMinutes,
		DurationMinutes: r.DurationMinutes,
		Notify:          r.Notify.toSettings(),
		Enabled:         r.Enabled,
	}
}

type templateResponse struct {
	Template templateDTO `json:"template"`
}

type listTemplatesResponse struct {
	Templates []templateDTO `json:"templates"`
}

type previewResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type templateDTO struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"owner_id"`
	Title            string          `json:"title"`
	Memo             *string         `json:"memo,omitempty"`
	RuleKind         string          `json:"rule_kind"`
	Weekday          int             `json:"weekday"`
	WeekNumber       int             `json:"week_number"`
	DayNumber        int             `json:"day_number"`
	Month            int             `json:"month"`
	StartMinutes     int             `json:"start_minutes"`
	DurationMinutes  int             `json:"duration_minutes"`
	Notify           notificationDTO `json:"notify"`
	Enabled          bool            `json:"enabled"`
	LastMaterialized string          `json:"last_materialized,omitempty"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

func toTemplateDTO(tmpl application.Template) templateDTO {
	dto := templateDTO{
		ID:              tmpl.ID,
		OwnerID:         tmpl.OwnerID,
		Title:           tmpl.Title,
		Memo:            tmpl.Memo,
		RuleKind:        tmpl.RuleKind,
		Weekday:         tmpl.Weekday,
		WeekNumber:      tmpl.WeekNumber,
		DayNumber:       tmpl.DayNumber,
		Month:           tmpl.Month,
		StartMinutes:    tmpl.StartMinutes,
		DurationMinutes: tmpl.DurationMinutes,
		Notify:          toNotificationDTO(tmpl.Notify),
		Enabled:         tmpl.Enabled,
		CreatedAt:       tmpl.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       tmpl.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if tmpl.LastMaterialized != nil {
		dto.LastMaterialized = tmpl.LastMaterialized.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

func toTemplateDTOs(templates []application.Template) []templateDTO {
	if len(templates) == 0 {
		return nil
	}
	out := make([]templateDTO, 0, len(templates))
	for _, tmpl := range templates {
		out = append(out, toTemplateDTO(tmpl))
	}
	return out
}

type occurrenceDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toOccurrenceDTOs(occurrences []application.OccurrencePreview) []occurrenceDTO {
	if len(occurrences) == 0 {
		return nil
	}

	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, occurrence := range occurrences {
		out = append(out, occurrenceDTO{
			Start: occurrence.Start.UTC().Format(time.RFC3339Nano),
			End:   occurrence.End.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}
