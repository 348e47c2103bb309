package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/dayplan/internal/persistence"
)

const templateColumns = `id, owner_id, title, memo, rule_kind, weekday, week_number, day_number, month,
	start_minutes, duration_minutes,
	notify_enabled, notify_15m, notify_1h, notify_3h, notify_1d, notify_1w, notify_end,
	enabled, last_materialized, created_at, updated_at`

// TemplateRepository implements persistence.TemplateRepository using SQLite.
type TemplateRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewTemplateRepository creates a new SQLite template repository.
func NewTemplateRepository(pool *ConnectionPool) *TemplateRepository {
	return &TemplateRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateTemplate inserts a recurring task template.
func (r *TemplateRepository) CreateTemplate(ctx context.Context, template persistence.Template) error {
	if template.ID == "" || template.OwnerID == "" || template.Title == "" {
		return persistence.ErrConstraintViolation
	}
	if template.RuleKind == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now

	query := `
		INSERT INTO templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		template.ID,
		template.OwnerID,
		template.Title,
		nullableString(template.Memo),
		template.RuleKind,
		template.Weekday,
		template.WeekNumber,
		template.DayNumber,
		template.Month,
		template.StartMinutes,
		template.DurationMinutes,
		template.Notify.Enabled,
		template.Notify.FifteenMinutesBefore,
		template.Notify.OneHourBefore,
		template.Notify.ThreeHoursBefore,
		template.Notify.OneDayBefore,
		template.Notify.OneWeekBefore,
		template.Notify.BeforeEnd,
		template.Enabled,
		nullableTime(template.LastMaterialized),
		template.CreatedAt.Format(time.RFC3339),
		template.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return r.mapTemplateError(err)
	}

	return nil
}

// UpdateTemplate rewrites a template's mutable fields.
func (r *TemplateRepository) UpdateTemplate(ctx context.Context, template persistence.Template) error {
	if template.ID == "" || template.OwnerID == "" || template.Title == "" {
		return persistence.ErrConstraintViolation
	}
	if template.RuleKind == "" {
		return persistence.ErrConstraintViolation
	}

	template.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE templates
		SET title = ?, memo = ?, rule_kind = ?, weekday = ?, week_number = ?, day_number = ?, month = ?,
			start_minutes = ?, duration_minutes = ?,
			notify_enabled = ?, notify_15m = ?, notify_1h = ?, notify_3h = ?,
			notify_1d = ?, notify_1w = ?, notify_end = ?,
			enabled = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.helper.Exec(ctx, query,
		template.Title,
		nullableString(template.Memo),
		template.RuleKind,
		template.Weekday,
		template.WeekNumber,
		template.DayNumber,
		template.Month,
		template.StartMinutes,
		template.DurationMinutes,
		template.Notify.Enabled,
		template.Notify.FifteenMinutesBefore,
		template.Notify.OneHourBefore,
		template.Notify.ThreeHoursBefore,
		template.Notify.OneDayBefore,
		template.Notify.OneWeekBefore,
		template.Notify.BeforeEnd,
		template.Enabled,
		template.UpdatedAt.Format(time.RFC3339),
		template.ID,
	)
	if err != nil {
		return r.mapTemplateError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// GetTemplate retrieves a template by ID.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (persistence.Template, error) {
	if id == "" {
		return persistence.Template{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	template, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Template{}, persistence.ErrNotFound
		}
		return persistence.Template{}, r.mapper.MapError(err)
	}
	return template, nil
}

// ListTemplates returns every template owned by the given user.
func (r *TemplateRepository) ListTemplates(ctx context.Context, ownerID string) ([]persistence.Template, error) {
	if ownerID == "" {
		return nil, persistence.ErrConstraintViolation
	}
	return r.list(ctx, `SELECT `+templateColumns+` FROM templates WHERE owner_id = ? ORDER BY created_at ASC, id ASC`, ownerID)
}

// ListEnabledTemplates returns every enabled template across all owners.
// The materializer job uses this to expand due recurrences.
func (r *TemplateRepository) ListEnabledTemplates(ctx context.Context) ([]persistence.Template, error) {
	return r.list(ctx, `SELECT `+templateColumns+` FROM templates WHERE enabled = 1 ORDER BY created_at ASC, id ASC`)
}

func (r *TemplateRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Template, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var templates []persistence.Template
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return templates, nil
}

// MarkMaterialized records the latest date for which a template has been
// expanded into a concrete task.
func (r *TemplateRepository) MarkMaterialized(ctx context.Context, id string, date time.Time) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx,
		`UPDATE templates SET last_materialized = ?, updated_at = ? WHERE id = ?`,
		date.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return r.mapTemplateError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// DeleteTemplate removes a template. Tasks already materialized from it
// survive with their template reference cleared by the schema.
func (r *TemplateRepository) DeleteTemplate(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return r.mapTemplateError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

func scanTemplate(row rowScanner) (persistence.Template, error) {
	var (
		template                persistence.Template
		memo                    sql.NullString
		lastMaterialized        sql.NullString
		createdAtStr, updatedAt string
	)

	err := row.Scan(
		&template.ID,
		&template.OwnerID,
		&template.Title,
		&memo,
		&template.RuleKind,
		&template.Weekday,
		&template.WeekNumber,
		&template.DayNumber,
		&template.Month,
		&template.StartMinutes,
		&template.DurationMinutes,
		&template.Notify.Enabled,
		&template.Notify.FifteenMinutesBefore,
		&template.Notify.OneHourBefore,
		&template.Notify.ThreeHoursBefore,
		&template.Notify.OneDayBefore,
		&template.Notify.OneWeekBefore,
		&template.Notify.BeforeEnd,
		&template.Enabled,
		&lastMaterialized,
		&createdAtStr,
		&updatedAt,
	)
	if err != nil {
		return persistence.Template{}, err
	}

	if memo.Valid {
		template.Memo = &memo.String
	}
	if lastMaterialized.Valid {
		parsed, err := time.Parse(time.RFC3339, lastMaterialized.String)
		if err != nil {
			return persistence.Template{}, fmt.Errorf("failed to parse last_materialized: %w", err)
		}
		template.LastMaterialized = &parsed
	}
	if template.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Template{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if template.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return persistence.Template{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return template, nil
}

func (r *TemplateRepository) mapTemplateError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return persistence.ErrDuplicate
	}
	if strings.Contains(errStr, "FOREIGN KEY constraint failed") {
		return persistence.ErrForeignKeyViolation
	}
	if strings.Contains(errStr, "CHECK constraint failed") {
		return persistence.ErrConstraintViolation
	}
	return r.mapper.MapError(err)
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
