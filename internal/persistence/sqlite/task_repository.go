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

// alarmKeyStride spaces alarm base keys so the per-task trigger id amounts
// (1 through 7) never collide across tasks.
const alarmKeyStride = 8

const taskColumns = `id, owner_id, title, memo, start_time, end_time, template_id, alarm_base_key,
	notify_enabled, notify_15m, notify_1h, notify_3h, notify_1d, notify_1w, notify_end,
	created_at, updated_at`

// TaskRepository implements persistence.TaskRepository using SQLite.
type TaskRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewTaskRepository creates a new SQLite task repository.
func NewTaskRepository(pool *ConnectionPool) *TaskRepository {
	return &TaskRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// CreateTask inserts a task and assigns its alarm base key. The key is
// computed from the current maximum inside the insert transaction so two
// concurrent creates cannot pick the same block.
func (r *TaskRepository) CreateTask(ctx context.Context, task persistence.Task) (persistence.Task, error) {
	if task.ID == "" || task.OwnerID == "" || task.Title == "" {
		return persistence.Task{}, persistence.ErrConstraintViolation
	}
	if !task.Start.Before(task.End) {
		return persistence.Task{}, persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	// The MAX read and the insert share a transaction, which makes this the
	// write most likely to hit a busy database under WAL. Retried as a unit.
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var maxKey int64
			if err := r.helper.QueryRowTx(tx,
				`SELECT COALESCE(MAX(alarm_base_key), 0) FROM tasks`,
			).Scan(&maxKey); err != nil {
				return r.mapper.MapError(err)
			}
			task.AlarmBaseKey = maxKey + alarmKeyStride

			query := `
				INSERT INTO tasks (` + taskColumns + `)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`
			_, err := r.helper.ExecTx(tx, query,
				task.ID,
				task.OwnerID,
				task.Title,
				nullableString(task.Memo),
				task.Start.UTC().Format(time.RFC3339),
				task.End.UTC().Format(time.RFC3339),
				nullableString(task.TemplateID),
				task.AlarmBaseKey,
				task.Notify.Enabled,
				task.Notify.FifteenMinutesBefore,
				task.Notify.OneHourBefore,
				task.Notify.ThreeHoursBefore,
				task.Notify.OneDayBefore,
				task.Notify.OneWeekBefore,
				task.Notify.BeforeEnd,
				task.CreatedAt.Format(time.RFC3339),
				task.UpdatedAt.Format(time.RFC3339),
			)
			if err != nil {
				return r.mapTaskError(err)
			}
			return nil
		})
	})
	if err != nil {
		return persistence.Task{}, err
	}

	return task, nil
}

// UpdateTask rewrites a task's mutable fields. The alarm base key is fixed
// at creation and never changes.
func (r *TaskRepository) UpdateTask(ctx context.Context, task persistence.Task) error {
	if task.ID == "" || task.OwnerID == "" || task.Title == "" {
		return persistence.ErrConstraintViolation
	}
	if !task.Start.Before(task.End) {
		return persistence.ErrConstraintViolation
	}

	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET title = ?, memo = ?, start_time = ?, end_time = ?,
			notify_enabled = ?, notify_15m = ?, notify_1h = ?, notify_3h = ?,
			notify_1d = ?, notify_1w = ?, notify_end = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.helper.Exec(ctx, query,
		task.Title,
		nullableString(task.Memo),
		task.Start.UTC().Format(time.RFC3339),
		task.End.UTC().Format(time.RFC3339),
		task.Notify.Enabled,
		task.Notify.FifteenMinutesBefore,
		task.Notify.OneHourBefore,
		task.Notify.ThreeHoursBefore,
		task.Notify.OneDayBefore,
		task.Notify.OneWeekBefore,
		task.Notify.BeforeEnd,
		task.UpdatedAt.Format(time.RFC3339),
		task.ID,
	)
	if err != nil {
		return r.mapTaskError(err)
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

// GetTask retrieves a task by ID.
func (r *TaskRepository) GetTask(ctx context.Context, id string) (persistence.Task, error) {
	if id == "" {
		return persistence.Task{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Task{}, persistence.ErrNotFound
		}
		return persistence.Task{}, r.mapper.MapError(err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter ordered by start time then ID.
// The time window matches any task overlapping it, touching excluded.
func (r *TaskRepository) ListTasks(ctx context.Context, filter persistence.TaskFilter) ([]persistence.Task, error) {
	var (
		conds []string
		args  []any
	)
	if filter.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.StartsAfter != nil {
		conds = append(conds, "end_time > ?")
		args = append(args, filter.StartsAfter.UTC().Format(time.RFC3339))
	}
	if filter.EndsBefore != nil {
		conds = append(conds, "start_time < ?")
		args = append(args, filter.EndsBefore.UTC().Format(time.RFC3339))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var tasks []persistence.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return tasks, nil
}

// DeleteTask removes a task by ID.
func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return r.mapTaskError(err)
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

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (persistence.Task, error) {
	var (
		task                    persistence.Task
		memo, templateID        sql.NullString
		startStr, endStr        string
		createdAtStr, updatedAt string
	)

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&memo,
		&startStr,
		&endStr,
		&templateID,
		&task.AlarmBaseKey,
		&task.Notify.Enabled,
		&task.Notify.FifteenMinutesBefore,
		&task.Notify.OneHourBefore,
		&task.Notify.ThreeHoursBefore,
		&task.Notify.OneDayBefore,
		&task.Notify.OneWeekBefore,
		&task.Notify.BeforeEnd,
		&createdAtStr,
		&updatedAt,
	)
	if err != nil {
		return persistence.Task{}, err
	}

	if memo.Valid {
		task.Memo = &memo.String
	}
	if templateID.Valid {
		task.TemplateID = &templateID.String
	}
	if task.Start, err = time.Parse(time.RFC3339, startStr); err != nil {
		return persistence.Task{}, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if task.End, err = time.Parse(time.RFC3339, endStr); err != nil {
		return persistence.Task{}, fmt.Errorf("failed to parse end_time: %w", err)
	}
	if task.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Task{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if task.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return persistence.Task{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return task, nil
}

func (r *TaskRepository) mapTaskError(err error) error {
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

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
