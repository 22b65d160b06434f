package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"taskhive/internal/models"
)

var (
	// ErrTaskNotFound: no task with the given id exists.
	ErrTaskNotFound = errors.New("task not found")

	// ErrStatusConflict: a conditional update matched zero rows; the task's
	// status (or assigned provider) no longer equals the expected value.
	ErrStatusConflict = errors.New("task status conflict")
)

// TaskRepository is the single mutation path for task state. Every status
// change is a compare-and-set keyed on (id, expected current status); there
// is deliberately no unconditional "set status" operation.
type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	FindByStatus(ctx context.Context, status models.TaskStatus) ([]models.Task, error)

	// Assign: pending -> assigned, sets provider_id and assigned_at.
	Assign(ctx context.Context, id, providerID string) error
	// Accept: assigned -> accepted for the named provider; drops the provider
	// from the history list if a previous attempt put it there.
	Accept(ctx context.Context, id, providerID string) error
	// Unassign: assigned|accepted -> pending; appends the current provider to
	// the history list and clears provider_id and assigned_at.
	Unassign(ctx context.Context, id string, from models.TaskStatus) error
	// Finish: CAS into a terminal status (approved/cancelled); clears
	// provider_id and assigned_at so a terminal task never looks dispatchable.
	Finish(ctx context.Context, id string, from, to models.TaskStatus) error
	// UpdateStatus: generic CAS edge with no provider-side effects.
	UpdateStatus(ctx context.Context, id string, from, to models.TaskStatus) error
	// UpdateStatusByProvider: like UpdateStatus but additionally requires the
	// task to be held by the named provider.
	UpdateStatusByProvider(ctx context.Context, id string, from, to models.TaskStatus, providerID string) error
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, capability, requester_id, provider_id, prev_provider_ids,
       status, origin_lon, origin_lat, price_min, price_max,
       created_at, updated_at, assigned_at`

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			id, capability, requester_id, provider_id, prev_provider_ids,
			status, origin_lon, origin_lat, price_min, price_max,
			created_at, updated_at, assigned_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`
	prev := task.PrevProviderIDs
	if prev == nil {
		prev = []string{} // nil array would insert NULL
	}
	return r.db.QueryRowContext(ctx, query,
		task.ID, task.Capability, task.RequesterID, nullString(task.ProviderID),
		pq.Array(prev), task.Status,
		task.Origin.Lon, task.Origin.Lat, task.Price.Min, task.Price.Max,
		task.CreatedAt, task.UpdatedAt, task.AssignedAt,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task := &models.Task{}
	if err := scanTask(r.db.QueryRowContext(ctx, query, id), task); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`

	conditions := []string{}
	args := []interface{}{}
	argID := 1

	if filter.RequesterID != nil {
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", argID))
		args = append(args, *filter.RequesterID)
		argID++
	}
	if filter.ProviderID != nil {
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", argID))
		args = append(args, *filter.ProviderID)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY created_at DESC"

	return r.queryTasks(ctx, baseQuery, args...)
}

func (r *taskRepository) FindByStatus(ctx context.Context, status models.TaskStatus) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 ORDER BY created_at ASC`
	return r.queryTasks(ctx, query, status)
}

func (r *taskRepository) Assign(ctx context.Context, id, providerID string) error {
	query := `
		UPDATE tasks SET status=$3, provider_id=$2, assigned_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status=$4`
	return r.execCAS(ctx, query, id, providerID, models.StatusAssigned, models.StatusPending)
}

func (r *taskRepository) Accept(ctx context.Context, id, providerID string) error {
	query := `
		UPDATE tasks SET status=$3,
			prev_provider_ids = array_remove(prev_provider_ids, $2),
			updated_at=NOW()
		WHERE id=$1 AND status=$4 AND provider_id=$2`
	return r.execCAS(ctx, query, id, providerID, models.StatusAccepted, models.StatusAssigned)
}

func (r *taskRepository) Unassign(ctx context.Context, id string, from models.TaskStatus) error {
	// The CASE keeps the history list duplicate-free when the same provider
	// relinquishes the task twice across assignments.
	query := `
		UPDATE tasks SET status=$2,
			prev_provider_ids = CASE
				WHEN provider_id = ANY(prev_provider_ids) THEN prev_provider_ids
				ELSE array_append(prev_provider_ids, provider_id)
			END,
			provider_id = NULL,
			assigned_at = NULL,
			updated_at = NOW()
		WHERE id=$1 AND status=$3 AND provider_id IS NOT NULL`
	return r.execCAS(ctx, query, id, models.StatusPending, from)
}

func (r *taskRepository) Finish(ctx context.Context, id string, from, to models.TaskStatus) error {
	query := `
		UPDATE tasks SET status=$2, provider_id=NULL, assigned_at=NULL, updated_at=NOW()
		WHERE id=$1 AND status=$3`
	return r.execCAS(ctx, query, id, to, from)
}

func (r *taskRepository) UpdateStatus(ctx context.Context, id string, from, to models.TaskStatus) error {
	query := `UPDATE tasks SET status=$2, updated_at=NOW() WHERE id=$1 AND status=$3`
	return r.execCAS(ctx, query, id, to, from)
}

func (r *taskRepository) UpdateStatusByProvider(ctx context.Context, id string, from, to models.TaskStatus, providerID string) error {
	query := `UPDATE tasks SET status=$2, updated_at=NOW() WHERE id=$1 AND status=$3 AND provider_id=$4`
	return r.execCAS(ctx, query, id, to, from, providerID)
}

func (r *taskRepository) execCAS(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *taskRepository) queryTasks(ctx context.Context, query string, args ...interface{}) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner, t *models.Task) error {
	var providerID sql.NullString
	var prev pq.StringArray
	if err := row.Scan(
		&t.ID, &t.Capability, &t.RequesterID, &providerID, &prev,
		&t.Status, &t.Origin.Lon, &t.Origin.Lat, &t.Price.Min, &t.Price.Max,
		&t.CreatedAt, &t.UpdatedAt, &t.AssignedAt,
	); err != nil {
		return err
	}
	t.ProviderID = providerID.String
	t.PrevProviderIDs = prev
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
