package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/tasksphere/internal/model"
)

// TaskRepo stores tasks. A task carries no access rules of its own; callers
// load its project and check that.
type TaskRepo struct {
	db *sql.DB
}

func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{db: db} }

const taskColumns = "id, project_id, title, description, status, assignee_id, due_date, created_by, created_at, updated_at"

func scanTask(row rowScanner) (model.Task, error) {
	var (
		t        model.Task
		assignee sql.NullInt64
		due      sql.NullTime
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status,
		&assignee, &due, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	if assignee.Valid {
		id := uint64(assignee.Int64)
		t.AssigneeID = &id
	}
	if due.Valid {
		d := due.Time.UTC()
		t.DueDate = &d
	}
	return t, nil
}

// Create inserts t and fills t.ID.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	var assignee sql.NullInt64
	if t.AssigneeID != nil {
		assignee = sql.NullInt64{Int64: int64(*t.AssigneeID), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO tasks (project_id, title, description, status, assignee_id, due_date, created_by) VALUES (?,?,?,?,?,?,?)",
		t.ProjectID, t.Title, t.Description, t.Status, assignee, nullTime(t.DueDate), t.CreatedBy)
	if err != nil {
		if isMissingReference(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id uint64) (model.Task, error) {
	return scanTask(r.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
}

// ListByProject returns the project's tasks, oldest first.
func (r *TaskRepo) ListByProject(ctx context.Context, projectID uint64) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE project_id = ? ORDER BY created_at, id", projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE tasks SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *TaskRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
