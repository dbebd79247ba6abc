package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/tasksphere/internal/model"
)

// ProjectRepo stores projects and their member lists. Access decisions are
// not made here; callers load a project and ask the policy package.
type ProjectRepo struct {
	db *sql.DB
}

func NewProjectRepo(db *sql.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

const projectColumns = "p.id, p.owner_id, p.name, p.description, p.status, p.priority, p.deadline, p.created_at, p.updated_at"

func scanProject(row rowScanner) (model.Project, error) {
	var (
		p        model.Project
		deadline sql.NullTime
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Status, &p.Priority,
		&deadline, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, ErrNotFound
	}
	if err != nil {
		return model.Project{}, err
	}
	if deadline.Valid {
		t := deadline.Time.UTC()
		p.Deadline = &t
	}
	return p, nil
}

// Create inserts p and its members in one transaction and fills p.ID.
// The owner is dropped from MemberIDs if present.
func (r *ProjectRepo) Create(ctx context.Context, p *model.Project) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO projects (owner_id, name, description, status, priority, deadline) VALUES (?,?,?,?,?,?)",
		p.OwnerID, p.Name, p.Description, p.Status, p.Priority, nullTime(p.Deadline))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.MemberIDs = withoutOwner(p.MemberIDs, p.OwnerID)
	if err := insertMembers(ctx, tx, p.ID, p.MemberIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID loads a project with its members. It returns ErrNotFound if no
// project has the id.
func (r *ProjectRepo) GetByID(ctx context.Context, id uint64) (model.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects p WHERE p.id = ?", id))
	if err != nil {
		return model.Project{}, err
	}
	members, err := r.members(ctx, []uint64{p.ID})
	if err != nil {
		return model.Project{}, err
	}
	p.MemberIDs = members[p.ID]
	return p, nil
}

// ListForUser returns every project userID owns or is a member of, newest first.
func (r *ProjectRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+projectColumns+` FROM projects p
		 WHERE p.owner_id = ? OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = ?)
		 ORDER BY p.created_at DESC, p.id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		projects []model.Project
		ids      []uint64
	)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return projects, nil
	}
	members, err := r.members(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].MemberIDs = members[projects[i].ID]
	}
	return projects, nil
}

// Update writes the mutable fields of p and replaces its member list.
func (r *ProjectRepo) Update(ctx context.Context, p *model.Project) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE projects SET name=?, description=?, status=?, priority=?, deadline=? WHERE id=?",
		p.Name, p.Description, p.Status, p.Priority, nullTime(p.Deadline), p.ID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM project_members WHERE project_id = ?", p.ID); err != nil {
		return err
	}
	p.MemberIDs = withoutOwner(p.MemberIDs, p.OwnerID)
	if err := insertMembers(ctx, tx, p.ID, p.MemberIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the project. Tasks, notes, members and document rows go
// with it through ON DELETE CASCADE.
func (r *ProjectRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Stats counts the projects visible to userID and the tasks in them by status.
func (r *ProjectRepo) Stats(ctx context.Context, userID uint64) (model.ProjectStats, error) {
	var s model.ProjectStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT p.id),
		       COALESCE(SUM(t.status = ?), 0),
		       COALESCE(SUM(t.status = ?), 0)
		FROM projects p
		LEFT JOIN tasks t ON t.project_id = p.id
		WHERE p.owner_id = ? OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = ?)`,
		model.TaskCompleted, model.TaskInProgress, userID, userID).
		Scan(&s.ProjectCount, &s.CompletedTasks, &s.InProgressTasks)
	if err != nil {
		return model.ProjectStats{}, err
	}
	return s, nil
}

func (r *ProjectRepo) members(ctx context.Context, projectIDs []uint64) (map[uint64][]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT project_id, user_id FROM project_members WHERE project_id IN ("+placeholders(len(projectIDs))+") ORDER BY project_id, user_id",
		uint64Args(projectIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64][]uint64, len(projectIDs))
	for rows.Next() {
		var pid, uid uint64
		if err := rows.Scan(&pid, &uid); err != nil {
			return nil, err
		}
		out[pid] = append(out[pid], uid)
	}
	return out, rows.Err()
}

func insertMembers(ctx context.Context, tx *sql.Tx, projectID uint64, memberIDs []uint64) error {
	for _, uid := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO project_members (project_id, user_id) VALUES (?, ?)", projectID, uid); err != nil {
			if isMissingReference(err) {
				return fmt.Errorf("member %d: %w", uid, ErrConflict)
			}
			return err
		}
	}
	return nil
}

func withoutOwner(ids []uint64, owner uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == owner || id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
