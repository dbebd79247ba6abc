package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iliyamo/tasksphere/internal/model"
)

// NoteRepo stores personal task notes. Every query is scoped by owner, and
// (owner_id, task_id) is unique.
type NoteRepo struct {
	db *sql.DB
}

func NewNoteRepo(db *sql.DB) *NoteRepo { return &NoteRepo{db: db} }

const noteColumns = "id, task_id, owner_id, name, content, tags, created_at, updated_at"

func scanNote(row rowScanner) (model.TaskNote, error) {
	var (
		n    model.TaskNote
		tags []byte
	)
	err := row.Scan(&n.ID, &n.TaskID, &n.OwnerID, &n.Name, &n.Content, &tags, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TaskNote{}, ErrNotFound
	}
	if err != nil {
		return model.TaskNote{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &n.Tags); err != nil {
			return model.TaskNote{}, err
		}
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return n, nil
}

// GetForTask returns ownerID's note on taskID.
func (r *NoteRepo) GetForTask(ctx context.Context, ownerID, taskID uint64) (model.TaskNote, error) {
	return scanNote(r.db.QueryRowContext(ctx,
		"SELECT "+noteColumns+" FROM task_notes WHERE owner_id = ? AND task_id = ?", ownerID, taskID))
}

// Save creates or replaces the note of n.OwnerID on n.TaskID and returns the
// stored row.
func (r *NoteRepo) Save(ctx context.Context, n model.TaskNote) (model.TaskNote, error) {
	if n.Tags == nil {
		n.Tags = []string{}
	}
	tags, err := json.Marshal(n.Tags)
	if err != nil {
		return model.TaskNote{}, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO task_notes (task_id, owner_id, name, content, tags) VALUES (?,?,?,?,?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), content = VALUES(content), tags = VALUES(tags)`,
		n.TaskID, n.OwnerID, n.Name, n.Content, string(tags))
	if err != nil {
		if isMissingReference(err) {
			return model.TaskNote{}, ErrConflict
		}
		return model.TaskNote{}, err
	}
	return r.GetForTask(ctx, n.OwnerID, n.TaskID)
}

// DeleteForTask removes ownerID's note on taskID. It reports whether a note existed.
func (r *NoteRepo) DeleteForTask(ctx context.Context, ownerID, taskID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM task_notes WHERE owner_id = ? AND task_id = ?", ownerID, taskID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListByOwner returns all notes of ownerID, most recently updated first.
func (r *NoteRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.TaskNote, error) {
	return r.list(ctx,
		"SELECT "+noteColumns+" FROM task_notes WHERE owner_id = ? ORDER BY updated_at DESC, id DESC", ownerID)
}

// ListByTag returns ownerID's notes carrying tag.
func (r *NoteRepo) ListByTag(ctx context.Context, ownerID uint64, tag string) ([]model.TaskNote, error) {
	return r.list(ctx,
		"SELECT "+noteColumns+" FROM task_notes WHERE owner_id = ? AND JSON_CONTAINS(tags, JSON_QUOTE(?)) ORDER BY updated_at DESC, id DESC",
		ownerID, tag)
}

func (r *NoteRepo) list(ctx context.Context, query string, args ...any) ([]model.TaskNote, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := []model.TaskNote{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
