package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/tasksphere/internal/model"
)

// DocumentRepo stores metadata of project documents. The bytes live in the
// blob store under StorageKey.
type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{db: db} }

// Create inserts d and fills d.ID and d.UploadedAt.
func (r *DocumentRepo) Create(ctx context.Context, d *model.Document) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO project_documents (project_id, name, storage_key, content_type, size, uploaded_by) VALUES (?,?,?,?,?,?)",
		d.ProjectID, d.Name, d.StorageKey, d.ContentType, d.Size, d.UploadedBy)
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
	d.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		"SELECT uploaded_at FROM project_documents WHERE id = ?", d.ID).Scan(&d.UploadedAt)
}

// ListByProject returns the project's documents, newest first.
func (r *DocumentRepo) ListByProject(ctx context.Context, projectID uint64) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, name, storage_key, content_type, size, uploaded_by, uploaded_at
		 FROM project_documents WHERE project_id = ? ORDER BY uploaded_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []model.Document{}
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Name, &d.StorageKey, &d.ContentType,
			&d.Size, &d.UploadedBy, &d.UploadedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
