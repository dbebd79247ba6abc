package handler

import (
	"context"

	"github.com/iliyamo/tasksphere/internal/model"
)

// The store interfaces below are the slices of internal/repository each
// handler group uses. Lookups return repository.ErrNotFound when nothing
// matches.

type UserStore interface {
	Create(ctx context.Context, u model.User, password string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	IDsByEmails(ctx context.Context, emails []string) ([]uint64, error)
	EmailsByIDs(ctx context.Context, ids []uint64) (map[uint64]string, error)
	SearchByEmail(ctx context.Context, prefix string, limit int) ([]model.User, error)
}

type ProjectStore interface {
	Create(ctx context.Context, p *model.Project) error
	GetByID(ctx context.Context, id uint64) (model.Project, error)
	ListForUser(ctx context.Context, userID uint64) ([]model.Project, error)
	Update(ctx context.Context, p *model.Project) error
	Delete(ctx context.Context, id uint64) error
	Stats(ctx context.Context, userID uint64) (model.ProjectStats, error)
}

type TaskStore interface {
	Create(ctx context.Context, t *model.Task) error
	GetByID(ctx context.Context, id uint64) (model.Task, error)
	ListByProject(ctx context.Context, projectID uint64) ([]model.Task, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
	Delete(ctx context.Context, id uint64) error
}

type NoteStore interface {
	GetForTask(ctx context.Context, ownerID, taskID uint64) (model.TaskNote, error)
	Save(ctx context.Context, n model.TaskNote) (model.TaskNote, error)
	DeleteForTask(ctx context.Context, ownerID, taskID uint64) (bool, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]model.TaskNote, error)
	ListByTag(ctx context.Context, ownerID uint64, tag string) ([]model.TaskNote, error)
}

type DocumentStore interface {
	Create(ctx context.Context, d *model.Document) error
	ListByProject(ctx context.Context, projectID uint64) ([]model.Document, error)
}

// Resetter is the password reset flow (see internal/reset).
type Resetter interface {
	RequestReset(ctx context.Context, email string) error
	ConsumeReset(ctx context.Context, token, newPassword string) error
}
