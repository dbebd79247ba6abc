// Package policy decides whether an authenticated identity may act on a
// project, task or personal note. Every function is pure: it looks only at
// the identity and the resource snapshot it is given.
package policy

import (
	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/model"
	"github.com/iliyamo/tasksphere/internal/token"
)

// Action is an operation guarded by a project-level predicate.
type Action int

const (
	// Read covers viewing a project and its tasks and documents, and the
	// append-style work members do (creating tasks, moving task status).
	Read Action = iota
	// Mutate covers updating or deleting the project and deleting tasks.
	Mutate
	// UploadDocument covers attaching files to the project.
	UploadDocument
)

func (a Action) String() string {
	switch a {
	case Read:
		return "read"
	case Mutate:
		return "mutate"
	case UploadDocument:
		return "upload_document"
	}
	return "unknown"
}

// CanRead: owner or member.
func CanRead(id token.Identity, p model.Project) bool {
	if id.UserID == 0 {
		return false
	}
	return id.UserID == p.OwnerID || p.IsMember(id.UserID)
}

// CanMutate: owner only.
func CanMutate(id token.Identity, p model.Project) bool {
	return id.UserID != 0 && id.UserID == p.OwnerID
}

// CanUploadDocument has the same audience as CanRead.
func CanUploadDocument(id token.Identity, p model.Project) bool {
	return CanRead(id, p)
}

// CanAccessNote is true only for the note's author. Project ownership or
// membership grants nothing here.
func CanAccessNote(id token.Identity, n model.TaskNote) bool {
	return id.UserID != 0 && id.UserID == n.OwnerID
}

// Allowed evaluates the predicate that guards action.
func Allowed(id token.Identity, action Action, p model.Project) bool {
	switch action {
	case Read:
		return CanRead(id, p)
	case Mutate:
		return CanMutate(id, p)
	case UploadDocument:
		return CanUploadDocument(id, p)
	}
	return false
}

// Authorize is Allowed expressed as an error: nil when permitted, a 403
// apperr otherwise.
func Authorize(id token.Identity, action Action, p model.Project) error {
	if Allowed(id, action, p) {
		return nil
	}
	switch action {
	case Mutate:
		return apperr.Forbidden("only the project owner can modify this project")
	case UploadDocument:
		return apperr.Forbidden("only project members can upload documents")
	default:
		return apperr.Forbidden("access denied to project")
	}
}
