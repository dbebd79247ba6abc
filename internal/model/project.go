package model

import (
	"slices"
	"time"
)

// Project status and priority values.
const (
	ProjectActive    = "ACTIVE"
	ProjectOnHold    = "ON_HOLD"
	ProjectCompleted = "COMPLETED"

	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// Project groups tasks and documents. It belongs to one owner and may be
// shared with members. This struct corresponds to a row in `projects` plus
// the member ids from `project_members`.
//
// The owner is never listed in MemberIDs; ownership already implies access.
type Project struct {
	ID          uint64
	OwnerID     uint64
	MemberIDs   []uint64
	Name        string
	Description string
	Status      string
	Priority    string
	Deadline    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsMember reports whether userID is listed as a member.
func (p Project) IsMember(userID uint64) bool {
	return slices.Contains(p.MemberIDs, userID)
}

// ValidProjectStatus reports whether s is a known project status.
func ValidProjectStatus(s string) bool {
	switch s {
	case ProjectActive, ProjectOnHold, ProjectCompleted:
		return true
	}
	return false
}

// ValidPriority reports whether s is a known priority.
func ValidPriority(s string) bool {
	switch s {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Document is a file attached to a project. The blob itself lives in the
// document store under StorageKey.
type Document struct {
	ID          uint64
	ProjectID   uint64
	Name        string
	StorageKey  string
	ContentType string
	Size        int64
	UploadedBy  uint64
	UploadedAt  time.Time
}

// ProjectStats summarises the projects visible to one user.
type ProjectStats struct {
	ProjectCount    int `json:"project_count"`
	CompletedTasks  int `json:"completed_tasks"`
	InProgressTasks int `json:"in_progress_tasks"`
}
