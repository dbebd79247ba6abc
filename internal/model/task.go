package model

import (
	"slices"
	"strings"
	"time"
)

// Task status values.
const (
	TaskTodo       = "TODO"
	TaskInProgress = "IN_PROGRESS"
	TaskCompleted  = "COMPLETED"
)

// Task is a unit of work inside a project. Access to a task is decided by
// its parent project.
//
// Fields:
//
//	ID          – primary key identifier.
//	ProjectID   – parent project.
//	Title       – short summary.
//	Description – free text.
//	Status      – TODO, IN_PROGRESS or COMPLETED.
//	AssigneeID  – optional assignee (owner or member of the project).
//	DueDate     – optional due date.
//	CreatedBy   – user who created the task.
type Task struct {
	ID          uint64
	ProjectID   uint64
	Title       string
	Description string
	Status      string
	AssigneeID  *uint64
	DueDate     *time.Time
	CreatedBy   uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

// TaskNote is a personal note attached to a task. A user has at most one note
// per task and nobody else can see it, including the project owner.
type TaskNote struct {
	ID        uint64
	TaskID    uint64
	OwnerID   uint64
	Name      string
	Content   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeTags trims and lower-cases tags, dropping blanks and duplicates.
// The result is sorted and never nil.
func NormalizeTags(tags []string) []string {
	out := []string{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// DistinctTags returns the sorted union of the notes' tags.
func DistinctTags(notes []TaskNote) []string {
	var all []string
	for _, n := range notes {
		all = append(all, n.Tags...)
	}
	return NormalizeTags(all)
}
