package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/model"
	"github.com/iliyamo/tasksphere/internal/policy"
	"github.com/iliyamo/tasksphere/internal/repository"
	"github.com/iliyamo/tasksphere/internal/token"
)

// NoteHandler serves personal task notes. A note is visible only to its
// author, and only while the author can still read the task's project.
//
// Privacy: when a note is missing, or the task is missing, or the caller
// cannot see the task, the endpoints answer with the same empty success
// shape, so a caller cannot tell these cases apart. Store failures are still
// reported as 500.
type NoteHandler struct {
	Projects ProjectStore
	Tasks    TaskStore
	Notes    NoteStore
}

func NewNoteHandler(projects ProjectStore, tasks TaskStore, notes NoteStore) *NoteHandler {
	return &NoteHandler{Projects: projects, Tasks: tasks, Notes: notes}
}

// ----- DTOs -----

type noteReq struct {
	TaskID  uint64   `json:"task_id"`
	Name    string   `json:"name"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}
type noteResp struct {
	ID        *uint64    `json:"id"`
	TaskID    uint64     `json:"task_id"`
	Name      string     `json:"name"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func toNoteResp(n model.TaskNote) noteResp {
	id := n.ID
	created, updated := n.CreatedAt, n.UpdatedAt
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return noteResp{
		ID: &id, TaskID: n.TaskID, Name: n.Name, Content: n.Content, Tags: tags,
		CreatedAt: &created, UpdatedAt: &updated,
	}
}

// notePrivacyFallback is the answer whenever the caller has no note to see
// for taskID, whatever the reason.
func notePrivacyFallback(taskID uint64) noteResp {
	return noteResp{ID: nil, TaskID: taskID, Name: "", Content: "", Tags: []string{}}
}

// taskVisible reports whether the caller may attach a note to taskID:
// the task exists and its project passes CanRead.
func (h *NoteHandler) taskVisible(ctx context.Context, id token.Identity, taskID uint64) (bool, error) {
	t, err := h.Tasks.GetByID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p, err := h.Projects.GetByID(ctx, t.ProjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return policy.CanRead(id, p), nil
}

// visibleNotes keeps the notes the caller may still see. Task visibility
// is looked up once per task.
func (h *NoteHandler) visibleNotes(ctx context.Context, id token.Identity, notes []model.TaskNote) ([]model.TaskNote, error) {
	seen := map[uint64]bool{}
	out := make([]model.TaskNote, 0, len(notes))
	for _, n := range notes {
		if !policy.CanAccessNote(id, n) {
			continue
		}
		ok, cached := seen[n.TaskID]
		if !cached {
			var err error
			if ok, err = h.taskVisible(ctx, id, n.TaskID); err != nil {
				return nil, err
			}
			seen[n.TaskID] = ok
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func renderNotes(c echo.Context, notes []model.TaskNote) error {
	out := make([]noteResp, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteResp(n))
	}
	return c.JSON(http.StatusOK, out)
}

// GetForTask returns the caller's note on the task in the path.
func (h *NoteHandler) GetForTask(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c, "taskId")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	visible, err := h.taskVisible(ctx, id, taskID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !visible {
		return c.JSON(http.StatusOK, notePrivacyFallback(taskID))
	}
	n, err := h.Notes.GetForTask(ctx, id.UserID, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusOK, notePrivacyFallback(taskID))
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if !policy.CanAccessNote(id, n) {
		return c.JSON(http.StatusOK, notePrivacyFallback(taskID))
	}
	return c.JSON(http.StatusOK, toNoteResp(n))
}

// Save creates or replaces the caller's note on a task.
func (h *NoteHandler) Save(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req noteReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.TaskID == 0 {
		return apperr.Validation("task_id is required")
	}
	if len(req.Name) > 255 {
		return apperr.Validation("name must be at most 255 characters")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	visible, err := h.taskVisible(ctx, id, req.TaskID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !visible {
		return c.JSON(http.StatusOK, notePrivacyFallback(req.TaskID))
	}
	n, err := h.Notes.Save(ctx, model.TaskNote{
		TaskID: req.TaskID, OwnerID: id.UserID,
		Name: req.Name, Content: req.Content, Tags: model.NormalizeTags(req.Tags),
	})
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
		// task deleted after the visibility check
		return c.JSON(http.StatusOK, notePrivacyFallback(req.TaskID))
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, toNoteResp(n))
}

// DeleteForTask removes the caller's note on the task. It answers 204
// whether or not there was a note to remove.
func (h *NoteHandler) DeleteForTask(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c, "taskId")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	visible, err := h.taskVisible(ctx, id, taskID)
	if err != nil {
		return apperr.Internal(err)
	}
	if visible {
		if _, err := h.Notes.DeleteForTask(ctx, id.UserID, taskID); err != nil {
			return apperr.Internal(err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// List returns all of the caller's visible notes.
func (h *NoteHandler) List(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	notes, err := h.Notes.ListByOwner(ctx, id.UserID)
	if err != nil {
		return apperr.Internal(err)
	}
	notes, err = h.visibleNotes(ctx, id, notes)
	if err != nil {
		return apperr.Internal(err)
	}
	return renderNotes(c, notes)
}

// ListByTag returns the caller's visible notes carrying the tag in the path.
func (h *NoteHandler) ListByTag(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	tag := strings.ToLower(strings.TrimSpace(c.Param("tag")))
	if tag == "" {
		return apperr.Validation("tag is required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	notes, err := h.Notes.ListByTag(ctx, id.UserID, tag)
	if err != nil {
		return apperr.Internal(err)
	}
	notes, err = h.visibleNotes(ctx, id, notes)
	if err != nil {
		return apperr.Internal(err)
	}
	return renderNotes(c, notes)
}

// Tags returns the distinct tags of the caller's visible notes.
func (h *NoteHandler) Tags(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	notes, err := h.Notes.ListByOwner(ctx, id.UserID)
	if err != nil {
		return apperr.Internal(err)
	}
	notes, err = h.visibleNotes(ctx, id, notes)
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, model.DistinctTags(notes))
}

// Exists reports whether the caller has a visible note on the task.
func (h *NoteHandler) Exists(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c, "taskId")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	visible, err := h.taskVisible(ctx, id, taskID)
	if err != nil {
		return apperr.Internal(err)
	}
	exists := false
	if visible {
		n, err := h.Notes.GetForTask(ctx, id.UserID, taskID)
		switch {
		case err == nil:
			exists = policy.CanAccessNote(id, n)
		case !errors.Is(err, repository.ErrNotFound):
			return apperr.Internal(err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"exists": exists})
}
