package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/model"
	"github.com/iliyamo/tasksphere/internal/policy"
	"github.com/iliyamo/tasksphere/internal/token"
)

// TaskHandler serves tasks. Access is decided by the parent project: owners
// and members may create, read and move tasks; only the owner deletes them.
type TaskHandler struct {
	Projects ProjectStore
	Tasks    TaskStore
	Log      *zap.Logger
}

func NewTaskHandler(projects ProjectStore, tasks TaskStore, log *zap.Logger) *TaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskHandler{Projects: projects, Tasks: tasks, Log: log}
}

// ----- DTOs -----

type taskReq struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AssigneeID  *uint64    `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}
type statusReq struct {
	Status string `json:"status"`
}
type taskResp struct {
	ID          uint64     `json:"id"`
	ProjectID   uint64     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AssigneeID  *uint64    `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
	CreatedBy   uint64     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toTaskResp(t model.Task) taskResp {
	return taskResp{
		ID: t.ID, ProjectID: t.ProjectID, Title: t.Title, Description: t.Description,
		Status: t.Status, AssigneeID: t.AssigneeID, DueDate: t.DueDate,
		CreatedBy: t.CreatedBy, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func normalizeTaskStatus(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !model.ValidTaskStatus(s) {
		return "", apperr.Validation("status must be TODO, IN_PROGRESS or COMPLETED")
	}
	return s, nil
}

// loadTask fetches a task and authorizes action on its parent project.
func (h *TaskHandler) loadTask(ctx context.Context, id token.Identity, taskID uint64, action policy.Action) (model.Task, error) {
	t, err := h.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return model.Task{}, storeErr(err, "task")
	}
	if _, err := loadProject(ctx, h.Projects, id, t.ProjectID, action); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// Create adds a task to the project in the path.
func (h *TaskHandler) Create(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req taskReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return apperr.Validation("title is required")
	}
	status := model.TaskTodo
	if req.Status != "" {
		if status, err = normalizeTaskStatus(req.Status); err != nil {
			return err
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	p, err := loadProject(ctx, h.Projects, id, projectID, policy.Read)
	if err != nil {
		return err
	}
	if req.AssigneeID != nil && *req.AssigneeID != p.OwnerID && !p.IsMember(*req.AssigneeID) {
		return apperr.Validation("assignee must be the project owner or a member")
	}

	t := model.Task{
		ProjectID: p.ID, Title: req.Title, Description: req.Description,
		Status: status, AssigneeID: req.AssigneeID, DueDate: req.DueDate, CreatedBy: id.UserID,
	}
	if err := h.Tasks.Create(ctx, &t); err != nil {
		return storeErr(err, "project")
	}
	created, err := h.Tasks.GetByID(ctx, t.ID)
	if err != nil {
		return storeErr(err, "task")
	}
	return c.JSON(http.StatusCreated, toTaskResp(created))
}

// List returns the tasks of the project in the path.
func (h *TaskHandler) List(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := loadProject(ctx, h.Projects, id, projectID, policy.Read); err != nil {
		return err
	}
	tasks, err := h.Tasks.ListByProject(ctx, projectID)
	if err != nil {
		return apperr.Internal(err)
	}
	out := make([]taskResp, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResp(t))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one task.
func (h *TaskHandler) Get(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	t, err := h.loadTask(ctx, id, taskID, policy.Read)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTaskResp(t))
}

// UpdateStatus moves a task to another status.
func (h *TaskHandler) UpdateStatus(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	status, err := normalizeTaskStatus(req.Status)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	t, err := h.loadTask(ctx, id, taskID, policy.Read)
	if err != nil {
		return err
	}
	if err := h.Tasks.UpdateStatus(ctx, t.ID, status); err != nil {
		return storeErr(err, "task")
	}
	updated, err := h.Tasks.GetByID(ctx, t.ID)
	if err != nil {
		return storeErr(err, "task")
	}
	return c.JSON(http.StatusOK, toTaskResp(updated))
}

// Delete removes a task. Project owner only.
func (h *TaskHandler) Delete(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	t, err := h.loadTask(ctx, id, taskID, policy.Mutate)
	if err != nil {
		return err
	}
	if err := h.Tasks.Delete(ctx, t.ID); err != nil {
		return storeErr(err, "task")
	}
	h.Log.Info("task deleted", zap.Uint64("task_id", t.ID), zap.Uint64("project_id", t.ProjectID))
	return c.NoContent(http.StatusNoContent)
}
