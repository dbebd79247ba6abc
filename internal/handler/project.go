package handler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/model"
	"github.com/iliyamo/tasksphere/internal/policy"
	"github.com/iliyamo/tasksphere/internal/repository"
	"github.com/iliyamo/tasksphere/internal/storage"
)

// ProjectHandler serves projects, their statistics and their documents.
type ProjectHandler struct {
	Projects       ProjectStore
	Users          UserStore
	Documents      DocumentStore
	Blobs          storage.BlobStore
	MaxUploadBytes int64
	Log            *zap.Logger
	Now            func() time.Time
}

func NewProjectHandler(projects ProjectStore, users UserStore, docs DocumentStore, blobs storage.BlobStore, maxUpload int64, log *zap.Logger) *ProjectHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProjectHandler{Projects: projects, Users: users, Documents: docs, Blobs: blobs, MaxUploadBytes: maxUpload, Log: log, Now: time.Now}
}

// ----- DTOs -----

type projectReq struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	Deadline     *time.Time `json:"deadline"`
	MemberEmails []string   `json:"member_emails"`
}

type memberPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}
type projectResp struct {
	ID          uint64       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	Priority    string       `json:"priority"`
	Deadline    *time.Time   `json:"deadline"`
	OwnerID     uint64       `json:"owner_id"`
	OwnerEmail  string       `json:"owner_email"`
	Members     []memberPart `json:"members"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
type documentResp struct {
	ID          uint64    `json:"id"`
	ProjectID   uint64    `json:"project_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedBy  uint64    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func toProjectResp(p model.Project, emails map[uint64]string) projectResp {
	members := make([]memberPart, 0, len(p.MemberIDs))
	for _, id := range p.MemberIDs {
		members = append(members, memberPart{ID: id, Email: emails[id]})
	}
	return projectResp{
		ID: p.ID, Name: p.Name, Description: p.Description,
		Status: p.Status, Priority: p.Priority, Deadline: p.Deadline,
		OwnerID: p.OwnerID, OwnerEmail: emails[p.OwnerID], Members: members,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func toDocumentResp(d model.Document) documentResp {
	return documentResp{
		ID: d.ID, ProjectID: d.ProjectID, Name: d.Name, ContentType: d.ContentType,
		Size: d.Size, UploadedBy: d.UploadedBy, UploadedAt: d.UploadedAt,
	}
}

// normalize validates the request and fills defaults.
func (r *projectReq) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
	r.Priority = strings.ToUpper(strings.TrimSpace(r.Priority))
	if r.Name == "" {
		return apperr.Validation("name is required")
	}
	if len(r.Name) > 255 {
		return apperr.Validation("name must be at most 255 characters")
	}
	if r.Status == "" {
		r.Status = model.ProjectActive
	}
	if !model.ValidProjectStatus(r.Status) {
		return apperr.Validation("status must be ACTIVE, ON_HOLD or COMPLETED")
	}
	if r.Priority == "" {
		r.Priority = model.PriorityMedium
	}
	if !model.ValidPriority(r.Priority) {
		return apperr.Validation("priority must be LOW, MEDIUM or HIGH")
	}
	return nil
}

// resolveMembers maps member e-mails to user ids. Every address must belong
// to an account.
func (h *ProjectHandler) resolveMembers(ctx context.Context, emails []string) ([]uint64, error) {
	var want []string
	for _, e := range emails {
		e = repository.NormalizeEmail(e)
		if e != "" && !slices.Contains(want, e) {
			want = append(want, e)
		}
	}
	if len(want) == 0 {
		return nil, nil
	}
	ids, err := h.Users.IDsByEmails(ctx, want)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(ids) != len(want) {
		return nil, apperr.Validation("member_emails contains an unknown user")
	}
	return ids, nil
}

// emails looks up the addresses of everyone referenced by projects.
func (h *ProjectHandler) emails(ctx context.Context, projects ...model.Project) (map[uint64]string, error) {
	var ids []uint64
	for _, p := range projects {
		ids = append(ids, p.OwnerID)
		ids = append(ids, p.MemberIDs...)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return map[uint64]string{}, nil
	}
	return h.Users.EmailsByIDs(ctx, ids)
}

func (h *ProjectHandler) render(ctx context.Context, c echo.Context, status int, p model.Project) error {
	emails, err := h.emails(ctx, p)
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(status, toProjectResp(p, emails))
}

// List returns the projects the caller owns or belongs to.
func (h *ProjectHandler) List(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	projects, err := h.Projects.ListForUser(ctx, id.UserID)
	if err != nil {
		return apperr.Internal(err)
	}
	emails, err := h.emails(ctx, projects...)
	if err != nil {
		return apperr.Internal(err)
	}
	out := make([]projectResp, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResp(p, emails))
	}
	return c.JSON(http.StatusOK, out)
}

// Create makes the caller the owner of a new project.
func (h *ProjectHandler) Create(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req projectReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.normalize(); err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	members, err := h.resolveMembers(ctx, req.MemberEmails)
	if err != nil {
		return err
	}
	p := model.Project{
		OwnerID: id.UserID, MemberIDs: members,
		Name: req.Name, Description: req.Description,
		Status: req.Status, Priority: req.Priority, Deadline: req.Deadline,
	}
	if err := h.Projects.Create(ctx, &p); err != nil {
		return storeErr(err, "project")
	}
	created, err := h.Projects.GetByID(ctx, p.ID)
	if err != nil {
		return storeErr(err, "project")
	}
	h.Log.Info("project created", zap.Uint64("project_id", p.ID), zap.Uint64("owner_id", id.UserID))
	return h.render(ctx, c, http.StatusCreated, created)
}

// Get returns one project to its owner or a member.
func (h *ProjectHandler) Get(c echo.Context) error {
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

	p, err := loadProject(ctx, h.Projects, id, projectID, policy.Read)
	if err != nil {
		return err
	}
	return h.render(ctx, c, http.StatusOK, p)
}

// Update replaces the project's fields and member list. Owner only.
func (h *ProjectHandler) Update(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req projectReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.normalize(); err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	p, err := loadProject(ctx, h.Projects, id, projectID, policy.Mutate)
	if err != nil {
		return err
	}
	members, err := h.resolveMembers(ctx, req.MemberEmails)
	if err != nil {
		return err
	}
	p.Name, p.Description = req.Name, req.Description
	p.Status, p.Priority, p.Deadline = req.Status, req.Priority, req.Deadline
	p.MemberIDs = members
	if err := h.Projects.Update(ctx, &p); err != nil {
		return storeErr(err, "project")
	}
	updated, err := h.Projects.GetByID(ctx, p.ID)
	if err != nil {
		return storeErr(err, "project")
	}
	return h.render(ctx, c, http.StatusOK, updated)
}

// Delete removes the project with its tasks and documents. Owner only.
func (h *ProjectHandler) Delete(c echo.Context) error {
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

	if _, err := loadProject(ctx, h.Projects, id, projectID, policy.Mutate); err != nil {
		return err
	}
	docs, err := h.Documents.ListByProject(ctx, projectID)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := h.Projects.Delete(ctx, projectID); err != nil {
		return storeErr(err, "project")
	}
	for _, d := range docs {
		if err := h.Blobs.Delete(ctx, d.StorageKey); err != nil {
			h.Log.Warn("delete document blob", zap.String("key", d.StorageKey), zap.Error(err))
		}
	}
	h.Log.Info("project deleted", zap.Uint64("project_id", projectID))
	return c.NoContent(http.StatusNoContent)
}

// Stats summarises the projects visible to the caller.
func (h *ProjectHandler) Stats(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	s, err := h.Projects.Stats(ctx, id.UserID)
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, s)
}

// UploadDocument stores the multipart "file" field as a project document.
func (h *ProjectHandler) UploadDocument(c echo.Context) error {
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

	p, err := loadProject(ctx, h.Projects, id, projectID, policy.UploadDocument)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.ErrStatusRequestEntityTooLarge
		}
		return apperr.Validation("multipart field \"file\" is required")
	}
	if fh.Size > h.MaxUploadBytes {
		return echo.ErrStatusRequestEntityTooLarge
	}
	name := filepath.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return apperr.Validation("file name is required")
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	f, err := fh.Open()
	if err != nil {
		return apperr.Internal(err)
	}
	defer f.Close()

	key := storage.NewKey(p.ID, name, h.Now().UTC())
	if err := h.Blobs.Put(ctx, key, f, fh.Size, contentType); err != nil {
		return apperr.Internal(err)
	}
	doc := model.Document{
		ProjectID: p.ID, Name: name, StorageKey: key,
		ContentType: contentType, Size: fh.Size, UploadedBy: id.UserID,
	}
	if err := h.Documents.Create(ctx, &doc); err != nil {
		if derr := h.Blobs.Delete(ctx, key); derr != nil {
			h.Log.Warn("remove orphaned document blob", zap.String("key", key), zap.Error(derr))
		}
		return storeErr(err, "project")
	}
	h.Log.Info("document uploaded", zap.Uint64("project_id", p.ID), zap.Uint64("document_id", doc.ID), zap.Int64("size", doc.Size))
	return c.JSON(http.StatusCreated, toDocumentResp(doc))
}

// ListDocuments returns the project's documents to its owner or a member.
func (h *ProjectHandler) ListDocuments(c echo.Context) error {
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
	docs, err := h.Documents.ListByProject(ctx, projectID)
	if err != nil {
		return apperr.Internal(err)
	}
	out := make([]documentResp, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResp(d))
	}
	return c.JSON(http.StatusOK, out)
}
