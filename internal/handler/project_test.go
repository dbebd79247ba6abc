package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/model"
)

func TestProject_OwnerMemberStranger(t *testing.T) {
	te := newEnv(t)
	a, tokA := te.user(t, "a@example.com")
	b, tokB := te.user(t, "b@example.com")
	_, tokC := te.user(t, "c@example.com")
	p := te.project(t, a.ID, b.ID)
	path := fmt.Sprintf("/v1/projects/%d", p.ID)

	assert.Equal(t, http.StatusOK, te.do(http.MethodGet, path, nil, tokA).Code)
	assert.Equal(t, http.StatusOK, te.do(http.MethodGet, path, nil, tokB).Code)

	rec := te.do(http.MethodGet, path, nil, tokC)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[apperr.Body](t, rec).Error)

	rec = te.do(http.MethodDelete, path, nil, tokB)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = te.do(http.MethodDelete, path, nil, tokA)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, te.do(http.MethodGet, path, nil, tokA).Code)
}

func TestProject_CreateWithMembers(t *testing.T) {
	te := newEnv(t)
	_, tokA := te.user(t, "a@example.com")
	b, tokB := te.user(t, "b@example.com")

	rec := te.do(http.MethodPost, "/v1/projects", map[string]any{
		"name": "Launch", "priority": "high", "member_emails": []string{"B@example.com"},
	}, tokA)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "HIGH", got["priority"])
	assert.Equal(t, "ACTIVE", got["status"])
	assert.Equal(t, "a@example.com", got["owner_email"])
	members := got["members"].([]any)
	require.Len(t, members, 1)
	assert.Equal(t, float64(b.ID), members[0].(map[string]any)["id"])

	list := decode[[]map[string]any](t, te.do(http.MethodGet, "/v1/projects", nil, tokB))
	assert.Len(t, list, 1)
}

func TestProject_CreateRejectsUnknownMember(t *testing.T) {
	te := newEnv(t)
	_, tokA := te.user(t, "a@example.com")
	te.user(t, "b@example.com")

	rec := te.do(http.MethodPost, "/v1/projects", map[string]any{
		"name": "Launch", "member_emails": []string{"b@example.com", "ghost@example.com"},
	}, tokA)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, te.db.projects)
}

func TestProject_CreateValidation(t *testing.T) {
	te := newEnv(t)
	_, tok := te.user(t, "a@example.com")
	assert.Equal(t, http.StatusBadRequest, te.do(http.MethodPost, "/v1/projects", map[string]any{"name": " "}, tok).Code)
	assert.Equal(t, http.StatusBadRequest, te.do(http.MethodPost, "/v1/projects", map[string]any{"name": "x", "status": "DONE"}, tok).Code)
}

func TestProject_UpdateOwnerOnly(t *testing.T) {
	te := newEnv(t)
	a, tokA := te.user(t, "a@example.com")
	b, tokB := te.user(t, "b@example.com")
	p := te.project(t, a.ID, b.ID)
	path := fmt.Sprintf("/v1/projects/%d", p.ID)
	body := map[string]any{"name": "Renamed", "status": "ON_HOLD", "member_emails": []string{"b@example.com"}}

	assert.Equal(t, http.StatusForbidden, te.do(http.MethodPut, path, body, tokB).Code)

	rec := te.do(http.MethodPut, path, body, tokA)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decode[map[string]any](t, rec)["name"])
}

func TestProject_BadID(t *testing.T) {
	te := newEnv(t)
	_, tok := te.user(t, "a@example.com")
	assert.Equal(t, http.StatusBadRequest, te.do(http.MethodGet, "/v1/projects/abc", nil, tok).Code)
	assert.Equal(t, http.StatusNotFound, te.do(http.MethodGet, "/v1/projects/999", nil, tok).Code)
}

func TestProject_Stats(t *testing.T) {
	te := newEnv(t)
	a, tokA := te.user(t, "a@example.com")
	p := te.project(t, a.ID)
	te.task(t, p.ID, a.ID)
	done := te.task(t, p.ID, a.ID)
	require.NoError(t, taskStore{te.db}.UpdateStatus(context.Background(), done.ID, model.TaskCompleted))

	rec := te.do(http.MethodGet, "/v1/projects/stats", nil, tokA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ProjectStats{ProjectCount: 1, CompletedTasks: 1}, decode[model.ProjectStats](t, rec))
}

func TestDocuments_UploadAndList(t *testing.T) {
	te := newEnv(t)
	a, tokA := te.user(t, "a@example.com")
	b, tokB := te.user(t, "b@example.com")
	_, tokC := te.user(t, "c@example.com")
	p := te.project(t, a.ID, b.ID)
	path := fmt.Sprintf("/v1/projects/%d/documents", p.ID)

	rec := te.upload(path, "spec.pdf", []byte("%PDF-1.7"), tokB)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "spec.pdf", doc["name"])
	assert.Equal(t, float64(8), doc["size"])
	require.Len(t, te.blobs.blobs, 1)
	for key, data := range te.blobs.blobs {
		assert.True(t, strings.HasPrefix(key, fmt.Sprintf("projects/%d/2026/03/", p.ID)), key)
		assert.True(t, strings.HasSuffix(key, ".pdf"), key)
		assert.Equal(t, []byte("%PDF-1.7"), data)
	}

	assert.Equal(t, http.StatusForbidden, te.upload(path, "x.txt", []byte("x"), tokC).Code)

	list := decode[[]map[string]any](t, te.do(http.MethodGet, path, nil, tokA))
	assert.Len(t, list, 1)
	assert.Equal(t, http.StatusForbidden, te.do(http.MethodGet, path, nil, tokC).Code)
}

func TestDocuments_TooLarge(t *testing.T) {
	te := newEnv(t)
	a, tokA := te.user(t, "a@example.com")
	p := te.project(t, a.ID)

	rec := te.upload(fmt.Sprintf("/v1/projects/%d/documents", p.ID), "big.bin", make([]byte, 1<<20+1), tokA)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "payload_too_large", decode[apperr.Body](t, rec).Error)
	assert.Empty(t, te.blobs.blobs)
}

func TestTasks_MemberRights(t *testing.T) {
	te := newEnv(t)
	a, tokA := te.user(t, "a@example.com")
	b, tokB := te.user(t, "b@example.com")
	_, tokC := te.user(t, "c@example.com")
	p := te.project(t, a.ID, b.ID)

	rec := te.do(http.MethodPost, fmt.Sprintf("/v1/projects/%d/tasks", p.ID), map[string]any{"title": "Write docs", "assignee_id": b.ID}, tokB)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	taskID := uint64(decode[map[string]any](t, rec)["id"].(float64))
	taskPath := fmt.Sprintf("/v1/tasks/%d", taskID)

	rec = te.do(http.MethodPatch, taskPath+"/status", map[string]string{"status": "in_progress"}, tokB)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "IN_PROGRESS", decode[map[string]any](t, rec)["status"])

	assert.Equal(t, http.StatusForbidden, te.do(http.MethodGet, taskPath, nil, tokC).Code)
	assert.Equal(t, http.StatusForbidden, te.do(http.MethodDelete, taskPath, nil, tokB).Code)
	assert.Equal(t, http.StatusNoContent, te.do(http.MethodDelete, taskPath, nil, tokA).Code)
	assert.Equal(t, http.StatusNotFound, te.do(http.MethodGet, taskPath, nil, tokA).Code)
}

func TestTasks_AssigneeMustBelongToProject(t *testing.T) {
	te := newEnv(t)
	a, tokA := te.user(t, "a@example.com")
	c, _ := te.user(t, "c@example.com")
	p := te.project(t, a.ID)

	rec := te.do(http.MethodPost, fmt.Sprintf("/v1/projects/%d/tasks", p.ID), map[string]any{"title": "x", "assignee_id": c.ID}, tokA)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsers_Search(t *testing.T) {
	te := newEnv(t)
	_, tok := te.user(t, "searcher@example.com")
	for i := 0; i < 12; i++ {
		te.user(t, fmt.Sprintf("al%02d@example.com", i))
	}

	rec := te.do(http.MethodGet, "/v1/users/search?q=al", nil, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]map[string]any](t, rec)
	assert.Len(t, got, 10)
	assert.NotContains(t, got[0], "password_hash")

	assert.Equal(t, http.StatusBadRequest, te.do(http.MethodGet, "/v1/users/search?q=a", nil, tok).Code)
	assert.Equal(t, http.StatusUnauthorized, te.do(http.MethodGet, "/v1/users/search?q=al", nil, "").Code)
}
