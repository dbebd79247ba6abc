package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/tasksphere/internal/handler"
	"github.com/iliyamo/tasksphere/internal/model"
	"github.com/iliyamo/tasksphere/internal/repository"
	"github.com/iliyamo/tasksphere/internal/router"
	"github.com/iliyamo/tasksphere/internal/token"
	"github.com/iliyamo/tasksphere/internal/utils"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

// memDB backs every fake store. The stores are separate types because
// their method sets overlap.
type memDB struct {
	mu       sync.Mutex
	seq      uint64
	users    map[uint64]model.User
	projects map[uint64]model.Project
	tasks    map[uint64]model.Task
	notes    map[[2]uint64]model.TaskNote // owner, task
	docs     []model.Document
	now      time.Time
}

func newMemDB(now time.Time) *memDB {
	return &memDB{
		users:    map[uint64]model.User{},
		projects: map[uint64]model.Project{},
		tasks:    map[uint64]model.Task{},
		notes:    map[[2]uint64]model.TaskNote{},
		now:      now,
	}
}

func (db *memDB) next() uint64 { db.seq++; return db.seq }

type userStore struct{ *memDB }

func (s userStore) Create(_ context.Context, u model.User, password string, _ int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = repository.NormalizeEmail(u.Email)
	for _, x := range s.users {
		if x.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		return 0, err
	}
	u.ID = s.next()
	u.PasswordHash = hash
	s.users[u.ID] = u
	return u.ID, nil
}

func (s userStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s userStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s userStore) IDsByEmails(_ context.Context, emails []string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for _, u := range s.users {
		if slices.Contains(emails, u.Email) {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (s userStore) EmailsByIDs(_ context.Context, ids []uint64) (map[uint64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uint64]string{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u.Email
		}
	}
	return out, nil
}

func (s userStore) SearchByEmail(_ context.Context, prefix string, limit int) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.User
	for _, u := range s.users {
		if strings.HasPrefix(u.Email, strings.ToLower(prefix)) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b model.User) int { return strings.Compare(a.Email, b.Email) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type projectStore struct{ *memDB }

func withoutOwner(ids []uint64, owner uint64) []uint64 {
	out := []uint64{}
	for _, id := range ids {
		if id != owner && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func (s projectStore) Create(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.next()
	p.MemberIDs = withoutOwner(p.MemberIDs, p.OwnerID)
	p.CreatedAt, p.UpdatedAt = s.now, s.now
	s.projects[p.ID] = *p
	return nil
}

func (s projectStore) GetByID(_ context.Context, id uint64) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, repository.ErrNotFound
	}
	p.MemberIDs = slices.Clone(p.MemberIDs)
	return p, nil
}

func (s projectStore) ListForUser(_ context.Context, userID uint64) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Project
	for _, p := range s.projects {
		if p.OwnerID == userID || p.IsMember(userID) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.Project) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (s projectStore) Update(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return repository.ErrNotFound
	}
	p.MemberIDs = withoutOwner(p.MemberIDs, p.OwnerID)
	s.projects[p.ID] = *p
	return nil
}

func (s projectStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.projects, id)
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

func (s projectStore) Stats(_ context.Context, userID uint64) (model.ProjectStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.ProjectStats
	for _, p := range s.projects {
		if p.OwnerID != userID && !p.IsMember(userID) {
			continue
		}
		st.ProjectCount++
		for _, t := range s.tasks {
			if t.ProjectID != p.ID {
				continue
			}
			switch t.Status {
			case model.TaskCompleted:
				st.CompletedTasks++
			case model.TaskInProgress:
				st.InProgressTasks++
			}
		}
	}
	return st, nil
}

type taskStore struct{ *memDB }

func (s taskStore) Create(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[t.ProjectID]; !ok {
		return repository.ErrConflict
	}
	t.ID = s.next()
	t.CreatedAt, t.UpdatedAt = s.now, s.now
	s.tasks[t.ID] = *t
	return nil
}

func (s taskStore) GetByID(_ context.Context, id uint64) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, repository.ErrNotFound
	}
	return t, nil
}

func (s taskStore) ListByProject(_ context.Context, projectID uint64) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s taskStore) UpdateStatus(_ context.Context, id uint64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = status
	s.tasks[id] = t
	return nil
}

func (s taskStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

type noteStore struct{ *memDB }

func (s noteStore) GetForTask(_ context.Context, ownerID, taskID uint64) (model.TaskNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[[2]uint64{ownerID, taskID}]
	if !ok {
		return model.TaskNote{}, repository.ErrNotFound
	}
	return n, nil
}

func (s noteStore) Save(_ context.Context, n model.TaskNote) (model.TaskNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]uint64{n.OwnerID, n.TaskID}
	if old, ok := s.notes[key]; ok {
		n.ID, n.CreatedAt = old.ID, old.CreatedAt
	} else {
		n.ID, n.CreatedAt = s.next(), s.now
	}
	n.UpdatedAt = s.now
	s.notes[key] = n
	return n, nil
}

func (s noteStore) DeleteForTask(_ context.Context, ownerID, taskID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]uint64{ownerID, taskID}
	_, ok := s.notes[key]
	delete(s.notes, key)
	return ok, nil
}

func (s noteStore) ListByOwner(_ context.Context, ownerID uint64) ([]model.TaskNote, error) {
	return s.filter(func(n model.TaskNote) bool { return n.OwnerID == ownerID }), nil
}

func (s noteStore) ListByTag(_ context.Context, ownerID uint64, tag string) ([]model.TaskNote, error) {
	return s.filter(func(n model.TaskNote) bool {
		return n.OwnerID == ownerID && slices.Contains(n.Tags, tag)
	}), nil
}

func (s noteStore) filter(keep func(model.TaskNote) bool) []model.TaskNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.TaskNote{}
	for _, n := range s.notes {
		if keep(n) {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b model.TaskNote) int { return int(a.ID) - int(b.ID) })
	return out
}

type docStore struct{ *memDB }

func (s docStore) Create(_ context.Context, d *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.next()
	d.UploadedAt = s.now
	s.docs = append(s.docs, *d)
	return nil
}

func (s docStore) ListByProject(_ context.Context, projectID uint64) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, d := range s.docs {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (b *memBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = data
	return nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

// fakeResetter records calls and returns the configured errors.
type fakeResetter struct {
	mu         sync.Mutex
	requested  []string
	requestErr error
	consumeErr error
}

func (f *fakeResetter) RequestReset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, email)
	return f.requestErr
}

func (f *fakeResetter) ConsumeReset(_ context.Context, _, _ string) error {
	return f.consumeErr
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

// env is a full router over the fakes.
type env struct {
	e      *echo.Echo
	db     *memDB
	engine *token.Engine
	clock  *clock
	resets *fakeResetter
	blobs  *memBlobs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine, err := token.NewEngine(secret, time.Hour, token.WithClock(clk.Now))
	require.NoError(t, err)

	db := newMemDB(clk.now)
	users := userStore{db}
	resets := &fakeResetter{}
	blobs := &memBlobs{blobs: map[string][]byte{}}

	auth, err := handler.NewAuthHandler(users, engine, resets, bcrypt.MinCost, zap.NewNop())
	require.NoError(t, err)
	projects := handler.NewProjectHandler(projectStore{db}, users, docStore{db}, blobs, 1<<20, zap.NewNop())
	projects.Now = clk.Now

	e := router.New(router.Handlers{
		Auth:     auth,
		Projects: projects,
		Tasks:    handler.NewTaskHandler(projectStore{db}, taskStore{db}, zap.NewNop()),
		Notes:    handler.NewNoteHandler(projectStore{db}, taskStore{db}, noteStore{db}),
		Users:    handler.NewUserHandler(users),
		Health:   handler.NewHealthHandler(nil),
	}, router.Options{Tokens: engine, Log: zap.NewNop(), MaxUploadBytes: 1 << 20})

	return &env{e: e, db: db, engine: engine, clock: clk, resets: resets, blobs: blobs}
}

// user creates an account and returns it with a valid token.
func (te *env) user(t *testing.T, email string) (model.User, string) {
	t.Helper()
	id, err := userStore{te.db}.Create(context.Background(),
		model.User{Email: email, FirstName: "F", LastName: "L", Role: model.RoleUser}, "password123", bcrypt.MinCost)
	require.NoError(t, err)
	u, err := userStore{te.db}.GetByID(context.Background(), id)
	require.NoError(t, err)
	tok, err := te.engine.Issue(u.Email, u.ID)
	require.NoError(t, err)
	return u, tok.Token
}

func (te *env) project(t *testing.T, owner uint64, members ...uint64) model.Project {
	t.Helper()
	p := model.Project{OwnerID: owner, MemberIDs: members, Name: "P", Status: model.ProjectActive, Priority: model.PriorityMedium}
	require.NoError(t, projectStore{te.db}.Create(context.Background(), &p))
	return p
}

func (te *env) task(t *testing.T, projectID, creator uint64) model.Task {
	t.Helper()
	task := model.Task{ProjectID: projectID, Title: "T", Status: model.TaskTodo, CreatedBy: creator}
	require.NoError(t, taskStore{te.db}.Create(context.Background(), &task))
	return task
}

func (te *env) do(method, path string, body any, tok string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		bs, _ := json.Marshal(body)
		r = bytes.NewReader(bs)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	te.e.ServeHTTP(rec, req)
	return rec
}

func (te *env) upload(path, filename string, content []byte, tok string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", filename)
	_, _ = fw.Write(content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	rec := httptest.NewRecorder()
	te.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
