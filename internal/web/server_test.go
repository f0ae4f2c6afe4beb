package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/auth"
	"github.com/dunelab/dune/internal/config"
	"github.com/dunelab/dune/internal/service/submission"
	"github.com/dunelab/dune/model"
)

type fakeSubmissionStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*model.Submission
}

func (f *fakeSubmissionStore) FindAll(ctx context.Context) ([]*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Submission, 0, len(f.subs))
	for _, s := range f.subs {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeSubmissionStore) Find(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, apperr.NotFoundf("submission %s", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissionStore) FindByUser(ctx context.Context, userID uuid.UUID) ([]*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Submission
	for _, s := range f.subs {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSubmissionStore) Insert(ctx context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.subs[s.ID] = &cp
	return nil
}

func (f *fakeSubmissionStore) Update(ctx context.Context, s *model.Submission) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.subs[s.ID]
	if !ok {
		return nil, apperr.NotFoundf("submission %s", s.ID)
	}
	// Status is not writable through Update, mirroring the repository.
	cp := *s
	cp.Status = existing.Status
	f.subs[s.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSubmissionStore) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return 0, nil
	}
	delete(f.subs, id)
	return 1, nil
}

func (f *fakeSubmissionStore) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []model.JobMessage
	err  error
}

func (f *fakeDispatcher) Publish(ctx context.Context, job model.JobMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func (f *fakeUserStore) Insert(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserStore) Find(ctx context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFoundf("user %s", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) FindAll(ctx context.Context) ([]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.User, 0, len(f.users))
	for _, u := range f.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeUserStore) Update(ctx context.Context, u *model.User) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return nil, apperr.NotFoundf("user %s", u.ID)
	}
	cp := *u
	f.users[u.ID] = &cp
	return u, nil
}

func (f *fakeUserStore) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return 0, nil
	}
	delete(f.users, id)
	return 1, nil
}

func (f *fakeUserStore) FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email || u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFoundf("user %s", username)
}

type fakeBenchmarkStore struct {
	mu         sync.Mutex
	benchmarks map[uuid.UUID]*model.Benchmark
}

func (f *fakeBenchmarkStore) FindAll(ctx context.Context) ([]*model.Benchmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Benchmark, 0, len(f.benchmarks))
	for _, b := range f.benchmarks {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeBenchmarkStore) Find(ctx context.Context, id uuid.UUID) (*model.Benchmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.benchmarks[id]
	if !ok {
		return nil, apperr.NotFoundf("benchmark %s", id)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBenchmarkStore) Insert(ctx context.Context, b *model.Benchmark) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.benchmarks[b.ID] = &cp
	return nil
}

func (f *fakeBenchmarkStore) Update(ctx context.Context, b *model.Benchmark) (*model.Benchmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.benchmarks[b.ID]; !ok {
		return nil, apperr.NotFoundf("benchmark %s", b.ID)
	}
	cp := *b
	f.benchmarks[b.ID] = &cp
	return b, nil
}

func (f *fakeBenchmarkStore) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.benchmarks[id]; !ok {
		return 0, nil
	}
	delete(f.benchmarks, id)
	return 1, nil
}

type testEnv struct {
	server     *httptest.Server
	dispatcher *fakeDispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := &fakeUserStore{users: make(map[uuid.UUID]*model.User)}
	authService := auth.NewService(users, &config.AuthConfig{JWT_SECRET: "test-secret", TOKEN_TTL_HOURS: 1})

	dispatcher := &fakeDispatcher{}
	subService := submission.NewService(
		&fakeSubmissionStore{subs: make(map[uuid.UUID]*model.Submission)},
		dispatcher, nil, nil,
	)

	srv := NewServer(subService, authService,
		&fakeBenchmarkStore{benchmarks: make(map[uuid.UUID]*model.Benchmark)}, users)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, dispatcher: dispatcher}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/register", "", model.UserInput{
		Name:     username,
		Email:    username + "@example.com",
		Username: username,
		Password: "hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[model.AuthResponse](t, resp)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestSubmissionLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodPost, "/submissions", token, model.SubmissionInput{
		Language: "python",
		Code:     "print(1)",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[model.Submission](t, resp)
	require.Equal(t, model.StatusPending, created.Status)
	require.NotEmpty(t, created.CodeHash)

	resp = env.do(t, http.MethodPost, "/submissions/"+created.ID.String()+"/run", token, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	require.Len(t, env.dispatcher.jobs, 1)

	resp = env.do(t, http.MethodGet, "/submissions/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[model.Submission](t, resp)
	require.Equal(t, model.StatusRunning, got.Status)

	resp = env.do(t, http.MethodGet, "/user/submissions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mine := decodeBody[[]model.Submission](t, resp)
	require.Len(t, mine, 1)
}

func TestSubmissionRequiresAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/submissions", "", model.SubmissionInput{
		Language: "python",
		Code:     "print(1)",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmissionValidationStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodPost, "/submissions", token, model.SubmissionInput{Language: "python"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmissionNotFoundStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodGet, "/submissions/"+uuid.NewString(), token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateForeignSubmissionForbidden(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	owner := env.register(t, "paul")
	intruder := env.register(t, "mallory")

	resp := env.do(t, http.MethodPost, "/submissions", owner, model.SubmissionInput{
		Language: "python",
		Code:     "print(1)",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[model.Submission](t, resp)

	resp = env.do(t, http.MethodPut, "/submissions/"+created.ID.String(), intruder, model.SubmissionInput{
		Language: "python",
		Code:     "print(2)",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteSubmissionIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodPost, "/submissions", token, model.SubmissionInput{
		Language: "python",
		Code:     "print(1)",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[model.Submission](t, resp)

	for i := 0; i < 2; i++ {
		resp = env.do(t, http.MethodDelete, "/submissions/"+created.ID.String(), token, nil)
		resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
}

func TestDispatchFailureMapsToBadGateway(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodPost, "/submissions", token, model.SubmissionInput{
		Language: "python",
		Code:     "print(1)",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[model.Submission](t, resp)

	env.dispatcher.err = fmt.Errorf("%w: broker unavailable", apperr.ErrDispatch)

	resp = env.do(t, http.MethodPost, "/submissions/"+created.ID.String()+"/run", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestBenchmarkCRUD(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodPost, "/benchmarks", token, model.BenchmarkInput{
		Title:                "two-sum",
		Subject:              "arrays",
		Difficulty:           "easy",
		MaxCyclomaticComplex: 10,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[model.Benchmark](t, resp)
	require.NotNil(t, created.CreatorID)

	// Reads are public.
	resp = env.do(t, http.MethodGet, "/benchmarks/"+created.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[model.Benchmark](t, resp)
	require.Equal(t, "two-sum", got.Title)

	resp = env.do(t, http.MethodPut, "/benchmarks/"+created.ID.String(), token, model.BenchmarkInput{
		Title:                "two-sum",
		Subject:              "arrays",
		Difficulty:           "medium",
		MaxCyclomaticComplex: 8,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[model.Benchmark](t, resp)
	require.Equal(t, "medium", updated.Difficulty)

	resp = env.do(t, http.MethodDelete, "/benchmarks/"+created.ID.String(), token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSubmissionCodeNotArchived(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodPost, "/submissions", token, model.SubmissionInput{
		Language: "python",
		Code:     "print(1)",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[model.Submission](t, resp)

	// Archiving is off in this wiring, so there is nothing to serve.
	resp = env.do(t, http.MethodGet, "/submissions/"+created.ID.String()+"/code", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProfileUpdate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodGet, "/user", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	before := decodeBody[model.User](t, resp)

	resp = env.do(t, http.MethodPut, "/user", token, model.UserInput{Name: "Paul A."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	after := decodeBody[model.User](t, resp)
	require.Equal(t, "Paul A.", after.Name)
	require.Equal(t, before.DataVersion+1, after.DataVersion)

	resp = env.do(t, http.MethodDelete, "/user", token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/user", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidIDIsBadRequest(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.register(t, "paul")

	resp := env.do(t, http.MethodGet, "/submissions/not-a-uuid", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
