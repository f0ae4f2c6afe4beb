package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/auth"
	"github.com/dunelab/dune/internal/service/logger"
	"github.com/dunelab/dune/internal/service/submission"
	"github.com/dunelab/dune/internal/web/middleware"
	"github.com/dunelab/dune/model"
)

// BenchmarkStore is the slice of the persistence contract the HTTP
// layer needs for benchmark CRUD.
type BenchmarkStore interface {
	FindAll(ctx context.Context) ([]*model.Benchmark, error)
	Find(ctx context.Context, id uuid.UUID) (*model.Benchmark, error)
	Insert(ctx context.Context, b *model.Benchmark) error
	Update(ctx context.Context, b *model.Benchmark) (*model.Benchmark, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

// UserStore is the slice of the persistence contract the HTTP layer
// needs for account management.
type UserStore interface {
	FindAll(ctx context.Context) ([]*model.User, error)
	Find(ctx context.Context, id uuid.UUID) (*model.User, error)
	Update(ctx context.Context, u *model.User) (*model.User, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

type Server struct {
	router      chi.Router
	submissions *submission.Service
	auth        *auth.Service
	benchmarks  BenchmarkStore
	users       UserStore
}

func NewServer(submissions *submission.Service, authService *auth.Service, benchmarks BenchmarkStore, users UserStore) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		submissions: submissions,
		auth:        authService,
		benchmarks:  benchmarks,
		users:       users,
	}

	s.routes()
	return s
}

// Router exposes the handler for main.go.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	limiter := middleware.NewLimiter(256, 64)
	r.Use(limiter.Limit)

	r.Post("/register", s.handleRegister)
	r.Post("/sign-in", s.handleSignIn)
	r.Get("/benchmarks", s.handleListBenchmarks)
	r.Get("/benchmarks/{id}", s.handleGetBenchmark)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.auth))

		r.Post("/submissions", s.handleCreateSubmission)
		r.Get("/submissions", s.handleListSubmissions)
		r.Get("/submissions/{id}", s.handleGetSubmission)
		r.Get("/submissions/{id}/code", s.handleGetSubmissionCode)
		r.Put("/submissions/{id}", s.handleUpdateSubmission)
		r.Delete("/submissions/{id}", s.handleDeleteSubmission)
		r.Post("/submissions/{id}/run", s.handleDispatchSubmission)
		r.Get("/user/submissions", s.handleListOwnSubmissions)
		r.Get("/user", s.handleGetProfile)
		r.Put("/user", s.handleUpdateProfile)
		r.Delete("/user", s.handleDeleteAccount)
		r.Get("/users", s.handleListUsers)

		r.Post("/benchmarks", s.handleCreateBenchmark)
		r.Put("/benchmarks/{id}", s.handleUpdateBenchmark)
		r.Delete("/benchmarks/{id}", s.handleDeleteBenchmark)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input model.UserInput
	if !decode(w, r, &input) {
		return
	}

	user, token, err := s.auth.Register(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	setTokenCookie(w, token)
	respond(w, http.StatusCreated, struct {
		User  *model.User `json:"user"`
		Token string      `json:"token"`
	}{user, token})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	token, err := s.auth.SignIn(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	setTokenCookie(w, token)
	respond(w, http.StatusOK, model.AuthResponse{Token: token})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Find(r.Context(), middleware.OwnerID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var input model.UserInput
	if !decode(w, r, &input) {
		return
	}

	user, err := s.users.Find(r.Context(), middleware.OwnerID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if input.Name != "" {
		user.Name = input.Name
	}
	if input.Email != "" {
		user.Email = input.Email
	}
	if input.Username != "" {
		user.Username = input.Username
	}
	if input.Password != "" {
		encoded, err := auth.HashPassword(input.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		user.Password = encoded
	}

	now := time.Now().UTC()
	user.DataVersion++
	user.UpdatedAt = &now

	updated, err := s.users.Update(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if _, err := s.users.Delete(r.Context(), middleware.OwnerID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.FindAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, users)
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var input model.SubmissionInput
	if !decode(w, r, &input) {
		return
	}

	sub, err := s.submissions.Create(r.Context(), input, middleware.OwnerID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.submissions.FindAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, subs)
}

func (s *Server) handleListOwnSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.submissions.FindForOwner(r.Context(), middleware.OwnerID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, subs)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sub, err := s.submissions.Find(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

func (s *Server) handleGetSubmissionCode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	data, err := s.submissions.ArchivedCode(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleUpdateSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var input model.SubmissionInput
	if !decode(w, r, &input) {
		return
	}

	sub, err := s.submissions.Update(r.Context(), id, input, middleware.OwnerID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := s.submissions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDispatchSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.submissions.DispatchRun(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

func (s *Server) handleListBenchmarks(w http.ResponseWriter, r *http.Request) {
	benchmarks, err := s.benchmarks.FindAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, benchmarks)
}

func (s *Server) handleGetBenchmark(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b, err := s.benchmarks.Find(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, b)
}

func (s *Server) handleCreateBenchmark(w http.ResponseWriter, r *http.Request) {
	var input model.BenchmarkInput
	if !decode(w, r, &input) {
		return
	}
	if input.Title == "" || input.Difficulty == "" {
		writeError(w, r, apperr.Validationf("title and difficulty are required"))
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		writeError(w, r, err)
		return
	}

	creator := middleware.OwnerID(r.Context())
	b := &model.Benchmark{
		ID:                   id,
		Title:                input.Title,
		Subject:              input.Subject,
		Difficulty:           input.Difficulty,
		CreatorID:            &creator,
		GitURL:               input.GitURL,
		MaxCyclomaticComplex: input.MaxCyclomaticComplex,
	}

	if err := s.benchmarks.Insert(r.Context(), b); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, b)
}

func (s *Server) handleUpdateBenchmark(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var input model.BenchmarkInput
	if !decode(w, r, &input) {
		return
	}

	existing, err := s.benchmarks.Find(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	existing.Title = input.Title
	existing.Subject = input.Subject
	existing.Difficulty = input.Difficulty
	existing.GitURL = input.GitURL
	existing.MaxCyclomaticComplex = input.MaxCyclomaticComplex

	updated, err := s.benchmarks.Update(r.Context(), existing)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteBenchmark(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := s.benchmarks.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.Validationf("invalid id: %v", err))
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, r, apperr.Validationf("invalid JSON: %v", err))
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrDispatch):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}

	respond(w, status, map[string]string{"error": err.Error()})
}
