package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/cache"
	"github.com/dunelab/dune/internal/hash"
	"github.com/dunelab/dune/internal/service/logger"
	"github.com/dunelab/dune/internal/storage"
	"github.com/dunelab/dune/internal/util"
	"github.com/dunelab/dune/model"
)

// Store is the persistence contract the service depends on. The pgx
// repository satisfies it; tests swap in an in-memory fake.
type Store interface {
	FindAll(ctx context.Context) ([]*model.Submission, error)
	Find(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*model.Submission, error)
	Insert(ctx context.Context, s *model.Submission) error
	Update(ctx context.Context, s *model.Submission) (*model.Submission, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.Status) (bool, error)
}

// Dispatcher publishes an execution job, returning only after the
// broker has confirmed durable receipt.
type Dispatcher interface {
	Publish(ctx context.Context, job model.JobMessage) error
}

// Service owns the submission lifecycle: validation, fingerprinting,
// persistence and handoff to the execution pipeline.
type Service struct {
	store      Store
	dispatcher Dispatcher
	cache      cache.Cache
	archive    storage.Storage // nil disables code archiving
}

func NewService(store Store, dispatcher Dispatcher, c cache.Cache, archive storage.Storage) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		cache:      c,
		archive:    archive,
	}
}

func validateInput(input model.SubmissionInput) error {
	if input.Language == "" {
		return apperr.Validationf("language is required")
	}
	if input.Code == "" {
		return apperr.Validationf("code is required")
	}
	return nil
}

// Create persists a new submission for ownerID. Status always starts
// at pending regardless of what the caller sent.
func (s *Service) Create(ctx context.Context, input model.SubmissionInput, ownerID uuid.UUID) (*model.Submission, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &model.Submission{
		ID:          id,
		Language:    input.Language,
		Code:        input.Code,
		CreatedAt:   now,
		UpdatedAt:   &now,
		UserID:      ownerID,
		Status:      model.StatusPending,
		BenchmarkID: input.BenchmarkID,
		CodeHash:    hash.Code([]byte(input.Code)),
	}

	if err := s.store.Insert(ctx, sub); err != nil {
		return nil, err
	}

	s.putCache(ctx, sub)

	if s.archive != nil {
		// Best effort; the submission row is already durable.
		if err := s.archive.Upload(ctx, util.GetCodeArchivePath(sub.CodeHash), []byte(sub.Code)); err != nil {
			logger.FromContext(ctx).Error().Err(err).
				Str("submission_id", sub.ID.String()).
				Msg("failed to archive submission code")
		}
	}

	return sub, nil
}

// Update overwrites the mutable fields of a submission. Only the
// stored owner may update; the code hash is recomputed with the code.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input model.SubmissionInput, actorID uuid.UUID) (*model.Submission, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != actorID {
		return nil, fmt.Errorf("%w: submission %s belongs to another user", apperr.ErrAuthorization, id)
	}

	now := time.Now().UTC()
	existing.Language = input.Language
	existing.Code = input.Code
	existing.BenchmarkID = input.BenchmarkID
	existing.CodeHash = hash.Code([]byte(input.Code))
	existing.UpdatedAt = &now

	updated, err := s.store.Update(ctx, existing)
	if err != nil {
		return nil, err
	}

	s.putCache(ctx, updated)
	return updated, nil
}

// Delete removes a submission unconditionally and returns the number
// of rows affected. Deleting an unknown id is not an error.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.store.Delete(ctx, id)
}

func (s *Service) Find(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	if s.cache != nil {
		cached := &model.Submission{}
		if err := s.cache.Get(ctx, util.GetSubmissionKey(id.String()), cached); err == nil {
			return cached, nil
		}
	}

	sub, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	s.putCache(ctx, sub)
	return sub, nil
}

// ArchivedCode fetches the archived source object for a submission,
// keyed by its code hash.
func (s *Service) ArchivedCode(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.archive == nil {
		return nil, apperr.NotFoundf("code archive is disabled")
	}

	sub, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := s.archive.Download(ctx, util.GetCodeArchivePath(sub.CodeHash))
	if err != nil {
		return nil, fmt.Errorf("download archived code for submission %s: %w", id, err)
	}
	return data, nil
}

func (s *Service) FindAll(ctx context.Context) ([]*model.Submission, error) {
	return s.store.FindAll(ctx)
}

func (s *Service) FindForOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Submission, error) {
	return s.store.FindByUser(ctx, ownerID)
}

// DispatchRun publishes the execution job for a submission. Once the
// broker confirms receipt the submission moves pending -> running; a
// submission already past pending keeps its status (the publish is
// still at-least-once delivery).
func (s *Service) DispatchRun(ctx context.Context, id uuid.UUID) error {
	sub, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}

	job := model.JobMessage{
		ID:       sub.ID,
		Language: sub.Language,
		Code:     sub.Code,
	}

	if err := s.dispatcher.Publish(ctx, job); err != nil {
		return err
	}

	ok, err := s.store.TransitionStatus(ctx, id, model.StatusPending, model.StatusRunning)
	if err != nil {
		return err
	}
	if !ok {
		logger.FromContext(ctx).Warn().
			Str("submission_id", id.String()).
			Str("status", string(sub.Status)).
			Msg("submission not pending at dispatch, status unchanged")
		return nil
	}

	sub.Status = model.StatusRunning
	s.putCache(ctx, sub)
	return nil
}

func (s *Service) putCache(ctx context.Context, sub *model.Submission) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, util.GetSubmissionKey(sub.ID.String()), sub, s.cache.GetDefaultTTL()); err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("submission_id", sub.ID.String()).
			Msg("failed to cache submission")
	}
}
