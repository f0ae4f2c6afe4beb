package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/cache"
	"github.com/dunelab/dune/internal/queue"
	"github.com/dunelab/dune/internal/service/logger"
	"github.com/dunelab/dune/internal/util"
	"github.com/dunelab/dune/model"
)

const (
	resultDurable = "RESULTS"
	fetchBatch    = 10
	fetchWait     = 250 * time.Millisecond
)

// Store is the persistence contract the ingestor depends on.
// ApplyResult must only finalize a submission that is currently
// running, atomically with respect to concurrent appliers.
type Store interface {
	ApplyResult(ctx context.Context, id uuid.UUID, res *model.ExecResult, to model.Status) (*model.Submission, error)
}

// Ingestor drains the result subject and finalizes submissions.
type Ingestor struct {
	store Store
	cache cache.Cache
}

func NewIngestor(store Store, c cache.Cache) *Ingestor {
	return &Ingestor{store: store, cache: c}
}

// terminalStatus maps a worker-reported status onto the lifecycle.
// Progress markers ("received", "running") map to empty: nothing to
// persist, the message is acked and dropped.
func terminalStatus(reported string) (model.Status, bool, error) {
	switch reported {
	case "done", "completed":
		return model.StatusCompleted, true, nil
	case "failed", "error":
		return model.StatusError, true, nil
	case "received", "running":
		return "", false, nil
	default:
		return "", false, apperr.Validationf("unknown worker status %q", reported)
	}
}

// Apply finalizes a single result. Results for submissions that are
// not running fail with ErrInvalidTransition; the caller decides
// whether that makes the message poison (it does).
func (i *Ingestor) Apply(ctx context.Context, res *model.ExecResult) (*model.Submission, error) {
	if res.ID == uuid.Nil {
		return nil, apperr.Validationf("result is missing a submission id")
	}

	to, terminal, err := terminalStatus(res.Status)
	if err != nil {
		return nil, err
	}
	if !terminal {
		return nil, nil
	}

	sub, err := i.store.ApplyResult(ctx, res.ID, res, to)
	if err != nil {
		return nil, err
	}

	if i.cache != nil {
		if err := i.cache.Put(ctx, util.GetSubmissionKey(sub.ID.String()), sub, i.cache.GetDefaultTTL()); err != nil {
			logger.FromContext(ctx).Error().Err(err).
				Str("submission_id", sub.ID.String()).
				Msg("failed to cache finalized submission")
		}
	}
	return sub, nil
}

// Run consumes results until ctx is cancelled. Malformed payloads,
// unknown ids and out-of-order results are acked so they never
// redeliver; transient persistence failures are nak'd for retry.
func (i *Ingestor) Run(ctx context.Context, q queue.Queue) error {
	sub, err := q.Subscribe(queue.ResultSubject, resultDurable)
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info().Str("subject", queue.ResultSubject).Msg("result ingestor started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("result ingestor stopping")
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(ctx, fetchBatch, fetchWait)
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("failed to fetch results")
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			i.handle(ctx, msg)
		}
	}
}

func (i *Ingestor) handle(ctx context.Context, msg queue.Msg) {
	log := logger.FromContext(ctx)

	var res model.ExecResult
	if err := json.Unmarshal(msg.Data(), &res); err != nil {
		log.Error().Err(err).Msg("dropping malformed result payload")
		i.ack(ctx, msg)
		return
	}

	if _, err := i.Apply(ctx, &res); err != nil {
		switch {
		case errors.Is(err, apperr.ErrValidation),
			errors.Is(err, apperr.ErrNotFound),
			errors.Is(err, apperr.ErrInvalidTransition):
			// Redelivery cannot fix these.
			log.Warn().Err(err).
				Str("submission_id", res.ID.String()).
				Msg("dropping unusable result")
			i.ack(ctx, msg)
		default:
			log.Error().Err(err).
				Str("submission_id", res.ID.String()).
				Msg("failed to persist result, requeueing")
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error().Err(nakErr).Msg("failed to nak result message")
			}
		}
		return
	}

	i.ack(ctx, msg)
}

func (i *Ingestor) ack(ctx context.Context, msg queue.Msg) {
	if err := msg.Ack(); err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("failed to ack result message")
	}
}
