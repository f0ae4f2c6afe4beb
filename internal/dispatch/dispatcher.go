package dispatch

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/queue"
	"github.com/dunelab/dune/internal/service/logger"
	"github.com/dunelab/dune/internal/tracer"
	"github.com/dunelab/dune/internal/util"
	"github.com/dunelab/dune/model"
)

// Dispatcher publishes execution jobs onto the broker. Publish only
// returns nil once the broker has durably accepted the message, so the
// pipeline has at-least-once delivery; retrying on failure is the
// caller's decision.
type Dispatcher struct {
	queue queue.Queue
}

func NewDispatcher(q queue.Queue) *Dispatcher {
	return &Dispatcher{queue: q}
}

func (d *Dispatcher) Publish(ctx context.Context, job model.JobMessage) error {
	ctx, span := tracer.Get().Start(ctx, "Dispatch/Publish")
	defer span.End()

	span.AddEvent("job.context",
		trace.WithAttributes(attribute.String("submission_id", job.ID.String())),
	)

	data, err := json.Marshal(job)
	if err != nil {
		util.RecordSpanError(span, err)
		return apperr.Dispatchf("serialize job for submission %s: %v", job.ID, err)
	}

	ack, err := d.queue.Publish(ctx, queue.JobSubject, data)
	if err != nil {
		util.RecordSpanError(span, err)
		return apperr.Dispatchf("publish job for submission %s: %v", job.ID, err)
	}

	// Any confirmation that does not name the jobs stream means the
	// message landed somewhere we did not intend.
	if ack == nil || ack.Stream != queue.JobStream {
		err := apperr.Dispatchf("unexpected confirmation for submission %s: %+v", job.ID, ack)
		util.RecordSpanError(span, err)
		return err
	}

	if ack.Duplicate {
		logger.FromContext(ctx).Warn().
			Str("submission_id", job.ID.String()).
			Msg("broker reported duplicate job publish")
	}

	return nil
}
