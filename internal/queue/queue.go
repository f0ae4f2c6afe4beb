package queue

import (
	"context"
	"time"
)

// Subjects and stream layout for the execution pipeline. Jobs flow to
// the worker on JobSubject; graded results come back on ResultSubject.
const (
	JobStream     = "JOBS"
	JobSubject    = "jobs.execute"
	ResultSubject = "jobs.result"
)

// Ack is the broker's durable-receipt confirmation for a publish.
type Ack struct {
	Stream    string
	Sequence  uint64
	Duplicate bool
}

type Msg interface {
	Data() []byte
	Ack() error
	Nak() error
}

type Subscription interface {
	Fetch(ctx context.Context, batch int, wait time.Duration) ([]Msg, error)
}

// Queue is the durable message channel between the API and the
// execution worker. Publish blocks until the broker confirms receipt.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) (*Ack, error)
	Subscribe(subject, durable string) (Subscription, error)
	Shutdown()
}
