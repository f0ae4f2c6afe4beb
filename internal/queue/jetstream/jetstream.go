package jetstream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dunelab/dune/internal/config"
	"github.com/dunelab/dune/internal/queue"
	"github.com/dunelab/dune/internal/tracer"
	"github.com/dunelab/dune/internal/util"
)

type JetStreamClient struct {
	connection *nats.Conn
	context    nats.JetStreamContext
}

func NewJetStreamClient(cfg *config.NatsConfig) (queue.Queue, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Name("dune"),
	)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     queue.JobStream,
		Subjects: []string{"jobs.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, err
	}

	return &JetStreamClient{
		connection: nc,
		context:    js,
	}, nil
}

// Publish sends data on subject and blocks until JetStream confirms
// durable receipt. The returned Ack names the stream that stored the
// message.
func (c *JetStreamClient) Publish(ctx context.Context, subject string, data []byte) (*queue.Ack, error) {
	ctx, span := tracer.Get().Start(ctx, "JetStream/Publish")
	defer span.End()

	pa, err := c.context.Publish(subject, data, nats.Context(ctx))
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	return &queue.Ack{
		Stream:    pa.Stream,
		Sequence:  pa.Sequence,
		Duplicate: pa.Duplicate,
	}, nil
}

func (c *JetStreamClient) Subscribe(subject, durable string) (queue.Subscription, error) {
	_, err := c.context.AddConsumer(queue.JobStream, &nats.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       20 * time.Second,
		MaxDeliver:    5,
		FilterSubject: subject,
		BackOff: []time.Duration{
			5 * time.Second,
			15 * time.Second,
			30 * time.Second,
		},
		DeliverPolicy: nats.DeliverNewPolicy,
	})
	if err != nil && !strings.Contains(err.Error(), "consumer name already in use") {
		return nil, err
	}

	sub, err := c.context.PullSubscribe(subject, durable, nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, err
	}
	return &jetStreamSubscription{sub: sub}, nil
}

func (c *JetStreamClient) Shutdown() {
	c.connection.Drain()
	c.connection.Close()
}

type jetStreamSubscription struct {
	sub *nats.Subscription
}

func (s *jetStreamSubscription) Fetch(ctx context.Context, batch int, wait time.Duration) ([]queue.Msg, error) {
	msgs, err := s.sub.Fetch(batch, nats.MaxWait(wait))
	if err != nil {
		return nil, err
	}
	out := make([]queue.Msg, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &jetStreamMsg{msg: m})
	}
	return out, nil
}

type jetStreamMsg struct {
	msg *nats.Msg
}

func (m *jetStreamMsg) Data() []byte { return m.msg.Data }
func (m *jetStreamMsg) Ack() error   { return m.msg.Ack() }
func (m *jetStreamMsg) Nak() error   { return m.msg.Nak() }
