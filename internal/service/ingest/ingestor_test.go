package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/queue"
	"github.com/dunelab/dune/model"
)

type fakeStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*model.Submission
	err  error
}

func newFakeStore(subs ...*model.Submission) *fakeStore {
	f := &fakeStore{subs: make(map[uuid.UUID]*model.Submission)}
	for _, s := range subs {
		cp := *s
		f.subs[s.ID] = &cp
	}
	return f
}

func (f *fakeStore) ApplyResult(ctx context.Context, id uuid.UUID, res *model.ExecResult, to model.Status) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.subs[id]
	if !ok {
		return nil, apperr.NotFoundf("submission %s", id)
	}
	if s.Status != model.StatusRunning {
		return nil, fmt.Errorf("%w: submission %s is not running", apperr.ErrInvalidTransition, id)
	}
	now := time.Now().UTC()
	s.Status = to
	s.UpdatedAt = &now
	s.ExecDuration = res.ExecDuration
	s.MemUsage = res.MemUsage
	s.CyclomaticComplexity = res.CyclomaticComplexity
	s.LintScore = res.LintScore
	s.QualityScore = res.QualityScore
	if res.Stdout != "" {
		s.Stdout = &res.Stdout
	}
	if res.Stderr != "" {
		s.Stderr = &res.Stderr
	}
	if res.Message != "" {
		s.Message = &res.Message
	}
	if res.Error != "" {
		s.Error = &res.Error
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) get(id uuid.UUID) *model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.subs[id]
	return &cp
}

func runningSubmission() *model.Submission {
	return &model.Submission{
		ID:       uuid.New(),
		Language: "python",
		Code:     "print(1)",
		UserID:   uuid.New(),
		Status:   model.StatusRunning,
	}
}

func TestApplyDone(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	store := newFakeStore(sub)
	ing := NewIngestor(store, nil)

	lint := 8
	got, err := ing.Apply(context.Background(), &model.ExecResult{
		ID:           sub.ID,
		Status:       "done",
		Stdout:       "1\n",
		ExecDuration: 42,
		MemUsage:     1024,
		LintScore:    &lint,
	})
	require.NoError(t, err)

	require.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Stdout)
	require.Equal(t, "1\n", *got.Stdout)
	require.Equal(t, 42, got.ExecDuration)
	require.Equal(t, 1024, got.MemUsage)
	require.NotNil(t, got.LintScore)
	require.Equal(t, 8, *got.LintScore)
	require.NotNil(t, got.UpdatedAt)
}

func TestApplyFailed(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	store := newFakeStore(sub)
	ing := NewIngestor(store, nil)

	got, err := ing.Apply(context.Background(), &model.ExecResult{
		ID:     sub.ID,
		Status: "failed",
		Error:  "exit status 1",
		Stderr: "Traceback",
	})
	require.NoError(t, err)

	require.Equal(t, model.StatusError, got.Status)
	require.NotNil(t, got.Error)
	require.Equal(t, "exit status 1", *got.Error)
	require.NotNil(t, got.Stderr)
}

func TestApplyProgressMarkersAreNoOps(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	store := newFakeStore(sub)
	ing := NewIngestor(store, nil)

	for _, status := range []string{"received", "running"} {
		got, err := ing.Apply(context.Background(), &model.ExecResult{ID: sub.ID, Status: status})
		require.NoError(t, err)
		require.Nil(t, got)
	}
	require.Equal(t, model.StatusRunning, store.get(sub.ID).Status)
}

func TestApplyUnknownStatus(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	ing := NewIngestor(newFakeStore(sub), nil)

	_, err := ing.Apply(context.Background(), &model.ExecResult{ID: sub.ID, Status: "exploded"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestApplyUnknownID(t *testing.T) {
	t.Parallel()

	ing := NewIngestor(newFakeStore(), nil)

	_, err := ing.Apply(context.Background(), &model.ExecResult{ID: uuid.New(), Status: "done"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApplyMissingID(t *testing.T) {
	t.Parallel()

	ing := NewIngestor(newFakeStore(), nil)

	_, err := ing.Apply(context.Background(), &model.ExecResult{Status: "done"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestApplyRejectsPendingSubmission(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	sub.Status = model.StatusPending
	store := newFakeStore(sub)
	ing := NewIngestor(store, nil)

	_, err := ing.Apply(context.Background(), &model.ExecResult{ID: sub.ID, Status: "done"})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	require.Equal(t, model.StatusPending, store.get(sub.ID).Status)
}

func TestApplyDoesNotRegressTerminal(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	store := newFakeStore(sub)
	ing := NewIngestor(store, nil)

	_, err := ing.Apply(context.Background(), &model.ExecResult{ID: sub.ID, Status: "done"})
	require.NoError(t, err)

	_, err = ing.Apply(context.Background(), &model.ExecResult{ID: sub.ID, Status: "failed"})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	require.Equal(t, model.StatusCompleted, store.get(sub.ID).Status)
}

func TestApplyConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	store := newFakeStore(sub)
	ing := NewIngestor(store, nil)

	const appliers = 8
	var wg sync.WaitGroup
	errs := make([]error, appliers)
	for i := 0; i < appliers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := "done"
			if i%2 == 1 {
				status = "failed"
			}
			_, errs[i] = ing.Apply(context.Background(), &model.ExecResult{ID: sub.ID, Status: status})
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, apperr.ErrInvalidTransition)
		}
	}
	require.Equal(t, 1, won)
	require.True(t, store.get(sub.ID).Status.Terminal())
}

type fakeMsg struct {
	data  []byte
	acked bool
	naked bool
}

func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Ack() error   { m.acked = true; return nil }
func (m *fakeMsg) Nak() error   { m.naked = true; return nil }

func resultMsg(t *testing.T, res model.ExecResult) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(res)
	require.NoError(t, err)
	return &fakeMsg{data: data}
}

func TestHandleAcksAppliedResult(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	store := newFakeStore(sub)
	ing := NewIngestor(store, nil)

	msg := resultMsg(t, model.ExecResult{ID: sub.ID, Status: "done"})
	ing.handle(context.Background(), msg)

	require.True(t, msg.acked)
	require.False(t, msg.naked)
	require.Equal(t, model.StatusCompleted, store.get(sub.ID).Status)
}

func TestHandleAcksPoisonMessages(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	sub.Status = model.StatusCompleted
	store := newFakeStore(sub)
	ing := NewIngestor(store, nil)

	tests := []struct {
		name string
		msg  *fakeMsg
	}{
		{"malformed payload", &fakeMsg{data: []byte("not json")}},
		{"unknown id", resultMsg(t, model.ExecResult{ID: uuid.New(), Status: "done"})},
		{"out of order", resultMsg(t, model.ExecResult{ID: sub.ID, Status: "failed"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing.handle(context.Background(), tt.msg)
			require.True(t, tt.msg.acked)
			require.False(t, tt.msg.naked)
		})
	}
}

func TestHandleNaksTransientFailure(t *testing.T) {
	t.Parallel()

	sub := runningSubmission()
	store := newFakeStore(sub)
	store.err = fmt.Errorf("%w: connection reset", apperr.ErrPersistence)
	ing := NewIngestor(store, nil)

	msg := resultMsg(t, model.ExecResult{ID: sub.ID, Status: "done"})
	ing.handle(context.Background(), msg)

	require.False(t, msg.acked)
	require.True(t, msg.naked)
}

var _ queue.Msg = (*fakeMsg)(nil)
