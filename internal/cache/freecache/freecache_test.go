package freecache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dunelab/dune/internal/config"
	"github.com/dunelab/dune/model"
)

func newTestCache(t *testing.T) *FreeCache {
	t.Helper()
	c := NewFreeCache(&config.FreeCacheConfig{SIZE_BYTES: 10 * 1024 * 1024, TTL: 60})
	return c.(*FreeCache)
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	in := model.Submission{
		ID:        uuid.New(),
		Language:  "python",
		Code:      "print(1)",
		Status:    model.StatusPending,
		CreatedAt: now,
		CodeHash:  "hash",
	}

	require.NoError(t, c.Put(ctx, "submission:abc", in, c.GetDefaultTTL()))

	var out model.Submission
	require.NoError(t, c.Get(ctx, "submission:abc", &out))
	require.Equal(t, in.ID, out.ID)
	require.Equal(t, in.Language, out.Language)
	require.Equal(t, in.Code, out.Code)
	require.Equal(t, in.Status, out.Status)
	require.Equal(t, in.CodeHash, out.CodeHash)
}

func TestPutValidation(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	require.Error(t, c.Put(ctx, "", "value", 10))
	require.Error(t, c.Put(ctx, "key", nil, 10))
}

func TestGetMissingKey(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	var out string
	require.Error(t, c.Get(context.Background(), "nope", &out))
}

func TestGetDefaultTTL(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	require.Equal(t, 60, c.GetDefaultTTL())
}
