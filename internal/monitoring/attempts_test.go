package monitoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/monitoring"
)

func attemptStores(t *testing.T) map[string]monitoring.AttemptStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]monitoring.AttemptStore{
		"memory": monitoring.NewMemoryAttemptStore(),
		"redis":  monitoring.NewRedisAttemptStore(client, time.Hour),
	}
}

func TestAttemptStores(t *testing.T) {
	for name, store := range attemptStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := uuid.New()
			other := uuid.New()

			history, err := store.History(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, history)

			at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			require.NoError(t, store.Append(ctx, models.RetryAttempt{VideoID: id, Attempt: 1, At: at, Error: "boom"}))
			require.NoError(t, store.Append(ctx, models.RetryAttempt{VideoID: id, Attempt: 2, At: at.Add(time.Second), Success: true}))
			require.NoError(t, store.Append(ctx, models.RetryAttempt{VideoID: other, Attempt: 1, At: at}))

			history, err = store.History(ctx, id)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, 1, history[0].Attempt)
			assert.Equal(t, "boom", history[0].Error)
			assert.True(t, history[0].At.Equal(at))
			assert.True(t, history[1].Success)

			first, err := store.MarkNotified(ctx, id)
			require.NoError(t, err)
			assert.True(t, first)
			again, err := store.MarkNotified(ctx, id)
			require.NoError(t, err)
			assert.False(t, again)

			require.NoError(t, store.Clear(ctx, id))
			history, err = store.History(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, history)
			first, err = store.MarkNotified(ctx, id)
			require.NoError(t, err)
			assert.True(t, first, "clear resets the notified mark")

			history, err = store.History(ctx, other)
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

func TestAttemptStoresCapHistory(t *testing.T) {
	for name, store := range attemptStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := uuid.New()
			total := monitoring.MaxAttemptHistory + 7
			for n := 1; n <= total; n++ {
				require.NoError(t, store.Append(ctx, models.RetryAttempt{VideoID: id, Attempt: n, Error: "max retries exceeded"}))
			}

			history, err := store.History(ctx, id)
			require.NoError(t, err)
			require.Len(t, history, monitoring.MaxAttemptHistory)
			assert.Equal(t, 8, history[0].Attempt)
			assert.Equal(t, total, history[len(history)-1].Attempt)
		})
	}
}
