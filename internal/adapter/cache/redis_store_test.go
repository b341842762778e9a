package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestStateStoreTakeOnce(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStateStore(client)
	ctx := context.Background()

	token := onboard.StateToken{TokenID: "t-1", SubjectID: "U1", OriginGroupID: "G1", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Save(ctx, token, time.Hour))

	got, err := store.Take(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "U1", got.SubjectID)
	require.Equal(t, "G1", got.OriginGroupID)

	again, err := store.Take(ctx, "t-1")
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestStateStoreUnknownToken(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStateStore(client)

	got, err := store.Take(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStateStoreExpiresWithTTL(t *testing.T) {
	srv, client := newTestRedis(t)
	store := NewRedisStateStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, onboard.StateToken{TokenID: "t-2", SubjectID: "U1"}, time.Minute))
	srv.FastForward(2 * time.Minute)

	got, err := store.Take(ctx, "t-2")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStateStoreConcurrentTake(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStateStore(client)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, onboard.StateToken{TokenID: "t-3", SubjectID: "U1"}, time.Hour))

	var (
		wg   sync.WaitGroup
		hits atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.Take(ctx, "t-3")
			if err == nil && got != nil {
				hits.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), hits.Load())
}

func TestBatchStoreRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisBatchStore(client, time.Hour)
	ctx := context.Background()

	status := onboard.BatchStatus{
		Batch:    onboard.Batch{ID: "b-1", GroupID: "G1", Quantity: 5, Source: onboard.SourceAdmin},
		Status:   onboard.StatusCompleted,
		Result:   &onboard.Result{Attempted: 5, Succeeded: 4, Failed: 1},
		QueuedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Put(ctx, status))

	got, err := store.Get(ctx, "b-1")
	require.NoError(t, err)
	require.Equal(t, onboard.StatusCompleted, got.Status)
	require.Equal(t, 4, got.Result.Succeeded)

	_, err = store.Get(ctx, "b-2")
	require.ErrorIs(t, err, onboard.ErrBatchNotFound)
}

func TestPinger(t *testing.T) {
	srv, client := newTestRedis(t)
	pinger := NewPinger(client)
	require.NoError(t, pinger.Ping(context.Background()))

	srv.Close()
	require.Error(t, pinger.Ping(context.Background()))
}
