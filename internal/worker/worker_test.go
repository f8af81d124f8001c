package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"keymarket/internal/models"
	"keymarket/internal/redisclient"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = util.InitLogger("test")
	os.Exit(m.Run())
}

func newTestWorker(t *testing.T) (*EventWorker, *redisclient.Client, *miniredis.Miniredis) {
	t.Helper()

	st, err := store.NewStore(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mr := miniredis.RunT(t)
	rc := redisclient.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	t.Cleanup(func() { rc.Close() })

	return NewEventWorker(nil, st, rc), rc, mr
}

func keyPurchasedPayload(t *testing.T, eventID string, gameID int64) []byte {
	t.Helper()
	b, err := json.Marshal(&models.KeyPurchasedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   eventID,
			EventType: models.EventTypeKeyPurchased,
			Timestamp: time.Now().UTC(),
		},
		SaleID: 1,
		KeyID:  1,
		GameID: gameID,
	})
	require.NoError(t, err)
	return b
}

func TestKeyPurchasedIsCountedOnce(t *testing.T) {
	w, rc, _ := newTestWorker(t)
	ctx := context.Background()

	payload := keyPurchasedPayload(t, "evt-1", 7)
	require.NoError(t, w.Handle(ctx, payload))
	require.NoError(t, w.Handle(ctx, payload))
	require.NoError(t, w.Handle(ctx, keyPurchasedPayload(t, "evt-2", 7)))

	sold, err := rc.GetSold(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sold)
}

func TestKeyPurchasedRetriedWhenRedisDown(t *testing.T) {
	w, rc, mr := newTestWorker(t)
	ctx := context.Background()
	payload := keyPurchasedPayload(t, "evt-1", 3)

	mr.Close()
	assert.Error(t, w.Handle(ctx, payload))

	require.NoError(t, mr.Restart())
	require.NoError(t, w.Handle(ctx, payload))

	sold, err := rc.GetSold(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sold)
}

func TestKeyPurchasedNotRecountedWhenRecordingFails(t *testing.T) {
	w, rc, _ := newTestWorker(t)
	ctx := context.Background()
	payload := keyPurchasedPayload(t, "evt-1", 5)

	_, err := w.store.GetDB().Exec(`
		CREATE TRIGGER fail_processed_event BEFORE INSERT ON processed_events
		BEGIN SELECT RAISE(ABORT, 'simulated storage failure'); END`)
	require.NoError(t, err)
	assert.Error(t, w.Handle(ctx, payload), "redelivery is requested")

	_, err = w.store.GetDB().Exec("DROP TRIGGER fail_processed_event")
	require.NoError(t, err)
	require.NoError(t, w.Handle(ctx, payload))

	sold, err := rc.GetSold(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sold)

	processed, err := w.store.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestOtherEventsAreAccepted(t *testing.T) {
	w, _, _ := newTestWorker(t)

	payload, err := json.Marshal(&models.ShopCreatedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-9", EventType: models.EventTypeShopCreated},
		ShopID:    1,
	})
	require.NoError(t, err)

	assert.NoError(t, w.Handle(context.Background(), payload))
	assert.Error(t, w.Handle(context.Background(), []byte("{not json")))
}

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (c *countingSyncer) SyncStockToRedis(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestStockSyncJob(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("redis down")}
	NewStockSyncJob(syncer).Run()
	assert.Equal(t, int32(1), syncer.calls.Load())
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("not a schedule", &countingSyncer{})
	assert.Error(t, err)

	syncer := &countingSyncer{}
	s, err := NewScheduler("@every 1s", syncer)
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return syncer.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
