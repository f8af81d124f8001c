package service

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"keymarket/config"
	"keymarket/internal/broker"
	"keymarket/internal/models"
	"keymarket/internal/redisclient"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	_ = util.InitLogger("test")
	os.Exit(m.Run())
}

type recordedEvent struct {
	Key   string
	Type  string
	Value map[string]interface{}
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSink) PublishEvent(_ context.Context, key string, event interface{}) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	eventType, _ := m["event_type"].(string)
	r.events = append(r.events, recordedEvent{Key: key, Type: eventType, Value: m})
	return nil
}

func (r *recordingSink) ofType(eventType string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	store     *store.Store
	redis     *redisclient.Client
	mr        *miniredis.Miniredis
	sink      *recordingSink
	auth      *AuthService
	purchase  *PurchaseService
	shops     *ShopService
	catalog   *CatalogService
	inventory *InventoryService
	sales     *SalesService
	admin     *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewStore(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mr := miniredis.RunT(t)
	rc := redisclient.Wrap(redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	}))
	t.Cleanup(func() { rc.Close() })

	sink := &recordingSink{}
	publisher := broker.NewEventPublisher(sink)

	inventory := NewInventoryService(st, rc)
	return &testEnv{
		store: st,
		redis: rc,
		mr:    mr,
		sink:  sink,
		auth: NewAuthService(st, rc, publisher, config.AuthConfig{
			SessionTTL:       time.Hour,
			BcryptCost:       bcrypt.MinCost,
			MaxLoginAttempts: 3,
			LoginWindow:      time.Minute,
		}),
		purchase:  NewPurchaseService(st, rc, publisher, 10*time.Second),
		shops:     NewShopService(st, publisher),
		catalog:   NewCatalogService(st),
		inventory: inventory,
		sales:     NewSalesService(st),
		admin:     NewAdminService(st, rc, inventory, publisher),
	}
}

func (e *testEnv) register(t *testing.T, username, role string) Identity {
	t.Helper()

	user, err := e.auth.Register(context.Background(), username, "secret-pw", role)
	require.NoError(t, err)
	return Identity{UserID: user.ID, Username: user.Username, Role: user.Role}
}

// seedListing registers a seller with a shop selling one game and lists one
// key per value at the given price.
func (e *testEnv) seedListing(t *testing.T, seller string, price string, values ...string) (Identity, *models.Game, []*models.Key) {
	t.Helper()
	ctx := context.Background()

	id := e.register(t, seller, models.RoleSeller)
	_, err := e.shops.CreateShop(ctx, id, seller+" store")
	require.NoError(t, err)

	game, err := e.catalog.AddGame(ctx, id, NewGame{Title: "Game of " + seller, Publisher: "Pub", Genre: "RPG", PlatformID: 1})
	require.NoError(t, err)

	keys := make([]*models.Key, 0, len(values))
	for _, v := range values {
		k, err := e.inventory.AddKey(ctx, id, NewKey{GameID: game.ID, Value: v, Price: decimal.RequireFromString(price)})
		require.NoError(t, err)
		keys = append(keys, k)
	}
	return id, game, keys
}

func (e *testEnv) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.store.GetDB().Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}
