package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/login_attempt.lua
var loginAttemptScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/take_stock.lua
var takeStockScript string

//go:embed scripts/count_sale.lua
var countSaleScript string

type Client struct {
	rdb           *redis.Client
	attemptScript *redis.Script
	releaseScript *redis.Script
	stockScript   *redis.Script
	saleScript    *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		attemptScript: redis.NewScript(loginAttemptScript),
		releaseScript: redis.NewScript(releaseLockScript),
		stockScript:   redis.NewScript(takeStockScript),
		saleScript:    redis.NewScript(countSaleScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func loginAttemptsKey(username string) string {
	return fmt.Sprintf("login_attempts:%s", username)
}

// RegisterLoginAttempt counts a login attempt for username and returns the
// number of attempts in the current window. The window starts at the first
// attempt.
func (c *Client) RegisterLoginAttempt(ctx context.Context, username string, window time.Duration) (int64, error) {
	n, err := c.attemptScript.Run(ctx, c.rdb, []string{loginAttemptsKey(username)}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("login attempt script failed: %w", err)
	}
	return n, nil
}

// ResetLoginAttempts clears the attempt counter after a successful login
func (c *Client) ResetLoginAttempts(ctx context.Context, username string) error {
	return c.rdb.Del(ctx, loginAttemptsKey(username)).Err()
}

// AcquireLock acquires a distributed lock and returns the owner token
// needed to release it. ok is false when someone else holds the lock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()
	ok, err = c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func stockKey(gameID int64) string {
	return fmt.Sprintf("stock:game:%d", gameID)
}

func soldKey(gameID int64) string {
	return fmt.Sprintf("sales:game:%d", gameID)
}

// SetStock overwrites the cached available-key counts
func (c *Client) SetStock(ctx context.Context, stock map[int64]int) error {
	if len(stock) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for gameID, count := range stock {
		pipe.Set(ctx, stockKey(gameID), count, 0)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock returns the cached available-key count for a game. ok is false
// on a cache miss.
func (c *Client) GetStock(ctx context.Context, gameID int64) (count int, ok bool, err error) {
	val, err := c.rdb.Get(ctx, stockKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	count, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock counter for game %d: %w", gameID, err)
	}
	return count, true, nil
}

// TakeStock atomically decrements the cached stock of a game, never below
// zero. It returns -1 when the game is not cached.
func (c *Client) TakeStock(ctx context.Context, gameID int64) (int64, error) {
	n, err := c.stockScript.Run(ctx, c.rdb, []string{stockKey(gameID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("take stock script failed: %w", err)
	}
	return n, nil
}

func saleEventKey(eventID string) string {
	return "sales:event:" + eventID
}

// CountSale increments the sold-key counter of a game once per event ID.
// counted is false when the event was already applied; the marker expires
// after ttl.
func (c *Client) CountSale(ctx context.Context, eventID string, gameID int64, ttl time.Duration) (sold int64, counted bool, err error) {
	n, err := c.saleScript.Run(ctx, c.rdb,
		[]string{saleEventKey(eventID), soldKey(gameID)},
		int64(ttl/time.Second)).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("count sale script failed: %w", err)
	}
	if n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}

// GetSold returns the sold-key counter of a game, zero when unset
func (c *Client) GetSold(ctx context.Context, gameID int64) (int64, error) {
	n, err := c.rdb.Get(ctx, soldKey(gameID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
