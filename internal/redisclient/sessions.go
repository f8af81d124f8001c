package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// Session is the identity stored behind an opaque session token
type Session struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// SaveSession stores a session with TTL
func (c *Client) SaveSession(ctx context.Context, token string, session *Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return c.rdb.Set(ctx, sessionKey(token), data, ttl).Err()
}

// GetSession loads a session by token
func (c *Client) GetSession(ctx context.Context, token string) (*Session, error) {
	data, err := c.rdb.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes a session
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, sessionKey(token)).Err()
}

// DeleteUserSessions removes every session that belongs to userID
func (c *Client) DeleteUserSessions(ctx context.Context, userID int64) error {
	iter := c.rdb.Scan(ctx, 0, sessionKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var session Session
		if json.Unmarshal(data, &session) == nil && session.UserID == userID {
			if err := c.rdb.Del(ctx, key).Err(); err != nil {
				return err
			}
		}
	}
	return iter.Err()
}
