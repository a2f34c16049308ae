package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type LoginChecker struct {
	ttl         time.Duration
	redisClient *redis.Client
}

func NewLoginChecker(ttl time.Duration, redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		ttl:         ttl,
		redisClient: redisClient,
	}
}

// UserID returns ErrSessionNotFound for unknown tokens and ErrSessionExpired for sessions
// older than the TTL that were not cleaned yet.
func (lc *LoginChecker) UserID(ctx context.Context, token string) (string, error) {
	sessionKey := sessionKeyPrefix + token
	cmd := lc.redisClient.HGetAll(ctx, sessionKey)
	if err := cmd.Err(); err != nil {
		return "", err
	}

	session := cmd.Val()
	userID := session[sessionFieldUserID]
	if userID == "" {
		return "", ErrSessionNotFound
	}

	createdAtUnix, err := strconv.ParseInt(session[sessionFieldCreatedAt], 10, 64)
	if err != nil {
		return "", fmt.Errorf("session created at: %w", err)
	}

	if time.Since(time.Unix(createdAtUnix, 0)) > lc.ttl {
		return "", ErrSessionExpired
	}

	return userID, nil
}
