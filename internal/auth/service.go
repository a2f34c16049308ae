package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/2beens/trainlog/internal/telemetry/tracing"
	"github.com/2beens/trainlog/pkg"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTTL          = 30 * 24 * time.Hour
	sessionKeyPrefix    = "trainlog-session||"
	tokensSetKey        = "trainlog-sessions"
	passphraseKeyPrefix = "trainlog-passphrase||"

	sessionFieldUserID    = "user_id"
	sessionFieldCreatedAt = "created_at"

	tokenLength         = 35
	userIDLength        = 28
	minPassphraseLength = 8
)

var (
	ErrWrongPassphrase    = errors.New("wrong user id or passphrase")
	ErrPassphraseTooShort = fmt.Errorf("passphrase must have at least %d characters", minPassphraseLength)
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

// Session binds a token to the opaque user id that owns a training log.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
}

type Service struct {
	redisClient *redis.Client
	ttl         time.Duration
	// ability to inject random string generator func for tokens and user ids (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
	// tests swap in a fast hash
	HashPassphraseFunc func(passphrase string) (string, error)
}

func NewAuthService(
	ttl time.Duration,
	redisClient *redis.Client,
) *Service {
	return &Service{
		ttl:                ttl,
		redisClient:        redisClient,
		RandStringFunc:     pkg.GenerateRandomString,
		HashPassphraseFunc: pkg.HashPassword,
	}
}

// SignInAnonymously creates a fresh user id and a session for it.
func (as *Service) SignInAnonymously(ctx context.Context, createdAt time.Time) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.signin.anonymous")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	userID, err := as.RandStringFunc(userIDLength)
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	return as.newSession(ctx, userID, createdAt)
}

// SignInWithPassphrase creates a new session for an existing user id, e.g. on a second device.
func (as *Service) SignInWithPassphrase(ctx context.Context, userID, passphrase string, createdAt time.Time) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.signin.passphrase")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if userID == "" || passphrase == "" {
		return nil, ErrWrongPassphrase
	}

	hash, err := as.redisClient.Get(ctx, passphraseKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("get passphrase hash: %w", err)
	}

	if !pkg.CheckPasswordHash(passphrase, hash) {
		return nil, ErrWrongPassphrase
	}

	return as.newSession(ctx, userID, createdAt)
}

// SetPassphrase sets or replaces the passphrase used to sign in to the user's log from other devices.
func (as *Service) SetPassphrase(ctx context.Context, userID, passphrase string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.passphrase.set")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if len(passphrase) < minPassphraseLength {
		return ErrPassphraseTooShort
	}

	hash, err := as.HashPassphraseFunc(passphrase)
	if err != nil {
		return fmt.Errorf("hash passphrase: %w", err)
	}

	if err := as.redisClient.Set(ctx, passphraseKeyPrefix+userID, hash, 0).Err(); err != nil {
		return fmt.Errorf("set passphrase hash: %w", err)
	}

	return nil
}

func (as *Service) newSession(ctx context.Context, userID string, createdAt time.Time) (*Session, error) {
	token, err := as.RandStringFunc(tokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	sessionKey := sessionKeyPrefix + token
	cmdHSet := as.redisClient.HSet(ctx, sessionKey,
		sessionFieldUserID, userID,
		sessionFieldCreatedAt, createdAt.Unix(),
	)
	if err := cmdHSet.Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	// add token to list of sessions
	cmdSAdd := as.redisClient.SAdd(ctx, tokensSetKey, token)
	if err := cmdSAdd.Err(); err != nil {
		return nil, fmt.Errorf("add session token: %w", err)
	}

	return &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Unix(createdAt.Unix(), 0),
	}, nil
}

// Logout removes the session; it reports whether the session existed.
func (as *Service) Logout(ctx context.Context, token string) (bool, error) {
	sessionKey := sessionKeyPrefix + token
	cmdDel := as.redisClient.Del(ctx, sessionKey)
	if err := cmdDel.Err(); err != nil {
		return false, err
	}

	// remove token from the list of sessions
	cmdSRem := as.redisClient.SRem(ctx, tokensSetKey, token)
	if err := cmdSRem.Err(); err != nil {
		return false, err
	}

	return cmdDel.Val() > 0, nil
}

// ScanAndClean will run through all sessions, check the TTL, and clean them if old
func (as *Service) ScanAndClean(ctx context.Context) {
	cmd := as.redisClient.SMembers(ctx, tokensSetKey)
	if err := cmd.Err(); err != nil {
		log.Errorf("!!! auth service, scan and clean, get sessions: %s", err)
		return
	}

	sessionTokens := cmd.Val()
	if len(sessionTokens) == 0 {
		log.Debugln("=> auth service, scan and clean abort, no sessions")
		return
	}

	log.Debugf("=> auth service, scan and clean [%d sessions] start ...", len(sessionTokens))
	var toRemove []string
	for _, token := range sessionTokens {
		sessionKey := sessionKeyPrefix + token
		cmd := as.redisClient.HGet(ctx, sessionKey, sessionFieldCreatedAt)
		if err := cmd.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				// dangling token, the session is gone already
				toRemove = append(toRemove, token)
				continue
			}
			log.Errorf("=> auth service, scan and clean token %s: %s", token, err)
			continue
		}

		createdAtUnix, err := strconv.ParseInt(cmd.Val(), 10, 64)
		if err != nil {
			log.Errorf("=> auth service, scan and clean token %s: %s", token, err)
			continue
		}

		if time.Since(time.Unix(createdAtUnix, 0)) > as.ttl {
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		if _, err := as.Logout(ctx, token); err != nil {
			log.Errorf("=> auth service, clean token %s: %s", token, err)
			continue
		}
	}
	log.Debugf("=> auth service, scan and clean done, removed [%d sessions]", len(toRemove))
}
