package logsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2beens/trainlog/internal/telemetry/tracing"
	"github.com/2beens/trainlog/internal/trainlog"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	snapshotKeyPrefix     = "trainlog"
	snapshotChannelPrefix = "trainlog-changes"
)

var _ SnapshotRepo = (*RedisRepo)(nil)

// RedisRepo keeps each snapshot as a JSON string and publishes it on a per-user
// channel after every save.
type RedisRepo struct {
	redisClient *redis.Client
	appID       string
}

func NewRedisRepo(redisClient *redis.Client, appID string) *RedisRepo {
	return &RedisRepo{
		redisClient: redisClient,
		appID:       appID,
	}
}

func (r *RedisRepo) snapshotKey(userID string) string {
	return fmt.Sprintf("%s||%s||%s", snapshotKeyPrefix, r.appID, userID)
}

func (r *RedisRepo) snapshotChannel(userID string) string {
	return fmt.Sprintf("%s||%s||%s", snapshotChannelPrefix, r.appID, userID)
}

func (r *RedisRepo) Load(ctx context.Context, userID string) (_ trainlog.Snapshot, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainlog.redis.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	raw, err := r.redisClient.Get(ctx, r.snapshotKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	return decodeSnapshot([]byte(raw))
}

func (r *RedisRepo) Save(ctx context.Context, userID string, snapshot trainlog.Snapshot) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainlog.redis.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	b, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	payload := string(b)

	if err := r.redisClient.Set(ctx, r.snapshotKey(userID), payload, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}

	// the snapshot is stored; a lost notification only delays other subscribers
	if err := r.redisClient.Publish(ctx, r.snapshotChannel(userID), payload).Err(); err != nil {
		log.Errorf("redis repo: publish snapshot of [%s]: %s", userID, err)
	}

	return nil
}

func (r *RedisRepo) Subscribe(ctx context.Context, userID string, onSnapshot func(trainlog.Snapshot)) (func(), error) {
	pubsub := r.redisClient.Subscribe(ctx, r.snapshotChannel(userID))
	// wait for the subscription confirmation, messages published before it are not delivered
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to snapshots: %w", err)
	}

	mb := newMailbox(ctx, onSnapshot)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range pubsub.Channel() {
			snapshot, err := decodeSnapshot([]byte(msg.Payload))
			if err != nil {
				log.Errorf("redis repo: snapshot message of [%s]: %s", userID, err)
				continue
			}
			mb.post(snapshot)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				log.Errorf("redis repo: close subscription of [%s]: %s", userID, err)
			}
			wg.Wait()
			mb.stop()
		})
	}, nil
}
