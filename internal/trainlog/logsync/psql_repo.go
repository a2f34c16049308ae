package logsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/2beens/trainlog/internal/telemetry/tracing"
	"github.com/2beens/trainlog/internal/trainlog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const (
	trainingLogChannel   = "training_log_changes"
	notificationLoadWait = 5 * time.Second
	listenRetryDelay     = 2 * time.Second
)

const TrainingLogSchema = `
CREATE TABLE IF NOT EXISTS public.training_log
(
    app_id     VARCHAR     NOT NULL,
    user_id    VARCHAR     NOT NULL,
    data       JSONB       NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (app_id, user_id)
);
`

var _ SnapshotRepo = (*PsqlRepo)(nil)

// PsqlRepo keeps snapshots in the training_log table. Saves send a pg_notify with
// the user id only (notification payloads are size limited); a single LISTEN
// connection per repo reloads and fans out snapshots to subscribers.
type PsqlRepo struct {
	db    *pgxpool.Pool
	appID string

	mu          sync.Mutex
	subscribers map[string]map[uint64]*mailbox
	nextSubID   uint64

	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

func NewPsqlRepo(db *pgxpool.Pool, appID string) *PsqlRepo {
	return &PsqlRepo{
		db:          db,
		appID:       appID,
		subscribers: make(map[string]map[uint64]*mailbox),
	}
}

func (r *PsqlRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, TrainingLogSchema); err != nil {
		return fmt.Errorf("create training_log table: %w", err)
	}
	return nil
}

func (r *PsqlRepo) Load(ctx context.Context, userID string) (_ trainlog.Snapshot, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainlog.psql.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var data []byte
	err = r.db.QueryRow(
		ctx,
		`SELECT data FROM training_log WHERE app_id = $1 AND user_id = $2;`,
		r.appID, userID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	return decodeSnapshot(data)
}

func (r *PsqlRepo) Save(ctx context.Context, userID string, snapshot trainlog.Snapshot) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainlog.psql.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// no-op after commit
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(
		ctx,
		`INSERT INTO training_log (app_id, user_id, data, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (app_id, user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at;`,
		r.appID, userID, string(data),
	); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	// delivered on commit
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2);`, trainingLogChannel, r.notificationPayload(userID)); err != nil {
		return fmt.Errorf("notify snapshot change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	return nil
}

func (r *PsqlRepo) Subscribe(ctx context.Context, userID string, onSnapshot func(trainlog.Snapshot)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listenDone == nil {
		if err := r.startListener(); err != nil {
			return nil, err
		}
	}

	r.nextSubID++
	subID := r.nextSubID
	mb := newMailbox(ctx, onSnapshot)
	if r.subscribers[userID] == nil {
		r.subscribers[userID] = make(map[uint64]*mailbox)
	}
	r.subscribers[userID][subID] = mb

	return func() {
		r.mu.Lock()
		delete(r.subscribers[userID], subID)
		if len(r.subscribers[userID]) == 0 {
			delete(r.subscribers, userID)
		}
		r.mu.Unlock()
		mb.stop()
	}, nil
}

// Close stops the listener. Open subscriptions stop receiving snapshots.
func (r *PsqlRepo) Close() {
	r.mu.Lock()
	cancel, done := r.listenCancel, r.listenDone
	r.listenCancel, r.listenDone = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *PsqlRepo) notificationPayload(userID string) string {
	return r.appID + "||" + userID
}

// startListener must be called with mu held.
func (r *PsqlRepo) startListener() error {
	ctx, cancel := context.WithCancel(context.Background())

	conn, err := r.listen(ctx)
	if err != nil {
		cancel()
		return err
	}

	r.listenCancel = cancel
	r.listenDone = make(chan struct{})
	go r.listenLoop(ctx, conn, r.listenDone)

	return nil
}

func (r *PsqlRepo) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+trainingLogChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	return conn, nil
}

func (r *PsqlRepo) listenLoop(ctx context.Context, conn *pgxpool.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		if conn != nil {
			// the conn still LISTENs, do not hand it back to the pool
			_ = conn.Hijack().Close(context.Background())
		}
	}()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			log.Errorf("psql repo: wait for notification: %s", err)
			_ = conn.Hijack().Close(context.Background())
			conn = nil

			// re-listen until it works or the repo is closed
			for conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(listenRetryDelay):
				}
				if conn, err = r.listen(ctx); err != nil {
					log.Errorf("psql repo: re-listen: %s", err)
				}
			}
			continue
		}

		appID, userID, ok := strings.Cut(notification.Payload, "||")
		if !ok || appID != r.appID {
			continue
		}
		r.dispatch(ctx, userID)
	}
}

func (r *PsqlRepo) dispatch(ctx context.Context, userID string) {
	r.mu.Lock()
	mailboxes := make([]*mailbox, 0, len(r.subscribers[userID]))
	for _, mb := range r.subscribers[userID] {
		mailboxes = append(mailboxes, mb)
	}
	r.mu.Unlock()

	if len(mailboxes) == 0 {
		return
	}

	loadCtx, cancel := context.WithTimeout(ctx, notificationLoadWait)
	defer cancel()
	snapshot, err := r.Load(loadCtx, userID)
	if err != nil {
		log.Errorf("psql repo: load notified snapshot of [%s]: %s", userID, err)
		return
	}

	for _, mb := range mailboxes {
		mb.post(snapshot.Clone())
	}
}
