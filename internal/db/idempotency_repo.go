package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"profilehub/internal/core"
	"profilehub/internal/types"
)

// IdempotencyRepository stores idempotency keys in idempotency_keys. Rows
// older than ttl are ignored and may be reclaimed.
type IdempotencyRepository struct {
	db  DBTX
	ttl time.Duration
}

// NewIdempotencyRepository creates a repository whose keys live for ttl.
func NewIdempotencyRepository(db DBTX, ttl time.Duration) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, ttl: ttl}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key, actorID string) (*core.IdempotencyRecord, error) {
	var (
		rec    core.IdempotencyRecord
		status string
		code   *int32
	)
	err := r.db.QueryRow(ctx,
		`SELECT status, path, response_code, response_body
		 FROM idempotency_keys
		 WHERE actor_id = $1 AND key = $2
		   AND created_at > NOW() - make_interval(secs => $3)`,
		actorID, key, r.ttl.Seconds(),
	).Scan(&status, &rec.Path, &code, &rec.ResponseBody)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError("failed to get idempotency key", err)
	}
	rec.Status = core.IdempotencyStatus(status)
	if code != nil {
		rec.ResponseCode = int(*code)
	}
	return &rec, nil
}

// Create claims the key. An existing row is only taken over when its first
// attempt failed or it has expired; otherwise ErrCodeConflictIdempotency is
// returned.
func (r *IdempotencyRepository) Create(ctx context.Context, key, actorID, path string) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO idempotency_keys (actor_id, key, path, status, created_at)
		 VALUES ($1, $2, $3, 'processing', NOW())
		 ON CONFLICT (actor_id, key) DO UPDATE
		 SET path = EXCLUDED.path,
		     status = 'processing',
		     response_code = NULL,
		     response_body = NULL,
		     created_at = NOW()
		 WHERE idempotency_keys.status = 'failed'
		    OR idempotency_keys.created_at <= NOW() - make_interval(secs => $4)`,
		actorID, key, path, r.ttl.Seconds(),
	)
	if err != nil {
		return dbError("failed to create idempotency key", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictIdempotency, "idempotency key already in use", nil)
	}
	return nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key, actorID string, status int, body []byte) error {
	_, err := r.db.Exec(ctx,
		`UPDATE idempotency_keys
		 SET status = 'completed', response_code = $3, response_body = $4
		 WHERE actor_id = $1 AND key = $2`,
		actorID, key, int32(status), body,
	)
	if err != nil {
		return dbError("failed to complete idempotency key", err)
	}
	return nil
}

func (r *IdempotencyRepository) Fail(ctx context.Context, key, actorID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE idempotency_keys SET status = 'failed' WHERE actor_id = $1 AND key = $2`,
		actorID, key,
	)
	if err != nil {
		return dbError("failed to mark idempotency key failed", err)
	}
	return nil
}

// DeleteExpired removes keys older than ttl and returns how many were removed.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE created_at <= NOW() - make_interval(secs => $1)`,
		r.ttl.Seconds(),
	)
	if err != nil {
		return 0, dbError("failed to delete expired idempotency keys", err)
	}
	return tag.RowsAffected(), nil
}
