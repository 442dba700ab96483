package core

import (
	"context"

	"profilehub/internal/types"
)

// Authenticator resolves a bearer token to the calling Actor.
//
// Implementations return ErrCodeAuthTokenInvalid for unknown or revoked
// tokens and ErrCodeAuthTokenExpired for tokens past their expiry. Any other
// error is treated as an internal failure.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// IdempotencyStatus is the lifecycle state of an idempotency key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusCompleted  IdempotencyStatus = "completed"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord is the stored outcome of a keyed POST request.
type IdempotencyRecord struct {
	Status       IdempotencyStatus
	Path         string
	ResponseCode int
	ResponseBody []byte
}

// IdempotencyStore persists idempotency keys per actor.
type IdempotencyStore interface {
	Get(ctx context.Context, key, actorID string) (*IdempotencyRecord, error)
	// Create claims the key. It fails if another request holds it.
	Create(ctx context.Context, key, actorID, path string) error
	Complete(ctx context.Context, key, actorID string, status int, body []byte) error
	Fail(ctx context.Context, key, actorID string) error
}
