package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"profilehub/internal/types"
)

// IdentityRepository resolves API tokens to users and keeps each user's
// subscription level in sync with the payment provider.
type IdentityRepository struct {
	db DBTX
}

// NewIdentityRepository creates an IdentityRepository backed by the given
// connection (pool or transaction).
func NewIdentityRepository(db DBTX) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// GetTokenByHash returns the token row for hash joined with its owner's
// subscription level, or nil when no such token exists.
func (r *IdentityRepository) GetTokenByHash(ctx context.Context, hash string) (*types.APIToken, error) {
	var (
		tok   types.APIToken
		level string
	)
	err := r.db.QueryRow(ctx,
		`SELECT u.id, u.subscription_level, t.expires_at, t.revoked_at
		 FROM api_tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.token_hash = $1`,
		hash,
	).Scan(&tok.UserID, &level, &tok.ExpiresAt, &tok.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError("failed to get api token", err)
	}
	tok.SubscriptionLevel = types.SubscriptionLevel(level)
	return &tok, nil
}

// SetSubscriptionLevel updates the level for userID and links the payment
// provider customer when customerID is non-empty.
func (r *IdentityRepository) SetSubscriptionLevel(ctx context.Context, userID, customerID string, level types.SubscriptionLevel) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET subscription_level = $2,
		     stripe_customer_id = COALESCE(NULLIF($3, ''), stripe_customer_id),
		     updated_at = NOW()
		 WHERE id = $1`,
		userID, string(level), customerID,
	)
	if err != nil {
		return dbError("failed to update subscription level", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, fmt.Sprintf("user %s not found", userID), nil)
	}
	return nil
}

// SetSubscriptionLevelByCustomer updates the level of the user linked to the
// payment provider customer and returns that user's id.
func (r *IdentityRepository) SetSubscriptionLevelByCustomer(ctx context.Context, customerID string, level types.SubscriptionLevel) (string, error) {
	var userID string
	err := r.db.QueryRow(ctx,
		`UPDATE users
		 SET subscription_level = $2, updated_at = NOW()
		 WHERE stripe_customer_id = $1
		 RETURNING id`,
		customerID, string(level),
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "no user linked to customer", nil)
		}
		return "", dbError("failed to update subscription level", err)
	}
	return userID, nil
}

// Ping verifies the connection for health checks.
func (r *IdentityRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "database ping failed", err)
	}
	return nil
}
