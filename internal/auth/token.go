// Package auth resolves bearer tokens into actors for the HTTP layer.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"profilehub/internal/types"
)

// TokenStore looks up stored tokens by hash. A nil token means no match.
type TokenStore interface {
	GetTokenByHash(ctx context.Context, hash string) (*types.APIToken, error)
}

// HashToken produces the hex-encoded SHA-256 hash under which a raw token is
// stored. Tokens are high-entropy random strings, so an unsalted digest keeps
// them searchable.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenAuthenticator implements core.Authenticator against a TokenStore.
type TokenAuthenticator struct {
	store  TokenStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenAuthenticator creates a TokenAuthenticator.
func NewTokenAuthenticator(store TokenStore, logger *slog.Logger) *TokenAuthenticator {
	return &TokenAuthenticator{store: store, logger: logger, now: time.Now}
}

// ResolveToken maps a raw bearer token to its actor. Unknown and revoked
// tokens are auth_token_invalid; expired tokens are auth_token_expired.
func (a *TokenAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	tok, err := a.store.GetTokenByHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.RevokedAt != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil)
	}
	if tok.ExpiresAt != nil && !a.now().Before(*tok.ExpiresAt) {
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token expired", nil)
	}

	level := tok.SubscriptionLevel
	if !level.IsValid() {
		a.logger.WarnContext(ctx, "unknown subscription level, treating as free",
			"user_id", tok.UserID,
			"level", string(level),
		)
		level = types.LevelFree
	}

	return &types.Actor{
		ID:                tok.UserID,
		Type:              types.ActorTypeUser,
		SubscriptionLevel: level,
	}, nil
}
