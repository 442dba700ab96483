package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"profilehub/internal/types"
)

// MembershipRepository reads organization and team membership rows. It
// implements access.MembershipStore and returns raw rows; role and
// permission validation happens in the resolver.
type MembershipRepository struct {
	db DBTX
}

// NewMembershipRepository creates a MembershipRepository backed by the given
// connection (pool or transaction).
func NewMembershipRepository(db DBTX) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// GetMembership returns the user's organization membership and team rows, or
// nil when the user belongs to no organization.
func (r *MembershipRepository) GetMembership(ctx context.Context, userID string) (*types.MembershipRecord, error) {
	var (
		rec  types.MembershipRecord
		role *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT organization_id, role
		 FROM organization_members
		 WHERE user_id = $1`,
		userID,
	).Scan(&rec.OrganizationID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError("failed to get organization membership", err)
	}
	if role != nil {
		rec.OrganizationRole = *role
	}

	rows, err := r.db.Query(ctx,
		`SELECT tm.team_id, t.organization_id, tm.role, tm.permissions
		 FROM team_members tm
		 JOIN teams t ON t.id = tm.team_id
		 WHERE tm.user_id = $1
		 ORDER BY tm.created_at ASC, tm.team_id ASC`,
		userID,
	)
	if err != nil {
		return nil, dbError("failed to query team memberships", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tm       types.TeamMembershipRecord
			teamOrg  *string
			teamRole *string
			perms    []byte
		)
		if err := rows.Scan(&tm.TeamID, &teamOrg, &teamRole, &perms); err != nil {
			return nil, dbError("failed to scan team membership", err)
		}
		if teamOrg != nil {
			tm.OrganizationID = *teamOrg
		}
		if teamRole != nil {
			tm.Role = *teamRole
		}
		tm.Permissions = decodePermissions(perms)
		rec.Teams = append(rec.Teams, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating team memberships", err)
	}

	return &rec, nil
}

// decodePermissions keeps only boolean entries of the permissions JSONB
// object. Malformed documents decode to an empty set.
func decodePermissions(raw []byte) map[string]bool {
	if len(raw) == 0 {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	out := make(map[string]bool, len(doc))
	for k, v := range doc {
		if b, ok := v.(bool); ok {
			out[k] = b
		}
	}
	return out
}
