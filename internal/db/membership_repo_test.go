package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"profilehub/internal/types"
)

func orgRow(orgID string, role *string) *mockRow {
	return &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = orgID
			*dest[1].(**string) = role
			return nil
		},
	}
}

func strPtr(s string) *string { return &s }

func TestMembershipRepository_NoOrganization(t *testing.T) {
	db := new(mockDBTX)
	repo := NewMembershipRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"user_1"}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	rec, err := repo.GetMembership(ctx, "user_1")
	require.NoError(t, err)
	assert.Nil(t, rec)
	db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestMembershipRepository_WithTeams(t *testing.T) {
	db := new(mockDBTX)
	repo := NewMembershipRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"user_1"}).
		Return(orgRow("org_1", strPtr("admin")))
	rows := newMockRows([][]any{
		{"t_1", "org_1", "manager", []byte(`{"canShareContacts": true, "canRemoveMembers": false}`)},
		{"t_2", nil, nil, nil},
		{"t_3", "org_1", "employee", []byte(`{"canInviteMembers": "yes", "canViewTeamContacts": true}`)},
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{"user_1"}).Return(rows, nil)

	rec, err := repo.GetMembership(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "org_1", rec.OrganizationID)
	assert.Equal(t, "admin", rec.OrganizationRole)
	require.Len(t, rec.Teams, 3)

	assert.Equal(t, types.TeamMembershipRecord{
		TeamID:         "t_1",
		OrganizationID: "org_1",
		Role:           "manager",
		Permissions:    map[string]bool{"canShareContacts": true, "canRemoveMembers": false},
	}, rec.Teams[0])
	assert.Equal(t, types.TeamMembershipRecord{TeamID: "t_2"}, rec.Teams[1])
	assert.Equal(t, map[string]bool{"canViewTeamContacts": true}, rec.Teams[2].Permissions)
	assert.True(t, rows.closed)
}

func TestMembershipRepository_NullOrgRole(t *testing.T) {
	db := new(mockDBTX)
	repo := NewMembershipRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(orgRow("org_1", nil))
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newMockRows(nil), nil)

	rec, err := repo.GetMembership(ctx, "user_1")
	require.NoError(t, err)
	assert.Empty(t, rec.OrganizationRole)
	assert.Empty(t, rec.Teams)
}

func TestMembershipRepository_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("org query", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: errors.New("connection refused")})

		_, err := NewMembershipRepository(db).GetMembership(ctx, "user_1")
		assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
	})

	t.Run("team query", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(orgRow("org_1", strPtr("member")))
		db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil, errors.New("timeout"))

		_, err := NewMembershipRepository(db).GetMembership(ctx, "user_1")
		assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
	})

	t.Run("team scan", func(t *testing.T) {
		db := new(mockDBTX)
		rows := newMockRows([][]any{{"t_1", "org_1", "manager", nil}})
		rows.scanErr = errors.New("bad column")
		db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(orgRow("org_1", strPtr("member")))
		db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

		_, err := NewMembershipRepository(db).GetMembership(ctx, "user_1")
		assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
	})
}

func TestDecodePermissions(t *testing.T) {
	assert.Nil(t, decodePermissions(nil))
	assert.Nil(t, decodePermissions([]byte(`not json`)))
	assert.Nil(t, decodePermissions([]byte(`["canShareContacts"]`)))
	assert.Equal(t, map[string]bool{"a": true}, decodePermissions([]byte(`{"a": true, "b": 1}`)))
}

func TestIdentityRepository_GetTokenByHash(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdentityRepository(db)
	ctx := context.Background()
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"hash_1"}).Return(&mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_1"
			*dest[1].(*string) = "premium"
			*dest[2].(**time.Time) = &exp
			*dest[3].(**time.Time) = nil
			return nil
		},
	})

	tok, err := repo.GetTokenByHash(ctx, "hash_1")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "user_1", tok.UserID)
	assert.Equal(t, types.LevelPremium, tok.SubscriptionLevel)
	assert.Equal(t, &exp, tok.ExpiresAt)
	assert.Nil(t, tok.RevokedAt)
}

func TestIdentityRepository_GetTokenByHash_Missing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdentityRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	tok, err := repo.GetTokenByHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestIdentityRepository_SetSubscriptionLevel(t *testing.T) {
	ctx := context.Background()

	t.Run("updated", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.AnythingOfType("string"), []any{"user_1", "business", "cus_1"}).
			Return(pgconnTag("UPDATE 1"), nil)

		err := NewIdentityRepository(db).SetSubscriptionLevel(ctx, "user_1", "cus_1", types.LevelBusiness)
		require.NoError(t, err)
		db.AssertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconnTag("UPDATE 0"), nil)

		err := NewIdentityRepository(db).SetSubscriptionLevel(ctx, "ghost", "", types.LevelPro)
		assert.True(t, types.HasCode(err, types.ErrCodeNotFoundUser))
	})

	t.Run("db error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconnTag(""), errors.New("connection refused"))

		err := NewIdentityRepository(db).SetSubscriptionLevel(ctx, "user_1", "", types.LevelPro)
		assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
	})
}

func TestIdentityRepository_SetSubscriptionLevelByCustomer(t *testing.T) {
	ctx := context.Background()

	db := new(mockDBTX)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"cus_1", "pro"}).Return(&mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_9"
			return nil
		},
	})
	userID, err := NewIdentityRepository(db).SetSubscriptionLevelByCustomer(ctx, "cus_1", types.LevelPro)
	require.NoError(t, err)
	assert.Equal(t, "user_9", userID)

	missing := new(mockDBTX)
	missing.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})
	_, err = NewIdentityRepository(missing).SetSubscriptionLevelByCustomer(ctx, "cus_x", types.LevelPro)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundUser))
}

func TestIdentityRepository_Ping(t *testing.T) {
	ctx := context.Background()

	db := new(mockDBTX)
	db.On("QueryRow", ctx, "SELECT 1", mock.Anything).Return(&mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int) = 1
		return nil
	}})
	require.NoError(t, NewIdentityRepository(db).Ping(ctx))

	down := new(mockDBTX)
	down.On("QueryRow", ctx, "SELECT 1", mock.Anything).Return(&mockRow{scanErr: errors.New("dial tcp: refused")})
	assert.Error(t, NewIdentityRepository(down).Ping(ctx))
}
