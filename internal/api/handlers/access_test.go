package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"profilehub/internal/access"
	"profilehub/internal/billing"
	"profilehub/internal/core"
	"profilehub/internal/resilience"
	"profilehub/internal/types"
)

type mockAccessChecker struct {
	mock.Mock
}

func (m *mockAccessChecker) Validate(ctx context.Context, subject types.Subject, name types.OperationName, opCtx types.OperationContext) (types.Verdict, error) {
	args := m.Called(ctx, subject, name, opCtx)
	return args.Get(0).(types.Verdict), args.Error(1)
}

func newAccessRouter(checker AccessChecker) http.Handler {
	ops := access.NewOperationRegistry(access.DefaultPricing())
	return newRouter(NewAccessHandler(checker, ops, core.NewValidator(discardLogger()), discardLogger()))
}

// newEntitlements wires a real validator over in-memory stores.
func newEntitlements(t *testing.T) (*access.OperationValidator, *access.MemoryMembershipStore) {
	t.Helper()
	catalog := billing.NewStaticTierCatalog()
	members := access.NewMemoryMembershipStore()
	resolver := access.NewRoleResolver(members, resilience.DefaultSettings(), discardLogger())
	ledger := billing.NewUsageLedger(billing.NewMemoryUsageStore(), resilience.DefaultSettings())
	validator := access.NewOperationValidator(
		access.NewOperationRegistry(access.DefaultPricing()),
		catalog,
		resolver,
		billing.NewBudgetGuard(catalog, ledger),
		access.WithValidatorLogger(discardLogger()),
	)
	return validator, members
}

func TestAccessCheck_Verdicts(t *testing.T) {
	validator, members := newEntitlements(t)
	members.Put("user_1", types.MembershipRecord{
		OrganizationID:   "org_1",
		OrganizationRole: "member",
		Teams: []types.TeamMembershipRecord{
			{TeamID: "team_1", OrganizationID: "org_1", Role: "employee"},
		},
	})
	r := newAccessRouter(validator)

	t.Run("allowed", func(t *testing.T) {
		rec := serve(t, r, http.MethodPost, "/v1/access/check", map[string]string{"operation": "CREATE_GROUP"}, types.LevelFree)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		v := decodeData[types.Verdict](t, rec)
		assert.True(t, v.Allowed)
		assert.Equal(t, types.ReasonOK, v.ReasonCode)
	})

	t.Run("missing feature suggests the next tier", func(t *testing.T) {
		rec := serve(t, r, http.MethodPost, "/v1/access/check", map[string]string{"operation": "EXPORT_CONTACTS"}, types.LevelFree)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		v := decodeData[types.Verdict](t, rec)
		assert.False(t, v.Allowed)
		assert.Equal(t, types.ReasonNoFeature, v.ReasonCode)
		require.NotNil(t, v.UpgradeHint)
		assert.Equal(t, types.LevelPro, *v.UpgradeHint)
	})

	t.Run("unknown operation", func(t *testing.T) {
		rec := serve(t, r, http.MethodPost, "/v1/access/check", map[string]string{"operation": "TELEPORT"}, types.LevelEnterprise)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, types.ReasonUnknownOperation, decodeData[types.Verdict](t, rec).ReasonCode)
	})

	t.Run("team operation outside the team", func(t *testing.T) {
		rec := serve(t, r, http.MethodPost, "/v1/access/check", map[string]string{
			"operation": "VIEW_TEAM_CONTACTS",
			"team_id":   "team_9",
		}, types.LevelEnterprise)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, types.ReasonNotInTeam, decodeData[types.Verdict](t, rec).ReasonCode)
	})
}

func TestAccessCheck_RequestValidation(t *testing.T) {
	checker := new(mockAccessChecker)
	r := newAccessRouter(checker)

	tests := []struct {
		name string
		body any
		code types.ErrorCode
	}{
		{"missing operation", map[string]string{}, types.ErrCodeValidationFailed},
		{"operation too long", map[string]string{"operation": strings.Repeat("X", 65)}, types.ErrCodeValidationFailed},
		{"bad role", map[string]string{"operation": "UPDATE_MEMBER_ROLE", "new_role": "owner"}, types.ErrCodeValidationFailed},
		{"unknown field", `{"operation":"CREATE_GROUP","extra":1}`, types.ErrCodeValidationInvalidJSON},
		{"malformed", `{"operation":`, types.ErrCodeValidationInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, r, http.MethodPost, "/v1/access/check", tt.body, types.LevelPro)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.code), decodeError(t, rec).Code)
		})
	}
	checker.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAccessCheck_PassesContext(t *testing.T) {
	checker := new(mockAccessChecker)
	checker.On("Validate", mock.Anything,
		types.Subject{UserID: "user_1", SubscriptionLevel: types.LevelBusiness},
		types.OperationName("UPDATE_MEMBER_ROLE"),
		types.OperationContext{TeamID: "team_1", TargetUserID: "user_2", NewRole: types.TeamRoleLead},
	).Return(types.Allow("UPDATE_MEMBER_ROLE"), nil)

	rec := serve(t, newAccessRouter(checker), http.MethodPost, "/v1/access/check", map[string]string{
		"operation":      "UPDATE_MEMBER_ROLE",
		"team_id":        "team_1",
		"target_user_id": "user_2",
		"new_role":       "team_lead",
	}, types.LevelBusiness)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	checker.AssertExpectations(t)
}

func TestAccessCheck_Unavailable(t *testing.T) {
	checker := new(mockAccessChecker)
	checker.On("Validate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(types.Verdict{}, types.NewAppError(types.ErrCodeMembershipUnavailable, "membership store unavailable", nil))

	rec := serve(t, newAccessRouter(checker), http.MethodPost, "/v1/access/check", map[string]string{"operation": "VIEW_TEAM_CONTACTS"}, types.LevelPro)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(types.ErrCodeMembershipUnavailable), decodeError(t, rec).Code)
}

func TestAccessCheck_Unauthenticated(t *testing.T) {
	rec := serve(t, newAccessRouter(new(mockAccessChecker)), http.MethodPost, "/v1/access/check", map[string]string{"operation": "CREATE_GROUP"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOperations(t *testing.T) {
	rec := serve(t, newAccessRouter(new(mockAccessChecker)), http.MethodGet, "/v1/operations", nil, types.LevelFree)
	require.Equal(t, http.StatusOK, rec.Code)

	ops := decodeData[[]types.OperationDescriptor](t, rec)
	names := make([]types.OperationName, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	assert.Contains(t, names, access.OpRunAIGrouping)
	assert.Contains(t, names, access.OpUpdateMemberRole)
}
