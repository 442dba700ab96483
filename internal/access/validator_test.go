package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"profilehub/internal/billing"
	"profilehub/internal/resilience"
	"profilehub/internal/types"
)

// --- Mocks ---

type mockUsageStore struct {
	mock.Mock
}

func (m *mockUsageStore) GetUsage(ctx context.Context, userID, month string) (*types.UsageRecord, error) {
	args := m.Called(ctx, userID, month)
	if r := args.Get(0); r != nil {
		return r.(*types.UsageRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsageStore) IncrementUsage(ctx context.Context, userID, month string, delta types.UsageDelta) (*types.UsageRecord, error) {
	args := m.Called(ctx, userID, month, delta)
	if r := args.Get(0); r != nil {
		return r.(*types.UsageRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []types.UsageEvent
	err    error
}

func (o *recordingObserver) UsageRecorded(_ context.Context, e types.UsageEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
	return o.err
}

type recordingRecorder struct {
	mu       sync.Mutex
	verdicts []types.Verdict
}

func (r *recordingRecorder) RecordVerdict(_ context.Context, v types.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, v)
}

// --- Fixture ---

type fixture struct {
	memberships *MemoryMembershipStore
	guard       *billing.BudgetGuard
	validator   *OperationValidator
	recorder    *recordingRecorder
	observer    *recordingObserver
}

func clock() time.Time {
	return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, usage billing.UsageStore, members MembershipStore) *fixture {
	t.Helper()
	f := &fixture{
		recorder: &recordingRecorder{},
		observer: &recordingObserver{},
	}
	if usage == nil {
		usage = billing.NewMemoryUsageStore()
	}
	if members == nil {
		f.memberships = NewMemoryMembershipStore()
		members = f.memberships
	}

	ledger := billing.NewUsageLedger(usage, resilience.DefaultSettings())
	f.guard = billing.NewBudgetGuard(testCatalog, ledger, billing.WithClock(clock))
	f.validator = NewOperationValidator(
		testRegistry,
		testCatalog,
		NewRoleResolver(members, resilience.DefaultSettings(), discardLogger()),
		f.guard,
		WithVerdictRecorder(f.recorder),
		WithUsageObserver(f.observer),
		WithValidatorLogger(discardLogger()),
	)
	f.validator.now = clock
	return f
}

func TestValidate_UnknownOperation(t *testing.T) {
	store := new(mockMembershipStore)
	f := newFixture(t, nil, store)

	levels := []types.SubscriptionLevel{types.LevelFree, types.LevelBusiness, types.LevelEnterprise, "garbage"}
	for _, level := range levels {
		v, err := f.validator.Validate(context.Background(), subject(level), "LAUNCH_ROCKET", types.OperationContext{TeamID: "t_1"})
		require.NoError(t, err)
		assert.False(t, v.Allowed)
		assert.Equal(t, types.ReasonUnknownOperation, v.ReasonCode)
		assert.Nil(t, v.UpgradeHint)
	}
	store.AssertNotCalled(t, "GetMembership", mock.Anything, mock.Anything)
}

func TestValidate_NoFeatureCarriesUpgradeHint(t *testing.T) {
	f := newFixture(t, nil, nil)

	v, err := f.validator.Validate(context.Background(), subject(types.LevelPro), OpRunAIGrouping, types.OperationContext{})
	require.NoError(t, err)
	assert.Equal(t, types.ReasonNoFeature, v.ReasonCode)
	require.NotNil(t, v.UpgradeHint)
	assert.Equal(t, types.LevelPremium, *v.UpgradeHint)

	require.Len(t, f.recorder.verdicts, 1)
	assert.Equal(t, types.ReasonNoFeature, f.recorder.verdicts[0].ReasonCode)
}

func TestValidate_OtherDenialsHaveNoUpgradeHint(t *testing.T) {
	f := newFixture(t, nil, nil)

	v, err := f.validator.Validate(context.Background(), subject(types.LevelBusiness), OpViewTeamContacts, types.OperationContext{TeamID: "t_1"})
	require.NoError(t, err)
	assert.Equal(t, types.ReasonNotInTeam, v.ReasonCode)
	assert.Nil(t, v.UpgradeHint)
}

func TestValidate_TeamOperationAllowed(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.memberships.Put("user_1", types.MembershipRecord{
		OrganizationID:   "org_1",
		OrganizationRole: "member",
		Teams:            []types.TeamMembershipRecord{{TeamID: "t_1", OrganizationID: "org_1", Role: "team_lead"}},
	})

	v, err := f.validator.Validate(context.Background(), subject(types.LevelBusiness), OpInviteTeamMember, types.OperationContext{TeamID: "t_1"})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, types.ReasonOK, v.ReasonCode)
	assert.Nil(t, v.Budget)
}

func TestValidate_MembershipUnavailableIsError(t *testing.T) {
	store := new(mockMembershipStore)
	store.On("GetMembership", mock.Anything, "user_1").Return(nil, errors.New("connection refused"))
	f := newFixture(t, nil, store)

	v, err := f.validator.Validate(context.Background(), subject(types.LevelEnterprise), OpViewOrganization, types.OperationContext{})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeMembershipUnavailable))
	assert.False(t, v.Allowed)
	assert.Empty(t, f.recorder.verdicts)
}

func TestValidate_PersonalOperationSkipsMembership(t *testing.T) {
	store := new(mockMembershipStore)
	f := newFixture(t, nil, store)

	v, err := f.validator.Validate(context.Background(), subject(types.LevelFree), OpCreateGroup, types.OperationContext{})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	store.AssertNotCalled(t, "GetMembership", mock.Anything, mock.Anything)
}

func TestValidate_LedgerUnavailableIsError(t *testing.T) {
	usage := new(mockUsageStore)
	usage.On("GetUsage", mock.Anything, "user_1", "2026-03").Return(nil, errors.New("timeout"))
	f := newFixture(t, usage, nil)

	v, err := f.validator.Validate(context.Background(), subject(types.LevelPremium), OpRunAIGrouping, types.OperationContext{})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeLedgerUnavailable))
	assert.False(t, v.Allowed)
}

func TestValidate_BudgetExceeded(t *testing.T) {
	usage := new(mockUsageStore)
	usage.On("GetUsage", mock.Anything, "user_1", "2026-03").
		Return(&types.UsageRecord{UserID: "user_1", Month: "2026-03", TotalCost: decimal.RequireFromString("19.99"), TotalRunsAI: 5}, nil)
	f := newFixture(t, usage, nil)

	v, err := f.validator.Validate(context.Background(), subject(types.LevelPremium), OpRunAIGrouping, types.OperationContext{})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, types.ReasonBudgetExceeded, v.ReasonCode)
	assert.Contains(t, v.Message, "cost")
	require.NotNil(t, v.UpgradeHint)
	assert.Equal(t, types.LevelBusiness, *v.UpgradeHint)
	require.NotNil(t, v.Budget)
	assert.False(t, v.Budget.Allowed)
}

func TestValidate_DoesNotMutateUsage(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		v, err := f.validator.Validate(ctx, subject(types.LevelPremium), OpRunAIGrouping, types.OperationContext{})
		require.NoError(t, err)
		require.True(t, v.Allowed)
	}

	usage, _, err := f.guard.Status(ctx, "user_1", types.LevelPremium)
	require.NoError(t, err)
	assert.True(t, usage.TotalCost.IsZero())
	assert.Zero(t, usage.TotalRunsAI)
}

// Validate then Charge: the next Validate sees the updated totals.
func TestValidateChargeRoundTrip(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	v, err := f.validator.Validate(ctx, subject(types.LevelFree), OpScanBusinessCard, types.OperationContext{})
	require.NoError(t, err)
	require.Equal(t, types.ReasonNoFeature, v.ReasonCode)

	sub := subject(types.LevelPro)
	for i := 0; i < 3; i++ {
		v, err := f.validator.Validate(ctx, sub, OpScanBusinessCard, types.OperationContext{})
		require.NoError(t, err)
		require.True(t, v.Allowed, "iteration %d: %s", i, v.Message)
		require.NotNil(t, v.Budget)
		assert.Equal(t, int64(50-i), v.Budget.RemainingRunsAI.Max)

		rec, err := f.validator.Charge(ctx, sub, OpScanBusinessCard, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), rec.TotalRunsAI)
	}

	require.Len(t, f.observer.events, 3)
	last := f.observer.events[2]
	assert.Equal(t, OpScanBusinessCard, last.Operation)
	assert.Equal(t, types.RunAI, last.RunKind)
	assert.Equal(t, "2026-03", last.Month)
	assert.Equal(t, "0.15", last.Totals.TotalCost.StringFixed(2))
}

func TestCharge_ActualCostOverridesEstimate(t *testing.T) {
	f := newFixture(t, nil, nil)
	actual := decimal.RequireFromString("0.07")

	rec, err := f.validator.Charge(context.Background(), subject(types.LevelPremium), OpEnrichContact, &actual)
	require.NoError(t, err)
	assert.Equal(t, "0.07", rec.TotalCost.StringFixed(2))
	assert.Equal(t, int64(1), rec.TotalRunsAPI)
	assert.Zero(t, rec.TotalRunsAI)
}

func TestCharge_Errors(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.validator.Charge(ctx, subject(types.LevelPro), "NOPE", nil)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundOperation))

	_, err = f.validator.Charge(ctx, subject(types.LevelPro), OpCreateGroup, nil)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationFailed))

	negative := decimal.NewFromInt(-3)
	_, err = f.validator.Charge(ctx, subject(types.LevelPro), OpScanBusinessCard, &negative)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidCost))
	assert.Empty(t, f.observer.events)
}

func TestCharge_ObserverFailureDoesNotFailCharge(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.observer.err = errors.New("queue unavailable")

	rec, err := f.validator.Charge(context.Background(), subject(types.LevelPro), OpScanBusinessCard, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.TotalRunsAI)
	assert.Len(t, f.observer.events, 1)
}

func TestCharge_LedgerUnavailable(t *testing.T) {
	usage := new(mockUsageStore)
	usage.On("IncrementUsage", mock.Anything, "user_1", "2026-03", mock.Anything).Return(nil, errors.New("deadlock"))
	f := newFixture(t, usage, nil)

	_, err := f.validator.Charge(context.Background(), subject(types.LevelPro), OpScanBusinessCard, nil)
	require.Error(t, err)
	assert.True(t, types.IsUnavailable(err))
	assert.Empty(t, f.observer.events)
}
