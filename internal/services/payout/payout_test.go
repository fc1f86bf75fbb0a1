package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/ledger"
	"github.com/promoledger/backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type payoutEnv struct {
	db     *gorm.DB
	fx     testutil.Fixture
	link   models.TrackingLink
	svc    *PayoutService
	ledger *ledger.LedgerService
	clock  *testutil.Clock
}

func newPayoutEnv(t *testing.T) *payoutEnv {
	db := testutil.NewDB(t)
	fx := testutil.Seed(t, db)
	clock := testutil.NewClock()
	svc := NewPayoutService(db)
	svc.SetClock(clock.Now)
	return &payoutEnv{
		db:     db,
		fx:     fx,
		link:   testutil.CreateLink(t, db, fx.Influencer.ID, fx.Product.ID),
		svc:    svc,
		ledger: ledger.NewLedgerService(db, nil),
		clock:  clock,
	}
}

func (e *payoutEnv) approved(t *testing.T, commission string, age time.Duration) models.Conversion {
	return testutil.CreateConversion(t, e.db, e.link, e.fx.Brand.ID, commission, models.ConversionStatusApproved, e.clock.Now().Add(-age))
}

func (e *payoutEnv) request(amount string, ids ...uuid.UUID) PayoutRequest {
	return PayoutRequest{
		InfluencerID:  e.fx.Influencer.ID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "usd",
		Method:        models.PayoutMethodPayPal,
		Details:       models.JSON{"email": "creator@example.com"},
		ConversionIDs: ids,
	}
}

func (e *payoutEnv) status(t *testing.T, id uuid.UUID) models.Conversion {
	var c models.Conversion
	require.NoError(t, e.db.First(&c, "id = ?", id).Error)
	return c
}

func (e *payoutEnv) available(t *testing.T) decimal.Decimal {
	b, err := e.ledger.AvailableBalance(context.Background(), e.fx.Influencer.ID)
	require.NoError(t, err)
	return b
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.PayoutStatusPending, models.PayoutStatusProcessing))
	assert.True(t, CanTransition(models.PayoutStatusPending, models.PayoutStatusCancelled))
	assert.True(t, CanTransition(models.PayoutStatusPending, models.PayoutStatusFailed))
	assert.True(t, CanTransition(models.PayoutStatusProcessing, models.PayoutStatusCompleted))
	assert.True(t, CanTransition(models.PayoutStatusProcessing, models.PayoutStatusFailed))
	assert.True(t, CanTransition(models.PayoutStatusFailed, models.PayoutStatusPending))

	assert.False(t, CanTransition(models.PayoutStatusProcessing, models.PayoutStatusCancelled))
	assert.False(t, CanTransition(models.PayoutStatusPending, models.PayoutStatusCompleted))
	assert.False(t, CanTransition(models.PayoutStatusCompleted, models.PayoutStatusFailed))
	assert.False(t, CanTransition(models.PayoutStatusCancelled, models.PayoutStatusPending))

	assert.True(t, IsTerminal(models.PayoutStatusCompleted))
	assert.True(t, IsTerminal(models.PayoutStatusCancelled))
	assert.False(t, IsTerminal(models.PayoutStatusFailed))
}

func TestRequestPayoutOldestFirst(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		want    int
		wantErr error
	}{
		{name: "partial conversion impossible", amount: "50", wantErr: apperrors.ErrInsufficientApprovedConversions},
		{name: "both conversions", amount: "60", want: 2},
		{name: "oldest only", amount: "30", want: 1},
		{name: "within a cent", amount: "30.01", want: 1},
		{name: "more than balance", amount: "60.50", wantErr: apperrors.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newPayoutEnv(t)
			older := env.approved(t, "30", 48*time.Hour)
			env.approved(t, "30", 24*time.Hour)

			p, err := env.svc.RequestPayout(context.Background(), env.request(tt.amount))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, "60", env.available(t).String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.PayoutStatusPending, p.Status)
			assert.Equal(t, "USD", p.Currency)
			require.Len(t, p.ConversionIDs, tt.want)
			assert.Equal(t, older.ID, p.ConversionIDs[0])
			assert.Contains(t, p.Reference, "PAY_20240301_")

			for _, id := range p.ConversionIDs {
				c := env.status(t, id)
				assert.Equal(t, models.ConversionStatusPaid, c.Status)
				require.NotNil(t, c.PayoutID)
				assert.Equal(t, p.ID, *c.PayoutID)
			}
		})
	}
}

func TestRequestPayoutAmountMatchesConversions(t *testing.T) {
	env := newPayoutEnv(t)
	for i := 0; i < 3; i++ {
		env.approved(t, "0.33333333", time.Duration(3-i)*time.Hour)
	}

	// 0.99999999 available: a request above it fails even within a cent
	_, err := env.svc.RequestPayout(context.Background(), env.request("1.00"))
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientBalance))

	p, err := env.svc.RequestPayout(context.Background(), env.request("0.99"))
	require.NoError(t, err)

	var conversions []models.Conversion
	require.NoError(t, env.db.Where("payout_id = ?", p.ID).Find(&conversions).Error)
	sum := decimal.Zero
	for _, c := range conversions {
		sum = sum.Add(c.CommissionAmount)
	}
	assert.Len(t, conversions, 3)
	assert.True(t, sum.Sub(p.Amount).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")))
}

func TestRequestPayoutExplicit(t *testing.T) {
	env := newPayoutEnv(t)
	a := env.approved(t, "10", 3*time.Hour)
	b := env.approved(t, "15", 2*time.Hour)
	pending := testutil.CreateConversion(t, env.db, env.link, env.fx.Brand.ID, "5", models.ConversionStatusPending, env.clock.Now())

	_, err := env.svc.RequestPayout(context.Background(), env.request("20", a.ID, b.ID))
	assert.True(t, errors.Is(err, apperrors.ErrAmountMismatch))

	_, err = env.svc.RequestPayout(context.Background(), env.request("15", a.ID, pending.ID))
	assert.True(t, errors.Is(err, apperrors.ErrAmountMismatch))

	other := testutil.CreateInfluencer(t, env.db)
	otherLink := testutil.CreateLink(t, env.db, other.ID, env.fx.Product.ID)
	foreign := testutil.CreateConversion(t, env.db, otherLink, env.fx.Brand.ID, "15", models.ConversionStatusApproved, env.clock.Now())
	_, err = env.svc.RequestPayout(context.Background(), env.request("25", a.ID, foreign.ID))
	assert.True(t, errors.Is(err, apperrors.ErrAmountMismatch))

	p, err := env.svc.RequestPayout(context.Background(), env.request("15", b.ID))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID}, []uuid.UUID(p.ConversionIDs))
	assert.Equal(t, models.ConversionStatusApproved, env.status(t, a.ID).Status)
	assert.Equal(t, "10", env.available(t).String())
}

func TestRequestPayoutValidation(t *testing.T) {
	env := newPayoutEnv(t)
	env.approved(t, "10", time.Hour)

	zero := env.request("0")
	_, err := env.svc.RequestPayout(context.Background(), zero)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	badMethod := env.request("10")
	badMethod.Method = "cheque"
	_, err = env.svc.RequestPayout(context.Background(), badMethod)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	var count int64
	require.NoError(t, env.db.Model(&models.Payout{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCancelAndFailRestoreBalance(t *testing.T) {
	for _, action := range []string{"cancel", "fail"} {
		t.Run(action, func(t *testing.T) {
			env := newPayoutEnv(t)
			env.approved(t, "12.34567891", 2*time.Hour)
			env.approved(t, "7.65432109", time.Hour)
			before := env.available(t)

			p, err := env.svc.RequestPayout(context.Background(), env.request("20"))
			require.NoError(t, err)
			assert.True(t, env.available(t).IsZero())

			var out *models.Payout
			if action == "cancel" {
				out, err = env.svc.Cancel(context.Background(), p.ID, nil)
				require.NoError(t, err)
				assert.Equal(t, models.PayoutStatusCancelled, out.Status)
			} else {
				out, err = env.svc.Fail(context.Background(), p.ID, "bank rejected", nil)
				require.NoError(t, err)
				assert.Equal(t, models.PayoutStatusFailed, out.Status)
				assert.Equal(t, "bank rejected", out.FailureReason)
			}

			assert.True(t, before.Equal(env.available(t)))
			for _, id := range p.ConversionIDs {
				c := env.status(t, id)
				assert.Equal(t, models.ConversionStatusApproved, c.Status)
				assert.Nil(t, c.PayoutID)
			}
		})
	}
}

func TestPayoutLifecycle(t *testing.T) {
	env := newPayoutEnv(t)
	env.approved(t, "25", time.Hour)
	admin := uuid.New()
	ctx := context.Background()

	p, err := env.svc.RequestPayout(ctx, env.request("25"))
	require.NoError(t, err)

	p, err = env.svc.Process(ctx, p.ID, &admin)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusProcessing, p.Status)

	_, err = env.svc.Cancel(ctx, p.ID, &admin)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	env.clock.Advance(time.Hour)
	p, err = env.svc.Complete(ctx, p.ID, &admin)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCompleted, p.Status)

	c := env.status(t, p.ConversionIDs[0])
	assert.Equal(t, models.ConversionStatusPaid, c.Status)
	require.NotNil(t, c.PaidAt)
	assert.True(t, c.PaidAt.Equal(env.clock.Now()))

	_, err = env.svc.Fail(ctx, p.ID, "late", &admin)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	history, err := env.svc.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.PayoutStatusPending, history[0].ToStatus)
	assert.Equal(t, models.PayoutStatusCompleted, history[2].ToStatus)
	require.NotNil(t, history[2].ChangedBy)
	assert.Equal(t, admin, *history[2].ChangedBy)
}

func TestRetry(t *testing.T) {
	env := newPayoutEnv(t)
	env.approved(t, "10", time.Hour)
	ctx := context.Background()

	p, err := env.svc.RequestPayout(ctx, env.request("10"))
	require.NoError(t, err)
	_, err = env.svc.Fail(ctx, p.ID, "timeout", nil)
	require.NoError(t, err)

	p, err = env.svc.Retry(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusPending, p.Status)
	assert.Empty(t, p.FailureReason)
	assert.Equal(t, models.ConversionStatusPaid, env.status(t, p.ConversionIDs[0]).Status)
	assert.True(t, env.available(t).IsZero())
}

func TestRetryFailsWhenConversionsClaimed(t *testing.T) {
	env := newPayoutEnv(t)
	env.approved(t, "10", time.Hour)
	ctx := context.Background()

	first, err := env.svc.RequestPayout(ctx, env.request("10"))
	require.NoError(t, err)
	_, err = env.svc.Fail(ctx, first.ID, "timeout", nil)
	require.NoError(t, err)

	second, err := env.svc.RequestPayout(ctx, env.request("10"))
	require.NoError(t, err)

	_, err = env.svc.Retry(ctx, first.ID, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientApprovedConversions))

	stored, err := env.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailed, stored.Status)

	c := env.status(t, first.ConversionIDs[0])
	require.NotNil(t, c.PayoutID)
	assert.Equal(t, second.ID, *c.PayoutID)
}

func TestCancelForInfluencer(t *testing.T) {
	env := newPayoutEnv(t)
	env.approved(t, "10", time.Hour)
	ctx := context.Background()

	p, err := env.svc.RequestPayout(ctx, env.request("10"))
	require.NoError(t, err)

	_, err = env.svc.CancelForInfluencer(ctx, p.ID, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	out, err := env.svc.CancelForInfluencer(ctx, p.ID, env.fx.Influencer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCancelled, out.Status)

	_, err = env.svc.CancelForInfluencer(ctx, p.ID, env.fx.Influencer.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestListForInfluencer(t *testing.T) {
	env := newPayoutEnv(t)
	env.approved(t, "10", 2*time.Hour)
	env.approved(t, "10", time.Hour)
	ctx := context.Background()

	_, err := env.svc.RequestPayout(ctx, env.request("10"))
	require.NoError(t, err)
	_, err = env.svc.RequestPayout(ctx, env.request("10"))
	require.NoError(t, err)

	payouts, total, err := env.svc.ListForInfluencer(ctx, env.fx.Influencer.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, payouts, 1)

	_, err = env.svc.Get(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
