package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]models.ConversionStatus{
		{models.ConversionStatusPending, models.ConversionStatusApproved},
		{models.ConversionStatusPending, models.ConversionStatusRejected},
		{models.ConversionStatusApproved, models.ConversionStatusPaid},
		{models.ConversionStatusPaid, models.ConversionStatusApproved},
	}
	for _, e := range legal {
		assert.True(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}

	illegal := [][2]models.ConversionStatus{
		{models.ConversionStatusPending, models.ConversionStatusPaid},
		{models.ConversionStatusApproved, models.ConversionStatusRejected},
		{models.ConversionStatusRejected, models.ConversionStatusApproved},
		{models.ConversionStatusRejected, models.ConversionStatusPending},
		{models.ConversionStatusPaid, models.ConversionStatusRejected},
		{models.ConversionStatusApproved, models.ConversionStatusPending},
	}
	for _, e := range illegal {
		assert.False(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}
}

func TestApproveAndReject(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.Seed(t, db)
	clock := testutil.NewClock()
	svc := NewLedgerService(db, nil)
	svc.SetClock(clock.Now)
	ctx := context.Background()

	link := testutil.CreateLink(t, db, fx.Influencer.ID, fx.Product.ID)
	a := testutil.CreateConversion(t, db, link, fx.Brand.ID, "10", models.ConversionStatusPending, clock.Now())
	b := testutil.CreateConversion(t, db, link, fx.Brand.ID, "20", models.ConversionStatusPending, clock.Now())

	approved, err := svc.Approve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversionStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)

	// repeat is a no-op
	again, err := svc.Approve(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, again.ApprovedAt.Equal(*approved.ApprovedAt))

	rejected, err := svc.Reject(ctx, b.ID, "returned item")
	require.NoError(t, err)
	assert.Equal(t, models.ConversionStatusRejected, rejected.Status)

	rejectedAgain, err := svc.Reject(ctx, b.ID, "other reason")
	require.NoError(t, err)
	assert.Equal(t, "returned item", rejectedAgain.RejectionReason)

	_, err = svc.Reject(ctx, a.ID, "too late")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	_, err = svc.Approve(ctx, b.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	_, err = svc.Approve(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestApprovePaidIsInvalid(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.Seed(t, db)
	svc := NewLedgerService(db, nil)

	link := testutil.CreateLink(t, db, fx.Influencer.ID, fx.Product.ID)
	paid := testutil.CreateConversion(t, db, link, fx.Brand.ID, "10", models.ConversionStatusPaid, time.Now())

	_, err := svc.Approve(context.Background(), paid.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestBalance(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.Seed(t, db)
	svc := NewLedgerService(db, nil)
	ctx := context.Background()
	now := time.Now()

	link := testutil.CreateLink(t, db, fx.Influencer.ID, fx.Product.ID)
	testutil.CreateConversion(t, db, link, fx.Brand.ID, "1.10", models.ConversionStatusPending, now)
	testutil.CreateConversion(t, db, link, fx.Brand.ID, "0.10", models.ConversionStatusApproved, now)
	testutil.CreateConversion(t, db, link, fx.Brand.ID, "0.20", models.ConversionStatusApproved, now)
	testutil.CreateConversion(t, db, link, fx.Brand.ID, "5", models.ConversionStatusPaid, now)
	testutil.CreateConversion(t, db, link, fx.Brand.ID, "99", models.ConversionStatusRejected, now)

	other := testutil.CreateInfluencer(t, db)
	otherLink := testutil.CreateLink(t, db, other.ID, fx.Product.ID)
	testutil.CreateConversion(t, db, otherLink, fx.Brand.ID, "7", models.ConversionStatusApproved, now)

	available, err := svc.AvailableBalance(ctx, fx.Influencer.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.3", available.String())

	b, err := svc.Balance(ctx, fx.Influencer.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.1", b.Pending.String())
	assert.Equal(t, "0.3", b.Available.String())
	assert.Equal(t, "5", b.Paid.String())
}

func TestListForInfluencer(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.Seed(t, db)
	svc := NewLedgerService(db, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	link := testutil.CreateLink(t, db, fx.Influencer.ID, fx.Product.ID)
	for i := 0; i < 5; i++ {
		testutil.CreateConversion(t, db, link, fx.Brand.ID, "1", models.ConversionStatusApproved, start.Add(time.Duration(i)*time.Hour))
	}
	testutil.CreateConversion(t, db, link, fx.Brand.ID, "1", models.ConversionStatusPending, start)

	page, total, err := svc.ListForInfluencer(context.Background(), fx.Influencer.ID, models.ConversionStatusApproved, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.True(t, page[0].ConvertedAt.After(page[1].ConvertedAt))

	all, total, err := svc.ListForInfluencer(context.Background(), fx.Influencer.ID, "", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	assert.Len(t, all, 6)
}

func TestMarkPaidAndReverse(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.Seed(t, db)
	link := testutil.CreateLink(t, db, fx.Influencer.ID, fx.Product.ID)
	now := time.Now()

	a := testutil.CreateConversion(t, db, link, fx.Brand.ID, "10", models.ConversionStatusApproved, now)
	b := testutil.CreateConversion(t, db, link, fx.Brand.ID, "10", models.ConversionStatusPending, now)
	payoutID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return MarkPaid(tx, payoutID, []uuid.UUID{a.ID, b.ID})
	})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientApprovedConversions))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return MarkPaid(tx, payoutID, []uuid.UUID{a.ID})
	}))

	var stored models.Conversion
	require.NoError(t, db.First(&stored, "id = ?", a.ID).Error)
	assert.Equal(t, models.ConversionStatusPaid, stored.Status)
	require.NotNil(t, stored.PayoutID)
	assert.Equal(t, payoutID, *stored.PayoutID)

	// already claimed
	err = MarkPaid(db, uuid.New(), []uuid.UUID{a.ID})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientApprovedConversions))

	n, err := Reverse(db, payoutID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var reversed models.Conversion
	require.NoError(t, db.First(&reversed, "id = ?", a.ID).Error)
	assert.Equal(t, models.ConversionStatusApproved, reversed.Status)
	assert.Nil(t, reversed.PayoutID)

	var unclaimed int64
	require.NoError(t, db.Model(&models.Conversion{}).Where("id = ? AND payout_id IS NULL", a.ID).Count(&unclaimed).Error)
	assert.Equal(t, int64(1), unclaimed)
}
