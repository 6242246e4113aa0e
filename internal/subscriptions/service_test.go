package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/parkwise/parkwise/internal/pricing"
	"github.com/parkwise/parkwise/internal/registry"
	"github.com/parkwise/parkwise/internal/shared"
)

func newTestService() (*Service, *fakeDirectory) {
	dir := newFakeDirectory()
	svc := NewService(newMemoryRepo(), dir, fixedPrices{8: decimal.NewFromInt(300)}, nil, nil)
	return svc, dir
}

func TestCoversIsInclusiveAndHonoursSuspension(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := Subscription{StartDate: start, EndDate: start.AddDate(0, 0, 30)}

	require.True(t, sub.Covers(start))
	require.True(t, sub.Covers(sub.EndDate))
	require.False(t, sub.Covers(start.Add(-time.Nanosecond)))
	require.False(t, sub.Covers(sub.EndDate.Add(time.Nanosecond)))

	sub.Suspended = true
	require.False(t, sub.Covers(start.Add(time.Hour)))
}

func TestPurchaseComputesWindowAndPrice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	sub, err := svc.Purchase(ctx, PurchaseInput{CardID: 1, VehicleID: 10, SubscriptionTypeID: 5, StartDate: start, OperatorID: 9})
	require.NoError(t, err)
	require.Equal(t, int64(2), sub.VehicleTypeID)
	require.True(t, sub.EndDate.Equal(start.AddDate(0, 0, 30)))
	require.Equal(t, "300", sub.PricePaid.String())

	found, err := svc.HasActiveSubscription(ctx, 1, start.Add(48*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, sub.ID, found.ID)

	none, err := svc.HasActiveSubscription(ctx, 1, start.AddDate(0, 2, 0))
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestPurchaseFailures(t *testing.T) {
	ctx := context.Background()
	svc, dir := newTestService()

	_, err := svc.Purchase(ctx, PurchaseInput{CardID: 99, VehicleID: 10, SubscriptionTypeID: 5})
	require.ErrorIs(t, err, registry.ErrCardNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Purchase(ctx, PurchaseInput{CardID: 1, VehicleID: 10, SubscriptionTypeID: 77})
	require.ErrorIs(t, err, registry.ErrSubscriptionTypeNotFound)

	dir.types[6] = registry.SubscriptionType{ID: 6, DurationDays: 30, PricingRuleID: 404}
	_, err = svc.Purchase(ctx, PurchaseInput{CardID: 1, VehicleID: 10, SubscriptionTypeID: 6})
	require.ErrorIs(t, err, pricing.ErrRuleNotFound)

	dir.types[7] = registry.SubscriptionType{ID: 7, DurationDays: 0, PricingRuleID: 8}
	_, err = svc.Purchase(ctx, PurchaseInput{CardID: 1, VehicleID: 10, SubscriptionTypeID: 7})
	require.ErrorIs(t, err, ErrInvalidDuration)

	dir.cards[2] = registry.Card{ID: 2, Active: false}
	_, err = svc.Purchase(ctx, PurchaseInput{CardID: 2, VehicleID: 10, SubscriptionTypeID: 5})
	require.ErrorIs(t, err, ErrCardUnusable)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSuspendAndResume(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sub, err := svc.Purchase(ctx, PurchaseInput{CardID: 1, VehicleID: 10, SubscriptionTypeID: 5, StartDate: start})
	require.NoError(t, err)

	suspended, err := svc.Suspend(ctx, sub.ID, 9)
	require.NoError(t, err)
	require.True(t, suspended.Suspended)

	found, err := svc.HasActiveSubscription(ctx, 1, start.Add(time.Hour))
	require.NoError(t, err)
	require.Nil(t, found)

	_, err = svc.Suspend(ctx, sub.ID, 9)
	require.ErrorIs(t, err, ErrAlreadySuspended)

	resumed, err := svc.Resume(ctx, sub.ID, 9)
	require.NoError(t, err)
	require.False(t, resumed.Suspended)
	_, err = svc.Resume(ctx, sub.ID, 9)
	require.ErrorIs(t, err, ErrNotSuspended)

	_, err = svc.Suspend(ctx, uuid.New(), 9)
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestListByCardNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := svc.Purchase(ctx, PurchaseInput{CardID: 1, VehicleID: 10, SubscriptionTypeID: 5, StartDate: start.AddDate(0, i, 0)})
		require.NoError(t, err)
	}
	subs, err := svc.ListByCard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	require.True(t, subs[0].StartDate.Equal(start.AddDate(0, 2, 0)))
}
