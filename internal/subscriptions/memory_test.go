package subscriptions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/pricing"
	"github.com/parkwise/parkwise/internal/registry"
)

type memoryRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]Subscription
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{subs: make(map[uuid.UUID]Subscription)}
}

func (m *memoryRepo) Insert(ctx context.Context, sub Subscription) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	out := sub
	return &out, nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (m *memoryRepo) FindCovering(ctx context.Context, cardID int64, at time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		if sub.CardID == cardID && sub.Covers(at) {
			out := sub
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) ListByCard(ctx context.Context, cardID int64) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Subscription
	for _, sub := range m.subs {
		if sub.CardID == cardID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (m *memoryRepo) SetSuspended(ctx context.Context, id uuid.UUID, suspended bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok || sub.Suspended == suspended {
		return false, nil
	}
	sub.Suspended = suspended
	m.subs[id] = sub
	return true, nil
}

type fakeDirectory struct {
	cards    map[int64]registry.Card
	vehicles map[int64]registry.Vehicle
	types    map[int64]registry.SubscriptionType
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		cards:    map[int64]registry.Card{1: {ID: 1, UID: "04A1", CategoryID: 3, Active: true}},
		vehicles: map[int64]registry.Vehicle{10: {ID: 10, Plate: "B 1234 XY", VehicleTypeID: 2}},
		types:    map[int64]registry.SubscriptionType{5: {ID: 5, Name: "Monthly", DurationDays: 30, PricingRuleID: 8}},
	}
}

func (d *fakeDirectory) FindCard(ctx context.Context, id int64) (*registry.Card, error) {
	c, ok := d.cards[id]
	if !ok {
		return nil, registry.ErrCardNotFound
	}
	return &c, nil
}

func (d *fakeDirectory) FindVehicle(ctx context.Context, id int64) (*registry.Vehicle, error) {
	v, ok := d.vehicles[id]
	if !ok {
		return nil, registry.ErrVehicleNotFound
	}
	return &v, nil
}

func (d *fakeDirectory) FindSubscriptionType(ctx context.Context, id int64) (*registry.SubscriptionType, error) {
	st, ok := d.types[id]
	if !ok {
		return nil, registry.ErrSubscriptionTypeNotFound
	}
	return &st, nil
}

type fixedPrices map[int64]decimal.Decimal

func (p fixedPrices) QuoteSubscriptionPrice(ctx context.Context, ruleID int64, at time.Time) (decimal.Decimal, error) {
	price, ok := p[ruleID]
	if !ok {
		return decimal.Zero, pricing.ErrRuleNotFound
	}
	return price, nil
}
