package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/pricing"
	"github.com/parkwise/parkwise/internal/registry"
	"github.com/parkwise/parkwise/internal/subscriptions"
)

type memoryRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[uuid.UUID]Session)}
}

func (m *memoryRepo) Insert(ctx context.Context, s Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.CardID == s.CardID && existing.Status == StatusInParking {
			return nil, ErrActiveSessionExists
		}
	}
	m.sessions[s.ID] = s
	out := s
	return &out, nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *memoryRepo) FindActiveByCard(ctx context.Context, cardID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.CardID == cardID && s.Status == StatusInParking {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) ListActive(ctx context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.Status == StatusInParking {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

func (m *memoryRepo) Close(ctx context.Context, s Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok || stored.Status != StatusInParking {
		return false, nil
	}
	m.sessions[s.ID] = s
	return true, nil
}

type fakeDirectory struct {
	mu        sync.Mutex
	cards     map[int64]registry.Card
	vehicles  map[int64]registry.Vehicle
	types     map[int64]registry.VehicleType
	employees map[int64]registry.Employee
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		cards: map[int64]registry.Card{
			1: {ID: 1, UID: "04A1", CategoryID: 3, Active: true},
			2: {ID: 2, UID: "04B2", CategoryID: 3, Active: true},
		},
		vehicles: map[int64]registry.Vehicle{
			10: {ID: 10, Plate: "B 1234 XY", VehicleTypeID: 2},
			11: {ID: 11, Plate: "B 9876 ZZ", VehicleTypeID: 2},
		},
		types: map[int64]registry.VehicleType{
			2: {ID: 2, Name: "Car"},
			4: {ID: 4, Name: "Motorbike"},
		},
		employees: map[int64]registry.Employee{
			7: {ID: 7, Name: "Gate A", Active: true},
			8: {ID: 8, Name: "Former", Active: false},
		},
	}
}

func (d *fakeDirectory) FindCard(ctx context.Context, id int64) (*registry.Card, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cards[id]
	if !ok {
		return nil, registry.ErrCardNotFound
	}
	return &c, nil
}

func (d *fakeDirectory) FindCardByUID(ctx context.Context, uid string) (*registry.Card, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.cards {
		if c.UID == uid {
			out := c
			return &out, nil
		}
	}
	return nil, registry.ErrCardNotFound
}

func (d *fakeDirectory) FindVehicle(ctx context.Context, id int64) (*registry.Vehicle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.vehicles[id]
	if !ok {
		return nil, registry.ErrVehicleNotFound
	}
	return &v, nil
}

func (d *fakeDirectory) FindVehicleType(ctx context.Context, id int64) (*registry.VehicleType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vt, ok := d.types[id]
	if !ok {
		return nil, registry.ErrVehicleTypeNotFound
	}
	return &vt, nil
}

func (d *fakeDirectory) FindEmployee(ctx context.Context, id int64) (*registry.Employee, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.employees[id]
	if !ok {
		return nil, registry.ErrEmployeeNotFound
	}
	return &e, nil
}

type fakeSubscriptions struct {
	subs []subscriptions.Subscription
}

func (f *fakeSubscriptions) HasActiveSubscription(ctx context.Context, cardID int64, at time.Time) (*subscriptions.Subscription, error) {
	for _, s := range f.subs {
		if s.CardID == cardID && s.Covers(at) {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

type stubRules map[pricing.DimensionKey][]pricing.Record

func (r stubRules) Resolve(ctx context.Context, key pricing.DimensionKey, at time.Time) (*pricing.Record, error) {
	rec := pricing.Resolve(r[key], at)
	if rec == nil {
		return nil, pricing.ErrRuleNotFound
	}
	return rec, nil
}

// racingRepo closes the row from another "gate" right before our own close.
type racingRepo struct {
	*memoryRepo
}

func (r racingRepo) Close(ctx context.Context, s Session) (bool, error) {
	other := s
	other.Status = StatusCancelled
	if _, err := r.memoryRepo.Close(ctx, other); err != nil {
		return false, err
	}
	return r.memoryRepo.Close(ctx, s)
}

type recordingObserver struct {
	opened int
	closed map[string]int
}

func (o *recordingObserver) SessionOpened() { o.opened++ }

func (o *recordingObserver) SessionClosed(status string, finalFee decimal.Decimal) {
	if o.closed == nil {
		o.closed = make(map[string]int)
	}
	o.closed[status]++
}
