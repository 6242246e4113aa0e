package returns

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/registry"
)

type memoryRepo struct {
	mu       sync.Mutex
	returns  map[uuid.UUID]CardReturn
	batches  map[int64]ReturnBatch
	cards    map[int64]int
	invoices map[int64]InvoiceStatus
	stale    map[int64]bool
	txCalls  int
	// hold, when set, blocks WithTx until closed; started is signalled first.
	hold    chan struct{}
	started chan struct{}
	// listed and resume pause the next transaction once it has read the rows.
	listed chan struct{}
	resume chan struct{}
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		returns:  make(map[uuid.UUID]CardReturn),
		batches:  make(map[int64]ReturnBatch),
		cards:    make(map[int64]int),
		invoices: make(map[int64]InvoiceStatus),
		stale:    make(map[int64]bool),
	}
}

func (m *memoryRepo) Insert(ctx context.Context, ret CardReturn) (*CardReturn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.returns {
		if existing.CardID == ret.CardID {
			return nil, ErrReturnExists
		}
	}
	m.returns[ret.ID] = ret
	m.stale[ret.InvoiceID] = true
	out := ret
	return &out, nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (*CardReturn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret, ok := m.returns[id]
	if !ok {
		return nil, ErrReturnNotFound
	}
	return &ret, nil
}

func (m *memoryRepo) Advance(ctx context.Context, ret CardReturn, from ReturnStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.returns[ret.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	m.returns[ret.ID] = ret
	m.stale[ret.InvoiceID] = true
	return true, nil
}

func (m *memoryRepo) GetBatch(ctx context.Context, invoiceID int64) (*ReturnBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[invoiceID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return &b, nil
}

func (m *memoryRepo) StaleInvoices(ctx context.Context, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, stale := range m.stale {
		if stale {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	m.txCalls++
	hold, started := m.hold, m.started
	m.mu.Unlock()
	if hold != nil {
		close(started)
		<-hold
	}
	return fn(ctx, memoryTx{m})
}

type memoryTx struct {
	m *memoryRepo
}

func (t memoryTx) CountInvoiceCards(ctx context.Context, invoiceID int64) (int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	n, ok := t.m.cards[invoiceID]
	if !ok {
		return 0, ErrInvoiceNotFound
	}
	return n, nil
}

func (t memoryTx) ListByInvoice(ctx context.Context, invoiceID int64) ([]CardReturn, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	var out []CardReturn
	for _, ret := range t.m.returns {
		if ret.InvoiceID == invoiceID {
			out = append(out, ret)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	listed, resume := t.m.listed, t.m.resume
	t.m.listed, t.m.resume = nil, nil
	t.m.mu.Unlock()
	if listed != nil {
		close(listed)
		<-resume
	}
	t.m.mu.Lock()
	return out, nil
}

func (t memoryTx) UpsertBatch(ctx context.Context, batch ReturnBatch) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.batches[batch.InvoiceID] = batch
	t.m.stale[batch.InvoiceID] = false
	return nil
}

func (t memoryTx) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.invoices[invoiceID] = status
	return nil
}

type fakeInvoices map[int64]registry.InvoiceCard

func (f fakeInvoices) FindInvoiceCard(ctx context.Context, cardID int64) (*registry.InvoiceCard, error) {
	line, ok := f[cardID]
	if !ok {
		return nil, registry.ErrInvoiceCardNotFound
	}
	return &line, nil
}

// threeCardInvoice sells cards 1..3 on invoice 100 at 50 each.
func threeCardInvoice(repo *memoryRepo) fakeInvoices {
	repo.cards[100] = 3
	lines := fakeInvoices{}
	for id := int64(1); id <= 3; id++ {
		lines[id] = registry.InvoiceCard{InvoiceID: 100, CardID: id, Price: decimal.NewFromInt(50)}
	}
	return lines
}
