// Package orderstest provides an in-memory orders.Store for tests.
package orderstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
)

type MemStore struct {
	mu     sync.Mutex
	seq    int
	orders map[string]*orders.Order

	// Optional failure hooks; returning a non-nil error aborts the call
	// before any state change.
	CreateFunc func(o *orders.Order) error
	PatchFunc  func(id string, p orders.OrderPatch) error

	Creates int
	Patches []orders.OrderPatch
}

var _ orders.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{orders: map[string]*orders.Order{}}
}

func (m *MemStore) Create(ctx context.Context, o *orders.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateFunc != nil {
		if err := m.CreateFunc(o); err != nil {
			return "", err
		}
	}
	m.seq++
	o.ID = fmt.Sprintf("order-%d", m.seq)
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	m.orders[o.ID] = clone(o)
	m.Creates++
	return o.ID, nil
}

func (m *MemStore) Get(ctx context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	return clone(o), nil
}

func (m *MemStore) FindByCorrelationID(ctx context.Context, requestID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*orders.Order
	for _, o := range m.orders {
		if o.RequestID != "" && o.RequestID == requestID {
			found = append(found, o)
		}
	}
	switch len(found) {
	case 0:
		return nil, apperr.NotFound("no order for correlation id")
	case 1:
		return clone(found[0]), nil
	default:
		return nil, orders.ErrDuplicateCorrelation
	}
}

func (m *MemStore) Patch(ctx context.Context, id string, p orders.OrderPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PatchFunc != nil {
		if err := m.PatchFunc(id, p); err != nil {
			return err
		}
	}
	o, ok := m.orders[id]
	if !ok {
		return apperr.NotFound("order not found")
	}
	if p.RequestID != nil {
		o.RequestID = *p.RequestID
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Payment != nil {
		o.Payment = *p.Payment
	}
	if p.Anomaly != nil {
		o.Anomaly = *p.Anomaly
	}
	o.UpdatedAt = time.Now().UTC()
	m.Patches = append(m.Patches, p)
	return nil
}

// Put stores o as-is, bypassing Create. Handy for seeding fixtures.
func (m *MemStore) Put(o *orders.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = clone(o)
}

func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Mutations counts creates plus patches.
func (m *MemStore) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Creates + len(m.Patches)
}

func clone(o *orders.Order) *orders.Order {
	c := *o
	c.Items = append([]orders.LineItem(nil), o.Items...)
	if o.Payment.TransactionTime != nil {
		t := *o.Payment.TransactionTime
		c.Payment.TransactionTime = &t
	}
	return &c
}
