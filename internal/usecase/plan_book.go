package usecase

import (
	"sync"

	"BlockTrader/internal/domain/models"
)

// PlanBook remembers dispatched plans by broker order id so execution
// feedback can be matched to the risk it was sized with. It also tracks
// which execution events were already applied, so redelivered feedback
// changes state once.
type PlanBook struct {
	mu    sync.Mutex
	cap   int
	order []string
	plans map[string]models.OrderPlan

	seenOrder []string
	seen      map[string]struct{}
}

func NewPlanBook(capacity int) *PlanBook {
	if capacity <= 0 {
		capacity = 256
	}
	return &PlanBook{
		cap:   capacity,
		plans: make(map[string]models.OrderPlan, capacity),
		seen:  make(map[string]struct{}, capacity),
	}
}

// Put stores plan under orderID, evicting the oldest entry when full.
func (b *PlanBook) Put(orderID string, plan models.OrderPlan) {
	if orderID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.plans[orderID]; !ok {
		b.order = append(b.order, orderID)
	}
	b.plans[orderID] = plan
	for len(b.order) > b.cap {
		delete(b.plans, b.order[0])
		b.order = b.order[1:]
	}
}

func (b *PlanBook) Get(orderID string) (models.OrderPlan, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.plans[orderID]
	return p, ok
}

func (b *PlanBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.plans)
}

// MarkApplied records (orderID, typ) and reports whether it is new. Events
// without an order id are always new.
func (b *PlanBook) MarkApplied(orderID string, typ models.ExecutionEventType) bool {
	if orderID == "" {
		return true
	}
	key := string(typ) + "|" + orderID
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[key]; ok {
		return false
	}
	b.seen[key] = struct{}{}
	b.seenOrder = append(b.seenOrder, key)
	// four event types per order
	for len(b.seenOrder) > 4*b.cap {
		delete(b.seen, b.seenOrder[0])
		b.seenOrder = b.seenOrder[1:]
	}
	return true
}
