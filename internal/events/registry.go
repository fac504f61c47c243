// Package events implements the in-process publish/subscribe registry of the
// ledger. External consumers register through the same interface; there is no
// side-channel broadcast.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Event names emitted by the ledger manager.
const (
	BalanceLoading       = "balance:loading"
	BalanceUpdated       = "balance:updated"
	BalanceError         = "balance:error"
	TransactionAdded     = "transaction:added"
	TransactionUpdated   = "transaction:updated"
	TransactionsUpdated  = "transactions:updated"
	TransactionCompleted = "transaction:completed"
	TransactionFailed    = "transaction:failed"
	StrategyUpdated      = "strategy:updated"
	StrategyStopped      = "strategy:stopped"
)

// Callback receives the payload of an emitted event.
type Callback func(payload any)

type subscriber struct {
	id int
	cb Callback
}

// Registry maps event types to ordered subscriber sets. Delivery is
// synchronous and best-effort: a panicking callback is logged and removed so
// one bad listener cannot block the rest or leak.
type Registry struct {
	mu     sync.Mutex
	subs   map[string][]*subscriber
	lastID int
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		subs:   make(map[string][]*subscriber),
		logger: logger,
	}
}

// Subscribe registers cb for eventType and returns its unsubscribe function.
// Unsubscribing the last callback of an event type removes the entry entirely.
func (r *Registry) Subscribe(eventType string, cb Callback) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	sub := &subscriber{id: r.lastID, cb: cb}
	r.subs[eventType] = append(r.subs[eventType], sub)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.removeLocked(eventType, sub.id)
	}
}

// Emit delivers payload to every subscriber of eventType in subscription
// order.
func (r *Registry) Emit(eventType string, payload any) {
	r.mu.Lock()
	snapshot := make([]*subscriber, len(r.subs[eventType]))
	copy(snapshot, r.subs[eventType])
	r.mu.Unlock()

	for _, sub := range snapshot {
		r.deliver(eventType, sub, payload)
	}
}

func (r *Registry) deliver(eventType string, sub *subscriber, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event subscriber panicked, removing it",
				zap.String("event", eventType),
				zap.Any("panic", rec))
			r.mu.Lock()
			r.removeLocked(eventType, sub.id)
			r.mu.Unlock()
		}
	}()
	sub.cb(payload)
}

// removeLocked drops the subscriber and deletes the event-type entry once its
// set is empty. Caller holds r.mu.
func (r *Registry) removeLocked(eventType string, id int) {
	subs := r.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(r.subs, eventType)
		return
	}
	r.subs[eventType] = subs
}

// SubscriberCount returns the number of callbacks registered for eventType.
func (r *Registry) SubscriberCount(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[eventType])
}

// Reset drops every subscriber. Used by Dispose.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]*subscriber)
}
