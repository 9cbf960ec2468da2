package service

import (
	"sync"
)

// workPhase names the manager workflow currently holding an order.
type workPhase string

const (
	phaseLocked          workPhase = "locked"
	phaseApplyingRule    workPhase = "applying_rule"
	phaseRetryingPayment workPhase = "retrying_payment"
)

// orderLocks serializes retry work per renewal order and tracks which
// workflow is mid-flight. The phase registry is the explicit replacement for
// inferring "rule application in progress" from event ordering: an external
// status change consults it before cancelling a retry. Every locked section
// registers as in-flight, since event listeners run synchronously inside it
// and may call back into the manager; without the registration such a
// callback would deadlock on the non-reentrant per-order mutex.
type orderLocks struct {
	mu       sync.Mutex
	locks    map[int64]*sync.Mutex
	inFlight map[int64]workPhase
}

func newOrderLocks() *orderLocks {
	return &orderLocks{
		locks:    make(map[int64]*sync.Mutex),
		inFlight: make(map[int64]workPhase),
	}
}

// lock acquires the per-order mutex, creating it on first use, and marks the
// order in-flight for the duration of the hold.
func (o *orderLocks) lock(orderID int64) {
	o.mu.Lock()
	m, ok := o.locks[orderID]
	if !ok {
		m = &sync.Mutex{}
		o.locks[orderID] = m
	}
	o.mu.Unlock()
	m.Lock()
	o.mu.Lock()
	o.inFlight[orderID] = phaseLocked
	o.mu.Unlock()
}

func (o *orderLocks) unlock(orderID int64) {
	o.mu.Lock()
	delete(o.inFlight, orderID)
	m := o.locks[orderID]
	o.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}

// enterPhase narrows the in-flight marker to a named workflow.
func (o *orderLocks) enterPhase(orderID int64, phase workPhase) {
	o.mu.Lock()
	o.inFlight[orderID] = phase
	o.mu.Unlock()
}

// leavePhase reverts to the plain lock-held marker; the mutex is still held.
func (o *orderLocks) leavePhase(orderID int64) {
	o.mu.Lock()
	o.inFlight[orderID] = phaseLocked
	o.mu.Unlock()
}

// busy reports whether any workflow is mid-flight for the order.
func (o *orderLocks) busy(orderID int64) bool {
	o.mu.Lock()
	_, ok := o.inFlight[orderID]
	o.mu.Unlock()
	return ok
}
