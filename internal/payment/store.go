package payment

import "sync"

// Store owns every intent, payment and refund of one mock instance. All reads
// and writes go through mu, including the scheduler's delayed callbacks, so
// each operation observes and leaves a consistent state.
type Store struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	payments map[string]*Payment
	refunds  map[string][]*Refund
	pending  map[string]Timer
	closed   bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		intents:  make(map[string]*Intent),
		payments: make(map[string]*Payment),
		refunds:  make(map[string][]*Refund),
		pending:  make(map[string]Timer),
	}
}

// Close stops every in-flight pipeline. Stages that have not completed stay queued.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}

// Stats summarises the store contents.
type Stats struct {
	Intents  int
	Payments int
	Refunds  int
	InFlight int
}

// Stats returns current counts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	refunds := 0
	for _, list := range s.refunds {
		refunds += len(list)
	}
	return Stats{
		Intents:  len(s.intents),
		Payments: len(s.payments),
		Refunds:  refunds,
		InFlight: len(s.pending),
	}
}
