package idempotency

import (
	"context"
	"sync"
)

// MemoryLedger keeps records in process memory for the lifetime of the server.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[Operation]map[string]Record
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[Operation]map[string]Record)}
}

// Lookup returns the record stored for key under op.
func (m *MemoryLedger) Lookup(_ context.Context, op Operation, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[op][key]
	return rec, ok, nil
}

// Remember stores rec for key unless the key is already taken.
func (m *MemoryLedger) Remember(_ context.Context, op Operation, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.records[op]
	if !ok {
		bucket = make(map[string]Record)
		m.records[op] = bucket
	}
	if _, exists := bucket[key]; exists {
		return ErrKeyExists
	}
	bucket[key] = rec
	return nil
}
