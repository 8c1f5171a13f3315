// Package idempotency records the outcome of requests that carried an
// Idempotency-Key so retries can be recognised and replayed.
//
// A ledger entry maps (operation, key) to the id of the entity the first
// request produced plus the canonical signature of that request's body.
// Entries are write-once.
package idempotency

import (
	"context"
	"errors"
)

// Operation namespaces keys so the same key can be used for create and confirm independently.
type Operation string

const (
	OpCreateIntent  Operation = "create"
	OpConfirmIntent Operation = "confirm"
)

// ErrKeyExists is returned by Remember when the key was already recorded for the operation.
var ErrKeyExists = errors.New("idempotency: key already recorded")

// Record is the stored outcome of the first request bearing a key.
type Record struct {
	TargetID  string `json:"target_id"`
	Signature string `json:"signature"`
}

// Matches reports whether a replay against targetID with the given signature
// is the same request as the recorded one.
func (r Record) Matches(targetID, signature string) bool {
	return r.TargetID == targetID && r.Signature == signature
}

// Ledger stores idempotency records.
type Ledger interface {
	Lookup(ctx context.Context, op Operation, key string) (Record, bool, error)
	Remember(ctx context.Context, op Operation, key string, rec Record) error
}
