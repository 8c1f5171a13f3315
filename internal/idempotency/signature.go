package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Canonical serialises body with object keys sorted at every depth; arrays keep
// their order. encoding/json already emits map keys in sorted order, so a body
// decoded into map[string]any canonicalises by re-encoding it.
func Canonical(body map[string]any) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	return json.Marshal(body)
}

// Signature is the SHA-256 hex digest of the canonical body. Empty bodies have
// an empty signature.
func Signature(body map[string]any) string {
	raw, err := Canonical(body)
	if err != nil || len(raw) == 0 {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
