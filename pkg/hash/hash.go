// Package hash computes canonical content digests of json values. The digest
// is stable under mapping-key reordering and excludes the reserved hash field,
// so a value can carry its own hash and be re-hashed to the same result.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Field is the reserved field name excluded from hash computation and later
// filled in with the computed digest.
const Field = "hash"

// Sum returns the hex-encoded sha256 digest of the canonical json form of v.
// The value is normalized through a json round trip, which sorts mapping keys
// and collapses numeric types, and the top-level hash field is dropped before
// hashing. Values that can't be serialized to json are rejected.
func Sum(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("can't serialize value: %w", err)
	}

	var norm any
	if err := json.Unmarshal(b, &norm); err != nil {
		return "", fmt.Errorf("can't normalize value: %w", err)
	}
	if m, ok := norm.(map[string]any); ok {
		delete(m, Field)
	}

	canon, err := json.Marshal(norm) // map keys marshal in sorted order
	if err != nil {
		return "", fmt.Errorf("can't serialize canonical form: %w", err)
	}

	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
