package idempotency

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// KeyPrefix is the fixed prefix of every idempotency token.
const KeyPrefix = "resp_"

// volatileFields are dropped from the payload before hashing so that
// per-request noise does not defeat duplicate detection.
var volatileFields = map[string]bool{
	"request_id":    true,
	"trace_context": true,
	"timestamp":     true,
	"received_at":   true,
	"nonce":         true,
}

// BuildKey derives a deterministic retry-safe token from a payload and a
// coarse time bucket. The same payload inside the same bucket always yields
// the same key; a different payload or a different bucket yields a
// different key.
func BuildKey(payload map[string]any, bucketSeconds int, now time.Time) (string, error) {
	if bucketSeconds <= 0 {
		bucketSeconds = 60
	}
	canonical, err := canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	bucket := now.Unix() / int64(bucketSeconds)
	sum := sha256.Sum256(fmt.Appendf(canonical, "|%d", bucket))
	return fmt.Sprintf("%s%x", KeyPrefix, sum[:20]), nil
}

// canonicalize produces a stable byte form of the payload: volatile fields
// removed, keys in deterministic order. encoding/json already emits map
// keys sorted, so a single marshal of the filtered map suffices.
func canonicalize(payload map[string]any) ([]byte, error) {
	filtered := make(map[string]any, len(payload))
	for k, v := range payload {
		if volatileFields[k] {
			continue
		}
		filtered[k] = v
	}
	return json.Marshal(filtered)
}
