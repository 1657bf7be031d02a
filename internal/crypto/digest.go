package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/iudanet/sessionstore/internal/dbvalue"
)

// Digest возвращает hex-encoded SHA256 от данных
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestValueSet hashes the persisted form of a value-set. Encoders write
// records sorted by id, so two replicas holding the same values produce the
// same digest.
func DigestValueSet(dbv dbvalue.ValueSet) (string, error) {
	data, err := json.Marshal(dbv)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value-set: %w", err)
	}
	return Digest(data), nil
}
