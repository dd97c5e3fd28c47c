package procedure

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// ComputeHash computes the content fingerprint of a definition.
//
// The definition is serialized to canonical JSON (encoding/json emits map
// keys in sorted order) so the same structure always yields the same hash,
// independent of how it was authored or loaded.
func ComputeHash(def *Definition) (string, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("failed to serialize definition for hashing: %w", err)
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%x", h), nil
}
