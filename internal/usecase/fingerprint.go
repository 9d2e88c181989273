package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/feedsync/backend/internal/domain"
)

// Fingerprint hashes the normalized logical product. Any change to a title, tag,
// price, quantity, barcode or image changes the fingerprint.
func Fingerprint(p *domain.LogicalProduct) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode product %q: %w", p.FamilyKey, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// fingerprintKey returns the cache key of a family fingerprint.
// Format: "fingerprint:{family_key}"
func fingerprintKey(familyKey string) string {
	return "fingerprint:" + familyKey
}
