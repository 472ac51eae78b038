package rank

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"FeedPulse/internal/domain"
)

// Fingerprint summarizes the ordered identities of the first n items.
// Reordering those ids changes it; anything past n does not.
func Fingerprint(items []domain.RankedItem, n int) string {
	if n <= 0 || n > len(items) {
		n = len(items)
	}
	// Length prefixes keep the encoding unambiguous whatever bytes an id holds.
	h := sha256.New()
	for _, it := range items[:n] {
		fmt.Fprintf(h, "%d:%s", len(it.ID), it.ID)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// HasChanged reports whether the visible set differs between two fingerprints.
func HasChanged(previous, current string) bool {
	return previous != current
}
