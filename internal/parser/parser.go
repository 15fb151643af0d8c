// Package parser turns raw localized page text into typed domain values.
// All functions are pure: the same raw text always yields the same result.
package parser

import (
	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// Normalize converts a raw extraction into an immutable snapshot. A price
// that cannot be parsed becomes an absent price, not a wrong number; the
// returned error reports that markup drift for the operator while the
// snapshot stays usable.
func Normalize(raw *models.RawExtraction) (models.Snapshot, error) {
	snap := models.Snapshot{
		ASIN:       raw.ASIN,
		Title:      raw.Title,
		Stock:      ParseStock(raw.RawStock),
		ObservedAt: raw.FetchedAt,
		Backend:    raw.Backend,
	}

	if raw.RawPrice == "" {
		return snap, nil
	}
	price, err := ParsePrice(raw.RawPrice)
	if err != nil {
		return snap, err
	}
	snap.Price = &price
	return snap, nil
}
