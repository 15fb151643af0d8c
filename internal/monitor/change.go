// Package monitor runs the poll cycle: fetch, normalize, persist,
// classify, decide, act, notify.
package monitor

import (
	"fmt"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// DetectChange classifies the delta between the previous and current
// snapshot. Stock transitions outrank simultaneous price movement.
// A cross-currency price pair is a data error and fails loudly.
func DetectChange(previous *models.Snapshot, current models.Snapshot) (models.ChangeEvent, error) {
	event := models.ChangeEvent{
		ASIN:     current.ASIN,
		Previous: previous,
		Current:  current,
	}

	if previous == nil {
		event.Kind = models.ChangeFirstObservation
		return event, nil
	}

	wasPurchasable := previous.Stock.Purchasable()
	isPurchasable := current.Stock.Purchasable()

	switch {
	case !wasPurchasable && isPurchasable:
		event.Kind = models.ChangeBackInStock
		return event, nil
	case wasPurchasable && current.Stock == models.StockOutOfStock:
		event.Kind = models.ChangeWentOutOfStock
		return event, nil
	}

	if previous.Price != nil && current.Price != nil {
		c, err := current.Price.Cmp(*previous.Price)
		if err != nil {
			return models.ChangeEvent{}, fmt.Errorf("detect change for %s: %w", current.ASIN, err)
		}
		switch {
		case c < 0:
			event.Kind = models.ChangePriceDrop
			return event, nil
		case c > 0:
			event.Kind = models.ChangePriceRise
			return event, nil
		}
	}

	event.Kind = models.ChangeNoChange
	return event, nil
}
