// Package buyer places orders through an authenticated browser session.
package buyer

import (
	"context"
	"fmt"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// Buyer attempts to place one order. Implementations report failure
// through the error; the caller owns recording the attempt.
type Buyer interface {
	PlaceOrder(ctx context.Context, asin models.ASIN, quantity int) error
}

// DryRun is the buyer used when live purchasing is off. The monitor
// short-circuits before calling it; this exists so dry-run wiring never
// holds a checkout-capable buyer at all.
type DryRun struct{}

func (DryRun) PlaceOrder(_ context.Context, asin models.ASIN, _ int) error {
	return fmt.Errorf("dry-run buyer cannot place orders (asked for %s)", asin)
}
