// Package driver contains the browser-automation backends. Every backend
// exposes the same Fetch contract; callers never see which technology ran
// except through RawExtraction.Backend.
package driver

import (
	"context"
	"errors"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

var (
	// ErrNotFound means the ASIN does not resolve to a product page.
	ErrNotFound = errors.New("product not found")
	// ErrTimeout means the fetch exceeded its deadline.
	ErrTimeout = errors.New("fetch timed out")
	// ErrBlocked means the retailer served an anti-automation challenge.
	// It is kept distinct from ErrTimeout because the two get different
	// backoff treatment.
	ErrBlocked = errors.New("blocked by anti-automation defense")
	// ErrUnsupported means the backend cannot serve this request at all.
	ErrUnsupported = errors.New("unsupported by this backend")
)

// Driver fetches raw product fields for one ASIN. Implementations must not
// retry internally; retry and fallback policy live in the engine selector.
type Driver interface {
	Name() models.Backend
	Fetch(ctx context.Context, asin models.ASIN) (*models.RawExtraction, error)
}

// Classify names the taxonomy class of a fetch error, for logs.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	default:
		return "other"
	}
}

// Price and availability selector lists shared by the browser-backed
// drivers, tried in order.
var (
	priceSelectors = []string{
		"#corePrice_feature_div span.a-offscreen",
		"#corePriceDisplay_desktop_feature_div span.a-offscreen",
		"#price_inside_buybox",
		"span.a-price span.a-offscreen",
	}

	availabilitySelectors = []string{
		"#availability span",
		"#buybox-availability-message",
		"#merchant-info",
	}
)

// notFoundMarkers appear on Amazon's "dog" page for dead ASINs.
var notFoundMarkers = []string{
	"ご指定されたページが見つかりません",
	"ページが見つかりません",
	"we couldn't find that page",
}
