package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// CollyDriver fetches over plain HTTP without a browser. It is the
// cheapest backend and the first to get blocked, which is why it normally
// sits last in the priority list.
type CollyDriver struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	domains   []string
	logger    *slog.Logger
}

func NewCollyDriver(baseURL string, userAgent string, timeout time.Duration, allowedDomains ...string) *CollyDriver {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return &CollyDriver{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		timeout:   timeout,
		domains:   allowedDomains,
		logger:    slog.Default().With("component", "driver", "backend", models.BackendColly),
	}
}

func (d *CollyDriver) Name() models.Backend {
	return models.BackendColly
}

func (d *CollyDriver) Fetch(ctx context.Context, asin models.ASIN) (*models.RawExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	// A fresh collector per fetch keeps visits and callbacks isolated.
	opts := []colly.CollectorOption{colly.UserAgent(d.userAgent), colly.AllowURLRevisit()}
	if len(d.domains) > 0 {
		opts = append(opts, colly.AllowedDomains(d.domains...))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(d.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "ja-JP,ja;q=0.9,en;q=0.8")
	})

	raw := &models.RawExtraction{
		ASIN:    asin,
		URL:     fmt.Sprintf("%s/dp/%s", d.baseURL, asin),
		Backend: models.BackendColly,
	}

	var pageBody string
	var fetchErr error

	c.OnHTML("html", func(e *colly.HTMLElement) {
		raw.Title = selectionText(e.DOM.Find("#productTitle"))
		raw.RawPrice = firstSelectionText(e.DOM, priceSelectors)
		raw.RawStock = firstSelectionText(e.DOM, availabilitySelectors)
		pageBody = e.DOM.Text()
	})

	c.OnError(func(r *colly.Response, err error) {
		switch {
		case r != nil && r.StatusCode == http.StatusNotFound:
			fetchErr = fmt.Errorf("%w: %s", ErrNotFound, asin)
		case r != nil && (r.StatusCode == http.StatusForbidden || r.StatusCode == http.StatusServiceUnavailable):
			fetchErr = fmt.Errorf("%w: status %d from %s", ErrBlocked, r.StatusCode, raw.URL)
		case isNetTimeout(err):
			fetchErr = fmt.Errorf("%w: fetching %s", ErrTimeout, raw.URL)
		default:
			fetchErr = fmt.Errorf("request failed: %w", err)
		}
	})

	if err := c.Visit(raw.URL); err != nil && fetchErr == nil {
		if isNetTimeout(err) {
			return nil, fmt.Errorf("%w: fetching %s", ErrTimeout, raw.URL)
		}
		return nil, fmt.Errorf("visit failed: %w", err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}

	for _, marker := range blockPageMarkers {
		if strings.Contains(pageBody, marker) {
			return nil, fmt.Errorf("%w: challenge page at %s", ErrBlocked, raw.URL)
		}
	}
	if raw.Title == "" {
		for _, marker := range notFoundMarkers {
			if strings.Contains(pageBody, marker) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, asin)
			}
		}
		return nil, fmt.Errorf("%w: no product title at %s", ErrNotFound, raw.URL)
	}

	raw.FetchedAt = time.Now()
	return raw, nil
}

// blockPageMarkers mirror the browser package's challenge detection for
// the browserless path.
var blockPageMarkers = []string{
	"タイプされた文字を入力してください",
	"Enter the characters you see below",
	"自動アクセスをブロック",
}

func selectionText(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

func firstSelectionText(doc *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if text := selectionText(doc.Find(selector)); text != "" {
			return text
		}
	}
	return ""
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "Client.Timeout")
}
