package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/takuyadev/amazon-price-watcher/internal/browser"
	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// PlaywrightDriver extracts product fields through a shared playwright
// browser context. It is the most capable backend and the default first
// choice in the fallback chain.
type PlaywrightDriver struct {
	browser *browser.Browser
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

func NewPlaywrightDriver(b *browser.Browser, baseURL string, timeout time.Duration) *PlaywrightDriver {
	return &PlaywrightDriver{
		browser: b,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  slog.Default().With("component", "driver", "backend", models.BackendPlaywright),
	}
}

func (d *PlaywrightDriver) Name() models.Backend {
	return models.BackendPlaywright
}

func (d *PlaywrightDriver) Fetch(ctx context.Context, asin models.ASIN) (*models.RawExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	page, err := d.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	url := fmt.Sprintf("%s/dp/%s", d.baseURL, asin)
	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(d.timeout.Milliseconds())),
	})
	if err != nil {
		if isPlaywrightTimeout(err) {
			return nil, fmt.Errorf("%w: navigating to %s", ErrTimeout, url)
		}
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if resp != nil && resp.Status() == 404 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, asin)
	}

	blocked, err := d.browser.DetectBlock(page)
	if err != nil {
		return nil, fmt.Errorf("block detection failed: %w", err)
	}
	if blocked {
		return nil, fmt.Errorf("%w: challenge page at %s", ErrBlocked, url)
	}

	d.browser.Humanize(page)

	title, err := d.textContent(page, "#productTitle")
	if err != nil || title == "" {
		if d.isNotFoundPage(page) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, asin)
		}
		return nil, fmt.Errorf("product title not found on %s", url)
	}

	rawPrice := d.firstText(page, priceSelectors)
	rawStock := d.firstText(page, availabilitySelectors)

	return &models.RawExtraction{
		ASIN:      asin,
		Title:     strings.TrimSpace(title),
		RawPrice:  rawPrice,
		RawStock:  rawStock,
		URL:       url,
		FetchedAt: time.Now(),
		Backend:   models.BackendPlaywright,
	}, nil
}

func (d *PlaywrightDriver) textContent(page playwright.Page, selector string) (string, error) {
	loc := page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil || count == 0 {
		return "", err
	}
	text, err := loc.TextContent()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// firstText walks a selector list and returns the first non-empty match.
func (d *PlaywrightDriver) firstText(page playwright.Page, selectors []string) string {
	for _, selector := range selectors {
		text, err := d.textContent(page, selector)
		if err != nil {
			continue
		}
		if text != "" {
			return text
		}
	}
	return ""
}

func (d *PlaywrightDriver) isNotFoundPage(page playwright.Page) bool {
	content, err := page.Content()
	if err != nil {
		return false
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

func isPlaywrightTimeout(err error) bool {
	return strings.Contains(err.Error(), "Timeout") ||
		strings.Contains(err.Error(), "timeout")
}
