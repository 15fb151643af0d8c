package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// ChromedpDriver extracts product fields over the Chrome DevTools
// Protocol. Each fetch runs in its own allocator so a crashed tab never
// poisons later fetches.
type ChromedpDriver struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewChromedpDriver(baseURL string, userAgent string, timeout time.Duration) *ChromedpDriver {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return &ChromedpDriver{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		timeout:   timeout,
		logger:    slog.Default().With("component", "driver", "backend", models.BackendChromedp),
	}
}

func (d *ChromedpDriver) Name() models.Backend {
	return models.BackendChromedp
}

// productJSONLD is the schema.org Product structure Amazon embeds on some
// listing variants.
type productJSONLD struct {
	Type   string `json:"@type"`
	Name   string `json:"name"`
	Offers struct {
		Price         json.RawMessage `json:"price"`
		PriceCurrency string          `json:"priceCurrency"`
		Availability  string          `json:"availability"`
	} `json:"offers"`
}

func (d *ChromedpDriver) Fetch(ctx context.Context, asin models.ASIN) (*models.RawExtraction, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(d.userAgent),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("lang", "ja-JP"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	fetchCtx, cancelFetch := context.WithTimeout(tabCtx, d.timeout)
	defer cancelFetch()

	url := fmt.Sprintf("%s/dp/%s", d.baseURL, asin)

	var pageTitle, title, rawPrice, rawStock, jsonLD string

	err := chromedp.Run(fetchCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Title(&pageTitle),
		chromedp.Evaluate(`document.querySelector("#productTitle")?.innerText || ""`, &title),
		chromedp.Evaluate(selectorWalkJS(priceSelectors), &rawPrice),
		chromedp.Evaluate(selectorWalkJS(availabilitySelectors), &rawStock),
		chromedp.Evaluate(`
			(function() {
				const scripts = document.querySelectorAll('script[type="application/ld+json"]');
				for (const script of scripts) {
					if (script.innerText.includes('"@type": "Product"') || script.innerText.includes('"@type":"Product"')) {
						return script.innerText;
					}
				}
				return "";
			})()
		`, &jsonLD),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: navigating to %s", ErrTimeout, url)
		}
		return nil, fmt.Errorf("chromedp execution failed: %w", err)
	}

	if isBlockedTitle(pageTitle) {
		return nil, fmt.Errorf("%w: challenge page at %s", ErrBlocked, url)
	}

	raw := &models.RawExtraction{
		ASIN:      asin,
		Title:     strings.TrimSpace(title),
		RawPrice:  strings.TrimSpace(rawPrice),
		RawStock:  strings.TrimSpace(rawStock),
		URL:       url,
		FetchedAt: time.Now(),
		Backend:   models.BackendChromedp,
	}

	// JSON-LD fills gaps the selectors missed.
	if jsonLD != "" {
		var ld productJSONLD
		if err := json.Unmarshal([]byte(jsonLD), &ld); err == nil {
			if raw.Title == "" {
				raw.Title = strings.TrimSpace(ld.Name)
			}
			if raw.RawPrice == "" && len(ld.Offers.Price) > 0 {
				raw.RawPrice = jsonLDPrice(ld)
			}
			if raw.RawStock == "" {
				raw.RawStock = jsonLDAvailability(ld.Offers.Availability)
			}
		} else {
			d.logger.Warn("failed to parse JSON-LD", "asin", asin, "error", err)
		}
	}

	if raw.Title == "" {
		for _, marker := range notFoundMarkers {
			if strings.Contains(pageTitle, marker) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, asin)
			}
		}
		return nil, fmt.Errorf("%w: no product title at %s", ErrNotFound, url)
	}

	return raw, nil
}

// selectorWalkJS builds a script returning the first non-empty innerText
// among the given selectors.
func selectorWalkJS(selectors []string) string {
	quoted := make([]string, len(selectors))
	for i, s := range selectors {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf(`
		(function() {
			const selectors = [%s];
			for (const sel of selectors) {
				const el = document.querySelector(sel);
				if (el && el.innerText && el.innerText.trim() !== "") {
					return el.innerText.trim();
				}
			}
			return "";
		})()
	`, strings.Join(quoted, ", "))
}

// jsonLDPrice renders a schema.org offer price as code-suffixed text the
// normalizer already understands.
func jsonLDPrice(ld productJSONLD) string {
	var priceStr string
	if err := json.Unmarshal(ld.Offers.Price, &priceStr); err != nil {
		priceStr = string(ld.Offers.Price)
	}
	priceStr = strings.Trim(priceStr, `"' `)
	if priceStr == "" {
		return ""
	}
	currency := ld.Offers.PriceCurrency
	if currency == "" {
		currency = "JPY"
	}
	return priceStr + currency
}

func jsonLDAvailability(availability string) string {
	lower := strings.ToLower(availability)
	switch {
	case strings.Contains(lower, "instock"):
		return "In stock"
	case strings.Contains(lower, "limitedavailability"):
		return "残り1個"
	case strings.Contains(lower, "outofstock"), strings.Contains(lower, "soldout"):
		return "Out of stock"
	default:
		return ""
	}
}

func isBlockedTitle(pageTitle string) bool {
	for _, marker := range []string{"Robot Check", "Amazon CAPTCHA", "タイプされた文字"} {
		if strings.Contains(pageTitle, marker) {
			return true
		}
	}
	return false
}
