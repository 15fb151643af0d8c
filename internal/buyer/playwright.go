package buyer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/takuyadev/amazon-price-watcher/internal/browser"
	"github.com/takuyadev/amazon-price-watcher/internal/models"
	"github.com/takuyadev/amazon-price-watcher/internal/session"
)

// Checkout is a walk through Amazon's order flow. Each stage has a few
// candidate selectors because the markup varies by account and locale;
// the first clickable one wins.
var (
	checkoutSelectors = []string{
		`input[name="proceedToRetailCheckout"]`,
		`#sc-buy-box-ptc-button`,
		`a[href*="checkout"]`,
	}
	continueSelectors = []string{
		`input[name="continue"]`,
		`button[name="continue"]`,
		`input[value*="Continue"]`,
		`input[value*="Use this address"]`,
		`input[value*="Use this payment method"]`,
	}
	placeOrderSelectors = []string{
		`input[name="placeYourOrder1"]`,
		`button[name="placeYourOrder1"]`,
		`button[id*="place-order"]`,
	}
)

// PlaywrightBuyer drives the cart and checkout pages in a logged-in
// browser context.
type PlaywrightBuyer struct {
	browser *browser.Browser
	session *session.Session
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

func NewPlaywrightBuyer(b *browser.Browser, sess *session.Session, baseURL string, timeout time.Duration) *PlaywrightBuyer {
	return &PlaywrightBuyer{
		browser: b,
		session: sess,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  slog.Default().With("component", "buyer"),
	}
}

func (b *PlaywrightBuyer) PlaceOrder(ctx context.Context, asin models.ASIN, quantity int) error {
	if err := b.session.EnsureLoggedIn(ctx); err != nil {
		return fmt.Errorf("not signed in: %w", err)
	}

	page, err := b.browser.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	b.logger.Info("starting order flow", "asin", asin, "quantity", quantity)

	url := fmt.Sprintf("%s/dp/%s", b.baseURL, asin)
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(b.timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("failed to open product page: %w", err)
	}

	if blocked, _ := b.browser.DetectBlock(page); blocked {
		return fmt.Errorf("challenge page during order flow for %s", asin)
	}

	if err := b.addToCart(page, quantity); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	if err := b.proceedToCheckout(page); err != nil {
		return fmt.Errorf("proceed to checkout: %w", b.signedOutOr(page, err))
	}
	if err := b.completeCheckout(ctx, page); err != nil {
		return fmt.Errorf("complete checkout: %w", b.signedOutOr(page, err))
	}

	b.logger.Info("order placed", "asin", asin, "quantity", quantity)
	return nil
}

func (b *PlaywrightBuyer) addToCart(page playwright.Page, quantity int) error {
	if quantity > 1 {
		b.setQuantity(page, quantity)
	}

	btn := page.Locator("#add-to-cart-button")
	if err := btn.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("add-to-cart button not available: %w", err)
	}

	if err := btn.Click(); err != nil {
		return fmt.Errorf("failed to click add-to-cart: %w", err)
	}

	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	})
	return nil
}

// setQuantity tries the quantity dropdown; its absence is fine, the
// page then orders the default quantity of one.
func (b *PlaywrightBuyer) setQuantity(page playwright.Page, quantity int) {
	sel := page.Locator("select#quantity")
	count, err := sel.Count()
	if err != nil || count == 0 {
		b.logger.Warn("quantity selector missing, ordering default quantity")
		return
	}
	if _, err := sel.SelectOption(playwright.SelectOptionValues{
		Values: &[]string{strconv.Itoa(quantity)},
	}); err != nil {
		b.logger.Warn("failed to set quantity", "error", err)
	}
}

func (b *PlaywrightBuyer) proceedToCheckout(page playwright.Page) error {
	if btn := b.firstClickable(page, checkoutSelectors); btn != nil {
		if err := btn.Click(); err != nil {
			return fmt.Errorf("failed to click checkout: %w", err)
		}
		return b.waitForURL(page, "checkout", "buy")
	}

	// No inline checkout button, go through the cart page.
	if _, err := page.Goto(b.baseURL+"/cart", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("failed to open cart: %w", err)
	}

	btn := b.firstClickable(page, checkoutSelectors)
	if btn == nil {
		return fmt.Errorf("no checkout button found")
	}
	if err := btn.Click(); err != nil {
		return fmt.Errorf("failed to click checkout: %w", err)
	}
	return b.waitForURL(page, "checkout", "buy")
}

// completeCheckout walks address, shipping and payment pages by
// clicking whatever continue control is present, then places the order.
func (b *PlaywrightBuyer) completeCheckout(ctx context.Context, page playwright.Page) error {
	for i := 0; i < 4; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if btn := b.firstClickable(page, placeOrderSelectors); btn != nil {
			if err := btn.Click(); err != nil {
				return fmt.Errorf("failed to click place order: %w", err)
			}
			return b.waitForURL(page, "thank", "confirmation", "order")
		}

		btn := b.firstClickable(page, continueSelectors)
		if btn == nil {
			break
		}
		if err := btn.Click(); err != nil {
			return fmt.Errorf("failed to advance checkout: %w", err)
		}
		page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		})
	}

	return fmt.Errorf("place-order button never appeared")
}

// signedOutOr detects the checkout flow bouncing back to the sign-in
// pages, which means the browser context lost its session. The session
// is invalidated so the next attempt signs in afresh.
func (b *PlaywrightBuyer) signedOutOr(page playwright.Page, err error) error {
	if strings.Contains(page.URL(), "/ap/") {
		b.session.Invalidate()
		return fmt.Errorf("signed out during order flow: %v", err)
	}
	return err
}

func (b *PlaywrightBuyer) firstClickable(page playwright.Page, selectors []string) playwright.Locator {
	for _, selector := range selectors {
		loc := page.Locator(selector).First()
		if err := loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(5000),
		}); err == nil {
			return loc
		}
	}
	return nil
}

func (b *PlaywrightBuyer) waitForURL(page playwright.Page, markers ...string) error {
	pattern := regexp.MustCompile("(?i)(" + strings.Join(markers, "|") + ")")
	err := page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(15000),
	})
	if err != nil {
		return fmt.Errorf("expected navigation did not happen: %w", err)
	}
	return nil
}
