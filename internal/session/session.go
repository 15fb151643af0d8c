// Package session keeps the browser context signed in to the retailer
// account. Drivers and the buyer reuse the shared context; only the
// session owns credentials.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/takuyadev/amazon-price-watcher/internal/browser"
)

// ErrAuthFailed marks a failed sign-in. Callers treat it like a
// blocked fetch: back off rather than hammer the login page.
var ErrAuthFailed = errors.New("sign-in failed")

// Credentials are the account email and password.
type Credentials struct {
	Email    string
	Password string
}

// Session signs the shared browser context in on demand.
type Session struct {
	browser *browser.Browser
	baseURL string
	creds   Credentials
	timeout time.Duration

	mu       sync.Mutex
	loggedIn bool

	logger *slog.Logger
}

func New(b *browser.Browser, baseURL string, creds Credentials, timeout time.Duration) *Session {
	return &Session{
		browser: b,
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		timeout: timeout,
		logger:  slog.Default().With("component", "session"),
	}
}

// EnsureLoggedIn signs in once per process; later calls are cheap.
func (s *Session) EnsureLoggedIn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loggedIn {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.login(); err != nil {
		return err
	}
	s.loggedIn = true
	return nil
}

// Invalidate forces a fresh sign-in on the next EnsureLoggedIn call.
// The buyer calls it when the checkout flow lands on a sign-in page.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
}

func (s *Session) login() error {
	page, err := s.browser.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	s.logger.Info("signing in")

	if _, err := page.Goto(s.baseURL+"/ap/signin", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("%w: failed to open sign-in page: %v", ErrAuthFailed, err)
	}

	if err := s.fill(page, "#ap_email", s.creds.Email); err != nil {
		return err
	}
	if err := s.click(page, "#continue"); err != nil {
		return err
	}
	if err := s.fill(page, "#ap_password", s.creds.Password); err != nil {
		return err
	}
	if err := s.click(page, "#signInSubmit"); err != nil {
		return err
	}

	// Success means we land anywhere off the signin flow; a challenge
	// or wrong password keeps the URL on /ap/.
	err = page.WaitForURL(regexp.MustCompile(`^(?:(?!/ap/).)*$`), playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("%w: still on sign-in page", ErrAuthFailed)
	}

	if blocked, _ := s.browser.DetectBlock(page); blocked {
		return fmt.Errorf("%w: challenge page after sign-in", ErrAuthFailed)
	}

	s.logger.Info("signed in")
	return nil
}

func (s *Session) fill(page playwright.Page, selector, value string) error {
	loc := page.Locator(selector)
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(s.timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("%w: %s not found", ErrAuthFailed, selector)
	}
	if err := loc.Fill(value); err != nil {
		return fmt.Errorf("%w: failed to fill %s: %v", ErrAuthFailed, selector, err)
	}
	return nil
}

func (s *Session) click(page playwright.Page, selector string) error {
	if err := page.Locator(selector).Click(); err != nil {
		return fmt.Errorf("%w: failed to click %s: %v", ErrAuthFailed, selector, err)
	}
	return nil
}
