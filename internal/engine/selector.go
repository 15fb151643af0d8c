// Package engine owns backend selection, fallback and backoff policy.
// It is the single authority for which backend runs, in which order, and
// how failures delay future attempts; drivers stay free of retry logic.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/takuyadev/amazon-price-watcher/internal/driver"
	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// BackendFailure records one backend's failure within a fetch attempt.
type BackendFailure struct {
	Backend models.Backend
	Err     error
}

// AllBackendsFailedError aggregates every backend's failure for one ASIN
// in one cycle. Earlier failures are never dropped.
type AllBackendsFailedError struct {
	ASIN     models.ASIN
	Failures []BackendFailure
}

func (e *AllBackendsFailedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Backend, f.Err)
	}
	return fmt.Sprintf("all backends failed for %s: [%s]", e.ASIN, strings.Join(parts, "; "))
}

// Blocked reports whether any backend hit an anti-automation challenge,
// which escalates the per-ASIN backoff.
func (e *AllBackendsFailedError) Blocked() bool {
	for _, f := range e.Failures {
		if errors.Is(f.Err, driver.ErrBlocked) {
			return true
		}
	}
	return false
}

// NotFound reports whether every backend agreed the ASIN does not exist.
func (e *AllBackendsFailedError) NotFound() bool {
	for _, f := range e.Failures {
		if !errors.Is(f.Err, driver.ErrNotFound) {
			return false
		}
	}
	return len(e.Failures) > 0
}

// Selector tries backends in priority order with a process-wide
// last-success hint. The hint is owned here exclusively: reset on
// construction, updated only on success, read by nothing else.
type Selector struct {
	drivers []driver.Driver

	mu   sync.Mutex
	hint models.Backend

	logger *slog.Logger
}

func NewSelector(drivers []driver.Driver) *Selector {
	return &Selector{
		drivers: drivers,
		logger:  slog.Default().With("component", "engine"),
	}
}

// Fetch tries the hinted backend first, then the remaining backends in
// priority order, stopping at the first success. Total exhaustion yields
// an AllBackendsFailedError carrying every backend's failure.
func (s *Selector) Fetch(ctx context.Context, asin models.ASIN) (*models.RawExtraction, error) {
	order := s.attemptOrder()

	failures := make([]BackendFailure, 0, len(order))
	for _, d := range order {
		if err := ctx.Err(); err != nil {
			failures = append(failures, BackendFailure{Backend: d.Name(), Err: err})
			break
		}

		raw, err := d.Fetch(ctx, asin)
		if err == nil {
			s.setHint(d.Name())
			s.logger.Debug("fetch succeeded", "asin", asin, "backend", d.Name())
			return raw, nil
		}

		s.logger.Warn("backend failed",
			"asin", asin, "backend", d.Name(), "class", driver.Classify(err), "error", err)
		failures = append(failures, BackendFailure{Backend: d.Name(), Err: err})
	}

	return nil, &AllBackendsFailedError{ASIN: asin, Failures: failures}
}

// Hint returns the last successful backend, or empty when none succeeded
// yet this process.
func (s *Selector) Hint() models.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hint
}

func (s *Selector) setHint(b models.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hint = b
}

// attemptOrder puts the hinted backend first and keeps the configured
// priority order for the rest, without trying any backend twice.
func (s *Selector) attemptOrder() []driver.Driver {
	hint := s.Hint()
	if hint == "" {
		return s.drivers
	}

	order := make([]driver.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		if d.Name() == hint {
			order = append(order, d)
			break
		}
	}
	for _, d := range s.drivers {
		if d.Name() != hint {
			order = append(order, d)
		}
	}
	return order
}
