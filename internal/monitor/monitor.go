package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/takuyadev/amazon-price-watcher/internal/buyer"
	"github.com/takuyadev/amazon-price-watcher/internal/engine"
	"github.com/takuyadev/amazon-price-watcher/internal/models"
	"github.com/takuyadev/amazon-price-watcher/internal/notify"
	"github.com/takuyadev/amazon-price-watcher/internal/parser"
	"github.com/takuyadev/amazon-price-watcher/internal/ratelimit"
	"github.com/takuyadev/amazon-price-watcher/internal/store"
)

// Fetcher is the page-extraction capability the monitor polls through.
type Fetcher interface {
	Fetch(ctx context.Context, asin models.ASIN) (*models.RawExtraction, error)
}

// Options configures one Monitor.
type Options struct {
	ASINs       []models.ASIN
	Policy      models.PurchasePolicy
	Policies    map[models.ASIN]models.PurchasePolicy // per-product overrides of Policy
	Interval    time.Duration
	Jitter      time.Duration
	Concurrency int
	DryRun      bool
}

// Monitor drives the poll cycle for the configured products. One
// product's failure never aborts a cycle; only storage-layer failure
// stops the run, since losing snapshots silently is worse than
// stopping.
type Monitor struct {
	fetcher    Fetcher
	backoff    *engine.Backoff
	store      store.Store
	dispatcher *notify.Dispatcher
	buyer      buyer.Buyer
	limiter    ratelimit.RateLimiter
	opts       Options
	logger     *slog.Logger

	// retired holds ASINs every backend agreed do not exist. They are
	// never fetched again this run; only a restart with new
	// configuration brings them back.
	retiredMu sync.Mutex
	retired   map[models.ASIN]struct{}
}

func New(fetcher Fetcher, backoff *engine.Backoff, st store.Store,
	dispatcher *notify.Dispatcher, b buyer.Buyer, limiter ratelimit.RateLimiter,
	opts Options) *Monitor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Monitor{
		fetcher:    fetcher,
		backoff:    backoff,
		store:      st,
		dispatcher: dispatcher,
		buyer:      b,
		limiter:    limiter,
		opts:       opts,
		logger:     slog.Default().With("component", "monitor"),
		retired:    make(map[models.ASIN]struct{}),
	}
}

// Run polls until the context is cancelled. It returns nil on
// cancellation and an error only when persistence became unusable.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		"products", len(m.opts.ASINs),
		"interval", m.opts.Interval,
		"concurrency", m.opts.Concurrency,
		"dry_run", m.opts.DryRun)

	for {
		if err := m.RunCycle(ctx); err != nil {
			return err
		}

		sleep := m.opts.Interval + m.cycleJitter()
		m.logger.Debug("cycle complete", "sleeping", sleep)

		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-time.After(sleep):
		}
	}
}

// RunCycle checks every configured product once, with bounded
// concurrency. Checks for distinct products may interleave; a given
// product is only ever checked by one goroutine per cycle.
func (m *Monitor) RunCycle(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, m.opts.Concurrency)
		mu       sync.Mutex
		fatalErr error
	)

	for _, asin := range m.opts.ASINs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(asin models.ASIN) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := m.checkProduct(ctx, asin); err != nil {
				mu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				mu.Unlock()
			}
		}(asin)
	}

	wg.Wait()
	return fatalErr
}

// checkProduct runs the full pipeline for one product. The returned
// error is non-nil only for storage failures; everything else is
// logged and isolated.
func (m *Monitor) checkProduct(ctx context.Context, asin models.ASIN) error {
	logger := m.logger.With("asin", asin)

	if m.isRetired(asin) {
		logger.Debug("skipping, retired as not found")
		return nil
	}

	if !m.backoff.Ready(asin) {
		logger.Debug("skipping, still backing off")
		return nil
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil
		}
	}

	raw, err := m.fetcher.Fetch(ctx, asin)
	if err != nil {
		var all *engine.AllBackendsFailedError
		if errors.As(err, &all) {
			switch {
			case all.Blocked():
				delay := m.backoff.RecordBlocked(asin)
				logger.Warn("blocked, backing off", "delay", delay, "error", err)
				return nil
			case all.NotFound():
				m.retire(asin)
				logger.Error("product not found on any backend, retiring until restart", "error", err)
				return nil
			}
		}
		logger.Error("fetch failed", "error", err)
		return nil
	}
	m.backoff.RecordSuccess(asin)

	snap, err := parser.Normalize(raw)
	if err != nil {
		// Markup drift. The snapshot still records what we saw.
		logger.Warn("normalization incomplete", "error", err,
			"raw_price", raw.RawPrice, "raw_stock", raw.RawStock)
	}

	previous, err := m.store.Latest(ctx, asin)
	if err != nil {
		return fmt.Errorf("failed to read latest snapshot for %s: %w", asin, err)
	}

	if err := m.store.Append(ctx, snap); err != nil {
		if errors.Is(err, store.ErrOutOfOrder) {
			logger.Warn("dropping out-of-order snapshot", "observed_at", snap.ObservedAt)
			return nil
		}
		return fmt.Errorf("failed to append snapshot for %s: %w", asin, err)
	}

	event, err := DetectChange(previous, snap)
	if err != nil {
		logger.Error("change detection failed", "error", err)
		return nil
	}

	logger.Info("checked product",
		"kind", event.Kind, "stock", snap.Stock, "price", priceField(snap.Price), "backend", snap.Backend)

	if event.Kind != models.ChangeNoChange {
		m.dispatcher.Dispatch(ctx, notify.ChangeEvent(event))
	}

	policy := m.policyFor(asin)
	decision := Decide(event, policy)
	if !decision.Buy {
		logger.Info("purchase skipped", "reason", decision.Reason)
		return nil
	}

	attempt := m.executePurchase(ctx, snap, policy, decision, logger)
	if err := m.store.Record(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record purchase attempt for %s: %w", asin, err)
	}
	m.dispatcher.Dispatch(ctx, notify.AttemptEvent(attempt))
	return nil
}

func (m *Monitor) executePurchase(ctx context.Context, snap models.Snapshot,
	policy models.PurchasePolicy, decision Decision, logger *slog.Logger) models.PurchaseAttempt {
	attempt := models.PurchaseAttempt{
		ID:        uuid.New(),
		ASIN:      snap.ASIN,
		DecidedAt: time.Now(),
		Snapshot:  snap,
	}

	if m.opts.DryRun {
		attempt.Outcome = models.PurchaseSkippedDryRun
		attempt.Reason = decision.Reason
		logger.Info("dry run, order not placed", "reason", decision.Reason)
		return attempt
	}

	if err := m.buyer.PlaceOrder(ctx, snap.ASIN, policy.Quantity); err != nil {
		attempt.Outcome = models.PurchaseFailed
		attempt.Reason = err.Error()
		logger.Error("purchase failed", "error", err)
		return attempt
	}

	attempt.Outcome = models.PurchaseSucceeded
	attempt.Reason = decision.Reason
	logger.Info("purchase succeeded", "quantity", policy.Quantity)
	return attempt
}

func (m *Monitor) policyFor(asin models.ASIN) models.PurchasePolicy {
	if policy, ok := m.opts.Policies[asin]; ok {
		return policy
	}
	return m.opts.Policy
}

func (m *Monitor) retire(asin models.ASIN) {
	m.retiredMu.Lock()
	defer m.retiredMu.Unlock()
	m.retired[asin] = struct{}{}
}

func (m *Monitor) isRetired(asin models.ASIN) bool {
	m.retiredMu.Lock()
	defer m.retiredMu.Unlock()
	_, ok := m.retired[asin]
	return ok
}

func (m *Monitor) cycleJitter() time.Duration {
	if m.opts.Jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(m.opts.Jitter)))
}

func priceField(price *models.Money) string {
	if price == nil {
		return "absent"
	}
	return price.String()
}
