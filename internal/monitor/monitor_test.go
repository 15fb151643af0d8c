package monitor

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takuyadev/amazon-price-watcher/internal/driver"
	"github.com/takuyadev/amazon-price-watcher/internal/engine"
	"github.com/takuyadev/amazon-price-watcher/internal/models"
	"github.com/takuyadev/amazon-price-watcher/internal/notify"
	"github.com/takuyadev/amazon-price-watcher/internal/store"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	results map[models.ASIN]error
	price   map[models.ASIN]string
	stock   map[models.ASIN]string
	fetched []models.ASIN
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		results: make(map[models.ASIN]error),
		price:   make(map[models.ASIN]string),
		stock:   make(map[models.ASIN]string),
	}
}

func (f *scriptedFetcher) Fetch(_ context.Context, asin models.ASIN) (*models.RawExtraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, asin)

	if err := f.results[asin]; err != nil {
		return nil, err
	}

	price := f.price[asin]
	if price == "" {
		price = "￥1,234"
	}
	stock := f.stock[asin]
	if stock == "" {
		stock = "在庫あり"
	}
	return &models.RawExtraction{
		ASIN:      asin,
		Title:     "テスト商品",
		RawPrice:  price,
		RawStock:  stock,
		FetchedAt: time.Now(),
		Backend:   models.BackendPlaywright,
	}, nil
}

type fakeBuyer struct {
	mu     sync.Mutex
	err    error
	orders []models.ASIN
}

func (b *fakeBuyer) PlaceOrder(_ context.Context, asin models.ASIN, _ int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.orders = append(b.orders, asin)
	return nil
}

func newTestMonitor(f Fetcher, st store.Store, b *fakeBuyer, opts Options) *Monitor {
	if opts.Concurrency == 0 {
		opts.Concurrency = 2
	}
	if opts.Policy.Quantity == 0 {
		opts.Policy.Quantity = 1
	}
	return New(f, engine.NewBackoff(), st, notify.NewDispatcher(nil), b, nil, opts)
}

func TestCycleIsolatesOneFailingProduct(t *testing.T) {
	asins := []models.ASIN{"B000TEST01", "B000TEST02", "B000TEST03", "B000TEST04", "B000TEST05"}

	fetcher := newScriptedFetcher()
	fetcher.results["B000TEST03"] = &engine.AllBackendsFailedError{
		ASIN: "B000TEST03",
		Failures: []engine.BackendFailure{
			{Backend: models.BackendPlaywright, Err: driver.ErrTimeout},
		},
	}

	st := store.NewMemoryStore()
	m := newTestMonitor(fetcher, st, &fakeBuyer{}, Options{ASINs: asins})

	require.NoError(t, m.RunCycle(context.Background()))

	for _, asin := range asins {
		latest, err := st.Latest(context.Background(), asin)
		require.NoError(t, err)
		if asin == "B000TEST03" {
			assert.Nil(t, latest, "failed product gets no snapshot this cycle")
		} else {
			assert.NotNil(t, latest, "one failure must not stop the other appends")
		}
	}
}

func TestBlockedProductEntersBackoffAndIsSkipped(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.results["B000TEST01"] = &engine.AllBackendsFailedError{
		ASIN: "B000TEST01",
		Failures: []engine.BackendFailure{
			{Backend: models.BackendPlaywright, Err: driver.ErrBlocked},
		},
	}

	st := store.NewMemoryStore()
	m := newTestMonitor(fetcher, st, &fakeBuyer{}, Options{ASINs: []models.ASIN{"B000TEST01"}})

	require.NoError(t, m.RunCycle(context.Background()))
	assert.Len(t, fetcher.fetched, 1)

	// Next cycle lands inside the backoff window, no fetch happens.
	require.NoError(t, m.RunCycle(context.Background()))
	assert.Len(t, fetcher.fetched, 1)
}

func TestNotFoundProductIsRetiredForTheRun(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.results["B000DEAD00"] = &engine.AllBackendsFailedError{
		ASIN: "B000DEAD00",
		Failures: []engine.BackendFailure{
			{Backend: models.BackendPlaywright, Err: driver.ErrNotFound},
			{Backend: models.BackendColly, Err: driver.ErrNotFound},
		},
	}

	st := store.NewMemoryStore()
	m := newTestMonitor(fetcher, st, &fakeBuyer{}, Options{ASINs: []models.ASIN{"B000DEAD00"}})

	require.NoError(t, m.RunCycle(context.Background()))
	require.NoError(t, m.RunCycle(context.Background()))
	require.NoError(t, m.RunCycle(context.Background()))

	assert.Len(t, fetcher.fetched, 1, "a dead identifier is never re-fetched this run")
}

func TestNotFoundVerdictNeedsBackendConsensus(t *testing.T) {
	// One backend timing out while another says not-found is not a
	// verdict; the product stays on the normal cycle.
	fetcher := newScriptedFetcher()
	fetcher.results["B000TEST01"] = &engine.AllBackendsFailedError{
		ASIN: "B000TEST01",
		Failures: []engine.BackendFailure{
			{Backend: models.BackendPlaywright, Err: driver.ErrNotFound},
			{Backend: models.BackendColly, Err: driver.ErrTimeout},
		},
	}

	st := store.NewMemoryStore()
	m := newTestMonitor(fetcher, st, &fakeBuyer{}, Options{ASINs: []models.ASIN{"B000TEST01"}})

	require.NoError(t, m.RunCycle(context.Background()))
	require.NoError(t, m.RunCycle(context.Background()))
	assert.Len(t, fetcher.fetched, 2)
}

func TestTimeoutDoesNotEscalateBackoff(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.results["B000TEST01"] = &engine.AllBackendsFailedError{
		ASIN: "B000TEST01",
		Failures: []engine.BackendFailure{
			{Backend: models.BackendPlaywright, Err: driver.ErrTimeout},
		},
	}

	st := store.NewMemoryStore()
	m := newTestMonitor(fetcher, st, &fakeBuyer{}, Options{ASINs: []models.ASIN{"B000TEST01"}})

	require.NoError(t, m.RunCycle(context.Background()))
	require.NoError(t, m.RunCycle(context.Background()))
	assert.Len(t, fetcher.fetched, 2, "timeouts retry at the next normal cycle")
}

func TestDryRunRecordsAttemptWithoutOrdering(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.price["B000TEST01"] = "￥4,980"

	st := store.NewMemoryStore()
	b := &fakeBuyer{}
	m := newTestMonitor(fetcher, st, b, Options{
		ASINs:  []models.ASIN{"B000TEST01"},
		Policy: models.PurchasePolicy{MaxPrice: jpy(t, 5000), AutoBuy: true, Quantity: 1},
		DryRun: true,
	})

	require.NoError(t, m.RunCycle(context.Background()))

	assert.Empty(t, b.orders, "dry run never contacts the retailer")
	attempts, err := st.List(context.Background(), "B000TEST01")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.PurchaseSkippedDryRun, attempts[0].Outcome)
}

func TestLivePurchaseRecordsSucceededAttempt(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.price["B000TEST01"] = "￥4,980"

	st := store.NewMemoryStore()
	b := &fakeBuyer{}
	m := newTestMonitor(fetcher, st, b, Options{
		ASINs:  []models.ASIN{"B000TEST01"},
		Policy: models.PurchasePolicy{MaxPrice: jpy(t, 5000), AutoBuy: true, Quantity: 1},
	})

	require.NoError(t, m.RunCycle(context.Background()))

	assert.Equal(t, []models.ASIN{"B000TEST01"}, b.orders)
	attempts, err := st.List(context.Background(), "B000TEST01")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.PurchaseSucceeded, attempts[0].Outcome)
}

func TestSkipDecisionRecordsNoAttempt(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.price["B000TEST01"] = "￥8,000"

	st := store.NewMemoryStore()
	b := &fakeBuyer{}
	m := newTestMonitor(fetcher, st, b, Options{
		ASINs:  []models.ASIN{"B000TEST01"},
		Policy: models.PurchasePolicy{MaxPrice: jpy(t, 5000), AutoBuy: true, Quantity: 1},
	})

	require.NoError(t, m.RunCycle(context.Background()))

	assert.Empty(t, b.orders)
	attempts, err := st.List(context.Background(), "B000TEST01")
	require.NoError(t, err)
	assert.Empty(t, attempts, "skips are logged, not recorded as attempts")
}

func TestPerProductPolicyOverridesDefault(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.price["B000CHEAP1"] = "￥4,980"
	fetcher.price["B000PRICY1"] = "￥4,980"

	st := store.NewMemoryStore()
	b := &fakeBuyer{}
	m := newTestMonitor(fetcher, st, b, Options{
		ASINs:  []models.ASIN{"B000CHEAP1", "B000PRICY1"},
		Policy: models.PurchasePolicy{MaxPrice: jpy(t, 5000), AutoBuy: true, Quantity: 1},
		Policies: map[models.ASIN]models.PurchasePolicy{
			"B000PRICY1": {MaxPrice: jpy(t, 3000), AutoBuy: true, Quantity: 1},
		},
	})

	require.NoError(t, m.RunCycle(context.Background()))

	assert.Equal(t, []models.ASIN{"B000CHEAP1"}, b.orders,
		"the tighter per-product ceiling wins over the default")
}

func TestSkipReasonIsLoggedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	defer slog.SetDefault(prev)

	fetcher := newScriptedFetcher()
	fetcher.price["B000TEST01"] = "￥8,000"

	st := store.NewMemoryStore()
	m := newTestMonitor(fetcher, st, &fakeBuyer{}, Options{
		ASINs:  []models.ASIN{"B000TEST01"},
		Policy: models.PurchasePolicy{MaxPrice: jpy(t, 5000), AutoBuy: true, Quantity: 1},
	})

	require.NoError(t, m.RunCycle(context.Background()))

	assert.Contains(t, buf.String(), "purchase skipped")
	assert.Contains(t, buf.String(), "exceeds ceiling")
}

func TestRunStopsOnCancel(t *testing.T) {
	fetcher := newScriptedFetcher()
	st := store.NewMemoryStore()
	m := newTestMonitor(fetcher, st, &fakeBuyer{}, Options{
		ASINs:    []models.ASIN{"B000TEST01"},
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}
