package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
	"github.com/takuyadev/amazon-price-watcher/internal/store"
)

func newTestServer(t *testing.T, st store.Store, asins []models.ASIN) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	NewHandlers(st, asins, slog.Default()).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func seedSnapshot(t *testing.T, st store.Store, asin models.ASIN, yen int64, at time.Time) {
	t.Helper()
	price, err := models.NewMoney(decimal.NewFromInt(yen), "JPY")
	require.NoError(t, err)
	require.NoError(t, st.Append(context.Background(), models.Snapshot{
		ASIN:       asin,
		Title:      "テスト商品",
		Price:      &price,
		Stock:      models.StockInStock,
		ObservedAt: at,
		Backend:    models.BackendPlaywright,
	}))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(), nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListProductsIncludesUnobserved(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedSnapshot(t, st, "B000TEST01", 4980, base)

	srv := newTestServer(t, st, []models.ASIN{"B000TEST01", "B000NEVER1"})

	resp, err := http.Get(srv.URL + "/api/v1/products")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []ProductStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.NotNil(t, out[0].Snapshot)
	assert.Nil(t, out[1].Snapshot)
}

func TestGetProductNotFound(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(), nil)

	resp, err := http.Get(srv.URL + "/api/v1/products/B000NEVER1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetHistorySinceFilter(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedSnapshot(t, st, "B000TEST01", 4980, base.Add(time.Duration(i)*time.Hour))
	}

	srv := newTestServer(t, st, []models.ASIN{"B000TEST01"})

	url := srv.URL + "/api/v1/products/B000TEST01/history?since=" + base.Add(time.Hour).Format(time.RFC3339)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []models.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out, 2)
}

func TestGetHistoryRejectsBadSince(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(), nil)

	resp, err := http.Get(srv.URL + "/api/v1/products/B000TEST01/history?since=yesterday")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetAttemptsEmptyIsArray(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(), []models.ASIN{"B000TEST01"})

	resp, err := http.Get(srv.URL + "/api/v1/products/B000TEST01/attempts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []models.PurchaseAttempt
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Empty(t, out)
}
