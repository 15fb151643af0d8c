package monitor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

func jpy(t *testing.T, amount int64) *models.Money {
	t.Helper()
	m, err := models.NewMoney(decimal.NewFromInt(amount), "JPY")
	require.NoError(t, err)
	return &m
}

func snapshot(t *testing.T, price *models.Money, stock models.StockState) models.Snapshot {
	t.Helper()
	return models.Snapshot{
		ASIN:       "B000TEST01",
		Title:      "テスト商品",
		Price:      price,
		Stock:      stock,
		ObservedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Backend:    models.BackendPlaywright,
	}
}

func TestDetectChangeFirstObservation(t *testing.T) {
	for _, stock := range []models.StockState{
		models.StockInStock, models.StockOutOfStock, models.StockLimited, models.StockUnknown,
	} {
		event, err := DetectChange(nil, snapshot(t, jpy(t, 1000), stock))
		require.NoError(t, err)
		assert.Equal(t, models.ChangeFirstObservation, event.Kind, "stock %s", stock)
	}
}

func TestDetectChangeClassification(t *testing.T) {
	tests := []struct {
		name     string
		previous models.Snapshot
		current  models.Snapshot
		want     models.ChangeKind
	}{
		{
			name:     "price drop",
			previous: snapshot(t, jpy(t, 6000), models.StockInStock),
			current:  snapshot(t, jpy(t, 4980), models.StockInStock),
			want:     models.ChangePriceDrop,
		},
		{
			name:     "price rise",
			previous: snapshot(t, jpy(t, 4980), models.StockInStock),
			current:  snapshot(t, jpy(t, 6000), models.StockInStock),
			want:     models.ChangePriceRise,
		},
		{
			name:     "back in stock",
			previous: snapshot(t, nil, models.StockOutOfStock),
			current:  snapshot(t, jpy(t, 8000), models.StockInStock),
			want:     models.ChangeBackInStock,
		},
		{
			name:     "unknown to limited counts as back in stock",
			previous: snapshot(t, jpy(t, 8000), models.StockUnknown),
			current:  snapshot(t, jpy(t, 8000), models.StockLimited),
			want:     models.ChangeBackInStock,
		},
		{
			name:     "went out of stock",
			previous: snapshot(t, jpy(t, 8000), models.StockInStock),
			current:  snapshot(t, nil, models.StockOutOfStock),
			want:     models.ChangeWentOutOfStock,
		},
		{
			name:     "stock transition outranks simultaneous price drop",
			previous: snapshot(t, jpy(t, 6000), models.StockOutOfStock),
			current:  snapshot(t, jpy(t, 4980), models.StockInStock),
			want:     models.ChangeBackInStock,
		},
		{
			name:     "no change",
			previous: snapshot(t, jpy(t, 6000), models.StockInStock),
			current:  snapshot(t, jpy(t, 6000), models.StockInStock),
			want:     models.ChangeNoChange,
		},
		{
			name:     "absent price on either side is no price change",
			previous: snapshot(t, nil, models.StockInStock),
			current:  snapshot(t, jpy(t, 6000), models.StockInStock),
			want:     models.ChangeNoChange,
		},
		{
			name:     "purchasable to unknown is not an out-of-stock transition",
			previous: snapshot(t, jpy(t, 6000), models.StockInStock),
			current:  snapshot(t, jpy(t, 6000), models.StockUnknown),
			want:     models.ChangeNoChange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DetectChange(&tt.previous, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.Kind)

			// Deterministic: same pair, same classification.
			again, err := DetectChange(&tt.previous, tt.current)
			require.NoError(t, err)
			assert.Equal(t, event.Kind, again.Kind)
		})
	}
}

func TestDetectChangeCrossCurrencyFailsLoudly(t *testing.T) {
	usd, err := models.NewMoney(decimal.NewFromInt(40), "USD")
	require.NoError(t, err)

	previous := snapshot(t, jpy(t, 6000), models.StockInStock)
	_, err = DetectChange(&previous, snapshot(t, &usd, models.StockInStock))
	assert.ErrorIs(t, err, models.ErrCurrencyMismatch)
}
