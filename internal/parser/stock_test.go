package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

func TestParseStockAvailable(t *testing.T) {
	tests := []string{
		"在庫あり。",
		"在庫あり - すぐに発送できます",
		"即日発送",
		"通常配送無料でお届けします",
		"In Stock",
		"Usually ships within 2 days",
	}
	for _, raw := range tests {
		state := ParseStock(raw)
		assert.Equal(t, models.StockInStock, state, "input %q", raw)
		assert.NotEqual(t, models.StockOutOfStock, state, "input %q", raw)
	}
}

func TestParseStockUnavailable(t *testing.T) {
	tests := []string{
		"在庫切れ",
		"一時的に在庫切れ; 入荷時期は未定です",
		"入荷時期未定",
		"Currently unavailable.",
		"Out of Stock",
		"Temporarily out of stock.",
	}
	for _, raw := range tests {
		state := ParseStock(raw)
		assert.Equal(t, models.StockOutOfStock, state, "input %q", raw)
		assert.NotEqual(t, models.StockInStock, state, "input %q", raw)
	}
}

func TestParseStockLimited(t *testing.T) {
	tests := []string{
		"残り3個（入荷予定あり）",
		"残り 1 個",
		"あと2点",
	}
	for _, raw := range tests {
		assert.Equal(t, models.StockLimited, ParseStock(raw), "input %q", raw)
	}
}

func TestParseStockUnknown(t *testing.T) {
	tests := []string{
		"",
		"この商品について",
		"See buying options",
		"詳細はこちら",
	}
	for _, raw := range tests {
		assert.Equal(t, models.StockUnknown, ParseStock(raw), "input %q", raw)
	}
}

func TestNormalize(t *testing.T) {
	raw := &models.RawExtraction{
		ASIN:     "B000TEST01",
		Title:    "テスト商品",
		RawPrice: "￥4,980",
		RawStock: "在庫あり。",
		Backend:  models.BackendPlaywright,
	}

	snap, err := Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, snap.Price)
	assert.Equal(t, "JPY", snap.Price.Currency)
	assert.Equal(t, models.StockInStock, snap.Stock)
	assert.Equal(t, models.BackendPlaywright, snap.Backend)
}

func TestNormalizeUnparsablePriceStaysAbsent(t *testing.T) {
	raw := &models.RawExtraction{
		ASIN:     "B000TEST01",
		RawPrice: "価格はカートで確認",
		RawStock: "在庫あり",
	}

	snap, err := Normalize(raw)
	assert.ErrorIs(t, err, ErrUnparsablePrice)
	assert.Nil(t, snap.Price)
	assert.Equal(t, models.StockInStock, snap.Stock)
}
