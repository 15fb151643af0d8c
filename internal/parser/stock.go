package parser

import (
	"regexp"
	"strings"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// Availability phrase sets for amazon.co.jp listings. Both sets are
// open-ended; anything outside them classifies as UNKNOWN.
var (
	availablePhrases = []string{
		"在庫あり",
		"すぐに発送",
		"即日発送",
		"通常配送無料",
		"in stock",
		"ships from",
		"usually ships",
	}

	unavailablePhrases = []string{
		"在庫切れ",
		"一時的に在庫切れ",
		"入荷時期未定",
		"現在在庫切れ",
		"お取り扱いできません",
		"out of stock",
		"currently unavailable",
		"temporarily out of stock",
	}
)

// limitedPattern matches "残り3個" / "あと 2 点" style scarcity phrasing.
var limitedPattern = regexp.MustCompile(`(?:残り|あと)\s*[0-9０-９]+\s*(?:個|点)`)

// ParseStock classifies raw availability text into a StockState.
//
// The available set is checked before the unavailable set so that negated
// phrasing containing an "available" substring cannot flip the result both
// ways; unmatched text is always UNKNOWN, never a guess.
func ParseStock(raw string) models.StockState {
	text := strings.TrimSpace(raw)
	if text == "" {
		return models.StockUnknown
	}
	lower := strings.ToLower(text)

	if limitedPattern.MatchString(text) {
		return models.StockLimited
	}
	for _, phrase := range availablePhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return models.StockInStock
		}
	}
	for _, phrase := range unavailablePhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return models.StockOutOfStock
		}
	}
	return models.StockUnknown
}
