package models

import "time"

// ASIN is the Amazon catalog key for one product listing. It is opaque to
// the watcher and used as the partition key everywhere.
type ASIN string

// Backend identifies one browser-automation technology.
type Backend string

const (
	BackendPlaywright Backend = "playwright"
	BackendChromedp   Backend = "chromedp"
	BackendColly      Backend = "colly"
)

// StockState is the normalized availability of a product.
type StockState string

const (
	StockInStock    StockState = "IN_STOCK"
	StockOutOfStock StockState = "OUT_OF_STOCK"
	StockLimited    StockState = "LIMITED"
	// StockUnknown means the parser could not classify the raw text.
	// It must never be conflated with OUT_OF_STOCK.
	StockUnknown StockState = "UNKNOWN"
)

// Purchasable reports whether the state allows a purchase attempt.
func (s StockState) Purchasable() bool {
	return s == StockInStock || s == StockLimited
}

// RawExtraction is the unparsed result of one successful driver fetch.
// It is discarded after normalization and never persisted.
type RawExtraction struct {
	ASIN      ASIN
	Title     string
	RawPrice  string // empty when the page showed no price
	RawStock  string // empty when the page showed no availability text
	URL       string
	FetchedAt time.Time
	Backend   Backend
}

// Snapshot is one normalized, timestamped observation of a product.
// Snapshots are immutable once created and owned by the snapshot store.
type Snapshot struct {
	ASIN       ASIN       `json:"asin"`
	Title      string     `json:"title,omitempty"`
	Price      *Money     `json:"price,omitempty"` // nil when no price could be parsed
	Stock      StockState `json:"stock"`
	ObservedAt time.Time  `json:"observed_at"`
	Backend    Backend    `json:"backend"`
}
