package models

// ChangeKind classifies the delta between two consecutive snapshots.
type ChangeKind string

const (
	ChangeFirstObservation ChangeKind = "FIRST_OBSERVATION"
	ChangePriceDrop        ChangeKind = "PRICE_DROP"
	ChangePriceRise        ChangeKind = "PRICE_RISE"
	ChangeBackInStock      ChangeKind = "BACK_IN_STOCK"
	ChangeWentOutOfStock   ChangeKind = "WENT_OUT_OF_STOCK"
	ChangeNoChange         ChangeKind = "NO_CHANGE"
)

// ChangeEvent is the classified delta for one poll of one product. It is
// derived data, computed fresh each cycle and never persisted.
type ChangeEvent struct {
	ASIN     ASIN
	Kind     ChangeKind
	Previous *Snapshot // nil on first observation
	Current  Snapshot
}
