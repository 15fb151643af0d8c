package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PurchasePolicy is the per-product purchase configuration. It is read-only
// at runtime.
type PurchasePolicy struct {
	MaxPrice *Money // nil means no price ceiling
	AutoBuy  bool
	Quantity int
}

func (p PurchasePolicy) Validate() error {
	if p.Quantity < 1 {
		return fmt.Errorf("purchase quantity must be at least 1, got %d", p.Quantity)
	}
	return nil
}

// PurchaseOutcome is the result of one purchase attempt.
type PurchaseOutcome string

const (
	PurchaseSucceeded     PurchaseOutcome = "SUCCEEDED"
	PurchaseFailed        PurchaseOutcome = "FAILED"
	PurchaseSkippedDryRun PurchaseOutcome = "SKIPPED_DRY_RUN"
)

// PurchaseAttempt is one audit-trail entry. Attempts are append-only and
// never edited.
type PurchaseAttempt struct {
	ID        uuid.UUID       `json:"id"`
	ASIN      ASIN            `json:"asin"`
	DecidedAt time.Time       `json:"decided_at"`
	Snapshot  Snapshot        `json:"snapshot_used"`
	Outcome   PurchaseOutcome `json:"outcome"`
	Reason    string          `json:"reason"`
}
