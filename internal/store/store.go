// Package store persists the snapshot time series and the purchase
// attempt audit log. Snapshots are append-only per ASIN; observed_at
// must never move backwards within one ASIN's series.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// ErrOutOfOrder is returned when an append would regress a product's
// series. Retried fetches can arrive late; the series stays ordered.
var ErrOutOfOrder = errors.New("snapshot observed_at precedes latest stored snapshot")

// SnapshotStore holds each product's append-only snapshot series.
// Latest returns (nil, nil) when no snapshot exists for the ASIN.
type SnapshotStore interface {
	Append(ctx context.Context, snap models.Snapshot) error
	Latest(ctx context.Context, asin models.ASIN) (*models.Snapshot, error)
	History(ctx context.Context, asin models.ASIN, since time.Time) ([]models.Snapshot, error)
}

// AttemptLog records every concluded purchase decision, dry runs
// included. List returns attempts newest first.
type AttemptLog interface {
	Record(ctx context.Context, attempt models.PurchaseAttempt) error
	List(ctx context.Context, asin models.ASIN) ([]models.PurchaseAttempt, error)
}

// Store bundles both persistence concerns behind one implementation.
type Store interface {
	SnapshotStore
	AttemptLog
}
