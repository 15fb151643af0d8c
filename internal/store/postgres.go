package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

// PostgresStore persists snapshots and purchase attempts in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLife
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdle

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS product_snapshot (
			id             BIGSERIAL PRIMARY KEY,
			asin           TEXT NOT NULL,
			title          TEXT NOT NULL,
			price_amount   NUMERIC,
			price_currency TEXT,
			stock          TEXT NOT NULL,
			observed_at    TIMESTAMPTZ NOT NULL,
			backend        TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshot_asin_observed
			ON product_snapshot (asin, observed_at);

		CREATE TABLE IF NOT EXISTS purchase_attempt (
			id         UUID PRIMARY KEY,
			asin       TEXT NOT NULL,
			decided_at TIMESTAMPTZ NOT NULL,
			snapshot   JSONB NOT NULL,
			outcome    TEXT NOT NULL,
			reason     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_attempt_asin_decided
			ON purchase_attempt (asin, decided_at DESC);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Append inserts within a transaction so the ordering check and the
// insert see a consistent latest row.
func (s *PostgresStore) Append(ctx context.Context, snap models.Snapshot) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var latest time.Time
		err := tx.QueryRow(ctx,
			`SELECT observed_at FROM product_snapshot
			 WHERE asin = $1 ORDER BY observed_at DESC LIMIT 1 FOR UPDATE`,
			string(snap.ASIN)).Scan(&latest)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read latest snapshot: %w", err)
		}
		if err == nil && snap.ObservedAt.Before(latest) {
			return ErrOutOfOrder
		}

		var amount *decimal.Decimal
		var currency *string
		if snap.Price != nil {
			amount = &snap.Price.Amount
			currency = &snap.Price.Currency
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO product_snapshot
			 (asin, title, price_amount, price_currency, stock, observed_at, backend)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(snap.ASIN), snap.Title, amount, currency,
			string(snap.Stock), snap.ObservedAt, string(snap.Backend))
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Latest(ctx context.Context, asin models.ASIN) (*models.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT asin, title, price_amount, price_currency, stock, observed_at, backend
		 FROM product_snapshot WHERE asin = $1
		 ORDER BY observed_at DESC LIMIT 1`, string(asin))

	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) History(ctx context.Context, asin models.ASIN, since time.Time) ([]models.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asin, title, price_amount, price_currency, stock, observed_at, backend
		 FROM product_snapshot WHERE asin = $1 AND observed_at >= $2
		 ORDER BY observed_at ASC`, string(asin), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Record(ctx context.Context, attempt models.PurchaseAttempt) error {
	snapJSON, err := json.Marshal(attempt.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO purchase_attempt (id, asin, decided_at, snapshot, outcome, reason)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		attempt.ID, string(attempt.ASIN), attempt.DecidedAt, snapJSON,
		string(attempt.Outcome), attempt.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert purchase attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, asin models.ASIN) ([]models.PurchaseAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asin, decided_at, snapshot, outcome, reason
		 FROM purchase_attempt WHERE asin = $1
		 ORDER BY decided_at DESC`, string(asin))
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var out []models.PurchaseAttempt
	for rows.Next() {
		var attempt models.PurchaseAttempt
		var asinStr, outcome string
		var snapJSON []byte
		if err := rows.Scan(&attempt.ID, &asinStr, &attempt.DecidedAt,
			&snapJSON, &outcome, &attempt.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if err := json.Unmarshal(snapJSON, &attempt.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attempt snapshot: %w", err)
		}
		attempt.ASIN = models.ASIN(asinStr)
		attempt.Outcome = models.PurchaseOutcome(outcome)
		out = append(out, attempt)
	}
	return out, rows.Err()
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (*models.Snapshot, error) {
	var snap models.Snapshot
	var asin, stock, backend string
	var amount *decimal.Decimal
	var currency *string

	if err := row.Scan(&asin, &snap.Title, &amount, &currency,
		&stock, &snap.ObservedAt, &backend); err != nil {
		return nil, err
	}

	snap.ASIN = models.ASIN(asin)
	snap.Stock = models.StockState(stock)
	snap.Backend = models.Backend(backend)
	if amount != nil && currency != nil {
		snap.Price = &models.Money{Amount: *amount, Currency: *currency}
	}
	return &snap, nil
}
