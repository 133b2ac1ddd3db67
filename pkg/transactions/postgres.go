package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPool opens a pgx connection pool and checks it can reach the server.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db       DB
	strategy QueryStrategy
	logger   zerolog.Logger
}

// NewPostgresStore creates a PostgresStore. An empty strategy means StrategyMapped.
func NewPostgresStore(db DB, strategy QueryStrategy, logger zerolog.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	switch strategy {
	case "":
		strategy = StrategyMapped
	case StrategyMapped, StrategyRaw:
	default:
		return nil, fmt.Errorf("unknown query strategy %q", strategy)
	}
	return &PostgresStore{
		db:       db,
		strategy: strategy,
		logger:   logger.With().Str("component", "PostgresStore").Str("strategy", string(strategy)).Logger(),
	}, nil
}

// rowRecord is the by-name mapping target for StrategyMapped.
type rowRecord struct {
	ID                 string     `db:"id"`
	TransactionID      string     `db:"transaction_id"`
	Amount             string     `db:"amount"`
	Currency           string     `db:"currency"`
	PaymentMethod      string     `db:"payment_method"`
	Status             string     `db:"status"`
	CustomerID         string     `db:"customer_id"`
	MerchantID         string     `db:"merchant_id"`
	Timestamp          time.Time  `db:"timestamp"`
	ProcessingStatus   string     `db:"processing_status"`
	ProcessedTimestamp *time.Time `db:"processed_timestamp"`
}

func (r rowRecord) toRow() (types.TransactionRow, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return types.TransactionRow{}, fmt.Errorf("row %s has invalid amount %q: %w", r.ID, r.Amount, err)
	}
	return types.TransactionRow{
		ID:                 r.ID,
		TransactionID:      r.TransactionID,
		Amount:             amount,
		Currency:           r.Currency,
		PaymentMethod:      r.PaymentMethod,
		Status:             r.Status,
		CustomerID:         r.CustomerID,
		MerchantID:         r.MerchantID,
		Timestamp:          r.Timestamp,
		ProcessingStatus:   types.RowStatus(r.ProcessingStatus),
		ProcessedTimestamp: r.ProcessedTimestamp,
	}, nil
}

// FindUnprocessed implements Store.
func (s *PostgresStore) FindUnprocessed(ctx context.Context) ([]types.TransactionRow, error) {
	const op = "transactions.FindUnprocessed"

	rows, err := s.db.Query(ctx, FindByStatusQuery, string(types.RowUnprocessed))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var records []rowRecord
	if s.strategy == StrategyRaw {
		records, err = scanRows(rows)
	} else {
		records, err = pgx.CollectRows(rows, pgx.RowToStructByName[rowRecord])
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]types.TransactionRow, 0, len(records))
	for _, r := range records {
		row, err := r.toRow()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, row)
	}
	s.logger.Debug().Int("count", len(result)).Msg("Fetched unprocessed rows.")
	return result, nil
}

// scanRows is the hand-written counterpart of RowToStructByName.
func scanRows(rows pgx.Rows) ([]rowRecord, error) {
	defer rows.Close()
	var records []rowRecord
	for rows.Next() {
		var r rowRecord
		if err := rows.Scan(
			&r.ID,
			&r.TransactionID,
			&r.Amount,
			&r.Currency,
			&r.PaymentMethod,
			&r.Status,
			&r.CustomerID,
			&r.MerchantID,
			&r.Timestamp,
			&r.ProcessingStatus,
			&r.ProcessedTimestamp,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpdateStatus implements Store.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status types.RowStatus, ts time.Time) (int64, error) {
	const op = "transactions.UpdateStatus"
	tag, err := s.db.Exec(ctx, UpdateStatusQuery, string(status), ts, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

// ClaimRow implements Store.
func (s *PostgresStore) ClaimRow(ctx context.Context, id string, now time.Time) (bool, error) {
	const op = "transactions.ClaimRow"
	tag, err := s.db.Exec(ctx, ClaimQuery, string(types.RowInProgress), now, id, string(types.RowUnprocessed))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseRow implements Store.
func (s *PostgresStore) ReleaseRow(ctx context.Context, id string) error {
	const op = "transactions.ReleaseRow"
	if _, err := s.db.Exec(ctx, ReleaseQuery, string(types.RowUnprocessed), id, string(types.RowInProgress)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ReclaimExpired implements Store.
func (s *PostgresStore) ReclaimExpired(ctx context.Context, before time.Time) (int64, error) {
	const op = "transactions.ReclaimExpired"
	tag, err := s.db.Exec(ctx, ReclaimExpiredQuery, string(types.RowUnprocessed), string(types.RowInProgress), before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Warn().Int64("rows", n).Time("claimed_before", before).Msg("Returned expired claims to UNPROCESSED.")
	}
	return tag.RowsAffected(), nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, row types.TransactionRow) error {
	const op = "transactions.Insert"
	status := row.ProcessingStatus
	if status == "" {
		status = types.RowUnprocessed
	}
	_, err := s.db.Exec(ctx, InsertQuery,
		row.ID,
		row.TransactionID,
		row.Amount.String(),
		row.Currency,
		row.PaymentMethod,
		row.Status,
		row.CustomerID,
		row.MerchantID,
		row.Timestamp,
		string(status),
		row.ProcessedTimestamp,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
