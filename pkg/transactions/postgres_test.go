package transactions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/transactions"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rowColumns = []string{
	"id", "transaction_id", "amount", "currency", "payment_method", "status",
	"customer_id", "merchant_id", "timestamp", "processing_status", "processed_timestamp",
}

func unprocessedRows(ts time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(rowColumns).
		AddRow("r-1", "TXN-1000", "100.00", "USD", "CREDIT_CARD", "COMPLETED", "CUST-2000", "MERCH-3000", ts, "UNPROCESSED", (*time.Time)(nil)).
		AddRow("r-2", "TXN-1001", "6000.50", "EUR", "PAYPAL", "PENDING", "VIP-1", "FOOD-1", ts, "UNPROCESSED", (*time.Time)(nil))
}

func newMockStore(t *testing.T, strategy transactions.QueryStrategy) (*transactions.PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := transactions.NewPostgresStore(mock, strategy, zerolog.Nop())
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStore_FindUnprocessed_StrategiesAgree(t *testing.T) {
	ts := time.Date(2025, 6, 13, 10, 0, 0, 0, time.UTC)
	results := make(map[transactions.QueryStrategy][]types.TransactionRow)

	for _, strategy := range []transactions.QueryStrategy{transactions.StrategyMapped, transactions.StrategyRaw} {
		t.Run(string(strategy), func(t *testing.T) {
			store, mock := newMockStore(t, strategy)
			mock.ExpectQuery("SELECT .* FROM transactions WHERE processing_status = \\$1").
				WithArgs("UNPROCESSED").
				WillReturnRows(unprocessedRows(ts))

			rows, err := store.FindUnprocessed(context.Background())
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "r-1", rows[0].ID)
			assert.True(t, decimal.RequireFromString("100").Equal(rows[0].Amount))
			assert.Equal(t, types.RowUnprocessed, rows[1].ProcessingStatus)
			assert.True(t, decimal.RequireFromString("6000.5").Equal(rows[1].Amount))
			assert.Nil(t, rows[1].ProcessedTimestamp)
			assert.NoError(t, mock.ExpectationsWereMet())
			results[strategy] = rows
		})
	}

	assert.Equal(t, results[transactions.StrategyMapped], results[transactions.StrategyRaw])
}

func TestPostgresStore_FindUnprocessed_Empty(t *testing.T) {
	store, mock := newMockStore(t, transactions.StrategyMapped)
	mock.ExpectQuery("SELECT").WithArgs("UNPROCESSED").WillReturnRows(pgxmock.NewRows(rowColumns))

	rows, err := store.FindUnprocessed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindUnprocessed_QueryError(t *testing.T) {
	store, mock := newMockStore(t, transactions.StrategyRaw)
	dbErr := errors.New("connection reset")
	mock.ExpectQuery("SELECT").WithArgs("UNPROCESSED").WillReturnError(dbErr)

	_, err := store.FindUnprocessed(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
}

func TestPostgresStore_UpdateStatus(t *testing.T) {
	store, mock := newMockStore(t, transactions.StrategyMapped)
	ts := time.Now()
	mock.ExpectExec("UPDATE transactions SET processing_status = \\$1, processed_timestamp = \\$2 WHERE id = \\$3").
		WithArgs("PROCESSED", ts, "r-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE transactions").
		WithArgs("PROCESSED", ts, "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := store.UpdateStatus(context.Background(), "r-1", types.RowProcessed, ts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.UpdateStatus(context.Background(), "gone", types.RowProcessed, ts)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimAndRelease(t *testing.T) {
	store, mock := newMockStore(t, transactions.StrategyMapped)
	now := time.Now()
	mock.ExpectExec("UPDATE transactions SET processing_status = \\$1, claimed_at = \\$2 WHERE id = \\$3 AND processing_status = \\$4").
		WithArgs("IN_PROGRESS", now, "r-1", "UNPROCESSED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE transactions").
		WithArgs("IN_PROGRESS", now, "r-2", "UNPROCESSED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE transactions SET processing_status = \\$1, claimed_at = NULL WHERE id = \\$2").
		WithArgs("UNPROCESSED", "r-1", "IN_PROGRESS").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	claimed, err := store.ClaimRow(context.Background(), "r-1", now)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimRow(context.Background(), "r-2", now)
	require.NoError(t, err)
	assert.False(t, claimed, "a row owned elsewhere is not claimed")

	require.NoError(t, store.ReleaseRow(context.Background(), "r-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReclaimExpired(t *testing.T) {
	store, mock := newMockStore(t, transactions.StrategyMapped)
	cutoff := time.Now().Add(-5 * time.Minute)
	mock.ExpectExec("UPDATE transactions SET processing_status = \\$1, claimed_at = NULL WHERE processing_status = \\$2 AND \\(claimed_at IS NULL OR claimed_at < \\$3\\)").
		WithArgs("UNPROCESSED", "IN_PROGRESS", cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("UPDATE transactions").
		WithArgs("UNPROCESSED", "IN_PROGRESS", cutoff).
		WillReturnError(errors.New("connection reset"))

	n, err := store.ReclaimExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.ReclaimExpired(context.Background(), cutoff)
	assert.ErrorContains(t, err, "transactions.ReclaimExpired")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert(t *testing.T) {
	store, mock := newMockStore(t, transactions.StrategyMapped)
	ts := time.Now()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("r-1", "TXN-1", "12.5", "USD", "ACH", "COMPLETED", "BIZ-1", "TRAVEL-1", ts, "UNPROCESSED", (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Insert(context.Background(), types.TransactionRow{
		ID:            "r-1",
		TransactionID: "TXN-1",
		Amount:        decimal.RequireFromString("12.50"),
		Currency:      "USD",
		PaymentMethod: "ACH",
		Status:        "COMPLETED",
		CustomerID:    "BIZ-1",
		MerchantID:    "TRAVEL-1",
		Timestamp:     ts,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStore_Validation(t *testing.T) {
	_, err := transactions.NewPostgresStore(nil, transactions.StrategyMapped, zerolog.Nop())
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = transactions.NewPostgresStore(mock, "orm", zerolog.Nop())
	assert.Error(t, err)
}
