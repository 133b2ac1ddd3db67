package transactions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/transactions"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is a Store kept in a slice.
type memoryStore struct {
	mu   sync.Mutex
	rows []types.TransactionRow
}

func (m *memoryStore) FindUnprocessed(_ context.Context) ([]types.TransactionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.TransactionRow
	for _, r := range m.rows {
		if r.ProcessingStatus == types.RowUnprocessed {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, _ string, _ types.RowStatus, _ time.Time) (int64, error) {
	return 0, nil
}
func (m *memoryStore) ClaimRow(_ context.Context, _ string, _ time.Time) (bool, error) { return true, nil }
func (m *memoryStore) ReleaseRow(_ context.Context, _ string) error                    { return nil }
func (m *memoryStore) ReclaimExpired(_ context.Context, _ time.Time) (int64, error)    { return 0, nil }

func (m *memoryStore) Insert(_ context.Context, row types.TransactionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func TestSeeder_DefaultRows(t *testing.T) {
	store := &memoryStore{}
	seeder := transactions.NewSeeder(store, zerolog.Nop())

	n, err := seeder.Seed(context.Background(), transactions.DefaultSeedConfig())
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	unprocessed, err := store.FindUnprocessed(context.Background())
	require.NoError(t, err)
	require.Len(t, unprocessed, 5)
	assert.Equal(t, "TXN-1000", unprocessed[0].TransactionID)
	assert.Equal(t, "140", unprocessed[4].Amount.String())
	assert.Equal(t, "CUST-2004", unprocessed[4].CustomerID)

	processed := store.rows[5:]
	for _, r := range processed {
		assert.Equal(t, types.RowProcessed, r.ProcessingStatus)
		assert.Equal(t, "EUR", r.Currency)
		assert.NotNil(t, r.ProcessedTimestamp)
	}
	assert.Equal(t, "TXN-2002", processed[2].TransactionID)
	assert.Equal(t, "240", processed[2].Amount.String())
}

func TestSeeder_RandomRowsAreReproducible(t *testing.T) {
	seeder := transactions.NewSeeder(&memoryStore{}, zerolog.Nop())
	cfg := transactions.SeedConfig{Unprocessed: 10, Random: true, Seed: 42}

	a := seeder.Rows(cfg)
	b := seeder.Rows(cfg)
	require.Len(t, a, 10)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.True(t, a[i].Amount.Equal(b[i].Amount))
		assert.Equal(t, a[i].CustomerID, b[i].CustomerID)
		assert.True(t, a[i].Amount.IsPositive())
	}
}
