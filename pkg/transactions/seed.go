package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SeedConfig controls how many development rows Seeder writes.
type SeedConfig struct {
	Unprocessed int
	Processed   int
	// Random fills amounts, currencies and ids with generated data instead of
	// the fixed sample set.
	Random bool
	// Seed makes Random output reproducible when non-zero.
	Seed int64
}

// DefaultSeedConfig matches the sample data shipped with local environments.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{Unprocessed: 5, Processed: 3}
}

// Seeder inserts sample transaction rows for local development.
type Seeder struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(store Store, logger zerolog.Logger) *Seeder {
	return &Seeder{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "Seeder").Logger(),
	}
}

// Seed inserts the configured rows and returns how many were written.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (int, error) {
	rows := s.Rows(cfg)
	for i, row := range rows {
		if err := s.store.Insert(ctx, row); err != nil {
			return i, fmt.Errorf("failed to seed row %s: %w", row.TransactionID, err)
		}
	}
	s.logger.Info().Int("unprocessed", cfg.Unprocessed).Int("processed", cfg.Processed).Msg("Seeded transactions.")
	return len(rows), nil
}

// Rows builds the rows Seed would insert.
func (s *Seeder) Rows(cfg SeedConfig) []types.TransactionRow {
	now := s.now()
	var faker *gofakeit.Faker
	if cfg.Random {
		faker = gofakeit.New(cfg.Seed)
	}

	rows := make([]types.TransactionRow, 0, cfg.Unprocessed+cfg.Processed)
	for i := 0; i < cfg.Unprocessed; i++ {
		row := types.TransactionRow{
			ID:               newRowID(faker),
			TransactionID:    fmt.Sprintf("TXN-%d", 1000+i),
			Amount:           decimal.NewFromInt(int64(100 + i*10)),
			Currency:         "USD",
			PaymentMethod:    "CREDIT_CARD",
			Status:           "COMPLETED",
			CustomerID:       fmt.Sprintf("CUST-%d", 2000+i),
			MerchantID:       fmt.Sprintf("MERCH-%d", 3000+i),
			Timestamp:        now,
			ProcessingStatus: types.RowUnprocessed,
		}
		randomise(faker, &row)
		rows = append(rows, row)
	}
	for i := 0; i < cfg.Processed; i++ {
		processedAt := now
		row := types.TransactionRow{
			ID:                 newRowID(faker),
			TransactionID:      fmt.Sprintf("TXN-%d", 2000+i),
			Amount:             decimal.NewFromInt(int64(200 + i*20)),
			Currency:           "EUR",
			PaymentMethod:      "BANK_TRANSFER",
			Status:             "COMPLETED",
			CustomerID:         fmt.Sprintf("CUST-%d", 4000+i),
			MerchantID:         fmt.Sprintf("MERCH-%d", 5000+i),
			Timestamp:          now.Add(-time.Hour),
			ProcessingStatus:   types.RowProcessed,
			ProcessedTimestamp: &processedAt,
		}
		randomise(faker, &row)
		rows = append(rows, row)
	}
	return rows
}

func newRowID(faker *gofakeit.Faker) string {
	if faker != nil {
		return faker.UUID()
	}
	return gofakeit.UUID()
}

var (
	seedCurrencies = []string{"USD", "EUR", "GBP"}
	seedMethods    = []string{"CREDIT_CARD", "DEBIT_CARD", "BANK_TRANSFER", "ACH", "PAYPAL", "VENMO", "CRYPTO"}
	seedCustomers  = []string{"VIP", "BIZ", "CUST"}
	seedMerchants  = []string{"RETAIL", "FOOD", "TRAVEL", "MERCH"}
)

// randomise overwrites the business fields so seeded rows exercise every rule.
func randomise(faker *gofakeit.Faker, row *types.TransactionRow) {
	if faker == nil {
		return
	}
	row.Amount = decimal.NewFromFloat(faker.Price(1, 15000)).Round(2)
	row.Currency = faker.RandomString(seedCurrencies)
	row.PaymentMethod = faker.RandomString(seedMethods)
	row.CustomerID = fmt.Sprintf("%s-%d", faker.RandomString(seedCustomers), faker.Number(1000, 9999))
	row.MerchantID = fmt.Sprintf("%s-%d", faker.RandomString(seedMerchants), faker.Number(1000, 9999))
	row.Timestamp = faker.DateRange(row.Timestamp.Add(-24*time.Hour), row.Timestamp)
}
