package enrichment_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/enrichment"
	"github.com/illmade-knight/go-payflow/pkg/sink"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/illmade-knight/go-payflow/pkg/workerpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Mocks ---

// failingSink rejects every write.
type failingSink struct {
	*sink.InMemorySink
	err error
}

func (f *failingSink) Put(_ context.Context, _ *types.EnrichedPaymentRecord) error {
	return f.err
}

// inlineSubmitter runs tasks synchronously on the caller's goroutine.
type inlineSubmitter struct{}

func (inlineSubmitter) Submit(ctx context.Context, task workerpool.Task) error {
	task(ctx)
	return nil
}

// rejectingSubmitter refuses every task.
type rejectingSubmitter struct{}

func (rejectingSubmitter) Submit(_ context.Context, _ workerpool.Task) error {
	return workerpool.ErrPoolStopped
}

type mockArchiver struct {
	mu      sync.Mutex
	records []*types.EnrichedPaymentRecord
}

func (m *mockArchiver) Archive(r *types.EnrichedPaymentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *mockArchiver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type failureRecorder struct {
	mu       sync.Mutex
	failures []error
}

func (f *failureRecorder) handle(_ types.PaymentRecord, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
}

func (f *failureRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}

func testPayment(id string) types.PaymentRecord {
	return types.PaymentRecord{
		ID:            id,
		TransactionID: "TXN-" + id,
		Amount:        dec("1500"),
		Currency:      "USD",
		PaymentMethod: "CREDIT_CARD",
		Status:        "COMPLETED",
		CustomerID:    "VIP-1",
		MerchantID:    "FOOD-1",
		Timestamp:     time.Now(),
		SourceQueue:   "queue1",
	}
}

// --- Test Cases ---

func TestService_Enrich(t *testing.T) {
	ctx := context.Background()
	store := sink.NewInMemorySink()
	archiver := &mockArchiver{}
	fixed := time.Date(2025, 6, 13, 12, 0, 0, 0, time.UTC)

	svc, err := enrichment.NewService(store, inlineSubmitter{}, zerolog.Nop(),
		enrichment.WithArchiver(archiver),
		enrichment.WithClock(func() time.Time { return fixed }),
	)
	require.NoError(t, err)

	payment := testPayment("p-1")
	enriched, err := svc.Enrich(ctx, payment)
	require.NoError(t, err)

	assert.NotEmpty(t, enriched.EnrichmentID)
	assert.Equal(t, types.RiskHigh, enriched.RiskScore)
	assert.Equal(t, types.FraudClear, enriched.FraudStatus)
	assert.Equal(t, types.ProcessingCompleted, enriched.ProcessingStatus)
	assert.Equal(t, fixed, enriched.EnrichmentTimestamp)
	assert.GreaterOrEqual(t, enriched.ProcessingTimeMs, int64(0))
	assert.Equal(t, enrichment.ChannelCard, enriched.AdditionalData[enrichment.KeyPaymentChannel])
	assert.Equal(t, enrichment.CustomerVIP, enriched.AdditionalData[enrichment.KeyCustomerCategory])
	assert.Equal(t, enrichment.MerchantFoodAndBev, enriched.AdditionalData[enrichment.KeyMerchantCategory])

	// Base fields are copied through unchanged.
	assert.Equal(t, payment.ID, enriched.ID)
	assert.Equal(t, payment.TransactionID, enriched.TransactionID)
	assert.True(t, payment.Amount.Equal(enriched.Amount))
	assert.Equal(t, payment.SourceQueue, enriched.SourceQueue)

	stored, err := store.Get(ctx, payment.ID, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, enriched.EnrichmentID, stored.EnrichmentID)
	assert.Equal(t, 1, store.Len(), "exactly one durable write")
	assert.Equal(t, 1, archiver.count())
}

func TestService_Enrich_ReadsClockOnce(t *testing.T) {
	// Arrange
	tick := time.Date(2025, 6, 13, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	svc, err := enrichment.NewService(sink.NewInMemorySink(), inlineSubmitter{}, zerolog.Nop(), enrichment.WithClock(clock))
	require.NoError(t, err)

	// Act
	enriched, err := svc.Enrich(context.Background(), testPayment("p-1"))
	require.NoError(t, err)

	// Assert
	assert.Equal(t,
		enriched.EnrichmentTimestamp.Format("2006-01-02T15:04:05.000000"),
		enriched.AdditionalData[enrichment.KeyProcessingTimestamp])
}

func TestService_Enrich_HighValueUSD(t *testing.T) {
	svc, err := enrichment.NewService(sink.NewInMemorySink(), inlineSubmitter{}, zerolog.Nop())
	require.NoError(t, err)

	payment := testPayment("p-6000")
	payment.Amount = dec("6000")
	enriched, err := svc.Enrich(context.Background(), payment)
	require.NoError(t, err)

	assert.Equal(t, types.RiskHigh, enriched.RiskScore)
	assert.Equal(t, types.FraudReviewRequired, enriched.FraudStatus)
}

func TestService_Enrich_UniqueEnrichmentIDs(t *testing.T) {
	svc, err := enrichment.NewService(sink.NewInMemorySink(), inlineSubmitter{}, zerolog.Nop())
	require.NoError(t, err)

	seen := make(map[string]bool)
	payment := testPayment("same")
	for i := 0; i < 100; i++ {
		enriched, err := svc.Enrich(context.Background(), payment)
		require.NoError(t, err)
		require.NotEmpty(t, enriched.EnrichmentID)
		require.False(t, seen[enriched.EnrichmentID], "duplicate enrichment id")
		seen[enriched.EnrichmentID] = true
	}
}

func TestService_Enrich_WriteFailure(t *testing.T) {
	archiver := &mockArchiver{}
	writeErr := errors.New("table unavailable")
	svc, err := enrichment.NewService(&failingSink{InMemorySink: sink.NewInMemorySink(), err: writeErr}, inlineSubmitter{}, zerolog.Nop(),
		enrichment.WithArchiver(archiver))
	require.NoError(t, err)

	enriched, err := svc.Enrich(context.Background(), testPayment("p-1"))
	require.Error(t, err)
	assert.Nil(t, enriched)
	assert.True(t, errors.Is(err, writeErr))
	assert.Equal(t, 0, archiver.count(), "failed writes are not archived")
}

func TestService_EnrichAsync_WithPool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := workerpool.New(workerpool.Config{NumWorkers: 4, QueueSize: 16}, zerolog.Nop())
	pool.Start(ctx)

	store := sink.NewInMemorySink()
	svc, err := enrichment.NewService(store, pool, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		svc.EnrichAsync(ctx, testPayment(string(rune('a'+i))))
	}

	require.Eventually(t, func() bool {
		return store.Len() == 10
	}, 2*time.Second, 10*time.Millisecond, "all payments should be written")
	require.NoError(t, pool.Stop(context.Background()))
}

func TestService_EnrichAsync_SwallowsWriteFailure(t *testing.T) {
	recorder := &failureRecorder{}
	svc, err := enrichment.NewService(&failingSink{InMemorySink: sink.NewInMemorySink(), err: errors.New("boom")}, inlineSubmitter{}, zerolog.Nop(),
		enrichment.WithFailureHandler(recorder.handle))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		svc.EnrichAsync(context.Background(), testPayment("p-1"))
	})
	assert.Equal(t, 1, recorder.count())
}

func TestService_EnrichAsync_PoolRejection(t *testing.T) {
	recorder := &failureRecorder{}
	store := sink.NewInMemorySink()
	svc, err := enrichment.NewService(store, rejectingSubmitter{}, zerolog.Nop(),
		enrichment.WithFailureHandler(recorder.handle))
	require.NoError(t, err)

	svc.EnrichAsync(context.Background(), testPayment("p-1"))

	assert.Equal(t, 1, recorder.count())
	assert.Equal(t, 0, store.Len())
}

func TestService_EnrichAsync_LogsEachFailureOnce(t *testing.T) {
	errorLines := func(buf *bytes.Buffer) int {
		return strings.Count(buf.String(), `"level":"error"`)
	}

	t.Run("failed write", func(t *testing.T) {
		var buf bytes.Buffer
		recorder := &failureRecorder{}
		svc, err := enrichment.NewService(&failingSink{InMemorySink: sink.NewInMemorySink(), err: errors.New("boom")}, inlineSubmitter{}, zerolog.New(&buf),
			enrichment.WithFailureHandler(recorder.handle))
		require.NoError(t, err)

		svc.EnrichAsync(context.Background(), testPayment("p-1"))

		assert.Equal(t, 1, recorder.count())
		assert.Equal(t, 1, errorLines(&buf), buf.String())
	})

	t.Run("rejected by pool", func(t *testing.T) {
		var buf bytes.Buffer
		recorder := &failureRecorder{}
		svc, err := enrichment.NewService(sink.NewInMemorySink(), rejectingSubmitter{}, zerolog.New(&buf),
			enrichment.WithFailureHandler(recorder.handle))
		require.NoError(t, err)

		svc.EnrichAsync(context.Background(), testPayment("p-1"))

		assert.Equal(t, 1, recorder.count())
		assert.Equal(t, 1, errorLines(&buf), buf.String())
	})
}

func TestNewService_Validation(t *testing.T) {
	_, err := enrichment.NewService(nil, inlineSubmitter{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = enrichment.NewService(sink.NewInMemorySink(), nil, zerolog.Nop())
	assert.Error(t, err)
}
