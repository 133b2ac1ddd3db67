package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/archive"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/shopspring/decimal"
)

// --- Mock GCS Client Components ---

type mockGCSWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	err    error
}

func (m *mockGCSWriter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return nil
}

func (m *mockGCSWriter) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Bytes()
}

type mockGCSObjectHandle struct {
	writer *mockGCSWriter
}

func (m *mockGCSObjectHandle) NewWriter(_ context.Context) io.WriteCloser {
	return m.writer
}

type mockGCSBucketHandle struct {
	mu       sync.Mutex
	objects  map[string]*mockGCSObjectHandle
	writeErr error
}

func (m *mockGCSBucketHandle) Object(name string) archive.GCSObjectHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]*mockGCSObjectHandle)
	}
	if _, ok := m.objects[name]; !ok {
		m.objects[name] = &mockGCSObjectHandle{writer: &mockGCSWriter{err: m.writeErr}}
	}
	return m.objects[name]
}

type mockGCSClient struct {
	bucket *mockGCSBucketHandle
}

func newMockGCSClient(writeErr error) *mockGCSClient {
	return &mockGCSClient{bucket: &mockGCSBucketHandle{writeErr: writeErr}}
}

func (m *mockGCSClient) Bucket(_ string) archive.GCSBucketHandle {
	return m.bucket
}

// --- Mock Writer ---

// MockWriter records every batch it is given.
type MockWriter struct {
	mu      sync.Mutex
	batches [][]*archive.Record
	err     error
	closed  bool
}

func (m *MockWriter) WriteBatch(_ context.Context, records []*archive.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, records)
	return nil
}

func (m *MockWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockWriter) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *MockWriter) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func enrichedRecord(id, source string, at time.Time) *types.EnrichedPaymentRecord {
	rec := types.NewEnrichedPaymentRecord(types.PaymentRecord{
		ID:            id,
		TransactionID: "TXN-" + id,
		Amount:        decimal.RequireFromString("1500.25"),
		Currency:      "USD",
		PaymentMethod: "PAYPAL",
		SourceQueue:   source,
		Timestamp:     at,
	})
	rec.EnrichmentID = "enr-" + id
	rec.RiskScore = types.RiskHigh
	rec.FraudStatus = types.FraudClear
	rec.EnrichmentTimestamp = at
	rec.AdditionalData = map[string]string{
		"paymentChannel":   "DIGITAL_WALLET",
		"customerCategory": "VIP",
		"merchantCategory": "RETAIL",
	}
	return rec
}
