package sink

import (
	"context"
	"sync"

	"github.com/illmade-knight/go-payflow/pkg/types"
)

// InMemorySink is a thread-safe Sink backed by a map. It stores copies so that
// callers cannot mutate a record after it has been written.
type InMemorySink struct {
	mu   sync.RWMutex
	data map[string]types.EnrichedPaymentRecord
}

// NewInMemorySink creates an empty in-memory sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{
		data: make(map[string]types.EnrichedPaymentRecord),
	}
}

// Put stores a copy of the record.
func (s *InMemorySink) Put(_ context.Context, record *types.EnrichedPaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[Key(record.ID, record.TransactionID)] = copyRecord(record)
	return nil
}

// Get retrieves a copy of the record for the key.
func (s *InMemorySink) Get(_ context.Context, id, transactionID string) (*types.EnrichedPaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[Key(id, transactionID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyRecord(&rec)
	return &out, nil
}

// Len returns the number of stored records.
func (s *InMemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// All returns copies of every stored record in no particular order.
func (s *InMemorySink) All() []types.EnrichedPaymentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.EnrichedPaymentRecord, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, copyRecord(&rec))
	}
	return out
}

// Close is a no-op.
func (s *InMemorySink) Close() error { return nil }

func copyRecord(record *types.EnrichedPaymentRecord) types.EnrichedPaymentRecord {
	out := *record
	if record.AdditionalData != nil {
		out.AdditionalData = make(map[string]string, len(record.AdditionalData))
		for k, v := range record.AdditionalData {
			out.AdditionalData[k] = v
		}
	}
	return out
}
