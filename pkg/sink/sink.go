package sink

import (
	"context"
	"errors"
	"net/url"

	"github.com/illmade-knight/go-payflow/pkg/types"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("enriched payment not found")

// Sink is the durable, append-only destination for enriched payments.
// Records are keyed by (ID, TransactionID).
type Sink interface {
	// Put writes a record. An existing record with the same key is replaced.
	Put(ctx context.Context, record *types.EnrichedPaymentRecord) error
	// Get returns the record for the key or ErrNotFound.
	Get(ctx context.Context, id, transactionID string) (*types.EnrichedPaymentRecord, error)
	Close() error
}

// Key builds the single string key used by backends without composite keys.
// Each part is path-escaped, so neither can contain the '#' separator or a '/'
// and distinct pairs never share a key.
func Key(id, transactionID string) string {
	return url.PathEscape(id) + "#" + url.PathEscape(transactionID)
}
