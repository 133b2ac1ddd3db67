package sink

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore sink.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// firestoreDoc is the stored shape of an enriched payment. Amount is kept as a
// decimal string so no precision is lost to float conversion.
type firestoreDoc struct {
	ID                  string            `firestore:"id"`
	TransactionID       string            `firestore:"transactionId"`
	Amount              string            `firestore:"amount"`
	Currency            string            `firestore:"currency"`
	PaymentMethod       string            `firestore:"paymentMethod"`
	Status              string            `firestore:"status"`
	CustomerID          string            `firestore:"customerId"`
	MerchantID          string            `firestore:"merchantId"`
	Timestamp           time.Time         `firestore:"timestamp"`
	SourceQueue         string            `firestore:"sourceQueue"`
	EnrichmentID        string            `firestore:"enrichmentId"`
	AdditionalData      map[string]string `firestore:"additionalData"`
	RiskScore           string            `firestore:"riskScore"`
	FraudStatus         string            `firestore:"fraudStatus"`
	EnrichmentTimestamp time.Time         `firestore:"enrichmentTimestamp"`
	ProcessingStatus    string            `firestore:"processingStatus"`
	ProcessingTimeMs    int64             `firestore:"processingTimeMs"`
}

// FirestoreSink writes enriched payments to a Firestore collection using the
// composite key as document id.
type FirestoreSink struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreSink creates a FirestoreSink. The client's lifecycle is managed by the caller.
func NewFirestoreSink(cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreSink, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("firestore collection name is required")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreSink initialized.")

	return &FirestoreSink{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreSink").Logger(),
	}, nil
}

// Put writes the record document.
func (s *FirestoreSink) Put(ctx context.Context, record *types.EnrichedPaymentRecord) error {
	docID := Key(record.ID, record.TransactionID)
	_, err := s.client.Collection(s.collectionName).Doc(docID).Set(ctx, toFirestoreDoc(record))
	if err != nil {
		s.logger.Error().Err(err).Str("doc_id", docID).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", docID, err)
	}
	s.logger.Debug().Str("doc_id", docID).Msg("Successfully wrote record to Firestore.")
	return nil
}

// Get reads a record document.
func (s *FirestoreSink) Get(ctx context.Context, id, transactionID string) (*types.EnrichedPaymentRecord, error) {
	docID := Key(id, transactionID)
	docSnap, err := s.client.Collection(s.collectionName).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		s.logger.Error().Err(err).Str("doc_id", docID).Msg("Failed to get document from Firestore.")
		return nil, fmt.Errorf("firestore get for %s: %w", docID, err)
	}

	var doc firestoreDoc
	if err := docSnap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore DataTo for %s: %w", docID, err)
	}
	return fromFirestoreDoc(doc)
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreSink) Close() error {
	return nil
}

func toFirestoreDoc(r *types.EnrichedPaymentRecord) firestoreDoc {
	return firestoreDoc{
		ID:                  r.ID,
		TransactionID:       r.TransactionID,
		Amount:              r.Amount.String(),
		Currency:            r.Currency,
		PaymentMethod:       r.PaymentMethod,
		Status:              r.Status,
		CustomerID:          r.CustomerID,
		MerchantID:          r.MerchantID,
		Timestamp:           r.Timestamp,
		SourceQueue:         r.SourceQueue,
		EnrichmentID:        r.EnrichmentID,
		AdditionalData:      r.AdditionalData,
		RiskScore:           string(r.RiskScore),
		FraudStatus:         string(r.FraudStatus),
		EnrichmentTimestamp: r.EnrichmentTimestamp,
		ProcessingStatus:    string(r.ProcessingStatus),
		ProcessingTimeMs:    r.ProcessingTimeMs,
	}
}

func fromFirestoreDoc(d firestoreDoc) (*types.EnrichedPaymentRecord, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", d.Amount, err)
	}
	return &types.EnrichedPaymentRecord{
		PaymentRecord: types.PaymentRecord{
			ID:            d.ID,
			TransactionID: d.TransactionID,
			Amount:        amount,
			Currency:      d.Currency,
			PaymentMethod: d.PaymentMethod,
			Status:        d.Status,
			CustomerID:    d.CustomerID,
			MerchantID:    d.MerchantID,
			Timestamp:     d.Timestamp,
			SourceQueue:   d.SourceQueue,
		},
		EnrichmentID:        d.EnrichmentID,
		AdditionalData:      d.AdditionalData,
		RiskScore:           types.RiskScore(d.RiskScore),
		FraudStatus:         types.FraudStatus(d.FraudStatus),
		EnrichmentTimestamp: d.EnrichmentTimestamp,
		ProcessingStatus:    types.ProcessingStatus(d.ProcessingStatus),
		ProcessingTimeMs:    d.ProcessingTimeMs,
	}, nil
}
