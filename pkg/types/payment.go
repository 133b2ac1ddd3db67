package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskScore is the coarse risk band derived from a payment amount.
type RiskScore string

const (
	RiskLow    RiskScore = "LOW"
	RiskMedium RiskScore = "MEDIUM"
	RiskHigh   RiskScore = "HIGH"
)

// FraudStatus is the outcome of the fraud screening rule.
type FraudStatus string

const (
	FraudClear          FraudStatus = "CLEAR"
	FraudReviewRequired FraudStatus = "REVIEW_REQUIRED"
	FraudSuspicious     FraudStatus = "SUSPICIOUS"
)

// ProcessingStatus describes an enriched record. Only COMPLETED is ever written.
type ProcessingStatus string

const ProcessingCompleted ProcessingStatus = "COMPLETED"

// RowStatus is the processing state of a relational transaction row.
type RowStatus string

const (
	RowUnprocessed RowStatus = "UNPROCESSED"
	// RowInProgress is only used when the poller claims rows before publishing.
	RowInProgress RowStatus = "IN_PROGRESS"
	RowProcessed  RowStatus = "PROCESSED"
)

// PaymentRecord is the raw inbound payment as decoded from a queue message.
// Absent string fields are empty.
type PaymentRecord struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        string          `json:"status"`
	CustomerID    string          `json:"customerId"`
	MerchantID    string          `json:"merchantId"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceQueue   string          `json:"sourceQueue,omitempty"`
}

// EnrichedPaymentRecord is a PaymentRecord plus the attributes derived by the
// enrichment rules. It is keyed by (ID, TransactionID) in the sink.
type EnrichedPaymentRecord struct {
	PaymentRecord

	EnrichmentID        string            `json:"enrichmentId"`
	AdditionalData      map[string]string `json:"additionalData"`
	RiskScore           RiskScore         `json:"riskScore"`
	FraudStatus         FraudStatus       `json:"fraudStatus"`
	EnrichmentTimestamp time.Time         `json:"enrichmentTimestamp"`
	ProcessingStatus    ProcessingStatus  `json:"processingStatus"`
	ProcessingTimeMs    int64             `json:"processingTimeMs"`
}

// NewEnrichedPaymentRecord copies the base fields of a payment into a fresh
// enriched record. Enrichment fields are left for the caller to fill.
func NewEnrichedPaymentRecord(base PaymentRecord) *EnrichedPaymentRecord {
	return &EnrichedPaymentRecord{
		PaymentRecord: PaymentRecord{
			ID:            base.ID,
			TransactionID: base.TransactionID,
			Amount:        base.Amount,
			Currency:      base.Currency,
			PaymentMethod: base.PaymentMethod,
			Status:        base.Status,
			CustomerID:    base.CustomerID,
			MerchantID:    base.MerchantID,
			Timestamp:     base.Timestamp,
			SourceQueue:   base.SourceQueue,
		},
		AdditionalData: make(map[string]string),
	}
}

// TransactionRow mirrors a row of the externally owned transactions table.
type TransactionRow struct {
	ID                 string          `json:"id"`
	TransactionID      string          `json:"transactionId"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	PaymentMethod      string          `json:"paymentMethod"`
	Status             string          `json:"status"`
	CustomerID         string          `json:"customerId"`
	MerchantID         string          `json:"merchantId"`
	Timestamp          time.Time       `json:"timestamp"`
	ProcessingStatus   RowStatus       `json:"processingStatus"`
	ProcessedTimestamp *time.Time      `json:"processedTimestamp"`
}
