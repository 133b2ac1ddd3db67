package archive

import (
	"fmt"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/enrichment"
	"github.com/illmade-knight/go-payflow/pkg/types"
)

// Record is the flattened, analytics-friendly form of an enriched payment.
// Amount is kept as text so no precision is lost in either backend.
type Record struct {
	ID                  string    `json:"id" bigquery:"id"`
	TransactionID       string    `json:"transactionId" bigquery:"transaction_id"`
	Amount              string    `json:"amount" bigquery:"amount"`
	Currency            string    `json:"currency" bigquery:"currency"`
	PaymentMethod       string    `json:"paymentMethod" bigquery:"payment_method"`
	Status              string    `json:"status" bigquery:"status"`
	CustomerID          string    `json:"customerId" bigquery:"customer_id"`
	MerchantID          string    `json:"merchantId" bigquery:"merchant_id"`
	Timestamp           time.Time `json:"timestamp" bigquery:"timestamp"`
	SourceQueue         string    `json:"sourceQueue" bigquery:"source_queue"`
	EnrichmentID        string    `json:"enrichmentId" bigquery:"enrichment_id"`
	RiskScore           string    `json:"riskScore" bigquery:"risk_score"`
	FraudStatus         string    `json:"fraudStatus" bigquery:"fraud_status"`
	PaymentChannel      string    `json:"paymentChannel" bigquery:"payment_channel"`
	CustomerCategory    string    `json:"customerCategory" bigquery:"customer_category"`
	MerchantCategory    string    `json:"merchantCategory" bigquery:"merchant_category"`
	EnrichmentTimestamp time.Time `json:"enrichmentTimestamp" bigquery:"enrichment_timestamp"`
	ProcessingTimeMs    int64     `json:"processingTimeMs" bigquery:"processing_time_ms"`
}

// FromEnriched flattens an enriched payment.
func FromEnriched(r *types.EnrichedPaymentRecord) *Record {
	return &Record{
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
		RiskScore:           string(r.RiskScore),
		FraudStatus:         string(r.FraudStatus),
		PaymentChannel:      r.AdditionalData[enrichment.KeyPaymentChannel],
		CustomerCategory:    r.AdditionalData[enrichment.KeyCustomerCategory],
		MerchantCategory:    r.AdditionalData[enrichment.KeyMerchantCategory],
		EnrichmentTimestamp: r.EnrichmentTimestamp,
		ProcessingTimeMs:    r.ProcessingTimeMs,
	}
}

// BatchKey groups records by enrichment day and source queue,
// e.g. "2025/06/13/queue1".
func (r *Record) BatchKey() string {
	source := r.SourceQueue
	if source == "" {
		source = "unknown"
	}
	ts := r.EnrichmentTimestamp.UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%s", ts.Year(), ts.Month(), ts.Day(), source)
}
