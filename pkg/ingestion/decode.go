package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/shopspring/decimal"
)

// ErrorStatus is the status given to records synthesised from undecodable payloads.
const ErrorStatus = "ERROR"

// errorTransactionPrefix marks synthetic transaction ids.
const errorTransactionPrefix = "ERROR-"

// timestampLayouts are tried in order. Producers send either RFC 3339 or a
// zone-less local date-time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// paymentWire is the inbound JSON shape. Timestamp is kept as text so that
// zone-less values can be accepted.
type paymentWire struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        string          `json:"status"`
	CustomerID    string          `json:"customerId"`
	MerchantID    string          `json:"merchantId"`
	Timestamp     string          `json:"timestamp"`
}

// DecodePayment parses a queue payload. A missing id is replaced with a new
// UUID and a missing timestamp with now.
func DecodePayment(payload []byte, now time.Time) (types.PaymentRecord, error) {
	var w paymentWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return types.PaymentRecord{}, fmt.Errorf("decode payment: %w", err)
	}

	record := types.PaymentRecord{
		ID:            w.ID,
		TransactionID: w.TransactionID,
		Amount:        w.Amount,
		Currency:      w.Currency,
		PaymentMethod: w.PaymentMethod,
		Status:        w.Status,
		CustomerID:    w.CustomerID,
		MerchantID:    w.MerchantID,
		Timestamp:     now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if ts := strings.TrimSpace(w.Timestamp); ts != "" {
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return types.PaymentRecord{}, fmt.Errorf("decode payment %s: %w", record.ID, err)
		}
		record.Timestamp = parsed
	}
	return record, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ErrorRecord builds the visible stand-in for a payload that could not be decoded.
func ErrorRecord(now time.Time) types.PaymentRecord {
	return types.PaymentRecord{
		ID:            uuid.NewString(),
		TransactionID: errorTransactionPrefix + uuid.NewString(),
		Status:        ErrorStatus,
		Timestamp:     now,
	}
}
