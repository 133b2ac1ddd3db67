package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DynamoDBAPI is the subset of *dynamodb.Client used by DynamoDBSink.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoDBConfig holds configuration for the DynamoDB sink.
type DynamoDBConfig struct {
	TableName string
}

// dynamoItem is the stored shape of an enriched payment. The table has
// partition key "id" and sort key "transactionId".
type dynamoItem struct {
	ID                  string            `dynamodbav:"id"`
	TransactionID       string            `dynamodbav:"transactionId"`
	Amount              string            `dynamodbav:"amount"`
	Currency            string            `dynamodbav:"currency,omitempty"`
	PaymentMethod       string            `dynamodbav:"paymentMethod,omitempty"`
	Status              string            `dynamodbav:"status,omitempty"`
	CustomerID          string            `dynamodbav:"customerId,omitempty"`
	MerchantID          string            `dynamodbav:"merchantId,omitempty"`
	Timestamp           time.Time         `dynamodbav:"timestamp"`
	SourceQueue         string            `dynamodbav:"sourceQueue,omitempty"`
	EnrichmentID        string            `dynamodbav:"enrichmentId"`
	AdditionalData      map[string]string `dynamodbav:"additionalData"`
	RiskScore           string            `dynamodbav:"riskScore"`
	FraudStatus         string            `dynamodbav:"fraudStatus"`
	EnrichmentTimestamp time.Time         `dynamodbav:"enrichmentTimestamp"`
	ProcessingStatus    string            `dynamodbav:"processingStatus"`
	ProcessingTimeMs    int64             `dynamodbav:"processingTimeMs"`
}

// DynamoDBSink persists enriched payments in a DynamoDB table.
type DynamoDBSink struct {
	client    DynamoDBAPI
	tableName string
	logger    zerolog.Logger
}

// NewDynamoDBSink creates a DynamoDBSink for the configured table.
func NewDynamoDBSink(cfg *DynamoDBConfig, client DynamoDBAPI, logger zerolog.Logger) (*DynamoDBSink, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client cannot be nil")
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	return &DynamoDBSink{
		client:    client,
		tableName: cfg.TableName,
		logger:    logger.With().Str("component", "DynamoDBSink").Str("table", cfg.TableName).Logger(),
	}, nil
}

// Put writes the record with PutItem.
func (s *DynamoDBSink) Put(ctx context.Context, record *types.EnrichedPaymentRecord) error {
	item, err := attributevalue.MarshalMap(toDynamoItem(record))
	if err != nil {
		return fmt.Errorf("marshal payment %s: %w", record.ID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("payment_id", record.ID).Msg("Failed to save payment to DynamoDB.")
		return fmt.Errorf("dynamodb put for %s: %w", record.ID, err)
	}
	s.logger.Debug().Str("payment_id", record.ID).Msg("Successfully saved payment to DynamoDB.")
	return nil
}

// Get reads a record by its composite key.
func (s *DynamoDBSink) Get(ctx context.Context, id, transactionID string) (*types.EnrichedPaymentRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"id":            &ddbtypes.AttributeValueMemberS{Value: id},
			"transactionId": &ddbtypes.AttributeValueMemberS{Value: transactionID},
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("payment_id", id).Msg("Failed to retrieve payment from DynamoDB.")
		return nil, fmt.Errorf("dynamodb get for %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payment %s: %w", id, err)
	}
	return fromDynamoItem(item)
}

// Close is a no-op; the AWS client holds no resources that need releasing.
func (s *DynamoDBSink) Close() error { return nil }

func toDynamoItem(r *types.EnrichedPaymentRecord) dynamoItem {
	return dynamoItem{
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

func fromDynamoItem(d dynamoItem) (*types.EnrichedPaymentRecord, error) {
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
