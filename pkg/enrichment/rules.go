package enrichment

import (
	"strings"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/types"
	"github.com/shopspring/decimal"
)

// Keys written into EnrichedPaymentRecord.AdditionalData.
const (
	KeyProcessingTimestamp = "processingTimestamp"
	KeyPaymentChannel      = "paymentChannel"
	KeyCustomerCategory    = "customerCategory"
	KeyMerchantCategory    = "merchantCategory"
)

// Payment channels.
const (
	ChannelCard          = "CARD"
	ChannelBank          = "BANK"
	ChannelDigitalWallet = "DIGITAL_WALLET"
	ChannelOther         = "OTHER"
	ChannelUnknown       = "UNKNOWN"
)

// Customer categories.
const (
	CustomerVIP      = "VIP"
	CustomerBusiness = "BUSINESS"
	CustomerRegular  = "REGULAR"
	CustomerUnknown  = "UNKNOWN"
)

// Merchant categories.
const (
	MerchantRetail     = "RETAIL"
	MerchantFoodAndBev = "FOOD_AND_BEVERAGE"
	MerchantTravel     = "TRAVEL"
	MerchantOther      = "OTHER"
	MerchantUnknown    = "UNKNOWN"
)

const (
	fraudReviewCurrency  = "USD"
	processingTimeLayout = "2006-01-02T15:04:05.000000"
)

var (
	riskHighThreshold     = decimal.NewFromInt(1000)
	riskMediumThreshold   = decimal.NewFromInt(500)
	fraudReviewThreshold  = decimal.NewFromInt(5000)
	fraudSuspectThreshold = decimal.NewFromInt(10000)
)

// CalculateRiskScore bands a payment amount: above 1000 is HIGH, above 500 is
// MEDIUM, anything else is LOW.
func CalculateRiskScore(amount decimal.Decimal) types.RiskScore {
	switch {
	case amount.GreaterThan(riskHighThreshold):
		return types.RiskHigh
	case amount.GreaterThan(riskMediumThreshold):
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// DetermineFraudStatus screens a payment by amount and currency.
//
// The USD review branch is evaluated before the generic SUSPICIOUS branch, so
// a 12000 USD payment is REVIEW_REQUIRED rather than SUSPICIOUS.
func DetermineFraudStatus(amount decimal.Decimal, currency string) types.FraudStatus {
	switch {
	case amount.GreaterThan(fraudReviewThreshold) && currency == fraudReviewCurrency:
		return types.FraudReviewRequired
	case amount.GreaterThan(fraudSuspectThreshold):
		return types.FraudSuspicious
	default:
		return types.FraudClear
	}
}

// DeterminePaymentChannel maps a payment method onto its channel, ignoring case.
func DeterminePaymentChannel(method string) string {
	if method == "" {
		return ChannelUnknown
	}
	switch strings.ToUpper(method) {
	case "CREDIT_CARD", "DEBIT_CARD":
		return ChannelCard
	case "BANK_TRANSFER", "ACH":
		return ChannelBank
	case "PAYPAL", "VENMO":
		return ChannelDigitalWallet
	default:
		return ChannelOther
	}
}

// DetermineCustomerCategory derives a category from the customer id prefix.
func DetermineCustomerCategory(customerID string) string {
	switch {
	case customerID == "":
		return CustomerUnknown
	case strings.HasPrefix(customerID, "VIP"):
		return CustomerVIP
	case strings.HasPrefix(customerID, "BIZ"):
		return CustomerBusiness
	default:
		return CustomerRegular
	}
}

// DetermineMerchantCategory derives a category from the merchant id prefix.
func DetermineMerchantCategory(merchantID string) string {
	switch {
	case merchantID == "":
		return MerchantUnknown
	case strings.HasPrefix(merchantID, "RETAIL"):
		return MerchantRetail
	case strings.HasPrefix(merchantID, "FOOD"):
		return MerchantFoodAndBev
	case strings.HasPrefix(merchantID, "TRAVEL"):
		return MerchantTravel
	default:
		return MerchantOther
	}
}

// AdditionalData builds the derived attribute map for a payment.
func AdditionalData(record types.PaymentRecord, now time.Time) map[string]string {
	return map[string]string{
		KeyProcessingTimestamp: now.Format(processingTimeLayout),
		KeyPaymentChannel:      DeterminePaymentChannel(record.PaymentMethod),
		KeyCustomerCategory:    DetermineCustomerCategory(record.CustomerID),
		KeyMerchantCategory:    DetermineMerchantCategory(record.MerchantID),
	}
}
