// Package fixtures provides test data builders.
package fixtures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/payment-gateway/internal/domain"
)

// MerchantBuilder provides fluent API for building test merchants.
type MerchantBuilder struct {
	merchant *domain.Merchant
}

// NewMerchant creates a new merchant builder with sensible defaults.
func NewMerchant() *MerchantBuilder {
	now := time.Now()
	return &MerchantBuilder{
		merchant: &domain.Merchant{
			ID:             "M1",
			Name:           "Test Merchant",
			Role:           "merchant",
			PayinProvider:  "upiqr",
			PayoutProvider: "impsbank",
			WebhookSecret:  "whsec_test",
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
}

func (b *MerchantBuilder) WithCallbackURL(url string) *MerchantBuilder {
	b.merchant.CallbackURL = url
	return b
}

func (b *MerchantBuilder) WithWhitelist(ips ...string) *MerchantBuilder {
	b.merchant.WhitelistedIPs = ips
	return b
}

func (b *MerchantBuilder) WithProviders(payin, payout string) *MerchantBuilder {
	b.merchant.PayinProvider = payin
	b.merchant.PayoutProvider = payout
	return b
}

func (b *MerchantBuilder) Inactive() *MerchantBuilder {
	b.merchant.IsActive = false
	return b
}

func (b *MerchantBuilder) Build() *domain.Merchant {
	return b.merchant
}

// Brackets returns two percentage brackets covering 1..10000 and one fixed
// bracket above: 2% admin / 1% agent, then 1.5% / 0.5%, then 150 / 50 flat.
func Brackets() []domain.ChargeBracket {
	return []domain.ChargeBracket{
		{
			ID:          "b-low",
			StartAmount: decimal.NewFromInt(1),
			EndAmount:   decimal.NewFromInt(1000),
			AdminRate:   decimal.NewFromInt(2),
			AgentRate:   decimal.NewFromInt(1),
			RateType:    domain.RateTypePercentage,
		},
		{
			ID:          "b-mid",
			StartAmount: decimal.RequireFromString("1000.01"),
			EndAmount:   decimal.NewFromInt(10000),
			AdminRate:   decimal.RequireFromString("1.5"),
			AgentRate:   decimal.RequireFromString("0.5"),
			RateType:    domain.RateTypePercentage,
		},
		{
			ID:          "b-high",
			StartAmount: decimal.RequireFromString("10000.01"),
			EndAmount:   decimal.NewFromInt(200000),
			AdminRate:   decimal.NewFromInt(150),
			AgentRate:   decimal.NewFromInt(50),
			RateType:    domain.RateTypeFixed,
		},
	}
}

// PlatformFee is 1% platform charge and 18% GST on the admin charge
func PlatformFee() *domain.PlatformFeeConfig {
	return &domain.PlatformFeeConfig{
		ID:        "pf-1",
		ChargePct: decimal.NewFromInt(1),
		GSTPct:    decimal.NewFromInt(18),
		IsActive:  true,
	}
}
