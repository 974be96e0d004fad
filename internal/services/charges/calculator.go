// Package charges computes the tiered fee breakdown for a transaction amount.
package charges

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/payment-gateway/internal/domain"
)

// MinorUnitPlaces is the precision money is stored with
const MinorUnitPlaces = 2

var hundred = decimal.NewFromInt(100)

// Calculate returns the charge breakdown for amount using the first bracket
// that covers it. platform may be nil, in which case platform fee and GST are zero.
// Brackets must not overlap; they are checked before the scan. Charges that
// consume the whole amount are rejected as a pricing configuration gap.
func Calculate(amount decimal.Decimal, brackets []domain.ChargeBracket, platform *domain.PlatformFeeConfig) (*domain.ChargeBreakdown, error) {
	if err := ValidateBrackets(brackets); err != nil {
		return nil, err
	}

	bracket, ok := findBracket(amount, brackets)
	if !ok {
		return nil, domain.ErrNoBracketMatch.WithDetail("amount", amount.StringFixed(MinorUnitPlaces))
	}

	admin := applyRate(amount, bracket.AdminRate, bracket.RateType)
	agent := applyRate(amount, bracket.AgentRate, bracket.RateType)

	platformFee := decimal.Zero
	gst := decimal.Zero
	if platform != nil && platform.IsActive {
		platformFee = percentOf(admin, platform.ChargePct)
		gst = percentOf(admin, platform.GSTPct)
	}

	total := admin.Add(platformFee).Add(gst)
	net := amount.Sub(total)
	// A non-positive net would credit a negative amount on completion
	if !net.IsPositive() {
		return nil, domain.ErrChargesExceedAmount.
			WithDetail("amount", amount.StringFixed(MinorUnitPlaces)).
			WithDetail("total_charges", total.StringFixed(MinorUnitPlaces)).
			WithDetail("bracket_id", bracket.ID)
	}

	return &domain.ChargeBreakdown{
		AdminCharge:  admin,
		AgentCharge:  agent,
		PlatformFee:  platformFee,
		GSTAmount:    gst,
		TotalCharges: total,
		NetAmount:    net,
		BracketID:    bracket.ID,
	}, nil
}

// ValidateBrackets rejects brackets with inverted ranges or overlapping ranges
func ValidateBrackets(brackets []domain.ChargeBracket) error {
	sorted := make([]domain.ChargeBracket, len(brackets))
	copy(sorted, brackets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartAmount.LessThan(sorted[j].StartAmount)
	})

	for i, b := range sorted {
		if b.EndAmount.LessThan(b.StartAmount) {
			return domain.ErrBracketOverlap.WithDetail("bracket_id", b.ID)
		}
		if i > 0 && !b.StartAmount.GreaterThan(sorted[i-1].EndAmount) {
			return domain.ErrBracketOverlap.
				WithDetail("bracket_id", b.ID).
				WithDetail("previous_bracket_id", sorted[i-1].ID)
		}
	}
	return nil
}

func findBracket(amount decimal.Decimal, brackets []domain.ChargeBracket) (domain.ChargeBracket, bool) {
	for _, b := range brackets {
		if b.Covers(amount) {
			return b, true
		}
	}
	return domain.ChargeBracket{}, false
}

func applyRate(amount, rate decimal.Decimal, rateType domain.RateType) decimal.Decimal {
	if rateType == domain.RateTypeFixed {
		return rate.Round(MinorUnitPlaces)
	}
	return percentOf(amount, rate)
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(MinorUnitPlaces)
}
