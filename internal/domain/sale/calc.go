package sale

import (
	"github.com/shopspring/decimal"

	"khmerpos/internal/core/types"
	"khmerpos/internal/domain/ports"
)

// Recalculate recomputes every derived monetary figure from first inputs:
// unit prices, quantities, discounts, the locked FX rate and the tax and
// rounding configuration. It is deterministic and idempotent; every cart
// mutation calls it instead of patching totals incrementally.
func (s *Sale) Recalculate() {
	subtotalUsd := decimal.Zero
	subtotalKhr := decimal.Zero

	for i := range s.Items {
		item := &s.Items[i]
		qty := decimal.NewFromInt(int64(item.Quantity))
		baseUsd := item.UnitPriceUsd.Mul(qty)
		baseKhr := item.UnitPriceKhrExact.Mul(qty)

		discUsd, discKhr := discountAmounts(item.Discount, baseUsd, baseKhr, s.FxRate)

		item.LineTotalUsd = types.RoundUSD(baseUsd.Sub(discUsd))
		item.LineTotalKhr = baseKhr.Sub(discKhr)

		subtotalUsd = subtotalUsd.Add(item.LineTotalUsd)
		subtotalKhr = subtotalKhr.Add(item.LineTotalKhr)
	}

	orderDiscUsd, orderDiscKhr := discountAmounts(s.OrderDiscount, subtotalUsd, subtotalKhr, s.FxRate)
	discountedUsd := subtotalUsd.Sub(orderDiscUsd)
	discountedKhr := subtotalKhr.Sub(orderDiscKhr)

	vatUsd := decimal.Zero
	vatKhr := decimal.Zero
	if s.VatEnabled && s.VatRate.IsPositive() {
		vatUsd = types.RoundUSD(discountedUsd.Mul(s.VatRate))
		vatKhr = types.RoundKHR(discountedKhr.Mul(s.VatRate))
	}

	totalUsd := types.RoundUSD(discountedUsd.Add(vatUsd))
	totalKhr := types.RoundKHR(discountedKhr.Add(vatKhr))

	roundingDelta := decimal.Zero
	if s.TenderCurrency == CurrencyKHR && s.RoundingEnabled {
		totalKhr, roundingDelta = types.CeilKHRToGranularity(totalKhr, s.RoundingGranularityKhr)
	}

	change := decimal.Zero
	if s.PaymentMethod == PaymentCash && s.CashReceivedUsd != nil && s.TenderCurrency == CurrencyUSD {
		if diff := s.CashReceivedUsd.Sub(totalUsd); diff.IsPositive() {
			change = types.RoundUSD(diff)
		}
	}

	s.Totals = Totals{
		SubtotalUsd:      subtotalUsd,
		SubtotalKhr:      subtotalKhr,
		OrderDiscountUsd: types.RoundUSD(orderDiscUsd),
		OrderDiscountKhr: types.RoundKHR(orderDiscKhr),
		VatAmountUsd:     vatUsd,
		VatAmountKhr:     vatKhr,
		TotalUsd:         totalUsd,
		TotalKhr:         totalKhr,
		RoundingDeltaKhr: roundingDelta,
		ChangeUsd:        change,
	}
}

// discountAmounts computes the discount in both currencies for a base amount.
// Percentage discounts scale both currencies, the factor clamped to [0, 1];
// fixed discounts are USD amounts converted to KHR via the sale's FX rate,
// floored at zero in each currency. A discount never drives a total negative.
func discountAmounts(d *Discount, baseUsd, baseKhr, fxRate types.Money) (types.Money, types.Money) {
	if d == nil {
		return decimal.Zero, decimal.Zero
	}

	switch d.Type {
	case ports.DiscountPercentage:
		pct := d.Amount.Div(decimal.NewFromInt(100))
		if pct.IsNegative() {
			pct = decimal.Zero
		}
		if pct.GreaterThan(decimal.NewFromInt(1)) {
			pct = decimal.NewFromInt(1)
		}
		return baseUsd.Mul(pct), baseKhr.Mul(pct)
	case ports.DiscountFixed:
		discUsd := d.Amount
		if discUsd.GreaterThan(baseUsd) {
			discUsd = baseUsd
		}
		if discUsd.IsNegative() {
			discUsd = decimal.Zero
		}
		discKhr := d.Amount.Mul(fxRate)
		if discKhr.GreaterThan(baseKhr) {
			discKhr = baseKhr
		}
		if discKhr.IsNegative() {
			discKhr = decimal.Zero
		}
		return discUsd, discKhr
	default:
		return decimal.Zero, decimal.Zero
	}
}
