package sync

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"khmerpos/internal/core/actor"
	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ops"
	"khmerpos/internal/domain/policy"
	"khmerpos/internal/domain/ports"
	"khmerpos/internal/domain/sale"
	"khmerpos/pkg/logger"
)

// applySaleFinalized builds a draft sale from the payload, prices it against
// the menu and the tenant's current policies, finalizes it and persists it.
func (p *Pipeline) applySaleFinalized(ctx context.Context, act actor.Context, pl ops.SaleFinalizedPayload, occurred time.Time) (*applied, error) {
	existing, err := p.sales.FindByClientUUID(ctx, act.TenantID, pl.ClientSaleUUID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.NewDuplicateSale(pl.ClientSaleUUID)
	}

	cfg, err := p.pricingConfig(ctx, act.TenantID)
	if err != nil {
		return nil, err
	}

	s := sale.NewDraft(act.TenantID, act.BranchID, act.EmployeeID, pl.ClientSaleUUID, pl.SaleType, cfg, occurred)

	for _, line := range pl.Lines {
		item, err := p.menu.GetMenuItem(ctx, ports.MenuItemRef{
			MenuItemID: line.MenuItemID,
			BranchID:   act.BranchID,
			TenantID:   act.TenantID,
		})
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, apperror.NewDependencyMissing("menu item", line.MenuItemID)
		}

		itemID, err := s.AddItem(item.ID, item.Name, item.PriceUsd, line.Quantity)
		if err != nil {
			return nil, err
		}

		candidates, err := p.policies.GetItemDiscountPolicies(ctx, act.TenantID, act.BranchID, item.ID)
		if err != nil {
			return nil, err
		}
		baseUsd := item.PriceUsd.Mul(decimal.NewFromInt(int64(line.Quantity)))
		best, _ := p.discounts.SelectBest(ctx, candidates, policy.EvalContext{
			BaseUsd:  baseUsd,
			Qty:      line.Quantity,
			SaleType: pl.SaleType,
		})
		if best != nil {
			if err := s.SetItemDiscount(itemID, sale.Discount{
				Type:     best.Type,
				Amount:   best.Value,
				PolicyID: best.ID,
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := s.SetTenderCurrency(sale.Currency(pl.TenderCurrency)); err != nil {
		return nil, err
	}
	if err := s.SetPaymentMethod(sale.PaymentMethod(pl.PaymentMethod), pl.CashReceivedUsd); err != nil {
		return nil, err
	}

	orderCandidates, err := p.policies.GetOrderDiscountPolicies(ctx, act.TenantID, act.BranchID)
	if err != nil {
		return nil, err
	}
	totalQty := 0
	for _, line := range pl.Lines {
		totalQty += line.Quantity
	}
	bestOrder, _ := p.discounts.SelectBest(ctx, orderCandidates, policy.EvalContext{
		BaseUsd:  s.Totals.SubtotalUsd,
		Qty:      totalQty,
		SaleType: pl.SaleType,
	})
	if bestOrder != nil {
		if err := s.SetOrderDiscount(sale.Discount{
			Type:     bestOrder.Type,
			Amount:   bestOrder.Value,
			PolicyID: bestOrder.ID,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.Finalize(occurred); err != nil {
		return nil, err
	}

	if err := p.sales.Create(ctx, s); err != nil {
		return nil, err
	}

	if err := p.recordCashTaking(ctx, s); err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale finalized",
		"sale_id", s.ID,
		"total_usd", s.Totals.TotalUsd,
		"tender", string(s.TenderCurrency))

	return &applied{
		resourceType: "sale",
		resourceID:   s.ID.String(),
		result: SaleFinalizedResult{
			SaleID:    s.ID,
			TotalUsd:  s.Totals.TotalUsd,
			TotalKhr:  s.Totals.TotalKhr.IntPart(),
			ChangeUsd: s.Totals.ChangeUsd,
		},
		events: []ports.Event{saleFinalizedEvent(s, act)},
		auditDetails: map[string]any{
			"client_sale_uuid": pl.ClientSaleUUID,
			"line_count":       len(s.Items),
			"total_usd":        s.Totals.TotalUsd,
			"total_khr":        s.Totals.TotalKhr.IntPart(),
		},
	}, nil
}

// pricingConfig snapshots the tenant's FX, VAT and rounding policies for one
// sale; the draft locks them so later policy changes never reprice it.
func (p *Pipeline) pricingConfig(ctx context.Context, tenantID id.ID) (sale.PricingConfig, error) {
	fx, err := p.policies.GetCurrentFxRate(ctx, tenantID)
	if err != nil {
		return sale.PricingConfig{}, err
	}
	vat, err := p.policies.GetVatPolicy(ctx, tenantID)
	if err != nil {
		return sale.PricingConfig{}, err
	}
	rounding, err := p.policies.GetRoundingPolicy(ctx, tenantID)
	if err != nil {
		return sale.PricingConfig{}, err
	}
	return sale.PricingConfig{FxRate: fx, Vat: vat, Rounding: rounding}, nil
}

func saleFinalizedEvent(s *sale.Sale, act actor.Context) ports.Event {
	lines := make([]SaleEventLine, len(s.Items))
	for i, item := range s.Items {
		lines[i] = SaleEventLine{MenuItemID: item.MenuItemID, Qty: item.Quantity}
	}

	tender := SaleEventTender{Method: string(s.PaymentMethod)}
	switch s.TenderCurrency {
	case sale.CurrencyKHR:
		tender.AmountKhr = s.Totals.TotalKhr.IntPart()
	default:
		tender.AmountUsd = s.Totals.TotalUsd
	}

	var finalizedAt time.Time
	if s.FinalizedAt != nil {
		finalizedAt = *s.FinalizedAt
	}

	return ports.Event{
		Type:          EventSaleFinalized,
		AggregateType: "Sale",
		AggregateID:   s.ID,
		Payload: SaleFinalizedEvent{
			TenantID: s.TenantID,
			BranchID: s.BranchID,
			SaleID:   s.ID,
			Lines:    lines,
			Totals: SaleEventTotals{
				SubtotalUsd:  s.Totals.SubtotalUsd,
				TotalUsd:     s.Totals.TotalUsd,
				TotalKhr:     s.Totals.TotalKhr.IntPart(),
				VatAmountUsd: s.Totals.VatAmountUsd,
			},
			Tenders:     []SaleEventTender{tender},
			FinalizedAt: finalizedAt,
			ActorID:     act.EmployeeID,
		},
	}
}

// recordCashTaking feeds a cash-settled sale into the branch's open drawer.
func (p *Pipeline) recordCashTaking(ctx context.Context, s *sale.Sale) error {
	if s.PaymentMethod != sale.PaymentCash {
		return nil
	}
	usd := decimal.Zero
	khr := decimal.Zero
	if s.TenderCurrency == sale.CurrencyKHR {
		khr = s.Totals.TotalKhr
	} else {
		usd = s.Totals.TotalUsd
	}
	return p.drawer.AddExpectedCash(ctx, s.TenantID, s.BranchID, usd, khr)
}
