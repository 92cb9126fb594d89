package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
	"khmerpos/internal/domain/ports"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	require.NoError(t, err)
	return e
}

func pct(value string, condition string) ports.DiscountPolicy {
	return ports.DiscountPolicy{
		ID:        id.New(),
		Type:      ports.DiscountPercentage,
		Value:     types.MustMoney(value),
		Condition: condition,
	}
}

func fixed(value string, condition string) ports.DiscountPolicy {
	return ports.DiscountPolicy{
		ID:        id.New(),
		Type:      ports.DiscountFixed,
		Value:     types.MustMoney(value),
		Condition: condition,
	}
}

func TestSelectBest_LargestAbsoluteDiscountWins(t *testing.T) {
	e := newTestEngine(t)
	ec := EvalContext{BaseUsd: types.MustMoney("20.00"), Qty: 1, SaleType: "DINE_IN"}

	candidates := []ports.DiscountPolicy{
		pct("10", ""),     // 2.00
		fixed("3.00", ""), // 3.00
		pct("5", ""),      // 1.00
	}

	best, amount := e.SelectBest(context.Background(), candidates, ec)
	require.NotNil(t, best)
	assert.Equal(t, candidates[1].ID, best.ID)
	assert.True(t, amount.Equal(types.MustMoney("3.00")), "amount = %s", amount)
}

func TestSelectBest_CrossoverByBaseAmount(t *testing.T) {
	e := newTestEngine(t)

	// 10% vs a fixed $1: the fixed discount wins below a $10 base, the
	// percentage wins above it, and the boundary ties to the first-seen.
	tenPct := pct("10", "")
	oneFixed := fixed("1.00", "")
	candidates := []ports.DiscountPolicy{tenPct, oneFixed}

	tests := []struct {
		name       string
		baseUsd    string
		wantID     id.ID
		wantAmount string
	}{
		{"small base favors fixed", "4.00", oneFixed.ID, "1.00"},
		{"just below crossover", "9.99", oneFixed.ID, "1.00"},
		{"crossover ties to first seen", "10.00", tenPct.ID, "1.00"},
		{"just above crossover", "10.01", tenPct.ID, "1.001"},
		{"large base favors percentage", "50.00", tenPct.ID, "5.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, amount := e.SelectBest(context.Background(), candidates,
				EvalContext{BaseUsd: types.MustMoney(tt.baseUsd), Qty: 1, SaleType: "DINE_IN"})
			require.NotNil(t, best)
			assert.Equal(t, tt.wantID, best.ID)
			assert.True(t, amount.Equal(types.MustMoney(tt.wantAmount)), "amount = %s", amount)
		})
	}
}

func TestSelectBest_TieKeepsFirstSeen(t *testing.T) {
	e := newTestEngine(t)
	ec := EvalContext{BaseUsd: types.MustMoney("10.00"), Qty: 1, SaleType: "DINE_IN"}

	candidates := []ports.DiscountPolicy{
		pct("10", ""),     // 1.00
		fixed("1.00", ""), // 1.00, same amount
	}

	best, _ := e.SelectBest(context.Background(), candidates, ec)
	require.NotNil(t, best)
	assert.Equal(t, candidates[0].ID, best.ID)
}

func TestSelectBest_NoPositiveDiscount(t *testing.T) {
	e := newTestEngine(t)
	ec := EvalContext{BaseUsd: types.MustMoney("10.00"), Qty: 1, SaleType: "DINE_IN"}

	best, amount := e.SelectBest(context.Background(), []ports.DiscountPolicy{
		pct("0", ""),
		fixed("-2.00", ""),
	}, ec)

	assert.Nil(t, best)
	assert.True(t, amount.IsZero())
}

func TestSelectBest_ConditionFiltersCandidates(t *testing.T) {
	e := newTestEngine(t)

	bulk := pct("20", "qty >= 2")
	always := pct("5", "")
	candidates := []ports.DiscountPolicy{bulk, always}

	// A single unit fails the bulk condition; the 5% policy wins by default.
	best, amount := e.SelectBest(context.Background(),
		candidates, EvalContext{BaseUsd: types.MustMoney("10.00"), Qty: 1, SaleType: "DINE_IN"})
	require.NotNil(t, best)
	assert.Equal(t, always.ID, best.ID)
	assert.True(t, amount.Equal(types.MustMoney("0.50")), "amount = %s", amount)

	// Two units unlock the bulk discount.
	best, amount = e.SelectBest(context.Background(),
		candidates, EvalContext{BaseUsd: types.MustMoney("20.00"), Qty: 2, SaleType: "DINE_IN"})
	require.NotNil(t, best)
	assert.Equal(t, bulk.ID, best.ID)
	assert.True(t, amount.Equal(types.MustMoney("4.00")), "amount = %s", amount)
}

func TestSelectBest_SaleTypeCondition(t *testing.T) {
	e := newTestEngine(t)
	dineIn := pct("10", `sale_type == "DINE_IN"`)

	best, _ := e.SelectBest(context.Background(), []ports.DiscountPolicy{dineIn},
		EvalContext{BaseUsd: types.MustMoney("10.00"), Qty: 1, SaleType: "TAKEAWAY"})
	assert.Nil(t, best)

	best, _ = e.SelectBest(context.Background(), []ports.DiscountPolicy{dineIn},
		EvalContext{BaseUsd: types.MustMoney("10.00"), Qty: 1, SaleType: "DINE_IN"})
	assert.NotNil(t, best)
}

func TestSelectBest_BadConditionDisqualifiesPolicyOnly(t *testing.T) {
	e := newTestEngine(t)
	ec := EvalContext{BaseUsd: types.MustMoney("10.00"), Qty: 1, SaleType: "DINE_IN"}

	broken := pct("50", "qty >=")
	nonBool := pct("50", "qty + 1")
	valid := pct("10", "")

	best, amount := e.SelectBest(context.Background(),
		[]ports.DiscountPolicy{broken, nonBool, valid}, ec)
	require.NotNil(t, best)
	assert.Equal(t, valid.ID, best.ID)
	assert.True(t, amount.Equal(types.MustMoney("1.00")), "amount = %s", amount)
}

func TestDiscountUsd_FixedCappedAtBase(t *testing.T) {
	got := DiscountUsd(fixed("5.00", ""), types.MustMoney("2.00"))
	assert.True(t, got.Equal(types.MustMoney("2.00")), "got %s", got)
}

func TestDiscountUsd_PercentageClampedAtFullWaiver(t *testing.T) {
	got := DiscountUsd(pct("150", ""), types.MustMoney("10.00"))
	assert.True(t, got.Equal(types.MustMoney("10.00")), "got %s", got)

	got = DiscountUsd(pct("-10", ""), types.MustMoney("10.00"))
	assert.True(t, got.IsZero(), "got %s", got)
}
