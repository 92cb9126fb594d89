// Package policy implements discount policy selection: among the configured
// candidates for an item or order, the policy yielding the largest absolute
// discount wins, ties broken by first-seen order.
package policy

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"khmerpos/internal/core/types"
	"khmerpos/internal/domain/ports"
	"khmerpos/pkg/logger"
)

// EvalContext is the sale context a policy condition is evaluated against.
type EvalContext struct {
	BaseUsd  types.Money
	Qty      int
	SaleType string
}

// Engine evaluates policy eligibility and selects the best discount.
// Safe for concurrent use; compiled CEL programs are cached per condition.
type Engine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEngine creates a policy engine with the condition variable set
// {base_usd, qty, sale_type}.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("base_usd", cel.DoubleType),
		cel.Variable("qty", cel.IntType),
		cel.Variable("sale_type", cel.StringType),
	)
	if err != nil {
		return nil, err
	}
	return &Engine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// SelectBest returns the eligible policy with the largest absolute USD
// discount against ec.BaseUsd, together with that amount. Returns nil when
// no eligible policy produces a positive discount. Ties keep the first-seen
// candidate.
func (e *Engine) SelectBest(ctx context.Context, candidates []ports.DiscountPolicy, ec EvalContext) (*ports.DiscountPolicy, types.Money) {
	var best *ports.DiscountPolicy
	bestAmount := decimal.Zero

	for i := range candidates {
		p := candidates[i]
		if !e.eligible(ctx, p, ec) {
			continue
		}
		amount := DiscountUsd(p, ec.BaseUsd)
		if amount.GreaterThan(bestAmount) {
			best = &candidates[i]
			bestAmount = amount
		}
	}

	return best, bestAmount
}

// DiscountUsd computes the absolute USD discount a policy yields against a
// base amount, floored at zero and capped at the base. Percentage values above
// 100 count as 100 so a misconfigured policy never ranks above a full waiver.
func DiscountUsd(p ports.DiscountPolicy, baseUsd types.Money) types.Money {
	switch p.Type {
	case ports.DiscountPercentage:
		pct := p.Value.Div(decimal.NewFromInt(100))
		if pct.IsNegative() {
			pct = decimal.Zero
		}
		if pct.GreaterThan(decimal.NewFromInt(1)) {
			pct = decimal.NewFromInt(1)
		}
		return baseUsd.Mul(pct)
	case ports.DiscountFixed:
		amount := p.Value
		if amount.GreaterThan(baseUsd) {
			amount = baseUsd
		}
		if amount.IsNegative() {
			return decimal.Zero
		}
		return amount
	default:
		return decimal.Zero
	}
}

// eligible evaluates the policy's CEL condition. An empty condition is always
// eligible; a condition that fails to compile or evaluate disqualifies the
// policy rather than the sale.
func (e *Engine) eligible(ctx context.Context, p ports.DiscountPolicy, ec EvalContext) bool {
	if p.Condition == "" {
		return true
	}

	prg, err := e.program(p.Condition)
	if err != nil {
		logger.Warn(ctx, "discount policy condition rejected",
			"policy_id", p.ID, "error", err)
		return false
	}

	baseUsd, _ := ec.BaseUsd.Float64()
	out, _, err := prg.Eval(map[string]any{
		"base_usd":  baseUsd,
		"qty":       int64(ec.Qty),
		"sale_type": ec.SaleType,
	})
	if err != nil {
		logger.Warn(ctx, "discount policy condition evaluation failed",
			"policy_id", p.ID, "error", err)
		return false
	}

	ok, isBool := out.Value().(bool)
	return isBool && ok
}

func (e *Engine) program(condition string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.programs[condition]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	ast, iss := e.env.Compile(condition)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[condition] = prg
	e.mu.Unlock()
	return prg, nil
}
