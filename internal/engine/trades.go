package engine

import (
	"context"
	"math/big"

	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/ggonzalez94/savings-agent/internal/units"
)

type TradeSummary struct {
	PlanID         string           `json:"plan_id"`
	Status         model.PlanStatus `json:"status"`
	TradesExecuted int              `json:"trades_executed"`
	Trades         []TradeLeg       `json:"trades"`
}

// ExecuteTrades funds a plan for the first time: the stable share is deposited into
// the vault and each hedge share is bought through the router. The plan becomes active.
func (e *Engine) ExecuteTrades(ctx context.Context, planID string) (TradeSummary, error) {
	plan, ok := e.plans.Get(planID)
	if !ok {
		return TradeSummary{}, ErrPlanNotFound
	}
	a := e.cfg.Addresses
	total := units.ToBaseUnits(plan.DepositAmountUSDC, registry.USDCDecimals)
	stable := units.Portion(total, plan.Allocation.Stable)
	hedges := e.hedges()
	amounts := make([]*big.Int, len(hedges))
	routerTotal := new(big.Int)
	for i, h := range hedges {
		amounts[i] = units.Portion(total, plan.Allocation.Get(h.bucket))
		routerTotal.Add(routerTotal, amounts[i])
	}

	summary := TradeSummary{PlanID: planID, Status: plan.Status, Trades: []TradeLeg{}}
	if stable.Sign() > 0 {
		if _, err := e.approve(ctx, planID, a.USDC, stableSymbol, a.SavingsVault, stable, registry.USDCDecimals); err != nil {
			return summary, err
		}
	}
	if routerTotal.Sign() > 0 {
		if _, err := e.approve(ctx, planID, a.USDC, stableSymbol, a.HedgeRouter, routerTotal, registry.USDCDecimals); err != nil {
			return summary, err
		}
	}
	if stable.Sign() > 0 {
		sent, err := e.exec(ctx, "deposit", a.SavingsVault, vaultABI, "deposit", stable)
		if err != nil {
			return summary, err
		}
		formatted := units.Format(stable, registry.USDCDecimals)
		if err := e.record(planID, sent, model.TransactionRecord{
			Type:      model.TxTypeDeposit,
			TokenIn:   stableSymbol,
			TokenOut:  "Vault",
			AmountIn:  formatted,
			AmountOut: formatted,
		}); err != nil {
			return summary, err
		}
		summary.Trades = append(summary.Trades, TradeLeg{
			Bucket:     model.BucketStable,
			Token:      stableSymbol,
			Side:       SideDeposit,
			AmountUSDC: units.ToFloat(stable, registry.USDCDecimals),
			TxHash:     sent.Hash.Hex(),
		})
	}
	for i, h := range hedges {
		if amounts[i].Sign() == 0 {
			continue
		}
		sent, err := e.exec(ctx, "swap_buy", a.HedgeRouter, routerABI, "buyHedge", h.token, amounts[i])
		if err != nil {
			return summary, err
		}
		formatted := units.Format(amounts[i], registry.USDCDecimals)
		if err := e.record(planID, sent, model.TransactionRecord{
			Type:      model.TxTypeSwapBuy,
			TokenIn:   stableSymbol,
			TokenOut:  h.symbol,
			AmountIn:  formatted,
			AmountOut: formatted,
		}); err != nil {
			return summary, err
		}
		summary.Trades = append(summary.Trades, TradeLeg{
			Bucket:     h.bucket,
			Token:      h.symbol,
			Side:       SideBuy,
			AmountUSDC: units.ToFloat(amounts[i], registry.USDCDecimals),
			TxHash:     sent.Hash.Hex(),
		})
	}

	if err := e.setStatus(planID, model.PlanStatusActive); err != nil {
		return summary, err
	}
	summary.Status = model.PlanStatusActive
	summary.TradesExecuted = len(summary.Trades)
	e.log.Info().Str("plan_id", planID).Int("trades", summary.TradesExecuted).Msg("executed initial trades")
	return summary, nil
}

type FundResult struct {
	AmountUSDC float64 `json:"amount_usdc"`
	TxHash     string  `json:"tx_hash"`
}

// Fund tops up the vault's yield reserve from the agent wallet. It is not tied to a plan.
func (e *Engine) Fund(ctx context.Context, amountUSDC float64) (FundResult, error) {
	if amountUSDC <= 0 {
		return FundResult{}, clierr.New(clierr.CodeUsage, "fund amount must be positive")
	}
	a := e.cfg.Addresses
	amount := units.ToBaseUnits(amountUSDC, registry.USDCDecimals)
	if _, err := e.approve(ctx, "", a.USDC, stableSymbol, a.SavingsVault, amount, registry.USDCDecimals); err != nil {
		return FundResult{}, err
	}
	sent, err := e.exec(ctx, "fund", a.SavingsVault, vaultABI, "fund", amount)
	if err != nil {
		return FundResult{}, err
	}
	formatted := units.Format(amount, registry.USDCDecimals)
	if err := e.record("", sent, model.TransactionRecord{
		Type:      model.TxTypeDeposit,
		TokenIn:   stableSymbol,
		TokenOut:  "Vault Reserve",
		AmountIn:  formatted,
		AmountOut: formatted,
	}); err != nil {
		return FundResult{}, err
	}
	return FundResult{AmountUSDC: units.ToFloat(amount, registry.USDCDecimals), TxHash: sent.Hash.Hex()}, nil
}
