package engine

import (
	"context"
	"errors"
	"math"
	"math/big"

	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/plans"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/ggonzalez94/savings-agent/internal/units"
)

const (
	SideBuy     = "buy"
	SideSell    = "sell"
	SideDeposit = "deposit"
)

// TradeLeg is one executed trade.
type TradeLeg struct {
	Bucket      model.Bucket `json:"bucket"`
	Token       string       `json:"token"`
	Side        string       `json:"side"`
	AmountUSDC  float64      `json:"amount_usdc"`
	HedgeAmount string       `json:"hedge_amount,omitempty"`
	TxHash      string       `json:"tx_hash"`
}

type RebalanceResult struct {
	PlanID     string     `json:"plan_id"`
	Rebalanced bool       `json:"rebalanced"`
	MaxDrift   float64    `json:"max_drift"`
	Trades     []TradeLeg `json:"trades"`
}

// Rebalance trades each hedge bucket back to target when the plan has drifted past the
// threshold. Below the threshold it submits nothing and leaves the plan untouched.
// Legs are executed one at a time; a failing leg aborts the pass without undoing
// earlier legs, restores the plan to active and returns the error.
func (e *Engine) Rebalance(ctx context.Context, planID string) (RebalanceResult, error) {
	result := RebalanceResult{PlanID: planID, Trades: []TradeLeg{}}
	snap, err := e.Snapshot(ctx, planID)
	if errors.Is(err, ErrPlanNotFound) {
		return result, nil
	}
	if err != nil {
		return result, err
	}
	result.MaxDrift = snap.MaxDrift
	if snap.MaxDrift < e.cfg.DriftThreshold {
		return result, nil
	}

	if err := e.setStatus(planID, model.PlanStatusRebalancing); err != nil {
		return result, err
	}
	trades, err := e.rebalanceLegs(ctx, planID, snap)
	result.Trades = trades
	if err != nil {
		if restoreErr := e.setStatus(planID, model.PlanStatusActive); restoreErr != nil {
			e.log.Error().Err(restoreErr).Str("plan_id", planID).Msg("restore plan status after failed rebalance")
		}
		return result, err
	}

	active := model.PlanStatusActive
	now := e.now()
	if err := e.plans.Update(planID, plans.Update{Status: &active, LastRebalancedAt: &now}); err != nil {
		return result, err
	}
	result.Rebalanced = true
	e.log.Info().Str("plan_id", planID).Int("trades", len(trades)).Float64("max_drift", snap.MaxDrift).Msg("rebalanced plan")
	return result, nil
}

func (e *Engine) rebalanceLegs(ctx context.Context, planID string, snap model.PortfolioSnapshot) ([]TradeLeg, error) {
	trades := []TradeLeg{}
	bought := new(big.Int)
	sold := new(big.Int)
	for _, h := range e.hedges() {
		target := snap.TotalValueUSDC * snap.TargetAllocation.Get(h.bucket) / 100
		delta := target - snap.Holdings[h.bucket].ValueUSDC
		if math.Abs(delta) < e.cfg.MaterialityFloor {
			continue
		}
		var (
			leg TradeLeg
			err error
		)
		if delta > 0 {
			leg, err = e.buyLeg(ctx, planID, h, delta)
			if err == nil {
				bought.Add(bought, units.ToBaseUnits(delta, registry.USDCDecimals))
			}
		} else {
			leg, err = e.sellLeg(ctx, planID, h, -delta)
			if err == nil {
				sold.Add(sold, units.ToBaseUnits(-delta, registry.USDCDecimals))
			}
		}
		if err != nil {
			return trades, err
		}
		trades = append(trades, leg)
	}

	// Sale proceeds beyond what the buys consumed go back into the vault so the
	// stable bucket converges with the hedges.
	net := new(big.Int).Sub(sold, bought)
	if net.Sign() > 0 && units.ToFloat(net, registry.USDCDecimals) >= e.cfg.MaterialityFloor {
		leg, err := e.depositLeg(ctx, planID, net, "rebalance_deposit")
		if err != nil {
			return trades, err
		}
		trades = append(trades, leg)
	}
	return trades, nil
}

func (e *Engine) buyLeg(ctx context.Context, planID string, h hedge, usdc float64) (TradeLeg, error) {
	a := e.cfg.Addresses
	amount := units.ToBaseUnits(usdc, registry.USDCDecimals)
	if _, err := e.approve(ctx, planID, a.USDC, stableSymbol, a.HedgeRouter, amount, registry.USDCDecimals); err != nil {
		return TradeLeg{}, err
	}
	sent, err := e.exec(ctx, "rebalance_buy", a.HedgeRouter, routerABI, "buyHedge", h.token, amount)
	if err != nil {
		return TradeLeg{}, err
	}
	formatted := units.Format(amount, registry.USDCDecimals)
	// Buys are booked 1:1 at call time, not at the realized fill.
	if err := e.record(planID, sent, model.TransactionRecord{
		Type:      model.TxTypeRebalance,
		TokenIn:   stableSymbol,
		TokenOut:  h.symbol,
		AmountIn:  formatted,
		AmountOut: formatted,
	}); err != nil {
		return TradeLeg{}, err
	}
	return TradeLeg{
		Bucket:     h.bucket,
		Token:      h.symbol,
		Side:       SideBuy,
		AmountUSDC: units.ToFloat(amount, registry.USDCDecimals),
		TxHash:     sent.Hash.Hex(),
	}, nil
}

func (e *Engine) sellLeg(ctx context.Context, planID string, h hedge, usdc float64) (TradeLeg, error) {
	a := e.cfg.Addresses
	price, err := e.readUint(ctx, a.HedgeRouter, routerABI, "getPrice", h.token)
	if err != nil {
		return TradeLeg{}, err
	}
	if price.Sign() <= 0 {
		return TradeLeg{}, clierr.New(clierr.CodeUnavailable, "router returned a zero price for "+h.symbol)
	}
	usdcBase := units.ToBaseUnits(usdc, registry.USDCDecimals)
	hedgeAmount := new(big.Int).Mul(usdcBase, registry.PriceScale())
	hedgeAmount.Quo(hedgeAmount, price)

	if _, err := e.approve(ctx, planID, h.token, h.symbol, a.HedgeRouter, hedgeAmount, registry.HedgeDecimals); err != nil {
		return TradeLeg{}, err
	}
	sent, err := e.exec(ctx, "rebalance_sell", a.HedgeRouter, routerABI, "sellHedge", h.token, hedgeAmount)
	if err != nil {
		return TradeLeg{}, err
	}
	if err := e.record(planID, sent, model.TransactionRecord{
		Type:      model.TxTypeRebalance,
		TokenIn:   h.symbol,
		TokenOut:  stableSymbol,
		AmountIn:  units.Format(hedgeAmount, registry.HedgeDecimals),
		AmountOut: units.Format(usdcBase, registry.USDCDecimals),
	}); err != nil {
		return TradeLeg{}, err
	}
	return TradeLeg{
		Bucket:      h.bucket,
		Token:       h.symbol,
		Side:        SideSell,
		AmountUSDC:  units.ToFloat(usdcBase, registry.USDCDecimals),
		HedgeAmount: units.Format(hedgeAmount, registry.HedgeDecimals),
		TxHash:      sent.Hash.Hex(),
	}, nil
}

// depositLeg approves the vault and deposits amount of the stable asset.
func (e *Engine) depositLeg(ctx context.Context, planID string, amount *big.Int, action string) (TradeLeg, error) {
	a := e.cfg.Addresses
	if _, err := e.approve(ctx, planID, a.USDC, stableSymbol, a.SavingsVault, amount, registry.USDCDecimals); err != nil {
		return TradeLeg{}, err
	}
	sent, err := e.exec(ctx, action, a.SavingsVault, vaultABI, "deposit", amount)
	if err != nil {
		return TradeLeg{}, err
	}
	formatted := units.Format(amount, registry.USDCDecimals)
	if err := e.record(planID, sent, model.TransactionRecord{
		Type:      model.TxTypeDeposit,
		TokenIn:   stableSymbol,
		TokenOut:  "Vault",
		AmountIn:  formatted,
		AmountOut: formatted,
	}); err != nil {
		return TradeLeg{}, err
	}
	return TradeLeg{
		Bucket:     model.BucketStable,
		Token:      stableSymbol,
		Side:       SideDeposit,
		AmountUSDC: units.ToFloat(amount, registry.USDCDecimals),
		TxHash:     sent.Hash.Hex(),
	}, nil
}

func (e *Engine) setStatus(planID string, status model.PlanStatus) error {
	return e.plans.Update(planID, plans.Update{Status: &status})
}
