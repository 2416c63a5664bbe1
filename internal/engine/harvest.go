package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/plans"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/ggonzalez94/savings-agent/internal/units"
)

const sinkPushTimeout = 15 * time.Second

type HarvestResult struct {
	PlanID       string  `json:"plan_id"`
	Harvested    bool    `json:"harvested"`
	PendingYield string  `json:"pending_yield"`
	FeeCollected float64 `json:"fee_collected"`
	UserYield    float64 `json:"user_yield"`
	TxHash       string  `json:"tx_hash,omitempty"`
}

// Harvest accrues vault yield and, when it clears the minimum, harvests it and books
// the management fee as revenue. Unknown plans are a no-op.
func (e *Engine) Harvest(ctx context.Context, planID string) (HarvestResult, error) {
	result := HarvestResult{PlanID: planID, PendingYield: "0"}
	if _, ok := e.plans.Get(planID); !ok {
		return result, nil
	}
	b, err := e.chain()
	if err != nil {
		return result, err
	}
	owner := b.Address()
	vault := e.cfg.Addresses.SavingsVault

	if _, err := e.exec(ctx, "drip", vault, vaultABI, "drip", owner); err != nil {
		return result, err
	}
	pending, err := e.readUint(ctx, vault, vaultABI, "pendingYield", owner)
	if err != nil {
		return result, err
	}
	result.PendingYield = units.Format(pending, registry.USDCDecimals)
	if pending.Cmp(big.NewInt(e.cfg.MinHarvestBaseUnits)) < 0 {
		return result, nil
	}

	sent, err := e.exec(ctx, "harvest", vault, vaultABI, "harvest", owner)
	if err != nil {
		return result, err
	}
	result.Harvested = true
	result.TxHash = sent.Hash.Hex()

	fee := units.BasisPoints(pending, e.cfg.FeeBps)
	result.FeeCollected = units.ToFloat(fee, registry.USDCDecimals)
	result.UserYield = units.ToFloat(new(big.Int).Sub(pending, fee), registry.USDCDecimals)
	if err := e.costs.RecordRevenue(model.RevenueManagementFee, result.FeeCollected, result.TxHash); err != nil {
		return result, err
	}
	if err := e.record(planID, sent, model.TransactionRecord{
		Type:      model.TxTypeHarvest,
		TokenIn:   "Vault Yield",
		TokenOut:  stableSymbol,
		AmountIn:  result.PendingYield,
		AmountOut: result.PendingYield,
	}); err != nil {
		return result, err
	}
	now := e.now()
	if err := e.plans.Update(planID, plans.Update{LastHarvestedAt: &now}); err != nil {
		return result, err
	}
	e.log.Info().Str("plan_id", planID).Str("pending_yield", result.PendingYield).Float64("fee_usdc", result.FeeCollected).Msg("harvested yield")

	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		e.PushStats(context.WithoutCancel(ctx))
	}()
	return result, nil
}

// WaitPushes blocks until background sink pushes started by Harvest have finished,
// or ctx is done. One-shot hosts call it before exiting.
func (e *Engine) WaitPushes(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushStats sends current stats to the sink, if one is configured. Failures are logged.
func (e *Engine) PushStats(ctx context.Context) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sinkPushTimeout)
	defer cancel()
	stats, err := e.Stats(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("collect stats for sync")
		return
	}
	if err := e.sink.Push(ctx, stats); err != nil {
		e.log.Warn().Err(err).Msg("stats sync failed")
		return
	}
	e.log.Debug().Msg("synced stats")
}
