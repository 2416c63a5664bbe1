package engine

import (
	"context"
	"math"
	"math/big"

	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/ggonzalez94/savings-agent/internal/units"
	"golang.org/x/sync/errgroup"
)

// Snapshot reads live holdings and prices for the engine's address and measures drift
// against the plan's target allocation. Unknown plans return ErrPlanNotFound.
func (e *Engine) Snapshot(ctx context.Context, planID string) (model.PortfolioSnapshot, error) {
	plan, ok := e.plans.Get(planID)
	if !ok {
		return model.PortfolioSnapshot{}, ErrPlanNotFound
	}
	b, err := e.chain()
	if err != nil {
		return model.PortfolioSnapshot{}, err
	}
	owner := b.Address()
	hedges := e.hedges()

	// Round one: vault deposit plus the three hedge balances.
	var deposit *big.Int
	balances := make([]*big.Int, len(hedges))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.readUint(gctx, e.cfg.Addresses.SavingsVault, vaultABI, "deposits", owner)
		deposit = v
		return err
	})
	for i, h := range hedges {
		g.Go(func() error {
			v, err := e.readUint(gctx, h.token, erc20ABI, "balanceOf", owner)
			balances[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return model.PortfolioSnapshot{}, err
	}

	// Round two: router prices.
	prices := make([]*big.Int, len(hedges))
	g, gctx = errgroup.WithContext(ctx)
	for i, h := range hedges {
		g.Go(func() error {
			v, err := e.readUint(gctx, e.cfg.Addresses.HedgeRouter, routerABI, "getPrice", h.token)
			prices[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return model.PortfolioSnapshot{}, err
	}

	snap := model.PortfolioSnapshot{
		PlanID:           planID,
		Holdings:         make(map[model.Bucket]model.Holding, len(model.AllBuckets)),
		TargetAllocation: plan.Allocation,
		Timestamp:        e.now().UTC(),
	}
	values := map[model.Bucket]float64{model.BucketStable: units.ToFloat(deposit, registry.USDCDecimals)}
	snap.Holdings[model.BucketStable] = model.Holding{
		Balance:   units.Format(deposit, registry.USDCDecimals),
		ValueUSDC: values[model.BucketStable],
	}
	for i, h := range hedges {
		v := units.ToFloat(hedgeValue(balances[i], prices[i]), registry.USDCDecimals)
		values[h.bucket] = v
		snap.Holdings[h.bucket] = model.Holding{
			Balance:   units.Format(balances[i], registry.HedgeDecimals),
			ValueUSDC: v,
		}
	}
	for _, bucket := range model.AllBuckets {
		snap.TotalValueUSDC += values[bucket]
	}

	// An empty portfolio has nothing to correct: allocation and drift stay zero.
	if snap.TotalValueUSDC > 0 {
		for _, bucket := range model.AllBuckets {
			current := 100 * values[bucket] / snap.TotalValueUSDC
			drift := math.Abs(current - plan.Allocation.Get(bucket))
			snap.CurrentAllocation.Set(bucket, current)
			snap.Drift.Set(bucket, drift)
			snap.MaxDrift = math.Max(snap.MaxDrift, drift)
		}
	}
	return snap, nil
}

// hedgeValue is balance * price / 1e18, in USDC base units.
func hedgeValue(balance, price *big.Int) *big.Int {
	if balance == nil || price == nil {
		return new(big.Int)
	}
	v := new(big.Int).Mul(balance, price)
	return v.Quo(v, registry.PriceScale())
}
