package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/chain"
	"github.com/ggonzalez94/savings-agent/internal/costs"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/ggonzalez94/savings-agent/internal/units"
)

// autonomousPrefix marks cost entries recorded by the scheduler.
const autonomousPrefix = "autonomous"

type Stats struct {
	AgentAddress   string         `json:"agent_address"`
	WalletBalances WalletBalances `json:"wallet_balances"`
	Sustainability costs.Summary  `json:"sustainability"`
	Portfolio      PortfolioStats `json:"portfolio"`
	Uptime         Uptime         `json:"uptime"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type WalletBalances struct {
	EthWei        string  `json:"eth_wei"`
	EthUSD        float64 `json:"eth_usd"`
	USDCRaw       string  `json:"usdc_raw"`
	USDCFormatted float64 `json:"usdc_formatted"`
}

type PortfolioStats struct {
	TotalManagedUSDC float64    `json:"total_managed_usdc"`
	ActivePlans      int        `json:"active_plans"`
	LastRebalance    *time.Time `json:"last_rebalance"`
	LastHarvest      *time.Time `json:"last_harvest"`
}

type Uptime struct {
	StartedAt            time.Time `json:"started_at"`
	AutonomousActions    int       `json:"autonomous_actions"`
	TransactionsExecuted int       `json:"transactions_executed"`
}

// Stats assembles the read-only view served by the debug API and pushed to the sink.
// Wallet balances fall back to zero when the chain is unreachable.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Sustainability: e.costs.Summary(),
		Uptime: Uptime{
			StartedAt:            e.startedAt,
			AutonomousActions:    e.costs.CountActions(autonomousPrefix),
			TransactionsExecuted: e.plans.TransactionCount(),
		},
		UpdatedAt: e.now().UTC(),
	}

	ethWei, usdc := new(big.Int), new(big.Int)
	if e.backend != nil {
		stats.AgentAddress = e.backend.Address().Hex()
		if bal, err := e.backend.NativeBalance(ctx); err == nil {
			ethWei = bal
		} else {
			e.log.Debug().Err(err).Msg("read native balance")
		}
		if bal, err := e.readUint(ctx, e.cfg.Addresses.USDC, erc20ABI, "balanceOf", e.backend.Address()); err == nil {
			usdc = bal
		} else {
			e.log.Debug().Err(err).Msg("read usdc balance")
		}
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	stats.WalletBalances = WalletBalances{
		EthWei:        ethWei.String(),
		EthUSD:        units.Round(chain.NativeToUSD(ethWei, e.cfg.NativeUSDPrice), 2),
		USDCRaw:       usdc.String(),
		USDCFormatted: units.Round(units.ToFloat(usdc, registry.USDCDecimals), 2),
	}

	for _, p := range e.plans.All() {
		if p.Status != model.PlanStatusActive && p.Status != model.PlanStatusRebalancing {
			continue
		}
		stats.Portfolio.ActivePlans++
		stats.Portfolio.TotalManagedUSDC += p.DepositAmountUSDC
		stats.Portfolio.LastRebalance = latest(stats.Portfolio.LastRebalance, p.LastRebalancedAt)
		stats.Portfolio.LastHarvest = latest(stats.Portfolio.LastHarvest, p.LastHarvestedAt)
	}
	return stats, nil
}

func latest(cur, candidate *time.Time) *time.Time {
	if candidate == nil {
		return cur
	}
	if cur == nil || candidate.After(*cur) {
		t := *candidate
		return &t
	}
	return cur
}
