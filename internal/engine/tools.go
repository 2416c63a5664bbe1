package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/goal"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/plans"
)

// Compute cost charged per tool invocation, in USD.
const (
	CostCreatePlan     = 0.03
	CostExecuteTrades  = 0.01
	CostCheckPortfolio = 0.01
	CostRebalance      = 0.02
	CostHarvestYield   = 0.01
)

// Tools binds the engine to host-invoked entry points. Every entry point books its
// compute cost before doing any work, and unknown plans surface as CodeNotFound.
type Tools struct {
	engine *Engine
}

func NewTools(e *Engine) *Tools {
	return &Tools{engine: e}
}

type CreatePlanInput struct {
	Goal              string  `json:"goal"`
	DepositAmountUSDC float64 `json:"deposit_amount_usdc"`
	UserAddress       string  `json:"user_address"`
}

func (t *Tools) CreatePlan(_ context.Context, in CreatePlanInput) (model.SavingsPlan, error) {
	if err := t.charge("create_plan", CostCreatePlan); err != nil {
		return model.SavingsPlan{}, err
	}
	text := strings.TrimSpace(in.Goal)
	if text == "" {
		return model.SavingsPlan{}, clierr.New(clierr.CodeUsage, "goal is required")
	}
	if in.DepositAmountUSDC <= 0 {
		return model.SavingsPlan{}, clierr.New(clierr.CodeUsage, "deposit amount must be positive")
	}
	if !common.IsHexAddress(strings.TrimSpace(in.UserAddress)) {
		return model.SavingsPlan{}, clierr.New(clierr.CodeUsage, "user address must be a 0x-prefixed hex address")
	}
	profile := goal.Classify(text)
	plan, err := t.engine.plans.Create(plans.CreateParams{
		UserAddress:       in.UserAddress,
		Goal:              text,
		Timeline:          profile.Timeline,
		RiskLevel:         profile.RiskLevel,
		Allocation:        profile.Allocation,
		DepositAmountUSDC: in.DepositAmountUSDC,
	})
	if err != nil {
		return model.SavingsPlan{}, err
	}
	t.engine.log.Info().Str("plan_id", plan.PlanID).Str("timeline", plan.Timeline).Str("risk_level", plan.RiskLevel).Msg("created plan")
	return plan, nil
}

func (t *Tools) ExecuteTrades(ctx context.Context, planID string) (TradeSummary, error) {
	if err := t.charge("execute_trades", CostExecuteTrades); err != nil {
		return TradeSummary{}, err
	}
	summary, err := t.engine.ExecuteTrades(ctx, planID)
	return summary, notFound(planID, err)
}

func (t *Tools) CheckPortfolio(ctx context.Context, planID string) (model.PortfolioSnapshot, error) {
	if err := t.charge("check_portfolio", CostCheckPortfolio); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	snap, err := t.engine.Snapshot(ctx, planID)
	return snap, notFound(planID, err)
}

func (t *Tools) Rebalance(ctx context.Context, planID string) (RebalanceResult, error) {
	if err := t.charge("rebalance", CostRebalance); err != nil {
		return RebalanceResult{}, err
	}
	if _, ok := t.engine.plans.Get(planID); !ok {
		return RebalanceResult{}, notFound(planID, ErrPlanNotFound)
	}
	return t.engine.Rebalance(ctx, planID)
}

func (t *Tools) HarvestYield(ctx context.Context, planID string) (HarvestResult, error) {
	if err := t.charge("harvest_yield", CostHarvestYield); err != nil {
		return HarvestResult{}, err
	}
	if _, ok := t.engine.plans.Get(planID); !ok {
		return HarvestResult{}, notFound(planID, ErrPlanNotFound)
	}
	return t.engine.Harvest(ctx, planID)
}

func (t *Tools) charge(action string, usd float64) error {
	return t.engine.costs.RecordCompute(action, usd)
}

func notFound(planID string, err error) error {
	if errors.Is(err, ErrPlanNotFound) {
		return clierr.Wrap(clierr.CodeNotFound, "plan "+planID+" not found", err)
	}
	return err
}
