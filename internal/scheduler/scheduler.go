// Package scheduler drives the autonomous harvest and rebalance loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/engine"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval = 60 * time.Minute

	idleAction     = "autonomous_loop_idle"
	idleCostUSD    = 0.001
	perPlanAction  = "autonomous_loop"
	perPlanCostUSD = 0.005
)

// Engine is the slice of the engine the loop drives.
type Engine interface {
	Harvest(ctx context.Context, planID string) (engine.HarvestResult, error)
	Rebalance(ctx context.Context, planID string) (engine.RebalanceResult, error)
	PushStats(ctx context.Context)
}

type Plans interface {
	Active() []model.SavingsPlan
}

type Costs interface {
	RecordCompute(action string, usd float64) error
	NetBalance() float64
	IsSelfSustaining() bool
}

// TickSummary reports one loop iteration.
type TickSummary struct {
	TickID     string `json:"tick_id"`
	Plans      int    `json:"plans"`
	Harvested  int    `json:"harvested"`
	Rebalanced int    `json:"rebalanced"`
	Failures   int    `json:"failures"`
}

type Scheduler struct {
	engine   Engine
	plans    Plans
	costs    Costs
	log      zerolog.Logger
	interval time.Duration

	mu      sync.Mutex
	running *Handle
}

func New(e Engine, plans Plans, costs Costs, log zerolog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{engine: e, plans: plans, costs: costs, log: log, interval: interval}
}

// Handle controls a started loop.
type Handle struct {
	s    *Scheduler
	cron *cron.Cron
	once sync.Once
	done context.Context
}

// Start installs the periodic tick. Ticks keep ctx's values but not its cancellation:
// a tick in flight when ctx is cancelled still records its transactions. Use Stop to
// end the loop. Calling Start on a running scheduler returns the existing handle.
func (s *Scheduler) Start(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != nil {
		return s.running, nil
	}
	tickCtx := context.WithoutCancel(ctx)
	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.Tick(tickCtx) }); err != nil {
		return nil, fmt.Errorf("register loop: %w", err)
	}
	c.Start()
	h := &Handle{s: s, cron: c}
	s.running = h
	s.log.Info().Dur("interval", s.interval).Msg("autonomous loop started")
	return h, nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running != nil
}

// Stop prevents further ticks. A tick already in progress runs to completion; the
// returned context is done once it has. Stop is idempotent.
func (h *Handle) Stop() context.Context {
	h.once.Do(func() {
		h.done = h.cron.Stop()
		h.s.mu.Lock()
		if h.s.running == h {
			h.s.running = nil
		}
		h.s.mu.Unlock()
		h.s.log.Info().Msg("autonomous loop stopped")
	})
	return h.done
}

// Tick runs one iteration: harvest then rebalance for every active plan, one plan at
// a time. A failure in either phase is logged and the loop moves on.
func (s *Scheduler) Tick(ctx context.Context) TickSummary {
	summary := TickSummary{TickID: uuid.NewString()}
	log := s.log.With().Str("tick_id", summary.TickID).Logger()

	active := s.plans.Active()
	summary.Plans = len(active)
	if len(active) == 0 {
		if err := s.costs.RecordCompute(idleAction, idleCostUSD); err != nil {
			log.Warn().Err(err).Msg("record idle cost")
		}
		log.Debug().Msg("no active plans")
		return summary
	}

	for _, plan := range active {
		plog := log.With().Str("plan_id", plan.PlanID).Logger()
		plog.Info().Str("goal", plan.Goal).Msg("processing plan")

		harvest, err := s.engine.Harvest(ctx, plan.PlanID)
		switch {
		case err != nil:
			summary.Failures++
			plog.Error().Err(err).Msg("harvest failed")
		case harvest.Harvested:
			summary.Harvested++
			plog.Info().Str("pending_yield", harvest.PendingYield).Float64("fee_usdc", harvest.FeeCollected).Msg("harvested")
		}

		rebalance, err := s.engine.Rebalance(ctx, plan.PlanID)
		switch {
		case err != nil:
			summary.Failures++
			plog.Error().Err(err).Msg("rebalance failed")
		case rebalance.Rebalanced:
			summary.Rebalanced++
			plog.Info().Int("trades", len(rebalance.Trades)).Msg("rebalanced")
		default:
			plog.Info().Float64("max_drift", rebalance.MaxDrift).Msg("no rebalance needed")
		}

		if err := s.costs.RecordCompute(perPlanAction, perPlanCostUSD); err != nil {
			plog.Warn().Err(err).Msg("record loop cost")
		}
	}

	log.Info().
		Bool("self_sustaining", s.costs.IsSelfSustaining()).
		Float64("net_usd", s.costs.NetBalance()).
		Int("harvested", summary.Harvested).
		Int("rebalanced", summary.Rebalanced).
		Int("failures", summary.Failures).
		Msg("tick complete")
	s.engine.PushStats(ctx)
	return summary
}

// cronLogger routes cron's own diagnostics through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
