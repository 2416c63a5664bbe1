package engine

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/costs"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/persist"
	"github.com/ggonzalez94/savings-agent/internal/plans"
	"github.com/rs/zerolog"
)

const (
	houseGoal    = "buy a house in 3-5 years"
	testUser     = "0x00000000000000000000000000000000000000aa"
	gasPerCall   = 0.125
	floatEpsilon = 1e-9
)

type harness struct {
	engine *Engine
	tools  *Tools
	chain  *fakeChain
	plans  *plans.Store
	costs  *costs.Ledger
	clock  time.Time
}

type harnessOption func(*Deps, *Config)

func withSink(s StatsSink) harnessOption {
	return func(d *Deps, _ *Config) { d.Sink = s }
}

func withConfig(fn func(*Config)) harnessOption {
	return func(_ *Deps, c *Config) { fn(c) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := persist.Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "state.lock"))
	if err != nil {
		t.Fatalf("open persist: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		chain: newFakeChain(),
		plans: plans.Open(db, zerolog.Nop()),
		costs: costs.Open(db, zerolog.Nop()),
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	deps := Deps{
		Backend: h.chain,
		Plans:   h.plans,
		Costs:   h.costs,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return h.clock },
	}
	cfg := DefaultConfig()
	cfg.Addresses = testAddrs
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	h.engine = New(deps, cfg)
	h.tools = NewTools(h.engine)
	return h
}

func (h *harness) createHousePlan(t *testing.T) model.SavingsPlan {
	t.Helper()
	plan, err := h.tools.CreatePlan(context.Background(), CreatePlanInput{
		Goal:              houseGoal,
		DepositAmountUSDC: 100,
		UserAddress:       testUser,
	})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	return plan
}

func (h *harness) fundedPlan(t *testing.T) model.SavingsPlan {
	t.Helper()
	plan := h.createHousePlan(t)
	if _, err := h.engine.ExecuteTrades(context.Background(), plan.PlanID); err != nil {
		t.Fatalf("ExecuteTrades failed: %v", err)
	}
	return plan
}

func (h *harness) plan(t *testing.T, id string) model.SavingsPlan {
	t.Helper()
	p, ok := h.plans.Get(id)
	if !ok {
		t.Fatalf("plan %s missing", id)
	}
	return p
}

func (h *harness) costActions(action string) int {
	n := 0
	for _, c := range h.costs.RecentCosts(0) {
		if c.Action == action {
			n++
		}
	}
	return n
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < floatEpsilon
}
