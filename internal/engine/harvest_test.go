package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/model"
)

type recordingSink struct {
	pushed chan Stats
}

func (s *recordingSink) Push(_ context.Context, stats Stats) error {
	s.pushed <- stats
	return nil
}

func TestHarvestBelowFloorOnlyBooksDrip(t *testing.T) {
	for _, tc := range []struct {
		name    string
		yield   int64
		pending string
	}{
		{name: "zero", yield: 0, pending: "0"},
		{name: "just below floor", yield: 999, pending: "0.000999"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			plan := h.fundedPlan(t)
			h.chain.dripYield = big.NewInt(tc.yield)
			txs := h.plans.TransactionCount()

			res, err := h.engine.Harvest(context.Background(), plan.PlanID)
			if err != nil {
				t.Fatalf("Harvest failed: %v", err)
			}
			if res.Harvested || res.PendingYield != tc.pending || res.FeeCollected != 0 {
				t.Fatalf("unexpected result %+v", res)
			}
			calls := h.chain.sentCalls()
			if calls[len(calls)-1] != "drip" {
				t.Fatalf("expected drip to be the last call, got %v", calls)
			}
			if h.costActions("drip") != 1 || h.costActions("harvest") != 0 {
				t.Fatal("expected only the drip gas cost")
			}
			if h.costs.TotalRevenue() != 0 || len(h.costs.RecentRevenue(0)) != 0 {
				t.Fatal("no revenue should be booked below the floor")
			}
			if h.plans.TransactionCount() != txs {
				t.Fatal("no transaction record should be written below the floor")
			}
			if p := h.plan(t, plan.PlanID); p.LastHarvestedAt != nil {
				t.Fatalf("lastHarvestedAt should stay unset, got %v", p.LastHarvestedAt)
			}
		})
	}
}

func TestHarvestBooksManagementFee(t *testing.T) {
	sink := &recordingSink{pushed: make(chan Stats, 1)}
	h := newHarness(t, withSink(sink))
	plan := h.fundedPlan(t)
	h.chain.dripYield = big.NewInt(5_000_000)

	res, err := h.engine.Harvest(context.Background(), plan.PlanID)
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	if !res.Harvested || res.PendingYield != "5" || res.TxHash == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.FeeCollected != 0.1 || res.UserYield != 4.9 {
		t.Fatalf("expected 2%% fee split, got fee %v user %v", res.FeeCollected, res.UserYield)
	}
	revenue := h.costs.RecentRevenue(0)
	if len(revenue) != 1 || revenue[0].Source != model.RevenueManagementFee || revenue[0].AmountUSDC != 0.1 || revenue[0].TxHash != res.TxHash {
		t.Fatalf("unexpected revenue entries %+v", revenue)
	}
	recent := h.plans.Recent(1)
	if recent[0].Type != model.TxTypeHarvest || recent[0].AmountIn != "5" || recent[0].AmountOut != "5" || !recent[0].BuilderCodeIncluded {
		t.Fatalf("unexpected harvest record %+v", recent[0])
	}
	p := h.plan(t, plan.PlanID)
	if p.LastHarvestedAt == nil || !p.LastHarvestedAt.Equal(h.clock) {
		t.Fatalf("expected lastHarvestedAt stamped, got %v", p.LastHarvestedAt)
	}
	if p.Transactions[len(p.Transactions)-1] != res.TxHash {
		t.Fatal("harvest hash should be linked to the plan")
	}

	select {
	case stats := <-sink.pushed:
		if stats.Sustainability.TotalRevenue != 0.1 {
			t.Fatalf("unexpected pushed revenue %v", stats.Sustainability.TotalRevenue)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sink push after harvest")
	}
}

func TestHarvestUnknownPlanIsNoop(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.Harvest(context.Background(), "plan_missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Harvested || res.PendingYield != "0" || len(h.chain.sentCalls()) != 0 {
		t.Fatalf("expected no-op, got %+v", res)
	}
}

func TestWaitPushesCoversHarvestSync(t *testing.T) {
	sink := &recordingSink{pushed: make(chan Stats)}
	h := newHarness(t, withSink(sink))
	plan := h.fundedPlan(t)
	h.chain.dripYield = big.NewInt(5_000_000)

	if _, err := h.engine.Harvest(context.Background(), plan.PlanID); err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.engine.WaitPushes(short); err == nil {
		t.Fatal("WaitPushes should block while the sink push is in flight")
	}

	select {
	case <-sink.pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sink push after harvest")
	}
	done, cancelDone := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelDone()
	if err := h.engine.WaitPushes(done); err != nil {
		t.Fatalf("WaitPushes after delivery: %v", err)
	}
}
