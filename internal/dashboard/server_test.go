package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/costs"
	"github.com/ggonzalez94/savings-agent/internal/engine"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/persist"
	"github.com/ggonzalez94/savings-agent/internal/plans"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*Server, *plans.Store, *costs.Ledger) {
	t.Helper()
	dir := t.TempDir()
	db, err := persist.Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "state.lock"))
	if err != nil {
		t.Fatalf("open persist: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ps := plans.Open(db, zerolog.Nop())
	cs := costs.Open(db, zerolog.Nop())
	e := engine.New(engine.Deps{Plans: ps, Costs: cs, Logger: zerolog.Nop()}, engine.DefaultConfig())
	return New(e, "127.0.0.1:0", zerolog.Nop()), ps, cs
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestEndpointsServeLedgers(t *testing.T) {
	s, ps, cs := newTestServer(t)
	plan, err := ps.Create(plans.CreateParams{
		UserAddress:       "0xabc",
		Goal:              "retire",
		Timeline:          "10+ years",
		RiskLevel:         "high",
		Allocation:        model.Allocation{Stable: 20, RealEstateHedge: 20, EquityHedge: 50, BondHedge: 10},
		DepositAmountUSDC: 50,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if err := ps.RecordTransaction(model.TransactionRecord{TxHash: "0x01", PlanID: plan.PlanID, Type: model.TxTypeDeposit}); err != nil {
		t.Fatalf("record tx: %v", err)
	}
	if err := cs.RecordCompute("create_plan", 0.03); err != nil {
		t.Fatalf("record compute: %v", err)
	}
	if err := cs.RecordRevenue(model.RevenueManagementFee, 0.02, "0x02"); err != nil {
		t.Fatalf("record revenue: %v", err)
	}

	rec := do(t, s, http.MethodGet, "/api/plans")
	var gotPlans []model.SavingsPlan
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &gotPlans) != nil || len(gotPlans) != 1 || gotPlans[0].PlanID != plan.PlanID {
		t.Fatalf("unexpected /api/plans: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	rec = do(t, s, http.MethodGet, "/api/transactions")
	var txs []model.TransactionRecord
	if json.Unmarshal(rec.Body.Bytes(), &txs) != nil || len(txs) != 1 || txs[0].TxHash != "0x01" {
		t.Fatalf("unexpected /api/transactions: %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/costs")
	var view costsView
	if json.Unmarshal(rec.Body.Bytes(), &view) != nil || len(view.Costs) != 1 || len(view.Revenue) != 1 {
		t.Fatalf("unexpected /api/costs: %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/stats")
	var stats engine.Stats
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &stats) != nil {
		t.Fatalf("unexpected /api/stats: %d %s", rec.Code, rec.Body.String())
	}
	if stats.WalletBalances.EthWei != "0" || stats.Uptime.TransactionsExecuted != 1 || stats.Portfolio.ActivePlans != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPreflightUnknownAndMethod(t *testing.T) {
	s, _, _ := newTestServer(t)

	if rec := do(t, s, http.MethodOptions, "/api/stats"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/api/nope")
	if rec.Code != http.StatusNotFound || rec.Body.String() != "{\"error\":\"Not found\"}\n" {
		t.Fatalf("unexpected 404 body: %d %q", rec.Code, rec.Body.String())
	}

	if rec := do(t, s, http.MethodPost, "/api/plans"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStatsFailureIs500(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil).WithContext(ctx))
	var body map[string]string
	if rec.Code != http.StatusInternalServerError || json.Unmarshal(rec.Body.Bytes(), &body) != nil || body["error"] == "" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStartServesAndShutsDown(t *testing.T) {
	s, _, _ := newTestServer(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/api/plans")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestCheckLoopback(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:3402", "localhost:80", "[::1]:3402"} {
		if err := CheckLoopback(addr); err != nil {
			t.Fatalf("%s: unexpected error %v", addr, err)
		}
	}
	for _, addr := range []string{"0.0.0.0:3402", "10.0.0.1:80", "nohost"} {
		if err := CheckLoopback(addr); !clierr.Is(err, clierr.CodeUsage) {
			t.Fatalf("%s: expected usage error, got %v", addr, err)
		}
	}
}
