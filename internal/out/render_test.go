package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/config"
	"github.com/ggonzalez94/savings-agent/internal/model"
)

func samplePlans() []model.SavingsPlan {
	return []model.SavingsPlan{{
		PlanID:            "plan_1",
		Goal:              "buy a house",
		Allocation:        model.Allocation{Stable: 40, RealEstateHedge: 30, EquityHedge: 20, BondHedge: 10},
		DepositAmountUSDC: 100,
		Status:            model.PlanStatusActive,
	}}
}

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    samplePlans(),
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"plan_id", "allocation.stable"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["plan_id"] != "plan_1" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	alloc, ok := out[0]["allocation"].(map[string]any)
	if !ok || alloc["stable"].(float64) != 40 || len(alloc) != 1 {
		t.Fatalf("dot-path projection failed: %s", buf.String())
	}
	if _, ok := out[0]["goal"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderPlainFlattensNested(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    samplePlans(),
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "plan_id=plan_1") || !strings.Contains(buf.String(), "allocation.real_estate_hedge=30") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}
