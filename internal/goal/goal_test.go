package goal

import (
	"testing"

	"github.com/ggonzalez94/savings-agent/internal/model"
)

func TestClassifyHouseGoal(t *testing.T) {
	p := Classify("buy a house in 3-5 years")
	if p.Years != 4 || p.Timeline != "2-5 years" || p.RiskLevel != "medium" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	want := model.Allocation{Stable: 40, RealEstateHedge: 30, EquityHedge: 20, BondHedge: 10}
	if p.Allocation != want {
		t.Fatalf("allocation = %+v, want %+v", p.Allocation, want)
	}
}

func TestParseTimeline(t *testing.T) {
	cases := []struct {
		goal string
		want float64
	}{
		{"retire in 20 Years", 20},
		{"save over the next 7", 7},
		{"a car, 1-2 years out", 1.5},
		{"emergency fund soon", 1},
		{"medium-term savings", 5},
		{"long term wealth", 15},
		{"planning for retirement", 15},
		{"just save", 5},
	}
	for _, tc := range cases {
		if got := ParseTimeline(tc.goal); got != tc.want {
			t.Fatalf("ParseTimeline(%q) = %v, want %v", tc.goal, got, tc.want)
		}
	}
}

func TestTimelineAndRiskBoundaries(t *testing.T) {
	cases := []struct {
		years    float64
		timeline string
		risk     string
	}{
		{1.9, "< 2 years", "low"},
		{2, "2-5 years", "medium"},
		{5, "5-10 years", "medium-high"},
		{10, "10+ years", "high"},
	}
	for _, tc := range cases {
		if Timeline(tc.years) != tc.timeline || RiskLevel(tc.years) != tc.risk {
			t.Fatalf("years=%v -> %s/%s", tc.years, Timeline(tc.years), RiskLevel(tc.years))
		}
	}
}

func TestAllocateBoostsAndClamp(t *testing.T) {
	got := Allocate(1, "safe and preserve")
	want := model.Allocation{Stable: 70, RealEstateHedge: 10, EquityHedge: 0, BondHedge: 20}
	if got != want {
		t.Fatalf("safety boost = %+v, want %+v", got, want)
	}
	got = Allocate(12, "grow aggressively, maybe a condo")
	want = model.Allocation{Stable: 0, RealEstateHedge: 30, EquityHedge: 60, BondHedge: 10}
	if got != want {
		t.Fatalf("growth+housing boost = %+v, want %+v", got, want)
	}
	for _, b := range model.AllBuckets {
		if v := Allocate(0, "home safe grow").Get(b); v < 0 || v > 100 {
			t.Fatalf("bucket %s out of range: %v", b, v)
		}
	}
}
