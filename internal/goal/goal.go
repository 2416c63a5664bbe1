// Package goal turns a free-text savings goal into a timeline, risk level and
// target allocation.
package goal

import (
	"regexp"
	"strconv"

	"github.com/ggonzalez94/savings-agent/internal/model"
)

const defaultYears = 5

var (
	rangePattern = regexp.MustCompile(`(?i)(\d+)\s*-\s*(\d+)\s*years?`)
	yearsPattern = regexp.MustCompile(`(?i)(\d+)\s*years?`)
	nextPattern  = regexp.MustCompile(`(?i)next\s*(\d+)`)
	shortTerm    = regexp.MustCompile(`(?i)short.?term|soon|immedia`)
	mediumTerm   = regexp.MustCompile(`(?i)medium.?term`)
	longTerm     = regexp.MustCompile(`(?i)long.?term|retire`)
	housingWords = regexp.MustCompile(`(?i)house|home|real\s*estate|property|apartment|condo`)
	safetyWords  = regexp.MustCompile(`(?i)safe|conservat|low\s*risk|preserv`)
	growthWords  = regexp.MustCompile(`(?i)grow|aggress|high\s*return|maxim`)
)

// Profile is the classifier output for one goal.
type Profile struct {
	Years      float64          `json:"years"`
	Timeline   string           `json:"timeline"`
	RiskLevel  string           `json:"risk_level"`
	Allocation model.Allocation `json:"allocation"`
}

func Classify(text string) Profile {
	years := ParseTimeline(text)
	return Profile{
		Years:      years,
		Timeline:   Timeline(years),
		RiskLevel:  RiskLevel(years),
		Allocation: Allocate(years, text),
	}
}

// ParseTimeline extracts a horizon in years. A range like "3-5 years" yields its midpoint.
func ParseTimeline(text string) float64 {
	if m := rangePattern.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		return float64(lo+hi) / 2
	}
	if m := yearsPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return float64(n)
	}
	if m := nextPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return float64(n)
	}
	switch {
	case shortTerm.MatchString(text):
		return 1
	case mediumTerm.MatchString(text):
		return 5
	case longTerm.MatchString(text):
		return 15
	}
	return defaultYears
}

func Timeline(years float64) string {
	switch {
	case years < 2:
		return "< 2 years"
	case years < 5:
		return "2-5 years"
	case years < 10:
		return "5-10 years"
	default:
		return "10+ years"
	}
}

func RiskLevel(years float64) string {
	switch {
	case years < 2:
		return "low"
	case years < 5:
		return "medium"
	case years < 10:
		return "medium-high"
	default:
		return "high"
	}
}

// Allocate picks the base table for the horizon, applies keyword boosts, then
// clamps every bucket to [0,100].
func Allocate(years float64, text string) model.Allocation {
	var a model.Allocation
	switch {
	case years < 2:
		a = model.Allocation{Stable: 70, RealEstateHedge: 10, EquityHedge: 10, BondHedge: 10}
	case years < 5:
		a = model.Allocation{Stable: 50, RealEstateHedge: 20, EquityHedge: 20, BondHedge: 10}
	case years < 10:
		a = model.Allocation{Stable: 30, RealEstateHedge: 25, EquityHedge: 35, BondHedge: 10}
	default:
		a = model.Allocation{Stable: 20, RealEstateHedge: 20, EquityHedge: 50, BondHedge: 10}
	}
	if housingWords.MatchString(text) {
		a.RealEstateHedge += 10
		a.Stable -= 10
	}
	if safetyWords.MatchString(text) {
		a.BondHedge += 10
		a.EquityHedge -= 10
	}
	if growthWords.MatchString(text) {
		a.EquityHedge += 10
		a.Stable -= 10
	}
	for _, b := range model.AllBuckets {
		a.Set(b, clamp(a.Get(b)))
	}
	return a
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
