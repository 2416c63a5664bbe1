// Package costs is the append-only cost and revenue ledger that decides whether
// the agent pays for itself.
package costs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/units"
	"github.com/rs/zerolog"
)

const (
	collectionCosts   = "costs"
	collectionRevenue = "revenue"
)

type Backend interface {
	Load(name string, out any) (bool, error)
	Save(name string, v any) error
}

type Ledger struct {
	mu      sync.RWMutex
	db      Backend
	now     func() time.Time
	costs   []model.CostEntry
	revenue []model.RevenueEntry
}

// Summary is the rounded sustainability view shared by the debug API and the sync sink.
type Summary struct {
	TotalRevenue     float64 `json:"total_revenue"`
	TotalComputeCost float64 `json:"total_compute_cost"`
	TotalGasCost     float64 `json:"total_gas_cost"`
	TotalCost        float64 `json:"total_cost"`
	NetBalance       float64 `json:"net_balance"`
	IsSelfSustaining bool    `json:"is_self_sustaining"`
}

func Open(db Backend, log zerolog.Logger) *Ledger {
	l := &Ledger{db: db, now: time.Now}
	if _, err := db.Load(collectionCosts, &l.costs); err != nil {
		log.Warn().Err(err).Str("collection", collectionCosts).Msg("resetting unreadable collection")
		l.costs = nil
	}
	if _, err := db.Load(collectionRevenue, &l.revenue); err != nil {
		log.Warn().Err(err).Str("collection", collectionRevenue).Msg("resetting unreadable collection")
		l.revenue = nil
	}
	return l
}

func (l *Ledger) RecordCompute(action string, usd float64) error {
	return l.appendCost(model.CostEntry{Type: model.CostTypeCompute, Action: action, EstimatedCostUSD: usd})
}

func (l *Ledger) RecordGas(action string, usd float64, txHash string) error {
	return l.appendCost(model.CostEntry{Type: model.CostTypeGas, Action: action, EstimatedCostUSD: usd, TxHash: txHash})
}

func (l *Ledger) RecordRevenue(source model.RevenueSource, usdc float64, txHash string) error {
	if usdc < 0 {
		return clierr.New(clierr.CodeUsage, "revenue must be non-negative")
	}
	entry := model.RevenueEntry{Timestamp: l.now().UTC(), Source: source, AmountUSDC: usdc, TxHash: txHash}
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]model.RevenueEntry, len(l.revenue), len(l.revenue)+1)
	copy(next, l.revenue)
	next = append(next, entry)
	if err := l.save(collectionRevenue, next); err != nil {
		return err
	}
	l.revenue = next
	return nil
}

func (l *Ledger) appendCost(entry model.CostEntry) error {
	if entry.EstimatedCostUSD < 0 {
		return clierr.New(clierr.CodeUsage, "cost must be non-negative")
	}
	entry.Timestamp = l.now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]model.CostEntry, len(l.costs), len(l.costs)+1)
	copy(next, l.costs)
	next = append(next, entry)
	if err := l.save(collectionCosts, next); err != nil {
		return err
	}
	l.costs = next
	return nil
}

func (l *Ledger) TotalCompute() float64 { return l.sumCosts(model.CostTypeCompute) }

func (l *Ledger) TotalGas() float64 { return l.sumCosts(model.CostTypeGas) }

func (l *Ledger) TotalCost() float64 { return l.sumCosts("") }

func (l *Ledger) TotalRevenue() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, r := range l.revenue {
		total += r.AmountUSDC
	}
	return total
}

func (l *Ledger) NetBalance() float64 {
	return l.TotalRevenue() - l.TotalCost()
}

func (l *Ledger) IsSelfSustaining() bool {
	return l.NetBalance() >= 0
}

func (l *Ledger) RecentCosts(n int) []model.CostEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.CostEntry{}, tail(l.costs, n)...)
}

func (l *Ledger) RecentRevenue(n int) []model.RevenueEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.RevenueEntry{}, tail(l.revenue, n)...)
}

// CountActions counts cost entries whose action label starts with prefix.
func (l *Ledger) CountActions(prefix string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, c := range l.costs {
		if strings.HasPrefix(c.Action, prefix) {
			n++
		}
	}
	return n
}

// Summary rounds every figure to 4 decimal places. NetBalance and IsSelfSustaining
// are derived from the unrounded totals.
func (l *Ledger) Summary() Summary {
	net := l.NetBalance()
	return Summary{
		TotalRevenue:     units.Round(l.TotalRevenue(), 4),
		TotalComputeCost: units.Round(l.TotalCompute(), 4),
		TotalGasCost:     units.Round(l.TotalGas(), 4),
		TotalCost:        units.Round(l.TotalCost(), 4),
		NetBalance:       units.Round(net, 4),
		IsSelfSustaining: net >= 0,
	}
}

func (l *Ledger) sumCosts(typ model.CostType) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, c := range l.costs {
		if typ == "" || c.Type == typ {
			total += c.EstimatedCostUSD
		}
	}
	return total
}

func (l *Ledger) save(name string, v any) error {
	if err := l.db.Save(name, v); err != nil {
		return clierr.Wrap(clierr.CodePersistence, fmt.Sprintf("persist %s", name), err)
	}
	return nil
}

func tail[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
