// Package sink mirrors engine stats to an external Supabase table.
package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/engine"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/httpx"
)

const table = "bot_stats"

type Config struct {
	URL     string
	Key     string
	Timeout time.Duration
	Retries int
}

// Supabase posts one flattened stats row per push.
type Supabase struct {
	endpoint string
	key      string
	client   *httpx.Client
}

// New returns nil when the sink is not configured, which callers treat as disabled.
func New(cfg Config) *Supabase {
	url := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	key := strings.TrimSpace(cfg.Key)
	if url == "" || key == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Supabase{
		endpoint: url + "/rest/v1/" + table,
		key:      key,
		client:   httpx.New(cfg.Timeout, cfg.Retries),
	}
}

// Row is the bot_stats table shape.
type Row struct {
	AgentAddress         string     `json:"agent_address"`
	EthBalanceWei        string     `json:"eth_balance_wei"`
	EthBalanceUSD        float64    `json:"eth_balance_usd"`
	USDCBalanceRaw       string     `json:"usdc_balance_raw"`
	USDCBalanceFormatted float64    `json:"usdc_balance_formatted"`
	TotalRevenue         float64    `json:"total_revenue"`
	TotalComputeCost     float64    `json:"total_compute_cost"`
	TotalGasCost         float64    `json:"total_gas_cost"`
	NetBalance           float64    `json:"net_balance"`
	IsSelfSustaining     bool       `json:"is_self_sustaining"`
	TotalManagedUSDC     float64    `json:"total_managed_usdc"`
	ActivePlans          int        `json:"active_plans"`
	LastRebalance        *time.Time `json:"last_rebalance"`
	LastHarvest          *time.Time `json:"last_harvest"`
	StartedAt            time.Time  `json:"started_at"`
	AutonomousActions    int        `json:"autonomous_actions"`
	TransactionsExecuted int        `json:"transactions_executed"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func Flatten(s engine.Stats) Row {
	return Row{
		AgentAddress:         s.AgentAddress,
		EthBalanceWei:        s.WalletBalances.EthWei,
		EthBalanceUSD:        s.WalletBalances.EthUSD,
		USDCBalanceRaw:       s.WalletBalances.USDCRaw,
		USDCBalanceFormatted: s.WalletBalances.USDCFormatted,
		TotalRevenue:         s.Sustainability.TotalRevenue,
		TotalComputeCost:     s.Sustainability.TotalComputeCost,
		TotalGasCost:         s.Sustainability.TotalGasCost,
		NetBalance:           s.Sustainability.NetBalance,
		IsSelfSustaining:     s.Sustainability.IsSelfSustaining,
		TotalManagedUSDC:     s.Portfolio.TotalManagedUSDC,
		ActivePlans:          s.Portfolio.ActivePlans,
		LastRebalance:        s.Portfolio.LastRebalance,
		LastHarvest:          s.Portfolio.LastHarvest,
		StartedAt:            s.Uptime.StartedAt,
		AutonomousActions:    s.Uptime.AutonomousActions,
		TransactionsExecuted: s.Uptime.TransactionsExecuted,
		UpdatedAt:            s.UpdatedAt,
	}
}

// Push upserts the row. Every failure is returned as CodeSync.
func (s *Supabase) Push(ctx context.Context, stats engine.Stats) error {
	if s == nil {
		return nil
	}
	body, err := json.Marshal(Flatten(stats))
	if err != nil {
		return clierr.Wrap(clierr.CodeSync, "encode stats row", err)
	}
	headers := map[string]string{
		"apikey":        s.key,
		"Authorization": "Bearer " + s.key,
		"Prefer":        "resolution=merge-duplicates",
	}
	if _, err := httpx.DoBodyJSON(ctx, s.client, http.MethodPost, s.endpoint, body, headers, nil); err != nil {
		return clierr.Wrap(clierr.CodeSync, "sync stats", err)
	}
	return nil
}
