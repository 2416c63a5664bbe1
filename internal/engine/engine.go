// Package engine is the portfolio rebalancing and execution engine: it reads on-chain
// holdings, decides correcting trades, harvests yield and books every call it makes
// into the transaction and cost ledgers.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ggonzalez94/savings-agent/internal/chain"
	"github.com/ggonzalez94/savings-agent/internal/costs"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/plans"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/rs/zerolog"
)

// ErrPlanNotFound is returned by Snapshot for unknown plan ids.
var ErrPlanNotFound = errors.New("plan not found")

type Config struct {
	Addresses   registry.Addresses
	BuilderCode string
	// NativeUSDPrice converts gas fees paid in the native asset to USD.
	NativeUSDPrice float64
	// DriftThreshold is the max drift, in percentage points, below which rebalance is a no-op.
	DriftThreshold float64
	FeeBps         int64
	// MaterialityFloor is the smallest USDC leg a rebalance will trade.
	MaterialityFloor    float64
	MinHarvestBaseUnits int64
}

func DefaultConfig() Config {
	return Config{
		BuilderCode:         "clawvault",
		NativeUSDPrice:      2500,
		DriftThreshold:      5,
		FeeBps:              200,
		MaterialityFloor:    0.10,
		MinHarvestBaseUnits: 1000,
	}
}

// StatsSink receives a stats snapshot after notable events. Failures are logged only.
type StatsSink interface {
	Push(ctx context.Context, stats Stats) error
}

type Deps struct {
	// Backend may be nil for engines that only touch the local ledgers.
	Backend chain.Backend
	Plans   *plans.Store
	Costs   *costs.Ledger
	Sink    StatsSink
	Logger  zerolog.Logger
	Now     func() time.Time
}

type Engine struct {
	cfg       Config
	backend   chain.Backend
	plans     *plans.Store
	costs     *costs.Ledger
	sink      StatsSink
	log       zerolog.Logger
	now       func() time.Time
	startedAt time.Time

	pushes sync.WaitGroup
}

func New(deps Deps, cfg Config) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	defaults := DefaultConfig()
	if cfg.BuilderCode == "" {
		cfg.BuilderCode = defaults.BuilderCode
	}
	if cfg.NativeUSDPrice <= 0 {
		cfg.NativeUSDPrice = defaults.NativeUSDPrice
	}
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = defaults.DriftThreshold
	}
	if cfg.MaterialityFloor <= 0 {
		cfg.MaterialityFloor = defaults.MaterialityFloor
	}
	if cfg.MinHarvestBaseUnits <= 0 {
		cfg.MinHarvestBaseUnits = defaults.MinHarvestBaseUnits
	}
	return &Engine{
		cfg:       cfg,
		backend:   deps.Backend,
		plans:     deps.Plans,
		costs:     deps.Costs,
		sink:      deps.Sink,
		log:       deps.Logger,
		now:       now,
		startedAt: now().UTC(),
	}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Plans() *plans.Store { return e.plans }

func (e *Engine) Costs() *costs.Ledger { return e.costs }

func (e *Engine) chain() (chain.Backend, error) {
	if e.backend == nil {
		return nil, clierr.New(clierr.CodeUnavailable, "chain backend is not configured")
	}
	return e.backend, nil
}
