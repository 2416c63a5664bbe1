package model

import "time"

type PlanStatus string

const (
	PlanStatusCreated     PlanStatus = "created"
	PlanStatusActive      PlanStatus = "active"
	PlanStatusRebalancing PlanStatus = "rebalancing"
	PlanStatusClosed      PlanStatus = "closed"
)

// Bucket is one slice of a plan's target allocation.
type Bucket string

const (
	BucketStable     Bucket = "stable"
	BucketRealEstate Bucket = "real_estate_hedge"
	BucketEquity     Bucket = "equity_hedge"
	BucketBond       Bucket = "bond_hedge"
)

var (
	AllBuckets   = []Bucket{BucketStable, BucketRealEstate, BucketEquity, BucketBond}
	HedgeBuckets = []Bucket{BucketRealEstate, BucketEquity, BucketBond}
)

// Allocation holds one percentage per bucket. Values are each in [0,100]; they are
// not required to sum to 100.
type Allocation struct {
	Stable          float64 `json:"stable"`
	RealEstateHedge float64 `json:"real_estate_hedge"`
	EquityHedge     float64 `json:"equity_hedge"`
	BondHedge       float64 `json:"bond_hedge"`
}

func (a Allocation) Get(b Bucket) float64 {
	switch b {
	case BucketStable:
		return a.Stable
	case BucketRealEstate:
		return a.RealEstateHedge
	case BucketEquity:
		return a.EquityHedge
	case BucketBond:
		return a.BondHedge
	default:
		return 0
	}
}

func (a *Allocation) Set(b Bucket, v float64) {
	switch b {
	case BucketStable:
		a.Stable = v
	case BucketRealEstate:
		a.RealEstateHedge = v
	case BucketEquity:
		a.EquityHedge = v
	case BucketBond:
		a.BondHedge = v
	}
}

type SavingsPlan struct {
	PlanID            string     `json:"plan_id"`
	UserAddress       string     `json:"user_address"`
	Goal              string     `json:"goal"`
	Timeline          string     `json:"timeline"`
	RiskLevel         string     `json:"risk_level"`
	Allocation        Allocation `json:"allocation"`
	DepositAmountUSDC float64    `json:"deposit_amount_usdc"`
	Status            PlanStatus `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	LastRebalancedAt  *time.Time `json:"last_rebalanced_at,omitempty"`
	LastHarvestedAt   *time.Time `json:"last_harvested_at,omitempty"`
	Transactions      []string   `json:"transactions"`
}

type TxType string

const (
	TxTypeDeposit   TxType = "deposit"
	TxTypeSwapBuy   TxType = "swap_buy"
	TxTypeSwapSell  TxType = "swap_sell"
	TxTypeHarvest   TxType = "harvest"
	TxTypeRebalance TxType = "rebalance"
	TxTypeApprove   TxType = "approve"
)

type TransactionRecord struct {
	TxHash              string    `json:"tx_hash"`
	PlanID              string    `json:"plan_id"`
	Type                TxType    `json:"type"`
	TokenIn             string    `json:"token_in"`
	TokenOut            string    `json:"token_out"`
	AmountIn            string    `json:"amount_in"`
	AmountOut           string    `json:"amount_out"`
	GasCostUSD          float64   `json:"gas_cost_usd"`
	Timestamp           time.Time `json:"timestamp"`
	BuilderCodeIncluded bool      `json:"builder_code_included"`
}

type CostType string

const (
	CostTypeCompute CostType = "compute"
	CostTypeGas     CostType = "gas"
)

type CostEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	Type             CostType  `json:"type"`
	Action           string    `json:"action"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	TxHash           string    `json:"tx_hash,omitempty"`
}

type RevenueSource string

const (
	RevenueManagementFee RevenueSource = "management_fee"
	RevenueX402          RevenueSource = "x402"
)

type RevenueEntry struct {
	Timestamp  time.Time     `json:"timestamp"`
	Source     RevenueSource `json:"source"`
	AmountUSDC float64       `json:"amount_usdc"`
	TxHash     string        `json:"tx_hash,omitempty"`
}

type Holding struct {
	Balance   string  `json:"balance"`
	ValueUSDC float64 `json:"value_usdc"`
}

// PortfolioSnapshot is computed on demand and never persisted.
type PortfolioSnapshot struct {
	PlanID            string             `json:"plan_id"`
	Holdings          map[Bucket]Holding `json:"holdings"`
	TotalValueUSDC    float64            `json:"total_value_usdc"`
	TargetAllocation  Allocation         `json:"target_allocation"`
	CurrentAllocation Allocation         `json:"current_allocation"`
	Drift             Allocation         `json:"drift"`
	MaxDrift          float64            `json:"max_drift"`
	Timestamp         time.Time          `json:"timestamp"`
}
