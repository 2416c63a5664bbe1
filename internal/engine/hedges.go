package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/registry"
)

var (
	erc20ABI  = registry.ERC20
	vaultABI  = registry.SavingsVault
	routerABI = registry.HedgeRouter
)

const stableSymbol = "USDC"

type hedge struct {
	bucket model.Bucket
	symbol string
	token  common.Address
}

// hedges lists the hedge buckets in the order trades are sequenced.
func (e *Engine) hedges() []hedge {
	a := e.cfg.Addresses
	return []hedge{
		{bucket: model.BucketRealEstate, symbol: "RE-HEDGE", token: a.REHedge},
		{bucket: model.BucketEquity, symbol: "SP-HEDGE", token: a.SPHedge},
		{bucket: model.BucketBond, symbol: "BOND-HEDGE", token: a.BondHedge},
	}
}
