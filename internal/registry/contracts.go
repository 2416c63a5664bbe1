package registry

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// USDCDecimals is the precision of the stable asset.
	USDCDecimals = 6
	// HedgeDecimals is the precision of every hedge token.
	HedgeDecimals = 18
)

// PriceScale is the fixed-point scale of HedgeRouter.getPrice; prices are quoted
// in USDC base units per 1e18 hedge token units.
func PriceScale() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(HedgeDecimals), nil)
}

// Addresses is one deployment of the savings contracts.
type Addresses struct {
	USDC         common.Address `json:"usdc"`
	SavingsVault common.Address `json:"savings_vault"`
	HedgeRouter  common.Address `json:"hedge_router"`
	REHedge      common.Address `json:"re_hedge"`
	SPHedge      common.Address `json:"sp_hedge"`
	BondHedge    common.Address `json:"bond_hedge"`
}

func (a Addresses) Validate() error {
	fields := []struct {
		name string
		addr common.Address
	}{
		{"usdc", a.USDC},
		{"savings_vault", a.SavingsVault},
		{"hedge_router", a.HedgeRouter},
		{"re_hedge", a.REHedge},
		{"sp_hedge", a.SPHedge},
		{"bond_hedge", a.BondHedge},
	}
	for _, f := range fields {
		if f.addr == (common.Address{}) {
			return fmt.Errorf("contract address %s is not configured", f.name)
		}
	}
	return nil
}

// ParseAddress accepts a 0x-prefixed hex address; empty input yields the zero address.
func ParseAddress(raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
