package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the contracts the engine calls.
const (
	ERC20ABI = `[
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
	]`

	SavingsVaultABI = `[
		{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"drip","type":"function","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"}],"outputs":[]},
		{"name":"harvest","type":"function","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"}],"outputs":[]},
		{"name":"deposits","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"pendingYield","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"fund","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
	]`

	HedgeRouterABI = `[
		{"name":"buyHedge","type":"function","stateMutability":"nonpayable","inputs":[{"name":"hedgeToken","type":"address"},{"name":"usdcAmount","type":"uint256"}],"outputs":[]},
		{"name":"sellHedge","type":"function","stateMutability":"nonpayable","inputs":[{"name":"hedgeToken","type":"address"},{"name":"hedgeAmount","type":"uint256"}],"outputs":[]},
		{"name":"getPrice","type":"function","stateMutability":"view","inputs":[{"name":"hedgeToken","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`
)

var (
	ERC20        = MustABI(ERC20ABI)
	SavingsVault = MustABI(SavingsVaultABI)
	HedgeRouter  = MustABI(HedgeRouterABI)
)

func MustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
