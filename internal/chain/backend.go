// Package chain submits attributed contract calls for the agent's signing
// identity and reads contract state.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Backend is the chain client contract the engine depends on.
type Backend interface {
	Address() common.Address
	SendCall(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (Receipt, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	NativeBalance(ctx context.Context) (*big.Int, error)
}

type Receipt struct {
	TxHash            common.Hash
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// FeeWei is gasUsed * effectiveGasPrice.
func (r Receipt) FeeWei() *big.Int {
	if r.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}

// GasCostUSD converts the receipt fee to fiat at a fixed native asset price.
func GasCostUSD(r Receipt, nativeUSD float64) float64 {
	return NativeToUSD(r.FeeWei(), nativeUSD)
}

// NativeToUSD converts a wei amount to fiat at a fixed native asset price.
func NativeToUSD(wei *big.Int, nativeUSD float64) float64 {
	if wei == nil {
		return 0
	}
	eth := decimal.NewFromBigInt(wei, -18)
	return eth.Mul(decimal.NewFromFloat(nativeUSD)).InexactFloat64()
}
