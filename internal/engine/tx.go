package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/savings-agent/internal/attribution"
	"github.com/ggonzalez94/savings-agent/internal/chain"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/ggonzalez94/savings-agent/internal/units"
)

// sentTx is a mined engine call and its fee.
type sentTx struct {
	Hash    common.Hash
	Receipt chain.Receipt
	GasUSD  float64
}

// send attributes calldata with the builder code, submits it, waits for the receipt
// and converts the fee to USD.
func (e *Engine) send(ctx context.Context, to common.Address, data []byte) (sentTx, error) {
	b, err := e.chain()
	if err != nil {
		return sentTx{}, err
	}
	payload, err := attribution.Append(data, e.cfg.BuilderCode)
	if err != nil {
		return sentTx{}, clierr.Wrap(clierr.CodeUsage, "attribute calldata", err)
	}
	hash, err := b.SendCall(ctx, to, payload)
	if err != nil {
		return sentTx{}, err
	}
	receipt, err := b.WaitReceipt(ctx, hash)
	if err != nil {
		return sentTx{}, err
	}
	return sentTx{Hash: hash, Receipt: receipt, GasUSD: chain.GasCostUSD(receipt, e.cfg.NativeUSDPrice)}, nil
}

// exec sends a call and books its gas cost under action.
func (e *Engine) exec(ctx context.Context, action string, to common.Address, contract abi.ABI, method string, args ...any) (sentTx, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return sentTx{}, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s", method), err)
	}
	sent, err := e.send(ctx, to, data)
	if err != nil {
		return sentTx{}, err
	}
	if err := e.costs.RecordGas(action, sent.GasUSD, sent.Hash.Hex()); err != nil {
		return sent, err
	}
	e.log.Debug().Str("action", action).Str("tx_hash", sent.Hash.Hex()).Float64("gas_usd", sent.GasUSD).Msg("call mined")
	return sent, nil
}

// record appends the call to the transaction ledger and links it to the plan.
func (e *Engine) record(planID string, sent sentTx, rec model.TransactionRecord) error {
	rec.TxHash = sent.Hash.Hex()
	rec.PlanID = planID
	rec.GasCostUSD = sent.GasUSD
	rec.Timestamp = e.now().UTC()
	rec.BuilderCodeIncluded = true
	if err := e.plans.RecordTransaction(rec); err != nil {
		return err
	}
	return e.plans.AppendTransaction(planID, rec.TxHash)
}

// approve grants spender an allowance on token and records the call.
func (e *Engine) approve(ctx context.Context, planID string, token common.Address, tokenName string, spender common.Address, amount *big.Int, decimals int32) (sentTx, error) {
	sent, err := e.exec(ctx, "approve", token, erc20ABI, "approve", spender, amount)
	if err != nil {
		return sent, err
	}
	return sent, e.record(planID, sent, model.TransactionRecord{
		Type:      model.TxTypeApprove,
		TokenIn:   tokenName,
		TokenOut:  "-",
		AmountIn:  units.Format(amount, decimals),
		AmountOut: "0",
	})
}

// readUint calls a view method returning a single uint256.
func (e *Engine) readUint(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) (*big.Int, error) {
	b, err := e.chain()
	if err != nil {
		return nil, err
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s", method), err)
	}
	out, err := b.CallContract(ctx, to, data)
	if err != nil {
		return nil, err
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s result", method), err)
	}
	if len(values) != 1 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected %s result", method))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected %s result type %T", method, values[0]))
	}
	return v, nil
}
