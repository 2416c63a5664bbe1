package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/signer"
)

type Options struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	GasMultiplier  float64
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
		GasMultiplier:  1.2,
	}
}

// EthBackend signs EIP-1559 transactions locally and talks to a JSON-RPC node.
type EthBackend struct {
	client *ethclient.Client
	signer signer.Signer
	opts   Options

	mu      sync.Mutex
	chainID *big.Int
}

func Dial(ctx context.Context, rpcURL string, txSigner signer.Signer, opts Options) (*EthBackend, error) {
	if txSigner == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signer")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return NewEthBackend(client, txSigner, opts), nil
}

func NewEthBackend(client *ethclient.Client, txSigner signer.Signer, opts Options) *EthBackend {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaults.ReceiptTimeout
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = defaults.GasMultiplier
	}
	return &EthBackend{client: client, signer: txSigner, opts: opts}
}

func (b *EthBackend) Close() {
	if b != nil && b.client != nil {
		b.client.Close()
	}
}

func (b *EthBackend) Address() common.Address {
	return b.signer.Address()
}

func (b *EthBackend) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chainID != nil {
		return new(big.Int).Set(b.chainID), nil
	}
	id, err := b.client.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	b.chainID = id
	return new(big.Int).Set(id), nil
}

// SendCall signs and broadcasts a zero-value call carrying data. It returns once
// the node accepts the transaction.
func (b *EthBackend) SendCall(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	from := b.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &to, Value: big.NewInt(0), Data: data}
	gasLimit, err := b.client.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, wrapEVMError(clierr.CodeReverted, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * b.opts.GasMultiplier)

	tipCap, err := b.client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	baseFee, err := b.latestBaseFee(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := b.signer.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := signer.Verify(b.signer, chainID, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSigner, "verify signed transaction", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return signed.Hash(), nil
}

type rpcReceipt struct {
	Status            hexutil.Uint64 `json:"status"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	BlockNumber       *hexutil.Big   `json:"blockNumber"`
}

// WaitReceipt polls until the transaction is mined. Reverted transactions return CodeReverted.
func (b *EthBackend) WaitReceipt(ctx context.Context, hash common.Hash) (Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()
	for {
		var raw *rpcReceipt
		err := b.client.Client().CallContext(waitCtx, &raw, "eth_getTransactionReceipt", hash)
		if err == nil && raw != nil {
			if uint64(raw.Status) != types.ReceiptStatusSuccessful {
				return Receipt{}, clierr.New(clierr.CodeReverted, "transaction reverted on-chain: "+hash.Hex())
			}
			out := Receipt{TxHash: hash, GasUsed: uint64(raw.GasUsed), EffectiveGasPrice: new(big.Int)}
			if raw.EffectiveGasPrice != nil {
				out.EffectiveGasPrice = (*big.Int)(raw.EffectiveGasPrice)
			}
			if raw.BlockNumber != nil {
				out.BlockNumber = (*big.Int)(raw.BlockNumber).Uint64()
			}
			return out, nil
		}
		// Not-yet-mined and transient RPC errors both retry until the deadline.
		select {
		case <-waitCtx.Done():
			return Receipt{}, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (b *EthBackend) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := b.client.CallContract(ctx, ethereum.CallMsg{From: b.signer.Address(), To: &to, Data: data}, nil)
	if err != nil {
		return nil, wrapEVMError(clierr.CodeUnavailable, "eth_call "+to.Hex(), err)
	}
	return out, nil
}

func (b *EthBackend) NativeBalance(ctx context.Context) (*big.Int, error) {
	bal, err := b.client.BalanceAt(ctx, b.signer.Address(), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
	}
	return bal, nil
}

func (b *EthBackend) latestBaseFee(ctx context.Context) (*big.Int, error) {
	var block struct {
		BaseFeePerGas *hexutil.Big `json:"baseFeePerGas"`
	}
	if err := b.client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest block", err)
	}
	if block.BaseFeePerGas == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set((*big.Int)(block.BaseFeePerGas)), nil
}
