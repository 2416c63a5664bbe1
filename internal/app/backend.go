package app

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/savings-agent/internal/chain"
	"github.com/ggonzalez94/savings-agent/internal/config"
	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"github.com/ggonzalez94/savings-agent/internal/signer"
)

// lazyBackend resolves the signer and dials the RPC endpoint on first use. A connected
// backend and configuration errors are kept; an unreachable node is retried by the
// next call.
type lazyBackend struct {
	settings config.Settings

	mu      sync.Mutex
	backend *chain.EthBackend
	err     error
	closed  bool
}

var _ chain.Backend = (*lazyBackend)(nil)

func newLazyBackend(settings config.Settings) *lazyBackend {
	return &lazyBackend{settings: settings}
}

func (l *lazyBackend) get(ctx context.Context) (*chain.EthBackend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return nil, clierr.New(clierr.CodeUnavailable, "chain backend closed")
	case l.backend != nil:
		return l.backend, nil
	case l.err != nil:
		return nil, l.err
	}
	b, err := l.dial(ctx)
	if err != nil {
		if !clierr.Is(err, clierr.CodeUnavailable) {
			l.err = err
		}
		return nil, err
	}
	l.backend = b
	return b, nil
}

func (l *lazyBackend) dial(ctx context.Context) (*chain.EthBackend, error) {
	if err := l.settings.Contracts.Validate(); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve contracts", err)
	}
	rpcURL, err := registry.ResolveRPCURL(l.settings.RPCURL, l.settings.ChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	txSigner, err := signer.NewLocalSignerFromEnv(l.settings.KeySource)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "initialize signer", err)
	}
	opts := chain.DefaultOptions()
	if l.settings.PollInterval > 0 {
		opts.PollInterval = l.settings.PollInterval
	}
	if l.settings.ReceiptTimeout > 0 {
		opts.ReceiptTimeout = l.settings.ReceiptTimeout
	}
	b, err := chain.Dial(ctx, rpcURL, txSigner, opts)
	if err != nil {
		return nil, err
	}
	chainID, err := b.ChainID(ctx)
	if err != nil {
		b.Close()
		return nil, err
	}
	if chainID.Int64() != l.settings.ChainID {
		b.Close()
		return nil, clierr.New(clierr.CodeUsage, "rpc chain id "+chainID.String()+" does not match configured chain id")
	}
	return b, nil
}

// Address reports the zero address when the signer cannot be resolved; the
// following call that returns an error surfaces the cause.
func (l *lazyBackend) Address() common.Address {
	b, err := l.get(context.Background())
	if err != nil {
		return common.Address{}
	}
	return b.Address()
}

func (l *lazyBackend) SendCall(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	b, err := l.get(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return b.SendCall(ctx, to, data)
}

func (l *lazyBackend) WaitReceipt(ctx context.Context, hash common.Hash) (chain.Receipt, error) {
	b, err := l.get(ctx)
	if err != nil {
		return chain.Receipt{}, err
	}
	return b.WaitReceipt(ctx, hash)
}

func (l *lazyBackend) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	b, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return b.CallContract(ctx, to, data)
}

func (l *lazyBackend) NativeBalance(ctx context.Context) (*big.Int, error) {
	b, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return b.NativeBalance(ctx)
}

// resolvedAddress does not trigger a dial.
func (l *lazyBackend) resolvedAddress() string {
	var addr string
	l.peek(func(b *chain.EthBackend) { addr = b.Address().Hex() })
	return addr
}

func (l *lazyBackend) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.backend != nil {
		l.backend.Close()
	}
}

// peek runs fn only if a backend was already dialled.
func (l *lazyBackend) peek(fn func(*chain.EthBackend)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend != nil {
		fn(l.backend)
	}
}
