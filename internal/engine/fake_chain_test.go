package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/savings-agent/internal/attribution"
	"github.com/ggonzalez94/savings-agent/internal/chain"
	"github.com/ggonzalez94/savings-agent/internal/registry"
)

var (
	testAgent = common.HexToAddress("0x00000000000000000000000000000000000a6e17")
	testAddrs = registry.Addresses{
		USDC:         common.HexToAddress("0x0000000000000000000000000000000000000c01"),
		SavingsVault: common.HexToAddress("0x0000000000000000000000000000000000000c02"),
		HedgeRouter:  common.HexToAddress("0x0000000000000000000000000000000000000c03"),
		REHedge:      common.HexToAddress("0x0000000000000000000000000000000000000c04"),
		SPHedge:      common.HexToAddress("0x0000000000000000000000000000000000000c05"),
		BondHedge:    common.HexToAddress("0x0000000000000000000000000000000000000c06"),
	}
)

// fakeChain simulates the vault, router and tokens for the agent address.
type fakeChain struct {
	mu sync.Mutex

	usdc      *big.Int
	deposits  *big.Int
	pending   *big.Int
	dripYield *big.Int
	native    *big.Int
	hedge     map[common.Address]*big.Int
	prices    map[common.Address]*big.Int

	fail  map[string]error
	sent  []string
	codes []string
	reads int
	next  int64
}

func newFakeChain() *fakeChain {
	oneUSDC := big.NewInt(1_000_000)
	return &fakeChain{
		usdc:      big.NewInt(1_000_000_000),
		deposits:  new(big.Int),
		pending:   new(big.Int),
		dripYield: new(big.Int),
		native:    new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		hedge: map[common.Address]*big.Int{
			testAddrs.REHedge:   new(big.Int),
			testAddrs.SPHedge:   new(big.Int),
			testAddrs.BondHedge: new(big.Int),
		},
		prices: map[common.Address]*big.Int{
			testAddrs.REHedge:   new(big.Int).Set(oneUSDC),
			testAddrs.SPHedge:   new(big.Int).Set(oneUSDC),
			testAddrs.BondHedge: new(big.Int).Set(oneUSDC),
		},
		fail: map[string]error{},
	}
}

func (f *fakeChain) Address() common.Address { return testAgent }

func (f *fakeChain) contractABI(to common.Address) (abi.ABI, error) {
	switch to {
	case testAddrs.USDC, testAddrs.REHedge, testAddrs.SPHedge, testAddrs.BondHedge:
		return registry.ERC20, nil
	case testAddrs.SavingsVault:
		return registry.SavingsVault, nil
	case testAddrs.HedgeRouter:
		return registry.HedgeRouter, nil
	default:
		return abi.ABI{}, fmt.Errorf("no contract at %s", to.Hex())
	}
}

func (f *fakeChain) decode(to common.Address, data []byte) (abi.ABI, *abi.Method, []any, error) {
	contract, err := f.contractABI(to)
	if err != nil {
		return abi.ABI{}, nil, nil, err
	}
	if len(data) < 4 {
		return abi.ABI{}, nil, nil, fmt.Errorf("short calldata")
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return abi.ABI{}, nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return abi.ABI{}, nil, nil, err
	}
	return contract, method, args, nil
}

func (f *fakeChain) SendCall(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, attr, ok := attribution.Strip(data)
	if !ok {
		return common.Hash{}, fmt.Errorf("calldata is missing the attribution suffix")
	}
	_, method, args, err := f.decode(to, payload)
	if err != nil {
		return common.Hash{}, err
	}
	if err := f.fail[method.Name]; err != nil {
		return common.Hash{}, err
	}
	switch method.Name {
	case "approve":
	case "deposit":
		amount := args[0].(*big.Int)
		f.usdc.Sub(f.usdc, amount)
		f.deposits.Add(f.deposits, amount)
	case "fund":
		f.usdc.Sub(f.usdc, args[0].(*big.Int))
	case "drip":
		f.pending.Add(f.pending, f.dripYield)
	case "harvest":
		f.usdc.Add(f.usdc, f.pending)
		f.pending = new(big.Int)
	case "buyHedge":
		token, amount := args[0].(common.Address), args[1].(*big.Int)
		minted := new(big.Int).Mul(amount, registry.PriceScale())
		minted.Quo(minted, f.prices[token])
		f.usdc.Sub(f.usdc, amount)
		f.hedge[token].Add(f.hedge[token], minted)
	case "sellHedge":
		token, amount := args[0].(common.Address), args[1].(*big.Int)
		proceeds := new(big.Int).Mul(amount, f.prices[token])
		proceeds.Quo(proceeds, registry.PriceScale())
		f.hedge[token].Sub(f.hedge[token], amount)
		f.usdc.Add(f.usdc, proceeds)
	default:
		return common.Hash{}, fmt.Errorf("unexpected write %s", method.Name)
	}
	f.sent = append(f.sent, method.Name)
	f.codes = append(f.codes, attr.Code)
	f.next++
	return common.BigToHash(big.NewInt(f.next)), nil
}

func (f *fakeChain) WaitReceipt(_ context.Context, hash common.Hash) (chain.Receipt, error) {
	return chain.Receipt{
		TxHash:            hash,
		BlockNumber:       100,
		GasUsed:           50_000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
	}, nil
}

func (f *fakeChain) CallContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, method, args, err := f.decode(to, data)
	if err != nil {
		return nil, err
	}
	if err := f.fail[method.Name]; err != nil {
		return nil, err
	}
	f.reads++
	var out *big.Int
	switch method.Name {
	case "deposits":
		out = f.deposits
	case "pendingYield":
		out = f.pending
	case "getPrice":
		out = f.prices[args[0].(common.Address)]
	case "balanceOf":
		if to == testAddrs.USDC {
			out = f.usdc
		} else {
			out = f.hedge[to]
		}
	default:
		return nil, fmt.Errorf("unexpected read %s", method.Name)
	}
	return method.Outputs.Pack(new(big.Int).Set(out))
}

func (f *fakeChain) NativeBalance(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) sentCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.sent...)
}

func (f *fakeChain) setPrice(token common.Address, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[token] = big.NewInt(price)
}

func (f *fakeChain) hedgeBalance(token common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.hedge[token])
}

func (f *fakeChain) vaultDeposits() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.deposits)
}
