package registry

import (
	"fmt"
	"strings"
)

const DefaultChainID int64 = 11155111

// Default public RPC endpoints for the chains the savings contracts are deployed on.
var defaultRPCByChainID = map[int64]string{
	1:        "https://eth.llamarpc.com",
	8453:     "https://mainnet.base.org",
	31337:    "http://127.0.0.1:8545",
	84532:    "https://sepolia.base.org",
	11155111: "https://ethereum-sepolia-rpc.publicnode.com",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; provide --rpc-url", chainID)
}
