package registry

import (
	"fmt"
	"strings"
)

// HyperEVM chain IDs. Every bridge route terminates on one of these.
const (
	HyperEVMChainID        int64 = 999
	HyperEVMTestnetChainID int64 = 998
)

// Canonical default EVM RPC endpoints by chain ID. Used whenever neither the
// user config (rpc.<chain>) nor the operator settings provide an override.
var defaultRPCByChainID = map[int64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	56:    "https://bsc-dataseed.binance.org",
	137:   "https://polygon-rpc.com",
	8453:  "https://mainnet.base.org",
	42161: "https://arb1.arbitrum.io/rpc",
	43114: "https://api.avax.network/ext/bc/C/rpc",
	998:   "https://rpc.hyperliquid-testnet.xyz/evm",
	999:   "https://rpc.hyperliquid.xyz/evm",
}

var explorerTxByChainID = map[int64]string{
	1:     "https://etherscan.io/tx/",
	10:    "https://optimistic.etherscan.io/tx/",
	56:    "https://bscscan.com/tx/",
	137:   "https://polygonscan.com/tx/",
	8453:  "https://basescan.org/tx/",
	42161: "https://arbiscan.io/tx/",
	43114: "https://snowtrace.io/tx/",
	998:   "https://testnet.purrsec.com/tx/",
	999:   "https://hyperevmscan.io/tx/",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

// ResolveRPCURL picks the first non-empty override, then the canonical
// default for the chain.
func ResolveRPCURL(chainID int64, overrides ...string) (string, error) {
	for _, override := range overrides {
		if strings.TrimSpace(override) != "" {
			return strings.TrimSpace(override), nil
		}
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d", chainID)
}

// ExplorerTxURL returns a block-explorer link for a transaction hash, or ""
// when the chain has no known explorer.
func ExplorerTxURL(chainID int64, txHash string) string {
	base, ok := explorerTxByChainID[chainID]
	if !ok || strings.TrimSpace(txHash) == "" {
		return ""
	}
	return base + txHash
}
