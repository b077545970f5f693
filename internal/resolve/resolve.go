package resolve

import (
	"fmt"
	"strconv"
	"strings"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/gateway"
)

// Chain matches the user's input against the gateway chain list by key,
// display name, or numeric chain id, case-insensitively. A miss names the
// valid keys so the caller can self-correct.
func Chain(chains []gateway.Chain, input string) (gateway.Chain, error) {
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return gateway.Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	for _, chain := range chains {
		if strings.ToLower(chain.Key) == needle {
			return chain, nil
		}
		if strings.ToLower(chain.Name) == needle {
			return chain, nil
		}
		if strconv.FormatInt(chain.ChainID, 10) == needle {
			return chain, nil
		}
	}
	return gateway.Chain{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("unknown chain %q (valid: %s)", strings.TrimSpace(input), strings.Join(chainKeys(chains), ", ")))
}

// DestinationChain picks the gateway-flagged destination network. Bridges
// always land on HyperEVM; the gateway list says which variant (mainnet or
// testnet) this deployment serves.
func DestinationChain(chains []gateway.Chain, source gateway.Chain) (gateway.Chain, error) {
	for _, chain := range chains {
		if chain.Destination && chain.ChainID != source.ChainID {
			return chain, nil
		}
	}
	return gateway.Chain{}, clierr.New(clierr.CodeUnavailable, "gateway lists no destination chain")
}

// Token matches by symbol or contract address, case-insensitively.
func Token(tokens []gateway.Token, input string) (gateway.Token, error) {
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return gateway.Token{}, clierr.New(clierr.CodeUsage, "token is required")
	}
	for _, token := range tokens {
		if strings.ToLower(token.Symbol) == needle {
			return token, nil
		}
		if strings.ToLower(token.Address) == needle {
			return token, nil
		}
	}
	return gateway.Token{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("unknown token %q (valid: %s)", strings.TrimSpace(input), strings.Join(tokenSymbols(tokens), ", ")))
}

func chainKeys(chains []gateway.Chain) []string {
	keys := make([]string, 0, len(chains))
	for _, chain := range chains {
		keys = append(keys, chain.Key)
	}
	return keys
}

func tokenSymbols(tokens []gateway.Token) []string {
	symbols := make([]string, 0, len(tokens))
	for _, token := range tokens {
		symbols = append(symbols, token.Symbol)
	}
	return symbols
}
