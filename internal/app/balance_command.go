package app

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/model"
	"github.com/SiphoYawe/mina-cli/internal/registry"
	"github.com/SiphoYawe/mina-cli/internal/resolve"
	"github.com/SiphoYawe/mina-cli/internal/wallet"
)

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var (
		chainInput string
		address    string
		keyFile    string
		tokenInput string
	)
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show native and token balances for an address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			addr := strings.TrimSpace(address)
			if addr == "" && keyFile != "" {
				key, err := wallet.LoadPrivateKey(keyFile)
				if err != nil {
					return err
				}
				account, err := wallet.AddressOf(key)
				if err != nil {
					return err
				}
				addr = account.Hex()
			}
			if addr == "" {
				return clierr.New(clierr.CodeUsage, "provide --address or --key-file")
			}
			if !common.IsHexAddress(addr) {
				return clierr.New(clierr.CodeUsage, "address must be a 0x-prefixed 20-byte hex string")
			}
			account := common.HexToAddress(addr)

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			start := time.Now()
			chains, err := s.gateway.Chains(ctx)
			if err != nil {
				s.captureCommandDiagnostics(nil, gatewayStatus(start, err))
				return err
			}
			chain, err := resolve.Chain(chains, s.chainOrDefault(chainInput))
			if err != nil {
				return err
			}

			rpcURL, err := registry.ResolveRPCURL(chain.ChainID, s.mergedRPCOverrides()[strings.ToLower(chain.Key)])
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
			}
			node, err := ethclient.DialContext(ctx, rpcURL)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "dial rpc node", err)
			}
			defer node.Close()

			views := []model.BalanceView{}
			wei, err := node.BalanceAt(ctx, account, nil)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
			}
			views = append(views, model.BalanceView{
				Chain:    chain.Key,
				Address:  account.Hex(),
				Symbol:   chain.NativeSymbol,
				Native:   true,
				Decimals: 18,
				Raw:      wei.String(),
				Amount:   resolve.FromBaseUnits(wei.String(), 18),
			})

			status := gatewayStatus(start, nil)
			if strings.TrimSpace(tokenInput) != "" {
				tokens, err := s.gateway.Tokens(ctx, chain.ChainID)
				status = gatewayStatus(start, err)
				if err != nil {
					s.captureCommandDiagnostics(nil, status)
					return err
				}
				token, err := resolve.Token(tokens, tokenInput)
				if err != nil {
					return err
				}
				raw, err := erc20Balance(ctx, node, token.Address, account)
				if err != nil {
					return err
				}
				views = append(views, model.BalanceView{
					Chain:    chain.Key,
					Address:  account.Hex(),
					Token:    token.Address,
					Symbol:   token.Symbol,
					Native:   false,
					Decimals: token.Decimals,
					Raw:      raw.String(),
					Amount:   resolve.FromBaseUnits(raw.String(), token.Decimals),
				})
			}

			s.captureCommandDiagnostics(nil, status)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil, cacheMetaBypass(), status)
		},
	}
	cmd.Flags().StringVar(&chainInput, "chain", "", "Chain key, name or id (defaults to the configured chain)")
	cmd.Flags().StringVar(&address, "address", "", "Account address to inspect")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "Derive the address from a private key file")
	cmd.Flags().StringVar(&tokenInput, "token", "", "Also read this token's ERC-20 balance")
	return cmd
}

func erc20Balance(ctx context.Context, node *ethclient.Client, tokenAddress string, account common.Address) (*big.Int, error) {
	erc20, err := registry.ERC20ABI()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse erc20 abi", err)
	}
	input, err := erc20.Pack("balanceOf", account)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack balanceOf call", err)
	}
	contract := common.HexToAddress(tokenAddress)
	output, err := node.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read token balance", err)
	}
	decoded, err := erc20.Unpack("balanceOf", output)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "decode balanceOf result", err)
	}
	balance, ok := decoded[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeInternal, "unexpected balanceOf result type")
	}
	return balance, nil
}
