package app

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SiphoYawe/mina-cli/internal/gateway"
	"github.com/SiphoYawe/mina-cli/internal/model"
	"github.com/SiphoYawe/mina-cli/internal/resolve"
	"github.com/SiphoYawe/mina-cli/internal/store"
)

const listCacheTTL = 5 * time.Minute

func (s *runtimeState) newChainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List chains supported by the bridge gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			key := cacheKey(path, map[string]string{})
			return s.runCachedCommand(path, key, listCacheTTL, func(ctx context.Context) (any, *model.GatewayStatus, []string, error) {
				start := time.Now()
				chains, err := s.gateway.Chains(ctx)
				status := gatewayStatus(start, err)
				if err != nil {
					return nil, status, nil, err
				}
				return chainViews(chains), status, nil, nil
			})
		},
	}
}

func (s *runtimeState) newTokensCommand() *cobra.Command {
	var chainInput string
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List bridgeable tokens for a source chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := s.chainOrDefault(chainInput)
			path := trimRootPath(cmd.CommandPath())
			key := cacheKey(path, map[string]string{"chain": strings.ToLower(input)})
			return s.runCachedCommand(path, key, listCacheTTL, func(ctx context.Context) (any, *model.GatewayStatus, []string, error) {
				start := time.Now()
				chains, err := s.gateway.Chains(ctx)
				if err != nil {
					return nil, gatewayStatus(start, err), nil, err
				}
				chain, err := resolve.Chain(chains, input)
				if err != nil {
					return nil, gatewayStatus(start, nil), nil, err
				}
				tokens, err := s.gateway.Tokens(ctx, chain.ChainID)
				status := gatewayStatus(start, err)
				if err != nil {
					return nil, status, nil, err
				}
				return tokenViews(chain, tokens), status, nil, nil
			})
		},
	}
	cmd.Flags().StringVar(&chainInput, "chain", "", "Source chain key, name or id (defaults to the configured chain)")
	return cmd
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	var limit int
	var address string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent bridge transfers recorded on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			entries, err := s.history.List(limit, address)
			if err != nil {
				return err
			}
			views := make([]model.HistoryView, 0, len(entries))
			for _, entry := range entries {
				views = append(views, historyView(entry))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil, cacheMetaBypass(), nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to return")
	cmd.Flags().StringVar(&address, "address", "", "Only entries sent from this address")
	return cmd
}

func (s *runtimeState) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write persistent CLI configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runConfigList(cmd)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runConfigList(cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			value, err := s.configs.Get(args[0])
			if err != nil {
				return err
			}
			data := model.ConfigEntryView{Key: args[0], Value: value}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			value, err := s.configs.Set(args[0], args[1])
			if err != nil {
				return err
			}
			s.userConfig = s.configs.Load()
			data := model.ConfigEntryView{Key: args[0], Value: value}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			data := map[string]string{"path": s.configs.Path()}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil)
		},
	})
	return cmd
}

func (s *runtimeState) runConfigList(cmd *cobra.Command) error {
	s.resetCommandDiagnostics()
	entries := s.configs.All()
	views := make([]model.ConfigEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, model.ConfigEntryView{Key: entry.Key, Value: entry.Value})
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil, cacheMetaBypass(), nil)
}

// chainOrDefault falls back to the configured default chain when the flag
// was left empty.
func (s *runtimeState) chainOrDefault(input string) string {
	if strings.TrimSpace(input) != "" {
		return input
	}
	if s.userConfig.DefaultChain != "" {
		return s.userConfig.DefaultChain
	}
	return store.DefaultCliConfig().DefaultChain
}

func chainViews(chains []gateway.Chain) []model.ChainView {
	views := make([]model.ChainView, 0, len(chains))
	for _, chain := range chains {
		views = append(views, model.ChainView{
			Key:          chain.Key,
			Name:         chain.Name,
			ChainID:      chain.ChainID,
			NativeSymbol: chain.NativeSymbol,
			Destination:  chain.Destination,
		})
	}
	return views
}

func tokenViews(chain gateway.Chain, tokens []gateway.Token) []model.TokenView {
	views := make([]model.TokenView, 0, len(tokens))
	for _, token := range tokens {
		views = append(views, model.TokenView{
			Symbol:   token.Symbol,
			Name:     token.Name,
			Address:  token.Address,
			Decimals: token.Decimals,
			Chain:    chain.Key,
		})
	}
	return views
}

func historyView(entry store.HistoryEntry) model.HistoryView {
	return model.HistoryView{
		TxHash:        entry.TxHash,
		Timestamp:     entry.Timestamp,
		FromChain:     entry.FromChain,
		ToChain:       entry.ToChain,
		Token:         entry.Token,
		Amount:        entry.Amount,
		Address:       entry.Address,
		Status:        entry.Status,
		DepositTxHash: entry.DepositTxHash,
	}
}

func amountInfo(baseUnits string, decimals int) model.AmountInfo {
	return model.AmountInfo{
		AmountBaseUnits: baseUnits,
		AmountDecimal:   resolve.FromBaseUnits(baseUnits, decimals),
		Decimals:        decimals,
	}
}
