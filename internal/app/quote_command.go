package app

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/gateway"
	"github.com/SiphoYawe/mina-cli/internal/model"
	"github.com/SiphoYawe/mina-cli/internal/resolve"
)

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var (
		chainInput string
		tokenInput string
		amount     string
		slippage   float64
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a bridge quote without executing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			if strings.TrimSpace(amount) == "" {
				return clierr.New(clierr.CodeUsage, "--amount is required")
			}
			if strings.TrimSpace(tokenInput) == "" {
				return clierr.New(clierr.CodeUsage, "--token is required")
			}
			slippagePct := s.userConfig.Slippage
			if cmd.Flags().Changed("slippage") {
				slippagePct = slippage
			}

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
			dest, err := resolve.DestinationChain(chains, chain)
			if err != nil {
				return err
			}
			tokens, err := s.gateway.Tokens(ctx, chain.ChainID)
			if err != nil {
				s.captureCommandDiagnostics(nil, gatewayStatus(start, err))
				return err
			}
			token, err := resolve.Token(tokens, tokenInput)
			if err != nil {
				return err
			}
			baseUnits, err := resolve.ToBaseUnits(amount, token.Decimals)
			if err != nil {
				return err
			}

			quote, err := s.gateway.Quote(ctx, gateway.QuoteRequest{
				FromChainID:     chain.ChainID,
				ToChainID:       dest.ChainID,
				Token:           token.Symbol,
				AmountBaseUnits: baseUnits,
				SlippagePct:     slippagePct,
			})
			status := gatewayStatus(start, err)
			s.captureCommandDiagnostics(nil, status)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), quoteView(quote, chain, dest), nil, cacheMetaBypass(), status)
		},
	}
	cmd.Flags().StringVar(&chainInput, "chain", "", "Source chain key, name or id (defaults to the configured chain)")
	cmd.Flags().StringVar(&tokenInput, "token", "", "Token symbol or address on the source chain")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount to bridge, in token units")
	cmd.Flags().Float64Var(&slippage, "slippage", 0, "Slippage tolerance in percent")
	return cmd
}

func quoteView(quote gateway.Quote, chain, dest gateway.Chain) model.QuoteView {
	decimals := quote.Token.Decimals
	return model.QuoteView{
		FromChain:      chain.Key,
		ToChain:        dest.Key,
		Token:          quote.Token.Symbol,
		InputAmount:    amountInfo(quote.AmountIn, decimals),
		EstimatedOut:   amountInfo(quote.EstimatedOut, decimals),
		FeeUSD:         quote.FeeUSD,
		EstimatedTimeS: quote.EstimatedTimeS,
		SlippagePct:    quote.SlippagePct,
		Route:          quote.Route,
		ExpiresAt:      quote.ExpiresAt,
	}
}
