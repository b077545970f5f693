package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SiphoYawe/mina-cli/internal/bridge"
	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/gateway"
	"github.com/SiphoYawe/mina-cli/internal/model"
	"github.com/SiphoYawe/mina-cli/internal/registry"
	"github.com/SiphoYawe/mina-cli/internal/resolve"
	"github.com/SiphoYawe/mina-cli/internal/ui"
	"github.com/SiphoYawe/mina-cli/internal/wallet"
)

func (s *runtimeState) newBridgeCommand() *cobra.Command {
	var (
		chainInput  string
		tokenInput  string
		amount      string
		keyFile     string
		recipient   string
		slippage    float64
		autoDeposit bool
		yes         bool
	)
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Bridge a token from an EVM chain to HyperEVM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			if strings.TrimSpace(amount) == "" {
				return clierr.New(clierr.CodeUsage, "--amount is required")
			}
			if strings.TrimSpace(tokenInput) == "" {
				return clierr.New(clierr.CodeUsage, "--token is required")
			}
			params := bridge.Params{
				ChainInput:   s.chainOrDefault(chainInput),
				TokenInput:   tokenInput,
				Amount:       amount,
				Recipient:    recipient,
				SlippagePct:  s.userConfig.Slippage,
				AutoDeposit:  s.userConfig.AutoDeposit,
				RPCOverrides: s.mergedRPCOverrides(),
			}
			if cmd.Flags().Changed("slippage") {
				params.SlippagePct = slippage
			}
			if cmd.Flags().Changed("auto-deposit") {
				params.AutoDeposit = autoDeposit
			}
			if keyFile != "" {
				key, err := wallet.LoadPrivateKey(keyFile)
				if err != nil {
					return err
				}
				params.Key = key
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			if s.machineOutput() {
				// No prompts in machine output: the key must come from a
				// file and the confirm gate is implied.
				if params.Key == "" {
					return clierr.New(clierr.CodeUsage, "--key-file is required with --json or --plain")
				}
				return s.runBridgeEnvelope(ctx, cmd, params)
			}

			theme := s.theme()
			w := cmd.OutOrStdout()
			prompter := ui.NewPrompter(cmd.InOrStdin(), w, theme)
			if params.Key == "" {
				key, err := wallet.PromptPrivateKey(prompter.Reader(), w)
				if err != nil {
					return err
				}
				params.Key = key
			}

			view := &flowView{theme: theme, out: w}
			ctrl := bridge.NewController(s.gateway, s.history, bridge.WithOnUpdate(view.render))
			return s.driveFlow(ctx, w, theme, prompter, ctrl, view, params, yes, false)
		},
	}
	cmd.Flags().StringVar(&chainInput, "chain", "", "Source chain key, name or id (defaults to the configured chain)")
	cmd.Flags().StringVar(&tokenInput, "token", "", "Token symbol or address on the source chain")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount to bridge, in token units")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "Path to a private key file")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Destination address (defaults to the sender)")
	cmd.Flags().Float64Var(&slippage, "slippage", 0, "Slippage tolerance in percent")
	cmd.Flags().BoolVar(&autoDeposit, "auto-deposit", false, "Deposit into Hyperliquid after bridging")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

func (s *runtimeState) newWizardCommand() *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Guided interactive bridge to HyperEVM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runWizard(cmd, keyFile)
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "Path to a private key file")
	return cmd
}

func (s *runtimeState) runWizard(cmd *cobra.Command, keyFile string) error {
	s.resetCommandDiagnostics()
	if s.machineOutput() {
		return clierr.New(clierr.CodeUsage, "the wizard is interactive; use quote or bridge with --json")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	theme := s.theme()
	w := cmd.OutOrStdout()
	prompter := ui.NewPrompter(cmd.InOrStdin(), w, theme)

	fmt.Fprintf(w, "%s\n\n", theme.Bold("Bridge to HyperEVM"))

	listCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	chains, err := s.gateway.Chains(listCtx)
	cancel()
	if err != nil {
		return s.interactiveFail(w, theme, err)
	}
	sources := sourceChains(chains)
	if len(sources) == 0 {
		return s.interactiveFail(w, theme, clierr.New(clierr.CodeUnavailable, "gateway lists no source chains"))
	}

	options := make([]string, 0, len(sources))
	for _, chain := range sources {
		options = append(options, fmt.Sprintf("%s (%s)", chain.Key, chain.Name))
	}
	idx, raw, err := prompter.Choose("Source chain:", options)
	if err != nil {
		return s.interactiveFail(w, theme, err)
	}
	chainInput := raw
	if idx >= 0 {
		chainInput = sources[idx].Key
	}
	if strings.TrimSpace(chainInput) == "" {
		chainInput = s.chainOrDefault("")
	}
	chain, err := resolve.Chain(chains, chainInput)
	if err != nil {
		return s.interactiveFail(w, theme, err)
	}

	tokenCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	tokens, err := s.gateway.Tokens(tokenCtx, chain.ChainID)
	cancel()
	if err != nil {
		return s.interactiveFail(w, theme, err)
	}
	if len(tokens) == 0 {
		return s.interactiveFail(w, theme, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("gateway lists no tokens for %s", chain.Key)))
	}
	tokenOptions := make([]string, 0, len(tokens))
	for _, token := range tokens {
		tokenOptions = append(tokenOptions, fmt.Sprintf("%s (%s)", token.Symbol, token.Name))
	}
	tIdx, tRaw, err := prompter.Choose("Token:", tokenOptions)
	if err != nil {
		return s.interactiveFail(w, theme, err)
	}
	tokenInput := tRaw
	if tIdx >= 0 {
		tokenInput = tokens[tIdx].Symbol
	}
	if strings.TrimSpace(tokenInput) == "" {
		tokenInput = tokens[0].Symbol
	}
	token, err := resolve.Token(tokens, tokenInput)
	if err != nil {
		return s.interactiveFail(w, theme, err)
	}

	amount, err := prompter.Ask(fmt.Sprintf("Amount of %s to bridge:", token.Symbol))
	if err != nil {
		return s.interactiveFail(w, theme, err)
	}
	if _, err := resolve.ToBaseUnits(amount, token.Decimals); err != nil {
		return s.interactiveFail(w, theme, err)
	}

	key := ""
	if keyFile != "" {
		key, err = wallet.LoadPrivateKey(keyFile)
	} else {
		key, err = wallet.PromptPrivateKey(prompter.Reader(), w)
	}
	if err != nil {
		return s.interactiveFail(w, theme, err)
	}

	fmt.Fprintln(w)
	params := bridge.Params{
		ChainInput:   chain.Key,
		TokenInput:   token.Symbol,
		Amount:       amount,
		Key:          key,
		SlippagePct:  s.userConfig.Slippage,
		AutoDeposit:  s.userConfig.AutoDeposit,
		RPCOverrides: s.mergedRPCOverrides(),
	}
	view := &flowView{theme: theme, out: w}
	ctrl := bridge.NewController(s.gateway, s.history, bridge.WithOnUpdate(view.render))
	return s.driveFlow(ctx, w, theme, prompter, ctrl, view, params, false, true)
}

// driveFlow runs one prepared transfer through quote, confirm and execute,
// rendering progress on w. The wizard path allows a quote-again retry loop
// after failures; the one-shot bridge command does not.
func (s *runtimeState) driveFlow(ctx context.Context, w io.Writer, theme ui.Theme, prompter *ui.Prompter, ctrl *bridge.Controller, view *flowView, params bridge.Params, skipConfirm, allowRetry bool) error {
	if err := ctrl.Prepare(ctx, params); err != nil {
		return s.interactiveFail(w, theme, err)
	}
	for {
		quote, err := ctrl.FetchQuote(ctx)
		if err != nil {
			return s.interactiveFail(w, theme, err)
		}
		view.detach()
		printQuoteSummary(w, theme, ctrl.Snapshot(), quote, params.Amount)

		if !skipConfirm {
			ok, perr := prompter.Confirm("Bridge now?")
			if perr != nil {
				return s.interactiveFail(w, theme, perr)
			}
			if !ok {
				fmt.Fprintln(w, theme.Dim("cancelled"))
				return nil
			}
		}
		view.detach()
		if err := ctrl.Confirm(); err != nil {
			return s.interactiveFail(w, theme, err)
		}

		result, err := ctrl.Execute(ctx)
		if err == nil {
			view.detach()
			printBridgeSuccess(w, theme, ctrl.Snapshot(), result)
			return nil
		}

		view.detach()
		message, _, hint := gateway.Normalize(err)
		fmt.Fprintf(w, "\n%s %s\n", theme.Error("✖"), message)
		if hint != "" {
			fmt.Fprintf(w, "  %s\n", theme.Dim("hint: "+hint))
		}
		if !allowRetry {
			s.errorRendered = true
			return err
		}
		retry, perr := prompter.Confirm("Try again?")
		if perr != nil || !retry {
			s.errorRendered = true
			return err
		}
		if rerr := ctrl.Reset(); rerr != nil {
			s.errorRendered = true
			return rerr
		}
	}
}

func (s *runtimeState) runBridgeEnvelope(ctx context.Context, cmd *cobra.Command, params bridge.Params) error {
	ctrl := bridge.NewController(s.gateway, s.history)
	if err := ctrl.Prepare(ctx, params); err != nil {
		return err
	}
	if _, err := ctrl.FetchQuote(ctx); err != nil {
		return err
	}
	if err := ctrl.Confirm(); err != nil {
		return err
	}
	result, err := ctrl.Execute(ctx)
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), bridgeResultView(ctrl.Snapshot(), result), nil, cacheMetaBypass(), nil)
}

// interactiveFail prints the themed failure and marks the error rendered so
// Run does not also emit the machine envelope.
func (s *runtimeState) interactiveFail(w io.Writer, theme ui.Theme, err error) error {
	message, _, hint := gateway.Normalize(err)
	fmt.Fprintf(w, "\n%s %s\n", theme.Error("✖"), message)
	if hint != "" {
		fmt.Fprintf(w, "  %s\n", theme.Dim("hint: "+hint))
	}
	s.errorRendered = true
	return err
}

// flowView paints the step checklist in place. Rewinding only happens over
// lines this view wrote last; any other output in between must call detach
// so the next frame starts fresh below it.
type flowView struct {
	theme ui.Theme
	out   io.Writer
	lines int
	tick  int
}

func (v *flowView) render(snap bridge.Snapshot) {
	v.theme.Rewind(v.out, v.lines)
	fmt.Fprint(v.out, ui.RenderSteps(v.theme, snap.Steps, v.tick))
	fmt.Fprintf(v.out, "  %s\n", v.theme.Dim(flowFooter(snap)))
	v.tick++
	v.lines = ui.StepLines() + 1
}

func (v *flowView) detach() { v.lines = 0 }

func flowFooter(snap bridge.Snapshot) string {
	label := string(snap.State)
	if snap.Substatus != "" {
		label = snap.Substatus
	}
	if snap.TotalSteps > 0 {
		return fmt.Sprintf("%s (step %d/%d)", label, snap.CurrentStep, snap.TotalSteps)
	}
	return label
}

func printQuoteSummary(w io.Writer, theme ui.Theme, snap bridge.Snapshot, quote gateway.Quote, amount string) {
	decimals := snap.Token.Decimals
	fmt.Fprintf(w, "\n%s\n", ui.FormatRoute(theme, amount, snap.Token.Symbol, snap.Chain.Key, snap.DestChain.Key))
	fmt.Fprintf(w, "  %s %s %s\n", theme.Dim("estimated out:"), resolve.FromBaseUnits(quote.EstimatedOut, decimals), snap.Token.Symbol)
	fmt.Fprintf(w, "  %s $%.2f\n", theme.Dim("fee:"), quote.FeeUSD)
	if quote.EstimatedTimeS > 0 {
		fmt.Fprintf(w, "  %s ~%ds\n", theme.Dim("eta:"), quote.EstimatedTimeS)
	}
	if quote.Route != "" {
		fmt.Fprintf(w, "  %s %s\n", theme.Dim("route:"), quote.Route)
	}
	if ttl := time.Until(quote.ExpiresAt); ttl > 0 {
		fmt.Fprintf(w, "  %s %s\n", theme.Dim("quote expires in:"), ttl.Round(time.Second))
	}
	fmt.Fprintln(w)
}

func printBridgeSuccess(w io.Writer, theme ui.Theme, snap bridge.Snapshot, result gateway.ExecutionResult) {
	elapsed := (time.Duration(result.DurationMS) * time.Millisecond).Round(time.Second)
	fmt.Fprintf(w, "\n%s bridge complete in %s\n", theme.Success("✔"), elapsed)
	if result.BridgeTxHash != "" {
		fmt.Fprintf(w, "  %s %s\n", theme.Dim("bridge tx:"), result.BridgeTxHash)
		if url := registry.ExplorerTxURL(snap.Chain.ChainID, result.BridgeTxHash); url != "" {
			fmt.Fprintf(w, "  %s %s\n", theme.Dim("explorer:"), url)
		}
	}
	if result.DepositTxHash != "" {
		fmt.Fprintf(w, "  %s %s\n", theme.Dim("deposit tx:"), result.DepositTxHash)
	}
	if result.DestTxHash != "" {
		fmt.Fprintf(w, "  %s %s\n", theme.Dim("destination tx:"), result.DestTxHash)
	}
}

func bridgeResultView(snap bridge.Snapshot, result gateway.ExecutionResult) model.BridgeResultView {
	view := model.BridgeResultView{
		Status:        result.Status,
		FromChain:     snap.Chain.Key,
		Token:         snap.Token.Symbol,
		BridgeTxHash:  result.BridgeTxHash,
		DepositTxHash: result.DepositTxHash,
		Steps:         stepViews(snap.Steps),
		ExplorerURL:   registry.ExplorerTxURL(snap.Chain.ChainID, result.BridgeTxHash),
		DurationMS:    result.DurationMS,
	}
	if snap.Quote != nil {
		view.InputAmount = amountInfo(snap.Quote.AmountIn, snap.Token.Decimals)
	}
	return view
}

func stepViews(steps bridge.StepState) []model.StepView {
	phases := steps.Phases()
	views := make([]model.StepView, 0, len(phases))
	for _, phase := range phases {
		views = append(views, model.StepView{
			Phase:  phase.Phase.String(),
			Status: phase.Status,
			TxHash: phase.TxHash,
		})
	}
	return views
}

func sourceChains(chains []gateway.Chain) []gateway.Chain {
	sources := make([]gateway.Chain, 0, len(chains))
	for _, chain := range chains {
		if !chain.Destination {
			sources = append(sources, chain)
		}
	}
	return sources
}
