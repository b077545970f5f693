package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SiphoYawe/mina-cli/internal/cache"
	"github.com/SiphoYawe/mina-cli/internal/config"
	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/gateway"
	"github.com/SiphoYawe/mina-cli/internal/httpx"
	"github.com/SiphoYawe/mina-cli/internal/model"
	"github.com/SiphoYawe/mina-cli/internal/out"
	"github.com/SiphoYawe/mina-cli/internal/schema"
	"github.com/SiphoYawe/mina-cli/internal/store"
	"github.com/SiphoYawe/mina-cli/internal/ui"
	"github.com/SiphoYawe/mina-cli/internal/version"
)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithStreams(os.Stdin, os.Stdout, os.Stderr)
}

func NewRunnerWithStreams(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	cache         *cache.Store
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastGateway   *model.GatewayStatus
	errorRendered bool

	gateway    *gateway.Client
	configs    *store.ConfigStore
	history    *store.HistoryStore
	userConfig store.CliConfig
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if err == nil {
		if state.cache != nil {
			_ = state.cache.Close()
		}
		return 0
	}

	// Interactive flows print their own themed failure; everything else
	// gets the machine-readable error envelope on stderr.
	if !state.errorRendered {
		state.renderError("", err, state.lastWarnings, state.lastGateway)
	}
	if state.cache != nil {
		_ = state.cache.Close()
	}
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	var wizardKeyFile string
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Bridge assets from EVM chains to HyperEVM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runWizard(cmd, wizardKeyFile)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			if path == version.CLIName {
				// Bare invocation runs the wizard.
				path = "wizard"
			}
			s.lastCommand = path

			if s.gateway == nil {
				httpClient := httpx.New(settings.Timeout, settings.Retries)
				s.gateway = gateway.New(httpClient, settings.GatewayURL)
			}
			if s.configs == nil {
				s.configs = store.NewConfigStore(settings.Home)
				s.history = store.NewHistoryStore(settings.Home)
			}
			s.userConfig = s.configs.Load()

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output a JSON envelope and exit after one render")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only the data payload")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Gateway request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per gateway request")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.GatewayURL, "gateway-url", "", "Bridge gateway base URL")
	cmd.PersistentFlags().StringVar(&s.flags.SettingsPath, "settings", "", "Path to settings file")
	cmd.Flags().StringVar(&wizardKeyFile, "key-file", "", "Path to a private key file")

	cmd.AddCommand(s.newWizardCommand())
	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newBridgeCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newConfigCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil)
		},
	}
	return cmd
}

// machineOutput reports whether the invocation asked for a single envelope
// render. Interactive commands fall back to the themed flow otherwise.
func (s *runtimeState) machineOutput() bool {
	return s.flags.JSON || s.flags.Plain
}

func (s *runtimeState) theme() ui.Theme {
	enabled := !s.machineOutput() && os.Getenv("NO_COLOR") == ""
	return ui.NewTheme(enabled)
}

func (s *runtimeState) outOptions() out.Options {
	return out.Options{
		Mode:        s.settings.OutputMode,
		Select:      s.settings.SelectFields,
		ResultsOnly: s.settings.ResultsOnly,
	}
}

type fetchFn func(ctx context.Context) (data any, gatewayStatus *model.GatewayStatus, warnings []string, err error)

// runCachedCommand serves the command from the response cache when a fresh
// entry exists, otherwise fetches from the gateway and caches the result.
// When the fetch fails and a stale entry is within the max-stale budget, the
// stale entry is served with a warning instead of failing the command.
func (s *runtimeState) runCachedCommand(commandPath, key string, ttl time.Duration, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	cacheStatus := cacheMetaMiss()
	if !s.settings.CacheEnabled || s.cache == nil {
		cacheStatus = cacheMetaBypass()
	}
	warnings := []string{}
	var staleData any
	staleAvailable := false
	staleObservedAge := time.Duration(0)
	staleObservedAt := time.Time{}
	staleCacheStatus := cacheMetaMiss()

	if s.settings.CacheEnabled && s.cache != nil {
		cached, err := s.cache.Get(key, s.settings.MaxStale)
		if err == nil && cached.Hit {
			entryStatus := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
			var data any
			if err := json.Unmarshal(cached.Value, &data); err == nil {
				if !cached.Stale {
					s.captureCommandDiagnostics(warnings, nil)
					return s.emitSuccess(commandPath, data, warnings, entryStatus, nil)
				}
				staleData = data
				staleAvailable = true
				staleObservedAge = cached.Age
				staleObservedAt = time.Now()
				staleCacheStatus = entryStatus
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	defer cancel()
	data, gatewayStatus, fetchWarnings, err := fetch(ctx)
	warnings = append(warnings, fetchWarnings...)
	s.captureCommandDiagnostics(warnings, gatewayStatus)
	if err != nil {
		if staleAvailable {
			if !staleFallbackAllowed(err) {
				return err
			}
			currentStaleAge := staleObservedAge
			if !staleObservedAt.IsZero() {
				currentStaleAge += time.Since(staleObservedAt)
			}
			staleCacheStatus.AgeMS = currentStaleAge.Milliseconds()
			if staleExceedsBudget(currentStaleAge, ttl, s.settings.MaxStale) {
				return clierr.Wrap(clierr.CodeStale, "gateway fetch failed and cached data exceeded the stale budget", err)
			}
			warnings = append(warnings, "gateway fetch failed; serving stale data within the max-stale budget")
			s.captureCommandDiagnostics(warnings, gatewayStatus)
			return s.emitSuccess(commandPath, staleData, warnings, staleCacheStatus, gatewayStatus)
		}
		return err
	}

	if s.settings.CacheEnabled && s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			_ = s.cache.Set(key, payload, ttl)
			cacheStatus = model.CacheStatus{Status: "write", AgeMS: 0, Stale: false}
		}
	}

	s.captureCommandDiagnostics(warnings, gatewayStatus)
	return s.emitSuccess(commandPath, data, warnings, cacheStatus, gatewayStatus)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, gatewayStatus *model.GatewayStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Gateway:   gatewayStatus,
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, s.outOptions())
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, gatewayStatus *model.GatewayStatus) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	message, _, hint := gateway.Normalize(err)

	opts := s.outOptions()
	if opts.Mode == "" {
		opts.Mode = "json"
	}
	opts.ResultsOnly = false
	opts.Select = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    errorType(err),
			Message: message,
			Hint:    hint,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Gateway:   gatewayStatus,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, opts)
}

func errorType(err error) string {
	cErr, ok := clierr.As(err)
	if !ok {
		return "internal_error"
	}
	switch cErr.Code {
	case clierr.CodeUsage:
		return "usage_error"
	case clierr.CodeAuth:
		return "auth_error"
	case clierr.CodeRateLimited:
		return "rate_limited"
	case clierr.CodeUnavailable:
		return "gateway_unavailable"
	case clierr.CodeUnsupported:
		return "unsupported"
	case clierr.CodeStale:
		return "stale_data"
	case clierr.CodeNotFound:
		return "not_found"
	case clierr.CodeInvalidAmount:
		return "invalid_amount"
	case clierr.CodeInvalidKey:
		return "invalid_key_format"
	case clierr.CodeUnknownKey:
		return "unknown_config_key"
	case clierr.CodeExecution:
		return "execution_error"
	default:
		return "internal_error"
	}
}

// gatewayStatus summarizes one gateway round trip for envelope meta.
func gatewayStatus(start time.Time, err error) *model.GatewayStatus {
	status := "ok"
	if err != nil {
		status = "error"
		if cErr, ok := clierr.As(err); ok {
			switch cErr.Code {
			case clierr.CodeRateLimited:
				status = "rate_limited"
			case clierr.CodeUnavailable:
				status = "unavailable"
			}
		}
	}
	return &model.GatewayStatus{Status: status, LatencyMS: time.Since(start).Milliseconds()}
}

func cacheKey(commandPath string, req any) string {
	buf, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(commandPath+"|"), buf...))
	return hex.EncodeToString(sum[:])
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleExceedsBudget(age, ttl, maxStale time.Duration) bool {
	if age <= ttl {
		return false
	}
	if maxStale < 0 {
		return false
	}
	return age > ttl+maxStale
}

func staleFallbackAllowed(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	return cErr.Code == clierr.CodeUnavailable || cErr.Code == clierr.CodeRateLimited
}

// shouldOpenCache limits the sqlite cache to commands that read gateway
// lists; everything else is either local or must always be fresh.
func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "chains", "tokens":
		return true
	default:
		return false
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss", AgeMS: 0, Stale: false}
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastGateway = nil
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, gatewayStatus *model.GatewayStatus) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	s.lastGateway = gatewayStatus
}

// mergedRPCOverrides layers the per-user rpc.<chain> config over the
// operator settings file.
func (s *runtimeState) mergedRPCOverrides() map[string]string {
	merged := make(map[string]string, len(s.settings.RPCOverrides)+len(s.userConfig.RPC))
	for key, url := range s.settings.RPCOverrides {
		merged[strings.ToLower(key)] = url
	}
	for key, url := range s.userConfig.RPC {
		merged[strings.ToLower(key)] = url
	}
	return merged
}
