package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/gateway"
	"github.com/SiphoYawe/mina-cli/internal/resolve"
	"github.com/SiphoYawe/mina-cli/internal/store"
	"github.com/SiphoYawe/mina-cli/internal/wallet"
)

// FlowState is the coarse position of the transfer flow.
type FlowState string

const (
	StateIdle       FlowState = "idle"
	StateLoading    FlowState = "loading"
	StateQuoting    FlowState = "quoting"
	StateConfirming FlowState = "confirming"
	StateExecuting  FlowState = "executing"
	StateCompleted  FlowState = "completed"
	StateFailed     FlowState = "failed"
)

// validTransitions is the allow-list of state changes. Confirming may loop
// back to quoting when a quote expires before the user accepts it, and
// failed may return to confirming for a user-initiated retry.
var validTransitions = map[FlowState][]FlowState{
	StateIdle:       {StateLoading, StateFailed},
	StateLoading:    {StateQuoting, StateFailed},
	StateQuoting:    {StateConfirming, StateFailed},
	StateConfirming: {StateExecuting, StateQuoting, StateFailed},
	StateExecuting:  {StateCompleted, StateFailed},
	StateCompleted:  {},
	StateFailed:     {StateConfirming},
}

func IsTransitionAllowed(from, to FlowState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Params carries everything one transfer needs. Key is the raw private key
// string; chain and token inputs are human selectors resolved against the
// gateway lists. RPCOverrides is keyed by chain slug (the rpc.<chain>
// config namespace); chains without an override use the canonical default.
type Params struct {
	ChainInput   string
	TokenInput   string
	Amount       string
	Key          string
	Recipient    string
	SlippagePct  float64
	AutoDeposit  bool
	RPCOverrides map[string]string

	// Zero values fall back to the gateway execution defaults.
	PollInterval      time.Duration
	StepTimeout       time.Duration
	SettlementTimeout time.Duration
}

// Snapshot is an observable copy of the flow for rendering. It is safe to
// retain; nothing in it is shared with the controller.
type Snapshot struct {
	State       FlowState
	Steps       StepState
	Chain       gateway.Chain
	DestChain   gateway.Chain
	Token       gateway.Token
	Address     string
	Quote       *gateway.Quote
	Substatus   string
	CurrentStep int
	TotalSteps  int
	Result      *gateway.ExecutionResult
	Err         error
	Hint        string
}

// Controller walks one transfer through the flow states. It is not safe
// for concurrent use; the wizard and the bridge command drive it from a
// single goroutine and receive updates through the OnUpdate callback.
type Controller struct {
	gateway  *gateway.Client
	history  *store.HistoryStore
	onUpdate func(Snapshot)
	now      func() time.Time

	params    Params
	state     FlowState
	steps     StepState
	chains    []gateway.Chain
	chain     gateway.Chain
	destChain gateway.Chain
	token     gateway.Token
	signer    *wallet.Signer
	rpcURLs   map[int64]string
	baseUnits string
	quote     *gateway.Quote

	substatus   string
	currentStep int
	totalSteps  int
	bridgeHash  string
	result      *gateway.ExecutionResult
	err         error
	hint        string
}

// Option tweaks controller construction.
type Option func(*Controller)

// WithOnUpdate registers a callback invoked after every observable change.
func WithOnUpdate(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onUpdate = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(gw *gateway.Client, history *store.HistoryStore, opts ...Option) *Controller {
	c := &Controller{
		gateway: gw,
		history: history,
		now:     time.Now,
		state:   StateIdle,
		steps:   NewStepState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() FlowState { return c.state }

func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		State:       c.state,
		Steps:       c.steps,
		Chain:       c.chain,
		DestChain:   c.destChain,
		Token:       c.token,
		Address:     c.address(),
		Quote:       c.quote,
		Substatus:   c.substatus,
		CurrentStep: c.currentStep,
		TotalSteps:  c.totalSteps,
		Result:      c.result,
		Err:         c.err,
		Hint:        c.hint,
	}
}

func (c *Controller) address() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Address().Hex()
}

func (c *Controller) notify() {
	if c.onUpdate != nil {
		c.onUpdate(c.Snapshot())
	}
}

func (c *Controller) transition(next FlowState) error {
	if !IsTransitionAllowed(c.state, next) {
		return clierr.New(clierr.CodeInternal, fmt.Sprintf("invalid flow transition %s -> %s", c.state, next))
	}
	c.state = next
	c.notify()
	return nil
}

// fail normalizes err, records the recovery hint and parks the flow in the
// failed state. The original error is returned unchanged so callers render
// the gateway message verbatim.
func (c *Controller) fail(err error) error {
	_, _, hint := gateway.Normalize(err)
	c.err = err
	c.hint = hint
	c.state = StateFailed
	c.notify()
	return err
}

// Prepare resolves the source chain, the token and the signing key. On
// success the flow sits in quoting and the loading phase is completed.
func (c *Controller) Prepare(ctx context.Context, params Params) error {
	if err := c.transition(StateLoading); err != nil {
		return err
	}
	c.params = params
	c.steps = c.steps.Advance(PhaseLoading, gateway.StepStatusActive, "")
	c.notify()

	chains, err := c.gateway.Chains(ctx)
	if err != nil {
		return c.fail(err)
	}
	c.chains = chains
	c.rpcURLs = resolveRPCOverrides(chains, params.RPCOverrides)

	chain, err := resolve.Chain(chains, params.ChainInput)
	if err != nil {
		return c.fail(err)
	}
	c.chain = chain

	dest, err := resolve.DestinationChain(chains, chain)
	if err != nil {
		return c.fail(err)
	}
	c.destChain = dest

	tokens, err := c.gateway.Tokens(ctx, chain.ChainID)
	if err != nil {
		return c.fail(err)
	}
	token, err := resolve.Token(tokens, params.TokenInput)
	if err != nil {
		return c.fail(err)
	}
	c.token = token

	signer, err := wallet.NewSigner(params.Key, chain.ChainID)
	if err != nil {
		return c.fail(err)
	}
	c.signer = signer

	c.steps = c.steps.Advance(PhaseLoading, gateway.StepStatusCompleted, "")
	return c.transition(StateQuoting)
}

// resolveRPCOverrides rekeys the slug-addressed overrides by chain id using
// the gateway chain list. Slugs the gateway does not know are dropped.
func resolveRPCOverrides(chains []gateway.Chain, overrides map[string]string) map[int64]string {
	byID := make(map[int64]string, len(overrides))
	for _, chain := range chains {
		if url, ok := overrides[strings.ToLower(chain.Key)]; ok && strings.TrimSpace(url) != "" {
			byID[chain.ChainID] = strings.TrimSpace(url)
		}
	}
	return byID
}

// FetchQuote converts the amount to base units and prices the route. From
// confirming it first loops back to quoting, which re-prices an expired
// quote.
func (c *Controller) FetchQuote(ctx context.Context) (gateway.Quote, error) {
	if c.state == StateConfirming {
		if err := c.transition(StateQuoting); err != nil {
			return gateway.Quote{}, err
		}
	}
	if c.state != StateQuoting {
		return gateway.Quote{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("cannot fetch a quote while %s", c.state))
	}
	c.steps = c.steps.Advance(PhaseQuote, gateway.StepStatusActive, "")
	c.notify()

	baseUnits, err := resolve.ToBaseUnits(c.params.Amount, c.token.Decimals)
	if err != nil {
		return gateway.Quote{}, c.fail(err)
	}
	c.baseUnits = baseUnits

	quote, err := c.gateway.Quote(ctx, c.quoteRequest())
	if err != nil {
		return gateway.Quote{}, c.fail(err)
	}
	c.quote = &quote

	c.steps = c.steps.Advance(PhaseQuote, gateway.StepStatusCompleted, "")
	if err := c.transition(StateConfirming); err != nil {
		return gateway.Quote{}, err
	}
	return quote, nil
}

func (c *Controller) quoteRequest() gateway.QuoteRequest {
	return gateway.QuoteRequest{
		FromChainID:     c.chain.ChainID,
		ToChainID:       c.destChain.ChainID,
		Token:           c.token.Symbol,
		AmountBaseUnits: c.baseUnits,
		SlippagePct:     c.params.SlippagePct,
		Sender:          c.address(),
	}
}

// Confirm accepts the quoted route. Calling it again once the flow is past
// confirming is a no-op.
func (c *Controller) Confirm() error {
	switch c.state {
	case StateExecuting, StateCompleted:
		return nil
	case StateConfirming:
		return c.transition(StateExecuting)
	default:
		return clierr.New(clierr.CodeInternal, fmt.Sprintf("nothing to confirm while %s", c.state))
	}
}

type execEvent struct {
	step   *gateway.StepChangeEvent
	status *gateway.StatusChangeEvent
}

type execOutcome struct {
	result gateway.ExecutionResult
	err    error
}

// Execute runs the confirmed transfer. Gateway callbacks are bridged onto
// a channel and folded into the step state on the calling goroutine, so
// OnUpdate observers never race with the executor. An expired quote is
// re-priced once before execution starts.
func (c *Controller) Execute(ctx context.Context) (gateway.ExecutionResult, error) {
	if c.state != StateExecuting {
		return gateway.ExecutionResult{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("cannot execute while %s", c.state))
	}
	if c.quote == nil {
		return gateway.ExecutionResult{}, c.fail(clierr.New(clierr.CodeInternal, "no quote to execute"))
	}
	if c.quote.Expired(c.now()) {
		quote, err := c.gateway.Quote(ctx, c.quoteRequest())
		if err != nil {
			return gateway.ExecutionResult{}, c.fail(err)
		}
		c.quote = &quote
		c.notify()
	}

	events := make(chan execEvent, 16)
	done := make(chan execOutcome, 1)

	execParams := gateway.ExecuteParams{
		Quote:       *c.quote,
		Signer:      c.signer,
		Recipient:   c.params.Recipient,
		RPCURLs:     c.rpcURLs,
		AutoDeposit: c.params.AutoDeposit,
		Callbacks: gateway.Callbacks{
			OnStepChange: func(ev gateway.StepChangeEvent) {
				events <- execEvent{step: &ev}
			},
			OnStatusChange: func(ev gateway.StatusChangeEvent) {
				events <- execEvent{status: &ev}
			},
		},
		PollInterval:      c.params.PollInterval,
		StepTimeout:       c.params.StepTimeout,
		SettlementTimeout: c.params.SettlementTimeout,
	}

	go func() {
		result, err := c.gateway.Execute(ctx, execParams)
		done <- execOutcome{result: result, err: err}
	}()

	for {
		select {
		case ev := <-events:
			c.fold(ev)
		case out := <-done:
			for {
				select {
				case ev := <-events:
					c.fold(ev)
				default:
					return c.finish(out)
				}
			}
		}
	}
}

func (c *Controller) fold(ev execEvent) {
	switch {
	case ev.step != nil:
		c.steps = c.steps.Apply(*ev.step)
		bridgeStep := ev.step.Step == gateway.StepBridge || ev.step.Step == gateway.StepSwap
		if bridgeStep && ev.step.TxHash != "" && c.bridgeHash == "" {
			c.bridgeHash = ev.step.TxHash
			c.recordHistory()
		}
	case ev.status != nil:
		c.substatus = ev.status.Substatus
		c.currentStep = ev.status.CurrentStep
		c.totalSteps = ev.status.TotalSteps
	}
	c.notify()
}

func (c *Controller) finish(out execOutcome) (gateway.ExecutionResult, error) {
	if out.err != nil {
		if c.bridgeHash != "" && c.history != nil {
			_ = c.history.Update(c.bridgeHash, store.HistoryPatch{Status: gateway.TxStatusFailed})
		}
		return out.result, c.fail(out.err)
	}

	c.result = &out.result
	if c.bridgeHash != "" && c.history != nil {
		_ = c.history.Update(c.bridgeHash, store.HistoryPatch{
			Status:        gateway.TxStatusCompleted,
			DepositTxHash: out.result.DepositTxHash,
		})
	}
	if err := c.transition(StateCompleted); err != nil {
		return out.result, err
	}
	return out.result, nil
}

// recordHistory writes the pending entry as soon as the bridge transaction
// hash is known; completion or failure later patches it in place.
func (c *Controller) recordHistory() {
	if c.history == nil {
		return
	}
	_ = c.history.Add(store.HistoryEntry{
		TxHash:    c.bridgeHash,
		Timestamp: c.now().UTC(),
		FromChain: c.chain.Key,
		ToChain:   c.destChain.Key,
		Token:     c.token.Symbol,
		Amount:    strings.TrimSpace(c.params.Amount),
		Address:   c.address(),
		Status:    gateway.TxStatusPending,
	})
}

// Reset rearms a failed flow for another attempt: resolution and quote
// survive, execution progress clears. The quote is re-priced on the next
// Execute if it expired while the user decided.
func (c *Controller) Reset() error {
	if c.state != StateFailed {
		return clierr.New(clierr.CodeInternal, fmt.Sprintf("cannot reset while %s", c.state))
	}
	c.steps = c.steps.Rearm()
	c.err = nil
	c.hint = ""
	c.substatus = ""
	c.currentStep = 0
	c.totalSteps = 0
	c.bridgeHash = ""
	c.result = nil
	return c.transition(StateConfirming)
}
