package gateway

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Chain is a source or destination network as reported by the bridge
// gateway. Key is the canonical lowercase identifier used in commands and in
// the rpc.<key> config namespace.
type Chain struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	ChainID      int64  `json:"chainId"`
	NativeSymbol string `json:"nativeSymbol"`
	Destination  bool   `json:"destination"`
}

// Token is a bridgeable asset on a specific chain.
type Token struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	ChainID  int64  `json:"chainId"`
}

type QuoteRequest struct {
	FromChainID     int64   `json:"fromChainId"`
	ToChainID       int64   `json:"toChainId"`
	Token           string  `json:"token"`
	AmountBaseUnits string  `json:"amount"`
	SlippagePct     float64 `json:"slippage"`
	Sender          string  `json:"sender,omitempty"`
}

// Quote is a priced bridge route. It is only executable until ExpiresAt.
type Quote struct {
	ID              string    `json:"id"`
	FromChainID     int64     `json:"fromChainId"`
	ToChainID       int64     `json:"toChainId"`
	Token           Token     `json:"token"`
	AmountIn        string    `json:"amountIn"`
	EstimatedOut    string    `json:"estimatedOut"`
	MinOut          string    `json:"minOut"`
	FeeUSD          float64   `json:"feeUsd"`
	EstimatedTimeS  int64     `json:"estimatedTimeSeconds"`
	SlippagePct     float64   `json:"slippage"`
	Route           string    `json:"route"`
	RequiresDeposit bool      `json:"requiresDeposit"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

func (q Quote) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && now.After(q.ExpiresAt)
}

// TransactionStatus is the gateway's view of a bridge transfer, keyed by the
// source-chain transaction hash.
type TransactionStatus struct {
	TxHash      string `json:"txHash"`
	Status      string `json:"status"`
	Substatus   string `json:"substatus,omitempty"`
	FromChainID int64  `json:"fromChainId,omitempty"`
	ToChainID   int64  `json:"toChainId,omitempty"`
	SourceTx    string `json:"sourceTx,omitempty"`
	DestTx      string `json:"destTx,omitempty"`
}

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Execution step vocabulary reported through OnStepChange.
const (
	StepApproval = "approval"
	StepBridge   = "bridge"
	StepSwap     = "swap"
	StepDeposit  = "deposit"
)

const (
	StepStatusPending   = "pending"
	StepStatusActive    = "active"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

type StepChangeEvent struct {
	Step   string
	Status string
	TxHash string
}

type StatusChangeEvent struct {
	Substatus   string
	CurrentStep int
	TotalSteps  int
	TxHash      string
}

// Callbacks deliver execution progress. Either field may be nil. Events for a
// given transfer arrive in coarse order (approval before bridge before
// deposit) but duplicates are possible; consumers must fold them
// idempotently.
type Callbacks struct {
	OnStepChange   func(StepChangeEvent)
	OnStatusChange func(StatusChangeEvent)
}

func (c Callbacks) stepChange(ev StepChangeEvent) {
	if c.OnStepChange != nil {
		c.OnStepChange(ev)
	}
}

func (c Callbacks) statusChange(ev StatusChangeEvent) {
	if c.OnStatusChange != nil {
		c.OnStatusChange(ev)
	}
}

// TxBroadcaster accepts a signed transaction for broadcast.
// *ethclient.Client satisfies it.
type TxBroadcaster interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TxSigner signs plan transactions for a single externally-owned account
// and hands them to a broadcaster. Nonce, gas and fee fields arrive
// pre-filled; implementations forward them untouched.
type TxSigner interface {
	Address() common.Address
	SendTransaction(ctx context.Context, backend TxBroadcaster, tx *types.Transaction) (common.Hash, error)
}

type ExecuteParams struct {
	Quote       Quote
	Signer      TxSigner
	Recipient   string
	RPCURLs     map[int64]string
	AutoDeposit bool
	Callbacks   Callbacks

	PollInterval      time.Duration
	StepTimeout       time.Duration
	SettlementTimeout time.Duration
	GasMultiplier     float64
}

type ExecutionResult struct {
	Status        string `json:"status"`
	BridgeTxHash  string `json:"bridgeTxHash,omitempty"`
	DepositTxHash string `json:"depositTxHash,omitempty"`
	DestTxHash    string `json:"destTxHash,omitempty"`
	Substatus     string `json:"substatus,omitempty"`
	DurationMS    int64  `json:"durationMs"`
}

// txPayload is a pre-encoded transaction handed down by the gateway plan.
// Gas fields are optional hints; anything missing is filled from the node.
type txPayload struct {
	ChainID  int64  `json:"chainId"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit string `json:"gasLimit,omitempty"`
}

type planResponse struct {
	Approvals []txPayload `json:"approvals"`
	Bridge    txPayload   `json:"bridge"`
	Deposit   *txPayload  `json:"deposit"`
	MinOut    string      `json:"minOut,omitempty"`
}
