package gateway

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/httpx"
	"github.com/SiphoYawe/mina-cli/internal/registry"
)

// Execute runs a quoted bridge end to end: source-chain approvals, the
// bridge transaction, settlement polling, and (when the route requires it
// and AutoDeposit is on) the destination-side deposit. Progress is reported
// through params.Callbacks as the transfer advances. Nonce and fee fields
// are filled from the node right before signing; there is no local nonce
// tracking or replacement handling.
func (c *Client) Execute(ctx context.Context, params ExecuteParams) (ExecutionResult, error) {
	started := c.now()
	result := ExecutionResult{Status: TxStatusFailed}

	if params.Signer == nil {
		return result, clierr.New(clierr.CodeInternal, "missing signer")
	}
	if strings.TrimSpace(params.Quote.ID) == "" {
		return result, clierr.New(clierr.CodeUsage, "execute requires a quote")
	}
	if params.Quote.Expired(c.now()) {
		return result, clierr.Wrap(clierr.CodeExecution, "quote expired", &httpx.APIError{Code: "QUOTE_EXPIRED", Message: "quote expired before execution"})
	}
	if params.PollInterval <= 0 {
		params.PollInterval = 2 * time.Second
	}
	if params.StepTimeout <= 0 {
		params.StepTimeout = 2 * time.Minute
	}
	if params.SettlementTimeout <= 0 {
		params.SettlementTimeout = 10 * time.Minute
	}
	if params.GasMultiplier <= 1 {
		params.GasMultiplier = 1.2
	}

	sender := params.Signer.Address().Hex()
	recipient := strings.TrimSpace(params.Recipient)
	if recipient == "" {
		recipient = sender
	}
	if !common.IsHexAddress(recipient) {
		return result, clierr.New(clierr.CodeUsage, "recipient must be a valid EVM address")
	}

	plan, err := c.plan(ctx, params.Quote.ID, sender, recipient)
	if err != nil {
		return result, err
	}

	totalSteps := len(plan.Approvals) + 1
	wantDeposit := params.AutoDeposit && plan.Deposit != nil
	if wantDeposit {
		totalSteps++
	}
	currentStep := 0
	params.Callbacks.statusChange(StatusChangeEvent{Substatus: "STARTED", CurrentStep: currentStep, TotalSteps: totalSteps})

	if len(plan.Approvals) == 0 {
		params.Callbacks.stepChange(StepChangeEvent{Step: StepApproval, Status: StepStatusCompleted})
	}
	for _, approval := range plan.Approvals {
		currentStep++
		params.Callbacks.stepChange(StepChangeEvent{Step: StepApproval, Status: StepStatusActive})
		hash, err := c.sendPayload(ctx, params, approval)
		if err != nil {
			params.Callbacks.stepChange(StepChangeEvent{Step: StepApproval, Status: StepStatusFailed})
			return result, err
		}
		params.Callbacks.stepChange(StepChangeEvent{Step: StepApproval, Status: StepStatusCompleted, TxHash: hash})
		params.Callbacks.statusChange(StatusChangeEvent{Substatus: "APPROVED", CurrentStep: currentStep, TotalSteps: totalSteps, TxHash: hash})
	}

	currentStep++
	params.Callbacks.stepChange(StepChangeEvent{Step: StepBridge, Status: StepStatusActive})
	bridgeHash, err := c.sendPayload(ctx, params, plan.Bridge)
	if err != nil {
		params.Callbacks.stepChange(StepChangeEvent{Step: StepBridge, Status: StepStatusFailed})
		return result, err
	}
	result.BridgeTxHash = bridgeHash
	params.Callbacks.stepChange(StepChangeEvent{Step: StepBridge, Status: StepStatusCompleted, TxHash: bridgeHash})
	params.Callbacks.statusChange(StatusChangeEvent{Substatus: "BRIDGE_SUBMITTED", CurrentStep: currentStep, TotalSteps: totalSteps, TxHash: bridgeHash})

	params.Callbacks.stepChange(StepChangeEvent{Step: StepDeposit, Status: StepStatusActive})
	settled, err := c.waitSettlement(ctx, params, bridgeHash, currentStep, totalSteps)
	if err != nil {
		params.Callbacks.stepChange(StepChangeEvent{Step: StepDeposit, Status: StepStatusFailed})
		result.Substatus = substatusOf(settled)
		return result, err
	}
	result.DestTxHash = settled.DestTx
	result.Substatus = substatusOf(settled)

	if wantDeposit {
		currentStep++
		depositHash, err := c.sendPayload(ctx, params, *plan.Deposit)
		if err != nil {
			params.Callbacks.stepChange(StepChangeEvent{Step: StepDeposit, Status: StepStatusFailed})
			return result, err
		}
		result.DepositTxHash = depositHash
		params.Callbacks.stepChange(StepChangeEvent{Step: StepDeposit, Status: StepStatusCompleted, TxHash: depositHash})
		params.Callbacks.statusChange(StatusChangeEvent{Substatus: "DEPOSITED", CurrentStep: currentStep, TotalSteps: totalSteps, TxHash: depositHash})
	} else {
		params.Callbacks.stepChange(StepChangeEvent{Step: StepDeposit, Status: StepStatusCompleted, TxHash: settled.DestTx})
	}

	result.Status = TxStatusCompleted
	result.DurationMS = c.now().Sub(started).Milliseconds()
	return result, nil
}

func (c *Client) waitSettlement(ctx context.Context, params ExecuteParams, bridgeHash string, currentStep, totalSteps int) (*TransactionStatus, error) {
	waitCtx, cancel := context.WithTimeout(ctx, params.SettlementTimeout)
	defer cancel()
	ticker := time.NewTicker(params.PollInterval)
	defer ticker.Stop()

	var last *TransactionStatus
	for {
		status, err := c.Status(waitCtx, bridgeHash)
		if err == nil && status != nil {
			last = status
			params.Callbacks.statusChange(StatusChangeEvent{
				Substatus:   substatusOf(status),
				CurrentStep: currentStep,
				TotalSteps:  totalSteps,
				TxHash:      bridgeHash,
			})
			switch status.Status {
			case TxStatusCompleted:
				return status, nil
			case TxStatusFailed:
				return status, clierr.New(clierr.CodeExecution, "bridge transfer failed on destination")
			}
		}
		select {
		case <-waitCtx.Done():
			return last, clierr.Wrap(clierr.CodeExecution, "timed out waiting for bridge settlement", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) sendPayload(ctx context.Context, params ExecuteParams, payload txPayload) (string, error) {
	rpcURL, err := registry.ResolveRPCURL(payload.ChainID, params.RPCURLs[payload.ChainID])
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	if strings.TrimSpace(payload.To) == "" {
		return "", clierr.New(clierr.CodeUnavailable, "gateway payload missing target address")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if payload.ChainID != 0 && chainID.Int64() != payload.ChainID {
		return "", clierr.New(clierr.CodeExecution, fmt.Sprintf("rpc chain mismatch: expected %d, got %d", payload.ChainID, chainID.Int64()))
	}

	target := common.HexToAddress(payload.To)
	data, err := decodeHex(payload.Data)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeExecution, "decode payload calldata", err)
	}
	value := new(big.Int)
	if strings.TrimSpace(payload.Value) != "" {
		if _, ok := value.SetString(payload.Value, 10); !ok {
			return "", clierr.New(clierr.CodeExecution, "invalid payload value")
		}
	}
	msg := ethereum.CallMsg{From: params.Signer.Address(), To: &target, Value: value, Data: data}

	gasLimit, err := resolveGasLimit(ctx, client, msg, payload.GasLimit, params.GasMultiplier)
	if err != nil {
		return "", err
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := client.PendingNonceAt(ctx, params.Signer.Address())
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	hash, err := params.Signer.SendTransaction(ctx, client, tx)
	if err != nil {
		return "", err
	}

	if err := waitMined(ctx, client, hash, params.PollInterval, params.StepTimeout); err != nil {
		return hash.Hex(), err
	}
	return hash.Hex(), nil
}

func waitMined(ctx context.Context, client *ethclient.Client, hash common.Hash, poll, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return clierr.New(clierr.CodeExecution, "transaction reverted on-chain")
		}
		// Not-yet-mined lookups and transient RPC failures both retry
		// until the step timeout.
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeExecution, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func resolveGasLimit(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg, hint string, multiplier float64) (uint64, error) {
	if strings.TrimSpace(hint) != "" {
		v, ok := new(big.Int).SetString(strings.TrimSpace(hint), 10)
		if ok && v.IsUint64() && v.Uint64() > 0 {
			return v.Uint64(), nil
		}
	}
	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeExecution, "estimate gas", err)
	}
	return uint64(float64(gasLimit) * multiplier), nil
}

func substatusOf(status *TransactionStatus) string {
	if status == nil {
		return ""
	}
	if strings.TrimSpace(status.Substatus) != "" {
		return status.Substatus
	}
	return strings.ToUpper(status.Status)
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
