package gateway

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/httpx"
)

// testSigner signs with a throwaway key, standing in for the wallet layer.
type testSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &testSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *testSigner) Address() common.Address { return s.addr }

func (s *testSigner) SendTransaction(ctx context.Context, backend TxBroadcaster, tx *types.Transaction) (common.Hash, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(tx.ChainId()), s.key)
	if err != nil {
		return common.Hash{}, err
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// fakeNode is a minimal JSON-RPC endpoint for one chain: it accepts any
// transaction and reports every receipt as mined successfully.
type fakeNode struct {
	chainID  int64
	failSend bool

	mu   sync.Mutex
	sent []*types.Transaction
}

func (n *fakeNode) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNode) serve(t *testing.T) *httptest.Server {
	t.Helper()
	zeroHash := "0x" + strings.Repeat("00", 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		write := func(result any) {
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		}
		writeErr := func(msg string) {
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32000, "message": msg}})
		}

		switch req.Method {
		case "eth_chainId":
			write(hexutil.EncodeUint64(uint64(n.chainID)))
		case "eth_getBlockByNumber":
			write(map[string]any{
				"parentHash":       zeroHash,
				"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
				"miner":            "0x0000000000000000000000000000000000000000",
				"stateRoot":        zeroHash,
				"transactionsRoot": zeroHash,
				"receiptsRoot":     zeroHash,
				"logsBloom":        "0x" + strings.Repeat("00", 256),
				"difficulty":       "0x0",
				"number":           "0x1",
				"gasLimit":         "0x1c9c380",
				"gasUsed":          "0x0",
				"timestamp":        "0x64",
				"extraData":        "0x",
				"mixHash":          zeroHash,
				"nonce":            "0x0000000000000000",
				"baseFeePerGas":    "0x3b9aca00",
				"hash":             "0x" + strings.Repeat("22", 32),
			})
		case "eth_getTransactionCount":
			write("0x0")
		case "eth_estimateGas":
			write("0x186a0")
		case "eth_maxPriorityFeePerGas":
			write("0x3b9aca00")
		case "eth_sendRawTransaction":
			if n.failSend {
				writeErr("insufficient funds for gas * price + value")
				return
			}
			var raw hexutil.Bytes
			if err := json.Unmarshal(req.Params[0], &raw); err != nil {
				writeErr(err.Error())
				return
			}
			tx := new(types.Transaction)
			if err := tx.UnmarshalBinary(raw); err != nil {
				writeErr(err.Error())
				return
			}
			n.mu.Lock()
			n.sent = append(n.sent, tx)
			n.mu.Unlock()
			write(tx.Hash().Hex())
		case "eth_getTransactionReceipt":
			var hash common.Hash
			if err := json.Unmarshal(req.Params[0], &hash); err != nil {
				writeErr(err.Error())
				return
			}
			write(map[string]any{
				"type":              "0x2",
				"status":            "0x1",
				"cumulativeGasUsed": "0x5208",
				"logsBloom":         "0x" + strings.Repeat("00", 256),
				"logs":              []any{},
				"transactionHash":   hash.Hex(),
				"gasUsed":           "0x5208",
				"effectiveGasPrice": "0x3b9aca00",
				"blockHash":         "0x" + strings.Repeat("22", 32),
				"blockNumber":       "0x1",
				"transactionIndex":  "0x0",
			})
		default:
			writeErr("method " + req.Method + " not supported")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeGateway serves the plan and settlement endpoints for one transfer.
type fakeGateway struct {
	plan planResponse

	mu          sync.Mutex
	statusPolls int
	settle      TransactionStatus
}

func (g *fakeGateway) serve(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/plan", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode plan request: %v", err)
		}
		if req["quoteId"] == "" || req["sender"] == "" || req["recipient"] == "" {
			t.Errorf("plan request missing fields: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(g.plan)
	})
	mux.HandleFunc("/v1/status/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.statusPolls++
		first := g.statusPolls == 1
		settle := g.settle
		g.mu.Unlock()
		if first {
			_ = json.NewEncoder(w).Encode(TransactionStatus{Status: TxStatusPending, Substatus: "WAIT_DESTINATION"})
			return
		}
		_ = json.NewEncoder(w).Encode(settle)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(httpx.New(5*time.Second, 0), srv.URL)
}

type eventLog struct {
	steps    []StepChangeEvent
	statuses []StatusChangeEvent
}

func (l *eventLog) callbacks() Callbacks {
	return Callbacks{
		OnStepChange:   func(ev StepChangeEvent) { l.steps = append(l.steps, ev) },
		OnStatusChange: func(ev StatusChangeEvent) { l.statuses = append(l.statuses, ev) },
	}
}

func (l *eventLog) stepIndex(step, status string) int {
	for i, ev := range l.steps {
		if ev.Step == step && ev.Status == status {
			return i
		}
	}
	return -1
}

func (l *eventLog) sawSubstatus(sub string) bool {
	for _, ev := range l.statuses {
		if ev.Substatus == sub {
			return true
		}
	}
	return false
}

func liveQuote() Quote {
	return Quote{
		ID:          "q-1",
		FromChainID: 42161,
		ToChainID:   999,
		Token:       Token{Symbol: "USDC", Decimals: 6, ChainID: 42161},
		AmountIn:    "1500000",
		ExpiresAt:   time.Now().Add(5 * time.Minute),
	}
}

func fastParams(quote Quote, signer TxSigner, rpcURLs map[int64]string, log *eventLog) ExecuteParams {
	return ExecuteParams{
		Quote:             quote,
		Signer:            signer,
		RPCURLs:           rpcURLs,
		Callbacks:         log.callbacks(),
		PollInterval:      10 * time.Millisecond,
		StepTimeout:       5 * time.Second,
		SettlementTimeout: 5 * time.Second,
	}
}

func TestExecuteHappyPathWithApproval(t *testing.T) {
	source := &fakeNode{chainID: 42161}
	sourceRPC := source.serve(t)

	gw := &fakeGateway{
		plan: planResponse{
			Approvals: []txPayload{{ChainID: 42161, To: "0x00000000000000000000000000000000000000a1", Data: "0x095ea7b3", GasLimit: "60000"}},
			Bridge:    txPayload{ChainID: 42161, To: "0x00000000000000000000000000000000000000b1", Data: "0xdeadbeef", Value: "0"},
		},
		settle: TransactionStatus{Status: TxStatusCompleted, Substatus: "DONE", DestTx: "0xdest"},
	}
	client := gw.serve(t)

	log := &eventLog{}
	result, err := client.Execute(context.Background(), fastParams(liveQuote(), newTestSigner(t), map[int64]string{42161: sourceRPC.URL}, log))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != TxStatusCompleted {
		t.Fatalf("unexpected result status %q", result.Status)
	}
	if result.BridgeTxHash == "" || result.DestTxHash != "0xdest" {
		t.Fatalf("result hashes incomplete: %+v", result)
	}
	if got := source.sentCount(); got != 2 {
		t.Fatalf("expected approval + bridge transactions, got %d", got)
	}

	approvalDone := log.stepIndex(StepApproval, StepStatusCompleted)
	bridgeActive := log.stepIndex(StepBridge, StepStatusActive)
	bridgeDone := log.stepIndex(StepBridge, StepStatusCompleted)
	depositDone := log.stepIndex(StepDeposit, StepStatusCompleted)
	if approvalDone == -1 || bridgeActive == -1 || bridgeDone == -1 || depositDone == -1 {
		t.Fatalf("missing step events: %+v", log.steps)
	}
	if !(approvalDone < bridgeActive && bridgeActive < bridgeDone && bridgeDone < depositDone) {
		t.Fatalf("step events out of order: %+v", log.steps)
	}
	if log.steps[bridgeDone].TxHash != result.BridgeTxHash {
		t.Fatalf("bridge completion should carry the tx hash, got %+v", log.steps[bridgeDone])
	}
	if !log.sawSubstatus("STARTED") || !log.sawSubstatus("BRIDGE_SUBMITTED") {
		t.Fatalf("missing status milestones: %+v", log.statuses)
	}
}

func TestExecuteEmitsApprovalCompletedWithoutApprovals(t *testing.T) {
	source := &fakeNode{chainID: 42161}
	sourceRPC := source.serve(t)

	gw := &fakeGateway{
		plan: planResponse{
			Bridge: txPayload{ChainID: 42161, To: "0x00000000000000000000000000000000000000b1", Data: "0xdeadbeef"},
		},
		settle: TransactionStatus{Status: TxStatusCompleted, Substatus: "DONE", DestTx: "0xdest"},
	}
	client := gw.serve(t)

	log := &eventLog{}
	if _, err := client.Execute(context.Background(), fastParams(liveQuote(), newTestSigner(t), map[int64]string{42161: sourceRPC.URL}, log)); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(log.steps) == 0 || log.steps[0].Step != StepApproval || log.steps[0].Status != StepStatusCompleted {
		t.Fatalf("first event should complete the approval step, got %+v", log.steps)
	}
	if got := source.sentCount(); got != 1 {
		t.Fatalf("expected only the bridge transaction, got %d", got)
	}
}

func TestExecuteAutoDeposit(t *testing.T) {
	source := &fakeNode{chainID: 42161}
	sourceRPC := source.serve(t)
	dest := &fakeNode{chainID: 999}
	destRPC := dest.serve(t)

	gw := &fakeGateway{
		plan: planResponse{
			Bridge:  txPayload{ChainID: 42161, To: "0x00000000000000000000000000000000000000b1", Data: "0xdeadbeef"},
			Deposit: &txPayload{ChainID: 999, To: "0x00000000000000000000000000000000000000d1", Data: "0xfeedface"},
		},
		settle: TransactionStatus{Status: TxStatusCompleted, Substatus: "DONE", DestTx: "0xdest"},
	}
	client := gw.serve(t)

	log := &eventLog{}
	params := fastParams(liveQuote(), newTestSigner(t), map[int64]string{42161: sourceRPC.URL, 999: destRPC.URL}, log)
	params.AutoDeposit = true

	result, err := client.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.DepositTxHash == "" {
		t.Fatalf("expected deposit hash, got %+v", result)
	}
	if dest.sentCount() != 1 {
		t.Fatalf("expected one destination transaction, got %d", dest.sentCount())
	}
	depositDone := log.stepIndex(StepDeposit, StepStatusCompleted)
	if depositDone == -1 || log.steps[depositDone].TxHash != result.DepositTxHash {
		t.Fatalf("deposit completion should carry the deposit hash: %+v", log.steps)
	}
	if !log.sawSubstatus("DEPOSITED") {
		t.Fatalf("missing DEPOSITED milestone: %+v", log.statuses)
	}
}

func TestExecuteSkipsDepositWhenDisabled(t *testing.T) {
	source := &fakeNode{chainID: 42161}
	sourceRPC := source.serve(t)

	gw := &fakeGateway{
		plan: planResponse{
			Bridge:  txPayload{ChainID: 42161, To: "0x00000000000000000000000000000000000000b1", Data: "0xdeadbeef"},
			Deposit: &txPayload{ChainID: 999, To: "0x00000000000000000000000000000000000000d1", Data: "0xfeedface"},
		},
		settle: TransactionStatus{Status: TxStatusCompleted, Substatus: "DONE", DestTx: "0xdest"},
	}
	client := gw.serve(t)

	log := &eventLog{}
	result, err := client.Execute(context.Background(), fastParams(liveQuote(), newTestSigner(t), map[int64]string{42161: sourceRPC.URL}, log))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.DepositTxHash != "" {
		t.Fatalf("deposit should be skipped, got %+v", result)
	}
	if source.sentCount() != 1 {
		t.Fatalf("expected only the bridge transaction, got %d", source.sentCount())
	}
	depositDone := log.stepIndex(StepDeposit, StepStatusCompleted)
	if depositDone == -1 || log.steps[depositDone].TxHash != "0xdest" {
		t.Fatalf("deposit step should complete with the destination tx: %+v", log.steps)
	}
}

func TestExecuteExpiredQuoteFailsFast(t *testing.T) {
	client := New(httpx.New(time.Second, 0), "http://unused.invalid")
	quote := liveQuote()
	quote.ExpiresAt = time.Now().Add(-time.Minute)

	log := &eventLog{}
	_, err := client.Execute(context.Background(), fastParams(quote, newTestSigner(t), nil, log))
	if !clierr.Is(err, clierr.CodeExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}
	var apiErr *httpx.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "QUOTE_EXPIRED" {
		t.Fatalf("expected QUOTE_EXPIRED code, got %v", err)
	}
	if _, _, hint := Normalize(err); hint == "" {
		t.Fatal("expired quote should carry a recovery hint")
	}
	if len(log.steps) != 0 {
		t.Fatalf("no steps should run for an expired quote: %+v", log.steps)
	}
}

func TestExecuteBridgeBroadcastFailure(t *testing.T) {
	source := &fakeNode{chainID: 42161, failSend: true}
	sourceRPC := source.serve(t)

	gw := &fakeGateway{
		plan: planResponse{
			Bridge: txPayload{ChainID: 42161, To: "0x00000000000000000000000000000000000000b1", Data: "0xdeadbeef"},
		},
	}
	client := gw.serve(t)

	log := &eventLog{}
	_, err := client.Execute(context.Background(), fastParams(liveQuote(), newTestSigner(t), map[int64]string{42161: sourceRPC.URL}, log))
	if err == nil {
		t.Fatal("expected broadcast failure")
	}
	if log.stepIndex(StepBridge, StepStatusFailed) == -1 {
		t.Fatalf("bridge step should report failure: %+v", log.steps)
	}
}

func TestExecuteSettlementFailure(t *testing.T) {
	source := &fakeNode{chainID: 42161}
	sourceRPC := source.serve(t)

	gw := &fakeGateway{
		plan: planResponse{
			Bridge: txPayload{ChainID: 42161, To: "0x00000000000000000000000000000000000000b1", Data: "0xdeadbeef"},
		},
		settle: TransactionStatus{Status: TxStatusFailed, Substatus: "REFUNDED"},
	}
	client := gw.serve(t)

	log := &eventLog{}
	result, err := client.Execute(context.Background(), fastParams(liveQuote(), newTestSigner(t), map[int64]string{42161: sourceRPC.URL}, log))
	if !clierr.Is(err, clierr.CodeExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}
	if result.Status != TxStatusFailed {
		t.Fatalf("result should report failure, got %+v", result)
	}
	if result.BridgeTxHash == "" {
		t.Fatal("bridge hash should survive a settlement failure")
	}
	if log.stepIndex(StepDeposit, StepStatusFailed) == -1 {
		t.Fatalf("confirm step should report failure: %+v", log.steps)
	}
}
