package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Command   string         `json:"command"`
	Gateway   *GatewayStatus `json:"gateway,omitempty"`
	Cache     CacheStatus    `json:"cache"`
}

type GatewayStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type ChainView struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	ChainID      int64  `json:"chain_id"`
	NativeSymbol string `json:"native_symbol"`
	Destination  bool   `json:"destination,omitempty"`
}

type TokenView struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Chain    string `json:"chain"`
}

type QuoteView struct {
	FromChain      string     `json:"from_chain"`
	ToChain        string     `json:"to_chain"`
	Token          string     `json:"token"`
	InputAmount    AmountInfo `json:"input_amount"`
	EstimatedOut   AmountInfo `json:"estimated_out"`
	FeeUSD         float64    `json:"fee_usd"`
	EstimatedTimeS int64      `json:"estimated_time_s"`
	SlippagePct    float64    `json:"slippage_pct"`
	Route          string     `json:"route"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

type StepView struct {
	Phase  string `json:"phase"`
	Status string `json:"status"`
	TxHash string `json:"tx_hash,omitempty"`
}

type BridgeResultView struct {
	Status        string     `json:"status"`
	FromChain     string     `json:"from_chain"`
	Token         string     `json:"token"`
	InputAmount   AmountInfo `json:"input_amount"`
	BridgeTxHash  string     `json:"bridge_tx_hash,omitempty"`
	DepositTxHash string     `json:"deposit_tx_hash,omitempty"`
	Steps         []StepView `json:"steps"`
	ExplorerURL   string     `json:"explorer_url,omitempty"`
	DurationMS    int64      `json:"duration_ms"`
}

type StatusView struct {
	TxHash      string `json:"tx_hash"`
	Status      string `json:"status"`
	Substatus   string `json:"substatus,omitempty"`
	FromChain   string `json:"from_chain,omitempty"`
	ToChain     string `json:"to_chain,omitempty"`
	SourceTx    string `json:"source_tx,omitempty"`
	DestTx      string `json:"dest_tx,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

type BalanceView struct {
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Token    string `json:"token"`
	Symbol   string `json:"symbol"`
	Native   bool   `json:"native"`
	Decimals int    `json:"decimals"`
	Raw      string `json:"raw"`
	Amount   string `json:"amount"`
}

type ConfigEntryView struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type HistoryView struct {
	TxHash        string    `json:"tx_hash"`
	Timestamp     time.Time `json:"timestamp"`
	FromChain     string    `json:"from_chain"`
	ToChain       string    `json:"to_chain"`
	Token         string    `json:"token"`
	Amount        string    `json:"amount"`
	Address       string    `json:"address"`
	Status        string    `json:"status"`
	DepositTxHash string    `json:"deposit_tx_hash,omitempty"`
}
