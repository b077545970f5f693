package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/httpx"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(httpx.New(5*time.Second, 0), srv.URL)
}

func TestChainsAndTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chains", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"chains": []Chain{
			{Key: "arbitrum", Name: "Arbitrum One", ChainID: 42161, NativeSymbol: "ETH"},
			{Key: "hyperevm", Name: "HyperEVM", ChainID: 999, NativeSymbol: "HYPE", Destination: true},
		}})
	})
	mux.HandleFunc("/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("chainId"); got != "42161" {
			t.Errorf("unexpected chainId query %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tokens": []Token{
			{Symbol: "USDC", Name: "USD Coin", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6, ChainID: 42161},
		}})
	})

	client := testClient(t, mux)
	chains, err := client.Chains(context.Background())
	if err != nil {
		t.Fatalf("Chains failed: %v", err)
	}
	if len(chains) != 2 || !chains[1].Destination {
		t.Fatalf("unexpected chains: %+v", chains)
	}

	tokens, err := client.Tokens(context.Background(), 42161)
	if err != nil {
		t.Fatalf("Tokens failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Symbol != "USDC" || tokens[0].Decimals != 6 {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
}

func TestChainsEmptyListIsUnavailable(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"chains": []Chain{}})
	}))
	_, err := client.Chains(context.Background())
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestQuoteValidatesInput(t *testing.T) {
	client := New(httpx.New(time.Second, 0), "http://unused.invalid")
	_, err := client.Quote(context.Background(), QuoteRequest{Token: "USDC", AmountBaseUnits: "1"})
	if !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("missing chains should be a usage error, got %v", err)
	}
	_, err = client.Quote(context.Background(), QuoteRequest{FromChainID: 42161, ToChainID: 999, Token: "USDC", AmountBaseUnits: "0"})
	if !clierr.Is(err, clierr.CodeInvalidAmount) {
		t.Fatalf("zero amount should be an invalid amount error, got %v", err)
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	expires := time.Now().Add(2 * time.Minute).UTC().Truncate(time.Second)
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/quote" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req QuoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode quote request: %v", err)
		}
		if req.FromChainID != 42161 || req.ToChainID != 999 || req.AmountBaseUnits != "1500000" {
			t.Errorf("quote request not forwarded: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"quote": Quote{
			ID:             "q-1",
			FromChainID:    req.FromChainID,
			ToChainID:      req.ToChainID,
			Token:          Token{Symbol: req.Token, Decimals: 6, ChainID: req.FromChainID},
			AmountIn:       req.AmountBaseUnits,
			EstimatedOut:   "1498200",
			FeeUSD:         0.42,
			EstimatedTimeS: 90,
			SlippagePct:    req.SlippagePct,
			Route:          "arbitrum->hyperevm",
			ExpiresAt:      expires,
		}})
	}))

	quote, err := client.Quote(context.Background(), QuoteRequest{
		FromChainID:     42161,
		ToChainID:       999,
		Token:           "USDC",
		AmountBaseUnits: "1500000",
		SlippagePct:     0.5,
	})
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.ID != "q-1" || quote.EstimatedOut != "1498200" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
	if quote.Expired(time.Now()) {
		t.Fatal("quote should not be expired yet")
	}
	if !quote.Expired(expires.Add(time.Second)) {
		t.Fatal("quote should expire after expiresAt")
	}
}

func TestStatusUnknownHashIsNilNil(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"code":    "TX_NOT_FOUND",
			"message": "unknown transaction",
		}})
	}))
	status, err := client.Status(context.Background(), "0xdeadbeef")
	if err != nil {
		t.Fatalf("unknown hash should not error, got %v", err)
	}
	if status != nil {
		t.Fatalf("unknown hash should yield nil status, got %+v", status)
	}
}

func TestStatusBackfillsHash(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TransactionStatus{Status: TxStatusPending, Substatus: "WAIT_DESTINATION"})
	}))
	status, err := client.Status(context.Background(), "0xabc123")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status == nil || status.TxHash != "0xabc123" {
		t.Fatalf("tx hash should be backfilled, got %+v", status)
	}
}

func TestQuoteGatewayErrorCarriesCodeAndHint(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"code":    "AMOUNT_TOO_LOW",
			"message": "minimum transfer is 5 USDC",
		}})
	}))
	_, err := client.Quote(context.Background(), QuoteRequest{
		FromChainID:     42161,
		ToChainID:       999,
		Token:           "USDC",
		AmountBaseUnits: "1",
	})
	if err == nil {
		t.Fatal("expected gateway error")
	}
	var apiErr *httpx.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "AMOUNT_TOO_LOW" {
		t.Fatalf("expected APIError with code, got %v", err)
	}
	message, code, hint := Normalize(err)
	if message != "minimum transfer is 5 USDC" {
		t.Fatalf("unexpected normalized message %q", message)
	}
	if code != "AMOUNT_TOO_LOW" || hint == "" {
		t.Fatalf("expected code and hint, got code=%q hint=%q", code, hint)
	}
}
