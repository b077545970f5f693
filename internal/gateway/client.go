package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/httpx"
)

const defaultBase = "https://api.minabridge.xyz"

// Client talks to the mina bridge gateway. All route discovery, pricing and
// transaction-payload construction happens on the gateway side; the client
// only moves JSON and drives submitted transactions to completion.
type Client struct {
	http    *httpx.Client
	baseURL string
	now     func() time.Time
}

func New(httpClient *httpx.Client, baseURL string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBase
	}
	return &Client{http: httpClient, baseURL: base, now: time.Now}
}

func (c *Client) Chains(ctx context.Context) ([]Chain, error) {
	var resp struct {
		Chains []Chain `json:"chains"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/chains", nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build chains request", err)
	}
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Chains) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "gateway returned no chains")
	}
	return resp.Chains, nil
}

func (c *Client) Tokens(ctx context.Context, chainID int64) ([]Token, error) {
	vals := url.Values{}
	vals.Set("chainId", strconv.FormatInt(chainID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tokens?"+vals.Encode(), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build tokens request", err)
	}
	var resp struct {
		Tokens []Token `json:"tokens"`
	}
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.FromChainID == 0 || req.ToChainID == 0 {
		return Quote{}, clierr.New(clierr.CodeUsage, "quote requires source and destination chains")
	}
	if strings.TrimSpace(req.AmountBaseUnits) == "" || req.AmountBaseUnits == "0" {
		return Quote{}, clierr.New(clierr.CodeInvalidAmount, "quote amount must be greater than zero")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeInternal, "encode quote request", err)
	}
	var resp struct {
		Quote Quote `json:"quote"`
	}
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/v1/quote", body, nil, &resp); err != nil {
		return Quote{}, err
	}
	if strings.TrimSpace(resp.Quote.ID) == "" {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "gateway returned empty quote")
	}
	return resp.Quote, nil
}

// Status resolves a bridge transfer by source transaction hash. An unknown
// hash yields (nil, nil) rather than an error.
func (c *Client) Status(ctx context.Context, txHash string) (*TransactionStatus, error) {
	hash := strings.TrimSpace(txHash)
	if hash == "" {
		return nil, clierr.New(clierr.CodeUsage, "transaction hash is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/status/"+url.PathEscape(hash), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build status request", err)
	}
	var status TransactionStatus
	if _, err := c.http.DoJSON(ctx, req, &status); err != nil {
		if clierr.Is(err, clierr.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(status.TxHash) == "" {
		status.TxHash = hash
	}
	return &status, nil
}

func (c *Client) plan(ctx context.Context, quoteID, sender, recipient string) (planResponse, error) {
	payload := map[string]string{
		"quoteId":   quoteID,
		"sender":    sender,
		"recipient": recipient,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return planResponse{}, clierr.Wrap(clierr.CodeInternal, "encode plan request", err)
	}
	var resp planResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/v1/plan", body, nil, &resp); err != nil {
		return planResponse{}, err
	}
	if strings.TrimSpace(resp.Bridge.To) == "" || strings.TrimSpace(resp.Bridge.Data) == "" {
		return planResponse{}, clierr.New(clierr.CodeUnavailable, "gateway plan missing bridge transaction payload")
	}
	return resp, nil
}
