package pumpportal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// TradeRequest is one delegated trade. Amount is SOL for buys and a percent
// of the holding for sells.
type TradeRequest struct {
	Action          domain.Action
	Mint            string
	Amount          float64
	SlippagePercent float64
}

// TradeClient is the REST client for the PumpPortal trade API, which signs and
// submits the transaction with the wallet linked to the API key.
type TradeClient struct {
	baseURL     string
	apiKey      string
	priorityFee float64
	pool        string
	httpClient  *http.Client
}

// NewTradeClient creates a trade API client.
//
// baseURL is the endpoint, e.g. "https://pumpportal.fun/api/trade".
func NewTradeClient(baseURL, apiKey string, priorityFee float64, pool string, timeout time.Duration) *TradeClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TradeClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		priorityFee: priorityFee,
		pool:        pool,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type tradeResponse struct {
	Signature string          `json:"signature"`
	Errors    json.RawMessage `json:"errors"`
}

// Trade submits req and returns the transaction signature. A response that
// carries errors, or no signature, wraps domain.ErrBrokerRejected.
func (c *TradeClient) Trade(ctx context.Context, req TradeRequest) (string, error) {
	form := c.form(req)

	endpoint := c.baseURL + "?" + url.Values{"api-key": {c.apiKey}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("pumpportal/trade: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("pumpportal/trade: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("pumpportal/trade: read response: %w", err)
	}

	var out tradeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("pumpportal/trade: status %d: decode response: %w", resp.StatusCode, err)
	}
	if msg := errorText(out.Errors); msg != "" {
		return "", fmt.Errorf("pumpportal/trade: %w: %s", domain.ErrBrokerRejected, msg)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("pumpportal/trade: %w: status %d", domain.ErrBrokerRejected, resp.StatusCode)
	}
	if out.Signature == "" {
		return "", fmt.Errorf("pumpportal/trade: %w: empty signature", domain.ErrBrokerRejected)
	}
	return out.Signature, nil
}

func (c *TradeClient) form(req TradeRequest) url.Values {
	form := url.Values{}
	form.Set("action", string(req.Action))
	form.Set("mint", req.Mint)
	form.Set("slippage", strconv.FormatFloat(req.SlippagePercent, 'f', -1, 64))
	form.Set("priorityFee", strconv.FormatFloat(c.priorityFee, 'f', -1, 64))
	form.Set("pool", c.pool)
	if req.Action == domain.ActionSell {
		form.Set("amount", strconv.FormatFloat(req.Amount, 'f', -1, 64)+"%")
		form.Set("denominatedInSol", "false")
	} else {
		form.Set("amount", strconv.FormatFloat(req.Amount, 'f', -1, 64))
		form.Set("denominatedInSol", "true")
	}
	return form
}

// errorText flattens the errors field, which the API sends either as a
// string or as a list of strings.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}
