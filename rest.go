package alphasec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client is the HTTP collaborator for the exchange's REST surface.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient builds a REST client over cfg. A nil logger disables logging.
func NewClient(cfg *Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}
}

func (c *Client) buildURL(path string, params url.Values) string {
	u := c.cfg.APIURL() + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// do issues the request, retrying transport failures up to MaxRetries.
// Non-2xx responses surface as *APIError carrying the status and body.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (*APIResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, rawURL, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, newAPIError(resp.StatusCode, strings.TrimSpace(string(payload)))
		}
		var parsed APIResponse
		if err := wireJSON.Unmarshal(payload, &parsed); err != nil {
			return nil, newAPIError(http.StatusInternalServerError, fmt.Sprintf("malformed response: %v", err))
		}
		c.log.Debug("rest response", zap.String("url", rawURL), zap.Int("code", parsed.Code))
		return &parsed, nil
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*APIResponse, error) {
	return c.do(ctx, http.MethodGet, c.buildURL(path, params), nil)
}

func (c *Client) post(ctx context.Context, path string, body any) (*APIResponse, error) {
	raw, err := wireJSON.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.buildURL(path, nil), raw)
}

func decodeResult[T any](resp *APIResponse) (T, error) {
	var out T
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return out, nil
	}
	if err := wireJSON.Unmarshal(resp.Result, &out); err != nil {
		return out, newAPIError(http.StatusInternalServerError, fmt.Sprintf("malformed result: %v", err))
	}
	return out, nil
}

// submitTx POSTs a signed transaction envelope to path.
func (c *Client) submitTx(ctx context.Context, path, signedTx string) (*APIResponse, error) {
	return c.post(ctx, path, map[string]string{"tx": signedTx})
}

// submitSessionTx POSTs a session transaction together with its session id.
func (c *Client) submitSessionTx(ctx context.Context, path, sessionID, signedTx string) (*APIResponse, error) {
	return c.post(ctx, path, map[string]string{"sessionId": sessionID, "tx": signedTx})
}

// GetMarkets lists all markets.
func (c *Client) GetMarkets(ctx context.Context) ([]MarketInfo, error) {
	resp, err := c.get(ctx, "/api/v1/market", nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]MarketInfo](resp)
}

// GetTickers lists 24h summaries for every market, or one market when
// marketID is non-empty.
func (c *Client) GetTickers(ctx context.Context, marketID string) ([]Ticker, error) {
	params := url.Values{}
	if marketID != "" {
		params.Set("marketId", marketID)
	}
	resp, err := c.get(ctx, "/api/v1/market/ticker", params)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]Ticker](resp)
}

// GetTokens lists all tokens.
func (c *Client) GetTokens(ctx context.Context) ([]Token, error) {
	resp, err := c.get(ctx, "/api/v1/market/tokens", nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]Token](resp)
}

// GetTrades lists recent public trades for a market id.
func (c *Client) GetTrades(ctx context.Context, marketID string, limit uint32) ([]Trade, error) {
	if limit == 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("marketId", marketID)
	params.Set("limit", strconv.FormatUint(uint64(limit), 10))
	resp, err := c.get(ctx, "/api/v1/market/trades", params)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]Trade](resp)
}

// GetBalance lists per-token balances for address at a block.
func (c *Client) GetBalance(ctx context.Context, address string) (*Balances, error) {
	params := url.Values{}
	params.Set("address", address)
	resp, err := c.get(ctx, "/api/v1/wallet/balance", params)
	if err != nil {
		return nil, err
	}
	return decodeResult[*Balances](resp)
}

// GetSessions lists registered sessions for address.
func (c *Client) GetSessions(ctx context.Context, address string) ([]Session, error) {
	params := url.Values{}
	params.Set("address", address)
	resp, err := c.get(ctx, "/api/v1/wallet/session", params)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]Session](resp)
}

// GetTransferHistory lists deposit/withdraw/transfer records for the
// query address. The result is the raw JSON the server returns.
func (c *Client) GetTransferHistory(ctx context.Context, q *TransferHistoryQuery) (*APIResponse, error) {
	params := url.Values{}
	params.Set("address", q.Address)
	if q.TokenID != "" {
		params.Set("tokenId", q.TokenID)
	}
	if q.FromMsec > 0 {
		params.Set("fromMsec", strconv.FormatInt(q.FromMsec, 10))
	}
	if q.ToMsec > 0 {
		params.Set("toMsec", strconv.FormatInt(q.ToMsec, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.FormatUint(uint64(q.Limit), 10))
	}
	return c.get(ctx, "/api/v1/wallet/transfer", params)
}

func ordersParams(q *OrdersQuery) url.Values {
	params := url.Values{}
	params.Set("address", q.Address)
	if q.Market != "" {
		params.Set("marketId", q.Market)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.FormatUint(uint64(q.Limit), 10))
	}
	return params
}

// GetOpenOrders lists working orders. q.Market must already be a market id.
func (c *Client) GetOpenOrders(ctx context.Context, q *OrdersQuery) ([]Order, error) {
	resp, err := c.get(ctx, "/api/v1/order/open", ordersParams(q))
	if err != nil {
		return nil, err
	}
	return decodeResult[[]Order](resp)
}

// GetOrderHistory lists filled and canceled orders.
func (c *Client) GetOrderHistory(ctx context.Context, q *OrdersQuery) ([]Order, error) {
	resp, err := c.get(ctx, "/api/v1/order/", ordersParams(q))
	if err != nil {
		return nil, err
	}
	return decodeResult[[]Order](resp)
}

// GetOrderByID fetches one order. A 404 means the order does not exist
// and returns (nil, nil) rather than an error.
func (c *Client) GetOrderByID(ctx context.Context, orderID string) (*Order, error) {
	resp, err := c.get(ctx, "/api/v1/order/"+url.PathEscape(orderID), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	order, err := decodeResult[*Order](resp)
	if err != nil {
		return nil, err
	}
	return order, nil
}
