package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	PathQueryAssetInfo    = "/option/usdc/openapi/private/v1/query-asset-info"
	PathPlaceOrder        = "/perpetual/usdc/openapi/private/v1/place-order"
	PathQueryOrderHistory = "/option/usdc/openapi/private/v1/query-order-history"

	maxResponseBody = 1 << 20
)

type Client struct {
	baseURL string
	http    *http.Client
	signer  *Signer
	limiter *rate.Limiter
	log     *zap.Logger
	now     func() time.Time
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

func NewClient(opts Options, signer *Signer, log *zap.Logger) (*Client, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.bybit.com"
	}
	if log == nil {
		log = zap.NewNop()
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		signer:  signer,
		limiter: limiter,
		log:     log,
		now:     time.Now,
	}, nil
}

func (c *Client) QueryAssetInfo(ctx context.Context) (Response[AssetInfoList], error) {
	var resp Response[AssetInfoList]
	err := c.post(ctx, PathQueryAssetInfo, struct{}{}, &resp)
	return resp, err
}

func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side Side, qty decimal.Decimal) (Response[OrderPlacingInfo], error) {
	var resp Response[OrderPlacingInfo]
	if err := validateOrder(symbol, side, qty); err != nil {
		return resp, err
	}
	req := placeOrderRequest{
		Symbol:      symbol,
		OrderType:   OrderTypeMarket,
		OrderFilter: OrderFilterOrder,
		Side:        side,
		OrderQty:    FormatQty(qty),
	}
	err := c.post(ctx, PathPlaceOrder, req, &resp)
	return resp, err
}

func (c *Client) QueryOrder(ctx context.Context, orderID string) (Response[OrderInfoList], error) {
	var resp Response[OrderInfoList]
	if strings.TrimSpace(orderID) == "" {
		return resp, errors.New("order id is required")
	}
	req := queryOrderRequest{Category: CategoryPerpetual, OrderID: orderID}
	err := c.post(ctx, PathQueryOrderHistory, req, &resp)
	return resp, err
}

// post signs and sends one request. The decoded envelope is returned through
// out even when retCode is nonzero so callers can inspect it; the error is then
// an *APIError.
func (c *Client) post(ctx context.Context, path string, req any, out interface{ code() (int, string) }) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.sign(httpReq, body)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &TransportError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Path: path, StatusCode: resp.StatusCode, Body: truncate(payload)}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &DecodeError{Path: path, Body: truncate(payload), Err: err}
	}
	if code, msg := out.code(); code != 0 {
		return &APIError{Path: path, Code: code, Message: msg}
	}
	c.log.Debug("bybit response", zap.String("path", path), zap.Int("bytes", len(payload)))
	return nil
}

func (c *Client) sign(req *http.Request, body []byte) {
	ts := c.now().UnixMilli()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, c.signer.APIKey())
	req.Header.Set(headerSign, c.signer.Sign(ts, body))
	req.Header.Set(headerSignType, signTypeHMAC)
	req.Header.Set(headerTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(headerRecvWindow, c.signer.RecvWindow())
}

func (r Response[T]) code() (int, string) {
	return r.RetCode, r.RetMsg
}
