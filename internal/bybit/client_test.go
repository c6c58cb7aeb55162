package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type capturedRequest struct {
	path   string
	header http.Header
	body   []byte
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, <-chan capturedRequest) {
	t.Helper()
	captured := make(chan capturedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured <- capturedRequest{path: r.URL.Path, header: r.Header.Clone(), body: body}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	signer, err := NewSigner("test-key", "test-secret", "5000")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	client, err := NewClient(Options{BaseURL: srv.URL, Timeout: 2 * time.Second}, signer, zap.NewNop())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	client.now = func() time.Time { return time.UnixMilli(1658384314791) }
	return client, captured
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestQueryAssetInfo(t *testing.T) {
	client, captured := newTestClient(t, respond(`{
		"retCode": 0,
		"retMsg": "OK",
		"result": {
			"resultTotalSize": 1,
			"cursor": "",
			"dataList": [{
				"baseCoin": "BTC",
				"totalDelta": "-0.1093",
				"totalGamma": "0.00000336",
				"totalVega": "1.60513138",
				"totalTheta": "-4.68165747",
				"totalRPL": "-0.0012",
				"sessionUPL": "0.0001",
				"sessionRPL": "0",
				"im": "205.1247",
				"mm": "152.0391"
			}]
		}
	}`))
	resp, err := client.QueryAssetInfo(context.Background())
	if err != nil {
		t.Fatalf("query asset info: %v", err)
	}
	if resp.Result.ResultTotalSize != 1 || len(resp.Result.DataList) != 1 {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
	asset := resp.Result.DataList[0]
	if asset.BaseCoin != "BTC" || !asset.TotalDelta.Equal(decimal.RequireFromString("-0.1093")) {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if asset.TotalGamma.String() != "0.00000336" {
		t.Fatalf("expected exact gamma, got %s", asset.TotalGamma)
	}
	req := <-captured
	if req.path != PathQueryAssetInfo {
		t.Fatalf("unexpected path %s", req.path)
	}
	if string(req.body) != "{}" {
		t.Fatalf("expected empty object body, got %s", req.body)
	}
}

func TestSignedHeaders(t *testing.T) {
	client, captured := newTestClient(t, respond(`{"retCode":0,"retMsg":"OK","result":{"dataList":[]}}`))
	if _, err := client.QueryAssetInfo(context.Background()); err != nil {
		t.Fatalf("query: %v", err)
	}
	req := <-captured
	want := map[string]string{
		"X-BAPI-API-KEY":     "test-key",
		"X-BAPI-SIGN-TYPE":   "2",
		"X-BAPI-TIMESTAMP":   "1658384314791",
		"X-BAPI-RECV-WINDOW": "5000",
		"Content-Type":       "application/json",
		"X-BAPI-SIGN":        Sign([]byte("test-secret"), "1658384314791", "test-key", "5000", req.body),
	}
	for key, val := range want {
		if got := req.header.Get(key); got != val {
			t.Fatalf("header %s: expected %q, got %q", key, val, got)
		}
	}
}

func TestPlaceMarketOrderBody(t *testing.T) {
	client, captured := newTestClient(t, respond(`{
		"retCode": 0,
		"retMsg": "",
		"result": {
			"orderId": "a1b2",
			"orderLinkId": "",
			"symbol": "BTCPERP",
			"orderType": "Market",
			"side": "Sell",
			"orderQty": "0.004",
			"orderPrice": "21000"
		}
	}`))
	qty := decimal.RequireFromString("0.004")
	resp, err := client.PlaceMarketOrder(context.Background(), "BTCPERP", SideSell, qty)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if resp.Result.OrderID != "a1b2" || resp.Result.Side != SideSell {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
	req := <-captured
	if req.path != PathPlaceOrder {
		t.Fatalf("unexpected path %s", req.path)
	}
	var body map[string]string
	if err := json.Unmarshal(req.body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := map[string]string{
		"symbol":      "BTCPERP",
		"orderType":   "Market",
		"orderFilter": "Order",
		"side":        "Sell",
		"orderQty":    "0.004",
	}
	if len(body) != len(want) {
		t.Fatalf("unexpected body fields: %v", body)
	}
	for key, val := range want {
		if body[key] != val {
			t.Fatalf("body %s: expected %q, got %q", key, val, body[key])
		}
	}
}

func TestPlaceMarketOrderRejectsInvalidInput(t *testing.T) {
	client, captured := newTestClient(t, respond(`{}`))
	ctx := context.Background()
	one := decimal.NewFromInt(1)
	if _, err := client.PlaceMarketOrder(ctx, "", SideBuy, one); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
	if _, err := client.PlaceMarketOrder(ctx, "BTCPERP", Side("Hold"), one); err == nil {
		t.Fatalf("expected error for invalid side")
	}
	if _, err := client.PlaceMarketOrder(ctx, "BTCPERP", SideBuy, decimal.Zero); err == nil {
		t.Fatalf("expected error for zero qty")
	}
	if _, err := client.PlaceMarketOrder(ctx, "BTCPERP", SideBuy, one.Neg()); err == nil {
		t.Fatalf("expected error for negative qty")
	}
	select {
	case req := <-captured:
		t.Fatalf("expected no request, got %s", req.path)
	default:
	}
}

func TestQueryOrderBody(t *testing.T) {
	client, captured := newTestClient(t, respond(`{
		"retCode": 0,
		"retMsg": "OK",
		"result": {
			"resultTotalSize": 1,
			"dataList": [{"orderId": "a1b2", "symbol": "BTCPERP", "orderType": "Market", "side": "Buy", "orderStatus": "Filled", "price": "21000"}]
		}
	}`))
	resp, err := client.QueryOrder(context.Background(), "a1b2")
	if err != nil {
		t.Fatalf("query order: %v", err)
	}
	if len(resp.Result.DataList) != 1 || resp.Result.DataList[0].OrderStatus != OrderStatusFilled {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
	req := <-captured
	if req.path != PathQueryOrderHistory {
		t.Fatalf("unexpected path %s", req.path)
	}
	if string(req.body) != `{"category":"PERPETUAL","orderId":"a1b2"}` {
		t.Fatalf("unexpected body %s", req.body)
	}
}

func TestNonzeroRetCodeIsAPIError(t *testing.T) {
	client, _ := newTestClient(t, respond(`{"retCode":10004,"retMsg":"error sign!","result":null}`))
	_, err := client.QueryAssetInfo(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != 10004 || apiErr.Message != "error sign!" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestMalformedBodyIsDecodeError(t *testing.T) {
	client, _ := newTestClient(t, respond(`{"retCode":0,"result":{"dataList":[{"totalDelta":"not-a-number"}]}}`))
	_, err := client.QueryAssetInfo(context.Background())
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Body == "" {
		t.Fatalf("expected raw body on decode error")
	}
}

func TestNon2xxIsTransportError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})
	_, err := client.QueryOrder(context.Background(), "x")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusBadGateway || transportErr.Body != "upstream down" {
		t.Fatalf("unexpected transport error: %+v", transportErr)
	}
}

func TestUnreachableHostIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	signer, _ := NewSigner("k", "s", "")
	client, err := NewClient(Options{BaseURL: url, Timeout: time.Second}, signer, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	_, err = client.QueryAssetInfo(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
