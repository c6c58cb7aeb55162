package bybit

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

const (
	OrderTypeMarket   = "Market"
	OrderFilterOrder  = "Order"
	CategoryPerpetual = "PERPETUAL"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
	OrderStatusDeactivated     OrderStatus = "Deactivated"
)

// Closed reports statuses from which an order can no longer fill.
func (s OrderStatus) Closed() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRejected, OrderStatusDeactivated:
		return true
	}
	return false
}

// Response is the common envelope of every private endpoint.
type Response[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

// Page is the paginated list shape used by the USDC query endpoints.
type Page[T any] struct {
	ResultTotalSize int    `json:"resultTotalSize"`
	Cursor          string `json:"cursor"`
	DataList        []T    `json:"dataList"`
}

type AssetInfo struct {
	BaseCoin   string          `json:"baseCoin"`
	TotalDelta decimal.Decimal `json:"totalDelta"`
	TotalGamma decimal.Decimal `json:"totalGamma"`
	TotalVega  decimal.Decimal `json:"totalVega"`
	TotalTheta decimal.Decimal `json:"totalTheta"`
	TotalRPL   decimal.Decimal `json:"totalRPL"`
	SessionUPL decimal.Decimal `json:"sessionUPL"`
	SessionRPL decimal.Decimal `json:"sessionRPL"`
	IM         decimal.Decimal `json:"im"`
	MM         decimal.Decimal `json:"mm"`
}

type AssetInfoList = Page[AssetInfo]

type OrderPlacingInfo struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	OrderType   string `json:"orderType"`
	Side        Side   `json:"side"`
	OrderQty    string `json:"orderQty"`
	OrderPrice  string `json:"orderPrice"`
}

type OrderInfo struct {
	OrderID     string      `json:"orderId"`
	OrderLinkID string      `json:"orderLinkId"`
	Symbol      string      `json:"symbol"`
	OrderType   string      `json:"orderType"`
	Side        Side        `json:"side"`
	OrderStatus OrderStatus `json:"orderStatus"`
	Price       string      `json:"price"`
}

type OrderInfoList = Page[OrderInfo]

type placeOrderRequest struct {
	Symbol      string `json:"symbol"`
	OrderType   string `json:"orderType"`
	OrderFilter string `json:"orderFilter"`
	Side        Side   `json:"side"`
	OrderQty    string `json:"orderQty"`
}

type queryOrderRequest struct {
	Category string `json:"category"`
	OrderID  string `json:"orderId"`
}

// FormatQty renders a quantity as a plain decimal string without exponent.
func FormatQty(qty decimal.Decimal) string {
	return qty.String()
}

func validateOrder(symbol string, side Side, qty decimal.Decimal) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !side.Valid() {
		return fmt.Errorf("invalid side %q", side)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("order qty must be > 0, got %s", qty)
	}
	return nil
}
