package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delta-hedge-bot/internal/bybit"
	"delta-hedge-bot/internal/hedge"
	"delta-hedge-bot/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderAPI is the slice of the exchange client the lifecycle needs.
type OrderAPI interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side bybit.Side, qty decimal.Decimal) (bybit.Response[bybit.OrderPlacingInfo], error)
	QueryOrder(ctx context.Context, orderID string) (bybit.Response[bybit.OrderInfoList], error)
}

type Config struct {
	SettleDelay  time.Duration
	PollInterval time.Duration
	MaxPolls     int
}

// Fill describes an order that reached Filled.
type Fill struct {
	Placed bybit.OrderPlacingInfo
	Order  bybit.OrderInfo
	Polls  int
}

// FillTimeoutError means the order never reported Filled within MaxPolls.
// Its real state on the exchange is unknown.
type FillTimeoutError struct {
	OrderID    string
	Polls      int
	LastStatus bybit.OrderStatus
}

func (e *FillTimeoutError) Error() string {
	return fmt.Sprintf("order %s not filled after %d polls (last status %q)", e.OrderID, e.Polls, e.LastStatus)
}

// OrderClosedError means the exchange closed the order without filling it.
type OrderClosedError struct {
	OrderID string
	Status  bybit.OrderStatus
}

func (e *OrderClosedError) Error() string {
	return fmt.Sprintf("order %s closed with status %s", e.OrderID, e.Status)
}

type Executor struct {
	api     OrderAPI
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

func New(api OrderAPI, cfg Config, m *metrics.Metrics, log *zap.Logger) *Executor {
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		api:     api,
		cfg:     cfg,
		metrics: m,
		log:     log,
		wait:    sleep,
	}
}

// Execute places a market order for action and blocks until it fills.
// The placed order is returned alongside any error raised after placement.
func (e *Executor) Execute(ctx context.Context, symbol string, action hedge.Action) (Fill, error) {
	side, ok := action.Side()
	if !ok {
		return Fill{}, errors.New("no trade to execute")
	}
	resp, err := e.api.PlaceMarketOrder(ctx, symbol, side, action.Qty)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return Fill{}, fmt.Errorf("place %s order: %w", side, err)
	}
	placed := resp.Result
	if placed.OrderID == "" {
		e.metrics.OrdersFailed.Inc()
		return Fill{}, errors.New("place order: empty order id")
	}
	e.metrics.OrdersPlaced.Inc()
	e.log.Info("order placed",
		zap.String("order_id", placed.OrderID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Stringer("qty", action.Qty),
	)
	fill, err := e.AwaitFill(ctx, placed.OrderID)
	fill.Placed = placed
	return fill, err
}

// AwaitFill polls the order until its first reported entry is Filled.
func (e *Executor) AwaitFill(ctx context.Context, orderID string) (Fill, error) {
	if err := e.wait(ctx, e.cfg.SettleDelay); err != nil {
		return Fill{}, err
	}
	var last bybit.OrderStatus
	for poll := 1; ; poll++ {
		resp, err := e.api.QueryOrder(ctx, orderID)
		if err != nil {
			return Fill{Polls: poll}, fmt.Errorf("query order %s: %w", orderID, err)
		}
		if orders := resp.Result.DataList; len(orders) > 0 {
			order := orders[0]
			last = order.OrderStatus
			switch {
			case last == bybit.OrderStatusFilled:
				e.metrics.OrdersFilled.Inc()
				e.log.Info("order filled", zap.String("order_id", orderID), zap.Int("polls", poll), zap.String("price", order.Price))
				return Fill{Order: order, Polls: poll}, nil
			case last.Closed():
				e.metrics.OrdersFailed.Inc()
				return Fill{Order: order, Polls: poll}, &OrderClosedError{OrderID: orderID, Status: last}
			}
		}
		if e.cfg.MaxPolls > 0 && poll >= e.cfg.MaxPolls {
			e.metrics.FillTimeouts.Inc()
			return Fill{Polls: poll}, &FillTimeoutError{OrderID: orderID, Polls: poll, LastStatus: last}
		}
		e.log.Debug("order not filled yet", zap.String("order_id", orderID), zap.String("status", string(last)), zap.Int("poll", poll))
		if err := e.wait(ctx, e.cfg.PollInterval); err != nil {
			return Fill{Polls: poll}, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
