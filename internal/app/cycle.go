package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delta-hedge-bot/internal/bybit"
	"delta-hedge-bot/internal/exec"
	"delta-hedge-bot/internal/hedge"
	"delta-hedge-bot/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// cycleReport collects what one cycle observed and did.
type cycleReport struct {
	Started   time.Time
	Coin      string
	DeltaPre  decimal.Decimal
	DeltaPost decimal.NullDecimal
	Action    hedge.Action
	OrderID   string
	Polls     int
	Outcome   string
}

func (a *App) runCycle(ctx context.Context) {
	if a.isPaused() {
		a.log.Info("cycle skipped: paused by operator")
		return
	}
	a.metrics.CyclesRun.Inc()
	report, err := a.cycle(ctx)
	finished := a.now()
	switch {
	case err != nil && ctx.Err() != nil:
		a.log.Info("cycle interrupted by shutdown", zap.Error(err), zap.String("order_id", report.OrderID))
	case err != nil:
		a.metrics.CyclesFailed.Inc()
		a.log.Warn("hedge cycle failed", append(errorFields(err), zap.String("outcome", report.Outcome))...)
	}
	a.markCycle(finished)
	a.metrics.LastCycleUnix.Set(float64(finished.Unix()))
	a.record(ctx, report, finished, err)
}

func (a *App) cycle(ctx context.Context) (cycleReport, error) {
	report := cycleReport{Started: a.now(), Action: hedge.None(), Outcome: state.OutcomeFailed}

	blocked, err := a.reconcilePending(ctx)
	if err != nil {
		return report, err
	}
	if blocked {
		report.Outcome = state.OutcomeBlocked
		return report, nil
	}

	asset, err := a.fetchAsset(ctx)
	if err != nil {
		return report, err
	}
	report.Coin = asset.BaseCoin
	report.DeltaPre = asset.TotalDelta
	a.metrics.PreHedgeDelta.Set(asset.TotalDelta.InexactFloat64())

	action := hedge.Decide(asset.TotalDelta, a.cfg.Strategy.Places())
	report.Action = action
	a.log.Info("option delta",
		zap.String("coin", asset.BaseCoin),
		zap.Stringer("delta", asset.TotalDelta),
		zap.Stringer("action", action),
	)
	if action.IsNone() {
		a.metrics.HedgesSkipped.Inc()
		report.Outcome = state.OutcomeNoHedge
		return report, nil
	}

	fill, err := a.executor.Execute(ctx, a.cfg.Strategy.Symbol, action)
	report.OrderID = fill.Placed.OrderID
	report.Polls = fill.Polls
	if err != nil {
		return report, a.handleExecError(ctx, &report, action, fill, err)
	}
	report.Outcome = state.OutcomeHedged

	post, err := a.fetchAsset(ctx)
	if err != nil {
		return report, fmt.Errorf("post-hedge delta: %w", err)
	}
	report.DeltaPost = decimal.NewNullDecimal(post.TotalDelta)
	a.metrics.PostHedgeDelta.Set(post.TotalDelta.InexactFloat64())
	a.log.Info("post-hedge delta",
		zap.String("coin", post.BaseCoin),
		zap.Stringer("delta", post.TotalDelta),
		zap.String("order_id", report.OrderID),
	)
	a.sendAlert(ctx, fmt.Sprintf("Hedged %s delta %s with %s %s (order %s), delta now %s",
		asset.BaseCoin, asset.TotalDelta, action, a.cfg.Strategy.Symbol, report.OrderID, post.TotalDelta))
	return report, nil
}

func (a *App) fetchAsset(ctx context.Context) (bybit.AssetInfo, error) {
	resp, err := a.exchange.QueryAssetInfo(ctx)
	if err != nil {
		return bybit.AssetInfo{}, fmt.Errorf("query asset info: %w", err)
	}
	return hedge.SelectAsset(resp.Result.DataList, a.cfg.Strategy.Coin)
}

func (a *App) handleExecError(ctx context.Context, report *cycleReport, action hedge.Action, fill exec.Fill, err error) error {
	// Shutdown may have cancelled ctx mid-poll; the order still has to be tracked.
	ctx = context.WithoutCancel(ctx)
	var timeout *exec.FillTimeoutError
	var closed *exec.OrderClosedError
	switch {
	case errors.As(err, &closed):
		a.sendAlert(ctx, fmt.Sprintf("Hedge order %s (%s %s) closed unfilled: %s",
			closed.OrderID, action, a.cfg.Strategy.Symbol, closed.Status))
	case errors.As(err, &timeout):
		report.Outcome = state.OutcomeTimeout
		a.savePending(ctx, report, action, timeout.OrderID)
		a.sendAlert(ctx, fmt.Sprintf("Hedge order %s (%s %s) not filled after %d polls, last status %q. Next cycles wait for it.",
			timeout.OrderID, action, a.cfg.Strategy.Symbol, timeout.Polls, timeout.LastStatus))
	case fill.Placed.OrderID != "":
		a.savePending(ctx, report, action, fill.Placed.OrderID)
		a.sendAlert(ctx, fmt.Sprintf("Hedge order %s (%s %s) state unknown: %v. Next cycles wait for it.",
			fill.Placed.OrderID, action, a.cfg.Strategy.Symbol, err))
	default:
		a.sendAlert(ctx, fmt.Sprintf("Hedge order %s %s failed: %v", action, a.cfg.Strategy.Symbol, err))
	}
	return err
}

// savePending records an order whose final state is not known yet so the next
// cycle reconciles it before hedging again.
func (a *App) savePending(ctx context.Context, report *cycleReport, action hedge.Action, orderID string) {
	side, _ := action.Side()
	pending := state.PendingOrder{
		OrderID:  orderID,
		Symbol:   a.cfg.Strategy.Symbol,
		Side:     string(side),
		Qty:      action.Qty.String(),
		PlacedAt: report.Started,
	}
	if err := state.SavePendingOrder(ctx, a.store, pending); err != nil {
		a.log.Error("pending order persist failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

// reconcilePending resolves an order left in an unknown state. It reports
// true when that order may still fill, in which case no new hedge is placed.
func (a *App) reconcilePending(ctx context.Context) (bool, error) {
	pending, ok, err := state.LoadPendingOrder(ctx, a.store)
	if err != nil {
		return false, fmt.Errorf("load pending order: %w", err)
	}
	if !ok {
		return false, nil
	}
	resp, err := a.exchange.QueryOrder(ctx, pending.OrderID)
	if err != nil {
		return false, fmt.Errorf("reconcile order %s: %w", pending.OrderID, err)
	}
	var status bybit.OrderStatus
	if orders := resp.Result.DataList; len(orders) > 0 {
		status = orders[0].OrderStatus
	}
	fields := []zap.Field{
		zap.String("order_id", pending.OrderID),
		zap.String("status", string(status)),
		zap.Time("placed_at", pending.PlacedAt),
	}
	switch {
	case status == bybit.OrderStatusFilled:
		a.metrics.OrdersFilled.Inc()
		a.log.Info("pending order filled", fields...)
	case status.Closed():
		a.log.Warn("pending order closed unfilled", fields...)
	default:
		a.log.Warn("pending order still open, skipping hedge", fields...)
		a.sendAlert(ctx, fmt.Sprintf("Hedge skipped: order %s (%s %s %s) is still %q",
			pending.OrderID, pending.Side, pending.Qty, pending.Symbol, status))
		return true, nil
	}
	if err := state.ClearPendingOrder(ctx, a.store); err != nil {
		return false, fmt.Errorf("clear pending order: %w", err)
	}
	return false, nil
}

func errorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var apiErr *bybit.APIError
	var decodeErr *bybit.DecodeError
	var transportErr *bybit.TransportError
	switch {
	case errors.As(err, &apiErr):
		fields = append(fields, zap.String("kind", "api"), zap.Int("ret_code", apiErr.Code), zap.String("ret_msg", apiErr.Message))
	case errors.As(err, &decodeErr):
		fields = append(fields, zap.String("kind", "decode"), zap.String("body", decodeErr.Body))
	case errors.As(err, &transportErr):
		fields = append(fields, zap.String("kind", "transport"), zap.Int("status", transportErr.StatusCode))
	case errors.Is(err, hedge.ErrNoAsset):
		fields = append(fields, zap.String("kind", "no_asset"))
	}
	return fields
}
