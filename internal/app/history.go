package app

import (
	"context"
	"time"

	"delta-hedge-bot/internal/state"
	"delta-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

// record persists the cycle outcome locally and queues it for the history table.
func (a *App) record(ctx context.Context, report cycleReport, finished time.Time, cycleErr error) {
	errText := ""
	if cycleErr != nil {
		errText = cycleErr.Error()
	}
	snapshot := state.CycleSnapshot{
		Coin:       report.Coin,
		Symbol:     a.cfg.Strategy.Symbol,
		DeltaPre:   report.DeltaPre.String(),
		Action:     report.Action.String(),
		OrderID:    report.OrderID,
		Outcome:    report.Outcome,
		Error:      errText,
		StartedAt:  report.Started,
		FinishedAt: finished,
	}
	if report.DeltaPost.Valid {
		snapshot.DeltaPost = report.DeltaPost.Decimal.String()
	}
	if err := state.SaveCycleSnapshot(context.WithoutCancel(ctx), a.store, snapshot); err != nil {
		a.log.Warn("cycle snapshot persist failed", zap.Error(err))
	}

	side, _ := report.Action.Side()
	a.timescale.EnqueueCycle(timescale.CycleRow{
		Time:      report.Started,
		Coin:      report.Coin,
		Symbol:    a.cfg.Strategy.Symbol,
		DeltaPre:  report.DeltaPre,
		DeltaPost: report.DeltaPost,
		Side:      string(side),
		Qty:       report.Action.Qty,
		OrderID:   report.OrderID,
		Outcome:   report.Outcome,
		Polls:     report.Polls,
		Error:     errText,
	})
}
