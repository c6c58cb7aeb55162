package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"delta-hedge-bot/internal/alerts"
	"delta-hedge-bot/internal/schedule"
	"delta-hedge-bot/internal/state"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const operatorOffsetKey = "telegram:operator:last_update_id"

type operatorMeta struct {
	UpdateID int
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

type operatorAuditEvent struct {
	UpdateID     int       `msgpack:"update_id"`
	Time         time.Time `msgpack:"time"`
	Action       string    `msgpack:"action"`
	Command      string    `msgpack:"command"`
	UserID       int64     `msgpack:"user_id"`
	Username     string    `msgpack:"username,omitempty"`
	ChatID       int64     `msgpack:"chat_id"`
	PausedBefore bool      `msgpack:"paused_before"`
	PausedAfter  bool      `msgpack:"paused_after"`
	OrderID      string    `msgpack:"order_id,omitempty"`
}

func (a *App) startOperator(ctx context.Context) {
	if a.operator == nil {
		return
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	go a.operatorLoop(ctx, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	chatID := a.operator.ChatID()
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := a.operator.Updates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	if upd.ChatID != chatID || upd.UserID == 0 {
		return
	}
	if _, ok := allowedUsers[upd.UserID]; !ok {
		return
	}
	cmd, ok := parseOperatorCommand(upd.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   upd.UserID,
		Username: upd.Username,
		ChatID:   upd.ChatID,
		Raw:      upd.Text,
	}
	resp := a.handleOperatorCommand(ctx, cmd, meta)
	if resp == "" {
		return
	}
	if err := a.alerts.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

// parseOperatorCommand accepts "/cmd" and "/cmd@botname".
func parseOperatorCommand(text string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), cmd != ""
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, meta operatorMeta) string {
	event := operatorAuditEvent{
		UpdateID: meta.UpdateID,
		Time:     a.now().UTC(),
		Action:   cmd,
		Command:  meta.Raw,
		UserID:   meta.UserID,
		Username: meta.Username,
		ChatID:   meta.ChatID,
	}
	switch cmd {
	case "status":
		return a.operatorStatus(ctx)
	case "pause":
		event.PausedBefore = a.isPaused()
		event.PausedAfter = a.setPaused(true)
		a.auditOperatorEvent(ctx, event)
		if event.PausedBefore {
			return "hedging already paused"
		}
		return "hedging paused"
	case "resume":
		event.PausedBefore = a.isPaused()
		event.PausedAfter = a.setPaused(false)
		a.auditOperatorEvent(ctx, event)
		if !event.PausedBefore {
			return "hedging already active"
		}
		return "hedging resumed"
	case "clearpending":
		pending, ok, err := state.LoadPendingOrder(ctx, a.store)
		if err != nil {
			return fmt.Sprintf("command failed: %v", err)
		}
		if !ok {
			return "no pending order"
		}
		if err := state.ClearPendingOrder(ctx, a.store); err != nil {
			return fmt.Sprintf("command failed: %v", err)
		}
		event.OrderID = pending.OrderID
		a.auditOperatorEvent(ctx, event)
		return fmt.Sprintf("pending order %s cleared", pending.OrderID)
	default:
		return operatorHelpText()
	}
}

func (a *App) operatorStatus(ctx context.Context) string {
	lines := []string{
		fmt.Sprintf("symbol: %s", a.cfg.Strategy.Symbol),
		fmt.Sprintf("paused: %t", a.isPaused()),
		fmt.Sprintf("next_check: %s", schedule.NextCheck(a.now(), a.cfg.Schedule.Minute()).Format(time.RFC3339)),
	}
	if snap, ok, err := state.LoadCycleSnapshot(ctx, a.store); err != nil {
		lines = append(lines, fmt.Sprintf("last_cycle: unavailable (%v)", err))
	} else if ok {
		lines = append(lines,
			fmt.Sprintf("last_cycle: %s at %s", snap.Outcome, snap.FinishedAt.Format(time.RFC3339)),
			fmt.Sprintf("delta: %s %s", snap.DeltaPre, snap.Coin),
			fmt.Sprintf("action: %s", snap.Action),
		)
		if snap.DeltaPost != "" {
			lines = append(lines, fmt.Sprintf("delta_after: %s", snap.DeltaPost))
		}
		if snap.Error != "" {
			lines = append(lines, fmt.Sprintf("error: %s", snap.Error))
		}
	} else {
		lines = append(lines, "last_cycle: none")
	}
	if pending, ok, err := state.LoadPendingOrder(ctx, a.store); err == nil && ok {
		line := fmt.Sprintf("pending_order: %s %s %s", pending.OrderID, pending.Side, pending.Qty)
		if ts, isTimestamped := a.store.(state.Timestamped); isTimestamped {
			if at, found, err := ts.UpdatedAt(ctx, state.PendingOrderKey); err == nil && found {
				line += fmt.Sprintf(" saved %s", at.UTC().Format(time.RFC3339))
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - last cycle and next check",
		"/pause - skip scheduled hedges",
		"/resume - resume scheduled hedges",
		"/clearpending - forget an unconfirmed hedge order",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.Atoi(string(raw))
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int) {
	if a.store == nil {
		return
	}
	_ = a.store.Set(ctx, operatorOffsetKey, []byte(strconv.Itoa(offset)))
}

func (a *App) auditOperatorEvent(ctx context.Context, event operatorAuditEvent) {
	if a.store == nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", event.Time.UnixNano(), event.UpdateID)
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return
	}
	_ = a.store.Set(ctx, key, payload)
}
