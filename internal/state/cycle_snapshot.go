package state

import (
	"context"
	"time"
)

const CycleSnapshotKey = "hedge:last_cycle"

// Cycle outcomes.
const (
	OutcomeHedged  = "hedged"
	OutcomeNoHedge = "no_hedge"
	OutcomeBlocked = "blocked"
	OutcomeTimeout = "fill_timeout"
	OutcomeFailed  = "failed"
)

// CycleSnapshot records how the last cycle ended. Decimal values are kept as
// their exchange string form.
type CycleSnapshot struct {
	Coin       string    `msgpack:"coin"`
	Symbol     string    `msgpack:"symbol"`
	DeltaPre   string    `msgpack:"delta_pre"`
	DeltaPost  string    `msgpack:"delta_post,omitempty"`
	Action     string    `msgpack:"action"`
	OrderID    string    `msgpack:"order_id,omitempty"`
	Outcome    string    `msgpack:"outcome"`
	Error      string    `msgpack:"error,omitempty"`
	StartedAt  time.Time `msgpack:"started_at"`
	FinishedAt time.Time `msgpack:"finished_at"`
}

func LoadCycleSnapshot(ctx context.Context, store Store) (CycleSnapshot, bool, error) {
	var snapshot CycleSnapshot
	ok, err := load(ctx, store, CycleSnapshotKey, &snapshot)
	if err != nil || !ok {
		return CycleSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveCycleSnapshot(ctx context.Context, store Store, snapshot CycleSnapshot) error {
	return save(ctx, store, CycleSnapshotKey, snapshot)
}
