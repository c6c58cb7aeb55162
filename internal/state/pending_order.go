package state

import (
	"context"
	"time"
)

const PendingOrderKey = "hedge:pending_order"

// PendingOrder is a hedge order whose fill was never confirmed.
type PendingOrder struct {
	OrderID  string    `msgpack:"order_id"`
	Symbol   string    `msgpack:"symbol"`
	Side     string    `msgpack:"side"`
	Qty      string    `msgpack:"qty"`
	PlacedAt time.Time `msgpack:"placed_at"`
}

func LoadPendingOrder(ctx context.Context, store Store) (PendingOrder, bool, error) {
	var order PendingOrder
	ok, err := load(ctx, store, PendingOrderKey, &order)
	if err != nil || !ok || order.OrderID == "" {
		return PendingOrder{}, false, err
	}
	return order, true, nil
}

func SavePendingOrder(ctx context.Context, store Store, order PendingOrder) error {
	return save(ctx, store, PendingOrderKey, order)
}

func ClearPendingOrder(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return store.Delete(ctx, PendingOrderKey)
}
