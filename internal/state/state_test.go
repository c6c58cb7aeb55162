package state

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func TestPendingOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	if _, ok, err := LoadPendingOrder(ctx, store); err != nil || ok {
		t.Fatalf("expected no pending order, ok=%v err=%v", ok, err)
	}
	placed := time.Date(2022, 7, 21, 14, 10, 3, 0, time.UTC)
	order := PendingOrder{OrderID: "a1b2", Symbol: "BTCPERP", Side: "Sell", Qty: "0.004", PlacedAt: placed}
	if err := SavePendingOrder(ctx, store, order); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := LoadPendingOrder(ctx, store)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.OrderID != "a1b2" || got.Qty != "0.004" || !got.PlacedAt.Equal(placed) {
		t.Fatalf("unexpected pending order: %+v", got)
	}
	if err := ClearPendingOrder(ctx, store); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := LoadPendingOrder(ctx, store); ok {
		t.Fatalf("expected pending order to be cleared")
	}
}

func TestCycleSnapshotOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	first := CycleSnapshot{Coin: "BTC", DeltaPre: "0.0041234", Action: "Sell(0.004)", Outcome: OutcomeHedged}
	second := CycleSnapshot{Coin: "BTC", DeltaPre: "0.0001", Action: "None", Outcome: OutcomeNoHedge}
	if err := SaveCycleSnapshot(ctx, store, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := SaveCycleSnapshot(ctx, store, second); err != nil {
		t.Fatalf("save second: %v", err)
	}
	got, ok, err := LoadCycleSnapshot(ctx, store)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Outcome != OutcomeNoHedge || got.DeltaPre != "0.0001" {
		t.Fatalf("expected latest snapshot, got %+v", got)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	ctx := context.Background()
	if err := SaveCycleSnapshot(ctx, nil, CycleSnapshot{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, err := LoadPendingOrder(ctx, nil); ok || err != nil {
		t.Fatalf("expected empty result, ok=%v err=%v", ok, err)
	}
	if err := ClearPendingOrder(ctx, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
}

func TestCorruptValueIsError(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	_ = store.Set(ctx, CycleSnapshotKey, []byte{0xc1})
	if _, _, err := LoadCycleSnapshot(ctx, store); err == nil {
		t.Fatalf("expected decode error")
	}
}
