package hedge

import (
	"errors"
	"testing"

	"delta-hedge-bot/internal/bybit"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDecideScenarios(t *testing.T) {
	cases := []struct {
		delta string
		kind  Kind
		qty   string
	}{
		{delta: "0.0041234", kind: KindSell, qty: "0.004"},
		{delta: "-1.25", kind: KindBuy, qty: "1.250"},
		{delta: "0.0001", kind: KindNone, qty: "0"},
		{delta: "-0.0004999", kind: KindNone, qty: "0"},
		{delta: "0", kind: KindNone, qty: "0"},
		{delta: "0.0005", kind: KindSell, qty: "0.001"},
		{delta: "-0.0005", kind: KindBuy, qty: "0.001"},
		{delta: "12.34567", kind: KindSell, qty: "12.346"},
	}
	for _, tc := range cases {
		got := Decide(d(tc.delta), DefaultPlaces)
		if got.Kind != tc.kind {
			t.Fatalf("delta %s: expected %s, got %s", tc.delta, tc.kind, got)
		}
		if !got.Qty.Equal(d(tc.qty)) {
			t.Fatalf("delta %s: expected qty %s, got %s", tc.delta, tc.qty, got.Qty)
		}
		if got.Qty.IsNegative() {
			t.Fatalf("delta %s: qty must not be negative, got %s", tc.delta, got.Qty)
		}
	}
}

func TestDecideDirectionFollowsRoundedSign(t *testing.T) {
	deltas := []string{"-3.1415926", "-0.0015", "-0.001", "0.001", "0.0015", "2.7182818", "100", "-100"}
	for _, raw := range deltas {
		rounded := Round(d(raw), DefaultPlaces)
		got := Decide(d(raw), DefaultPlaces)
		switch rounded.Sign() {
		case -1:
			if got.Kind != KindBuy || !got.Qty.Equal(rounded.Neg()) {
				t.Fatalf("delta %s: expected Buy(%s), got %s", raw, rounded.Neg(), got)
			}
		case 1:
			if got.Kind != KindSell || !got.Qty.Equal(rounded) {
				t.Fatalf("delta %s: expected Sell(%s), got %s", raw, rounded, got)
			}
		default:
			if !got.IsNone() {
				t.Fatalf("delta %s: expected None, got %s", raw, got)
			}
		}
		if !got.Signed().Equal(rounded.Neg()) {
			t.Fatalf("delta %s: signed hedge %s != %s", raw, got.Signed(), rounded.Neg())
		}
	}
}

func TestRoundIdempotent(t *testing.T) {
	for _, raw := range []string{"0.0041234", "-1.2505", "7.9999", "-0.00049", "123456.123456"} {
		once := Round(d(raw), DefaultPlaces)
		twice := Round(once, DefaultPlaces)
		if !once.Equal(twice) {
			t.Fatalf("round not idempotent for %s: %s vs %s", raw, once, twice)
		}
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	if got := Round(d("1.0005"), 3); !got.Equal(d("1.001")) {
		t.Fatalf("expected 1.001, got %s", got)
	}
	if got := Round(d("-1.0005"), 3); !got.Equal(d("-1.001")) {
		t.Fatalf("expected -1.001, got %s", got)
	}
}

func TestActionSideAndString(t *testing.T) {
	side, ok := Sell(d("-0.004")).Side()
	if !ok || side != bybit.SideSell {
		t.Fatalf("expected sell side, got %q %v", side, ok)
	}
	if _, ok := None().Side(); ok {
		t.Fatalf("expected no side for None")
	}
	if got := Buy(d("1.250")).String(); got != "Buy(1.25)" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := None().String(); got != "None" {
		t.Fatalf("unexpected string %q", got)
	}
}

func TestSelectAsset(t *testing.T) {
	assets := []bybit.AssetInfo{
		{BaseCoin: "BTC", TotalDelta: d("0.5")},
		{BaseCoin: "ETH", TotalDelta: d("-2")},
	}
	first, err := SelectAsset(assets, "")
	if err != nil || first.BaseCoin != "BTC" {
		t.Fatalf("expected first asset, got %+v (%v)", first, err)
	}
	eth, err := SelectAsset(assets, "eth")
	if err != nil || !eth.TotalDelta.Equal(d("-2")) {
		t.Fatalf("expected ETH asset, got %+v (%v)", eth, err)
	}
	if _, err := SelectAsset(assets, "SOL"); !errors.Is(err, ErrNoAsset) {
		t.Fatalf("expected ErrNoAsset for missing coin, got %v", err)
	}
	if _, err := SelectAsset(nil, ""); !errors.Is(err, ErrNoAsset) {
		t.Fatalf("expected ErrNoAsset for empty list, got %v", err)
	}
}
