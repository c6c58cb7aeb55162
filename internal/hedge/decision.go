package hedge

import (
	"errors"
	"fmt"
	"strings"

	"delta-hedge-bot/internal/bybit"

	"github.com/shopspring/decimal"
)

const DefaultPlaces int32 = 3

// ErrNoAsset is returned when the account reports no asset to hedge.
var ErrNoAsset = errors.New("no asset info to hedge")

type Kind string

const (
	KindNone Kind = "None"
	KindBuy  Kind = "Buy"
	KindSell Kind = "Sell"
)

// Action is the trade that offsets the observed delta. Qty is always positive
// for Buy and Sell and zero for None.
type Action struct {
	Kind Kind
	Qty  decimal.Decimal
}

func None() Action {
	return Action{Kind: KindNone}
}

func Buy(qty decimal.Decimal) Action {
	return Action{Kind: KindBuy, Qty: qty.Abs()}
}

func Sell(qty decimal.Decimal) Action {
	return Action{Kind: KindSell, Qty: qty.Abs()}
}

func (a Action) IsNone() bool {
	return a.Kind == KindNone || a.Kind == ""
}

func (a Action) Side() (bybit.Side, bool) {
	switch a.Kind {
	case KindBuy:
		return bybit.SideBuy, true
	case KindSell:
		return bybit.SideSell, true
	}
	return "", false
}

// Signed returns the hedge as a signed quantity: positive buys, negative sells.
func (a Action) Signed() decimal.Decimal {
	if a.Kind == KindSell {
		return a.Qty.Neg()
	}
	return a.Qty
}

func (a Action) String() string {
	if a.IsNone() {
		return string(KindNone)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.Qty.String())
}

// Round rounds to places decimals, ties away from zero.
func Round(delta decimal.Decimal, places int32) decimal.Decimal {
	return delta.Round(places)
}

// Decide maps the observed delta to the offsetting trade:
// hedging = -round(delta, places).
func Decide(delta decimal.Decimal, places int32) Action {
	hedging := Round(delta, places).Neg()
	switch hedging.Sign() {
	case 1:
		return Buy(hedging)
	case -1:
		return Sell(hedging)
	default:
		return None()
	}
}

// SelectAsset picks the entry whose delta is hedged. An empty coin keeps the
// first entry; the exchange orders entries, so this only suits single-coin
// accounts.
func SelectAsset(assets []bybit.AssetInfo, coin string) (bybit.AssetInfo, error) {
	if len(assets) == 0 {
		return bybit.AssetInfo{}, ErrNoAsset
	}
	coin = strings.TrimSpace(coin)
	if coin == "" {
		return assets[0], nil
	}
	for _, asset := range assets {
		if strings.EqualFold(asset.BaseCoin, coin) {
			return asset, nil
		}
	}
	return bybit.AssetInfo{}, fmt.Errorf("coin %s: %w", coin, ErrNoAsset)
}
