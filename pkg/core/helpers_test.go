package core

import (
	"context"
	"testing"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) fpdecimal.Decimal {
	d, err := fpdecimal.FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func placeLimit(t testing.TB, ob *OrderBook, id OrderID, trader TraderID, side Side, price string, qty uint64) {
	t.Helper()
	order, err := NewLimitOrder(id, trader, side, dec(price), qty, ob.CurrentTime())
	require.NoError(t, err)
	require.NoError(t, ob.PlaceLimitOrder(context.Background(), order))
}

func placeMarket(t testing.TB, ob *OrderBook, id OrderID, trader TraderID, side Side, qty uint64) {
	t.Helper()
	order, err := NewMarketOrder(id, trader, side, qty, ob.CurrentTime())
	require.NoError(t, err)
	require.NoError(t, ob.PlaceMarketOrder(context.Background(), order))
}

func lastLog(t testing.TB, ob *OrderBook) OrderLog {
	t.Helper()
	logs := ob.OrderLogs()
	require.NotEmpty(t, logs)
	return logs[len(logs)-1]
}
