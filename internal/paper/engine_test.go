package paper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/paper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuotes map[string]core.MarketSnapshot

func (f fakeQuotes) GetMarketData(ticker string) (core.MarketSnapshot, bool) {
	s, ok := f[ticker]
	return s, ok
}

func quotesAt(ticker string, yes, no float64) fakeQuotes {
	return fakeQuotes{ticker: {
		Ticker: ticker,
		Book: core.OrderBook{
			Yes: []core.Quote{{Price: yes, Quantity: 100}},
			No:  []core.Quote{{Price: no, Quantity: 100}},
		},
	}}
}

func buy(ticker string, side core.Side, qty int64, price float64) paper.OrderRequest {
	return paper.OrderRequest{Ticker: ticker, Side: side, Action: paper.ActionBuy, Quantity: qty, Price: price}
}

func sell(ticker string, side core.Side, qty int64, price float64) paper.OrderRequest {
	return paper.OrderRequest{Ticker: ticker, Side: side, Action: paper.ActionSell, Quantity: qty, Price: price}
}

func TestOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     paper.OrderRequest
		wantErr error
	}{
		{"valid", buy("T", core.SideYes, 1, 50), nil},
		{"empty ticker", buy("", core.SideYes, 1, 50), paper.ErrInvalidTicker},
		{"bad side", buy("T", "maybe", 1, 50), paper.ErrInvalidSide},
		{"bad action", paper.OrderRequest{Ticker: "T", Side: core.SideYes, Action: "hold", Quantity: 1, Price: 50}, paper.ErrInvalidAction},
		{"zero quantity", buy("T", core.SideYes, 0, 50), paper.ErrInvalidQuantity},
		{"price too low", buy("T", core.SideYes, 1, 0), paper.ErrInvalidPrice},
		{"price too high", buy("T", core.SideYes, 1, 100), paper.ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEngine_BuyAndMark(t *testing.T) {
	quotes := quotesAt("RAIN", 60, 38)
	e := paper.New(paper.Settings{StartingBalance: 100}, quotes)

	fill, err := e.SubmitOrder(context.Background(), buy("RAIN", core.SideYes, 10, 50))
	require.NoError(t, err)
	assert.Equal(t, int64(10), fill.Quantity)
	assert.Equal(t, 50.0, fill.Price)

	assert.InDelta(t, 95.0, e.Balance(), 1e-9)
	// 10 contracts marked at 60 cents
	assert.InDelta(t, 101.0, e.Equity(), 1e-9)

	positions := e.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, core.SideYes, positions[0].Side)
	assert.InDelta(t, 50.0, positions[0].AverageCost, 1e-9)
	assert.InDelta(t, 60.0, positions[0].CurrentPrice, 1e-9)
	assert.InDelta(t, 1.0, positions[0].UnrealizedPL, 1e-9)
}

func TestEngine_InsufficientBalance(t *testing.T) {
	e := paper.New(paper.Settings{StartingBalance: 1}, nil)

	_, err := e.SubmitOrder(context.Background(), buy("RAIN", core.SideYes, 10, 50))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrOrderRejected)
	assert.ErrorIs(t, err, paper.ErrInsufficientBalance)
	assert.Equal(t, 1.0, e.Balance())
	assert.Empty(t, e.Fills())
}

func TestEngine_SellWithoutPosition(t *testing.T) {
	e := paper.New(paper.DefaultSettings(), nil)

	_, err := e.SubmitOrder(context.Background(), sell("RAIN", core.SideNo, 1, 50))
	assert.ErrorIs(t, err, core.ErrOrderRejected)
	assert.ErrorIs(t, err, paper.ErrNoPosition)
}

func TestEngine_InvalidOrderIsRejected(t *testing.T) {
	e := paper.New(paper.DefaultSettings(), nil)

	_, err := e.SubmitOrder(context.Background(), buy("RAIN", core.SideYes, 1, 120))
	assert.ErrorIs(t, err, core.ErrOrderRejected)
	assert.ErrorIs(t, err, paper.ErrInvalidPrice)
}

func TestEngine_RoundTripRealizesPL(t *testing.T) {
	e := paper.New(paper.Settings{StartingBalance: 100}, nil)
	ctx := context.Background()

	_, err := e.SubmitOrder(ctx, buy("RAIN", core.SideYes, 10, 40))
	require.NoError(t, err)

	// oversized sell is reduced to the held quantity
	fill, err := e.SubmitOrder(ctx, sell("RAIN", core.SideYes, 25, 60))
	require.NoError(t, err)
	assert.Equal(t, int64(10), fill.Quantity)
	assert.InDelta(t, 2.0, fill.RealizedPL, 1e-9)

	assert.InDelta(t, 102.0, e.Balance(), 1e-9)
	assert.Empty(t, e.Positions())

	m := e.Metrics()
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.ClosedTrades)
	assert.Equal(t, 100.0, m.WinRate)
	assert.Equal(t, 0, m.OpenPositions)
	assert.InDelta(t, 2.0, m.RealizedPL, 1e-9)
}

func TestEngine_FeesAndSlippage(t *testing.T) {
	e := paper.New(paper.Settings{StartingBalance: 100, FeeRate: 0.01, SlippageBps: 200}, nil)

	fill, err := e.SubmitOrder(context.Background(), buy("RAIN", core.SideYes, 10, 50))
	require.NoError(t, err)

	// 50 cents + 2% slippage = 51, notional 5.10, fee 0.051
	assert.InDelta(t, 51.0, fill.Price, 1e-9)
	assert.InDelta(t, 0.051, fill.Fee, 1e-9)
	assert.InDelta(t, 100-5.151, e.Balance(), 1e-9)

	// limit orders fill at the requested price
	limit := buy("RAIN", core.SideNo, 1, 30)
	limit.Type = paper.OrderTypeLimit
	fill, err = e.SubmitOrder(context.Background(), limit)
	require.NoError(t, err)
	assert.Equal(t, 30.0, fill.Price)
}

func TestEngine_Events(t *testing.T) {
	e := paper.New(paper.DefaultSettings(), nil)
	ctx := context.Background()

	var got []paper.EventType
	e.Subscribe(func(ev paper.Event) {
		got = append(got, ev.Type)
		// handlers run outside the lock and may query the account
		_ = e.Balance()
	})

	_, err := e.SubmitOrder(ctx, buy("RAIN", core.SideYes, 2, 50))
	require.NoError(t, err)
	_, err = e.SubmitOrder(ctx, buy("RAIN", core.SideYes, 2, 50))
	require.NoError(t, err)
	_, err = e.SubmitOrder(ctx, sell("RAIN", core.SideYes, 1, 50))
	require.NoError(t, err)
	_, err = e.SubmitOrder(ctx, sell("RAIN", core.SideYes, 3, 50))
	require.NoError(t, err)

	assert.Equal(t, []paper.EventType{
		paper.EventFill, paper.EventPositionOpened,
		paper.EventFill,
		paper.EventFill,
		paper.EventFill, paper.EventPositionClosed,
	}, got)
}

func TestEngine_DrawdownAndSharpe(t *testing.T) {
	quotes := quotesAt("RAIN", 50, 50)
	e := paper.New(paper.Settings{StartingBalance: 100}, quotes)
	ctx := context.Background()

	_, err := e.SubmitOrder(ctx, buy("RAIN", core.SideYes, 100, 50))
	require.NoError(t, err)

	// price collapses: equity 50 + 100*0.25 = 75
	quotes["RAIN"] = quotesAt("RAIN", 25, 75)["RAIN"]
	m := e.Metrics()
	assert.InDelta(t, 25.0, m.MaxDrawdownPercent, 1e-9)

	// recovering does not erase the recorded drawdown
	quotes["RAIN"] = quotesAt("RAIN", 80, 20)["RAIN"]
	m = e.Metrics()
	assert.InDelta(t, 25.0, m.MaxDrawdownPercent, 1e-9)

	// two closes with different returns give a finite, positive sharpe
	_, err = e.SubmitOrder(ctx, sell("RAIN", core.SideYes, 50, 60))
	require.NoError(t, err)
	_, err = e.SubmitOrder(ctx, sell("RAIN", core.SideYes, 50, 70))
	require.NoError(t, err)
	m = e.Metrics()
	assert.Greater(t, m.SharpeRatio, 0.0)
	assert.Equal(t, 100.0, m.WinRate)
}

func TestEngine_CancelledContext(t *testing.T) {
	e := paper.New(paper.DefaultSettings(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.SubmitOrder(ctx, buy("RAIN", core.SideYes, 1, 50))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEngine_Clock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := paper.New(paper.DefaultSettings(), nil, paper.WithClock(func() time.Time { return at }))

	fill, err := e.SubmitOrder(context.Background(), buy("RAIN", core.SideYes, 1, 50))
	require.NoError(t, err)
	assert.Equal(t, at, fill.Time)
	assert.Equal(t, at, e.Positions()[0].OpenedAt)
}

func TestSettings_Merge(t *testing.T) {
	s := paper.Settings{MaxTradeSize: 25}.Merge(paper.DefaultSettings())
	assert.Equal(t, int64(25), s.MaxTradeSize)
	assert.Equal(t, 10000.0, s.StartingBalance)
}
