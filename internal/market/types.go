// Package market aggregates live order book and trade data for the markets a
// competition trades, and provides the feeds that populate it.
package market

import (
	"context"
	"time"

	"github.com/newthinker/arena/internal/core"
)

// StreamingClient is a market data feed with an explicit connection lifecycle.
// Connect's context bounds connection setup only; the feed keeps running until
// Disconnect. Disconnect is safe to call more than once.
type StreamingClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// Subscriber forwards ticker subscriptions to a live feed.
type Subscriber interface {
	SubscribeTickers(ctx context.Context, tickers []string) error
}

// BookUpdate replaces the order book of one market. Levels are best first.
type BookUpdate struct {
	Ticker string       `json:"ticker"`
	Yes    []core.Quote `json:"yes"`
	No     []core.Quote `json:"no"`
	Time   time.Time    `json:"ts"`
}

// TradeUpdate reports one executed trade.
type TradeUpdate struct {
	Ticker   string    `json:"ticker"`
	Side     core.Side `json:"side"`
	Price    float64   `json:"price"`
	Quantity int64     `json:"quantity"`
	Time     time.Time `json:"ts"`
}

// YesPrice normalises the trade price to the yes side.
func (t TradeUpdate) YesPrice() float64 {
	if t.Side == core.SideNo {
		return 100 - t.Price
	}
	return t.Price
}
