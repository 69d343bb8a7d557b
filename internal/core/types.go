package core

import (
	"fmt"
	"time"
)

// Side represents one side of a binary contract
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other side of the contract
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// IsValid reports whether s is a known side
func (s Side) IsValid() bool {
	return s == SideYes || s == SideNo
}

// SignalType represents what a strategy wants to do
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// Signal represents a trading signal from a strategy.
// Strength and Confidence are on a 0-100 scale.
type Signal struct {
	Ticker      string
	Side        Side
	Type        SignalType
	Strength    float64
	Confidence  float64
	Reason      string
	Strategy    string
	Metadata    map[string]any
	GeneratedAt time.Time
}

// Quote is one price level of an order book. Price is in cents (1-99).
type Quote struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// IsValid checks the price is a tradable contract price
func (q Quote) IsValid() bool {
	return q.Price >= 1 && q.Price <= 99 && q.Quantity >= 0
}

// OrderBook holds ask levels for both sides, best (cheapest) level first.
type OrderBook struct {
	Yes []Quote `json:"yes"`
	No  []Quote `json:"no"`
}

// Best returns the best quote for the given side.
func (b OrderBook) Best(side Side) (Quote, bool) {
	levels := b.Yes
	if side == SideNo {
		levels = b.No
	}
	if len(levels) == 0 {
		return Quote{}, false
	}
	return levels[0], true
}

// MarketSnapshot is a read-only view of one market at a point in time.
type MarketSnapshot struct {
	Ticker      string    `json:"ticker"`
	Book        OrderBook `json:"book"`
	LastPrice   float64   `json:"last_price"`
	History     []float64 `json:"history,omitempty"` // oldest first
	Volume      int64     `json:"volume"`            // recent window
	PriceChange float64   `json:"price_change"`      // recent window
	UpdatedAt   time.Time `json:"updated_at"`
}

// Position represents an open holding on one side of a market
type Position struct {
	Ticker       string    `json:"ticker"`
	Side         Side      `json:"side"`
	Quantity     int64     `json:"quantity"`
	AverageCost  float64   `json:"average_cost"`
	CurrentPrice float64   `json:"current_price"`
	UnrealizedPL float64   `json:"unrealized_pl"`
	OpenedAt     time.Time `json:"opened_at"`
}

// MarketValue returns the position value in dollars at the current price.
func (p Position) MarketValue() float64 {
	return float64(p.Quantity) * p.CurrentPrice / 100
}

// ParamRange bounds one tunable strategy parameter.
type ParamRange struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// Validate checks the range is well formed
func (r ParamRange) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("min %v greater than max %v", r.Min, r.Max)
	}
	return nil
}

// Contains reports whether v lies within the range.
func (r ParamRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}
