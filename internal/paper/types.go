// Package paper provides a simulated trading account for binary contracts.
package paper

import (
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/arena/internal/core"
)

// Rejection reasons. Every rejection returned by SubmitOrder also matches core.ErrOrderRejected.
var (
	// ErrInvalidTicker indicates an empty ticker.
	ErrInvalidTicker = errors.New("paper: invalid ticker")
	// ErrInvalidSide indicates a side other than yes or no.
	ErrInvalidSide = errors.New("paper: invalid side")
	// ErrInvalidAction indicates an action other than buy or sell.
	ErrInvalidAction = errors.New("paper: invalid action")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("paper: invalid quantity")
	// ErrInvalidPrice indicates a price outside 1-99 cents.
	ErrInvalidPrice = errors.New("paper: price must be between 1 and 99 cents")
	// ErrInsufficientBalance indicates the cash balance cannot cover the order.
	ErrInsufficientBalance = errors.New("paper: insufficient balance")
	// ErrNoPosition indicates a sell without a matching open position.
	ErrNoPosition = errors.New("paper: no position to sell")
)

// Action is the direction of an order.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// OrderType represents the type of order execution.
type OrderType string

const (
	// OrderTypeMarket fills at the given price adjusted for slippage.
	OrderTypeMarket OrderType = "market"
	// OrderTypeLimit fills at exactly the given price.
	OrderTypeLimit OrderType = "limit"
)

// OrderRequest represents a request to trade contracts. Price is in cents.
type OrderRequest struct {
	Ticker   string    `json:"ticker"`
	Side     core.Side `json:"side"`
	Action   Action    `json:"action"`
	Type     OrderType `json:"type"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"`
}

// Validate checks if the order request is valid.
func (r OrderRequest) Validate() error {
	if r.Ticker == "" {
		return ErrInvalidTicker
	}
	if !r.Side.IsValid() {
		return ErrInvalidSide
	}
	if r.Action != ActionBuy && r.Action != ActionSell {
		return ErrInvalidAction
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.Price < 1 || r.Price > 99 {
		return ErrInvalidPrice
	}
	return nil
}

func reject(reason error) error {
	return core.WrapError(core.ErrOrderRejected, reason)
}

// Fill records an executed order.
type Fill struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	Side       core.Side `json:"side"`
	Action     Action    `json:"action"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	RealizedPL float64   `json:"realized_pl"`
	Time       time.Time `json:"time"`
}

func (f Fill) String() string {
	return fmt.Sprintf("%s %d %s %s @ %.2f", f.Action, f.Quantity, f.Ticker, f.Side, f.Price)
}

// EventType names what happened in an account.
type EventType string

const (
	EventFill           EventType = "fill"
	EventPositionOpened EventType = "position_opened"
	EventPositionClosed EventType = "position_closed"
)

// Event is published to the account subscriber after each state change.
type Event struct {
	Type     EventType     `json:"type"`
	Fill     Fill          `json:"fill"`
	Position core.Position `json:"position"`
	Time     time.Time     `json:"time"`
}

// EventHandler receives account events. It is called synchronously and
// outside the account lock.
type EventHandler func(Event)

// Metrics summarises account performance.
type Metrics struct {
	TotalTrades        int     `json:"total_trades"`
	ClosedTrades       int     `json:"closed_trades"`
	WinningTrades      int     `json:"winning_trades"`
	WinRate            float64 `json:"win_rate"` // percent of closing fills with positive pnl
	SharpeRatio        float64 `json:"sharpe_ratio"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	OpenPositions      int     `json:"open_positions"`
	RealizedPL         float64 `json:"realized_pl"`
	TotalFees          float64 `json:"total_fees"`
}

// Settings configures an account.
type Settings struct {
	StartingBalance float64 `json:"starting_balance" mapstructure:"starting_balance"`
	FeeRate         float64 `json:"fee_rate" mapstructure:"fee_rate"`         // fraction of notional
	SlippageBps     float64 `json:"slippage_bps" mapstructure:"slippage_bps"` // adverse, market orders only
	MaxTradeSize    int64   `json:"max_trade_size" mapstructure:"max_trade_size"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		StartingBalance: 10000,
		MaxTradeSize:    10,
	}
}

// Merge returns s with every zero field taken from base.
func (s Settings) Merge(base Settings) Settings {
	if s.StartingBalance == 0 {
		s.StartingBalance = base.StartingBalance
	}
	if s.FeeRate == 0 {
		s.FeeRate = base.FeeRate
	}
	if s.SlippageBps == 0 {
		s.SlippageBps = base.SlippageBps
	}
	if s.MaxTradeSize == 0 {
		s.MaxTradeSize = base.MaxTradeSize
	}
	return s
}

// QuoteSource supplies current prices for marking positions.
type QuoteSource interface {
	GetMarketData(ticker string) (core.MarketSnapshot, bool)
}
