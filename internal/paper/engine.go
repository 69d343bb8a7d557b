package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/arena/internal/core"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	bps     = decimal.NewFromInt(10000)
)

type positionKey struct {
	ticker string
	side   core.Side
}

type position struct {
	ticker   string
	side     core.Side
	quantity int64
	cost     decimal.Decimal // dollars paid for the open quantity, fees included
	last     float64         // last fill price, used when no quote is available
	openedAt time.Time
}

func (p *position) averageCost() float64 {
	if p.quantity == 0 {
		return 0
	}
	return p.cost.Mul(hundred).Div(decimal.NewFromInt(p.quantity)).InexactFloat64()
}

// Engine is an isolated paper trading account. Orders fill immediately and
// in full; there is no order book matching.
type Engine struct {
	mu sync.RWMutex

	settings Settings
	starting decimal.Decimal
	cash     decimal.Decimal
	fees     decimal.Decimal
	realized decimal.Decimal

	positions map[positionKey]*position
	fills     []Fill
	returns   []float64 // per closing fill, realized / basis
	wins      int

	peakEquity  float64
	maxDrawdown float64

	quotes  QuoteSource
	handler EventHandler
	clock   func() time.Time
	seq     int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// New creates an account funded with settings.StartingBalance.
// quotes may be nil, in which case positions are marked at their last fill price.
func New(settings Settings, quotes QuoteSource, opts ...Option) *Engine {
	settings = settings.Merge(DefaultSettings())
	start := decimal.NewFromFloat(settings.StartingBalance)

	e := &Engine{
		settings:   settings,
		starting:   start,
		cash:       start,
		positions:  make(map[positionKey]*position),
		peakEquity: settings.StartingBalance,
		quotes:     quotes,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the account settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Subscribe registers the handler for account events, replacing any previous one.
func (e *Engine) Subscribe(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// SubmitOrder executes an order against the account. Sells larger than the
// open position are reduced to the held quantity.
func (e *Engine) SubmitOrder(ctx context.Context, req OrderRequest) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = OrderTypeMarket
	}
	if err := req.Validate(); err != nil {
		return nil, reject(err)
	}

	e.mu.Lock()
	var (
		fill   *Fill
		events []Event
		err    error
	)
	if req.Action == ActionBuy {
		fill, events, err = e.buyLocked(req)
	} else {
		fill, events, err = e.sellLocked(req)
	}
	if err == nil {
		e.sampleEquityLocked()
	}
	handler := e.handler
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}

	// Call handler outside lock to prevent deadlock
	if handler != nil {
		for _, ev := range events {
			handler(ev)
		}
	}
	return fill, nil
}

func (e *Engine) buyLocked(req OrderRequest) (*Fill, []Event, error) {
	price := e.fillPrice(req)
	qty := decimal.NewFromInt(req.Quantity)
	notional := qty.Mul(price).Div(hundred)
	fee := notional.Mul(decimal.NewFromFloat(e.settings.FeeRate))
	total := notional.Add(fee)

	if total.GreaterThan(e.cash) {
		return nil, nil, reject(fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, total.StringFixed(2), e.cash.StringFixed(2)))
	}

	now := e.clock()
	e.cash = e.cash.Sub(total)
	e.fees = e.fees.Add(fee)

	key := positionKey{req.Ticker, req.Side}
	pos, exists := e.positions[key]
	if !exists {
		pos = &position{ticker: req.Ticker, side: req.Side, openedAt: now}
		e.positions[key] = pos
	}
	pos.quantity += req.Quantity
	pos.cost = pos.cost.Add(total)
	pos.last = price.InexactFloat64()

	fill := e.recordLocked(req, price, fee, decimal.Zero, now)
	events := []Event{{Type: EventFill, Fill: fill, Position: e.snapshotLocked(pos), Time: now}}
	if !exists {
		events = append(events, Event{Type: EventPositionOpened, Fill: fill, Position: e.snapshotLocked(pos), Time: now})
	}
	return &fill, events, nil
}

func (e *Engine) sellLocked(req OrderRequest) (*Fill, []Event, error) {
	key := positionKey{req.Ticker, req.Side}
	pos, exists := e.positions[key]
	if !exists || pos.quantity == 0 {
		return nil, nil, reject(fmt.Errorf("%w: %s %s", ErrNoPosition, req.Ticker, req.Side))
	}
	if req.Quantity > pos.quantity {
		req.Quantity = pos.quantity
	}

	price := e.fillPrice(req)
	qty := decimal.NewFromInt(req.Quantity)
	proceeds := qty.Mul(price).Div(hundred)
	fee := proceeds.Mul(decimal.NewFromFloat(e.settings.FeeRate))
	net := proceeds.Sub(fee)

	basis := pos.cost.Mul(qty).Div(decimal.NewFromInt(pos.quantity))
	pl := net.Sub(basis)

	now := e.clock()
	e.cash = e.cash.Add(net)
	e.fees = e.fees.Add(fee)
	e.realized = e.realized.Add(pl)

	pos.quantity -= req.Quantity
	pos.cost = pos.cost.Sub(basis)
	pos.last = price.InexactFloat64()

	if basis.IsPositive() {
		e.returns = append(e.returns, pl.Div(basis).InexactFloat64())
	} else {
		e.returns = append(e.returns, 0)
	}
	if pl.IsPositive() {
		e.wins++
	}

	fill := e.recordLocked(req, price, fee, pl, now)
	snap := e.snapshotLocked(pos)
	events := []Event{{Type: EventFill, Fill: fill, Position: snap, Time: now}}

	if pos.quantity == 0 {
		delete(e.positions, key)
		events = append(events, Event{Type: EventPositionClosed, Fill: fill, Position: snap, Time: now})
	}
	return &fill, events, nil
}

// fillPrice applies adverse slippage to market orders and keeps the result tradable.
func (e *Engine) fillPrice(req OrderRequest) decimal.Decimal {
	price := decimal.NewFromFloat(req.Price)
	if req.Type == OrderTypeLimit || e.settings.SlippageBps == 0 {
		return price
	}

	slip := price.Mul(decimal.NewFromFloat(e.settings.SlippageBps)).Div(bps)
	if req.Action == ActionBuy {
		price = price.Add(slip)
	} else {
		price = price.Sub(slip)
	}
	return decimal.Max(decimal.NewFromInt(1), decimal.Min(price, decimal.NewFromInt(99)))
}

func (e *Engine) recordLocked(req OrderRequest, price, fee, pl decimal.Decimal, now time.Time) Fill {
	e.seq++
	fill := Fill{
		ID:         fmt.Sprintf("FILL-%d", e.seq),
		Ticker:     req.Ticker,
		Side:       req.Side,
		Action:     req.Action,
		Quantity:   req.Quantity,
		Price:      price.InexactFloat64(),
		Fee:        fee.InexactFloat64(),
		RealizedPL: pl.InexactFloat64(),
		Time:       now,
	}
	e.fills = append(e.fills, fill)
	return fill
}

// mark returns the current price for a position, falling back to its last fill.
func (e *Engine) mark(pos *position) float64 {
	if e.quotes != nil {
		if snap, ok := e.quotes.GetMarketData(pos.ticker); ok {
			if q, ok := snap.Book.Best(pos.side); ok {
				return q.Price
			}
		}
	}
	return pos.last
}

func (e *Engine) snapshotLocked(pos *position) core.Position {
	current := e.mark(pos)
	value := float64(pos.quantity) * current / 100
	return core.Position{
		Ticker:       pos.ticker,
		Side:         pos.side,
		Quantity:     pos.quantity,
		AverageCost:  pos.averageCost(),
		CurrentPrice: current,
		UnrealizedPL: value - pos.cost.InexactFloat64(),
		OpenedAt:     pos.openedAt,
	}
}

// Positions returns open positions marked to market, ordered by ticker then side.
func (e *Engine) Positions() []core.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]core.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, e.snapshotLocked(pos))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// Balance returns available cash.
func (e *Engine) Balance() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cash.InexactFloat64()
}

// Equity returns cash plus the marked value of open positions.
func (e *Engine) Equity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.equityLocked()
}

func (e *Engine) equityLocked() float64 {
	equity := e.cash
	for _, pos := range e.positions {
		value := decimal.NewFromInt(pos.quantity).Mul(decimal.NewFromFloat(e.mark(pos))).Div(hundred)
		equity = equity.Add(value)
	}
	return equity.InexactFloat64()
}

// sampleEquityLocked feeds the drawdown tracker.
func (e *Engine) sampleEquityLocked() {
	equity := e.equityLocked()
	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if e.peakEquity > 0 {
		dd := (e.peakEquity - equity) / e.peakEquity * 100
		if dd > e.maxDrawdown {
			e.maxDrawdown = dd
		}
	}
}

// Metrics returns performance statistics. Each call also samples equity, so
// drawdown resolution follows how often the account is polled.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sampleEquityLocked()

	closed := len(e.returns)
	var winRate float64
	if closed > 0 {
		winRate = float64(e.wins) / float64(closed) * 100
	}

	return Metrics{
		TotalTrades:        len(e.fills),
		ClosedTrades:       closed,
		WinningTrades:      e.wins,
		WinRate:            winRate,
		SharpeRatio:        sharpeRatio(e.returns),
		MaxDrawdownPercent: e.maxDrawdown,
		OpenPositions:      len(e.positions),
		RealizedPL:         e.realized.InexactFloat64(),
		TotalFees:          e.fees.InexactFloat64(),
	}
}

// Fills returns a copy of the fill history.
func (e *Engine) Fills() []Fill {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Fill, len(e.fills))
	copy(out, e.fills)
	return out
}

// StartingBalance returns the funded amount.
func (e *Engine) StartingBalance() float64 {
	return e.starting.InexactFloat64()
}
