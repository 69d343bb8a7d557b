package market

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/arena/internal/core"
	"go.uber.org/zap"
)

// AggregatorConfig configures rolling windows.
type AggregatorConfig struct {
	HistorySize int           `mapstructure:"history_size"` // price points kept per market
	Window      time.Duration `mapstructure:"window"`       // volume and price change lookback
}

// DefaultAggregatorConfig returns the default windows.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		HistorySize: 200,
		Window:      5 * time.Minute,
	}
}

type tradePoint struct {
	at       time.Time
	price    float64
	quantity int64
}

type marketState struct {
	book      core.OrderBook
	last      float64
	history   []float64
	trades    []tradePoint
	updatedAt time.Time
	hasData   bool
}

// Aggregator holds the latest view of every subscribed market. It is written
// by a feed and read concurrently by a competition and its paper accounts.
type Aggregator struct {
	mu      sync.RWMutex
	cfg     AggregatorConfig
	markets map[string]*marketState
	order   []string
	feed    Subscriber
	clock   func() time.Time
	logger  *zap.Logger
}

// NewAggregator creates an empty aggregator
func NewAggregator(cfg AggregatorConfig, logger ...*zap.Logger) *Aggregator {
	def := DefaultAggregatorConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}

	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}

	return &Aggregator{
		cfg:     cfg,
		markets: make(map[string]*marketState),
		clock:   time.Now,
		logger:  l,
	}
}

// SetClock overrides the time source used for window pruning.
func (a *Aggregator) SetClock(clock func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = clock
}

// Attach sets the feed that receives subscription requests.
func (a *Aggregator) Attach(feed Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feed = feed
}

// Subscribe registers tickers and forwards new ones to the attached feed.
func (a *Aggregator) Subscribe(ctx context.Context, tickers []string) error {
	a.mu.Lock()
	var added []string
	for _, t := range tickers {
		if _, ok := a.markets[t]; ok || t == "" {
			continue
		}
		a.markets[t] = &marketState{}
		a.order = append(a.order, t)
		added = append(added, t)
	}
	feed := a.feed
	a.mu.Unlock()

	if len(added) == 0 {
		return nil
	}
	a.logger.Debug("markets subscribed", zap.Strings("tickers", added))

	if feed != nil {
		return feed.SubscribeTickers(ctx, added)
	}
	return nil
}

// Subscribed returns tickers in subscription order.
func (a *Aggregator) Subscribed() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// ApplyBook replaces the book of a subscribed market. Unknown tickers are ignored.
func (a *Aggregator) ApplyBook(u BookUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.markets[u.Ticker]
	if !ok {
		return
	}

	m.book = core.OrderBook{
		Yes: append([]core.Quote(nil), u.Yes...),
		No:  append([]core.Quote(nil), u.No...),
	}
	if !m.hasData {
		if q, ok := m.book.Best(core.SideYes); ok {
			m.last = q.Price
		}
	}
	m.hasData = true
	m.updatedAt = a.stamp(u.Time)
}

// ApplyTrade records a trade on a subscribed market. Unknown tickers are ignored.
func (a *Aggregator) ApplyTrade(u TradeUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.markets[u.Ticker]
	if !ok {
		return
	}

	at := a.stamp(u.Time)
	price := u.YesPrice()

	m.last = price
	m.history = append(m.history, price)
	if len(m.history) > a.cfg.HistorySize {
		m.history = m.history[len(m.history)-a.cfg.HistorySize:]
	}
	m.trades = append(m.trades, tradePoint{at: at, price: price, quantity: u.Quantity})
	m.trades = a.prune(m.trades, at)
	m.hasData = true
	m.updatedAt = at
}

func (a *Aggregator) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return a.clock()
	}
	return t
}

func (a *Aggregator) prune(trades []tradePoint, now time.Time) []tradePoint {
	cutoff := now.Add(-a.cfg.Window)
	i := sort.Search(len(trades), func(i int) bool { return !trades[i].at.Before(cutoff) })
	if i == 0 {
		return trades
	}
	return append(trades[:0], trades[i:]...)
}

// GetMarketData returns a snapshot of a market that has received data.
func (a *Aggregator) GetMarketData(ticker string) (core.MarketSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m, ok := a.markets[ticker]
	if !ok || !m.hasData {
		return core.MarketSnapshot{}, false
	}

	cutoff := a.clock().Add(-a.cfg.Window)
	var volume int64
	var first float64
	seen := false
	for _, t := range m.trades {
		if t.at.Before(cutoff) {
			continue
		}
		if !seen {
			first = t.price
			seen = true
		}
		volume += t.quantity
	}

	var change float64
	if seen {
		change = m.last - first
	}

	return core.MarketSnapshot{
		Ticker: ticker,
		Book: core.OrderBook{
			Yes: append([]core.Quote(nil), m.book.Yes...),
			No:  append([]core.Quote(nil), m.book.No...),
		},
		LastPrice:   m.last,
		History:     append([]float64(nil), m.history...),
		Volume:      volume,
		PriceChange: change,
		UpdatedAt:   m.updatedAt,
	}, true
}
