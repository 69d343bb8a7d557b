// Package momentum implements a moving average crossover strategy on the
// yes-price history of a market.
package momentum

import (
	"fmt"
	"math"

	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/indicator"
	"github.com/newthinker/arena/internal/strategy"
)

// Name is the registry name of the strategy
const Name = "momentum"

// Momentum buys the side the trend favours when the fast MA crosses the slow MA
type Momentum struct {
	fastPeriod  int
	slowPeriod  int
	sensitivity float64
}

// New creates a new momentum strategy
func New(fastPeriod, slowPeriod int) *Momentum {
	return &Momentum{
		fastPeriod:  fastPeriod,
		slowPeriod:  slowPeriod,
		sensitivity: 10,
	}
}

func (m *Momentum) Name() string {
	return Name
}

func (m *Momentum) Description() string {
	return fmt.Sprintf("Momentum MA crossover (%d/%d)", m.fastPeriod, m.slowPeriod)
}

func (m *Momentum) Init(cfg strategy.Config) error {
	m.fastPeriod = strategy.Int(cfg.Params, "fast_period", m.fastPeriod)
	m.slowPeriod = strategy.Int(cfg.Params, "slow_period", m.slowPeriod)
	m.sensitivity = strategy.Float(cfg.Params, "sensitivity", m.sensitivity)

	if m.fastPeriod < 1 {
		return fmt.Errorf("fast_period must be positive, got %d", m.fastPeriod)
	}
	if m.slowPeriod <= m.fastPeriod {
		// evolved genes can cross over; keep the slow window strictly wider
		m.slowPeriod = m.fastPeriod + 1
	}
	return nil
}

func (m *Momentum) ParamRanges() map[string]core.ParamRange {
	return map[string]core.ParamRange{
		"fast_period": {Min: 2, Max: 10},
		"slow_period": {Min: 8, Max: 40},
		"sensitivity": {Min: 2, Max: 40},
	}
}

func (m *Momentum) Analyze(ctx strategy.AnalysisContext) (*core.Signal, error) {
	prices := ctx.Snapshot.History
	if len(prices) < m.slowPeriod+1 {
		return nil, nil // Not enough data
	}

	fastMA := indicator.SMA(prices, m.fastPeriod)
	slowMA := indicator.SMA(prices, m.slowPeriod)
	if len(fastMA) < 2 || len(slowMA) < 2 {
		return nil, nil
	}

	currFast := fastMA[len(fastMA)-1]
	prevFast := fastMA[len(fastMA)-2]
	currSlow := slowMA[len(slowMA)-1]
	prevSlow := slowMA[len(slowMA)-2]

	var trend core.Side
	switch {
	case prevFast <= prevSlow && currFast > currSlow:
		trend = core.SideYes
	case prevFast >= prevSlow && currFast < currSlow:
		trend = core.SideNo
	default:
		return nil, nil
	}

	sig := &core.Signal{
		Ticker:     ctx.Snapshot.Ticker,
		Strength:   m.strength(currFast, currSlow),
		Confidence: m.confidence(trend, ctx.Snapshot.PriceChange),
		Metadata: map[string]any{
			"fast_ma": currFast,
			"slow_ma": currSlow,
		},
		GeneratedAt: ctx.Now,
	}

	// Exit a position against the new trend before opening one with it
	if held, ok := ctx.Position(trend.Opposite()); ok {
		sig.Side = held.Side
		sig.Type = core.SignalSell
		sig.Reason = fmt.Sprintf("trend turned to %s: MA%d (%.2f) vs MA%d (%.2f)", trend, m.fastPeriod, currFast, m.slowPeriod, currSlow)
		return sig, nil
	}

	sig.Side = trend
	sig.Type = core.SignalBuy
	sig.Reason = fmt.Sprintf("MA%d (%.2f) crossed MA%d (%.2f) toward %s", m.fastPeriod, currFast, m.slowPeriod, currSlow, trend)
	return sig, nil
}

// strength grows with the gap between the averages
func (m *Momentum) strength(fast, slow float64) float64 {
	if slow == 0 {
		return 0
	}
	diff := math.Abs(fast-slow) / slow * 100
	return math.Min(100, 50+diff*m.sensitivity)
}

// confidence is higher when the recent price change agrees with the cross
func (m *Momentum) confidence(trend core.Side, change float64) float64 {
	agrees := (trend == core.SideYes && change > 0) || (trend == core.SideNo && change < 0)
	if agrees {
		return math.Min(95, 70+math.Abs(change))
	}
	return 55
}
