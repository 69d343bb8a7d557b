package strategy

import (
	"time"

	"github.com/newthinker/arena/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// AnalysisContext provides data to strategies.
// Positions are all of the calling competitor's open positions, across markets.
type AnalysisContext struct {
	Snapshot  core.MarketSnapshot
	Positions []core.Position
	Now       time.Time
}

// Position returns the open position on the given side of the snapshot's
// market, if any.
func (c AnalysisContext) Position(side core.Side) (core.Position, bool) {
	for _, p := range c.Positions {
		if p.Ticker == c.Snapshot.Ticker && p.Side == side && p.Quantity > 0 {
			return p, true
		}
	}
	return core.Position{}, false
}

// Strategy defines the interface for trading strategies.
// Analyze returns nil when there is nothing to do.
type Strategy interface {
	Name() string
	Description() string
	Init(cfg Config) error
	Analyze(ctx AnalysisContext) (*core.Signal, error)
}

// Tunable is implemented by strategies whose numeric parameters can be evolved.
type Tunable interface {
	Strategy
	ParamRanges() map[string]core.ParamRange
}
