// Package spread implements a complementary-price spread strategy.
// A yes contract and a no contract on the same market settle to 100 cents
// together, so when their best prices sum to less than that the pair is cheap.
package spread

import (
	"fmt"
	"math"

	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/strategy"
)

// Name is the registry name of the strategy
const Name = "spread"

// Spread generates buy signals when yes+no trade below par by at least minEdge cents
type Spread struct {
	minEdge  float64 // Minimum edge in cents for a buy signal
	maxHold  int64   // Stop adding to a leg beyond this many contracts
	edgeGain float64
}

// New creates a new spread strategy
func New(minEdge float64) *Spread {
	return &Spread{
		minEdge:  minEdge,
		maxHold:  50,
		edgeGain: 8,
	}
}

func (s *Spread) Name() string { return Name }

func (s *Spread) Description() string {
	return fmt.Sprintf("Complementary spread (min edge: %.1f cents)", s.minEdge)
}

func (s *Spread) Init(cfg strategy.Config) error {
	s.minEdge = strategy.Float(cfg.Params, "min_edge", s.minEdge)
	s.maxHold = int64(strategy.Int(cfg.Params, "max_hold", int(s.maxHold)))
	s.edgeGain = strategy.Float(cfg.Params, "edge_gain", s.edgeGain)
	if s.minEdge <= 0 {
		return fmt.Errorf("min_edge must be positive, got %f", s.minEdge)
	}
	return nil
}

func (s *Spread) ParamRanges() map[string]core.ParamRange {
	return map[string]core.ParamRange{
		"min_edge":  {Min: 0.5, Max: 10},
		"edge_gain": {Min: 2, Max: 20},
	}
}

func (s *Spread) Analyze(ctx strategy.AnalysisContext) (*core.Signal, error) {
	yes, okYes := ctx.Snapshot.Book.Best(core.SideYes)
	no, okNo := ctx.Snapshot.Book.Best(core.SideNo)
	if !okYes || !okNo {
		return nil, nil // One-sided book
	}

	edge := 100 - (yes.Price + no.Price)
	if edge < s.minEdge {
		return nil, nil
	}

	// Build the lighter leg first so the pair stays balanced
	var yesQty, noQty int64
	if p, ok := ctx.Position(core.SideYes); ok {
		yesQty = p.Quantity
	}
	if p, ok := ctx.Position(core.SideNo); ok {
		noQty = p.Quantity
	}

	side := core.SideYes
	price := yes.Price
	if noQty < yesQty {
		side = core.SideNo
		price = no.Price
	}
	if math.Min(float64(yesQty), float64(noQty)) >= float64(s.maxHold) {
		return nil, nil
	}

	confidence := 65.0
	if edge >= 2*s.minEdge {
		confidence = 80
	}

	return &core.Signal{
		Ticker:      ctx.Snapshot.Ticker,
		Side:        side,
		Type:        core.SignalBuy,
		Strength:    math.Min(100, 50+edge*s.edgeGain),
		Confidence:  confidence,
		Reason:      fmt.Sprintf("yes %.0f + no %.0f leaves %.1f cents edge", yes.Price, no.Price, edge),
		Metadata:    map[string]any{"edge": edge, "price": price},
		GeneratedAt: ctx.Now,
	}, nil
}
