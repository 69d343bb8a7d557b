// Package mean_reversion fades moves that stretch too far from the moving average.
package mean_reversion

import (
	"fmt"
	"math"

	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/indicator"
	"github.com/newthinker/arena/internal/strategy"
)

// Name is the registry name of the strategy
const Name = "mean_reversion"

// MeanReversion implements a z-score band strategy
type MeanReversion struct {
	period int
	entryZ float64
	exitZ  float64
}

func New(period int, entryZ float64) *MeanReversion {
	return &MeanReversion{period: period, entryZ: entryZ}
}

func (m *MeanReversion) Name() string { return Name }

func (m *MeanReversion) Description() string {
	return fmt.Sprintf("Mean reversion (period: %d, entry z: %.2f)", m.period, m.entryZ)
}

func (m *MeanReversion) Init(cfg strategy.Config) error {
	m.period = strategy.Int(cfg.Params, "period", m.period)
	m.entryZ = strategy.Float(cfg.Params, "entry_z", m.entryZ)
	m.exitZ = strategy.Float(cfg.Params, "exit_z", m.exitZ)

	if m.period < 2 {
		return fmt.Errorf("period must be at least 2, got %d", m.period)
	}
	if m.entryZ <= 0 {
		return fmt.Errorf("entry_z must be positive, got %f", m.entryZ)
	}
	return nil
}

func (m *MeanReversion) ParamRanges() map[string]core.ParamRange {
	return map[string]core.ParamRange{
		"period":  {Min: 5, Max: 50},
		"entry_z": {Min: 0.5, Max: 3},
		"exit_z":  {Min: 0, Max: 1},
	}
}

func (m *MeanReversion) Analyze(ctx strategy.AnalysisContext) (*core.Signal, error) {
	prices := ctx.Snapshot.History
	if len(prices) < m.period {
		return nil, nil
	}

	z := indicator.ZScore(prices, m.period)

	// Take profit once price is back inside the exit band
	if held, ok := ctx.Position(core.SideYes); ok && z >= -m.exitZ {
		return m.signal(ctx, held.Side, core.SignalSell, z, "yes reverted to mean"), nil
	}
	if held, ok := ctx.Position(core.SideNo); ok && z <= m.exitZ {
		return m.signal(ctx, held.Side, core.SignalSell, z, "no reverted to mean"), nil
	}

	if z <= -m.entryZ {
		return m.signal(ctx, core.SideYes, core.SignalBuy, z, "yes stretched below mean"), nil
	}
	if z >= m.entryZ {
		return m.signal(ctx, core.SideNo, core.SignalBuy, z, "yes stretched above mean"), nil
	}

	return nil, nil
}

func (m *MeanReversion) signal(ctx strategy.AnalysisContext, side core.Side, typ core.SignalType, z float64, reason string) *core.Signal {
	return &core.Signal{
		Ticker:      ctx.Snapshot.Ticker,
		Side:        side,
		Type:        typ,
		Strength:    m.strength(z),
		Confidence:  m.confidence(z),
		Reason:      fmt.Sprintf("%s (z=%.2f, band %.2f)", reason, z, m.entryZ),
		Metadata:    map[string]any{"z_score": z},
		GeneratedAt: ctx.Now,
	}
}

func (m *MeanReversion) strength(z float64) float64 {
	return math.Min(100, math.Abs(z)/m.entryZ*65)
}

func (m *MeanReversion) confidence(z float64) float64 {
	confidence := 50 + math.Abs(z)*12
	if confidence > 95 {
		confidence = 95
	}
	return confidence
}
