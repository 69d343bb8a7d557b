package strategy

import (
	"context"

	"github.com/newthinker/arena/internal/core"
	"go.uber.org/zap"
)

// Run evaluates strategies in order against one market.
// A failing strategy is logged and skipped; it never stops the others.
// Each returned signal carries the name of the strategy that produced it.
func Run(ctx context.Context, strategies []Strategy, actx AnalysisContext, logger *zap.Logger) []core.Signal {
	if logger == nil {
		logger = zap.NewNop()
	}

	var signals []core.Signal
	for _, s := range strategies {
		select {
		case <-ctx.Done():
			return signals
		default:
		}

		sig, err := s.Analyze(actx)
		if err != nil {
			logger.Warn("strategy analysis failed",
				zap.String("strategy", s.Name()),
				zap.String("ticker", actx.Snapshot.Ticker),
				zap.Error(err),
			)
			continue
		}
		if sig == nil {
			continue
		}

		sig.Strategy = s.Name()
		if sig.Ticker == "" {
			sig.Ticker = actx.Snapshot.Ticker
		}
		if sig.GeneratedAt.IsZero() {
			sig.GeneratedAt = actx.Now
		}
		signals = append(signals, *sig)
	}

	return signals
}
