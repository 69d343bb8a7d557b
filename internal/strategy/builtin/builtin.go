// Package builtin wires the bundled strategies into a registry.
package builtin

import (
	"github.com/newthinker/arena/internal/strategy"
	"github.com/newthinker/arena/internal/strategy/mean_reversion"
	"github.com/newthinker/arena/internal/strategy/momentum"
	"github.com/newthinker/arena/internal/strategy/spread"
	"go.uber.org/zap"
)

// NewRegistry returns a registry holding every bundled strategy with its default parameters
func NewRegistry(logger *zap.Logger) *strategy.Registry {
	reg := strategy.NewRegistry(logger)
	Register(reg)
	return reg
}

// Register adds the bundled strategies to reg
func Register(reg *strategy.Registry) {
	reg.Register(momentum.Name, func() strategy.Strategy { return momentum.New(3, 12) })
	reg.Register(mean_reversion.Name, func() strategy.Strategy { return mean_reversion.New(20, 1.5) })
	reg.Register(spread.Name, func() strategy.Strategy { return spread.New(2) })
}
