package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/arena/internal/core"
	"go.uber.org/zap"
)

// Factory builds a fresh, uninitialised strategy instance.
type Factory func() Strategy

// Registry maps strategy names to factories. Every competitor gets its
// own instance so strategies may keep per-competitor state.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    l,
	}
}

// Register adds a factory under name, replacing any previous one
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds and initialises a strategy instance.
func (r *Registry) New(name string, params map[string]any) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("%q", name))
	}

	s := f()
	if err := s.Init(Config{Params: params}); err != nil {
		return nil, fmt.Errorf("init strategy %s: %w", name, err)
	}

	r.logger.Debug("strategy created", zap.String("strategy", name), zap.Any("params", params))
	return s, nil
}

// Ranges returns the tunable parameter ranges of a strategy, or false when
// the strategy is unknown or has nothing to tune.
func (r *Registry) Ranges(name string) (map[string]core.ParamRange, bool) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	t, ok := f().(Tunable)
	if !ok {
		return nil, false
	}
	return t.ParamRanges(), true
}
