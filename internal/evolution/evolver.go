// Package evolution implements a genetic search over strategy parameters.
// Fitness is assigned externally, typically from competition scores.
package evolution

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/metrics"
	"go.uber.org/zap"
)

// DefaultTournamentSize is used when Config.TournamentSize is zero.
const DefaultTournamentSize = 3

// mutationScale bounds a mutation to this fraction of the current value.
const mutationScale = 0.2

// Config holds evolver parameters.
type Config struct {
	PopulationSize int     `mapstructure:"population_size" json:"population_size"`
	ElitismCount   int     `mapstructure:"elitism_count" json:"elitism_count"`
	MutationRate   float64 `mapstructure:"mutation_rate" json:"mutation_rate"`
	CrossoverRate  float64 `mapstructure:"crossover_rate" json:"crossover_rate"`
	TournamentSize int     `mapstructure:"tournament_size" json:"tournament_size"`
	Seed           int64   `mapstructure:"seed" json:"seed"` // 0 seeds from the clock
}

// DefaultConfig returns a small, conservative search.
func DefaultConfig() Config {
	return Config{
		PopulationSize: 10,
		ElitismCount:   2,
		MutationRate:   0.1,
		CrossoverRate:  0.7,
		TournamentSize: DefaultTournamentSize,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.PopulationSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("population_size must be at least 1, got %d", c.PopulationSize))
	}
	if c.ElitismCount < 0 || c.ElitismCount > c.PopulationSize {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("elitism_count must be within [0, %d], got %d", c.PopulationSize, c.ElitismCount))
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("mutation_rate must be within [0, 1], got %f", c.MutationRate))
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("crossover_rate must be within [0, 1], got %f", c.CrossoverRate))
	}
	if c.TournamentSize < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("tournament_size cannot be negative, got %d", c.TournamentSize))
	}
	return nil
}

// Gene is one candidate parameter vector.
type Gene struct {
	Name    string             `json:"name"`
	Params  map[string]float64 `json:"params"`
	Fitness float64            `json:"fitness"`
}

// Clone returns a deep copy of g.
func (g Gene) Clone() Gene {
	params := make(map[string]float64, len(g.Params))
	for k, v := range g.Params {
		params[k] = v
	}
	g.Params = params
	return g
}

// Option configures an Evolver.
type Option func(*Evolver)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evolver) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records generation progress.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Evolver) {
		e.metrics = m
	}
}

// Evolver owns a population and produces successive generations.
type Evolver struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Registry

	mu         sync.RWMutex
	rng        *rand.Rand
	population []Gene
	keys       []string
	generation int
}

// New creates an evolver with an empty population.
func New(cfg Config, opts ...Option) (*Evolver, error) {
	if cfg.TournamentSize == 0 {
		cfg.TournamentSize = DefaultTournamentSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Evolver{
		cfg:    cfg,
		logger: zap.NewNop(),
		rng:    rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Evolver) Config() Config {
	return e.cfg
}

// Initialize replaces the population with uniformly sampled genes and
// resets the generation counter.
func (e *Evolver) Initialize(ranges map[string]core.ParamRange) error {
	keys := make([]string, 0, len(ranges))
	for k, r := range ranges {
		if err := r.Validate(); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("range %q: %w", k, err))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.keys = keys
	e.population = make([]Gene, e.cfg.PopulationSize)
	for i := range e.population {
		params := make(map[string]float64, len(keys))
		for _, k := range keys {
			r := ranges[k]
			params[k] = r.Min + e.rng.Float64()*(r.Max-r.Min)
		}
		e.population[i] = Gene{Name: fmt.Sprintf("evolved_%d", i), Params: params}
	}
	e.generation = 0

	e.logger.Info("population initialized",
		zap.Int("size", len(e.population)),
		zap.Strings("params", keys),
	)
	return nil
}

// UpdateFitness sets the fitness of the named gene. Unknown names are ignored.
func (e *Evolver) UpdateFitness(name string, fitness float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.population {
		if e.population[i].Name == name {
			e.population[i].Fitness = fitness
			return true
		}
	}
	return false
}

// Evolve builds the next generation from the current one.
func (e *Evolver) Evolve() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.population) == 0 {
		return core.ErrEmptyPopulation
	}

	current := make([]Gene, len(e.population))
	copy(current, e.population)
	sort.SliceStable(current, func(i, j int) bool {
		return current[i].Fitness > current[j].Fitness
	})

	nextGen := e.generation + 1
	next := make([]Gene, 0, e.cfg.PopulationSize)
	for i := 0; i < e.cfg.ElitismCount && i < len(current); i++ {
		next = append(next, current[i].Clone())
	}

	for len(next) < e.cfg.PopulationSize {
		a := e.tournament(current)
		b := e.tournament(current)

		var child Gene
		if e.rng.Float64() < e.cfg.CrossoverRate {
			child = e.crossover(a, b)
		} else {
			child = a.Clone()
		}
		e.mutate(&child)

		child.Name = fmt.Sprintf("evolved_g%d_%d", nextGen, len(next))
		child.Fitness = 0
		next = append(next, child)
	}

	best := current[0].Fitness
	e.population = next
	e.generation = nextGen

	e.logger.Debug("generation evolved",
		zap.Int("generation", nextGen),
		zap.Float64("parent_best_fitness", best),
	)
	e.metrics.RecordGeneration(nextGen, best)
	return nil
}

func (e *Evolver) tournament(pool []Gene) Gene {
	best := pool[e.rng.Intn(len(pool))]
	for i := 1; i < e.cfg.TournamentSize; i++ {
		g := pool[e.rng.Intn(len(pool))]
		if g.Fitness > best.Fitness {
			best = g
		}
	}
	return best
}

func (e *Evolver) crossover(a, b Gene) Gene {
	child := Gene{Params: make(map[string]float64, len(a.Params))}
	for _, k := range e.paramKeys(a) {
		if v, ok := b.Params[k]; ok && e.rng.Float64() < 0.5 {
			child.Params[k] = v
			continue
		}
		child.Params[k] = a.Params[k]
	}
	return child
}

func (e *Evolver) mutate(g *Gene) {
	for _, k := range e.paramKeys(*g) {
		if e.rng.Float64() >= e.cfg.MutationRate {
			continue
		}
		v := g.Params[k]
		g.Params[k] = v + (e.rng.Float64()*2-1)*v*mutationScale
	}
}

// paramKeys iterates in a fixed order so a seeded run is reproducible.
func (e *Evolver) paramKeys(g Gene) []string {
	if len(e.keys) == len(g.Params) {
		return e.keys
	}
	keys := make([]string, 0, len(g.Params))
	for k := range g.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BestGene returns the fittest gene of the current population.
func (e *Evolver) BestGene() (Gene, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.population) == 0 {
		return Gene{}, core.ErrEmptyPopulation
	}
	best := 0
	for i := 1; i < len(e.population); i++ {
		if e.population[i].Fitness > e.population[best].Fitness {
			best = i
		}
	}
	return e.population[best].Clone(), nil
}

// Population returns a copy of the current population.
func (e *Evolver) Population() []Gene {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Gene, len(e.population))
	for i, g := range e.population {
		out[i] = g.Clone()
	}
	return out
}

// Generation returns the number of completed Evolve calls since Initialize.
func (e *Evolver) Generation() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}
