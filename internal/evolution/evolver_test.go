package evolution

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/newthinker/arena/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRanges = map[string]core.ParamRange{
	"fast_period": {Min: 2, Max: 10},
	"slow_period": {Min: 8, Max: 40},
	"sensitivity": {Min: 2, Max: 40},
}

func newEvolver(t *testing.T, cfg Config) *Evolver {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	e, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(testRanges))
	return e
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"single gene", Config{PopulationSize: 1}, false},
		{"empty population", Config{PopulationSize: 0}, true},
		{"elitism above size", Config{PopulationSize: 3, ElitismCount: 4}, true},
		{"negative elitism", Config{PopulationSize: 3, ElitismCount: -1}, true},
		{"mutation rate", Config{PopulationSize: 3, MutationRate: 1.5}, true},
		{"crossover rate", Config{PopulationSize: 3, CrossoverRate: -0.1}, true},
		{"tournament size", Config{PopulationSize: 3, TournamentSize: -2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestNew_DefaultsTournamentSize(t *testing.T) {
	e, err := New(Config{PopulationSize: 4})
	require.NoError(t, err)
	assert.Equal(t, DefaultTournamentSize, e.Config().TournamentSize)
}

func TestInitialize(t *testing.T) {
	e := newEvolver(t, DefaultConfig())

	pop := e.Population()
	require.Len(t, pop, 10)
	for i, g := range pop {
		assert.Equal(t, "evolved_"+itoa(i), g.Name)
		assert.Zero(t, g.Fitness)
		require.Len(t, g.Params, len(testRanges))
		for k, v := range g.Params {
			assert.True(t, testRanges[k].Contains(v), "%s=%f outside range", k, v)
		}
	}
	assert.Equal(t, 0, e.Generation())

	again := newEvolver(t, DefaultConfig())
	assert.Equal(t, pop, again.Population(), "same seed gives same population")
}

func TestInitialize_InvalidRange(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	err = e.Initialize(map[string]core.ParamRange{"x": {Min: 5, Max: 1}})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	assert.Empty(t, e.Population())
}

func TestEmptyPopulation(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)

	assert.True(t, errors.Is(e.Evolve(), core.ErrEmptyPopulation))
	_, err = e.BestGene()
	assert.True(t, errors.Is(err, core.ErrEmptyPopulation))
	assert.False(t, e.UpdateFitness("evolved_0", 1))
}

func TestUpdateFitnessAndBestGene(t *testing.T) {
	e := newEvolver(t, DefaultConfig())

	assert.True(t, e.UpdateFitness("evolved_3", 12.5))
	assert.True(t, e.UpdateFitness("evolved_7", 40))
	assert.False(t, e.UpdateFitness("missing", 99))

	best, err := e.BestGene()
	require.NoError(t, err)
	assert.Equal(t, "evolved_7", best.Name)
	assert.Equal(t, 40.0, best.Fitness)

	best.Params["fast_period"] = -1
	again, _ := e.BestGene()
	assert.NotEqual(t, -1.0, again.Params["fast_period"], "BestGene returns a copy")
}

func TestEvolve_PreservesElites(t *testing.T) {
	e := newEvolver(t, Config{PopulationSize: 10, ElitismCount: 2, MutationRate: 1, CrossoverRate: 1})

	before := e.Population()
	for i, g := range before {
		e.UpdateFitness(g.Name, float64(i))
	}
	top := []Gene{e.Population()[9], e.Population()[8]}

	require.NoError(t, e.Evolve())
	after := e.Population()
	require.Len(t, after, 10)
	assert.Equal(t, 1, e.Generation())
	assert.Equal(t, top[0], after[0])
	assert.Equal(t, top[1], after[1])

	for i, g := range after[2:] {
		assert.Equal(t, "evolved_g1_"+itoa(i+2), g.Name)
		assert.Zero(t, g.Fitness)
	}
}

func TestEvolve_MutationBounds(t *testing.T) {
	e := newEvolver(t, Config{PopulationSize: 20, MutationRate: 1, CrossoverRate: 0})
	parents := e.Population()

	require.NoError(t, e.Evolve())

	for _, child := range e.Population() {
		matched := false
		for _, p := range parents {
			if withinMutation(child.Params, p.Params) {
				matched = true
				break
			}
		}
		assert.True(t, matched, "%s is not a bounded mutation of any parent: %v", child.Name, child.Params)
	}
}

func withinMutation(child, parent map[string]float64) bool {
	for k, v := range parent {
		lo, hi := v*(1-mutationScale), v*(1+mutationScale)
		c := child[k]
		if c < lo-1e-9 || c > hi+1e-9 {
			return false
		}
	}
	return true
}

func TestEvolve_NoMutationCopiesParents(t *testing.T) {
	e := newEvolver(t, Config{PopulationSize: 8, MutationRate: 0, CrossoverRate: 0})
	parents := e.Population()

	require.NoError(t, e.Evolve())

	for _, child := range e.Population() {
		found := false
		for _, p := range parents {
			if assert.ObjectsAreEqual(p.Params, child.Params) {
				found = true
				break
			}
		}
		assert.True(t, found, "%s should be a copy of a parent", child.Name)
	}
}

func TestEvolve_CrossoverMixesParents(t *testing.T) {
	e := newEvolver(t, Config{PopulationSize: 30, MutationRate: 0, CrossoverRate: 1})
	parents := e.Population()

	require.NoError(t, e.Evolve())

	for _, child := range e.Population() {
		for k, v := range child.Params {
			found := false
			for _, p := range parents {
				if p.Params[k] == v {
					found = true
					break
				}
			}
			assert.True(t, found, "%s.%s=%f not inherited", child.Name, k, v)
		}
	}
}

func TestEvolve_Generations(t *testing.T) {
	e := newEvolver(t, Config{PopulationSize: 10, ElitismCount: 2, MutationRate: 0.2, CrossoverRate: 0.7})

	for gen := 1; gen <= 5; gen++ {
		for i, g := range e.Population() {
			e.UpdateFitness(g.Name, g.Params["sensitivity"]+float64(i))
		}
		require.NoError(t, e.Evolve())
		assert.Len(t, e.Population(), 10)
		assert.Equal(t, gen, e.Generation())
	}
	assert.Equal(t, 5, e.Generation())
}

func TestRun(t *testing.T) {
	e := newEvolver(t, Config{PopulationSize: 10, ElitismCount: 2, MutationRate: 0.3, CrossoverRate: 0.7})

	var reports []Report
	eval := EvaluatorFunc(func(ctx context.Context, gen int, genes []Gene) (map[string]float64, error) {
		scores := make(map[string]float64, len(genes))
		for _, g := range genes {
			scores[g.Name] = g.Params["sensitivity"]
		}
		return scores, nil
	})

	best, err := e.Run(context.Background(), eval, 5, func(r Report) { reports = append(reports, r) })
	require.NoError(t, err)

	assert.Equal(t, 5, e.Generation())
	require.Len(t, reports, 5)
	for i, r := range reports {
		assert.Equal(t, i, r.Generation)
		assert.Equal(t, 10, r.Evaluated)
		assert.LessOrEqual(t, r.AverageFitness, r.Best.Fitness)
		assert.LessOrEqual(t, r.Best.Fitness, best.Fitness)
	}
	assert.GreaterOrEqual(t, reports[4].Best.Fitness, reports[0].Best.Fitness, "elitism keeps the best")
}

func TestRun_Errors(t *testing.T) {
	e := newEvolver(t, DefaultConfig())
	boom := errors.New("boom")

	_, err := e.Run(context.Background(), EvaluatorFunc(func(context.Context, int, []Gene) (map[string]float64, error) {
		return nil, boom
	}), 3, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, e.Generation())

	_, err = e.Run(context.Background(), nil, 0, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx, EvaluatorFunc(func(context.Context, int, []Gene) (map[string]float64, error) {
		return nil, nil
	}), 3, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func itoa(i int) string {
	return fmt.Sprint(i)
}
