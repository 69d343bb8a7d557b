package evolution

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Evaluator scores a population. The returned map is keyed by gene name;
// genes missing from it keep a fitness of zero.
type Evaluator interface {
	Evaluate(ctx context.Context, generation int, genes []Gene) (map[string]float64, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, generation int, genes []Gene) (map[string]float64, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, generation int, genes []Gene) (map[string]float64, error) {
	return f(ctx, generation, genes)
}

// Report summarises one evaluated generation.
type Report struct {
	Generation     int     `json:"generation"`
	Best           Gene    `json:"best"`
	AverageFitness float64 `json:"average_fitness"`
	Evaluated      int     `json:"evaluated"`
}

// Run evaluates and evolves the population for the given number of
// generations and returns the fittest gene seen. report, if non-nil, is
// called after each evaluation.
func (e *Evolver) Run(ctx context.Context, eval Evaluator, generations int, report func(Report)) (Gene, error) {
	if generations < 1 {
		return Gene{}, fmt.Errorf("generations must be at least 1, got %d", generations)
	}

	var best Gene
	found := false
	for i := 0; i < generations; i++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}

		gen := e.Generation()
		scores, err := eval.Evaluate(ctx, gen, e.Population())
		if err != nil {
			return best, fmt.Errorf("evaluate generation %d: %w", gen, err)
		}

		evaluated := 0
		for name, fitness := range scores {
			if e.UpdateFitness(name, fitness) {
				evaluated++
			}
		}

		r, err := e.summarize(gen, evaluated)
		if err != nil {
			return best, err
		}
		if !found || r.Best.Fitness > best.Fitness {
			best = r.Best.Clone()
			found = true
		}

		e.logger.Info("generation evaluated",
			zap.Int("generation", gen),
			zap.String("best", r.Best.Name),
			zap.Float64("best_fitness", r.Best.Fitness),
			zap.Float64("average_fitness", r.AverageFitness),
		)
		if report != nil {
			report(r)
		}

		if err := e.Evolve(); err != nil {
			return best, err
		}
	}
	return best, nil
}

func (e *Evolver) summarize(gen, evaluated int) (Report, error) {
	best, err := e.BestGene()
	if err != nil {
		return Report{}, err
	}
	pop := e.Population()
	total := 0.0
	for _, g := range pop {
		total += g.Fitness
	}
	return Report{
		Generation:     gen,
		Best:           best,
		AverageFitness: total / float64(len(pop)),
		Evaluated:      evaluated,
	}, nil
}
