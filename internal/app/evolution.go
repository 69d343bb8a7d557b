package app

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/evolution"
	"github.com/newthinker/arena/internal/strategy"
	"go.uber.org/zap"
)

// baselineID names the stand-in competitor raced against a lone gene.
const baselineID = "baseline"

// EvolutionRequest describes one evolution run. Zero fields take the
// configured evolution defaults.
type EvolutionRequest struct {
	BaseStrategy       string            `json:"base_strategy"`
	Markets            []string          `json:"markets,omitempty"`
	Generations        int               `json:"generations,omitempty"`
	EvaluationDuration time.Duration     `json:"evaluation_duration,omitempty"`
	Config             *evolution.Config `json:"config,omitempty"`
}

// EvolutionResult is the outcome of a finished run.
type EvolutionResult struct {
	BaseStrategy string             `json:"base_strategy"`
	Best         evolution.Gene     `json:"best"`
	Generations  []evolution.Report `json:"generations"`
}

func (a *Arena) evolutionRequest(req EvolutionRequest) (EvolutionRequest, evolution.Config, error) {
	def := a.cfg.Evolution
	if req.BaseStrategy == "" {
		req.BaseStrategy = def.BaseStrategy
	}
	if len(req.Markets) == 0 {
		req.Markets = def.Markets
	}
	if req.Generations == 0 {
		req.Generations = def.Generations
	}
	if req.EvaluationDuration == 0 {
		req.EvaluationDuration = def.EvaluationDuration
	}
	cfg := def.Config
	if req.Config != nil {
		cfg = *req.Config
	}

	if req.Generations < 1 {
		return req, cfg, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("generations must be at least 1, got %d", req.Generations))
	}
	if req.EvaluationDuration <= 0 {
		return req, cfg, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("evaluation_duration must be positive, got %s", req.EvaluationDuration))
	}
	if len(req.Markets) == 0 {
		return req, cfg, core.WrapError(core.ErrConfigMissing, fmt.Errorf("evolution markets required"))
	}
	if err := cfg.Validate(); err != nil {
		return req, cfg, err
	}
	return req, cfg, nil
}

// Evolve searches the base strategy's parameter space. Every generation
// races one competitor per gene in a timed competition on a fresh simulated
// feed; a gene's fitness is its competitor's final score. report, if
// non-nil, is called after each generation.
func (a *Arena) Evolve(ctx context.Context, req EvolutionRequest, report func(evolution.Report)) (*EvolutionResult, error) {
	req, cfg, err := a.evolutionRequest(req)
	if err != nil {
		return nil, err
	}

	if !a.strategies.Has(req.BaseStrategy) {
		return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("%q", req.BaseStrategy))
	}
	ranges, ok := a.strategies.Ranges(req.BaseStrategy)
	if !ok || len(ranges) == 0 {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("strategy %q has no tunable parameters", req.BaseStrategy))
	}

	logger := a.logger.With(zap.String("base_strategy", req.BaseStrategy))
	ev, err := evolution.New(cfg, evolution.WithLogger(logger), evolution.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	if err := ev.Initialize(ranges); err != nil {
		return nil, err
	}

	res := &EvolutionResult{BaseStrategy: req.BaseStrategy}
	race := &raceEvaluator{
		arena:    a,
		base:     req.BaseStrategy,
		markets:  req.Markets,
		duration: req.EvaluationDuration,
		seed:     cfg.Seed,
		logger:   logger,
	}

	a.metrics.SetJobsActive("evolution", 1)
	defer a.metrics.SetJobsActive("evolution", 0)

	best, err := ev.Run(ctx, race, req.Generations, func(r evolution.Report) {
		res.Generations = append(res.Generations, r)
		if report != nil {
			report(r)
		}
	})
	if err != nil {
		return nil, err
	}
	res.Best = best

	logger.Info("evolution finished",
		zap.String("best", best.Name),
		zap.Float64("fitness", best.Fitness),
		zap.Int("generations", len(res.Generations)),
	)
	return res, nil
}

// raceEvaluator scores genes by racing them against each other.
type raceEvaluator struct {
	arena    *Arena
	base     string
	markets  []string
	duration time.Duration
	seed     int64
	logger   *zap.Logger
}

func (r *raceEvaluator) Evaluate(ctx context.Context, generation int, genes []evolution.Gene) (map[string]float64, error) {
	a := r.arena

	var seed int64
	if r.seed != 0 {
		seed = r.seed + int64(generation)
	}
	feed := SimulatedFeed(a.cfg.Feed, r.logger)(seed)

	defaults := a.cfg.Competition
	e, err := competition.NewEngine(competition.Config{
		Name:                fmt.Sprintf("%s evolution g%d", r.base, generation),
		Mode:                competition.ModeTimed,
		Duration:            r.duration,
		Markets:             r.markets,
		StartingBalance:     defaults.StartingBalance,
		Weights:             defaults.Weights,
		TickInterval:        defaults.TickInterval,
		MinSignalStrength:   defaults.MinSignalStrength,
		MinSignalConfidence: defaults.MinSignalConfidence,
	}, competition.Dependencies{
		Client:  feed.Client,
		Market:  feed.Market,
		Logger:  r.logger,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, err
	}

	base := defaults.Paper
	base.StartingBalance = 0
	for _, g := range genes {
		v, err := strategy.NewVariant(a.strategies, r.base, g.Name, g.Params)
		if err != nil {
			return nil, fmt.Errorf("gene %s: %w", g.Name, err)
		}
		if err := e.RegisterCompetitor(competition.CompetitorConfig{
			ID:         g.Name,
			Strategies: []strategy.Strategy{v},
			Paper:      base,
		}); err != nil {
			return nil, err
		}
	}
	if len(genes) < 2 {
		s, err := a.strategies.New(r.base, nil)
		if err != nil {
			return nil, err
		}
		if err := e.RegisterCompetitor(competition.CompetitorConfig{
			ID:         baselineID,
			Strategies: []strategy.Strategy{s},
			Paper:      base,
		}); err != nil {
			return nil, err
		}
	}

	if err := e.Start(ctx); err != nil {
		return nil, err
	}

	select {
	case <-e.Done():
	case <-ctx.Done():
		e.Finish(context.Background())
		return nil, ctx.Err()
	}

	res, err := e.Finish(ctx)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(genes))
	for _, c := range res.Competitors {
		if c.ID == baselineID && len(genes) < 2 {
			continue
		}
		scores[c.ID] = c.Score
	}
	return scores, nil
}
