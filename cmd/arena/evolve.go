package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/newthinker/arena/internal/app"
	"github.com/newthinker/arena/internal/evolution"
	"github.com/newthinker/arena/internal/logger"
	"github.com/newthinker/arena/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	evolveGenerations int
	evolvePopulation  int
	evolveSeed        int64
	evolveMarkets     []string
)

var evolveCmd = &cobra.Command{
	Use:   "evolve [strategy]",
	Short: "Evolve a strategy's parameters",
	Long: `Run a genetic search over a strategy's tunable parameters. Each generation
races the population in a timed competition on a simulated feed and prints the
best gene found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvolve,
}

func init() {
	evolveCmd.Flags().IntVar(&evolveGenerations, "generations", 0, "generations to run (default from config)")
	evolveCmd.Flags().IntVar(&evolvePopulation, "population", 0, "population size (default from config)")
	evolveCmd.Flags().Int64Var(&evolveSeed, "seed", 0, "random seed (0 uses the config seed)")
	evolveCmd.Flags().StringSliceVar(&evolveMarkets, "markets", nil, "markets to race on (default from config)")
	rootCmd.AddCommand(evolveCmd)
}

func runEvolve(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ecfg := cfg.Evolution.Config
	if evolvePopulation > 0 {
		ecfg.PopulationSize = evolvePopulation
	}
	if evolveSeed != 0 {
		ecfg.Seed = evolveSeed
	}

	req := app.EvolutionRequest{
		Markets:     evolveMarkets,
		Generations: evolveGenerations,
		Config:      &ecfg,
	}
	if len(args) == 1 {
		req.BaseStrategy = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Evolution never uses a live feed.
	arena := app.New(cfg,
		app.WithLogger(log),
		app.WithMetrics(metrics.NewRegistry()),
		app.WithFeedFactory(app.SimulatedFeed(cfg.Feed, log)),
	)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GEN\tBEST\tFITNESS\tAVG\tPARAMS")
	res, err := arena.Evolve(ctx, req, func(r evolution.Report) {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%s\n",
			r.Generation, r.Best.Name, r.Best.Fitness, r.AverageFitness, formatParams(r.Best.Params))
		w.Flush()
	})
	if err != nil {
		return fmt.Errorf("evolution: %w", err)
	}

	fmt.Printf("\nBest %s gene: %s (fitness %.2f)\n", res.BaseStrategy, res.Best.Name, res.Best.Fitness)
	fmt.Printf("  %s\n", formatParams(res.Best.Params))
	return nil
}

func formatParams(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.4g", k, params[k])
	}
	return strings.Join(parts, " ")
}
