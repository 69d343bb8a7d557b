package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/newthinker/arena/internal/app"
	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/config"
	"github.com/newthinker/arena/internal/logger"
	"github.com/newthinker/arena/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runName     string
	runDuration time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured competitions locally",
	Long: `Run every competition in the config file (or the one named by --name)
and print the final leaderboards. Timed competitions end on their own; others
run until --duration elapses or the process is interrupted.`,
	RunE: runCompetitions,
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "only run the competition with this name")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "stop untimed competitions after this long")
	rootCmd.AddCommand(runCmd)
}

func runCompetitions(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	specs := selectCompetitions(cfg.Competitions, runName)
	if len(specs) == 0 {
		return fmt.Errorf("no competitions configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	arena, cleanup, err := app.Build(ctx, cfg, log, metrics.NewRegistry())
	if err != nil {
		return fmt.Errorf("building arena: %w", err)
	}
	defer cleanup()

	engines := make([]*competition.Engine, 0, len(specs))
	for _, spec := range specs {
		e, err := arena.CreateCompetition(spec)
		if err != nil {
			return fmt.Errorf("competition %q: %w", spec.Name, err)
		}
		if err := e.Start(ctx); err != nil {
			return fmt.Errorf("starting %q: %w", spec.Name, err)
		}
		log.Info("competition running",
			zap.String("competition", e.ID()),
			zap.String("name", spec.Name),
			zap.String("mode", string(e.Config().Mode)),
		)
		engines = append(engines, e)
	}

	var deadline <-chan time.Time
	if runDuration > 0 {
		timer := time.NewTimer(runDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	results := make([]*competition.Result, 0, len(engines))
	for _, e := range engines {
		select {
		case <-e.Done():
		case <-deadline:
		case <-ctx.Done():
		}

		finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		res, err := e.Finish(finishCtx)
		cancel()
		if res == nil {
			return fmt.Errorf("finishing %q: %w", e.Config().Name, err)
		}
		results = append(results, res)
	}

	for _, res := range results {
		printResult(os.Stdout, res)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return arena.Close(closeCtx)
}

func selectCompetitions(specs []config.CompetitionSpec, name string) []config.CompetitionSpec {
	if name == "" {
		return specs
	}
	for _, s := range specs {
		if s.Name == name {
			return []config.CompetitionSpec{s}
		}
	}
	return nil
}

func printResult(out io.Writer, res *competition.Result) {
	fmt.Fprintf(out, "=== %s (%s) ===\n", res.Name, res.Mode)
	fmt.Fprintf(out, "Duration: %s\n", res.Duration.Round(time.Second))
	if res.Winner != nil {
		fmt.Fprintf(out, "Winner:   %s (%s)\n", displayName(res.Winner.Name, res.Winner.ID), res.Winner.ID)
	} else {
		fmt.Fprintln(out, "Winner:   none")
	}
	fmt.Fprintf(out, "Trades:   %d (volume %d)\n\n", res.Stats.TotalTrades, res.Stats.TotalVolume)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tCOMPETITOR\tEQUITY\tPNL %\tSHARPE\tWIN %\tTRADES\tSCORE")
	for _, e := range res.Leaderboard {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%+.2f\t%.2f\t%.1f\t%d\t%.1f\n",
			e.Rank, displayName(e.Name, e.CompetitorID), e.Equity, e.PnLPercent,
			e.SharpeRatio, e.WinRate, e.TotalTrades, e.Score)
	}
	w.Flush()

	eliminated := 0
	for _, c := range res.Competitors {
		if c.Status == competition.CompetitorEliminated {
			eliminated++
		}
	}
	if eliminated > 0 {
		fmt.Fprintf(out, "\n%d competitor(s) eliminated\n", eliminated)
	}
	fmt.Fprintln(out)
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
