package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/newthinker/arena/internal/app"
	"github.com/newthinker/arena/internal/logger"
	"github.com/spf13/cobra"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List available strategies and their tunable parameters",
	RunE:  runStrategies,
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

func runStrategies(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	infos := app.New(nil, app.WithLogger(log)).StrategyInfos()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tPARAM\tMIN\tMAX")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t\t\t\n", info.Name)

		params := make([]string, 0, len(info.Ranges))
		for p := range info.Ranges {
			params = append(params, p)
		}
		sort.Strings(params)
		for _, p := range params {
			r := info.Ranges[p]
			fmt.Fprintf(w, "\t%s\t%g\t%g\n", p, r.Min, r.Max)
		}
	}
	w.Flush()

	fmt.Println()
	for _, info := range infos {
		fmt.Printf("%s: %s\n", info.Name, info.Description)
	}
	return nil
}
