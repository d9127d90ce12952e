// Command fpshadow drives the shadow-execution engine against the
// named demonstration scenarios (spec §8). A real deployment embeds
// pkg/engine inside a dynamic binary translator; this CLI stands in
// for that translator so the engine can be exercised and reported on
// without one.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/oisee/fpshadow/pkg/engine"
	"github.com/oisee/fpshadow/pkg/scenario"
	"github.com/spf13/cobra"
)

func main() {
	var precision uint
	var meanError float64
	var ignoreLibraries bool
	var ignoreAccurate bool
	var simOriginal bool
	var analyzeAll bool
	var badCancellations bool
	var ignoreEnd bool
	var numWorkers int

	rootCmd := &cobra.Command{
		Use:   "fpshadow",
		Short: "Dynamic floating-point accuracy analyzer — shadow execution in arbitrary precision",
	}
	rootCmd.PersistentFlags().UintVar(&precision, "precision", engine.DefaultConfig().Precision, "shadow mantissa width in bits")
	rootCmd.PersistentFlags().Float64Var(&meanError, "mean-error", 0, "mean relative error report threshold (accepted, not acted on)")
	rootCmd.PersistentFlags().BoolVar(&ignoreLibraries, "ignore-libraries", false, "shared-library site filter (accepted, not acted on)")
	rootCmd.PersistentFlags().BoolVar(&ignoreAccurate, "ignore-accurate", false, "accurate-site filter (accepted, not acted on)")
	rootCmd.PersistentFlags().BoolVar(&simOriginal, "sim-original", false, "machine-precision simulation (accepted, not acted on)")
	rootCmd.PersistentFlags().BoolVar(&analyzeAll, "analyze-all", false, "shadow every operation (accepted, not acted on)")
	rootCmd.PersistentFlags().BoolVar(&badCancellations, "bad-cancellations", false, "cancellation-only site reporting (accepted, not acted on)")
	rootCmd.PersistentFlags().BoolVar(&ignoreEnd, "ignore-end", false, "suppress the summary line printed on an END client request")

	cfgFromFlags := func() engine.Config {
		return engine.Config{
			Precision:        precision,
			MeanErrorReport:  meanError,
			IgnoreLibraries:  ignoreLibraries,
			IgnoreAccurate:   ignoreAccurate,
			SimOriginal:      simOriginal,
			AnalyzeAll:       analyzeAll,
			BadCancellations: badCancellations,
			IgnoreEnd:        ignoreEnd,
		}
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available demonstration scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range scenario.All() {
				fmt.Printf("  %-28s %s\n", s.Name, s.Description)
			}
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run one or more scenarios (default: all), printing a one-line summary each",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				for _, s := range scenario.All() {
					names = append(names, s.Name)
				}
			}
			for _, n := range names {
				if _, ok := scenario.Lookup(n); !ok {
					return fmt.Errorf("unknown scenario %q (see 'fpshadow list')", n)
				}
			}

			if numWorkers <= 0 {
				numWorkers = len(names)
			}
			results := runScenarios(names, cfgFromFlags(), numWorkers)
			for _, r := range results {
				fmt.Printf("%-28s %s\n", r.Name, r.Summary)
			}
			return nil
		},
	}
	runCmd.Flags().IntVar(&numWorkers, "workers", 0, "scenarios to run concurrently (default: all of them at once)")

	var out string
	reportCmd := &cobra.Command{
		Use:   "report <scenario>",
		Short: "Run one scenario and dump its full per-site and provenance report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := scenario.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown scenario %q (see 'fpshadow list')", args[0])
			}
			ctx := engine.New(cfgFromFlags(), nil)
			result := s.Run(ctx)
			fmt.Println(result.Summary)
			fmt.Println()

			if out != "" {
				return ctx.Report.DumpErrorGraphFile(out)
			}
			return ctx.Report.DumpErrorGraph(os.Stdout)
		},
	}
	reportCmd.Flags().StringVar(&out, "out", "", "write the report to this file instead of stdout")

	rootCmd.AddCommand(listCmd, runCmd, reportCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fpshadow:", err)
		os.Exit(1)
	}
}

// runScenarios fans the named scenarios out across a bounded pool of
// goroutines — each scenario gets its own engine.Context, so there is
// no shared mutable state between them beyond the pool's own
// bookkeeping. This plays the same role the teacher's WorkerPool
// plays for candidate-sequence verification: a fixed number of
// workers pulling tasks off a channel, collecting results under a
// mutex.
func runScenarios(names []string, cfg engine.Config, numWorkers int) []scenario.Result {
	type task struct {
		index int
		name  string
	}
	tasks := make(chan task, len(names))
	for i, n := range names {
		tasks <- task{index: i, name: n}
	}
	close(tasks)

	results := make([]scenario.Result, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				s, _ := scenario.Lookup(t.name)
				ctx := engine.New(cfg, nil)
				r := s.Run(ctx)
				mu.Lock()
				results[t.index] = r
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return results
}
