package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendatath/catalog/internal/catalog/loadtest"
	"github.com/opendatath/catalog/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "maint",
	Short:   "Measure ranking lookups under concurrent dashboard load",
	Long: `Build a throwaway store in a temporary directory and drive it with many
concurrent readers fetching rankings a page at a time while curators write
rankings. Reports read and write latency percentiles, then checks that no
reader ever sees a dataset whose resources disagree on their ranking.

Examples:
  odcat loadtest
  odcat loadtest --datasets 5000 --readers 100 --no-cache`,
	Run: runLoadtest,
}

func init() {
	defaults := loadtest.DefaultOptions()
	loadtestCmd.Flags().Int("datasets", 1000, "Datasets in the test store")
	loadtestCmd.Flags().Int("resources", 3, "Resources per dataset")
	loadtestCmd.Flags().Int("readers", defaults.Readers, "Concurrent readers")
	loadtestCmd.Flags().Int("writers", defaults.Writers, "Concurrent ranking writers")
	loadtestCmd.Flags().Int("queries", defaults.QueriesPerReader, "Lookups per reader")
	loadtestCmd.Flags().Bool("no-cache", false, "Read rankings straight from the store")
	loadtestCmd.Flags().Duration("verify", 2*time.Second, "Duration of the uniform-ranking check (0 to skip)")
	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(cmd *cobra.Command, args []string) {
	datasets, _ := cmd.Flags().GetInt("datasets")
	resources, _ := cmd.Flags().GetInt("resources")
	readers, _ := cmd.Flags().GetInt("readers")
	writers, _ := cmd.Flags().GetInt("writers")
	queries, _ := cmd.Flags().GetInt("queries")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	verify, _ := cmd.Flags().GetDuration("verify")

	if datasets <= 0 || resources <= 0 {
		fatalf("--datasets and --resources must be positive")
	}
	if readers <= 0 || queries <= 0 {
		fatalf("--readers and --queries must be positive")
	}

	dir, err := os.MkdirTemp("", "odcat-loadtest-")
	if err != nil {
		fatalf("%v", err)
	}
	defer os.RemoveAll(dir)

	fmt.Printf("%s Creating %d datasets with %d resources each\n", ui.RenderAccent("🔄"), datasets, resources)
	tc, err := loadtest.CreateTestCatalog(filepath.Join(dir, "loadtest.sqlite"), datasets, resources)
	if err != nil {
		fatalf("%v", err)
	}
	defer tc.Close()

	opts := loadtest.DefaultOptions()
	opts.Readers = readers
	opts.Writers = writers
	opts.QueriesPerReader = queries
	opts.UseCache = !noCache

	report, err := tc.Run(context.Background(), opts)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("\nReads (%d readers, batch %d, cache %v):\n", opts.Readers, opts.BatchSize, opts.UseCache)
	_, _ = report.Reads.WriteTo(os.Stdout)
	fmt.Printf("\nWrites (%d writers):\n", opts.Writers)
	_, _ = report.Writes.WriteTo(os.Stdout)
	fmt.Printf("\nElapsed: %v\n", report.Elapsed.Round(time.Millisecond))

	if verify > 0 {
		fmt.Printf("\n%s Checking ranking uniformity for %v\n", ui.RenderAccent("🔄"), verify)
		if err := tc.VerifyUniformRankings(readers, verify); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Rankings stayed uniform per dataset\n", ui.RenderPass("✓"))
	}

	if report.Reads.Errors > 0 || report.Writes.Errors > 0 {
		fmt.Printf("%s %d read and %d write errors\n", ui.RenderWarn("⚠"), report.Reads.Errors, report.Writes.Errors)
	}
}
