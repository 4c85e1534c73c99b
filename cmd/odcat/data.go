package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/opendatath/catalog/internal/catalog/migrate"
	"github.com/opendatath/catalog/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "data",
	Short:   "Create the store and fill it from the snapshot",
	Long: `Open the store, create the schema if needed and, when the store is empty,
import the snapshot files. When the snapshot is missing or unusable a single
sample dataset is seeded so the dashboard has something to show.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		catalog, closeFn := openCatalog(ctx, nil)
		defer closeFn()

		fmt.Printf("%s Initializing %s\n", ui.RenderAccent("🔄"), cfg.StorePath)
		state, err := catalog.Ensure(ctx)
		if err != nil {
			fatalf("initialization %s: %v", state, err)
		}

		datasets, _ := catalog.Store().CountDatasets(ctx)
		resources, _ := catalog.Store().CountResources(ctx)
		fmt.Printf("%s Store %s: %d datasets, %d resources\n", ui.RenderPass("✓"), state, datasets, resources)
	},
}

var importCmd = &cobra.Command{
	Use:     "import",
	GroupID: "data",
	Short:   "Import the JSON snapshot into the store",
	Long: `Load datasets.json and resources.json into the store inside one transaction.

An import is skipped when the snapshot files have not changed since the last
import; --force imports anyway. Rankings from the optional rankings overlay
are applied by (dataset_id, file_name).`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		datasetsPath, _ := cmd.Flags().GetString("datasets")
		resourcesPath, _ := cmd.Flags().GetString("resources")
		rankingsPath, _ := cmd.Flags().GetString("rankings")

		opts := cfg.Snapshot
		if datasetsPath != "" {
			opts.DatasetsPath = datasetsPath
		}
		if resourcesPath != "" {
			opts.ResourcesPath = resourcesPath
		}
		if rankingsPath != "" {
			opts.RankingsPath = rankingsPath
		}
		opts.Force = force

		ctx := context.Background()
		catalog, closeFn := openCatalog(ctx, nil)
		defer closeFn()

		fmt.Printf("%s Importing %s and %s\n", ui.RenderAccent("🔄"), opts.DatasetsPath, opts.ResourcesPath)
		result := catalog.ImportFrom(ctx, opts)
		for _, w := range result.Warnings {
			fmt.Printf("  %s %s\n", ui.RenderWarn("⚠"), w)
		}
		if !result.OK {
			fatalf("%s", result.Message)
		}
		fmt.Println(result)
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Write the store contents to files",
	Long: `Export every dataset and resource, rankings included.

Formats:
  json  datasets.json and resources.json (can be imported again)
  csv   datasets.csv and resources.csv
  yaml  a single catalog.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		formatName, _ := cmd.Flags().GetString("format")
		dir, _ := cmd.Flags().GetString("dir")

		format, err := migrate.ParseFormat(formatName)
		if err != nil {
			fatalf("%v", err)
		}

		ctx := context.Background()
		catalog, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		res, err := catalog.Export(ctx, migrate.ExportOptions{Format: format, Dir: dir})
		if err != nil {
			fatalf("export failed: %v", err)
		}
		fmt.Printf("%s Exported %d datasets and %d resources\n", ui.RenderPass("✓"), res.Datasets, res.Resources)
		for _, f := range res.Files {
			fmt.Printf("  %s\n", f)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "data",
	Short:   "Compare the store with the snapshot files",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		catalog, closeFn := openCatalog(ctx, nil)
		defer closeFn()

		c, err := catalog.Compare(ctx)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("Store:     %s\n", cfg.StorePath)
		fmt.Printf("Snapshot:  %s\n", snapshotCounts(c))
		fmt.Printf("Stored:    %d datasets, %d resources\n", c.StoreDatasets, c.StoreResources)
		if c.LastImport != "" {
			fmt.Printf("Imported:  %s (%s)\n", c.LastImport, shortHash(c.ImportedFingerprint))
		} else {
			fmt.Printf("Imported:  %s\n", ui.RenderMuted("never"))
		}
		fmt.Println()

		switch {
		case !c.DatasetsFilePresent || !c.ResourcesFilePresent:
			fmt.Printf("%s Snapshot files missing\n", ui.RenderWarn("⚠"))
		case c.Stale():
			fmt.Printf("%s Snapshot changed since last import; run 'odcat import'\n", ui.RenderWarn("⚠"))
		case !c.InSync():
			fmt.Printf("%s Store differs from snapshot (remote refreshes or wipes since import)\n", ui.RenderWarn("⚠"))
		default:
			fmt.Printf("%s Store matches snapshot\n", ui.RenderPass("✓"))
		}
	},
}

func snapshotCounts(c *migrate.Comparison) string {
	count := func(n int) string {
		if n < 0 {
			return "missing"
		}
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("%s datasets, %s resources", count(c.SnapshotDatasets), count(c.SnapshotResources))
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

var wipeCmd = &cobra.Command{
	Use:     "wipe",
	GroupID: "maint",
	Short:   "Delete the store file and recreate an empty schema",
	Long: `Delete the database file and recreate an empty schema. Every ranking is lost.

Asks for confirmation on a terminal; --yes skips the prompt.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")

		if !yes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fatalf("refusing to wipe without --yes when not on a terminal")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Wipe %s? All rankings will be lost.", cfg.StorePath)).
				Affirmative("Wipe").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				fatalf("%v", err)
			}
			if !confirmed {
				fmt.Println("Cancelled")
				return
			}
		}

		ctx := context.Background()
		catalog, closeFn := openCatalog(ctx, nil)
		defer closeFn()

		if err := catalog.WipeStore(ctx); err != nil {
			fatalf("wipe failed: %v", err)
		}
		fmt.Printf("%s Store wiped: %s\n", ui.RenderPass("✓"), cfg.StorePath)
	},
}

func init() {
	importCmd.Flags().Bool("force", false, "Import even if the snapshot is unchanged")
	importCmd.Flags().String("datasets", "", "Datasets file (overrides snapshot.datasets)")
	importCmd.Flags().String("resources", "", "Resources file (overrides snapshot.resources)")
	importCmd.Flags().String("rankings", "", "Rankings overlay file (overrides snapshot.rankings)")

	exportCmd.Flags().String("format", "json", "Output format: json, csv or yaml")
	exportCmd.Flags().String("dir", "export", "Output directory")

	wipeCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(wipeCmd)
}
