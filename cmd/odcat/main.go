// Command odcat manages the local cache of the data.go.th open-data catalog.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/metrics"
	"github.com/opendatath/catalog/internal/catalog/remote"
	"github.com/opendatath/catalog/internal/catalog/service"
	"github.com/opendatath/catalog/internal/catalog/sync"
	"github.com/opendatath/catalog/internal/config"
	"github.com/opendatath/catalog/internal/logging"
)

var (
	v    *viper.Viper
	cfg  *config.Config
	logs *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:   "odcat",
	Short: "Open-data catalog cache for data.go.th",
	Long: `odcat keeps a local SQLite cache of data.go.th dataset metadata.

The cache is filled from JSON snapshot files (datasets.json, resources.json)
and refreshed one dataset at a time from the remote catalog API. Curators
attach a 0-4 quality ranking to each dataset; rankings survive refreshes as
long as a resource keeps its file name.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		envFile, _ := cmd.Flags().GetString("env-file")

		var err error
		v, err = config.New(config.Options{ConfigFile: configFile, EnvFile: envFile})
		if err != nil {
			return err
		}
		if err := v.BindPFlag(config.KeyStorePath, cmd.Flags().Lookup("db")); err != nil {
			return err
		}
		if cfg, err = config.Decode(v); err != nil {
			return err
		}
		logs, err = logging.New(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./odcat.yaml or ~/.config/odcat/odcat.yaml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().String("db", "data/database.sqlite", "Path to the SQLite store")

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Store and snapshot:"},
		&cobra.Group{ID: "browse", Title: "Browsing and curation:"},
		&cobra.Group{ID: "remote", Title: "Remote catalog:"},
		&cobra.Group{ID: "server", Title: "Servers:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// newRemoteClient returns nil when no API key is configured.
func newRemoteClient() *remote.Client {
	if !cfg.HasAPIKey() {
		return nil
	}
	client, err := remote.New(cfg.CatalogBaseURL, cfg.CatalogAPIKey, remote.WithTimeout(cfg.CatalogTimeout))
	if err != nil {
		fatalf("%v", err)
	}
	return client
}

// openCatalog opens the store and wraps it in a Catalog. The returned close
// function must be called when done.
func openCatalog(ctx context.Context, m *metrics.Metrics) (*service.Catalog, func()) {
	store, err := db.OpenOrRecreate(ctx, cfg.StorePath, logs.Logger("db"))
	if err != nil {
		fatalf("failed to open store %s: %v", cfg.StorePath, err)
	}

	var fetcher sync.PackageFetcher
	if client := newRemoteClient(); client != nil {
		fetcher = client
	}

	catalog, err := service.New(store, service.Config{
		Fetcher:   fetcher,
		Snapshot:  cfg.Snapshot,
		CacheSize: cfg.RankingCacheSize,
		Workers:   cfg.RefreshWorkers,
		Metrics:   m,
		Logger:    logs.Logger("catalog"),
	})
	if err != nil {
		_ = store.Close()
		fatalf("%v", err)
	}
	return catalog, func() { _ = store.Close() }
}

// ensureCatalog is openCatalog followed by store initialization.
func ensureCatalog(ctx context.Context, m *metrics.Metrics) (*service.Catalog, func()) {
	catalog, closeFn := openCatalog(ctx, m)
	if _, err := catalog.Ensure(ctx); err != nil {
		closeFn()
		fatalf("failed to initialize store: %v", err)
	}
	return catalog, closeFn
}
