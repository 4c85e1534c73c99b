package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opendatath/catalog/internal/catalog/daemon"
	"github.com/opendatath/catalog/internal/catalog/dashboard"
	"github.com/opendatath/catalog/internal/catalog/metrics"
	"github.com/opendatath/catalog/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Start the dashboard API and WebSocket server",
	Long: `Start the HTTP API behind the dashboard.

The server exposes the dataset table, rankings, statistics and refresh
endpoints under /api, Prometheus metrics on /metrics, and pushes
dataset_refreshed, ranking_updated, import_complete and store_wiped
messages to WebSocket clients on /ws.

With --watch the snapshot files are watched and re-imported when they change.

Example usage:
  odcat serve                  # Start on dashboard.port (default 8080)
  odcat serve --port 9000 --watch`,
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.DashboardPort
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		watch, _ := cmd.Flags().GetBool("watch")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		m := metrics.New()
		cat, closeFn := ensureCatalog(ctx, m)
		defer closeFn()

		server, err := dashboard.NewServer(&dashboard.Config{
			Host:    cfg.DashboardHost,
			Port:    port,
			Catalog: cat,
			Metrics: m,
			Logger:  logs.Logger("dashboard"),
		})
		if err != nil {
			fatalf("%v", err)
		}
		if err := server.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}

		addr := server.GetAddr()
		fmt.Printf("%s Dashboard API on http://%s/api/datasets\n", ui.RenderPass("✓"), addr)
		fmt.Printf("  WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("  Metrics:            http://%s/metrics\n", addr)
		if !cfg.HasAPIKey() {
			fmt.Printf("  %s No API key configured; refresh is disabled\n", ui.RenderWarn("⚠"))
		}

		g, gctx := errgroup.WithContext(ctx)
		if watch {
			d, err := daemon.New(cat, watchConfig())
			if err != nil {
				_ = server.Stop()
				fatalf("%v", err)
			}
			fmt.Printf("  Watching %s\n", cfg.Snapshot.DatasetsPath)
			g.Go(func() error { return d.Start(gctx) })
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		g.Go(func() error {
			<-gctx.Done()
			fmt.Println("\nShutting down dashboard server...")
			return server.Stop()
		})

		if err := g.Wait(); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "server",
	Short:   "Re-import the snapshot whenever its files change",
	Long: `Import the snapshot once, then watch datasets.json and resources.json and
re-import after they have been quiet for watch.debounce. Unchanged snapshots
are skipped by fingerprint.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cat, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		d, err := daemon.New(cat, watchConfig())
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Watching %s and %s\n", ui.RenderAccent("🔄"), cfg.Snapshot.DatasetsPath, cfg.Snapshot.ResourcesPath)
		fmt.Println("Press Ctrl+C to stop...")
		if err := d.Start(ctx); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Stopped after %d import(s)\n", ui.RenderPass("✓"), d.Imports())
	},
}

func watchConfig() *daemon.Config {
	return &daemon.Config{
		Snapshot:         cfg.Snapshot,
		DebounceInterval: cfg.WatchDebounce,
		RescanInterval:   cfg.WatchRescan,
		Logger:           logs.Logger("daemon"),
	}
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides dashboard.port)")
	serveCmd.Flags().Bool("watch", false, "Also watch the snapshot files")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}
