package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendatath/catalog/internal/catalog/remote"
	"github.com/opendatath/catalog/internal/config"
	"github.com/opendatath/catalog/internal/ui"
)

var pingCmd = &cobra.Command{
	Use:     "ping",
	GroupID: "remote",
	Short:   "Check that the remote catalog API is reachable",
	Run: func(cmd *cobra.Command, args []string) {
		client := requireRemote()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.CatalogTimeout)
		defer cancel()

		start := time.Now()
		if err := client.SiteRead(ctx); err != nil {
			fatalf("%s unreachable: %v", cfg.CatalogBaseURL, err)
		}
		fmt.Printf("%s %s answered in %v\n", ui.RenderPass("✓"), cfg.CatalogBaseURL, time.Since(start).Round(time.Millisecond))
	},
}

var fetchCmd = &cobra.Command{
	Use:     "fetch <package-id>",
	GroupID: "remote",
	Short:   "Show a dataset as the remote catalog has it, without storing it",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jsonOut, _ := cmd.Flags().GetBool("json")
		client := requireRemote()

		pkg, err := client.PackageShow(context.Background(), args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOut {
			printJSON(pkg)
			return
		}

		fmt.Printf("%s\n", ui.RenderAccent(pkg.Title))
		fmt.Printf("  Organization:  %s\n", pkg.OrganizationTitle())
		fmt.Printf("  Modified:      %s\n", pkg.MetadataModified)
		rows := make([][]string, 0, len(pkg.Resources))
		for _, r := range pkg.Resources {
			rows = append(rows, []string{ui.Truncate(r.Name, 48), r.Format, ui.Truncate(r.URL, 60)})
		}
		fmt.Println(ui.Table([]string{"NAME", "FORMAT", "URL"}, rows))
	},
}

var remoteOrgsCmd = &cobra.Command{
	Use:     "remote-orgs",
	GroupID: "remote",
	Short:   "List organization names published by the remote catalog",
	Run: func(cmd *cobra.Command, args []string) {
		client := requireRemote()

		names, err := client.OrganizationList(context.Background())
		if err != nil {
			fatalf("%v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		fmt.Fprintf(os.Stderr, "%d organizations\n", len(names))
	},
}

func requireRemote() *remote.Client {
	client := newRemoteClient()
	if client == nil {
		fatalf("no API key configured; set %s or catalog.api_key", config.APIKeyEnv)
	}
	return client
}

func init() {
	fetchCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(remoteOrgsCmd)
}
