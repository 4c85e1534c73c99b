package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/browse"
	"github.com/opendatath/catalog/internal/catalog/service"
	"github.com/opendatath/catalog/internal/config"
	"github.com/opendatath/catalog/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "browse",
	Short:   "List datasets with filters, sorting and paging",
	Long: `List datasets the way the dashboard table shows them.

Examples:
  odcat list --search ประชากร --type csv
  odcat list --ranking 4 --sort last_updated --desc
  odcat list --updated-since "2 weeks ago" --page 2`,
	Run: func(cmd *cobra.Command, args []string) {
		search, _ := cmd.Flags().GetString("search")
		org, _ := cmd.Flags().GetString("org")
		fileType, _ := cmd.Flags().GetString("type")
		ranking, _ := cmd.Flags().GetInt("ranking")
		since, _ := cmd.Flags().GetString("updated-since")
		sortName, _ := cmd.Flags().GetString("sort")
		desc, _ := cmd.Flags().GetBool("desc")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")
		jsonOut, _ := cmd.Flags().GetBool("json")

		filter := browse.NewFilter()
		filter.Search = search
		filter.Organization = org
		filter.FileType = fileType
		filter.Ranking = ranking

		updatedSince, err := browse.ParseSince(since, time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		filter.UpdatedSince = updatedSince

		sortKey, ok := browse.ParseSortKey(sortName)
		if !ok {
			fatalf("unknown sort key %q (want one of %s)", sortName, strings.Join(sortKeyNames(), ", "))
		}

		ctx := context.Background()
		cat, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		p, err := cat.Browse(ctx, service.Query{
			Filter:   filter,
			Sort:     sortKey,
			Desc:     desc,
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			fatalf("%v", err)
		}

		if jsonOut {
			printJSON(p)
			return
		}
		if p.Total == 0 {
			fmt.Println(ui.RenderMuted(p.Caption()))
			return
		}

		rows := make([][]string, 0, len(p.Items))
		for _, r := range p.Items {
			rows = append(rows, []string{
				r.PackageID,
				ui.Truncate(r.Title, 48),
				ui.Truncate(r.Organization, 32),
				strconv.Itoa(r.ResourceCount),
				r.FileTypes,
				r.LastUpdated,
				ui.RenderRanking(r.Ranking),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "TITLE", "ORGANIZATION", "RES", "TYPES", "UPDATED", "RANKING"}, rows))
		fmt.Printf("%s (page %d/%d)\n", p.Caption(), p.Page, p.Pages)
	},
}

var showCmd = &cobra.Command{
	Use:     "show <package-id>",
	GroupID: "browse",
	Short:   "Show one dataset and its resources",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jsonOut, _ := cmd.Flags().GetBool("json")
		id := args[0]

		ctx := context.Background()
		cat, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		d, err := cat.GetDataset(ctx, id)
		if err != nil {
			if catalog.IsNotFound(err) {
				fatalf("dataset %s not found", id)
			}
			fatalf("%v", err)
		}
		resources, err := cat.ResourcesFor(ctx, id)
		if err != nil {
			fatalf("%v", err)
		}

		if jsonOut {
			printJSON(map[string]any{"dataset": d, "resources": resources})
			return
		}

		ranking, _ := cat.RankingFor(ctx, id)
		fmt.Printf("%s\n", ui.RenderAccent(d.Title))
		fmt.Printf("  ID:            %s\n", d.PackageID)
		fmt.Printf("  Organization:  %s\n", d.Organization)
		fmt.Printf("  URL:           %s\n", d.URL)
		fmt.Printf("  Last updated:  %s\n", d.LastUpdated)
		fmt.Printf("  File types:    %s\n", d.FileTypes)
		fmt.Printf("  Ranking:       %s\n", ui.RenderRanking(ranking))
		fmt.Println()

		rows := make([][]string, 0, len(resources))
		for _, r := range resources {
			rows = append(rows, []string{ui.Truncate(r.FileName, 48), r.Format, strconv.Itoa(r.Ranking), ui.Truncate(r.URL, 60)})
		}
		fmt.Println(ui.Table([]string{"FILE", "FORMAT", "RANKING", "URL"}, rows))
	},
}

var rankCmd = &cobra.Command{
	Use:     "rank",
	GroupID: "browse",
	Short:   "Read or set dataset rankings (0-4)",
}

var rankGetCmd = &cobra.Command{
	Use:   "get <package-id>...",
	Short: "Print the ranking of one or more datasets",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cat, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		rankings, err := cat.RankingsFor(ctx, args)
		if err != nil {
			fatalf("%v", err)
		}
		for _, id := range args {
			fmt.Printf("%s\t%d\t%s\n", id, rankings[id], ui.RenderRanking(rankings[id]))
		}
	},
}

var rankSetCmd = &cobra.Command{
	Use:   "set <package-id> <ranking>",
	Short: "Set the ranking of every resource of a dataset",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		ranking, err := strconv.Atoi(args[1])
		if err != nil {
			fatalf("ranking must be an integer: %v", err)
		}

		ctx := context.Background()
		cat, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		if !cat.SetRanking(ctx, id, ranking) {
			fatalf("failed to set ranking %d on %s", ranking, id)
		}
		fmt.Printf("%s %s ranked %s\n", ui.RenderPass("✓"), id, ui.RenderRanking(ranking))
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "browse",
	Short:   "Show catalog totals and top organizations and file types",
	Run: func(cmd *cobra.Command, args []string) {
		topN, _ := cmd.Flags().GetInt("top")
		jsonOut, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		cat, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		s, err := cat.Stats(ctx, topN)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOut {
			printJSON(s)
			return
		}

		fmt.Printf("Datasets:       %d\n", s.Datasets)
		fmt.Printf("Organizations:  %d\n", s.Organizations)
		fmt.Printf("Resources:      %d\n", s.Resources)
		fmt.Printf("File types:     %d\n\n", s.FileTypes)
		fmt.Println(ui.Table([]string{"ORGANIZATION", "DATASETS"}, countRows(s.TopOrganizations)))
		fmt.Println(ui.Table([]string{"FILE TYPE", "DATASETS"}, countRows(s.TopFileTypes)))
	},
}

func countRows(counts []browse.Count) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Name, strconv.Itoa(c.Count)})
	}
	return rows
}

var orgsCmd = &cobra.Command{
	Use:     "orgs",
	GroupID: "browse",
	Short:   "List organizations with type and province",
	Run: func(cmd *cobra.Command, args []string) {
		search, _ := cmd.Flags().GetString("search")
		orgType, _ := cmd.Flags().GetString("type")
		province, _ := cmd.Flags().GetString("province")
		jsonOut, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		cat, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		orgs, err := cat.Organizations(ctx, browse.OrgFilter{Search: search, Type: orgType, Province: province})
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOut {
			printJSON(orgs)
			return
		}

		rows := make([][]string, 0, len(orgs))
		for _, o := range orgs {
			rows = append(rows, []string{ui.Truncate(o.Name, 48), o.Type, o.Province, strconv.Itoa(o.DatasetCount)})
		}
		fmt.Println(ui.Table([]string{"ORGANIZATION", "TYPE", "PROVINCE", "DATASETS"}, rows))
		fmt.Printf("%d organizations\n", len(orgs))
	},
}

var refreshCmd = &cobra.Command{
	Use:     "refresh <package-id>...",
	GroupID: "remote",
	Short:   "Re-fetch datasets from the remote catalog",
	Long: `Fetch each dataset with package_show and replace its stored resources.

Rankings are carried over to resources that keep the same file name. Needs an
API key in catalog.api_key or DATA_GO_TH_API_KEY.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cat, closeFn := ensureCatalog(ctx, nil)
		defer closeFn()

		if !cfg.HasAPIKey() {
			fmt.Fprintf(os.Stderr, "%s No API key configured; set %s\n", ui.RenderWarn("⚠"), config.APIKeyEnv)
		}

		fmt.Printf("%s Refreshing %d dataset(s)\n", ui.RenderAccent("🔄"), len(args))
		failed := 0
		for _, st := range cat.RefreshMany(ctx, args) {
			fmt.Printf("  %s: %s\n", st.PackageID, st)
			if !st.OK {
				failed++
			}
		}
		if failed > 0 {
			fatalf("%d of %d refreshes failed", failed, len(args))
		}
	},
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encoding JSON: %v", err)
	}
}

func init() {
	listCmd.Flags().String("search", "", "Case-insensitive title substring")
	listCmd.Flags().String("org", "", "Exact organization name")
	listCmd.Flags().String("type", "", "File type (CSV, XLSX, ...)")
	listCmd.Flags().Int("ranking", browse.AnyRanking, "Exact ranking 0-4 (-1 for any)")
	listCmd.Flags().String("updated-since", "", `Timestamp or phrase ("2024-01-31", "3 days ago")`)
	listCmd.Flags().String("sort", "", "Sort key: "+strings.Join(sortKeyNames(), ", "))
	listCmd.Flags().Bool("desc", false, "Sort descending")
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().Int("page-size", browse.DefaultPageSize, "Rows per page")
	listCmd.Flags().Bool("json", false, "Output JSON")

	showCmd.Flags().Bool("json", false, "Output JSON")

	statsCmd.Flags().Int("top", browse.DefaultTopN, "Entries in each top list")
	statsCmd.Flags().Bool("json", false, "Output JSON")

	orgsCmd.Flags().String("search", "", "Case-insensitive name substring")
	orgsCmd.Flags().String("type", "", "Organization type (กระทรวง, กรม, ...)")
	orgsCmd.Flags().String("province", "", "Province name")
	orgsCmd.Flags().Bool("json", false, "Output JSON")

	rankCmd.AddCommand(rankGetCmd)
	rankCmd.AddCommand(rankSetCmd)

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(orgsCmd)
	rootCmd.AddCommand(refreshCmd)
}

func sortKeyNames() []string {
	keys := []browse.SortKey{browse.SortTitle, browse.SortResourceCount, browse.SortFileTypes, browse.SortLastUpdated}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return names
}
