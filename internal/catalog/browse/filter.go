// Package browse implements the dashboard's read model: filtering, sorting
// and paginating datasets, plus catalog statistics and organization
// summaries. Everything operates on records already loaded from the store.
package browse

import (
	"sort"
	"strings"
	"time"

	"github.com/opendatath/catalog/internal/catalog/schema"
)

// AnyRanking disables the ranking filter.
const AnyRanking = -1

// Filter selects datasets. Zero values match everything except Ranking,
// which must be set to AnyRanking to disable it.
type Filter struct {
	Search       string    // case-insensitive substring of the title
	Organization string    // exact organization name
	FileType     string    // format code, case-insensitive
	Ranking      int       // exact dataset ranking, or AnyRanking
	UpdatedSince time.Time // keep datasets whose last_updated is not earlier
}

// NewFilter returns a Filter that matches every dataset.
func NewFilter() Filter {
	return Filter{Ranking: AnyRanking}
}

// Apply returns the datasets matching f, preserving input order. rankings
// maps package ids to dataset rankings and is only consulted when the
// ranking filter is active; missing ids count as 0.
func (f Filter) Apply(datasets []*schema.Dataset, rankings map[string]int) []*schema.Dataset {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]*schema.Dataset, 0, len(datasets))
	for _, d := range datasets {
		if search != "" && !strings.Contains(strings.ToLower(d.Title), search) {
			continue
		}
		if f.Organization != "" && d.Organization != f.Organization {
			continue
		}
		if f.FileType != "" && !d.HasFileType(f.FileType) {
			continue
		}
		if f.Ranking != AnyRanking && rankings[d.PackageID] != f.Ranking {
			continue
		}
		if !f.UpdatedSince.IsZero() {
			t, ok := ParseTimestamp(d.LastUpdated)
			if !ok || t.Before(f.UpdatedSince) {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// NeedsRankings reports whether Apply will read the rankings map.
func (f Filter) NeedsRankings() bool {
	return f.Ranking != AnyRanking
}

// SortKey names a sortable column.
type SortKey string

const (
	SortNone          SortKey = ""
	SortTitle         SortKey = "title"
	SortResourceCount SortKey = "resource_count"
	SortFileTypes     SortKey = "file_types"
	SortLastUpdated   SortKey = "last_updated"
)

// ParseSortKey accepts a column name; unknown names yield an error-free
// SortNone with ok=false.
func ParseSortKey(s string) (SortKey, bool) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortNone, SortTitle, SortResourceCount, SortFileTypes, SortLastUpdated:
		return k, true
	default:
		return SortNone, false
	}
}

// Sort orders datasets in place by key. Ties keep their relative order and
// are finally broken by package id so output is deterministic.
func Sort(datasets []*schema.Dataset, key SortKey, desc bool) {
	if key == SortNone {
		return
	}
	less := func(a, b *schema.Dataset) int {
		switch key {
		case SortTitle:
			return strings.Compare(a.Title, b.Title)
		case SortResourceCount:
			return a.ResourceCount - b.ResourceCount
		case SortFileTypes:
			return strings.Compare(a.FileTypes, b.FileTypes)
		case SortLastUpdated:
			return strings.Compare(a.LastUpdated, b.LastUpdated)
		}
		return 0
	}
	sort.SliceStable(datasets, func(i, j int) bool {
		c := less(datasets[i], datasets[j])
		if c == 0 {
			return datasets[i].PackageID < datasets[j].PackageID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// UniqueFileTypes returns every format code used by any dataset, sorted.
func UniqueFileTypes(datasets []*schema.Dataset) []string {
	seen := make(map[string]struct{})
	for _, d := range datasets {
		for _, ft := range d.FileTypeList() {
			seen[ft] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for ft := range seen {
		out = append(out, ft)
	}
	sort.Strings(out)
	return out
}
