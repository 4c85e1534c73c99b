package browse

import (
	"sort"

	"github.com/opendatath/catalog/internal/catalog/schema"
)

// DefaultTopN is the length of the leader boards in Summary.
const DefaultTopN = 10

// Count is a labelled tally.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary aggregates the catalog for the statistics view.
type Summary struct {
	Datasets         int     `json:"datasets"`
	Organizations    int     `json:"organizations"`
	Resources        int     `json:"resources"`
	FileTypes        int     `json:"file_types"`
	TopOrganizations []Count `json:"top_organizations"`
	TopFileTypes     []Count `json:"top_file_types"`
}

// Summarize computes catalog statistics. Resources is the sum of the
// datasets' resource_count; topN <= 0 means DefaultTopN.
func Summarize(datasets []*schema.Dataset, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}
	orgs := make(map[string]int)
	types := make(map[string]int)
	s := Summary{Datasets: len(datasets)}
	for _, d := range datasets {
		s.Resources += d.ResourceCount
		if d.Organization != "" {
			orgs[d.Organization]++
		}
		for _, ft := range d.FileTypeList() {
			types[ft]++
		}
	}
	s.Organizations = len(orgs)
	s.FileTypes = len(types)
	s.TopOrganizations = top(orgs, topN)
	s.TopFileTypes = top(types, topN)
	return s
}

// top returns the n largest tallies, ties broken by name.
func top(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
