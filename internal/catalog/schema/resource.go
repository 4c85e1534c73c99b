package schema

import (
	"fmt"
	"strings"
)

// Resource is one downloadable file belonging to a Dataset.
//
// DatasetID references Dataset.PackageID but the reference is not enforced
// by the store; orphans are tolerated. Ranking is local curation state and is
// never supplied by the remote catalog.
type Resource struct {
	DatasetID   string `json:"dataset_id" yaml:"dataset_id" csv:"dataset_id"`
	FileName    string `json:"file_name" yaml:"file_name" csv:"file_name"`
	Format      string `json:"format" yaml:"format" csv:"format"`
	URL         string `json:"url" yaml:"url" csv:"url"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" csv:"description"`
	Ranking     int    `json:"ranking" yaml:"ranking" csv:"ranking"`
}

// Validate checks that the resource can be stored.
func (r *Resource) Validate() error {
	if r == nil {
		return fmt.Errorf("resource is nil")
	}
	if strings.TrimSpace(r.DatasetID) == "" {
		return fmt.Errorf("dataset_id is required")
	}
	if err := ValidateRanking(r.Ranking); err != nil {
		return err
	}
	return nil
}

// Normalize uppercases the format code in place.
func (r *Resource) Normalize() {
	r.Format = NormalizeFormat(r.Format)
}

// ValidateRanking checks that ranking lies within [MinRanking, MaxRanking].
func ValidateRanking(ranking int) error {
	if ranking < MinRanking || ranking > MaxRanking {
		return fmt.Errorf("ranking must be between %d and %d (got %d)", MinRanking, MaxRanking, ranking)
	}
	return nil
}

// GroupByDataset buckets resources by DatasetID, preserving input order
// within each bucket. The returned keys slice lists dataset ids in order of
// first appearance.
func GroupByDataset(resources []*Resource) (keys []string, groups map[string][]*Resource) {
	groups = make(map[string][]*Resource)
	for _, r := range resources {
		if _, ok := groups[r.DatasetID]; !ok {
			keys = append(keys, r.DatasetID)
		}
		groups[r.DatasetID] = append(groups[r.DatasetID], r)
	}
	return keys, groups
}

// RankingsByFileName maps each resource's file name to its ranking. When a
// name repeats, the last occurrence wins.
func RankingsByFileName(resources []*Resource) map[string]int {
	m := make(map[string]int, len(resources))
	for _, r := range resources {
		m[r.FileName] = r.Ranking
	}
	return m
}
