package service

import (
	"context"

	"github.com/opendatath/catalog/internal/catalog/browse"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// Query describes one page of the dataset table.
type Query struct {
	Filter   browse.Filter
	Sort     browse.SortKey
	Desc     bool
	Page     int
	PageSize int
}

// Row is a dataset with its cached ranking.
type Row struct {
	*schema.Dataset
	Ranking int `json:"ranking"`
}

// Browse filters, sorts and paginates the datasets. Rankings for the rows of
// the returned page come from the ranking cache in one batch.
func (c *Catalog) Browse(ctx context.Context, q Query) (browse.Page[Row], error) {
	datasets, err := c.LoadAllDatasets(ctx)
	if err != nil {
		return browse.Page[Row]{}, err
	}

	var rankings map[string]int
	if q.Filter.NeedsRankings() {
		if rankings, err = c.RankingsFor(ctx, packageIDs(datasets)); err != nil {
			return browse.Page[Row]{}, err
		}
	}

	matched := q.Filter.Apply(datasets, rankings)
	browse.Sort(matched, q.Sort, q.Desc)
	page := browse.Paginate(matched, q.Page, q.PageSize)

	if rankings == nil {
		if rankings, err = c.RankingsFor(ctx, packageIDs(page.Items)); err != nil {
			return browse.Page[Row]{}, err
		}
	}

	rows := make([]Row, len(page.Items))
	for i, d := range page.Items {
		rows[i] = Row{Dataset: d, Ranking: rankings[d.PackageID]}
	}
	return browse.Page[Row]{
		Items: rows,
		Page:  page.Page,
		Pages: page.Pages,
		Size:  page.Size,
		Total: page.Total,
		Start: page.Start,
		End:   page.End,
	}, nil
}

func packageIDs(datasets []*schema.Dataset) []string {
	ids := make([]string, len(datasets))
	for i, d := range datasets {
		ids[i] = d.PackageID
	}
	return ids
}
