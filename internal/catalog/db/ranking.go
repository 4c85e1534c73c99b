package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// maxParams keeps IN (...) lists well below SQLite's bound parameter limit.
const maxParams = 500

// SetResourceRanking sets the ranking of every resource of datasetID and
// returns the number of rows changed. A dataset without resources changes
// nothing and is not an error.
func (db *DB) SetResourceRanking(ctx context.Context, datasetID string, ranking int) (int64, error) {
	if err := schema.ValidateRanking(ranking); err != nil {
		return 0, fmt.Errorf("%w: %w", catalog.ErrParse, err)
	}

	conn, err := db.handle()
	if err != nil {
		return 0, err
	}

	res, err := conn.ExecContext(ctx, `UPDATE resources SET ranking = ? WHERE dataset_id = ?`, ranking, datasetID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to update ranking of %s: %w", catalog.ErrStorage, datasetID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read affected rows: %w", catalog.ErrStorage, err)
	}
	return n, nil
}

// MaxRanking returns the highest ranking among the dataset's resources, or 0
// when it has none.
func (db *DB) MaxRanking(ctx context.Context, datasetID string) (int, error) {
	conn, err := db.handle()
	if err != nil {
		return 0, err
	}

	var ranking int
	err = conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ranking), 0) FROM resources WHERE dataset_id = ?`, datasetID).Scan(&ranking)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to query ranking of %s: %w", catalog.ErrStorage, datasetID, err)
	}
	return ranking, nil
}

// MaxRankings returns MaxRanking for every id using one grouped query per
// chunk of ids. Ids without resources map to 0. Every requested id is a key
// of the result.
func (db *DB) MaxRankings(ctx context.Context, datasetIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(datasetIDs))
	unique := make([]string, 0, len(datasetIDs))
	for _, id := range datasetIDs {
		if _, ok := result[id]; !ok {
			result[id] = 0
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return result, nil
	}

	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(unique); start += maxParams {
		end := min(start+maxParams, len(unique))
		chunk := unique[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := `SELECT dataset_id, MAX(ranking) FROM resources WHERE dataset_id IN (` +
			placeholders + `) GROUP BY dataset_id`

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to query rankings: %w", catalog.ErrStorage, err)
		}
		for rows.Next() {
			var id string
			var ranking int
			if err := rows.Scan(&id, &ranking); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: failed to scan ranking: %w", catalog.ErrStorage, err)
			}
			result[id] = ranking
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: error iterating rankings: %w", catalog.ErrStorage, err)
		}
	}

	return result, nil
}
