// Package loadtest exercises the store and the ranking cache under the
// dashboard's access pattern: many concurrent readers fetching rankings for
// a page of datasets while curators write rankings.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/ranking"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// TestCatalog is a populated store for load testing.
type TestCatalog struct {
	DB                  *db.DB
	Cache               *ranking.Cache
	DatasetIDs          []string
	ResourcesPerDataset int
}

// LatencyStats summarizes operation latencies.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// Options configures Run.
type Options struct {
	Readers          int  // concurrent readers
	QueriesPerReader int  // ranking lookups per reader
	BatchSize        int  // dataset ids per lookup, like one dashboard page
	Writers          int  // concurrent ranking writers
	WritesPerWriter  int  // SetRanking calls per writer
	UseCache         bool // read through the ranking cache instead of the store
}

// DefaultOptions mirrors a busy dashboard.
func DefaultOptions() Options {
	return Options{
		Readers:          50,
		QueriesPerReader: 20,
		BatchSize:        20,
		Writers:          2,
		WritesPerWriter:  20,
		UseCache:         true,
	}
}

// Report holds the outcome of Run.
type Report struct {
	Reads   *LatencyStats
	Writes  *LatencyStats
	Elapsed time.Duration
}

var organizations = []string{
	"กรมอุตุนิยมวิทยา",
	"กระทรวงการคลัง",
	"สำนักงานสถิติแห่งชาติ",
	"มหาวิทยาลัยเชียงใหม่",
	"กรมควบคุมมลพิษ",
}

var formats = []string{"CSV", "XLSX", "JSON", "PDF", "XML"}

// CreateTestCatalog creates a store at dbPath with numDatasets datasets of
// resourcesPer resources each, rankings spread over 0..4.
func CreateTestCatalog(dbPath string, numDatasets, resourcesPer int) (*TestCatalog, error) {
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Room for every reader and writer at once
	database.RawDB().SetMaxOpenConns(150)
	database.RawDB().SetMaxIdleConns(50)
	database.RawDB().SetConnMaxLifetime(10 * time.Minute)

	cache, err := ranking.New(database, ranking.Config{Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	tc := &TestCatalog{
		DB:                  database,
		Cache:               cache,
		DatasetIDs:          make([]string, 0, numDatasets),
		ResourcesPerDataset: resourcesPer,
	}

	ctx := context.Background()
	err = database.WithTx(ctx, func(tx *db.Tx) error {
		for i := 0; i < numDatasets; i++ {
			d, rs := generateDataset(i, resourcesPer)
			if err := tx.UpsertDataset(ctx, d); err != nil {
				return err
			}
			if err := tx.ReplaceResources(ctx, d.PackageID, rs); err != nil {
				return err
			}
			tc.DatasetIDs = append(tc.DatasetIDs, d.PackageID)
		}
		return nil
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to populate store: %w", err)
	}
	return tc, nil
}

// Close closes the store.
func (tc *TestCatalog) Close() error {
	if tc.DB != nil {
		return tc.DB.Close()
	}
	return nil
}

func generateDataset(i, resourcesPer int) (*schema.Dataset, []*schema.Resource) {
	id := fmt.Sprintf("load-%05d", i)
	ranking := i % (schema.MaxRanking + 1)

	resources := make([]*schema.Resource, resourcesPer)
	for j := range resources {
		format := formats[(i+j)%len(formats)]
		resources[j] = &schema.Resource{
			DatasetID: id,
			FileName:  fmt.Sprintf("file-%d.%s", j, format),
			Format:    format,
			URL:       fmt.Sprintf("https://data.go.th/dataset/%s/resource/%d", id, j),
			Ranking:   ranking,
		}
	}

	return &schema.Dataset{
		PackageID:     id,
		Title:         fmt.Sprintf("Dataset %d", i),
		Organization:  organizations[i%len(organizations)],
		URL:           "https://data.go.th/dataset/" + id,
		ResourceCount: resourcesPer,
		FileTypes:     schema.DeriveFileTypes(resources),
		LastUpdated:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour).Format("2006-01-02T15:04:05"),
	}, resources
}

// Run drives readers and writers concurrently and reports their latencies.
func (tc *TestCatalog) Run(ctx context.Context, opts Options) (*Report, error) {
	if len(tc.DatasetIDs) == 0 {
		return nil, fmt.Errorf("test catalog is empty")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var reads, writes []time.Duration
	var readErrs, writeErrs int

	record := func(dst *[]time.Duration, errs *int, ds []time.Duration, failed int) {
		mu.Lock()
		*dst = append(*dst, ds...)
		*errs += failed
		mu.Unlock()
	}

	start := time.Now()
	for i := 0; i < opts.Readers; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(reader)))
			durations := make([]time.Duration, 0, opts.QueriesPerReader)
			failed := 0
			for j := 0; j < opts.QueriesPerReader && ctx.Err() == nil; j++ {
				ids := tc.batch(rng, opts.BatchSize)
				t0 := time.Now()
				var err error
				if opts.UseCache {
					_, err = tc.Cache.RankingsFor(ctx, ids)
				} else {
					_, err = tc.DB.MaxRankings(ctx, ids)
				}
				durations = append(durations, time.Since(t0))
				if err != nil {
					failed++
				}
			}
			record(&reads, &readErrs, durations, failed)
		}(i)
	}

	for i := 0; i < opts.Writers; i++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(1000 + writer)))
			durations := make([]time.Duration, 0, opts.WritesPerWriter)
			failed := 0
			for j := 0; j < opts.WritesPerWriter && ctx.Err() == nil; j++ {
				id := tc.DatasetIDs[rng.Intn(len(tc.DatasetIDs))]
				t0 := time.Now()
				ok := tc.Cache.SetRanking(ctx, id, rng.Intn(schema.MaxRanking+1))
				durations = append(durations, time.Since(t0))
				if !ok {
					failed++
				}
			}
			record(&writes, &writeErrs, durations, failed)
		}(i)
	}

	wg.Wait()

	if len(reads) == 0 && len(writes) == 0 {
		return nil, fmt.Errorf("no operations completed")
	}

	report := &Report{
		Reads:   computeLatencyStats(reads),
		Writes:  computeLatencyStats(writes),
		Elapsed: time.Since(start),
	}
	report.Reads.Errors = readErrs
	report.Writes.Errors = writeErrs
	return report, nil
}

func (tc *TestCatalog) batch(rng *rand.Rand, size int) []string {
	if size >= len(tc.DatasetIDs) {
		return tc.DatasetIDs
	}
	start := rng.Intn(len(tc.DatasetIDs) - size + 1)
	return tc.DatasetIDs[start : start+size]
}

// VerifyUniformRankings runs readers against concurrent ranking writes for
// duration and checks that every dataset's resources always share a single
// ranking in 0..4. A torn write would show two different values.
func (tc *TestCatalog) VerifyUniformRankings(numReaders int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(7))
		for ctx.Err() == nil {
			id := tc.DatasetIDs[rng.Intn(len(tc.DatasetIDs))]
			tc.Cache.SetRanking(ctx, id, rng.Intn(schema.MaxRanking+1))
		}
	}()

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(reader)))
			for ctx.Err() == nil {
				id := tc.DatasetIDs[rng.Intn(len(tc.DatasetIDs))]
				resources, err := tc.DB.GetResourcesFor(ctx, id)
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d: %w", reader, err)
					}
					return
				}
				for _, r := range resources {
					if r.Ranking != resources[0].Ranking || schema.ValidateRanking(r.Ranking) != nil {
						errorsChan <- fmt.Errorf("reader %d: dataset %s has mixed rankings", reader, id)
						return
					}
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)
	return <-errorsChan
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// WriteTo prints the statistics in a fixed layout.
func (s *LatencyStats) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w,
		"  Total:        %d\n  Errors:       %d\n  Min:          %v\n  P50 (Median): %v\n  Mean:         %v\n  P95:          %v\n  P99:          %v\n  Max:          %v\n",
		s.TotalQueries, s.Errors, s.Min, s.P50, s.Mean, s.P95, s.P99, s.Max)
	return int64(n), err
}
