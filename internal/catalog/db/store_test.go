package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// testDB opens a fresh store in a temp dir and closes it on cleanup
func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleDataset(id string) *schema.Dataset {
	return &schema.Dataset{
		PackageID:     id,
		Title:         "Dataset " + id,
		Organization:  "Office of " + id,
		URL:           "https://data.go.th/dataset/" + id,
		ResourceCount: 2,
		FileTypes:     "CSV, PDF",
		LastUpdated:   "2024-03-01T10:00:00",
	}
}

func sampleResources(id string, ranking int) []*schema.Resource {
	return []*schema.Resource{
		{DatasetID: id, FileName: "a.csv", Format: "csv", URL: "https://x/a.csv", Ranking: ranking},
		{DatasetID: id, FileName: "b.pdf", Format: "PDF", Description: "report", Ranking: ranking},
	}
}

func TestOpen_CreatesTables(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"datasets", "resources", "sync_meta"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.RawDB().QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := testDB(t)
	if err := db.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Errorf("third InitSchema() failed: %v", err)
	}
}

func TestUpsertDataset_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	d := sampleDataset("abc")
	for i := 0; i < 3; i++ {
		if err := db.UpsertDataset(ctx, d); err != nil {
			t.Fatalf("UpsertDataset() #%d failed: %v", i, err)
		}
	}

	count, err := db.CountDatasets(ctx)
	if err != nil {
		t.Fatalf("CountDatasets() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	got, err := db.GetDataset(ctx, "abc")
	if err != nil {
		t.Fatalf("GetDataset() failed: %v", err)
	}
	if *got != *d {
		t.Errorf("got %+v, want %+v", got, d)
	}
}

func TestUpsertDataset_ReplacesAllAttributes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertDataset(ctx, sampleDataset("abc")); err != nil {
		t.Fatal(err)
	}
	updated := &schema.Dataset{PackageID: "abc", Title: "New title"}
	if err := db.UpsertDataset(ctx, updated); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetDataset(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if *got != *updated {
		t.Errorf("got %+v, want full replacement %+v", got, updated)
	}
}

func TestUpsertDataset_MissingPackageID(t *testing.T) {
	db := testDB(t)
	err := db.UpsertDataset(context.Background(), &schema.Dataset{Title: "orphan"})
	if !errors.Is(err, catalog.ErrStorage) {
		t.Errorf("err = %v, want ErrStorage", err)
	}
}

func TestGetDataset_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetDataset(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReplaceResources(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.ReplaceResources(ctx, "abc", sampleResources("abc", 1)); err != nil {
		t.Fatalf("ReplaceResources() failed: %v", err)
	}
	got, err := db.GetResourcesFor(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Format != "CSV" {
		t.Errorf("format = %q, want uppercased CSV", got[0].Format)
	}
	if got[1].Description != "report" {
		t.Errorf("description = %q", got[1].Description)
	}

	replacement := []*schema.Resource{{FileName: "c.json", Format: "json"}}
	if err := db.ReplaceResources(ctx, "abc", replacement); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetResourcesFor(ctx, "abc")
	if len(got) != 1 || got[0].FileName != "c.json" || got[0].DatasetID != "abc" {
		t.Errorf("after replace: %+v", got)
	}
}

func TestReplaceResources_OrphanIsStored(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	orphans := []*schema.Resource{{DatasetID: "ghost", FileName: "a.csv", Format: "csv", Ranking: 2}}
	if err := db.ReplaceResources(ctx, "ghost", orphans); err != nil {
		t.Fatalf("ReplaceResources() for a dataset that was never upserted failed: %v", err)
	}

	got, err := db.GetResourcesFor(ctx, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].FileName != "a.csv" {
		t.Fatalf("resources = %+v", got)
	}
	if r, err := db.MaxRanking(ctx, "ghost"); err != nil || r != 2 {
		t.Errorf("MaxRanking() = %d, %v, want 2", r, err)
	}
	if _, err := db.GetDataset(ctx, "ghost"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("GetDataset() err = %v, want ErrNotFound", err)
	}
}

func TestReplaceResources_LeavesInputUnchanged(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	in := []*schema.Resource{{FileName: "a.csv", Format: "csv"}}
	if err := db.ReplaceResources(ctx, "abc", in); err != nil {
		t.Fatal(err)
	}
	if in[0].DatasetID != "" {
		t.Errorf("DatasetID = %q, want caller's record untouched", in[0].DatasetID)
	}
	if in[0].Format != "csv" {
		t.Errorf("Format = %q, want caller's record untouched", in[0].Format)
	}
}

func TestReplaceResources_EmptyMeansRankingZero(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.ReplaceResources(ctx, "abc", sampleResources("abc", 3)); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceResources(ctx, "abc", nil); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetResourcesFor(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
	ranking, err := db.MaxRanking(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if ranking != 0 {
		t.Errorf("MaxRanking() = %d, want 0", ranking)
	}
}

func TestReplaceResources_InvalidLeavesRowsUntouched(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.ReplaceResources(ctx, "abc", sampleResources("abc", 2)); err != nil {
		t.Fatal(err)
	}
	bad := []*schema.Resource{{DatasetID: "abc", FileName: "x", Ranking: 9}}
	if err := db.ReplaceResources(ctx, "abc", bad); !errors.Is(err, catalog.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	mismatch := []*schema.Resource{{DatasetID: "other", FileName: "x"}}
	if err := db.ReplaceResources(ctx, "abc", mismatch); !errors.Is(err, catalog.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}

	got, _ := db.GetResourcesFor(ctx, "abc")
	if len(got) != 2 {
		t.Errorf("len = %d, want original 2", len(got))
	}
}

func TestGetResourcesFor_Unknown(t *testing.T) {
	db := testDB(t)
	got, err := db.GetResourcesFor(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestSetResourceRanking_Uniform(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.ReplaceResources(ctx, "abc", sampleResources("abc", 1)); err != nil {
		t.Fatal(err)
	}
	n, err := db.SetResourceRanking(ctx, "abc", 4)
	if err != nil {
		t.Fatalf("SetResourceRanking() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	got, _ := db.GetResourcesFor(ctx, "abc")
	for _, r := range got {
		if r.Ranking != 4 {
			t.Errorf("%s ranking = %d, want 4", r.FileName, r.Ranking)
		}
	}
	if r, _ := db.MaxRanking(ctx, "abc"); r != 4 {
		t.Errorf("MaxRanking() = %d, want 4", r)
	}
}

func TestSetResourceRanking_OutOfRange(t *testing.T) {
	db := testDB(t)
	if _, err := db.SetResourceRanking(context.Background(), "abc", 5); !errors.Is(err, catalog.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestMaxRankings_MatchesSingle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("ds-%d", i)
		res := []*schema.Resource{
			{DatasetID: id, FileName: "low", Ranking: 0},
			{DatasetID: id, FileName: "high", Ranking: i % 5},
		}
		if err := db.ReplaceResources(ctx, id, res); err != nil {
			t.Fatal(err)
		}
	}

	ids := []string{"ds-0", "ds-1", "ds-2", "ds-3", "ds-4", "missing", "ds-3"}
	batch, err := db.MaxRankings(ctx, ids)
	if err != nil {
		t.Fatalf("MaxRankings() failed: %v", err)
	}
	if len(batch) != 6 {
		t.Errorf("len = %d, want 6 unique ids", len(batch))
	}
	for _, id := range ids {
		single, err := db.MaxRanking(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if batch[id] != single {
			t.Errorf("batch[%s] = %d, single = %d", id, batch[id], single)
		}
	}
}

func TestMaxRankings_Chunked(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ids := make([]string, 0, maxParams*2+7)
	for i := 0; i < cap(ids); i++ {
		ids = append(ids, fmt.Sprintf("id-%04d", i))
	}
	last := ids[len(ids)-1]
	if err := db.ReplaceResources(ctx, last, []*schema.Resource{{FileName: "x", Ranking: 3}}); err != nil {
		t.Fatal(err)
	}

	got, err := db.MaxRankings(ctx, ids)
	if err != nil {
		t.Fatalf("MaxRankings() failed: %v", err)
	}
	if len(got) != len(ids) {
		t.Errorf("len = %d, want %d", len(got), len(ids))
	}
	if got[last] != 3 {
		t.Errorf("got[%s] = %d, want 3", last, got[last])
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertDataset(ctx, sampleDataset("abc")); err != nil {
			return err
		}
		if err := tx.ReplaceResources(ctx, "abc", sampleResources("abc", 2)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	if n, _ := db.CountDatasets(ctx); n != 0 {
		t.Errorf("datasets = %d, want 0 after rollback", n)
	}
	if n, _ := db.CountResources(ctx); n != 0 {
		t.Errorf("resources = %d, want 0 after rollback", n)
	}
}

func TestWithTx_Commits(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertDataset(ctx, sampleDataset("abc")); err != nil {
			return err
		}
		if err := tx.ReplaceResources(ctx, "abc", sampleResources("abc", 2)); err != nil {
			return err
		}
		got, err := tx.GetResourcesFor(ctx, "abc")
		if err != nil {
			return err
		}
		if len(got) != 2 {
			return fmt.Errorf("in-tx read saw %d resources", len(got))
		}
		return tx.SetMeta(ctx, "k", "v")
	})
	if err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}

	if n, _ := db.CountResources(ctx); n != 2 {
		t.Errorf("resources = %d, want 2", n)
	}
	if v, ok, _ := db.GetMeta(ctx, "k"); !ok || v != "v" {
		t.Errorf("meta k = %q (%v), want v", v, ok)
	}
}

func TestMeta(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetMeta(ctx, MetaSnapshotFingerprint); err != nil || ok {
		t.Fatalf("GetMeta() on empty = ok %v err %v", ok, err)
	}
	if err := db.SetMeta(ctx, MetaSnapshotFingerprint, "one"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMeta(ctx, MetaSnapshotFingerprint, "two"); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := db.GetMeta(ctx, MetaSnapshotFingerprint); v != "two" {
		t.Errorf("value = %q, want two", v)
	}
}

func TestWipe_DeletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe.sqlite")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := db.UpsertDataset(ctx, sampleDataset("abc")); err != nil {
		t.Fatal(err)
	}

	if err := db.Wipe(); err != nil {
		t.Fatalf("Wipe() failed: %v", err)
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists", p)
		}
	}

	if _, err := db.CountDatasets(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("err after wipe = %v, want ErrClosed", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() after Wipe() = %v", err)
	}
}

func TestRecreate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertDataset(ctx, sampleDataset("abc")); err != nil {
		t.Fatal(err)
	}
	if err := db.Recreate(ctx); err != nil {
		t.Fatalf("Recreate() failed: %v", err)
	}
	n, err := db.CountDatasets(ctx)
	if err != nil {
		t.Fatalf("CountDatasets() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestOpenOrRecreate_GarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.sqlite")
	junk := make([]byte, 8192)
	for i := range junk {
		junk[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, junk, 0644); err != nil {
		t.Fatal(err)
	}

	var logBuf bytes.Buffer
	db, err := OpenOrRecreate(context.Background(), path, log.New(&logBuf, "[db] ", 0))
	if err != nil {
		t.Fatalf("OpenOrRecreate() failed: %v", err)
	}
	defer db.Close()

	if n, err := db.CountDatasets(context.Background()); err != nil || n != 0 {
		t.Errorf("CountDatasets() = %d, %v", n, err)
	}
	if !strings.Contains(logBuf.String(), "[db] Warning: store "+path+" unusable") {
		t.Errorf("log = %q, want recreate warning", logBuf.String())
	}
}

func TestOpenOrRecreate_HealthyStoreKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.sqlite")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertDataset(ctx, sampleDataset("abc")); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	var logBuf bytes.Buffer
	db, err = OpenOrRecreate(ctx, path, log.New(&logBuf, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if n, _ := db.CountDatasets(ctx); n != 1 {
		t.Errorf("CountDatasets() = %d, want 1", n)
	}
	if logBuf.Len() != 0 {
		t.Errorf("unexpected log output: %q", logBuf.String())
	}
}

func TestConcurrentWriters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("ds-%d", i%5)
			errs <- db.WithTx(ctx, func(tx *Tx) error {
				if err := tx.UpsertDataset(ctx, sampleDataset(id)); err != nil {
					return err
				}
				return tx.ReplaceResources(ctx, id, sampleResources(id, i%5))
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent write failed: %v", err)
		}
	}
	if n, _ := db.CountDatasets(ctx); n != 5 {
		t.Errorf("datasets = %d, want 5", n)
	}
	if n, _ := db.CountResources(ctx); n != 10 {
		t.Errorf("resources = %d, want 10", n)
	}
}
