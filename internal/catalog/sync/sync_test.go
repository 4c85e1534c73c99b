package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/remote"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// fakeCatalog serves package_show from an in-memory map
type fakeCatalog struct {
	mu       stdsync.Mutex
	packages map[string]map[string]any
	calls    int
}

func (f *fakeCatalog) set(id string, pkg map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[id] = pkg
}

func (f *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls++
	pkg, ok := f.packages[r.URL.Query().Get("id")]
	f.mu.Unlock()

	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": map[string]any{"message": "Not found"}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": pkg})
}

func pkgWith(title string, resources ...map[string]any) map[string]any {
	list := make([]any, len(resources))
	for i, r := range resources {
		list[i] = r
	}
	return map[string]any{
		"title":             title,
		"url":               "",
		"metadata_modified": "2024-05-01T08:00:00",
		"organization":      map[string]any{"title": "Pollution Control Department"},
		"resources":         list,
	}
}

func res(name, format, description string) map[string]any {
	return map[string]any{"name": name, "format": format, "url": "https://files/" + name, "description": description}
}

type testEnv struct {
	store     *db.DB
	catalog   *fakeCatalog
	refresher Refresher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "sync.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	fc := &fakeCatalog{packages: map[string]map[string]any{}}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	client, err := remote.New(srv.URL, "test-token")
	if err != nil {
		t.Fatal(err)
	}

	return &testEnv{
		store:     store,
		catalog:   fc,
		refresher: New(store, client, log.New(io.Discard, "", 0)),
	}
}

func TestRefresh_WritesDatasetAndResources(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.catalog.set("abc", pkgWith("Air quality", res("a.csv", "csv", ""), res("b.xlsx", "xlsx", ""), res("c.csv", "CSV", "")))

	status := env.refresher.Refresh(ctx, "abc")
	if !status.OK {
		t.Fatalf("Refresh() failed: %s", status)
	}
	if !strings.HasPrefix(status.String(), "✅") {
		t.Errorf("String() = %q", status.String())
	}

	d, err := env.store.GetDataset(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if d.Title != "Air quality" || d.Organization != "Pollution Control Department" {
		t.Errorf("dataset = %+v", d)
	}
	if d.ResourceCount != 3 || d.FileTypes != "CSV, XLSX" {
		t.Errorf("derived fields = %d %q", d.ResourceCount, d.FileTypes)
	}
	if d.URL != "https://files/a.csv" {
		t.Errorf("URL = %q, want first resource url fallback", d.URL)
	}
	if d.LastUpdated != "2024-05-01T08:00:00" {
		t.Errorf("LastUpdated = %q", d.LastUpdated)
	}
}

func TestRefresh_PreservesRankingByFileName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.store.ReplaceResources(ctx, "d", []*schema.Resource{
		{FileName: "a.csv", Format: "CSV", Description: "old", Ranking: 3},
	}); err != nil {
		t.Fatal(err)
	}

	env.catalog.set("d", pkgWith("D", res("a.csv", "csv", "new description")))
	if status := env.refresher.Refresh(ctx, "d"); !status.OK || status.Preserved != 1 {
		t.Fatalf("Refresh() = %+v", status)
	}
	got, _ := env.store.GetResourcesFor(ctx, "d")
	if len(got) != 1 || got[0].Ranking != 3 || got[0].Description != "new description" {
		t.Errorf("after same-name refresh: %+v", got)
	}

	env.catalog.set("d", pkgWith("D", res("a_v2.csv", "csv", "")))
	if status := env.refresher.Refresh(ctx, "d"); !status.OK {
		t.Fatalf("Refresh() failed: %s", status)
	}
	got, _ = env.store.GetResourcesFor(ctx, "d")
	if len(got) != 1 || got[0].FileName != "a_v2.csv" || got[0].Ranking != 0 {
		t.Errorf("after rename refresh: %+v", got)
	}
}

func TestRefresh_SuccessFalse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.store.UpsertDataset(ctx, &schema.Dataset{PackageID: "gone", Title: "kept"}); err != nil {
		t.Fatal(err)
	}

	status := env.refresher.Refresh(ctx, "gone")
	if status.OK {
		t.Fatal("Refresh() succeeded on success=false")
	}
	if !errors.Is(status.Err, catalog.ErrRemote) {
		t.Errorf("Err = %v, want ErrRemote", status.Err)
	}
	if !strings.HasPrefix(status.String(), "❌") {
		t.Errorf("String() = %q", status.String())
	}

	d, err := env.store.GetDataset(ctx, "gone")
	if err != nil || d.Title != "kept" {
		t.Errorf("local copy changed after failed refresh: %+v, %v", d, err)
	}
	if s := env.refresher.Stats(); s.Failed != 1 || s.Refreshed != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestRefresh_UnknownDataset(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success": false, "error": {"__type": "Not Found Error", "message": "Not found"}}`)
	}))
	defer srv.Close()

	client, err := remote.New(srv.URL, "test-token")
	if err != nil {
		t.Fatal(err)
	}
	r := New(env.store, client, log.New(io.Discard, "", 0))

	status := r.Refresh(context.Background(), "no-such-dataset")
	if status.OK {
		t.Fatal("Refresh() succeeded for an unknown dataset")
	}
	if !errors.Is(status.Err, catalog.ErrNotFound) {
		t.Errorf("Err = %v, want ErrNotFound", status.Err)
	}
	if got := catalog.Kind(status.Err); got != "not_found" {
		t.Errorf("Kind() = %q, want not_found", got)
	}
	if n, _ := env.store.CountDatasets(context.Background()); n != 0 {
		t.Errorf("CountDatasets() = %d, want 0", n)
	}
}

func TestRefresh_NoFetcher(t *testing.T) {
	env := newTestEnv(t)
	r := New(env.store, nil, log.New(io.Discard, "", 0))

	status := r.Refresh(context.Background(), "abc")
	if status.OK || !errors.Is(status.Err, catalog.ErrUnavailable) {
		t.Errorf("status = %+v, want ErrUnavailable", status)
	}
}

func TestRefresh_EmptyID(t *testing.T) {
	env := newTestEnv(t)
	status := env.refresher.Refresh(context.Background(), "  ")
	if status.OK || !errors.Is(status.Err, catalog.ErrParse) {
		t.Errorf("status = %+v, want ErrParse", status)
	}
}

func TestRefresh_Timeout(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "timeout.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, _ := remote.New(srv.URL, "tok", remote.WithTimeout(50*time.Millisecond))
	r := New(store, client, log.New(io.Discard, "", 0))

	status := r.Refresh(context.Background(), "slow")
	if status.OK {
		t.Fatal("Refresh() succeeded against a hung server")
	}
	if !errors.Is(status.Err, catalog.ErrTimeout) || !errors.Is(status.Err, catalog.ErrRemote) {
		t.Errorf("Err = %v, want ErrTimeout", status.Err)
	}
}

// stubFetcher counts concurrent calls per id
type stubFetcher struct {
	mu       stdsync.Mutex
	inFlight map[string]int
	maxSeen  int
}

func (s *stubFetcher) PackageShow(ctx context.Context, id string) (*remote.Package, error) {
	s.mu.Lock()
	s.inFlight[id]++
	if s.inFlight[id] > s.maxSeen {
		s.maxSeen = s.inFlight[id]
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.inFlight[id]--
	s.mu.Unlock()

	return &remote.Package{Title: id, Resources: []remote.PackageResource{{Name: "a.csv", Format: "csv"}}}, nil
}

func TestRefresh_SameIDSerialized(t *testing.T) {
	env := newTestEnv(t)
	stub := &stubFetcher{inFlight: map[string]int{}}
	r := New(env.store, stub, log.New(io.Discard, "", 0))

	var wg stdsync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if status := r.Refresh(context.Background(), "same"); !status.OK {
				t.Errorf("Refresh() failed: %s", status)
			}
		}()
	}
	wg.Wait()

	if stub.maxSeen != 1 {
		t.Errorf("max concurrent refreshes of one id = %d, want 1", stub.maxSeen)
	}
	if n, _ := env.store.CountResources(context.Background()); n != 1 {
		t.Errorf("resources = %d, want 1", n)
	}
}

func TestRefreshMany(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("p%d", i)
		env.catalog.set(id, pkgWith(id, res(id+".csv", "csv", "")))
	}

	ids := []string{"p0", "p1", "missing", "p2", "p3", "p4"}
	statuses := env.refresher.RefreshMany(context.Background(), ids, 3)
	if len(statuses) != len(ids) {
		t.Fatalf("len = %d", len(statuses))
	}
	for i, s := range statuses {
		if s.PackageID != ids[i] {
			t.Errorf("statuses[%d].PackageID = %q, want %q", i, s.PackageID, ids[i])
		}
		if wantOK := ids[i] != "missing"; s.OK != wantOK {
			t.Errorf("%s OK = %v, want %v", ids[i], s.OK, wantOK)
		}
	}
	if n, _ := env.store.CountDatasets(context.Background()); n != 5 {
		t.Errorf("datasets = %d, want 5", n)
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := keyedMutex{locks: make(map[string]*keyedEntry)}
	unlock := k.Lock("a")
	if len(k.locks) != 1 {
		t.Errorf("locks = %d, want 1", len(k.locks))
	}
	unlock()
	if len(k.locks) != 0 {
		t.Errorf("locks = %d after unlock, want 0", len(k.locks))
	}
}
