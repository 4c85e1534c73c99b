package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExport_JSONRoundTrip(t *testing.T) {
	f := newFixture(t, exampleDatasets, exampleResources)
	ctx := context.Background()
	if res := f.importer.Import(ctx, f.opts); !res.OK {
		t.Fatal(res)
	}

	out := filepath.Join(f.dir, "export")
	result, err := Export(ctx, f.store, ExportOptions{Format: FormatJSON, Dir: out})
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if len(result.Files) != 2 || result.Datasets != 1 || result.Resources != 1 {
		t.Errorf("result = %+v", result)
	}

	// The export is itself a valid snapshot
	g := newFixture(t, "", "")
	res := g.importer.Import(ctx, Options{
		DatasetsPath:  filepath.Join(out, "datasets.json"),
		ResourcesPath: filepath.Join(out, "resources.json"),
	})
	if !res.OK {
		t.Fatalf("re-import failed: %s", res)
	}
	if r, _ := g.store.MaxRanking(ctx, "x"); r != 2 {
		t.Errorf("ranking after round trip = %d, want 2", r)
	}
}

func TestExport_CSV(t *testing.T) {
	f := newFixture(t, exampleDatasets, exampleResources)
	ctx := context.Background()
	if res := f.importer.Import(ctx, f.opts); !res.OK {
		t.Fatal(res)
	}

	out := filepath.Join(f.dir, "csv")
	if _, err := Export(ctx, f.store, ExportOptions{Format: FormatCSV, Dir: out}); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(out, "datasets.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header + 1", len(lines))
	}
	if !strings.HasPrefix(lines[0], "package_id,title,organization") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "x,T,O,u,1,CSV") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestExport_YAML(t *testing.T) {
	f := newFixture(t, exampleDatasets, exampleResources)
	ctx := context.Background()
	if res := f.importer.Import(ctx, f.opts); !res.OK {
		t.Fatal(res)
	}

	out := filepath.Join(f.dir, "yaml")
	if _, err := Export(ctx, f.store, ExportOptions{Format: FormatYAML, Dir: out}); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "catalog.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"datasets:", "package_id: x", "resources:", "file_name: f.csv", "ranking: 2"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("yaml missing %q:\n%s", want, data)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, "csv": FormatCSV, "yaml": FormatYAML, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) succeeded")
	}
}

func TestCompare(t *testing.T) {
	f := newFixture(t, exampleDatasets, exampleResources)
	ctx := context.Background()

	c, err := Compare(ctx, f.store, f.opts)
	if err != nil {
		t.Fatalf("Compare() failed: %v", err)
	}
	if !c.DatasetsFilePresent || !c.ResourcesFilePresent {
		t.Errorf("presence = %v/%v", c.DatasetsFilePresent, c.ResourcesFilePresent)
	}
	if c.SnapshotDatasets != 1 || c.StoreDatasets != 0 || c.InSync() || !c.Stale() {
		t.Errorf("before import: %+v", c)
	}

	if res := f.importer.Import(ctx, f.opts); !res.OK {
		t.Fatal(res)
	}
	c, err = Compare(ctx, f.store, f.opts)
	if err != nil {
		t.Fatal(err)
	}
	if !c.InSync() || c.Stale() || c.LastImport == "" {
		t.Errorf("after import: %+v", c)
	}
}

func TestCompare_MissingFiles(t *testing.T) {
	f := newFixture(t, "", "")
	c, err := Compare(context.Background(), f.store, f.opts)
	if err != nil {
		t.Fatal(err)
	}
	if c.DatasetsFilePresent || c.SnapshotDatasets != -1 || c.Stale() {
		t.Errorf("comparison = %+v", c)
	}
}
