package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opendatath/catalog/internal/catalog"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDatasetValidate(t *testing.T) {
	if err := (&Dataset{PackageID: "abc"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := (&Dataset{Title: "no id"}).Validate(); err == nil {
		t.Error("Validate() accepted dataset without package_id")
	}
	if err := (&Dataset{PackageID: "abc", ResourceCount: -1}).Validate(); err == nil {
		t.Error("Validate() accepted negative resource_count")
	}
}

func TestResourceValidate(t *testing.T) {
	if err := (&Resource{DatasetID: "abc", Ranking: 4}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := (&Resource{FileName: "a.csv"}).Validate(); err == nil {
		t.Error("Validate() accepted resource without dataset_id")
	}
	for _, r := range []int{-1, 5} {
		if err := (&Resource{DatasetID: "abc", Ranking: r}).Validate(); err == nil {
			t.Errorf("Validate() accepted ranking %d", r)
		}
	}
}

func TestDeriveFileTypes(t *testing.T) {
	resources := []*Resource{
		{Format: "xlsx"},
		{Format: "CSV"},
		{Format: " csv "},
		{Format: ""},
		{Format: "pdf"},
	}
	if got, want := DeriveFileTypes(resources), "CSV, PDF, XLSX"; got != want {
		t.Errorf("DeriveFileTypes() = %q, want %q", got, want)
	}
	if got := DeriveFileTypes(nil); got != "" {
		t.Errorf("DeriveFileTypes(nil) = %q, want empty", got)
	}
}

func TestDatasetFileTypeList(t *testing.T) {
	d := &Dataset{FileTypes: "CSV, PDF,XLSX"}
	got := d.FileTypeList()
	if len(got) != 3 || got[0] != "CSV" || got[2] != "XLSX" {
		t.Errorf("FileTypeList() = %v", got)
	}
	if !d.HasFileType("pdf") {
		t.Error("HasFileType(pdf) = false, want true")
	}
	if d.HasFileType("json") {
		t.Error("HasFileType(json) = true, want false")
	}
}

func TestReadDatasets(t *testing.T) {
	path := writeFile(t, "datasets.json", `[
		{"package_id": "abc", "title": "T", "organization": "O", "url": "u",
		 "resource_count": 2, "file_types": "CSV", "last_updated": "2024-01-01"},
		{"package_id": "def", "title": null, "resource_count": 1.0}
	]`)

	datasets, err := ReadDatasets(path)
	if err != nil {
		t.Fatalf("ReadDatasets() failed: %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("len = %d, want 2", len(datasets))
	}
	if datasets[0].PackageID != "abc" || datasets[0].ResourceCount != 2 {
		t.Errorf("datasets[0] = %+v", datasets[0])
	}
	if datasets[1].ResourceCount != 1 {
		t.Errorf("datasets[1].ResourceCount = %d, want 1", datasets[1].ResourceCount)
	}
}

func TestReadDatasets_MissingPackageID(t *testing.T) {
	path := writeFile(t, "datasets.json", `[{"title": "no id"}]`)
	_, err := ReadDatasets(path)
	if !errors.Is(err, catalog.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestReadDatasets_NotArray(t *testing.T) {
	path := writeFile(t, "datasets.json", `{"package_id": "abc"}`)
	_, err := ReadDatasets(path)
	if !errors.Is(err, catalog.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestReadDatasets_MissingFile(t *testing.T) {
	_, err := ReadDatasets(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReadResources(t *testing.T) {
	path := writeFile(t, "resources.json", `[
		{"dataset_id": "abc", "file_name": "a.csv", "format": "csv", "url": "", "ranking": 2},
		{"dataset_id": "abc", "file_name": "b.pdf", "format": "pdf"},
		{"dataset_id": "def", "file_name": "c.xlsx", "format": "xlsx"}
	]`)

	resources, err := ReadResources(path, map[string]int{"def": 3})
	if err != nil {
		t.Fatalf("ReadResources() failed: %v", err)
	}
	if len(resources) != 3 {
		t.Fatalf("len = %d, want 3", len(resources))
	}
	if resources[0].Format != "CSV" || resources[0].Ranking != 2 {
		t.Errorf("resources[0] = %+v", resources[0])
	}
	if resources[1].Ranking != 0 {
		t.Errorf("resources[1].Ranking = %d, want default 0", resources[1].Ranking)
	}
	if resources[2].Ranking != 3 {
		t.Errorf("resources[2].Ranking = %d, want fallback 3", resources[2].Ranking)
	}
}

func TestReadResources_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing dataset_id": `[{"file_name": "a.csv"}]`,
		"ranking too high":   `[{"dataset_id": "abc", "ranking": 7}]`,
		"fractional ranking": `[{"dataset_id": "abc", "ranking": 1.5}]`,
		"malformed":          `[{"dataset_id": "abc",`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "resources.json", content)
			if _, err := ReadResources(path, nil); !errors.Is(err, catalog.ErrParse) {
				t.Errorf("err = %v, want ErrParse", err)
			}
		})
	}
}

func TestReadRankings(t *testing.T) {
	path := writeFile(t, "rankings.json", `{"abc": 3, "def": 0}`)
	rankings, err := ReadRankings(path)
	if err != nil {
		t.Fatalf("ReadRankings() failed: %v", err)
	}
	if rankings["abc"] != 3 || len(rankings) != 2 {
		t.Errorf("rankings = %v", rankings)
	}

	bad := writeFile(t, "bad.json", `{"abc": 9}`)
	if _, err := ReadRankings(bad); !errors.Is(err, catalog.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestWriteThenReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	dsPath := filepath.Join(dir, "out", "datasets.json")
	resPath := filepath.Join(dir, "out", "resources.json")

	datasets := []*Dataset{{PackageID: "abc", Title: "Air", ResourceCount: 1, FileTypes: "CSV"}}
	resources := []*Resource{{DatasetID: "abc", FileName: "a.csv", Format: "CSV", Ranking: 4}}

	if err := WriteDatasets(dsPath, datasets); err != nil {
		t.Fatalf("WriteDatasets() failed: %v", err)
	}
	if err := WriteResources(resPath, resources); err != nil {
		t.Fatalf("WriteResources() failed: %v", err)
	}

	gotDS, err := ReadDatasets(dsPath)
	if err != nil {
		t.Fatalf("ReadDatasets() failed: %v", err)
	}
	gotRes, err := ReadResources(resPath, nil)
	if err != nil {
		t.Fatalf("ReadResources() failed: %v", err)
	}
	if *gotDS[0] != *datasets[0] {
		t.Errorf("dataset = %+v, want %+v", gotDS[0], datasets[0])
	}
	if *gotRes[0] != *resources[0] {
		t.Errorf("resource = %+v, want %+v", gotRes[0], resources[0])
	}
}

func TestFingerprint(t *testing.T) {
	a := writeFile(t, "a.json", `[1]`)
	b := writeFile(t, "b.json", `[2]`)

	f1, err := Fingerprint(a, b)
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}
	f2, _ := Fingerprint(a, b)
	if f1 != f2 {
		t.Error("Fingerprint() not stable")
	}

	if err := os.WriteFile(b, []byte(`[3]`), 0644); err != nil {
		t.Fatal(err)
	}
	f3, _ := Fingerprint(a, b)
	if f3 == f1 {
		t.Error("Fingerprint() unchanged after edit")
	}

	if _, err := Fingerprint(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGroupByDataset(t *testing.T) {
	keys, groups := GroupByDataset([]*Resource{
		{DatasetID: "b", FileName: "1"},
		{DatasetID: "a", FileName: "2"},
		{DatasetID: "b", FileName: "3"},
	})
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("keys = %v", keys)
	}
	if len(groups["b"]) != 2 || groups["b"][1].FileName != "3" {
		t.Errorf("groups[b] = %v", groups["b"])
	}
}
