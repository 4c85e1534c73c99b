package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"gopkg.in/yaml.v3"

	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json" // datasets.json + resources.json, re-importable
	FormatCSV  Format = "csv"  // datasets.csv + resources.csv
	FormatYAML Format = "yaml" // single catalog.yaml
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCSV, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json, csv or yaml)", s)
	}
}

// ExportOptions configures an export.
type ExportOptions struct {
	Format Format
	Dir    string // output directory, created if missing
}

// ExportResult lists what was written.
type ExportResult struct {
	Files     []string
	Datasets  int
	Resources int
}

// yamlCatalog is the document layout of a YAML export.
type yamlCatalog struct {
	Datasets  []*schema.Dataset  `yaml:"datasets"`
	Resources []*schema.Resource `yaml:"resources"`
}

// Export writes the full contents of the store to opts.Dir.
func Export(ctx context.Context, store *db.DB, opts ExportOptions) (*ExportResult, error) {
	datasets, err := store.GetAllDatasets(ctx)
	if err != nil {
		return nil, err
	}
	resources, err := store.GetAllResources(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	result := &ExportResult{Datasets: len(datasets), Resources: len(resources)}

	switch opts.Format {
	case FormatJSON, "":
		dsPath := filepath.Join(opts.Dir, "datasets.json")
		resPath := filepath.Join(opts.Dir, "resources.json")
		if err := schema.WriteDatasets(dsPath, datasets); err != nil {
			return nil, err
		}
		if err := schema.WriteResources(resPath, resources); err != nil {
			return nil, err
		}
		result.Files = []string{dsPath, resPath}

	case FormatCSV:
		dsPath := filepath.Join(opts.Dir, "datasets.csv")
		resPath := filepath.Join(opts.Dir, "resources.csv")
		if err := writeCSV(dsPath, derefAll(datasets)); err != nil {
			return nil, err
		}
		if err := writeCSV(resPath, derefAll(resources)); err != nil {
			return nil, err
		}
		result.Files = []string{dsPath, resPath}

	case FormatYAML:
		path := filepath.Join(opts.Dir, "catalog.yaml")
		data, err := yaml.Marshal(yamlCatalog{Datasets: datasets, Resources: resources})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal yaml: %w", err)
		}
		if err := writeAtomic(path, data); err != nil {
			return nil, err
		}
		result.Files = []string{path}

	default:
		return nil, fmt.Errorf("unknown export format %q", opts.Format)
	}

	return result, nil
}

func writeCSV[T any](path string, rows []T) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal csv %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, data)
}

func derefAll[T any](in []*T) []T {
	out := make([]T, len(in))
	for i, p := range in {
		out[i] = *p
	}
	return out
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
