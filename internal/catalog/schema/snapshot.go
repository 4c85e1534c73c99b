package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/opendatath/catalog/internal/catalog"
)

// Snapshot files mirror the store's tables as JSON arrays. Records are decoded
// through the raw* types so that absent keys can be told apart from zero values.

type rawDataset struct {
	PackageID     *string     `json:"package_id"`
	Title         string      `json:"title"`
	Organization  string      `json:"organization"`
	URL           string      `json:"url"`
	ResourceCount json.Number `json:"resource_count"`
	FileTypes     string      `json:"file_types"`
	LastUpdated   string      `json:"last_updated"`
}

type rawResource struct {
	DatasetID   *string      `json:"dataset_id"`
	FileName    string       `json:"file_name"`
	Format      string       `json:"format"`
	URL         string       `json:"url"`
	Description string       `json:"description"`
	Ranking     *json.Number `json:"ranking"`
}

// ReadDatasets reads and validates a datasets snapshot file.
//
// A missing file yields catalog.ErrNotFound. Malformed JSON, a top-level value
// that is not an array, or a record without package_id yields catalog.ErrParse.
func ReadDatasets(path string) ([]*Dataset, error) {
	data, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}

	var raws []*rawDataset
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: failed to parse datasets file %s: %w", catalog.ErrParse, path, err)
	}

	datasets := make([]*Dataset, 0, len(raws))
	for i, raw := range raws {
		if raw == nil || raw.PackageID == nil {
			return nil, fmt.Errorf("%w: datasets file %s: record %d: package_id is required", catalog.ErrParse, path, i)
		}
		count, err := wholeNumber(raw.ResourceCount)
		if err != nil {
			return nil, fmt.Errorf("%w: datasets file %s: record %d: resource_count: %w", catalog.ErrParse, path, i, err)
		}
		d := &Dataset{
			PackageID:     *raw.PackageID,
			Title:         raw.Title,
			Organization:  raw.Organization,
			URL:           raw.URL,
			ResourceCount: count,
			FileTypes:     raw.FileTypes,
			LastUpdated:   raw.LastUpdated,
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: datasets file %s: record %d: %w", catalog.ErrParse, path, i, err)
		}
		datasets = append(datasets, d)
	}

	return datasets, nil
}

// ReadResources reads and validates a resources snapshot file.
//
// Records without a "ranking" key take fallback[dataset_id], or 0 when the
// dataset is absent from fallback. fallback may be nil.
func ReadResources(path string, fallback map[string]int) ([]*Resource, error) {
	data, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}

	var raws []*rawResource
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: failed to parse resources file %s: %w", catalog.ErrParse, path, err)
	}

	resources := make([]*Resource, 0, len(raws))
	for i, raw := range raws {
		if raw == nil || raw.DatasetID == nil {
			return nil, fmt.Errorf("%w: resources file %s: record %d: dataset_id is required", catalog.ErrParse, path, i)
		}

		ranking := fallback[*raw.DatasetID]
		if raw.Ranking != nil {
			ranking, err = wholeNumber(*raw.Ranking)
			if err != nil {
				return nil, fmt.Errorf("%w: resources file %s: record %d: ranking: %w", catalog.ErrParse, path, i, err)
			}
		}

		r := &Resource{
			DatasetID:   *raw.DatasetID,
			FileName:    raw.FileName,
			Format:      raw.Format,
			URL:         raw.URL,
			Description: raw.Description,
			Ranking:     ranking,
		}
		r.Normalize()
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: resources file %s: record %d: %w", catalog.ErrParse, path, i, err)
		}
		resources = append(resources, r)
	}

	return resources, nil
}

// ReadRankings reads an optional {dataset_id: ranking} overlay file.
func ReadRankings(path string) (map[string]int, error) {
	data, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse rankings file %s: %w", catalog.ErrParse, path, err)
	}

	rankings := make(map[string]int, len(raw))
	for id, n := range raw {
		v, err := wholeNumber(n)
		if err == nil {
			err = ValidateRanking(v)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: rankings file %s: dataset %s: %w", catalog.ErrParse, path, id, err)
		}
		rankings[id] = v
	}
	return rankings, nil
}

// WriteDatasets writes datasets as a pretty-printed JSON array, atomically.
func WriteDatasets(path string, datasets []*Dataset) error {
	if datasets == nil {
		datasets = []*Dataset{}
	}
	return writeSnapshot(path, datasets)
}

// WriteResources writes resources as a pretty-printed JSON array, atomically.
func WriteResources(path string, resources []*Resource) error {
	if resources == nil {
		resources = []*Resource{}
	}
	return writeSnapshot(path, resources)
}

// Fingerprint returns a hex SHA-256 digest over the contents of the given
// files, in order. It changes whenever any byte of any file changes.
func Fingerprint(paths ...string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		// #nosec G304 - snapshot paths come from configuration
		f, err := os.Open(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("%w: snapshot file %s", catalog.ErrNotFound, p)
			}
			return "", fmt.Errorf("failed to open %s: %w", p, err)
		}
		_, err = io.Copy(h, f)
		_ = f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", p, err)
		}
		// Separator so that moving bytes between files changes the digest
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func readSnapshot(path string) ([]byte, error) {
	// #nosec G304 - snapshot paths come from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot file %s", catalog.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", path, err)
	}
	return data, nil
}

func writeSnapshot(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write atomically via temp file
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

// wholeNumber accepts integral JSON numbers, including ones written as 2.0.
// An empty number (absent key) is 0.
func wholeNumber(n json.Number) (int, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", n.String())
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not a whole number: %s", n.String())
	}
	return int(f), nil
}
