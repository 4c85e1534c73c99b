// Package schema provides the record types shared by the catalog store,
// the snapshot importer and the remote sync client.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// MinRanking and MaxRanking bound the curator-assigned quality ranking.
const (
	MinRanking = 0
	MaxRanking = 4
)

// FileTypesSeparator joins format codes in Dataset.FileTypes.
const FileTypesSeparator = ", "

// Dataset is one catalog entry, keyed by its globally unique PackageID.
// Re-inserting a dataset replaces every attribute.
type Dataset struct {
	PackageID    string `json:"package_id" yaml:"package_id" csv:"package_id"`
	Title        string `json:"title" yaml:"title" csv:"title"`
	Organization string `json:"organization" yaml:"organization" csv:"organization"`
	URL          string `json:"url" yaml:"url" csv:"url"`

	// Derived from the resource set; see DeriveFileTypes.
	ResourceCount int    `json:"resource_count" yaml:"resource_count" csv:"resource_count"`
	FileTypes     string `json:"file_types" yaml:"file_types" csv:"file_types"`

	// Free-form timestamp as published by the remote catalog. Not validated.
	LastUpdated string `json:"last_updated" yaml:"last_updated" csv:"last_updated"`
}

// Validate checks that the dataset can be stored.
func (d *Dataset) Validate() error {
	if d == nil {
		return fmt.Errorf("dataset is nil")
	}
	if strings.TrimSpace(d.PackageID) == "" {
		return fmt.Errorf("package_id is required")
	}
	if d.ResourceCount < 0 {
		return fmt.Errorf("resource_count must not be negative (got %d)", d.ResourceCount)
	}
	return nil
}

// FileTypeList splits FileTypes back into its format codes.
func (d *Dataset) FileTypeList() []string {
	if d.FileTypes == "" {
		return nil
	}
	parts := strings.Split(d.FileTypes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasFileType reports whether the dataset publishes the given format.
func (d *Dataset) HasFileType(format string) bool {
	want := NormalizeFormat(format)
	for _, ft := range d.FileTypeList() {
		if NormalizeFormat(ft) == want {
			return true
		}
	}
	return false
}

// NormalizeFormat uppercases a format code and strips surrounding space.
func NormalizeFormat(format string) string {
	return strings.ToUpper(strings.TrimSpace(format))
}

// DeriveFileTypes returns the deduplicated, sorted, uppercase format codes of
// the given resources joined with ", ". Empty formats are ignored.
func DeriveFileTypes(resources []*Resource) string {
	seen := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		if r == nil {
			continue
		}
		if f := NormalizeFormat(r.Format); f != "" {
			seen[f] = struct{}{}
		}
	}

	formats := make([]string, 0, len(seen))
	for f := range seen {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return strings.Join(formats, FileTypesSeparator)
}
