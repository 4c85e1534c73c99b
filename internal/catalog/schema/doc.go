// Package schema defines the Dataset and Resource records and the JSON
// snapshot files they are exchanged through.
//
// # Snapshot Files
//
// A snapshot is a pair of JSON arrays produced by the offline crawl:
//
//	datasets.json
//	[
//	  {
//	    "package_id": "abc",
//	    "title": "Air quality",
//	    "organization": "Pollution Control Department",
//	    "url": "https://data.go.th/dataset/abc",
//	    "resource_count": 2,
//	    "file_types": "CSV, XLSX",
//	    "last_updated": "2024-03-01T10:00:00"
//	  }
//	]
//
//	resources.json
//	[
//	  {"dataset_id": "abc", "file_name": "a.csv", "format": "csv", "url": "", "ranking": 2}
//	]
//
// An optional rankings.json maps dataset ids to a ranking used for resources
// whose record carries no "ranking" key:
//
//	{"abc": 3}
//
// # Validation
//
// package_id and dataset_id are required; ranking must lie in 0..4. Formats
// are uppercased on read. Violations are reported as catalog.ErrParse and a
// missing file as catalog.ErrNotFound.
//
// # Derived Fields
//
// Dataset.FileTypes is the sorted, deduplicated set of uppercase resource
// formats joined with ", ":
//
//	schema.DeriveFileTypes(resources) // "CSV, PDF, XLSX"
package schema
