package archive

import (
	"encoding/json"
	"fmt"
	"time"
)

// FormatVersion is written into every manifest this package produces.
const FormatVersion = "1.0"

const (
	ManifestName  = "manifest.json"
	DataPrefix    = "data/"
	StoragePrefix = "storage/"
)

// Manifest describes the contents of one backup archive. Tables and
// StorageBuckets only name entries that were actually written.
type Manifest struct {
	Version        string    `json:"version" yaml:"version"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	CreatedBy      string    `json:"created_by" yaml:"created_by"`
	Tables         []string  `json:"tables" yaml:"tables"`
	StorageBuckets []string  `json:"storage_buckets" yaml:"storage_buckets"`
}

// NewManifest starts an empty manifest stamped with now.
func NewManifest(createdBy string, now time.Time) Manifest {
	if createdBy == "" {
		createdBy = "unknown"
	}
	return Manifest{
		Version:        FormatVersion,
		CreatedAt:      now.UTC(),
		CreatedBy:      createdBy,
		Tables:         []string{},
		StorageBuckets: []string{},
	}
}

// HasTable reports whether the manifest lists table.
func (m Manifest) HasTable(table string) bool {
	for _, t := range m.Tables {
		if t == table {
			return true
		}
	}
	return false
}

func (m Manifest) marshal() ([]byte, error) {
	if m.Tables == nil {
		m.Tables = []string{}
	}
	if m.StorageBuckets == nil {
		m.StorageBuckets = []string{}
	}
	return json.MarshalIndent(m, "", "  ")
}

func parseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: manifest.json: %v", ErrInvalidArchive, err)
	}
	return m, nil
}

// DataPath is the archive path holding a table's rows.
func DataPath(table string) string {
	return DataPrefix + table + ".json"
}

// BucketPrefix is the archive prefix under which a bucket's files live.
func BucketPrefix(bucket string) string {
	return StoragePrefix + bucket + "/"
}
