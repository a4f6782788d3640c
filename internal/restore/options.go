package restore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fitundfun/ffbackup/internal/archive"
)

// Options select what a restore touches. They apply to every table and
// bucket of the call.
type Options struct {
	RestoreData    bool `json:"restore_data" yaml:"restore_data"`
	RestoreStorage bool `json:"restore_storage" yaml:"restore_storage"`
	ClearExisting  bool `json:"clear_existing" yaml:"clear_existing"`
}

func DefaultOptions() Options {
	return Options{RestoreData: true, RestoreStorage: true}
}

// ParseOptions reads options sent alongside an upload. Missing fields keep
// their defaults and input that does not parse yields the defaults.
func ParseOptions(raw []byte) Options {
	opts := DefaultOptions()
	if len(bytes.TrimSpace(raw)) == 0 {
		return opts
	}
	var in struct {
		RestoreData    *bool `json:"restore_data"`
		RestoreStorage *bool `json:"restore_storage"`
		ClearExisting  *bool `json:"clear_existing"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return DefaultOptions()
	}
	if in.RestoreData != nil {
		opts.RestoreData = *in.RestoreData
	}
	if in.RestoreStorage != nil {
		opts.RestoreStorage = *in.RestoreStorage
	}
	if in.ClearExisting != nil {
		opts.ClearExisting = *in.ClearExisting
	}
	return opts
}

// Report is the outcome of one restore. Entries are only ever appended, in
// the order the units were processed.
type Report struct {
	Manifest       archive.Manifest `json:"manifest" yaml:"manifest"`
	RestoredTables []string         `json:"restored_tables" yaml:"restored_tables"`
	RestoredFiles  []string         `json:"restored_files" yaml:"restored_files"`
	Errors         []string         `json:"errors" yaml:"errors"`
}

func newReport(m archive.Manifest) *Report {
	return &Report{
		Manifest:       m,
		RestoredTables: []string{},
		RestoredFiles:  []string{},
		Errors:         []string{},
	}
}

func (r *Report) addTable(table string) {
	r.RestoredTables = append(r.RestoredTables, table)
}

func (r *Report) addFile(bucket, path string) {
	r.RestoredFiles = append(r.RestoredFiles, bucket+"/"+path)
}

func (r *Report) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// OK reports whether every unit was restored.
func (r *Report) OK() bool { return len(r.Errors) == 0 }
