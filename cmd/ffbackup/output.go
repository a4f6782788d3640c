package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fitundfun/ffbackup/internal/app"
	"github.com/fitundfun/ffbackup/internal/restore"
)

func printResult(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func printReport(w io.Writer, rep *restore.Report) {
	m := rep.Manifest
	fmt.Fprintf(w, "archive: version %s, created %s by %s\n", m.Version, m.CreatedAt.Format("2006-01-02 15:04:05"), m.CreatedBy)
	fmt.Fprintf(w, "restored tables (%d):\n", len(rep.RestoredTables))
	for _, t := range rep.RestoredTables {
		fmt.Fprintf(w, "  %s\n", t)
	}
	fmt.Fprintf(w, "restored files: %d\n", len(rep.RestoredFiles))
	if len(rep.Errors) > 0 {
		fmt.Fprintf(w, "errors (%d):\n", len(rep.Errors))
		for _, e := range rep.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

func printInspection(w io.Writer, info *app.Inspection) {
	m := info.Manifest
	fmt.Fprintf(w, "%s (%d bytes)\n", info.Key, info.Size)
	fmt.Fprintf(w, "version %s, created %s by %s\n", m.Version, m.CreatedAt.Format("2006-01-02 15:04:05"), m.CreatedBy)
	for _, t := range m.Tables {
		fmt.Fprintf(w, "  table  %-22s %d rows\n", t, info.Rows[t])
	}
	buckets := append([]string(nil), m.StorageBuckets...)
	sort.Strings(buckets)
	for _, b := range buckets {
		fmt.Fprintf(w, "  bucket %-22s %d files\n", b, info.Files[b])
	}
}
