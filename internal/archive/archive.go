package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

var (
	ErrInvalidArchive  = errors.New("invalid backup archive")
	ErrMissingManifest = fmt.Errorf("%w: manifest.json missing", ErrInvalidArchive)
)

// Table is the snapshot of one table: its rows in store order.
type Table struct {
	Name string
	Rows []map[string]any
}

// Blob is one stored file. Path is relative to the bucket root.
type Blob struct {
	Bucket string
	Path   string
	Data   []byte
}

// Encode writes manifest, table snapshots and blobs as a zip container to w.
// Every table passed in gets a data file, so callers leave out tables that
// failed to export.
func Encode(w io.Writer, m Manifest, tables []Table, blobs []Blob) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	modified := m.CreatedAt
	if modified.IsZero() {
		modified = time.Now()
	}

	payload, err := m.marshal()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeEntry(zw, ManifestName, payload, modified); err != nil {
		return err
	}

	for _, t := range tables {
		if !validName(t.Name) {
			return fmt.Errorf("invalid table name %q", t.Name)
		}
		rows := t.Rows
		if rows == nil {
			rows = []map[string]any{}
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("encode table %s: %w", t.Name, err)
		}
		if err := writeEntry(zw, DataPath(t.Name), data, modified); err != nil {
			return err
		}
	}

	for _, b := range blobs {
		if !validName(b.Bucket) {
			return fmt.Errorf("invalid bucket name %q", b.Bucket)
		}
		rel, ok := CleanPath(b.Path)
		if !ok {
			return fmt.Errorf("invalid blob path %q in bucket %s", b.Path, b.Bucket)
		}
		if err := writeEntry(zw, BucketPrefix(b.Bucket)+rel, b.Data, modified); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

// EncodeBytes is Encode into memory.
func EncodeBytes(m Manifest, tables []Table, blobs []Blob) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, m, tables, blobs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// CleanPath normalizes a bucket-relative path and rejects anything that is
// empty, absolute, a directory, or escapes the bucket root.
func CleanPath(p string) (string, bool) {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return "", false
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/\\") && name != "." && name != ".."
}
