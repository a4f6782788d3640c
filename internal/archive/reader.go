package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Reader gives lazy access to the entries of a decoded archive.
type Reader struct {
	manifest Manifest
	files    map[string]*zip.File
	order    []string
}

// Decode parses an archive held in memory. Only the manifest is read
// eagerly; every other entry is decompressed on access.
func Decode(data []byte) (*Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	r := &Reader{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if _, dup := r.files[f.Name]; dup {
			continue
		}
		r.files[f.Name] = f
		r.order = append(r.order, f.Name)
	}

	if _, ok := r.files[ManifestName]; !ok {
		return nil, ErrMissingManifest
	}
	payload, err := r.ReadFile(ManifestName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	r.manifest, err = parseManifest(payload)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) Manifest() Manifest { return r.manifest }

// Names lists every entry in archive order.
func (r *Reader) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Reader) Has(name string) bool {
	_, ok := r.files[name]
	return ok
}

// Open returns a reader over the named entry's content.
func (r *Reader) Open(name string) (io.ReadCloser, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: not found in archive", name)
	}
	return f.Open()
}

func (r *Reader) ReadFile(name string) ([]byte, error) {
	rc, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// TableRows decodes data/<table>.json. A missing file is reported through
// found=false without an error. A document that is not a JSON array yields
// no rows. Numbers are kept as json.Number so that ids and counters round
// trip without float conversion.
func (r *Reader) TableRows(table string) (rows []map[string]any, found bool, err error) {
	name := DataPath(table)
	if !r.Has(name) {
		return nil, false, nil
	}
	rc, err := r.Open(name)
	if err != nil {
		return nil, true, err
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", name, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, true, fmt.Errorf("parse %s: trailing data after document", name)
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, true, nil
	}
	rows = make([]map[string]any, 0, len(items))
	for i, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, true, fmt.Errorf("parse %s: row %d is not an object", name, i)
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

// BucketFiles lists the archive entries stored under a bucket by prefix
// match over the file index; directory metadata is not relied upon.
func (r *Reader) BucketFiles(bucket string) []string {
	prefix := BucketPrefix(bucket)
	var out []string
	for _, name := range r.order {
		if !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, "/") {
			continue
		}
		if _, ok := CleanPath(strings.TrimPrefix(name, prefix)); !ok {
			continue
		}
		out = append(out, name)
	}
	return out
}
