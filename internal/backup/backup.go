package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fitundfun/ffbackup/internal/archive"
	"github.com/fitundfun/ffbackup/internal/blob"
	"github.com/fitundfun/ffbackup/internal/db"
)

// ErrStoreUnavailable means a store could not be reached at all; no
// snapshot is produced.
var ErrStoreUnavailable = errors.New("store unavailable")

// Producer reads every configured table and bucket into a Snapshot.
// Failures of single tables, listings or files are logged and left out;
// only an unreachable store fails the whole run.
type Producer struct {
	Tables      db.Store
	Blobs       blob.Store
	Log         zerolog.Logger
	Concurrency int
	Now         func() time.Time
}

// Snapshot is the in-memory content of one archive.
type Snapshot struct {
	Manifest archive.Manifest
	Tables   []archive.Table
	Blobs    []archive.Blob
}

type Stats struct {
	Tables int
	Rows   int
	Files  int
	Bytes  int64
}

// Filename is the download name offered for an archive made at now.
func Filename(now time.Time) string {
	return fmt.Sprintf("fitundfun-backup-%s.zip", now.UTC().Format("2006-01-02"))
}

func (p *Producer) Produce(ctx context.Context, tables, buckets []string, createdBy string) (*Snapshot, error) {
	if err := p.Tables.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, p.Tables.Name(), err)
	}
	if err := p.Blobs.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, p.Blobs.Name(), err)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	snap := &Snapshot{Manifest: archive.NewManifest(createdBy, now())}

	for _, table := range tables {
		rows, err := p.Tables.SelectAll(ctx, table)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.Log.Warn().Err(err).Str("table", table).Msg("table export failed")
			continue
		}
		snap.Tables = append(snap.Tables, archive.Table{Name: table, Rows: rows})
		snap.Manifest.Tables = append(snap.Manifest.Tables, table)
		p.Log.Debug().Str("table", table).Int("rows", len(rows)).Msg("table exported")
	}

	for _, bucket := range buckets {
		files, err := p.exportBucket(ctx, bucket)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}
		snap.Blobs = append(snap.Blobs, files...)
		snap.Manifest.StorageBuckets = append(snap.Manifest.StorageBuckets, bucket)
		p.Log.Debug().Str("bucket", bucket).Int("files", len(files)).Msg("bucket exported")
	}
	return snap, nil
}

// exportBucket downloads every file of bucket in listing order. Only a
// cancelled context is returned as an error.
func (p *Producer) exportBucket(ctx context.Context, bucket string) ([]archive.Blob, error) {
	paths, err := blob.Walk(ctx, p.Blobs, bucket, func(prefix string, err error) {
		p.Log.Warn().Err(err).Str("bucket", bucket).Str("path", prefix).Msg("listing failed")
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.Log.Warn().Err(err).Str("bucket", bucket).Msg("bucket export failed")
		return nil, nil
	}

	results := make([]*archive.Blob, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	limit := p.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, path := range paths {
		i, path := i, path
		if _, ok := archive.CleanPath(path); !ok {
			p.Log.Warn().Str("bucket", bucket).Str("path", path).Msg("skipping unsafe path")
			continue
		}
		g.Go(func() error {
			data, err := p.Blobs.Download(gctx, bucket, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.Log.Warn().Err(err).Str("bucket", bucket).Str("path", path).Msg("file export failed")
				return nil
			}
			results[i] = &archive.Blob{Bucket: bucket, Path: path, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]archive.Blob, 0, len(results))
	for _, b := range results {
		if b != nil {
			out = append(out, *b)
		}
	}
	return out, nil
}

// Encode writes the snapshot as an archive.
func (s *Snapshot) Encode(w io.Writer) error {
	return archive.Encode(w, s.Manifest, s.Tables, s.Blobs)
}

func (s *Snapshot) EncodeBytes() ([]byte, error) {
	return archive.EncodeBytes(s.Manifest, s.Tables, s.Blobs)
}

func (s *Snapshot) Stats() Stats {
	st := Stats{Tables: len(s.Tables), Files: len(s.Blobs)}
	for _, t := range s.Tables {
		st.Rows += len(t.Rows)
	}
	for _, b := range s.Blobs {
		st.Bytes += int64(len(b.Data))
	}
	return st
}
