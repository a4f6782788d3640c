package restore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fitundfun/ffbackup/internal/archive"
	"github.com/fitundfun/ffbackup/internal/blob"
	"github.com/fitundfun/ffbackup/internal/db"
	"github.com/fitundfun/ffbackup/internal/schema"
)

var ErrStoreUnavailable = errors.New("store unavailable")

// TableOrder is the order tables are written in: parents before the rows
// that reference them.
var TableOrder = schema.RestoreOrder

// Restorer writes an archive back into the stores. Every table and file is
// an independent unit: a failing unit is reported and the rest continue.
type Restorer struct {
	Tables      db.Store
	Blobs       blob.Store
	Log         zerolog.Logger
	Buckets     []string
	Concurrency int
}

// Restore applies data to the stores. Only an unreadable archive, an
// unreachable store or a cancelled context are returned as errors; the
// report carries everything else.
func (r *Restorer) Restore(ctx context.Context, data []byte, opts Options) (*Report, error) {
	rd, err := archive.Decode(data)
	if err != nil {
		return nil, err
	}
	if opts.RestoreData {
		if err := r.Tables.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, r.Tables.Name(), err)
		}
	}
	if opts.RestoreStorage {
		if err := r.Blobs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, r.Blobs.Name(), err)
		}
	}

	rep := newReport(rd.Manifest())
	if opts.RestoreData {
		r.restoreTables(ctx, rd, opts, rep)
	}
	if opts.RestoreStorage {
		if err := r.restoreBuckets(ctx, rd, opts, rep); err != nil {
			return rep, err
		}
	}
	return rep, ctx.Err()
}

func (r *Restorer) restoreTables(ctx context.Context, rd *archive.Reader, opts Options, rep *Report) {
	for _, table := range TableOrder {
		if ctx.Err() != nil {
			return
		}
		rows, found, err := rd.TableRows(table)
		if !found {
			continue
		}
		if err != nil {
			rep.addError("restore %s: %v", table, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}

		if opts.ClearExisting {
			if err := r.Tables.Delete(ctx, table, db.All()); err != nil {
				r.Log.Warn().Err(err).Str("table", table).Msg("clear failed")
				rep.addError("delete %s: %v", table, err)
			}
		}
		if err := r.Tables.Upsert(ctx, table, rows, schema.PrimaryKey); err != nil {
			r.Log.Warn().Err(err).Str("table", table).Msg("table restore failed")
			rep.addError("restore %s: %v", table, err)
			continue
		}
		r.Log.Debug().Str("table", table).Int("rows", len(rows)).Msg("table restored")
		rep.addTable(table)
	}
}

func (r *Restorer) buckets() []string {
	if len(r.Buckets) > 0 {
		return r.Buckets
	}
	return schema.Buckets
}

func (r *Restorer) restoreBuckets(ctx context.Context, rd *archive.Reader, opts Options, rep *Report) error {
	for _, bucket := range r.buckets() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.ClearExisting {
			if err := r.clearBucket(ctx, bucket); err != nil {
				r.Log.Warn().Err(err).Str("bucket", bucket).Msg("clear failed")
				rep.addError("clear bucket %s: %v", bucket, err)
			}
		}
		if err := r.uploadBucket(ctx, rd, bucket, rep); err != nil {
			return err
		}
	}
	return nil
}

// clearBucket removes every file currently in bucket, directories included
// through their contents.
func (r *Restorer) clearBucket(ctx context.Context, bucket string) error {
	var listErr error
	files, err := blob.Walk(ctx, r.Blobs, bucket, func(prefix string, err error) {
		if listErr == nil {
			listErr = fmt.Errorf("list %s: %w", prefix, err)
		}
	})
	if err != nil {
		return err
	}
	if len(files) > 0 {
		if err := r.Blobs.Remove(ctx, bucket, files); err != nil {
			return err
		}
	}
	return listErr
}

type uploadResult struct {
	path string
	err  string
}

func (r *Restorer) uploadBucket(ctx context.Context, rd *archive.Reader, bucket string, rep *Report) error {
	names := rd.BucketFiles(bucket)
	if len(names) == 0 {
		return nil
	}
	prefix := archive.BucketPrefix(bucket)
	results := make([]uploadResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	limit := r.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, name := range names {
		i, name := i, name
		rel, _ := archive.CleanPath(strings.TrimPrefix(name, prefix))
		results[i].path = rel
		g.Go(func() error {
			data, err := rd.ReadFile(name)
			if err != nil {
				results[i].err = fmt.Sprintf("read %s: %v", name, err)
				return nil
			}
			if err := r.Blobs.Upload(gctx, bucket, rel, data, ContentType(rel), true); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.Log.Warn().Err(err).Str("bucket", bucket).Str("path", rel).Msg("file restore failed")
				results[i].err = fmt.Sprintf("upload %s/%s: %v", bucket, rel, err)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	for _, res := range results {
		if res.err != "" {
			rep.Errors = append(rep.Errors, res.err)
			continue
		}
		if waitErr != nil {
			break
		}
		rep.addFile(bucket, res.path)
	}
	return waitErr
}
