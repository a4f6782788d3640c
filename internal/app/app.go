package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fitundfun/ffbackup/internal/archive"
	"github.com/fitundfun/ffbackup/internal/backup"
	"github.com/fitundfun/ffbackup/internal/blob"
	"github.com/fitundfun/ffbackup/internal/config"
	"github.com/fitundfun/ffbackup/internal/cryptoutil"
	"github.com/fitundfun/ffbackup/internal/db"
	"github.com/fitundfun/ffbackup/internal/lock"
	"github.com/fitundfun/ffbackup/internal/logging"
	"github.com/fitundfun/ffbackup/internal/metrics"
	"github.com/fitundfun/ffbackup/internal/notify"
	"github.com/fitundfun/ffbackup/internal/restore"
	"github.com/fitundfun/ffbackup/internal/storage"
	"github.com/fitundfun/ffbackup/internal/util"
	"github.com/fitundfun/ffbackup/internal/version"
)

// ErrBusy is returned when this process is already running a backup or
// restore.
var ErrBusy = errors.New("a backup or restore is already running")

const (
	statusSuccess = "success"
	statusPartial = "partial"
	statusFailed  = "failed"
)

type App struct {
	Cfg      *config.Config
	Tables   db.Store
	Blobs    blob.Store
	Storage  storage.Storage
	Log      zerolog.Logger
	Notifier notify.Notifier
	Metrics  *metrics.Collector
	Now      func() time.Time

	mu sync.Mutex
}

func New(cfg *config.Config, tables db.Store, blobs blob.Store, store storage.Storage, log zerolog.Logger, notifier notify.Notifier, m *metrics.Collector) *App {
	return &App{Cfg: cfg, Tables: tables, Blobs: blobs, Storage: store, Log: log, Notifier: notifier, Metrics: m}
}

type BackupResult struct {
	Manifest archive.Manifest `json:"manifest" yaml:"manifest"`
	Key      string           `json:"key" yaml:"key"`
	Size     int64            `json:"size" yaml:"size"`
	Stats    backup.Stats     `json:"stats" yaml:"stats"`
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) producer() *backup.Producer {
	return &backup.Producer{
		Tables:      a.Tables,
		Blobs:       a.Blobs,
		Log:         logging.Component(a.Log, "backup"),
		Concurrency: a.Cfg.Backup.Concurrency,
		Now:         a.Now,
	}
}

func (a *App) restorer() *restore.Restorer {
	return &restore.Restorer{
		Tables:      a.Tables,
		Blobs:       a.Blobs,
		Log:         logging.Component(a.Log, "restore"),
		Buckets:     a.Cfg.Backup.Buckets,
		Concurrency: a.Cfg.Restore.Concurrency,
	}
}

// DefaultRestoreOptions are the configured options used when a caller
// passes none.
func (a *App) DefaultRestoreOptions() restore.Options {
	return restore.Options{
		RestoreData:    a.Cfg.Restore.RestoreData,
		RestoreStorage: a.Cfg.Restore.RestoreStorage,
		ClearExisting:  a.Cfg.Restore.ClearExisting,
	}
}

// guard serialises operations inside this process. With hostLock set the
// host-wide file lock is taken as well.
func (a *App) guard(ctx context.Context, hostLock bool) (func(), error) {
	if !a.mu.TryLock() {
		return nil, ErrBusy
	}
	if !hostLock {
		return a.mu.Unlock, nil
	}
	l, err := lock.Acquire(ctx, a.Cfg.Global.LockFile, 0)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	return func() {
		_ = l.Release()
		a.mu.Unlock()
	}, nil
}

// Export produces an archive in memory for a download.
func (a *App) Export(ctx context.Context, createdBy string) ([]byte, string, error) {
	start := time.Now()
	ev := notify.Event{Type: "backup", Source: "http", CreatedBy: createdBy, StartedAt: start}
	var size int64
	var opErr error
	defer func() { a.finishBackup(ev, size, opErr) }()

	release, err := a.guard(ctx, false)
	if err != nil {
		opErr = err
		return nil, "", err
	}
	defer release()

	snap, err := a.producer().Produce(ctx, a.Cfg.Backup.Tables, a.Cfg.Backup.Buckets, createdBy)
	if err != nil {
		opErr = err
		return nil, "", err
	}
	data, err := snap.EncodeBytes()
	if err != nil {
		opErr = err
		return nil, "", err
	}
	st := snap.Stats()
	ev.Tables, ev.Files = st.Tables, st.Files
	size = int64(len(data))
	return data, backup.Filename(a.now()), nil
}

// Import restores an uploaded archive.
func (a *App) Import(ctx context.Context, data []byte, opts restore.Options) (*restore.Report, error) {
	start := time.Now()
	release, err := a.guard(ctx, false)
	if err != nil {
		a.finishRestore(notify.Event{Type: "restore", Source: "http", StartedAt: start}, nil, err)
		return nil, err
	}
	defer release()

	rep, err := a.restorer().Restore(ctx, data, opts)
	a.finishRestore(notify.Event{Type: "restore", Source: "http", StartedAt: start}, rep, err)
	return rep, err
}

// Backup produces an archive and stores it under a timestamped key.
func (a *App) Backup(ctx context.Context) (*BackupResult, error) {
	start := time.Now()
	ev := notify.Event{Type: "backup", Source: "cli", CreatedBy: a.Cfg.Backup.CreatedBy, StartedAt: start}
	var size int64
	var opErr error
	defer func() { a.finishBackup(ev, size, opErr) }()

	release, err := a.guard(ctx, true)
	if err != nil {
		opErr = err
		return nil, err
	}
	defer release()

	var sealKey []byte
	if a.Cfg.Backup.Encryption {
		if a.Cfg.Backup.EncryptionKey == "" {
			opErr = fmt.Errorf("encryption is enabled but encryption_key is empty")
			return nil, opErr
		}
		if sealKey, err = cryptoutil.ParseKey(a.Cfg.Backup.EncryptionKey); err != nil {
			opErr = err
			return nil, err
		}
	}

	key := util.BuildArchiveKey(a.Cfg.Storage.Prefix, a.now(), a.Cfg.Backup.Encryption)
	ev.Key = key
	if a.Cfg.Backup.Idempotent {
		exists, err := a.Storage.Exists(ctx, key)
		if err != nil {
			opErr = err
			return nil, err
		}
		if exists {
			opErr = fmt.Errorf("backup already exists: %s", key)
			return nil, opErr
		}
	}

	snap, err := a.producer().Produce(ctx, a.Cfg.Backup.Tables, a.Cfg.Backup.Buckets, a.Cfg.Backup.CreatedBy)
	if err != nil {
		opErr = err
		return nil, err
	}
	payload, err := snap.EncodeBytes()
	if err != nil {
		opErr = err
		return nil, err
	}
	if sealKey != nil {
		if payload, err = cryptoutil.SealArchive(payload, sealKey); err != nil {
			opErr = err
			return nil, err
		}
	}

	st := snap.Stats()
	ev.Tables, ev.Files = st.Tables, st.Files
	meta := map[string]string{
		"ffbackup-created-by": snap.Manifest.CreatedBy,
		"ffbackup-tables":     strconv.Itoa(st.Tables),
		"ffbackup-files":      strconv.Itoa(st.Files),
		"ffbackup-version":    version.Version,
	}
	err = util.Retry(ctx, a.Cfg.Backup.RetryCount, a.Cfg.Backup.RetryBackoff, func(attempt int, err error) {
		a.Log.Warn().Err(err).Int("attempt", attempt).Str("key", key).Msg("archive upload failed, retrying")
	}, func() error {
		return a.Storage.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), meta)
	})
	if err != nil {
		opErr = fmt.Errorf("store archive %s: %w", key, err)
		return nil, opErr
	}
	size = int64(len(payload))

	if err := a.applyRetention(ctx, key); err != nil {
		a.Log.Warn().Err(err).Msg("retention failed")
	}
	return &BackupResult{Manifest: snap.Manifest, Key: key, Size: size, Stats: st}, nil
}

// Restore fetches a stored archive and restores it.
func (a *App) Restore(ctx context.Context, key string, opts restore.Options) (*restore.Report, error) {
	start := time.Now()
	ev := notify.Event{Type: "restore", Source: "cli", Key: key, StartedAt: start}
	release, err := a.guard(ctx, true)
	if err != nil {
		a.finishRestore(ev, nil, err)
		return nil, err
	}
	defer release()

	data, err := a.readArchive(ctx, key)
	if err != nil {
		a.finishRestore(ev, nil, err)
		return nil, err
	}
	rep, err := a.restorer().Restore(ctx, data, opts)
	a.finishRestore(ev, rep, err)
	return rep, err
}

// RestoreFile restores an archive from the local filesystem.
func (a *App) RestoreFile(ctx context.Context, path string, opts restore.Options) (*restore.Report, error) {
	start := time.Now()
	ev := notify.Event{Type: "restore", Source: "cli", Key: path, StartedAt: start}
	release, err := a.guard(ctx, true)
	if err != nil {
		a.finishRestore(ev, nil, err)
		return nil, err
	}
	defer release()

	data, err := os.ReadFile(path)
	if err == nil {
		data, err = a.unseal(path, data)
	}
	if err != nil {
		a.finishRestore(ev, nil, err)
		return nil, err
	}
	rep, err := a.restorer().Restore(ctx, data, opts)
	a.finishRestore(ev, rep, err)
	return rep, err
}

// List returns stored archives, newest first.
func (a *App) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	objects, err := a.Storage.List(ctx, util.BuildPrefix(a.Cfg.Storage.Prefix))
	if err != nil {
		return nil, err
	}
	archives := objects[:0]
	for _, obj := range objects {
		if util.IsArchiveKey(obj.Key) {
			archives = append(archives, obj)
		}
	}
	storage.SortNewestFirst(archives)
	return archives, nil
}

// Ping checks that both platform stores answer.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Tables.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", a.Tables.Name(), err)
	}
	if err := a.Blobs.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", a.Blobs.Name(), err)
	}
	return nil
}

// Validate checks that both stores and the archive storage are reachable.
func (a *App) Validate(ctx context.Context) error {
	if err := a.Ping(ctx); err != nil {
		return err
	}
	if _, err := a.Storage.List(ctx, util.BuildPrefix(a.Cfg.Storage.Prefix)); err != nil {
		return fmt.Errorf("archive storage: %w", err)
	}
	return nil
}

// Inspection summarises a stored archive without restoring it.
type Inspection struct {
	Key      string           `json:"key" yaml:"key"`
	Size     int64            `json:"size" yaml:"size"`
	Manifest archive.Manifest `json:"manifest" yaml:"manifest"`
	Rows     map[string]int   `json:"rows" yaml:"rows"`
	Files    map[string]int   `json:"files" yaml:"files"`
}

func (a *App) Inspect(ctx context.Context, key string) (*Inspection, error) {
	data, err := a.readArchive(ctx, key)
	if err != nil {
		return nil, err
	}
	return inspect(key, data)
}

// InspectFile is Inspect for an archive on the local filesystem.
func (a *App) InspectFile(path string) (*Inspection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if data, err = a.unseal(path, data); err != nil {
		return nil, err
	}
	return inspect(path, data)
}

func inspect(key string, data []byte) (*Inspection, error) {
	rd, err := archive.Decode(data)
	if err != nil {
		return nil, err
	}
	out := &Inspection{Key: key, Size: int64(len(data)), Manifest: rd.Manifest(), Rows: map[string]int{}, Files: map[string]int{}}
	for _, table := range out.Manifest.Tables {
		rows, found, err := rd.TableRows(table)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", archive.DataPath(table), err)
		}
		if found {
			out.Rows[table] = len(rows)
		}
	}
	for _, bucket := range out.Manifest.StorageBuckets {
		out.Files[bucket] = len(rd.BucketFiles(bucket))
	}
	return out, nil
}

func (a *App) readArchive(ctx context.Context, key string) ([]byte, error) {
	rc, err := a.Storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", key, err)
	}
	return a.unseal(key, data)
}

// unseal decrypts archives stored with the encrypted suffix.
func (a *App) unseal(name string, data []byte) ([]byte, error) {
	if !strings.HasSuffix(name, cryptoutil.EncryptedSuffix) {
		return data, nil
	}
	if a.Cfg.Backup.EncryptionKey == "" {
		return nil, fmt.Errorf("encryption key is required to read %s", name)
	}
	key, err := cryptoutil.ParseKey(a.Cfg.Backup.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return cryptoutil.OpenArchive(data, key)
}

func (a *App) finishBackup(ev notify.Event, size int64, opErr error) {
	ev.EndedAt = time.Now()
	took := ev.EndedAt.Sub(ev.StartedAt)
	ev.Duration = took.String()
	ev.Status = statusSuccess
	if opErr != nil {
		ev.Status = statusFailed
		ev.Error = opErr.Error()
		a.Log.Error().Err(opErr).Str("source", ev.Source).Msg("backup failed")
	} else {
		a.Log.Info().Str("source", ev.Source).Str("key", ev.Key).Int("tables", ev.Tables).Int("files", ev.Files).Int64("bytes", size).Dur("took", took).Msg("backup finished")
	}
	a.Metrics.ObserveBackup(ev.Status, took, size)
	a.notify(ev)
}

func (a *App) finishRestore(ev notify.Event, rep *restore.Report, opErr error) {
	ev.EndedAt = time.Now()
	took := ev.EndedAt.Sub(ev.StartedAt)
	ev.Duration = took.String()
	if rep != nil {
		ev.Tables, ev.Files, ev.Errors = len(rep.RestoredTables), len(rep.RestoredFiles), len(rep.Errors)
		ev.CreatedBy = rep.Manifest.CreatedBy
	}
	switch {
	case opErr != nil:
		ev.Status = statusFailed
		ev.Error = opErr.Error()
		a.Log.Error().Err(opErr).Str("source", ev.Source).Msg("restore failed")
	case rep != nil && !rep.OK():
		ev.Status = statusPartial
		a.Log.Warn().Str("source", ev.Source).Strs("errors", rep.Errors).Msg("restore finished with errors")
	default:
		ev.Status = statusSuccess
		a.Log.Info().Str("source", ev.Source).Int("tables", ev.Tables).Int("files", ev.Files).Dur("took", took).Msg("restore finished")
	}
	a.Metrics.ObserveRestore(ev.Status, took, ev.Tables, ev.Files, ev.Errors)
	a.notify(ev)
}

func (a *App) notify(ev notify.Event) {
	if a.Notifier == nil {
		return
	}
	if err := a.Notifier.Notify(context.Background(), ev); err != nil {
		a.Log.Warn().Err(err).Msg("notification failed")
	}
}
