package util

import (
	"path"
	"strings"
	"time"
)

// ArchivePrefix names downloaded and stored archives.
const ArchivePrefix = "fitundfun-backup-"

// ArchiveFilename is the attachment name offered for a download made on day
// when, e.g. fitundfun-backup-2025-03-01.zip.
func ArchiveFilename(when time.Time) string {
	return ArchivePrefix + when.UTC().Format("2006-01-02") + ".zip"
}

// BuildArchiveKey constructs the storage key for an archive. Keys carry a
// full timestamp so several backups per day do not collide.
func BuildArchiveKey(prefix string, when time.Time, encrypted bool) string {
	name := ArchivePrefix + when.UTC().Format("2006-01-02T150405Z") + ".zip"
	if encrypted {
		name += ".enc"
	}
	if p := strings.Trim(prefix, "/"); p != "" {
		return path.Join(p, name)
	}
	return name
}

// BuildPrefix builds the listing prefix for archives.
func BuildPrefix(prefix string) string {
	return strings.Trim(prefix, "/")
}

// IsArchiveKey reports whether key looks like an archive written by BuildArchiveKey.
func IsArchiveKey(key string) bool {
	base := path.Base(key)
	return strings.HasPrefix(base, ArchivePrefix) && (strings.HasSuffix(base, ".zip") || strings.HasSuffix(base, ".zip.enc"))
}
