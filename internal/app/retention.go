package app

import (
	"context"

	"github.com/fitundfun/ffbackup/internal/storage"
)

// applyRetention prunes stored archives. An archive survives if any rule
// keeps it: among the newest KeepLast, younger than KeepDays, or while the
// total stays within MaxBytes. Under MaxBytes the oldest archives go first.
// The archive just written is never removed.
func (a *App) applyRetention(ctx context.Context, current string) error {
	policy := a.Cfg.Backup.Retention
	if policy.KeepDays == 0 && policy.KeepLast == 0 && policy.MaxBytes == 0 {
		return nil
	}
	archives, err := a.List(ctx)
	if err != nil {
		return err
	}

	cutoff := a.now().AddDate(0, 0, -policy.KeepDays)
	var total int64
	for _, obj := range archives {
		total += obj.Size
	}
	// archives is newest first; the size cap trims from the oldest end.
	var removed []storage.ObjectInfo
	for i := len(archives) - 1; i >= 0; i-- {
		obj := archives[i]
		if obj.Key == current {
			continue
		}
		if policy.KeepLast > 0 && i < policy.KeepLast {
			continue
		}
		if policy.KeepDays > 0 && obj.Modified.After(cutoff) {
			continue
		}
		if policy.MaxBytes > 0 && total <= policy.MaxBytes {
			break
		}
		if err := a.Storage.Delete(ctx, obj.Key); err != nil {
			a.Log.Warn().Err(err).Str("key", obj.Key).Msg("could not remove old archive")
			continue
		}
		total -= obj.Size
		removed = append(removed, obj)
	}
	if len(removed) > 0 {
		a.Log.Info().Int("removed", len(removed)).Msg("retention applied")
	}
	return nil
}
