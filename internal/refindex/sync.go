package refindex

import (
	"log/slog"
	"time"

	"github.com/starford/ehwaz/internal/checksum"
	"github.com/starford/ehwaz/internal/docio"
	"github.com/starford/ehwaz/internal/workspace"
)

// Sync walks the workspace and brings the index up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
func Sync(db *DB, store workspace.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, m.Stamp, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile extracts the reference edges from data and upserts them.
func indexFile(db *DB, path, stamp string, data []byte) error {
	refs, err := docio.ExtractRefs(path, data)
	if err != nil {
		return err
	}
	row := DocRow{
		Path:      path,
		Checksum:  checksum.Sum(data),
		Stamp:     stamp,
		UpdatedAt: time.Now().UTC(),
	}
	return db.UpsertDocument(row, refs)
}
