package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/lineage/internal/filestore"
	"github.com/zjrosen/lineage/internal/log"
)

// FileStore implements filestore.Collaborator over the filepath table.
// Relative paths are resolved against baseDir; with an empty baseDir purge
// only removes rows and leaves payloads on disk.
type FileStore struct {
	db      *DB
	baseDir string
}

var _ filestore.Collaborator = (*FileStore)(nil)

// FileStore returns the file-storage collaborator rooted at baseDir.
func (db *DB) FileStore(baseDir string) *FileStore {
	return &FileStore{db: db, baseDir: baseDir}
}

// DetachFile removes every artifact link of the file and flags it as detached.
func (s *FileStore) DetachFile(ctx context.Context, fileID int64) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE filepath SET detached_at = COALESCE(detached_at, ?) WHERE id = ?`,
		time.Now().Unix(), fileID)
	if err != nil {
		return fmt.Errorf("failed to flag file %d: %w", fileID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d not found", fileID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM artifact_filepath WHERE filepath_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to unlink file %d: %w", fileID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	log.Info(log.CatFiles, "file detached", "file", fileID)
	return nil
}

// PurgeUnreferencedFiles deletes every file row no artifact links to and
// removes the payloads from disk. Directories are removed recursively.
func (s *FileStore) PurgeUnreferencedFiles(ctx context.Context) (filestore.PurgeResult, error) {
	var result filestore.PurgeResult

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT f.id, f.path FROM filepath f
		 WHERE NOT EXISTS (SELECT 1 FROM artifact_filepath af WHERE af.filepath_id = f.id)
		 ORDER BY f.id`)
	if err != nil {
		return result, fmt.Errorf("failed to list unreferenced files: %w", err)
	}
	type candidate struct {
		id   int64
		path string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.path); err != nil {
			_ = rows.Close()
			return result, fmt.Errorf("failed to scan file: %w", err)
		}
		candidates = append(candidates, c)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return result, err
	}

	for _, c := range candidates {
		// Re-check inside the delete so a file linked meanwhile survives.
		res, err := s.db.conn.ExecContext(ctx,
			`DELETE FROM filepath WHERE id = ?
			 AND NOT EXISTS (SELECT 1 FROM artifact_filepath WHERE filepath_id = ?)`, c.id, c.id)
		if err != nil {
			return result, fmt.Errorf("failed to delete file %d: %w", c.id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		result.Rows++

		if s.baseDir == "" {
			continue
		}
		path := s.resolve(c.path)
		size, err := removePayload(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			result.Missing = append(result.Missing, path)
		case err != nil:
			log.ErrorErr(log.CatFiles, "failed to remove payload", err, "path", path)
			return result, fmt.Errorf("remove %s: %w", path, err)
		default:
			result.Removed = append(result.Removed, path)
			result.BytesFreed += size
		}
	}

	log.Info(log.CatFiles, "purge complete", "rows", result.Rows, "removed", len(result.Removed), "bytes", result.BytesFreed)
	return result, nil
}

// Checksum returns the CRC32 of the payload at path, resolved against
// baseDir. With an empty baseDir there are no payloads to read.
func (s *FileStore) Checksum(path string) (string, error) {
	if s.baseDir == "" {
		return "", nil
	}
	return filestore.Checksum(s.resolve(path))
}

func (s *FileStore) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.baseDir, path)
}

func removePayload(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), os.Remove(path)
	}
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			if fi, err := d.Info(); err == nil {
				size += fi.Size()
			}
		}
		return nil
	})
	return size, os.RemoveAll(path)
}
