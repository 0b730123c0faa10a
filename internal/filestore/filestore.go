// Package filestore defines the file-storage collaborator used after a
// migration to release file references, plus the checksum used for files
// imported into the store.
package filestore

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"
)

// Collaborator manages on-disk artifact payloads. DetachFile and
// PurgeUnreferencedFiles run only after migration, never inside an analysis
// unit of work.
type Collaborator interface {
	// Checksum computes the checksum of a stored payload. It returns "" and
	// no error when payloads are not reachable from this host.
	Checksum(path string) (string, error)

	// DetachFile unlinks the file from every artifact without deleting it.
	DetachFile(ctx context.Context, fileID int64) error

	// PurgeUnreferencedFiles reclaims every file no artifact references.
	PurgeUnreferencedFiles(ctx context.Context) (PurgeResult, error)
}

// PurgeResult summarizes a purge: the file rows removed from the store and
// the payloads deleted from (or already missing on) disk.
type PurgeResult struct {
	Rows       int      `json:"rows"`
	Removed    []string `json:"removed"`
	Missing    []string `json:"missing"`
	BytesFreed int64    `json:"bytes_freed"`
}

// Checksum returns the CRC32 (IEEE) of the file content as a decimal string.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strconv.FormatUint(uint64(h.Sum32()), 10), nil
}
