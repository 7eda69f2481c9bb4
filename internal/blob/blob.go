// Package blob stores uploaded raw files on the local filesystem, keyed
// by content fingerprint.
//
// The store keeps the original bytes so a citation's locator can always
// be traced back to the source file. Writes are atomic (temp file +
// rename) and guarded by a cross-process file lock via
// [github.com/gofrs/flock], so concurrent ingest processes sharing one
// blob directory never observe partial files.
package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrNotFound indicates no blob exists for the given fingerprint.
var ErrNotFound = errors.New("blob not found")

const lockRetryInterval = 25 * time.Millisecond

// Store is a content-addressed filesystem blob store.
// Safe for concurrent use within and across processes.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob directory is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory %q: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Ready reports whether the store's directory is still usable. The
// directory can disappear after startup (unmounted volume, cleanup job),
// at which point every Save degrades, so readiness probes call this.
func (s *Store) Ready(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("blob directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob path %q is not a directory", s.dir)
	}
	return nil
}

// path fans blobs out over two-character prefix directories so one flat
// directory never accumulates every file.
func (s *Store) path(fingerprint string) (string, error) {
	if len(fingerprint) < 2 {
		return "", fmt.Errorf("fingerprint %q too short", fingerprint)
	}
	return filepath.Join(s.dir, fingerprint[:2], fingerprint), nil
}

// Save writes the raw bytes under the content fingerprint and returns a
// locator for citation back-reference. Saving the same fingerprint twice
// is a no-op returning the existing locator.
func (s *Store) Save(ctx context.Context, fingerprint string, raw []byte) (string, error) {
	dst, err := s.path(fingerprint)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create blob subdirectory: %w", err)
	}

	lock := flock.New(dst + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return "", fmt.Errorf("lock blob %s: %w", fingerprint, err)
	}
	if !locked {
		return "", fmt.Errorf("lock blob %s: not acquired", fingerprint)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("blob unlock failed", "fingerprint", fingerprint, "error", err)
		}
	}()

	// Content-addressed: an existing file already holds these exact bytes.
	if _, err := os.Stat(dst); err == nil {
		return s.locator(fingerprint), nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+fingerprint+".tmp*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write blob %s: %w", fingerprint, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename blob %s: %w", fingerprint, err)
	}

	s.logger.Debug("stored blob", "fingerprint", fingerprint, "bytes", len(raw))
	return s.locator(fingerprint), nil
}

// Exists reports whether a blob is stored for the fingerprint.
func (s *Store) Exists(fingerprint string) (bool, error) {
	p, err := s.path(fingerprint)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob %s: %w", fingerprint, err)
	}
	return true, nil
}

// Get returns the raw bytes stored for the fingerprint.
func (s *Store) Get(fingerprint string) ([]byte, error) {
	p, err := s.path(fingerprint)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fingerprint)
		}
		return nil, fmt.Errorf("read blob %s: %w", fingerprint, err)
	}
	return data, nil
}

// locator is the stable citation reference for a stored blob, relative
// to the store root so the blob directory can move between hosts.
func (s *Store) locator(fingerprint string) string {
	return filepath.Join("blobs", fingerprint[:2], fingerprint)
}
