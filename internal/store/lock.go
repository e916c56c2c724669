package store

import (
	"fmt"
	"path/filepath"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/lockfile"
)

const locksDir = "locks"

// LockWriter takes the container's cross-process writer lock. The caller
// must Unlock it when the pass ends. It fails with ErrWriterBusy when
// another process holds the lock.
func (s *Store) LockWriter(container string) (*lockfile.Lock, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	lock := lockfile.New(filepath.Join(s.dataDir, locksDir, TableName(container)+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock container %s: %w", container, err)
	}
	if !ok {
		return nil, amerrors.New(amerrors.ErrCodeStoreBusy,
			fmt.Sprintf("container %s is being indexed by another process", container), ErrWriterBusy)
	}
	return lock, nil
}
