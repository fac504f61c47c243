package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const storeDirPermissions = 0o755

// FileStore keeps one file per key under a data directory. It is the
// production backend standing in for the browser's persistent store.
type FileStore struct {
	dir string
}

// NewFileStore ensures the directory exists and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, storeDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "create store dir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Get(key string) ([]byte, bool, error) {
	payload, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "read key %s", key)
	}
	return payload, true, nil
}

func (f *FileStore) Set(key string, value []byte) error {
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return errors.Wrapf(err, "write key %s", key)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		return errors.Wrapf(err, "commit key %s", key)
	}
	return nil
}

func (f *FileStore) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "delete key %s", key)
	}
	return nil
}

// path maps a key to a file name, replacing separators that are not
// filesystem safe.
func (f *FileStore) path(key string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(f.dir, sanitized+".bin")
}
