package blob

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/turtacn/molx/pkg/errors"
)

// Local stores blobs as files below a root directory.
type Local struct {
	root string
}

// NewLocal returns a store rooted at dir. The directory is created lazily.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Root returns the base directory.
func (l *Local) Root() string { return l.root }

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Location returns the file path of key.
func (l *Local) Location(key string) string { return l.path(key) }

// Put writes to a temporary file in the target directory and renames it
// into place, so readers never see a partial object.
func (l *Local) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorage, "create directory for %s", key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorage, "create temp file for %s", key)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errors.Wrapf(err, errors.ErrCodeStorage, "write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorage, "close %s", key)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorage, "rename %s", key)
	}
	return nil
}

type localObject struct {
	*os.File
	size int64
}

func (o *localObject) Size() int64 { return o.size }

// Open opens the file behind key.
func (l *Local) Open(ctx context.Context, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound.WithDetail(key)
		}
		return nil, errors.Wrapf(err, errors.ErrCodeStorage, "open %s", key)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, errors.ErrCodeStorage, "stat %s", key)
	}
	return &localObject{File: f, size: st.Size()}, nil
}

// Exists reports whether key is a regular file.
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	st, err := os.Stat(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.ErrCodeStorage, "stat %s", key)
	}
	return st.Mode().IsRegular(), nil
}

// Delete removes key; a missing key is not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, errors.ErrCodeStorage, "delete %s", key)
	}
	return nil
}

// List walks the root and returns matching keys.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "list "+prefix)
	}
	sort.Strings(keys)
	return keys, nil
}
