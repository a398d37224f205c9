package blob

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/pkg/errors"
)

func TestLocal_PutOpenRange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewLocal(dir)

	require.NoError(t, s.Put(ctx, "processed/random/train.data.pt", strings.NewReader("0123456789"), 10))
	assert.Equal(t, filepath.Join(dir, "processed", "random", "train.data.pt"), s.Location("processed/random/train.data.pt"))

	obj, err := s.Open(ctx, "processed/random/train.data.pt")
	require.NoError(t, err)
	defer obj.Close()
	assert.Equal(t, int64(10), obj.Size())

	buf := make([]byte, 3)
	_, err = obj.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf))
}

func TestLocal_Overwrite(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(t.TempDir())
	require.NoError(t, s.Put(ctx, "k", strings.NewReader("first"), -1))
	require.NoError(t, s.Put(ctx, "k", strings.NewReader("2nd"), -1))
	obj, err := s.Open(ctx, "k")
	require.NoError(t, err)
	defer obj.Close()
	assert.Equal(t, int64(3), obj.Size())
}

func TestLocal_Missing(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(t.TempDir())

	_, err := s.Open(ctx, "nope")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsCode(err, errors.ErrCodeObjectNotFound))

	ok, err := s.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "nope"))
}

func TestLocal_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(t.TempDir())
	for _, k := range []string{"random/val.pt", "random/train.pt", "scaffold/test.pt"} {
		require.NoError(t, s.Put(ctx, k, strings.NewReader(k), int64(len(k))))
	}

	keys, err := s.List(ctx, "random/")
	require.NoError(t, err)
	assert.Equal(t, []string{"random/train.pt", "random/val.pt"}, keys)

	require.NoError(t, s.Delete(ctx, "random/val.pt"))
	ok, err := s.Exists(ctx, "random/val.pt")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLocal_ListMissingRoot(t *testing.T) {
	s := NewLocal(filepath.Join(t.TempDir(), "absent"))
	keys, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
