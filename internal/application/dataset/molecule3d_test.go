package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/internal/intelligence/molgraph"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishDatasetProcessed(ctx context.Context, p *kafka.DatasetProcessedPayload) error {
	return m.Called(ctx, p).Error(0)
}

type fakeLock struct {
	locks, unlocks int
	onLock         func()
}

func (l *fakeLock) Lock(context.Context) error {
	l.locks++
	if l.onLock != nil {
		l.onLock()
	}
	return nil
}

func (l *fakeLock) Unlock(context.Context) error {
	l.unlocks++
	return nil
}

func openSplit(t *testing.T, opts Options) *Molecule3D {
	t.Helper()
	d, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_ProcessesOnFirstUse(t *testing.T) {
	f := newRawFixture(t)
	d := openSplit(t, f.options())

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "Molecule3D(2)", d.String())
	assert.Equal(t, []string{"gap", "dipole"}, d.Manifest().Targets)
	assert.FileExists(t, filepath.Join(f.root, DefaultName, "processed", "random", "manifest.json"))
	for _, split := range Splits {
		assert.FileExists(t, filepath.Join(f.root, DefaultName, "processed", "random", split+".data.pt"))
	}

	r, err := d.Get(context.Background(), 1)
	require.NoError(t, err)
	n, err := r.NumNodes()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	props, err := r.Float32s(mtypes.KeyProps)
	require.NoError(t, err)
	assert.Equal(t, []float32{2.0, 3.25}, props)
}

func TestOpen_ReusesProcessedSplits(t *testing.T) {
	f := newRawFixture(t)
	first := openSplit(t, f.options())

	// Raw input is no longer needed once processed.
	require.NoError(t, os.Remove(filepath.Join(f.rawDir, "part0.sdf")))

	opts := f.options()
	opts.Split = SplitVal
	second := openSplit(t, opts)
	assert.Equal(t, first.Manifest().BuildID, second.Manifest().BuildID)
	assert.Equal(t, 1, second.Len())
	assert.Equal(t, SplitVal, second.Split().Name())
}

func TestOpen_Reprocess(t *testing.T) {
	f := newRawFixture(t)
	store := blob.NewLocal(filepath.Join(f.root, DefaultName))

	opts := f.options()
	opts.Store = store
	first := openSplit(t, opts)

	opts.Reprocess = true
	second := openSplit(t, opts)
	assert.NotEqual(t, first.Manifest().BuildID, second.Manifest().BuildID)
	assert.Equal(t, first.Len(), second.Len())

	loaded, err := LoadManifest(context.Background(), store, SplitModeRandom)
	require.NoError(t, err)
	assert.Equal(t, second.Manifest().BuildID, loaded.BuildID)
}

func TestOpen_ProcessedFilenameChangeRebuilds(t *testing.T) {
	f := newRawFixture(t)
	first := openSplit(t, f.options())

	opts := f.options()
	opts.ProcessedFilename = "v2.bin"
	second := openSplit(t, opts)
	assert.NotEqual(t, first.Manifest().BuildID, second.Manifest().BuildID)
	assert.Equal(t, "processed/random/train.v2.bin", second.Manifest().Splits[SplitTrain].Key)
}

func TestOpen_Validation(t *testing.T) {
	f := newRawFixture(t)
	ctx := context.Background()

	opts := f.options()
	opts.Split = "dev"
	_, err := Open(ctx, opts)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSplitUnknown))

	opts = f.options()
	opts.SplitMode = "temporal"
	_, err = Open(ctx, opts)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSplitModeUnknown))

	opts = f.options()
	opts.SplitMode = SplitModeScaffold
	_, err = Open(ctx, opts)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRawDataMissing))
	assert.Contains(t, err.Error(), "scaffold_split_inds.json")
}

func TestOpen_RawDataMissing(t *testing.T) {
	_, err := Open(context.Background(), Options{Root: t.TempDir()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRawDataMissing)
	assert.Contains(t, err.Error(), "download")
	assert.Contains(t, err.Error(), DefaultSDFFiles[0])
}

func TestOpen_TransformOnGet(t *testing.T) {
	f := newRawFixture(t)
	var calls int
	opts := f.options()
	opts.Transform = TransformFunc(func(_ context.Context, r *mtypes.Record) (*mtypes.Record, error) {
		calls++
		props, err := r.Float32s(mtypes.KeyProps)
		if err != nil {
			return nil, err
		}
		out := r.Clone()
		out.SetFloat32Scalar(mtypes.KeyY, props[0])
		out.Delete(mtypes.KeyProps)
		return out, nil
	})
	d := openSplit(t, opts)

	r, err := d.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, r.Has(mtypes.KeyProps))
	y, err := r.Float32s(mtypes.KeyY)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, y)

	raw, err := d.Split().Get(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, raw.Has(mtypes.KeyProps))
}

func TestOpen_PublishesEvent(t *testing.T) {
	f := newRawFixture(t)
	pub := new(mockPublisher)
	pub.On("PublishDatasetProcessed", mock.Anything, mock.MatchedBy(func(p *kafka.DatasetProcessedPayload) bool {
		return p.Dataset == DefaultName &&
			p.SplitMode == SplitModeRandom &&
			p.Splits[SplitTrain] == 2 && p.Splits[SplitVal] == 1 && p.Splits[SplitTest] == 1 &&
			len(p.Locations) == 3 && p.BuildID != ""
	})).Return(nil).Once()

	opts := f.options()
	opts.Publisher = pub
	openSplit(t, opts)
	// Already processed: no second event.
	openSplit(t, opts)
	pub.AssertExpectations(t)
}

func TestOpen_PublishFailureDoesNotFailBuild(t *testing.T) {
	f := newRawFixture(t)
	pub := new(mockPublisher)
	pub.On("PublishDatasetProcessed", mock.Anything, mock.Anything).Return(fmt.Errorf("broker down"))

	opts := f.options()
	opts.Publisher = pub
	d := openSplit(t, opts)
	assert.Equal(t, 2, d.Len())
	pub.AssertNumberOfCalls(t, "PublishDatasetProcessed", 1)
}

func TestProcess_LockRechecksManifest(t *testing.T) {
	f := newRawFixture(t)
	ctx := context.Background()
	opts := f.options()

	var concurrent *Manifest
	lock := &fakeLock{onLock: func() {
		// Another process finishes a build while this one waits.
		m, err := Process(ctx, f.options())
		require.NoError(t, err)
		concurrent = m
	}}
	opts.Lock = lock

	m, err := Process(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, concurrent.BuildID, m.BuildID)
	assert.Equal(t, 1, lock.locks)
	assert.Equal(t, 1, lock.unlocks)
}

func TestProcess_CacheInvalidated(t *testing.T) {
	f := newRawFixture(t)
	cache, mr := newTestCache(t)
	opts := f.options()
	opts.Cache = cache

	d := openSplit(t, opts)
	_, err := d.Get(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	opts.Reprocess = true
	_, err = Process(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestMolecule3D_FeatureCounts(t *testing.T) {
	f := newRawFixture(t)
	d := openSplit(t, f.options())

	labels, err := d.NumNodeLabels()
	require.NoError(t, err)
	attrs, err := d.NumNodeAttributes()
	require.NoError(t, err)
	assert.Equal(t, molgraph.NumAtomFeatures, labels+attrs)

	edges, err := d.NumEdgeLabels()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, edges, 0)
	assert.LessOrEqual(t, edges, molgraph.NumBondFeatures)
}

func TestOneHotSuffix(t *testing.T) {
	x := &mtypes.Field{DType: mtypes.DTypeInt64, Shape: []int{3, 4}, Ints: []int64{
		6, 2, 0, 1,
		8, 0, 1, 0,
		1, 5, 1, 0,
	}}
	assert.Equal(t, 2, oneHotSuffix(x))

	x.Ints[11] = 1 // last row now has two ones in the block
	assert.Equal(t, 0, oneHotSuffix(x))

	none := &mtypes.Field{DType: mtypes.DTypeInt64, Shape: []int{2, 2}, Ints: []int64{3, 4, 5, 6}}
	assert.Equal(t, 0, oneHotSuffix(none))
}

func TestUnitSumSuffix(t *testing.T) {
	e := &mtypes.Field{DType: mtypes.DTypeInt64, Shape: []int{2, 3}, Ints: []int64{
		2, 1, 0,
		3, 0, 1,
	}}
	assert.Equal(t, 2, unitSumSuffix(e))

	zero := &mtypes.Field{DType: mtypes.DTypeInt64, Shape: []int{2, 2}, Ints: []int64{0, 0, 0, 0}}
	assert.Equal(t, 0, unitSumSuffix(zero))
}
