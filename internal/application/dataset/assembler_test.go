package dataset

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/pkg/errors"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

func produce(t *testing.T, f *rawFixture) []*mtypes.Record {
	t.Helper()
	records, _, err := NewReader(f.readerConfig(), nil).ProduceRecords(context.Background())
	require.NoError(t, err)
	return records
}

func newTestAssembler(t *testing.T, store blob.Store, opts ...AssemblerOption) *Assembler {
	t.Helper()
	a, err := NewAssembler(store, AssemblerConfig{
		Dataset:           DefaultName,
		SplitMode:         SplitModeRandom,
		ProcessedFilename: "data.pt",
		Targets:           []string{"gap", "dipole"},
	}, logging.NewNopLogger(), opts...)
	require.NoError(t, err)
	return a
}

func testIndex() SplitIndex {
	return SplitIndex{"train": {0, 2}, "valid": {1}, "test": {3}}
}

func TestSplitIndex_Check(t *testing.T) {
	assert.NoError(t, testIndex().Check(4))
	assert.NoError(t, SplitIndex{"train": {}, "valid": {}, "test": {}}.Check(0))

	err := SplitIndex{"train": {0}, "test": {1}}.Check(4)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSplitIndexMalformed))
	assert.Contains(t, err.Error(), `"valid"`)

	err = SplitIndex{"train": {0, 4}, "valid": {}, "test": {}}.Check(4)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSplitIndexMalformed))

	err = SplitIndex{"train": {-1}, "valid": {}, "test": {}}.Check(4)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSplitIndexMalformed))
}

func TestLoadSplitIndex(t *testing.T) {
	f := newRawFixture(t)
	idx, err := LoadSplitIndex(f.rawDir, SplitModeRandom)
	require.NoError(t, err)
	assert.Equal(t, testIndex(), idx)

	_, err = LoadSplitIndex(f.rawDir, SplitModeScaffold)
	assert.ErrorIs(t, err, ErrRawDataMissing)

	f.write(t, SplitIndexFile(SplitModeScaffold), "{not json")
	_, err = LoadSplitIndex(f.rawDir, SplitModeScaffold)
	assert.ErrorIs(t, err, ErrSplitIndexMalformed)
}

func TestSplitNames(t *testing.T) {
	assert.Equal(t, "valid", IndexKey(SplitVal))
	assert.Equal(t, "train", IndexKey(SplitTrain))
	assert.Equal(t, "scaffold_split_inds.json", SplitIndexFile(SplitModeScaffold))
	assert.NoError(t, ValidateSplit("val"))
	assert.ErrorIs(t, ValidateSplit("valid"), ErrSplitUnknown)
	assert.ErrorIs(t, ValidateSplitMode("stratified"), ErrSplitModeUnknown)
}

func TestNewAssembler_Validation(t *testing.T) {
	store := blob.NewLocal(t.TempDir())
	_, err := NewAssembler(store, AssemblerConfig{SplitMode: "bogus", ProcessedFilename: "data.pt"}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSplitModeUnknown))

	_, err = NewAssembler(store, AssemblerConfig{SplitMode: SplitModeRandom}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestAssembler_BuildRoundTrip(t *testing.T) {
	f := newRawFixture(t)
	records := produce(t, f)
	store := blob.NewLocal(t.TempDir())
	ctx := context.Background()

	m, err := newTestAssembler(t, store).Build(ctx, records, testIndex())
	require.NoError(t, err)
	assert.NotEmpty(t, m.BuildID)
	assert.Equal(t, SplitModeRandom, m.SplitMode)
	assert.Equal(t, 2, m.Splits[SplitTrain].Records)
	assert.Equal(t, 1, m.Splits[SplitVal].Records)
	assert.Equal(t, 1, m.Splits[SplitTest].Records)
	assert.Equal(t, "processed/random/val.data.pt", m.Splits[SplitVal].Key)
	i, ok := m.TargetIndex("dipole")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	loaded, err := LoadManifest(ctx, store, SplitModeRandom)
	require.NoError(t, err)
	assert.Equal(t, m.BuildID, loaded.BuildID)
	assert.Equal(t, m.Splits, loaded.Splits)

	want := map[string][]int{SplitTrain: {0, 2}, SplitVal: {1}, SplitTest: {3}}
	for split, inds := range want {
		s, err := OpenSplit(ctx, store, m, split)
		require.NoError(t, err)
		assert.Equal(t, len(inds), s.Len())
		assert.Equal(t, m.BuildID, s.BuildID())
		assert.Equal(t, m.Splits[split].Bytes, s.Size())
		for j, abs := range inds {
			got, err := s.Get(ctx, j)
			require.NoError(t, err)
			assert.True(t, records[abs].Equal(got), "%s[%d] != molecule %d", split, j, abs)
		}
		_, err = s.Get(ctx, len(inds))
		assert.True(t, errors.IsCode(err, errors.ErrCodeRecordOutOfRange))
		require.NoError(t, s.Close())
	}
}

func TestAssembler_PreFilterAndPreTransform(t *testing.T) {
	f := newRawFixture(t)
	records := produce(t, f)
	store := blob.NewLocal(t.TempDir())
	ctx := context.Background()

	onlySmall := func(r *mtypes.Record) bool {
		n, _ := r.NumNodes()
		return n < 5
	}
	var seen int
	tag := TransformFunc(func(_ context.Context, r *mtypes.Record) (*mtypes.Record, error) {
		seen++
		out := r.Clone()
		out.SetInt64Scalar("tag", int64(seen))
		return out, nil
	})

	m, err := newTestAssembler(t, store, WithPreFilter(onlySmall), WithPreTransform(tag)).Build(ctx, records, testIndex())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Splits[SplitTrain].Records)
	assert.Equal(t, 1, m.Splits[SplitTrain].Skipped)
	assert.Equal(t, 0, m.Splits[SplitVal].Records)
	assert.Equal(t, 1, m.Splits[SplitTest].Records)
	assert.Equal(t, 2, seen)
	assert.False(t, records[0].Has("tag"))

	s, err := OpenSplit(ctx, store, m, SplitTrain)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, got.Has("tag"))
}

func TestAssembler_PreTransformError(t *testing.T) {
	f := newRawFixture(t)
	records := produce(t, f)
	store := blob.NewLocal(t.TempDir())
	failing := TransformFunc(func(context.Context, *mtypes.Record) (*mtypes.Record, error) {
		return nil, errors.New(errors.ErrCodeConformerEmbedFailed, "no conformer")
	})

	_, err := newTestAssembler(t, store, WithPreTransform(failing)).Build(context.Background(), records, testIndex())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConformerEmbedFailed))
	assert.Contains(t, err.Error(), "molecule 0")

	_, err = LoadManifest(context.Background(), store, SplitModeRandom)
	assert.ErrorIs(t, err, ErrNotProcessed)
}

func TestAssembler_MalformedIndex(t *testing.T) {
	f := newRawFixture(t)
	records := produce(t, f)
	store := blob.NewLocal(t.TempDir())

	_, err := newTestAssembler(t, store).Build(context.Background(), records, SplitIndex{"train": {9}, "valid": {}, "test": {}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSplitIndexMalformed))
}

func TestAssembler_BuildMetrics(t *testing.T) {
	f := newRawFixture(t)
	records := produce(t, f)
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewDatasetMetrics(c)

	_, err = newTestAssembler(t, blob.NewLocal(t.TempDir()), WithBuildMetrics(metrics)).Build(context.Background(), records, testIndex())
	require.NoError(t, err)

	families, err := c.Gather()
	require.NoError(t, err)
	sums := map[string]float64{}
	for _, fam := range families {
		sums[fam.Name] = fam.Sum
	}
	assert.Equal(t, 4.0, sums["test_records_produced_total"])
	assert.Equal(t, 1.0, sums["test_builds_total"])
	assert.Equal(t, 4.0, sums["test_split_records"])
}

func TestLoadManifest_Errors(t *testing.T) {
	store := blob.NewLocal(t.TempDir())
	ctx := context.Background()

	_, err := LoadManifest(ctx, store, SplitModeRandom)
	assert.ErrorIs(t, err, ErrNotProcessed)
	assert.True(t, errors.IsNotFound(err))

	put := func(body string) {
		require.NoError(t, store.Put(ctx, ManifestKey(SplitModeRandom), stringsReader(body), int64(len(body))))
	}
	put("{")
	_, err = LoadManifest(ctx, store, SplitModeRandom)
	assert.ErrorIs(t, err, ErrManifestMalformed)

	put(fmt.Sprintf(`{"split_mode":%q,"splits":{"train":{"key":"k"}}}`, SplitModeScaffold))
	_, err = LoadManifest(ctx, store, SplitModeRandom)
	assert.ErrorIs(t, err, ErrManifestMalformed)
}

func TestOpenSplit_Errors(t *testing.T) {
	store := blob.NewLocal(t.TempDir())
	ctx := context.Background()
	m := &Manifest{SplitMode: SplitModeRandom, Splits: map[string]SplitInfo{SplitTrain: {Key: "missing"}}}

	_, err := OpenSplit(ctx, store, m, "dev")
	assert.ErrorIs(t, err, ErrSplitUnknown)

	_, err = OpenSplit(ctx, store, m, SplitTest)
	assert.ErrorIs(t, err, ErrManifestMalformed)

	_, err = OpenSplit(ctx, store, m, SplitTrain)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, store.Put(ctx, "missing", stringsReader("garbage"), 7))
	_, err = OpenSplit(ctx, store, m, SplitTrain)
	assert.True(t, errors.IsCode(err, errors.ErrCodeProcessedFileCorrupt))
}
