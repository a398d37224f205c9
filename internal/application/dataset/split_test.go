package dataset

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/internal/infrastructure/database/redis"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
)

func newTestCache(t *testing.T) (redis.RecordCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis.NewClient(&redis.RedisConfig{Addr: mr.Addr(), KeyPrefix: "t:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return redis.NewRecordCache(client, nil), mr
}

func TestSplit_GetThroughCache(t *testing.T) {
	f := newRawFixture(t)
	records := produce(t, f)
	store := blob.NewLocal(t.TempDir())
	ctx := context.Background()
	m, err := newTestAssembler(t, store).Build(ctx, records, testIndex())
	require.NoError(t, err)

	cache, mr := newTestCache(t)
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewDatasetMetrics(c)

	s, err := OpenSplit(ctx, store, m, SplitTrain, WithRecordCache(cache), WithAccessMetrics(metrics))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, store.Location(m.Splits[SplitTrain].Key), s.Location())
	assert.Equal(t, SplitTrain, s.Name())

	for round := 0; round < 2; round++ {
		got, err := s.Get(ctx, 1)
		require.NoError(t, err)
		assert.True(t, records[2].Equal(got))
	}
	assert.True(t, mr.Exists("t:record:random:train:"+m.BuildID+":1"))

	_, err = s.Get(ctx, 5)
	assert.Error(t, err)

	families, err := c.Gather()
	require.NoError(t, err)
	sums := map[string]float64{}
	for _, fam := range families {
		sums[fam.Name] = fam.Sum
	}
	assert.Equal(t, 1.0, sums["test_cache_hits_total"])
	assert.Equal(t, 1.0, sums["test_cache_misses_total"])
	assert.Equal(t, 3.0, sums["test_record_gets_total"])
}

func TestSplit_ColumnAccess(t *testing.T) {
	f := newRawFixture(t)
	records := produce(t, f)
	store := blob.NewLocal(t.TempDir())
	ctx := context.Background()
	m, err := newTestAssembler(t, store).Build(ctx, records, testIndex())
	require.NoError(t, err)

	s, err := OpenSplit(ctx, store, m, SplitTrain)
	require.NoError(t, err)
	defer s.Close()

	names := map[string]bool{}
	for _, c := range s.Columns() {
		names[c.Name] = true
	}
	for _, k := range records[0].Keys() {
		assert.True(t, names[k], "column %s", k)
	}

	z, err := s.Column("z")
	require.NoError(t, err)
	// water (3 atoms) then ammonium (5 atoms)
	assert.Equal(t, []int64{8, 1, 1, 7, 1, 1, 1, 1}, z.Ints)
}
