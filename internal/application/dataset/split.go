package dataset

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/turtacn/molx/internal/infrastructure/database/redis"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/internal/infrastructure/storage/tensorfile"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// Split gives random access to the records of one persisted split. Each Get
// reads only the byte ranges of record i; the file is never loaded whole.
type Split struct {
	name     string
	mode     string
	location string
	obj      blob.Object
	file     *tensorfile.File
	cache    redis.RecordCache
	metrics  *prometheus.DatasetMetrics
	logger   logging.Logger
}

type SplitOption func(*Split)

// WithRecordCache serves Get through a read-through cache.
func WithRecordCache(c redis.RecordCache) SplitOption {
	return func(s *Split) { s.cache = c }
}

func WithAccessMetrics(m *prometheus.DatasetMetrics) SplitOption {
	return func(s *Split) { s.metrics = m }
}

func WithSplitLogger(l logging.Logger) SplitOption {
	return func(s *Split) { s.logger = l }
}

// OpenSplit opens split as recorded in m.
func OpenSplit(ctx context.Context, store blob.Store, m *Manifest, split string, opts ...SplitOption) (*Split, error) {
	if err := ValidateSplit(split); err != nil {
		return nil, err
	}
	info, ok := m.Splits[split]
	if !ok {
		return nil, ErrManifestMalformed.WithDetailf("manifest of %s has no split %s", m.SplitMode, split)
	}
	obj, err := store.Open(ctx, info.Key)
	if err != nil {
		return nil, err
	}
	f, err := tensorfile.Open(obj, obj.Size())
	if err != nil {
		obj.Close()
		return nil, err
	}
	s := &Split{
		name:     split,
		mode:     m.SplitMode,
		location: store.Location(info.Key),
		obj:      obj,
		file:     f,
		logger:   logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	if f.BuildID() != m.BuildID {
		s.logger.Warn("split was written by a different build than the manifest",
			logging.String("split", split),
			logging.String("file_build", f.BuildID()),
			logging.String("manifest_build", m.BuildID))
	}
	return s, nil
}

func (s *Split) Name() string { return s.name }

// Len returns the number of records.
func (s *Split) Len() int { return s.file.Len() }

// Size returns the size of the split file in bytes.
func (s *Split) Size() int64 { return s.file.Size() }

func (s *Split) BuildID() string { return s.file.BuildID() }

func (s *Split) Location() string { return s.location }

func (s *Split) Columns() []tensorfile.Column { return s.file.Columns() }

// Column reads a whole column.
func (s *Split) Column(name string) (*mtypes.Field, error) { return s.file.Column(name) }

// Get returns record i.
func (s *Split) Get(ctx context.Context, i int) (rec *mtypes.Record, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordGet(s.name, time.Since(start), err) }()

	if s.cache == nil || i < 0 || i >= s.file.Len() {
		return s.file.Get(i)
	}
	var loaded atomic.Bool
	rec, err = s.cache.GetOrLoad(ctx, s.cacheKey(i), func(context.Context) (*mtypes.Record, error) {
		loaded.Store(true)
		return s.file.Get(i)
	})
	if err == nil {
		s.metrics.RecordCacheAccess(s.name, !loaded.Load())
	}
	return rec, err
}

// cacheKey scopes entries by build so a rebuild never serves stale records.
func (s *Split) cacheKey(i int) string {
	return fmt.Sprintf("%s:%s:%s:%d", s.mode, s.name, s.file.BuildID(), i)
}

func (s *Split) Close() error { return s.obj.Close() }
