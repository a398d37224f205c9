package dataset

import (
	"context"
	"sync"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
)

// Catalog serves already processed splits of every split mode from one
// store. Splits are opened on first use and reopened when a newer build
// replaced the manifest. A Catalog never processes raw data.
type Catalog struct {
	opts   Options
	logger logging.Logger

	mu     sync.Mutex
	splits map[string]*Split
}

// NewCatalog uses Store, Cache, Metrics and Logger from opts.
func NewCatalog(opts Options) *Catalog {
	opts.applyDefaults()
	return &Catalog{opts: opts, logger: opts.Logger.Named("catalog"), splits: map[string]*Split{}}
}

// Manifest returns the current manifest of mode.
func (c *Catalog) Manifest(ctx context.Context, mode string) (*Manifest, error) {
	if err := ValidateSplitMode(mode); err != nil {
		return nil, err
	}
	return LoadManifest(ctx, c.opts.Store, mode)
}

// Split returns the open split of the current build of mode.
func (c *Catalog) Split(ctx context.Context, mode, split string) (*Split, error) {
	if err := ValidateSplit(split); err != nil {
		return nil, err
	}
	m, err := c.Manifest(ctx, mode)
	if err != nil {
		return nil, err
	}

	key := mode + "/" + split
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.splits[key]; ok {
		if s.BuildID() == m.BuildID {
			return s, nil
		}
		c.logger.Info("reopening split after rebuild",
			logging.String("split", key),
			logging.String("build_id", m.BuildID))
		s.Close()
		delete(c.splits, key)
	}
	s, err := OpenSplit(ctx, c.opts.Store, m, split,
		WithRecordCache(c.opts.Cache),
		WithAccessMetrics(c.opts.Metrics),
		WithSplitLogger(c.opts.Logger))
	if err != nil {
		return nil, err
	}
	c.splits[key] = s
	return s, nil
}

// Close closes every open split.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for key, s := range c.splits {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.splits, key)
	}
	return first
}
