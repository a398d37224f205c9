package dataset

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/turtacn/molx/internal/domain/molecule"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// Progress receives per-file progress while records are produced.
// *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(n int) error
	Finish() error
}

// ProgressFactory opens a Progress for the file-th of files SDF files
// holding total molecules.
type ProgressFactory func(file, files, total int, name string) Progress

// ReaderConfig locates the raw data.
type ReaderConfig struct {
	RawDir         string
	SDFFiles       []string
	PropertiesFile string
}

// Reader turns the raw SDF files and the properties table into records.
type Reader struct {
	cfg      ReaderConfig
	logger   logging.Logger
	progress ProgressFactory
}

type ReaderOption func(*Reader)

func WithProgress(f ProgressFactory) ReaderOption {
	return func(r *Reader) { r.progress = f }
}

func NewReader(cfg ReaderConfig, logger logging.Logger, opts ...ReaderOption) *Reader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &Reader{cfg: cfg, logger: logger.Named("reader")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RawPaths returns the SDF paths followed by the properties path.
func (r *Reader) RawPaths() []string {
	paths := make([]string, 0, len(r.cfg.SDFFiles)+1)
	for _, f := range r.cfg.SDFFiles {
		paths = append(paths, filepath.Join(r.cfg.RawDir, f))
	}
	return append(paths, filepath.Join(r.cfg.RawDir, r.cfg.PropertiesFile))
}

// CheckRawFiles fails with ErrRawDataMissing naming the first absent file.
func (r *Reader) CheckRawFiles() error {
	for _, p := range r.RawPaths() {
		if _, err := os.Stat(p); err != nil {
			return ErrRawDataMissing.WithDetail(p)
		}
	}
	return nil
}

// Targets returns the target column names of the properties table.
func (r *Reader) Targets() ([]string, error) {
	p, err := LoadProperties(filepath.Join(r.cfg.RawDir, r.cfg.PropertiesFile))
	if err != nil {
		return nil, err
	}
	return p.Names, nil
}

// ProduceRecords returns one record per molecule, SDF files in configured
// order and molecules in file order. The i-th molecule overall takes row i
// of the properties table. Any molecule that fails to parse or sanitize
// aborts the whole run so that records stay aligned with the targets and
// the split index.
func (r *Reader) ProduceRecords(ctx context.Context) ([]*mtypes.Record, []string, error) {
	if err := r.CheckRawFiles(); err != nil {
		return nil, nil, err
	}
	props, err := LoadProperties(filepath.Join(r.cfg.RawDir, r.cfg.PropertiesFile))
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	var records []*mtypes.Record
	abs := 0
	for fi, name := range r.cfg.SDFFiles {
		path := filepath.Join(r.cfg.RawDir, name)
		suppl, err := molecule.OpenSupplier(path)
		if err != nil {
			return nil, nil, err
		}
		recs, err := r.readFile(ctx, suppl, props, abs, fi, len(r.cfg.SDFFiles))
		suppl.Close()
		if err != nil {
			return nil, nil, err
		}
		abs += len(recs)
		records = append(records, recs...)
		if info, err := os.Stat(path); err == nil {
			r.logger.Info("sdf file read",
				logging.String("file", name),
				logging.Int("molecules", len(recs)),
				logging.String("size", humanize.Bytes(uint64(info.Size()))))
		}
	}
	r.logger.Info("records produced",
		logging.Int("records", len(records)),
		logging.Strings("targets", props.Names),
		logging.Duration("elapsed", time.Since(start)))
	return records, props.Names, nil
}

func (r *Reader) readFile(ctx context.Context, suppl *molecule.Supplier, props *Properties, base, fi, files int) ([]*mtypes.Record, error) {
	n := suppl.Len()
	var bar Progress
	if r.progress != nil {
		bar = r.progress(fi+1, files, n, filepath.Base(suppl.Path()))
		defer bar.Finish()
	}

	out := make([]*mtypes.Record, 0, n)
	for j := 0; j < n; j++ {
		if j%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		abs := base + j
		m, err := suppl.At(j)
		if err != nil {
			return nil, ErrSanitizeFailed.WithDetailf("molecule %d (%s record %d) could not be parsed", abs, suppl.Path(), j).WithCause(err)
		}
		if err := molecule.Sanitize(m); err != nil {
			return nil, ErrSanitizeFailed.WithDetailf("molecule %d (%s record %d)", abs, suppl.Path(), j).WithCause(err)
		}
		row, err := props.Row(abs)
		if err != nil {
			return nil, err
		}
		rec, err := EncodeMolecule(m, row)
		if err != nil {
			return nil, ErrSanitizeFailed.WithDetailf("molecule %d could not be encoded", abs).WithCause(err)
		}
		out = append(out, rec)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return out, nil
}
