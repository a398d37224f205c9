package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/turtacn/molx/internal/application/dataset"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// ProcessResult summarizes one build for output.
type ProcessResult struct {
	BuildID   string               `json:"build_id" yaml:"build_id"`
	Dataset   string               `json:"dataset" yaml:"dataset"`
	SplitMode string               `json:"split_mode" yaml:"split_mode"`
	Targets   []string             `json:"targets" yaml:"targets"`
	Splits    []ProcessSplitResult `json:"splits" yaml:"splits"`
	Elapsed   string               `json:"elapsed" yaml:"elapsed"`
}

// ProcessSplitResult is one row of ProcessResult.
type ProcessSplitResult struct {
	Split    string `json:"split" yaml:"split"`
	Records  int    `json:"records" yaml:"records"`
	Skipped  int    `json:"skipped" yaml:"skipped"`
	Bytes    int64  `json:"bytes" yaml:"bytes"`
	Location string `json:"location" yaml:"location"`
}

func (r *ProcessResult) TableHeaders() []string {
	return []string{"SPLIT", "RECORDS", "SKIPPED", "SIZE", "LOCATION"}
}

func (r *ProcessResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Splits))
	for _, s := range r.Splits {
		rows = append(rows, []string{
			s.Split,
			humanize.Comma(int64(s.Records)),
			strconv.Itoa(s.Skipped),
			humanize.Bytes(uint64(s.Bytes)),
			s.Location,
		})
	}
	return rows
}

func (r *ProcessResult) String() string {
	return fmt.Sprintf("build %s of %s/%s in %s\n%s",
		r.BuildID, r.Dataset, r.SplitMode, r.Elapsed,
		FormatTable(r.TableHeaders(), r.TableRows()))
}

func newProcessResult(m *dataset.Manifest, locate func(string) string, elapsed time.Duration) *ProcessResult {
	res := &ProcessResult{
		BuildID:   m.BuildID,
		Dataset:   m.Dataset,
		SplitMode: m.SplitMode,
		Targets:   m.Targets,
		Elapsed:   elapsed.Round(time.Millisecond).String(),
	}
	for _, name := range dataset.Splits {
		info, ok := m.Splits[name]
		if !ok {
			continue
		}
		res.Splits = append(res.Splits, ProcessSplitResult{
			Split:    name,
			Records:  info.Records,
			Skipped:  info.Skipped,
			Bytes:    info.Bytes,
			Location: locate(info.Key),
		})
	}
	return res
}

// progressFactory draws one bar per SDF file on w.
func progressFactory(w io.Writer) dataset.ProgressFactory {
	return func(file, files, total int, name string) dataset.Progress {
		return progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(fmt.Sprintf("[%d/%d] %s", file+1, files, name)),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("mol"),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		)
	}
}

// NewProcessCmd creates the process command.
func NewProcessCmd() *cobra.Command {
	var (
		splitMode    string
		reprocess    bool
		noProgress   bool
		preTransform string
		target       string
		maxAtoms     int
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Build the processed splits from the raw SDF files",
		Long: "Reads the raw SDF files and the property table under {root}/{name}/raw,\n" +
			"encodes every molecule as a graph record and writes one tensor file per\n" +
			"split of the selected split mode. Raw data is never downloaded.",
		Example: "  molx process --split-mode scaffold\n  molx process --pre-transform rdkit3d --max-atoms 60",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			cfg := cliCtx.Config
			if splitMode != "" {
				cfg.Dataset.SplitMode = splitMode
			}
			rt, err := NewRuntime(ctx, cfg, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := rt.DatasetOptions()
			opts.Reprocess = true
			if !noProgress {
				opts.Progress = progressFactory(cmd.ErrOrStderr())
			}
			if maxAtoms > 0 {
				opts.PreFilter = maxAtomsFilter(maxAtoms)
			}
			if preTransform != "" {
				t, err := targetArg(target, nil)
				if err != nil {
					return err
				}
				if opts.PreTransform, err = rt.Transform(preTransform, t, -1); err != nil {
					return err
				}
			}

			if !reprocess {
				if m, err := dataset.LoadManifest(ctx, rt.Store, cfg.Dataset.SplitMode); err == nil && m.ProcessedFilename == cfg.Dataset.ProcessedFilename {
					cliCtx.Logger.Info("splits already processed; use --reprocess to rebuild",
						logging.String("build_id", m.BuildID))
					return PrintResult(cmd, newProcessResult(m, rt.Store.Location, 0))
				}
			}

			start := time.Now()
			m, err := dataset.Process(ctx, opts)
			if err != nil {
				return err
			}
			return PrintResult(cmd, newProcessResult(m, rt.Store.Location, time.Since(start)))
		},
	}

	f := cmd.Flags()
	f.StringVar(&splitMode, "split-mode", "", "split mode (random, scaffold); overrides dataset.split_mode")
	f.BoolVar(&reprocess, "reprocess", false, "rebuild even when processed splits exist")
	f.BoolVar(&noProgress, "no-progress", false, "disable progress bars")
	f.StringVar(&preTransform, "pre-transform", "", "transform applied once per record before saving (pred3d, gt3d, rdkit3d)")
	f.StringVar(&target, "target", "0", "target column index used by --pre-transform")
	f.IntVar(&maxAtoms, "max-atoms", 0, "drop molecules with more atoms (0 keeps all)")
	return cmd
}

// maxAtomsFilter keeps records with at most n nodes.
func maxAtomsFilter(n int) dataset.Filter {
	return func(r *mtypes.Record) bool {
		nodes, err := r.NumNodes()
		return err == nil && nodes <= n
	}
}
