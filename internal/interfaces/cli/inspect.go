package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/turtacn/molx/internal/application/dataset"
	"github.com/turtacn/molx/internal/infrastructure/storage/tensorfile"
	mtypes "github.com/turtacn/molx/pkg/types/molecule"
)

// InspectResult describes a processed split mode.
type InspectResult struct {
	BuildID           string               `json:"build_id" yaml:"build_id"`
	Dataset           string               `json:"dataset" yaml:"dataset"`
	SplitMode         string               `json:"split_mode" yaml:"split_mode"`
	ProcessedFilename string               `json:"processed_filename" yaml:"processed_filename"`
	CreatedAt         string               `json:"created_at" yaml:"created_at"`
	Targets           []string             `json:"targets" yaml:"targets"`
	Splits            []ProcessSplitResult `json:"splits" yaml:"splits"`
	Columns           []tensorfile.Column  `json:"columns,omitempty" yaml:"columns,omitempty"`
}

func (r *InspectResult) TableHeaders() []string {
	return []string{"SPLIT", "RECORDS", "SKIPPED", "SIZE", "LOCATION"}
}

func (r *InspectResult) TableRows() [][]string {
	return (&ProcessResult{Splits: r.Splits}).TableRows()
}

func (r *InspectResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dataset:    %s\n", r.Dataset)
	fmt.Fprintf(&sb, "Split mode: %s\n", r.SplitMode)
	fmt.Fprintf(&sb, "Build:      %s (%s)\n", r.BuildID, r.CreatedAt)
	fmt.Fprintf(&sb, "File name:  %s\n", r.ProcessedFilename)
	fmt.Fprintf(&sb, "Targets:    %s\n\n", strings.Join(r.Targets, ", "))
	sb.WriteString(FormatTable(r.TableHeaders(), r.TableRows()))
	if len(r.Columns) > 0 {
		sb.WriteString("\n")
		rows := make([][]string, 0, len(r.Columns))
		for _, c := range r.Columns {
			rows = append(rows, []string{c.Name, c.DType.String(), strconv.FormatBool(c.Scalar), fmt.Sprint(c.RowShape)})
		}
		sb.WriteString(FormatTable([]string{"COLUMN", "DTYPE", "SCALAR", "ROW SHAPE"}, rows))
	}
	return sb.String()
}

// RecordResult is one record of a split, optionally transformed.
type RecordResult struct {
	SplitMode string         `json:"split_mode" yaml:"split_mode"`
	Split     string         `json:"split" yaml:"split"`
	Index     int            `json:"index" yaml:"index"`
	Transform string         `json:"transform,omitempty" yaml:"transform,omitempty"`
	Target    *int           `json:"target,omitempty" yaml:"target,omitempty"`
	Record    *mtypes.Record `json:"record" yaml:"record"`
}

func (r *RecordResult) TableHeaders() []string {
	return []string{"FIELD", "DTYPE", "SHAPE", "VALUE"}
}

func (r *RecordResult) TableRows() [][]string {
	keys := r.Record.Keys()
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		f, err := r.Record.Field(k)
		if err != nil {
			continue
		}
		rows = append(rows, []string{k, f.DType.String(), fmt.Sprint(f.Shape), preview(f)})
	}
	return rows
}

// preview shortens a field's values for table output.
func preview(f *mtypes.Field) string {
	const limit = 6
	var parts []string
	switch f.DType {
	case mtypes.DTypeString:
		return f.Str
	case mtypes.DTypeInt64:
		for i, v := range f.Ints {
			if i == limit {
				break
			}
			parts = append(parts, strconv.FormatInt(v, 10))
		}
	default:
		for i, v := range f.Floats {
			if i == limit {
				break
			}
			parts = append(parts, strconv.FormatFloat(float64(v), 'g', 5, 32))
		}
	}
	s := strings.Join(parts, " ")
	if n := f.Len(); n > limit {
		s += fmt.Sprintf(" ... (%s values)", humanize.Comma(int64(n)))
	}
	return s
}

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	var (
		splitMode string
		split     string
		index     int
		columns   bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the manifest of a processed split mode or a single record",
		Example: "  molx inspect --split-mode scaffold --columns\n" +
			"  molx inspect --split val --index 42 -o json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			if splitMode == "" {
				splitMode = cliCtx.Config.Dataset.SplitMode
			}
			rt, err := NewRuntime(ctx, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			cat := dataset.NewCatalog(rt.DatasetOptions())
			defer cat.Close()

			if cmd.Flags().Changed("index") {
				s, err := cat.Split(ctx, splitMode, split)
				if err != nil {
					return err
				}
				rec, err := s.Get(ctx, index)
				if err != nil {
					return err
				}
				return PrintResult(cmd, &RecordResult{SplitMode: splitMode, Split: split, Index: index, Record: rec})
			}

			m, err := cat.Manifest(ctx, splitMode)
			if err != nil {
				return err
			}
			res := &InspectResult{
				BuildID:           m.BuildID,
				Dataset:           m.Dataset,
				SplitMode:         m.SplitMode,
				ProcessedFilename: m.ProcessedFilename,
				CreatedAt:         humanize.Time(m.CreatedAt),
				Targets:           m.Targets,
				Splits:            newProcessResult(m, rt.Store.Location, 0).Splits,
			}
			if columns {
				s, err := cat.Split(ctx, splitMode, split)
				if err != nil {
					return err
				}
				res.Columns = s.Columns()
			}
			return PrintResult(cmd, res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&splitMode, "split-mode", "", "split mode to inspect (default: dataset.split_mode)")
	f.StringVar(&split, "split", dataset.SplitTrain, "split used by --index and --columns")
	f.IntVar(&index, "index", 0, "print the record at this position")
	f.BoolVar(&columns, "columns", false, "list the stored columns")
	return cmd
}
