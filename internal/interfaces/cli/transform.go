package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/molx/internal/application/dataset"
	"github.com/turtacn/molx/internal/application/transform"
	"github.com/turtacn/molx/pkg/errors"
)

// NewTransformCmd creates the transform command, which applies a 3D
// transform to one processed record and prints the result.
func NewTransformCmd() *cobra.Command {
	var (
		name      string
		splitMode string
		split     string
		index     int
		target    string
		confID    int
	)

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Apply a 3D transform to one processed record",
		Long: "Transforms: " + strings.Join(transform.Names, ", ") + ".\n" +
			"pred3d needs predictor.endpoint; gt3d needs records with ground truth xyz.",
		Example: "  molx transform --name rdkit3d --split test --index 7 --target homolumogap",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New(errors.ErrCodeBadRequest, "--name is required")
			}
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

			m, err := cat.Manifest(ctx, splitMode)
			if err != nil {
				return err
			}
			t, err := targetArg(target, m)
			if err != nil {
				return err
			}
			tr, err := rt.Transform(name, t, confID)
			if err != nil {
				return err
			}
			s, err := cat.Split(ctx, splitMode, split)
			if err != nil {
				return err
			}
			rec, err := s.Get(ctx, index)
			if err != nil {
				return err
			}
			out, err := tr.Apply(ctx, rec)
			if err != nil {
				return err
			}
			return PrintResult(cmd, &RecordResult{
				SplitMode: splitMode,
				Split:     split,
				Index:     index,
				Transform: name,
				Target:    &t,
				Record:    out,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "transform name ("+strings.Join(transform.Names, ", ")+")")
	f.StringVar(&splitMode, "split-mode", "", "split mode (default: dataset.split_mode)")
	f.StringVar(&split, "split", dataset.SplitTrain, "split to read from")
	f.IntVar(&index, "index", 0, "record position within the split")
	f.StringVar(&target, "target", "0", "target column index or name")
	f.IntVar(&confID, "conf-id", -1, "conformer written by rdkit3d (-1 takes the first)")
	return cmd
}
