package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func (b BuildInfo) String() string {
	return fmt.Sprintf("molx %s\n  commit:  %s\n  built:   %s\n  go:      %s %s/%s",
		b.Version, b.Commit, b.BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// NewVersionCmd prints the build information.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate})
		},
	}
}
