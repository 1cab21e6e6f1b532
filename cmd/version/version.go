package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/fishnet-go/internal/buildinfo"
)

// Command prints the build version.
func Command(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of Fishnet-Go",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "fishnet-go %s (built %s)\n", build.Version(), build.BuildDate())
			return err
		},
	}
}
