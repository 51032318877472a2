package cli

import (
	"fmt"

	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/spf13/cobra"
)

// NewVersionCmd returns the version subcommand of the daemon named cmdName.
func NewVersionCmd(cmdName string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Returns the running version of " + cmdName + " and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", cmdName, constants.Version)
			return err
		},
	}
}
