package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/purifier-console/internal/render"
)

func newActionsCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Show the audit log of console actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			actions, err := appInstance.GetConsole().Actions(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Actions(actions, time.Now()))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip, newest first")
	return cmd
}
