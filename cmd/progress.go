package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/purifier-console/internal/progress"
	"github.com/JakeFAU/purifier-console/internal/render"
)

func newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect and inject live processing progress",
	}

	report := &cobra.Command{
		Use:   "report <episode-id> <percent> <stage>",
		Short: "Push a progress event through the manager",
		Long: `report asks the manager to broadcast a progress event to every
connected client. It is meant for checking the live channel end to end.`,
		Args: cobra.ExactArgs(3),
		RunE: runProgressReport,
	}

	var episodeID int64
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print progress events as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProgressTail(cmd, episodeID)
		},
	}
	tail.Flags().Int64Var(&episodeID, "episode", 0, "only print events of this episode id")

	cmd.AddCommand(report, tail)
	return cmd
}

func runProgressReport(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	episodeID, err := parseID(args[0])
	if err != nil {
		return err
	}
	percent, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid percent %q", args[1])
	}
	if err := appInstance.GetConsole().ReportProgress(cmd.Context(), episodeID, percent, args[2]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reported %d%% %s for episode %d\n", percent, args[2], episodeID)
	return nil
}

func runProgressTail(cmd *cobra.Command, episodeID int64) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	lines := make(chan string, 64)
	channel, err := appInstance.NewChannel(func(evt progress.Event) {
		if episodeID != 0 && evt.EpisodeID != episodeID {
			return
		}
		select {
		case lines <- render.Event(evt):
		default:
		}
	})
	if err != nil {
		return err
	}
	channel.Connect()
	defer channel.Disconnect()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case line := <-lines:
			fmt.Fprintln(out, line)
		}
	}
}
