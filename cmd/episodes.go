package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/purifier-console/internal/episodes"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/render"
)

// listFlags are the listing filters shared by "episodes list" and "watch".
type listFlags struct {
	feedID      int64
	status      string
	showIgnored bool
	page        int
	pageSize    int
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.feedID, "feed", 0, "only episodes of this feed id")
	cmd.Flags().StringVar(&f.status, "status", "", "only episodes with this status")
	cmd.Flags().BoolVar(&f.showIgnored, "show-ignored", false, "include ignored episodes")
	cmd.Flags().IntVar(&f.page, "page", manager.DefaultPage, "page number, starting at 1")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "items per page (default view.page_size)")
}

func (f *listFlags) params(defaultPageSize int) (manager.ListEpisodesParams, error) {
	status := manager.Status(f.status)
	if status != "" && !status.Valid() {
		return manager.ListEpisodesParams{}, fmt.Errorf("unknown status %q", f.status)
	}
	if f.feedID < 0 {
		return manager.ListEpisodesParams{}, fmt.Errorf("invalid feed id %d", f.feedID)
	}
	pageSize := f.pageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return manager.ListEpisodesParams{
		FeedID:      f.feedID,
		Status:      status,
		ShowIgnored: f.showIgnored,
		Page:        f.page,
		PageSize:    pageSize,
	}, nil
}

func newEpisodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List and act on episodes",
	}

	var flags listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List one page of episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEpisodesList(cmd, &flags)
		},
	}
	flags.register(list)

	cmd.AddCommand(
		list,
		newBulkCmd("queue", "Queue episodes for processing", "Queued %d episodes\n",
			func(ctx context.Context, a App, ids []int64) (int, error) {
				res, err := a.GetConsole().QueueEpisodes(ctx, ids)
				return res.Queued, err
			}),
		newBulkCmd("ignore", "Hide episodes from the default listing", "Ignored %d episodes\n",
			func(ctx context.Context, a App, ids []int64) (int, error) {
				res, err := a.GetConsole().IgnoreEpisodes(ctx, ids)
				return res.Ignored, err
			}),
		newBulkCmd("restore", "Return ignored episodes to discovered", "Restored %d episodes\n",
			func(ctx context.Context, a App, ids []int64) (int, error) {
				res, err := a.GetConsole().RestoreEpisodes(ctx, ids)
				return res.Restored, err
			}),
	)
	return cmd
}

func runEpisodesList(cmd *cobra.Command, flags *listFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	params, err := flags.params(appInstance.GetConfig().View.PageSize)
	if err != nil {
		return err
	}
	page, err := appInstance.GetConsole().ListEpisodes(cmd.Context(), params)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, render.Episodes(episodes.Overlay(page.Items, nil), time.Now()))
	fmt.Fprintln(out, render.PageFooter(page))
	return nil
}

func newBulkCmd(
	name, short, done string,
	call func(ctx context.Context, a App, ids []int64) (int, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <episode-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			n, err := call(cmd.Context(), appInstance, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), done, n)
			return nil
		},
	}
}
