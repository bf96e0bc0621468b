package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/purifier-console/internal/render"
)

func newFeedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage subscribed podcast feeds",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List subscribed feeds",
			Args:  cobra.NoArgs,
			RunE:  runFeedsList,
		},
		&cobra.Command{
			Use:   "add <rss-url>",
			Short: "Subscribe to a feed and import its episodes",
			Args:  cobra.ExactArgs(1),
			RunE:  runFeedsAdd,
		},
		&cobra.Command{
			Use:   "delete <feed-id>",
			Short: "Delete a feed and all of its episodes",
			Args:  cobra.ExactArgs(1),
			RunE:  runFeedsDelete,
		},
		&cobra.Command{
			Use:   "ingest <feed-id>",
			Short: "Re-read a feed and import new episodes",
			Args:  cobra.ExactArgs(1),
			RunE:  runFeedsIngest,
		},
		&cobra.Command{
			Use:       "auto-process <feed-id> on|off",
			Short:     "Toggle automatic processing of new episodes",
			Args:      cobra.ExactArgs(2),
			ValidArgs: []string{"on", "off"},
			RunE:      runFeedsAutoProcess,
		},
		&cobra.Command{
			Use:   "url <feed-id>",
			Short: "Print the purified RSS URL of a feed",
			Args:  cobra.ExactArgs(1),
			RunE:  runFeedsURL,
		},
	)
	return cmd
}

func runFeedsList(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	feeds, err := appInstance.GetConsole().ListFeeds(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.Feeds(feeds, time.Now()))
	return nil
}

func runFeedsAdd(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	feed, err := appInstance.GetConsole().CreateFeed(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to feed %d: %s\n", feed.ID, feed.Title)
	return nil
}

func runFeedsDelete(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	feedID, err := parseID(args[0])
	if err != nil {
		return err
	}
	res, err := appInstance.GetConsole().DeleteFeed(cmd.Context(), feedID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted feed %d and %d episodes\n", feedID, res.DeletedEpisodes)
	return nil
}

func runFeedsIngest(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	feedID, err := parseID(args[0])
	if err != nil {
		return err
	}
	res, err := appInstance.GetConsole().IngestFeed(cmd.Context(), feedID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Found %d new episodes\n", res.NewEpisodes)
	for _, ep := range res.Episodes {
		fmt.Fprintf(cmd.OutOrStdout(), "  %d  %s\n", ep.ID, ep.Title)
	}
	return nil
}

func runFeedsAutoProcess(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	feedID, err := parseID(args[0])
	if err != nil {
		return err
	}
	var enabled bool
	switch args[1] {
	case "on":
		enabled = true
	case "off":
	default:
		return fmt.Errorf("auto-process must be on or off, got %q", args[1])
	}
	feed, err := appInstance.GetConsole().SetAutoProcess(cmd.Context(), feedID, enabled)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Auto-process for feed %d is %s\n", feed.ID, args[1])
	return nil
}

func runFeedsURL(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	feedID, err := parseID(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), appInstance.GetManager().PurifiedFeedURL(feedID))
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
