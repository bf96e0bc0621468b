package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/purifier-console/internal/episodes"
	"github.com/JakeFAU/purifier-console/internal/render"
)

const clearScreen = "\033[H\033[2J"

func newWatchCmd() *cobra.Command {
	var (
		flags   listFlags
		noClear bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live episode table with processing progress",
		Long: `watch polls the episode listing every view.poll_interval_seconds and
overlays the latest progress pushed by the manager on queued and processing
episodes. The listing stays authoritative; the overlay may lag it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, &flags, noClear)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&noClear, "no-clear", false, "append frames instead of redrawing the screen")
	return cmd
}

func runWatch(cmd *cobra.Command, flags *listFlags, noClear bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	params, err := flags.params(cfg.View.PageSize)
	if err != nil {
		return err
	}

	channel, err := appInstance.NewChannel(nil)
	if err != nil {
		return err
	}
	channel.Connect()
	defer channel.Disconnect()

	view, err := episodes.NewView(episodes.Config{
		Lister:   appInstance.GetConsole(),
		Source:   channel,
		Interval: cfg.PollInterval(),
		Params:   params,
		Logger:   appInstance.GetLogger().Named("view"),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	err = view.Run(cmd.Context(), func(frame episodes.Frame) {
		if !noClear {
			fmt.Fprint(out, clearScreen)
		}
		fmt.Fprintln(out, render.Frame(frame, time.Now()))
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
