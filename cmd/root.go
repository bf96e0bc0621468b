package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/app"
	"github.com/JakeFAU/purifier-console/internal/config"
	"github.com/JakeFAU/purifier-console/internal/console"
	"github.com/JakeFAU/purifier-console/internal/logging"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/progress"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services commands use. Tests swap the factory below.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetManager() *manager.Client
	GetConsole() *console.Service
	NewChannel(onEvent func(progress.Event)) (*progress.Channel, error)
	Ping(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	appInstance, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return nil, err
	}
	return appInstance, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "purifier",
		Short: "Admin console for the podcast purifier manager.",
		Long: `purifier manages podcast feeds and episodes through the purifier
manager and shows live processing progress pushed over its websocket.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env overrides use the PURIFIER_ prefix)")

	cmd.AddCommand(
		newFeedsCmd(),
		newEpisodesCmd(),
		newWatchCmd(),
		newProgressCmd(),
		newActionsCmd(),
		newServeCmd(),
	)
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
