// Command reports-admin is the operator CLI for the reports service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/target/mmk-reports-api/config"
	"github.com/target/mmk-reports-api/internal/bootstrap"
)

type commandContext struct {
	Logger *slog.Logger
	Config config.AppConfig
}

type ctxKey struct{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "reports-admin",
		Short:         "Operate the reports job store",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := bootstrap.InitLoggerWithLevel(cmd.ErrOrStderr(), level)
			cmd.SetContext(context.WithValue(cmd.Context(), ctxKey{}, &commandContext{
				Logger: logger,
				Config: cfg,
			}))
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newMigrateCmd(),
		newListCmd(),
		newGetCmd(),
		newStatusCmd(),
		newReapCmd(),
	)
	return root
}

func cmdContext(cmd *cobra.Command) (*commandContext, error) {
	cc, ok := cmd.Context().Value(ctxKey{}).(*commandContext)
	if !ok || cc == nil {
		return nil, fmt.Errorf("%s: command context not initialised", cmd.Name())
	}
	return cc, nil
}
