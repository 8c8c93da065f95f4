// Command snaptrigger grabs camera snapshots on demand and delivers them to a
// chat.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "snaptrigger",
		Short:         "Trigger-driven camera snapshot dispatcher",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.home, "home", "", "home directory (default: platform config dir)")
	pf.StringVar(&opts.config, "config", "", "config file (default: <home>/config.yaml)")
	pf.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default: ./.env and <home>/.env)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json (overrides config)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSourcesCmd(opts),
		newCaptureCmd(opts),
		newTriggerCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.load(true)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, env)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// contextOrBackground returns the command's context, which cobra leaves nil
// when Execute is used instead of ExecuteContext.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
