package commands

import (
	"cashsync/lib/telemetry"
	"cashsync/lib/util/serviceutil"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
	tel        telemetry.Telemetry
}

func (o *rootOptions) loadConfig() (Config, error) {
	return LoadConfig(o.configPath)
}

func newRootCmd(stderr io.Writer) (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "cashsync",
		Short:         "cashsync keeps the customer table in sync with the Cashbarber subscriber report.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(telemetry.NewLogger(stderr, opts.verbose))

			tel, err := telemetry.SetupFromEnv(cmd.Context(), "cashsync")
			if err != nil {
				return fmt.Errorf("setup telemetry: %w", err)
			}
			opts.tel = tel
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", DefaultConfig, "Path to the json5 config file.")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level.")

	rootCmd.AddCommand(
		newSyncCmd(opts),
		newScrapeCmd(opts),
		newMatchCmd(opts),
		newRunsCmd(opts),
	)
	return rootCmd, opts
}

// Execute runs the CLI and returns the process exit status: 0 on success,
// 1 on a fatal error and 2 when a sync finished with failed rows.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd, opts := newRootCmd(stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)

	shutdownErr := opts.tel.Shutdown(context.Background())
	if shutdownErr != nil {
		slog.Warn("failed to shutdown telemetry", "err", shutdownErr)
	}

	if err != nil {
		fmt.Fprintln(stderr, err)
	}
	return serviceutil.ExitCode(err)
}
