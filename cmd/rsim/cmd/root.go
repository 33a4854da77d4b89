// Package cmd provides the command-line interface of rsim.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"

	"github.com/sarchlab/rsim/sim"
)

type rootOptions struct {
	logLevel string
	envFiles []string
}

// newRootCmd creates the command tree. Each call returns a fresh tree so
// that flags do not leak between executions.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "rsim",
		Short: "rsim runs port-and-clock simulations.",
		Long: `rsim runs the example networks on the simulation kernel and ` +
			`inspects the trace files that they record.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger(opts.logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info",
		"log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil,
		"dotenv files with RSIM_* settings")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newInspectCmd())

	return rootCmd
}

func setupLogger(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)
	sim.SetLogger(logger)

	atexit.Register(func() { _ = logger.Sync() })

	return nil
}

// Execute runs the command line and exits. The exit handlers, which close
// the trace files, run before the process ends.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
