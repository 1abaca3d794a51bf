package cmd

import (
	"context"
	"fmt"
	"os"

	"fitspo-feed/config"
	"fitspo-feed/logging"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fitspo-feed",
		Short:         "FitSpo hot feed service",
		Long:          "fitspo-feed serves the FitSpo hot, recent and explore feeds and keeps the daily post rank table.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default $"+config.PathEnv+")")

	load := func(ctx context.Context) (*App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger := logging.New(cfg.Log.Level, cfg.Log.Format)
		return NewApp(ctx, cfg, logger)
	}

	serve := newServeCmd(load)
	root.RunE = serve.RunE
	root.AddCommand(serve, newHotCmd(load), newRankCmd(load), versionCmd)
	return root
}

type appLoader func(ctx context.Context) (*App, error)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fitspo-feed %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
