// Package cli exposes galleria's operations as cobra commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/galleria/internal/config"
	"github.com/hbomb79/galleria/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	flagConfig      string
	flagSource      string
	flagTarget      string
	flagReportDir   string
	flagManifest    string
	flagCollage     bool
	flagConcurrency int
	flagVerbose     bool
	flagNoColor     bool
)

var RootCmd = &cobra.Command{
	Use:           "galleria",
	Short:         "Reconcile and normalize a project media archive",
	Long:          "Matches year-prefixed project folders in a source archive against a target tree, and converts each project's gallery in to consistently named, size-bounded web media.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			logger.DisableColor()
		}
		if flagVerbose {
			logger.SetMinLoggingLevel(logger.VERBOSE.Level())
		}
	},
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVarP(&flagConfig, "config", "c", "", "path to a YAML configuration file (default ./"+config.DefaultConfigFile+" if present)")
	flags.StringVarP(&flagSource, "source", "s", "", "source archive root")
	flags.StringVarP(&flagTarget, "target", "t", "", "target archive root")
	flags.StringVar(&flagReportDir, "report-dir", "", "directory for the match log, file mapping and JSON report (default {target}/_reports)")
	flags.StringVar(&flagManifest, "manifest", "", "SQLite manifest to record processed runs in")
	flags.BoolVar(&flagCollage, "mode-collage", false, "operate on '_collage' folders instead of '_gallery' folders")
	flags.IntVarP(&flagConcurrency, "concurrency", "j", 0, "number of assets converted in parallel")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVar(&flagNoColor, "no-color", false, "disable coloured output")
}

// Execute runs the root command, cancelling the command context on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RootCmd.ExecuteContext(ctx)
}

// loadConfig reads the configuration file and environment, applies any
// explicitly provided flags and finalizes the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.SourceRoot = flagSource
	}
	if flags.Changed("target") {
		cfg.TargetRoot = flagTarget
	}
	if flags.Changed("report-dir") {
		cfg.ReportDir = flagReportDir
	}
	if flags.Changed("manifest") {
		cfg.ManifestPath = flagManifest
	}
	if flags.Changed("mode-collage") {
		cfg.Collage = flagCollage
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = flagConcurrency
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}

	if !flagVerbose {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		logger.SetMinLoggingLevel(level.Level())
	}

	return cfg, nil
}
