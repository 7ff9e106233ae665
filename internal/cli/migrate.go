package cli

import (
	"errors"
	"fmt"

	"github.com/hbomb79/galleria/internal"
	"github.com/hbomb79/galleria/internal/report"
	"github.com/spf13/cobra"
)

var flagCreate bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report how every source project would be handled, without writing to the target",
	Args:  cobra.NoArgs,
	RunE:  migrateRunner(report.ModeVerify),
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create target project and gallery directories for every source project",
	Args:  cobra.NoArgs,
	RunE:  migrateRunner(report.ModeInit),
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Convert every source gallery in to its matched target gallery",
	Long:  "Converts the media of every matched project. Outputs which already exist are left untouched, so an interrupted run can simply be repeated.",
	Args:  cobra.NoArgs,
	RunE:  migrateRunner(report.ModeProcess),
}

func init() {
	processCmd.Flags().BoolVar(&flagCreate, "create", false, "create target directories for unmatched projects instead of skipping them")
	RootCmd.AddCommand(verifyCmd, initCmd, processCmd)
}

func migrateRunner(mode report.Mode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		outcome, err := internal.New(cfg).Migrate(cmd.Context(), mode, flagCreate)
		if outcome != nil {
			printSummary(cmd.OutOrStdout(), outcome)
		}
		if err != nil {
			if errors.Is(err, cmd.Context().Err()) {
				return fmt.Errorf("run interrupted, partial report written: %w", err)
			}
			return err
		}

		return nil
	}
}
