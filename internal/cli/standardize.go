package cli

import (
	"fmt"

	"github.com/hbomb79/galleria/internal"
	"github.com/spf13/cobra"
)

var flagDryRun bool

var standardizeCmd = &cobra.Command{
	Use:   "standardize",
	Short: "Rename straight apostrophes in year-prefixed source folders to ’",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		summary, err := internal.New(cfg).Standardize(cmd.Context(), flagDryRun)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		verb := "Renamed"
		if flagDryRun {
			verb = "Would rename"
		}
		fmt.Fprintf(out, "%s %s\n", styleHeader.Render(verb+":"), styleValue.Render(fmt.Sprint(summary.Renamed)))
		fmt.Fprintf(out, "%s %s\n", styleHeader.Render("Skipped:"), styleWarn.Render(fmt.Sprint(summary.Skipped)))
		fmt.Fprintf(out, "%s %s\n", styleHeader.Render("Errors:"), styleError.Render(fmt.Sprint(summary.Errors)))
		return nil
	},
}

func init() {
	standardizeCmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "report the renames without applying them")
	RootCmd.AddCommand(standardizeCmd)
}
