package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recalibrateJSON bool

var recalibrateCmd = &cobra.Command{
	Use:   "recalibrate",
	Short: "Adjust detection thresholds from accumulated feedback",
	RunE:  runRecalibrate,
}

func init() {
	recalibrateCmd.Flags().BoolVar(&recalibrateJSON, "json", false, "Output as JSON")
}

func runRecalibrate(cmd *cobra.Command, args []string) error {
	eng, _, err := loadEngine()
	if err != nil {
		return err
	}

	result, err := eng.RunRecalibration(cmd.Context())
	if err != nil {
		return err
	}

	if recalibrateJSON {
		return printJSON(result)
	}

	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}

	if len(result.Adjustments) == 0 {
		fmt.Printf("No adjustments; thresholds stay at version %d.\n", result.Version)
		return nil
	}

	fmt.Printf("Thresholds now at version %d:\n", result.Version)
	for _, adj := range result.Adjustments {
		fmt.Printf("  %s %s: %g -> %g (%s)\n", adj.Tier, adj.Parameter, adj.Before, adj.After, adj.Reason)
	}
	return nil
}
