package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/detect"
)

var detectJSON bool

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run a detection pass and print the suggestions",
	RunE:  runDetect,
}

func init() {
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Output as JSON")
}

func runDetect(cmd *cobra.Command, args []string) error {
	eng, _, err := loadEngine()
	if err != nil {
		return err
	}

	result, err := eng.RunDetection(cmd.Context())
	if err != nil {
		return err
	}

	if detectJSON {
		return printJSON(result)
	}

	fmt.Printf("Scanned %d event(s) with thresholds v%d\n", result.EventCount, result.ThresholdsVersion)
	if result.SkippedCovered > 0 {
		fmt.Printf("%d suggestion(s) already covered by existing rules\n", result.SkippedCovered)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}

	if len(result.Suggestions) == 0 {
		fmt.Println("No new suggestions.")
		return nil
	}

	fmt.Println()
	for _, sug := range result.Suggestions {
		printSuggestion(sug)
	}
	fmt.Println("Decide with: permlearn apply <id> [--reject]")
	return nil
}

func printSuggestion(sug detect.Suggestion) {
	fmt.Printf("%s  [%s, confidence %.2f]\n", sug.ID, sug.Tier, sug.Confidence)
	fmt.Printf("  %s\n", sug.Description)
	fmt.Printf("  Seen %d time(s) in the last %d day(s)\n", sug.Source.Occurrences, sug.Source.WindowDays)
	for _, rule := range sug.ProposedRules {
		fmt.Printf("  + %s\n", rule)
	}
	if sug.ImpactEstimate != "" {
		fmt.Printf("  %s\n", sug.ImpactEstimate)
	}
	fmt.Println()
}
