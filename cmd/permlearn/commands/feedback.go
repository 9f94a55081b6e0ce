package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	feedbackSuggestion string
	feedbackReverted   bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record follow-up feedback for a decided suggestion",
	Long: `Record that an accepted suggestion did not work out. Marking it
reverted counts against the component that proposed it the next time
thresholds are recalibrated.

Example:
  permlearn feedback --suggestion category:git_read_only --reverted`,
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackSuggestion, "suggestion", "", "Suggestion the feedback is about (required)")
	feedbackCmd.Flags().BoolVar(&feedbackReverted, "reverted", false, "Mark the accepted suggestion's rules as since removed")
	feedbackCmd.MarkFlagRequired("suggestion")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	if !feedbackReverted {
		return fmt.Errorf("nothing to record: pass --reverted")
	}

	eng, _, err := loadEngine()
	if err != nil {
		return err
	}

	if err := eng.MarkReverted(cmd.Context(), feedbackSuggestion); err != nil {
		return err
	}

	fmt.Printf("Marked %s as reverted.\n", feedbackSuggestion)
	return nil
}
