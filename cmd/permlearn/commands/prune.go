package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Retention defaults when neither the flag nor the config set a window.
const (
	defaultApprovalRetentionDays = 90
	defaultFeedbackRetentionDays = 180
)

var pruneOlderThan int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop approval events and feedback records past retention",
	Long: `Drop approval events and feedback records older than the retention
window. With --older-than both logs use the given window; otherwise the
configured retention (or the built-in defaults) applies per log.`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneOlderThan, "older-than", 0, "Retention window in days for both logs")
}

func runPrune(cmd *cobra.Command, args []string) error {
	eng, cfg, err := loadEngine()
	if err != nil {
		return err
	}

	approvalDays := pruneOlderThan
	feedbackDays := pruneOlderThan
	if pruneOlderThan <= 0 {
		approvalDays = defaultApprovalRetentionDays
		feedbackDays = defaultFeedbackRetentionDays
		if cfg.Retention != nil {
			if cfg.Retention.ApprovalDays > 0 {
				approvalDays = cfg.Retention.ApprovalDays
			}
			if cfg.Retention.FeedbackDays > 0 {
				feedbackDays = cfg.Retention.FeedbackDays
			}
		}
	}

	ctx := cmd.Context()

	removed, err := eng.PruneApprovals(ctx, approvalDays)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d approval event(s) older than %d day(s).\n", removed, approvalDays)

	removedFeedback, err := eng.PruneFeedback(ctx, feedbackDays)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d feedback record(s) older than %d day(s).\n", removedFeedback, feedbackDays)
	return nil
}
