package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/feedback"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/storage"
)

var (
	statusDiff bool
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store sizes, thresholds, and learning health",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusDiff, "diff", false, "Show what changed since the latest settings backup")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, _, err := loadEngine()
	if err != nil {
		return err
	}

	st, err := eng.Status(cmd.Context())
	if err != nil {
		return err
	}

	if statusJSON {
		return printJSON(st)
	}

	fmt.Println("Events:")
	fmt.Printf("  %d event(s), %d bytes, %d archive(s)\n", st.Events.Count, st.Events.Size, st.Events.Archives)
	fmt.Printf("  %s\n", st.Events.Path)
	fmt.Println()

	fmt.Println("Rules:")
	fmt.Printf("  %d rule(s) allowed, %d learned in %d batch(es), %d backup(s)\n",
		st.Rules.Rules, st.Rules.Learned, st.Rules.Batches, st.Rules.Backups)
	fmt.Printf("  %s\n", st.Rules.Path)
	fmt.Println()

	fmt.Printf("Thresholds (version %d):\n", st.Thresholds.Version)
	for _, tier := range st.Thresholds.Tiers {
		fmt.Printf("  %-12s %d+ occurrences in %dd, confidence >= %.2f (%s)\n",
			tier.Tier, tier.Params.MinOccurrences, tier.Params.WindowDays,
			tier.Params.ConfidenceThreshold, tier.Component)
	}
	fmt.Println()

	fmt.Println("Health:")
	for _, h := range st.Health {
		if h.Rating == feedback.RatingUnknown {
			fmt.Printf("  %-18s no decisions yet\n", h.Component)
			continue
		}
		fmt.Printf("  %-18s %s (score %.2f, %d decision(s), %.0f%% accepted)\n",
			h.Component, h.Rating, h.Score, h.Decisions, h.AcceptanceRate*100)
	}

	if statusDiff {
		fmt.Println()
		diff, added, removed, err := eng.DiffLatestBackup()
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Println("No settings backups yet.")
		case err != nil:
			return err
		case diff == "":
			fmt.Println("No changes since the latest backup.")
		default:
			fmt.Printf("Changes since the latest backup (+%d/-%d lines):\n%s", added, removed, diff)
		}
	}
	return nil
}
