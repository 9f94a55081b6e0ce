package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/engine"
)

var (
	applyReject bool
	applyJSON   bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <suggestion-id>",
	Short: "Accept or reject a suggestion",
	Long: `Accept a suggestion, adding its proposed rules to the allow-list, or
reject it with --reject so it stops being proposed.

Examples:
  permlearn apply category:git_read_only
  permlearn apply cross_scope:docker --reject`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyReject, "reject", false, "Reject the suggestion instead of accepting it")
	applyCmd.Flags().BoolVar(&applyJSON, "json", false, "Output as JSON")
}

func runApply(cmd *cobra.Command, args []string) error {
	eng, _, err := loadEngine()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sug, err := eng.FindSuggestion(ctx, args[0])
	if err != nil {
		return err
	}

	result, err := eng.ApplyDecision(ctx, engine.DecisionFor(*sug, !applyReject))
	if err != nil {
		return err
	}

	if applyJSON {
		return printJSON(result)
	}

	if !result.Accepted {
		fmt.Printf("Rejected %s; it will not be proposed again.\n", sug.ID)
	} else {
		if len(result.Added) > 0 {
			fmt.Printf("Added %d rule(s) (batch %s):\n", len(result.Added), result.BatchID)
			for _, rule := range result.Added {
				fmt.Printf("  + %s\n", rule)
			}
		} else {
			fmt.Println("No rules added.")
		}
		for _, sk := range result.Skipped {
			if sk.Nearest != "" {
				fmt.Printf("  skipped %s: %s (nearest: %s)\n", sk.Rule, sk.Reason, sk.Nearest)
			} else {
				fmt.Printf("  skipped %s: %s\n", sk.Rule, sk.Reason)
			}
		}
		if result.Backup != "" {
			fmt.Printf("Backup: %s\n", result.Backup)
		}
	}

	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}
