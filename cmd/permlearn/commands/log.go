package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/scope"
)

var (
	logRule    string
	logScope   string
	logSession string
	logContext []string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record an approved permission rule",
	Long: `Record one approved permission prompt in the event log.

Examples:
  permlearn log --rule 'Bash(git status:*)'
  permlearn log --rule 'Read(~/docs/**)' --scope /home/dev/api --session s42`,
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVar(&logRule, "rule", "", "Approved rule text (required)")
	logCmd.Flags().StringVar(&logScope, "scope", "", "Scope the approval happened in (defaults to the current directory)")
	logCmd.Flags().StringVar(&logSession, "session", "", "Session the approval happened in")
	logCmd.Flags().StringArrayVar(&logContext, "context", nil, "Extra context as key=value (repeatable)")
	logCmd.MarkFlagRequired("rule")
}

func runLog(cmd *cobra.Command, args []string) error {
	eng, _, err := loadEngine()
	if err != nil {
		return err
	}

	scopeID := logScope
	if scopeID == "" {
		workDir, err := os.Getwd()
		if err != nil {
			return err
		}
		// Approvals from anywhere inside one repository share a scope.
		scopeID, err = scope.Resolve(workDir)
		if err != nil {
			return err
		}
	}

	var ctxFields map[string]any
	if len(logContext) > 0 {
		ctxFields = make(map[string]any, len(logContext))
		for _, kv := range logContext {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid --context %q, expected key=value", kv)
			}
			ctxFields[key] = value
		}
	}

	ev := approval.Event{
		RuleText:  logRule,
		ScopeID:   scopeID,
		SessionID: logSession,
		Context:   ctxFields,
	}
	if err := eng.RecordApproval(cmd.Context(), ev); err != nil {
		return err
	}

	fmt.Printf("Recorded %s (scope %s)\n", logRule, scopeID)
	return nil
}
