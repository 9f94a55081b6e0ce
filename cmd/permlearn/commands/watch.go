package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/trigger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the approval log and run detection on new activity",
	Long: `Watch the approval log and run a detection pass whenever new
approvals land. New suggestions are printed as they appear.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	eng, cfg, err := loadEngine()
	if err != nil {
		return err
	}

	trCfg := trigger.Config{
		Path: eng.ApprovalLogPath(),
		Run: func(ctx context.Context) error {
			result, err := eng.RunDetection(ctx)
			if err != nil {
				return err
			}
			for _, sug := range result.Suggestions {
				fmt.Printf("%s  [%s, confidence %.2f]  %s\n",
					sug.ID, sug.Tier, sug.Confidence, sug.Description)
			}
			if len(result.Suggestions) > 0 {
				fmt.Println("Decide with: permlearn apply <id> [--reject]")
			}
			return nil
		},
	}
	if cfg.Trigger != nil {
		if cfg.Trigger.DebounceMS > 0 {
			trCfg.Debounce = time.Duration(cfg.Trigger.DebounceMS) * time.Millisecond
		}
		if cfg.Trigger.EventBudget > 0 {
			trCfg.EventBudget = cfg.Trigger.EventBudget
		}
	}

	tr, err := trigger.New(trCfg)
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", tr.Path())
	tr.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return tr.Stop()
}
