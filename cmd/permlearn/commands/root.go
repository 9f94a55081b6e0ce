// Package commands provides the CLI commands for permlearn.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/config"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/engine"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel string
	dataDir  string
	pretty   bool
)

var rootCmd = &cobra.Command{
	Use:   "permlearn",
	Short: "permlearn - learn allow-list rules from approved permission prompts",
	Long: `permlearn records the permission prompts you approve, detects the
patterns you approve over and over, and proposes allow-list rules so
those prompts stop appearing.

Record approvals with 'permlearn log', review proposals with
'permlearn detect', and decide on them with 'permlearn apply'.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand, show help
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding the engine's data files")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human-readable log output")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("permlearn %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(recalibrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadEngine builds the engine from the layered configuration plus the
// global flag overrides, and initializes logging to match.
func loadEngine() (*engine.Engine, *config.Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	lcfg := logging.DefaultConfig()
	switch {
	case logLevel != "":
		lcfg.Level = logging.ParseLevel(logLevel)
	case cfg.LogLevel != "":
		lcfg.Level = logging.ParseLevel(cfg.LogLevel)
	}
	if pretty {
		lcfg.Pretty = true
	}
	logging.Init(lcfg)

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

// printJSON renders a result the way --json flags expect it.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
