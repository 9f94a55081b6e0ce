package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP decision surface",
	Long: `Start an HTTP server exposing suggestions, decisions, status, rules,
and approval recording as JSON endpoints, plus a live event stream.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 7777, "Port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, cfg, err := loadEngine()
	if err != nil {
		return err
	}

	serverCfg := server.DefaultConfig()
	if cfg.Server != nil {
		if cfg.Server.Port != 0 {
			serverCfg.Port = cfg.Server.Port
		}
		serverCfg.EnableCORS = cfg.Server.EnableCORS
	}
	if cmd.Flags().Changed("port") {
		serverCfg.Port = servePort
	}

	srv := server.New(serverCfg, eng)

	// Start server in goroutine
	go func() {
		logging.Info().Int("port", serverCfg.Port).Msg("decision surface listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
