package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/scheduler"
	"github.com/kozaktomas/rollcall/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the rollcall HTTP API.

The API exposes enrollment, recognition and attendance sessions under /api/v1.
Expired sessions are deactivated in the background every SESSION_SWEEP_INTERVAL.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies flag overrides on top of the environment.
func resolveServeHostPort(cmd *cobra.Command, a *app) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resolveServeHostPort(cmd, a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.cfg.Scheduler.SweepInterval > 0 {
		sweeper := scheduler.NewSweeper(a.ledger, a.debouncer, a.cfg.Scheduler.SweepInterval, a.logger)
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
	} else {
		a.logger.Warn("session sweeper disabled; expired sessions stay active until closed")
	}

	server := web.NewServer(a.cfg, web.Services{
		Store:      a.store,
		Engine:     a.engine,
		Enrollment: a.manager,
		Ledger:     a.ledger,
		Recognizer: a.recognizer,
	}, a.logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		a.logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", "error", err)
		}
	}()

	a.logger.Info("rollcall API listening",
		"url", fmt.Sprintf("http://%s:%d/api/v1", a.cfg.Web.Host, a.cfg.Web.Port),
		"backend", a.cfg.Storage.Backend,
		"threshold", a.engine.Config().Threshold,
	)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
