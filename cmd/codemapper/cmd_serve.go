package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/app"
)

func runServe(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	go func() {
		if err := a.Start(); err != nil {
			logger.WithError(err).Error("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server exiting")
	return nil
}
