package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.aimuz.me/voicechat/metrics"
	"go.aimuz.me/voicechat/relay"
)

func newRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the snippet endpoint and the realtime channel hub",
		RunE:  runRelay,
	}
	cmd.Flags().String("addr", "", "listen address; overrides the config")
	return cmd
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Relay.Addr
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	srv := relay.New(relay.Config{
		Channel: cfg.Realtime.Channel,
		Hub:     relay.HubConfig{OriginPatterns: cfg.Relay.OriginPatterns},
		Logger:  logger,
		Metrics: metrics.New(nil),
	}, nil)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", addr, "channel", cfg.Realtime.Channel)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("relay stopped")
	return nil
}
