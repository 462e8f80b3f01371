package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-concierge/internal/config"
	"github.com/teslashibe/go-concierge/internal/log"
	"github.com/teslashibe/go-concierge/internal/metrics"
	"github.com/teslashibe/go-concierge/pkg/history"
	"github.com/teslashibe/go-concierge/pkg/realtime"
	"github.com/teslashibe/go-concierge/pkg/server"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var (
		voice bool
		paths audioPaths
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the concierge HTTP server.

Routes:
  GET  /api/voice           ephemeral realtime credential
  POST /api/history         create or update a conversation
  GET  /api/history/:id     load a conversation
  /api/session/...          control the server-hosted voice session (--voice)
  GET  /ws/events           UI event feed
  GET  /metrics, /health`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.With("cmd", "serve")
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			storeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			store, err := history.NewStore(storeCtx, cfg.DatabaseURL)
			cancel()
			if err != nil {
				return err
			}
			defer store.Close()

			m := metrics.New("concierge")
			issuer := server.NewOpenAIIssuer(cfg.RealtimeSessionsURL, cfg.OpenAIAPIKey, cfg.RealtimeModel, cfg.SystemPrompt, nil, logger)

			var ctrl *realtime.Controller
			if voice {
				ctrl, err = newController(cfg, issuer, paths, m, logger)
				if err != nil {
					return err
				}
				defer ctrl.Stop()
			}

			srv, err := server.New(server.Options{
				Issuer:     issuer,
				Store:      store,
				Controller: ctrl,
				Metrics:    m,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.Listen(":" + cfg.Port) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
				logger.Info("shutting down")
				return srv.Shutdown()
			}
		},
	}

	cmd.Flags().BoolVar(&voice, "voice", false, "host voice sessions on this machine's audio pipes")
	cmd.Flags().StringVar(&paths.mic, "mic", "", "PCM capture pipe (s16le at the configured rate, mono); empty uses a test tone")
	cmd.Flags().StringVar(&paths.speaker, "speaker", "", "PCM playback pipe; empty discards model audio")
	return cmd
}
