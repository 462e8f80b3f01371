package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-concierge/internal/config"
	"github.com/teslashibe/go-concierge/internal/log"
	"github.com/teslashibe/go-concierge/pkg/realtime"
	"github.com/teslashibe/go-concierge/pkg/server"
)

func newCallCmd(cfg *config.Config) *cobra.Command {
	var greeting string

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place one voice call using stdin and stdout as audio",
		Long: `Place a single voice call.

Microphone PCM (s16le, mono, at the configured sample rate) is read from
stdin and model audio is written to stdout in the same format. Transcripts
and state changes are logged to stderr. Interrupt to hang up.

The credential comes from VOICE_TOKEN_URL when set, otherwise it is minted
in-process with OPENAI_API_KEY.

Example:
  arecord -f S16_LE -r 48000 -c 1 -t raw | concierge call | aplay -f S16_LE -r 48000 -c 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.With("cmd", "call")

			var creds realtime.CredentialSource
			if cfg.VoiceTokenURL != "" {
				creds = realtime.NewHTTPCredentials(cfg.VoiceTokenURL, nil, logger)
			} else if cfg.OpenAIAPIKey != "" {
				creds = server.NewOpenAIIssuer(cfg.RealtimeSessionsURL, cfg.OpenAIAPIKey, cfg.RealtimeModel, cfg.SystemPrompt, nil, logger)
			} else {
				return errors.New("set VOICE_TOKEN_URL or OPENAI_API_KEY")
			}

			ctrl, err := newController(cfg, creds, audioPaths{stdio: true}, nil, logger)
			if err != nil {
				return err
			}

			ended := make(chan struct{}, 1)
			out := transcript{w: os.Stderr}
			ctrl.OnState(out.state)
			ctrl.OnMessage(out.message)
			ctrl.OnError(func(err error) {
				logger.Warn("session error", "error", err, "fatal", realtime.IsFatal(err))
			})
			ctrl.OnLifecycle(func(ev realtime.LifecycleEvent) {
				logger.Info("lifecycle", "kind", ev.Kind, "session_id", ev.SessionID, "reason", ev.Reason)
				if ev.Kind == realtime.LifecycleStarted && greeting != "" {
					ctrl.SendText(greeting)
				}
				if ev.Kind == realtime.LifecycleEnded {
					select {
					case ended <- struct{}{}:
					default:
					}
				}
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := ctrl.Start(ctx); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				logger.Info("hanging up")
			case <-ended:
			}
			ctrl.Stop()
			if h := ctrl.History(); len(h) > 0 {
				logger.Info("call finished", "messages", len(h), "history_id", ctrl.Snapshot().HistoryID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&greeting, "greeting", "g", "", "text to send once the call connects")
	return cmd
}
