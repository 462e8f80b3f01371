package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/teslashibe/go-concierge/internal/config"
	"github.com/teslashibe/go-concierge/internal/httpc"
	"github.com/teslashibe/go-concierge/pkg/audioio"
	"github.com/teslashibe/go-concierge/pkg/audioio/opus"
	"github.com/teslashibe/go-concierge/pkg/history"
	"github.com/teslashibe/go-concierge/pkg/realtime"
)

// audioPaths names the PCM pipes a controller captures from and plays to.
// An empty mic uses a synthetic tone; an empty speaker discards audio.
type audioPaths struct {
	mic     string
	speaker string
	stdio   bool
}

func (p audioPaths) audioConfig(cfg *config.Config) audioio.Config {
	ac := audioio.DefaultConfig()
	ac.Backend = audioio.Backend(cfg.AudioBackend)
	ac.SampleRate = cfg.SampleRate
	if !p.stdio && p.mic == "" {
		ac.Backend = audioio.BackendMock
	}
	return ac
}

func (p audioPaths) sourceFactory(ac audioio.Config, logger *slog.Logger) realtime.SourceFactory {
	return func() (audioio.Source, error) {
		var r io.Reader
		switch {
		case p.stdio:
			r = os.Stdin
		case p.mic != "":
			f, err := os.Open(p.mic)
			if err != nil {
				return nil, err
			}
			r = f
		}
		return audioio.NewSource(ac, r, logger)
	}
}

func (p audioPaths) sink(ac audioio.Config, logger *slog.Logger) (audioio.Sink, error) {
	var w io.Writer
	switch {
	case p.stdio:
		w = os.Stdout
	case p.speaker != "":
		f, err := os.OpenFile(p.speaker, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
	default:
		return nil, nil
	}
	if ac.Backend == audioio.BackendMock {
		ac.Backend = audioio.BackendPipe
	}
	return audioio.NewSink(ac, w, logger)
}

// newController wires a WebRTC controller from process configuration.
func newController(cfg *config.Config, creds realtime.CredentialSource, paths audioPaths, rec realtime.Recorder, logger *slog.Logger) (*realtime.Controller, error) {
	ac := paths.audioConfig(cfg)
	sink, err := paths.sink(ac, logger)
	if err != nil {
		return nil, err
	}

	peerCfg := realtime.DefaultPeerConfig()
	peerCfg.STUNServers = cfg.STUNServers
	peerCfg.ICEGatherTimeout = cfg.ICEGatherTimeout

	signaler := realtime.NewHTTPSignaler(cfg.RealtimeURL, cfg.RealtimeModel, httpc.NewClient(0), logger)
	pm, err := realtime.NewPeerManager(peerCfg, signaler, opus.Codec{}, paths.sourceFactory(ac, logger), sink, logger)
	if err != nil {
		return nil, err
	}

	opts := []realtime.Option{
		realtime.WithLogger(logger),
		realtime.WithVoices(realtime.VoiceMap{
			realtime.English: cfg.VoiceEnglish,
			realtime.Hindi:   cfg.VoiceHindi,
		}),
	}
	if rec != nil {
		opts = append(opts, realtime.WithRecorder(rec))
	}
	if cfg.HistoryURL != "" {
		opts = append(opts, realtime.WithHistory(history.NewClient(cfg.HistoryURL, nil, logger)))
	}
	return realtime.NewController(creds, pm, opts...)
}
