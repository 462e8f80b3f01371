package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/teslashibe/go-concierge/pkg/audioio"
)

// Opus over WebRTC always runs at 48kHz.
const (
	opusClockRate = 48000
	opusFrame     = 20 * time.Millisecond
	opusFrameSize = opusClockRate / 50
)

// PeerHandlers receive peer events. Nil fields are skipped. Handlers stop
// firing once the peer is closed.
type PeerHandlers struct {
	OnConnectionState func(ConnectionState)
	OnChannelOpen     func(Sender)
	OnChannelMessage  func([]byte)
	OnChannelClose    func()
	OnChannelError    func(error)
}

// Peer is one negotiated connection to the model.
type Peer interface {
	Sender
	ConnectionState() ConnectionState
	// Close releases every resource the peer holds. It is idempotent.
	Close() error
}

// Connector opens peers. PeerManager is the WebRTC implementation.
type Connector interface {
	Open(ctx context.Context, credential string, h PeerHandlers) (Peer, error)
}

// SourceFactory opens a fresh microphone for each session.
type SourceFactory func() (audioio.Source, error)

// PeerConfig configures a PeerManager.
type PeerConfig struct {
	// STUNServers are tried independently; at least two distinct ones
	// are required.
	STUNServers []string

	// ICEGatherTimeout bounds candidate gathering. When it expires the
	// offer is sent with whatever candidates exist.
	ICEGatherTimeout time.Duration

	// ChannelLabel names the event data channel.
	ChannelLabel string
}

// DefaultPeerConfig returns the stock peer settings.
func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		STUNServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		ICEGatherTimeout: 5 * time.Second,
		ChannelLabel:     "oai-events",
	}
}

// Validate checks the configuration.
func (c PeerConfig) Validate() error {
	seen := make(map[string]bool, len(c.STUNServers))
	for _, u := range c.STUNServers {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			seen[u] = true
		}
	}
	if len(seen) < 2 {
		return fmt.Errorf("realtime: at least two distinct STUN servers required, got %d", len(seen))
	}
	if c.ICEGatherTimeout <= 0 {
		return errors.New("realtime: ICE gather timeout must be positive")
	}
	if c.ChannelLabel == "" {
		return errors.New("realtime: channel label is required")
	}
	return nil
}

// PeerManager builds WebRTC peers: microphone track out, model audio in,
// and the ordered event data channel.
//
// The speaker sink is shared across sessions. It is cleared when a peer
// attaches and again when it closes.
type PeerManager struct {
	cfg       PeerConfig
	signaler  Signaler
	codec     audioio.Codec
	newSource SourceFactory
	sink      audioio.Sink
	logger    *slog.Logger
}

var _ Connector = (*PeerManager)(nil)

// NewPeerManager creates a PeerManager. sink may be nil to discard model audio.
func NewPeerManager(cfg PeerConfig, signaler Signaler, codec audioio.Codec, newSource SourceFactory, sink audioio.Sink, logger *slog.Logger) (*PeerManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if signaler == nil || codec == nil || newSource == nil {
		return nil, errors.New("realtime: signaler, codec and source factory are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PeerManager{
		cfg:       cfg,
		signaler:  signaler,
		codec:     codec,
		newSource: newSource,
		sink:      sink,
		logger:    logger.With("component", "realtime.peer"),
	}, nil
}

// Open acquires the microphone, negotiates a peer connection with the
// model and returns it. On any failure everything acquired so far is
// released before Open returns.
func (m *PeerManager) Open(ctx context.Context, credential string, h PeerHandlers) (Peer, error) {
	p := &webrtcPeer{
		logger:   m.logger,
		sink:     m.sink,
		handlers: h,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	if err := m.open(ctx, p, credential); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (m *PeerManager) open(ctx context.Context, p *webrtcPeer, credential string) error {
	src, err := m.newSource()
	if err != nil {
		return &MediaAccessError{Cause: err}
	}
	p.source = src
	if err := src.Start(p.ctx); err != nil {
		return &MediaAccessError{Cause: err}
	}

	encoder, err := m.codec.NewEncoder(opusClockRate, 1)
	if err != nil {
		return fmt.Errorf("realtime: audio encoder: %w", err)
	}

	iceServers := make([]webrtc.ICEServer, 0, len(m.cfg.STUNServers))
	for _, u := range m.cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return fmt.Errorf("realtime: create peer connection: %w", err)
	}
	p.pc = pc

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", "concierge-mic",
	)
	if err != nil {
		return fmt.Errorf("realtime: create audio track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("realtime: add audio track: %w", err)
	}
	p.goPump(func() { drainRTCP(sender) })

	ordered := true
	dc, err := pc.CreateDataChannel(m.cfg.ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("realtime: create data channel: %w", err)
	}
	p.dc = dc
	p.bindChannel()

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if p.detached.Load() || remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		p.goPump(func() { p.playRemote(remote, m.codec) })
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if p.detached.Load() {
			return
		}
		state := ConnectionState(s.String())
		m.logger.Info("peer connection state", "state", state)
		if fn := p.handlers.OnConnectionState; fn != nil {
			fn(state)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("realtime: create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("realtime: set local description: %w", err)
	}

	if err := awaitGathering(ctx, gathered, m.cfg.ICEGatherTimeout, m.logger); err != nil {
		return err
	}

	answer, err := m.signaler.Negotiate(ctx, pc.LocalDescription().SDP, credential)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return &SignalingError{Cause: fmt.Errorf("set remote description: %w", err)}
	}

	if m.sink != nil {
		m.sink.Clear()
		if err := m.sink.Start(p.ctx); err != nil {
			m.logger.Warn("speaker unavailable, model audio will be dropped", "error", err)
		}
	}
	p.goPump(func() { p.captureMic(track, encoder) })

	m.logger.Info("peer negotiated", "stun_servers", len(m.cfg.STUNServers))
	return nil
}

// awaitGathering waits for ICE gathering to finish or for timeout to
// pass, whichever is first. After the timeout the offer goes out with the
// candidates gathered so far. Only ctx cancellation is an error.
func awaitGathering(ctx context.Context, gathered <-chan struct{}, timeout time.Duration, logger *slog.Logger) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-gathered:
	case <-t.C:
		logger.Warn("ICE gathering timed out, continuing", "timeout", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// webrtcPeer is the pion-backed Peer.
type webrtcPeer struct {
	logger   *slog.Logger
	handlers PeerHandlers

	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	source audioio.Source
	sink   audioio.Sink

	ctx      context.Context
	cancel   context.CancelFunc
	detached atomic.Bool

	// pumpMu guards pumps against Add after Close started waiting.
	pumpMu      sync.Mutex
	pumpsClosed bool
	pumps       sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func (p *webrtcPeer) bindChannel() {
	p.dc.OnOpen(func() {
		if p.detached.Load() {
			return
		}
		if fn := p.handlers.OnChannelOpen; fn != nil {
			fn(p)
		}
	})
	p.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.detached.Load() {
			return
		}
		if fn := p.handlers.OnChannelMessage; fn != nil {
			fn(msg.Data)
		}
	})
	p.dc.OnClose(func() {
		if p.detached.Load() {
			return
		}
		if fn := p.handlers.OnChannelClose; fn != nil {
			fn()
		}
	})
	p.dc.OnError(func(err error) {
		if p.detached.Load() {
			return
		}
		p.logger.Warn("data channel error", "error", err)
		if fn := p.handlers.OnChannelError; fn != nil {
			fn(err)
		}
	})
}

// goPump runs fn on a goroutine Close waits for. It reports false and
// does nothing once Close has begun.
func (p *webrtcPeer) goPump(fn func()) bool {
	p.pumpMu.Lock()
	defer p.pumpMu.Unlock()
	if p.pumpsClosed {
		return false
	}
	p.pumps.Add(1)
	go func() {
		defer p.pumps.Done()
		fn()
	}()
	return true
}

// Send writes one frame to the data channel.
func (p *webrtcPeer) Send(data []byte) error {
	if p.detached.Load() {
		return ErrClosed
	}
	if p.dc == nil || p.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotConnected
	}
	return p.dc.Send(data)
}

func (p *webrtcPeer) ConnectionState() ConnectionState {
	if p.pc == nil {
		return ConnectionNew
	}
	return ConnectionState(p.pc.ConnectionState().String())
}

// Close detaches every handler, stops the microphone, closes the data
// channel, clears the speaker and closes the connection, in that order.
func (p *webrtcPeer) Close() error {
	p.closeOnce.Do(func() {
		p.detached.Store(true)
		p.cancel()

		if p.pc != nil {
			p.pc.OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {})
			p.pc.OnConnectionStateChange(func(webrtc.PeerConnectionState) {})
		}
		if p.source != nil {
			p.source.Stop()
			p.source.Close()
		}
		if p.dc != nil {
			p.dc.OnOpen(func() {})
			p.dc.OnMessage(func(webrtc.DataChannelMessage) {})
			p.dc.OnClose(func() {})
			if err := p.dc.Close(); err != nil {
				p.logger.Debug("data channel close", "error", err)
			}
		}
		if p.sink != nil {
			p.sink.Clear()
		}
		if p.pc != nil {
			p.closeErr = p.pc.Close()
		}
		p.pumpMu.Lock()
		p.pumpsClosed = true
		p.pumpMu.Unlock()
		p.pumps.Wait()
		p.logger.Info("peer closed")
	})
	return p.closeErr
}

// captureMic encodes microphone audio into 20ms Opus samples.
func (p *webrtcPeer) captureMic(track *webrtc.TrackLocalStaticSample, enc audioio.Encoder) {
	frame := make([]int16, 0, opusFrameSize*2)
	stream := p.source.Stream()
	for {
		select {
		case <-p.ctx.Done():
			return
		case chunk, ok := <-stream:
			if !ok {
				p.logger.Info("microphone stream ended")
				return
			}
			chunk = audioio.Convert(chunk, opusClockRate, 1)
			frame = append(frame, chunk.Samples...)
			for len(frame) >= opusFrameSize {
				pkt, err := enc.Encode(frame[:opusFrameSize])
				frame = append(frame[:0], frame[opusFrameSize:]...)
				if err != nil {
					p.logger.Warn("encode microphone frame", "error", err)
					continue
				}
				if err := track.WriteSample(media.Sample{Data: pkt, Duration: opusFrame}); err != nil {
					p.logger.Debug("write microphone sample", "error", err)
				}
			}
		}
	}
}

// playRemote decodes model audio into the speaker until the track ends.
func (p *webrtcPeer) playRemote(remote *webrtc.TrackRemote, codec audioio.Codec) {
	channels := int(remote.Codec().Channels)
	if channels <= 0 {
		channels = 1
	}
	dec, err := codec.NewDecoder(opusClockRate, channels)
	if err != nil {
		p.logger.Error("model audio decoder", "error", err)
		return
	}
	p.logger.Info("model audio track attached", "codec", remote.Codec().MimeType)

	player := &remotePlayer{dec: dec, channels: channels, sink: p.sink}
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if player.lost > 0 {
				p.logger.Info("model audio ended", "packets", player.packets, "lost", player.lost)
			}
			return
		}
		if p.detached.Load() {
			continue
		}
		if err := player.play(p.ctx, pkt); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Debug("model audio", "error", err)
		}
	}
}

// remotePlayer turns RTP packets into speaker writes and counts gaps in
// the sequence numbers.
type remotePlayer struct {
	dec      audioio.Decoder
	channels int
	sink     audioio.Sink

	started bool
	lastSeq uint16
	packets int
	lost    int
}

func (r *remotePlayer) play(ctx context.Context, pkt *rtp.Packet) error {
	if r.started {
		if gap := pkt.SequenceNumber - r.lastSeq; gap > 1 && gap < 1<<15 {
			r.lost += int(gap - 1)
		}
	}
	r.started = true
	r.lastSeq = pkt.SequenceNumber
	r.packets++

	if r.sink == nil || len(pkt.Payload) == 0 {
		return nil
	}
	pcm, err := r.dec.Decode(pkt.Payload)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return r.sink.Write(ctx, audioio.AudioChunk{Samples: pcm, SampleRate: opusClockRate, Channels: r.channels})
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
