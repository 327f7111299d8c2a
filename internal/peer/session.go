// Package peer implements the client-side session state machine that turns
// signaling events into an active real-time media connection.
package peer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/rtmlabs/rtm/internal/signaling"
)

// State is the session's lifecycle position. Negotiation guards key off the
// state value itself, so duplicate or late messages fall through as no-ops
// instead of corrupting the machine.
type State int

const (
	StateIdle State = iota
	StateAwaitingMedia
	StateWaiting
	StateNegotiating
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingMedia:
		return "awaiting_media"
	case StateWaiting:
		return "waiting"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Control payloads that travel as plain strings on the call-control channel.
const (
	mediaReadyText = "got user media"
	goodbyeText    = "See you soon "
)

// controlMessage is the structured shape of call-control payloads.
type controlMessage struct {
	Type      string `json:"type"`
	SDP       string `json:"sdp,omitempty"`
	Label     uint16 `json:"label,omitempty"`
	ID        string `json:"id,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// Sender delivers signaling messages to the server.
type Sender interface {
	Send(msg *signaling.Message) error
}

// MediaSource stands in for platform media capture. A Track error is a
// terminal media-access failure for the session.
type MediaSource interface {
	Track() (webrtc.TrackLocal, error)
	Close() error
}

// Config holds the session's settings.
type Config struct {
	// OutputLang is the language this peer wants transcripts translated into.
	OutputLang string
	// STUNServers configure connectivity establishment.
	STUNServers []string
}

// Session drives one two-party call. All signaling events must be fed in
// from a single goroutine; pion callbacks are synchronized internally.
type Session struct {
	cfg     Config
	api     *webrtc.API
	send    Sender
	media   MediaSource
	speaker Speaker
	logger  *zap.Logger

	onRemoteTrack func(*webrtc.TrackRemote)

	mu        sync.Mutex
	state     State
	isHost    bool
	roomReady bool
	track     webrtc.TrackLocal
	pc        *webrtc.PeerConnection
}

// NewSession builds the session with the media engine configured for Opus
// and a NACK responder interceptor.
func NewSession(cfg Config, send Sender, media MediaSource, speaker Speaker, logger *zap.Logger) (*Session, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	ir := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	ir.Add(responder)

	return &Session{
		cfg:     cfg,
		api:     webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)),
		send:    send,
		media:   media,
		speaker: speaker,
		logger:  logger,
		state:   StateIdle,
	}, nil
}

// OnRemoteTrack registers the render callback. Must be set before Start.
func (s *Session) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	s.onRemoteTrack = fn
}

// Start requests local media. Denial is terminal: the session closes and the
// error is returned to the caller. On success the peer is announced as
// media-ready and negotiation begins as soon as the room is ready too.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("peer: start from state %s", s.state)
	}
	s.state = StateAwaitingMedia

	track, err := s.media.Track()
	if err != nil {
		s.closeLocked()
		return fmt.Errorf("peer: media access denied: %w", err)
	}
	s.track = track
	s.state = StateWaiting

	s.sendControl(mediaReadyText)
	s.beginCallLocked()
	return nil
}

// HandleMessage feeds one signaling event into the state machine.
func (s *Session) HandleMessage(msg *signaling.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Event {
	case signaling.EventCreated:
		s.isHost = true
		s.logger.Info("hosting room", zap.String("room", msg.Room))

	case signaling.EventJoined, signaling.EventJoin, signaling.EventReady:
		s.roomReady = true
		s.beginCallLocked()

	case signaling.EventFull:
		s.logger.Warn("room is full", zap.String("room", msg.Room))
		s.closeLocked()

	case signaling.EventMessage:
		s.handleControlLocked(msg.Payload)

	case signaling.EventRawDeliver:
		var text string
		if err := json.Unmarshal(msg.Payload, &text); err != nil {
			s.logger.Warn("bad raw-forward payload", zap.Error(err))
			return
		}
		s.requestTranslation(text)

	case signaling.EventTranslated:
		var text string
		if err := json.Unmarshal(msg.Payload, &text); err != nil {
			s.logger.Warn("bad translated payload", zap.Error(err))
			return
		}
		s.speaker.Speak(text, s.cfg.OutputLang)

	case signaling.EventTranslationError:
		var text string
		_ = json.Unmarshal(msg.Payload, &text)
		s.logger.Warn("translation failed", zap.String("reason", text))

	case signaling.EventLog:
		s.logger.Debug("server log", zap.ByteString("payload", msg.Payload))
	}
}

func (s *Session) handleControlLocked(payload json.RawMessage) {
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		switch text {
		case mediaReadyText:
			s.beginCallLocked()
		case goodbyeText:
			if s.activeCallLocked() {
				s.closeLocked()
			}
		}
		return
	}

	var ctrl controlMessage
	if err := json.Unmarshal(payload, &ctrl); err != nil {
		s.logger.Warn("unparseable control payload", zap.Error(err))
		return
	}

	switch ctrl.Type {
	case "offer":
		s.handleOfferLocked(ctrl)
	case "answer":
		s.handleAnswerLocked(ctrl)
	case "candidate":
		s.handleCandidateLocked(ctrl)
	default:
		s.logger.Debug("ignoring control payload", zap.String("type", ctrl.Type))
	}
}

// beginCallLocked initializes the media pipeline once both preconditions
// hold: local media is ready and the room is ready. It is safe to call on
// every trigger; the guards make repeats no-ops. The host additionally
// initiates the offer.
func (s *Session) beginCallLocked() {
	if s.state != StateWaiting || !s.roomReady || s.track == nil {
		return
	}

	pc, err := s.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: s.cfg.STUNServers}},
	})
	if err != nil {
		s.logger.Error("create peer connection failed", zap.Error(err))
		return
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		out := controlMessage{Type: "candidate", Candidate: init.Candidate}
		if init.SDPMid != nil {
			out.ID = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			out.Label = *init.SDPMLineIndex
		}
		s.sendControl(out)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info("remote track", zap.String("codec", track.Codec().MimeType))
		if s.onRemoteTrack != nil {
			s.onRemoteTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Info("connection state", zap.String("state", state.String()))
		if state == webrtc.PeerConnectionStateConnected {
			s.mu.Lock()
			if s.state == StateNegotiating {
				s.state = StateActive
			}
			s.mu.Unlock()
		}
	})

	if _, err := pc.AddTrack(s.track); err != nil {
		s.logger.Error("add local track failed", zap.Error(err))
		pc.Close()
		return
	}

	s.pc = pc
	s.state = StateNegotiating

	if s.isHost {
		s.createOfferLocked()
	}
}

func (s *Session) createOfferLocked() {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.logger.Error("create offer failed", zap.Error(err))
		return
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.logger.Error("set local description failed", zap.Error(err))
		return
	}
	s.sendControl(controlMessage{Type: "offer", SDP: offer.SDP})
}

// handleOfferLocked runs only on the guest side. An offer implies both
// members are present, so it also marks the room ready.
func (s *Session) handleOfferLocked(ctrl controlMessage) {
	if s.isHost {
		return
	}
	if s.state == StateWaiting {
		s.roomReady = true
		s.beginCallLocked()
	}
	if s.pc == nil || s.state != StateNegotiating || s.pc.RemoteDescription() != nil {
		return // stale or duplicate
	}

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  ctrl.SDP,
	}); err != nil {
		s.logger.Warn("set remote offer failed", zap.Error(err))
		return
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.logger.Warn("create answer failed", zap.Error(err))
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.logger.Warn("set local answer failed", zap.Error(err))
		return
	}
	s.sendControl(controlMessage{Type: "answer", SDP: answer.SDP})
}

func (s *Session) handleAnswerLocked(ctrl controlMessage) {
	if !s.activeCallLocked() || !s.isHost || s.pc == nil || s.pc.RemoteDescription() != nil {
		return // stale or duplicate
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  ctrl.SDP,
	}); err != nil {
		s.logger.Warn("set remote answer failed", zap.Error(err))
	}
}

func (s *Session) handleCandidateLocked(ctrl controlMessage) {
	if !s.activeCallLocked() || s.pc == nil {
		return // stale
	}
	label := ctrl.Label
	mid := ctrl.ID
	if err := s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     ctrl.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &label,
	}); err != nil {
		s.logger.Warn("add ice candidate failed", zap.Error(err))
	}
}

func (s *Session) activeCallLocked() bool {
	return s.state == StateNegotiating || s.state == StateActive
}

// requestTranslation asks the gateway to translate a peer transcript into
// this session's own output language. The result comes back to this
// connection only.
func (s *Session) requestTranslation(text string) {
	err := s.send.Send(&signaling.Message{
		Event: signaling.EventTranslate,
		Payload: signaling.Object(signaling.TranslateRequest{
			Text: text,
			Lang: s.cfg.OutputLang,
		}),
	})
	if err != nil {
		s.logger.Warn("translation request failed", zap.Error(err))
	}
}

// SendTranscript forwards locally captured speech text to the peer on the
// raw-forward channel.
func (s *Session) SendTranscript(text string) error {
	return s.send.Send(&signaling.Message{
		Event:   signaling.EventRawForward,
		Payload: signaling.Text(text),
	})
}

func (s *Session) sendControl(v any) {
	msg := &signaling.Message{Event: signaling.EventMessage, Payload: signaling.Object(v)}
	if err := s.send.Send(msg); err != nil {
		s.logger.Warn("send control failed", zap.Error(err))
	}
}

// Close releases the real-time connection and resets the call flags.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.state == StateClosed {
		return
	}
	if s.pc != nil {
		s.pc.Close()
		s.pc = nil
	}
	s.isHost = false
	s.roomReady = false
	s.state = StateClosed
}

// Shutdown announces the goodbye to the peer, then closes the session and
// releases local media. Any in-flight translation is left to finish and be
// dropped; a late result simply has no listener.
func (s *Session) Shutdown() {
	s.sendControl(goodbyeText)
	s.Close()
	if err := s.media.Close(); err != nil {
		s.logger.Warn("media close failed", zap.Error(err))
	}
}

// State reports the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsHost reports whether this session created the room.
func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}
