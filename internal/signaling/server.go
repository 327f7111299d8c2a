package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rtmlabs/rtm/internal/metrics"
	"github.com/rtmlabs/rtm/internal/netinfo"
	"github.com/rtmlabs/rtm/internal/room"
	"github.com/rtmlabs/rtm/internal/translate"
)

// genericTranslationError is the single message surfaced for every provider
// failure; the cause stays in the server log.
const genericTranslationError = "Could not translate. Try again."

// Channel labels for relay metrics.
const (
	channelCallControl = "call_control"
	channelRawForward  = "raw_forward"
)

// Server brokers two-party rooms over websocket connections: it owns the
// registry, relays opaque payloads between room peers, and fronts the
// translation gateway.
type Server struct {
	registry   *room.Registry
	translator translate.Translator
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	translateTimeout time.Duration

	mu           sync.RWMutex
	participants map[string]*Participant
}

func NewServer(registry *room.Registry, translator translate.Translator, logger *zap.Logger) *Server {
	return &Server{
		registry:   registry,
		translator: translator,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		translateTimeout: 15 * time.Second,
		participants:     make(map[string]*Participant),
	}
}

// HandleWS upgrades the request and runs the connection's pumps. The
// connection identifier is assigned here and lives as long as the socket.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	p := newParticipant(id, s, conn, s.logger.With(zap.String("participant", id)))

	s.mu.Lock()
	s.participants[id] = p
	s.mu.Unlock()
	metrics.ActiveConnections.Inc()

	p.logger.Info("participant connected", zap.String("remote", conn.RemoteAddr().String()))

	go p.writePump()
	go p.readPump()
}

// dispatch routes one inbound event. A panicking handler is contained here so
// a single bad event cannot take down the connection or other rooms.
func (s *Server) dispatch(p *Participant, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event handler panicked",
				zap.String("event", msg.Event),
				zap.Any("panic", r),
			)
		}
	}()

	switch msg.Event {
	case EventCreateOrJoin:
		s.handleCreateOrJoin(p, msg.Room)
	case EventMessage:
		s.relay(p, EventMessage, msg.Payload, channelCallControl)
	case EventRawForward:
		s.relay(p, EventRawDeliver, msg.Payload, channelRawForward)
	case EventTranslate:
		s.handleTranslate(p, msg.Payload)
	case EventIPAddr:
		s.handleIPAddr(p)
	case EventBye:
		p.logger.Info("participant said bye")
	default:
		p.logger.Warn("unknown event", zap.String("event", msg.Event))
	}
}

func (s *Server) handleCreateOrJoin(p *Participant, name string) {
	if name == "" {
		p.logger.Warn("join with empty room name ignored")
		return
	}

	outcome := s.registry.CreateOrJoin(name, p.ID)
	metrics.JoinsTotal.WithLabelValues(outcome.String()).Inc()
	metrics.ActiveRooms.Set(float64(s.registry.Rooms()))

	logger := p.logger.With(zap.String("room", name))

	switch outcome {
	case room.OutcomeCreated:
		logger.Info("room created")
		p.enqueue(&Message{Event: EventCreated, Room: name, Payload: Object(JoinAck{ID: p.ID})})
		s.logTo(p, "Created room: "+name)

	case room.OutcomeJoined:
		logger.Info("room joined")
		// The pre-existing member learns a peer arrived, the joiner gets its
		// ack, then everyone hears the room is ready.
		for _, peerID := range s.registry.Peers(p.ID) {
			s.sendTo(peerID, &Message{Event: EventJoin, Room: name})
		}
		p.enqueue(&Message{Event: EventJoined, Room: name, Payload: Object(JoinAck{ID: p.ID})})
		for _, memberID := range s.registry.Members(name) {
			s.sendTo(memberID, &Message{Event: EventReady})
		}
		s.logTo(p, "Joined room: "+name)

	case room.OutcomeFull:
		logger.Info("room full, join rejected")
		p.enqueue(&Message{Event: EventFull, Room: name})
		s.logTo(p, "Room is full: "+name)
	}
}

// relay delivers the payload unchanged to every other member of the sender's
// room. With capacity 2 this is unicast to the one peer; a sender with no
// peer is a silent no-op.
func (s *Server) relay(p *Participant, outEvent string, payload json.RawMessage, channel string) {
	peers := s.registry.Peers(p.ID)
	if len(peers) == 0 {
		return
	}
	for _, peerID := range peers {
		s.sendTo(peerID, &Message{Event: outEvent, Payload: payload})
	}
	metrics.RelayedTotal.WithLabelValues(channel).Inc()
}

// handleTranslate runs the gateway call off the event loop so the connection
// keeps serving other events while the provider is in flight. The result goes
// back to the requester only, never to the room.
func (s *Server) handleTranslate(p *Participant, payload json.RawMessage) {
	var req TranslateRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Text == "" || req.Lang == "" {
		p.logger.Warn("malformed translate request", zap.Error(err))
		metrics.TranslationsTotal.WithLabelValues("malformed").Inc()
		p.enqueue(&Message{Event: EventTranslationError, Payload: Text(genericTranslationError)})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.translateTimeout)
		defer cancel()

		start := time.Now()
		translated, err := s.translator.Translate(ctx, req.Text, req.Lang)
		metrics.TranslationLatency.Observe(float64(time.Since(start).Milliseconds()))

		if err != nil {
			p.logger.Warn("translation failed",
				zap.String("target", req.Lang),
				zap.Error(err),
			)
			metrics.TranslationsTotal.WithLabelValues("error").Inc()
			p.enqueue(&Message{Event: EventTranslationError, Payload: Text(genericTranslationError)})
			return
		}

		metrics.TranslationsTotal.WithLabelValues("success").Inc()
		p.enqueue(&Message{Event: EventTranslated, Payload: Text(translated)})
	}()
}

// handleIPAddr answers with one event per local non-loopback IPv4 address.
func (s *Server) handleIPAddr(p *Participant) {
	addrs, err := netinfo.LocalIPv4s()
	if err != nil {
		p.logger.Warn("ipaddr lookup failed", zap.Error(err))
		return
	}
	for _, addr := range addrs {
		p.enqueue(&Message{Event: EventIPAddr, Payload: Text(addr)})
	}
}

// logTo mirrors a server-side log line to the participant.
func (s *Server) logTo(p *Participant, lines ...string) {
	payload := append([]string{"[Server]"}, lines...)
	p.enqueue(&Message{Event: EventLog, Payload: Object(payload)})
}

func (s *Server) sendTo(id string, msg *Message) {
	s.mu.RLock()
	p, ok := s.participants[id]
	s.mu.RUnlock()
	if ok {
		p.enqueue(msg)
	}
}

// unregister runs when a connection's read pump exits. Membership removal is
// implicit; an emptied room simply ceases to exist.
func (s *Server) unregister(p *Participant) {
	s.mu.Lock()
	_, present := s.participants[p.ID]
	delete(s.participants, p.ID)
	s.mu.Unlock()
	if !present {
		return
	}

	p.stop()
	metrics.ActiveConnections.Dec()

	if name, emptied, ok := s.registry.Leave(p.ID); ok {
		metrics.ActiveRooms.Set(float64(s.registry.Rooms()))
		p.logger.Info("participant left room",
			zap.String("room", name),
			zap.Bool("emptied", emptied),
		)
	}
	p.logger.Info("participant disconnected")
}

// Shutdown closes every live connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	participants := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p)
	}
	s.mu.Unlock()

	for _, p := range participants {
		p.conn.Close()
	}
	s.logger.Info("signaling server shutdown complete")
}

// Registry exposes the room registry, mainly for diagnostics and tests.
func (s *Server) Registry() *room.Registry {
	return s.registry
}

// WSURL converts an http(s) base URL into the matching websocket URL.
func WSURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}
