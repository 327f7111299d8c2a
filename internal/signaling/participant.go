package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size; SDP payloads fit comfortably.
	maxMessageSize = 64 * 1024

	// Outbound queue depth per connection.
	sendBuffer = 32
)

// Participant wraps a single websocket connection. Its ID is assigned at
// connect time and doubles as the room-membership key.
type Participant struct {
	ID string

	server *Server
	conn   *websocket.Conn
	send   chan *Message
	done   chan struct{}
	logger *zap.Logger

	stopOnce sync.Once
}

func newParticipant(id string, s *Server, conn *websocket.Conn, logger *zap.Logger) *Participant {
	return &Participant{
		ID:     id,
		server: s,
		conn:   conn,
		send:   make(chan *Message, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// enqueue hands a message to the write pump. Delivery is fire-and-forget: a
// full queue or a stopped participant drops the message rather than blocking
// the sender's event handling. The send channel is never closed, so a relay
// or translation result racing a disconnect lands here as a silent drop.
func (p *Participant) enqueue(msg *Message) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.send <- msg:
	case <-p.done:
	default:
		p.logger.Warn("send queue full, dropping message", zap.String("event", msg.Event))
	}
}

func (p *Participant) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// readPump pumps inbound frames into the server's dispatcher. It is the only
// reader on the connection; exiting it triggers unregistration.
func (p *Participant) readPump() {
	defer func() {
		p.server.unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				p.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		p.server.dispatch(p, &msg)
	}
}

// writePump is the only writer on the connection. It drains the send queue
// and keeps the connection alive with pings.
func (p *Participant) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				p.logger.Warn("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
