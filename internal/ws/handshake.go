package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"httpcore/internal/config"
	"httpcore/internal/exchange"
)

// Session wraps an upgraded connection - either gorilla's *websocket.Conn
// for the classic HTTP/1.1 path, or the raw frame codec above for the
// HTTP/2 Extended CONNECT path - behind one interface so the rest of the
// core (ping pacing, close sequencing) doesn't care which transport
// carried the handshake.
type Session interface {
	ReadMessage() (MessageType, []byte, error)
	WriteMessage(MessageType, []byte) error
	Close(code StatusCode, reason string) error
	SetReadDeadline(time.Time) error
}

type gorillaSession struct{ conn *websocket.Conn }

func (g *gorillaSession) ReadMessage() (MessageType, []byte, error) {
	typ, data, err := g.conn.ReadMessage()
	return MessageType(typ), data, err
}

func (g *gorillaSession) WriteMessage(typ MessageType, data []byte) error {
	return g.conn.WriteMessage(int(typ), data)
}

func (g *gorillaSession) Close(code StatusCode, reason string) error {
	msg := websocket.FormatCloseMessage(int(code), reason)
	_ = g.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return g.conn.Close()
}

func (g *gorillaSession) SetReadDeadline(t time.Time) error { return g.conn.SetReadDeadline(t) }

// Upgrader builds gorilla/websocket server upgrades configured from
// spec.md §6's ws_* keys, including RFC 7692 permessage-deflate.
type Upgrader struct {
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewUpgrader constructs an Upgrader bound to cfg. The subprotocol is
// passed to Upgrade by the routing layer (the route's declared
// subprotocol, if any) rather than decided here.
func NewUpgrader(cfg config.WebSocketConfig) *Upgrader {
	return &Upgrader{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  cfg.HandshakeTimeout(),
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: cfg.PermessageDeflate,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
	}
}

// Upgrade performs the handshake, setting the chosen subprotocol if
// non-empty, and returns a Session that is closed with StatusGoingAway
// once ctx is done.
func (u *Upgrader) Upgrade(ctx context.Context, w http.ResponseWriter, r *http.Request, ex *exchange.Exchange, subprotocol string) (Session, error) {
	header := http.Header{}
	if subprotocol != "" {
		header.Set("Sec-WebSocket-Protocol", subprotocol)
	}
	conn, err := u.upgrader.Upgrade(w, r, header)
	if err != nil {
		return nil, err
	}
	if u.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(u.cfg.MaxMessageSize)
	}
	sess := &gorillaSession{conn: conn}
	go func() {
		<-ctx.Done()
		_ = sess.Close(StatusGoingAway, "connection closing")
	}()
	return sess, nil
}
