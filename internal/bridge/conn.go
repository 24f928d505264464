package bridge

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gitnexus/gateway/internal/metrics"
)

// MaxMessageSize is the transport-level frame cap of spec §4.A: frames
// larger than this are rejected before the application ever sees them.
const MaxMessageSize = 1 << 20 // 1 MiB

// wsConn wraps a *websocket.Conn with the one guarantee gorilla's Conn does
// not provide itself: safe concurrent writes. Every write (responses,
// broadcasts, handshake replies) goes through WriteJSON; only one read loop
// per connection ever calls ReadMessage, so reads need no lock.
type wsConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func newWSConn(c *websocket.Conn) *wsConn {
	c.SetReadLimit(MaxMessageSize)
	return &wsConn{conn: c}
}

func (c *wsConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := c.conn.WriteJSON(v)
	if err == nil {
		metrics.Default().IncBridgeMessage("outbound", messageKind(v))
	}
	return err
}

func (c *wsConn) ReadMessage() (Message, error) {
	var m Message
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	metrics.Default().IncBridgeMessage("inbound", messageKind(m))
	return m, nil
}

// messageKind classifies a wire value for the bridge_messages_total metric:
// its explicit Type for control frames, or request/response for untagged
// data-plane frames.
func messageKind(v any) string {
	var m Message
	switch t := v.(type) {
	case Message:
		m = t
	case *Message:
		m = *t
	default:
		return "unknown"
	}
	switch {
	case m.Type != "":
		return string(m.Type)
	case m.IsRequest():
		return "request"
	case m.IsResponse():
		return "response"
	default:
		return "unknown"
	}
}

func (c *wsConn) CloseWithCode(code int, reason string) error {
	deadline := websocket.FormatCloseMessage(code, reason)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, deadline, zeroDeadline())
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
