package bridge

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestHub(t *testing.T, token string) (*Hub, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	h := newHub(token, testLogger())
	h.Serve(ln)
	t.Cleanup(h.Close)
	return h, ln.Addr().String()
}

func dialWS(t *testing.T, addr, origin string) *websocket.Conn {
	t.Helper()
	u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
	header := make(map[string][]string)
	if origin != "" {
		header["Origin"] = []string{origin}
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		t.Fatalf("dialing %s: %v", u.String(), err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func connectBrowser(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn := dialWS(t, addr, "http://localhost:3000")
	push := Message{Type: TypeContext, Params: json.RawMessage(`{"project_name":"demo","stats":{},"hotspots":[],"folder_tree":"."}`)}
	if err := conn.WriteJSON(push); err != nil {
		t.Fatalf("writing initial context push: %v", err)
	}
	return conn
}

func connectPeer(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	conn := dialWS(t, addr, "http://localhost")

	if err := conn.WriteJSON(Message{Type: TypeHandshake, ID: "h1", Token: token}); err != nil {
		t.Fatalf("writing handshake: %v", err)
	}
	var ack Message
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading handshake ack: %v", err)
	}
	if ack.Type != TypeHandshakeAck {
		t.Fatalf("handshake ack type = %q, want %q", ack.Type, TypeHandshakeAck)
	}
	if err := conn.WriteJSON(Message{Type: TypeRegisterPeer, AgentName: "test-agent"}); err != nil {
		t.Fatalf("writing register_peer: %v", err)
	}
	return conn
}

func TestHubRejectsDisallowedOriginWithCloseCode4003(t *testing.T) {
	_, addr := startTestHub(t, "secret")
	conn := dialWS(t, addr, "https://evil.example.com")

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("ReadMessage() error = %v, want a *websocket.CloseError", err)
	}
	if closeErr.Code != 4003 {
		t.Fatalf("close code = %d, want 4003", closeErr.Code)
	}
}

func TestHubRejectsPeerTokenMismatch(t *testing.T) {
	_, addr := startTestHub(t, "secret")
	conn := dialWS(t, addr, "http://localhost")

	if err := conn.WriteJSON(Message{Type: TypeHandshake, ID: "h1", Token: "wrong"}); err != nil {
		t.Fatalf("writing handshake: %v", err)
	}
	var nack Message
	if err := conn.ReadJSON(&nack); err != nil {
		t.Fatalf("reading handshake nack: %v", err)
	}
	if nack.Type != TypeHandshakeNack {
		t.Fatalf("response type = %q, want %q", nack.Type, TypeHandshakeNack)
	}
}

func TestHubForwardsPeerRequestAndRoutesResponse(t *testing.T) {
	h, addr := startTestHub(t, "secret")
	browser := connectBrowser(t, addr)
	peer := connectPeer(t, addr, "secret")

	deadline := time.Now().Add(2 * time.Second)
	for !h.BrowserConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !h.BrowserConnected() {
		t.Fatal("hub never observed the browser as connected")
	}

	if err := peer.WriteJSON(Message{ID: "r7", Method: "overview"}); err != nil {
		t.Fatalf("writing peer request: %v", err)
	}

	var forwarded Message
	if err := browser.ReadJSON(&forwarded); err != nil {
		t.Fatalf("browser reading forwarded request: %v", err)
	}
	if forwarded.ID != "r7" || forwarded.PeerID == "" {
		t.Fatalf("forwarded message = %+v, want id r7 and a non-empty peer_id", forwarded)
	}

	result := json.RawMessage(`{"ok":true}`)
	if err := browser.WriteJSON(Message{ID: forwarded.ID, PeerID: forwarded.PeerID, Result: result}); err != nil {
		t.Fatalf("writing browser response: %v", err)
	}

	var routed Message
	if err := peer.ReadJSON(&routed); err != nil {
		t.Fatalf("peer reading routed response: %v", err)
	}
	if routed.ID != "r7" || string(routed.Result) != string(result) {
		t.Fatalf("routed response = %+v, want id r7 with result %s", routed, result)
	}
}

func TestHubSynthesizesBrowserDisconnectedWhenNoBrowser(t *testing.T) {
	_, addr := startTestHub(t, "secret")
	peer := connectPeer(t, addr, "secret")

	if err := peer.WriteJSON(Message{ID: "r1", Method: "overview"}); err != nil {
		t.Fatalf("writing peer request: %v", err)
	}

	var resp Message
	if err := peer.ReadJSON(&resp); err != nil {
		t.Fatalf("peer reading synthesized response: %v", err)
	}
	if resp.RPCErr == nil {
		t.Fatal("expected a synthesized error envelope when no browser is connected")
	}
	env := decodeEnvelope(resp.RPCErr)
	if env == nil || env.Code != "BROWSER_DISCONNECTED" {
		t.Fatalf("envelope = %+v, want code BROWSER_DISCONNECTED", env)
	}
}
