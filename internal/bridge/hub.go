package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gitnexus/gateway/internal/gwerrors"
)

// upgrader never rejects on Origin itself; Hub.handleHTTP checks the Origin
// header manually afterward so a disallowed origin can be closed with the
// spec's 4003 close code instead of a bare HTTP 403.
var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// Hub is the daemon that won the bind race for the fixed localhost port
// (spec §4.F): it owns the one browser connection, accepts any number of
// sibling daemon Peers, and routes requests and responses between them.
// Its accept loop and per-connection read loops are grounded on
// lydakis-mcpx/internal/ipc/server.go's Start/acceptLoop/handleConn shape,
// generalized here from a Unix-socket peer-UID check to a WebSocket
// Origin/token check.
type Hub struct {
	token  string
	logger *slog.Logger

	listener net.Listener
	server   *http.Server

	mu      sync.Mutex
	browser *wsConn
	peers   map[string]*wsConn

	browserLimit *rateLimiter
	peerLimits   map[string]*rateLimiter

	snapshot *snapshotStore
	pending  *pendingTable

	wg sync.WaitGroup
}

func newHub(token string, logger *slog.Logger) *Hub {
	return &Hub{
		token:      token,
		logger:     logger,
		peers:      make(map[string]*wsConn),
		peerLimits: make(map[string]*rateLimiter),
		snapshot:   newSnapshotStore(),
		pending:    newPendingTable(),
	}
}

// Serve starts accepting connections on ln. It returns immediately; the
// accept loop runs in the background until Close.
func (h *Hub) Serve(ln net.Listener) {
	h.listener = ln
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleHTTP)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = h.server.Serve(ln)
	}()
}

// Close shuts the Hub down: closes the listener, every connection, and
// waits for the accept loop to exit.
func (h *Hub) Close() {
	if h.server != nil {
		_ = h.server.Close()
	}
	h.mu.Lock()
	if h.browser != nil {
		_ = h.browser.Close()
		h.browser = nil
	}
	for id, p := range h.peers {
		_ = p.Close()
		delete(h.peers, id)
	}
	h.mu.Unlock()
	h.wg.Wait()
	h.pending.DrainAll()
}

func (h *Hub) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if !originAllowed(r.Header.Get("Origin")) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		ws := newWSConn(conn)
		_ = ws.CloseWithCode(4003, "origin not allowed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	ws := newWSConn(conn)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.handleConn(ws)
	}()
}

// handleConn classifies a newly connected client by its first message
// (spec §4.F) and hands it off to the matching loop.
func (h *Hub) handleConn(ws *wsConn) {
	defer ws.Close()

	first, err := ws.ReadMessage()
	if err != nil {
		return
	}

	switch {
	case first.Type == TypeHandshake:
		h.handlePeerConn(ws, first)
	case first.IsContextPush():
		h.handleBrowserConn(ws, first)
	default:
		_ = ws.CloseWithCode(websocket.CloseUnsupportedData, "first message must be a handshake or a context push")
	}
}

func (h *Hub) handlePeerConn(ws *wsConn, handshake Message) {
	if handshake.Token != h.token {
		_ = ws.WriteJSON(Message{Type: TypeHandshakeNack, ID: handshake.ID, NackReason: "token mismatch"})
		_ = ws.CloseWithCode(4001, "token mismatch")
		return
	}
	if err := ws.WriteJSON(Message{Type: TypeHandshakeAck, ID: handshake.ID}); err != nil {
		return
	}

	reg, err := ws.ReadMessage()
	if err != nil || reg.Type != TypeRegisterPeer {
		return
	}

	peerID := uuid.NewString()
	h.registerPeer(peerID, ws)
	defer h.unregisterPeer(peerID)

	h.logger.Info("peer registered", "peer_id", peerID, "agent_name", reg.AgentName)

	for {
		msg, err := ws.ReadMessage()
		if err != nil {
			h.logger.Info("peer disconnected", "peer_id", peerID)
			return
		}
		if !h.peerLimiterFor(peerID).Allow() {
			continue
		}
		if msg.IsRequest() {
			msg.AgentName = withDefault(msg.AgentName, reg.AgentName)
			h.forwardRequest(msg, peerID, ws)
		}
	}
}

func (h *Hub) registerPeer(id string, ws *wsConn) {
	h.mu.Lock()
	h.peers[id] = ws
	h.peerLimits[id] = newRateLimiter()
	h.mu.Unlock()
}

func (h *Hub) unregisterPeer(id string) {
	h.mu.Lock()
	delete(h.peers, id)
	delete(h.peerLimits, id)
	h.mu.Unlock()
}

func (h *Hub) peerLimiterFor(id string) *rateLimiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peerLimits[id]
}

// forwardRequest stamps msg with peerID and forwards it to the browser. If
// no browser is connected, it synthesizes a BROWSER_DISCONNECTED response
// directly back to the originating peer (spec §4.F).
func (h *Hub) forwardRequest(msg Message, peerID string, from *wsConn) {
	msg.PeerID = peerID

	h.mu.Lock()
	browser := h.browser
	h.mu.Unlock()

	if browser == nil {
		errJSON, _ := json.Marshal(gwerrors.BrowserDisconnected())
		_ = from.WriteJSON(Message{ID: msg.ID, PeerID: peerID, RPCErr: errJSON})
		return
	}
	if err := browser.WriteJSON(msg); err != nil {
		errJSON, _ := json.Marshal(gwerrors.BrowserDisconnected())
		_ = from.WriteJSON(Message{ID: msg.ID, PeerID: peerID, RPCErr: errJSON})
	}
}

func (h *Hub) handleBrowserConn(ws *wsConn, first Message) {
	h.mu.Lock()
	old := h.browser
	h.browser = ws
	h.browserLimit = newRateLimiter()
	h.mu.Unlock()
	if old != nil && old != ws {
		_ = old.Close()
	}

	h.applyContextPush(first)

	for {
		msg, err := ws.ReadMessage()
		if err != nil {
			h.onBrowserDisconnected(ws)
			return
		}
		h.mu.Lock()
		limiter := h.browserLimit
		h.mu.Unlock()
		if limiter != nil && !limiter.Allow() {
			continue
		}
		switch {
		case msg.IsContextPush():
			h.applyContextPush(msg)
		case msg.IsResponse():
			h.routeResponse(msg)
		}
	}
}

func (h *Hub) applyContextPush(msg Message) {
	var ctx CodebaseContext
	if err := json.Unmarshal(msg.Params, &ctx); err != nil {
		h.logger.Warn("dropping malformed context push", "error", err)
		return
	}
	h.snapshot.Set(&ctx)

	h.mu.Lock()
	peers := make([]*wsConn, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		_ = p.WriteJSON(msg)
	}
}

// routeResponse delivers a browser response to its single recipient: the
// originating Peer if PeerID is set and known, otherwise the Hub's own
// local pending table (spec §8 invariant 9).
func (h *Hub) routeResponse(msg Message) {
	if msg.PeerID != "" {
		h.mu.Lock()
		peer, ok := h.peers[msg.PeerID]
		h.mu.Unlock()
		if ok {
			_ = peer.WriteJSON(msg)
		}
		return
	}
	h.pending.Resolve(msg.ID, msg.Result, decodeEnvelope(msg.RPCErr))
}

func (h *Hub) onBrowserDisconnected(ws *wsConn) {
	h.mu.Lock()
	if h.browser == ws {
		h.browser = nil
	}
	h.mu.Unlock()
	h.snapshot.Clear()
	h.pending.DrainAll()
	h.logger.Warn("browser disconnected; awaiting reconnect (browser, not the Hub, reinitiates)")
}

// BrowserConnected reports whether a browser is currently attached.
func (h *Hub) BrowserConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.browser != nil
}

// CallTool issues a request on behalf of this Hub daemon's own local MCP
// server (no peer_id — that is reserved for forwarded Peer calls).
func (h *Hub) CallTool(ctx context.Context, id, method string, params json.RawMessage, agentName string) (json.RawMessage, *gwerrors.Envelope) {
	h.mu.Lock()
	browser := h.browser
	h.mu.Unlock()
	if browser == nil {
		return nil, gwerrors.BrowserDisconnected()
	}

	call, err := h.pending.Register(id)
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeInternalError, err.Error())
	}

	if err := browser.WriteJSON(Message{ID: id, Method: method, Params: params, AgentName: agentName}); err != nil {
		h.pending.Cancel(id)
		return nil, gwerrors.BrowserDisconnected()
	}

	select {
	case <-ctx.Done():
		h.pending.Cancel(id)
		return nil, gwerrors.Timeout(method)
	case res := <-call.done:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}

func decodeEnvelope(raw json.RawMessage) *gwerrors.Envelope {
	if len(raw) == 0 {
		return nil
	}
	var env gwerrors.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return gwerrors.New(gwerrors.CodeInternalError, "malformed error payload from browser")
	}
	return &env
}

func withDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
