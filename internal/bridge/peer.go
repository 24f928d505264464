package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gitnexus/gateway/internal/gwerrors"
	"github.com/gitnexus/gateway/internal/resilience"
)

// HandshakeTimeout bounds how long a Peer waits for handshake_ack before
// falling back to the degraded state (spec §4.F, "≈ 1 s").
const HandshakeTimeout = time.Second

// Peer is a daemon that lost the bind race and joined an existing Hub
// instead. It forwards every local tool call through the Hub and
// reconnects with full-jitter backoff when the connection drops.
type Peer struct {
	addr      string
	token     string
	agentName string
	logger    *slog.Logger

	mu            sync.Mutex
	ws            *wsConn
	connected     bool
	shouldReconnect bool
	attempt       int

	snapshot *snapshotStore
	pending  *pendingTable

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(addr, token, agentName string, logger *slog.Logger) *Peer {
	return &Peer{
		addr:            addr,
		token:           token,
		agentName:       agentName,
		logger:          logger,
		shouldReconnect: true,
		snapshot:        newSnapshotStore(),
		pending:         newPendingTable(),
		closed:          make(chan struct{}),
	}
}

// Connect performs the initial handshake+registration. On failure the
// caller treats the bridge as degraded (spec §4.F: "Peer join fails or
// times out → Hub mode also fails; the bridge enters a degraded
// stdio-only state").
func (p *Peer) Connect(ctx context.Context) error {
	ws, err := p.dial(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.ws = ws
	p.connected = true
	p.attempt = 0
	p.mu.Unlock()

	go p.readLoop(ws)
	return nil
}

func (p *Peer) dial(ctx context.Context) (*wsConn, error) {
	u := url.URL{Scheme: "ws", Host: p.addr, Path: "/"}
	dialer := websocket.Dialer{HandshakeTimeout: HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing hub at %s: %w", p.addr, err)
	}
	ws := newWSConn(conn)

	id := fmt.Sprintf("handshake-%d", time.Now().UnixNano())
	if err := ws.WriteJSON(Message{Type: TypeHandshake, ID: id, Token: p.token}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("sending handshake: %w", err)
	}

	ackCh := make(chan Message, 1)
	errCh := make(chan error, 1)
	go func() {
		ack, err := ws.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		ackCh <- ack
	}()

	select {
	case <-time.After(HandshakeTimeout):
		_ = ws.Close()
		return nil, fmt.Errorf("handshake with hub timed out after %s", HandshakeTimeout)
	case err := <-errCh:
		_ = ws.Close()
		return nil, fmt.Errorf("reading handshake ack: %w", err)
	case ack := <-ackCh:
		if ack.Type == TypeHandshakeNack {
			_ = ws.Close()
			return nil, fmt.Errorf("hub rejected handshake: %s", ack.NackReason)
		}
		if ack.Type != TypeHandshakeAck {
			_ = ws.Close()
			return nil, fmt.Errorf("unexpected handshake response %q", ack.Type)
		}
	}

	if err := ws.WriteJSON(Message{Type: TypeRegisterPeer, AgentName: p.agentName}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("registering with hub: %w", err)
	}
	return ws, nil
}

func (p *Peer) readLoop(ws *wsConn) {
	for {
		msg, err := ws.ReadMessage()
		if err != nil {
			p.onDisconnected(ws)
			return
		}
		switch {
		case msg.IsContextPush():
			p.applyContextPush(msg)
		case msg.IsResponse():
			p.pending.Resolve(msg.ID, msg.Result, decodeEnvelope(msg.RPCErr))
		}
	}
}

func (p *Peer) applyContextPush(msg Message) {
	var ctx CodebaseContext
	if err := json.Unmarshal(msg.Params, &ctx); err != nil {
		p.logger.Warn("dropping malformed context push", "error", err)
		return
	}
	p.snapshot.Set(&ctx)
}

func (p *Peer) onDisconnected(ws *wsConn) {
	p.mu.Lock()
	if p.ws != ws {
		p.mu.Unlock()
		return
	}
	p.connected = false
	reconnect := p.shouldReconnect
	p.mu.Unlock()

	p.snapshot.Clear()
	p.pending.DrainAll()

	if !reconnect {
		return
	}
	go p.reconnectLoop()
}

// reconnectLoop retries Connect with full-jitter backoff until it succeeds
// or should_reconnect is cleared by Close (spec §4.F/§4.E).
func (p *Peer) reconnectLoop() {
	for {
		p.mu.Lock()
		attempt := p.attempt
		p.attempt++
		shouldReconnect := p.shouldReconnect
		p.mu.Unlock()
		if !shouldReconnect {
			return
		}

		delay := resilience.FullJitterBackoff(attempt)
		select {
		case <-p.closed:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), HandshakeTimeout)
		err := p.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		p.logger.Warn("peer reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

// Connected reports whether this Peer currently has a live connection to
// the Hub.
func (p *Peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close stops reconnect attempts and closes the current connection.
func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
	p.mu.Lock()
	p.shouldReconnect = false
	ws := p.ws
	p.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
	p.pending.DrainAll()
}

// CallTool issues a request to the Hub on behalf of this daemon's own MCP
// server and awaits the correlated response.
func (p *Peer) CallTool(ctx context.Context, id, method string, params json.RawMessage, agentName string) (json.RawMessage, *gwerrors.Envelope) {
	p.mu.Lock()
	ws := p.ws
	connected := p.connected
	p.mu.Unlock()
	if !connected || ws == nil {
		return nil, gwerrors.BrowserDisconnected()
	}

	call, err := p.pending.Register(id)
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeInternalError, err.Error())
	}

	if err := ws.WriteJSON(Message{ID: id, Method: method, Params: params, AgentName: agentName}); err != nil {
		p.pending.Cancel(id)
		return nil, gwerrors.BrowserDisconnected()
	}

	select {
	case <-ctx.Done():
		p.pending.Cancel(id)
		return nil, gwerrors.Timeout(method)
	case res := <-call.done:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}
