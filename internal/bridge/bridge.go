// Package bridge implements the localhost WebSocket link between this
// daemon and the browser-hosted code-intelligence engine (spec §4.F). Every
// daemon started against the same fixed port races to bind it: the winner
// becomes the Hub and owns the one browser connection; every loser joins
// the winner as a Peer and forwards its calls through it.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gitnexus/gateway/internal/gwerrors"
)

// Mode identifies which role this daemon's Bridge ended up playing.
type Mode string

const (
	ModeHub      Mode = "hub"
	ModePeer     Mode = "peer"
	ModeDegraded Mode = "degraded"
)

// Bridge is the single entry point the MCP server talks to regardless of
// whether this daemon won or lost the bind race. It is grounded on
// vjache-cie/cmd/cie's pattern of a thin top-level type deciding between
// two concrete backends and exposing one interface to its caller.
type Bridge struct {
	port   int
	token  string
	logger *slog.Logger

	mode atomic.Value // Mode

	mu   sync.Mutex
	hub  *Hub
	peer *Peer
}

// New constructs a Bridge bound to port, authenticated with token. Start
// must be called before it is usable.
func New(port int, token string, logger *slog.Logger) *Bridge {
	b := &Bridge{port: port, token: token, logger: logger}
	b.mode.Store(ModeDegraded)
	return b
}

// Start races to bind the fixed port. The winner becomes a Hub; a loser
// dials the winner and becomes a Peer. If neither succeeds — the port is
// taken by something that is not a compatible Hub, and the Peer handshake
// also fails — the Bridge falls back to ModeDegraded (spec §4.F).
func (b *Bridge) Start(ctx context.Context, agentName string) error {
	addr := fmt.Sprintf("127.0.0.1:%d", b.port)

	ln, err := net.Listen("tcp", addr)
	if err == nil {
		hub := newHub(b.token, b.logger)
		hub.Serve(ln)

		b.mu.Lock()
		b.hub = hub
		b.mu.Unlock()
		b.mode.Store(ModeHub)
		b.logger.Info("bridge elected hub", "addr", addr)
		return nil
	}

	b.logger.Info("bind lost; joining existing hub as a peer", "addr", addr, "bind_error", err)

	peer := newPeer(addr, b.token, agentName, b.logger)
	if joinErr := peer.Connect(ctx); joinErr != nil {
		b.logger.Warn("peer join failed; bridge entering degraded mode", "error", joinErr)
		b.mode.Store(ModeDegraded)
		return nil
	}

	b.mu.Lock()
	b.peer = peer
	b.mu.Unlock()
	b.mode.Store(ModePeer)
	b.logger.Info("bridge elected peer", "addr", addr)
	return nil
}

// Mode reports the Bridge's current role.
func (b *Bridge) Mode() Mode {
	return b.mode.Load().(Mode)
}

// Connected reports whether the active backend has a live connection to
// the browser (directly, as a Hub, or transitively, as a Peer).
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	hub, peer := b.hub, b.peer
	b.mu.Unlock()

	switch b.Mode() {
	case ModeHub:
		return hub != nil && hub.BrowserConnected()
	case ModePeer:
		return peer != nil && peer.Connected()
	default:
		return false
	}
}

// Context returns the latest pushed CodebaseContext, or nil if none is
// available (no browser connected, or degraded mode).
func (b *Bridge) Context() *CodebaseContext {
	b.mu.Lock()
	hub, peer := b.hub, b.peer
	b.mu.Unlock()

	switch b.Mode() {
	case ModeHub:
		if hub == nil {
			return nil
		}
		return hub.snapshot.Get()
	case ModePeer:
		if peer == nil {
			return nil
		}
		return peer.snapshot.Get()
	default:
		return nil
	}
}

// OnContextChange registers fn to run on every context push or clear. It is
// a no-op in degraded mode, since there is nothing to subscribe to.
func (b *Bridge) OnContextChange(fn func(*CodebaseContext)) {
	b.mu.Lock()
	hub, peer := b.hub, b.peer
	b.mu.Unlock()

	switch b.Mode() {
	case ModeHub:
		if hub != nil {
			hub.snapshot.OnChange(fn)
		}
	case ModePeer:
		if peer != nil {
			peer.snapshot.OnChange(fn)
		}
	}
}

// CallTool forwards one tool invocation to the browser via whichever
// backend is active and awaits its correlated response. In degraded mode
// it fails immediately with BROWSER_DISCONNECTED.
func (b *Bridge) CallTool(ctx context.Context, method string, params json.RawMessage, agentName string) (json.RawMessage, *gwerrors.Envelope) {
	id := uuid.NewString()

	b.mu.Lock()
	hub, peer := b.hub, b.peer
	b.mu.Unlock()

	switch b.Mode() {
	case ModeHub:
		if hub == nil {
			return nil, gwerrors.BrowserDisconnected()
		}
		return hub.CallTool(ctx, id, method, params, agentName)
	case ModePeer:
		if peer == nil {
			return nil, gwerrors.BrowserDisconnected()
		}
		return peer.CallTool(ctx, id, method, params, agentName)
	default:
		return nil, gwerrors.BrowserDisconnected()
	}
}

// Close tears down whichever backend is active.
func (b *Bridge) Close() {
	b.mu.Lock()
	hub, peer := b.hub, b.peer
	b.mu.Unlock()

	if hub != nil {
		hub.Close()
	}
	if peer != nil {
		peer.Close()
	}
}
