package bridge

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gitnexus/gateway/internal/gwerrors"
)

// MaxPending is the admission cap of spec §3/§5: the bridge never holds
// more than this many in-flight requests.
const MaxPending = 100

// pendingCall is one entry of the pending-request table (spec §3): a
// one-shot completion, torn down exactly once by whichever of {response
// arrives, caller's context expires, shutdown drains} happens first. The
// deadline itself lives in the caller's context, not in the entry.
type pendingCall struct {
	done chan pendingResult
}

type pendingResult struct {
	result json.RawMessage
	err    *gwerrors.Envelope
}

// pendingTable is the mutex-guarded map from request id to its pendingCall,
// generalized from lydakis-mcpx/internal/daemon/keepalive.go's
// timers/timerIDs pattern into a request-response correlation table rather
// than an idle-timeout table. A response and a timeout racing for the same
// id both try to delete the map entry; map deletion is the single source
// of truth for "who wins" — whichever side observes the entry present
// resolves it, the other finds it already gone.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingCall)}
}

// ErrOverloaded is returned by Register when the table is already at
// MaxPending.
var ErrOverloaded = fmt.Errorf("bridge: too many in-flight requests (max %d)", MaxPending)

// Register admits a new pending call under id. It fails fast with
// ErrOverloaded once the table is at capacity (spec §8 invariant 7).
func (t *pendingTable) Register(id string) (*pendingCall, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= MaxPending {
		return nil, ErrOverloaded
	}
	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("bridge: request id %q already pending", id)
	}

	call := &pendingCall{done: make(chan pendingResult, 1)}
	t.entries[id] = call
	return call, nil
}

// Resolve delivers a result to the pending call registered under id, if
// still present, and removes it. It reports whether an entry was found, so
// callers can distinguish "routed" from "dropped because it already timed
// out or was never ours" (spec §8 invariant 9).
func (t *pendingTable) Resolve(id string, result json.RawMessage, envErr *gwerrors.Envelope) bool {
	t.mu.Lock()
	call, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	call.done <- pendingResult{result: result, err: envErr}
	return true
}

// Cancel removes id's entry without resolving its channel. The caller uses
// it after its own select has already returned on ctx.Done() (or after a
// failed write), so nobody is waiting on the channel any more.
func (t *pendingTable) Cancel(id string) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// Len reports the number of currently in-flight requests.
func (t *pendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// DrainAll cancels every pending call with BROWSER_DISCONNECTED, used on
// shutdown (spec §4.H) and when the browser disconnects mid-flight.
func (t *pendingTable) DrainAll() {
	t.mu.Lock()
	calls := make([]*pendingCall, 0, len(t.entries))
	for id, call := range t.entries {
		calls = append(calls, call)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	for _, call := range calls {
		call.done <- pendingResult{err: gwerrors.BrowserDisconnected()}
	}
}
