package bridge

import (
	"testing"

	"github.com/gitnexus/gateway/internal/gwerrors"
)

func TestPendingTableRegisterResolve(t *testing.T) {
	table := newPendingTable()

	call, err := table.Register("r1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}

	ok := table.Resolve("r1", []byte(`{"ok":true}`), nil)
	if !ok {
		t.Fatal("Resolve() = false, want true for a registered id")
	}

	select {
	case res := <-call.done:
		if res.err != nil {
			t.Fatalf("unexpected error in result: %v", res.err)
		}
	default:
		t.Fatal("expected a value on call.done")
	}

	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after Resolve", table.Len())
	}
}

func TestPendingTableResolveUnknownID(t *testing.T) {
	table := newPendingTable()
	if table.Resolve("ghost", nil, nil) {
		t.Fatal("Resolve() on an unregistered id should return false")
	}
}

// TestPendingTableResponseTimeoutRace exercises invariant 9 from the other
// direction: once Cancel (the timeout path) has removed an entry, a late
// Resolve for the same id must be a no-op rather than panicking on a closed
// or reused channel.
func TestPendingTableResponseTimeoutRace(t *testing.T) {
	table := newPendingTable()
	if _, err := table.Register("r1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	table.Cancel("r1")

	if table.Resolve("r1", []byte(`{}`), nil) {
		t.Fatal("Resolve() after Cancel() should find no entry")
	}
}

func TestPendingTableOverload(t *testing.T) {
	table := newPendingTable()
	for i := 0; i < MaxPending; i++ {
		id := string(rune('a' + i%26))
		if _, err := table.Register(id + string(rune(i))); err != nil {
			t.Fatalf("Register() #%d error = %v", i, err)
		}
	}

	if _, err := table.Register("overflow"); err != ErrOverloaded {
		t.Fatalf("Register() at capacity error = %v, want ErrOverloaded", err)
	}
}

func TestPendingTableDrainAll(t *testing.T) {
	table := newPendingTable()
	call1, _ := table.Register("r1")
	call2, _ := table.Register("r2")

	table.DrainAll()

	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after DrainAll", table.Len())
	}
	for _, call := range []*pendingCall{call1, call2} {
		select {
		case res := <-call.done:
			if res.err == nil || res.err.Code != gwerrors.CodeBrowserDisconnected {
				t.Fatalf("DrainAll() result = %+v, want BROWSER_DISCONNECTED", res)
			}
		default:
			t.Fatal("expected a drained result on call.done")
		}
	}
}
