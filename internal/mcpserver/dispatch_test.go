package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gitnexus/gateway/internal/bridge"
	"github.com/gitnexus/gateway/internal/registry"
	"github.com/gitnexus/gateway/internal/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func newTestServer(t *testing.T) (*Server, *bridge.Bridge) {
	t.Helper()
	br := bridge.New(freePort(t), "secret", testLogger())
	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig())
	timeouts := resilience.Timeouts{Quick: time.Second, Heavy: 2 * time.Second}
	s := New(br, breaker, timeouts, false, "test-agent", testLogger())
	return s, br
}

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("result content = %v, want exactly one block", res.Content)
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content[0] = %T, want mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

func TestHandleToolCallValidationError(t *testing.T) {
	s, _ := newTestServer(t)
	d, _ := registry.Lookup("search")

	res, err := s.handleToolCall(context.Background(), d, toolRequest("search", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleToolCall() returned a Go error = %v, want nil", err)
	}
	if !res.IsError {
		t.Fatal("IsError = false, want true for a missing required field")
	}

	var env struct {
		Code string `json:"code"`
	}
	if jsonErr := json.Unmarshal([]byte(resultText(t, res)), &env); jsonErr != nil {
		t.Fatalf("decoding error envelope: %v", jsonErr)
	}
	if env.Code != "VALIDATION_ERROR" {
		t.Fatalf("code = %q, want VALIDATION_ERROR", env.Code)
	}
}

func TestHandleToolCallCypherForbidden(t *testing.T) {
	s, _ := newTestServer(t)
	d, _ := registry.Lookup("cypher")

	res, err := s.handleToolCall(context.Background(), d, toolRequest("cypher", map[string]interface{}{
		"query": "MATCH (n) DETACH DELETE n",
	}))
	if err != nil {
		t.Fatalf("handleToolCall() returned a Go error = %v, want nil", err)
	}
	if !res.IsError {
		t.Fatal("IsError = false, want true for a mutating cypher query")
	}

	var env struct {
		Code string `json:"code"`
	}
	if jsonErr := json.Unmarshal([]byte(resultText(t, res)), &env); jsonErr != nil {
		t.Fatalf("decoding error envelope: %v", jsonErr)
	}
	if env.Code != "CYPHER_FORBIDDEN" {
		t.Fatalf("code = %q, want CYPHER_FORBIDDEN", env.Code)
	}
}

func TestHandleToolCallBrowserDisconnected(t *testing.T) {
	s, _ := newTestServer(t)
	// br was never Start()ed, so the bridge stays in degraded mode.
	d, _ := registry.Lookup("overview")

	res, err := s.handleToolCall(context.Background(), d, toolRequest("overview", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleToolCall() returned a Go error = %v, want nil", err)
	}
	if !res.IsError {
		t.Fatal("IsError = false, want true with no browser connected")
	}

	var env struct {
		Code string `json:"code"`
	}
	if jsonErr := json.Unmarshal([]byte(resultText(t, res)), &env); jsonErr != nil {
		t.Fatalf("decoding error envelope: %v", jsonErr)
	}
	if env.Code != "BROWSER_DISCONNECTED" {
		t.Fatalf("code = %q, want BROWSER_DISCONNECTED", env.Code)
	}
}

// TestHandleToolCallSuccess exercises the full pipeline against a real Hub
// and a fake browser, mirroring the bridge package's own real-socket style:
// validate → resilience.Run → bridge.CallTool → browser round trip.
func TestHandleToolCallSuccess(t *testing.T) {
	port := freePort(t)
	br := bridge.New(port, "secret", testLogger())
	if err := br.Start(context.Background(), "test-agent"); err != nil {
		t.Fatalf("br.Start() error = %v", err)
	}
	t.Cleanup(br.Close)
	if br.Mode() != bridge.ModeHub {
		t.Fatalf("br.Mode() = %q, want hub", br.Mode())
	}

	browser := dialBrowser(t, port)

	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig())
	timeouts := resilience.Timeouts{Quick: 2 * time.Second, Heavy: 2 * time.Second}
	s := New(br, breaker, timeouts, false, "test-agent", testLogger())

	d, _ := registry.Lookup("overview")

	resultCh := make(chan *mcp.CallToolResult, 1)
	go func() {
		res, _ := s.handleToolCall(context.Background(), d, toolRequest("overview", map[string]interface{}{}))
		resultCh <- res
	}()

	var forwarded bridgeWireMessage
	if err := browser.ReadJSON(&forwarded); err != nil {
		t.Fatalf("browser reading forwarded request: %v", err)
	}
	if forwarded.Method != "overview" {
		t.Fatalf("forwarded.Method = %q, want overview", forwarded.Method)
	}
	reply := bridgeWireMessage{
		ID:     forwarded.ID,
		PeerID: forwarded.PeerID,
		Result: json.RawMessage(`{"processes":[],"clusters":[]}`),
	}
	if err := browser.WriteJSON(reply); err != nil {
		t.Fatalf("writing browser response: %v", err)
	}

	select {
	case res := <-resultCh:
		if res.IsError {
			t.Fatalf("result.IsError = true, want false; text = %s", resultText(t, res))
		}
		if resultText(t, res) != `{"processes":[],"clusters":[]}` {
			t.Fatalf("result text = %q", resultText(t, res))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handleToolCall did not complete in time")
	}
}

// bridgeWireMessage mirrors the JSON wire fields of bridge.Message that this
// package's tests read or write.
type bridgeWireMessage struct {
	Type   string          `json:"type,omitempty"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	PeerID string          `json:"peer_id,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	RPCErr json.RawMessage `json:"error,omitempty"`
}

func dialBrowser(t *testing.T, port int) *websocket.Conn {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	var conn *websocket.Conn
	var err error
	for time.Now().Before(deadline) {
		conn, _, err = websocket.DefaultDialer.Dial(
			"ws://127.0.0.1:"+strconv.Itoa(port)+"/",
			map[string][]string{"Origin": {"http://localhost:3000"}},
		)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dialing browser ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	push := bridgeWireMessage{Type: "context", Params: json.RawMessage(`{"project_name":"demo","stats":{},"hotspots":[],"folder_tree":"."}`)}
	if err := conn.WriteJSON(push); err != nil {
		t.Fatalf("writing initial context push: %v", err)
	}
	return conn
}
