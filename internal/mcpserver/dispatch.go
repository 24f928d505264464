package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gitnexus/gateway/internal/firewall"
	"github.com/gitnexus/gateway/internal/gwerrors"
	"github.com/gitnexus/gateway/internal/metrics"
	"github.com/gitnexus/gateway/internal/registry"
	"github.com/gitnexus/gateway/internal/resilience"
	"github.com/gitnexus/gateway/internal/validate"
)

// envelopeErr adapts a *gwerrors.Envelope to the plain `error` that
// resilience.Run's generic signature requires, so Run's own
// context.DeadlineExceeded and the bridge's typed envelope can both flow
// through the same (T, error) return without Run knowing about envelopes.
type envelopeErr struct{ env *gwerrors.Envelope }

func (e *envelopeErr) Error() string { return e.env.Error() }

// handleToolCall runs one tools/call through the full pipeline of spec §2's
// data-flow diagram: validator → firewall (cypher only) → resilience
// wrapper (breaker + timeout) → bridge → response envelope. It never
// returns a Go error itself; every failure is encoded as a successful MCP
// result carrying an error envelope with is_error=true, per spec §4.G.
func (s *Server) handleToolCall(ctx context.Context, d registry.Descriptor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := requestID()
	logger := s.logger.With("request_id", id, "tool_name", d.Name(), "agent_name", s.agentName)
	done := metrics.TimeTool(d.Name())

	raw, ok := req.Params.Arguments.(map[string]interface{})
	if !ok {
		raw = map[string]interface{}{}
	}

	normalized, issues := validate.Validate(d.Name(), raw)
	if len(issues) > 0 {
		logger.Warn("tool call failed validation", "issues", issues)
		done("validation_error")
		return errorResult(gwerrors.Validation(issues)), nil
	}
	logger.Debug("tool call validated", "args", validate.DecodeArgs(d.Name(), normalized))

	if d.Name() == registry.CypherToolName {
		result := firewall.Check(normalized["query"].(string))
		if !result.Allowed {
			logger.Warn("cypher query rejected by firewall", "keyword", result.Keyword, "reason", result.Reason)
			done("cypher_forbidden")
			return errorResult(gwerrors.CypherForbidden(result.Reason, result.Keyword)), nil
		}
		normalized["query"] = result.Query
	}

	ok, retryAfter := s.breaker.Allow()
	if !ok {
		logger.Warn("circuit breaker open", "retry_after", retryAfter)
		done("circuit_open")
		return errorResult(gwerrors.CircuitOpen(retryAfter)), nil
	}

	params, err := json.Marshal(normalized)
	if err != nil {
		logger.Error("failed to marshal normalized arguments", "error", err)
		done("internal_error")
		return errorResult(gwerrors.Internal(err, s.debug)), nil
	}

	deadline := s.timeouts.For(d.Category)
	result, err := resilience.Run(ctx, deadline, func(ctx context.Context) (json.RawMessage, error) {
		out, envErr := s.bridge.CallTool(ctx, d.Name(), params, s.agentName)
		if envErr != nil {
			return nil, &envelopeErr{envErr}
		}
		return out, nil
	})

	if err != nil {
		env := toEnvelope(err, d.Name(), s.debug)
		// spec §7's error table counts only TIMEOUT against the breaker; a
		// disconnected browser or an internal marshal failure must not trip it,
		// or CIRCUIT_OPEN masks BROWSER_DISCONNECTED for a full reset window.
		if env.Code == gwerrors.CodeTimeout {
			s.breaker.RecordFailure()
		}
		logger.Warn("tool call failed", "code", env.Code, "message", env.Message)
		done(string(env.Code))
		return errorResult(env), nil
	}

	s.breaker.RecordSuccess()
	logger.Info("tool call succeeded")
	done("ok")
	return mcp.NewToolResultText(string(result)), nil
}

// toEnvelope classifies an error returned by resilience.Run: either the
// bridge's own typed envelope (unwrapped), a deadline exceeded by Run
// itself (spec §4.E's per-category timeout), or anything else, which
// collapses to INTERNAL_ERROR.
func toEnvelope(err error, toolName string, debug bool) *gwerrors.Envelope {
	var ee *envelopeErr
	if errors.As(err, &ee) {
		return ee.env
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return gwerrors.Timeout(toolName)
	}
	return gwerrors.Internal(err, debug)
}

func errorResult(env *gwerrors.Envelope) *mcp.CallToolResult {
	body, err := json.Marshal(env)
	if err != nil {
		body = []byte(`{"error":true,"code":"INTERNAL_ERROR","message":"failed to encode error envelope"}`)
	}
	return mcp.NewToolResultError(string(body))
}
