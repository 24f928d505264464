// Package gwerrors defines the typed error envelope returned to the agent
// for every failed tool call, and the fixed set of error codes a GitNexus
// handler may raise.
package gwerrors

import "fmt"

// Code identifies the category of a tool-call failure. The agent branches
// on Code, not on Message, so its set is part of the external contract.
type Code string

const (
	CodeValidationError     Code = "VALIDATION_ERROR"
	CodeCypherForbidden     Code = "CYPHER_FORBIDDEN"
	CodeTimeout             Code = "TIMEOUT"
	CodeCircuitOpen         Code = "CIRCUIT_OPEN"
	CodeBrowserDisconnected Code = "BROWSER_DISCONNECTED"
	CodeToolNotFound        Code = "TOOL_NOT_FOUND"
	CodeInternalError       Code = "INTERNAL_ERROR"
	CodeRetryExhausted      Code = "RETRY_EXHAUSTED"
	CodeConnectionLost      Code = "CONNECTION_LOST"
)

// retryable records whether a client may reasonably retry a call that
// failed with this code, independent of any particular error instance.
var retryable = map[Code]bool{
	CodeValidationError:     false,
	CodeCypherForbidden:     false,
	CodeTimeout:             true,
	CodeCircuitOpen:         true,
	CodeBrowserDisconnected: true,
	CodeToolNotFound:        false,
	CodeInternalError:       true,
	CodeRetryExhausted:      false,
	CodeConnectionLost:      true,
}

// suggestions gives every code an actionable, agent-facing hint. Codes that
// carry call-specific context (e.g. CYPHER_FORBIDDEN's offending keyword)
// still get a generic fallback here; Envelope.Suggestion may be overridden
// per call via WithSuggestion.
var suggestions = map[Code]string{
	CodeValidationError:     "Fix the reported fields and retry the call.",
	CodeCypherForbidden:     "Only read-only clauses are allowed. Remove the offending keyword and retry.",
	CodeTimeout:             "The backend did not respond in time. Retry, or use a narrower request.",
	CodeCircuitOpen:         "The backend is failing repeatedly. Wait retry_after seconds before retrying.",
	CodeBrowserDisconnected: "No browser is connected to the code-intelligence engine. Open the browser app and retry.",
	CodeToolNotFound:        "Call tools/list to see the current tool catalogue.",
	CodeInternalError:       "An unexpected error occurred. Retry; if it persists, report the request id.",
	CodeRetryExhausted:      "Reconnection attempts were exhausted. Restart the daemon.",
	CodeConnectionLost:      "The connection to the Hub was lost; a reconnect is in progress.",
}

// Issue describes a single validation failure, scoped to one argument path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Envelope is the discriminated error half of the tool-result union
// (§3 Tool-result envelope). It is always serialized as the tool result's
// JSON text content with is_error=true at the MCP layer.
type Envelope struct {
	Error      bool    `json:"error"`
	Code       Code    `json:"code"`
	Message    string  `json:"message"`
	Details    any     `json:"details,omitempty"`
	Suggestion string  `json:"suggestion"`
	Retryable  bool    `json:"retryable"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}

func (e *Envelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Envelope for code with the default retryability and
// suggestion for that code.
func New(code Code, message string) *Envelope {
	return &Envelope{
		Error:      true,
		Code:       code,
		Message:    message,
		Suggestion: suggestions[code],
		Retryable:  retryable[code],
	}
}

// WithDetails attaches structured diagnostic data to the envelope and
// returns it for chaining.
func (e *Envelope) WithDetails(details any) *Envelope {
	e.Details = details
	return e
}

// WithSuggestion overrides the default suggestion text.
func (e *Envelope) WithSuggestion(suggestion string) *Envelope {
	e.Suggestion = suggestion
	return e
}

// WithRetryAfter sets retry_after (seconds) on a retryable envelope.
func (e *Envelope) WithRetryAfter(seconds float64) *Envelope {
	e.RetryAfter = seconds
	return e
}

// Validation builds a VALIDATION_ERROR envelope carrying the list of field
// issues a human-plus-agent reader needs.
func Validation(issues []Issue) *Envelope {
	msg := "arguments failed validation"
	if len(issues) == 1 {
		msg = issues[0].Message
	}
	return New(CodeValidationError, msg).WithDetails(map[string]any{"issues": issues})
}

// CypherForbidden builds a CYPHER_FORBIDDEN envelope naming the offending
// keyword or rule.
func CypherForbidden(reason, keyword string) *Envelope {
	e := New(CodeCypherForbidden, reason)
	if keyword != "" {
		e.WithDetails(map[string]any{"keyword": keyword})
	}
	return e
}

// ToolNotFound builds a TOOL_NOT_FOUND envelope for an unrecognized tool name.
func ToolNotFound(name string) *Envelope {
	return New(CodeToolNotFound, fmt.Sprintf("unknown tool %q", name))
}

// Timeout builds a TIMEOUT envelope for a call that exceeded its category deadline.
func Timeout(toolName string) *Envelope {
	return New(CodeTimeout, fmt.Sprintf("tool %q did not respond within its timeout", toolName))
}

// CircuitOpen builds a CIRCUIT_OPEN envelope carrying the remaining reset window.
func CircuitOpen(retryAfter float64) *Envelope {
	return New(CodeCircuitOpen, "the backend circuit breaker is open").WithRetryAfter(retryAfter)
}

// BrowserDisconnected builds a BROWSER_DISCONNECTED envelope.
func BrowserDisconnected() *Envelope {
	return New(CodeBrowserDisconnected, "no browser is connected")
}

// Internal builds an INTERNAL_ERROR envelope. err's message is only attached
// as details when debug is true, per §4.G.
func Internal(err error, debug bool) *Envelope {
	e := New(CodeInternalError, "an internal error occurred")
	if debug && err != nil {
		e.WithDetails(map[string]any{"error": err.Error()})
	}
	return e
}
