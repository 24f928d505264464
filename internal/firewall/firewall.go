// Package firewall enforces the read-only invariant on the cypher tool,
// GitNexus's sole free-form input (spec §4.D). It never talks to the
// bridge; a rejection here never consumes a circuit-breaker slot.
package firewall

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLen is the maximum accepted query length, in runes.
	MaxQueryLen = 10_000
	// MinQueryLen is the minimum accepted query length, in runes.
	MinQueryLen = 6
)

// allowSet holds the first-token clauses a read-only query may start with.
var allowSet = map[string]bool{
	"MATCH":    true,
	"RETURN":   true,
	"WITH":     true,
	"OPTIONAL": true,
	"UNWIND":   true,
}

// denyWords is the mutating-clause deny-set of spec §4.D rule 3.
var denyWords = []string{
	"CREATE", "MERGE", "DELETE", "DETACH", "DROP", "SET", "REMOVE", "CALL",
	"LOAD", "CSV", "FOREACH", "USING", "INDEX", "CONSTRAINT", "DATABASE",
	"USER", "ROLE", "GRANT", "REVOKE", "DENY", "SHOW", "START", "STOP",
	"ALTER", "RENAME",
}

// denyRe compiles one word-boundary regexp per deny-set keyword at package
// init, the same "compile once at package scope" idiom the pack uses for
// serverNameRe in lydakis-mcpx/internal/shim/shim.go.
var denyRe = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(denyWords))
	for _, kw := range denyWords {
		m[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return m
}()

// Result is the outcome of checking a query. When Allowed is false, Keyword
// names the offending token (the disallowed first token, a deny-set keyword,
// or ";" for an unquoted semicolon; "" for a length violation) and Reason is
// a human-readable explanation.
type Result struct {
	Allowed bool
	Query   string // trimmed query, set only when Allowed
	Keyword string
	Reason  string
}

// Check applies the four rules of spec §4.D, in order, and returns the
// normalized (trimmed) query on success.
func Check(raw string) Result {
	trimmed := strings.TrimSpace(raw)

	runeLen := len([]rune(trimmed))
	if runeLen == 0 {
		return Result{Reason: "query cannot be empty"}
	}
	if runeLen < MinQueryLen {
		return Result{Reason: "query is too short to be a valid read-only Cypher statement"}
	}
	if runeLen > MaxQueryLen {
		return Result{Reason: "query exceeds the maximum allowed length"}
	}

	firstToken := strings.ToUpper(firstWord(trimmed))
	if !allowSet[firstToken] {
		return Result{Reason: "query must start with one of MATCH, RETURN, WITH, OPTIONAL, or UNWIND", Keyword: firstToken}
	}

	for _, kw := range denyWords {
		if denyRe[kw].MatchString(trimmed) {
			return Result{Reason: "query contains a mutating or administrative clause", Keyword: kw}
		}
	}

	if hasUnquotedSemicolon(trimmed) {
		return Result{Reason: "multiple statements are not permitted", Keyword: ";"}
	}

	return Result{Allowed: true, Query: trimmed}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// hasUnquotedSemicolon reports whether s contains a semicolon outside of a
// single- or double-quoted string literal.
func hasUnquotedSemicolon(s string) bool {
	var inSingle, inDouble bool
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				return true
			}
		}
	}
	return false
}
