// Package validate implements the schema validation pipeline of spec §4.C:
// given a tool name and a raw, free-form argument mapping, it either
// produces a normalized mapping (defaults filled, enums canonicalized) or a
// list of issues a human-plus-agent reader can act on. Validation always
// runs before the resilience wrapper touches the circuit breaker.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gitnexus/gateway/internal/gwerrors"
)

// Kind identifies the expected Go type of a field after normalization.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStringArray
)

// Field describes one argument of one tool, table-driven in the spirit of
// the teacher's getBoolDefault/getIntDefault/getStringDefault call sites,
// generalized here into data instead of three ad hoc helpers per call site.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	MinLen   int      // KindString: minimum rune length after trimming whitespace (e.g. 1 for "non-empty")
	MinItems int      // KindStringArray: minimum element count
	Min, Max float64  // KindInt/KindFloat: inclusive range
	Enum     []string // KindString: allowed values; empty means unrestricted
	Default  any      // used when the field is absent and not Required
}

// Spec is the full validation contract for one tool.
type Spec struct {
	Fields []Field
	// Refine runs after every field has been checked individually and
	// normalized is fully populated; it implements cross-field rules such
	// as the read tool's end_line >= start_line.
	Refine func(normalized map[string]any) []gwerrors.Issue
}

func field(name string, k Kind) Field { return Field{Name: name, Kind: k} }

func (f Field) required() Field   { f.Required = true; return f }
func (f Field) minLen(n int) Field { f.MinLen = n; return f }
func (f Field) minItems(n int) Field { f.MinItems = n; return f }
func (f Field) bounds(min, max float64) Field { f.Min, f.Max = min, max; return f }
func (f Field) enum(values ...string) Field { f.Enum = values; return f }
func (f Field) def(v any) Field { f.Default = v; return f }

// specs mirrors the 15-tool catalogue of spec §6. It is deliberately
// independent of internal/registry's mcp.ToolInputSchema literals: the
// registry describes the tool to the agent, this table enforces it.
var specs = map[string]Spec{
	"context": {},
	"search": {
		Fields: []Field{
			field("query", KindString).required().minLen(1),
			field("limit", KindInt).bounds(1, 100).def(10),
			field("group_by_process", KindBool).def(true),
		},
	},
	"cypher": {
		Fields: []Field{
			field("query", KindString).required().minLen(1),
		},
	},
	"grep": {
		Fields: []Field{
			field("pattern", KindString).required().minLen(1),
			field("case_sensitive", KindBool).def(false),
			field("max_results", KindInt).bounds(1, 500).def(50),
		},
	},
	"read": {
		Fields: []Field{
			field("file_path", KindString).required().minLen(1),
			field("start_line", KindInt).bounds(1, 1<<30),
			field("end_line", KindInt).bounds(1, 1<<30),
		},
		Refine: refineReadLines,
	},
	"explore": {
		Fields: []Field{
			field("name", KindString).required().minLen(1),
			field("type", KindString).required().enum("symbol", "cluster", "process"),
		},
	},
	"overview": {
		Fields: []Field{
			field("show_processes", KindBool).def(true),
			field("show_clusters", KindBool).def(true),
			field("limit", KindInt).bounds(1, 100).def(20),
		},
	},
	"impact": {
		Fields: []Field{
			field("target", KindString).required().minLen(1),
			field("direction", KindString).required().enum("upstream", "downstream"),
			field("max_depth", KindInt).bounds(1, 10).def(3),
			field("relation_types", KindStringArray),
			field("include_tests", KindBool).def(false),
			field("min_confidence", KindFloat).bounds(0, 1).def(0.7),
		},
	},
	"highlight": {
		Fields: []Field{
			field("node_ids", KindStringArray).required().minItems(1),
			field("color", KindString),
		},
	},
	"diff": {
		Fields: []Field{
			field("baseline", KindString).def("last_index"),
			field("include_content", KindBool).def(false),
			field("filter", KindString).enum("all", "added", "modified", "deleted").def("all"),
		},
	},
	"deep_dive": {
		Fields: []Field{
			field("name", KindString).required().minLen(1),
		},
	},
	"review_file": {
		Fields: []Field{
			field("file_path", KindString).required().minLen(1),
		},
	},
	"trace_flow": {
		Fields: []Field{
			field("from", KindString).required().minLen(1),
			field("to", KindString),
			field("max_steps", KindInt).bounds(1, 20).def(10),
		},
	},
	"find_similar": {
		Fields: []Field{
			field("name", KindString).required().minLen(1),
			field("limit", KindInt).bounds(1, 20).def(5),
		},
	},
	"test_impact": {
		Fields: []Field{
			field("changed_files", KindStringArray).required().minItems(1),
			field("max_depth", KindInt).bounds(1, 5).def(2),
			field("suggest_tests", KindBool).def(true),
		},
	},
}

func refineReadLines(normalized map[string]any) []gwerrors.Issue {
	startRaw, hasStart := normalized["start_line"]
	endRaw, hasEnd := normalized["end_line"]
	if !hasStart || !hasEnd {
		return nil
	}
	start, _ := startRaw.(int)
	end, _ := endRaw.(int)
	if end < start {
		return []gwerrors.Issue{{
			Path:    "end_line",
			Message: fmt.Sprintf("end_line (%d) must be >= start_line (%d)", end, start),
		}}
	}
	return nil
}

// Validate checks raw against tool's spec and returns a normalized mapping
// with defaults filled and enums canonicalized, or the list of issues found.
// Unknown tools return a single issue on the "tool_name" path. Nothing in
// this module turns an unknown tool into a TOOL_NOT_FOUND envelope: dispatch
// only runs for tools registered with the MCP server, and mcp-go answers a
// tools/call for any other name itself, outside the gwerrors envelope.
func Validate(tool string, raw map[string]any) (map[string]any, []gwerrors.Issue) {
	spec, ok := specs[tool]
	if !ok {
		return nil, []gwerrors.Issue{{Path: "tool_name", Message: fmt.Sprintf("unknown tool %q", tool)}}
	}

	var issues []gwerrors.Issue
	normalized := make(map[string]any, len(spec.Fields))
	known := make(map[string]bool, len(spec.Fields))

	for _, f := range spec.Fields {
		known[f.Name] = true
		v, present := raw[f.Name]
		if !present || v == nil {
			if f.Required {
				issues = append(issues, gwerrors.Issue{Path: f.Name, Message: fmt.Sprintf("%s is required", f.Name)})
				continue
			}
			if f.Default != nil {
				normalized[f.Name] = f.Default
			}
			continue
		}
		norm, fieldIssues := checkField(f, v)
		issues = append(issues, fieldIssues...)
		if len(fieldIssues) == 0 {
			normalized[f.Name] = norm
		}
	}

	for k := range raw {
		if !known[k] {
			issues = append(issues, gwerrors.Issue{Path: k, Message: fmt.Sprintf("unknown field %q", k)})
		}
	}

	if len(issues) == 0 && spec.Refine != nil {
		issues = append(issues, spec.Refine(normalized)...)
	}

	if len(issues) > 0 {
		sort.Slice(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
		return nil, issues
	}
	return normalized, nil
}

func checkField(f Field, v any) (any, []gwerrors.Issue) {
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be a string", f.Name)}}
		}
		if f.MinLen > 0 && len([]rune(strings.TrimSpace(s))) < f.MinLen {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s cannot be empty", f.Name)}}
		}
		if len(f.Enum) > 0 {
			canon, ok := canonicalEnum(f.Enum, s)
			if !ok {
				return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be one of %s", f.Name, strings.Join(f.Enum, ", "))}}
			}
			return canon, nil
		}
		return s, nil

	case KindInt:
		n, ok := asFloat(v)
		if !ok || n != float64(int(n)) {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be an integer", f.Name)}}
		}
		if n < f.Min || n > f.Max {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be between %d and %d", f.Name, int(f.Min), int(f.Max))}}
		}
		return int(n), nil

	case KindFloat:
		n, ok := asFloat(v)
		if !ok {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be a number", f.Name)}}
		}
		if n < f.Min || n > f.Max {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be between %.2f and %.2f", f.Name, f.Min, f.Max)}}
		}
		return n, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be a boolean", f.Name)}}
		}
		return b, nil

	case KindStringArray:
		items, ok := v.([]any)
		if !ok {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be an array of strings", f.Name)}}
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must be an array of strings", f.Name)}}
			}
			out = append(out, s)
		}
		if len(out) < f.MinItems {
			return nil, []gwerrors.Issue{{Path: f.Name, Message: fmt.Sprintf("%s must contain at least %d element(s)", f.Name, f.MinItems)}}
		}
		return out, nil

	default:
		return nil, []gwerrors.Issue{{Path: f.Name, Message: "internal: unhandled field kind"}}
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// canonicalEnum matches s against values case-insensitively and returns the
// canonical spelling from values.
func canonicalEnum(values []string, s string) (string, bool) {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return v, true
		}
	}
	return "", false
}
